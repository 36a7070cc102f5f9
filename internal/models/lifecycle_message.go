package models

import "time"

// LifecycleMessage is published to Kafka and streamed over SSE whenever an
// event or registration changes state.
type LifecycleMessage struct {
	Type string             `json:"type"`
	EventID string             `json:"event_id"`
	RegistrationID string             `json:"registration_id,omitempty"`
	UserID string             `json:"user_id,omitempty"`
	Status string             `json:"status"`
	Attended bool               `json:"attended,omitempty"`
	OccurredAt time.Time          `json:"occurred_at"`
	Registration *Registration      `json:"registration,omitempty"`
	Event *Event             `json:"event,omitempty"`
}

func NewRegistrationMessage(kind string, reg Registration, at time.Time) LifecycleMessage {
	return LifecycleMessage{
		Type:           kind,
		EventID:        reg.EventID,
		RegistrationID: reg.ID,
		UserID:         reg.UserID,
		Status:         string(reg.Status),
		Attended:       reg.Attended,
		OccurredAt:     at,
		Registration:   &reg,
	}
}

func NewEventMessage(kind string, ev Event, at time.Time) LifecycleMessage {
	return LifecycleMessage{
		Type:       kind,
		EventID:    ev.ID,
		UserID:     ev.OrganizerID,
		Status:     string(ev.Status),
		OccurredAt: at,
		Event:      &ev,
	}
}
