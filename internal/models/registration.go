package models

import (
	"strings"
	"time"

	"github.com/uptrace/bun"
)

type RegistrationStatus string

const (
	RegistrationConfirmed  RegistrationStatus = "CONFIRMED"
	RegistrationWaitlisted RegistrationStatus = "WAITLISTED"
	RegistrationCancelled  RegistrationStatus = "CANCELLED"
)

func ParseRegistrationStatus(name string) (RegistrationStatus, bool) {
	switch RegistrationStatus(strings.ToUpper(strings.TrimSpace(name))) {
	case RegistrationConfirmed:
		return RegistrationConfirmed, true
	case RegistrationWaitlisted:
		return RegistrationWaitlisted, true
	case RegistrationCancelled:
		return RegistrationCancelled, true
	}
	return "", false
}

type Registration struct {
	bun.BaseModel `bun:"table:registrations,alias:r"`

	ID               string             `bun:"id,pk" json:"id"`
	EventID          string             `bun:"event_id,notnull" json:"event_id"`
	UserID           string             `bun:"user_id,notnull" json:"user_id"`
	Status           RegistrationStatus `bun:"status,notnull" json:"status"`
	RegistrationDate time.Time          `bun:"registration_date,notnull" json:"registration_date"`
	Notes            string             `bun:"notes" json:"notes,omitempty"`
	Attended         bool               `bun:"attended,notnull" json:"attended"`
	UpdatedAt        time.Time          `bun:"updated_at,notnull" json:"updated_at"`
}

// Active reports whether the registration still holds or awaits a place.
func (r Registration) Active() bool {
	return r.Status != RegistrationCancelled
}

// RegistrationRequest is the body of a registration attempt.
type RegistrationRequest struct {
	EventID string `json:"event_id"`
	Notes   string `json:"notes"`
}

// RegistrationUpdateRequest is the body of an organizer status edit.
type RegistrationUpdateRequest struct {
	Status RegistrationStatus `json:"status"`
	Notes  string             `json:"notes"`
}

// RegistrationWithEvent pairs a registration with the event it belongs to.
type RegistrationWithEvent struct {
	Registration Registration `json:"registration"`
	Event        EventView    `json:"event"`
}

// EventRegistrationStats summarizes the registrations of one event.
type EventRegistrationStats struct {
	EventID    string `json:"event_id"`
	Capacity   int    `json:"capacity"`
	Confirmed  int    `json:"confirmed"`
	Waitlisted int    `json:"waitlisted"`
	Cancelled  int    `json:"cancelled"`
	Attended   int    `json:"attended"`
	Remaining  int    `json:"remaining"`
}
