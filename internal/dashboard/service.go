// Package dashboard joins registrations with their events for the user and
// organizer views.
package dashboard

import (
	"context"

	"ms-registration/internal/apperr"
	"ms-registration/internal/models"
)

type RegistrationReader interface {
	GetRegistrationsByUser(ctx context.Context, userID string) ([]models.Registration, error)
	GetRegistrationsByEvent(ctx context.Context, eventID string) ([]models.Registration, error)
}

type EventReader interface {
	GetEventByID(ctx context.Context, id string) (*models.Event, error)
}

type CapacityReader interface {
	ConfirmedCount(ctx context.Context, eventID string) (int, error)
}

// Service holds no state; every call reads through to the stores.
type Service struct {
	Registrations RegistrationReader
	Events        EventReader
	Capacity      CapacityReader
}

func NewService(regs RegistrationReader, events EventReader, capacity CapacityReader) *Service {
	return &Service{Registrations: regs, Events: events, Capacity: capacity}
}

// ActiveRegistrationsWithEvent pairs the user's live registrations with their
// events. Registrations whose event is missing or cancelled are left out.
func (s *Service) ActiveRegistrationsWithEvent(ctx context.Context, userID string) ([]models.RegistrationWithEvent, error) {
	return s.withEvent(ctx, userID, models.Registration.Active)
}

// ConfirmedRegistrationsWithEvent is ActiveRegistrationsWithEvent restricted
// to CONFIRMED registrations.
func (s *Service) ConfirmedRegistrationsWithEvent(ctx context.Context, userID string) ([]models.RegistrationWithEvent, error) {
	return s.withEvent(ctx, userID, func(r models.Registration) bool {
		return r.Status == models.RegistrationConfirmed
	})
}

// RegisteredEvents lists the events the user holds a live registration for.
func (s *Service) RegisteredEvents(ctx context.Context, userID string) ([]models.EventView, error) {
	pairs, err := s.ActiveRegistrationsWithEvent(ctx, userID)
	if err != nil {
		return nil, err
	}
	events := make([]models.EventView, 0, len(pairs))
	for _, p := range pairs {
		events = append(events, p.Event)
	}
	return events, nil
}

func (s *Service) withEvent(ctx context.Context, userID string, keep func(models.Registration) bool) ([]models.RegistrationWithEvent, error) {
	regs, err := s.Registrations.GetRegistrationsByUser(ctx, userID)
	if err != nil {
		return nil, apperr.Storage(err, "list registrations for user %s", userID)
	}

	out := []models.RegistrationWithEvent{}
	for _, reg := range regs {
		if !keep(reg) {
			continue
		}
		ev, err := s.Events.GetEventByID(ctx, reg.EventID)
		if apperr.Is(err, apperr.CodeNotFound) {
			continue
		}
		if err != nil {
			return nil, apperr.Storage(err, "load event %s", reg.EventID)
		}
		if ev.Retired() {
			continue
		}
		count, err := s.Capacity.ConfirmedCount(ctx, ev.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, models.RegistrationWithEvent{
			Registration: reg,
			Event:        models.EventView{Event: *ev, RegisteredCount: count},
		})
	}
	return out, nil
}

// EventStats counts an event's registrations by status for its organizer.
func (s *Service) EventStats(ctx context.Context, eventID string) (*models.EventRegistrationStats, error) {
	ev, err := s.Events.GetEventByID(ctx, eventID)
	if err != nil {
		return nil, apperr.Storage(err, "load event %s", eventID)
	}

	regs, err := s.Registrations.GetRegistrationsByEvent(ctx, eventID)
	if err != nil {
		return nil, apperr.Storage(err, "list registrations for event %s", eventID)
	}

	stats := &models.EventRegistrationStats{EventID: ev.ID, Capacity: ev.Capacity}
	for _, r := range regs {
		switch r.Status {
		case models.RegistrationConfirmed:
			stats.Confirmed++
		case models.RegistrationWaitlisted:
			stats.Waitlisted++
		case models.RegistrationCancelled:
			stats.Cancelled++
		}
		if r.Attended {
			stats.Attended++
		}
	}
	if remaining := ev.Capacity - stats.Confirmed; remaining > 0 {
		stats.Remaining = remaining
	}
	return stats, nil
}
