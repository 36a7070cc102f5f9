package registration

import (
	"context"

	"ms-registration/internal/apperr"
	"ms-registration/internal/models"
)

// Counter reports how many registrations of an event sit in a status.
type Counter interface {
	CountByEventAndStatus(ctx context.Context, eventID string, status models.RegistrationStatus) (int, error)
}

// Ledger answers capacity questions from the persisted registrations. Only
// CONFIRMED registrations consume capacity. Callers that act on an answer
// must hold the event's admission lock.
type Ledger struct {
	DB Counter
}

func NewLedger(db Counter) *Ledger {
	return &Ledger{DB: db}
}

func (l *Ledger) ConfirmedCount(ctx context.Context, eventID string) (int, error) {
	n, err := l.DB.CountByEventAndStatus(ctx, eventID, models.RegistrationConfirmed)
	if err != nil {
		return 0, apperr.Storage(err, "count confirmed registrations for event %s", eventID)
	}
	return n, nil
}

func (l *Ledger) HasCapacity(ctx context.Context, eventID string, capacity int) (bool, error) {
	n, err := l.ConfirmedCount(ctx, eventID)
	if err != nil {
		return false, err
	}
	return n < capacity, nil
}

// Decide picks the status for a new registration.
func (l *Ledger) Decide(ctx context.Context, eventID string, capacity int) (models.RegistrationStatus, error) {
	ok, err := l.HasCapacity(ctx, eventID, capacity)
	if err != nil {
		return "", err
	}
	if ok {
		return models.RegistrationConfirmed, nil
	}
	return models.RegistrationWaitlisted, nil
}
