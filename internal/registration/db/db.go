package db

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"ms-registration/internal/apperr"
	"ms-registration/internal/models"

	"github.com/lib/pq"
	"github.com/uptrace/bun"
)

type DB struct {
	Bun *bun.DB
}

// CreateRegistration inserts reg. A second active registration for the same
// event and user is rejected by uq_registrations_active and reported as a
// conflict.
func (d *DB) CreateRegistration(ctx context.Context, reg models.Registration) error {
	_, err := d.Bun.NewInsert().Model(&reg).Exec(ctx)
	if isUniqueViolation(err) {
		return apperr.Conflict("user %s is already registered for event %s", reg.UserID, reg.EventID)
	}
	return err
}

// isUniqueViolation recognises unique index failures from lib/pq and from
// whichever sqlite driver sqliteshim selected.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func (d *DB) GetRegistrationByID(ctx context.Context, id string) (*models.Registration, error) {
	var reg models.Registration
	err := d.Bun.NewSelect().
		Model(&reg).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("registration %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	return &reg, nil
}

// UpdateRegistration writes status, notes and updated_at of reg, but only
// while the stored status is still expected. A row that moved on in the
// meantime is left alone and reported as a conflict.
func (d *DB) UpdateRegistration(ctx context.Context, reg models.Registration, expected models.RegistrationStatus) error {
	res, err := d.Bun.NewUpdate().
		Model(&reg).
		Column("status", "notes", "updated_at").
		Where("id = ?", reg.ID).
		Where("status = ?", expected).
		Exec(ctx)
	if err != nil {
		return err
	}
	return d.checkAffected(ctx, res, reg.ID, expected)
}

// SetAttended writes only the attended flag, leaving status untouched.
func (d *DB) SetAttended(ctx context.Context, id string, attended bool, at time.Time) error {
	res, err := d.Bun.NewUpdate().
		Model((*models.Registration)(nil)).
		Set("attended = ?", attended).
		Set("updated_at = ?", at).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperr.NotFound("registration %s not found", id)
	}
	return nil
}

func (d *DB) checkAffected(ctx context.Context, res sql.Result, id string, expected models.RegistrationStatus) error {
	n, err := res.RowsAffected()
	if err != nil || n > 0 {
		return nil
	}
	current, err := d.GetRegistrationByID(ctx, id)
	if err != nil {
		return err
	}
	return apperr.Conflict("registration %s is %s, no longer %s", id, current.Status, expected)
}

// GetActiveRegistration returns the user's non-cancelled registration for the
// event, or nil when there is none.
func (d *DB) GetActiveRegistration(ctx context.Context, eventID, userID string) (*models.Registration, error) {
	var reg models.Registration
	err := d.Bun.NewSelect().
		Model(&reg).
		Where("event_id = ?", eventID).
		Where("user_id = ?", userID).
		Where("status != ?", models.RegistrationCancelled).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &reg, nil
}

func (d *DB) GetRegistrationsByUser(ctx context.Context, userID string) ([]models.Registration, error) {
	var regs []models.Registration
	err := d.Bun.NewSelect().
		Model(&regs).
		Where("user_id = ?", userID).
		Order("registration_date ASC", "id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return regs, nil
}

func (d *DB) GetRegistrationsByEvent(ctx context.Context, eventID string) ([]models.Registration, error) {
	var regs []models.Registration
	err := d.Bun.NewSelect().
		Model(&regs).
		Where("event_id = ?", eventID).
		Order("registration_date ASC", "id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return regs, nil
}

func (d *DB) CountByEventAndStatus(ctx context.Context, eventID string, status models.RegistrationStatus) (int, error) {
	return d.Bun.NewSelect().
		Model((*models.Registration)(nil)).
		Where("event_id = ?", eventID).
		Where("status = ?", status).
		Count(ctx)
}
