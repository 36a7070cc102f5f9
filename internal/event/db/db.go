package db

import (
	"context"
	"database/sql"
	"errors"

	"ms-registration/internal/apperr"
	"ms-registration/internal/models"

	"github.com/uptrace/bun"
)

type DB struct {
	Bun *bun.DB
}

func (d *DB) CreateEvent(ctx context.Context, ev models.Event) error {
	_, err := d.Bun.NewInsert().Model(&ev).Exec(ctx)
	return err
}

// GetEventByID returns the raw stored row, cancelled or not.
func (d *DB) GetEventByID(ctx context.Context, id string) (*models.Event, error) {
	var ev models.Event
	err := d.Bun.NewSelect().
		Model(&ev).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("event %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

func (d *DB) UpdateEvent(ctx context.Context, ev models.Event) error {
	res, err := d.Bun.NewUpdate().
		Model(&ev).
		ExcludeColumn("id", "organizer_id", "created_at").
		Where("id = ?", ev.ID).
		Exec(ctx)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperr.NotFound("event %s not found", ev.ID)
	}
	return nil
}

// ListActiveEvents pages through events that are neither cancelled nor being
// cancelled, soonest first.
func (d *DB) ListActiveEvents(ctx context.Context, offset, limit int) ([]models.Event, int, error) {
	var events []models.Event
	total, err := d.activeQuery(&events).
		Offset(offset).
		Limit(limit).
		ScanAndCount(ctx)
	if err != nil {
		return nil, 0, err
	}
	return events, total, nil
}

func (d *DB) ListActiveEventsByOrganizer(ctx context.Context, organizerID string, offset, limit int) ([]models.Event, int, error) {
	var events []models.Event
	total, err := d.activeQuery(&events).
		Where("organizer_id = ?", organizerID).
		Offset(offset).
		Limit(limit).
		ScanAndCount(ctx)
	if err != nil {
		return nil, 0, err
	}
	return events, total, nil
}

// ListPendingCancellations returns events whose cancel cascade never finished.
func (d *DB) ListPendingCancellations(ctx context.Context) ([]models.Event, error) {
	var events []models.Event
	err := d.Bun.NewSelect().
		Model(&events).
		Where("cancellation_pending = ?", true).
		Order("updated_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return events, nil
}

func (d *DB) activeQuery(dest *[]models.Event) *bun.SelectQuery {
	return d.Bun.NewSelect().
		Model(dest).
		Where("status != ?", models.EventStatusCancelled).
		Where("cancellation_pending = ?", false).
		Order("start_date_time ASC", "id ASC")
}
