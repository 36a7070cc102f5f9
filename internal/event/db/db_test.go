package db_test

import (
	"context"
	"testing"
	"time"

	"ms-registration/internal/apperr"
	"ms-registration/internal/database"
	"ms-registration/internal/event/db"
	"ms-registration/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *db.DB {
	bunDB, err := database.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("Failed to connect to in-memory database: %v", err)
	}
	if err := database.CreateSchema(context.Background(), bunDB); err != nil {
		t.Fatalf("Failed to create schema: %v", err)
	}
	t.Cleanup(func() { bunDB.Close() })
	return &db.DB{Bun: bunDB}
}

func newEvent(organizerID string, start time.Time, status models.EventStatus) models.Event {
	now := time.Now().UTC()
	return models.Event{
		ID:                   uuid.New().String(),
		Title:                "Go Meetup",
		Description:          "Monthly meetup",
		Category:             models.CategoryWorkshop,
		OrganizerID:          organizerID,
		StartDateTime:        start,
		EndDateTime:          start.Add(2 * time.Hour),
		Location:             models.Location{Type: models.LocationPhysical, City: "Colombo", Country: "LK"},
		Capacity:             50,
		RegistrationDeadline: start.Add(-time.Hour),
		Status:               status,
		Tags:                 []string{"go", "backend"},
		CreatedAt:            now,
		UpdatedAt:            now,
	}
}

func TestCreateAndGetEvent(t *testing.T) {
	eventDB := setupTestDB(t)
	ctx := context.Background()

	ev := newEvent("org-1", time.Now().UTC().Add(24*time.Hour), models.EventStatusDraft)
	require.NoError(t, eventDB.CreateEvent(ctx, ev))

	got, err := eventDB.GetEventByID(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, ev.Title, got.Title)
	assert.Equal(t, models.LocationPhysical, got.Location.Type)
	assert.Equal(t, "Colombo", got.Location.City)
	assert.Equal(t, []string{"go", "backend"}, got.Tags)
	assert.False(t, got.CancellationPending)
}

func TestGetEventByID_NotFound(t *testing.T) {
	eventDB := setupTestDB(t)

	_, err := eventDB.GetEventByID(context.Background(), "nope")
	assert.True(t, apperr.Is(err, apperr.CodeNotFound))
}

func TestUpdateEvent(t *testing.T) {
	eventDB := setupTestDB(t)
	ctx := context.Background()

	ev := newEvent("org-1", time.Now().UTC().Add(24*time.Hour), models.EventStatusDraft)
	require.NoError(t, eventDB.CreateEvent(ctx, ev))

	ev.Title = "Go Meetup #2"
	ev.Status = models.EventStatusPublished
	ev.CancellationPending = true
	ev.OrganizerID = "someone-else"
	require.NoError(t, eventDB.UpdateEvent(ctx, ev))

	got, err := eventDB.GetEventByID(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, "Go Meetup #2", got.Title)
	assert.Equal(t, models.EventStatusPublished, got.Status)
	assert.True(t, got.CancellationPending)
	assert.Equal(t, "org-1", got.OrganizerID, "organizer is immutable")

	missing := newEvent("org-1", time.Now().UTC(), models.EventStatusDraft)
	assert.True(t, apperr.Is(eventDB.UpdateEvent(ctx, missing), apperr.CodeNotFound))
}

func TestListActiveEvents(t *testing.T) {
	eventDB := setupTestDB(t)
	ctx := context.Background()
	base := time.Now().UTC().Add(48 * time.Hour)

	first := newEvent("org-1", base, models.EventStatusPublished)
	second := newEvent("org-2", base.Add(time.Hour), models.EventStatusDraft)
	third := newEvent("org-1", base.Add(2*time.Hour), models.EventStatusPublished)
	cancelled := newEvent("org-1", base.Add(-time.Hour), models.EventStatusCancelled)
	pending := newEvent("org-1", base.Add(-2*time.Hour), models.EventStatusPublished)
	pending.CancellationPending = true

	for _, ev := range []models.Event{third, cancelled, first, pending, second} {
		require.NoError(t, eventDB.CreateEvent(ctx, ev))
	}

	page, total, err := eventDB.ListActiveEvents(ctx, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, page, 2)
	assert.Equal(t, first.ID, page[0].ID)
	assert.Equal(t, second.ID, page[1].ID)

	page, _, err = eventDB.ListActiveEvents(ctx, 2, 2)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, third.ID, page[0].ID)

	mine, total, err := eventDB.ListActiveEventsByOrganizer(ctx, "org-1", 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, []string{first.ID, third.ID}, []string{mine[0].ID, mine[1].ID})
}

func TestListPendingCancellations(t *testing.T) {
	eventDB := setupTestDB(t)
	ctx := context.Background()

	clean := newEvent("org-1", time.Now().UTC(), models.EventStatusPublished)
	pending := newEvent("org-1", time.Now().UTC(), models.EventStatusPublished)
	pending.CancellationPending = true
	require.NoError(t, eventDB.CreateEvent(ctx, clean))
	require.NoError(t, eventDB.CreateEvent(ctx, pending))

	got, err := eventDB.ListPendingCancellations(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, pending.ID, got[0].ID)
}
