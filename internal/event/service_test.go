package event_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"ms-registration/internal/apperr"
	"ms-registration/internal/database"
	"ms-registration/internal/event"
	eventdb "ms-registration/internal/event/db"
	"ms-registration/internal/kafka"
	"ms-registration/internal/lock"
	"ms-registration/internal/logger"
	"ms-registration/internal/models"
	"ms-registration/internal/registration"
	regdb "ms-registration/internal/registration/db"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
}

func (p *recordingPublisher) PublishEvent(_ context.Context, topic string, _ models.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	return nil
}

// flakyCanceller fails the first cascade attempt after cancelling one
// registration, the way a crash part-way through would.
type flakyCanceller struct {
	regs  *regdb.DB
	inner *registration.RegistrationService
	fails int
}

func (f *flakyCanceller) CancelAllForEvent(ctx context.Context, eventID string) (int, error) {
	if f.fails > 0 {
		f.fails--
		regs, err := f.regs.GetRegistrationsByEvent(ctx, eventID)
		if err != nil {
			return 0, err
		}
		for _, r := range regs {
			if r.Status != models.RegistrationCancelled {
				prev := r.Status
				r.Status = models.RegistrationCancelled
				if err := f.regs.UpdateRegistration(ctx, r, prev); err != nil {
					return 0, err
				}
				break
			}
		}
		return 1, apperr.Storage(errors.New("connection lost"), "cancel registrations")
	}
	return f.inner.CancelAllForEvent(ctx, eventID)
}

type harness struct {
	events *event.EventService
	regs   *registration.RegistrationService
	regDB  *regdb.DB
	evDB   *eventdb.DB
	kafka  *recordingPublisher
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	bunDB, err := database.OpenSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, database.CreateSchema(context.Background(), bunDB))
	t.Cleanup(func() { bunDB.Close() })

	evDB := &eventdb.DB{Bun: bunDB}
	regDB := &regdb.DB{Bun: bunDB}
	locks := lock.NewLocal()
	log := logger.Nop()

	regs := registration.NewRegistrationService(regDB, evDB, locks, log)
	events := event.NewEventService(evDB, regs, regs.Ledger, locks, log)
	pub := &recordingPublisher{}
	events.Kafka = pub

	return &harness{events: events, regs: regs, regDB: regDB, evDB: evDB, kafka: pub}
}

func validFields(capacity int) models.EventFields {
	start := time.Now().UTC().Add(7 * 24 * time.Hour)
	return models.EventFields{
		Title:                "GopherCon Colombo",
		Description:          "A day of Go talks",
		Category:             models.CategoryConference,
		StartDateTime:        start,
		EndDateTime:          start.Add(8 * time.Hour),
		Location:             models.Location{Type: models.LocationHybrid, City: "Colombo", VirtualLink: "https://example.com/stream"},
		Capacity:             capacity,
		RegistrationDeadline: start.Add(-24 * time.Hour),
		Tags:                 []string{"go"},
	}
}

func (h *harness) create(t *testing.T, organizerID string, capacity int) *models.EventView {
	t.Helper()
	ev, err := h.events.CreateEvent(context.Background(), organizerID, validFields(capacity))
	require.NoError(t, err)
	return ev
}

func TestCreateEvent(t *testing.T) {
	h := newHarness(t)

	ev := h.create(t, "org-1", 10)
	assert.Equal(t, models.EventStatusPublished, ev.Status)
	assert.Equal(t, "org-1", ev.OrganizerID)
	assert.Zero(t, ev.RegisteredCount)
	assert.False(t, ev.CreatedAt.IsZero())
	assert.Equal(t, ev.CreatedAt, ev.UpdatedAt)
	assert.Equal(t, []string{kafka.TopicEventCreated}, h.kafka.topics)
}

func TestCreateEvent_Validation(t *testing.T) {
	h := newHarness(t)
	past := time.Now().UTC().Add(-time.Hour)

	tests := []struct {
		name   string
		mutate func(f *models.EventFields)
	}{
		{"missing title", func(f *models.EventFields) { f.Title = "  " }},
		{"missing description", func(f *models.EventFields) { f.Description = "" }},
		{"zero capacity", func(f *models.EventFields) { f.Capacity = 0 }},
		{"unknown category", func(f *models.EventFields) { f.Category = "PARTY" }},
		{"end before start", func(f *models.EventFields) { f.EndDateTime = f.StartDateTime.Add(-time.Minute) }},
		{"start in past", func(f *models.EventFields) {
			f.StartDateTime = past
			f.EndDateTime = past.Add(time.Hour)
			f.RegistrationDeadline = past.Add(-time.Hour)
		}},
		{"deadline after start", func(f *models.EventFields) { f.RegistrationDeadline = f.StartDateTime.Add(time.Hour) }},
		{"unknown location", func(f *models.EventFields) { f.Location.Type = "MOON" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := validFields(5)
			tt.mutate(&f)
			_, err := h.events.CreateEvent(context.Background(), "org-1", f)
			assert.True(t, apperr.Is(err, apperr.CodeInvalidArgument), "got %v", err)
		})
	}
}

func TestGetEventByID_CarriesRegisteredCount(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ev := h.create(t, "org-1", 1)

	_, err := h.regs.Register(ctx, "u1", ev.ID, "")
	require.NoError(t, err)
	_, err = h.regs.Register(ctx, "u2", ev.ID, "")
	require.NoError(t, err)

	got, err := h.events.GetEventByID(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.RegisteredCount, "waitlisted registrations are not counted")

	_, err = h.events.GetEventByID(ctx, "missing")
	assert.True(t, apperr.Is(err, apperr.CodeNotFound))
}

func TestUpdateEvent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ev := h.create(t, "org-1", 10)

	f := validFields(20)
	f.Title = "GopherCon Colombo 2026"
	f.Location = models.Location{Type: models.LocationOnline, VirtualLink: "https://example.com/new"}

	updated, err := h.events.UpdateEvent(ctx, ev.ID, f)
	require.NoError(t, err)
	assert.Equal(t, "GopherCon Colombo 2026", updated.Title)
	assert.Equal(t, 20, updated.Capacity)
	assert.Equal(t, models.LocationOnline, updated.Location.Type)
	assert.Equal(t, ev.CreatedAt.Unix(), updated.CreatedAt.Unix())

	_, err = h.events.UpdateEvent(ctx, "missing", f)
	assert.True(t, apperr.Is(err, apperr.CodeNotFound))

	require.NoError(t, h.events.CancelEvent(ctx, ev.ID))
	_, err = h.events.UpdateEvent(ctx, ev.ID, f)
	assert.True(t, apperr.Is(err, apperr.CodeGone))
}

func TestUpdateEventStatus(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	ev := h.create(t, "org-1", 5)
	draft, err := h.evDB.GetEventByID(ctx, ev.ID)
	require.NoError(t, err)
	draft.Status = models.EventStatusDraft
	require.NoError(t, h.evDB.UpdateEvent(ctx, *draft))

	published, err := h.events.UpdateEventStatus(ctx, ev.ID, "published")
	require.NoError(t, err)
	assert.Equal(t, models.EventStatusPublished, published.Status)

	same, err := h.events.UpdateEventStatus(ctx, ev.ID, "PUBLISHED")
	require.NoError(t, err)
	assert.Equal(t, models.EventStatusPublished, same.Status)

	_, err = h.events.UpdateEventStatus(ctx, ev.ID, "DRAFT")
	assert.True(t, apperr.Is(err, apperr.CodeInvalidTransition))

	_, err = h.events.UpdateEventStatus(ctx, ev.ID, "ARCHIVED")
	assert.True(t, apperr.Is(err, apperr.CodeInvalidArgument))

	reg, err := h.regs.Register(ctx, "u1", ev.ID, "")
	require.NoError(t, err)

	cancelled, err := h.events.UpdateEventStatus(ctx, ev.ID, "CANCELLED")
	require.NoError(t, err)
	assert.Equal(t, models.EventStatusCancelled, cancelled.Status)

	storedReg, err := h.regDB.GetRegistrationByID(ctx, reg.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RegistrationCancelled, storedReg.Status, "status change to CANCELLED cascades")

	_, err = h.events.UpdateEventStatus(ctx, ev.ID, "PUBLISHED")
	assert.True(t, apperr.Is(err, apperr.CodeInvalidTransition), "no resurrection")
}

func TestCancelEvent_CascadesAndHides(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ev := h.create(t, "org-1", 2)

	for i := 0; i < 4; i++ {
		_, err := h.regs.Register(ctx, fmt.Sprintf("u%d", i), ev.ID, "")
		require.NoError(t, err)
	}

	require.NoError(t, h.events.CancelEvent(ctx, ev.ID))

	regs, err := h.regs.ListByEvent(ctx, ev.ID)
	require.NoError(t, err)
	require.Len(t, regs, 4)
	for _, r := range regs {
		assert.Equal(t, models.RegistrationCancelled, r.Status)
	}

	_, err = h.events.GetEventByID(ctx, ev.ID)
	assert.True(t, apperr.Is(err, apperr.CodeGone))

	stored, err := h.evDB.GetEventByID(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EventStatusCancelled, stored.Status, "soft delete keeps the row")
	assert.False(t, stored.CancellationPending)

	require.NoError(t, h.events.CancelEvent(ctx, ev.ID), "cancelling again is a no-op")

	_, err = h.regs.Register(ctx, "late", ev.ID, "")
	assert.True(t, apperr.Is(err, apperr.CodeGone))

	assert.True(t, apperr.Is(h.events.CancelEvent(ctx, "missing"), apperr.CodeNotFound))
	assert.Contains(t, h.kafka.topics, kafka.TopicEventCancelled)
}

func TestRepairCancellations_FinishesInterruptedCascade(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	flaky := &flakyCanceller{regs: h.regDB, inner: h.regs, fails: 1}
	h.events.Registrations = flaky

	ev := h.create(t, "org-1", 5)
	for i := 0; i < 3; i++ {
		_, err := h.regs.Register(ctx, fmt.Sprintf("u%d", i), ev.ID, "")
		require.NoError(t, err)
	}

	err := h.events.CancelEvent(ctx, ev.ID)
	assert.True(t, apperr.Is(err, apperr.CodeStorageFailure))

	stored, err := h.evDB.GetEventByID(ctx, ev.ID)
	require.NoError(t, err)
	assert.True(t, stored.CancellationPending, "marker survives the failure")
	assert.Equal(t, models.EventStatusPublished, stored.Status)

	_, err = h.events.GetEventByID(ctx, ev.ID)
	assert.True(t, apperr.Is(err, apperr.CodeGone), "half-cancelled events are already hidden")

	page, err := h.events.ListEvents(ctx, models.PageRequest{})
	require.NoError(t, err)
	assert.Empty(t, page.Items)

	_, err = h.regs.Register(ctx, "late", ev.ID, "")
	assert.True(t, apperr.Is(err, apperr.CodeGone))

	repaired, err := h.events.RepairCancellations(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, repaired)

	stored, err = h.evDB.GetEventByID(ctx, ev.ID)
	require.NoError(t, err)
	assert.False(t, stored.CancellationPending)
	assert.Equal(t, models.EventStatusCancelled, stored.Status)

	regs, err := h.regs.ListByEvent(ctx, ev.ID)
	require.NoError(t, err)
	for _, r := range regs {
		assert.Equal(t, models.RegistrationCancelled, r.Status)
	}

	repaired, err = h.events.RepairCancellations(ctx)
	require.NoError(t, err)
	assert.Zero(t, repaired)
}

func TestListings_ExcludeCancelledAndPaginate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 5; i++ {
		org := "org-1"
		if i%2 == 1 {
			org = "org-2"
		}
		ids = append(ids, h.create(t, org, 3).ID)
	}
	require.NoError(t, h.events.CancelEvent(ctx, ids[0]))

	page, err := h.events.ListEvents(ctx, models.PageRequest{Page: 0, Size: 3})
	require.NoError(t, err)
	assert.Equal(t, 4, page.TotalItems)
	assert.Equal(t, 2, page.TotalPages)
	assert.Len(t, page.Items, 3)

	second, err := h.events.ListEvents(ctx, models.PageRequest{Page: 1, Size: 3})
	require.NoError(t, err)
	assert.Len(t, second.Items, 1)

	for _, p := range [][]models.EventView{page.Items, second.Items} {
		for _, ev := range p {
			assert.NotEqual(t, ids[0], ev.ID)
			assert.NotEqual(t, models.EventStatusCancelled, ev.Status)
		}
	}

	mine, err := h.events.ListByOrganizer(ctx, "org-1", models.PageRequest{})
	require.NoError(t, err)
	assert.Equal(t, 2, mine.TotalItems, "org-1's cancelled event is excluded")
	assert.Equal(t, models.DefaultPageSize, mine.Size)

	empty, err := h.events.ListByOrganizer(ctx, "nobody", models.PageRequest{})
	require.NoError(t, err)
	assert.NotNil(t, empty.Items)
	assert.Zero(t, empty.TotalItems)
}

func TestListCategories(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, models.Categories(), h.events.ListCategories())
}

func TestOrganizerOf(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ev := h.create(t, "org-7", 2)

	owner, err := h.events.OrganizerOf(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, "org-7", owner)

	require.NoError(t, h.events.CancelEvent(ctx, ev.ID))
	owner, err = h.events.OrganizerOf(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, "org-7", owner, "cancelled events keep their owner")

	_, err = h.events.OrganizerOf(ctx, "missing")
	assert.True(t, apperr.Is(err, apperr.CodeNotFound))
}
