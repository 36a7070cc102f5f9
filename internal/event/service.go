package event

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ms-registration/internal/apperr"
	"ms-registration/internal/kafka"
	"ms-registration/internal/lock"
	"ms-registration/internal/logger"
	"ms-registration/internal/models"

	"github.com/google/uuid"
)

type DBLayer interface {
	CreateEvent(ctx context.Context, ev models.Event) error
	GetEventByID(ctx context.Context, id string) (*models.Event, error)
	UpdateEvent(ctx context.Context, ev models.Event) error
	ListActiveEvents(ctx context.Context, offset, limit int) ([]models.Event, int, error)
	ListActiveEventsByOrganizer(ctx context.Context, organizerID string, offset, limit int) ([]models.Event, int, error)
	ListPendingCancellations(ctx context.Context) ([]models.Event, error)
}

// RegistrationCanceller cancels every live registration of an event.
type RegistrationCanceller interface {
	CancelAllForEvent(ctx context.Context, eventID string) (int, error)
}

type CapacityReader interface {
	ConfirmedCount(ctx context.Context, eventID string) (int, error)
}

type KafkaPublisher interface {
	PublishEvent(ctx context.Context, topic string, ev models.Event) error
}

type EventService struct {
	DB            DBLayer
	Registrations RegistrationCanceller
	Capacity      CapacityReader
	Locks         lock.Locker
	Kafka         KafkaPublisher
	Logger        *logger.Logger
	Now           func() time.Time
}

func NewEventService(db DBLayer, regs RegistrationCanceller, capacity CapacityReader, locks lock.Locker, log *logger.Logger) *EventService {
	return &EventService{
		DB:            db,
		Registrations: regs,
		Capacity:      capacity,
		Locks:         locks,
		Logger:        log,
		Now:           time.Now,
	}
}

func (s *EventService) now() time.Time {
	return s.Now().UTC()
}

func (s *EventService) withEventLock(ctx context.Context, eventID string, fn func() error) error {
	release, err := s.Locks.Acquire(ctx, lock.AdmissionKey(eventID))
	if err != nil {
		return apperr.Storage(err, "acquire admission lock for event %s", eventID)
	}
	defer func() {
		if err := release(); err != nil {
			s.Logger.Warn("EVENT", fmt.Sprintf("Failed to release admission lock for event %s: %v", eventID, err))
		}
	}()
	return fn()
}

func (s *EventService) load(ctx context.Context, id string) (*models.Event, error) {
	ev, err := s.DB.GetEventByID(ctx, id)
	if err != nil {
		return nil, apperr.Storage(err, "load event %s", id)
	}
	return ev, nil
}

func (s *EventService) save(ctx context.Context, ev *models.Event) error {
	ev.UpdatedAt = s.now()
	if err := s.DB.UpdateEvent(ctx, *ev); err != nil {
		return apperr.Storage(err, "save event %s", ev.ID)
	}
	return nil
}

func (s *EventService) notify(ctx context.Context, topic string, ev models.Event) {
	if s.Kafka == nil {
		return
	}
	if err := s.Kafka.PublishEvent(ctx, topic, ev); err != nil {
		s.Logger.Error("KAFKA", fmt.Sprintf("Publish %s for event %s failed: %v", topic, ev.ID, err))
	}
}

func (s *EventService) view(ctx context.Context, ev models.Event) (*models.EventView, error) {
	n, err := s.Capacity.ConfirmedCount(ctx, ev.ID)
	if err != nil {
		return nil, err
	}
	return &models.EventView{Event: ev, RegisteredCount: n}, nil
}

func (s *EventService) views(ctx context.Context, events []models.Event, req models.PageRequest, total int) (models.Page[models.EventView], error) {
	items := make([]models.EventView, 0, len(events))
	for _, ev := range events {
		v, err := s.view(ctx, ev)
		if err != nil {
			return models.Page[models.EventView]{}, err
		}
		items = append(items, *v)
	}
	return models.NewPage(items, req, total), nil
}

// CreateEvent stores a new event owned by organizerID. New events are
// published immediately.
func (s *EventService) CreateEvent(ctx context.Context, organizerID string, fields models.EventFields) (*models.EventView, error) {
	now := s.now()
	if err := validateFields(fields, now, true); err != nil {
		return nil, err
	}

	ev := models.Event{
		ID:          uuid.New().String(),
		OrganizerID: organizerID,
		Status:      models.EventStatusPublished,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	fields.Apply(&ev)
	if ev.Tags == nil {
		ev.Tags = []string{}
	}

	if err := s.DB.CreateEvent(ctx, ev); err != nil {
		return nil, apperr.Storage(err, "create event")
	}

	s.Logger.LogEvent("CREATE", ev.ID, fmt.Sprintf("organizer %s, capacity %d", organizerID, ev.Capacity))
	s.notify(ctx, kafka.TopicEventCreated, ev)
	return &models.EventView{Event: ev}, nil
}

// UpdateEvent overwrites the descriptive fields of a live event.
func (s *EventService) UpdateEvent(ctx context.Context, id string, fields models.EventFields) (*models.EventView, error) {
	if err := validateFields(fields, s.now(), false); err != nil {
		return nil, err
	}

	var ev *models.Event
	err := s.withEventLock(ctx, id, func() error {
		current, err := s.load(ctx, id)
		if err != nil {
			return err
		}
		if current.Retired() {
			return apperr.Gone("event %s has been cancelled", id)
		}
		fields.Apply(current)
		if current.Tags == nil {
			current.Tags = []string{}
		}
		ev = current
		return s.save(ctx, ev)
	})
	if err != nil {
		return nil, err
	}

	s.Logger.LogEvent("UPDATE", ev.ID, "details updated")
	s.notify(ctx, kafka.TopicEventUpdated, *ev)
	return s.view(ctx, *ev)
}

// UpdateEventStatus moves the event to the named status. Moving to
// CANCELLED runs the full cancellation cascade.
func (s *EventService) UpdateEventStatus(ctx context.Context, id, statusName string) (*models.EventView, error) {
	status, ok := models.ParseEventStatus(statusName)
	if !ok {
		return nil, apperr.InvalidArgument("unknown event status %q", statusName)
	}

	if status == models.EventStatusCancelled {
		if err := s.CancelEvent(ctx, id); err != nil {
			return nil, err
		}
		ev, err := s.load(ctx, id)
		if err != nil {
			return nil, err
		}
		return s.view(ctx, *ev)
	}

	var ev *models.Event
	changed := false
	err := s.withEventLock(ctx, id, func() error {
		current, err := s.load(ctx, id)
		if err != nil {
			return err
		}
		if current.CancellationPending {
			return apperr.Gone("event %s is being cancelled", id)
		}
		if err := checkTransition(current.Status, status); err != nil {
			return err
		}
		ev = current
		if current.Status == status {
			return nil
		}
		ev.Status = status
		changed = true
		return s.save(ctx, ev)
	})
	if err != nil {
		return nil, err
	}

	if changed {
		s.Logger.LogEvent("STATUS", ev.ID, fmt.Sprintf("now %s", ev.Status))
		s.notify(ctx, kafka.TopicEventUpdated, *ev)
	}
	return s.view(ctx, *ev)
}

// CancelEvent soft-deletes the event and cancels all of its registrations.
// It is safe to call again on an event that is already cancelled.
func (s *EventService) CancelEvent(ctx context.Context, id string) error {
	return s.withEventLock(ctx, id, func() error {
		ev, err := s.load(ctx, id)
		if err != nil {
			return err
		}
		if ev.Status == models.EventStatusCancelled && !ev.CancellationPending {
			// Sweep for stragglers without touching the event row.
			_, err := s.Registrations.CancelAllForEvent(ctx, id)
			return err
		}
		return s.cascade(ctx, ev)
	})
}

// cascade runs with the event lock held. The pending marker is persisted
// first so an interrupted run is found again by RepairCancellations.
func (s *EventService) cascade(ctx context.Context, ev *models.Event) error {
	if !ev.CancellationPending {
		ev.CancellationPending = true
		if err := s.save(ctx, ev); err != nil {
			return err
		}
	}

	n, err := s.Registrations.CancelAllForEvent(ctx, ev.ID)
	if err != nil {
		s.Logger.Error("EVENT", fmt.Sprintf("Cascade for event %s stopped after %d registrations: %v", ev.ID, n, err))
		return err
	}

	ev.Status = models.EventStatusCancelled
	ev.CancellationPending = false
	if err := s.save(ctx, ev); err != nil {
		return err
	}

	s.Logger.LogEvent("CANCEL", ev.ID, fmt.Sprintf("cancelled with %d registrations", n))
	s.notify(ctx, kafka.TopicEventCancelled, *ev)
	return nil
}

// RepairCancellations finishes every cascade that was interrupted and
// returns how many were completed.
func (s *EventService) RepairCancellations(ctx context.Context) (int, error) {
	pending, err := s.DB.ListPendingCancellations(ctx)
	if err != nil {
		return 0, apperr.Storage(err, "list pending cancellations")
	}

	repaired := 0
	var errs []error
	for _, p := range pending {
		err := s.withEventLock(ctx, p.ID, func() error {
			ev, err := s.load(ctx, p.ID)
			if err != nil {
				return err
			}
			if !ev.CancellationPending {
				return nil
			}
			if err := s.cascade(ctx, ev); err != nil {
				return err
			}
			repaired++
			return nil
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("event %s: %w", p.ID, err))
		}
	}

	if repaired > 0 {
		s.Logger.Info("EVENT", fmt.Sprintf("Repaired %d interrupted cancellations", repaired))
	}
	return repaired, errors.Join(errs...)
}

// GetEventByID returns a live event; cancelled events are Gone.
func (s *EventService) GetEventByID(ctx context.Context, id string) (*models.EventView, error) {
	ev, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if ev.Retired() {
		return nil, apperr.Gone("event %s has been cancelled", id)
	}
	return s.view(ctx, *ev)
}

// OrganizerOf resolves the owner of an event, cancelled or not.
func (s *EventService) OrganizerOf(ctx context.Context, id string) (string, error) {
	ev, err := s.load(ctx, id)
	if err != nil {
		return "", err
	}
	return ev.OrganizerID, nil
}

func (s *EventService) ListEvents(ctx context.Context, req models.PageRequest) (models.Page[models.EventView], error) {
	req = req.Normalize()
	events, total, err := s.DB.ListActiveEvents(ctx, req.Offset(), req.Size)
	if err != nil {
		return models.Page[models.EventView]{}, apperr.Storage(err, "list events")
	}
	return s.views(ctx, events, req, total)
}

func (s *EventService) ListByOrganizer(ctx context.Context, organizerID string, req models.PageRequest) (models.Page[models.EventView], error) {
	req = req.Normalize()
	events, total, err := s.DB.ListActiveEventsByOrganizer(ctx, organizerID, req.Offset(), req.Size)
	if err != nil {
		return models.Page[models.EventView]{}, apperr.Storage(err, "list events for organizer %s", organizerID)
	}
	return s.views(ctx, events, req, total)
}

func (s *EventService) ListCategories() []models.EventCategory {
	return models.Categories()
}
