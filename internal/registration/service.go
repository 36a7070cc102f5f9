package registration

import (
	"context"
	"fmt"
	"sort"
	"time"

	"ms-registration/internal/apperr"
	"ms-registration/internal/kafka"
	"ms-registration/internal/lock"
	"ms-registration/internal/logger"
	"ms-registration/internal/models"
	"ms-registration/internal/registration/checkin"

	"github.com/google/uuid"
)

type DBLayer interface {
	Counter
	CreateRegistration(ctx context.Context, reg models.Registration) error
	GetRegistrationByID(ctx context.Context, id string) (*models.Registration, error)
	UpdateRegistration(ctx context.Context, reg models.Registration, expected models.RegistrationStatus) error
	SetAttended(ctx context.Context, id string, attended bool, at time.Time) error
	GetActiveRegistration(ctx context.Context, eventID, userID string) (*models.Registration, error)
	GetRegistrationsByUser(ctx context.Context, userID string) ([]models.Registration, error)
	GetRegistrationsByEvent(ctx context.Context, eventID string) ([]models.Registration, error)
}

// EventReader resolves the raw event row, cancelled or not.
type EventReader interface {
	GetEventByID(ctx context.Context, id string) (*models.Event, error)
}

type KafkaPublisher interface {
	PublishRegistration(ctx context.Context, topic string, reg models.Registration) error
}

// Streamer pushes registration changes to live subscribers of an event.
type Streamer interface {
	EmitRegistration(kind string, reg models.Registration)
}

type CheckinCodec interface {
	GenerateEncryptedQR(tok checkin.Token) ([]byte, error)
	Decode(code string) (checkin.Token, error)
}

type RegistrationService struct {
	DB      DBLayer
	Events  EventReader
	Ledger  *Ledger
	Locks   lock.Locker
	Kafka   KafkaPublisher
	Stream  Streamer
	Checkin CheckinCodec
	Logger  *logger.Logger
	Now     func() time.Time
}

func NewRegistrationService(db DBLayer, events EventReader, locks lock.Locker, log *logger.Logger) *RegistrationService {
	return &RegistrationService{
		DB:     db,
		Events: events,
		Ledger: NewLedger(db),
		Locks:  locks,
		Logger: log,
		Now:    time.Now,
	}
}

func (s *RegistrationService) now() time.Time {
	return s.Now().UTC()
}

// withEventLock runs fn while holding the admission lock of eventID.
func (s *RegistrationService) withEventLock(ctx context.Context, eventID string, fn func() error) error {
	release, err := s.Locks.Acquire(ctx, lock.AdmissionKey(eventID))
	if err != nil {
		return apperr.Storage(err, "acquire admission lock for event %s", eventID)
	}
	defer func() {
		if err := release(); err != nil {
			s.Logger.Warn("REGISTRATION", fmt.Sprintf("Failed to release admission lock for event %s: %v", eventID, err))
		}
	}()
	return fn()
}

// loadOpenEvent returns the event unless it is absent or retired.
func (s *RegistrationService) loadOpenEvent(ctx context.Context, eventID string) (*models.Event, error) {
	ev, err := s.Events.GetEventByID(ctx, eventID)
	if err != nil {
		return nil, apperr.Storage(err, "load event %s", eventID)
	}
	if ev.Retired() {
		return nil, apperr.Gone("event %s has been cancelled", eventID)
	}
	return ev, nil
}

func (s *RegistrationService) load(ctx context.Context, id string) (*models.Registration, error) {
	reg, err := s.DB.GetRegistrationByID(ctx, id)
	if err != nil {
		return nil, apperr.Storage(err, "load registration %s", id)
	}
	return reg, nil
}

// save persists reg provided the stored status is still expected. Otherwise
// it returns a CONFLICT and writes nothing.
func (s *RegistrationService) save(ctx context.Context, reg *models.Registration, expected models.RegistrationStatus) error {
	reg.UpdatedAt = s.now()
	if err := s.DB.UpdateRegistration(ctx, *reg, expected); err != nil {
		return apperr.Storage(err, "save registration %s", reg.ID)
	}
	return nil
}

const cancelAttempts = 3

// forceCancel moves reg to CANCELLED from whatever live status it holds,
// re-reading when another writer changed it first. It reports false when reg
// was already cancelled.
func (s *RegistrationService) forceCancel(ctx context.Context, reg *models.Registration) (bool, error) {
	var err error
	for attempt := 0; attempt < cancelAttempts; attempt++ {
		if reg.Status == models.RegistrationCancelled {
			return false, nil
		}
		prev := reg.Status
		reg.Status = models.RegistrationCancelled
		err = s.save(ctx, reg, prev)
		if err == nil {
			return true, nil
		}
		if !apperr.Is(err, apperr.CodeConflict) {
			return false, err
		}
		fresh, loadErr := s.load(ctx, reg.ID)
		if loadErr != nil {
			return false, loadErr
		}
		*reg = *fresh
	}
	return false, err
}

func (s *RegistrationService) notify(ctx context.Context, topic string, reg models.Registration) {
	if s.Stream != nil {
		s.Stream.EmitRegistration(topic, reg)
	}
	if s.Kafka == nil {
		return
	}
	if err := s.Kafka.PublishRegistration(ctx, topic, reg); err != nil {
		s.Logger.Error("KAFKA", fmt.Sprintf("Publish %s for registration %s failed: %v", topic, reg.ID, err))
	}
}

// Register admits userID to eventID as CONFIRMED while capacity remains and
// WAITLISTED otherwise.
func (s *RegistrationService) Register(ctx context.Context, userID, eventID, notes string) (*models.Registration, error) {
	var reg models.Registration

	err := s.withEventLock(ctx, eventID, func() error {
		ev, err := s.loadOpenEvent(ctx, eventID)
		if err != nil {
			return err
		}

		existing, err := s.DB.GetActiveRegistration(ctx, eventID, userID)
		if err != nil {
			return apperr.Storage(err, "check existing registration")
		}
		if existing != nil {
			return apperr.Conflict("user %s is already registered for event %s", userID, eventID)
		}

		status, err := s.Ledger.Decide(ctx, eventID, ev.Capacity)
		if err != nil {
			return err
		}

		now := s.now()
		reg = models.Registration{
			ID:               uuid.New().String(),
			EventID:          eventID,
			UserID:           userID,
			Status:           status,
			RegistrationDate: now,
			Notes:            notes,
			Attended:         false,
			UpdatedAt:        now,
		}
		if err := s.DB.CreateRegistration(ctx, reg); err != nil {
			return apperr.Storage(err, "create registration")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Logger.LogRegistration("REGISTER", reg.ID, fmt.Sprintf("user %s -> event %s as %s", userID, eventID, reg.Status))
	s.notify(ctx, kafka.TopicRegistrationCreated, reg)
	return &reg, nil
}

// UpdateRegistration applies an organizer edit of status and notes.
func (s *RegistrationService) UpdateRegistration(ctx context.Context, id string, status models.RegistrationStatus, notes string) (*models.Registration, error) {
	current, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	var reg *models.Registration
	err = s.withEventLock(ctx, current.EventID, func() error {
		// Re-read under the lock; the row may have moved since.
		fresh, err := s.load(ctx, id)
		if err != nil {
			return err
		}
		reg = fresh
		if err := checkTransition(reg.Status, status); err != nil {
			return err
		}

		ev, err := s.loadOpenEvent(ctx, reg.EventID)
		if err != nil {
			return err
		}
		if reg.Status != models.RegistrationConfirmed && status == models.RegistrationConfirmed {
			ok, err := s.Ledger.HasCapacity(ctx, reg.EventID, ev.Capacity)
			if err != nil {
				return err
			}
			if !ok {
				return apperr.Conflict("event %s is at capacity", reg.EventID)
			}
		}

		prev := reg.Status
		reg.Status = status
		reg.Notes = notes
		return s.save(ctx, reg, prev)
	})
	if err != nil {
		return nil, err
	}

	s.Logger.LogRegistration("UPDATE", reg.ID, fmt.Sprintf("status %s", reg.Status))
	topic := kafka.TopicRegistrationUpdated
	if reg.Status == models.RegistrationCancelled {
		topic = kafka.TopicRegistrationCancelled
	}
	s.notify(ctx, topic, *reg)
	return reg, nil
}

// CancelRegistration cancels the actor's own registration. Cancelling twice
// succeeds without writing again. Capacity freed here is not handed to the
// waitlist.
func (s *RegistrationService) CancelRegistration(ctx context.Context, id, actorID string) error {
	reg, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if reg.UserID != actorID {
		s.Logger.LogSecurity("CANCEL_DENIED", fmt.Sprintf("user %s tried to cancel registration %s", actorID, id))
		return apperr.Forbidden("registration %s belongs to another user", id)
	}
	if reg.Status == models.RegistrationCancelled {
		return nil
	}

	changed := false
	err = s.withEventLock(ctx, reg.EventID, func() error {
		fresh, err := s.load(ctx, id)
		if err != nil {
			return err
		}
		reg = fresh
		changed, err = s.forceCancel(ctx, reg)
		return err
	})
	if err != nil || !changed {
		return err
	}

	s.Logger.LogRegistration("CANCEL", reg.ID, fmt.Sprintf("cancelled by %s", actorID))
	s.notify(ctx, kafka.TopicRegistrationCancelled, *reg)
	return nil
}

// GetRegistration returns a registration by id in any status.
func (s *RegistrationService) GetRegistration(ctx context.Context, id string) (*models.Registration, error) {
	return s.load(ctx, id)
}

// MarkAttendance sets the attended flag. The status of the registration is
// never written here.
func (s *RegistrationService) MarkAttendance(ctx context.Context, id string, attended bool) (*models.Registration, error) {
	return s.markAttendance(ctx, id, attended, nil)
}

// markAttendance re-reads the registration under the event lock and runs
// check on that copy before writing.
func (s *RegistrationService) markAttendance(ctx context.Context, id string, attended bool, check func(*models.Registration) error) (*models.Registration, error) {
	current, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	var reg *models.Registration
	err = s.withEventLock(ctx, current.EventID, func() error {
		fresh, err := s.load(ctx, id)
		if err != nil {
			return err
		}
		if check != nil {
			if err := check(fresh); err != nil {
				return err
			}
		}
		fresh.Attended = attended
		fresh.UpdatedAt = s.now()
		if err := s.DB.SetAttended(ctx, id, attended, fresh.UpdatedAt); err != nil {
			return apperr.Storage(err, "record attendance for %s", id)
		}
		reg = fresh
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Logger.LogRegistration("ATTENDANCE", reg.ID, fmt.Sprintf("attended=%t", attended))
	s.notify(ctx, kafka.TopicRegistrationAttendance, *reg)
	return reg, nil
}

func (s *RegistrationService) ListByUser(ctx context.Context, userID string) ([]models.Registration, error) {
	regs, err := s.DB.GetRegistrationsByUser(ctx, userID)
	if err != nil {
		return nil, apperr.Storage(err, "list registrations for user %s", userID)
	}
	if regs == nil {
		regs = []models.Registration{}
	}
	return regs, nil
}

func (s *RegistrationService) ListByEvent(ctx context.Context, eventID string) ([]models.Registration, error) {
	regs, err := s.DB.GetRegistrationsByEvent(ctx, eventID)
	if err != nil {
		return nil, apperr.Storage(err, "list registrations for event %s", eventID)
	}
	if regs == nil {
		regs = []models.Registration{}
	}
	return regs, nil
}

// CancelAllForEvent cancels every live registration of the event one record
// at a time. Re-running it after a partial failure finishes the job. The
// caller holds the event's admission lock.
func (s *RegistrationService) CancelAllForEvent(ctx context.Context, eventID string) (int, error) {
	regs, err := s.ListByEvent(ctx, eventID)
	if err != nil {
		return 0, err
	}

	cancelled := 0
	for i := range regs {
		reg := regs[i]
		changed, err := s.forceCancel(ctx, &reg)
		if err != nil {
			return cancelled, err
		}
		if !changed {
			continue
		}
		cancelled++
		s.notify(ctx, kafka.TopicRegistrationCancelled, reg)
	}

	s.Logger.LogRegistration("CASCADE", eventID, fmt.Sprintf("cancelled %d registrations", cancelled))
	return cancelled, nil
}

// PromoteWaitlist moves waitlisted registrations into free capacity, oldest
// first, and returns the promoted ones.
func (s *RegistrationService) PromoteWaitlist(ctx context.Context, eventID string) ([]models.Registration, error) {
	promoted := []models.Registration{}

	err := s.withEventLock(ctx, eventID, func() error {
		ev, err := s.loadOpenEvent(ctx, eventID)
		if err != nil {
			return err
		}

		regs, err := s.ListByEvent(ctx, eventID)
		if err != nil {
			return err
		}

		confirmed := 0
		var waiting []models.Registration
		for _, r := range regs {
			switch r.Status {
			case models.RegistrationConfirmed:
				confirmed++
			case models.RegistrationWaitlisted:
				waiting = append(waiting, r)
			}
		}
		sort.SliceStable(waiting, func(i, j int) bool {
			return waiting[i].RegistrationDate.Before(waiting[j].RegistrationDate)
		})

		for i := 0; i < len(waiting) && confirmed < ev.Capacity; i++ {
			reg := waiting[i]
			reg.Status = models.RegistrationConfirmed
			if err := s.save(ctx, &reg, models.RegistrationWaitlisted); err != nil {
				if apperr.Is(err, apperr.CodeConflict) {
					s.Logger.Warn("REGISTRATION", fmt.Sprintf("Skipping promotion of %s: %v", reg.ID, err))
					continue
				}
				return err
			}
			confirmed++
			promoted = append(promoted, reg)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, reg := range promoted {
		s.Logger.LogRegistration("PROMOTE", reg.ID, fmt.Sprintf("promoted from waitlist of event %s", eventID))
		s.notify(ctx, kafka.TopicRegistrationUpdated, reg)
	}
	return promoted, nil
}

// CheckinQR renders the check-in code of the actor's confirmed registration.
func (s *RegistrationService) CheckinQR(ctx context.Context, id, actorID string) ([]byte, error) {
	reg, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if reg.UserID != actorID {
		return nil, apperr.Forbidden("registration %s belongs to another user", id)
	}
	if reg.Status != models.RegistrationConfirmed {
		return nil, apperr.Conflict("registration %s is %s, only confirmed registrations can check in", id, reg.Status)
	}

	png, err := s.Checkin.GenerateEncryptedQR(checkin.Token{
		RegistrationID: reg.ID,
		EventID:        reg.EventID,
		UserID:         reg.UserID,
		IssuedAt:       s.now(),
	})
	if err != nil {
		return nil, fmt.Errorf("generate check-in code: %w", err)
	}
	return png, nil
}

// CheckIn reads a scanned check-in code and marks the registration attended.
func (s *RegistrationService) CheckIn(ctx context.Context, code string) (*models.Registration, error) {
	return s.checkIn(ctx, "", code)
}

// CheckInForEvent is CheckIn for a scanner bound to one event; codes issued
// for any other event are refused before anything is written.
func (s *RegistrationService) CheckInForEvent(ctx context.Context, eventID, code string) (*models.Registration, error) {
	return s.checkIn(ctx, eventID, code)
}

func (s *RegistrationService) checkIn(ctx context.Context, eventID, code string) (*models.Registration, error) {
	tok, err := s.Checkin.Decode(code)
	if err != nil {
		return nil, apperr.InvalidArgument("check-in code is not valid")
	}
	if eventID != "" && tok.EventID != eventID {
		return nil, apperr.Forbidden("check-in code belongs to another event")
	}

	return s.markAttendance(ctx, tok.RegistrationID, true, func(reg *models.Registration) error {
		if reg.EventID != tok.EventID || reg.UserID != tok.UserID {
			return apperr.InvalidArgument("check-in code does not match registration %s", reg.ID)
		}
		if reg.Status != models.RegistrationConfirmed {
			return apperr.Conflict("registration %s is %s", reg.ID, reg.Status)
		}
		return nil
	})
}
