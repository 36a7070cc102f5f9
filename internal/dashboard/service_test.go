package dashboard_test

import (
	"context"
	"errors"
	"testing"

	"ms-registration/internal/apperr"
	"ms-registration/internal/dashboard"
	"ms-registration/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockRegistrations struct {
	mock.Mock
}

func (m *MockRegistrations) GetRegistrationsByUser(ctx context.Context, userID string) ([]models.Registration, error) {
	args := m.Called(userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Registration), args.Error(1)
}

func (m *MockRegistrations) GetRegistrationsByEvent(ctx context.Context, eventID string) ([]models.Registration, error) {
	args := m.Called(eventID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Registration), args.Error(1)
}

type MockEvents struct {
	mock.Mock
}

func (m *MockEvents) GetEventByID(ctx context.Context, id string) (*models.Event, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Event), args.Error(1)
}

type MockCapacity struct {
	mock.Mock
}

func (m *MockCapacity) ConfirmedCount(ctx context.Context, eventID string) (int, error) {
	args := m.Called(eventID)
	return args.Int(0), args.Error(1)
}

func setup() (*dashboard.Service, *MockRegistrations, *MockEvents, *MockCapacity) {
	regs := new(MockRegistrations)
	events := new(MockEvents)
	capacity := new(MockCapacity)
	return dashboard.NewService(regs, events, capacity), regs, events, capacity
}

func userRegistrations() []models.Registration {
	return []models.Registration{
		{ID: "r1", EventID: "live", UserID: "u1", Status: models.RegistrationConfirmed},
		{ID: "r2", EventID: "live-2", UserID: "u1", Status: models.RegistrationWaitlisted},
		{ID: "r3", EventID: "live-3", UserID: "u1", Status: models.RegistrationCancelled},
		{ID: "r4", EventID: "gone", UserID: "u1", Status: models.RegistrationConfirmed},
		{ID: "r5", EventID: "vanished", UserID: "u1", Status: models.RegistrationConfirmed},
	}
}

func stubEvents(events *MockEvents) {
	events.On("GetEventByID", "live").Return(&models.Event{ID: "live", Status: models.EventStatusPublished, Capacity: 10}, nil)
	events.On("GetEventByID", "live-2").Return(&models.Event{ID: "live-2", Status: models.EventStatusPublished, Capacity: 1}, nil)
	events.On("GetEventByID", "gone").Return(&models.Event{ID: "gone", Status: models.EventStatusCancelled}, nil)
	events.On("GetEventByID", "vanished").Return(nil, apperr.NotFound("event vanished not found"))
}

func TestActiveRegistrationsWithEvent(t *testing.T) {
	svc, regs, events, capacity := setup()
	regs.On("GetRegistrationsByUser", "u1").Return(userRegistrations(), nil)
	stubEvents(events)
	capacity.On("ConfirmedCount", "live").Return(4, nil)
	capacity.On("ConfirmedCount", "live-2").Return(1, nil)

	got, err := svc.ActiveRegistrationsWithEvent(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "r1", got[0].Registration.ID)
	assert.Equal(t, "live", got[0].Event.ID)
	assert.Equal(t, 4, got[0].Event.RegisteredCount)
	assert.Equal(t, "r2", got[1].Registration.ID)

	events.AssertNotCalled(t, "GetEventByID", "live-3")
}

func TestConfirmedRegistrationsWithEvent(t *testing.T) {
	svc, regs, events, capacity := setup()
	regs.On("GetRegistrationsByUser", "u1").Return(userRegistrations(), nil)
	stubEvents(events)
	capacity.On("ConfirmedCount", "live").Return(4, nil)

	got, err := svc.ConfirmedRegistrationsWithEvent(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "r1", got[0].Registration.ID)
}

func TestRegisteredEvents(t *testing.T) {
	svc, regs, events, capacity := setup()
	regs.On("GetRegistrationsByUser", "u1").Return(userRegistrations(), nil)
	stubEvents(events)
	capacity.On("ConfirmedCount", "live").Return(4, nil)
	capacity.On("ConfirmedCount", "live-2").Return(1, nil)

	got, err := svc.RegisteredEvents(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "live", got[0].ID)
	assert.Equal(t, "live-2", got[1].ID)
}

func TestProjection_EmptyAndFailure(t *testing.T) {
	svc, regs, _, _ := setup()
	regs.On("GetRegistrationsByUser", "none").Return([]models.Registration{}, nil)
	regs.On("GetRegistrationsByUser", "broken").Return(nil, errors.New("db down"))

	got, err := svc.ActiveRegistrationsWithEvent(context.Background(), "none")
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)

	_, err = svc.ActiveRegistrationsWithEvent(context.Background(), "broken")
	assert.True(t, apperr.Is(err, apperr.CodeStorageFailure))
}

func TestEventStats(t *testing.T) {
	svc, regs, events, _ := setup()
	events.On("GetEventByID", "evt").Return(&models.Event{ID: "evt", Capacity: 3, Status: models.EventStatusPublished}, nil)
	events.On("GetEventByID", "missing").Return(nil, apperr.NotFound("event missing not found"))
	regs.On("GetRegistrationsByEvent", "evt").Return([]models.Registration{
		{Status: models.RegistrationConfirmed, Attended: true},
		{Status: models.RegistrationConfirmed},
		{Status: models.RegistrationWaitlisted},
		{Status: models.RegistrationCancelled},
		{Status: models.RegistrationCancelled},
	}, nil)

	stats, err := svc.EventStats(context.Background(), "evt")
	require.NoError(t, err)
	assert.Equal(t, models.EventRegistrationStats{
		EventID: "evt", Capacity: 3, Confirmed: 2, Waitlisted: 1, Cancelled: 2, Attended: 1, Remaining: 1,
	}, *stats)

	_, err = svc.EventStats(context.Background(), "missing")
	assert.True(t, apperr.Is(err, apperr.CodeNotFound))
}
