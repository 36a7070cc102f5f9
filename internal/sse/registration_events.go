package sse

import (
	"context"
	"sync"

	"ms-registration/internal/models"
)

// RegistrationUpdate is one change pushed to live subscribers.
type RegistrationUpdate struct {
	Kind         string              `json:"kind"`
	Registration models.Registration `json:"registration"`
}

// RegistrationEventEmitter fans registration changes out to clients
// subscribed either to an event or to a user.
type RegistrationEventEmitter struct {
	eventClients     map[string][]chan RegistrationUpdate
	eventClientMutex sync.RWMutex

	userClients     map[string][]chan RegistrationUpdate
	userClientMutex sync.RWMutex
}

func NewRegistrationEventEmitter() *RegistrationEventEmitter {
	return &RegistrationEventEmitter{
		eventClients: make(map[string][]chan RegistrationUpdate),
		userClients:  make(map[string][]chan RegistrationUpdate),
	}
}

// SubscribeToEvent returns a channel of changes for eventID. It is closed
// once ctx is done.
func (e *RegistrationEventEmitter) SubscribeToEvent(ctx context.Context, eventID string) <-chan RegistrationUpdate {
	return subscribe(ctx, &e.eventClientMutex, e.eventClients, eventID)
}

// SubscribeToUser returns a channel of changes to userID's registrations.
func (e *RegistrationEventEmitter) SubscribeToUser(ctx context.Context, userID string) <-chan RegistrationUpdate {
	return subscribe(ctx, &e.userClientMutex, e.userClients, userID)
}

// EmitRegistration broadcasts without blocking; a client with a full buffer
// misses the update.
func (e *RegistrationEventEmitter) EmitRegistration(kind string, reg models.Registration) {
	update := RegistrationUpdate{Kind: kind, Registration: reg}
	broadcast(&e.eventClientMutex, e.eventClients, reg.EventID, update)
	broadcast(&e.userClientMutex, e.userClients, reg.UserID, update)
}

func (e *RegistrationEventEmitter) GetEventClientCount(eventID string) int {
	e.eventClientMutex.RLock()
	defer e.eventClientMutex.RUnlock()
	return len(e.eventClients[eventID])
}

func (e *RegistrationEventEmitter) GetUserClientCount(userID string) int {
	e.userClientMutex.RLock()
	defer e.userClientMutex.RUnlock()
	return len(e.userClients[userID])
}

func subscribe(ctx context.Context, mu *sync.RWMutex, clients map[string][]chan RegistrationUpdate, key string) <-chan RegistrationUpdate {
	ch := make(chan RegistrationUpdate, 10)

	mu.Lock()
	clients[key] = append(clients[key], ch)
	mu.Unlock()

	go func() {
		<-ctx.Done()
		remove(mu, clients, key, ch)
	}()

	return ch
}

// broadcast sends under the read lock so remove cannot close a channel
// mid-send.
func broadcast(mu *sync.RWMutex, clients map[string][]chan RegistrationUpdate, key string, update RegistrationUpdate) {
	mu.RLock()
	defer mu.RUnlock()

	for _, ch := range clients[key] {
		select {
		case ch <- update:
		default:
		}
	}
}

func remove(mu *sync.RWMutex, clients map[string][]chan RegistrationUpdate, key string, ch chan RegistrationUpdate) {
	mu.Lock()
	defer mu.Unlock()

	list := clients[key]
	for i, c := range list {
		if c == ch {
			clients[key] = append(list[:i], list[i+1:]...)
			close(ch)
			break
		}
	}

	if len(clients[key]) == 0 {
		delete(clients, key)
	}
}
