// Package lock serializes admission decisions per event.
//
// Every operation that reads the confirmed count and then writes a status
// that depends on it must hold the event's admission lock for the whole
// read-decide-write sequence.
package lock

import (
	"context"
	"errors"
)

// ErrTimeout is returned when the lock could not be obtained in time.
var ErrTimeout = errors.New("admission lock wait timed out")

// Release gives the lock back. Calling it twice is harmless.
type Release func() error

type Locker interface {
	Acquire(ctx context.Context, key string) (Release, error)
}

// AdmissionKey names the lock guarding one event's capacity.
func AdmissionKey(eventID string) string {
	return "admission_lock:" + eventID
}
