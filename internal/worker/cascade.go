// Package worker holds the background cascade repair loop.
package worker

import (
	"context"
	"fmt"
	"time"

	"ms-registration/internal/kafka"
	"ms-registration/internal/logger"
	"ms-registration/internal/models"
)

type EventCanceller interface {
	CancelEvent(ctx context.Context, id string) error
	RepairCancellations(ctx context.Context) (int, error)
}

// Source delivers lifecycle messages to a handler until ctx ends.
type Source interface {
	Run(ctx context.Context, handle kafka.Handler) error
}

// Cascade re-drives event cancellations. Each event.cancelled message gets a
// straggler sweep, and a timer finishes cascades whose message never came.
type Cascade struct {
	Events   EventCanceller
	Logger   *logger.Logger
	Interval time.Duration
}

func NewCascade(events EventCanceller, interval time.Duration, log *logger.Logger) *Cascade {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Cascade{Events: events, Logger: log, Interval: interval}
}

// Handle sweeps the event named by msg. Messages of other types are ignored.
func (c *Cascade) Handle(ctx context.Context, msg models.LifecycleMessage) error {
	if msg.Type != kafka.TopicEventCancelled || msg.EventID == "" {
		return nil
	}
	if err := c.Events.CancelEvent(ctx, msg.EventID); err != nil {
		return fmt.Errorf("sweep event %s: %w", msg.EventID, err)
	}
	c.Logger.LogEvent("SWEEP", msg.EventID, "cancellation sweep complete")
	return nil
}

func (c *Cascade) repair(ctx context.Context) {
	n, err := c.Events.RepairCancellations(ctx)
	if err != nil {
		c.Logger.Error("WORKER", fmt.Sprintf("Repair pass finished %d cascades with errors: %v", n, err))
		return
	}
	if n > 0 {
		c.Logger.Info("WORKER", fmt.Sprintf("Repair pass finished %d cascades", n))
	}
}

// Run repairs once, then consumes src and repairs on every tick until ctx
// is cancelled. src may be nil to run on the timer alone.
func (c *Cascade) Run(ctx context.Context, src Source) error {
	c.repair(ctx)

	errc := make(chan error, 1)
	if src != nil {
		go func() { errc <- src.Run(ctx, c.Handle) }()
	}

	ticker := time.NewTicker(c.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errc:
			if err != nil {
				return fmt.Errorf("consumer stopped: %w", err)
			}
			errc = nil
		case <-ticker.C:
			c.repair(ctx)
		}
	}
}
