package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"ms-registration/internal/logger"
	"ms-registration/internal/models"

	"github.com/segmentio/kafka-go"
)

// MessageReader is the subset of *kafka.Reader the consumer relies on.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Handler processes one lifecycle message. Returning an error leaves the
// message uncommitted so it is redelivered.
type Handler func(ctx context.Context, msg models.LifecycleMessage) error

type Consumer struct {
	Reader MessageReader
	Logger *logger.Logger
}

func NewConsumer(brokers []string, topic, groupID string, log *logger.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return &Consumer{Reader: reader, Logger: log}
}

// Run consumes until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context, handle Handler) error {
	c.Logger.Info("KAFKA", "Consumer started")

	for {
		msg, err := c.Reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			c.Logger.Error("KAFKA", fmt.Sprintf("Error reading message: %v", err))
			return err
		}

		var lm models.LifecycleMessage
		if err := json.Unmarshal(msg.Value, &lm); err != nil {
			// Poison message; skip it.
			c.Logger.Warn("KAFKA", fmt.Sprintf("Failed to unmarshal message at offset %d: %v", msg.Offset, err))
			c.commit(ctx, msg)
			continue
		}

		c.Logger.LogKafka("RECEIVE", msg.Topic, fmt.Sprintf("type=%s event=%s", lm.Type, lm.EventID))
		if err := handle(ctx, lm); err != nil {
			c.Logger.Error("KAFKA", fmt.Sprintf("Handler failed for event %s: %v", lm.EventID, err))
			continue
		}
		c.commit(ctx, msg)
	}
}

func (c *Consumer) commit(ctx context.Context, msg kafka.Message) {
	if err := c.Reader.CommitMessages(ctx, msg); err != nil {
		c.Logger.Warn("KAFKA", fmt.Sprintf("Commit failed at offset %d: %v", msg.Offset, err))
	}
}

func (c *Consumer) Close() error {
	return c.Reader.Close()
}
