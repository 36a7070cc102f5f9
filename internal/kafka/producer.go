package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ms-registration/internal/logger"
	"ms-registration/internal/models"

	"github.com/segmentio/kafka-go"
)

// MessageWriter is the subset of *kafka.Writer the producer relies on.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Producer struct {
	Writer MessageWriter
	Logger *logger.Logger
	Now    func() time.Time
}

// NewProducer builds a writer that routes each message by its own topic.
func NewProducer(brokers []string, log *logger.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		BatchTimeout:           10 * time.Millisecond,
	}
	return &Producer{Writer: writer, Logger: log, Now: time.Now}
}

// Publish writes value to topic keyed by key so that all messages for one
// event land on the same partition.
func (p *Producer) Publish(ctx context.Context, topic, key string, value any) error {
	msgBytes, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %s message: %w", topic, err)
	}

	p.Logger.LogKafka("PUBLISH", topic, fmt.Sprintf("key=%s", key))

	return p.Writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: msgBytes,
	})
}

// PublishRegistration announces a registration state change.
func (p *Producer) PublishRegistration(ctx context.Context, topic string, reg models.Registration) error {
	msg := models.NewRegistrationMessage(topic, reg, p.Now().UTC())
	return p.Publish(ctx, topic, reg.EventID, msg)
}

// PublishEvent announces an event state change.
func (p *Producer) PublishEvent(ctx context.Context, topic string, ev models.Event) error {
	msg := models.NewEventMessage(topic, ev, p.Now().UTC())
	return p.Publish(ctx, topic, ev.ID, msg)
}

func (p *Producer) Close() error {
	return p.Writer.Close()
}
