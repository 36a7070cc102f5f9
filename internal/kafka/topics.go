package kafka

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"ms-registration/internal/logger"

	"github.com/segmentio/kafka-go"
)

const (
	TopicRegistrationCreated    = "registration.created"
	TopicRegistrationUpdated    = "registration.updated"
	TopicRegistrationCancelled  = "registration.cancelled"
	TopicRegistrationAttendance = "registration.attendance"
	TopicEventCreated           = "event.created"
	TopicEventUpdated           = "event.updated"
	TopicEventCancelled         = "event.cancelled"
)

// AllTopics lists every topic this service produces.
func AllTopics() []string {
	return []string{
		TopicRegistrationCreated,
		TopicRegistrationUpdated,
		TopicRegistrationCancelled,
		TopicRegistrationAttendance,
		TopicEventCreated,
		TopicEventUpdated,
		TopicEventCancelled,
	}
}

// EnsureTopicsExist creates the given topics on the cluster controller.
func EnsureTopicsExist(ctx context.Context, brokers []string, topics []string, log *logger.Logger) error {
	if len(brokers) == 0 {
		return errors.New("no kafka brokers configured")
	}

	conn, err := kafka.DialContext(ctx, "tcp", brokers[0])
	if err != nil {
		return fmt.Errorf("dial %s: %w", brokers[0], err)
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("find controller: %w", err)
	}
	controllerConn, err := kafka.DialContext(ctx, "tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		return fmt.Errorf("dial controller: %w", err)
	}
	defer controllerConn.Close()

	for _, topic := range topics {
		err = controllerConn.CreateTopics(kafka.TopicConfig{
			Topic:             topic,
			NumPartitions:     3,
			ReplicationFactor: 1,
		})
		switch {
		case err == nil:
			log.LogKafka("CREATE", topic, "topic created")
		case errors.Is(err, kafka.TopicAlreadyExists):
			log.LogKafka("CREATE", topic, "topic already exists")
		default:
			// Keep going so one bad topic does not block the rest.
			log.Warn("KAFKA", fmt.Sprintf("Error creating topic %s: %v", topic, err))
		}
	}

	time.Sleep(500 * time.Millisecond)
	return nil
}
