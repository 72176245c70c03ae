// Package kafka publishes notifications to a Kafka topic for a downstream
// mailer to pick up.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Shivanand-hulikatti/event-booking/internal/notify"
	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Notifier struct {
	writer messageWriter
}

var _ notify.Notifier = (*Notifier)(nil)

// New initializes a notifier writing to topic on brokers.
func New(brokers []string, topic string) *Notifier {
	return &Notifier{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
		},
	}
}

// Deliver publishes n keyed by recipient, so one customer's notifications
// land on one partition in order.
func (n *Notifier) Deliver(ctx context.Context, msg notify.Notification) error {
	const op = "notify.kafka.Deliver"

	value, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	err = n.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(msg.Recipient),
		Value: value,
		Headers: []kafka.Header{
			{Key: "kind", Value: []byte(msg.Kind)},
		},
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (n *Notifier) Close() error {
	return n.writer.Close()
}
