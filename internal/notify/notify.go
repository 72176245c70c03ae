// Package notify delivers rendered notifications to customers.
package notify

import (
	"context"
	"log/slog"
)

// Kind classifies a notification.
type Kind string

const (
	KindBookingConfirmation Kind = "booking_confirmation"
	KindEventUpdate         Kind = "event_update"
)

// Notification is one message for one recipient.
type Notification struct {
	Kind      Kind   `json:"kind"`
	Recipient string `json:"recipient"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
}

// Notifier delivers a notification. Implementations must be safe for
// concurrent use.
type Notifier interface {
	Deliver(ctx context.Context, n Notification) error
}

// LogNotifier "delivers" by writing the notification to the log.
type LogNotifier struct {
	log *slog.Logger
}

func NewLogNotifier(log *slog.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Deliver(ctx context.Context, msg Notification) error {
	n.log.InfoContext(ctx, "notification sent",
		slog.String("kind", string(msg.Kind)),
		slog.String("recipient", msg.Recipient),
		slog.String("subject", msg.Subject),
		slog.String("body", msg.Body),
	)
	return nil
}
