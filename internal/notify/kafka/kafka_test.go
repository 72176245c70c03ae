package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/Shivanand-hulikatti/event-booking/internal/notify"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestDeliver_KeysByRecipient(t *testing.T) {
	w := &fakeWriter{}
	n := &Notifier{writer: w}

	msg := notify.Notification{
		Kind:      notify.KindBookingConfirmation,
		Recipient: "ann@example.com",
		Subject:   "Booking confirmed",
		Body:      "3 tickets",
	}
	require.NoError(t, n.Deliver(context.Background(), msg))

	require.Len(t, w.msgs, 1)
	assert.Equal(t, []byte("ann@example.com"), w.msgs[0].Key)
	assert.Equal(t, "kind", w.msgs[0].Headers[0].Key)

	var got notify.Notification
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &got))
	assert.Equal(t, msg, got)
}

func TestDeliver_WrapsWriterError(t *testing.T) {
	boom := errors.New("broker down")
	n := &Notifier{writer: &fakeWriter{err: boom}}

	err := n.Deliver(context.Background(), notify.Notification{Recipient: "x"})
	assert.ErrorIs(t, err, boom)
}
