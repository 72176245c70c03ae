package rabbitmq

import (
	"context"
	"errors"
	"sync"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shivanand-hulikatti/event-booking/internal/model"
	"github.com/Shivanand-hulikatti/event-booking/internal/queue"
)

// fakeChannel is an in-memory broker keyed by queue name.
type fakeChannel struct {
	mu       sync.Mutex
	declared map[string]bool
	messages map[string][]amqp.Publishing
	failGet  error
	closed   bool
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{declared: map[string]bool{}, messages: map[string][]amqp.Publishing{}}
}

func (c *fakeChannel) QueueDeclare(name string, durable, _, _, _ bool, _ amqp.Table) (amqp.Queue, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !durable {
		return amqp.Queue{}, errors.New("queue must be durable")
	}
	c.declared[name] = true
	return amqp.Queue{Name: name}, nil
}

func (c *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if exchange != "" || !c.declared[key] {
		return errors.New("no route")
	}
	c.messages[key] = append(c.messages[key], msg)
	return nil
}

func (c *fakeChannel) Get(name string, autoAck bool) (amqp.Delivery, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.failGet != nil {
		return amqp.Delivery{}, false, c.failGet
	}
	if !autoAck {
		return amqp.Delivery{}, false, errors.New("expected auto-ack")
	}
	msgs := c.messages[name]
	if len(msgs) == 0 {
		return amqp.Delivery{}, false, nil
	}
	c.messages[name] = msgs[1:]
	return amqp.Delivery{Body: msgs[0].Body, MessageId: msgs[0].MessageId}, true, nil
}

func (c *fakeChannel) Close() error {
	c.closed = true
	return nil
}

func TestQueue_FIFO(t *testing.T) {
	ctx := context.Background()
	ch := newFakeChannel()
	q, err := newQueue(ch, "jobs")
	require.NoError(t, err)
	assert.True(t, ch.declared["jobs"])

	var ids []string
	for _, tickets := range []int{1, 2, 3} {
		job, err := queue.NewJob(model.JobBookingConfirmation, model.BookingConfirmationPayload{Tickets: tickets})
		require.NoError(t, err)
		id, err := q.Enqueue(ctx, job)
		require.NoError(t, err)
		ids = append(ids, id)
	}

	for _, msg := range ch.messages["jobs"] {
		assert.Equal(t, amqp.Persistent, msg.DeliveryMode)
		assert.Equal(t, string(model.JobBookingConfirmation), msg.Type)
	}

	for _, want := range ids {
		job, err := q.Dequeue(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, job.ID)
	}
}

func TestQueue_Empty(t *testing.T) {
	q, err := newQueue(newFakeChannel(), "jobs")
	require.NoError(t, err)

	_, err = q.Dequeue(context.Background())
	assert.ErrorIs(t, err, queue.ErrEmpty)
}

func TestQueue_DequeueErrors(t *testing.T) {
	ch := newFakeChannel()
	q, err := newQueue(ch, "jobs")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = q.Dequeue(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	ch.failGet = errors.New("channel closed")
	_, err = q.Dequeue(context.Background())
	assert.Error(t, err)
	assert.NotErrorIs(t, err, queue.ErrEmpty)
}

func TestQueue_CorruptMessageKeepsBody(t *testing.T) {
	ctx := context.Background()
	ch := newFakeChannel()
	q, err := newQueue(ch, "jobs")
	require.NoError(t, err)

	require.NoError(t, q.EnqueueRaw(ctx, []byte(`{"id":"job_1","type":`)))

	_, err = q.Dequeue(ctx)
	var de *queue.DecodeError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, `{"id":"job_1","type":`, string(de.Raw))
}

func TestQueue_DeadLetter(t *testing.T) {
	ctx := context.Background()
	ch := newFakeChannel()
	q, err := newQueue(ch, "jobs")
	require.NoError(t, err)

	dead, err := q.DeadLetter()
	require.NoError(t, err)
	assert.Equal(t, "jobs.dead", dead.Name())
	assert.True(t, ch.declared["jobs.dead"])

	_, err = dead.Enqueue(ctx, model.Job{ID: "job_dead", Type: model.JobBookingConfirmation})
	require.NoError(t, err)

	_, err = q.Dequeue(ctx)
	assert.ErrorIs(t, err, queue.ErrEmpty)

	got, err := dead.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "job_dead", got.ID)

	// the dead-letter queue shares the channel, closing it must not close q
	require.NoError(t, dead.Close())
	assert.False(t, ch.closed)
	require.NoError(t, q.Close())
	assert.True(t, ch.closed)
}
