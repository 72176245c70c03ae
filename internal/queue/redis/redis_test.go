package redis_test

import (
	"context"
	"testing"

	"github.com/Shivanand-hulikatti/event-booking/internal/model"
	"github.com/Shivanand-hulikatti/event-booking/internal/queue"
	redisqueue "github.com/Shivanand-hulikatti/event-booking/internal/queue/redis"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const key = "event-booking:jobs"

func setup(t *testing.T) (*miniredis.Miniredis, *redisqueue.Queue) {
	t.Helper()

	srv := miniredis.RunT(t)
	q, err := redisqueue.Connect(context.Background(), srv.Addr(), "", 0, key)
	require.NoError(t, err)
	t.Cleanup(func() { _ = q.Close() })

	return srv, q
}

func TestQueue_FIFO(t *testing.T) {
	ctx := context.Background()
	_, q := setup(t)

	for _, tickets := range []int{1, 2, 3} {
		job, err := queue.NewJob(model.JobBookingConfirmation, model.BookingConfirmationPayload{Tickets: tickets})
		require.NoError(t, err)
		_, err = q.Enqueue(ctx, job)
		require.NoError(t, err)
	}

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	for _, want := range []int{1, 2, 3} {
		job, err := q.Dequeue(ctx)
		require.NoError(t, err)
		assert.Equal(t, model.JobBookingConfirmation, job.Type)
		assert.Contains(t, string(job.Payload), `"tickets":`+string(rune('0'+want)))
	}

	_, err = q.Dequeue(ctx)
	assert.ErrorIs(t, err, queue.ErrEmpty)
}

func TestQueue_UsesListKey(t *testing.T) {
	ctx := context.Background()
	srv, q := setup(t)

	job, err := queue.NewJob(model.JobEventUpdateNotification, model.EventUpdatePayload{EventID: "e-1"})
	require.NoError(t, err)
	id, err := q.Enqueue(ctx, job)
	require.NoError(t, err)
	assert.Equal(t, job.ID, id)

	items, err := srv.List(key)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Contains(t, items[0], job.ID)
}

func TestQueue_DeadLetterIsSeparateList(t *testing.T) {
	ctx := context.Background()
	srv, q := setup(t)
	dead := q.DeadLetter()
	assert.Equal(t, key+":dead", dead.Key())

	_, err := dead.Enqueue(ctx, model.Job{ID: "job_dead", Type: model.JobBookingConfirmation})
	require.NoError(t, err)

	_, err = q.Dequeue(ctx)
	assert.ErrorIs(t, err, queue.ErrEmpty)

	assert.True(t, srv.Exists(key+":dead"))
	got, err := dead.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "job_dead", got.ID)

	// the dead-letter view shares the client, closing it must not close q
	require.NoError(t, dead.Close())
	_, err = q.Len(ctx)
	assert.NoError(t, err)
}

func TestQueue_CorruptEntry(t *testing.T) {
	ctx := context.Background()
	srv, q := setup(t)

	_, err := srv.Lpush(key, "garbage")
	require.NoError(t, err)

	_, err = q.Dequeue(ctx)
	require.Error(t, err)
	assert.NotErrorIs(t, err, queue.ErrEmpty)

	var de *queue.DecodeError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "garbage", string(de.Raw))
	assert.False(t, srv.Exists(key))

	// raw entries round-trip into the dead-letter list untouched
	dead := q.DeadLetter()
	require.NoError(t, dead.EnqueueRaw(ctx, de.Raw))
	items, err := srv.List(key + ":dead")
	require.NoError(t, err)
	assert.Equal(t, []string{"garbage"}, items)
}

func TestConnect_Unreachable(t *testing.T) {
	srv := miniredis.RunT(t)
	addr := srv.Addr()
	srv.Close()

	_, err := redisqueue.Connect(context.Background(), addr, "", 0, key)
	assert.Error(t, err)
}

func TestNew_SharedClient(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	q := redisqueue.New(client, "other")
	require.NoError(t, q.Close())
	assert.NoError(t, client.Ping(context.Background()).Err())
}
