// Package redis implements queue.Queue on a Redis list: producers LPUSH onto
// the key and the processor RPOPs from the other end, which yields FIFO order.
package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/Shivanand-hulikatti/event-booking/internal/model"
	"github.com/Shivanand-hulikatti/event-booking/internal/queue"
	"github.com/redis/go-redis/v9"
)

const deadLetterSuffix = ":dead"

type Queue struct {
	client *redis.Client
	key    string
	owner  bool
}

var (
	_ queue.Queue       = (*Queue)(nil)
	_ queue.RawEnqueuer = (*Queue)(nil)
)

// Connect dials Redis and verifies the connection with PING.
func Connect(ctx context.Context, addr, password string, db int, key string) (*Queue, error) {
	const op = "queue.redis.Connect"

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	q := New(client, key)
	q.owner = true
	return q, nil
}

// New wraps an existing client. Close on the result does not close client.
func New(client *redis.Client, key string) *Queue {
	return &Queue{client: client, key: key}
}

// Key returns the list key backing this queue.
func (q *Queue) Key() string {
	return q.key
}

// DeadLetter returns the queue that holds jobs which exhausted their attempts.
func (q *Queue) DeadLetter() *Queue {
	return New(q.client, q.key+deadLetterSuffix)
}

func (q *Queue) Enqueue(ctx context.Context, job model.Job) (string, error) {
	const op = "queue.redis.Enqueue"

	data, err := queue.Encode(job)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if err := q.client.LPush(ctx, q.key, data).Err(); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return job.ID, nil
}

// EnqueueRaw pushes data as is, for entries that no longer decode as jobs.
func (q *Queue) EnqueueRaw(ctx context.Context, data []byte) error {
	const op = "queue.redis.EnqueueRaw"

	if err := q.client.LPush(ctx, q.key, data).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (q *Queue) Dequeue(ctx context.Context) (model.Job, error) {
	const op = "queue.redis.Dequeue"

	data, err := q.client.RPop(ctx, q.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return model.Job{}, queue.ErrEmpty
		}
		return model.Job{}, fmt.Errorf("%s: %w", op, err)
	}

	job, err := queue.Decode(data)
	if err != nil {
		return model.Job{}, fmt.Errorf("%s: %w", op, err)
	}
	return job, nil
}

// Len reports how many jobs are waiting.
func (q *Queue) Len(ctx context.Context) (int64, error) {
	const op = "queue.redis.Len"

	n, err := q.client.LLen(ctx, q.key).Result()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return n, nil
}

func (q *Queue) Close() error {
	const op = "queue.redis.Close"

	if !q.owner {
		return nil
	}
	if err := q.client.Close(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
