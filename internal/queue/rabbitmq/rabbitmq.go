// Package rabbitmq implements queue.Queue on a durable RabbitMQ queue.
// Dequeue uses basic.get with auto-ack, which matches the queue contract:
// the message is gone from the broker the moment it is handed out.
package rabbitmq

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Shivanand-hulikatti/event-booking/internal/model"
	"github.com/Shivanand-hulikatti/event-booking/internal/queue"
	amqp "github.com/rabbitmq/amqp091-go"
)

const deadLetterSuffix = ".dead"

// channel is the subset of *amqp.Channel the queue uses.
type channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Get(queue string, autoAck bool) (amqp.Delivery, bool, error)
	Close() error
}

type Queue struct {
	conn    *amqp.Connection
	channel channel
	name    string
	owner   bool

	// amqp channels are not safe for concurrent publishes.
	mu *sync.Mutex
}

var (
	_ queue.Queue       = (*Queue)(nil)
	_ queue.RawEnqueuer = (*Queue)(nil)
)

// Dial connects to the broker and declares the durable queue name.
func Dial(url, name string) (*Queue, error) {
	const op = "queue.rabbitmq.Dial"

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("%s: connect: %w", op, err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("%s: open channel: %w", op, err)
	}

	q, err := newQueue(ch, name)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	q.conn = conn
	return q, nil
}

func newQueue(ch channel, name string) (*Queue, error) {
	q := &Queue{channel: ch, name: name, owner: true, mu: &sync.Mutex{}}
	if err := q.declare(); err != nil {
		return nil, err
	}
	return q, nil
}

func (q *Queue) declare() error {
	_, err := q.channel.QueueDeclare(
		q.name, // queue name
		true,   // durable
		false,  // auto-delete
		false,  // exclusive
		false,  // no-wait
		nil,    // arguments
	)
	if err != nil {
		return fmt.Errorf("declare queue %s: %w", q.name, err)
	}
	return nil
}

// Name returns the broker queue name.
func (q *Queue) Name() string {
	return q.name
}

// DeadLetter declares and returns the queue holding jobs that exhausted
// their attempts. It shares the parent's connection.
func (q *Queue) DeadLetter() (*Queue, error) {
	const op = "queue.rabbitmq.DeadLetter"

	dl := &Queue{conn: q.conn, channel: q.channel, name: q.name + deadLetterSuffix, mu: q.mu}
	if err := dl.declare(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return dl, nil
}

func (q *Queue) Enqueue(ctx context.Context, job model.Job) (string, error) {
	const op = "queue.rabbitmq.Enqueue"

	data, err := queue.Encode(job)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	err = q.publish(ctx, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    job.ID,
		Type:         string(job.Type),
		Timestamp:    job.CreatedAt,
		Body:         data,
	})
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return job.ID, nil
}

// EnqueueRaw publishes data as is, for entries that no longer decode as jobs.
func (q *Queue) EnqueueRaw(ctx context.Context, data []byte) error {
	const op = "queue.rabbitmq.EnqueueRaw"

	err := q.publish(ctx, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         data,
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (q *Queue) publish(ctx context.Context, msg amqp.Publishing) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.channel.PublishWithContext(ctx,
		"",     // exchange
		q.name, // routing key (queue name)
		false,  // mandatory
		false,  // immediate
		msg,
	)
}

func (q *Queue) Dequeue(ctx context.Context) (model.Job, error) {
	const op = "queue.rabbitmq.Dequeue"

	if err := ctx.Err(); err != nil {
		return model.Job{}, err
	}

	q.mu.Lock()
	msg, ok, err := q.channel.Get(q.name, true)
	q.mu.Unlock()
	if err != nil {
		return model.Job{}, fmt.Errorf("%s: %w", op, err)
	}
	if !ok {
		return model.Job{}, queue.ErrEmpty
	}

	job, err := queue.Decode(msg.Body)
	if err != nil {
		return model.Job{}, fmt.Errorf("%s: %w", op, err)
	}
	return job, nil
}

func (q *Queue) Close() error {
	if !q.owner {
		return nil
	}
	if q.channel != nil {
		q.channel.Close()
	}
	if q.conn != nil {
		return q.conn.Close()
	}
	return nil
}
