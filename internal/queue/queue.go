// Package queue is the durable ordered buffer between a committed mutation
// and its side effects.
//
// The contract is deliberately small: Enqueue appends to the tail, Dequeue
// removes from the head. There is no acknowledgement, so a job dequeued by a
// worker that then crashes is gone.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Shivanand-hulikatti/event-booking/internal/model"
	"github.com/google/uuid"
)

// ErrEmpty is returned by Dequeue when there is nothing to hand out.
var ErrEmpty = errors.New("queue is empty")

// DecodeError is returned by Dequeue when an entry was taken off the queue
// but could not be decoded. Raw holds the entry as stored.
type DecodeError struct {
	Raw []byte
	Err error
}

func (e *DecodeError) Error() string { return "decode job: " + e.Err.Error() }
func (e *DecodeError) Unwrap() error { return e.Err }

// RawEnqueuer is implemented by queues that can keep entries which no longer
// decode as jobs.
type RawEnqueuer interface {
	EnqueueRaw(ctx context.Context, data []byte) error
}

// Queue is a FIFO of jobs shared by producers and the processor.
type Queue interface {
	// Enqueue appends job to the tail and returns its id.
	Enqueue(ctx context.Context, job model.Job) (string, error)
	// Dequeue removes and returns the head, or ErrEmpty.
	Dequeue(ctx context.Context) (model.Job, error)
	Close() error
}

// NewJob builds a job of type t carrying payload encoded as JSON.
func NewJob(t model.JobType, payload any) (model.Job, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return model.Job{}, fmt.Errorf("marshal %s payload: %w", t, err)
	}

	return model.Job{
		ID:        "job_" + uuid.NewString(),
		Type:      t,
		Payload:   data,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// Encode serialises a job for the wire.
func Encode(job model.Job) ([]byte, error) {
	data, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("encode job %s: %w", job.ID, err)
	}
	return data, nil
}

// Decode parses a job previously written by Encode.
func Decode(data []byte) (model.Job, error) {
	var job model.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return model.Job{}, &DecodeError{Raw: data, Err: err}
	}
	if job.Type == "" {
		return model.Job{}, &DecodeError{Raw: data, Err: errors.New("missing type")}
	}
	return job, nil
}
