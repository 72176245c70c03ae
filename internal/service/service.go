// Package service implements business logic, validation, and orchestration
// between HTTP handlers and the repository layer.
//
// EventService is the inventory and reservation engine: it owns the rule that
// an event's available tickets always equal its capacity minus the tickets of
// its active bookings, and enforces it by doing every read-check-write inside
// one store transaction that holds the event row.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/Shivanand-hulikatti/event-booking/internal/lib/logger/sl"
	"github.com/Shivanand-hulikatti/event-booking/internal/metrics"
	"github.com/Shivanand-hulikatti/event-booking/internal/model"
	"github.com/Shivanand-hulikatti/event-booking/internal/queue"
	"github.com/Shivanand-hulikatti/event-booking/internal/repository"
)

// Error kinds. Every error returned by EventService matches exactly one of
// these with errors.Is.
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrForbidden       = errors.New("forbidden")
	ErrInternal        = errors.New("internal error")
)

// MaxCapacity caps the capacity of a single event.
const MaxCapacity = 100_000

// enqueueTimeout bounds the post-commit enqueue, which runs detached from the
// caller's context so a client hanging up does not drop the job.
const enqueueTimeout = 5 * time.Second

// Error is a business outcome with a message fit for the caller.
type Error struct {
	kind error
	msg  string
}

func (e *Error) Error() string { return e.msg }
func (e *Error) Unwrap() error { return e.kind }

func newError(kind error, format string, args ...any) error {
	return &Error{kind: kind, msg: fmt.Sprintf(format, args...)}
}

func internal(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrInternal, err)
}

// classify passes business errors through and marks anything else internal.
// Transaction begin/commit failures reach here unclassified.
func classify(op string, err error) error {
	var e *Error
	if errors.As(err, &e) || errors.Is(err, ErrInternal) {
		return err
	}
	return internal(op, err)
}

// EventService orchestrates event and booking operations.
type EventService struct {
	log     *slog.Logger
	store   repository.Store
	queue   queue.Queue
	metrics *metrics.Metrics
	now     func() time.Time
}

// Option customises an EventService.
type Option func(*EventService)

// WithClock replaces time.Now, for tests that need events in the past.
func WithClock(now func() time.Time) Option {
	return func(s *EventService) { s.now = now }
}

// NewEventService constructs an EventService with its dependencies.
func NewEventService(
	log *slog.Logger,
	store repository.Store,
	jobs queue.Queue,
	m *metrics.Metrics,
	opts ...Option,
) *EventService {
	s := &EventService{
		log:     log,
		store:   store,
		queue:   jobs,
		metrics: m,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// enqueue hands a job to the queue after its transaction committed. Failure
// is logged and counted, never returned: the mutation already happened and
// the request must not fail because of the notification pipeline.
func (s *EventService) enqueue(ctx context.Context, jobType model.JobType, payload any) {
	const op = "service.enqueue"
	log := s.log.With(slog.String("op", op), slog.String("type", string(jobType)))

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), enqueueTimeout)
	defer cancel()

	job, err := queue.NewJob(jobType, payload)
	if err == nil {
		_, err = s.queue.Enqueue(ctx, job)
	}
	if err != nil {
		s.metrics.EnqueueFailures.WithLabelValues(string(jobType)).Inc()
		log.Error("failed to enqueue job", sl.Err(err))
		return
	}

	log.Info("job added to queue", slog.String("job_id", job.ID))
}

func totalPrice(price float64, tickets int) float64 {
	return math.Round(price*float64(tickets)*100) / 100
}
