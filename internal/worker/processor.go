// Package worker drains the job queue in the background and turns jobs into
// customer notifications.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Shivanand-hulikatti/event-booking/internal/config"
	"github.com/Shivanand-hulikatti/event-booking/internal/lib/logger/sl"
	"github.com/Shivanand-hulikatti/event-booking/internal/metrics"
	"github.com/Shivanand-hulikatti/event-booking/internal/model"
	"github.com/Shivanand-hulikatti/event-booking/internal/notify"
	"github.com/Shivanand-hulikatti/event-booking/internal/queue"
)

// corruptJobType labels metrics for entries whose type could not be read.
const corruptJobType = "corrupt"

var (
	errUnknownType = errors.New("unknown job type")
	errMalformed   = errors.New("malformed payload")
)

// deliveryError reports the recipients of a fan-out job that were not reached.
type deliveryError struct {
	failed []string
	err    error
}

func (e *deliveryError) Error() string {
	return fmt.Sprintf("%d deliveries failed: %v", len(e.failed), e.err)
}

func (e *deliveryError) Unwrap() error { return e.err }

// Processor takes at most one job off the queue per tick.
//
// A job whose handler fails is put back on the queue with its attempt count
// raised, until MaxAttempts is reached; then it moves to the dead-letter
// queue. Failures never stop the loop.
type Processor struct {
	log        *slog.Logger
	jobs       queue.Queue
	deadLetter queue.Queue
	notifier   notify.Notifier
	metrics    *metrics.Metrics

	interval    time.Duration
	jobTimeout  time.Duration
	maxAttempts int

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewProcessor wires a processor. deadLetter may be nil, in which case jobs
// that exhaust their attempts are logged and dropped.
func NewProcessor(
	log *slog.Logger,
	jobs queue.Queue,
	deadLetter queue.Queue,
	notifier notify.Notifier,
	m *metrics.Metrics,
	cfg config.Processor,
) *Processor {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	return &Processor{
		log:         log,
		jobs:        jobs,
		deadLetter:  deadLetter,
		notifier:    notifier,
		metrics:     m,
		interval:    cfg.Interval,
		jobTimeout:  cfg.EffectiveJobTimeout(),
		maxAttempts: maxAttempts,
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
}

// Start runs the polling loop in its own goroutine until ctx is done or Stop
// is called.
func (p *Processor) Start(ctx context.Context) {
	const op = "worker.Processor.Start"
	log := p.log.With(slog.String("op", op))

	log.Info("starting queue processor",
		slog.Duration("interval", p.interval),
		slog.Int("max_attempts", p.maxAttempts))

	go func() {
		defer close(p.done)
		defer log.Info("queue processor stopped")

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-p.stop:
				return
			case <-ticker.C:
				p.Tick(ctx)
			}
		}
	}()
}

// Stop ends the loop and waits for an in-flight job to finish. It must only
// be called after Start.
func (p *Processor) Stop() {
	p.stopOnce.Do(func() { close(p.stop) })
	<-p.done
}

// Tick dequeues and processes a single job. It reports whether a job was
// taken off the queue.
func (p *Processor) Tick(ctx context.Context) bool {
	const op = "worker.Processor.Tick"
	log := p.log.With(slog.String("op", op))

	job, err := p.jobs.Dequeue(ctx)
	if err != nil {
		var de *queue.DecodeError
		switch {
		case errors.As(err, &de):
			// Already off the queue; keep the bytes rather than lose them.
			log.Error("queued entry cannot be decoded", sl.Err(err))
			p.buryRaw(ctx, log, de.Raw)
			return true
		case !errors.Is(err, queue.ErrEmpty):
			log.Error("failed to dequeue job", sl.Err(err))
		}
		return false
	}

	log = log.With(
		slog.String("job_id", job.ID),
		slog.String("type", string(job.Type)),
		slog.Int("attempt", job.Attempts+1))

	jobCtx, cancel := context.WithTimeout(ctx, p.jobTimeout)
	defer cancel()

	start := time.Now()
	err = p.process(jobCtx, job)
	p.metrics.JobDuration.WithLabelValues(string(job.Type)).Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		p.record(job, metrics.OutcomeSuccess)
		log.Debug("job processed")
	case errors.Is(err, errUnknownType):
		p.record(job, metrics.OutcomeDropped)
		log.Warn("dropping job of unknown type")
	case errors.Is(err, errMalformed):
		log.Error("job payload cannot be decoded", sl.Err(err))
		p.bury(ctx, log, job)
	default:
		log.Error("job failed", sl.Err(err))
		p.retry(ctx, log, job, err)
	}
	return true
}

func (p *Processor) process(ctx context.Context, job model.Job) error {
	switch job.Type {
	case model.JobBookingConfirmation:
		return p.confirmBooking(ctx, job)
	case model.JobEventUpdateNotification:
		return p.announceUpdate(ctx, job)
	default:
		return errUnknownType
	}
}

func (p *Processor) confirmBooking(ctx context.Context, job model.Job) error {
	var payload model.BookingConfirmationPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("%w: %w", errMalformed, err)
	}

	recipient := payload.UserEmail
	if recipient == "" {
		recipient = payload.UserID
	}

	return p.notifier.Deliver(ctx, notify.Notification{
		Kind:      notify.KindBookingConfirmation,
		Recipient: recipient,
		Subject:   fmt.Sprintf("Booking confirmed: %s", payload.EventTitle),
		Body: fmt.Sprintf("Your booking %s for %s is confirmed: %d ticket(s), total %.2f.",
			payload.BookingID, payload.EventTitle, payload.Tickets, payload.TotalPrice),
	})
}

func (p *Processor) announceUpdate(ctx context.Context, job model.Job) error {
	var payload model.EventUpdatePayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("%w: %w", errMalformed, err)
	}

	subject := fmt.Sprintf("Event updated: %s", payload.EventTitle)
	body := fmt.Sprintf("%s has changed (%s). Check the event page for details.",
		payload.EventTitle, strings.Join(payload.UpdatedFields, ", "))

	var (
		failed []string
		errs   []error
	)
	for _, customer := range payload.Customers {
		err := p.notifier.Deliver(ctx, notify.Notification{
			Kind:      notify.KindEventUpdate,
			Recipient: customer,
			Subject:   subject,
			Body:      body,
		})
		if err != nil {
			failed = append(failed, customer)
			errs = append(errs, err)
		}
	}
	if len(failed) > 0 {
		return &deliveryError{failed: failed, err: errors.Join(errs...)}
	}
	return nil
}

// retry puts job back on the queue, narrowed to the recipients still owed a
// notification, or buries it once it has used up its attempts.
func (p *Processor) retry(ctx context.Context, log *slog.Logger, job model.Job, cause error) {
	job.Attempts++
	if job.Attempts >= p.maxAttempts {
		p.bury(ctx, log, job)
		return
	}

	var de *deliveryError
	if errors.As(cause, &de) && job.Type == model.JobEventUpdateNotification {
		if narrowed, err := narrow(job, de.failed); err == nil {
			job = narrowed
		}
	}

	if _, err := p.jobs.Enqueue(ctx, job); err != nil {
		p.record(job, metrics.OutcomeError)
		log.Error("failed to requeue job, dropping it", sl.Err(err))
		return
	}
	p.record(job, metrics.OutcomeRequeued)
	log.Info("job requeued", slog.Int("attempts", job.Attempts))
}

func (p *Processor) bury(ctx context.Context, log *slog.Logger, job model.Job) {
	if p.deadLetter == nil {
		p.record(job, metrics.OutcomeError)
		log.Error("job exhausted its attempts, dropping it")
		return
	}

	if _, err := p.deadLetter.Enqueue(ctx, job); err != nil {
		p.record(job, metrics.OutcomeError)
		log.Error("failed to dead-letter job, dropping it", sl.Err(err))
		return
	}
	p.record(job, metrics.OutcomeDeadLetter)
	log.Warn("job moved to dead-letter queue")
}

// buryRaw moves an undecodable entry to the dead-letter queue verbatim.
func (p *Processor) buryRaw(ctx context.Context, log *slog.Logger, raw []byte) {
	dl, ok := p.deadLetter.(queue.RawEnqueuer)
	if !ok {
		p.metrics.JobsProcessed.WithLabelValues(corruptJobType, metrics.OutcomeError).Inc()
		log.Error("dead-letter queue cannot hold raw entries, dropping it", slog.String("raw", string(raw)))
		return
	}

	if err := dl.EnqueueRaw(ctx, raw); err != nil {
		p.metrics.JobsProcessed.WithLabelValues(corruptJobType, metrics.OutcomeError).Inc()
		log.Error("failed to dead-letter raw entry, dropping it", slog.String("raw", string(raw)), sl.Err(err))
		return
	}
	p.metrics.JobsProcessed.WithLabelValues(corruptJobType, metrics.OutcomeDeadLetter).Inc()
	log.Warn("raw entry moved to dead-letter queue")
}

func (p *Processor) record(job model.Job, outcome string) {
	p.metrics.JobsProcessed.WithLabelValues(string(job.Type), outcome).Inc()
}

func narrow(job model.Job, customers []string) (model.Job, error) {
	var payload model.EventUpdatePayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return job, err
	}
	payload.Customers = customers
	payload.CustomerCount = len(customers)

	data, err := json.Marshal(payload)
	if err != nil {
		return job, err
	}
	job.Payload = data
	return job, nil
}
