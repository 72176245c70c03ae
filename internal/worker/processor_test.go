package worker

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Shivanand-hulikatti/event-booking/internal/config"
	"github.com/Shivanand-hulikatti/event-booking/internal/lib/logger/sl"
	"github.com/Shivanand-hulikatti/event-booking/internal/metrics"
	"github.com/Shivanand-hulikatti/event-booking/internal/model"
	"github.com/Shivanand-hulikatti/event-booking/internal/notify"
	"github.com/Shivanand-hulikatti/event-booking/internal/queue"
	redisqueue "github.com/Shivanand-hulikatti/event-booking/internal/queue/redis"
	"github.com/Shivanand-hulikatti/event-booking/internal/repository/sqlite"
	"github.com/Shivanand-hulikatti/event-booking/internal/service"
	"github.com/alicebob/miniredis/v2"
	"github.com/brianvoe/gofakeit/v7"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeNotifier struct {
	mu        sync.Mutex
	sent      []notify.Notification
	unreached map[string]bool
}

func (n *fakeNotifier) Deliver(_ context.Context, msg notify.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.unreached[msg.Recipient] {
		return errors.New("smtp: mailbox unavailable")
	}
	n.sent = append(n.sent, msg)
	return nil
}

func (n *fakeNotifier) Sent() []notify.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()

	out := make([]notify.Notification, len(n.sent))
	copy(out, n.sent)
	return out
}

type harness struct {
	proc     *Processor
	jobs     *queue.Memory
	dead     *queue.Memory
	notifier *fakeNotifier
	metrics  *metrics.Metrics
}

func newHarness(t *testing.T, maxAttempts int) harness {
	t.Helper()

	h := harness{
		jobs:     queue.NewMemory(),
		dead:     queue.NewMemory(),
		notifier: &fakeNotifier{unreached: map[string]bool{}},
		metrics:  metrics.New(),
	}
	h.proc = NewProcessor(sl.Discard(), h.jobs, h.dead, h.notifier, h.metrics, config.Processor{
		Interval:    10 * time.Millisecond,
		JobTimeout:  time.Second,
		MaxAttempts: maxAttempts,
	})
	return h
}

func (h harness) push(t *testing.T, jobType model.JobType, payload any) model.Job {
	t.Helper()

	job, err := queue.NewJob(jobType, payload)
	require.NoError(t, err)
	_, err = h.jobs.Enqueue(context.Background(), job)
	require.NoError(t, err)
	return job
}

func (h harness) outcome(jobType model.JobType, outcome string) float64 {
	return testutil.ToFloat64(h.metrics.JobsProcessed.WithLabelValues(string(jobType), outcome))
}

func TestTick_EmptyQueue(t *testing.T) {
	h := newHarness(t, 3)
	assert.False(t, h.proc.Tick(context.Background()))
	assert.Empty(t, h.notifier.Sent())
}

func TestTick_BookingConfirmation(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 3)

	email := gofakeit.Email()
	h.push(t, model.JobBookingConfirmation, model.BookingConfirmationPayload{
		BookingID:  "b-1",
		UserID:     "u-1",
		UserEmail:  email,
		EventTitle: "Go Meetup",
		Tickets:    3,
		TotalPrice: 60,
	})

	require.True(t, h.proc.Tick(ctx))
	assert.False(t, h.proc.Tick(ctx))

	sent := h.notifier.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, notify.KindBookingConfirmation, sent[0].Kind)
	assert.Equal(t, email, sent[0].Recipient)
	assert.Contains(t, sent[0].Subject, "Go Meetup")
	assert.Contains(t, sent[0].Body, "3 ticket(s)")
	assert.Contains(t, sent[0].Body, "60.00")
	assert.Equal(t, 1.0, h.outcome(model.JobBookingConfirmation, metrics.OutcomeSuccess))
}

func TestTick_ConfirmationFallsBackToUserID(t *testing.T) {
	h := newHarness(t, 3)
	h.push(t, model.JobBookingConfirmation, model.BookingConfirmationPayload{UserID: "u-42", EventTitle: "x", Tickets: 1})

	require.True(t, h.proc.Tick(context.Background()))
	sent := h.notifier.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "u-42", sent[0].Recipient)
}

func TestTick_EventUpdateFansOut(t *testing.T) {
	h := newHarness(t, 3)
	customers := []string{gofakeit.Email(), gofakeit.Email(), gofakeit.Email()}
	h.push(t, model.JobEventUpdateNotification, model.EventUpdatePayload{
		EventID:       "e-1",
		EventTitle:    "Go Meetup",
		CustomerCount: len(customers),
		Customers:     customers,
		UpdatedFields: []string{"date", "location"},
	})

	require.True(t, h.proc.Tick(context.Background()))

	sent := h.notifier.Sent()
	require.Len(t, sent, 3)
	for i, n := range sent {
		assert.Equal(t, notify.KindEventUpdate, n.Kind)
		assert.Equal(t, customers[i], n.Recipient)
		assert.Contains(t, n.Body, "date, location")
	}
	assert.Zero(t, h.jobs.Len())
}

func TestTick_UnknownTypeIsDropped(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 3)
	h.push(t, model.JobType("REFUND_ISSUED"), map[string]string{"id": "r-1"})
	h.push(t, model.JobBookingConfirmation, model.BookingConfirmationPayload{UserEmail: "a@b.c", EventTitle: "x", Tickets: 1})

	require.True(t, h.proc.Tick(ctx))
	assert.Zero(t, h.dead.Len())
	assert.Equal(t, 1, h.jobs.Len())
	assert.Equal(t, 1.0, h.outcome("REFUND_ISSUED", metrics.OutcomeDropped))

	// the loop carries on with the next job
	require.True(t, h.proc.Tick(ctx))
	assert.Len(t, h.notifier.Sent(), 1)
}

func TestTick_RetriesThenDeadLetters(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 3)
	h.notifier.unreached["down@example.com"] = true
	job := h.push(t, model.JobBookingConfirmation, model.BookingConfirmationPayload{UserEmail: "down@example.com", EventTitle: "x", Tickets: 1})

	for attempt := 1; attempt <= 2; attempt++ {
		require.True(t, h.proc.Tick(ctx))
		requeued := h.jobs.Snapshot()
		require.Len(t, requeued, 1)
		assert.Equal(t, job.ID, requeued[0].ID)
		assert.Equal(t, attempt, requeued[0].Attempts)
	}

	require.True(t, h.proc.Tick(ctx))
	assert.Zero(t, h.jobs.Len())

	dead := h.dead.Snapshot()
	require.Len(t, dead, 1)
	assert.Equal(t, job.ID, dead[0].ID)
	assert.Equal(t, 3, dead[0].Attempts)

	assert.Equal(t, 2.0, h.outcome(model.JobBookingConfirmation, metrics.OutcomeRequeued))
	assert.Equal(t, 1.0, h.outcome(model.JobBookingConfirmation, metrics.OutcomeDeadLetter))
}

func TestTick_SingleAttemptNeverRequeues(t *testing.T) {
	h := newHarness(t, 1)
	h.notifier.unreached["down@example.com"] = true
	h.push(t, model.JobBookingConfirmation, model.BookingConfirmationPayload{UserEmail: "down@example.com", EventTitle: "x", Tickets: 1})

	require.True(t, h.proc.Tick(context.Background()))
	assert.Zero(t, h.jobs.Len())
	assert.Equal(t, 1, h.dead.Len())
}

func TestTick_NoDeadLetterDrops(t *testing.T) {
	jobs := queue.NewMemory()
	notifier := &fakeNotifier{unreached: map[string]bool{"down@example.com": true}}
	m := metrics.New()
	proc := NewProcessor(sl.Discard(), jobs, nil, notifier, m, config.Processor{Interval: time.Second, MaxAttempts: 1})

	job, err := queue.NewJob(model.JobBookingConfirmation, model.BookingConfirmationPayload{UserEmail: "down@example.com"})
	require.NoError(t, err)
	_, err = jobs.Enqueue(context.Background(), job)
	require.NoError(t, err)

	require.True(t, proc.Tick(context.Background()))
	assert.Zero(t, jobs.Len())
	assert.Equal(t, 1.0, testutil.ToFloat64(
		m.JobsProcessed.WithLabelValues(string(model.JobBookingConfirmation), metrics.OutcomeError)))
}

func TestTick_PartialFanOutRetriesOnlyFailures(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 3)
	h.notifier.unreached["down@example.com"] = true
	h.push(t, model.JobEventUpdateNotification, model.EventUpdatePayload{
		EventID:       "e-1",
		EventTitle:    "Go Meetup",
		CustomerCount: 3,
		Customers:     []string{"a@example.com", "down@example.com", "b@example.com"},
		UpdatedFields: []string{"price"},
	})

	require.True(t, h.proc.Tick(ctx))
	assert.Len(t, h.notifier.Sent(), 2)

	requeued := h.jobs.Snapshot()
	require.Len(t, requeued, 1)

	var payload model.EventUpdatePayload
	require.NoError(t, json.Unmarshal(requeued[0].Payload, &payload))
	assert.Equal(t, []string{"down@example.com"}, payload.Customers)
	assert.Equal(t, 1, payload.CustomerCount)

	// the customer comes back online
	h.notifier.mu.Lock()
	delete(h.notifier.unreached, "down@example.com")
	h.notifier.mu.Unlock()

	require.True(t, h.proc.Tick(ctx))
	assert.Len(t, h.notifier.Sent(), 3)
	assert.Zero(t, h.jobs.Len())
}

func TestTick_MalformedPayloadGoesStraightToDeadLetter(t *testing.T) {
	h := newHarness(t, 5)
	_, err := h.jobs.Enqueue(context.Background(), model.Job{
		ID:      "job_bad",
		Type:    model.JobBookingConfirmation,
		Payload: json.RawMessage(`"not an object"`),
	})
	require.NoError(t, err)

	require.True(t, h.proc.Tick(context.Background()))
	assert.Zero(t, h.jobs.Len())
	assert.Equal(t, 1, h.dead.Len())
	assert.Empty(t, h.notifier.Sent())
}

func TestTick_CorruptEntryGoesToDeadLetter(t *testing.T) {
	ctx := context.Background()
	srv := miniredis.RunT(t)
	jobs, err := redisqueue.Connect(ctx, srv.Addr(), "", 0, "event-booking:jobs")
	require.NoError(t, err)
	t.Cleanup(func() { _ = jobs.Close() })
	dead := jobs.DeadLetter()

	m := metrics.New()
	notifier := &fakeNotifier{unreached: map[string]bool{}}
	proc := NewProcessor(sl.Discard(), jobs, dead, notifier, m, config.Processor{Interval: time.Second, MaxAttempts: 3})

	truncated := `{"id":"job_1","type":"BOOKING_CONFIRMATION","data":{"booking_id":`
	_, err = srv.Lpush("event-booking:jobs", truncated)
	require.NoError(t, err)

	require.True(t, proc.Tick(ctx))

	n, err := jobs.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = dead.Len(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	items, err := srv.List("event-booking:jobs:dead")
	require.NoError(t, err)
	assert.Equal(t, []string{truncated}, items)

	assert.Empty(t, notifier.Sent())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.JobsProcessed.WithLabelValues(corruptJobType, metrics.OutcomeDeadLetter)))

	// the loop keeps going
	assert.False(t, proc.Tick(ctx))
}

func TestTick_CorruptEntryWithoutRawDeadLetter(t *testing.T) {
	ctx := context.Background()
	srv := miniredis.RunT(t)
	jobs, err := redisqueue.Connect(ctx, srv.Addr(), "", 0, "event-booking:jobs")
	require.NoError(t, err)
	t.Cleanup(func() { _ = jobs.Close() })

	m := metrics.New()
	proc := NewProcessor(sl.Discard(), jobs, queue.NewMemory(), &fakeNotifier{}, m, config.Processor{Interval: time.Second, MaxAttempts: 3})

	_, err = srv.Lpush("event-booking:jobs", "garbage")
	require.NoError(t, err)

	require.True(t, proc.Tick(ctx))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.JobsProcessed.WithLabelValues(corruptJobType, metrics.OutcomeError)))
}

func TestStartStop(t *testing.T) {
	h := newHarness(t, 3)
	for i := 0; i < 3; i++ {
		h.push(t, model.JobBookingConfirmation, model.BookingConfirmationPayload{UserEmail: gofakeit.Email(), EventTitle: "x", Tickets: 1})
	}

	h.proc.Start(context.Background())
	assert.Eventually(t, func() bool {
		return len(h.notifier.Sent()) == 3
	}, 2*time.Second, 5*time.Millisecond)

	h.proc.Stop()
	// a second Stop is harmless
	h.proc.Stop()
}

func TestStart_StopsWithContext(t *testing.T) {
	h := newHarness(t, 3)
	ctx, cancel := context.WithCancel(context.Background())

	h.proc.Start(ctx)
	cancel()

	select {
	case <-h.proc.done:
	case <-time.After(time.Second):
		t.Fatal("processor did not stop after context cancellation")
	}
}

// End to end: a reservation produces one confirmation that the processor
// delivers exactly once.
func TestReservationConfirmationDeliveredOnce(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 3)

	store, err := sqlite.New(filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	svc := service.NewEventService(sl.Discard(), store, h.jobs, h.metrics)
	organizer := model.Principal{ID: "org-1", Role: model.RoleOrganizer}
	event, err := svc.CreateEvent(ctx, organizer, model.CreateEventRequest{
		Title: "Go Meetup", Date: time.Now().Add(24 * time.Hour), Location: "Berlin", Capacity: 10, Price: 20,
	})
	require.NoError(t, err)

	customer := model.Principal{ID: "cust-a", Email: "a@example.com", Role: model.RoleCustomer}
	booking, err := svc.ReserveTickets(ctx, customer, model.ReserveRequest{EventID: event.ID, Tickets: 3})
	require.NoError(t, err)

	_, err = svc.ReserveTickets(ctx, model.Principal{ID: "cust-b"}, model.ReserveRequest{EventID: event.ID, Tickets: 8})
	require.ErrorIs(t, err, service.ErrConflict)

	_, err = svc.CancelBooking(ctx, customer.ID, booking.ID)
	require.NoError(t, err)

	require.True(t, h.proc.Tick(ctx))
	assert.False(t, h.proc.Tick(ctx))

	sent := h.notifier.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "a@example.com", sent[0].Recipient)
	assert.Contains(t, sent[0].Body, "60.00")
}
