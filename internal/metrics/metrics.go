// Package metrics owns the Prometheus registry of the service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome label values.
const (
	OutcomeSuccess    = "success"
	OutcomeConflict   = "conflict"
	OutcomeRejected   = "rejected"
	OutcomeError      = "error"
	OutcomeRequeued   = "requeued"
	OutcomeDeadLetter = "dead_letter"
	OutcomeDropped    = "dropped"
)

type Metrics struct {
	reg *prometheus.Registry

	Bookings        *prometheus.CounterVec
	Cancellations   *prometheus.CounterVec
	EnqueueFailures *prometheus.CounterVec
	JobsProcessed   *prometheus.CounterVec
	JobDuration     *prometheus.HistogramVec
}

// New builds a fresh registry with the service collectors plus the Go runtime
// and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		reg: reg,
		Bookings: f.NewCounterVec(prometheus.CounterOpts{
			Name: "eventbooking_reservations_total",
			Help: "Reservation attempts by outcome.",
		}, []string{"outcome"}),
		Cancellations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "eventbooking_cancellations_total",
			Help: "Cancellation attempts by outcome.",
		}, []string{"outcome"}),
		EnqueueFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "eventbooking_job_enqueue_failures_total",
			Help: "Jobs that could not be enqueued after their transaction committed.",
		}, []string{"type"}),
		JobsProcessed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "eventbooking_jobs_processed_total",
			Help: "Jobs taken off the queue by type and outcome.",
		}, []string{"type", "outcome"}),
		JobDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "eventbooking_job_duration_seconds",
			Help:    "Time spent processing a single job.",
			Buckets: []float64{0.001, 0.01, 0.1, 0.3, 0.6, 1, 3, 6},
		}, []string{"type"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{
		// Opt into OpenMetrics e.g. to support exemplars.
		EnableOpenMetrics: true,
	})
}
