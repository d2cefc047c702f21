package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Trigger outcomes
const (
	OutcomeAccepted     = "accepted"
	OutcomeDeduped      = "deduped"
	OutcomeInvalidKey   = "invalid_key"
	OutcomeUnauthorized = "unauthorized"
)

// Metrics holds the portal collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	triggersTotal      *prometheus.CounterVec
	jobsCompletedTotal *prometheus.CounterVec
	jobsInProgress     prometheus.Gauge
	jobDuration        *prometheus.HistogramVec
}

// New registers the portal collectors on reg. queueLength is sampled on every
// scrape to report the number of waiting jobs.
func New(reg prometheus.Registerer, queueLength func() int) *Metrics {
	factory := promauto.With(reg)

	m := &Metrics{
		triggersTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portal_triggers_total",
				Help: "Total number of portal triggers by outcome",
			},
			[]string{"outcome"}, // accepted, deduped, invalid_key, unauthorized
		),
		jobsCompletedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portal_jobs_completed_total",
				Help: "Total number of jobs that reached a terminal status",
			},
			[]string{"action", "status"},
		),
		jobsInProgress: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "portal_jobs_in_progress",
				Help: "Current number of jobs being executed",
			},
		),
		// Buckets: 10ms .. ~82s
		jobDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "portal_job_duration_seconds",
				Help:    "Action execution duration in seconds",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
			},
			[]string{"action"},
		),
	}

	if queueLength != nil {
		factory.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: "portal_queue_length",
				Help: "Current number of jobs waiting for a worker",
			},
			func() float64 { return float64(queueLength()) },
		)
	}

	return m
}

// Trigger counts one trigger outcome
func (m *Metrics) Trigger(outcome string) {
	if m == nil {
		return
	}
	m.triggersTotal.WithLabelValues(outcome).Inc()
}

// JobStarted marks a job as running
func (m *Metrics) JobStarted() {
	if m == nil {
		return
	}
	m.jobsInProgress.Inc()
}

// JobFinished records a terminal status and the time spent executing
func (m *Metrics) JobFinished(action, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.jobsInProgress.Dec()
	m.jobsCompletedTotal.WithLabelValues(action, status).Inc()
	m.jobDuration.WithLabelValues(action).Observe(elapsed.Seconds())
}
