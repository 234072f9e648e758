// Package metrics exposes Prometheus metrics for batch imports, logins and
// HTTP traffic.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/JonMunkholm/portal/internal/core"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "portal"

// Batch outcomes.
const (
	OutcomeCommitted = "committed"
	OutcomeDryRun    = "dry_run"
	OutcomeRejected  = "rejected"
	OutcomeBusy      = "busy"
	OutcomeFailed    = "failed"
)

// Metrics holds the portal's collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	batches         *prometheus.CounterVec
	rows            *prometheus.CounterVec
	studentsCreated prometheus.Counter
	remaps          prometheus.Counter
	batchDuration   prometheus.Histogram
	logins          *prometheus.CounterVec
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// New creates and registers the portal metrics along with the Go runtime
// and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_total",
			Help:      "Batch import attempts by outcome.",
		}, []string{"outcome"}),
		rows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_rows_total",
			Help:      "Data rows seen in committed batches, by result.",
		}, []string{"result"}),
		studentsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "students_created_total",
			Help:      "Student identities created by committed batches.",
		}),
		remaps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "student_id_remaps_total",
			Help:      "Claimed student ids reassigned because a non-student held them.",
		}),
		batchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_duration_seconds",
			Help:      "Time to read and reconcile a batch.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logins_total",
			Help:      "Login attempts by result.",
		}, []string{"result"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method and status code.",
		}, []string{"method", "code"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.batches,
		m.rows,
		m.studentsCreated,
		m.remaps,
		m.batchDuration,
		m.logins,
		m.requests,
		m.requestDuration,
	)
	return m
}

// Registry returns the registry the metrics are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveBatch implements core.Observer.
func (m *Metrics) ObserveBatch(summary *core.Summary, err error) {
	outcome := BatchOutcome(summary, err)
	m.batches.WithLabelValues(outcome).Inc()

	if summary == nil {
		return
	}
	m.batchDuration.Observe(summary.Duration.Seconds())
	if outcome != OutcomeCommitted {
		return
	}
	m.rows.WithLabelValues("processed").Add(float64(summary.Processed))
	m.rows.WithLabelValues("error").Add(float64(summary.Errors))
	m.studentsCreated.Add(float64(len(summary.CreatedStudents)))
	m.remaps.Add(float64(len(summary.Remaps)))
}

// BatchOutcome classifies a batch attempt.
func BatchOutcome(summary *core.Summary, err error) string {
	switch {
	case err == nil && summary != nil && summary.DryRun:
		return OutcomeDryRun
	case err == nil:
		return OutcomeCommitted
	case errors.Is(err, core.ErrTooManyUploads):
		return OutcomeBusy
	case errors.Is(err, core.ErrMalformedBatch),
		errors.Is(err, core.ErrEmptyFile),
		errors.Is(err, core.ErrFileTooLarge):
		return OutcomeRejected
	default:
		return OutcomeFailed
	}
}

// ObserveLogin counts a login attempt.
func (m *Metrics) ObserveLogin(ok bool) {
	result := "failure"
	if ok {
		result = "success"
	}
	m.logins.WithLabelValues(result).Inc()
}

// ObserveRequest records one served HTTP request.
func (m *Metrics) ObserveRequest(method string, status int, elapsed time.Duration) {
	m.requests.WithLabelValues(method, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}
