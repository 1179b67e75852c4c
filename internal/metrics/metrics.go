// Package metrics records compile and execution counters for every store.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/roach88/polystore/internal/queryir"
)

// Outcome labels.
const (
	OutcomeOK          = "ok"
	OutcomeUnsupported = "unsupported"
	OutcomeError       = "error"
)

// Metrics holds the collectors registered for one process.
type Metrics struct {
	// CompileTotal counts compilations by backend and outcome.
	CompileTotal *prometheus.CounterVec
	// OperationsTotal counts manager operations (insert, select, delete).
	OperationsTotal *prometheus.CounterVec
	// OperationDuration is the latency of manager operations.
	OperationDuration *prometheus.HistogramVec
}

// New registers the collectors with reg. A nil reg uses the default
// registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		CompileTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "polystore_compile_total",
				Help: "Total number of query compilations",
			},
			[]string{"backend", "outcome"},
		),
		OperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "polystore_operations_total",
				Help: "Total number of store operations",
			},
			[]string{"backend", "op", "outcome"},
		),
		OperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "polystore_operation_duration_seconds",
				Help:    "Store operation latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"backend", "op"},
		),
	}
}

// Compiled records one compilation.
func (m *Metrics) Compiled(backend, outcome string) {
	if m == nil {
		return
	}
	m.CompileTotal.WithLabelValues(backend, outcome).Inc()
}

// Observe records one manager operation that started at start.
func (m *Metrics) Observe(backend, op, outcome string, start time.Time) {
	if m == nil {
		return
	}
	m.OperationsTotal.WithLabelValues(backend, op, outcome).Inc()
	m.OperationDuration.WithLabelValues(backend, op).Observe(time.Since(start).Seconds())
}

// Track returns a function that records op when called with the
// operation's error:
//
//	done := m.Track("sqlite", "select")
//	defer func() { done(err) }()
func (m *Metrics) Track(backend, op string) func(error) {
	start := time.Now()
	return func(err error) {
		m.Observe(backend, op, Outcome(err), start)
	}
}

// Outcome classifies err for the outcome label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case queryir.IsUnsupported(err):
		return OutcomeUnsupported
	}
	return OutcomeError
}
