package graph

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides Prometheus-compatible metrics collection for engine
// execution monitoring in production environments.
//
// Metrics exposed (all namespaced with "convograph_"):
//
// 1. step_latency_ms (histogram): Step execution duration in milliseconds.
// Labels: step_id, status (success/error).
// Buckets: [1, 5, 10, 50, 100, 500, 1000, 5000, 10000].
// Use: P50/P95/P99 latency analysis per step.
//
// 2. steps_total (counter): Cumulative committed steps across all threads.
// Labels: step_id.
// Use: Identify hot paths through the workflow graph.
//
// 3. suspensions_total (counter): Suspensions raised, by suspension type.
// Labels: type (confirm/input).
// Use: Track how often conversations wait on the caller.
//
// 4. resumes_total (counter): Resume invocations received.
// Use: Paired with suspensions_total to spot abandoned suspensions.
//
// Usage:
//
//	registry := prometheus.NewRegistry()
//	metrics := NewMetrics(registry)
//	engine := New(g, reducer, st, nil, Options{Metrics: metrics})
//	http.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
//
// Thread-safe: all methods delegate to prometheus collectors.
type Metrics struct {
	stepLatency *prometheus.HistogramVec
	steps       *prometheus.CounterVec
	suspensions *prometheus.CounterVec
	resumes     prometheus.Counter
}

// NewMetrics creates and registers all engine metrics with the provided
// Prometheus registry. A nil registry falls back to the global default
// registerer; a dedicated registry is recommended for isolation.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		stepLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "convograph",
			Name:      "step_latency_ms",
			Help:      "Step execution duration in milliseconds",
			Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000},
		}, []string{"step_id", "status"}),
		steps: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "convograph",
			Name:      "steps_total",
			Help:      "Cumulative count of committed steps across all threads",
		}, []string{"step_id"}),
		suspensions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "convograph",
			Name:      "suspensions_total",
			Help:      "Suspensions raised by steps, by suspension type",
		}, []string{"type"}),
		resumes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "convograph",
			Name:      "resumes_total",
			Help:      "Resume invocations received",
		}),
	}
}

// ObserveStep records one step execution: its latency and, when the step
// committed, the steps_total increment.
func (m *Metrics) ObserveStep(stepID string, latency time.Duration, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	m.stepLatency.WithLabelValues(stepID, status).Observe(float64(latency.Milliseconds()))
	if success {
		m.steps.WithLabelValues(stepID).Inc()
	}
}

// SuspensionRaised records a step suspending with the given suspension type.
func (m *Metrics) SuspensionRaised(suspensionType string) {
	m.suspensions.WithLabelValues(suspensionType).Inc()
}

// ResumeStarted records one resume invocation.
func (m *Metrics) ResumeStarted() {
	m.resumes.Inc()
}
