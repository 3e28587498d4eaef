// Package metrics exposes prometheus collectors for model traffic, retries
// and document outcomes.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/papercomputeco/ligandx/pkg/prompter"
)

const namespace = "ligandx"

// Metrics owns a private registry so tests and multiple runners never
// collide on the default one.
type Metrics struct {
	registry *prometheus.Registry

	requests  *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	retries   *prometheus.CounterVec
	documents *prometheus.CounterVec
}

// Option configures New.
type Option func(*Metrics)

// WithRuntimeCollectors registers the Go and process collectors.
func WithRuntimeCollectors() Option {
	return func(m *Metrics) {
		m.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{Namespace: namespace}),
		)
	}
}

// New registers every collector on a fresh registry.
func New(opts ...Option) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "Model requests by provider and outcome.",
		}, []string{"provider", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_request_duration_seconds",
			Help:      "Model request latency.",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"provider"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retries_total",
			Help:      "Retries by kind.",
		}, []string{"kind"}),
		documents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_total",
			Help:      "Processed documents by status.",
		}, []string{"status"}),
	}
	m.registry.MustRegister(m.requests, m.latency, m.retries, m.documents)

	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ObserveRequest implements prompter.Observer.
func (m *Metrics) ObserveRequest(provider, outcome string, elapsed time.Duration) {
	m.requests.WithLabelValues(provider, outcome).Inc()
	if outcome != prompter.OutcomeCached {
		m.latency.WithLabelValues(provider).Observe(elapsed.Seconds())
	}
}

// ObserveRetry implements prompter.Observer.
func (m *Metrics) ObserveRetry(kind string) {
	m.retries.WithLabelValues(kind).Inc()
}

// ObserveDocument counts a finished document.
func (m *Metrics) ObserveDocument(status string) {
	m.documents.WithLabelValues(status).Inc()
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

var _ prompter.Observer = (*Metrics)(nil)
