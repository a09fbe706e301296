// Package prometheus exposes the service's operational metrics on a private
// registry: classification outcomes and latency for the engine, request
// counts and latency for the HTTP layer.
package prometheus

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/turtacn/tariffwise/pkg/types/classify"
)

const namespace = "tariffwise"

// Metrics holds every collector the service registers. It implements
// engine.Metrics and backs the HTTP metrics middleware.
type Metrics struct {
	registry *prometheus.Registry

	classificationsTotal   *prometheus.CounterVec
	classificationDuration *prometheus.HistogramVec
	retrievalCandidates    prometheus.Histogram

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// NewMetrics builds and registers all collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)

	m := &Metrics{
		registry: registry,
		classificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classifications_total",
			Help:      "Terminal classifications by decision path and outcome.",
		}, []string{"path", "outcome"}),
		classificationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "classification_duration_seconds",
			Help:      "Wall time from request to terminal outcome, by decision path.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"path"}),
		retrievalCandidates: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retrieval_candidates",
			Help:      "Number of merged candidates produced per retrieval.",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 35, 50},
		}),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route, and status.",
		}, []string{"method", "route", "status"}),
		httpRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and route.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"method", "route"}),
	}
	registry.MustRegister(
		m.classificationsTotal,
		m.classificationDuration,
		m.retrievalCandidates,
		m.httpRequestsTotal,
		m.httpRequestDuration,
	)
	return m
}

// ObserveClassification records one terminal classification.
func (m *Metrics) ObserveClassification(path string, outcome classify.OutcomeType, elapsed time.Duration) {
	m.classificationsTotal.WithLabelValues(path, string(outcome)).Inc()
	m.classificationDuration.WithLabelValues(path).Observe(elapsed.Seconds())
}

// ObserveRetrieval records the merged candidate count of one retrieval.
func (m *Metrics) ObserveRetrieval(candidates int) {
	m.retrievalCandidates.Observe(float64(candidates))
}

// ObserveHTTPRequest records one served request. Route is the registered
// pattern, not the raw path, to keep cardinality bounded.
func (m *Metrics) ObserveHTTPRequest(method, route string, status int, elapsed time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// Handler serves the scrape endpoint for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
