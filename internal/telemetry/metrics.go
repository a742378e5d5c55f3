package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is the gateway's Prometheus metrics registry, built with
// promauto the way the teacher's telemetry.Metrics is, but scoped to the
// series §4.5 names explicitly rather than the teacher's LLM-specific
// series.
type Metrics struct {
	registry *prometheus.Registry

	RequestsTotal       *prometheus.CounterVec
	ResponseTime        *prometheus.HistogramVec
	CircuitBreakerState *prometheus.GaugeVec
	CircuitFailures     *prometheus.CounterVec
}

// NewMetrics constructs a Metrics registered against a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		RequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total requests handled by the gateway, labeled by route, method, and status code.",
		}, []string{"route", "method", "status_code"}),
		ResponseTime: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "api_response_time_seconds",
			Help:    "End-to-end request latency as observed by the gateway pipeline.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		}, []string{"route", "method"}),
		CircuitBreakerState: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Current circuit breaker state per service (0=closed, 1=open, 2=half_open).",
		}, []string{"service_id"}),
		CircuitFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "circuit_breaker_failures_total",
			Help: "Total failures recorded by a route's circuit breaker.",
		}, []string{"service_id", "error_type"}),
	}
}

// Handler exposes the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordRequest records a completed request's outcome and latency. It never
// returns an error; any internal issue is swallowed per §4.5/§7.
func (m *Metrics) RecordRequest(route, method, statusCode string, seconds float64) {
	m.RequestsTotal.WithLabelValues(route, method, statusCode).Inc()
	m.ResponseTime.WithLabelValues(route, method).Observe(seconds)
}

// SetBreakerState updates the gauge for a service's current breaker state.
func (m *Metrics) SetBreakerState(serviceID string, state int) {
	m.CircuitBreakerState.WithLabelValues(serviceID).Set(float64(state))
}

// RecordBreakerFailure increments the failure counter for a service under
// the given error kind (transport, timeout, status_5xx).
func (m *Metrics) RecordBreakerFailure(serviceID, errorType string) {
	m.CircuitFailures.WithLabelValues(serviceID, errorType).Inc()
}
