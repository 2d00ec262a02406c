// Package observability provides Prometheus metrics functionality for monitoring fragring.
// Sentry error telemetry is handled in the telemetry package.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tphakala/fragring/internal/errors"
	"github.com/tphakala/fragring/internal/observability/metrics"
)

// Metrics holds all the metric collectors for the application.
type Metrics struct {
	registry   *prometheus.Registry
	RingBuffer *metrics.RingBufferMetrics
	Drift      *metrics.DriftMetrics
}

// NewMetrics creates a new registry with all collectors registered.
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	ringMetrics, err := metrics.NewRingBufferMetrics(registry)
	if err != nil {
		return nil, errors.New(err).
			Component("observability").
			Category(errors.CategorySystem).
			Context("collector", "ringbuf").
			Build()
	}

	driftMetrics, err := metrics.NewDriftMetrics(registry)
	if err != nil {
		return nil, errors.New(err).
			Component("observability").
			Category(errors.CategorySystem).
			Context("collector", "drift").
			Build()
	}

	return &Metrics{
		registry:   registry,
		RingBuffer: ringMetrics,
		Drift:      driftMetrics,
	}, nil
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RegisterHandlers registers the metrics endpoint with the provided http.ServeMux.
func (m *Metrics) RegisterHandlers(mux *http.ServeMux) {
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorHandling: promhttp.HTTPErrorOnError,
	}))
}
