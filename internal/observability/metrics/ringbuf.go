// Package metrics provides Prometheus collectors for the buffering engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Resize directions used as label values.
const (
	DirectionGrow   = "grow"
	DirectionShrink = "shrink"
)

// RingBufferMetrics contains Prometheus metrics for ring buffer instances.
// It satisfies ringbuf.Recorder.
type RingBufferMetrics struct {
	overruns      *prometheus.CounterVec
	droppedBytes  *prometheus.CounterVec
	underruns     *prometheus.CounterVec
	missingBytes  *prometheus.CounterVec
	resizes       *prometheus.CounterVec
	capacityBytes *prometheus.GaugeVec
	chunks        *prometheus.GaugeVec

	collectors []prometheus.Collector
}

// NewRingBufferMetrics creates and registers ring buffer metrics
func NewRingBufferMetrics(registry prometheus.Registerer) (*RingBufferMetrics, error) {
	m := &RingBufferMetrics{}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *RingBufferMetrics) initMetrics() {
	m.overruns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fragring_buffer_overruns_total",
			Help: "Total number of writes that force-advanced a reader",
		},
		[]string{"buffer"},
	)

	m.droppedBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fragring_buffer_dropped_bytes_total",
			Help: "Total unread bytes discarded by overruns",
		},
		[]string{"buffer"},
	)

	m.underruns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fragring_buffer_underruns_total",
			Help: "Total number of reads that asked for more than was buffered",
		},
		[]string{"buffer"},
	)

	m.missingBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fragring_buffer_missing_bytes_total",
			Help: "Total bytes requested but not available on underrun",
		},
		[]string{"buffer"},
	)

	m.resizes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fragring_buffer_resizes_total",
			Help: "Total capacity changes by direction",
		},
		[]string{"buffer", "direction"},
	)

	m.capacityBytes = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fragring_buffer_capacity_bytes",
			Help: "Current ring capacity in bytes",
		},
		[]string{"buffer"},
	)

	m.chunks = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fragring_buffer_chunks",
			Help: "Current number of linked chunks",
		},
		[]string{"buffer"},
	)

	m.collectors = []prometheus.Collector{
		m.overruns,
		m.droppedBytes,
		m.underruns,
		m.missingBytes,
		m.resizes,
		m.capacityBytes,
		m.chunks,
	}
}

// Describe implements the Collector interface
func (m *RingBufferMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, collector := range m.collectors {
		collector.Describe(ch)
	}
}

// Collect implements the Collector interface
func (m *RingBufferMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, collector := range m.collectors {
		collector.Collect(ch)
	}
}

// RecordOverrun records a reader being force-advanced.
func (m *RingBufferMetrics) RecordOverrun(buffer string, droppedBytes int) {
	m.overruns.WithLabelValues(buffer).Inc()
	m.droppedBytes.WithLabelValues(buffer).Add(float64(droppedBytes))
}

// RecordUnderrun records a short read.
func (m *RingBufferMetrics) RecordUnderrun(buffer string, missingBytes int) {
	m.underruns.WithLabelValues(buffer).Inc()
	m.missingBytes.WithLabelValues(buffer).Add(float64(missingBytes))
}

// RecordResize records a capacity change and the resulting layout.
func (m *RingBufferMetrics) RecordResize(buffer, direction string, capacityBytes, chunks int) {
	m.resizes.WithLabelValues(buffer, direction).Inc()
	m.RecordLayout(buffer, capacityBytes, chunks)
}

// RecordLayout sets the capacity and chunk gauges without counting a resize.
func (m *RingBufferMetrics) RecordLayout(buffer string, capacityBytes, chunks int) {
	m.capacityBytes.WithLabelValues(buffer).Set(float64(capacityBytes))
	m.chunks.WithLabelValues(buffer).Set(float64(chunks))
}

// Forget removes all series for a destroyed buffer.
func (m *RingBufferMetrics) Forget(buffer string) {
	labels := prometheus.Labels{"buffer": buffer}
	for _, vec := range []*prometheus.CounterVec{m.overruns, m.droppedBytes, m.underruns, m.missingBytes, m.resizes} {
		vec.DeletePartialMatch(labels)
	}
	m.capacityBytes.DeleteLabelValues(buffer)
	m.chunks.DeleteLabelValues(buffer)
}
