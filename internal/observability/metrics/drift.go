package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Threshold adjustment directions used as label values.
const (
	DirectionFaster = "faster"
	DirectionSlower = "slower"
)

// DriftMetrics contains Prometheus metrics for drift correction.
// It satisfies drift.Recorder.
type DriftMetrics struct {
	pendingDrift     *prometheus.GaugeVec
	accumulatedDrift *prometheus.GaugeVec
	publications     *prometheus.CounterVec
	adjustments      *prometheus.CounterVec
	adjustedMicros   *prometheus.CounterVec

	collectors []prometheus.Collector
}

// NewDriftMetrics creates and registers drift metrics
func NewDriftMetrics(registry prometheus.Registerer) (*DriftMetrics, error) {
	m := &DriftMetrics{}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *DriftMetrics) initMetrics() {
	m.pendingDrift = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fragring_drift_pending_microseconds",
			Help: "Drift measured since the last baseline reset",
		},
		[]string{"controller"},
	)

	m.accumulatedDrift = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fragring_drift_accumulated_microseconds",
			Help: "Sum of drift published to the peer",
		},
		[]string{"controller"},
	)

	m.publications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fragring_drift_publications_total",
			Help: "Total drift values published to the peer channel",
		},
		[]string{"controller"},
	)

	m.adjustments = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fragring_drift_threshold_adjustments_total",
			Help: "Total bang-bang clock adjustments by direction",
		},
		[]string{"controller", "direction"},
	)

	m.adjustedMicros = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fragring_drift_adjusted_microseconds_total",
			Help: "Absolute clock adjustment emitted by threshold adjusters",
		},
		[]string{"controller"},
	)

	m.collectors = []prometheus.Collector{
		m.pendingDrift,
		m.accumulatedDrift,
		m.publications,
		m.adjustments,
		m.adjustedMicros,
	}
}

// Describe implements the Collector interface
func (m *DriftMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, collector := range m.collectors {
		collector.Describe(ch)
	}
}

// Collect implements the Collector interface
func (m *DriftMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, collector := range m.collectors {
		collector.Collect(ch)
	}
}

// RecordPending sets the drift measured by the latest evaluation.
func (m *DriftMetrics) RecordPending(controller string, micros int64) {
	m.pendingDrift.WithLabelValues(controller).Set(float64(micros))
}

// RecordPublish records a value published to the peer and the running total.
func (m *DriftMetrics) RecordPublish(controller string, _, totalMicros int64) {
	m.publications.WithLabelValues(controller).Inc()
	m.accumulatedDrift.WithLabelValues(controller).Set(float64(totalMicros))
}

// RecordAdjustment records one threshold-triggered clock adjustment.
func (m *DriftMetrics) RecordAdjustment(controller string, micros int64) {
	direction := DirectionFaster
	if micros < 0 {
		direction = DirectionSlower
		micros = -micros
	}
	m.adjustments.WithLabelValues(controller, direction).Inc()
	m.adjustedMicros.WithLabelValues(controller).Add(float64(micros))
}
