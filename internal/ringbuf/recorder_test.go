package ringbuf

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/fragring/internal/observability/metrics"
)

// gatherValue sums every sample of the named family that carries the label pair.
func gatherValue(t *testing.T, registry *prometheus.Registry, name, label, value string) (float64, bool) {
	t.Helper()

	families, err := registry.Gather()
	require.NoError(t, err)

	var (
		total float64
		found bool
	)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if !hasLabel(m, label, value) {
				continue
			}
			found = true
			switch mf.GetType() {
			case dto.MetricType_COUNTER:
				total += m.GetCounter().GetValue()
			case dto.MetricType_GAUGE:
				total += m.GetGauge().GetValue()
			}
		}
	}
	return total, found
}

func hasLabel(m *dto.Metric, name, value string) bool {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name && lp.GetValue() == value {
			return true
		}
	}
	return false
}

func TestBufferReportsToMetrics(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	m, err := metrics.NewRingBufferMetrics(registry)
	require.NoError(t, err)

	b, err := Create(1024, 256, WithName("capture"), WithRecorder(m), WithLogger(quietLogger()))
	require.NoError(t, err)

	v, ok := gatherValue(t, registry, "fragring_buffer_capacity_bytes", "buffer", "capture")
	require.True(t, ok)
	assert.InDelta(t, 1024, v, 0)

	w, err := b.RegisterWriter(0)
	require.NoError(t, err)
	r, err := b.RegisterReader(0)
	require.NoError(t, err)

	require.ErrorIs(t, w.Write(pattern(1500, 0)), ErrOverrun)
	v, _ = gatherValue(t, registry, "fragring_buffer_overruns_total", "buffer", "capture")
	assert.InDelta(t, 1, v, 0)
	v, _ = gatherValue(t, registry, "fragring_buffer_dropped_bytes_total", "buffer", "capture")
	assert.InDelta(t, 476, v, 0)

	_, err = r.Read(make([]byte, 1100))
	require.ErrorIs(t, err, ErrUnderrun)
	v, _ = gatherValue(t, registry, "fragring_buffer_missing_bytes_total", "buffer", "capture")
	assert.InDelta(t, 76, v, 0)

	require.NoError(t, r.RequestResize(2048))
	v, _ = gatherValue(t, registry, "fragring_buffer_capacity_bytes", "buffer", "capture")
	assert.InDelta(t, 2048, v, 0)
	v, _ = gatherValue(t, registry, "fragring_buffer_chunks", "buffer", "capture")
	assert.InDelta(t, 8, v, 0)

	require.NoError(t, r.RequestResize(0))
	v, _ = gatherValue(t, registry, "fragring_buffer_resizes_total", "buffer", "capture")
	assert.InDelta(t, 2, v, 0)

	require.NoError(t, b.Destroy())
	_, ok = gatherValue(t, registry, "fragring_buffer_capacity_bytes", "buffer", "capture")
	assert.False(t, ok)
}
