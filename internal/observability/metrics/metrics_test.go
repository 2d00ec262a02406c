package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingBufferMetrics(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	m, err := NewRingBufferMetrics(registry)
	require.NoError(t, err)

	m.RecordOverrun("capture", 904)
	m.RecordOverrun("capture", 96)
	m.RecordUnderrun("capture", 10)
	m.RecordResize("capture", DirectionGrow, 8192, 8)

	assert.InDelta(t, 2, testutil.ToFloat64(m.overruns.WithLabelValues("capture")), 0)
	assert.InDelta(t, 1000, testutil.ToFloat64(m.droppedBytes.WithLabelValues("capture")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.underruns.WithLabelValues("capture")), 0)
	assert.InDelta(t, 10, testutil.ToFloat64(m.missingBytes.WithLabelValues("capture")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.resizes.WithLabelValues("capture", DirectionGrow)), 0)
	assert.InDelta(t, 8192, testutil.ToFloat64(m.capacityBytes.WithLabelValues("capture")), 0)
	assert.InDelta(t, 8, testutil.ToFloat64(m.chunks.WithLabelValues("capture")), 0)

	m.Forget("capture")
	assert.Equal(t, 0, testutil.CollectAndCount(m, "fragring_buffer_overruns_total"))
	assert.Equal(t, 0, testutil.CollectAndCount(m, "fragring_buffer_capacity_bytes"))
}

func TestRingBufferMetricsDoubleRegister(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	_, err := NewRingBufferMetrics(registry)
	require.NoError(t, err)
	m, err := NewRingBufferMetrics(registry)
	require.Error(t, err)
	assert.Nil(t, m)
}

func TestDriftMetrics(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	m, err := NewDriftMetrics(registry)
	require.NoError(t, err)

	m.RecordPending("jitter", -1250)
	m.RecordPublish("jitter", -1250, -3000)
	m.RecordAdjustment("jitter", 20)
	m.RecordAdjustment("jitter", -20)
	m.RecordAdjustment("jitter", -20)

	assert.InDelta(t, -1250, testutil.ToFloat64(m.pendingDrift.WithLabelValues("jitter")), 0)
	assert.InDelta(t, -3000, testutil.ToFloat64(m.accumulatedDrift.WithLabelValues("jitter")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.publications.WithLabelValues("jitter")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.adjustments.WithLabelValues("jitter", DirectionFaster)), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.adjustments.WithLabelValues("jitter", DirectionSlower)), 0)
	assert.InDelta(t, 60, testutil.ToFloat64(m.adjustedMicros.WithLabelValues("jitter")), 0)
}
