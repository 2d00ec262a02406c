package drift

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/fragring/internal/logger"
	"github.com/tphakala/fragring/internal/observability/metrics"
)

type fakeTime struct{ t time.Time }

func (f *fakeTime) now() time.Time {
	return f.t
}

func (f *fakeTime) advance(d time.Duration) {
	f.t = f.t.Add(d)
}

func quiet() Option {
	return WithLogger(logger.NewSlogLogger(&bytes.Buffer{}, logger.LogLevelError))
}

// 48 kHz stereo 16-bit
const bytesPerSecond = 192000

func newController(t *testing.T, clock *fakeTime, opts ...Option) *Controller {
	t.Helper()
	opts = append([]Option{WithNow(clock.now), quiet()}, opts...)
	c, err := NewController(Config{
		Name:               "test",
		SampleRate:         48000,
		BytesPerSecond:     bytesPerSecond,
		SettlementInterval: 2 * time.Second,
		ToleranceSamples:   48,
	}, opts...)
	require.NoError(t, err)
	return c
}

func TestControllerPhases(t *testing.T) {
	t.Parallel()

	clock := &fakeTime{t: time.Unix(1000, 0)}
	c := newController(t, clock)
	assert.Equal(t, int64(1000), c.ToleranceUS())

	_, err := c.Evaluate()
	require.ErrorIs(t, err, ErrNotReady)
	assert.Equal(t, StateIdle, c.State())

	c.OnWrite(1920)
	assert.Equal(t, StatePriming, c.State())

	clock.advance(time.Second)
	got, err := c.Evaluate()
	require.NoError(t, err)
	assert.Zero(t, got)
	assert.Equal(t, StatePriming, c.State())

	clock.advance(time.Second)
	_, err = c.Evaluate()
	require.NoError(t, err)
	assert.Equal(t, StateSettled, c.State())
	assert.Equal(t, clock.t, c.Snapshot().LastAdjustment)

	c.Reset()
	assert.Equal(t, StateIdle, c.State())
	_, err = c.Evaluate()
	require.ErrorIs(t, err, ErrNotReady)
}

func settle(t *testing.T, c *Controller, clock *fakeTime) {
	t.Helper()
	c.OnWrite(1)
	clock.advance(2 * time.Second)
	_, err := c.Evaluate()
	require.NoError(t, err)
	require.Equal(t, StateSettled, c.State())
}

func TestControllerPublishesBeyondTolerance(t *testing.T) {
	t.Parallel()

	clock := &fakeTime{t: time.Unix(0, 0)}
	peer := NewPeerSync()
	registry := prometheus.NewRegistry()
	m, err := metrics.NewDriftMetrics(registry)
	require.NoError(t, err)

	c := newController(t, clock, WithPeer(peer), WithRecorder(m))
	settle(t, c, clock)

	// One second of data over 1.002 s
	c.OnWrite(bytesPerSecond)
	clock.advance(time.Second + 2*time.Millisecond)
	got, err := c.Evaluate()
	require.NoError(t, err)
	assert.Equal(t, int64(2000), got)

	state := peer.Snapshot()
	assert.Equal(t, int64(2000), state.DriftUS)
	assert.Equal(t, uint64(1), state.Updates)
	assert.Equal(t, clock.t, state.Updated)
	select {
	case <-peer.Notify():
	default:
		t.Fatal("peer was not notified")
	}

	snap := c.Snapshot()
	assert.Equal(t, int64(2000), snap.AccumulatedUS)
	assert.Zero(t, snap.BytesSince)

	// Within tolerance: nothing is published and the baseline is kept
	c.OnWrite(bytesPerSecond)
	clock.advance(time.Second + 500*time.Microsecond)
	got, err = c.Evaluate()
	require.NoError(t, err)
	assert.Equal(t, int64(500), got)
	assert.Equal(t, uint64(1), peer.Snapshot().Updates)

	c.OnWrite(bytesPerSecond)
	clock.advance(time.Second + 600*time.Microsecond)
	got, err = c.Evaluate()
	require.NoError(t, err)
	assert.Equal(t, int64(1100), got)

	state = peer.Snapshot()
	assert.Equal(t, int64(1100), state.DriftUS)
	assert.Equal(t, int64(3100), state.TotalUS)
	assert.Equal(t, int64(3100), c.Snapshot().TotalUS)

	expected := `
# HELP fragring_drift_publications_total Total drift values published to the peer channel
# TYPE fragring_drift_publications_total counter
fragring_drift_publications_total{controller="test"} 2
# HELP fragring_drift_accumulated_microseconds Sum of drift published to the peer
# TYPE fragring_drift_accumulated_microseconds gauge
fragring_drift_accumulated_microseconds{controller="test"} 3100
`
	require.NoError(t, testutil.CollectAndCompare(m, strings.NewReader(expected),
		"fragring_drift_publications_total", "fragring_drift_accumulated_microseconds"))
}

func TestControllerNegativeDrift(t *testing.T) {
	t.Parallel()

	clock := &fakeTime{t: time.Unix(0, 0)}
	peer := NewPeerSync()
	c := newController(t, clock, WithPeer(peer))
	settle(t, c, clock)

	c.OnWrite(bytesPerSecond + bytesPerSecond/100)
	clock.advance(time.Second)
	got, err := c.Evaluate()
	require.NoError(t, err)
	assert.Equal(t, int64(-10000), got)
	assert.Equal(t, int64(-10000), peer.Snapshot().DriftUS)
}

func TestControllerWithoutPeerAccumulates(t *testing.T) {
	t.Parallel()

	clock := &fakeTime{t: time.Unix(0, 0)}
	c := newController(t, clock)
	settle(t, c, clock)

	for i := 1; i <= 3; i++ {
		c.OnWrite(bytesPerSecond)
		clock.advance(time.Second + 5*time.Millisecond)
		got, err := c.Evaluate()
		require.NoError(t, err)
		assert.Equal(t, int64(i*5000), got)
	}
	assert.Zero(t, c.Snapshot().TotalUS)
}

func TestControllerSetFormat(t *testing.T) {
	t.Parallel()

	clock := &fakeTime{t: time.Unix(0, 0)}
	c := newController(t, clock)
	settle(t, c, clock)

	c.OnWrite(1000)
	require.NoError(t, c.SetFormat(16000, 64000))
	assert.Zero(t, c.Snapshot().BytesSince)
	assert.Equal(t, int64(3000), c.ToleranceUS())

	require.Error(t, c.SetFormat(0, 64000))
}

func TestControllerConfigValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  Config
	}{
		{"zero sample rate", Config{BytesPerSecond: 1}},
		{"zero byte rate", Config{SampleRate: 1}},
		{"negative settlement", Config{SampleRate: 1, BytesPerSecond: 1, SettlementInterval: -1}},
		{"negative tolerance", Config{SampleRate: 1, BytesPerSecond: 1, ToleranceSamples: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := NewController(tt.cfg)
			require.Error(t, err)
		})
	}
}

type fill struct {
	unread int
	primed bool
}

func (f *fill) UnreadBytes() int { return f.unread }
func (f *fill) Primed() bool     { return f.primed }

func thresholdConfig(side Side, holdOff int) ThresholdConfig {
	return ThresholdConfig{
		Name:            "endpoint",
		FrameSize:       1920,
		BytesPerSecond:  bytesPerSecond,
		JitterAllowance: 10 * time.Millisecond,
		StepUS:          20,
		HoldOffCycles:   holdOff,
		Side:            side,
	}
}

func TestThresholdAdjusterSigns(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		side Side
		fill int
		want int64
	}{
		{"consumer above upper speeds up", SideConsumer, 6000, 20},
		{"consumer below lower slows down", SideConsumer, 1000, -20},
		{"consumer inside band", SideConsumer, 3000, 0},
		{"consumer at upper edge", SideConsumer, 5760, 0},
		{"consumer at lower edge", SideConsumer, 1920, 0},
		{"producer above upper slows down", SideProducer, 6000, -20},
		{"producer below lower speeds up", SideProducer, 1000, 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var applied []int64
			a, err := NewThresholdAdjuster(thresholdConfig(tt.side, 0),
				ClockFunc(func(us int64) { applied = append(applied, us) }), quiet())
			require.NoError(t, err)

			lower, upper := a.Thresholds()
			assert.Equal(t, 1920, lower)
			assert.Equal(t, 5760, upper)

			got, err := a.Update(&fill{unread: tt.fill, primed: true})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			if tt.want == 0 {
				assert.Empty(t, applied)
			} else {
				assert.Equal(t, []int64{tt.want}, applied)
			}
		})
	}
}

func TestThresholdAdjusterHoldOff(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	m, err := metrics.NewDriftMetrics(registry)
	require.NoError(t, err)

	a, err := NewThresholdAdjuster(thresholdConfig(SideConsumer, 2), nil, quiet(), WithRecorder(m))
	require.NoError(t, err)

	src := &fill{unread: 8000, primed: true}
	var got []int64
	for range 6 {
		adj, err := a.Update(src)
		require.NoError(t, err)
		got = append(got, adj)
	}
	assert.Equal(t, []int64{20, 0, 0, 20, 0, 0}, got)

	count, net := a.Adjustments()
	assert.Equal(t, uint64(2), count)
	assert.Equal(t, int64(40), net)

	assert.Equal(t, 1, testutil.CollectAndCount(m, "fragring_drift_threshold_adjustments_total"))
	assert.InDelta(t, 40, counterValue(t, registry, "fragring_drift_adjusted_microseconds_total"), 0)
}

func counterValue(t *testing.T, registry *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := registry.Gather()
	require.NoError(t, err)
	var total float64
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			total += metric.GetCounter().GetValue()
		}
	}
	return total
}

func TestThresholdAdjusterNotReady(t *testing.T) {
	t.Parallel()

	a, err := NewThresholdAdjuster(thresholdConfig(SideConsumer, 0), nil, quiet())
	require.NoError(t, err)

	_, err = a.Update(&fill{unread: 0, primed: false})
	require.ErrorIs(t, err, ErrNotReady)
	count, _ := a.Adjustments()
	assert.Zero(t, count)
}

func TestThresholdAdjusterRecomputes(t *testing.T) {
	t.Parallel()

	a, err := NewThresholdAdjuster(thresholdConfig(SideConsumer, 0), nil, quiet())
	require.NoError(t, err)

	require.NoError(t, a.SetJitterAllowance(20*time.Millisecond))
	lower, upper := a.Thresholds()
	assert.Equal(t, 1920, lower)
	assert.Equal(t, 9600, upper)

	require.NoError(t, a.SetFormat(960, 96000))
	lower, upper = a.Thresholds()
	assert.Equal(t, 960, lower)
	assert.Equal(t, 4800, upper)

	require.Error(t, a.SetJitterAllowance(-time.Millisecond))
	require.Error(t, a.SetFormat(0, 96000))
	lower, upper = a.Thresholds()
	assert.Equal(t, 960, lower)
	assert.Equal(t, 4800, upper)
}

func TestParseSide(t *testing.T) {
	t.Parallel()

	s, err := ParseSide("Producer")
	require.NoError(t, err)
	assert.Equal(t, SideProducer, s)

	s, err = ParseSide("")
	require.NoError(t, err)
	assert.Equal(t, SideConsumer, s)

	_, err = ParseSide("middle")
	require.Error(t, err)
}

func TestPeerSyncCoalescesNotifications(t *testing.T) {
	t.Parallel()

	p := NewPeerSync()
	at := time.Unix(5, 0)
	p.Publish(100, time.Second, at)
	p.Publish(-40, 2*time.Second, at.Add(time.Second))

	<-p.Notify()
	select {
	case <-p.Notify():
		t.Fatal("notifications should coalesce")
	default:
	}

	state := p.Snapshot()
	assert.Equal(t, int64(-40), state.DriftUS)
	assert.Equal(t, 2*time.Second, state.Window)
	assert.Equal(t, int64(60), state.TotalUS)
	assert.Equal(t, uint64(2), state.Updates)
}
