package simulate

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-audio/wav"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tphakala/fragring/internal/capture"
	"github.com/tphakala/fragring/internal/conf"
	"github.com/tphakala/fragring/internal/drift"
	"github.com/tphakala/fragring/internal/errors"
	"github.com/tphakala/fragring/internal/frame"
	"github.com/tphakala/fragring/internal/jitter"
	"github.com/tphakala/fragring/internal/logger"
	"github.com/tphakala/fragring/internal/observability/metrics"
	"github.com/tphakala/fragring/internal/ringbuf"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// 10 ms frames of 100 bytes, band [100, 500], capacity 700, drift
// published beyond 15 ms
func testConfig() Config {
	return Config{
		Jitter: jitter.Config{
			Name:               "sim",
			FrameSize:          100,
			BytesPerSecond:     10000,
			SampleRate:         5000,
			Policy:             frame.PolicyZeroPad,
			JitterAllowance:    20 * time.Millisecond,
			StepUS:             20,
			HoldOffCycles:      10,
			Side:               drift.SideConsumer,
			SettlementInterval: 100 * time.Millisecond,
			ToleranceSamples:   75,
		},
		FrameDuration: 10 * time.Millisecond,
		Duration:      time.Second,
		Pipelines:     1,
		Logger:        logger.NewSlogLogger(io.Discard, logger.LogLevelError),
	}
}

func TestMatchedClocksStayMidBand(t *testing.T) {
	t.Parallel()

	sum, err := Run(t.Context(), testConfig())
	require.NoError(t, err)
	require.Len(t, sum.Pipelines, 1)

	p := sum.Pipelines[0]
	assert.Equal(t, "sim-0", p.Name)
	assert.Equal(t, uint64(100), p.FramesIn)
	assert.Equal(t, uint64(97), p.FramesOut)
	assert.Zero(t, p.Underruns)
	assert.Zero(t, p.Overruns)
	assert.Zero(t, p.Adjustments)
	assert.Zero(t, p.PeerUpdates)
	assert.Equal(t, 300, p.MinFill)
	assert.Equal(t, 300, p.MaxFill)
	assert.Equal(t, 300, p.FinalFill)
	assert.Equal(t, time.Second, sum.Elapsed)
}

func TestSkewWithoutPeerCorrection(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		producerPPM float64
		consumerPPM float64
		check       func(t *testing.T, p PipelineSummary)
	}{
		{
			name:        "fast consumer drains",
			consumerPPM: 5000,
			check: func(t *testing.T, p PipelineSummary) {
				assert.Positive(t, p.Underruns)
				assert.Positive(t, p.Adjustments)
				assert.Negative(t, p.NetAdjustUS, "consumer must be slowed down")
				assert.Positive(t, p.PeerUpdates)
				assert.Positive(t, p.DriftUS, "data arrives late")
			},
		},
		{
			name:        "fast producer overflows",
			producerPPM: 5000,
			check: func(t *testing.T, p PipelineSummary) {
				assert.Positive(t, p.Overruns)
				assert.Positive(t, p.DroppedBytes)
				assert.Positive(t, p.NetAdjustUS, "consumer must be sped up")
				assert.Negative(t, p.DriftUS, "data arrives early")
				assert.Equal(t, 600, p.MaxFill, "full ring less one frame")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := testConfig()
			cfg.Duration = 20 * time.Second
			cfg.ProducerPPM = tt.producerPPM
			cfg.ConsumerPPM = tt.consumerPPM
			sum, err := Run(t.Context(), cfg)
			require.NoError(t, err)
			tt.check(t, sum.Pipelines[0])
		})
	}
}

func TestPeerCorrectionTrimsProducer(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Duration = 20 * time.Second
	cfg.ProducerPPM = 5000
	cfg.PeerCorrection = true

	sum, err := Run(t.Context(), cfg)
	require.NoError(t, err)
	p := sum.Pipelines[0]
	assert.Zero(t, p.Overruns)
	assert.Zero(t, p.Underruns)
	assert.Positive(t, p.PeerUpdates)
	assert.Less(t, p.ProducerTrimPPM, -4000.0)
	assert.LessOrEqual(t, p.MaxFill, 500)
}

func TestParallelPipelines(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	ringMetrics, err := metrics.NewRingBufferMetrics(registry)
	require.NoError(t, err)
	driftMetrics, err := metrics.NewDriftMetrics(registry)
	require.NoError(t, err)

	cfg := testConfig()
	cfg.Pipelines = 3
	cfg.Duration = 8 * time.Second
	cfg.ConsumerPPM = 5000
	cfg.RingRecorder = ringMetrics
	cfg.DriftRecorder = driftMetrics

	sum, err := Run(t.Context(), cfg)
	require.NoError(t, err)
	require.Len(t, sum.Pipelines, 3)

	var frames uint64
	for i, p := range sum.Pipelines {
		assert.Equal(t, []string{"sim-0", "sim-1", "sim-2"}[i], p.Name)
		// Pipelines share nothing, so identical configs give identical results
		assert.Equal(t, sum.Pipelines[0].FramesOut, p.FramesOut)
		frames += p.FramesOut
	}
	assert.Equal(t, frames, sum.Frames)
	assert.Equal(t, 3, testutil.CollectAndCount(registry, "fragring_drift_publications_total"))
	// Destroyed buffers drop their series
	assert.Zero(t, testutil.CollectAndCount(registry, "fragring_buffer_capacity_bytes"))
}

func TestClipSaved(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.ClipPath = filepath.Join(t.TempDir(), "sim.wav")
	cfg.Clip = capture.Config{Name: "clip", SampleRate: 5000, Channels: 1, BitDepth: 16, History: 500 * time.Millisecond}

	_, err := Run(t.Context(), cfg)
	require.NoError(t, err)

	f, err := os.Open(cfg.ClipPath)
	require.NoError(t, err)
	defer f.Close()
	dec := wav.NewDecoder(f)
	require.True(t, dec.IsValidFile())
	buf, err := dec.FullPCMBuffer()
	require.NoError(t, err)
	// 500 ms of 5 kHz mono
	assert.Len(t, buf.Data, 2500)
}

func TestRunCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	cfg := testConfig()
	cfg.Pipelines = 2
	_, err := Run(ctx, cfg)
	require.ErrorIs(t, err, context.Canceled)
}

func TestRunValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no duration", func(c *Config) { c.Duration = 0 }},
		{"no frame duration", func(c *Config) { c.FrameDuration = 0 }},
		{"no pipelines", func(c *Config) { c.Pipelines = 0 }},
		{"stopped clock", func(c *Config) { c.ConsumerPPM = -1e6 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := testConfig()
			tt.mutate(&cfg)
			_, err := Run(t.Context(), cfg)
			require.Error(t, err)
			assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
		})
	}
}

func TestConfigFromSettings(t *testing.T) {
	t.Parallel()

	s := conf.Defaults()
	cfg, err := ConfigFromSettings(s)
	require.NoError(t, err)
	assert.Equal(t, 10*time.Millisecond, cfg.FrameDuration)
	assert.Equal(t, time.Minute, cfg.Duration)
	assert.Equal(t, 1, cfg.Pipelines)
	assert.True(t, cfg.PeerCorrection)
	assert.Equal(t, 1920, cfg.Jitter.FrameSize)
	assert.Equal(t, 5*time.Second, cfg.Clip.History)
	assert.Empty(t, cfg.ClipPath)
	assert.IsType(t, &ringbuf.HeapAllocator{}, cfg.Allocator)
	assert.Equal(t, 5*time.Second, cfg.OverrunLogInterval)

	s.Buffer.Allocator = "arena"
	_, err = ConfigFromSettings(s)
	require.ErrorIs(t, err, ringbuf.ErrInvalidArgument)
}

func TestPooledAllocatorReclaimsChunks(t *testing.T) {
	t.Parallel()

	alloc := ringbuf.NewPoolAllocator(ringbuf.DefaultPoolConfig())
	cfg := testConfig()
	cfg.Pipelines = 2
	cfg.Allocator = alloc

	_, err := Run(t.Context(), cfg)
	require.NoError(t, err)
	stats := alloc.Stats()
	assert.Equal(t, uint64(14), stats.Allocs, "two rings of seven chunks")
	assert.Equal(t, stats.Allocs, stats.Frees)
}
