package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/fragring/internal/errors"
)

func TestDefaults(t *testing.T) {
	t.Parallel()

	s := Defaults()

	assert.Equal(t, 19200, s.Buffer.CapacityBytes)
	assert.Equal(t, 3840, s.Buffer.ChunkSizeHint)
	assert.Equal(t, 5*time.Second, s.Buffer.OverrunLogInterval)
	assert.Equal(t, 10*time.Millisecond, s.Frame.FrameDuration)
	assert.Equal(t, 1920, s.Frame.FrameSize())
	assert.Equal(t, 192000, s.Frame.BytesPerSecond())
	assert.Equal(t, 2*time.Second, s.Drift.SettlementInterval)
	require.NotNil(t, s.Logging.Console)
	assert.True(t, s.Logging.Console.Enabled)
	require.NoError(t, ValidateSettings(s))
}

func TestLoadFromFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
buffer:
  capacity_bytes: 8192
  chunk_size_hint: 1024
frame:
  sample_rate: 16000
  channels: 1
drift:
  settlement_interval: 500ms
`), 0o600))

	t.Setenv("FRAGRING_JITTER_SIDE", "producer")

	s, err := LoadFrom(viper.New(), path)
	require.NoError(t, err)

	assert.Equal(t, 8192, s.Buffer.CapacityBytes)
	assert.Equal(t, 1024, s.Buffer.ChunkSizeHint)
	assert.Equal(t, 16000, s.Frame.SampleRate)
	assert.Equal(t, 320, s.Frame.FrameSize())
	assert.Equal(t, 500*time.Millisecond, s.Drift.SettlementInterval)
	assert.Equal(t, "producer", s.Jitter.Side)
	// Untouched keys keep defaults
	assert.Equal(t, 16, s.Frame.BitDepth)
}

func TestLoadFromMissingExplicitFile(t *testing.T) {
	t.Parallel()

	_, err := LoadFrom(viper.New(), filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func TestValidateSettings(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(s *Settings)
	}{
		{"zero capacity", func(s *Settings) { s.Buffer.CapacityBytes = 0 }},
		{"zero chunk hint", func(s *Settings) { s.Buffer.ChunkSizeHint = 0 }},
		{"unknown allocator", func(s *Settings) { s.Buffer.Allocator = "arena" }},
		{"odd bit depth", func(s *Settings) { s.Frame.BitDepth = 12 }},
		{"empty frame", func(s *Settings) { s.Frame.FrameDuration = time.Microsecond }},
		{"unknown policy", func(s *Settings) { s.Frame.Policy = "truncate" }},
		{"zero step", func(s *Settings) { s.Jitter.AdjustStepUS = 0 }},
		{"unknown side", func(s *Settings) { s.Jitter.Side = "both" }},
		{"telemetry without dsn", func(s *Settings) { s.Telemetry.Enabled = true }},
		{"no pipelines", func(s *Settings) { s.Simulation.Pipelines = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := Defaults()
			tt.mutate(s)

			err := ValidateSettings(s)
			require.Error(t, err)
			assert.True(t, errors.IsCategory(err, errors.CategoryValidation))

			var ve ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Len(t, ve.Errors, 1)
		})
	}
}

func TestWriteDefaultRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	require.NoError(t, WriteDefault(path))

	s, err := LoadFrom(viper.New(), path)
	require.NoError(t, err)
	assert.Equal(t, Defaults(), s)
}
