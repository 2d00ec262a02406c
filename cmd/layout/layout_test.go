package layout

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/fragring/internal/conf"
)

func TestRunPrintsConfiguredLayout(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	s := conf.Defaults()
	s.Buffer.CapacityBytes = 10000
	require.NoError(t, run(&out, s, false))
	assert.Contains(t, out.String(), "10000 bytes in 3 chunks")
}

func TestRunSizesJitterBuffer(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	require.NoError(t, run(&out, conf.Defaults(), true))
	// 3 frames of 1920 plus twice the 20 ms allowance at 192 kB/s
	assert.Contains(t, out.String(), "thresholds [1920, 9600]")
	assert.Contains(t, out.String(), "13440 bytes in 4 chunks")
}

func TestRunRejectsEmptyLayout(t *testing.T) {
	t.Parallel()

	s := conf.Defaults()
	s.Buffer.ChunkSizeHint = 0
	require.Error(t, run(&bytes.Buffer{}, s, false))
}
