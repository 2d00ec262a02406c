package frame

import (
	"testing"

	"github.com/go-audio/audio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePolicy(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    Policy
		wantErr bool
	}{
		{"drain", PolicyDrain, false},
		{"ZeroPad", PolicyZeroPad, false},
		{"zero-pad", PolicyZeroPad, false},
		{"", PolicyZeroPad, false},
		{" hold ", PolicyHold, false},
		{"discard", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := ParsePolicy(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFlagsString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "none", Flags(0).String())
	assert.Equal(t, "eos", FlagEndOfStream.String())
	assert.Equal(t, "eos|discontinuity", (FlagEndOfStream | FlagDiscontinuity).String())
	assert.True(t, (FlagEndOfStream | FlagDiscontinuity).Has(FlagDiscontinuity))
	assert.False(t, FlagEndOfStream.Has(FlagDiscontinuity))
}

func TestListReset(t *testing.T) {
	t.Parallel()

	var l List
	l.Add(&Metadata{ID: 1})
	l.Add(&Metadata{ID: 2})
	assert.Equal(t, 2, l.Len())
	l.Reset()
	assert.Zero(t, l.Len())
	assert.Empty(t, l.Nodes())
}

func TestBasicHandler(t *testing.T) {
	t.Parallel()

	h := NewBasicHandler()
	var src, dst List

	m, err := h.Create(&src, 8)
	require.NoError(t, err)
	assert.Len(t, m.Data, 8)
	m.Kind = KindTimestamp
	m.Data[0] = 0x7f
	m.DelayUS = 250

	h.Propagate(&src, &dst, 500)
	require.Equal(t, 1, dst.Len())
	cp := dst.Nodes()[0]
	assert.NotSame(t, m, cp)
	assert.Equal(t, int64(750), cp.DelayUS)
	assert.Equal(t, KindTimestamp, cp.Kind)
	cp.Data[0] = 0
	assert.Equal(t, byte(0x7f), m.Data[0], "propagated data is a copy")

	h.Destroy(m, true)
	h.Destroy(nil, true)
	assert.Equal(t, HandlerStats{Created: 1, Destroyed: 1, Dropped: 1, Propagated: 1}, h.Stats())

	_, err = h.Create(nil, -1)
	require.Error(t, err)
}

func TestPCMRoundTrip(t *testing.T) {
	t.Parallel()

	format := &audio.Format{SampleRate: 48000, NumChannels: 2}

	tests := []struct {
		bitDepth int
		samples  []int
	}{
		{8, []int{-128, -1, 0, 1, 127}},
		{16, []int{-32768, -1, 0, 1, 32767}},
		{24, []int{-8388608, -1, 0, 1, 8388607}},
		{32, []int{-2147483648, -1, 0, 1, 2147483647}},
	}

	for _, tt := range tests {
		t.Run(audioDepthName(tt.bitDepth), func(t *testing.T) {
			t.Parallel()

			in := &audio.IntBuffer{Format: format, Data: tt.samples, SourceBitDepth: tt.bitDepth}
			raw, err := EncodePCM(in, tt.bitDepth)
			require.NoError(t, err)
			assert.Len(t, raw, len(tt.samples)*tt.bitDepth/8)

			out, err := DecodePCM(raw, format, tt.bitDepth)
			require.NoError(t, err)
			assert.Equal(t, tt.samples, out.Data)
			assert.Equal(t, tt.bitDepth, out.SourceBitDepth)
			assert.Same(t, format, out.Format)
		})
	}
}

func TestPCMLittleEndian(t *testing.T) {
	t.Parallel()

	raw, err := EncodePCM(&audio.IntBuffer{Data: []int{0x0102, -2}}, 16)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x02, 0x01, 0xfe, 0xff}, raw)

	out, err := DecodePCM([]byte{0x02, 0x01, 0xff}, nil, 16)
	require.NoError(t, err)
	assert.Equal(t, []int{0x0102}, out.Data, "trailing partial sample is ignored")
}

func TestPCMUnsupportedDepth(t *testing.T) {
	t.Parallel()

	_, err := EncodePCM(&audio.IntBuffer{}, 12)
	require.Error(t, err)
	_, err = DecodePCM(nil, nil, 20)
	require.Error(t, err)
}

func audioDepthName(bits int) string {
	switch bits {
	case 8:
		return "8bit"
	case 16:
		return "16bit"
	case 24:
		return "24bit"
	default:
		return "32bit"
	}
}
