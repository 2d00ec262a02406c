package ringbuf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeapAllocatorBudget(t *testing.T) {
	t.Parallel()

	h := NewHeapAllocator(3000)

	a, err := h.Alloc(2000)
	require.NoError(t, err)
	assert.Len(t, a, 2000)
	assert.Equal(t, int64(2000), h.InUse())

	_, err = h.Alloc(1001)
	require.ErrorIs(t, err, ErrAllocation)
	assert.Equal(t, int64(2000), h.InUse())

	b, err := h.Alloc(1000)
	require.NoError(t, err)
	assert.Equal(t, int64(3000), h.InUse())

	h.Free(a)
	h.Free(b)
	assert.Zero(t, h.InUse())

	_, err = h.Alloc(0)
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestPoolAllocator(t *testing.T) {
	t.Parallel()

	p := NewPoolAllocator(DefaultPoolConfig())

	tests := []struct {
		name    string
		size    int
		wantCap int
	}{
		{"small tier", 1000, 1920},
		{"medium tier", 3000, 3840},
		{"large tier", 19200, 19200},
		{"unpooled", 50000, 50000},
	}

	for _, tt := range tests {
		buf, err := p.Alloc(tt.size)
		require.NoError(t, err, tt.name)
		assert.Len(t, buf, tt.size, tt.name)
		assert.Equal(t, tt.wantCap, cap(buf), tt.name)
		p.Free(buf)
	}

	stats := p.Stats()
	assert.Equal(t, uint64(4), stats.Allocs)
	assert.Equal(t, uint64(4), stats.Frees)
	assert.Equal(t, uint64(1), stats.Unpooled)
	assert.Zero(t, stats.InUse)
	assert.GreaterOrEqual(t, stats.Misses, uint64(1))
}

func TestPoolAllocatorReturnsZeroedMemory(t *testing.T) {
	t.Parallel()

	p := NewPoolAllocator(DefaultPoolConfig())
	for range 10 {
		buf, err := p.Alloc(1500)
		require.NoError(t, err)
		for i, v := range buf {
			require.Zero(t, v, "byte %d", i)
		}
		for i := range buf {
			buf[i] = 0xAA
		}
		p.Free(buf)
	}
}

func TestBufferWithPoolAllocator(t *testing.T) {
	t.Parallel()

	p := NewPoolAllocator(DefaultPoolConfig())
	b := newTestBuffer(t, 7680, 3840, WithAllocator(p))
	r, err := b.RegisterReader(0)
	require.NoError(t, err)

	require.NoError(t, r.RequestResize(19200))
	assert.Equal(t, int64(b.ChunkCount()), p.Stats().InUse)

	require.NoError(t, r.RequestResize(0))
	assert.Equal(t, 7680, b.Capacity())
	assert.Equal(t, int64(2), p.Stats().InUse)

	require.NoError(t, b.Destroy())
	assert.Zero(t, p.Stats().InUse)
}

func TestNewAllocator(t *testing.T) {
	t.Parallel()

	a, err := NewAllocator(AllocatorHeap, 100)
	require.NoError(t, err)
	assert.IsType(t, &HeapAllocator{}, a)

	a, err = NewAllocator(AllocatorPool, 0)
	require.NoError(t, err)
	assert.IsType(t, &PoolAllocator{}, a)

	_, err = NewAllocator("arena", 0)
	require.ErrorIs(t, err, ErrInvalidArgument)
}
