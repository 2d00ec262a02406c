package ringbuf

import (
	"sync"
	"sync/atomic"

	"github.com/tphakala/fragring/internal/errors"
)

// Allocator supplies chunk memory. Alloc must return a slice of exactly size
// bytes; Free receives slices previously returned by Alloc.
type Allocator interface {
	Alloc(size int) ([]byte, error)
	Free(buf []byte)
}

// HeapAllocator allocates from the Go heap with an optional byte budget.
type HeapAllocator struct {
	maxBytes int64
	used     atomic.Int64
}

// NewHeapAllocator returns a heap allocator. maxBytes <= 0 disables the budget.
func NewHeapAllocator(maxBytes int64) *HeapAllocator {
	return &HeapAllocator{maxBytes: maxBytes}
}

// Alloc implements Allocator
func (h *HeapAllocator) Alloc(size int) ([]byte, error) {
	if size <= 0 {
		return nil, invalidArgument("ringbuf: chunk size must be positive, got %d", size)
	}
	if used := h.used.Add(int64(size)); h.maxBytes > 0 && used > h.maxBytes {
		h.used.Add(-int64(size))
		return nil, errors.Newf("ringbuf: heap budget of %d bytes exhausted", h.maxBytes).
			Component(ComponentRingBuf).
			Category(errors.CategoryAllocation).
			Context("requested", size).
			Context("in_use", used-int64(size)).
			Build()
	}
	return make([]byte, size), nil
}

// Free implements Allocator
func (h *HeapAllocator) Free(buf []byte) {
	h.used.Add(-int64(len(buf)))
}

// InUse returns the bytes currently allocated.
func (h *HeapAllocator) InUse() int64 {
	return h.used.Load()
}

// PoolConfig sets the tier boundaries of a PoolAllocator.
type PoolConfig struct {
	SmallChunkSize  int
	MediumChunkSize int
	LargeChunkSize  int
}

// DefaultPoolConfig covers 10 ms, 20 ms and 100 ms of 48 kHz stereo 16-bit audio.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		SmallChunkSize:  1920,
		MediumChunkSize: 3840,
		LargeChunkSize:  19200,
	}
}

// PoolStats reports PoolAllocator activity.
type PoolStats struct {
	Allocs   uint64 // total Alloc calls
	Frees    uint64 // total Free calls
	Misses   uint64 // allocations that had to create new memory
	InUse    int64  // chunks handed out and not yet freed
	Unpooled uint64 // allocations above the large tier
}

// PoolAllocator recycles chunk memory through size-tiered sync.Pools so that
// buffers repeatedly growing and shrinking reuse the same blocks.
type PoolAllocator struct {
	smallPool  sync.Pool
	mediumPool sync.Pool
	largePool  sync.Pool
	config     PoolConfig

	allocs   atomic.Uint64
	frees    atomic.Uint64
	misses   atomic.Uint64
	unpooled atomic.Uint64
	inUse    atomic.Int64
}

// NewPoolAllocator creates a tiered pool allocator
func NewPoolAllocator(config PoolConfig) *PoolAllocator {
	p := &PoolAllocator{config: config}

	newTier := func(size int) func() any {
		return func() any {
			p.misses.Add(1)
			buf := make([]byte, size)
			return &buf
		}
	}

	p.smallPool.New = newTier(config.SmallChunkSize)
	p.mediumPool.New = newTier(config.MediumChunkSize)
	p.largePool.New = newTier(config.LargeChunkSize)

	return p
}

// Alloc implements Allocator. Memory from a pool is zeroed before use.
func (p *PoolAllocator) Alloc(size int) ([]byte, error) {
	if size <= 0 {
		return nil, invalidArgument("ringbuf: chunk size must be positive, got %d", size)
	}

	p.allocs.Add(1)
	p.inUse.Add(1)

	pool := p.tier(size)
	if pool == nil {
		p.unpooled.Add(1)
		p.misses.Add(1)
		return make([]byte, size), nil
	}

	ptr, ok := pool.Get().(*[]byte)
	if !ok || cap(*ptr) < size {
		p.misses.Add(1)
		return make([]byte, size), nil
	}
	buf := (*ptr)[:size]
	clear(buf)
	return buf, nil
}

// Free implements Allocator
func (p *PoolAllocator) Free(buf []byte) {
	p.frees.Add(1)
	p.inUse.Add(-1)

	// Tier by capacity so a short remainder chunk returns to the pool it came from
	pool := p.tierForCap(cap(buf))
	if pool == nil {
		return
	}
	full := buf[:cap(buf)]
	pool.Put(&full)
}

// Stats returns a snapshot of pool statistics
func (p *PoolAllocator) Stats() PoolStats {
	return PoolStats{
		Allocs:   p.allocs.Load(),
		Frees:    p.frees.Load(),
		Misses:   p.misses.Load(),
		InUse:    p.inUse.Load(),
		Unpooled: p.unpooled.Load(),
	}
}

func (p *PoolAllocator) tier(size int) *sync.Pool {
	switch {
	case size <= p.config.SmallChunkSize:
		return &p.smallPool
	case size <= p.config.MediumChunkSize:
		return &p.mediumPool
	case size <= p.config.LargeChunkSize:
		return &p.largePool
	default:
		return nil
	}
}

func (p *PoolAllocator) tierForCap(capacity int) *sync.Pool {
	switch capacity {
	case p.config.SmallChunkSize:
		return &p.smallPool
	case p.config.MediumChunkSize:
		return &p.mediumPool
	case p.config.LargeChunkSize:
		return &p.largePool
	default:
		return nil
	}
}

// Allocator kinds accepted by NewAllocator
const (
	AllocatorHeap = "heap"
	AllocatorPool = "pool"
)

// NewAllocator returns the allocator named by kind. maxBytes only applies to
// the heap allocator.
func NewAllocator(kind string, maxBytes int64) (Allocator, error) {
	switch kind {
	case AllocatorHeap, "":
		return NewHeapAllocator(maxBytes), nil
	case AllocatorPool:
		return NewPoolAllocator(DefaultPoolConfig()), nil
	default:
		return nil, invalidArgument("ringbuf: unknown allocator %q", kind)
	}
}
