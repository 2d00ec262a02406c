package ringbuf

import (
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/tphakala/fragring/internal/logger"
)

// DefaultOverrunLogInterval is the minimum spacing of overrun warnings per buffer.
const DefaultOverrunLogInterval = 5 * time.Second

// Recorder receives ring buffer events. metrics.RingBufferMetrics implements it.
type Recorder interface {
	RecordOverrun(buffer string, droppedBytes int)
	RecordUnderrun(buffer string, missingBytes int)
	RecordResize(buffer, direction string, capacityBytes, chunks int)
}

// layoutRecorder is optionally implemented by recorders that track the
// initial layout and forget destroyed buffers.
type layoutRecorder interface {
	RecordLayout(buffer string, capacityBytes, chunks int)
	Forget(buffer string)
}

// Resize directions passed to Recorder.RecordResize
const (
	ResizeGrow   = "grow"
	ResizeShrink = "shrink"
)

type nopRecorder struct{}

func (nopRecorder) RecordOverrun(string, int)             {}
func (nopRecorder) RecordUnderrun(string, int)            {}
func (nopRecorder) RecordResize(string, string, int, int) {}

// Option configures a Buffer
type Option func(*Buffer)

// WithAllocator sets the chunk allocator. The default is an unlimited HeapAllocator.
func WithAllocator(a Allocator) Option {
	return func(b *Buffer) {
		if a != nil {
			b.alloc = a
		}
	}
}

// WithLogger sets the logger. The default is the global "ringbuf" module logger.
func WithLogger(l logger.Logger) Option {
	return func(b *Buffer) {
		if l != nil {
			b.log = l
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(b *Buffer) {
		if r != nil {
			b.recorder = r
		}
	}
}

// WithOverrunLogInterval sets the minimum spacing of overrun warnings.
// Zero logs every overrun.
func WithOverrunLogInterval(d time.Duration) Option {
	return func(b *Buffer) {
		b.overrunInterval = d
	}
}

// WithName sets the name used in logs and metric labels. The default is the buffer ID.
func WithName(name string) Option {
	return func(b *Buffer) {
		b.name = name
	}
}

// Buffer is a fragmented ring buffer with one writer and many readers.
type Buffer struct {
	id   uuid.UUID
	name string

	chunks  []chunk
	head    int
	nextID  uint64
	hint    int
	created int // capacity requested at Create, the floor for shrinking

	capacity     int
	writeCounter int    // bytes in the ring, saturated at capacity
	wpos         cursor // write position, persists across writer registrations

	writer       *Writer
	readers      []*Reader
	nextReaderID int

	alloc     Allocator
	destroyed bool

	log                 logger.Logger
	recorder            Recorder
	overrunInterval     time.Duration
	overrunLimiter      *rate.Limiter
	suppressedOverruns  int
	suppressedDropBytes int
}

// Create allocates a ring of at least capacity bytes from chunks of at most
// chunkSizeHint bytes. On allocation failure every chunk obtained so far is
// released and an error matching ErrAllocation is returned.
func Create(capacity, chunkSizeHint int, opts ...Option) (*Buffer, error) {
	sizes := Layout(capacity, chunkSizeHint)
	if sizes == nil {
		return nil, invalidArgument("ringbuf: invalid layout capacity=%d chunk_size_hint=%d", capacity, chunkSizeHint)
	}

	b := &Buffer{
		id:              uuid.New(),
		hint:            chunkSizeHint,
		created:         capacity,
		overrunInterval: DefaultOverrunLogInterval,
		recorder:        nopRecorder{},
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.alloc == nil {
		b.alloc = NewHeapAllocator(0)
	}
	if b.name == "" {
		b.name = b.id.String()
	}
	if b.log == nil {
		b.log = GetLogger()
	}
	b.log = b.log.With(logger.String("buffer", b.name))
	b.overrunLimiter = rate.NewLimiter(rate.Every(b.overrunInterval), 1)

	data, err := b.allocChunks(sizes)
	if err != nil {
		b.log.Error("ring buffer creation failed",
			logger.Int("capacity", capacity),
			logger.Int("chunk_size_hint", chunkSizeHint),
			logger.Error(err))
		return nil, err
	}

	b.chunks = make([]chunk, 0, len(data))
	for i, d := range data {
		b.chunks = append(b.chunks, chunk{
			id:   b.newChunkID(),
			data: d,
			next: (i + 1) % len(data),
			prev: (i + len(data) - 1) % len(data),
		})
		b.capacity += len(d)
	}

	if lr, ok := b.recorder.(layoutRecorder); ok {
		lr.RecordLayout(b.name, b.capacity, len(b.chunks))
	}
	b.log.Debug("ring buffer created",
		logger.Int("capacity", b.capacity),
		logger.Int("chunks", len(b.chunks)))

	return b, nil
}

// allocChunks obtains memory for every size or none of them.
func (b *Buffer) allocChunks(sizes []int) ([][]byte, error) {
	data := make([][]byte, 0, len(sizes))
	for _, size := range sizes {
		d, err := b.alloc.Alloc(size)
		if err == nil && len(d) != size {
			b.alloc.Free(d)
			err = ErrAllocation
		}
		if err != nil {
			for _, got := range data {
				b.alloc.Free(got)
			}
			return nil, allocationError(err, size, len(data))
		}
		data = append(data, d)
	}
	return data, nil
}

func (b *Buffer) newChunkID() uint64 {
	b.nextID++
	return b.nextID
}

// Destroy frees every chunk and invalidates all clients. Every later call on
// the buffer or its clients, including Destroy, returns ErrInvalidClient.
func (b *Buffer) Destroy() error {
	if b == nil || b.destroyed {
		return ErrInvalidClient
	}

	for i := range b.chunks {
		b.alloc.Free(b.chunks[i].data)
		b.chunks[i].data = nil
	}
	b.chunks = nil
	b.capacity = 0
	b.writeCounter = 0

	if b.writer != nil {
		b.writer.buf = nil
		b.writer = nil
	}
	for _, r := range b.readers {
		r.buf = nil
	}
	b.readers = nil
	b.destroyed = true

	if lr, ok := b.recorder.(layoutRecorder); ok {
		lr.Forget(b.name)
	}
	b.log.Debug("ring buffer destroyed")
	return nil
}

// ID returns the buffer's unique identifier
func (b *Buffer) ID() uuid.UUID { return b.id }

// Name returns the name used in logs and metrics
func (b *Buffer) Name() string { return b.name }

// Capacity returns the sum of all linked chunk sizes
func (b *Buffer) Capacity() int { return b.capacity }

// ChunkCount returns the number of linked chunks
func (b *Buffer) ChunkCount() int { return len(b.chunks) }

// ChunkSizeHint returns the preferred chunk size
func (b *Buffer) ChunkSizeHint() int { return b.hint }

// WriteCounter returns the bytes written, saturated at the capacity.
func (b *Buffer) WriteCounter() int { return b.writeCounter }

// Destroyed reports whether Destroy has been called
func (b *Buffer) Destroyed() bool { return b.destroyed }

// ReaderCount returns the number of registered readers
func (b *Buffer) ReaderCount() int { return len(b.readers) }

// MinFreeBytes returns the largest write that overruns no reader. With no
// readers it is the capacity.
func (b *Buffer) MinFreeBytes() int {
	free := b.capacity
	for _, r := range b.readers {
		free = min(free, b.capacity-r.unread)
	}
	return free
}

// HasWriter reports whether a writer is registered
func (b *Buffer) HasWriter() bool { return b.writer != nil }

// Chunks returns the linked chunks in ring order starting at the head.
func (b *Buffer) Chunks() []ChunkInfo {
	if len(b.chunks) == 0 {
		return nil
	}
	out := make([]ChunkInfo, 0, len(b.chunks))
	i := b.head
	for {
		out = append(out, ChunkInfo{ID: b.chunks[i].id, Size: len(b.chunks[i].data)})
		i = b.chunks[i].next
		if i == b.head {
			return out
		}
	}
}
