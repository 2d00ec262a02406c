package ringbuf

import (
	"slices"

	"github.com/tphakala/fragring/internal/logger"
)

// Client is a Writer or a Reader.
type Client interface {
	buffer() *Buffer
}

// Writer is the single write client of a Buffer.
type Writer struct {
	buf  *Buffer
	base int
}

func (w *Writer) buffer() *Buffer {
	if w == nil {
		return nil
	}
	return w.buf
}

// BaseSize returns the capacity the writer registered with
func (w *Writer) BaseSize() int { return w.base }

// Write writes p to the writer's buffer. See Buffer.Write.
func (w *Writer) Write(p []byte) error {
	if w == nil || w.buf == nil {
		return ErrInvalidClient
	}
	return w.buf.Write(w, p)
}

// Close deregisters the writer.
func (w *Writer) Close() error {
	if w == nil || w.buf == nil {
		return ErrInvalidClient
	}
	return w.buf.Deregister(w)
}

// Reader is one independent read client of a Buffer.
type Reader struct {
	buf      *Buffer
	id       int
	base     int
	extra    int
	pos      cursor
	unread   int
	primed   bool
	overruns uint64
}

func (r *Reader) buffer() *Buffer {
	if r == nil {
		return nil
	}
	return r.buf
}

// ID returns the reader's identifier, unique within its buffer
func (r *Reader) ID() int { return r.id }

// UnreadBytes returns the bytes written since this reader last advanced
func (r *Reader) UnreadBytes() int { return r.unread }

// FreeBytes returns how much can be written before this reader overruns
func (r *Reader) FreeBytes() int {
	if r.buf == nil {
		return 0
	}
	return r.buf.capacity - r.unread
}

// Primed reports whether the reader has received data since it joined
func (r *Reader) Primed() bool { return r.primed }

// Overruns returns how many writes force-advanced this reader
func (r *Reader) Overruns() uint64 { return r.overruns }

// BaseSize returns the capacity the reader registered with
func (r *Reader) BaseSize() int { return r.base }

// RequestedResize returns the extra capacity last requested
func (r *Reader) RequestedResize() int { return r.extra }

// Read reads into p. See Buffer.Read.
func (r *Reader) Read(p []byte) (int, error) {
	if r == nil || r.buf == nil {
		return 0, ErrInvalidClient
	}
	return r.buf.Read(r, p)
}

// ReadAdjust drops unread data down to target bytes. See Buffer.ReadAdjust.
func (r *Reader) ReadAdjust(target int) (int, error) {
	if r == nil || r.buf == nil {
		return 0, ErrInvalidClient
	}
	return r.buf.ReadAdjust(r, target)
}

// RequestResize declares extra capacity. See Buffer.RequestResize.
func (r *Reader) RequestResize(extra int) error {
	if r == nil || r.buf == nil {
		return ErrInvalidClient
	}
	return r.buf.RequestResize(r, extra)
}

// Close deregisters the reader.
func (r *Reader) Close() error {
	if r == nil || r.buf == nil {
		return ErrInvalidClient
	}
	return r.buf.Deregister(r)
}

// RegisterWriter attaches the single writer. The writer continues from the
// current write position, which is the head chunk at offset 0 until data has
// been written. baseSize takes part in capacity reconciliation.
func (b *Buffer) RegisterWriter(baseSize int) (*Writer, error) {
	if b == nil || b.destroyed {
		return nil, ErrInvalidClient
	}
	if baseSize < 0 {
		return nil, invalidArgument("ringbuf: negative writer base size %d", baseSize)
	}
	if b.writer != nil {
		return nil, ErrAlreadyRegistered
	}

	w := &Writer{buf: b, base: baseSize}
	b.writer = w
	if err := b.reconcile(); err != nil {
		b.writer = nil
		return nil, err
	}

	b.log.Debug("writer registered", logger.Int("base_size", baseSize))
	return w, nil
}

// RegisterReader attaches a new reader. If the ring is exactly full the reader
// starts with nothing unread; otherwise it starts with everything written so
// far. The capacity is then reconciled, and the registration is undone if
// growing fails.
func (b *Buffer) RegisterReader(baseSize int) (*Reader, error) {
	if b == nil || b.destroyed {
		return nil, ErrInvalidClient
	}
	if baseSize < 0 {
		return nil, invalidArgument("ringbuf: negative reader base size %d", baseSize)
	}

	unread := b.writeCounter
	if b.writeCounter == b.capacity {
		unread = 0
	}

	b.nextReaderID++
	r := &Reader{
		buf:    b,
		id:     b.nextReaderID,
		base:   baseSize,
		unread: unread,
		primed: unread > 0,
		pos:    b.retreat(b.wpos, unread),
	}
	b.readers = append(b.readers, r)

	if err := b.reconcile(); err != nil {
		b.readers = b.readers[:len(b.readers)-1]
		r.buf = nil
		return nil, err
	}

	b.log.Debug("reader registered",
		logger.Int("reader", r.id),
		logger.Int("base_size", baseSize),
		logger.Int("unread", r.unread))
	return r, nil
}

// Deregister detaches a client. Removing the writer only clears the writer
// slot; removing a reader reconciles the capacity, which may shrink the ring.
func (b *Buffer) Deregister(c Client) error {
	if b == nil || b.destroyed || c == nil || c.buffer() != b {
		return ErrInvalidClient
	}

	switch client := c.(type) {
	case *Writer:
		if b.writer != client {
			return ErrInvalidClient
		}
		b.writer = nil
		client.buf = nil
		b.log.Debug("writer deregistered")
		return nil

	case *Reader:
		idx := slices.Index(b.readers, client)
		if idx < 0 {
			return ErrInvalidClient
		}
		b.readers = slices.Delete(b.readers, idx, idx+1)
		client.buf = nil
		b.log.Debug("reader deregistered", logger.Int("reader", client.id))
		return b.reconcile()

	default:
		return ErrInvalidClient
	}
}

func (b *Buffer) checkWriter(w *Writer) error {
	if b == nil || b.destroyed || w == nil || w.buf != b || b.writer != w {
		return ErrInvalidClient
	}
	return nil
}

func (b *Buffer) checkReader(r *Reader) error {
	if b == nil || b.destroyed || r == nil || r.buf != b {
		return ErrInvalidClient
	}
	return nil
}
