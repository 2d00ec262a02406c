package frame

import (
	"github.com/tphakala/fragring/internal/errors"
	"github.com/tphakala/fragring/internal/logger"
	"github.com/tphakala/fragring/internal/ringbuf"
)

// Config describes the frames a Stream carries.
type Config struct {
	FrameSize      int // bytes per container frame
	BytesPerSecond int // payload byte rate, used for propagation delay; 0 disables it
}

func (c Config) validate() error {
	if c.FrameSize <= 0 {
		return invalidArgument("frame: frame size must be positive, got %d", c.FrameSize)
	}
	if c.BytesPerSecond < 0 {
		return invalidArgument("frame: negative byte rate %d", c.BytesPerSecond)
	}
	return nil
}

// entry anchors metadata or flags at a stream byte offset.
type entry struct {
	seq   uint64
	pos   int64
	empty bool // carried by a frame without payload, sits before the byte at pos
	node  *Metadata
	flags Flags

	remaining int // readers that have not reached it yet
	delivered bool
}

// reached reports whether a read ending at end covers the entry.
func (e *entry) reached(end int64) bool {
	return e.pos < end || (e.empty && e.pos == end)
}

// Stream carries frames through a ring buffer. Like the ring it is not safe
// for concurrent use.
type Stream struct {
	ring    *ringbuf.Buffer
	cfg     Config
	handler MetadataHandler
	log     logger.Logger

	writer     *Writer
	readers    []*Reader
	entries    []*entry
	nextSeq    uint64
	writeTotal int64
	closed     bool
}

// NewStream wraps ring. A nil handler gets a BasicHandler.
func NewStream(ring *ringbuf.Buffer, cfg Config, handler MetadataHandler) (*Stream, error) {
	if ring == nil || ring.Destroyed() {
		return nil, ringbuf.ErrInvalidClient
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if handler == nil {
		handler = NewBasicHandler()
	}
	return &Stream{
		ring:    ring,
		cfg:     cfg,
		handler: handler,
		log:     GetLogger().With(logger.String("buffer", ring.Name())),
	}, nil
}

// Config returns the stream configuration
func (s *Stream) Config() Config { return s.cfg }

// Ring returns the underlying ring buffer
func (s *Stream) Ring() *ringbuf.Buffer { return s.ring }

// WriteTotal returns the payload bytes written over the stream's lifetime.
func (s *Stream) WriteTotal() int64 { return s.writeTotal }

// PendingEntries returns the anchored metadata and flag entries not yet
// released.
func (s *Stream) PendingEntries() int { return len(s.entries) }

// Close releases every outstanding metadata node as dropped and deregisters
// the stream's clients from the ring. The ring itself stays alive.
func (s *Stream) Close() error {
	if s.closed {
		return ErrClosed
	}
	s.closed = true

	for _, e := range s.entries {
		s.release(e)
	}
	clear(s.entries)
	s.entries = nil

	var errs []error
	if s.writer != nil {
		if err := s.writer.rw.Close(); err != nil && !s.ring.Destroyed() {
			errs = append(errs, err)
		}
		s.writer.s = nil
		s.writer = nil
	}
	for _, r := range s.readers {
		if err := r.rr.Close(); err != nil && !s.ring.Destroyed() {
			errs = append(errs, err)
		}
		r.s = nil
	}
	s.readers = nil

	s.log.Debug("frame stream closed", logger.Int64("bytes_written", s.writeTotal))
	return errors.Join(errs...)
}

func (s *Stream) anchor(pos int64, empty bool, node *Metadata, flags Flags) {
	e := &entry{
		seq:       s.nextSeq,
		pos:       pos,
		empty:     empty,
		node:      node,
		flags:     flags,
		remaining: len(s.readers),
	}
	s.nextSeq++
	if e.remaining == 0 {
		s.release(e)
		return
	}
	s.entries = append(s.entries, e)
}

func (s *Stream) release(e *entry) {
	if e.node != nil {
		s.handler.Destroy(e.node, !e.delivered)
		e.node = nil
	}
}

// collect releases entries every reader has passed.
func (s *Stream) collect() {
	kept := s.entries[:0]
	for _, e := range s.entries {
		if e.remaining > 0 {
			kept = append(kept, e)
			continue
		}
		s.release(e)
	}
	clear(s.entries[len(kept):])
	s.entries = kept
}

func (s *Stream) delayUS(pos int64) int64 {
	if s.cfg.BytesPerSecond == 0 {
		return 0
	}
	return (s.writeTotal - pos) * 1_000_000 / int64(s.cfg.BytesPerSecond)
}

// Writer writes frames into a Stream.
type Writer struct {
	s  *Stream
	rw *ringbuf.Writer
}

// NewWriter registers the stream's writer with the ring.
func (s *Stream) NewWriter(baseSize int) (*Writer, error) {
	if s.closed {
		return nil, ErrClosed
	}
	rw, err := s.ring.RegisterWriter(baseSize)
	if err != nil {
		return nil, err
	}
	s.writer = &Writer{s: s, rw: rw}
	return s.writer, nil
}

// WriteFrame writes at most one frame's worth of f.Payload, limited by the
// space every reader has free, and returns the bytes consumed. What did not
// fit stays in f.Payload for the caller to retry. Metadata is taken with the
// first consumed byte, flags with the last.
func (w *Writer) WriteFrame(f *Frame) (int, error) {
	if w == nil || w.s == nil {
		return 0, ErrClosed
	}
	s := w.s

	n := min(len(f.Payload), s.cfg.FrameSize, s.ring.MinFreeBytes())
	start := s.writeTotal
	if n > 0 {
		if err := w.rw.Write(f.Payload[:n]); err != nil && !errors.Is(err, ringbuf.ErrOverrun) {
			return 0, err
		}
	}

	if f.Metadata.Len() > 0 && (n > 0 || len(f.Payload) == 0) {
		for _, m := range f.Metadata.Nodes() {
			s.anchor(start, n == 0, m, 0)
		}
		f.Metadata.Reset()
	}

	s.writeTotal += int64(n)
	f.Payload = f.Payload[n:]

	if len(f.Payload) == 0 && f.Flags != 0 {
		if n > 0 {
			s.anchor(s.writeTotal-1, false, nil, f.Flags)
		} else {
			s.anchor(s.writeTotal, true, nil, f.Flags)
		}
		f.Flags = 0
	}
	return n, nil
}

// Close deregisters the writer. The stream keeps its buffered frames.
func (w *Writer) Close() error {
	if w == nil || w.s == nil {
		return ErrClosed
	}
	err := w.rw.Close()
	w.s.writer = nil
	w.s = nil
	return err
}

// Reader reads frames from a Stream.
type Reader struct {
	s      *Stream
	rr     *ringbuf.Reader
	policy Policy

	nextSeq  uint64 // first entry not yet handled
	expected int64  // stream offset the next read should start at
	scratch  List
}

// NewReader registers a reader with the ring. It sees payload already
// buffered, but only metadata and flags written after it joined.
func (s *Stream) NewReader(baseSize int, policy Policy) (*Reader, error) {
	if s.closed {
		return nil, ErrClosed
	}
	rr, err := s.ring.RegisterReader(baseSize)
	if err != nil {
		return nil, err
	}
	r := &Reader{
		s:        s,
		rr:       rr,
		policy:   policy,
		nextSeq:  s.nextSeq,
		expected: s.writeTotal - int64(rr.UnreadBytes()),
	}
	s.readers = append(s.readers, r)
	return r, nil
}

// Ring returns the underlying ring reader
func (r *Reader) Ring() *ringbuf.Reader { return r.rr }

// Policy returns the underrun policy
func (r *Reader) Policy() Policy { return r.policy }

// UnreadBytes returns the buffered payload bytes for this reader
func (r *Reader) UnreadBytes() int { return r.rr.UnreadBytes() }

// Primed reports whether the reader has received data
func (r *Reader) Primed() bool { return r.rr.Primed() }

// RequestResize asks the ring for extra capacity on this reader's behalf.
func (r *Reader) RequestResize(extra int) error {
	if r == nil || r.s == nil {
		return ErrClosed
	}
	return r.rr.RequestResize(extra)
}

// ReadAdjust drops the oldest buffered bytes down to target. Metadata
// anchored in the dropped range is skipped by the next ReadFrame, which
// also reports FlagDiscontinuity.
func (r *Reader) ReadAdjust(target int) (int, error) {
	if r == nil || r.s == nil {
		return 0, ErrClosed
	}
	return r.rr.ReadAdjust(target)
}

// ReadFrame reads up to one frame into out and returns the payload bytes
// taken from the ring. When less than a frame is buffered it returns
// ringbuf.ErrUnderrun, and out holds what the reader's policy makes of the
// short frame.
func (r *Reader) ReadFrame(out *Frame) (int, error) {
	if r == nil || r.s == nil {
		return 0, ErrClosed
	}
	s := r.s
	fs := s.cfg.FrameSize

	out.Metadata.Reset()
	out.Flags = 0
	if cap(out.Payload) < fs {
		out.Payload = make([]byte, fs)
	}
	buf := out.Payload[:fs]

	unread := r.rr.UnreadBytes()
	if r.policy == PolicyHold && unread < fs && !r.endPending() {
		out.Payload = buf[:0]
		return 0, ringbuf.ErrUnderrun
	}

	start := s.writeTotal - int64(unread)
	if start > r.expected {
		out.Flags |= FlagDiscontinuity
	}

	n, err := r.rr.Read(buf)
	if err != nil && !errors.Is(err, ringbuf.ErrUnderrun) {
		return 0, err
	}
	end := start + int64(n)
	r.deliver(out, start, end)
	r.expected = end
	s.collect()

	if r.policy == PolicyZeroPad {
		clear(buf[n:])
		out.Payload = buf
	} else {
		out.Payload = buf[:n]
	}
	return n, err
}

// deliver hands over the entries covered by a read of [start, end). Entries
// before start were dropped from the ring and are skipped.
func (r *Reader) deliver(out *Frame, start, end int64) {
	s := r.s
	for _, e := range s.entries {
		if e.seq < r.nextSeq {
			continue
		}
		if !e.reached(end) {
			break
		}
		r.nextSeq = e.seq + 1
		e.remaining--
		if e.pos < start {
			continue
		}

		e.delivered = true
		out.Flags |= e.flags
		if e.node != nil {
			r.scratch.Reset()
			r.scratch.Add(e.node)
			s.handler.Propagate(&r.scratch, &out.Metadata, s.delayUS(e.pos))
		}
	}
	r.scratch.Reset()
}

func (r *Reader) endPending() bool {
	for _, e := range r.s.entries {
		if e.seq >= r.nextSeq && e.flags.Has(FlagEndOfStream) {
			return true
		}
	}
	return false
}

// Close deregisters the reader. Entries it had not reached no longer wait for it.
func (r *Reader) Close() error {
	if r == nil || r.s == nil {
		return ErrClosed
	}
	s := r.s

	for _, e := range s.entries {
		if e.seq >= r.nextSeq {
			e.remaining--
		}
	}
	for i, other := range s.readers {
		if other == r {
			s.readers = append(s.readers[:i], s.readers[i+1:]...)
			break
		}
	}
	s.collect()

	r.s = nil
	return r.rr.Close()
}
