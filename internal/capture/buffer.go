// Package capture keeps the most recent seconds of a PCM stream in a
// fragmented ring buffer and exports them as WAV clips.
package capture

import (
	"sync"
	"time"

	"github.com/go-audio/audio"

	"github.com/tphakala/fragring/internal/errors"
	"github.com/tphakala/fragring/internal/frame"
	"github.com/tphakala/fragring/internal/logger"
	"github.com/tphakala/fragring/internal/ringbuf"
)

// ComponentCapture identifies capture errors
const ComponentCapture = "capture"

// Config describes the captured stream.
type Config struct {
	Name       string
	SampleRate int
	Channels   int
	BitDepth   int
	History    time.Duration
}

// BlockAlign returns the bytes of one sample frame
func (c Config) BlockAlign() int { return c.Channels * c.BitDepth / 8 }

// BytesPerSecond returns the PCM data rate
func (c Config) BytesPerSecond() int { return c.SampleRate * c.BlockAlign() }

// bytesFor converts d to whole sample frames.
func (c Config) bytesFor(d time.Duration) int {
	frames := int64(c.SampleRate) * int64(d) / int64(time.Second)
	return int(frames) * c.BlockAlign()
}

func (c Config) validate() error {
	switch {
	case c.SampleRate <= 0:
		return invalidConfig("capture: sample rate must be positive, got %d", c.SampleRate)
	case c.Channels <= 0:
		return invalidConfig("capture: channel count must be positive, got %d", c.Channels)
	case c.BitDepth != 8 && c.BitDepth != 16 && c.BitDepth != 24 && c.BitDepth != 32:
		return invalidConfig("capture: unsupported bit depth %d", c.BitDepth)
	case c.bytesFor(c.History) <= 0:
		return invalidConfig("capture: history %s holds no samples", c.History)
	}
	return nil
}

// Buffer holds the last History of audio. Write and the read side may be
// called from different goroutines.
//
// A history reader stays registered for the buffer's lifetime and drops its
// oldest bytes before each write, so it always holds the most recent audio
// without overrunning.
type Buffer struct {
	cfg Config
	log logger.Logger

	mu        sync.Mutex
	ring      *ringbuf.Buffer
	writer    *ringbuf.Writer
	history   *ringbuf.Reader
	written   int64
	startTime time.Time
	now       func() time.Time
}

// New allocates the history ring. opts are passed to ringbuf.Create.
func New(cfg Config, opts ...ringbuf.Option) (*Buffer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	capacity := cfg.bytesFor(cfg.History)
	// 100 ms chunks
	hint := max(cfg.bytesFor(100*time.Millisecond), cfg.BlockAlign())
	log := GetLogger().With(logger.String("buffer", cfg.Name))

	opts = append([]ringbuf.Option{ringbuf.WithName(cfg.Name), ringbuf.WithLogger(log)}, opts...)
	ring, err := ringbuf.Create(capacity, hint, opts...)
	if err != nil {
		return nil, err
	}
	w, err := ring.RegisterWriter(capacity)
	if err != nil {
		_ = ring.Destroy()
		return nil, err
	}
	history, err := ring.RegisterReader(0)
	if err != nil {
		_ = ring.Destroy()
		return nil, err
	}

	log.Debug("capture buffer allocated",
		logger.Int("capacity", capacity),
		logger.Int("chunks", ring.ChunkCount()),
		logger.Duration("history", cfg.History))
	return &Buffer{cfg: cfg, log: log, ring: ring, writer: w, history: history, now: time.Now}, nil
}

// Config returns the buffer config
func (b *Buffer) Config() Config { return b.cfg }

// Write appends PCM bytes. Bytes older than the history are overwritten.
func (b *Buffer) Write(p []byte) error {
	if len(p) == 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.writer == nil {
		return ringbuf.ErrInvalidClient
	}
	if b.written == 0 {
		b.startTime = b.now()
	}
	b.written += int64(len(p))

	capacity := b.ring.Capacity()
	if len(p) > capacity {
		p = p[len(p)-capacity:]
	}
	if keep := capacity - len(p); b.history.UnreadBytes() > keep {
		if _, err := b.history.ReadAdjust(keep); err != nil {
			return err
		}
	}
	return b.writer.Write(p)
}

// WriteSamples encodes buf at the configured bit depth and writes it.
func (b *Buffer) WriteSamples(buf *audio.IntBuffer) error {
	if buf.Format != nil && (buf.Format.NumChannels != b.cfg.Channels || buf.Format.SampleRate != b.cfg.SampleRate) {
		return errors.Newf("capture: sample format %d ch %d Hz does not match buffer",
			buf.Format.NumChannels, buf.Format.SampleRate).
			Component(ComponentCapture).
			Category(errors.CategoryAudio).
			Context("buffer", b.cfg.Name).
			Build()
	}
	p, err := frame.EncodePCM(buf, b.cfg.BitDepth)
	if err != nil {
		return err
	}
	return b.Write(p)
}

// Buffered returns the duration of audio currently held.
func (b *Buffer) Buffered() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ring == nil {
		return 0
	}
	held := min(b.written, int64(b.ring.Capacity()))
	return time.Duration(held * int64(time.Second) / int64(b.cfg.BytesPerSecond()))
}

// Snapshot copies the most recent d of audio. d <= 0 or longer than what
// is held returns everything held. The start time is the wall-clock time of
// the first returned byte.
func (b *Buffer) Snapshot(d time.Duration) ([]byte, time.Time, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.ring == nil {
		return nil, time.Time{}, ringbuf.ErrInvalidClient
	}
	if b.written == 0 {
		return nil, time.Time{}, errors.Newf("capture: no audio buffered").
			Component(ComponentCapture).
			Category(errors.CategoryNotReady).
			Context("buffer", b.cfg.Name).
			Build()
	}

	out := make([]byte, b.history.UnreadBytes())
	if _, err := b.ring.Peek(b.history, out); err != nil {
		return nil, time.Time{}, err
	}
	if want := b.cfg.bytesFor(d); d > 0 && want < len(out) {
		out = out[len(out)-want:]
	}

	offset := b.written - int64(len(out))
	start := b.startTime.Add(time.Duration(offset * int64(time.Second) / int64(b.cfg.BytesPerSecond())))
	return out, start, nil
}

// Close destroys the ring
func (b *Buffer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ring == nil {
		return nil
	}
	err := b.ring.Destroy()
	b.ring, b.writer, b.history = nil, nil, nil
	return err
}

func invalidConfig(format string, args ...any) error {
	return errors.Newf(format, args...).
		Component(ComponentCapture).
		Category(errors.CategoryValidation).
		Build()
}

// GetLogger returns the capture package logger
func GetLogger() logger.Logger {
	return logger.Global().Module("capture")
}
