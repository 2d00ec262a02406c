package jitter

import (
	"time"

	"github.com/tphakala/fragring/internal/drift"
	"github.com/tphakala/fragring/internal/errors"
	"github.com/tphakala/fragring/internal/frame"
	"github.com/tphakala/fragring/internal/logger"
	"github.com/tphakala/fragring/internal/ringbuf"
)

// Stats counts traffic through a Buffer.
type Stats struct {
	FramesIn     uint64
	FramesOut    uint64
	BytesIn      uint64
	BytesOut     uint64
	DroppedBytes uint64 // pushed payload that found no free space
	Underruns    uint64
	Adjustments  uint64
	NetAdjustUS  int64
}

// Option configures a Buffer
type Option func(*options)

type options struct {
	clock     drift.Clock
	handler   frame.MetadataHandler
	ringOpts  []ringbuf.Option
	driftOpts []drift.Option
	log       logger.Logger
}

// WithClock sets the clock driven by the threshold adjuster.
func WithClock(c drift.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithHandler sets the metadata handler of the frame stream.
func WithHandler(h frame.MetadataHandler) Option {
	return func(o *options) { o.handler = h }
}

// WithRingOptions passes options to ringbuf.Create.
func WithRingOptions(opts ...ringbuf.Option) Option {
	return func(o *options) { o.ringOpts = append(o.ringOpts, opts...) }
}

// WithDriftOptions passes options to the drift controller and threshold adjuster.
func WithDriftOptions(opts ...drift.Option) Option {
	return func(o *options) { o.driftOpts = append(o.driftOpts, opts...) }
}

// WithLogger sets the buffer logger
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// Buffer is a single-writer single-reader jitter buffer. Push and Pull are
// called from the pipeline's processing thread; the buffer holds no locks.
type Buffer struct {
	cfg    Config
	ring   *ringbuf.Buffer
	stream *frame.Stream
	w      *frame.Writer
	r      *frame.Reader
	ctrl   *drift.Controller
	adj    *drift.ThresholdAdjuster
	log    logger.Logger

	in    frame.Frame
	stats Stats
}

// New creates the ring, the frame stream and both drift controllers.
func New(cfg Config, opts ...Option) (*Buffer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	o := options{log: GetLogger()}
	for _, opt := range opts {
		opt(&o)
	}
	log := o.log.With(logger.String("buffer", cfg.Name))

	adj, err := drift.NewThresholdAdjuster(cfg.thresholdConfig(), o.clock, o.driftOpts...)
	if err != nil {
		return nil, err
	}
	ctrl, err := drift.NewController(cfg.controllerConfig(), o.driftOpts...)
	if err != nil {
		return nil, err
	}

	capacity := cfg.Capacity()
	hint := cfg.ChunkSizeHint
	if hint == 0 {
		hint = cfg.FrameSize
	}
	ringOpts := append([]ringbuf.Option{ringbuf.WithName(cfg.Name), ringbuf.WithLogger(log)}, o.ringOpts...)
	ring, err := ringbuf.Create(capacity, hint, ringOpts...)
	if err != nil {
		return nil, err
	}

	b := &Buffer{cfg: cfg, ring: ring, ctrl: ctrl, adj: adj, log: log}
	if err := b.open(o.handler, capacity); err != nil {
		_ = ring.Destroy()
		return nil, err
	}

	lower, upper := adj.Thresholds()
	log.Info("jitter buffer created",
		logger.Int("capacity", ring.Capacity()),
		logger.Int("chunks", ring.ChunkCount()),
		logger.Int("lower", lower),
		logger.Int("upper", upper),
		logger.String("side", cfg.Side.String()))
	return b, nil
}

func (b *Buffer) open(handler frame.MetadataHandler, capacity int) error {
	stream, err := frame.NewStream(b.ring, frame.Config{
		FrameSize:      b.cfg.FrameSize,
		BytesPerSecond: b.cfg.BytesPerSecond,
	}, handler)
	if err != nil {
		return err
	}
	w, err := stream.NewWriter(capacity)
	if err != nil {
		return err
	}
	r, err := stream.NewReader(capacity, b.cfg.Policy)
	if err != nil {
		_ = stream.Close()
		return err
	}
	b.stream, b.w, b.r = stream, w, r
	return nil
}

// Push writes payload as frames and returns the bytes accepted. Payload
// that does not fit is dropped and reported as ringbuf.ErrOverrun; flags
// are still delivered after the accepted part.
func (b *Buffer) Push(payload []byte, flags frame.Flags) (int, error) {
	if b.stream == nil {
		return 0, ringbuf.ErrInvalidClient
	}
	b.in.Payload = payload
	b.in.Flags = flags

	written := 0
	for len(b.in.Payload) > 0 {
		n, err := b.w.WriteFrame(&b.in)
		if err != nil {
			return written, err
		}
		if n == 0 {
			break
		}
		written += n
		b.stats.FramesIn++
		b.ctrl.OnWrite(n)
	}
	b.stats.BytesIn += uint64(written)

	var result error
	if dropped := len(b.in.Payload); dropped > 0 {
		b.stats.DroppedBytes += uint64(dropped)
		b.in.Payload = nil
		result = ringbuf.ErrOverrun
	}
	if b.in.Flags != 0 {
		if _, err := b.w.WriteFrame(&b.in); err != nil {
			return written, err
		}
	}

	if b.cfg.Side == drift.SideProducer {
		b.adjust()
	}
	return written, result
}

// Pull reads one frame into out and runs one drift cycle. The error is the
// one ReadFrame returned; ringbuf.ErrUnderrun still leaves a frame shaped by
// the configured policy in out.
func (b *Buffer) Pull(out *frame.Frame) (int, error) {
	if b.stream == nil {
		return 0, ringbuf.ErrInvalidClient
	}
	n, err := b.r.ReadFrame(out)
	b.stats.BytesOut += uint64(n)
	switch {
	case err == nil:
		b.stats.FramesOut++
	case errors.Is(err, ringbuf.ErrUnderrun):
		b.stats.Underruns++
		if len(out.Payload) > 0 {
			b.stats.FramesOut++
		}
	default:
		return n, err
	}

	if b.cfg.Side == drift.SideConsumer {
		b.adjust()
	}
	if _, derr := b.ctrl.Evaluate(); derr != nil && !errors.Is(derr, drift.ErrNotReady) {
		b.log.Warn("drift evaluation failed", logger.Error(derr))
	}
	return n, err
}

func (b *Buffer) adjust() {
	adj, err := b.adj.Update(b.r)
	if err != nil || adj == 0 {
		return
	}
	b.stats.Adjustments++
	b.stats.NetAdjustUS += adj
}

// SetJitterAllowance moves the threshold band and resizes the ring to fit it.
func (b *Buffer) SetJitterAllowance(d time.Duration) error {
	next := b.cfg
	next.JitterAllowance = d
	if err := b.adj.SetJitterAllowance(d); err != nil {
		return err
	}
	extra := max(0, next.Capacity()-b.r.Ring().BaseSize())
	if err := b.r.RequestResize(extra); err != nil {
		_ = b.adj.SetJitterAllowance(b.cfg.JitterAllowance)
		return err
	}
	b.cfg = next
	b.log.Debug("jitter allowance changed",
		logger.Duration("allowance", d),
		logger.Int("capacity", b.ring.Capacity()))
	return nil
}

// Fill returns the buffered bytes
func (b *Buffer) Fill() int { return b.r.UnreadBytes() }

// Thresholds returns the adjuster's lower and upper fill thresholds.
func (b *Buffer) Thresholds() (lower, upper int) { return b.adj.Thresholds() }

// Drift returns the settlement controller state
func (b *Buffer) Drift() drift.Snapshot { return b.ctrl.Snapshot() }

// Stats returns a copy of the counters
func (b *Buffer) Stats() Stats { return b.stats }

// Ring returns the underlying ring buffer
func (b *Buffer) Ring() *ringbuf.Buffer { return b.ring }

// Config returns the active config
func (b *Buffer) Config() Config { return b.cfg }

// Close releases buffered metadata and destroys the ring.
func (b *Buffer) Close() error {
	if b.stream == nil {
		return nil
	}
	err := errors.Join(b.stream.Close(), b.ring.Destroy())
	b.stream, b.w, b.r = nil, nil, nil
	b.log.Debug("jitter buffer closed",
		logger.Uint64("frames_in", b.stats.FramesIn),
		logger.Uint64("frames_out", b.stats.FramesOut),
		logger.Uint64("underruns", b.stats.Underruns))
	return err
}
