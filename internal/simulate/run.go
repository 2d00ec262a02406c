package simulate

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tphakala/fragring/internal/capture"
	"github.com/tphakala/fragring/internal/drift"
	"github.com/tphakala/fragring/internal/errors"
	"github.com/tphakala/fragring/internal/frame"
	"github.com/tphakala/fragring/internal/jitter"
	"github.com/tphakala/fragring/internal/logger"
	"github.com/tphakala/fragring/internal/ringbuf"
)

// events between context checks
const ctxCheckInterval = 256

// epoch anchors the virtual timeline
var epoch = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

// PipelineSummary reports one simulated pipeline.
type PipelineSummary struct {
	Name         string
	FramesIn     uint64
	FramesOut    uint64
	Overruns     uint64 // pushes that did not fit
	DroppedBytes uint64
	Underruns    uint64
	Adjustments  uint64
	NetAdjustUS  int64
	PeerUpdates  uint64
	DriftUS      int64 // sum of drift published to the producer
	MinFill      int
	MaxFill      int
	FinalFill    int

	ProducerTrimPPM float64 // rate correction the producer ended with
}

// Summary aggregates every pipeline of a run.
type Summary struct {
	Pipelines   []PipelineSummary
	Frames      uint64
	Overruns    uint64
	Underruns   uint64
	Adjustments uint64
	DriftUS     int64
	Elapsed     time.Duration // virtual time simulated
}

// maxTrimPPM bounds the rate correction a producer accepts from its peer
const maxTrimPPM = 1e5

// stage is a virtual clock ticking at a skewed nominal period. Shifts
// applied through AdjustMicros move the next tick; positive is earlier.
type stage struct {
	nominal time.Duration
	skew    float64 // configured ppm, fixed
	trim    float64 // ppm correction from the peer
	period  time.Duration
	next    time.Duration
	shiftUS int64
}

func newStage(nominal time.Duration, ppm float64, start time.Duration) *stage {
	s := &stage{nominal: nominal, skew: ppm, next: start}
	s.setTrim(0)
	return s
}

// AdjustMicros implements drift.Clock
func (s *stage) AdjustMicros(us int64) { s.shiftUS += us }

func (s *stage) setTrim(ppm float64) {
	s.trim = max(-maxTrimPPM, min(maxTrimPPM, ppm))
	s.period = time.Duration(float64(s.nominal) / (1 + (s.skew+s.trim)/1e6))
}

// follow converts drift published over a window into a rate correction.
// Positive drift means data arrived late, so the stage speeds up.
func (s *stage) follow(state drift.PeerState) {
	if state.Window <= 0 {
		return
	}
	s.setTrim(s.trim + float64(state.DriftUS)*1e6/float64(state.Window.Microseconds()))
}

// local converts true time to this stage's clock
func (s *stage) local(t time.Duration) time.Duration {
	return time.Duration(float64(t) * (1 + s.skew/1e6))
}

func (s *stage) advance() {
	s.next += s.period - time.Duration(s.shiftUS)*time.Microsecond
	s.shiftUS = 0
}

// Run simulates cfg.Pipelines independent pipelines in parallel and returns
// their summary. It stops early with the context's error when ctx is done.
func Run(ctx context.Context, cfg Config) (*Summary, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	log := cfg.Logger
	if log == nil {
		log = GetLogger()
	}

	results := make([]PipelineSummary, cfg.Pipelines)
	g, ctx := errgroup.WithContext(ctx)
	for i := range cfg.Pipelines {
		g.Go(func() error {
			p := &pipeline{
				cfg:  cfg,
				name: fmt.Sprintf("%s-%d", cfg.Jitter.Name, i),
				clip: i == 0 && cfg.ClipPath != "",
				log:  log.With(logger.Int("pipeline", i)),
			}
			res, err := p.run(ctx)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sum := &Summary{Pipelines: results, Elapsed: cfg.Duration}
	for i := range results {
		r := &results[i]
		sum.Frames += r.FramesOut
		sum.Overruns += r.Overruns
		sum.Underruns += r.Underruns
		sum.Adjustments += r.Adjustments
		sum.DriftUS += r.DriftUS
	}
	log.Info("simulation finished",
		logger.Int("pipelines", cfg.Pipelines),
		logger.Duration("virtual", cfg.Duration),
		logger.Uint64("frames", sum.Frames),
		logger.Uint64("underruns", sum.Underruns),
		logger.Uint64("overruns", sum.Overruns),
		logger.Uint64("adjustments", sum.Adjustments),
		logger.Int64("drift_us", sum.DriftUS))
	return sum, nil
}

type pipeline struct {
	cfg  Config
	name string
	clip bool
	log  logger.Logger

	now      time.Duration
	consumer *stage
}

// wall is the consumer's clock, the reference the settlement controller
// measures the producer's data against.
func (p *pipeline) wall() time.Time { return epoch.Add(p.consumer.local(p.now)) }

func (p *pipeline) ringOptions() []ringbuf.Option {
	opts := []ringbuf.Option{
		ringbuf.WithAllocator(p.cfg.Allocator),
		ringbuf.WithRecorder(p.cfg.RingRecorder),
	}
	if p.cfg.OverrunLogInterval > 0 {
		opts = append(opts, ringbuf.WithOverrunLogInterval(p.cfg.OverrunLogInterval))
	}
	return opts
}

func (p *pipeline) run(ctx context.Context) (PipelineSummary, error) {
	jc := p.cfg.Jitter
	jc.Name = p.name

	peer := drift.NewPeerSync()
	lower := jc.FrameSize
	upper := jc.FrameSize + 2*jc.JitterBytes()
	// Start consuming once the buffer sits mid-band
	startDelay := time.Duration(int64((lower+upper)/2) * int64(time.Second) / int64(jc.BytesPerSecond))

	producer := newStage(p.cfg.FrameDuration, p.cfg.ProducerPPM, 0)
	consumer := newStage(p.cfg.FrameDuration, p.cfg.ConsumerPPM, startDelay)
	p.consumer = consumer

	driftOpts := []drift.Option{
		drift.WithNow(p.wall),
		drift.WithPeer(peer),
		drift.WithRecorder(p.cfg.DriftRecorder),
		drift.WithLogger(p.log),
	}
	buf, err := jitter.New(jc,
		jitter.WithClock(consumer),
		jitter.WithLogger(p.log),
		jitter.WithDriftOptions(driftOpts...),
		jitter.WithRingOptions(p.ringOptions()...),
	)
	if err != nil {
		return PipelineSummary{}, err
	}
	defer func() {
		if cerr := buf.Close(); cerr != nil {
			p.log.Warn("closing jitter buffer failed", logger.Error(cerr))
		}
	}()

	var clip *capture.Buffer
	if p.clip {
		if clip, err = capture.New(p.cfg.Clip); err != nil {
			return PipelineSummary{}, err
		}
		defer func() { _ = clip.Close() }()
	}

	payload := make([]byte, jc.FrameSize)
	for i := range payload {
		payload[i] = byte(i)
	}

	res := PipelineSummary{Name: p.name, MinFill: buf.Ring().Capacity()}
	var out frame.Frame
	for events := 0; ; events++ {
		if events%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return res, err
			}
		}

		// The producer wins ties so a frame due at the same instant is readable
		if producer.next <= consumer.next {
			if producer.next >= p.cfg.Duration {
				break
			}
			p.now = producer.next
			if _, err := buf.Push(payload, 0); err != nil {
				if !errors.Is(err, ringbuf.ErrOverrun) {
					return res, err
				}
				res.Overruns++
			}
			producer.advance()
			continue
		}

		if consumer.next >= p.cfg.Duration {
			break
		}
		p.now = consumer.next
		if _, err := buf.Pull(&out); err != nil && !errors.Is(err, ringbuf.ErrUnderrun) {
			return res, err
		}
		fill := buf.Fill()
		res.MinFill = min(res.MinFill, fill)
		res.MaxFill = max(res.MaxFill, fill)
		if clip != nil && len(out.Payload) > 0 {
			if err := clip.Write(out.Payload); err != nil {
				return res, err
			}
		}
		consumer.advance()

		select {
		case <-peer.Notify():
			if p.cfg.PeerCorrection {
				producer.follow(peer.Snapshot())
			}
		default:
		}
	}

	stats := buf.Stats()
	state := peer.Snapshot()
	res.FramesIn = stats.FramesIn
	res.FramesOut = stats.FramesOut
	res.DroppedBytes = stats.DroppedBytes
	res.Underruns = stats.Underruns
	res.Adjustments = stats.Adjustments
	res.NetAdjustUS = stats.NetAdjustUS
	res.PeerUpdates = state.Updates
	res.DriftUS = state.TotalUS
	res.FinalFill = buf.Fill()
	res.ProducerTrimPPM = producer.trim

	if clip != nil {
		if err := clip.SaveWAV(p.cfg.ClipPath, 0); err != nil {
			return res, err
		}
		p.log.Info("clip saved", logger.String("path", p.cfg.ClipPath))
	}

	p.log.Debug("pipeline finished",
		logger.Uint64("frames_out", res.FramesOut),
		logger.Uint64("underruns", res.Underruns),
		logger.Int("min_fill", res.MinFill),
		logger.Int("max_fill", res.MaxFill))
	return res, nil
}
