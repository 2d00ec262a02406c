package drift

import (
	"strings"
	"time"

	"github.com/tphakala/fragring/internal/errors"
	"github.com/tphakala/fragring/internal/logger"
)

// Side says which end of the buffer the adjusted clock drives.
type Side uint8

const (
	// SideConsumer clocks the stage reading from the buffer
	SideConsumer Side = iota
	// SideProducer clocks the stage writing into the buffer
	SideProducer
)

func (s Side) String() string {
	if s == SideProducer {
		return "producer"
	}
	return "consumer"
}

// ParseSide parses the configuration spelling of a side.
func ParseSide(s string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "consumer", "":
		return SideConsumer, nil
	case "producer":
		return SideProducer, nil
	default:
		return 0, errors.Newf("drift: unknown side %q", s).
			Component(ComponentDrift).
			Category(errors.CategoryValidation).
			Context("side", s).
			Build()
	}
}

// FillSource reports a reader's fill level. ringbuf.Reader and frame.Reader
// implement it.
type FillSource interface {
	UnreadBytes() int
	Primed() bool
}

// ThresholdConfig configures a ThresholdAdjuster.
type ThresholdConfig struct {
	Name            string
	FrameSize       int // bytes per frame
	BytesPerSecond  int
	JitterAllowance time.Duration
	StepUS          int64 // constant adjustment magnitude
	HoldOffCycles   int   // updates skipped after each adjustment
	Side            Side
}

func (c ThresholdConfig) validate() error {
	switch {
	case c.FrameSize <= 0:
		return invalidConfig("drift: frame size must be positive, got %d", c.FrameSize)
	case c.BytesPerSecond <= 0:
		return invalidConfig("drift: byte rate must be positive, got %d", c.BytesPerSecond)
	case c.JitterAllowance < 0:
		return invalidConfig("drift: negative jitter allowance %s", c.JitterAllowance)
	case c.StepUS <= 0:
		return invalidConfig("drift: adjustment step must be positive, got %d", c.StepUS)
	case c.HoldOffCycles < 0:
		return invalidConfig("drift: negative hold-off %d", c.HoldOffCycles)
	}
	return nil
}

// ThresholdAdjuster is a bang-bang fill-level controller. Each update
// compares the fill level with a band of [frame size, frame size + 2 x
// jitter allowance] and, when it is outside, emits one constant step.
type ThresholdAdjuster struct {
	cfg   ThresholdConfig
	clock Clock
	options

	lower, upper int
	holdOff      int
	adjustments  uint64
	netUS        int64
}

// NewThresholdAdjuster returns an adjuster driving clock. A nil clock makes
// it compute adjustments without applying them.
func NewThresholdAdjuster(cfg ThresholdConfig, clock Clock, opts ...Option) (*ThresholdAdjuster, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	a := &ThresholdAdjuster{cfg: cfg, clock: clock, options: buildOptions(cfg.Name, opts)}
	a.recompute()
	return a, nil
}

// Thresholds returns the current lower and upper fill thresholds in bytes.
func (a *ThresholdAdjuster) Thresholds() (lower, upper int) {
	return a.lower, a.upper
}

// Adjustments returns the number of steps emitted and their signed sum.
func (a *ThresholdAdjuster) Adjustments() (count uint64, netUS int64) {
	return a.adjustments, a.netUS
}

// Update checks src once and returns the adjustment emitted, or zero.
func (a *ThresholdAdjuster) Update(src FillSource) (int64, error) {
	if !src.Primed() {
		return 0, ErrNotReady
	}
	if a.holdOff > 0 {
		a.holdOff--
		return 0, nil
	}

	fill := src.UnreadBytes()
	var adj int64
	switch {
	case fill > a.upper:
		adj = a.cfg.StepUS
	case fill < a.lower:
		adj = -a.cfg.StepUS
	default:
		return 0, nil
	}
	// A full buffer needs a faster consumer or a slower producer
	if a.cfg.Side == SideProducer {
		adj = -adj
	}

	a.holdOff = a.cfg.HoldOffCycles
	a.adjustments++
	a.netUS += adj
	a.recorder.RecordAdjustment(a.cfg.Name, adj)
	if a.clock != nil {
		a.clock.AdjustMicros(adj)
	}

	a.log.Trace("clock adjusted",
		logger.Int64("adjust_us", adj),
		logger.Int("fill", fill),
		logger.Int("lower", a.lower),
		logger.Int("upper", a.upper))
	return adj, nil
}

// SetFormat changes the frame size and byte rate and recomputes the thresholds.
func (a *ThresholdAdjuster) SetFormat(frameSize, bytesPerSecond int) error {
	next := a.cfg
	next.FrameSize = frameSize
	next.BytesPerSecond = bytesPerSecond
	if err := next.validate(); err != nil {
		return err
	}
	a.cfg = next
	a.recompute()
	return nil
}

// SetJitterAllowance changes the allowance and recomputes the thresholds.
func (a *ThresholdAdjuster) SetJitterAllowance(d time.Duration) error {
	next := a.cfg
	next.JitterAllowance = d
	if err := next.validate(); err != nil {
		return err
	}
	a.cfg = next
	a.recompute()
	return nil
}

func (a *ThresholdAdjuster) recompute() {
	jitter := int(int64(a.cfg.BytesPerSecond) * int64(a.cfg.JitterAllowance) / int64(time.Second))
	a.lower = a.cfg.FrameSize
	a.upper = a.cfg.FrameSize + 2*jitter
	a.log.Debug("thresholds updated",
		logger.Int("lower", a.lower),
		logger.Int("upper", a.upper),
		logger.String("side", a.cfg.Side.String()))
}
