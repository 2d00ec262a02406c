package drift

import (
	"time"

	"github.com/tphakala/fragring/internal/logger"
)

// State is the controller's phase.
type State uint8

const (
	// StateIdle waits for the first write
	StateIdle State = iota
	// StatePriming ignores startup transients until the settlement interval passed
	StatePriming
	// StateSettled measures and publishes drift
	StateSettled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePriming:
		return "priming"
	case StateSettled:
		return "settled"
	default:
		return "unknown"
	}
}

// Config configures a Controller.
type Config struct {
	Name               string // label for logs and metrics
	SampleRate         int
	BytesPerSecond     int
	SettlementInterval time.Duration
	ToleranceSamples   int
}

func (c Config) validate() error {
	if c.SampleRate <= 0 {
		return invalidConfig("drift: sample rate must be positive, got %d", c.SampleRate)
	}
	if c.BytesPerSecond <= 0 {
		return invalidConfig("drift: byte rate must be positive, got %d", c.BytesPerSecond)
	}
	if c.SettlementInterval < 0 {
		return invalidConfig("drift: negative settlement interval %s", c.SettlementInterval)
	}
	if c.ToleranceSamples < 0 {
		return invalidConfig("drift: negative tolerance %d", c.ToleranceSamples)
	}
	return nil
}

// Snapshot is a copy of the controller state.
type Snapshot struct {
	State          State
	PendingUS      int64
	AccumulatedUS  int64 // last value published to the peer
	TotalUS        int64 // sum of everything published
	FirstWrite     time.Time
	LastAdjustment time.Time
	BytesSince     int64 // bytes written since LastAdjustment
}

// Option configures a Controller or ThresholdAdjuster
type Option func(*options)

type options struct {
	now      func() time.Time
	peer     *PeerSync
	recorder Recorder
	log      logger.Logger
}

// WithNow sets the time source. The default is time.Now.
func WithNow(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithPeer connects a peer synchronization channel.
func WithPeer(p *PeerSync) Option {
	return func(o *options) { o.peer = p }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(o *options) {
		if r != nil {
			o.recorder = r
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

func buildOptions(name string, opts []Option) options {
	o := options{now: time.Now, recorder: nopRecorder{}}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = GetLogger()
	}
	o.log = o.log.With(logger.String("controller", name))
	return o
}

// Controller estimates drift between the write cadence and wall time.
// It is driven from the owning pipeline's processing thread.
type Controller struct {
	cfg Config
	options

	state         State
	firstWrite    time.Time
	baseline      time.Time
	bytesSince    int64
	pendingUS     int64
	accumulatedUS int64
	totalUS       int64
}

// NewController validates cfg and returns an idle controller.
func NewController(cfg Config, opts ...Option) (*Controller, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Controller{cfg: cfg, options: buildOptions(cfg.Name, opts)}, nil
}

// State returns the current phase
func (c *Controller) State() State { return c.state }

// ToleranceUS returns the publication threshold in microseconds.
func (c *Controller) ToleranceUS() int64 {
	return int64(c.cfg.ToleranceSamples) * 1_000_000 / int64(c.cfg.SampleRate)
}

// OnWrite records n bytes delivered to the buffer. The first call starts priming.
func (c *Controller) OnWrite(n int) {
	if n <= 0 {
		return
	}
	if c.state == StateIdle {
		c.state = StatePriming
		c.firstWrite = c.now()
		c.log.Debug("drift controller priming",
			logger.Duration("settlement", c.cfg.SettlementInterval))
		return
	}
	if c.state == StateSettled {
		c.bytesSince += int64(n)
	}
}

// Evaluate runs one cycle and returns the pending drift in microseconds.
// Positive drift means less data arrived than the elapsed time accounts for.
// It returns ErrNotReady before the first write and zero while priming.
func (c *Controller) Evaluate() (int64, error) {
	now := c.now()

	switch c.state {
	case StateIdle:
		return 0, ErrNotReady
	case StatePriming:
		if now.Sub(c.firstWrite) < c.cfg.SettlementInterval {
			return 0, nil
		}
		c.state = StateSettled
		c.resetBaseline(now)
		c.log.Debug("drift controller settled")
		return 0, nil
	}

	elapsedUS := now.Sub(c.baseline).Microseconds()
	dataUS := c.bytesSince * 1_000_000 / int64(c.cfg.BytesPerSecond)
	c.pendingUS = elapsedUS - dataUS
	c.recorder.RecordPending(c.cfg.Name, c.pendingUS)

	if c.peer == nil || abs(c.pendingUS) <= c.ToleranceUS() {
		return c.pendingUS, nil
	}

	c.accumulatedUS = c.pendingUS
	c.totalUS += c.pendingUS
	c.peer.Publish(c.accumulatedUS, now.Sub(c.baseline), now)
	c.recorder.RecordPublish(c.cfg.Name, c.accumulatedUS, c.totalUS)
	c.log.Debug("drift published",
		logger.Int64("drift_us", c.accumulatedUS),
		logger.Int64("total_us", c.totalUS))

	pending := c.pendingUS
	c.resetBaseline(now)
	return pending, nil
}

// SetFormat changes the operating rate. The measurement baseline restarts
// because bytes counted so far were produced at the old rate.
func (c *Controller) SetFormat(sampleRate, bytesPerSecond int) error {
	next := c.cfg
	next.SampleRate = sampleRate
	next.BytesPerSecond = bytesPerSecond
	if err := next.validate(); err != nil {
		return err
	}
	c.cfg = next
	if c.state == StateSettled {
		c.resetBaseline(c.now())
	}
	return nil
}

// Reset returns the controller to idle, keeping the published total.
func (c *Controller) Reset() {
	c.state = StateIdle
	c.firstWrite = time.Time{}
	c.baseline = time.Time{}
	c.bytesSince = 0
	c.pendingUS = 0
}

// Snapshot returns a copy of the state
func (c *Controller) Snapshot() Snapshot {
	return Snapshot{
		State:          c.state,
		PendingUS:      c.pendingUS,
		AccumulatedUS:  c.accumulatedUS,
		TotalUS:        c.totalUS,
		FirstWrite:     c.firstWrite,
		LastAdjustment: c.baseline,
		BytesSince:     c.bytesSince,
	}
}

func (c *Controller) resetBaseline(now time.Time) {
	c.baseline = now
	c.bytesSince = 0
	c.pendingUS = 0
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
