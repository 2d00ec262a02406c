// Package jitter implements the endpoint-facing jitter buffer: a frame
// stream over a fragmented ring whose fill level steers the endpoint clock
// and whose write cadence is checked against wall time.
package jitter

import (
	"time"

	"github.com/tphakala/fragring/internal/conf"
	"github.com/tphakala/fragring/internal/drift"
	"github.com/tphakala/fragring/internal/errors"
	"github.com/tphakala/fragring/internal/frame"
	"github.com/tphakala/fragring/internal/logger"
)

// ComponentJitter identifies jitter buffer errors
const ComponentJitter = "jitter"

// Config configures a Buffer.
type Config struct {
	Name           string
	FrameSize      int
	BytesPerSecond int
	SampleRate     int
	ChunkSizeHint  int // 0 uses one frame per chunk
	Policy         frame.Policy

	JitterAllowance time.Duration
	StepUS          int64
	HoldOffCycles   int
	Side            drift.Side

	SettlementInterval time.Duration
	ToleranceSamples   int
}

// ConfigFromSettings maps loaded settings onto a buffer config.
func ConfigFromSettings(name string, s *conf.Settings) (Config, error) {
	policy, err := frame.ParsePolicy(s.Frame.Policy)
	if err != nil {
		return Config{}, err
	}
	side, err := drift.ParseSide(s.Jitter.Side)
	if err != nil {
		return Config{}, err
	}

	return Config{
		Name:               name,
		FrameSize:          s.Frame.FrameSize(),
		BytesPerSecond:     s.Frame.BytesPerSecond(),
		SampleRate:         s.Frame.SampleRate,
		ChunkSizeHint:      s.Buffer.ChunkSizeHint,
		Policy:             policy,
		JitterAllowance:    s.Jitter.Allowance,
		StepUS:             s.Jitter.AdjustStepUS,
		HoldOffCycles:      s.Jitter.HoldOffCycles,
		Side:               side,
		SettlementInterval: s.Drift.SettlementInterval,
		ToleranceSamples:   s.Drift.ToleranceSamples,
	}, nil
}

// JitterBytes returns the jitter allowance converted to bytes.
func (c Config) JitterBytes() int {
	return int(int64(c.BytesPerSecond) * int64(c.JitterAllowance) / int64(time.Second))
}

// Capacity returns the ring capacity the config needs: the threshold band
// plus one frame of headroom on either side.
func (c Config) Capacity() int {
	return 2*c.FrameSize + c.FrameSize + 2*c.JitterBytes()
}

func (c Config) validate() error {
	switch {
	case c.FrameSize <= 0:
		return invalidConfig("jitter: frame size must be positive, got %d", c.FrameSize)
	case c.BytesPerSecond <= 0:
		return invalidConfig("jitter: byte rate must be positive, got %d", c.BytesPerSecond)
	case c.ChunkSizeHint < 0:
		return invalidConfig("jitter: negative chunk size hint %d", c.ChunkSizeHint)
	}
	return nil
}

func (c Config) thresholdConfig() drift.ThresholdConfig {
	return drift.ThresholdConfig{
		Name:            c.Name,
		FrameSize:       c.FrameSize,
		BytesPerSecond:  c.BytesPerSecond,
		JitterAllowance: c.JitterAllowance,
		StepUS:          c.StepUS,
		HoldOffCycles:   c.HoldOffCycles,
		Side:            c.Side,
	}
}

func (c Config) controllerConfig() drift.Config {
	return drift.Config{
		Name:               c.Name,
		SampleRate:         c.SampleRate,
		BytesPerSecond:     c.BytesPerSecond,
		SettlementInterval: c.SettlementInterval,
		ToleranceSamples:   c.ToleranceSamples,
	}
}

func invalidConfig(format string, args ...any) error {
	return errors.Newf(format, args...).
		Component(ComponentJitter).
		Category(errors.CategoryValidation).
		Build()
}

// GetLogger returns the jitter package logger
func GetLogger() logger.Logger {
	return logger.Global().Module("jitter")
}
