// Package simulate runs jitter buffers between two independently clocked
// stages on a virtual timeline. Producer and consumer clocks run off nominal
// rate by a configured ppm; the threshold adjuster trims the consumer clock
// and, with peer correction on, the producer follows the drift published by
// the settlement controller.
package simulate

import (
	"time"

	"github.com/tphakala/fragring/internal/capture"
	"github.com/tphakala/fragring/internal/conf"
	"github.com/tphakala/fragring/internal/drift"
	"github.com/tphakala/fragring/internal/errors"
	"github.com/tphakala/fragring/internal/jitter"
	"github.com/tphakala/fragring/internal/logger"
	"github.com/tphakala/fragring/internal/ringbuf"
)

// ComponentSimulate identifies simulation errors
const ComponentSimulate = "simulate"

// Config configures Run.
type Config struct {
	Jitter         jitter.Config
	FrameDuration  time.Duration // nominal period of both stages
	Duration       time.Duration // virtual time to simulate
	ProducerPPM    float64
	ConsumerPPM    float64
	Pipelines      int
	PeerCorrection bool

	// Clip, when ClipPath is set, records the first pipeline's output
	// and saves it as WAV when the run ends.
	Clip     capture.Config
	ClipPath string

	// Allocator is shared by every pipeline's ring; nil uses the heap
	Allocator          ringbuf.Allocator
	OverrunLogInterval time.Duration

	RingRecorder  ringbuf.Recorder
	DriftRecorder drift.Recorder
	Logger        logger.Logger
}

// ConfigFromSettings maps loaded settings onto a simulation config.
func ConfigFromSettings(s *conf.Settings) (Config, error) {
	jc, err := jitter.ConfigFromSettings("sim", s)
	if err != nil {
		return Config{}, err
	}
	alloc, err := ringbuf.NewAllocator(s.Buffer.Allocator, s.Buffer.MaxBytes)
	if err != nil {
		return Config{}, err
	}
	return Config{
		Jitter:             jc,
		Allocator:          alloc,
		OverrunLogInterval: s.Buffer.OverrunLogInterval,
		FrameDuration:  s.Frame.FrameDuration,
		Duration:       s.Simulation.Duration,
		ProducerPPM:    s.Simulation.ProducerPPM,
		ConsumerPPM:    s.Simulation.ConsumerPPM,
		Pipelines:      s.Simulation.Pipelines,
		PeerCorrection: s.Simulation.PeerCorrection,
		Clip: capture.Config{
			Name:       "sim-clip",
			SampleRate: s.Frame.SampleRate,
			Channels:   s.Frame.Channels,
			BitDepth:   s.Frame.BitDepth,
			History:    s.Capture.History,
		},
	}, nil
}

func (c *Config) validate() error {
	switch {
	case c.FrameDuration <= 0:
		return invalidConfig("simulate: frame duration must be positive, got %s", c.FrameDuration)
	case c.Duration <= 0:
		return invalidConfig("simulate: duration must be positive, got %s", c.Duration)
	case c.Pipelines < 1:
		return invalidConfig("simulate: need at least one pipeline, got %d", c.Pipelines)
	case c.ProducerPPM <= -1e6 || c.ConsumerPPM <= -1e6:
		return invalidConfig("simulate: clock skew must be above -1e6 ppm")
	}
	return nil
}

func invalidConfig(format string, args ...any) error {
	return errors.Newf(format, args...).
		Component(ComponentSimulate).
		Category(errors.CategoryValidation).
		Build()
}

// GetLogger returns the simulate package logger
func GetLogger() logger.Logger {
	return logger.Global().Module("simulate")
}
