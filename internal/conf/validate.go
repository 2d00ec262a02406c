// conf/validate.go

package conf

import (
	"fmt"
	"strings"

	"github.com/tphakala/fragring/internal/errors"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("validation errors: %s", strings.Join(ve.Errors, "; "))
}

// ErrorCategory lets the errors package classify ValidationError automatically.
func (ve ValidationError) ErrorCategory() errors.ErrorCategory {
	return errors.CategoryValidation
}

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	collect := func(err error) {
		if err != nil {
			ve.Errors = append(ve.Errors, err.Error())
		}
	}

	collect(validateBufferSettings(&settings.Buffer))
	collect(validateFrameSettings(&settings.Frame))
	collect(validateDriftSettings(&settings.Drift))
	collect(validateJitterSettings(&settings.Jitter))
	collect(validateCaptureSettings(&settings.Capture))
	collect(validateSimulationSettings(&settings.Simulation))
	collect(validateTelemetrySettings(&settings.Telemetry))

	if len(ve.Errors) > 0 {
		return errors.New(ve).
			Category(errors.CategoryValidation).
			Context("error_count", len(ve.Errors)).
			Build()
	}
	return nil
}

func validateBufferSettings(b *BufferSettings) error {
	switch {
	case b.CapacityBytes <= 0:
		return fmt.Errorf("buffer.capacity_bytes must be positive, got %d", b.CapacityBytes)
	case b.ChunkSizeHint <= 0:
		return fmt.Errorf("buffer.chunk_size_hint must be positive, got %d", b.ChunkSizeHint)
	case b.MaxBytes < 0:
		return fmt.Errorf("buffer.max_bytes must not be negative")
	case b.Allocator != "heap" && b.Allocator != "pool":
		return fmt.Errorf("buffer.allocator must be heap or pool, got %q", b.Allocator)
	case b.OverrunLogInterval < 0:
		return fmt.Errorf("buffer.overrun_log_interval must not be negative")
	}
	return nil
}

func validateFrameSettings(f *FrameSettings) error {
	switch {
	case f.SampleRate <= 0:
		return fmt.Errorf("frame.sample_rate must be positive, got %d", f.SampleRate)
	case f.Channels <= 0:
		return fmt.Errorf("frame.channels must be positive, got %d", f.Channels)
	case f.BitDepth != 16 && f.BitDepth != 24 && f.BitDepth != 32:
		return fmt.Errorf("frame.bit_depth must be 16, 24 or 32, got %d", f.BitDepth)
	case f.FrameSize() <= 0:
		return fmt.Errorf("frame.frame_duration %s yields an empty frame", f.FrameDuration)
	}

	switch f.Policy {
	case "drain", "zeropad", "hold":
		return nil
	default:
		return fmt.Errorf("frame.policy must be drain, zeropad or hold, got %q", f.Policy)
	}
}

func validateDriftSettings(d *DriftSettings) error {
	if d.SettlementInterval < 0 {
		return fmt.Errorf("drift.settlement_interval must not be negative")
	}
	if d.ToleranceSamples < 0 {
		return fmt.Errorf("drift.tolerance_samples must not be negative")
	}
	return nil
}

func validateJitterSettings(j *JitterSettings) error {
	if j.Allowance < 0 {
		return fmt.Errorf("jitter.allowance must not be negative")
	}
	if j.AdjustStepUS <= 0 {
		return fmt.Errorf("jitter.adjust_step_us must be positive, got %d", j.AdjustStepUS)
	}
	if j.HoldOffCycles < 0 {
		return fmt.Errorf("jitter.hold_off_cycles must not be negative")
	}
	if j.Side != "consumer" && j.Side != "producer" {
		return fmt.Errorf("jitter.side must be consumer or producer, got %q", j.Side)
	}
	return nil
}

func validateCaptureSettings(c *CaptureSettings) error {
	if c.History <= 0 {
		return fmt.Errorf("capture.history must be positive")
	}
	return nil
}

func validateSimulationSettings(s *SimulationSettings) error {
	if s.Duration <= 0 {
		return fmt.Errorf("simulation.duration must be positive")
	}
	if s.Pipelines < 1 {
		return fmt.Errorf("simulation.pipelines must be at least 1")
	}
	return nil
}

func validateTelemetrySettings(t *TelemetrySettings) error {
	if t.Enabled && t.DSN == "" {
		return fmt.Errorf("telemetry.dsn is required when telemetry is enabled")
	}
	if t.SampleRate < 0 || t.SampleRate > 1 {
		return fmt.Errorf("telemetry.sample_rate must be within [0, 1]")
	}
	return nil
}
