package drift

import (
	"github.com/tphakala/fragring/internal/errors"
	"github.com/tphakala/fragring/internal/logger"
)

// ComponentDrift identifies drift controller errors
const ComponentDrift = "drift"

// ErrNotReady is returned before the observed reader has received data.
var ErrNotReady = errors.New(errors.NewStd("drift: no data received yet")).
	Component(ComponentDrift).
	Category(errors.CategoryNotReady).
	Build()

func invalidConfig(format string, args ...any) error {
	return errors.Newf(format, args...).
		Component(ComponentDrift).
		Category(errors.CategoryValidation).
		Build()
}

// GetLogger returns the drift package logger
func GetLogger() logger.Logger {
	return logger.Global().Module("drift")
}

// Recorder receives controller events. metrics.DriftMetrics implements it.
type Recorder interface {
	RecordPending(controller string, micros int64)
	RecordPublish(controller string, driftMicros, totalMicros int64)
	RecordAdjustment(controller string, micros int64)
}

type nopRecorder struct{}

func (nopRecorder) RecordPending(string, int64)        {}
func (nopRecorder) RecordPublish(string, int64, int64) {}
func (nopRecorder) RecordAdjustment(string, int64)     {}
