package frame

import (
	"github.com/tphakala/fragring/internal/errors"
	"github.com/tphakala/fragring/internal/logger"
)

// ComponentFrame identifies frame layer errors
const ComponentFrame = "frame"

// ErrClosed is returned for any operation on a closed stream or client.
var ErrClosed = errors.New(errors.NewStd("frame: stream closed")).
	Component(ComponentFrame).
	Category(errors.CategoryInvalidClient).
	Build()

func invalidArgument(format string, args ...any) error {
	return errors.Newf(format, args...).
		Component(ComponentFrame).
		Category(errors.CategoryValidation).
		Build()
}

// GetLogger returns the frame package logger
func GetLogger() logger.Logger {
	return logger.Global().Module("frame")
}
