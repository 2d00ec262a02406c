package ringbuf

import "github.com/tphakala/fragring/internal/logger"

// GetLogger returns the ringbuf package logger scoped to the ringbuf module.
func GetLogger() logger.Logger {
	return logger.Global().Module("ringbuf")
}

// noteOverrun emits a rate-limited warning. Overruns between two warnings are
// summed into the next one.
func (b *Buffer) noteOverrun(r *Reader, dropped int) {
	b.recorder.RecordOverrun(b.name, dropped)

	b.suppressedOverruns++
	b.suppressedDropBytes += dropped
	if !b.overrunLimiter.Allow() {
		return
	}

	b.log.Warn("reader overrun, oldest data dropped",
		logger.Int("reader", r.id),
		logger.Int("dropped_bytes", dropped),
		logger.Int("overruns_since_last_log", b.suppressedOverruns),
		logger.Int("dropped_since_last_log", b.suppressedDropBytes),
		logger.Int("capacity", b.capacity),
		logger.Error(ErrOverrun))
	b.suppressedOverruns = 0
	b.suppressedDropBytes = 0
}
