package ringbuf

import (
	"github.com/tphakala/fragring/internal/errors"
)

// ComponentRingBuf identifies ring buffer errors
const ComponentRingBuf = "ringbuf"

// Sentinels are built once so hot paths can return them without allocating.
// Errors returned with extra context share the sentinel's category, so
// errors.Is matches either form.
var (
	// ErrAllocation is returned when chunk memory cannot be obtained
	ErrAllocation = errors.New(errors.NewStd("ringbuf: chunk allocation failed")).
			Component(ComponentRingBuf).
			Category(errors.CategoryAllocation).
			Build()

	// ErrAlreadyRegistered is returned when a second writer registers
	ErrAlreadyRegistered = errors.New(errors.NewStd("ringbuf: writer already registered")).
				Component(ComponentRingBuf).
				Category(errors.CategoryConflict).
				Build()

	// ErrUnderrun is returned by reads that asked for more than was buffered
	ErrUnderrun = errors.New(errors.NewStd("ringbuf: underrun")).
			Component(ComponentRingBuf).
			Category(errors.CategoryUnderrun).
			Build()

	// ErrOverrun is returned by writes that force-advanced at least one reader.
	// The data was written.
	ErrOverrun = errors.New(errors.NewStd("ringbuf: overrun")).
			Component(ComponentRingBuf).
			Category(errors.CategoryOverrun).
			Build()

	// ErrInvalidClient is returned for unknown or deregistered clients and for
	// any operation on a destroyed buffer
	ErrInvalidClient = errors.New(errors.NewStd("ringbuf: invalid client")).
				Component(ComponentRingBuf).
				Category(errors.CategoryInvalidClient).
				Build()

	// ErrInvalidArgument is returned for negative sizes and empty layouts
	ErrInvalidArgument = errors.New(errors.NewStd("ringbuf: invalid argument")).
				Component(ComponentRingBuf).
				Category(errors.CategoryValidation).
				Build()
)

func allocationError(err error, size, chunkCount int) error {
	return errors.New(err).
		Component(ComponentRingBuf).
		Category(errors.CategoryAllocation).
		Context("operation", "chunk_alloc").
		Context("chunk_size", size).
		Context("chunks_allocated", chunkCount).
		Build()
}

func invalidArgument(format string, args ...any) error {
	return errors.Newf(format, args...).
		Component(ComponentRingBuf).
		Category(errors.CategoryValidation).
		Build()
}
