package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingReporter struct {
	reported []*EnhancedError
}

func (r *recordingReporter) ReportError(ee *EnhancedError) {
	r.reported = append(r.reported, ee)
	ee.MarkReported()
}

func (r *recordingReporter) IsEnabled() bool { return true }

func TestFastPathNoTelemetry(t *testing.T) {
	SetTelemetryReporter(nil)

	ee := New(fmt.Errorf("test error")).Build()

	assert.Equal(t, "test error", ee.Error())
	assert.Equal(t, ComponentUnknown, ee.GetComponent())
	assert.Equal(t, CategoryGeneric, ee.Category)
}

func TestBuilderContext(t *testing.T) {
	ee := Newf("chunk %d failed", 3).
		Component("ringbuf").
		Category(CategoryAllocation).
		Context("chunk_size", 1024).
		Build()

	assert.Equal(t, "chunk 3 failed", ee.Error())
	assert.Equal(t, "ringbuf", ee.GetComponent())
	assert.Equal(t, 1024, ee.GetContext()["chunk_size"])

	// The returned context is a copy
	ctx := ee.GetContext()
	ctx["chunk_size"] = 0
	assert.Equal(t, 1024, ee.GetContext()["chunk_size"])
}

func TestIsMatchesByCategory(t *testing.T) {
	sentinel := New(NewStd("underrun")).Category(CategoryUnderrun).Build()
	other := New(NewStd("overrun")).Category(CategoryOverrun).Build()

	dynamic := Newf("read of %d bytes short", 12).Category(CategoryUnderrun).Build()
	wrapped := fmt.Errorf("frame read: %w", dynamic)

	assert.ErrorIs(t, dynamic, sentinel)
	assert.ErrorIs(t, wrapped, sentinel)
	assert.NotErrorIs(t, dynamic, other)
	assert.True(t, IsCategory(wrapped, CategoryUnderrun))
	assert.False(t, IsNotFound(wrapped))
}

func TestTelemetryReporterReceivesErrors(t *testing.T) {
	reporter := &recordingReporter{}
	SetTelemetryReporter(reporter)
	t.Cleanup(func() { SetTelemetryReporter(nil) })

	ee := New(NewStd("chunk allocation failed")).Build()

	require.Len(t, reporter.reported, 1)
	assert.Same(t, ee, reporter.reported[0])
	assert.True(t, ee.IsReported())
	assert.Equal(t, CategoryAllocation, ee.Category)
}

func TestDetectCategory(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		component string
		want      ErrorCategory
	}{
		{"underrun message", NewStd("ring underrun"), "", CategoryUnderrun},
		{"overrun message", NewStd("writer overrun"), "", CategoryOverrun},
		{"invalid message", NewStd("invalid chunk hint"), "", CategoryValidation},
		{"config component", NewStd("boom"), "configuration", CategoryConfiguration},
		{"nil error", nil, "", CategoryGeneric},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, detectCategory(tt.err, tt.component))
		})
	}
}

func TestBasicPathScrub(t *testing.T) {
	scrubbed := basicPathScrub("cannot open /home/user/clips/out.wav for id 0123456789abcdef0123456789abcdef")
	assert.NotContains(t, scrubbed, "/home/user")
	assert.Contains(t, scrubbed, "[PATH]")
	assert.Contains(t, scrubbed, "[ID_REDACTED]")
}
