package logger

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModuleLoggerLevels(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		level   LogLevel
		emit    func(l Logger)
		visible bool
	}{
		{"debug hidden at info", LogLevelInfo, func(l Logger) { l.Debug("msg") }, false},
		{"info visible at info", LogLevelInfo, func(l Logger) { l.Info("msg") }, true},
		{"trace visible at trace", LogLevelTrace, func(l Logger) { l.Trace("msg") }, true},
		{"warn hidden at error", LogLevelError, func(l Logger) { l.Warn("msg") }, false},
		{"explicit level respects threshold", LogLevelWarn, func(l Logger) { l.Log(LogLevelDebug, "msg") }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var buf bytes.Buffer
			tt.emit(NewSlogLogger(&buf, tt.level))
			assert.Equal(t, tt.visible, buf.Len() > 0, buf.String())
		})
	}
}

func TestModuleAndFields(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := NewSlogLogger(&buf, LogLevelDebug).Module("ringbuf").Module("resize")
	log = log.With(String("ring", "capture"))
	log.Info("grew", Int("chunks", 3), Duration("took", 1500*time.Millisecond))

	out := buf.String()
	assert.Contains(t, out, "module=ringbuf.resize")
	assert.Contains(t, out, "ring=capture")
	assert.Contains(t, out, "chunks=3")
	assert.Contains(t, out, "took=1.5s")
	assert.NotContains(t, out, "time=")
}

func TestWithContextTraceID(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := NewSlogLogger(&buf, LogLevelInfo)
	log.WithContext(WithTraceID(context.Background(), "abc-123")).Info("hello")

	assert.Contains(t, buf.String(), "trace_id=abc-123")
}

func TestCentralLoggerFileOutput(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "logs", "out.log")
	cl, err := NewCentralLogger(&LoggingConfig{
		DefaultLevel: "debug",
		Timezone:     "UTC",
		Console:      &ConsoleOutput{Enabled: false},
		FileOutput:   &FileOutput{Enabled: true, Path: path, Level: "debug"},
		ModuleLevels: map[string]string{"drift": "warn"},
	})
	require.NoError(t, err)

	cl.Module("ringbuf").Debug("chunk added", Uint64("bytes", 4096))
	cl.Module("drift").Info("suppressed")
	require.NoError(t, cl.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var lines []map[string]any
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &rec))
		lines = append(lines, rec)
	}
	require.Len(t, lines, 1)
	assert.Equal(t, "ringbuf", lines[0]["module"])
	assert.Equal(t, "DEBUG", lines[0]["level"])
	assert.InDelta(t, 4096, lines[0]["bytes"], 0)
}

func TestNewCentralLoggerErrors(t *testing.T) {
	t.Parallel()

	_, err := NewCentralLogger(nil)
	require.Error(t, err)

	_, err = NewCentralLogger(&LoggingConfig{Timezone: "Nowhere/Invalid"})
	require.Error(t, err)
}

func TestErrorField(t *testing.T) {
	t.Parallel()

	assert.Nil(t, Error(nil).Value)
	assert.Equal(t, "boom", Error(fmt.Errorf("boom")).Value)
	assert.Equal(t, "error", Error(nil).Key)
}
