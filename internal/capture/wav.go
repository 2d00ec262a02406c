package capture

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/tphakala/fragring/internal/errors"
	"github.com/tphakala/fragring/internal/frame"
	"github.com/tphakala/fragring/internal/logger"
)

// ExportWAV writes the most recent d of audio to w as a WAV file.
func (b *Buffer) ExportWAV(w io.WriteSeeker, d time.Duration) error {
	pcm, start, err := b.Snapshot(d)
	if err != nil {
		return err
	}
	if err := b.encode(w, pcm); err != nil {
		return err
	}
	b.log.Debug("clip exported",
		logger.Int("bytes", len(pcm)),
		logger.Time("start", start))
	return nil
}

// SaveWAV exports the most recent d of audio to a file, creating parent
// directories as needed.
func (b *Buffer) SaveWAV(path string, d time.Duration) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fileError(err, path, "create-directory")
	}
	f, err := os.Create(path)
	if err != nil {
		return fileError(err, path, "create-file")
	}
	if err := b.ExportWAV(f, d); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fileError(err, path, "close-file")
	}
	return nil
}

// WAVBytes returns the most recent d of audio as an in-memory WAV file.
func (b *Buffer) WAVBytes(d time.Duration) ([]byte, error) {
	var sb seekableBuffer
	if err := b.ExportWAV(&sb, d); err != nil {
		return nil, err
	}
	return sb.Bytes(), nil
}

func (b *Buffer) encode(w io.WriteSeeker, pcm []byte) error {
	format := &audio.Format{NumChannels: b.cfg.Channels, SampleRate: b.cfg.SampleRate}
	samples, err := frame.DecodePCM(pcm, format, b.cfg.BitDepth)
	if err != nil {
		return err
	}

	enc := wav.NewEncoder(w, b.cfg.SampleRate, b.cfg.BitDepth, b.cfg.Channels, 1)
	if err := enc.Write(samples); err != nil {
		_ = enc.Close()
		return encodeError(err, b.cfg.Name)
	}
	if err := enc.Close(); err != nil {
		return encodeError(err, b.cfg.Name)
	}
	return nil
}

// seekableBuffer is an in-memory io.WriteSeeker; the WAV encoder seeks back
// to patch the header sizes.
type seekableBuffer struct {
	buf []byte
	pos int64
}

func (s *seekableBuffer) Write(p []byte) (int, error) {
	end := s.pos + int64(len(p))
	if end > int64(len(s.buf)) {
		s.buf = append(s.buf, make([]byte, end-int64(len(s.buf)))...)
	}
	copy(s.buf[s.pos:end], p)
	s.pos = end
	return len(p), nil
}

func (s *seekableBuffer) Seek(offset int64, whence int) (int64, error) {
	var next int64
	switch whence {
	case io.SeekStart:
		next = offset
	case io.SeekCurrent:
		next = s.pos + offset
	case io.SeekEnd:
		next = int64(len(s.buf)) + offset
	default:
		return 0, errors.NewStd("capture: invalid whence")
	}
	if next < 0 {
		return 0, errors.NewStd("capture: negative seek position")
	}
	s.pos = next
	return next, nil
}

func (s *seekableBuffer) Bytes() []byte { return bytes.Clone(s.buf) }

func encodeError(err error, name string) error {
	return errors.New(err).
		Component(ComponentCapture).
		Category(errors.CategoryAudio).
		Context("operation", "wav-encode").
		Context("buffer", name).
		Build()
}

func fileError(err error, path, op string) error {
	return errors.New(err).
		Component(ComponentCapture).
		Category(errors.CategoryFileIO).
		Context("operation", op).
		Context("path", path).
		Build()
}
