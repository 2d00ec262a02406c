package ringbuf

// Write copies p into the ring and never blocks. Every reader whose free
// space is smaller than len(p) is force-advanced so that it keeps the most
// recent capacity bytes; in that case the data is still written and
// ErrOverrun is returned. When len(p) exceeds the capacity only its last
// capacity bytes are stored.
func (b *Buffer) Write(w *Writer, p []byte) error {
	if err := b.checkWriter(w); err != nil {
		return err
	}

	n := len(p)
	if n == 0 {
		return nil
	}

	capacity := b.capacity
	src := p
	if n > capacity {
		b.wpos = b.advance(b.wpos, (n-capacity)%capacity)
		src = p[n-capacity:]
	}
	b.wpos = b.copyIn(b.wpos, src)
	b.writeCounter = min(b.writeCounter+n, capacity)

	overrun := false
	for _, r := range b.readers {
		r.primed = true
		if n <= capacity-r.unread {
			r.unread += n
			continue
		}

		dropped := r.unread + n - capacity
		r.unread = capacity
		r.pos = b.wpos
		r.overruns++
		overrun = true
		b.noteOverrun(r, dropped)
	}

	if overrun {
		return ErrOverrun
	}
	return nil
}

// Read copies min(len(p), unread) bytes into p and advances the reader.
// When len(p) exceeds the unread count the available bytes are still
// delivered and ErrUnderrun is returned.
func (b *Buffer) Read(r *Reader, p []byte) (int, error) {
	if err := b.checkReader(r); err != nil {
		return 0, err
	}

	n := min(len(p), r.unread)
	if n > 0 {
		r.pos = b.copyOut(r.pos, p[:n])
		r.unread -= n
	}

	if n < len(p) {
		b.recorder.RecordUnderrun(b.name, len(p)-n)
		return n, ErrUnderrun
	}
	return n, nil
}

// Peek copies up to len(p) unread bytes without advancing the reader.
func (b *Buffer) Peek(r *Reader, p []byte) (int, error) {
	if err := b.checkReader(r); err != nil {
		return 0, err
	}

	n := min(len(p), r.unread)
	b.copyOut(r.pos, p[:n])
	return n, nil
}

// ReadAdjust advances the reader so that at most target bytes stay unread,
// discarding the oldest data. It returns the resulting unread count.
func (b *Buffer) ReadAdjust(r *Reader, target int) (int, error) {
	if err := b.checkReader(r); err != nil {
		return 0, err
	}
	if target < 0 {
		return r.unread, invalidArgument("ringbuf: negative read adjust target %d", target)
	}

	if drop := r.unread - min(target, r.unread); drop > 0 {
		r.pos = b.advance(r.pos, drop)
		r.unread -= drop
	}
	return r.unread, nil
}
