package ringbuf

import (
	"github.com/tphakala/fragring/internal/logger"
)

// RequestResize records that r needs extra bytes beyond its base size and
// reconciles the ring. The request is reverted if growing fails.
func (b *Buffer) RequestResize(r *Reader, extra int) error {
	if err := b.checkReader(r); err != nil {
		return err
	}
	if extra < 0 {
		return invalidArgument("ringbuf: negative resize request %d", extra)
	}

	prev := r.extra
	r.extra = extra
	if err := b.reconcile(); err != nil {
		r.extra = prev
		return err
	}
	return nil
}

// TargetCapacity returns the capacity the ring converges to: the largest of
// the created capacity, the writer's base size and every reader's base size
// plus requested extra.
func (b *Buffer) TargetCapacity() int {
	target := b.created
	if b.writer != nil {
		target = max(target, b.writer.base)
	}
	for _, r := range b.readers {
		target = max(target, r.base+r.extra)
	}
	return target
}

func (b *Buffer) reconcile() error {
	target := b.TargetCapacity()
	switch {
	case target > b.capacity:
		return b.grow(target - b.capacity)
	case target < b.capacity:
		b.shrink(target)
	}
	return nil
}

// grow links at least need new bytes into the ring at the write position.
//
// When the write position is at the start of a chunk the new chunks go in
// front of it and the writer moves onto them, so no buffered data is
// disturbed. Otherwise they go right after the writer's chunk; any reader
// whose unread window reaches back past that point loses the bytes that
// would now be separated from the rest of its window.
func (b *Buffer) grow(need int) error {
	sizes := Layout(need, b.hint)
	data, err := b.allocChunks(sizes)
	if err != nil {
		b.log.Error("ring buffer growth failed",
			logger.Int("capacity", b.capacity),
			logger.Int("requested", need),
			logger.Error(err))
		return err
	}

	oldCapacity := b.capacity
	w := b.wpos.chunk

	if b.wpos.off == 0 {
		first := b.insertBefore(w, data)
		b.wpos = cursor{chunk: first}
		for _, r := range b.readers {
			if r.unread == 0 {
				r.pos = b.wpos
			}
		}
	} else {
		next := b.chunks[w].next
		// Valid history is what lies between the insertion point and the writer
		valid := b.distance(cursor{chunk: next}, b.wpos)
		b.insertBefore(next, data)
		for _, r := range b.readers {
			if r.unread > valid {
				r.unread = valid
				r.pos = cursor{chunk: next}
			}
		}
		b.writeCounter = min(b.writeCounter, valid)
	}

	b.recorder.RecordResize(b.name, ResizeGrow, b.capacity, len(b.chunks))
	b.log.Debug("ring buffer grown",
		logger.Int("from", oldCapacity),
		logger.Int("to", b.capacity),
		logger.Int("chunks", len(b.chunks)))
	return nil
}

// insertBefore links data as new chunks in front of chunk at and returns the
// index of the first new chunk. Existing indices are unchanged.
func (b *Buffer) insertBefore(at int, data [][]byte) int {
	prev := b.chunks[at].prev
	first := len(b.chunks)
	for _, d := range data {
		idx := len(b.chunks)
		b.chunks = append(b.chunks, chunk{
			id:   b.newChunkID(),
			data: d,
			prev: prev,
			next: at,
		})
		b.chunks[prev].next = idx
		prev = idx
		b.capacity += len(d)
	}
	b.chunks[at].prev = prev
	return first
}

// shrink removes whole chunks following the writer's chunk while the ring
// stays at or above target. The writer's chunk is never removed. Readers
// whose unread window covered removed memory restart at the write position
// with nothing unread.
func (b *Buffer) shrink(target int) {
	w := b.wpos.chunk

	newCapacity := b.capacity
	remove := 0
	for c := b.chunks[w].next; c != w; c = b.chunks[c].next {
		size := len(b.chunks[c].data)
		if newCapacity-size < target {
			break
		}
		newCapacity -= size
		remove++
	}
	if remove == 0 {
		return
	}

	oldCapacity := b.capacity
	valid := newCapacity - (len(b.chunks[w].data) - b.wpos.off)

	reset := 0
	for _, r := range b.readers {
		if r.unread > valid {
			r.pos = b.wpos
			r.unread = 0
			reset++
		}
	}
	b.writeCounter = min(b.writeCounter, valid)

	for range remove {
		b.removeChunk(b.chunks[b.wpos.chunk].next)
	}

	b.recorder.RecordResize(b.name, ResizeShrink, b.capacity, len(b.chunks))
	b.log.Debug("ring buffer shrunk",
		logger.Int("from", oldCapacity),
		logger.Int("to", b.capacity),
		logger.Int("chunks", len(b.chunks)),
		logger.Int("readers_reset", reset))
}

// removeChunk unlinks and frees chunk i, then swap-removes it from the arena
// and rewrites every index that pointed at the moved slot. No cursor may
// reference i.
func (b *Buffer) removeChunk(i int) {
	c := b.chunks[i]
	b.chunks[c.prev].next = c.next
	b.chunks[c.next].prev = c.prev
	if b.head == i {
		b.head = c.next
	}
	b.alloc.Free(c.data)
	b.capacity -= len(c.data)

	last := len(b.chunks) - 1
	if i != last {
		moved := b.chunks[last]
		if moved.prev == last {
			moved.prev = i
		}
		if moved.next == last {
			moved.next = i
		}
		b.chunks[i] = moved
		b.chunks[moved.prev].next = i
		b.chunks[moved.next].prev = i
		b.relocate(last, i)
	}

	b.chunks[last] = chunk{}
	b.chunks = b.chunks[:last]
}

func (b *Buffer) relocate(from, to int) {
	if b.head == from {
		b.head = to
	}
	if b.wpos.chunk == from {
		b.wpos.chunk = to
	}
	for _, r := range b.readers {
		if r.pos.chunk == from {
			r.pos.chunk = to
		}
	}
}
