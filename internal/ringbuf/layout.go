package ringbuf

// Layout returns the chunk sizes Create allocates for a capacity: as many
// full chunkSizeHint chunks as fit, then one undersized remainder chunk when
// the capacity is not an exact multiple. It returns nil for non-positive input.
func Layout(capacity, chunkSizeHint int) []int {
	if capacity <= 0 || chunkSizeHint <= 0 {
		return nil
	}

	full, rem := capacity/chunkSizeHint, capacity%chunkSizeHint
	n := full
	if rem > 0 {
		n++
	}

	sizes := make([]int, 0, n)
	for range full {
		sizes = append(sizes, chunkSizeHint)
	}
	if rem > 0 {
		sizes = append(sizes, rem)
	}
	return sizes
}

// chunk is one arena slot. next and prev are arena indices.
type chunk struct {
	id   uint64
	data []byte
	next int
	prev int
}

// ChunkInfo describes a linked chunk.
type ChunkInfo struct {
	ID   uint64
	Size int
}

// cursor is a position in the ring. off is always < len(chunks[chunk].data).
type cursor struct {
	chunk int
	off   int
}

// advance moves c forward by n bytes, wrapping through the ring.
func (b *Buffer) advance(c cursor, n int) cursor {
	for n > 0 {
		rem := len(b.chunks[c.chunk].data) - c.off
		if n < rem {
			c.off += n
			return c
		}
		n -= rem
		c = cursor{chunk: b.chunks[c.chunk].next}
	}
	return c
}

// retreat moves c backward by n bytes, 0 <= n <= capacity.
func (b *Buffer) retreat(c cursor, n int) cursor {
	if n == 0 || b.capacity == 0 {
		return c
	}
	return b.advance(c, (b.capacity-n%b.capacity)%b.capacity)
}

// distance returns the forward byte distance from a to c, in [0, capacity).
func (b *Buffer) distance(a, c cursor) int {
	if a.chunk == c.chunk && a.off <= c.off {
		return c.off - a.off
	}
	d := len(b.chunks[a.chunk].data) - a.off
	for i := b.chunks[a.chunk].next; i != c.chunk; i = b.chunks[i].next {
		d += len(b.chunks[i].data)
	}
	return d + c.off
}

// copyIn writes p starting at c and returns the cursor after the last byte.
func (b *Buffer) copyIn(c cursor, p []byte) cursor {
	for len(p) > 0 {
		ch := &b.chunks[c.chunk]
		n := copy(ch.data[c.off:], p)
		p = p[n:]
		c.off += n
		if c.off == len(ch.data) {
			c = cursor{chunk: ch.next}
		}
	}
	return c
}

// copyOut fills p starting at c and returns the cursor after the last byte.
func (b *Buffer) copyOut(c cursor, p []byte) cursor {
	for len(p) > 0 {
		ch := &b.chunks[c.chunk]
		n := copy(p, ch.data[c.off:])
		p = p[n:]
		c.off += n
		if c.off == len(ch.data) {
			c = cursor{chunk: ch.next}
		}
	}
	return c
}
