// Package ringbuf implements a fragmented ring buffer: a circular byte buffer
// built from a ring of separately allocated chunks, with a single writer and
// any number of independent readers.
//
// Capacity follows demand. Each reader declares a base size plus an optional
// extra requirement and the ring grows or shrinks in whole chunks to cover the
// largest declaration. Writes never block: a reader that falls behind is
// force-advanced so that it keeps the most recent data, and a read that asks
// for more than is buffered returns what is there together with ErrUnderrun.
//
// Chunks live in an arena slice and are linked by index, so removing a chunk
// is a swap-remove followed by an index fix-up of every cursor.
//
// A Buffer is not safe for concurrent use. All operations on one buffer must
// come from the goroutine that owns it. Memory is allocated only by Create
// and by resize operations, never by Write or Read.
package ringbuf
