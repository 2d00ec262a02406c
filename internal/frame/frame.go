// Package frame layers container frames, side-channel metadata and stream
// flags over a ringbuf.Buffer.
//
// A Stream owns one ring writer and any number of ring readers. Payload bytes
// travel through the ring; metadata and flags are anchored at stream byte
// offsets and handed to each reader along with the bytes they belong to.
package frame

import (
	"strings"

	"github.com/tphakala/fragring/internal/errors"
)

// Flags mark stream events carried with a frame.
type Flags uint8

const (
	// FlagEndOfStream marks the last frame of a stream
	FlagEndOfStream Flags = 1 << iota
	// FlagDiscontinuity marks a frame that does not follow the previous one,
	// set by readers when buffered data was dropped
	FlagDiscontinuity
)

// Has reports whether all bits of v are set.
func (f Flags) Has(v Flags) bool { return f&v == v }

func (f Flags) String() string {
	if f == 0 {
		return "none"
	}
	var parts []string
	if f.Has(FlagEndOfStream) {
		parts = append(parts, "eos")
	}
	if f.Has(FlagDiscontinuity) {
		parts = append(parts, "discontinuity")
	}
	return strings.Join(parts, "|")
}

// Kind classifies a metadata node.
type Kind uint8

const (
	KindGeneric Kind = iota
	KindTimestamp
	KindFlush
)

// Metadata is one side-channel node travelling with the stream.
type Metadata struct {
	ID      uint64
	Kind    Kind
	Data    []byte
	DelayUS int64 // accumulated propagation delay
}

// List is an ordered metadata list.
type List struct {
	nodes []*Metadata
}

// Add appends m.
func (l *List) Add(m *Metadata) {
	l.nodes = append(l.nodes, m)
}

// Nodes returns the nodes in order. The slice is only valid until the next change.
func (l *List) Nodes() []*Metadata { return l.nodes }

// Len returns the node count
func (l *List) Len() int { return len(l.nodes) }

// Reset empties the list and keeps its storage.
func (l *List) Reset() {
	clear(l.nodes)
	l.nodes = l.nodes[:0]
}

// Frame is one container frame.
//
// When written, Payload is consumed from the front; Metadata and Flags are
// taken over by the stream and cleared. When read, Payload, Metadata and
// Flags are replaced.
type Frame struct {
	Payload  []byte
	Metadata List
	Flags    Flags
}

// Policy selects what ReadFrame does when less than a frame is buffered.
type Policy uint8

const (
	// PolicyDrain delivers the bytes that are there
	PolicyDrain Policy = iota
	// PolicyZeroPad delivers the bytes that are there followed by silence
	PolicyZeroPad
	// PolicyHold consumes nothing until a whole frame is buffered or the
	// buffered data ends the stream
	PolicyHold
)

func (p Policy) String() string {
	switch p {
	case PolicyDrain:
		return "drain"
	case PolicyZeroPad:
		return "zeropad"
	case PolicyHold:
		return "hold"
	default:
		return "unknown"
	}
}

// ParsePolicy parses the configuration spelling of a policy.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "drain":
		return PolicyDrain, nil
	case "zeropad", "zero-pad", "":
		return PolicyZeroPad, nil
	case "hold":
		return PolicyHold, nil
	default:
		return 0, errors.Newf("frame: unknown underrun policy %q", s).
			Component(ComponentFrame).
			Category(errors.CategoryValidation).
			Context("policy", s).
			Build()
	}
}
