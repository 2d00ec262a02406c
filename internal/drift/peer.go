// Package drift estimates and corrects the timing offset between two
// independently clocked stages sharing a buffer.
//
// A Controller measures elapsed time against the data that arrived over the
// same period and publishes the difference to a PeerSync once it exceeds a
// tolerance. A ThresholdAdjuster watches a reader's fill level and nudges a
// Clock by a constant step when it leaves the band between two thresholds.
package drift

import (
	"sync"
	"time"
)

// Clock applies signed timing adjustments. Positive values speed the clock up.
type Clock interface {
	AdjustMicros(us int64)
}

// ClockFunc adapts a function to Clock.
type ClockFunc func(us int64)

// AdjustMicros implements Clock
func (f ClockFunc) AdjustMicros(us int64) { f(us) }

// PeerState is a snapshot of a PeerSync.
type PeerState struct {
	DriftUS int64         // last published drift
	Window  time.Duration // measurement period DriftUS accumulated over
	TotalUS int64         // sum of every published drift
	Updates uint64
	Updated time.Time
}

// PeerSync is the shared structure a controller publishes drift into. The
// peer either polls Snapshot or waits on Notify. It is safe for concurrent use.
type PeerSync struct {
	mu     sync.Mutex
	state  PeerState
	notify chan struct{}
}

// NewPeerSync returns an empty channel
func NewPeerSync() *PeerSync {
	return &PeerSync{notify: make(chan struct{}, 1)}
}

// Publish stores a drift value measured over window and wakes a waiting
// peer. Notifications coalesce; the peer reads the latest state.
func (p *PeerSync) Publish(driftUS int64, window time.Duration, at time.Time) {
	p.mu.Lock()
	p.state.DriftUS = driftUS
	p.state.Window = window
	p.state.TotalUS += driftUS
	p.state.Updates++
	p.state.Updated = at
	p.mu.Unlock()

	select {
	case p.notify <- struct{}{}:
	default:
	}
}

// Snapshot returns the current state
func (p *PeerSync) Snapshot() PeerState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Notify returns a channel that receives after each Publish.
func (p *PeerSync) Notify() <-chan struct{} {
	return p.notify
}
