package events

import (
	"sync/atomic"
	"time"

	"github.com/coder/quartz"
	"github.com/sweeney/foosball-sensor/internal/game"
)

// DefaultWindow is the minimum gap between two accepted edges on one channel.
const DefaultWindow = 200 * time.Millisecond

// Policy selects which edge the debounce window is measured from.
type Policy int

const (
	// FromLastEdge measures from the most recent raw edge, accepted or not.
	// A continuous bounce train keeps the channel suppressed until it settles.
	FromLastEdge Policy = iota

	// FromLastAccepted measures from the last accepted edge only.
	FromLastAccepted
)

// String returns the policy name used in config and logs.
func (p Policy) String() string {
	if p == FromLastAccepted {
		return "last_accepted"
	}
	return "last_edge"
}

// ParsePolicy converts a config value into a Policy. Empty means FromLastEdge.
func ParsePolicy(s string) (Policy, bool) {
	switch s {
	case "", "last_edge":
		return FromLastEdge, true
	case "last_accepted":
		return FromLastAccepted, true
	}
	return FromLastEdge, false
}

// Counts tracks edges seen by one debouncer since startup.
type Counts struct {
	Accepted   uint64
	Suppressed uint64
}

// Debouncer collapses electrical bounce on one channel into a single event.
// Edge is called from that channel's interrupt context only; it never blocks
// and never allocates.
type Debouncer struct {
	event  game.Event
	out    Sender
	clock  quartz.Clock
	window time.Duration
	policy Policy

	last       atomic.Int64 // unix nanos of the tracked edge
	accepted   atomic.Uint64
	suppressed atomic.Uint64
}

// NewDebouncer creates a debouncer that pushes event to out for each accepted edge.
func NewDebouncer(event game.Event, out Sender, clock quartz.Clock, window time.Duration, policy Policy) *Debouncer {
	return &Debouncer{
		event:  event,
		out:    out,
		clock:  clock,
		window: window,
		policy: policy,
	}
}

// Edge handles one raw falling edge.
func (d *Debouncer) Edge() {
	now := d.clock.Now().UnixNano()
	accept := time.Duration(now-d.last.Load()) > d.window

	if accept || d.policy == FromLastEdge {
		d.last.Store(now)
	}
	if !accept {
		d.suppressed.Add(1)
		return
	}
	d.accepted.Add(1)
	d.out.Push(d.event)
}

// Event returns the event emitted on accepted edges.
func (d *Debouncer) Event() game.Event {
	return d.event
}

// Counts returns a snapshot of the accepted and suppressed edge counters.
func (d *Debouncer) Counts() Counts {
	return Counts{
		Accepted:   d.accepted.Load(),
		Suppressed: d.suppressed.Load(),
	}
}
