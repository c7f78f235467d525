// Package status provides a thread-safe view of the live game for readers
// outside the tick loop (HTTP handlers, MQTT lifecycle events).
// Only the tick loop writes; everyone else takes a Snapshot.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/foosball-sensor/internal/events"
	"github.com/sweeney/foosball-sensor/internal/game"
	"github.com/sweeney/foosball-sensor/internal/gpio"
)

// Config contains daemon configuration for display.
type Config struct {
	TickMs         int64
	DebounceMs     int64
	DebouncePolicy string
	MaxScore       int
	Broker         string
	ListenAddr     string
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	State         string
	Game          game.Data
	Ticks         uint64
	LastWin       *game.Win
	BlueWins      int
	RedWins       int
	Sensors       map[gpio.Role]events.Counts
	PendingEvents int
	Viewers       int
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// Update records the state after a tick.
// Called from runLoop on every tick.
func (t *Tracker) Update(state string, data game.Data, pending int) {
	t.mu.Lock()
	t.snap.State = state
	t.snap.Game = data
	t.snap.PendingEvents = pending
	t.snap.Ticks++
	t.mu.Unlock()
}

// RecordWin stores the latest winner and bumps that side's tally.
func (t *Tracker) RecordWin(win game.Win) {
	t.mu.Lock()
	w := win
	t.snap.LastWin = &w
	switch win.Side {
	case game.SideBlue:
		t.snap.BlueWins++
	case game.SideRed:
		t.snap.RedWins++
	}
	t.mu.Unlock()
}

// SetSensors replaces the per-sensor debounce counters.
// The map must not be modified afterwards.
func (t *Tracker) SetSensors(counts map[gpio.Role]events.Counts) {
	t.mu.Lock()
	t.snap.Sensors = counts
	t.mu.Unlock()
}

// SetViewers sets the number of connected websocket viewers.
func (t *Tracker) SetViewers(n int) {
	t.mu.Lock()
	t.snap.Viewers = n
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
