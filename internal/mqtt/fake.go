package mqtt

import (
	"sync"

	"github.com/sweeney/foosball-sensor/internal/broadcast"
	"github.com/sweeney/foosball-sensor/internal/game"
)

// FakePublisher records published messages for test assertions.
type FakePublisher struct {
	mu sync.Mutex

	// Snapshots contains every snapshot published to the state topic.
	Snapshots []game.Data

	// Wins contains every announced win.
	Wins []game.Win

	// WinPayloads contains the JSON payloads for announced wins.
	WinPayloads [][]byte

	// SystemEvents contains all system events that were published.
	SystemEvents []SystemEvent

	// SystemPayloads contains the JSON payloads for system events.
	SystemPayloads [][]byte

	// BroadcastError, if set, will be returned by Broadcast.
	BroadcastError error

	// AnnounceError, if set, will be returned by Announce.
	AnnounceError error

	// PublishSystemError, if set, will be returned by PublishSystem.
	PublishSystemError error

	// Closed tracks if Close was called.
	Closed bool

	// Connected controls the return value of IsConnected.
	Connected bool
}

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

// Broadcast records the snapshot.
func (f *FakePublisher) Broadcast(snap game.Data) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.BroadcastError != nil {
		return f.BroadcastError
	}
	f.Snapshots = append(f.Snapshots, snap)
	return nil
}

// Announce records the win.
func (f *FakePublisher) Announce(win game.Win) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.AnnounceError != nil {
		return f.AnnounceError
	}
	payload, err := broadcast.FormatAnnouncement(win)
	if err != nil {
		return err
	}
	f.Wins = append(f.Wins, win)
	f.WinPayloads = append(f.WinPayloads, payload)
	return nil
}

// PublishSystem records the system event.
func (f *FakePublisher) PublishSystem(event SystemEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.PublishSystemError != nil {
		return f.PublishSystemError
	}
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return err
	}
	f.SystemEvents = append(f.SystemEvents, event)
	f.SystemPayloads = append(f.SystemPayloads, payload)
	return nil
}

// Close marks the publisher as closed.
func (f *FakePublisher) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}

// IsConnected reports whether the fake publisher is "connected".
func (f *FakePublisher) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Connected
}

// Reset clears recorded messages and injected errors.
func (f *FakePublisher) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Snapshots = nil
	f.Wins = nil
	f.WinPayloads = nil
	f.SystemEvents = nil
	f.SystemPayloads = nil
	f.BroadcastError = nil
	f.AnnounceError = nil
	f.PublishSystemError = nil
	f.Closed = false
	f.Connected = false
}
