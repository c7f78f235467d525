package broadcast

import (
	"sync"

	"github.com/sweeney/foosball-sensor/internal/game"
)

// FakeSink records snapshots and announcements for test assertions.
type FakeSink struct {
	mu sync.Mutex

	// Snapshots contains every snapshot that was broadcast successfully.
	Snapshots []game.Data

	// Payloads contains the JSON form of each recorded snapshot.
	Payloads [][]byte

	// Wins contains every announced win.
	Wins []game.Win

	// BroadcastError, if set, will be returned by Broadcast.
	BroadcastError error

	// AnnounceError, if set, will be returned by Announce.
	AnnounceError error

	// Notify, if set, receives every snapshot passed to Broadcast
	// (including failed ones) after it has been recorded.
	Notify chan game.Data
}

// NewFakeSink creates a FakeSink for testing.
func NewFakeSink() *FakeSink {
	return &FakeSink{}
}

// Broadcast records the snapshot.
func (f *FakeSink) Broadcast(snap game.Data) error {
	f.mu.Lock()
	err := f.BroadcastError
	if err == nil {
		payload, ferr := FormatSnapshot(snap)
		if ferr != nil {
			err = ferr
		} else {
			f.Snapshots = append(f.Snapshots, snap)
			f.Payloads = append(f.Payloads, payload)
		}
	}
	notify := f.Notify
	f.mu.Unlock()

	if notify != nil {
		notify <- snap
	}
	return err
}

// Announce records the win.
func (f *FakeSink) Announce(win game.Win) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.AnnounceError != nil {
		return f.AnnounceError
	}
	f.Wins = append(f.Wins, win)
	return nil
}

// Last returns the most recently recorded snapshot.
func (f *FakeSink) Last() (game.Data, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.Snapshots) == 0 {
		return game.Data{}, false
	}
	return f.Snapshots[len(f.Snapshots)-1], true
}
