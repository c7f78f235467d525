// Package broadcast defines where game snapshots go after every tick.
package broadcast

import (
	"encoding/json"
	"errors"

	"github.com/sweeney/foosball-sensor/internal/game"
)

// Sink receives the scoreboard once per tick.
type Sink interface {
	// Broadcast delivers a snapshot to all current subscribers.
	// Returns error if delivery fails (must not stop the tick loop).
	Broadcast(snap game.Data) error
}

// Announcer receives win notifications.
type Announcer interface {
	Announce(win game.Win) error
}

// FormatSnapshot returns the wire form of a snapshot:
// {"time":<uint>,"blue_goals":<uint>,"red_goals":<uint>}.
func FormatSnapshot(snap game.Data) ([]byte, error) {
	return json.Marshal(snap)
}

// AnnouncementPayload is the wire form of a win notification.
type AnnouncementPayload struct {
	Winner  string    `json:"winner"`
	Message string    `json:"message"`
	Final   game.Data `json:"final"`
}

// FormatAnnouncement returns the wire form of a win notification.
func FormatAnnouncement(win game.Win) ([]byte, error) {
	return json.Marshal(AnnouncementPayload{
		Winner:  string(win.Side),
		Message: win.String(),
		Final:   win.Final,
	})
}

// Multi fans a snapshot out to several sinks. Every sink is tried; failures
// are joined.
type Multi []Sink

// Broadcast implements Sink.
func (m Multi) Broadcast(snap game.Data) error {
	var errs []error
	for _, s := range m {
		if err := s.Broadcast(snap); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Announce forwards win to every sink that is also an Announcer.
func (m Multi) Announce(win game.Win) error {
	var errs []error
	for _, s := range m {
		a, ok := s.(Announcer)
		if !ok {
			continue
		}
		if err := a.Announce(win); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
