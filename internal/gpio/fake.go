package gpio

import (
	"fmt"
	"sync"
)

// FakeSource is a test double that lets tests fire edges by hand.
type FakeSource struct {
	mu       sync.Mutex
	handlers map[Role]EdgeHandler

	// Watched contains every pin passed to Watch, in order.
	Watched []Pin

	// WatchErrors, if set for a role, is returned by Watch for that role.
	WatchErrors map[Role]error

	// ScriptedLevels is returned by Levels.
	ScriptedLevels map[Role]int

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakeSource creates an empty FakeSource.
func NewFakeSource() *FakeSource {
	return &FakeSource{handlers: make(map[Role]EdgeHandler)}
}

// Watch records the pin and its handler.
func (f *FakeSource) Watch(pin Pin, h EdgeHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.WatchErrors[pin.Role]; err != nil {
		return err
	}
	if _, ok := f.handlers[pin.Role]; ok {
		return fmt.Errorf("%s pin already watched", pin.Role)
	}
	f.handlers[pin.Role] = h
	f.Watched = append(f.Watched, pin)
	return nil
}

// Levels returns ScriptedLevels for the requested pins.
// Unscripted pins read high (idle with pull-up).
func (f *FakeSource) Levels(pins []Pin) (map[Role]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	levels := make(map[Role]int, len(pins))
	for _, pin := range pins {
		v, ok := f.ScriptedLevels[pin.Role]
		if !ok {
			v = 1
		}
		levels[pin.Role] = v
	}
	return levels, nil
}

// Trigger fires one falling edge on role, calling its handler synchronously.
// Returns false if the role is not watched.
func (f *FakeSource) Trigger(role Role) bool {
	f.mu.Lock()
	h, ok := f.handlers[role]
	f.mu.Unlock()

	if !ok {
		return false
	}
	h()
	return true
}

// Close marks the source as closed.
func (f *FakeSource) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}
