package events

import (
	"errors"
	"fmt"
	"time"

	"github.com/coder/quartz"
	"github.com/sweeney/foosball-sensor/internal/game"
	"github.com/sweeney/foosball-sensor/internal/gpio"
)

// ErrUnknownRole is returned for a pin whose role has no game event.
var ErrUnknownRole = errors.New("unknown sensor role")

// EventFor returns the game event raised by a sensor role.
// Both ball-drop sensors raise BallDrop.
func EventFor(role gpio.Role) (game.Event, error) {
	switch role {
	case gpio.RoleBlueGoal:
		return game.EventBlueGoal, nil
	case gpio.RoleRedGoal:
		return game.EventRedGoal, nil
	case gpio.RoleBallDrop1, gpio.RoleBallDrop2:
		return game.EventBallDrop, nil
	case gpio.RoleReset:
		return game.EventReset, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownRole, role)
}

// Sensor is a watched pin and the debouncer behind it.
type Sensor struct {
	Pin       gpio.Pin
	Debouncer *Debouncer
}

// Attach watches every pin on src, each through its own debouncer into out.
// It fails on the first pin that cannot be watched; the caller must then
// close src, since scoring with a partial sensor set is not allowed.
func Attach(src gpio.Source, pins []gpio.Pin, out Sender, clock quartz.Clock, window time.Duration, policy Policy) ([]*Sensor, error) {
	sensors := make([]*Sensor, 0, len(pins))
	for _, pin := range pins {
		event, err := EventFor(pin.Role)
		if err != nil {
			return nil, err
		}
		d := NewDebouncer(event, out, clock, window, policy)
		if err := src.Watch(pin, d.Edge); err != nil {
			return nil, fmt.Errorf("watch %s: %w", pin.Role, err)
		}
		sensors = append(sensors, &Sensor{Pin: pin, Debouncer: d})
	}
	return sensors, nil
}

// CountsByRole collects the debounce counters of every sensor.
func CountsByRole(sensors []*Sensor) map[gpio.Role]Counts {
	out := make(map[gpio.Role]Counts, len(sensors))
	for _, s := range sensors {
		out[s.Pin.Role] = s.Debouncer.Counts()
	}
	return out
}
