// Package gpio provides falling-edge notifications from sensor inputs.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

import "errors"

// Role names the sensor attached to a pin.
type Role string

const (
	RoleBlueGoal  Role = "blue_goal"
	RoleRedGoal   Role = "red_goal"
	RoleBallDrop1 Role = "ball_drop_1"
	RoleBallDrop2 Role = "ball_drop_2"
	RoleReset     Role = "reset"
)

// DefaultChip is the GPIO character device on a Raspberry Pi.
const DefaultChip = "gpiochip0"

// ErrUnsupported is returned by the real source on non-Linux platforms.
var ErrUnsupported = errors.New("gpio: not supported on this platform (requires Linux)")

// Pin assigns a BCM pin number to a sensor role.
type Pin struct {
	Role   Role
	Offset int
}

// EdgeHandler is called asynchronously on every falling edge of a watched pin.
// It must not block.
type EdgeHandler func()

// Source delivers falling-edge notifications for sensor pins.
type Source interface {
	// Watch requests pin as a pulled-up input and calls h on each falling edge.
	Watch(pin Pin, h EdgeHandler) error

	// Levels returns the raw level (0 or 1) of each pin.
	Levels(pins []Pin) (map[Role]int, error)

	// Close releases all requested lines.
	Close() error
}
