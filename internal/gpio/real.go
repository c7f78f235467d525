//go:build linux

package gpio

import (
	"errors"
	"fmt"
	"sync"

	"github.com/warthog618/go-gpiocdev"
)

// RealSource watches GPIO lines on actual hardware using the Linux GPIO character device.
type RealSource struct {
	chip *gpiocdev.Chip

	mu    sync.Mutex
	lines map[Role]*gpiocdev.Line
}

// NewRealSource opens the named GPIO chip (e.g. "gpiochip0").
func NewRealSource(chipName string) (*RealSource, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", chipName, err)
	}
	return &RealSource{
		chip:  chip,
		lines: make(map[Role]*gpiocdev.Line),
	}, nil
}

// Watch requests the line as input with pull-up and falling-edge detection.
// The sensors pull the line low when triggered.
func (s *RealSource) Watch(pin Pin, h EdgeHandler) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.lines[pin.Role]; ok {
		return fmt.Errorf("%s pin already watched", pin.Role)
	}

	line, err := s.chip.RequestLine(pin.Offset,
		gpiocdev.AsInput,
		gpiocdev.WithPullUp,
		gpiocdev.WithFallingEdge,
		gpiocdev.WithEventHandler(func(gpiocdev.LineEvent) { h() }),
	)
	if err != nil {
		return fmt.Errorf("request %s pin %d: %w", pin.Role, pin.Offset, err)
	}
	s.lines[pin.Role] = line
	return nil
}

// Levels reads the raw value of each pin. Pins that are not being watched are
// requested briefly as pulled-up inputs.
func (s *RealSource) Levels(pins []Pin) (map[Role]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	levels := make(map[Role]int, len(pins))
	for _, pin := range pins {
		if line, ok := s.lines[pin.Role]; ok {
			v, err := line.Value()
			if err != nil {
				return nil, fmt.Errorf("read %s pin %d: %w", pin.Role, pin.Offset, err)
			}
			levels[pin.Role] = v
			continue
		}

		line, err := s.chip.RequestLine(pin.Offset, gpiocdev.AsInput, gpiocdev.WithPullUp)
		if err != nil {
			return nil, fmt.Errorf("request %s pin %d: %w", pin.Role, pin.Offset, err)
		}
		v, err := line.Value()
		line.Close()
		if err != nil {
			return nil, fmt.Errorf("read %s pin %d: %w", pin.Role, pin.Offset, err)
		}
		levels[pin.Role] = v
	}
	return levels, nil
}

// Close releases GPIO resources.
// Lines are reconfigured to input with pull-down and no edge detection
// (matching Pi boot defaults) before closing so the board boots cleanly with
// the sensors attached.
func (s *RealSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for role, line := range s.lines {
		if err := line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown, gpiocdev.WithoutEdges); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure %s pin: %w", role, err))
		}
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s pin: %w", role, err))
		}
		delete(s.lines, role)
	}
	if s.chip != nil {
		if err := s.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
		s.chip = nil
	}
	return errors.Join(errs...)
}
