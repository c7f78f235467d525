//go:build !linux

package gpio

// RealSource is not available on non-Linux platforms.
type RealSource struct{}

// NewRealSource returns ErrUnsupported on non-Linux platforms.
func NewRealSource(chipName string) (*RealSource, error) {
	return nil, ErrUnsupported
}

// Watch is not implemented on non-Linux platforms.
func (s *RealSource) Watch(pin Pin, h EdgeHandler) error {
	return ErrUnsupported
}

// Levels is not implemented on non-Linux platforms.
func (s *RealSource) Levels(pins []Pin) (map[Role]int, error) {
	return nil, ErrUnsupported
}

// Close is a no-op on non-Linux platforms.
func (s *RealSource) Close() error {
	return nil
}
