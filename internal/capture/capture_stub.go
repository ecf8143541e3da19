//go:build !gocv

package capture

import "spot-tracker/internal/frame"

// Camera is unavailable without OpenCV
type Camera struct{}

// Open always fails with ErrUnsupported.
func Open(cfg Config) (*Camera, error) {
	return nil, ErrUnsupported
}

// Frames returns nil
func (c *Camera) Frames() <-chan *frame.Frame { return nil }

// Close does nothing
func (c *Camera) Close() error { return nil }
