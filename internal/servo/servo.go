// Package servo drives hobby servos through a serial servo controller
// speaking the Pololu Maestro compact protocol.
package servo

import (
	"fmt"
	"io"
	"math"
	"sync"

	"spot-tracker/internal/ptz"
	"spot-tracker/internal/serialport"
)

// Pulse widths in microseconds for 0 and 180 degrees.
const (
	MinPulse = 500
	MaxPulse = 2500
)

const cmdSetTarget = 0x84

// Channel describes one servo output.
type Channel struct {
	Number uint8 // controller output channel

	// Physical travel the logical 0 to 180 range is squeezed into
	MinAngle float64
	MaxAngle float64

	// Degrees added after range mapping to trim the mechanical center
	CenterOffset float64
}

// DefaultChannel returns a full range channel with no trim.
func DefaultChannel(n uint8) Channel {
	return Channel{Number: n, MinAngle: 0, MaxAngle: 180}
}

// Config for the servo controller
type Config struct {
	Device   string
	Port     serialport.PortOptions
	Channels map[ptz.Axis]Channel // defaults to pan on 0, tilt on 1
}

// Controller writes servo targets to a serial port
type Controller struct {
	mu       sync.Mutex
	port     io.WriteCloser
	channels map[ptz.Axis]Channel
}

// Open opens the configured serial device and returns a controller on it.
func Open(cfg Config) (*Controller, error) {
	port, err := serialport.Open(cfg.Device, cfg.Port)
	if err != nil {
		return nil, fmt.Errorf("failed to open servo controller: %w", err)
	}
	return New(port, cfg.Channels), nil
}

// New creates a controller writing to port.
func New(port io.WriteCloser, channels map[ptz.Axis]Channel) *Controller {
	c := &Controller{
		port:     port,
		channels: make(map[ptz.Axis]Channel),
	}
	if len(channels) == 0 {
		channels = map[ptz.Axis]Channel{
			ptz.Pan:  DefaultChannel(0),
			ptz.Tilt: DefaultChannel(1),
		}
	}
	for axis, ch := range channels {
		if ch.MaxAngle <= ch.MinAngle {
			ch.MinAngle, ch.MaxAngle = 0, 180
		}
		c.channels[axis] = ch
	}
	return c
}

// SetAngle moves the servo bound to axis
func (c *Controller) SetAngle(axis ptz.Axis, degrees float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch, ok := c.channels[axis]
	if !ok {
		return fmt.Errorf("servo %s: %w", axis, ptz.ErrUnknownAxis)
	}
	pulse := ch.Pulse(degrees)

	// Maestro targets are in quarter microseconds, 7 bits per data byte
	target := pulse * 4
	cmd := []byte{cmdSetTarget, ch.Number, byte(target & 0x7F), byte((target >> 7) & 0x7F)}
	if _, err := c.port.Write(cmd); err != nil {
		return fmt.Errorf("failed to write servo target: %w", err)
	}
	return nil
}

// SetCenterOffset trims the mechanical center of the servo on axis. NaN
// offsets are ignored.
func (c *Controller) SetCenterOffset(axis ptz.Axis, offset float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch, ok := c.channels[axis]
	if !ok {
		return ptz.ErrUnknownAxis
	}
	if math.IsNaN(offset) {
		return nil
	}
	ch.CenterOffset = offset
	c.channels[axis] = ch
	return nil
}

// SetAngleRange limits the physical travel of the servo on axis. Ranges
// with hi <= lo are ignored.
func (c *Controller) SetAngleRange(axis ptz.Axis, lo, hi float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch, ok := c.channels[axis]
	if !ok {
		return ptz.ErrUnknownAxis
	}
	if hi > lo {
		ch.MinAngle, ch.MaxAngle = lo, hi
		c.channels[axis] = ch
	}
	return nil
}

// Close closes the serial port
func (c *Controller) Close() error {
	return c.port.Close()
}

// Pulse returns the pulse width in microseconds for a logical angle.
func (ch Channel) Pulse(degrees float64) int {
	logical := ptz.ClampAngle(degrees)

	span := ch.MaxAngle - ch.MinAngle
	if span <= 0 {
		span = 180
	}
	physical := ch.MinAngle + span*logical/180 + ch.CenterOffset
	physical = math.Max(ch.MinAngle, math.Min(ch.MinAngle+span, physical))
	physical = ptz.ClampAngle(physical)

	pulse := int(MinPulse + (MaxPulse-MinPulse)*physical/180 + 0.5)
	if pulse < MinPulse {
		pulse = MinPulse
	}
	if pulse > MaxPulse {
		pulse = MaxPulse
	}
	return pulse
}
