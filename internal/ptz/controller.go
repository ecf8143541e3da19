package ptz

import (
	"errors"
	"fmt"
	"math"
	"sync"
)

// ErrUnknownAxis is returned by actuators for axis identifiers they do not drive.
var ErrUnknownAxis = errors.New("unknown axis")

// Axis identifies an actuator channel.
type Axis uint8

const (
	Pan  Axis = 0
	Tilt Axis = 1
)

func (a Axis) String() string {
	switch a {
	case Pan:
		return "pan"
	case Tilt:
		return "tilt"
	default:
		return fmt.Sprintf("ch%d", uint8(a))
	}
}

// Angle limits shared by every actuator.
const (
	MinAngle    = 0.0
	MaxAngle    = 180.0
	CenterAngle = 90.0
)

// Actuator defines the interface for gimbal position control
type Actuator interface {
	// SetAngle commands an absolute axis angle in degrees (0 to 180).
	// Repeating the same angle has no further physical effect.
	SetAngle(axis Axis, degrees float64) error

	// Close releases the underlying connection
	Close() error
}

// ClampAngle limits degrees to the 0 to 180 range. NaN maps to
// CenterAngle.
func ClampAngle(degrees float64) float64 {
	if math.IsNaN(degrees) {
		return CenterAngle
	}
	if degrees < MinAngle {
		return MinAngle
	}
	if degrees > MaxAngle {
		return MaxAngle
	}
	return degrees
}

// Command is one recorded SetAngle call.
type Command struct {
	Axis    Axis
	Degrees float64
}

// Recorder is an in-memory Actuator that records every command. It is used
// when no hardware is configured and in tests.
type Recorder struct {
	mu       sync.Mutex
	commands []Command
	last     map[Axis]float64
	closed   bool
}

// NewRecorder creates an empty recorder
func NewRecorder() *Recorder {
	return &Recorder{last: make(map[Axis]float64)}
}

// SetAngle records the command
func (r *Recorder) SetAngle(axis Axis, degrees float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands = append(r.commands, Command{Axis: axis, Degrees: degrees})
	r.last[axis] = degrees
	return nil
}

// Commands returns a copy of all recorded commands
func (r *Recorder) Commands() []Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Command, len(r.commands))
	copy(out, r.commands)
	return out
}

// Last returns the most recent angle commanded on axis
func (r *Recorder) Last(axis Axis) (float64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.last[axis]
	return v, ok
}

// Reset forgets all recorded commands
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands = nil
	r.last = make(map[Axis]float64)
}

// Close marks the recorder closed
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}
