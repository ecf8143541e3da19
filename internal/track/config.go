package track

import (
	"math"

	"spot-tracker/internal/ptz"
)

// Default tuning values
const (
	DefaultSmoothFactor    = 0.3
	DefaultDeadZone        = 10.0
	DefaultMinAngleChange  = 1.0
	DefaultPanHalfSpan     = 90.0
	DefaultTiltHalfSpan    = 70.0
	DefaultLostThreshold   = 30
	DefaultRecenterRate    = 0.25
	DefaultRecenterMinStep = 0.1

	defaultWidth  = 320
	defaultHeight = 240
)

// Config holds the tracker configuration. Out of range values are clamped
// when the config is handed to New or to one of the Controller setters.
type Config struct {
	PanAxis  ptz.Axis
	TiltAxis ptz.Axis

	// Image geometry that target coordinates are expressed in
	Width  int
	Height int

	SmoothFactor   float64 // [0,1], share of the target angle applied per tick
	DeadZone       float64 // pixels around image center that are ignored
	MinAngleChange float64 // degrees, per-axis hysteresis

	PanHalfSpan  float64 // degrees swept from center to the frame edge, [0,90]
	TiltHalfSpan float64
	InvertPan    bool
	InvertTilt   bool

	LostThreshold   int     // missed ticks before recentering starts
	RecenterRate    float64 // [0,1], share of remaining distance per tick
	RecenterMinStep float64 // degrees
}

// DefaultConfig returns the default tracker configuration for a width x
// height image.
func DefaultConfig(width, height int) Config {
	return Config{
		PanAxis:         ptz.Pan,
		TiltAxis:        ptz.Tilt,
		Width:           width,
		Height:          height,
		SmoothFactor:    DefaultSmoothFactor,
		DeadZone:        DefaultDeadZone,
		MinAngleChange:  DefaultMinAngleChange,
		PanHalfSpan:     DefaultPanHalfSpan,
		TiltHalfSpan:    DefaultTiltHalfSpan,
		LostThreshold:   DefaultLostThreshold,
		RecenterRate:    DefaultRecenterRate,
		RecenterMinStep: DefaultRecenterMinStep,
	}
}

func (c Config) normalized() Config {
	if c.Width <= 0 {
		c.Width = defaultWidth
	}
	if c.Height <= 0 {
		c.Height = defaultHeight
	}
	c.SmoothFactor = clamp(orElse(c.SmoothFactor, DefaultSmoothFactor), 0, 1)
	c.DeadZone = nonNegative(orElse(c.DeadZone, DefaultDeadZone))
	c.MinAngleChange = nonNegative(orElse(c.MinAngleChange, DefaultMinAngleChange))
	c.PanHalfSpan = clamp(orElse(c.PanHalfSpan, DefaultPanHalfSpan), 0, 90)
	c.TiltHalfSpan = clamp(orElse(c.TiltHalfSpan, DefaultTiltHalfSpan), 0, 90)
	if c.LostThreshold < 1 {
		c.LostThreshold = 1
	}
	c.RecenterRate = clamp(orElse(c.RecenterRate, DefaultRecenterRate), 0, 1)
	c.RecenterMinStep = nonNegative(orElse(c.RecenterMinStep, DefaultRecenterMinStep))
	return c
}

// orElse returns fallback when v is NaN. NaN has no nearest valid value,
// so callers keep the current or default setting instead.
func orElse(v, fallback float64) float64 {
	if math.IsNaN(v) {
		return fallback
	}
	return v
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func nonNegative(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}
