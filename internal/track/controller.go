// Package track turns spot detections into gimbal angle commands.
//
// A Controller owns the current pan/tilt angles. In auto-track mode every
// tick consumes one Observation: hits move the gimbal toward the mapped
// target through a one-pole smoother with a center dead zone and per-axis
// hysteresis, misses count up until the gimbal starts easing back to 90/90.
package track

import (
	"fmt"
	"math"
	"strings"

	"spot-tracker/internal/monitoring"
	"spot-tracker/internal/ptz"
)

// ManualStep is the angle change applied by one manual key press.
const ManualStep = 10.0

// Log cadence
const (
	verboseMoves   = 30
	moveLogEvery   = 20
	verboseLosses  = 10
	recenterLogGap = 30
)

// Mode selects who drives the gimbal.
type Mode int

const (
	ModeManual Mode = iota
	ModeAutoTrack
)

func (m Mode) String() string {
	switch m {
	case ModeManual:
		return "MANUAL"
	case ModeAutoTrack:
		return "AUTO_TRACK"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode accepts the String form of a mode, case insensitive, as well as
// the short names "manual" and "auto".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "manual":
		return ModeManual, nil
	case "auto", "auto_track", "autotrack":
		return ModeAutoTrack, nil
	}
	return ModeManual, fmt.Errorf("unknown mode %q", s)
}

// Phase is the auto-track sub-state derived from the controller state.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseAcquired
	PhaseLost
	PhaseReturning
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "IDLE"
	case PhaseAcquired:
		return "ACQUIRED"
	case PhaseLost:
		return "LOST"
	case PhaseReturning:
		return "RETURNING"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// Observation is one detector outcome handed to Process. FrameWidth and
// FrameHeight give the geometry X and Y were measured in; zero means the
// controller geometry.
type Observation struct {
	Found       bool
	X, Y        int
	FrameWidth  int
	FrameHeight int
}

// State is a snapshot of the tracking state.
type State struct {
	Pan, Tilt         float64
	TargetX, TargetY  int
	Tracking          bool
	LostFrames        int
	ReturningToCenter bool
}

// Controller drives an actuator from observations. It is not safe for
// concurrent use; one goroutine must own it.
type Controller struct {
	cfg    Config
	mapper Mapper
	act    ptz.Actuator

	mode   Mode
	state  State
	ticked bool

	panMotion  Motion
	tiltMotion Motion

	moveCount int
	lostLogs  int
}

// New creates a controller in manual mode and moves the actuator to 90/90.
func New(cfg Config, act ptz.Actuator) *Controller {
	cfg = cfg.normalized()
	c := &Controller{
		cfg:        cfg,
		mapper:     NewMapper(cfg),
		act:        act,
		mode:       ModeManual,
		panMotion:  MotionHold,
		tiltMotion: MotionHold,
		state: State{
			Pan:     ptz.CenterAngle,
			Tilt:    ptz.CenterAngle,
			TargetX: cfg.Width / 2,
			TargetY: cfg.Height / 2,
		},
	}
	c.actuate(cfg.PanAxis, c.state.Pan)
	c.actuate(cfg.TiltAxis, c.state.Tilt)
	monitoring.Logf("[TRACK] init pan=%s tilt=%s image=%dx%d", cfg.PanAxis, cfg.TiltAxis, cfg.Width, cfg.Height)
	return c
}

// Process runs one auto-track tick. It does nothing outside ModeAutoTrack.
func (c *Controller) Process(obs Observation) {
	if c.mode != ModeAutoTrack {
		return
	}
	c.ticked = true
	if obs.Found {
		c.onHit(obs)
	} else {
		c.onMiss()
	}
}

func (c *Controller) onHit(obs Observation) {
	x, y := c.scale(obs)
	c.state.TargetX = int(x)
	c.state.TargetY = int(y)

	targetPan, targetTilt := c.mapper.Angles(x, y)
	if c.moveCount < verboseMoves {
		monitoring.Logf("[TRACK] detect (%d,%d) -> target (%.1f,%.1f) current (%.1f,%.1f)",
			c.state.TargetX, c.state.TargetY, targetPan, targetTilt, c.state.Pan, c.state.Tilt)
	}

	cx, cy := c.mapper.Center()
	if math.Hypot(x-cx, y-cy) <= c.cfg.DeadZone {
		c.panMotion, c.tiltMotion = MotionHold, MotionHold
	} else {
		k := c.cfg.SmoothFactor
		newPan := ptz.ClampAngle(c.state.Pan*(1-k) + targetPan*k)
		newTilt := ptz.ClampAngle(c.state.Tilt*(1-k) + targetTilt*k)
		panDelta := math.Abs(newPan - c.state.Pan)
		tiltDelta := math.Abs(newTilt - c.state.Tilt)

		moved := false
		c.panMotion, c.tiltMotion = MotionHold, MotionHold
		if panDelta >= c.cfg.MinAngleChange {
			c.panMotion = panMotion(c.state.Pan, newPan)
			c.state.Pan = newPan
			c.actuate(c.cfg.PanAxis, newPan)
			moved = true
		}
		if tiltDelta >= c.cfg.MinAngleChange {
			c.tiltMotion = tiltMotion(c.state.Tilt, newTilt)
			c.state.Tilt = newTilt
			c.actuate(c.cfg.TiltAxis, newTilt)
			moved = true
		}
		if moved {
			if c.moveCount < verboseMoves || c.moveCount%moveLogEvery == 0 {
				monitoring.Logf("[TRACK] #%d (%d,%d) => %s=%.1f %s=%.1f delta (%.1f,%.1f)",
					c.moveCount, c.state.TargetX, c.state.TargetY,
					c.cfg.PanAxis, c.state.Pan, c.cfg.TiltAxis, c.state.Tilt, panDelta, tiltDelta)
			}
			c.moveCount++
		}
	}

	c.state.Tracking = true
	c.state.LostFrames = 0
	c.lostLogs = 0
	if c.state.ReturningToCenter {
		c.state.ReturningToCenter = false
		monitoring.Logf("[TRACK] target reacquired, recentering canceled")
	}
}

func (c *Controller) onMiss() {
	c.state.LostFrames++
	c.state.Tracking = false
	c.panMotion, c.tiltMotion = MotionHold, MotionHold

	if c.lostLogs < verboseLosses {
		monitoring.Logf("[TRACK] lost #%d (total %d)", c.lostLogs, c.state.LostFrames)
		c.lostLogs++
	}

	if c.state.LostFrames >= c.cfg.LostThreshold && !c.state.ReturningToCenter {
		c.state.ReturningToCenter = true
		monitoring.Logf("[TRACK] target lost for %d frames, returning to center", c.state.LostFrames)
	}
	if !c.state.ReturningToCenter {
		return
	}

	r := c.cfg.RecenterRate
	newPan := c.state.Pan*(1-r) + ptz.CenterAngle*r
	newTilt := c.state.Tilt*(1-r) + ptz.CenterAngle*r

	moved := false
	if math.Abs(newPan-c.state.Pan) >= c.cfg.RecenterMinStep {
		c.panMotion = panMotion(c.state.Pan, newPan)
		c.state.Pan = newPan
		c.actuate(c.cfg.PanAxis, newPan)
		moved = true
	}
	if math.Abs(newTilt-c.state.Tilt) >= c.cfg.RecenterMinStep {
		c.tiltMotion = tiltMotion(c.state.Tilt, newTilt)
		c.state.Tilt = newTilt
		c.actuate(c.cfg.TiltAxis, newTilt)
		moved = true
	}

	if c.state.LostFrames%recenterLogGap == 0 {
		if moved {
			monitoring.Logf("[TRACK] returning to center pan=%.1f tilt=%.1f", c.state.Pan, c.state.Tilt)
		} else {
			monitoring.Logf("[TRACK] centered at (%.1f,%.1f), waiting for target", c.state.Pan, c.state.Tilt)
		}
	}
}

// scale converts an observation into controller image coordinates.
func (c *Controller) scale(obs Observation) (float64, float64) {
	x, y := float64(obs.X), float64(obs.Y)
	if obs.FrameWidth > 0 && obs.FrameWidth != c.cfg.Width {
		x = x * float64(c.cfg.Width) / float64(obs.FrameWidth)
	}
	if obs.FrameHeight > 0 && obs.FrameHeight != c.cfg.Height {
		y = y * float64(c.cfg.Height) / float64(obs.FrameHeight)
	}
	return x, y
}

// ManualControl adds the deltas to the current angles and actuates both
// axes. It works in any mode.
func (c *Controller) ManualControl(deltaPan, deltaTilt float64) {
	c.moveTo(c.state.Pan+deltaPan, c.state.Tilt+deltaTilt)
	monitoring.Logf("[TRACK] manual pan=%.1f tilt=%.1f", c.state.Pan, c.state.Tilt)
}

// SetAngles moves both axes to absolute angles, clamped to [0,180].
func (c *Controller) SetAngles(pan, tilt float64) {
	c.moveTo(pan, tilt)
}

func (c *Controller) moveTo(pan, tilt float64) {
	pan = ptz.ClampAngle(orElse(pan, c.state.Pan))
	tilt = ptz.ClampAngle(orElse(tilt, c.state.Tilt))
	c.panMotion = panMotion(c.state.Pan, pan)
	c.tiltMotion = tiltMotion(c.state.Tilt, tilt)
	c.state.Pan, c.state.Tilt = pan, tilt
	c.actuate(c.cfg.PanAxis, pan)
	c.actuate(c.cfg.TiltAxis, tilt)
}

// SetMode switches modes. Entering ModeAutoTrack clears the lost counter and
// any recentering in progress.
func (c *Controller) SetMode(m Mode) {
	if m == c.mode {
		return
	}
	c.mode = m
	monitoring.Logf("[TRACK] mode changed to %s", m)
	if m == ModeAutoTrack {
		c.state.LostFrames = 0
		c.state.ReturningToCenter = false
		c.ticked = false
	}
}

// Mode returns the current mode.
func (c *Controller) Mode() Mode { return c.mode }

// Phase returns the auto-track sub-state. It is PhaseIdle outside
// ModeAutoTrack and before the first tick.
func (c *Controller) Phase() Phase {
	switch {
	case c.mode != ModeAutoTrack || !c.ticked:
		return PhaseIdle
	case c.state.Tracking:
		return PhaseAcquired
	case c.state.ReturningToCenter:
		return PhaseReturning
	default:
		return PhaseLost
	}
}

// Reset recenters the gimbal and clears the tracking counters.
func (c *Controller) Reset() {
	c.state.Pan = ptz.CenterAngle
	c.state.Tilt = ptz.CenterAngle
	c.state.Tracking = false
	c.state.LostFrames = 0
	c.state.ReturningToCenter = false
	c.ticked = false
	c.panMotion, c.tiltMotion = MotionHold, MotionHold
	c.actuate(c.cfg.PanAxis, c.state.Pan)
	c.actuate(c.cfg.TiltAxis, c.state.Tilt)
	monitoring.Logf("[TRACK] reset to center (90,90)")
}

// State returns a copy of the tracking state.
func (c *Controller) State() State { return c.state }

// Config returns the active configuration.
func (c *Controller) Config() Config { return c.cfg }

// SetSmoothFactor sets the tracking smoothing factor, clamped to [0,1].
func (c *Controller) SetSmoothFactor(k float64) {
	c.cfg.SmoothFactor = clamp(orElse(k, c.cfg.SmoothFactor), 0, 1)
}

// SetDeadZone sets the center dead zone radius in pixels. Negative values
// become zero.
func (c *Controller) SetDeadZone(px float64) {
	c.cfg.DeadZone = nonNegative(orElse(px, c.cfg.DeadZone))
}

// SetMinAngleChange sets the per-axis hysteresis in degrees.
func (c *Controller) SetMinAngleChange(deg float64) {
	c.cfg.MinAngleChange = nonNegative(orElse(deg, c.cfg.MinAngleChange))
}

// SetAxisInvert mirrors the mapped angle of each axis as 180 - angle.
func (c *Controller) SetAxisInvert(pan, tilt bool) {
	c.cfg.InvertPan, c.cfg.InvertTilt = pan, tilt
	c.mapper = NewMapper(c.cfg)
}

// SetAngleSpans sets the per-axis half-spans, each clamped to [0,90].
func (c *Controller) SetAngleSpans(pan, tilt float64) {
	c.cfg.PanHalfSpan = clamp(orElse(pan, c.cfg.PanHalfSpan), 0, 90)
	c.cfg.TiltHalfSpan = clamp(orElse(tilt, c.cfg.TiltHalfSpan), 0, 90)
	c.mapper = NewMapper(c.cfg)
}

// SetLostThreshold sets the number of missed ticks before recentering,
// minimum 1. Raising it above the current lost count stops a recenter in
// progress; it resumes once the count reaches the new threshold.
func (c *Controller) SetLostThreshold(n int) {
	if n < 1 {
		n = 1
	}
	c.cfg.LostThreshold = n
	if c.state.LostFrames < n {
		c.state.ReturningToCenter = false
	}
}

// SetRecenterRate sets the share of the remaining distance to center
// covered per lost tick, clamped to [0,1].
func (c *Controller) SetRecenterRate(r float64) {
	c.cfg.RecenterRate = clamp(orElse(r, c.cfg.RecenterRate), 0, 1)
}

// SetRecenterMinStep sets the smallest recenter move in degrees that is
// actuated. Negative values become zero.
func (c *Controller) SetRecenterMinStep(deg float64) {
	c.cfg.RecenterMinStep = nonNegative(orElse(deg, c.cfg.RecenterMinStep))
}

func (c *Controller) actuate(axis ptz.Axis, deg float64) {
	if c.act == nil {
		return
	}
	if err := c.act.SetAngle(axis, deg); err != nil {
		monitoring.Logf("[TRACK] failed to set %s to %.1f: %v", axis, deg, err)
	}
}
