package track

import (
	"fmt"
	"strings"
)

// Status is a diagnostic snapshot of the controller.
type Status struct {
	Mode  Mode
	Phase Phase
	State State

	// Where the last target sits relative to center
	TargetH, TargetV Position

	// Last commanded motion per axis
	PanMotion, TiltMotion Motion

	SmoothFactor float64
	DeadZone     float64
	Width        int
	Height       int
}

// Status returns the current status. Direction fields are computed on
// demand from the last target.
func (c *Controller) Status() Status {
	h, v := Direction(c.state.TargetX, c.state.TargetY, c.cfg.Width, c.cfg.Height)
	return Status{
		Mode:         c.mode,
		Phase:        c.Phase(),
		State:        c.state,
		TargetH:      h,
		TargetV:      v,
		PanMotion:    c.panMotion,
		TiltMotion:   c.tiltMotion,
		SmoothFactor: c.cfg.SmoothFactor,
		DeadZone:     c.cfg.DeadZone,
		Width:        c.cfg.Width,
		Height:       c.cfg.Height,
	}
}

func (s Status) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "mode=%s phase=%s image=%dx%d\n", s.Mode, s.Phase, s.Width, s.Height)
	fmt.Fprintf(&b, "angles pan=%.1f tilt=%.1f\n", s.State.Pan, s.State.Tilt)
	fmt.Fprintf(&b, "target (%d,%d) %s|%s cmd pan=%s tilt=%s\n",
		s.State.TargetX, s.State.TargetY, s.TargetH, s.TargetV, s.PanMotion, s.TiltMotion)
	fmt.Fprintf(&b, "tracking=%t lost=%d returning=%t\n", s.State.Tracking, s.State.LostFrames, s.State.ReturningToCenter)
	fmt.Fprintf(&b, "smooth=%.2f deadzone=%.0fpx", s.SmoothFactor, s.DeadZone)
	return b.String()
}
