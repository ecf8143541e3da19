package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"spot-tracker/internal/pipeline"
	"spot-tracker/internal/ptz"
	"spot-tracker/internal/servo"
	"spot-tracker/internal/spot"
	"spot-tracker/internal/track"
)

// TuningConfig holds the detector and tracker tunables. The schema matches
// the websocket "tuning" message so the same JSON can be used for both
// startup configuration and runtime updates. Unset fields keep their
// defaults at startup and their current value at runtime.
type TuningConfig struct {
	// Detector params
	BrightnessThreshold *int     `json:"brightness_threshold,omitempty"`
	FilterAlpha         *float64 `json:"filter_alpha,omitempty"`
	CompressedAlpha     *float64 `json:"compressed_alpha,omitempty"`
	CompressedFallback  *bool    `json:"compressed_fallback,omitempty"`

	// Tracker params
	SmoothFactor    *float64 `json:"smooth_factor,omitempty"`
	DeadZone        *float64 `json:"dead_zone,omitempty"` // pixels
	MinAngleChange  *float64 `json:"min_angle_change,omitempty"`
	PanHalfSpan     *float64 `json:"pan_half_span,omitempty"`
	TiltHalfSpan    *float64 `json:"tilt_half_span,omitempty"`
	InvertPan       *bool    `json:"invert_pan,omitempty"`
	InvertTilt      *bool    `json:"invert_tilt,omitempty"`
	LostThreshold   *int     `json:"lost_threshold,omitempty"` // frames
	RecenterRate    *float64 `json:"recenter_rate,omitempty"`
	RecenterMinStep *float64 `json:"recenter_min_step,omitempty"` // degrees

	// Startup only
	AutoTrack      *bool        `json:"auto_track,omitempty"`
	StatusInterval *int         `json:"status_interval,omitempty"` // frames
	Servo          *ServoConfig `json:"servo,omitempty"`
}

// ServoConfig describes the servo outputs driving each axis.
type ServoConfig struct {
	Pan  *ServoChannelConfig `json:"pan,omitempty"`
	Tilt *ServoChannelConfig `json:"tilt,omitempty"`
}

// ServoChannelConfig holds one servo channel. MinAngle and MaxAngle bound
// the physical travel; CenterOffset trims the mechanical center.
type ServoChannelConfig struct {
	Channel      *int     `json:"channel,omitempty"`
	MinAngle     *float64 `json:"min_angle,omitempty"`
	MaxAngle     *float64 `json:"max_angle,omitempty"`
	CenterOffset *float64 `json:"center_offset,omitempty"`
}

// maxServoChannel is the highest output on the largest Maestro board.
const maxServoChannel = 23

func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields unset.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// DefaultTuningConfig returns a TuningConfig with every field set to its
// default.
func DefaultTuningConfig() *TuningConfig {
	return &TuningConfig{
		BrightnessThreshold: ptrInt(spot.DefaultBrightnessThreshold),
		FilterAlpha:         ptrFloat64(spot.DefaultFilterAlpha),
		CompressedAlpha:     ptrFloat64(spot.DefaultCompressedAlpha),
		CompressedFallback:  ptrBool(false),
		SmoothFactor:        ptrFloat64(track.DefaultSmoothFactor),
		DeadZone:            ptrFloat64(track.DefaultDeadZone),
		MinAngleChange:      ptrFloat64(track.DefaultMinAngleChange),
		PanHalfSpan:         ptrFloat64(track.DefaultPanHalfSpan),
		TiltHalfSpan:        ptrFloat64(track.DefaultTiltHalfSpan),
		InvertPan:           ptrBool(false),
		InvertTilt:          ptrBool(false),
		LostThreshold:       ptrInt(track.DefaultLostThreshold),
		RecenterRate:        ptrFloat64(track.DefaultRecenterRate),
		RecenterMinStep:     ptrFloat64(track.DefaultRecenterMinStep),
		AutoTrack:           ptrBool(false),
		StatusInterval:      ptrInt(pipeline.DefaultStatusEvery),
	}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// Fields omitted from the file fall back to defaults through the Get*
// methods, so partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 64 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.BrightnessThreshold != nil {
		if *c.BrightnessThreshold < 0 || *c.BrightnessThreshold > 255 {
			return fmt.Errorf("brightness_threshold must be between 0 and 255, got %d", *c.BrightnessThreshold)
		}
	}

	unit := []struct {
		name string
		v    *float64
	}{
		{"filter_alpha", c.FilterAlpha},
		{"compressed_alpha", c.CompressedAlpha},
		{"smooth_factor", c.SmoothFactor},
		{"recenter_rate", c.RecenterRate},
	}
	for _, f := range unit {
		if f.v != nil && (*f.v < 0 || *f.v > 1) {
			return fmt.Errorf("%s must be between 0 and 1, got %f", f.name, *f.v)
		}
	}

	if c.DeadZone != nil && *c.DeadZone < 0 {
		return fmt.Errorf("dead_zone must be non-negative, got %f", *c.DeadZone)
	}
	if c.MinAngleChange != nil && *c.MinAngleChange < 0 {
		return fmt.Errorf("min_angle_change must be non-negative, got %f", *c.MinAngleChange)
	}
	if c.RecenterMinStep != nil && *c.RecenterMinStep < 0 {
		return fmt.Errorf("recenter_min_step must be non-negative, got %f", *c.RecenterMinStep)
	}

	for name, v := range map[string]*float64{"pan_half_span": c.PanHalfSpan, "tilt_half_span": c.TiltHalfSpan} {
		if v != nil && (*v < 0 || *v > 90) {
			return fmt.Errorf("%s must be between 0 and 90, got %f", name, *v)
		}
	}

	if c.LostThreshold != nil && *c.LostThreshold < 1 {
		return fmt.Errorf("lost_threshold must be at least 1, got %d", *c.LostThreshold)
	}
	if c.StatusInterval != nil && *c.StatusInterval < 1 {
		return fmt.Errorf("status_interval must be at least 1, got %d", *c.StatusInterval)
	}

	if c.Servo != nil {
		if err := c.Servo.Pan.validate("servo.pan"); err != nil {
			return err
		}
		if err := c.Servo.Tilt.validate("servo.tilt"); err != nil {
			return err
		}
	}

	return nil
}

func (s *ServoChannelConfig) validate(name string) error {
	if s == nil {
		return nil
	}
	if s.Channel != nil && (*s.Channel < 0 || *s.Channel > maxServoChannel) {
		return fmt.Errorf("%s.channel must be between 0 and %d, got %d", name, maxServoChannel, *s.Channel)
	}
	lo, hi := 0.0, 180.0
	if s.MinAngle != nil {
		lo = *s.MinAngle
	}
	if s.MaxAngle != nil {
		hi = *s.MaxAngle
	}
	if lo < 0 || hi > 180 || lo >= hi {
		return fmt.Errorf("%s angle range must satisfy 0 <= min_angle < max_angle <= 180, got %f..%f", name, lo, hi)
	}
	if s.CenterOffset != nil && (*s.CenterOffset < -90 || *s.CenterOffset > 90) {
		return fmt.Errorf("%s.center_offset must be between -90 and 90, got %f", name, *s.CenterOffset)
	}
	return nil
}

// GetBrightnessThreshold returns the brightness_threshold value or the default.
func (c *TuningConfig) GetBrightnessThreshold() int {
	if c.BrightnessThreshold == nil {
		return spot.DefaultBrightnessThreshold
	}
	return *c.BrightnessThreshold
}

// GetFilterAlpha returns the filter_alpha value or the default.
func (c *TuningConfig) GetFilterAlpha() float64 {
	if c.FilterAlpha == nil {
		return spot.DefaultFilterAlpha
	}
	return *c.FilterAlpha
}

// GetCompressedAlpha returns the compressed_alpha value or the default.
func (c *TuningConfig) GetCompressedAlpha() float64 {
	if c.CompressedAlpha == nil {
		return spot.DefaultCompressedAlpha
	}
	return *c.CompressedAlpha
}

// GetCompressedFallback returns the compressed_fallback value or the default.
func (c *TuningConfig) GetCompressedFallback() bool {
	if c.CompressedFallback == nil {
		return false
	}
	return *c.CompressedFallback
}

// GetSmoothFactor returns the smooth_factor value or the default.
func (c *TuningConfig) GetSmoothFactor() float64 {
	if c.SmoothFactor == nil {
		return track.DefaultSmoothFactor
	}
	return *c.SmoothFactor
}

// GetDeadZone returns the dead_zone value or the default.
func (c *TuningConfig) GetDeadZone() float64 {
	if c.DeadZone == nil {
		return track.DefaultDeadZone
	}
	return *c.DeadZone
}

// GetMinAngleChange returns the min_angle_change value or the default.
func (c *TuningConfig) GetMinAngleChange() float64 {
	if c.MinAngleChange == nil {
		return track.DefaultMinAngleChange
	}
	return *c.MinAngleChange
}

// GetPanHalfSpan returns the pan_half_span value or the default.
func (c *TuningConfig) GetPanHalfSpan() float64 {
	if c.PanHalfSpan == nil {
		return track.DefaultPanHalfSpan
	}
	return *c.PanHalfSpan
}

// GetTiltHalfSpan returns the tilt_half_span value or the default.
func (c *TuningConfig) GetTiltHalfSpan() float64 {
	if c.TiltHalfSpan == nil {
		return track.DefaultTiltHalfSpan
	}
	return *c.TiltHalfSpan
}

// GetInvertPan reports whether the pan axis is inverted.
func (c *TuningConfig) GetInvertPan() bool {
	return c.InvertPan != nil && *c.InvertPan
}

// GetInvertTilt reports whether the tilt axis is inverted.
func (c *TuningConfig) GetInvertTilt() bool {
	return c.InvertTilt != nil && *c.InvertTilt
}

// GetLostThreshold returns the lost_threshold value or the default.
func (c *TuningConfig) GetLostThreshold() int {
	if c.LostThreshold == nil {
		return track.DefaultLostThreshold
	}
	return *c.LostThreshold
}

// GetRecenterRate returns the recenter_rate value or the default.
func (c *TuningConfig) GetRecenterRate() float64 {
	if c.RecenterRate == nil {
		return track.DefaultRecenterRate
	}
	return *c.RecenterRate
}

// GetRecenterMinStep returns the recenter_min_step value or the default.
func (c *TuningConfig) GetRecenterMinStep() float64 {
	if c.RecenterMinStep == nil {
		return track.DefaultRecenterMinStep
	}
	return *c.RecenterMinStep
}

// GetAutoTrack reports whether tracking starts in auto mode.
func (c *TuningConfig) GetAutoTrack() bool {
	return c.AutoTrack != nil && *c.AutoTrack
}

// GetStatusInterval returns the status_interval value or the default.
func (c *TuningConfig) GetStatusInterval() int {
	if c.StatusInterval == nil {
		return pipeline.DefaultStatusEvery
	}
	return *c.StatusInterval
}

// DetectorConfig builds the detector configuration.
func (c *TuningConfig) DetectorConfig() spot.Config {
	return spot.Config{
		BrightnessThreshold: c.GetBrightnessThreshold(),
		FilterAlpha:         c.GetFilterAlpha(),
		CompressedAlpha:     c.GetCompressedAlpha(),
	}
}

// TrackerConfig builds the tracker configuration for a width x height image.
func (c *TuningConfig) TrackerConfig(width, height int) track.Config {
	cfg := track.DefaultConfig(width, height)
	cfg.SmoothFactor = c.GetSmoothFactor()
	cfg.DeadZone = c.GetDeadZone()
	cfg.MinAngleChange = c.GetMinAngleChange()
	cfg.PanHalfSpan = c.GetPanHalfSpan()
	cfg.TiltHalfSpan = c.GetTiltHalfSpan()
	cfg.InvertPan = c.GetInvertPan()
	cfg.InvertTilt = c.GetInvertTilt()
	cfg.LostThreshold = c.GetLostThreshold()
	cfg.RecenterRate = c.GetRecenterRate()
	cfg.RecenterMinStep = c.GetRecenterMinStep()
	return cfg
}

// ServoChannels returns the axis to channel map for the servo controller.
// Axes without a configured channel use pan on 0 and tilt on 1.
func (c *TuningConfig) ServoChannels() map[ptz.Axis]servo.Channel {
	channels := map[ptz.Axis]servo.Channel{
		ptz.Pan:  servo.DefaultChannel(0),
		ptz.Tilt: servo.DefaultChannel(1),
	}
	if c.Servo == nil {
		return channels
	}
	for axis, sc := range map[ptz.Axis]*ServoChannelConfig{ptz.Pan: c.Servo.Pan, ptz.Tilt: c.Servo.Tilt} {
		if sc != nil && sc.Channel != nil {
			channels[axis] = servo.DefaultChannel(uint8(*sc.Channel))
		}
	}
	return channels
}

// ApplyServo sets the configured angle ranges and center offsets on a
// servo controller.
func (c *TuningConfig) ApplyServo(ctrl *servo.Controller) error {
	if c.Servo == nil {
		return nil
	}
	for axis, sc := range map[ptz.Axis]*ServoChannelConfig{ptz.Pan: c.Servo.Pan, ptz.Tilt: c.Servo.Tilt} {
		if sc == nil {
			continue
		}
		if sc.MinAngle != nil || sc.MaxAngle != nil {
			lo, hi := ptz.MinAngle, ptz.MaxAngle
			if sc.MinAngle != nil {
				lo = *sc.MinAngle
			}
			if sc.MaxAngle != nil {
				hi = *sc.MaxAngle
			}
			if err := ctrl.SetAngleRange(axis, lo, hi); err != nil {
				return fmt.Errorf("failed to set %s range: %w", axis, err)
			}
		}
		if sc.CenterOffset != nil {
			if err := ctrl.SetCenterOffset(axis, *sc.CenterOffset); err != nil {
				return fmt.Errorf("failed to set %s center offset: %w", axis, err)
			}
		}
	}
	return nil
}

// ApplyTo updates a running detector and controller with the fields that
// are set. Values are clamped by the setters rather than rejected.
func (c *TuningConfig) ApplyTo(det *spot.Detector, ctl *track.Controller) {
	if c.BrightnessThreshold != nil {
		det.SetBrightnessThreshold(*c.BrightnessThreshold)
	}
	if c.FilterAlpha != nil {
		det.SetFilterAlpha(*c.FilterAlpha)
	}
	if c.CompressedAlpha != nil {
		det.SetCompressedAlpha(*c.CompressedAlpha)
	}
	if c.SmoothFactor != nil {
		ctl.SetSmoothFactor(*c.SmoothFactor)
	}
	if c.DeadZone != nil {
		ctl.SetDeadZone(*c.DeadZone)
	}
	if c.MinAngleChange != nil {
		ctl.SetMinAngleChange(*c.MinAngleChange)
	}
	if c.PanHalfSpan != nil || c.TiltHalfSpan != nil {
		cur := ctl.Config()
		pan, tilt := cur.PanHalfSpan, cur.TiltHalfSpan
		if c.PanHalfSpan != nil {
			pan = *c.PanHalfSpan
		}
		if c.TiltHalfSpan != nil {
			tilt = *c.TiltHalfSpan
		}
		ctl.SetAngleSpans(pan, tilt)
	}
	if c.InvertPan != nil || c.InvertTilt != nil {
		cur := ctl.Config()
		pan, tilt := cur.InvertPan, cur.InvertTilt
		if c.InvertPan != nil {
			pan = *c.InvertPan
		}
		if c.InvertTilt != nil {
			tilt = *c.InvertTilt
		}
		ctl.SetAxisInvert(pan, tilt)
	}
	if c.LostThreshold != nil {
		ctl.SetLostThreshold(*c.LostThreshold)
	}
	if c.RecenterRate != nil {
		ctl.SetRecenterRate(*c.RecenterRate)
	}
	if c.RecenterMinStep != nil {
		ctl.SetRecenterMinStep(*c.RecenterMinStep)
	}
}
