package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spot-tracker/internal/monitoring"
	"spot-tracker/internal/ptz"
	"spot-tracker/internal/servo"
	"spot-tracker/internal/spot"
	"spot-tracker/internal/track"
)

func TestMain(m *testing.M) {
	monitoring.SetLogger(nil)
	m.Run()
}

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultTuningConfigMatchesPackageDefaults(t *testing.T) {
	cfg := DefaultTuningConfig()
	require.NoError(t, cfg.Validate())

	if diff := cmp.Diff(spot.DefaultConfig(), cfg.DetectorConfig()); diff != "" {
		t.Errorf("detector config mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(track.DefaultConfig(320, 240), cfg.TrackerConfig(320, 240)); diff != "" {
		t.Errorf("tracker config mismatch (-want +got):\n%s", diff)
	}
}

func TestEmptyConfigFallsBackToDefaults(t *testing.T) {
	cfg := EmptyTuningConfig()

	assert.Equal(t, spot.DefaultBrightnessThreshold, cfg.GetBrightnessThreshold())
	assert.Equal(t, track.DefaultSmoothFactor, cfg.GetSmoothFactor())
	assert.Equal(t, track.DefaultLostThreshold, cfg.GetLostThreshold())
	assert.Equal(t, 15, cfg.GetStatusInterval())
	assert.False(t, cfg.GetAutoTrack())
	assert.False(t, cfg.GetCompressedFallback())
}

func TestLoadTuningConfig(t *testing.T) {
	path := writeConfig(t, "tuning.json", `{
  "brightness_threshold": 230,
  "smooth_factor": 0.5,
  "dead_zone": 15,
  "invert_pan": true,
  "auto_track": true
}`)

	cfg, err := LoadTuningConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 230, cfg.GetBrightnessThreshold())
	assert.Equal(t, 0.5, cfg.GetSmoothFactor())
	assert.Equal(t, 15.0, cfg.GetDeadZone())
	assert.True(t, cfg.GetInvertPan())
	assert.True(t, cfg.GetAutoTrack())
	// omitted fields keep defaults
	assert.Equal(t, track.DefaultMinAngleChange, cfg.GetMinAngleChange())

	tc := cfg.TrackerConfig(640, 480)
	assert.Equal(t, 640, tc.Width)
	assert.True(t, tc.InvertPan)
	assert.False(t, tc.InvertTilt)
}

func TestLoadTuningConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		file string
		body string
	}{
		{"extension", "tuning.yaml", `{}`},
		{"syntax", "tuning.json", `{"smooth_factor": }`},
		{"threshold", "tuning.json", `{"brightness_threshold": 300}`},
		{"unit range", "tuning.json", `{"recenter_rate": 1.5}`},
		{"span", "tuning.json", `{"tilt_half_span": 120}`},
		{"lost threshold", "tuning.json", `{"lost_threshold": 0}`},
		{"dead zone", "tuning.json", `{"dead_zone": -1}`},
		{"recenter step", "tuning.json", `{"recenter_min_step": -0.5}`},
		{"servo channel", "tuning.json", `{"servo": {"pan": {"channel": 24}}}`},
		{"servo range", "tuning.json", `{"servo": {"tilt": {"min_angle": 120, "max_angle": 60}}}`},
		{"servo open range", "tuning.json", `{"servo": {"tilt": {"min_angle": 190}}}`},
		{"servo offset", "tuning.json", `{"servo": {"pan": {"center_offset": 100}}}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadTuningConfig(writeConfig(t, tc.file, tc.body))
			assert.Error(t, err)
		})
	}

	_, err := LoadTuningConfig(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestApplyTo(t *testing.T) {
	det := spot.NewDetector(spot.DefaultConfig())
	ctl := track.New(track.DefaultConfig(320, 240), nil)

	cfg := EmptyTuningConfig()
	cfg.BrightnessThreshold = ptrInt(400)
	cfg.SmoothFactor = ptrFloat64(0.6)
	cfg.TiltHalfSpan = ptrFloat64(45)
	cfg.InvertTilt = ptrBool(true)
	cfg.CompressedAlpha = ptrFloat64(0.4)
	cfg.RecenterMinStep = ptrFloat64(0.5)
	cfg.ApplyTo(det, ctl)

	assert.Equal(t, 255, det.Config().BrightnessThreshold, "clamped")
	assert.Equal(t, 0.4, det.Config().CompressedAlpha)
	assert.Equal(t, spot.DefaultFilterAlpha, det.Config().FilterAlpha)
	got := ctl.Config()
	assert.Equal(t, 0.6, got.SmoothFactor)
	assert.Equal(t, track.DefaultPanHalfSpan, got.PanHalfSpan)
	assert.Equal(t, 45.0, got.TiltHalfSpan)
	assert.False(t, got.InvertPan)
	assert.True(t, got.InvertTilt)
	assert.Equal(t, track.DefaultDeadZone, got.DeadZone, "unset fields untouched")
	assert.Equal(t, 0.5, got.RecenterMinStep)
}

type servoPort struct{ bytes.Buffer }

func (p *servoPort) Close() error { return nil }

func TestServoChannelsDefault(t *testing.T) {
	want := map[ptz.Axis]servo.Channel{
		ptz.Pan:  servo.DefaultChannel(0),
		ptz.Tilt: servo.DefaultChannel(1),
	}
	if diff := cmp.Diff(want, EmptyTuningConfig().ServoChannels()); diff != "" {
		t.Errorf("channels mismatch (-want +got):\n%s", diff)
	}

	port := &servoPort{}
	require.NoError(t, EmptyTuningConfig().ApplyServo(servo.New(port, nil)))
	assert.Zero(t, port.Len())
}

func TestServoConfig(t *testing.T) {
	path := writeConfig(t, "tuning.json", `{
  "servo": {
    "pan": {"channel": 4, "min_angle": 45, "max_angle": 135, "center_offset": -9},
    "tilt": {"channel": 5}
  }
}`)
	cfg, err := LoadTuningConfig(path)
	require.NoError(t, err)

	channels := cfg.ServoChannels()
	assert.Equal(t, uint8(4), channels[ptz.Pan].Number)
	assert.Equal(t, uint8(5), channels[ptz.Tilt].Number)

	port := &servoPort{}
	ctrl := servo.New(port, channels)
	require.NoError(t, cfg.ApplyServo(ctrl))

	// 45 - 9 is clipped to the range minimum: 1000us
	require.NoError(t, ctrl.SetAngle(ptz.Pan, 0))
	// 45 + 45 - 9 = 81 degrees: 1400us
	require.NoError(t, ctrl.SetAngle(ptz.Pan, 90))
	// untouched tilt range: 1500us on channel 5
	require.NoError(t, ctrl.SetAngle(ptz.Tilt, 90))

	want := []byte{
		0x84, 4, 0x20, 0x1F,
		0x84, 4, 0x60, 0x2B,
		0x84, 5, 0x70, 0x2E,
	}
	assert.Equal(t, want, port.Bytes())
}
