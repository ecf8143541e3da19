// Package spot locates the brightest light source in a frame.
//
// Detection runs in two passes. A global scan finds the peak luma; a second
// pass over a small window around the peak accumulates a luma-squared
// weighted centroid of the saturated core. A short fast-lock phase after
// Reset is followed by a one-pole position filter.
package spot

import (
	"fmt"
	"math"

	"spot-tracker/internal/frame"
	"spot-tracker/internal/monitoring"
)

const (
	// DefaultBrightnessThreshold is the minimum peak luma accepted as a spot.
	DefaultBrightnessThreshold = 240

	// WindowSize is the side of the square refinement window in pixels.
	WindowSize = 30

	// CorePercent is the share of the peak luma a pixel must reach to count
	// as part of the spot core.
	CorePercent = 80

	// MinCorePixels is the minimum number of core pixels for a detection.
	MinCorePixels = 30

	// MinWeight is the minimum sum of squared luma over the core pixels.
	MinWeight uint64 = 1_000_000

	// FastLockFrames is the number of detections after Reset that bypass the
	// position filter.
	FastLockFrames = 10

	// DefaultFilterAlpha weights the new centroid in the position filter.
	DefaultFilterAlpha = 0.75

	// diagnosticFrames is how many frames after Reset get verbose logging.
	diagnosticFrames = 3
)

// Miss explains why a frame produced no detection.
type Miss int

const (
	MissNone Miss = iota
	MissInvalidFrame
	MissBelowThreshold
	MissTooFewPixels
	MissWeakSignal
	MissBadStream
)

func (m Miss) String() string {
	switch m {
	case MissNone:
		return "none"
	case MissInvalidFrame:
		return "invalid_frame"
	case MissBelowThreshold:
		return "below_threshold"
	case MissTooFewPixels:
		return "too_few_pixels"
	case MissWeakSignal:
		return "weak_signal"
	case MissBadStream:
		return "bad_stream"
	default:
		return fmt.Sprintf("miss(%d)", int(m))
	}
}

// Result is the outcome of one detection call.
type Result struct {
	Found      bool
	X, Y       int
	Confidence int // qualifying bright pixels, or bright samples for compressed input
	Miss       Miss
}

// Stats counts detection outcomes since the detector was created.
type Stats struct {
	Frames         uint64
	Detections     uint64
	InvalidFrames  uint64
	BelowThreshold uint64
	TooFewPixels   uint64
	WeakSignal     uint64
	BadStream      uint64
}

// Config holds the detector tunables.
type Config struct {
	BrightnessThreshold int
	FilterAlpha         float64
	CompressedAlpha     float64
}

// DefaultConfig returns the detector defaults.
func DefaultConfig() Config {
	return Config{
		BrightnessThreshold: DefaultBrightnessThreshold,
		FilterAlpha:         DefaultFilterAlpha,
		CompressedAlpha:     DefaultCompressedAlpha,
	}
}

// Detector holds the filter state between frames. A Detector is not safe
// for concurrent use.
type Detector struct {
	cfg Config

	lastX, lastY float64
	initFrames   int
	lostCount    int
	frameCount   uint64

	result Result
	stats  Stats
}

// NewDetector creates a detector. Out of range config values are clamped.
func NewDetector(cfg Config) *Detector {
	d := &Detector{}
	d.cfg.BrightnessThreshold = clampInt(cfg.BrightnessThreshold, 0, 255)
	d.cfg.FilterAlpha = DefaultFilterAlpha
	d.cfg.CompressedAlpha = DefaultCompressedAlpha
	d.SetFilterAlpha(cfg.FilterAlpha)
	d.SetCompressedAlpha(cfg.CompressedAlpha)
	d.Reset()
	return d
}

// Reset clears the filter and the last result. The next FastLockFrames
// detections are reported unfiltered.
func (d *Detector) Reset() {
	d.result = Result{}
	d.frameCount = 0
	d.lastX = 160
	d.lastY = 120
	d.initFrames = 0
	d.lostCount = 0
}

// SetBrightnessThreshold changes the minimum peak luma, clamped to 0..255.
func (d *Detector) SetBrightnessThreshold(t int) {
	d.cfg.BrightnessThreshold = clampInt(t, 0, 255)
}

// SetFilterAlpha changes the position filter coefficient, clamped to [0,1].
func (d *Detector) SetFilterAlpha(a float64) {
	if !math.IsNaN(a) {
		d.cfg.FilterAlpha = clampUnit(a)
	}
}

// SetCompressedAlpha changes the position filter coefficient used by
// DetectCompressed, clamped to [0,1].
func (d *Detector) SetCompressedAlpha(a float64) {
	if !math.IsNaN(a) {
		d.cfg.CompressedAlpha = clampUnit(a)
	}
}

// Config returns the current detector configuration.
func (d *Detector) Config() Config { return d.cfg }

// Result returns the most recent detection result.
func (d *Detector) Result() Result { return d.result }

// Stats returns the outcome counters.
func (d *Detector) Stats() Stats { return d.stats }

// LostCount returns the number of consecutive frames without a detection.
func (d *Detector) LostCount() int { return d.lostCount }

// Detect locates the spot in a decoded RGB565 frame.
func (d *Detector) Detect(f *frame.Frame) Result {
	d.stats.Frames++
	if !f.Valid() {
		return d.miss(MissInvalidFrame)
	}

	w, h := f.Width, f.Height
	verbose := d.frameCount < diagnosticFrames

	// global scan for the peak
	var peak uint8
	var peakX, peakY int
	for y := 0; y < h; y++ {
		row := f.Pix[y*w : (y+1)*w]
		for x, p := range row {
			if l := frame.Luma(p); l > peak {
				peak = l
				peakX, peakY = x, y
			}
		}
	}

	if verbose {
		monitoring.Logf("[SPOT] frame #%d %dx%d threshold=%d peak=%d at (%d,%d)",
			d.frameCount, w, h, d.cfg.BrightnessThreshold, peak, peakX, peakY)
	}

	if int(peak) < d.cfg.BrightnessThreshold {
		if verbose {
			monitoring.Logf("[SPOT] reject: peak %d below threshold %d", peak, d.cfg.BrightnessThreshold)
		}
		return d.miss(MissBelowThreshold)
	}

	x0, x1 := window(peakX, w)
	y0, y1 := window(peakY, h)

	core := int(peak) * CorePercent / 100
	if core < d.cfg.BrightnessThreshold {
		core = d.cfg.BrightnessThreshold
	}

	var sumX, sumY, sumW uint64
	count := 0
	for y := y0; y < y1; y++ {
		row := f.Pix[y*w : (y+1)*w]
		for x := x0; x < x1; x++ {
			l := frame.Luma(row[x])
			if int(l) < core {
				continue
			}
			weight := uint64(l) * uint64(l)
			sumX += uint64(x) * weight
			sumY += uint64(y) * weight
			sumW += weight
			count++
		}
	}

	if count < MinCorePixels || sumW == 0 {
		if verbose {
			monitoring.Logf("[SPOT] reject: %d core pixels (need %d) near (%d,%d)", count, MinCorePixels, peakX, peakY)
		}
		return d.miss(MissTooFewPixels)
	}
	if sumW < MinWeight {
		if verbose {
			monitoring.Logf("[SPOT] reject: weight %d (need %d)", sumW, MinWeight)
		}
		return d.miss(MissWeakSignal)
	}

	cx := int(sumX / sumW)
	cy := int(sumY / sumW)
	// the sensor delivers a horizontally mirrored image
	cx = w - 1 - cx

	if verbose {
		monitoring.Logf("[SPOT] hit: centroid (%d,%d) pixels=%d core=%d", cx, cy, count, core)
	}

	return d.hit(float64(cx), float64(cy), d.cfg.FilterAlpha, count)
}

// window returns the clipped [start, end) range of the refinement window
// around c on an axis of length n.
func window(c, n int) (int, int) {
	half := WindowSize / 2
	start := 0
	if c > half {
		start = c - half
	}
	end := n
	if c+half < n {
		end = c + half
	}
	return start, end
}

func (d *Detector) hit(x, y, alpha float64, confidence int) Result {
	if d.initFrames < FastLockFrames {
		d.lastX, d.lastY = x, y
		d.initFrames++
	} else {
		d.lastX = d.lastX*(1-alpha) + x*alpha
		d.lastY = d.lastY*(1-alpha) + y*alpha
	}

	d.result = Result{
		Found:      true,
		X:          int(d.lastX),
		Y:          int(d.lastY),
		Confidence: confidence,
	}
	d.lostCount = 0
	d.frameCount++
	d.stats.Detections++
	return d.result
}

func (d *Detector) miss(reason Miss) Result {
	switch reason {
	case MissInvalidFrame:
		d.stats.InvalidFrames++
	case MissBelowThreshold:
		d.stats.BelowThreshold++
	case MissTooFewPixels:
		d.stats.TooFewPixels++
	case MissWeakSignal:
		d.stats.WeakSignal++
	case MissBadStream:
		d.stats.BadStream++
	}
	d.result.Found = false
	d.result.Confidence = 0
	d.result.Miss = reason
	d.lostCount++
	d.frameCount++
	return d.result
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
