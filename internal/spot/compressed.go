package spot

import "spot-tracker/internal/monitoring"

// Sampling parameters for DetectCompressed.
const (
	compressedSkipHeader   = 100
	compressedMinLength    = compressedSkipHeader + 100
	compressedStride       = 16
	compressedMaxSamples   = 1000
	compressedBright       = 200
	compressedMinBright    = 10
	DefaultCompressedAlpha = 0.7
)

// DetectCompressed estimates the spot position from an undecoded JPEG
// stream by treating sampled entropy-coded bytes as brightness values.
//
// This is a much weaker estimator than Detect: byte values in a compressed
// stream correlate only loosely with pixel brightness and the byte offset
// correlates only loosely with image position. Use it only when no decoded
// frame is available. It shares the position filter with Detect.
func (d *Detector) DetectCompressed(data []byte, width, height int) Result {
	d.stats.Frames++
	if width <= 0 || height <= 0 || len(data) < compressedMinLength {
		return d.miss(MissInvalidFrame)
	}
	if data[0] != 0xFF || data[1] != 0xD8 {
		if d.frameCount < diagnosticFrames {
			monitoring.Logf("[SPOT] compressed: missing SOI marker")
		}
		return d.miss(MissBadStream)
	}

	n := len(data)
	var (
		samples, bright       int
		maxVal                uint8
		maxX, maxY            int
		sumBright, sumX, sumY uint64
	)

	for i := compressedSkipHeader; i < n-1 && samples < compressedMaxSamples; i += compressedStride {
		// marker pairs carry no image data
		if data[i] == 0xFF && data[i+1] != 0x00 && data[i+1] != 0xFF {
			i++
			continue
		}

		v := data[i]
		px := i * width / n
		py := i * height / n
		if v > maxVal {
			maxVal = v
			maxX, maxY = px, py
		}
		if v >= compressedBright {
			bright++
			sumBright += uint64(v)
			sumX += uint64(px) * uint64(v)
			sumY += uint64(py) * uint64(v)
		}
		samples++
	}

	if d.frameCount < diagnosticFrames {
		monitoring.Logf("[SPOT] compressed: %d bytes %dx%d samples=%d bright=%d max=%d at (%d,%d)",
			n, width, height, samples, bright, maxVal, maxX, maxY)
	}

	if int(maxVal) < d.cfg.BrightnessThreshold || bright < compressedMinBright {
		if int(maxVal) < d.cfg.BrightnessThreshold {
			return d.miss(MissBelowThreshold)
		}
		return d.miss(MissTooFewPixels)
	}

	ex, ey := maxX, maxY
	if sumBright > 0 {
		ex = int(sumX / sumBright)
		ey = int(sumY / sumBright)
	}
	if ex >= width {
		ex = width - 1
	}
	if ey >= height {
		ey = height - 1
	}

	return d.hit(float64(ex), float64(ey), d.cfg.CompressedAlpha, bright)
}
