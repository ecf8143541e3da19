package spot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStream builds a JPEG-like byte stream of length n with bright bytes in
// [from, to).
func fakeStream(n, from, to int) []byte {
	data := make([]byte, n)
	data[0], data[1] = 0xFF, 0xD8
	for i := 2; i < n; i++ {
		data[i] = 0x10
	}
	for i := from; i < to; i++ {
		data[i] = 250
	}
	return data
}

func TestDetectCompressedFindsBrightRegion(t *testing.T) {
	d := NewDetector(DefaultConfig())

	res := d.DetectCompressed(fakeStream(2000, 1000, 1200), 320, 240)
	require.True(t, res.Found)
	// bright bytes sit around offset 1100 of 2000
	assert.InDelta(t, 176, res.X, 2)
	assert.InDelta(t, 132, res.Y, 2)
	assert.Equal(t, 12, res.Confidence)
}

func TestDetectCompressedRequiresSOI(t *testing.T) {
	d := NewDetector(DefaultConfig())
	data := fakeStream(2000, 1000, 1200)
	data[1] = 0x00

	res := d.DetectCompressed(data, 320, 240)
	assert.False(t, res.Found)
	assert.Equal(t, MissBadStream, res.Miss)
}

func TestDetectCompressedTooShort(t *testing.T) {
	d := NewDetector(DefaultConfig())

	res := d.DetectCompressed(fakeStream(150, 0, 0), 320, 240)
	assert.Equal(t, MissInvalidFrame, res.Miss)
}

func TestDetectCompressedNeedsBrightSamples(t *testing.T) {
	d := NewDetector(DefaultConfig())

	// a handful of bright bytes is not enough
	res := d.DetectCompressed(fakeStream(2000, 1000, 1040), 320, 240)
	assert.False(t, res.Found)
	assert.Equal(t, MissTooFewPixels, res.Miss)

	res = d.DetectCompressed(fakeStream(2000, 0, 0), 320, 240)
	assert.Equal(t, MissBelowThreshold, res.Miss)
}

func TestDetectCompressedSkipsMarkers(t *testing.T) {
	d := NewDetector(DefaultConfig())

	// FF at every even offset reads as a marker, so sampling shifts onto the
	// dim odd bytes and the 0xFF values are never counted as brightness
	data := fakeStream(2000, 0, 0)
	for i := 100; i+1 < len(data); i += 2 {
		data[i] = 0xFF
		data[i+1] = 0x10
	}
	res := d.DetectCompressed(data, 320, 240)
	assert.False(t, res.Found)
	assert.Equal(t, MissBelowThreshold, res.Miss)
}
