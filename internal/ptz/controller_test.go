package ptz

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClampAngle(t *testing.T) {
	assert.Equal(t, 0.0, ClampAngle(-12))
	assert.Equal(t, 180.0, ClampAngle(190))
	assert.Equal(t, 42.5, ClampAngle(42.5))
	assert.Equal(t, CenterAngle, ClampAngle(math.NaN()))
	assert.Equal(t, 180.0, ClampAngle(math.Inf(1)))
}

func TestRecorder(t *testing.T) {
	r := NewRecorder()
	var _ Actuator = r

	assert.NoError(t, r.SetAngle(Pan, 10))
	assert.NoError(t, r.SetAngle(Tilt, 20))
	assert.NoError(t, r.SetAngle(Pan, 30))

	assert.Equal(t, []Command{{Axis: Pan, Degrees: 10}, {Axis: Tilt, Degrees: 20}, {Axis: Pan, Degrees: 30}}, r.Commands())
	v, ok := r.Last(Pan)
	assert.True(t, ok)
	assert.Equal(t, 30.0, v)

	r.Reset()
	assert.Empty(t, r.Commands())
	_, ok = r.Last(Tilt)
	assert.False(t, ok)
}

func TestAxisString(t *testing.T) {
	assert.Equal(t, "pan", Pan.String())
	assert.Equal(t, "tilt", Tilt.String())
	assert.Equal(t, "ch5", Axis(5).String())
}
