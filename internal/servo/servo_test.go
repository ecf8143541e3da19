package servo

import (
	"bytes"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spot-tracker/internal/ptz"
)

type fakePort struct {
	bytes.Buffer
	closed   bool
	writeErr error
}

func (p *fakePort) Write(b []byte) (int, error) {
	if p.writeErr != nil {
		return 0, p.writeErr
	}
	return p.Buffer.Write(b)
}

func (p *fakePort) Close() error {
	p.closed = true
	return nil
}

func TestPulse(t *testing.T) {
	tests := []struct {
		name    string
		ch      Channel
		degrees float64
		want    int
	}{
		{"zero", DefaultChannel(0), 0, 500},
		{"center", DefaultChannel(0), 90, 1500},
		{"full", DefaultChannel(0), 180, 2500},
		{"below range", DefaultChannel(0), -20, 500},
		{"above range", DefaultChannel(0), 200, 2500},
		{"restricted range", Channel{MinAngle: 45, MaxAngle: 135}, 0, 1000},
		{"restricted center", Channel{MinAngle: 45, MaxAngle: 135}, 90, 1500},
		{"offset", Channel{MinAngle: 0, MaxAngle: 180, CenterOffset: 9}, 90, 1600},
		{"offset clipped", Channel{MinAngle: 0, MaxAngle: 180, CenterOffset: 9}, 180, 2500},
		{"nan", DefaultChannel(0), math.NaN(), 1500},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.ch.Pulse(tc.degrees))
		})
	}
}

func TestSetAngleWritesMaestroTarget(t *testing.T) {
	port := &fakePort{}
	c := New(port, nil)

	require.NoError(t, c.SetAngle(ptz.Pan, 90))
	require.NoError(t, c.SetAngle(ptz.Tilt, 0))

	// 1500us = 6000 quarter-us = 0x70 | 0x2E<<7
	want := []byte{
		0x84, 0, 0x70, 0x2E,
		0x84, 1, 0x50, 0x0F,
	}
	assert.Equal(t, want, port.Bytes())
}

func TestSetAngleUnknownAxis(t *testing.T) {
	c := New(&fakePort{}, nil)
	err := c.SetAngle(ptz.Axis(7), 90)
	assert.ErrorIs(t, err, ptz.ErrUnknownAxis)
}

func TestSetAngleWriteError(t *testing.T) {
	c := New(&fakePort{writeErr: errors.New("unplugged")}, nil)
	err := c.SetAngle(ptz.Pan, 90)
	assert.ErrorContains(t, err, "unplugged")
}

func TestTrimAndRange(t *testing.T) {
	port := &fakePort{}
	c := New(port, map[ptz.Axis]Channel{ptz.Pan: DefaultChannel(3)})

	require.NoError(t, c.SetCenterOffset(ptz.Pan, -9))
	require.NoError(t, c.SetAngleRange(ptz.Pan, 200, 100)) // ignored
	require.NoError(t, c.SetAngle(ptz.Pan, 90))
	assert.Equal(t, byte(3), port.Bytes()[1])

	// 1400us = 5600 = 0x60 | 0x2B<<7
	assert.Equal(t, []byte{0x60, 0x2B}, port.Bytes()[2:4])

	assert.ErrorIs(t, c.SetCenterOffset(ptz.Tilt, 1), ptz.ErrUnknownAxis)
	require.NoError(t, c.Close())
	assert.True(t, port.closed)
}
