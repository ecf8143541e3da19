package panasonic

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spot-tracker/internal/ptz"
)

type camera struct {
	mu   sync.Mutex
	cmds []string
}

func (c *camera) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c.mu.Lock()
	c.cmds = append(c.cmds, r.URL.Query().Get("cmd"))
	c.mu.Unlock()
	w.Write([]byte("aPC"))
}

func (c *camera) commands() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.cmds...)
}

func newTestController(t *testing.T) (*Controller, *camera) {
	t.Helper()
	cam := &camera{}
	srv := httptest.NewServer(cam)
	t.Cleanup(srv.Close)

	c, err := NewController(Config{Address: strings.TrimPrefix(srv.URL, "http://")})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c, cam
}

func TestSetAngleSendsAbsolutePosition(t *testing.T) {
	c, cam := newTestController(t)

	require.NoError(t, c.SetAngle(ptz.Pan, 0))
	require.Equal(t, []string{"#APC2D0871C7"}, cam.commands())

	// updates during the cooldown collapse into one trailing command
	require.NoError(t, c.SetAngle(ptz.Tilt, 120))
	require.NoError(t, c.SetAngle(ptz.Tilt, 180))
	require.NoError(t, c.SetAngle(ptz.Pan, 180))

	require.Eventually(t, func() bool { return len(cam.commands()) == 2 }, time.Second, 5*time.Millisecond)
	time.Sleep(2 * minInterval)
	assert.Equal(t, []string{"#APC2D0871C7", "#APCD2F78E38"}, cam.commands())
}

func TestSetAngleSkipsUnchanged(t *testing.T) {
	c, cam := newTestController(t)

	require.NoError(t, c.SetAngle(ptz.Pan, 90))
	time.Sleep(2 * minInterval)
	require.NoError(t, c.SetAngle(ptz.Pan, 90))
	require.NoError(t, c.SetAngle(ptz.Tilt, 90))
	time.Sleep(2 * minInterval)

	assert.Len(t, cam.commands(), 1)
}

func TestSetAngleUnknownAxis(t *testing.T) {
	c, _ := newTestController(t)
	assert.ErrorIs(t, c.SetAngle(ptz.Axis(9), 10), ptz.ErrUnknownAxis)
}

func TestNewControllerRequiresAddress(t *testing.T) {
	_, err := NewController(Config{})
	assert.Error(t, err)
}

func TestAngleToPosition(t *testing.T) {
	assert.Equal(t, PanMin, angleToPosition(0, PanMin, PanMax))
	assert.Equal(t, PanMax, angleToPosition(180, PanMin, PanMax))
	assert.Equal(t, TiltMin, angleToPosition(-10, TiltMin, TiltMax))
	assert.Equal(t, 0x8000, angleToPosition(90, 0, 0x10000))
}
