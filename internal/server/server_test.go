package server

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spot-tracker/internal/monitoring"
	"spot-tracker/internal/pipeline"
	"spot-tracker/internal/protocol"
	"spot-tracker/internal/ptz"
	"spot-tracker/internal/spot"
	"spot-tracker/internal/track"
)

func TestMain(m *testing.M) {
	monitoring.SetLogger(nil)
	log.SetOutput(io.Discard)
	m.Run()
}

type harness struct {
	srv  *Server
	http *httptest.Server
	pipe *pipeline.Pipeline
	rec  *ptz.Recorder
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	rec := ptz.NewRecorder()
	ctl := track.New(track.DefaultConfig(320, 240), rec)
	pipe := pipeline.New(spot.NewDetector(spot.DefaultConfig()), ctl, pipeline.Config{})

	srv := New(Config{ListenAddr: "127.0.0.1:0"}, pipe)
	pipe.SetStatusSink(srv.Broadcast)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		pipe.Run(ctx, make(chan pipeline.Input))
	}()

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		cancel()
		<-done
	})
	return &harness{srv: srv, http: ts, pipe: pipe, rec: rec}
}

func (h *harness) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(h.http.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	// initial status
	readType(t, conn, protocol.TypeStatus)
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msgType string, payload any) {
	t.Helper()
	msg, err := protocol.NewMessage(msgType, payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(msg))
}

// readType reads messages until one of msgType arrives.
func readType(t *testing.T, conn *websocket.Conn, msgType string) protocol.Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var msg protocol.Message
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Type == msgType {
			return msg
		}
	}
}

// readStatus reads status updates until match accepts one.
func readStatus(t *testing.T, conn *websocket.Conn, match func(protocol.StatusPayload) bool) protocol.StatusPayload {
	t.Helper()
	for {
		msg := readType(t, conn, protocol.TypeStatus)
		var st protocol.StatusPayload
		require.NoError(t, msg.ParsePayload(&st))
		if match(st) {
			return st
		}
	}
}

func TestInitialStatus(t *testing.T) {
	h := newHarness(t)
	url := "ws" + strings.TrimPrefix(h.http.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	msg := readType(t, conn, protocol.TypeStatus)
	var st protocol.StatusPayload
	require.NoError(t, msg.ParsePayload(&st))
	assert.Equal(t, "MANUAL", st.Mode)
	assert.Equal(t, 90.0, st.Pan)
	assert.Equal(t, 90.0, st.Tilt)
	assert.Equal(t, 320, st.Width)
	assert.Empty(t, st.Miss)
}

func TestPingPong(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t)

	send(t, conn, protocol.TypePing, protocol.PingPayload{Timestamp: 1234})
	msg := readType(t, conn, protocol.TypePong)

	var pong protocol.PongPayload
	require.NoError(t, msg.ParsePayload(&pong))
	assert.Equal(t, int64(1234), pong.ClientTimestamp)
	assert.NotZero(t, pong.ServerTimestamp)
}

func TestSetAngles(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t)

	send(t, conn, protocol.TypeSetAngles, protocol.SetAnglesPayload{Pan: 30, Tilt: 200})
	st := readStatus(t, conn, func(s protocol.StatusPayload) bool { return s.Pan == 30 })
	assert.Equal(t, 180.0, st.Tilt, "clamped")

	pan, ok := h.rec.Last(ptz.Pan)
	require.True(t, ok)
	assert.Equal(t, 30.0, pan)
}

func TestManualStep(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t)

	send(t, conn, protocol.TypeManual, protocol.ManualPayload{Step: protocol.StepLeft})
	st := readStatus(t, conn, func(s protocol.StatusPayload) bool { return s.Pan != 90 })
	assert.Equal(t, 90-track.ManualStep, st.Pan)
	assert.Equal(t, "LEFT", st.PanMotion)

	send(t, conn, protocol.TypeManual, protocol.ManualPayload{Tilt: -5})
	st = readStatus(t, conn, func(s protocol.StatusPayload) bool { return s.Tilt != 90 })
	assert.Equal(t, 85.0, st.Tilt)

	send(t, conn, protocol.TypeManual, protocol.ManualPayload{Step: "sideways"})
	msg := readType(t, conn, protocol.TypeError)
	var perr protocol.ErrorPayload
	require.NoError(t, msg.ParsePayload(&perr))
	assert.Equal(t, protocol.ErrInvalidMessage, perr.Code)
}

func TestSetMode(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t)

	send(t, conn, protocol.TypeSetMode, protocol.SetModePayload{Mode: "AUTO_TRACK"})
	readStatus(t, conn, func(s protocol.StatusPayload) bool { return s.Mode == "AUTO_TRACK" })

	send(t, conn, protocol.TypeSetMode, protocol.SetModePayload{Mode: "WANDER"})
	msg := readType(t, conn, protocol.TypeError)
	var perr protocol.ErrorPayload
	require.NoError(t, msg.ParsePayload(&perr))
	assert.Equal(t, protocol.ErrInvalidMode, perr.Code)
}

func TestTuningAndReset(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"tuning","payload":{"brightness_threshold":200,"dead_zone":4}}`)))
	readStatus(t, conn, func(s protocol.StatusPayload) bool { return s.Threshold == 200 })
	assert.Equal(t, 4.0, h.pipe.Snapshot().Tracker.DeadZone)

	send(t, conn, protocol.TypeSetAngles, protocol.SetAnglesPayload{Pan: 10, Tilt: 10})
	readStatus(t, conn, func(s protocol.StatusPayload) bool { return s.Pan == 10 })

	send(t, conn, protocol.TypeReset, nil)
	st := readStatus(t, conn, func(s protocol.StatusPayload) bool { return s.Pan == 90 })
	assert.Equal(t, 90.0, st.Tilt)
}

func TestInvalidMessage(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{nope")))
	msg := readType(t, conn, protocol.TypeError)
	var perr protocol.ErrorPayload
	require.NoError(t, msg.ParsePayload(&perr))
	assert.Equal(t, protocol.ErrInvalidMessage, perr.Code)

	send(t, conn, "zoom", nil)
	readType(t, conn, protocol.TypeError)
}

func TestAPIStatus(t *testing.T) {
	h := newHarness(t)

	resp, err := http.Get(h.http.URL + "/api/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var st protocol.StatusPayload
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	assert.Equal(t, "MANUAL", st.Mode)
	assert.Equal(t, "IDLE", st.Phase)

	resp2, err := http.Post(h.http.URL+"/api/status", "application/json", nil)
	require.NoError(t, err)
	resp2.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp2.StatusCode)
}

func TestBroadcastReachesAllClients(t *testing.T) {
	h := newHarness(t)
	a := h.dial(t)
	b := h.dial(t)
	require.Eventually(t, func() bool { return h.srv.ClientCount() == 2 }, time.Second, 10*time.Millisecond)

	send(t, a, protocol.TypeSetAngles, protocol.SetAnglesPayload{Pan: 120, Tilt: 90})
	readStatus(t, a, func(s protocol.StatusPayload) bool { return s.Pan == 120 })
	readStatus(t, b, func(s protocol.StatusPayload) bool { return s.Pan == 120 })

	h.srv.Stop()
	require.Eventually(t, func() bool { return h.srv.ClientCount() == 0 }, time.Second, 10*time.Millisecond)
}

func TestStatusPayloadMissStreak(t *testing.T) {
	st := pipeline.Status{
		Detection: spot.Result{Miss: spot.MissTooFewPixels},
		LostCount: 7,
		Ticks:     9,
	}
	p := statusPayload(st)
	assert.Equal(t, 7, p.MissStreak)
	assert.Equal(t, spot.MissTooFewPixels.String(), p.Miss)

	data, err := json.Marshal(p)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"miss_streak":7`)
}
