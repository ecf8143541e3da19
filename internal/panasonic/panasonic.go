package panasonic

import (
	"fmt"
	"log"
	"net/http"
	"net/url"
	"sync"
	"time"

	"spot-tracker/internal/ptz"
)

const minInterval = 50 * time.Millisecond // ~20 commands/sec max

// Absolute position limits of the #APC command
const (
	PanMin  = 0x2D08
	PanMax  = 0xD2F7
	TiltMin = 0x5555
	TiltMax = 0x8E38
)

// throttle coalesces rapid updates, sending immediately when possible
// and scheduling a trailing edge send for updates during cooldown
type throttle struct {
	mu           sync.Mutex
	lastSendTime time.Time
	timerRunning bool
	stopCh       <-chan struct{}
	flush        func()
}

func (t *throttle) trigger() {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	if now.Sub(t.lastSendTime) >= minInterval {
		t.flush()
		t.lastSendTime = now
	} else if !t.timerRunning {
		t.timerRunning = true
		remaining := minInterval - now.Sub(t.lastSendTime)
		go func() {
			select {
			case <-time.After(remaining):
				t.mu.Lock()
				t.flush()
				t.lastSendTime = time.Now()
				t.timerRunning = false
				t.mu.Unlock()
			case <-t.stopCh:
			}
		}()
	}
}

// Controller manages HTTP CGI communication with a Panasonic PTZ camera
type Controller struct {
	baseURL string
	client  *http.Client
	mu      sync.Mutex
	stopCh  chan struct{}
	once    sync.Once

	// Pan/tilt state in degrees
	panTilt struct {
		throttle
		pending, sent struct{ pan, tilt float64 }
	}
}

// Config for Panasonic controller
type Config struct {
	Address string // Camera IP address or hostname (e.g., "192.168.1.100")
}

// NewController creates a new Panasonic controller
func NewController(cfg Config) (*Controller, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("camera address is required")
	}

	c := &Controller{
		baseURL: fmt.Sprintf("http://%s/cgi-bin/aw_ptz", cfg.Address),
		client: &http.Client{
			Timeout: 2 * time.Second,
		},
		stopCh: make(chan struct{}),
	}

	// Start from a sentinel so the first command always goes out
	c.panTilt.pending.pan, c.panTilt.pending.tilt = ptz.CenterAngle, ptz.CenterAngle
	c.panTilt.sent.pan, c.panTilt.sent.tilt = -1, -1

	c.panTilt.stopCh = c.stopCh
	c.panTilt.flush = func() {
		if c.panTilt.pending != c.panTilt.sent {
			if err := c.sendPosition(c.panTilt.pending.pan, c.panTilt.pending.tilt); err != nil {
				log.Printf("Panasonic: %v", err)
				return
			}
			c.panTilt.sent = c.panTilt.pending
		}
	}

	return c, nil
}

// Close stops pending trailing edge sends
func (c *Controller) Close() error {
	c.once.Do(func() { close(c.stopCh) })
	return nil
}

// SetAngle updates one axis. Updates arriving faster than the camera accepts
// commands are coalesced into one #APC command.
func (c *Controller) SetAngle(axis ptz.Axis, degrees float64) error {
	degrees = ptz.ClampAngle(degrees)

	c.panTilt.mu.Lock()
	switch axis {
	case ptz.Pan:
		c.panTilt.pending.pan = degrees
	case ptz.Tilt:
		c.panTilt.pending.tilt = degrees
	default:
		c.panTilt.mu.Unlock()
		return fmt.Errorf("panasonic %s: %w", axis, ptz.ErrUnknownAxis)
	}
	changed := c.panTilt.pending != c.panTilt.sent
	c.panTilt.mu.Unlock()

	if changed {
		c.panTilt.trigger()
	}
	return nil
}

// sendPosition sends the absolute pan/tilt command
// Panasonic format: #APC<pan 4 hex><tilt 4 hex>
func (c *Controller) sendPosition(pan, tilt float64) error {
	return c.sendCommand(fmt.Sprintf("#APC%04X%04X", angleToPosition(pan, PanMin, PanMax), angleToPosition(tilt, TiltMin, TiltMax)))
}

// sendCommand sends a command to the camera via HTTP CGI
func (c *Controller) sendCommand(cmd string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	reqURL := fmt.Sprintf("%s?cmd=%s&res=1", c.baseURL, url.QueryEscape(cmd))

	resp, err := c.client.Get(reqURL)
	if err != nil {
		return fmt.Errorf("failed to send command: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to send command %s: %s", cmd, resp.Status)
	}
	return nil
}

// angleToPosition maps 0-180 degrees linearly onto [lo, hi]
func angleToPosition(degrees float64, lo, hi int) int {
	degrees = ptz.ClampAngle(degrees)
	return lo + int(float64(hi-lo)*degrees/180+0.5)
}
