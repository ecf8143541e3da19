package visca

import (
	"encoding/binary"
	"fmt"
	"math"
	"net"
	"sync"
	"time"

	"spot-tracker/internal/ptz"
)

// Default position units at 90 degrees from center. Wide enough for most
// PTZ cameras; narrow it for cameras with less travel.
const (
	DefaultPanRange  = 0x0990
	DefaultTiltRange = 0x0510

	defaultPanSpeed  = 0x18
	defaultTiltSpeed = 0x14
)

// Controller drives a VISCA camera with absolute pan/tilt positions
type Controller struct {
	conn     net.Conn
	mu       sync.Mutex
	addr     int    // Camera address (1-7), default 1
	seqNum   uint32 // Sequence number for VISCA over IP
	protocol string

	panRange, tiltRange int
	panSpeed, tiltSpeed byte

	// Last commanded angles, both axes go out in every command
	pan, tilt float64
}

// Config for VISCA controller
type Config struct {
	// For UDP: address like "192.168.1.100:52381"
	// For TCP: address like "192.168.1.100:5678"
	Address  string
	Protocol string // "udp" or "tcp"

	PanRange  int // position units for +-90 degrees, default DefaultPanRange
	TiltRange int
	PanSpeed  int // 1-24
	TiltSpeed int // 1-20
}

// NewController creates a new VISCA controller
func NewController(cfg Config) (*Controller, error) {
	protocol := cfg.Protocol
	if protocol == "" {
		protocol = "udp" // Default to UDP for VISCA over IP
	}
	if protocol != "udp" && protocol != "tcp" {
		return nil, fmt.Errorf("unsupported protocol: %s", protocol)
	}

	conn, err := net.DialTimeout(protocol, cfg.Address, 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to VISCA over %s: %w", protocol, err)
	}

	c := &Controller{
		conn:      conn,
		addr:      1,
		protocol:  protocol,
		panRange:  cfg.PanRange,
		tiltRange: cfg.TiltRange,
		panSpeed:  byte(clampInt(cfg.PanSpeed, 1, 24)),
		tiltSpeed: byte(clampInt(cfg.TiltSpeed, 1, 20)),
		pan:       ptz.CenterAngle,
		tilt:      ptz.CenterAngle,
	}
	if c.panRange <= 0 {
		c.panRange = DefaultPanRange
	}
	if c.tiltRange <= 0 {
		c.tiltRange = DefaultTiltRange
	}
	if cfg.PanSpeed == 0 {
		c.panSpeed = defaultPanSpeed
	}
	if cfg.TiltSpeed == 0 {
		c.tiltSpeed = defaultTiltSpeed
	}
	return c, nil
}

// Close closes the VISCA connection
func (c *Controller) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// SetAngle updates one axis and sends an absolute position command carrying
// both axes.
func (c *Controller) SetAngle(axis ptz.Axis, degrees float64) error {
	c.mu.Lock()
	switch axis {
	case ptz.Pan:
		c.pan = ptz.ClampAngle(degrees)
	case ptz.Tilt:
		c.tilt = ptz.ClampAngle(degrees)
	default:
		c.mu.Unlock()
		return fmt.Errorf("visca %s: %w", axis, ptz.ErrUnknownAxis)
	}
	payload := c.absolutePosition(c.pan, c.tilt)
	c.mu.Unlock()

	return c.sendCommand(payload)
}

// absolutePosition builds Pan-tiltDrive AbsolutePosition:
// 01 06 02 VV WW 0Y 0Y 0Y 0Y 0Z 0Z 0Z 0Z
// Tilt angles above 90 point the camera down, which is negative in VISCA.
func (c *Controller) absolutePosition(pan, tilt float64) []byte {
	panPos := int(math.Round((pan - 90) / 90 * float64(c.panRange)))
	tiltPos := int(math.Round((90 - tilt) / 90 * float64(c.tiltRange)))

	payload := []byte{0x01, 0x06, 0x02, c.panSpeed, c.tiltSpeed}
	payload = appendNibbles(payload, panPos)
	payload = appendNibbles(payload, tiltPos)
	return payload
}

// appendNibbles appends a signed 16 bit position as four 0x0N bytes, most
// significant nibble first.
func appendNibbles(b []byte, pos int) []byte {
	v := uint16(int16(pos))
	return append(b,
		byte(v>>12)&0x0F,
		byte(v>>8)&0x0F,
		byte(v>>4)&0x0F,
		byte(v)&0x0F,
	)
}

// buildVISCAPayload constructs a raw VISCA command (address + payload + terminator)
func (c *Controller) buildVISCAPayload(payload []byte) []byte {
	cmd := make([]byte, 0, len(payload)+2)
	cmd = append(cmd, byte(0x80|c.addr))
	cmd = append(cmd, payload...)
	cmd = append(cmd, 0xFF) // Terminator
	return cmd
}

// buildVISCAOverIP wraps a VISCA payload in VISCA-over-IP framing
func (c *Controller) buildVISCAOverIP(viscaPayload []byte) []byte {
	// Bytes 0-1: Message type (0x01 0x00 for command)
	// Bytes 2-3: Payload length (big endian)
	// Bytes 4-7: Sequence number (big endian)
	header := make([]byte, 8, 8+len(viscaPayload))
	header[0] = 0x01
	header[1] = 0x00
	binary.BigEndian.PutUint16(header[2:4], uint16(len(viscaPayload)))
	binary.BigEndian.PutUint32(header[4:8], c.seqNum)
	c.seqNum++

	return append(header, viscaPayload...)
}

// sendCommand sends a command without waiting for response (fire-and-forget)
func (c *Controller) sendCommand(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	viscaPayload := c.buildVISCAPayload(payload)

	var packet []byte
	if c.protocol == "udp" {
		packet = c.buildVISCAOverIP(viscaPayload)
	} else {
		// Raw VISCA for TCP (some devices)
		packet = viscaPayload
	}

	// Short write deadline - don't block the tracking loop
	c.conn.SetWriteDeadline(time.Now().Add(10 * time.Millisecond))
	if _, err := c.conn.Write(packet); err != nil {
		return fmt.Errorf("failed to send VISCA command: %w", err)
	}
	return nil
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
