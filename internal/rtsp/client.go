package rtsp

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/bluenviron/gortsplib/v4"
	"github.com/bluenviron/gortsplib/v4/pkg/base"
	"github.com/bluenviron/gortsplib/v4/pkg/format"
	"github.com/bluenviron/gortsplib/v4/pkg/format/rtpmjpeg"
	"github.com/pion/rtp"
)

// ErrNoMJPEG is returned when the stream carries no MJPEG video.
var ErrNoMJPEG = errors.New("stream has no MJPEG track")

// Client pulls an MJPEG stream over RTSP and reassembles JPEG frames
type Client struct {
	url    string
	frames chan []byte
	stopCh chan struct{}

	mu      sync.Mutex
	client  *gortsplib.Client
	stopped bool
}

// NewClient creates a new RTSP client
func NewClient(rtspURL string) (*Client, error) {
	// Validate URL by parsing it
	_, err := base.ParseURL(rtspURL)
	if err != nil {
		return nil, err
	}

	return &Client{
		url:    rtspURL,
		frames: make(chan []byte, 4),
		stopCh: make(chan struct{}),
	}, nil
}

// Connect establishes the RTSP connection and starts streaming. If the
// first attempt fails the error is returned and reconnection continues in
// the background until Close.
func (c *Client) Connect() error {
	err := c.connect()
	if err != nil && !c.isStopped() {
		go c.reconnect()
	}
	return err
}

func (c *Client) isStopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopped
}

func (c *Client) connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return fmt.Errorf("client closed")
	}

	client := &gortsplib.Client{
		// Use TCP transport (interleaved)
		Transport: func() *gortsplib.Transport {
			t := gortsplib.TransportTCP
			return &t
		}(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		OnDecodeError: func(err error) {
			log.Printf("RTSP: Decode error: %v", err)
		},
	}

	u, err := base.ParseURL(c.url)
	if err != nil {
		return err
	}

	err = client.Start(u.Scheme, u.Host)
	if err != nil {
		return err
	}

	desc, _, err := client.Describe(u)
	if err != nil {
		client.Close()
		return err
	}

	var forma *format.MJPEG
	media := desc.FindFormat(&forma)
	if media == nil {
		client.Close()
		return ErrNoMJPEG
	}

	dec, err := forma.CreateDecoder()
	if err != nil {
		client.Close()
		return fmt.Errorf("failed to create MJPEG decoder: %w", err)
	}

	_, err = client.Setup(desc.BaseURL, media, 0, 0)
	if err != nil {
		client.Close()
		return err
	}

	client.OnPacketRTP(media, forma, func(pkt *rtp.Packet) {
		jpeg, err := dec.Decode(pkt)
		if err != nil {
			if !errors.Is(err, rtpmjpeg.ErrMorePacketsNeeded) {
				log.Printf("RTSP: MJPEG decode: %v", err)
			}
			return
		}

		select {
		case c.frames <- jpeg:
		case <-c.stopCh:
		default:
			// Drop frame if the tracker is behind
		}
	})

	_, err = client.Play(nil)
	if err != nil {
		client.Close()
		return err
	}

	c.client = client
	log.Printf("RTSP: Connected and playing")

	go c.monitorConnection()

	return nil
}

// monitorConnection watches for disconnection and reconnects
func (c *Client) monitorConnection() {
	c.mu.Lock()
	client := c.client
	c.mu.Unlock()

	if client == nil {
		return
	}

	err := client.Wait()

	select {
	case <-c.stopCh:
		return
	default:
	}

	if err != nil {
		log.Printf("RTSP: Connection lost: %v", err)
	}
	c.reconnect()
}

// reconnect retries with exponential backoff until connected or closed
func (c *Client) reconnect() {
	for attempt := 1; ; attempt++ {
		delay := min(time.Duration(1<<uint(min(attempt-1, 5)))*time.Second, 30*time.Second)
		log.Printf("RTSP: Reconnect attempt %d in %v", attempt, delay)

		select {
		case <-c.stopCh:
			return
		case <-time.After(delay):
		}

		if err := c.connect(); err != nil {
			log.Printf("RTSP: Reconnect failed: %v", err)
			continue
		}

		log.Printf("RTSP: Reconnected successfully")
		return
	}
}

// Frames returns the channel of reassembled JPEG frames. It is closed by
// Close.
func (c *Client) Frames() <-chan []byte {
	return c.frames
}

// Close closes the RTSP connection
func (c *Client) Close() error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil
	}
	c.stopped = true
	client := c.client
	c.mu.Unlock()

	close(c.stopCh)
	if client != nil {
		client.Close()
	}
	close(c.frames)
	return nil
}
