//go:build gocv

package capture

import (
	"fmt"
	"log"
	"sync"

	"gocv.io/x/gocv"

	"spot-tracker/internal/frame"
)

// Camera reads frames from an OpenCV video capture in the background
type Camera struct {
	vc     *gocv.VideoCapture
	frames chan *frame.Frame
	stopCh chan struct{}
	done   chan struct{}
	once   sync.Once
}

// Open opens the capture device and starts reading frames.
func Open(cfg Config) (*Camera, error) {
	vc, err := gocv.OpenVideoCapture(cfg.Device)
	if err != nil {
		return nil, fmt.Errorf("failed to open capture device %q: %w", cfg.Device, err)
	}
	// keep latency low, only the newest frame matters
	vc.Set(gocv.VideoCaptureBufferSize, 1)
	if cfg.Width > 0 && cfg.Height > 0 {
		vc.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
		vc.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	}

	c := &Camera{
		vc:     vc,
		frames: make(chan *frame.Frame, 2),
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

func (c *Camera) readLoop() {
	defer close(c.done)
	defer close(c.frames)

	img := gocv.NewMat()
	defer img.Close()

	for {
		select {
		case <-c.stopCh:
			return
		default:
		}

		if ok := c.vc.Read(&img); !ok {
			log.Printf("Capture: device closed")
			return
		}
		if img.Empty() {
			continue
		}

		im, err := img.ToImage()
		if err != nil {
			log.Printf("Capture: failed to convert frame: %v", err)
			continue
		}

		select {
		case c.frames <- frame.FromImage(im):
		case <-c.stopCh:
			return
		default:
			// Drop frame if the tracker is behind
		}
	}
}

// Frames returns the channel of captured frames
func (c *Camera) Frames() <-chan *frame.Frame {
	return c.frames
}

// Close stops capturing and releases the device
func (c *Camera) Close() error {
	var err error
	c.once.Do(func() {
		close(c.stopCh)
		<-c.done
		err = c.vc.Close()
	})
	return err
}
