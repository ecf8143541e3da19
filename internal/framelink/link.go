package framelink

import (
	"errors"
	"fmt"
	"io"
	"log"
	"sync"

	"spot-tracker/internal/serialport"
)

// Link reads frames from a serial port in the background
type Link struct {
	port   io.ReadCloser
	reader *Reader
	frames chan []byte
	stopCh chan struct{}
	once   sync.Once
}

// Open opens the serial device and starts reading frames.
func Open(device string, opts serialport.PortOptions, maxSize int) (*Link, error) {
	port, err := serialport.Open(device, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open frame link: %w", err)
	}
	return NewLink(port, maxSize), nil
}

// NewLink starts reading frames from port. The link owns port and closes it
// on Close.
func NewLink(port io.ReadCloser, maxSize int) *Link {
	l := &Link{
		port:   port,
		reader: NewReader(port, maxSize),
		frames: make(chan []byte, 4),
		stopCh: make(chan struct{}),
	}
	go l.readLoop()
	return l
}

// Frames returns the channel of received JPEG frames. It is closed when the
// link stops.
func (l *Link) Frames() <-chan []byte {
	return l.frames
}

func (l *Link) readLoop() {
	defer close(l.frames)

	for {
		data, err := l.reader.ReadFrame()
		if err != nil {
			if errors.Is(err, ErrFrameTooLarge) || errors.Is(err, ErrBadFrame) {
				log.Printf("FrameLink: %v, resyncing (%d earlier)", err, l.reader.Resyncs())
				continue
			}
			select {
			case <-l.stopCh:
			default:
				if !errors.Is(err, io.EOF) {
					log.Printf("FrameLink: read failed: %v", err)
				}
			}
			return
		}

		select {
		case l.frames <- data:
		case <-l.stopCh:
			return
		default:
			// Drop frame if the consumer is behind
		}
	}
}

// Close stops the link and closes the port
func (l *Link) Close() error {
	var err error
	l.once.Do(func() {
		close(l.stopCh)
		err = l.port.Close()
	})
	return err
}
