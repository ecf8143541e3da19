// Package framelink receives JPEG frames from the camera board over a serial
// link.
//
// Each frame is sent as a 4 byte big-endian length, the JPEG bytes, and an
// optional FF D9 trailer. Transfers can be cut short on the sender side, so
// the reader validates every frame and resynchronizes on the next SOI
// marker after a bad header.
package framelink

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// DefaultMaxFrameSize caps a single JPEG frame.
const DefaultMaxFrameSize = 512 << 10

const minFrameSize = 4 // SOI + EOI

var (
	// ErrFrameTooLarge is returned for frames above the configured maximum.
	ErrFrameTooLarge = errors.New("frame too large")

	// ErrBadFrame is returned for frames without a JPEG SOI marker or with an
	// impossible length.
	ErrBadFrame = errors.New("bad frame")
)

// Reader splits a byte stream into JPEG frames. Both ErrFrameTooLarge and
// ErrBadFrame are recoverable: the next ReadFrame call resynchronizes.
type Reader struct {
	r        *bufio.Reader
	max      int
	needSync bool
	resyncs  uint64
}

// NewReader creates a frame reader. maxSize <= 0 selects
// DefaultMaxFrameSize.
func NewReader(r io.Reader, maxSize int) *Reader {
	if maxSize <= 0 {
		maxSize = DefaultMaxFrameSize
	}
	return &Reader{r: bufio.NewReaderSize(r, 4096), max: maxSize}
}

// Resyncs returns how many times the reader had to scan for a frame start.
func (r *Reader) Resyncs() uint64 { return r.resyncs }

// ReadFrame returns the next complete JPEG frame.
func (r *Reader) ReadFrame() ([]byte, error) {
	if r.needSync {
		r.needSync = false
		r.resyncs++
		return r.resync()
	}

	var hdr [4]byte
	if _, err := io.ReadFull(r.r, hdr[:2]); err != nil {
		return nil, err
	}
	// the trailer of the previous frame
	if hdr[0] == 0xFF && hdr[1] == 0xD9 {
		if _, err := io.ReadFull(r.r, hdr[:2]); err != nil {
			return nil, err
		}
	}
	if _, err := io.ReadFull(r.r, hdr[2:]); err != nil {
		return nil, err
	}

	n := binary.BigEndian.Uint32(hdr[:])
	if n > uint32(r.max) {
		r.needSync = true
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrFrameTooLarge, n, r.max)
	}
	if n < minFrameSize {
		r.needSync = true
		return nil, fmt.Errorf("%w: length %d", ErrBadFrame, n)
	}

	data := make([]byte, n)
	if _, err := io.ReadFull(r.r, data); err != nil {
		return nil, err
	}
	if data[0] != 0xFF || data[1] != 0xD8 {
		r.needSync = true
		return nil, fmt.Errorf("%w: missing SOI marker", ErrBadFrame)
	}
	return data, nil
}

// resync discards bytes up to the next FF D8 and returns everything up to
// and including the following FF D9.
func (r *Reader) resync() ([]byte, error) {
	var prev byte
	for {
		b, err := r.r.ReadByte()
		if err != nil {
			return nil, err
		}
		if prev == 0xFF && b == 0xD8 {
			break
		}
		prev = b
	}

	data := []byte{0xFF, 0xD8}
	prev = 0
	for {
		b, err := r.r.ReadByte()
		if err != nil {
			return nil, err
		}
		data = append(data, b)
		if prev == 0xFF && b == 0xD9 {
			return data, nil
		}
		if len(data) > r.max {
			r.needSync = true
			return nil, fmt.Errorf("%w: no EOI within %d bytes", ErrFrameTooLarge, r.max)
		}
		prev = b
	}
}
