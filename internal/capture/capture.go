// Package capture reads frames from a local camera or video file.
//
// Capture goes through OpenCV and is only available in builds with the gocv
// tag. Other builds get a stub whose Open returns ErrUnsupported.
package capture

import "errors"

// ErrUnsupported is returned by Open in builds without OpenCV.
var ErrUnsupported = errors.New("camera capture requires a build with the gocv tag")

// Config for a capture device
type Config struct {
	Device string // camera index ("0") or file/stream URL
	Width  int    // requested frame size, 0 keeps the device default
	Height int
}
