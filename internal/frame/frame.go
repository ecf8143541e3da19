// Package frame holds the RGB565 pixel buffers consumed by the spot detector.
package frame

import (
	"fmt"
	"image"
	"image/color"
)

// Frame is a rectangular RGB565 image stored row-major. A frame must not be
// modified while a detection call is reading it.
type Frame struct {
	Width  int
	Height int
	Pix    []uint16
}

// New allocates a black frame of the given size.
func New(width, height int) *Frame {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	return &Frame{
		Width:  width,
		Height: height,
		Pix:    make([]uint16, width*height),
	}
}

// Valid reports whether the buffer length matches the frame geometry.
func (f *Frame) Valid() bool {
	return f != nil && f.Width > 0 && f.Height > 0 && len(f.Pix) == f.Width*f.Height
}

// At returns the packed pixel at (x, y). Out of range coordinates return 0.
func (f *Frame) At(x, y int) uint16 {
	if x < 0 || y < 0 || x >= f.Width || y >= f.Height {
		return 0
	}
	return f.Pix[y*f.Width+x]
}

// Set stores a packed pixel at (x, y). Out of range coordinates are ignored.
func (f *Frame) Set(x, y int, p uint16) {
	if x < 0 || y < 0 || x >= f.Width || y >= f.Height {
		return
	}
	f.Pix[y*f.Width+x] = p
}

// Fill paints the rectangle r, clipped to the frame, with p.
func (f *Frame) Fill(r image.Rectangle, p uint16) {
	r = r.Intersect(image.Rect(0, 0, f.Width, f.Height))
	for y := r.Min.Y; y < r.Max.Y; y++ {
		row := f.Pix[y*f.Width : (y+1)*f.Width]
		for x := r.Min.X; x < r.Max.X; x++ {
			row[x] = p
		}
	}
}

func (f *Frame) String() string {
	return fmt.Sprintf("frame %dx%d", f.Width, f.Height)
}

// Pack converts 8-bit channels to a packed RGB565 value.
func Pack(r, g, b uint8) uint16 {
	return uint16(r>>3)<<11 | uint16(g>>2)<<5 | uint16(b>>3)
}

// Unpack expands a packed RGB565 value to 8-bit channels by replicating the
// high bits into the low bits.
func Unpack(p uint16) (r, g, b uint8) {
	r5 := uint8(p>>11) & 0x1F
	g6 := uint8(p>>5) & 0x3F
	b5 := uint8(p) & 0x1F
	r = r5<<3 | r5>>2
	g = g6<<2 | g6>>4
	b = b5<<3 | b5>>2
	return r, g, b
}

// Luma returns the integer Rec.601 brightness of a packed pixel, 0..255.
func Luma(p uint16) uint8 {
	r, g, b := Unpack(p)
	return uint8((77*uint32(r) + 150*uint32(g) + 29*uint32(b)) >> 8)
}

// FromImage converts any image to an RGB565 frame. The image origin is
// shifted to (0, 0).
func FromImage(img image.Image) *Frame {
	bounds := img.Bounds()
	f := New(bounds.Dx(), bounds.Dy())
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			c := color.RGBAModel.Convert(img.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.RGBA)
			f.Pix[y*f.Width+x] = Pack(c.R, c.G, c.B)
		}
	}
	return f
}
