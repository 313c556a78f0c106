package vision

import (
	"image"
	"time"
)

// Frame is a single camera image stamped with its capture time and a
// monotonically increasing sequence number.
type Frame struct {
	Image     image.Image
	Timestamp time.Time
	Sequence  uint64
}

// Bounds returns the pixel bounds of the underlying image, or the zero
// rectangle when no image is attached.
func (f Frame) Bounds() image.Rectangle {
	if f.Image == nil {
		return image.Rectangle{}
	}
	return f.Image.Bounds()
}

// Size returns the frame dimensions in pixels.
func (f Frame) Size() (width, height int) {
	b := f.Bounds()
	return b.Dx(), b.Dy()
}
