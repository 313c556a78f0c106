package testsupport

import (
	"image"
	"image/color"
	"testing"

	"turnstile/internal/vision"
)

// NewTestImage builds an RGBA image with a simple gradient so JPEG encoding
// has real content to work with.
func NewTestImage(width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 7), G: uint8(y * 11), B: uint8((x + y) * 3), A: 255})
		}
	}
	return img
}

// JPEGBytes encodes a small generated image for tests that need stored
// capture payloads.
func JPEGBytes(t testing.TB, width, height int) []byte {
	t.Helper()

	data, err := vision.EncodeJPEG(NewTestImage(width, height), 85)
	if err != nil {
		t.Fatalf("encode test jpeg: %v", err)
	}
	return data
}
