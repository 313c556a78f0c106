package vision

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
)

// Body crop expansion factors relative to the face box. A face tells us
// where the head is; the torso extends mostly downward, so the crop reaches
// six face heights below the chin but only one and a half above.
const (
	bodySideFactor = 1.5
	bodyUpFactor   = 1.5
	bodyDownFactor = 6.0

	// minCropDim rejects crops too small to be a useful capture.
	minCropDim = 16
	// fallbackPad pads the raw face box when the expanded crop collapses,
	// usually because the face sits at a frame edge.
	fallbackPad = 20
)

// BodyCrop expands a face box into an estimated full-body region, clamped to
// the frame. When the expanded region degenerates it falls back to a padded
// crop around the face box itself so a capture is always produced.
func BodyCrop(face Rect, frameWidth, frameHeight int) Rect {
	fw := float64(face.Width())
	fh := float64(face.Height())

	crop := Rect{
		X0: face.X0 - int(bodySideFactor*fw),
		Y0: face.Y0 - int(bodyUpFactor*fh),
		X1: face.X1 + int(bodySideFactor*fw),
		Y1: face.Y1 + int(bodyDownFactor*fh),
	}.Clamp(frameWidth, frameHeight)

	if crop.Width() >= minCropDim && crop.Height() >= minCropDim {
		return crop
	}
	return face.Pad(fallbackPad).Clamp(frameWidth, frameHeight)
}

// CropImage extracts the rectangle from the frame image. Formats that support
// cheap subimages share pixels; anything else is copied.
func CropImage(img image.Image, r Rect) image.Image {
	bounds := img.Bounds()
	clamped := r.Clamp(bounds.Dx(), bounds.Dy())
	rect := image.Rect(
		bounds.Min.X+clamped.X0,
		bounds.Min.Y+clamped.Y0,
		bounds.Min.X+clamped.X1,
		bounds.Min.Y+clamped.Y1,
	)

	if sub, ok := img.(interface {
		SubImage(image.Rectangle) image.Image
	}); ok {
		return sub.SubImage(rect)
	}

	dst := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	draw.Draw(dst, dst.Bounds(), img, rect.Min, draw.Src)
	return dst
}

// EncodeJPEG serializes the image at the given quality. Out of range values
// fall back to the encoder default.
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	if quality < 1 || quality > 100 {
		quality = jpeg.DefaultQuality
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode parses JPEG or PNG bytes into an image.
func Decode(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

// ResizeToFit scales the image down so neither dimension exceeds maxSize,
// keeping aspect ratio. Images already within bounds are returned unchanged.
func ResizeToFit(img image.Image, maxSize int) image.Image {
	if maxSize <= 0 {
		return img
	}
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	if width <= maxSize && height <= maxSize {
		return img
	}

	var newWidth, newHeight int
	if width > height {
		newWidth = maxSize
		newHeight = height * maxSize / width
	} else {
		newHeight = maxSize
		newWidth = width * maxSize / height
	}
	if newWidth < 1 {
		newWidth = 1
	}
	if newHeight < 1 {
		newHeight = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	return dst
}
