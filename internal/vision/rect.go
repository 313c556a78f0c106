// Package vision holds the frame, detection, and pixel-geometry types shared
// by the engine pipeline, plus the body-crop heuristic used when persisting
// unknown-person captures.
package vision

import (
	"encoding/json"
	"fmt"
)

// Rect is a pixel-aligned bounding box in corner form. It marshals to the
// JSON array [x0, y0, x1, y1] used by the capture records.
type Rect struct {
	X0, Y0, X1, Y1 int
}

// NewRect builds a normalized Rect from two corners.
func NewRect(x0, y0, x1, y1 int) Rect {
	if x1 < x0 {
		x0, x1 = x1, x0
	}
	if y1 < y0 {
		y0, y1 = y1, y0
	}
	return Rect{X0: x0, Y0: y0, X1: x1, Y1: y1}
}

// Width returns the horizontal extent in pixels.
func (r Rect) Width() int { return r.X1 - r.X0 }

// Height returns the vertical extent in pixels.
func (r Rect) Height() int { return r.Y1 - r.Y0 }

// Area returns the rectangle area in square pixels.
func (r Rect) Area() int {
	w, h := r.Width(), r.Height()
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// Empty reports whether the rectangle has no area.
func (r Rect) Empty() bool { return r.Width() <= 0 || r.Height() <= 0 }

// Center returns the midpoint of the rectangle.
func (r Rect) Center() (int, int) {
	return (r.X0 + r.X1) / 2, (r.Y0 + r.Y1) / 2
}

// Pad grows the rectangle by margin pixels on every side.
func (r Rect) Pad(margin int) Rect {
	return Rect{X0: r.X0 - margin, Y0: r.Y0 - margin, X1: r.X1 + margin, Y1: r.Y1 + margin}
}

// Translate shifts the rectangle by the given offsets.
func (r Rect) Translate(dx, dy int) Rect {
	return Rect{X0: r.X0 + dx, Y0: r.Y0 + dy, X1: r.X1 + dx, Y1: r.Y1 + dy}
}

// Clamp restricts the rectangle to the frame bounds [0,width) x [0,height).
func (r Rect) Clamp(width, height int) Rect {
	out := r
	if out.X0 < 0 {
		out.X0 = 0
	}
	if out.Y0 < 0 {
		out.Y0 = 0
	}
	if out.X1 > width {
		out.X1 = width
	}
	if out.Y1 > height {
		out.Y1 = height
	}
	if out.X1 < out.X0 {
		out.X1 = out.X0
	}
	if out.Y1 < out.Y0 {
		out.Y1 = out.Y0
	}
	return out
}

// Intersect returns the overlapping region of two rectangles, which may be empty.
func (r Rect) Intersect(other Rect) Rect {
	out := Rect{
		X0: max(r.X0, other.X0),
		Y0: max(r.Y0, other.Y0),
		X1: min(r.X1, other.X1),
		Y1: min(r.Y1, other.Y1),
	}
	if out.Empty() {
		return Rect{}
	}
	return out
}

// IoU computes intersection over union. Degenerate rectangles yield 0.
func (r Rect) IoU(other Rect) float64 {
	inter := r.Intersect(other).Area()
	if inter == 0 {
		return 0
	}
	union := r.Area() + other.Area() - inter
	if union <= 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

func (r Rect) String() string {
	return fmt.Sprintf("[%d,%d,%d,%d]", r.X0, r.Y0, r.X1, r.Y1)
}

// MarshalJSON encodes the rectangle as [x0, y0, x1, y1].
func (r Rect) MarshalJSON() ([]byte, error) {
	return json.Marshal([4]int{r.X0, r.Y0, r.X1, r.Y1})
}

// UnmarshalJSON decodes the [x0, y0, x1, y1] array form.
func (r *Rect) UnmarshalJSON(data []byte) error {
	var arr [4]int
	if err := json.Unmarshal(data, &arr); err != nil {
		return fmt.Errorf("rect: %w", err)
	}
	*r = NewRect(arr[0], arr[1], arr[2], arr[3])
	return nil
}
