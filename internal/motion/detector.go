// Package motion is the face-detection-independent fallback path. A running
// background model segments moving foreground regions; person-shaped regions
// that the primary detector did not explain are re-checked for a face and
// forwarded to the unknown recorder.
package motion

import (
	"fmt"
	"image"
	"sync"
	"time"

	"turnstile/internal/config"
	"turnstile/internal/vision"
)

// Working width of the background model. Frames are sampled down to roughly
// this width before segmentation; candidate boxes are reported in full-frame
// coordinates.
const modelWidth = 160

// Candidate is one moving region the primary path did not account for.
type Candidate struct {
	// MotionID is a synthetic track id derived from the quantized region
	// geometry, stable while the subject lingers in place.
	MotionID string
	Box      vision.Rect
	// AreaFraction is the foreground share of the frame this region covers.
	AreaFraction float64
	At           time.Time
}

// Detector segments frames against a running background model and gates the
// resulting regions. It is not safe for concurrent use; the fallback worker
// owns it.
type Detector struct {
	diffThreshold   float64
	minAreaFraction float64
	maxAreaFraction float64
	minWidth        int
	minHeight       int
	overlapIOU      float64
	learningRate    float64
	recapture       time.Duration

	factor     int
	maskWidth  int
	maskHeight int
	background []float32
	gray       []float32
	mask       []uint8
	scratch    []uint8

	mu           sync.Mutex
	lastCaptured map[string]time.Time
}

// NewDetector builds a detector from the motion config section.
func NewDetector(cfg *config.Config) *Detector {
	return &Detector{
		diffThreshold:   float64(cfg.Motion.DiffThreshold),
		minAreaFraction: cfg.Motion.MinAreaFraction,
		maxAreaFraction: cfg.Motion.MaxAreaFraction,
		minWidth:        cfg.Motion.MinWidth,
		minHeight:       cfg.Motion.MinHeight,
		overlapIOU:      cfg.Motion.OverlapIOU,
		learningRate:    cfg.Motion.BackgroundLearningRate,
		recapture:       time.Duration(cfg.Motion.RecaptureIntervalMillis) * time.Millisecond,
		lastCaptured:    make(map[string]time.Time),
	}
}

// Process segments one frame and returns the candidate regions that pass all
// gates: person-shaped size, no overlap with a primary detection box, and
// outside the per-region re-capture interval. The first frame only seeds the
// background model.
func (d *Detector) Process(frame image.Image, at time.Time, primary []vision.Rect) []Candidate {
	if frame == nil {
		return nil
	}
	bounds := frame.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width <= 0 || height <= 0 {
		return nil
	}

	if !d.prepared(width, height) {
		d.prepare(width, height)
		d.sampleGray(frame)
		copy(d.background, d.gray)
		return nil
	}

	d.sampleGray(frame)
	d.subtract()
	d.open()
	d.close()

	regions := d.components()
	candidates := make([]Candidate, 0, len(regions))
	total := float64(d.maskWidth * d.maskHeight)
	for _, region := range regions {
		fraction := float64(region.pixels) / total
		if fraction < d.minAreaFraction || fraction > d.maxAreaFraction {
			continue
		}
		box := vision.NewRect(
			region.minX*d.factor,
			region.minY*d.factor,
			(region.maxX+1)*d.factor,
			(region.maxY+1)*d.factor,
		).Clamp(width, height)
		if box.Width() < d.minWidth || box.Height() < d.minHeight {
			continue
		}
		if overlapsAny(box, primary, d.overlapIOU) {
			continue
		}
		id := motionID(box)
		if d.recentlyCaptured(id, at) {
			continue
		}
		candidates = append(candidates, Candidate{
			MotionID:     id,
			Box:          box,
			AreaFraction: fraction,
			At:           at,
		})
	}
	return candidates
}

// Reset drops the background model so the next frame reseeds it, used after
// camera reconnects.
func (d *Detector) Reset() {
	d.background = nil
	d.maskWidth = 0
	d.maskHeight = 0
}

func (d *Detector) prepared(width, height int) bool {
	factor := samplingFactor(width)
	return d.background != nil && d.factor == factor &&
		d.maskWidth == width/factor && d.maskHeight == height/factor
}

func (d *Detector) prepare(width, height int) {
	d.factor = samplingFactor(width)
	d.maskWidth = width / d.factor
	d.maskHeight = height / d.factor
	size := d.maskWidth * d.maskHeight
	d.background = make([]float32, size)
	d.gray = make([]float32, size)
	d.mask = make([]uint8, size)
	d.scratch = make([]uint8, size)
}

func samplingFactor(width int) int {
	factor := width / modelWidth
	if factor < 1 {
		factor = 1
	}
	return factor
}

// sampleGray fills the working grayscale buffer from the frame, sampling one
// pixel per model cell.
func (d *Detector) sampleGray(frame image.Image) {
	bounds := frame.Bounds()
	for y := 0; y < d.maskHeight; y++ {
		sy := bounds.Min.Y + y*d.factor
		for x := 0; x < d.maskWidth; x++ {
			sx := bounds.Min.X + x*d.factor
			r, g, b, _ := frame.At(sx, sy).RGBA()
			// Rec. 601 luma on 8-bit channels.
			luma := (299*float32(r>>8) + 587*float32(g>>8) + 114*float32(b>>8)) / 1000
			d.gray[y*d.maskWidth+x] = luma
		}
	}
}

// subtract builds the foreground mask and updates the background model on
// background pixels only, so a standing person is not absorbed.
func (d *Detector) subtract() {
	alpha := float32(d.learningRate)
	threshold := float32(d.diffThreshold)
	for i, value := range d.gray {
		diff := value - d.background[i]
		if diff < 0 {
			diff = -diff
		}
		if diff > threshold {
			d.mask[i] = 1
		} else {
			d.mask[i] = 0
			d.background[i] += alpha * (value - d.background[i])
		}
	}
}

// open erodes then dilates, removing isolated noise pixels.
func (d *Detector) open() {
	d.erode(d.mask, d.scratch)
	d.dilate(d.scratch, d.mask)
}

// close dilates then erodes, filling small holes inside regions.
func (d *Detector) close() {
	d.dilate(d.mask, d.scratch)
	d.erode(d.scratch, d.mask)
}

func (d *Detector) erode(src, dst []uint8) {
	w, h := d.maskWidth, d.maskHeight
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			keep := uint8(0)
			if src[y*w+x] == 1 &&
				x > 0 && x < w-1 && y > 0 && y < h-1 &&
				src[y*w+x-1] == 1 && src[y*w+x+1] == 1 &&
				src[(y-1)*w+x] == 1 && src[(y+1)*w+x] == 1 {
				keep = 1
			}
			dst[y*w+x] = keep
		}
	}
}

func (d *Detector) dilate(src, dst []uint8) {
	w, h := d.maskWidth, d.maskHeight
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			set := src[y*w+x]
			if set == 0 {
				if x > 0 && src[y*w+x-1] == 1 ||
					x < w-1 && src[y*w+x+1] == 1 ||
					y > 0 && src[(y-1)*w+x] == 1 ||
					y < h-1 && src[(y+1)*w+x] == 1 {
					set = 1
				}
			}
			dst[y*w+x] = set
		}
	}
}

type region struct {
	minX, minY, maxX, maxY int
	pixels                 int
}

// components labels 4-connected foreground regions with an iterative flood
// fill over the mask. The mask is consumed.
func (d *Detector) components() []region {
	w, h := d.maskWidth, d.maskHeight
	var regions []region
	var stack []int

	for start, set := range d.mask {
		if set != 1 {
			continue
		}
		current := region{minX: w, minY: h, maxX: -1, maxY: -1}
		stack = append(stack[:0], start)
		d.mask[start] = 2
		for len(stack) > 0 {
			idx := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			x, y := idx%w, idx/w

			current.pixels++
			if x < current.minX {
				current.minX = x
			}
			if x > current.maxX {
				current.maxX = x
			}
			if y < current.minY {
				current.minY = y
			}
			if y > current.maxY {
				current.maxY = y
			}

			if x > 0 && d.mask[idx-1] == 1 {
				d.mask[idx-1] = 2
				stack = append(stack, idx-1)
			}
			if x < w-1 && d.mask[idx+1] == 1 {
				d.mask[idx+1] = 2
				stack = append(stack, idx+1)
			}
			if y > 0 && d.mask[idx-w] == 1 {
				d.mask[idx-w] = 2
				stack = append(stack, idx-w)
			}
			if y < h-1 && d.mask[idx+w] == 1 {
				d.mask[idx+w] = 2
				stack = append(stack, idx+w)
			}
		}
		regions = append(regions, current)
	}
	return regions
}

// Quantization grids for the synthetic motion id, in full-frame pixels. A
// subject must move about half a grid cell before it reads as a new region.
const (
	idCenterGrid = 32
	idSizeGrid   = 64
)

func motionID(box vision.Rect) string {
	cx, cy := box.Center()
	return fmt.Sprintf("motion-%d-%d-%dx%d",
		cx/idCenterGrid, cy/idCenterGrid,
		box.Width()/idSizeGrid, box.Height()/idSizeGrid)
}

func overlapsAny(box vision.Rect, primary []vision.Rect, threshold float64) bool {
	for _, other := range primary {
		if box.IoU(other) >= threshold {
			return true
		}
	}
	return false
}

func (d *Detector) recentlyCaptured(id string, now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	for key, at := range d.lastCaptured {
		if now.Sub(at) > time.Minute {
			delete(d.lastCaptured, key)
		}
	}
	if last, ok := d.lastCaptured[id]; ok && now.Sub(last) < d.recapture {
		return true
	}
	d.lastCaptured[id] = now
	return false
}
