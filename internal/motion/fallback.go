package motion

import (
	"context"
	"image"
	"log/slog"
	"sync"
	"time"

	"turnstile/internal/config"
	"turnstile/internal/faceclient"
	"turnstile/internal/logging"
	"turnstile/internal/recorder"
	"turnstile/internal/vision"
)

// FaceClient is the slice of the recognition sidecar the fallback needs for
// region re-checks.
type FaceClient interface {
	DetectInRegion(ctx context.Context, frame image.Image, region vision.Rect) ([]faceclient.Face, error)
	Identify(ctx context.Context, embedding []float32) (vision.Identity, error)
}

// Sink receives the motion sightings that survive every gate.
type Sink interface {
	Record(ctx context.Context, capture recorder.Capture) (recorder.UnknownResult, error)
}

type frameInput struct {
	image   image.Image
	at      time.Time
	primary []vision.Rect
}

// Fallback runs the motion path on its own cadence so fast-moving subjects
// the throttled primary path misses are still captured. Frames are offered
// from the engine loop and dropped when the worker is busy.
type Fallback struct {
	logger   *slog.Logger
	detector *Detector
	faces    FaceClient
	sink     Sink

	interval       time.Duration
	staffThreshold float64

	frames chan frameInput

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// NewFallback wires the detector to the recognition sidecar and the unknown
// recorder.
func NewFallback(cfg *config.Config, detector *Detector, faces FaceClient, sink Sink, logger *slog.Logger) *Fallback {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Fallback{
		logger:         logging.NewComponentLogger(logger, "motion"),
		detector:       detector,
		faces:          faces,
		sink:           sink,
		interval:       time.Duration(cfg.Motion.IntervalMillis) * time.Millisecond,
		staffThreshold: cfg.Recognition.StaffThreshold,
		frames:         make(chan frameInput, 1),
	}
}

// Start launches the worker. Calling Start twice is a no-op.
func (f *Fallback) Start(ctx context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.started {
		return
	}
	ctx, f.cancel = context.WithCancel(ctx)
	f.started = true
	f.wg.Add(1)
	go f.run(ctx)
}

// Stop cancels the worker and waits for it to finish.
func (f *Fallback) Stop() {
	f.mu.Lock()
	if !f.started {
		f.mu.Unlock()
		return
	}
	f.started = false
	cancel := f.cancel
	f.mu.Unlock()

	cancel()
	f.wg.Wait()
}

// Offer hands a frame to the worker without blocking the frame loop. The
// primary boxes are this cycle's detections, used to skip regions the main
// path already explained. Reports whether the frame was queued.
func (f *Fallback) Offer(frame image.Image, at time.Time, primary []vision.Rect) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.started || frame == nil {
		return false
	}
	select {
	case f.frames <- frameInput{image: frame, at: at, primary: primary}:
		return true
	default:
		return false
	}
}

func (f *Fallback) run(ctx context.Context) {
	defer f.wg.Done()

	var lastRun time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case input := <-f.frames:
			if !lastRun.IsZero() && input.at.Sub(lastRun) < f.interval {
				continue
			}
			lastRun = input.at
			f.processFrame(ctx, input)
		}
	}
}

func (f *Fallback) processFrame(ctx context.Context, input frameInput) {
	candidates := f.detector.Process(input.image, input.at, input.primary)
	for _, candidate := range candidates {
		f.processCandidate(ctx, input.image, candidate)
	}
}

func (f *Fallback) processCandidate(ctx context.Context, frame image.Image, candidate Candidate) {
	bounds := frame.Bounds()
	pad := candidate.Box.Width()
	if candidate.Box.Height() > pad {
		pad = candidate.Box.Height()
	}
	roi := candidate.Box.Pad(pad / 4).Clamp(bounds.Dx(), bounds.Dy())
	if roi.Empty() {
		return
	}

	capture := recorder.Capture{
		TrackID:   candidate.MotionID,
		Frame:     frame,
		PersonBox: candidate.Box,
		At:        candidate.At,
	}

	// Face re-check restricted to the candidate region. Sidecar failures are
	// swallowed here; the sighting is still worth keeping as evidence.
	faces, err := f.faces.DetectInRegion(ctx, frame, roi)
	if err != nil {
		f.logger.Warn("motion region re-check failed",
			logging.String("motion_id", candidate.MotionID),
			logging.Error(err))
	} else if best, ok := bestFace(faces); ok {
		faceBox := best.BBox
		capture.FaceBox = &faceBox
		capture.FaceDetected = true
		capture.FaceConfidence = best.Confidence
		capture.Embedding = best.Embedding

		if identity, err := f.faces.Identify(ctx, best.Embedding); err != nil {
			f.logger.Warn("motion region identify failed",
				logging.String("motion_id", candidate.MotionID),
				logging.Error(err))
		} else {
			if identity.IsStaff() && identity.Confidence >= f.staffThreshold {
				f.logger.Debug("motion region matched staff, skipping",
					logging.String("motion_id", candidate.MotionID),
					logging.String("staff_id", identity.StaffID))
				return
			}
			capture.RecognitionConfidence = identity.Confidence
		}
	}

	result, err := f.sink.Record(ctx, capture)
	if err != nil {
		f.logger.Warn("motion sighting write failed",
			logging.String("motion_id", candidate.MotionID),
			logging.Error(err))
		return
	}
	if result.Stored {
		f.logger.Debug("motion sighting recorded",
			logging.String("motion_id", candidate.MotionID),
			logging.String("entry_type", string(result.EntryType)),
			logging.Float64("area_fraction", candidate.AreaFraction))
	}
}

func bestFace(faces []faceclient.Face) (faceclient.Face, bool) {
	if len(faces) == 0 {
		return faceclient.Face{}, false
	}
	best := faces[0]
	for _, face := range faces[1:] {
		if face.Confidence > best.Confidence {
			best = face
		}
	}
	return best, true
}
