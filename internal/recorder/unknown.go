package recorder

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"time"

	"turnstile/internal/config"
	"turnstile/internal/logging"
	"turnstile/internal/schedule"
	"turnstile/internal/services"
	"turnstile/internal/store"
	"turnstile/internal/vision"
)

// Classification reasons, stable because operators filter on them.
const (
	reasonCoveredFace = "face partially covered / low detection confidence"
	reasonNoMatch     = "face detected, no match found"
	reasonNoFace      = "no face detected"
)

// Capture is one unidentified sighting handed to the unknown recorder, with
// the full frame it was seen in.
type Capture struct {
	TrackID               string
	Frame                 image.Image
	FaceBox               *vision.Rect
	PersonBox             vision.Rect
	FaceDetected          bool
	FaceConfidence        float64
	RecognitionConfidence float64
	Embedding             []float32
	At                    time.Time
}

// UnknownResult reports what happened to one capture.
type UnknownResult struct {
	Stored    bool
	Updated   bool
	EntryID   int64
	EntryType store.EntryType
	Reason    string
	// Suppressed names the dedup gate that blocked the write, when one did.
	Suppressed string
}

// Suppression gate names used in UnknownResult and logs.
const (
	SuppressedByTrack      = "track-recapture-gate"
	SuppressedBySimilarity = "embedding-similarity"
)

// Unknown classifies unidentified sightings and writes unknown entries. Both
// dedup gates must pass before a write: the per-track re-capture gate and the
// rolling embedding similarity window.
type Unknown struct {
	logger *slog.Logger
	store  *store.Store
	dedup  *DedupCache

	mode             string
	jpegQuality      int
	coveredThreshold float64
	unknownThreshold float64
}

// NewUnknown builds the recorder with a dedup cache sized from config.
func NewUnknown(cfg *config.Config, st *store.Store, logger *slog.Logger) *Unknown {
	if logger == nil {
		logger = logging.NewNop()
	}
	dedup := NewDedupCache(
		time.Duration(cfg.Recognition.DedupWindowSeconds)*time.Second,
		cfg.Recognition.DuplicateSimilarity,
		time.Duration(cfg.Tracking.UnknownRecaptureSeconds)*time.Second,
	)
	return &Unknown{
		logger:           logging.NewComponentLogger(logger, "unknown"),
		store:            st,
		dedup:            dedup,
		mode:             cfg.Engine.Mode,
		jpegQuality:      cfg.Engine.CaptureJPEGQuality,
		coveredThreshold: cfg.Recognition.CoveredFaceThreshold,
		unknownThreshold: cfg.Recognition.UnknownThreshold,
	}
}

// Record classifies the capture, applies both dedup gates, crops and encodes
// the body region, and upserts the unknown entry for (track, day).
func (u *Unknown) Record(ctx context.Context, capture Capture) (UnknownResult, error) {
	entryType, reason := u.classify(capture)
	result := UnknownResult{EntryType: entryType, Reason: reason}

	date := schedule.DateString(capture.At)
	if u.dedup.TrackBlocked(capture.TrackID, date, capture.At) {
		result.Suppressed = SuppressedByTrack
		return result, nil
	}
	if entryType == store.EntryUnknownPerson && u.dedup.SimilarSeen(capture.Embedding, capture.TrackID, capture.At) {
		result.Suppressed = SuppressedBySimilarity
		u.logger.Debug("similar unknown suppressed",
			logging.String("track_id", capture.TrackID),
			logging.Float64("recognition_confidence", capture.RecognitionConfidence))
		return result, nil
	}

	imageBytes, err := u.encodeBody(capture)
	if err != nil {
		u.logger.Warn("unknown capture encode failed",
			logging.String("track_id", capture.TrackID),
			logging.Error(err))
		return result, err
	}

	entry := &store.UnknownEntry{
		TrackID:               capture.TrackID,
		EntryType:             entryType,
		Date:                  date,
		Time:                  schedule.TimeString(capture.At),
		DetectionTime:         capture.At,
		Image:                 imageBytes,
		FaceBBox:              capture.FaceBox,
		FaceDetected:          capture.FaceDetected,
		FaceConfidence:        capture.FaceConfidence,
		RecognitionConfidence: capture.RecognitionConfidence,
		Reason:                reason,
		Mode:                  u.mode,
	}
	if !capture.PersonBox.Empty() {
		box := capture.PersonBox
		entry.PersonBBox = &box
	}

	id, updated, err := u.store.SaveUnknownEntry(ctx, entry)
	if err != nil {
		u.logger.Warn("unknown entry write failed",
			logging.String("track_id", capture.TrackID),
			logging.Error(err))
		return result, err
	}

	result.Stored = true
	result.Updated = updated
	result.EntryID = id
	attrs := logging.ClassificationAttrs(string(entryType), reason, capture.FaceConfidence, capture.RecognitionConfidence)
	attrs = append(attrs,
		logging.String("track_id", capture.TrackID),
		logging.Int64("entry_id", id),
		logging.Bool("updated", updated))
	u.logger.Info("unknown entry recorded", logging.Args(attrs...)...)
	return result, nil
}

// CacheSize reports the embedding dedup cache occupancy for status surfaces.
func (u *Unknown) CacheSize() int { return u.dedup.Len() }

// classify picks the entry type and operator-facing reason. Evaluation order
// matters: a weak detection is covered_face even when recognition also
// failed, and only a sighting with no face at all is no_face.
func (u *Unknown) classify(capture Capture) (store.EntryType, string) {
	switch {
	case capture.FaceDetected && capture.FaceConfidence < u.coveredThreshold:
		return store.EntryCoveredFace, reasonCoveredFace
	case capture.FaceDetected && capture.RecognitionConfidence > 0 && capture.RecognitionConfidence < u.unknownThreshold:
		return store.EntryUnknownPerson, confidenceReason(capture.RecognitionConfidence)
	case capture.FaceDetected && capture.RecognitionConfidence == 0:
		return store.EntryUnknownPerson, reasonNoMatch
	case capture.FaceDetected:
		// At or above the unknown threshold but never confirmed as staff.
		return store.EntryUnknownPerson, confidenceReason(capture.RecognitionConfidence)
	default:
		return store.EntryNoFace, reasonNoFace
	}
}

func confidenceReason(confidence float64) string {
	return fmt.Sprintf("face detected, not in staff database (confidence: %.2f)", confidence)
}

// encodeBody crops the approximate body region and encodes it as JPEG. With
// a face box the crop expands from the face; otherwise it pads the person
// box the tracker or motion detector supplied.
func (u *Unknown) encodeBody(capture Capture) ([]byte, error) {
	if capture.Frame == nil {
		return nil, services.Wrap(services.ErrValidation, "recorder", "encode body", "capture has no frame", nil)
	}
	bounds := capture.Frame.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	var region vision.Rect
	switch {
	case capture.FaceBox != nil && !capture.FaceBox.Empty():
		region = vision.BodyCrop(*capture.FaceBox, width, height)
	case !capture.PersonBox.Empty():
		region = capture.PersonBox.Pad(20).Clamp(width, height)
	default:
		region = vision.NewRect(0, 0, width, height)
	}

	cropped := vision.CropImage(capture.Frame, region)
	data, err := vision.EncodeJPEG(cropped, u.jpegQuality)
	if err != nil {
		return nil, services.Wrap(services.ErrCorruptData, "recorder", "encode body", "jpeg encode", err)
	}
	return data, nil
}
