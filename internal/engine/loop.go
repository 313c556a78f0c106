package engine

import (
	"context"
	"errors"
	"time"

	"turnstile/internal/faceclient"
	"turnstile/internal/logging"
	"turnstile/internal/recorder"
	"turnstile/internal/tracking"
	"turnstile/internal/vision"
)

// Tracker and detector boxes describing the same face overlap at least this
// much.
const trackMatchIOU = 0.3

func (e *Engine) run(ctx context.Context) {
	defer e.wg.Done()

	var (
		frameCount    uint64
		lastDetection time.Time
		lastPrimary   []vision.Rect
	)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		frame, err := e.source.Next(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			e.setLastError(err)
			e.metrics.FrameErrors.Inc()
			e.logger.Warn("frame fetch failed", logging.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(e.retryWait):
			}
			continue
		}
		e.markFrame(frame.Timestamp)

		if e.motion != nil {
			if !e.motion.Offer(frame.Image, frame.Timestamp, lastPrimary) {
				e.metrics.MotionFramesDropped.Inc()
			}
		}

		frameCount++
		if e.frameSkip > 1 && frameCount%uint64(e.frameSkip) != 0 {
			e.metrics.FramesSkipped.Inc()
			continue
		}
		if !lastDetection.IsZero() && frame.Timestamp.Sub(lastDetection) < e.minGap {
			e.metrics.FramesSkipped.Inc()
			continue
		}
		lastDetection = frame.Timestamp

		started := time.Now()
		lastPrimary = e.processFrame(ctx, frame)
		e.metrics.ProcessSeconds.Observe(time.Since(started).Seconds())
		e.metrics.FramesProcessed.Inc()
	}
}

// processFrame runs one detect-track-identify pass and returns the person
// boxes seen, which the motion fallback uses to suppress duplicate regions.
func (e *Engine) processFrame(ctx context.Context, frame vision.Frame) []vision.Rect {
	jpeg, err := vision.EncodeJPEG(frame.Image, e.quality)
	if err != nil {
		e.setLastError(err)
		e.logger.Warn("frame encode failed", logging.Error(err))
		return nil
	}

	faces, err := e.faces.Detect(ctx, jpeg)
	if err != nil {
		e.setLastError(err)
		e.metrics.DetectionErrors.Inc()
		e.logger.Warn("face detection failed", logging.Error(err))
		return nil
	}
	e.metrics.FacesDetected.Add(float64(len(faces)))

	boxes := make([]vision.Rect, len(faces))
	for i, face := range faces {
		boxes[i] = face.BBox
	}
	tracks, err := e.faces.UpdateTracks(ctx, jpeg, boxes)
	if err != nil {
		e.setLastError(err)
		e.metrics.DetectionErrors.Inc()
		e.logger.Warn("tracker update failed", logging.Error(err))
		return nil
	}

	width, height := frame.Size()
	detections := matchDetections(tracks, faces, width, height)
	primary := make([]vision.Rect, 0, len(detections))
	for i := range detections {
		det := &detections[i]
		primary = append(primary, det.PersonBox)

		if det.HasEmbedding() {
			identity, err := e.faces.Identify(ctx, det.Embedding)
			if err != nil {
				e.setLastError(err)
				e.metrics.DetectionErrors.Inc()
				e.logger.Warn("identification failed",
					logging.String("track_id", det.TrackID),
					logging.Error(err))
				continue
			}
			det.Identity = identity
		}

		decision := e.registry.Observe(tracking.Observation{
			TrackID:  det.TrackID,
			Identity: det.Identity,
			At:       frame.Timestamp,
		})
		e.applyDecision(ctx, frame, *det, decision)
	}

	e.registry.Sweep(frame.Timestamp)
	stats := e.registry.Stats()
	e.metrics.ActiveTracks.Set(float64(stats.ActiveTracks))
	e.metrics.LockedStaff.Set(float64(stats.LockedStaff))

	return primary
}

// matchDetections pairs tracker boxes with this frame's face detections.
// An unmatched track still yields a faceless detection: the tracker coasts
// through missed frames, and a persistent faceless person is exactly the
// covered-face case the unknown recorder wants to see.
func matchDetections(tracks []faceclient.Track, faces []faceclient.Face, width, height int) []vision.Detection {
	used := make([]bool, len(faces))
	detections := make([]vision.Detection, 0, len(tracks))
	for _, track := range tracks {
		best := -1
		bestIOU := 0.0
		for i, face := range faces {
			if used[i] {
				continue
			}
			if iou := track.BBox.IoU(face.BBox); iou >= trackMatchIOU && iou > bestIOU {
				best, bestIOU = i, iou
			}
		}
		det := vision.Detection{TrackID: track.ID}
		if best >= 0 {
			used[best] = true
			face := faces[best]
			det.FaceBox = face.BBox
			det.FaceConfidence = face.Confidence
			det.Embedding = face.Embedding
			det.PersonBox = vision.BodyCrop(face.BBox, width, height)
		} else {
			det.PersonBox = vision.BodyCrop(track.BBox, width, height)
		}
		detections = append(detections, det)
	}
	return detections
}

func (e *Engine) applyDecision(ctx context.Context, frame vision.Frame, det vision.Detection, decision tracking.Decision) {
	switch decision.Action {
	case tracking.ActionRecordAttendance:
		e.recordAttendance(ctx, det, decision, frame.Timestamp)
	case tracking.ActionRecordUnknown:
		e.recordUnknown(ctx, frame, det)
	}
}

func (e *Engine) recordAttendance(ctx context.Context, det vision.Detection, decision tracking.Decision, at time.Time) {
	result, err := e.attendance.Record(ctx, decision.StaffID, at, decision.Confidence)
	if err != nil {
		e.setLastError(err)
		e.metrics.StoreErrors.Inc()
		e.logger.Warn("attendance write failed",
			logging.String("staff_id", decision.StaffID),
			logging.Error(err))
		return
	}
	if result.Debounced {
		e.metrics.AttendanceDebounced.Inc()
		return
	}
	if !result.Accepted {
		return
	}

	eventType := EventCheckIn
	label := "check_in"
	if result.Checkout {
		eventType = EventCheckOut
		label = "check_out"
	}
	e.metrics.AttendanceRecorded.WithLabelValues(label).Inc()
	e.emit(Event{
		Type:        eventType,
		At:          at,
		StaffID:     decision.StaffID,
		Name:        det.Identity.Name,
		Status:      result.Status,
		LateMinutes: result.LateMinutes,
		Confidence:  decision.Confidence,
		TotalVisits: result.TotalVisits,
	})
}

func (e *Engine) recordUnknown(ctx context.Context, frame vision.Frame, det vision.Detection) {
	capture := recorder.Capture{
		TrackID:               det.TrackID,
		Frame:                 frame.Image,
		PersonBox:             det.PersonBox,
		FaceDetected:          det.HasFace(),
		FaceConfidence:        det.FaceConfidence,
		RecognitionConfidence: det.Identity.Confidence,
		Embedding:             det.Embedding,
		At:                    frame.Timestamp,
	}
	if det.HasFace() {
		faceBox := det.FaceBox
		capture.FaceBox = &faceBox
	}

	result, err := e.unknown.Record(ctx, capture)
	if err != nil {
		e.setLastError(err)
		e.metrics.StoreErrors.Inc()
		e.logger.Warn("unknown entry write failed",
			logging.String("track_id", det.TrackID),
			logging.Error(err))
		return
	}
	if result.Suppressed != "" {
		e.metrics.CapturesSuppressed.WithLabelValues(result.Suppressed).Inc()
		return
	}
	if !result.Stored {
		return
	}
	e.metrics.UnknownRecorded.WithLabelValues(string(result.EntryType)).Inc()
	e.emit(Event{
		Type:      EventUnknownEntry,
		At:        frame.Timestamp,
		EntryID:   result.EntryID,
		EntryType: string(result.EntryType),
		Reason:    result.Reason,
	})
}
