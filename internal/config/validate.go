package config

import (
	"errors"
	"fmt"
	"time"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateEngine(); err != nil {
		return err
	}
	if err := c.validateRecognition(); err != nil {
		return err
	}
	if err := c.validateTracking(); err != nil {
		return err
	}
	if err := c.validateAttendance(); err != nil {
		return err
	}
	if err := c.validateMotion(); err != nil {
		return err
	}
	if err := c.validateWeb(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateEngine() error {
	if c.Engine.Mode != ModeCheckin && c.Engine.Mode != ModeCheckout {
		return fmt.Errorf("engine.mode must be %q or %q, got %q", ModeCheckin, ModeCheckout, c.Engine.Mode)
	}
	if err := ensurePositiveMap(map[string]int{
		"engine.frame_skip":               c.Engine.FrameSkip,
		"engine.min_detection_gap_millis": c.Engine.MinDetectionGapMillis,
		"engine.frame_timeout_millis":     c.Engine.FrameTimeoutMillis,
	}); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateRecognition() error {
	for name, value := range map[string]float64{
		"recognition.staff_threshold":        c.Recognition.StaffThreshold,
		"recognition.recheck_threshold":      c.Recognition.RecheckThreshold,
		"recognition.unknown_threshold":      c.Recognition.UnknownThreshold,
		"recognition.covered_face_threshold": c.Recognition.CoveredFaceThreshold,
		"recognition.duplicate_similarity":   c.Recognition.DuplicateSimilarity,
	} {
		if value < 0 || value > 1 {
			return fmt.Errorf("%s must be between 0 and 1", name)
		}
	}
	if c.Recognition.DedupWindowSeconds <= 0 {
		return errors.New("recognition.dedup_window_seconds must be positive")
	}
	return nil
}

func (c *Config) validateTracking() error {
	if err := ensurePositiveMap(map[string]int{
		"tracking.track_timeout_seconds":     c.Tracking.TrackTimeoutSeconds,
		"tracking.leave_timeout_seconds":     c.Tracking.LeaveTimeoutSeconds,
		"tracking.unknown_recapture_seconds": c.Tracking.UnknownRecaptureSeconds,
		"tracking.consecutive_staff_frames":  c.Tracking.ConsecutiveStaffFrames,
	}); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateAttendance() error {
	expected, err := parseClock(c.Attendance.ExpectedArrival)
	if err != nil {
		return fmt.Errorf("attendance.expected_arrival: %w", err)
	}
	lateEnd, err := parseClock(c.Attendance.LateWindowEnd)
	if err != nil {
		return fmt.Errorf("attendance.late_window_end: %w", err)
	}
	if !lateEnd.After(expected) {
		return errors.New("attendance.late_window_end must be after attendance.expected_arrival")
	}
	if c.Attendance.DebounceSeconds <= 0 {
		return errors.New("attendance.debounce_seconds must be positive")
	}
	if c.Attendance.RecheckWindowMinutes <= 0 {
		return errors.New("attendance.recheck_window_minutes must be positive")
	}
	return nil
}

func (c *Config) validateMotion() error {
	if !c.Motion.Enabled {
		return nil
	}
	if err := ensurePositiveMap(map[string]int{
		"motion.interval_millis":           c.Motion.IntervalMillis,
		"motion.recapture_interval_millis": c.Motion.RecaptureIntervalMillis,
		"motion.diff_threshold":            c.Motion.DiffThreshold,
		"motion.min_width":                 c.Motion.MinWidth,
		"motion.min_height":                c.Motion.MinHeight,
	}); err != nil {
		return err
	}
	if c.Motion.MinAreaFraction <= 0 || c.Motion.MinAreaFraction >= 1 {
		return errors.New("motion.min_area_fraction must be in (0, 1)")
	}
	if c.Motion.MaxAreaFraction <= c.Motion.MinAreaFraction || c.Motion.MaxAreaFraction > 1 {
		return errors.New("motion.max_area_fraction must be in (min_area_fraction, 1]")
	}
	if c.Motion.OverlapIOU < 0 || c.Motion.OverlapIOU > 1 {
		return errors.New("motion.overlap_iou must be between 0 and 1")
	}
	if c.Motion.BackgroundLearningRate <= 0 || c.Motion.BackgroundLearningRate > 1 {
		return errors.New("motion.background_learning_rate must be in (0, 1]")
	}
	return nil
}

func (c *Config) validateWeb() error {
	if c.Web.Bind == "" {
		return errors.New("web.bind must be set")
	}
	return nil
}

func parseClock(value string) (time.Time, error) {
	t, err := time.Parse("15:04", value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid clock time %q (expected HH:MM)", value)
	}
	return t, nil
}

func ensurePositiveMap(values map[string]int) error {
	for name, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	return nil
}
