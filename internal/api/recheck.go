package api

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"turnstile/internal/config"
	"turnstile/internal/faceclient"
	"turnstile/internal/logging"
	"turnstile/internal/schedule"
	"turnstile/internal/services"
	"turnstile/internal/store"
)

// Recognizer re-identifies a stored capture against the staff gallery.
type Recognizer interface {
	IdentifyImage(ctx context.Context, jpegImage []byte) (faceclient.ImageIdentity, error)
}

// RecheckStaffRequest names the collaborators the re-check operation needs.
type RecheckStaffRequest struct {
	Config  *config.Config
	Store   *store.Store
	Faces   Recognizer
	Logger  *slog.Logger
	EntryID int64
}

// RecheckStaff re-identifies an unknown entry's stored image against the
// staff gallery. On a match at or above the re-check threshold it backfills
// the check-in or check-out the engine missed, unless one already exists
// near the entry's detection time, and marks the entry processed. A miss
// leaves the entry unprocessed so an operator can review it.
func RecheckStaff(ctx context.Context, req RecheckStaffRequest) (RecheckResult, error) {
	cfg := req.Config
	if cfg == nil {
		return RecheckResult{}, fmt.Errorf("configuration is required")
	}
	if req.Store == nil {
		return RecheckResult{}, fmt.Errorf("store is required")
	}
	if req.Faces == nil {
		return RecheckResult{}, fmt.Errorf("face client is required")
	}
	logger := req.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	entry, err := req.Store.UnknownEntryByID(ctx, req.EntryID)
	if err != nil {
		return RecheckResult{}, err
	}
	if entry == nil {
		return RecheckResult{}, services.Wrap(services.ErrNotFound, "api", "recheck staff",
			fmt.Sprintf("unknown entry %d not found", req.EntryID), nil)
	}

	mode := entry.Mode
	if mode == "" {
		mode = cfg.Engine.Mode
	}
	result := RecheckResult{SystemMode: mode}
	if len(entry.Image) == 0 {
		return result, services.Wrap(services.ErrValidation, "api", "recheck staff",
			fmt.Sprintf("unknown entry %d has no stored image", req.EntryID), nil)
	}

	identity, err := req.Faces.IdentifyImage(ctx, entry.Image)
	if err != nil {
		return result, err
	}
	result.RecognitionConfidence = identity.Identity.Confidence

	threshold := cfg.Recognition.RecheckThreshold
	if !identity.FaceDetected || !identity.Identity.IsStaff() || identity.Identity.Confidence < threshold {
		result.Message = fmt.Sprintf("no staff match at or above %.2f", threshold)
		logger.Info("unknown entry re-check found no staff match",
			logging.Int64("entry_id", req.EntryID),
			logging.Float64("confidence", identity.Identity.Confidence))
		return result, nil
	}

	result.Success = true
	result.StaffID = identity.Identity.StaffID
	result.StaffName = identity.Identity.Name

	at := entry.DetectionTime
	if at.IsZero() {
		at = parseEntryTime(entry.Date, entry.Time)
	}
	window := time.Duration(cfg.Attendance.RecheckWindowMinutes) * time.Minute
	exists, err := req.Store.LastCheckinWithin(ctx, result.StaffID, entry.Date, at, window)
	if err != nil {
		return result, err
	}

	switch {
	case exists:
		result.AlreadyCaptured = true
	case mode == config.ModeCheckout:
		if _, err := req.Store.RecordCheckOut(ctx, result.StaffID, entry.Date, entry.Time, result.RecognitionConfidence); err != nil {
			return result, err
		}
		result.CheckInCreated = true
		result.LastCheckTime = entry.Time
	default:
		rules, err := schedule.ParseRules(cfg.Attendance.ExpectedArrival, cfg.Attendance.LateWindowEnd)
		if err != nil {
			return result, err
		}
		status, lateMinutes := rules.Evaluate(at)
		if _, err := req.Store.RecordCheckIn(ctx, store.CheckIn{
			StaffID:     result.StaffID,
			Date:        entry.Date,
			Time:        entry.Time,
			Status:      status,
			LateMinutes: lateMinutes,
			Confidence:  result.RecognitionConfidence,
		}); err != nil {
			return result, err
		}
		result.CheckInCreated = true
		result.LastCheckTime = entry.Time
	}

	if err := req.Store.MarkUnknownProcessed(ctx, req.EntryID); err != nil {
		return result, err
	}
	logger.Info("unknown entry re-checked as staff",
		logging.Int64("entry_id", req.EntryID),
		logging.String("staff_id", result.StaffID),
		logging.Bool("check_created", result.CheckInCreated))
	return result, nil
}

func parseEntryTime(date, clock string) time.Time {
	t, err := time.ParseInLocation(schedule.DateLayout+" "+schedule.TimeLayout, date+" "+clock, time.Local)
	if err != nil {
		return time.Time{}
	}
	return t
}
