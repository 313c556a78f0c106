// Package recorder turns capture decisions into persisted business records.
// The attendance recorder writes staff check-ins and check-outs with lateness
// and hours; the unknown recorder classifies unidentified sightings, crops a
// body region, and writes deduplicated unknown entries.
package recorder

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"turnstile/internal/config"
	"turnstile/internal/logging"
	"turnstile/internal/schedule"
	"turnstile/internal/store"
)

// AttendanceResult reports what one capture did to the attendance records.
type AttendanceResult struct {
	Accepted    bool
	Debounced   bool
	Checkout    bool
	Status      string
	LateMinutes int
	// Overwrote is set when an existing day row was updated in place.
	Overwrote   bool
	TotalVisits int
}

// Attendance records staff check-ins and check-outs through the store. Calls
// for the same staff id inside the debounce window are dropped so duplicate
// frames that slip past the track registry cannot double-write.
type Attendance struct {
	logger   *slog.Logger
	store    *store.Store
	rules    schedule.Rules
	debounce time.Duration
	checkout bool

	mu           sync.Mutex
	lastAccepted map[string]time.Time
}

// NewAttendance builds the recorder for the mode the process runs in.
func NewAttendance(cfg *config.Config, st *store.Store, logger *slog.Logger) (*Attendance, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	rules, err := schedule.ParseRules(cfg.Attendance.ExpectedArrival, cfg.Attendance.LateWindowEnd)
	if err != nil {
		return nil, err
	}
	return &Attendance{
		logger:       logging.NewComponentLogger(logger, "attendance"),
		store:        st,
		rules:        rules,
		debounce:     time.Duration(cfg.Attendance.DebounceSeconds) * time.Second,
		checkout:     cfg.CheckoutMode(),
		lastAccepted: make(map[string]time.Time),
	}, nil
}

// Record routes a confirmed staff capture to check-in or check-out depending
// on the process mode.
func (a *Attendance) Record(ctx context.Context, staffID string, at time.Time, confidence float64) (AttendanceResult, error) {
	if a.checkout {
		return a.RecordCheckOut(ctx, staffID, at, confidence)
	}
	return a.RecordCheckIn(ctx, staffID, at, confidence)
}

// RecordCheckIn evaluates lateness and writes the day row plus one check-in
// event. A repeat call for the same staff id on the same day overwrites the
// day row's check-in time and status, supporting corrections.
func (a *Attendance) RecordCheckIn(ctx context.Context, staffID string, at time.Time, confidence float64) (AttendanceResult, error) {
	if a.debounced(staffID, at) {
		return AttendanceResult{Debounced: true}, nil
	}

	status, lateMinutes := a.rules.Evaluate(at)
	res, err := a.store.RecordCheckIn(ctx, store.CheckIn{
		StaffID:     staffID,
		Date:        schedule.DateString(at),
		Time:        schedule.TimeString(at),
		Status:      status,
		LateMinutes: lateMinutes,
		Confidence:  confidence,
	})
	if err != nil {
		a.logger.Warn("check-in write failed",
			logging.String("staff_id", staffID),
			logging.Error(err))
		return AttendanceResult{}, err
	}
	a.accept(staffID, at)

	a.logger.Info("check-in recorded",
		logging.String("staff_id", staffID),
		logging.String("status", status),
		logging.Int("late_minutes", lateMinutes),
		logging.Float64("confidence", confidence),
		logging.Int("visits", res.TotalVisits))
	return AttendanceResult{
		Accepted:    true,
		Status:      status,
		LateMinutes: lateMinutes,
		Overwrote:   res.AlreadyRecorded,
		TotalVisits: res.TotalVisits,
	}, nil
}

// RecordCheckOut stamps the check-out time and derived hours on the day row,
// inserting a minimal row when the person never checked in.
func (a *Attendance) RecordCheckOut(ctx context.Context, staffID string, at time.Time, confidence float64) (AttendanceResult, error) {
	if a.debounced(staffID, at) {
		return AttendanceResult{Debounced: true, Checkout: true}, nil
	}

	res, err := a.store.RecordCheckOut(ctx, staffID, schedule.DateString(at), schedule.TimeString(at), confidence)
	if err != nil {
		a.logger.Warn("check-out write failed",
			logging.String("staff_id", staffID),
			logging.Error(err))
		return AttendanceResult{Checkout: true}, err
	}
	a.accept(staffID, at)

	a.logger.Info("check-out recorded",
		logging.String("staff_id", staffID),
		logging.Float64("confidence", confidence),
		logging.Int("visits", res.TotalVisits))
	return AttendanceResult{
		Accepted:    true,
		Checkout:    true,
		Status:      schedule.StatusPresent,
		Overwrote:   res.AlreadyRecorded,
		TotalVisits: res.TotalVisits,
	}, nil
}

// Rules exposes the parsed lateness rules for status surfaces.
func (a *Attendance) Rules() schedule.Rules { return a.rules }

// ResetDebounce clears the per-staff debounce window. The midnight rollover
// calls it so yesterday's last capture cannot mute the first of a new day.
func (a *Attendance) ResetDebounce() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastAccepted = make(map[string]time.Time)
}

func (a *Attendance) debounced(staffID string, at time.Time) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	last, ok := a.lastAccepted[staffID]
	if ok && at.Sub(last) < a.debounce {
		a.logger.Debug("capture debounced",
			logging.String("staff_id", staffID),
			logging.Duration("since_last", at.Sub(last)))
		return true
	}
	return false
}

func (a *Attendance) accept(staffID string, at time.Time) {
	a.mu.Lock()
	a.lastAccepted[staffID] = at
	a.mu.Unlock()
}
