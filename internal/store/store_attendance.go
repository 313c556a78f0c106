package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"turnstile/internal/schedule"
	"turnstile/internal/services"
)

const attendanceColumns = "a.id, a.staff_id, s.name, a.date, a.check_in_time, a.check_out_time, a.hours_worked, a.status, a.recognition_confidence"

// RecordCheckIn writes an accepted check-in capture. The daily summary row
// is inserted on first sight and overwritten on re-check-in; one audit event
// is appended either way.
func (s *Store) RecordCheckIn(ctx context.Context, rec CheckIn) (AttendanceResult, error) {
	if rec.StaffID == "" {
		return AttendanceResult{}, services.Wrap(services.ErrValidation, "store", "record check-in", "staff id is required", nil)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var result AttendanceResult
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var existingID int64
		row := tx.QueryRowContext(ctx,
			`SELECT id FROM staff_attendance WHERE staff_id = ? AND date = ?`,
			rec.StaffID, rec.Date)
		switch err := row.Scan(&existingID); {
		case err == nil:
			result.AlreadyRecorded = true
			if _, err := tx.ExecContext(ctx,
				`UPDATE staff_attendance
                 SET check_in_time = ?, status = ?, recognition_confidence = ?
                 WHERE id = ?`,
				rec.Time, rec.Status, rec.Confidence, existingID); err != nil {
				return fmt.Errorf("update attendance: %w", err)
			}
		case errors.Is(err, sql.ErrNoRows):
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO staff_attendance (staff_id, date, check_in_time, status, recognition_confidence)
                 VALUES (?, ?, ?, ?, ?)`,
				rec.StaffID, rec.Date, rec.Time, rec.Status, rec.Confidence); err != nil {
				return fmt.Errorf("insert attendance: %w", err)
			}
		default:
			return fmt.Errorf("query attendance: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO staff_checkins (staff_id, date, check_time, status, late_minutes, recognition_confidence)
             VALUES (?, ?, ?, ?, ?, ?)`,
			rec.StaffID, rec.Date, rec.Time, rec.Status, rec.LateMinutes, rec.Confidence); err != nil {
			return fmt.Errorf("insert check-in event: %w", err)
		}

		row = tx.QueryRowContext(ctx,
			`SELECT COUNT(1) FROM staff_attendance WHERE staff_id = ?`, rec.StaffID)
		if err := row.Scan(&result.TotalVisits); err != nil {
			return fmt.Errorf("count visits: %w", err)
		}
		return nil
	})
	if err != nil {
		return AttendanceResult{}, err
	}
	return result, nil
}

// RecordCheckOut stamps the check-out time and derived hours on today's
// summary row. When no row exists yet a minimal Present row is inserted so
// the departure is never lost.
func (s *Store) RecordCheckOut(ctx context.Context, staffID, date, timeStr string, confidence float64) (AttendanceResult, error) {
	if staffID == "" {
		return AttendanceResult{}, services.Wrap(services.ErrValidation, "store", "record check-out", "staff id is required", nil)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var result AttendanceResult
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		// Hours worked are derived in SQL so the update stays atomic; the
		// MAX keeps a check-out stamped before the check-in from going
		// negative.
		res, err := tx.ExecContext(ctx,
			`UPDATE staff_attendance
             SET check_out_time = ?,
                 recognition_confidence = ?,
                 hours_worked = CASE
                     WHEN check_in_time IS NOT NULL THEN
                         MAX(0, (julianday(date || ' ' || ?) - julianday(date || ' ' || check_in_time)) * 24)
                     ELSE 0
                 END
             WHERE staff_id = ? AND date = ?`,
			timeStr, confidence, timeStr, staffID, date)
		if err != nil {
			return fmt.Errorf("update check-out: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if affected > 0 {
			result.AlreadyRecorded = true
		} else {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO staff_attendance (staff_id, date, check_out_time, status, recognition_confidence)
                 VALUES (?, ?, ?, ?, ?)`,
				staffID, date, timeStr, schedule.StatusPresent, confidence); err != nil {
				return fmt.Errorf("insert check-out row: %w", err)
			}
		}

		row := tx.QueryRowContext(ctx,
			`SELECT COUNT(1) FROM staff_attendance WHERE staff_id = ?`, staffID)
		if err := row.Scan(&result.TotalVisits); err != nil {
			return fmt.Errorf("count visits: %w", err)
		}
		return nil
	})
	if err != nil {
		return AttendanceResult{}, err
	}
	return result, nil
}

// LastCheckinWithin reports whether the staff member has an accepted
// check-in event on the given date within the window around t.
func (s *Store) LastCheckinWithin(ctx context.Context, staffID, date string, t time.Time, window time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT check_time FROM staff_checkins WHERE staff_id = ? AND date = ?`,
		staffID, date)
	if err != nil {
		return false, fmt.Errorf("query check-in events: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var checkTime string
		if err := rows.Scan(&checkTime); err != nil {
			return false, err
		}
		recorded, err := time.ParseInLocation(schedule.DateLayout+" "+schedule.TimeLayout, date+" "+checkTime, t.Location())
		if err != nil {
			continue
		}
		diff := t.Sub(recorded)
		if diff < 0 {
			diff = -diff
		}
		if diff <= window {
			return true, rows.Err()
		}
	}
	return false, rows.Err()
}

// AttendanceForDate returns the daily summary rows and every check-in event
// for one date.
func (s *Store) AttendanceForDate(ctx context.Context, date string) ([]AttendanceDay, []CheckinEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx = ensureContext(ctx)

	days, err := s.queryAttendance(ctx,
		`SELECT `+attendanceColumns+`
         FROM staff_attendance a JOIN staff s ON s.staff_id = a.staff_id
         WHERE a.date = ? ORDER BY a.check_in_time`, date)
	if err != nil {
		return nil, nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, staff_id, date, check_time, status, late_minutes, recognition_confidence
         FROM staff_checkins WHERE date = ? ORDER BY check_time DESC`, date)
	if err != nil {
		return nil, nil, fmt.Errorf("query check-in events: %w", err)
	}
	defer rows.Close()

	var events []CheckinEvent
	for rows.Next() {
		var (
			ev         CheckinEvent
			status     sql.NullString
			late       sql.NullInt64
			confidence sql.NullFloat64
		)
		if err := rows.Scan(&ev.ID, &ev.StaffID, &ev.Date, &ev.CheckTime, &status, &late, &confidence); err != nil {
			return nil, nil, err
		}
		ev.Status = status.String
		ev.LateMinutes = int(late.Int64)
		ev.RecognitionConfidence = confidence.Float64
		events = append(events, ev)
	}
	return days, events, rows.Err()
}

// AttendanceRange returns summary rows for dates in [start, end], ordered by
// date then check-in time.
func (s *Store) AttendanceRange(ctx context.Context, start, end string) ([]AttendanceDay, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.queryAttendance(ensureContext(ctx),
		`SELECT `+attendanceColumns+`
         FROM staff_attendance a JOIN staff s ON s.staff_id = a.staff_id
         WHERE a.date >= ? AND a.date <= ?
         ORDER BY a.date, a.check_in_time`, start, end)
}

func (s *Store) queryAttendance(ctx context.Context, query string, args ...any) ([]AttendanceDay, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query attendance: %w", err)
	}
	defer rows.Close()

	var days []AttendanceDay
	for rows.Next() {
		var (
			day        AttendanceDay
			checkIn    sql.NullString
			checkOut   sql.NullString
			hours      sql.NullFloat64
			status     sql.NullString
			confidence sql.NullFloat64
		)
		if err := rows.Scan(&day.ID, &day.StaffID, &day.StaffName, &day.Date, &checkIn, &checkOut, &hours, &status, &confidence); err != nil {
			return nil, err
		}
		day.CheckInTime = checkIn.String
		day.CheckOutTime = checkOut.String
		day.HoursWorked = hours.Float64
		day.Status = status.String
		day.RecognitionConfidence = confidence.Float64
		days = append(days, day)
	}
	return days, rows.Err()
}
