// Package schedule implements the workday attendance rules and a small
// task runner used by the daemon for recurring maintenance jobs.
package schedule

import (
	"fmt"
	"strings"
	"time"

	"turnstile/internal/services"
)

// Canonical layouts for dates and clock times in stored attendance records.
const (
	DateLayout  = "2006-01-02"
	TimeLayout  = "15:04:05"
	clockLayout = "15:04"
)

// Attendance statuses assigned on check-in.
const (
	StatusOnTime  = "On Time"
	StatusLate    = "Late"
	StatusPresent = "Present"
)

// DateString formats the date portion of t in the canonical layout.
func DateString(t time.Time) string { return t.Format(DateLayout) }

// TimeString formats the clock portion of t in the canonical layout.
func TimeString(t time.Time) string { return t.Format(TimeLayout) }

// Rules describes the expected-arrival window for a workday. Both fields are
// wall-clock offsets from midnight.
type Rules struct {
	ExpectedArrival time.Duration
	LateWindowEnd   time.Duration
}

// ParseRules builds Rules from "HH:MM" clock strings.
func ParseRules(expectedArrival, lateWindowEnd string) (Rules, error) {
	expected, err := parseClock(expectedArrival)
	if err != nil {
		return Rules{}, err
	}
	lateEnd, err := parseClock(lateWindowEnd)
	if err != nil {
		return Rules{}, err
	}
	if lateEnd <= expected {
		return Rules{}, services.Wrap(services.ErrConfiguration, "schedule", "parse rules",
			fmt.Sprintf("late window end %s must come after expected arrival %s", lateWindowEnd, expectedArrival), nil)
	}
	return Rules{ExpectedArrival: expected, LateWindowEnd: lateEnd}, nil
}

// Evaluate classifies a check-in time. Arrivals at or before the expected
// time are On Time. Arrivals inside the grace window are Late with the whole
// minutes past the expected time. Later arrivals are Present with zero late
// minutes; the window never flags them, matching the recorded business rule.
func (r Rules) Evaluate(t time.Time) (status string, lateMinutes int) {
	clock := clockOffset(t)
	switch {
	case clock <= r.ExpectedArrival:
		return StatusOnTime, 0
	case clock <= r.LateWindowEnd:
		return StatusLate, int((clock - r.ExpectedArrival) / time.Minute)
	default:
		return StatusPresent, 0
	}
}

func clockOffset(t time.Time) time.Duration {
	return time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second
}

func parseClock(value string) (time.Duration, error) {
	parsed, err := time.Parse(clockLayout, strings.TrimSpace(value))
	if err != nil {
		return 0, services.Wrap(services.ErrConfiguration, "schedule", "parse clock",
			fmt.Sprintf("invalid clock time %q, expected HH:MM", value), err)
	}
	return time.Duration(parsed.Hour())*time.Hour + time.Duration(parsed.Minute())*time.Minute, nil
}
