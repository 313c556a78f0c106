package web

import (
	"fmt"
	"net/http"
	"time"

	"turnstile/internal/api"
	"turnstile/internal/report"
	"turnstile/internal/schedule"
	"turnstile/internal/services"
)

type attendanceDayResponse struct {
	Success bool `json:"success"`
	api.AttendanceDayResponse
}

type attendanceRangeResponse struct {
	Success bool `json:"success"`
	api.AttendanceRangeResponse
}

type dayStatsResponse struct {
	Success bool         `json:"success"`
	Stats   api.DayStats `json:"stats"`
}

func (s *Server) handleAttendanceToday(w http.ResponseWriter, r *http.Request) {
	date, err := dateParam(r, "date")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	days, checkins, err := s.store.AttendanceForDate(r.Context(), date)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, attendanceDayResponse{
		Success: true,
		AttendanceDayResponse: api.AttendanceDayResponse{
			Date:     date,
			Days:     api.FromAttendanceDays(days),
			Checkins: api.FromCheckinEvents(checkins),
		},
	})
}

func (s *Server) handleAttendanceRange(w http.ResponseWriter, r *http.Request) {
	start, end, err := rangeParams(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	days, err := s.store.AttendanceRange(r.Context(), start, end)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, attendanceRangeResponse{
		Success: true,
		AttendanceRangeResponse: api.AttendanceRangeResponse{
			Start: start,
			End:   end,
			Days:  api.FromAttendanceDays(days),
		},
	})
}

func (s *Server) handleAttendanceExport(w http.ResponseWriter, r *http.Request) {
	start, end, err := rangeParams(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ctx := r.Context()
	days, err := s.store.AttendanceRange(ctx, start, end)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	// Inactive staff stay in the join so historic rows keep their
	// department and employee id.
	members, err := s.store.AllStaff(ctx, true)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	data, err := report.AttendanceCSV(days, report.NewDirectory(members))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%s", report.Filename(start, end)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handleStatsToday(w http.ResponseWriter, r *http.Request) {
	date, err := dateParam(r, "date")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	stats, err := s.store.StatsForDate(r.Context(), date)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dayStatsResponse{Success: true, Stats: api.FromDayStats(stats)})
}

// dateParam validates an optional date query parameter, defaulting to the
// current day in the store's date layout.
func dateParam(r *http.Request, name string) (string, error) {
	value := r.URL.Query().Get(name)
	if value == "" {
		return time.Now().Format(schedule.DateLayout), nil
	}
	if _, err := time.Parse(schedule.DateLayout, value); err != nil {
		return "", services.Wrap(services.ErrValidation, "web", "parse date",
			fmt.Sprintf("invalid %s %q, want YYYY-MM-DD", name, value), nil)
	}
	return value, nil
}

// rangeParams reads start/end, defaulting start to today and end to start.
// ISO dates compare correctly as strings.
func rangeParams(r *http.Request) (string, string, error) {
	start, err := dateParam(r, "start")
	if err != nil {
		return "", "", err
	}
	end := r.URL.Query().Get("end")
	if end == "" {
		return start, start, nil
	}
	if _, err := time.Parse(schedule.DateLayout, end); err != nil {
		return "", "", services.Wrap(services.ErrValidation, "web", "parse date",
			fmt.Sprintf("invalid end %q, want YYYY-MM-DD", end), nil)
	}
	if end < start {
		return "", "", services.Wrap(services.ErrValidation, "web", "parse date range",
			fmt.Sprintf("end %s precedes start %s", end, start), nil)
	}
	return start, end, nil
}
