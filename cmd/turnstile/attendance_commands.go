package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"turnstile/internal/api"
	"turnstile/internal/report"
	"turnstile/internal/schedule"
)

func newAttendanceCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "attendance",
		Short: "Attendance views and exports",
	}
	cmd.AddCommand(newAttendanceTodayCommand(ctx))
	cmd.AddCommand(newAttendanceRangeCommand(ctx))
	cmd.AddCommand(newAttendanceExportCommand(ctx))
	return cmd
}

func newAttendanceTodayCommand(cctx *commandContext) *cobra.Command {
	var date string
	var showEvents bool
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "today",
		Short: "Show attendance for one day",
		RunE: func(cmd *cobra.Command, args []string) error {
			day, err := parseDateFlag(date, schedule.DateString(time.Now()))
			if err != nil {
				return err
			}

			days, events, err := loadDayAttendance(cmd.Context(), cctx, day)
			if err != nil {
				return err
			}

			if asJSON {
				return writeJSON(cmd, api.AttendanceDayResponse{Date: day, Days: days, Checkins: events})
			}

			stdout := cmd.OutOrStdout()
			if len(days) == 0 {
				fmt.Fprintf(stdout, "No attendance records for %s\n", day)
				return nil
			}

			fmt.Fprintf(stdout, "Attendance for %s\n", day)
			rows := make([][]string, 0, len(days))
			for _, d := range days {
				rows = append(rows, []string{
					d.StaffID,
					d.StaffName,
					d.CheckInTime,
					d.CheckOutTime,
					fmt.Sprintf("%.2f", d.HoursWorked),
					d.Status,
				})
			}
			fmt.Fprintln(stdout, renderTable(
				[]string{"Staff", "Name", "In", "Out", "Hours", "Status"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
			))

			if showEvents {
				if len(events) == 0 {
					fmt.Fprintln(stdout, "No capture events recorded")
					return nil
				}
				fmt.Fprintln(stdout, "Capture events")
				eventRows := make([][]string, 0, len(events))
				for _, e := range events {
					eventRows = append(eventRows, []string{
						e.CheckTime,
						e.StaffID,
						e.Status,
						fmt.Sprintf("%d", e.LateMinutes),
						fmt.Sprintf("%.2f", e.Confidence),
					})
				}
				fmt.Fprintln(stdout, renderTable(
					[]string{"Time", "Staff", "Status", "Late min", "Confidence"},
					eventRows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight},
				))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "Day to show (YYYY-MM-DD, default today)")
	cmd.Flags().BoolVar(&showEvents, "events", false, "Include the raw capture audit trail")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of tables")
	return cmd
}

func newAttendanceRangeCommand(cctx *commandContext) *cobra.Command {
	var start, end string
	var summary bool
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "range",
		Short: "Show attendance across a date range",
		RunE: func(cmd *cobra.Command, args []string) error {
			from, to, err := resolveRange(start, end)
			if err != nil {
				return err
			}

			st, err := cctx.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			days, err := st.AttendanceRange(cmd.Context(), from, to)
			if err != nil {
				return err
			}

			if asJSON {
				return writeJSON(cmd, api.AttendanceRangeResponse{
					Start: from,
					End:   to,
					Days:  api.FromAttendanceDays(days),
				})
			}

			stdout := cmd.OutOrStdout()
			if len(days) == 0 {
				fmt.Fprintf(stdout, "No attendance records between %s and %s\n", from, to)
				return nil
			}

			if summary {
				fmt.Fprintf(stdout, "Attendance summary %s to %s\n", from, to)
				rows := make([][]string, 0)
				for _, sum := range report.Summarize(days) {
					rows = append(rows, []string{
						sum.StaffID,
						sum.Name,
						fmt.Sprintf("%d", sum.DaysPresent),
						fmt.Sprintf("%d", sum.DaysLate),
						fmt.Sprintf("%.2f", sum.HoursWorked),
					})
				}
				fmt.Fprintln(stdout, renderTable(
					[]string{"Staff", "Name", "Present", "Late", "Hours"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight},
				))
				return nil
			}

			fmt.Fprintf(stdout, "Attendance %s to %s\n", from, to)
			rows := make([][]string, 0, len(days))
			for _, d := range days {
				rows = append(rows, []string{
					d.Date,
					d.StaffID,
					d.StaffName,
					d.CheckInTime,
					d.CheckOutTime,
					fmt.Sprintf("%.2f", d.HoursWorked),
					d.Status,
				})
			}
			fmt.Fprintln(stdout, renderTable(
				[]string{"Date", "Staff", "Name", "In", "Out", "Hours", "Status"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().StringVar(&start, "start", "", "First day of the range (YYYY-MM-DD, default today)")
	cmd.Flags().StringVar(&end, "end", "", "Last day of the range (YYYY-MM-DD, default --start)")
	cmd.Flags().BoolVar(&summary, "summary", false, "Fold the range into per-staff totals")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of a table")
	return cmd
}

func newAttendanceExportCommand(cctx *commandContext) *cobra.Command {
	var start, end, output string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export attendance to CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			from, to, err := resolveRange(start, end)
			if err != nil {
				return err
			}

			st, err := cctx.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			days, err := st.AttendanceRange(cmd.Context(), from, to)
			if err != nil {
				return err
			}
			members, err := st.AllStaff(cmd.Context(), true)
			if err != nil {
				return err
			}

			document, err := report.AttendanceCSV(days, report.NewDirectory(members))
			if err != nil {
				return err
			}

			target := strings.TrimSpace(output)
			if target == "" {
				target = report.Filename(from, to)
			}
			if err := os.WriteFile(target, document, 0o644); err != nil {
				return fmt.Errorf("write export %q: %w", target, err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d attendance rows to %s\n", len(days), target)
			return nil
		},
	}

	cmd.Flags().StringVar(&start, "start", "", "First day of the range (YYYY-MM-DD, default today)")
	cmd.Flags().StringVar(&end, "end", "", "Last day of the range (YYYY-MM-DD, default --start)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Destination file (default attendance_<start>_<end>.csv)")
	return cmd
}

// loadDayAttendance prefers the daemon so results reflect in-flight capture
// state, and falls back to a direct database read when it is not running.
func loadDayAttendance(ctx context.Context, cctx *commandContext, date string) ([]api.AttendanceDay, []api.CheckinEvent, error) {
	if client := cctx.dialOptional(); client != nil {
		defer client.Close()
		resp, err := client.AttendanceToday(date)
		if err != nil {
			return nil, nil, err
		}
		if resp == nil {
			return nil, nil, errors.New("attendance response missing")
		}
		return resp.Days, resp.Events, nil
	}

	st, err := cctx.openStore()
	if err != nil {
		return nil, nil, err
	}
	defer st.Close()

	days, events, err := st.AttendanceForDate(ctx, date)
	if err != nil {
		return nil, nil, err
	}
	return api.FromAttendanceDays(days), api.FromCheckinEvents(events), nil
}

func parseDateFlag(value, fallback string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback, nil
	}
	if _, err := time.Parse(schedule.DateLayout, value); err != nil {
		return "", fmt.Errorf("invalid date %q, want YYYY-MM-DD", value)
	}
	return value, nil
}

func resolveRange(start, end string) (string, string, error) {
	today := schedule.DateString(time.Now())
	from, err := parseDateFlag(start, today)
	if err != nil {
		return "", "", err
	}
	to, err := parseDateFlag(end, from)
	if err != nil {
		return "", "", err
	}
	if to < from {
		return "", "", fmt.Errorf("range end %s is before start %s", to, from)
	}
	return from, to, nil
}
