package report

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"turnstile/internal/store"
)

// csvHeader matches the column layout admins expect from exported sheets.
var csvHeader = []string{"Employee ID", "Name", "Department", "Date", "Check In", "Check Out", "Status", "Confidence"}

// Row is one exported attendance line joined with the staff directory.
type Row struct {
	EmployeeID string
	Name       string
	Department string
	Date       string
	CheckIn    string
	CheckOut   string
	Status     string
	Confidence float64
}

// Directory resolves staff metadata for export rows, keyed by staff id.
type Directory map[string]*store.StaffMember

// NewDirectory indexes staff members by id.
func NewDirectory(members []*store.StaffMember) Directory {
	dir := make(Directory, len(members))
	for _, m := range members {
		if m == nil || m.StaffID == "" {
			continue
		}
		dir[m.StaffID] = m
	}
	return dir
}

// BuildRows joins day records with the staff directory and orders them by
// collated name, then date. Records for staff missing from the directory keep
// the name stored on the attendance row.
func BuildRows(days []store.AttendanceDay, staff Directory) []Row {
	rows := make([]Row, 0, len(days))
	for _, day := range days {
		row := Row{
			EmployeeID: fallbackEmployeeID(day.StaffID),
			Name:       day.StaffName,
			Date:       day.Date,
			CheckIn:    day.CheckInTime,
			CheckOut:   day.CheckOutTime,
			Status:     day.Status,
			Confidence: day.RecognitionConfidence,
		}
		if member, ok := staff[day.StaffID]; ok {
			if member.EmployeeID != "" {
				row.EmployeeID = member.EmployeeID
			}
			if member.Name != "" {
				row.Name = member.Name
			}
			row.Department = member.Department
		}
		if row.Name == "" {
			row.Name = "Unknown"
		}
		rows = append(rows, row)
	}
	sortRows(rows)
	return rows
}

// WriteCSV renders rows with a header line. Confidence is fixed to two
// decimals so spreadsheets do not inherit float noise.
func WriteCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, row := range rows {
		record := []string{
			row.EmployeeID,
			row.Name,
			row.Department,
			row.Date,
			row.CheckIn,
			row.CheckOut,
			row.Status,
			fmt.Sprintf("%.2f", row.Confidence),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// AttendanceCSV builds the full export document in one call.
func AttendanceCSV(days []store.AttendanceDay, staff Directory) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, BuildRows(days, staff)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Filename names an export after the range it covers.
func Filename(start, end string) string {
	if end == "" {
		end = start
	}
	return fmt.Sprintf("attendance_%s_%s.csv", start, end)
}

// Summary aggregates one staff member's presence across a range of days.
type Summary struct {
	StaffID     string
	Name        string
	DaysPresent int
	DaysLate    int
	HoursWorked float64
}

// Summarize folds day records into per-staff totals in collated name order.
// A day counts as present when a check-in time was recorded.
func Summarize(days []store.AttendanceDay) []Summary {
	byStaff := make(map[string]*Summary)
	order := make([]string, 0)
	for _, day := range days {
		sum, ok := byStaff[day.StaffID]
		if !ok {
			sum = &Summary{StaffID: day.StaffID, Name: day.StaffName}
			byStaff[day.StaffID] = sum
			order = append(order, day.StaffID)
		}
		if sum.Name == "" {
			sum.Name = day.StaffName
		}
		if day.CheckInTime != "" {
			sum.DaysPresent++
		}
		if strings.EqualFold(day.Status, "late") {
			sum.DaysLate++
		}
		sum.HoursWorked += day.HoursWorked
	}

	summaries := make([]Summary, 0, len(order))
	for _, id := range order {
		summaries = append(summaries, *byStaff[id])
	}
	collator := newNameCollator()
	sort.SliceStable(summaries, func(i, j int) bool {
		if cmp := collator.CompareString(summaries[i].Name, summaries[j].Name); cmp != 0 {
			return cmp < 0
		}
		return summaries[i].StaffID < summaries[j].StaffID
	})
	return summaries
}

func sortRows(rows []Row) {
	collator := newNameCollator()
	sort.SliceStable(rows, func(i, j int) bool {
		if cmp := collator.CompareString(rows[i].Name, rows[j].Name); cmp != 0 {
			return cmp < 0
		}
		return rows[i].Date < rows[j].Date
	})
}

// newNameCollator builds a fresh collator per sort; collators carry internal
// buffers and must not be shared across goroutines.
func newNameCollator() *collate.Collator {
	return collate.New(language.English, collate.Loose)
}

// fallbackEmployeeID derives a display id when the directory has none. Staff
// ids minted by enrollment look like "STAFF_1007"; the prefix is dropped.
func fallbackEmployeeID(staffID string) string {
	if rest, ok := strings.CutPrefix(staffID, "STAFF_"); ok && rest != "" {
		return rest
	}
	return staffID
}
