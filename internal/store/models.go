package store

import (
	"strings"
	"time"

	"turnstile/internal/vision"
)

// EntryType classifies why a person was captured as unknown.
type EntryType string

const (
	EntryNoFace        EntryType = "no_face"
	EntryUnknownPerson EntryType = "unknown_person"
	EntryCoveredFace   EntryType = "covered_face"
)

var entryTypeSet = map[EntryType]struct{}{
	EntryNoFace:        {},
	EntryUnknownPerson: {},
	EntryCoveredFace:   {},
}

// ParseEntryType converts a string into a known EntryType.
func ParseEntryType(value string) (EntryType, bool) {
	normalized := EntryType(strings.ToLower(strings.TrimSpace(value)))
	_, ok := entryTypeSet[normalized]
	return normalized, ok
}

// StaffMember is an enrolled staff row. Embedding carries the decoded face
// vector when the caller requested one; Photo and ShowcasePhoto are JPEG
// bytes and stay nil on listing queries.
type StaffMember struct {
	StaffID       string
	Name          string
	Department    string
	EmployeeID    string
	Embedding     []float32
	Photo         []byte
	ShowcasePhoto []byte
	AddedAt       time.Time
	Active        bool
}

// StaffEmbedding pairs a staff identity with its decoded face vector.
type StaffEmbedding struct {
	StaffID string
	Name    string
	Vector  []float32
}

// AttendanceDay is the per-staff daily summary row. Times are stored in the
// canonical clock layout; empty strings mean not recorded.
type AttendanceDay struct {
	ID                    int64
	StaffID               string
	StaffName             string
	Date                  string
	CheckInTime           string
	CheckOutTime          string
	HoursWorked           float64
	Status                string
	RecognitionConfidence float64
}

// CheckinEvent is one append-only audit row per accepted check-in.
type CheckinEvent struct {
	ID                    int64
	StaffID               string
	Date                  string
	CheckTime             string
	Status                string
	LateMinutes           int
	RecognitionConfidence float64
}

// CheckIn is the input for recording an accepted check-in capture.
type CheckIn struct {
	StaffID     string
	Date        string
	Time        string
	Status      string
	LateMinutes int
	Confidence  float64
}

// AttendanceResult reports what a check-in or check-out write did.
type AttendanceResult struct {
	// AlreadyRecorded is true when an AttendanceDay row existed for the
	// staff member before this call.
	AlreadyRecorded bool
	// TotalVisits counts all attendance days ever recorded for the staff
	// member, including today.
	TotalVisits int
}

// UnknownEntry is a persisted unknown-person sighting. Image carries the
// full-body JPEG on writes and single-row reads; listing queries leave it nil.
type UnknownEntry struct {
	ID                    int64
	TrackID               string
	EntryType             EntryType
	Date                  string
	Time                  string
	DetectionTime         time.Time
	Image                 []byte
	FaceBBox              *vision.Rect
	PersonBBox            *vision.Rect
	FaceDetected          bool
	FaceConfidence        float64
	RecognitionConfidence float64
	Reason                string
	Mode                  string
	Processed             bool
}

// UnknownQuery filters unknown-entry listings.
type UnknownQuery struct {
	// Date restricts results to one day; empty means all days.
	Date string
	// OnlyUnprocessed drops entries already reviewed.
	OnlyUnprocessed bool
	// Limit caps the result count; zero applies the default of 100.
	Limit int
}

// UnknownStats aggregates unknown entries for one day.
type UnknownStats struct {
	Date        string
	Total       int
	Unprocessed int
	ByType      map[EntryType]int
}

// DayStats summarizes one day of attendance for dashboards.
type DayStats struct {
	Date        string
	StaffTotal  int
	CheckedIn   int
	CheckedOut  int
	OnTime      int
	Late        int
	Unknowns    int
	Unprocessed int
}

// DatabaseHealth captures diagnostic information about the attendance database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	SchemaVersion    string
	TablesPresent    []string
	MissingTables    []string
	IntegrityCheck   bool
	StaffCount       int
	AttendanceCount  int
	UnknownCount     int
	Error            string
}
