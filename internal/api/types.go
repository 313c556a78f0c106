package api

import "turnstile/internal/vision"

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// AttendanceDay describes one staff member's daily summary row.
type AttendanceDay struct {
	ID           int64   `json:"id"`
	StaffID      string  `json:"staffId"`
	StaffName    string  `json:"staffName"`
	Date         string  `json:"date"`
	CheckInTime  string  `json:"checkInTime,omitempty"`
	CheckOutTime string  `json:"checkOutTime,omitempty"`
	HoursWorked  float64 `json:"hoursWorked"`
	Status       string  `json:"status"`
	Confidence   float64 `json:"recognitionConfidence"`
}

// CheckinEvent is one append-only audit row behind a daily summary.
type CheckinEvent struct {
	ID          int64   `json:"id"`
	StaffID     string  `json:"staffId"`
	Date        string  `json:"date"`
	CheckTime   string  `json:"checkTime"`
	Status      string  `json:"status"`
	LateMinutes int     `json:"lateMinutes"`
	Confidence  float64 `json:"recognitionConfidence"`
}

// AttendanceDayResponse carries one day of attendance with its audit trail.
type AttendanceDayResponse struct {
	Date     string          `json:"date"`
	Days     []AttendanceDay `json:"attendance"`
	Checkins []CheckinEvent  `json:"checkins"`
}

// AttendanceRangeResponse carries summary rows across a date range.
type AttendanceRangeResponse struct {
	Start string          `json:"start"`
	End   string          `json:"end"`
	Days  []AttendanceDay `json:"attendance"`
}

// UnknownEntry describes an unknown-person sighting. The stored image is
// served by its own endpoint and never inlined.
type UnknownEntry struct {
	ID                    int64        `json:"id"`
	TrackID               string       `json:"trackId"`
	EntryType             string       `json:"entryType"`
	Date                  string       `json:"date"`
	Time                  string       `json:"time"`
	DetectionTime         string       `json:"detectionTime,omitempty"`
	FaceBox               *vision.Rect `json:"faceBox,omitempty"`
	PersonBox             *vision.Rect `json:"personBox,omitempty"`
	FaceDetected          bool         `json:"faceDetected"`
	FaceConfidence        float64      `json:"faceConfidence"`
	RecognitionConfidence float64      `json:"recognitionConfidence"`
	Reason                string       `json:"reason"`
	Mode                  string       `json:"mode"`
	Processed             bool         `json:"processed"`
}

// UnknownListResponse wraps an unknown-entry listing.
type UnknownListResponse struct {
	Entries []UnknownEntry `json:"entries"`
}

// UnknownStats aggregates unknown entries for one day.
type UnknownStats struct {
	Date        string         `json:"date"`
	Total       int            `json:"total"`
	Unprocessed int            `json:"unprocessed"`
	ByType      map[string]int `json:"byType"`
}

// StaffMember describes an enrolled staff member. Embeddings and photos
// never leave the daemon through this type.
type StaffMember struct {
	StaffID    string `json:"staffId"`
	Name       string `json:"name"`
	Department string `json:"department,omitempty"`
	EmployeeID string `json:"employeeId,omitempty"`
	AddedAt    string `json:"addedAt,omitempty"`
	Active     bool   `json:"active"`
}

// StaffListResponse wraps a staff listing.
type StaffListResponse struct {
	Staff []StaffMember `json:"staff"`
}

// Event is one attendance change from the engine's push stream.
type Event struct {
	Type        string  `json:"type"`
	At          string  `json:"at"`
	StaffID     string  `json:"staffId,omitempty"`
	Name        string  `json:"name,omitempty"`
	Status      string  `json:"status,omitempty"`
	LateMinutes int     `json:"lateMinutes,omitempty"`
	Confidence  float64 `json:"confidence,omitempty"`
	TotalVisits int     `json:"totalVisits,omitempty"`
	EntryID     int64   `json:"entryId,omitempty"`
	EntryType   string  `json:"entryType,omitempty"`
	Reason      string  `json:"reason,omitempty"`
}

// TrackView is a read-only view of one tracked subject.
type TrackView struct {
	Kind      string  `json:"kind"`
	ID        string  `json:"id"`
	TrackID   string  `json:"trackId,omitempty"`
	State     string  `json:"state"`
	FirstSeen string  `json:"firstSeen,omitempty"`
	LastSeen  string  `json:"lastSeen,omitempty"`
	InFrame   bool    `json:"inFrame"`
	BestScore float64 `json:"bestScore,omitempty"`
}

// TrackStats summarizes track registry activity since startup.
type TrackStats struct {
	ActiveTracks    int    `json:"activeTracks"`
	LockedStaff     int    `json:"lockedStaff"`
	StaffCaptures   uint64 `json:"staffCaptures"`
	UnknownCaptures uint64 `json:"unknownCaptures"`
	PrunedTracks    uint64 `json:"prunedTracks"`
}

// EngineStatus summarizes frame loop execution state.
type EngineStatus struct {
	Running      bool        `json:"running"`
	Mode         string      `json:"mode"`
	LastFrameAt  string      `json:"lastFrameAt,omitempty"`
	LastError    string      `json:"lastError,omitempty"`
	Stats        TrackStats  `json:"trackStats"`
	ActiveTracks []TrackView `json:"activeTracks"`
	RecentEvents []Event     `json:"recentEvents"`
}

// DatabaseHealth mirrors the store's diagnostic report.
type DatabaseHealth struct {
	Path             string   `json:"path"`
	DatabaseExists   bool     `json:"databaseExists"`
	DatabaseReadable bool     `json:"databaseReadable"`
	SchemaVersion    string   `json:"schemaVersion,omitempty"`
	TablesPresent    []string `json:"tablesPresent,omitempty"`
	MissingTables    []string `json:"missingTables,omitempty"`
	IntegrityCheck   bool     `json:"integrityCheck"`
	StaffCount       int      `json:"staffCount"`
	AttendanceCount  int      `json:"attendanceCount"`
	UnknownCount     int      `json:"unknownCount"`
	Error            string   `json:"error,omitempty"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool         `json:"running"`
	PID          int          `json:"pid"`
	RunID        string       `json:"runId,omitempty"`
	StartedAt    string       `json:"startedAt,omitempty"`
	DatabasePath string       `json:"databasePath"`
	SocketPath   string       `json:"socketPath"`
	Engine       EngineStatus `json:"engine"`
}

// DayStats summarizes one day of attendance for dashboards.
type DayStats struct {
	Date        string `json:"date"`
	StaffTotal  int    `json:"staffTotal"`
	CheckedIn   int    `json:"checkedIn"`
	CheckedOut  int    `json:"checkedOut"`
	OnTime      int    `json:"onTime"`
	Late        int    `json:"late"`
	Unknowns    int    `json:"unknowns"`
	Unprocessed int    `json:"unprocessed"`
}

// DetailField is one rendered info bullet attached to a log event.
type DetailField struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// LogEvent is one structured record from the daemon's event stream.
type LogEvent struct {
	Sequence  uint64            `json:"seq"`
	Timestamp string            `json:"ts"`
	Level     string            `json:"level"`
	Message   string            `json:"message"`
	Component string            `json:"component,omitempty"`
	TrackID   string            `json:"trackId,omitempty"`
	StaffID   string            `json:"staffId,omitempty"`
	Mode      string            `json:"mode,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
	Details   []DetailField     `json:"details,omitempty"`
}

// LogStreamResponse carries a page of log events plus the cursor to pass
// as since on the next poll.
type LogStreamResponse struct {
	Events []LogEvent `json:"events"`
	Next   uint64     `json:"next"`
}

// RecheckResult reports what an unknown-entry staff re-check did.
type RecheckResult struct {
	Success               bool    `json:"success"`
	StaffID               string  `json:"staffId,omitempty"`
	StaffName             string  `json:"staffName,omitempty"`
	RecognitionConfidence float64 `json:"recognitionConfidence"`
	AlreadyCaptured       bool    `json:"alreadyCaptured"`
	CheckInCreated        bool    `json:"checkInCreated"`
	LastCheckTime         string  `json:"lastCheckTime,omitempty"`
	SystemMode            string  `json:"systemMode"`
	Message               string  `json:"message,omitempty"`
}
