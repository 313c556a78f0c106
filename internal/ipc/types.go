package ipc

import "turnstile/internal/api"

// StartRequest triggers engine startup.
type StartRequest struct{}

// StartResponse indicates whether the daemon was started.
type StartResponse struct {
	Started bool   `json:"started"`
	Message string `json:"message"`
}

// StopRequest stops frame processing.
type StopRequest struct{}

// StopResponse indicates stop result.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// EngineStatus mirrors the HTTP API engine DTO for internal IPC callers.
type EngineStatus = api.EngineStatus

// AttendanceDay mirrors the HTTP API per-staff day summary DTO.
type AttendanceDay = api.AttendanceDay

// CheckinEvent mirrors the HTTP API raw capture event DTO.
type CheckinEvent = api.CheckinEvent

// UnknownEntry mirrors the HTTP API unknown-sighting DTO.
type UnknownEntry = api.UnknownEntry

// DatabaseHealth mirrors the HTTP API database diagnostics DTO.
type DatabaseHealth = api.DatabaseHealth

// StatusResponse represents combined daemon/engine status information.
type StatusResponse struct {
	Running       bool         `json:"running"`
	Paused        bool         `json:"paused"`
	PID           int          `json:"pid"`
	RunID         string       `json:"run_id"`
	StartedAt     string       `json:"started_at"`
	Engine        EngineStatus `json:"engine"`
	CameraMonitor bool         `json:"camera_monitor"`
	LockPath      string       `json:"lock_path"`
	DatabasePath  string       `json:"database_path"`
	SocketPath    string       `json:"socket_path"`
	LogPath       string       `json:"log_path"`
}

// AttendanceTodayRequest fetches attendance for one day. An empty date means
// the current day.
type AttendanceTodayRequest struct {
	Date string `json:"date"`
}

// AttendanceTodayResponse contains day summaries and raw capture events.
type AttendanceTodayResponse struct {
	Days   []AttendanceDay `json:"days"`
	Events []CheckinEvent  `json:"events"`
}

// UnknownListRequest filters unknown sightings.
type UnknownListRequest struct {
	Date            string `json:"date"`
	OnlyUnprocessed bool   `json:"only_unprocessed"`
	Limit           int    `json:"limit"`
}

// UnknownListResponse contains unknown sightings without image payloads.
type UnknownListResponse struct {
	Entries []UnknownEntry `json:"entries"`
}

// UnknownDescribeRequest fetches a single unknown sighting by id.
type UnknownDescribeRequest struct {
	ID int64 `json:"id"`
}

// UnknownDescribeResponse contains a single unknown sighting.
type UnknownDescribeResponse struct {
	Entry UnknownEntry `json:"entry"`
}

// LogTailRequest fetches log lines based on offset and follow semantics.
type LogTailRequest struct {
	Offset     int64 `json:"offset"`
	Limit      int   `json:"limit"`
	Follow     bool  `json:"follow"`
	WaitMillis int   `json:"wait_millis"`
}

// LogTailResponse returns log lines and the next offset.
type LogTailResponse struct {
	Lines  []string `json:"lines"`
	Offset int64    `json:"offset"`
}

// DatabaseHealthRequest fetches detailed database diagnostics.
type DatabaseHealthRequest struct{}

// DatabaseHealthResponse reports database health information.
type DatabaseHealthResponse struct {
	Health DatabaseHealth `json:"health"`
}

// TestNotificationRequest triggers a notification test.
type TestNotificationRequest struct{}

// TestNotificationResponse reports notification test outcome.
type TestNotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}
