package api

import (
	"time"

	"turnstile/internal/engine"
	"turnstile/internal/logging"
	"turnstile/internal/store"
	"turnstile/internal/tracking"
)

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

// FromAttendanceDay converts a daily summary row to its API representation.
func FromAttendanceDay(day store.AttendanceDay) AttendanceDay {
	return AttendanceDay{
		ID:           day.ID,
		StaffID:      day.StaffID,
		StaffName:    day.StaffName,
		Date:         day.Date,
		CheckInTime:  day.CheckInTime,
		CheckOutTime: day.CheckOutTime,
		HoursWorked:  day.HoursWorked,
		Status:       day.Status,
		Confidence:   day.RecognitionConfidence,
	}
}

// FromAttendanceDays converts a slice of daily summary rows.
func FromAttendanceDays(days []store.AttendanceDay) []AttendanceDay {
	out := make([]AttendanceDay, 0, len(days))
	for _, day := range days {
		out = append(out, FromAttendanceDay(day))
	}
	return out
}

// FromCheckinEvent converts an audit row to its API representation.
func FromCheckinEvent(event store.CheckinEvent) CheckinEvent {
	return CheckinEvent{
		ID:          event.ID,
		StaffID:     event.StaffID,
		Date:        event.Date,
		CheckTime:   event.CheckTime,
		Status:      event.Status,
		LateMinutes: event.LateMinutes,
		Confidence:  event.RecognitionConfidence,
	}
}

// FromCheckinEvents converts a slice of audit rows.
func FromCheckinEvents(events []store.CheckinEvent) []CheckinEvent {
	out := make([]CheckinEvent, 0, len(events))
	for _, event := range events {
		out = append(out, FromCheckinEvent(event))
	}
	return out
}

// FromUnknownEntry converts an unknown-person sighting. The image payload is
// intentionally dropped; clients fetch it from the image endpoint.
func FromUnknownEntry(entry store.UnknownEntry) UnknownEntry {
	return UnknownEntry{
		ID:                    entry.ID,
		TrackID:               entry.TrackID,
		EntryType:             string(entry.EntryType),
		Date:                  entry.Date,
		Time:                  entry.Time,
		DetectionTime:         formatTime(entry.DetectionTime),
		FaceBox:               entry.FaceBBox,
		PersonBox:             entry.PersonBBox,
		FaceDetected:          entry.FaceDetected,
		FaceConfidence:        entry.FaceConfidence,
		RecognitionConfidence: entry.RecognitionConfidence,
		Reason:                entry.Reason,
		Mode:                  entry.Mode,
		Processed:             entry.Processed,
	}
}

// FromUnknownEntries converts a slice of sightings.
func FromUnknownEntries(entries []store.UnknownEntry) []UnknownEntry {
	out := make([]UnknownEntry, 0, len(entries))
	for _, entry := range entries {
		out = append(out, FromUnknownEntry(entry))
	}
	return out
}

// FromUnknownStats converts a daily unknown-entry aggregate.
func FromUnknownStats(stats store.UnknownStats) UnknownStats {
	byType := make(map[string]int, len(stats.ByType))
	for entryType, count := range stats.ByType {
		byType[string(entryType)] = count
	}
	return UnknownStats{
		Date:        stats.Date,
		Total:       stats.Total,
		Unprocessed: stats.Unprocessed,
		ByType:      byType,
	}
}

// FromStaffMember converts an enrolled staff row. Embeddings and photos are
// never exposed.
func FromStaffMember(member *store.StaffMember) StaffMember {
	if member == nil {
		return StaffMember{}
	}
	return StaffMember{
		StaffID:    member.StaffID,
		Name:       member.Name,
		Department: member.Department,
		EmployeeID: member.EmployeeID,
		AddedAt:    formatTime(member.AddedAt),
		Active:     member.Active,
	}
}

// FromStaffMembers converts a staff listing.
func FromStaffMembers(members []*store.StaffMember) []StaffMember {
	out := make([]StaffMember, 0, len(members))
	for _, member := range members {
		out = append(out, FromStaffMember(member))
	}
	return out
}

// FromEngineEvent converts one pushed attendance change.
func FromEngineEvent(event engine.Event) Event {
	return Event{
		Type:        string(event.Type),
		At:          formatTime(event.At),
		StaffID:     event.StaffID,
		Name:        event.Name,
		Status:      event.Status,
		LateMinutes: event.LateMinutes,
		Confidence:  event.Confidence,
		TotalVisits: event.TotalVisits,
		EntryID:     event.EntryID,
		EntryType:   event.EntryType,
		Reason:      event.Reason,
	}
}

// FromEngineEvents converts a slice of pushed attendance changes.
func FromEngineEvents(events []engine.Event) []Event {
	out := make([]Event, 0, len(events))
	for _, event := range events {
		out = append(out, FromEngineEvent(event))
	}
	return out
}

// FromTrackSnapshot converts one tracked subject view.
func FromTrackSnapshot(snap tracking.Snapshot) TrackView {
	return TrackView{
		Kind:      string(snap.Key.Kind),
		ID:        snap.Key.ID,
		TrackID:   snap.TrackID,
		State:     string(snap.State),
		FirstSeen: formatTime(snap.FirstSeen),
		LastSeen:  formatTime(snap.LastSeen),
		InFrame:   snap.InFrame,
		BestScore: snap.BestScore,
	}
}

// FromTrackStats converts registry counters.
func FromTrackStats(stats tracking.Stats) TrackStats {
	return TrackStats{
		ActiveTracks:    stats.ActiveTracks,
		LockedStaff:     stats.LockedStaff,
		StaffCaptures:   stats.StaffCaptures,
		UnknownCaptures: stats.UnknownCaptures,
		PrunedTracks:    stats.PrunedTracks,
	}
}

// FromEngineStatus converts the engine's live summary to API payload.
func FromEngineStatus(status engine.Status) EngineStatus {
	tracks := make([]TrackView, 0, len(status.ActiveTracks))
	for _, snap := range status.ActiveTracks {
		tracks = append(tracks, FromTrackSnapshot(snap))
	}
	return EngineStatus{
		Running:      status.Running,
		Mode:         status.Mode,
		LastFrameAt:  formatTime(status.LastFrameAt),
		LastError:    status.LastError,
		Stats:        FromTrackStats(status.Tracks),
		ActiveTracks: tracks,
		RecentEvents: FromEngineEvents(status.RecentEvents),
	}
}

// FromDayStats converts a daily attendance aggregate.
func FromDayStats(stats store.DayStats) DayStats {
	return DayStats{
		Date:        stats.Date,
		StaffTotal:  stats.StaffTotal,
		CheckedIn:   stats.CheckedIn,
		CheckedOut:  stats.CheckedOut,
		OnTime:      stats.OnTime,
		Late:        stats.Late,
		Unknowns:    stats.Unknowns,
		Unprocessed: stats.Unprocessed,
	}
}

// FromLogEvent converts one streamed log record.
func FromLogEvent(event logging.LogEvent) LogEvent {
	details := make([]DetailField, 0, len(event.Details))
	for _, detail := range event.Details {
		details = append(details, DetailField{Label: detail.Label, Value: detail.Value})
	}
	return LogEvent{
		Sequence:  event.Sequence,
		Timestamp: formatTime(event.Timestamp),
		Level:     event.Level,
		Message:   event.Message,
		Component: event.Component,
		TrackID:   event.TrackID,
		StaffID:   event.StaffID,
		Mode:      event.Mode,
		Fields:    event.Fields,
		Details:   details,
	}
}

// FromLogEvents converts a page of streamed log records.
func FromLogEvents(events []logging.LogEvent) []LogEvent {
	out := make([]LogEvent, 0, len(events))
	for _, event := range events {
		out = append(out, FromLogEvent(event))
	}
	return out
}

// FromDatabaseHealth converts the store's diagnostic report.
func FromDatabaseHealth(health store.DatabaseHealth) DatabaseHealth {
	return DatabaseHealth{
		Path:             health.DBPath,
		DatabaseExists:   health.DatabaseExists,
		DatabaseReadable: health.DatabaseReadable,
		SchemaVersion:    health.SchemaVersion,
		TablesPresent:    health.TablesPresent,
		MissingTables:    health.MissingTables,
		IntegrityCheck:   health.IntegrityCheck,
		StaffCount:       health.StaffCount,
		AttendanceCount:  health.AttendanceCount,
		UnknownCount:     health.UnknownCount,
		Error:            health.Error,
	}
}
