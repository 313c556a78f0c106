// Package api defines wire-format types and converters for the IPC and HTTP
// API layer, plus the shared operations both transports invoke. It
// translates store and engine models into transport-friendly DTOs so
// consumers never couple to internal types.
//
// # Key Types
//
// AttendanceDay / CheckinEvent: daily summary rows and the append-only
// check-in audit trail.
//
// UnknownEntry: an unknown-person sighting with classification, confidence
// scores, and bounding boxes; images are served separately.
//
// EngineStatus / DaemonStatus: live engine state (tracks, recent events,
// last error) and aggregated daemon runtime information.
//
// Event: one attendance change from the engine's push stream.
//
// # Operations
//
// RecheckStaff: re-identifies a stored unknown capture against the staff
// gallery and backfills the missed check-in or check-out.
//
// BuildDaemonStatus: assembles the daemon status payload from config,
// engine state, and process metadata.
//
// # Design Notes
//
// DTOs use camelCase JSON tags for JavaScript consumers. Internal enums
// (entry types, event types, track states) are exposed as lowercase
// strings. Timestamps use RFC3339 with milliseconds; attendance dates and
// clock times stay in the store's plain "2006-01-02" and "15:04:05"
// layouts because that is how operators query them.
package api
