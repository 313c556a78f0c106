package logging

import (
	"context"
	"log/slog"

	"turnstile/internal/services"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldTrackID is the standardized structured logging key for person track identifiers.
	FieldTrackID = "track_id"
	// FieldStaffID is the standardized structured logging key for staff identifiers.
	FieldStaffID = "staff_id"
	// FieldEntryID is the standardized structured logging key for unknown-entry row identifiers.
	FieldEntryID = "entry_id"
	// FieldMode is the standardized structured logging key for the engine mode (checkin/checkout).
	FieldMode = "mode"
	// FieldEventType categorizes log lines for downstream filtering.
	FieldEventType = "event_type"
	// FieldErrorHint carries an operator-facing remediation hint alongside errors.
	FieldErrorHint = "error_hint"
	// FieldCorrelationID is the standardized structured logging key for request correlation identifiers.
	FieldCorrelationID = "correlation_id"
	// FieldAlert flags warnings or anomalies that should stand out in structured logs.
	FieldAlert = "alert"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 3)
	if id, ok := services.TrackIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldTrackID, id))
	}
	if staffID, ok := services.StaffIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldStaffID, staffID))
	}
	if rid, ok := services.RequestIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldCorrelationID, rid))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(attrsToArgs(fields)...)
}
