package logging

import (
	"log/slog"
	"strings"
)

type infoField struct {
	label string
	value string
}

const infoAttrLimit = 8

var infoHighlightKeys = []string{
	FieldAlert,
	FieldEventType,
	"entry_type",
	"staff_name",
	"department",
	"status",
	"late_minutes",
	"work_hours",
	"entry_time",
	"exit_time",
	"detection_time",
	"reason",
	"face_confidence",
	"recognition_confidence",
	"similarity",
	"error_message",
	FieldErrorHint,
	"mode",
	"device",
	"capture_count",
	"track_count",
	"staff_count",
	"unknown_count",
	"processed_count",
	"image_bytes",
	"stage_duration",
	"detect_duration",
	"identify_duration",
	"date",
}

// selectInfoFields returns formatted info-level fields and a count of hidden entries.
// limit=0 means no limit. includeDebug controls whether debug-only keys are allowed.
func selectInfoFields(attrs []kv, limit int, includeDebug bool) ([]infoField, int) {
	if len(attrs) == 0 {
		return nil, 0
	}
	if limit < 0 {
		limit = 0
	}
	used := make([]bool, len(attrs))
	formatted := make([]string, len(attrs))
	formattedSet := make([]bool, len(attrs))
	ensureValue := func(idx int) string {
		if !formattedSet[idx] {
			formatted[idx] = formatValueForKeyWithAttrs(attrs[idx].key, attrs[idx].value, attrs)
			formattedSet[idx] = true
		}
		return formatted[idx]
	}
	result := make([]infoField, 0, infoAttrLimit)
	hidden := 0

	for _, key := range infoHighlightKeys {
		if limit > 0 && len(result) >= limit {
			break
		}
		for idx, attr := range attrs {
			if used[idx] || attr.key != key {
				continue
			}
			used[idx] = true
			if skipInfoKey(attr.key) {
				break
			}
			if !includeDebug && isDebugOnlyKey(attr.key) {
				hidden++
				break
			}
			val := ensureValue(idx)
			if !includeDebug && shouldHideInfoValue(attr.key, val) {
				hidden++
				break
			}
			result = append(result, infoField{label: displayLabel(attr.key), value: val})
			break
		}
	}

	for idx, attr := range attrs {
		if used[idx] {
			continue
		}
		used[idx] = true
		if skipInfoKey(attr.key) {
			continue
		}
		if !includeDebug && isDebugOnlyKey(attr.key) {
			hidden++
			continue
		}
		val := ensureValue(idx)
		if !includeDebug && shouldHideInfoValue(attr.key, val) {
			hidden++
			continue
		}
		if limit <= 0 || len(result) < limit {
			result = append(result, infoField{label: displayLabel(attr.key), value: val})
		} else if limit > 0 {
			hidden++
		}
	}

	return result, hidden
}

// formatValueForKeyWithAttrs applies smart formatting based on the key name.
func formatValueForKeyWithAttrs(key string, v slog.Value, attrs []kv) string {
	v = v.Resolve()

	if isByteSizeKey(key) && (v.Kind() == slog.KindInt64 || v.Kind() == slog.KindUint64) {
		var bytes int64
		if v.Kind() == slog.KindInt64 {
			bytes = v.Int64()
		} else {
			bytes = int64(v.Uint64())
		}
		return formatBytes(bytes)
	}

	if isDurationKey(key) && v.Kind() == slog.KindDuration {
		return formatDurationHuman(v.Duration())
	}

	if isConfidenceKey(key) && v.Kind() == slog.KindFloat64 {
		return formatConfidence(v.Float64())
	}

	if v.Kind() == slog.KindBool {
		if v.Bool() {
			return "yes"
		}
		return "no"
	}

	value := formatValue(v)
	if key == "error" || key == "error_message" {
		value = truncateErrorValue(value)
	}
	return value
}

// isByteSizeKey returns true if the key represents a byte size.
func isByteSizeKey(key string) bool {
	return strings.HasSuffix(key, "_bytes") ||
		strings.HasSuffix(key, "_size") ||
		key == "size"
}

// isDurationKey returns true if the key represents a duration.
func isDurationKey(key string) bool {
	return strings.HasSuffix(key, "_duration") ||
		strings.HasSuffix(key, "_elapsed") ||
		strings.HasSuffix(key, "_latency") ||
		key == "elapsed" ||
		key == "duration" ||
		key == "backoff"
}

// isConfidenceKey returns true if the key holds a 0..1 confidence or similarity score.
func isConfidenceKey(key string) bool {
	return strings.HasSuffix(key, "_confidence") ||
		key == "confidence" ||
		key == "similarity"
}

func truncateErrorValue(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return value
	}
	const maxLen = 200
	if len(value) > maxLen {
		value = value[:maxLen] + "…"
	}
	return value
}

func skipInfoKey(key string) bool {
	switch key {
	case "", FieldTrackID, FieldStaffID, FieldMode, FieldComponent:
		return true
	default:
		return false
	}
}

func isDebugOnlyKey(key string) bool {
	if key == "" {
		return true
	}
	switch key {
	case FieldCorrelationID,
		"face_bbox",
		"person_bbox",
		"embedding_dim",
		"frame_seq",
		"frame_width",
		"frame_height",
		"queue_depth",
		"cache_size":
		return true
	}
	if strings.Contains(key, "correlation") {
		return true
	}
	if strings.HasSuffix(key, "_id") && key != FieldEntryID {
		return true
	}
	if strings.Contains(key, "_path") || strings.Contains(key, "_dir") {
		return true
	}
	return false
}

func shouldHideInfoValue(key, value string) bool {
	switch key {
	case "error_message", "error", "reason":
		return false
	}
	return len(value) > 120
}

func displayLabel(key string) string {
	switch key {
	case FieldAlert:
		return "Alert"
	case FieldEventType:
		return "Event"
	case FieldErrorHint:
		return "Hint"
	case FieldEntryID:
		return "Entry"
	case "entry_type":
		return "Type"
	case "staff_name":
		return "Name"
	case "department":
		return "Department"
	case "status":
		return "Status"
	case "late_minutes":
		return "Late By"
	case "work_hours":
		return "Hours"
	case "entry_time":
		return "In"
	case "exit_time":
		return "Out"
	case "detection_time":
		return "Detected"
	case "face_confidence":
		return "Face Conf"
	case "recognition_confidence":
		return "Match Conf"
	case "similarity":
		return "Similarity"
	case "reason":
		return "Reason"
	case "mode":
		return "Mode"
	case "device":
		return "Device"
	case "capture_count":
		return "Captures"
	case "track_count":
		return "Tracks"
	case "staff_count":
		return "Staff"
	case "unknown_count":
		return "Unknowns"
	case "processed_count":
		return "Processed"
	case "image_bytes":
		return "Image Size"
	case "stage_duration":
		return "Duration"
	case "detect_duration":
		return "Detect Time"
	case "identify_duration":
		return "Identify Time"
	case "date":
		return "Date"
	default:
		return titleizeKey(key)
	}
}

func titleizeKey(key string) string {
	if key == "" {
		return ""
	}
	parts := strings.FieldsFunc(key, func(r rune) bool {
		return r == '_' || r == '-'
	})
	if len(parts) == 0 {
		return strings.ToUpper(key[:1]) + strings.ToLower(key[1:])
	}
	for i, part := range parts {
		parts[i] = capitalizeASCII(part)
	}
	return strings.Join(parts, " ")
}

func capitalizeASCII(value string) string {
	switch len(value) {
	case 0:
		return ""
	case 1:
		return strings.ToUpper(value)
	default:
		lower := strings.ToLower(value)
		return strings.ToUpper(lower[:1]) + lower[1:]
	}
}

func infoSummaryKey(component, trackID, staffID string, attrs []kv) string {
	trackID = strings.TrimSpace(trackID)
	if trackID == "" {
		if staffID = strings.TrimSpace(staffID); staffID != "" {
			trackID = "staff:" + staffID
		} else if name := attrValue(attrs, "staff_name"); name != "" {
			trackID = "name:" + name
		} else if component != "" {
			trackID = component
		}
	}
	if trackID == "" {
		return ""
	}
	return trackID
}

func attrValue(attrs []kv, key string) string {
	for _, kv := range attrs {
		if kv.key == key {
			return attrString(kv.value)
		}
	}
	return ""
}
