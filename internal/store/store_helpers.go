package store

import (
	"encoding/json"
	"errors"
	"time"

	"turnstile/internal/vision"
)

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableBytes(value []byte) any {
	if len(value) == 0 {
		return nil
	}
	return value
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func marshalBBox(r *vision.Rect) any {
	if r == nil {
		return nil
	}
	data, err := json.Marshal(r)
	if err != nil {
		return nil
	}
	return string(data)
}

// unmarshalBBox tolerates malformed stored boxes: a bad payload reads as nil
// rather than failing the row.
func unmarshalBBox(value string) *vision.Rect {
	if value == "" {
		return nil
	}
	var r vision.Rect
	if err := json.Unmarshal([]byte(value), &r); err != nil {
		return nil
	}
	return &r
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
