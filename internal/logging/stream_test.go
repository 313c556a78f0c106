package logging

import (
	"context"
	"log/slog"
	"testing"
)

func TestStreamHandler_WithAttrs(t *testing.T) {
	hub := NewStreamHub(100)

	base := slog.NewTextHandler(discardWriter{}, nil)
	handler := NewStreamHandler(base, hub)

	logger := slog.New(handler).With(slog.String(FieldTrackID, "motion-7"))

	logger.Info("test message", slog.String("extra", "value"))

	events, _ := hub.Tail(10)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}

	if events[0].TrackID != "motion-7" {
		t.Errorf("expected track_id=motion-7, got %q", events[0].TrackID)
	}
	if events[0].Message != "test message" {
		t.Errorf("expected message='test message', got %q", events[0].Message)
	}
}

func TestStreamHandler_NestedWithAttrs(t *testing.T) {
	hub := NewStreamHub(100)
	base := slog.NewTextHandler(discardWriter{}, nil)
	handler := NewStreamHandler(base, hub)

	logger := slog.New(handler).
		With(slog.String(FieldMode, "checkin")).
		With(slog.String(FieldTrackID, "42")).
		With(slog.String(FieldStaffID, "EMP001"))

	logger.Info("staff confirmed")

	events, _ := hub.Tail(10)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}

	evt := events[0]
	if evt.TrackID != "42" {
		t.Errorf("expected track_id=42, got %q", evt.TrackID)
	}
	if evt.Mode != "checkin" {
		t.Errorf("expected mode='checkin', got %q", evt.Mode)
	}
	if evt.StaffID != "EMP001" {
		t.Errorf("expected staff_id='EMP001', got %q", evt.StaffID)
	}
}

func TestStreamHandler_CallSiteOverridesWithAttrs(t *testing.T) {
	hub := NewStreamHub(100)
	base := slog.NewTextHandler(discardWriter{}, nil)
	handler := NewStreamHandler(base, hub)

	logger := slog.New(handler).With(slog.String(FieldStaffID, "original"))

	logger.Info("message", slog.String(FieldStaffID, "overridden"))

	events, _ := hub.Tail(10)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}

	if events[0].StaffID != "overridden" {
		t.Errorf("expected staff_id='overridden', got %q", events[0].StaffID)
	}
}

func TestStreamHandler_NilHub(t *testing.T) {
	base := slog.NewTextHandler(discardWriter{}, nil)
	handler := NewStreamHandler(base, nil)

	if handler != base {
		t.Errorf("expected base handler when hub is nil")
	}
}

func TestStreamHandler_Enabled(t *testing.T) {
	hub := NewStreamHub(100)
	base := slog.NewTextHandler(discardWriter{}, &slog.HandlerOptions{Level: slog.LevelWarn})
	handler := NewStreamHandler(base, hub)

	if handler.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("expected INFO to be disabled when base level is WARN")
	}
	if !handler.Enabled(context.Background(), slog.LevelWarn) {
		t.Error("expected WARN to be enabled when base level is WARN")
	}
}

func TestStreamHubFetchSinceAndRollover(t *testing.T) {
	hub := NewStreamHub(4)
	for i := 0; i < 6; i++ {
		hub.Publish(LogEvent{Message: "m"})
	}

	if first := hub.FirstSequence(); first != 3 {
		t.Fatalf("expected first buffered sequence 3 after rollover, got %d", first)
	}

	events, next, err := hub.Fetch(context.Background(), 4, 10, false)
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if next != 6 {
		t.Fatalf("expected next sequence 6, got %d", next)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events after sequence 4, got %d", len(events))
	}
	if events[0].Sequence != 5 || events[1].Sequence != 6 {
		t.Fatalf("unexpected sequences: %d, %d", events[0].Sequence, events[1].Sequence)
	}
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }
