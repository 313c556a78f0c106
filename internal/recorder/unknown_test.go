package recorder_test

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"turnstile/internal/logging"
	"turnstile/internal/recorder"
	"turnstile/internal/store"
	"turnstile/internal/testsupport"
	"turnstile/internal/vision"
)

func newUnknownRecorder(t *testing.T) (*recorder.Unknown, *store.Store) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	return recorder.NewUnknown(cfg, st, logging.NewNop()), st
}

func unknownCapture(trackID string, at time.Time) recorder.Capture {
	face := vision.NewRect(280, 180, 340, 260)
	return recorder.Capture{
		TrackID:               trackID,
		Frame:                 testsupport.NewTestImage(640, 480),
		FaceBox:               &face,
		PersonBox:             vision.NewRect(250, 160, 380, 470),
		FaceDetected:          true,
		FaceConfidence:        0.8,
		RecognitionConfidence: 0.42,
		Embedding:             []float32{1, 0, 0},
		At:                    at,
	}
}

func TestRecordClassification(t *testing.T) {
	at := time.Date(2025, 6, 2, 10, 0, 0, 0, time.Local)

	cases := []struct {
		name       string
		mutate     func(*recorder.Capture)
		wantType   store.EntryType
		wantReason string
	}{
		{
			name:       "covered face",
			mutate:     func(c *recorder.Capture) { c.FaceConfidence = 0.2 },
			wantType:   store.EntryCoveredFace,
			wantReason: "face partially covered / low detection confidence",
		},
		{
			name:       "unknown person with confidence",
			mutate:     func(c *recorder.Capture) {},
			wantType:   store.EntryUnknownPerson,
			wantReason: "face detected, not in staff database (confidence: 0.42)",
		},
		{
			name:       "no gallery match",
			mutate:     func(c *recorder.Capture) { c.RecognitionConfidence = 0 },
			wantType:   store.EntryUnknownPerson,
			wantReason: "face detected, no match found",
		},
		{
			name: "no face detected",
			mutate: func(c *recorder.Capture) {
				c.FaceDetected = false
				c.FaceBox = nil
				c.FaceConfidence = 0
				c.RecognitionConfidence = 0
				c.Embedding = nil
			},
			wantType:   store.EntryNoFace,
			wantReason: "no face detected",
		},
	}
	for i, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec, st := newUnknownRecorder(t)
			capture := unknownCapture("track-"+tc.name, at.Add(time.Duration(i)*time.Minute))
			tc.mutate(&capture)

			result, err := rec.Record(context.Background(), capture)
			if err != nil {
				t.Fatalf("Record: %v", err)
			}
			if !result.Stored {
				t.Fatalf("result = %+v, want stored", result)
			}
			if result.EntryType != tc.wantType || result.Reason != tc.wantReason {
				t.Fatalf("classified as %s / %q, want %s / %q",
					result.EntryType, result.Reason, tc.wantType, tc.wantReason)
			}

			entry, err := st.UnknownEntryByID(context.Background(), result.EntryID)
			if err != nil || entry == nil {
				t.Fatalf("UnknownEntryByID: %v (%v)", entry, err)
			}
			if entry.EntryType != tc.wantType || entry.Reason != tc.wantReason {
				t.Errorf("stored entry = %s / %q", entry.EntryType, entry.Reason)
			}
			if entry.Mode != "checkin" {
				t.Errorf("mode = %q", entry.Mode)
			}
		})
	}
}

func TestRecordTrackGate(t *testing.T) {
	rec, st := newUnknownRecorder(t)
	ctx := context.Background()
	at := time.Date(2025, 6, 2, 10, 0, 0, 0, time.Local)

	first, err := rec.Record(ctx, unknownCapture("t1", at))
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	if !first.Stored || first.Updated {
		t.Fatalf("first = %+v", first)
	}

	rapid, err := rec.Record(ctx, unknownCapture("t1", at.Add(500*time.Millisecond)))
	if err != nil {
		t.Fatalf("rapid: %v", err)
	}
	if rapid.Stored || rapid.Suppressed != recorder.SuppressedByTrack {
		t.Fatalf("rapid = %+v, want track gate suppression", rapid)
	}

	// After the re-capture interval the same unprocessed row is updated.
	due, err := rec.Record(ctx, unknownCapture("t1", at.Add(2500*time.Millisecond)))
	if err != nil {
		t.Fatalf("due: %v", err)
	}
	if !due.Stored || !due.Updated || due.EntryID != first.EntryID {
		t.Fatalf("due = %+v, want in-place update of entry %d", due, first.EntryID)
	}

	entries, err := st.UnknownEntries(ctx, store.UnknownQuery{Date: "2025-06-02"})
	if err != nil {
		t.Fatalf("UnknownEntries: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
}

func TestRecordSuppressesSimilarEmbedding(t *testing.T) {
	rec, st := newUnknownRecorder(t)
	ctx := context.Background()
	at := time.Date(2025, 6, 2, 10, 0, 0, 0, time.Local)

	if _, err := rec.Record(ctx, unknownCapture("a1", at)); err != nil {
		t.Fatalf("first: %v", err)
	}

	// Same person re-tracked under a new id a minute later.
	lookalike := unknownCapture("b2", at.Add(time.Minute))
	lookalike.Embedding = []float32{0.99, 0.01, 0}
	result, err := rec.Record(ctx, lookalike)
	if err != nil {
		t.Fatalf("lookalike: %v", err)
	}
	if result.Stored || result.Suppressed != recorder.SuppressedBySimilarity {
		t.Fatalf("result = %+v, want similarity suppression", result)
	}

	stranger := unknownCapture("c3", at.Add(2*time.Minute))
	stranger.Embedding = []float32{0, 1, 0}
	if result, err = rec.Record(ctx, stranger); err != nil || !result.Stored {
		t.Fatalf("stranger = %+v (%v), want stored", result, err)
	}

	entries, err := st.UnknownEntries(ctx, store.UnknownQuery{Date: "2025-06-02"})
	if err != nil {
		t.Fatalf("UnknownEntries: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
}

func TestRecordCropsBodyRegion(t *testing.T) {
	rec, st := newUnknownRecorder(t)
	ctx := context.Background()
	at := time.Date(2025, 6, 2, 10, 0, 0, 0, time.Local)

	capture := unknownCapture("crop-1", at)
	capture.FaceBox = nil
	capture.FaceDetected = false
	capture.Embedding = nil
	capture.PersonBox = vision.NewRect(100, 100, 140, 180)

	result, err := rec.Record(ctx, capture)
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	data, err := st.UnknownEntryImage(ctx, result.EntryID)
	if err != nil {
		t.Fatalf("UnknownEntryImage: %v", err)
	}
	if !bytes.HasPrefix(data, []byte{0xff, 0xd8}) {
		t.Fatal("stored image is not a JPEG")
	}

	img, err := vision.Decode(data)
	if err != nil {
		t.Fatalf("decode stored image: %v", err)
	}
	bounds := img.Bounds()
	if bounds.Dx() != 80 || bounds.Dy() != 120 {
		t.Fatalf("crop = %dx%d, want padded person box 80x120", bounds.Dx(), bounds.Dy())
	}
}

func TestRecordRequiresFrame(t *testing.T) {
	rec, _ := newUnknownRecorder(t)

	capture := unknownCapture("f1", time.Now())
	capture.Frame = nil
	if _, err := rec.Record(context.Background(), capture); err == nil {
		t.Fatal("expected error for capture without frame")
	} else if !strings.Contains(err.Error(), "no frame") {
		t.Errorf("error = %v", err)
	}
}
