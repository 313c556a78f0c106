package engine_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"turnstile/internal/config"
	"turnstile/internal/engine"
	"turnstile/internal/faceclient"
	"turnstile/internal/logging"
	"turnstile/internal/metrics"
	"turnstile/internal/recorder"
	"turnstile/internal/schedule"
	"turnstile/internal/store"
	"turnstile/internal/testsupport"
	"turnstile/internal/vision"
)

var base = time.Date(2025, 6, 2, 8, 55, 0, 0, time.UTC)

type sourceStep struct {
	frame vision.Frame
	err   error
}

// scriptedSource replays a fixed frame sequence, then blocks until the
// engine shuts down.
type scriptedSource struct {
	mu    sync.Mutex
	steps []sourceStep
	idx   int
}

func (s *scriptedSource) Next(ctx context.Context) (vision.Frame, error) {
	s.mu.Lock()
	if s.idx < len(s.steps) {
		step := s.steps[s.idx]
		s.idx++
		s.mu.Unlock()
		return step.frame, step.err
	}
	s.mu.Unlock()
	<-ctx.Done()
	return vision.Frame{}, ctx.Err()
}

type sidecarStep struct {
	detectErr error
	faces     []faceclient.Face
	tracks    []faceclient.Track
	identity  vision.Identity
}

// scriptedSidecar advances one step per Detect call; UpdateTracks and
// Identify answer from the current step.
type scriptedSidecar struct {
	mu      sync.Mutex
	steps   []sidecarStep
	idx     int
	current sidecarStep
	detects int
}

func (s *scriptedSidecar) Detect(ctx context.Context, jpegFrame []byte) ([]faceclient.Face, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.detects++
	if s.idx < len(s.steps) {
		s.current = s.steps[s.idx]
		s.idx++
	} else {
		s.current = sidecarStep{}
	}
	if s.current.detectErr != nil {
		return nil, s.current.detectErr
	}
	return s.current.faces, nil
}

func (s *scriptedSidecar) UpdateTracks(ctx context.Context, jpegFrame []byte, boxes []vision.Rect) ([]faceclient.Track, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.tracks, nil
}

func (s *scriptedSidecar) Identify(ctx context.Context, embedding []float32) (vision.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.identity, nil
}

func (s *scriptedSidecar) detectCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.detects
}

func newTestEngine(t *testing.T, cfg *config.Config, st *store.Store, source *scriptedSource, sidecar *scriptedSidecar, set *metrics.Set) *engine.Engine {
	t.Helper()
	eng, err := engine.New(cfg, st, logging.NewNop(),
		engine.WithFrameSource(source),
		engine.WithFaceClient(sidecar),
		engine.WithMetrics(set),
	)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return eng
}

func fastConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Engine.FrameSkip = 1
	cfg.Engine.MinDetectionGapMillis = 0
	cfg.Engine.FrameTimeoutMillis = 10
	return cfg
}

func waitEvent(t *testing.T, events <-chan engine.Event) engine.Event {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for engine event")
		return engine.Event{}
	}
}

func waitCounter(t *testing.T, read func() float64, want float64) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if read() >= want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("counter stalled at %v, want %v", read(), want)
}

func TestEngineCapturesStaffOnReturnAfterLeave(t *testing.T) {
	cfg := fastConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	testsupport.SeedStaff(t, st, "emp-7", "Dana Reyes", []float32{0.6, 0.8})

	img := testsupport.NewTestImage(320, 240)
	faceBox := vision.NewRect(100, 60, 180, 160)
	staffFace := faceclient.Face{BBox: faceBox, Confidence: 0.95, Embedding: []float32{0.6, 0.8}}
	identify := func(conf float64) vision.Identity {
		return vision.Identity{Kind: vision.KindStaff, StaffID: "emp-7", Name: "Dana Reyes", Confidence: conf}
	}
	staffStep := func(trackID string, conf float64) sidecarStep {
		return sidecarStep{
			faces:    []faceclient.Face{staffFace},
			tracks:   []faceclient.Track{{ID: trackID, BBox: faceBox}},
			identity: identify(conf),
		}
	}
	frame := func(offset time.Duration, seq uint64) sourceStep {
		return sourceStep{frame: vision.Frame{Image: img, Timestamp: base.Add(offset), Sequence: seq}}
	}

	// Lock without capture, then three leave/return cycles: the first
	// return writes, the second lands inside the debounce window, the
	// third writes again.
	source := &scriptedSource{steps: []sourceStep{
		frame(0, 1),
		frame(3*time.Second, 2),
		frame(40*time.Second, 3),
		frame(45*time.Second, 4),
		frame(50*time.Second, 5),
		frame(58*time.Second, 6),
		frame(80*time.Second, 7),
	}}
	sidecar := &scriptedSidecar{steps: []sidecarStep{
		staffStep("t1", 0.82),
		{},
		staffStep("t2", 0.78),
		{},
		staffStep("t3", 0.76),
		{},
		staffStep("t4", 0.74),
	}}

	set := metrics.NewSet()
	eng := newTestEngine(t, cfg, st, source, sidecar, set)
	if err := eng.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer eng.Stop()

	first := waitEvent(t, eng.Events())
	if first.Type != engine.EventCheckIn {
		t.Fatalf("first event type = %q, want %q", first.Type, engine.EventCheckIn)
	}
	if first.StaffID != "emp-7" || first.Name != "Dana Reyes" {
		t.Errorf("first event identity = %q/%q", first.StaffID, first.Name)
	}
	if first.Status != schedule.StatusOnTime {
		t.Errorf("first event status = %q, want %q", first.Status, schedule.StatusOnTime)
	}
	if first.Confidence != 0.82 {
		t.Errorf("first event confidence = %v, want best score 0.82", first.Confidence)
	}

	second := waitEvent(t, eng.Events())
	if second.Type != engine.EventCheckIn {
		t.Fatalf("second event type = %q", second.Type)
	}
	if !second.At.Equal(base.Add(80 * time.Second)) {
		t.Errorf("second event at %v, want the third return frame", second.At)
	}

	waitCounter(t, func() float64 { return testutil.ToFloat64(set.AttendanceDebounced) }, 1)
	eng.Stop()

	ctx := context.Background()
	days, checkins, err := st.AttendanceForDate(ctx, "2025-06-02")
	if err != nil {
		t.Fatalf("attendance for date: %v", err)
	}
	if len(days) != 1 {
		t.Fatalf("day rows = %d, want 1", len(days))
	}
	if days[0].StaffID != "emp-7" || days[0].Status != schedule.StatusOnTime {
		t.Errorf("day row = %+v", days[0])
	}
	if days[0].CheckInTime != "08:56:20" {
		t.Errorf("check-in time = %q, want the re-check-in to overwrite", days[0].CheckInTime)
	}
	if len(checkins) != 2 {
		t.Errorf("check-in events = %d, want 2", len(checkins))
	}

	unknowns, err := st.UnknownEntries(ctx, store.UnknownQuery{})
	if err != nil {
		t.Fatalf("unknown entries: %v", err)
	}
	if len(unknowns) != 0 {
		t.Errorf("staff walk produced %d unknown entries", len(unknowns))
	}

	if got := len(eng.RecentEvents()); got != 2 {
		t.Errorf("recent events = %d, want 2", got)
	}

	status := eng.Status()
	if status.Tracks.StaffCaptures != 3 {
		t.Errorf("staff captures = %d, want 3 including the debounced one", status.Tracks.StaffCaptures)
	}
	eng.ResetDay()
	if got := len(eng.Status().ActiveTracks); got != 0 {
		t.Errorf("active tracks after rollover = %d, want 0", got)
	}
}

func TestEngineRecordsUnknownAndSuppressesSimilar(t *testing.T) {
	cfg := fastConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	img := testsupport.NewTestImage(320, 240)
	vector := []float32{0.6, 0.8}
	visitor := func(trackID string, box vision.Rect) sidecarStep {
		return sidecarStep{
			faces:    []faceclient.Face{{BBox: box, Confidence: 0.9, Embedding: vector}},
			tracks:   []faceclient.Track{{ID: trackID, BBox: box}},
			identity: vision.Identity{Kind: vision.KindUnknown, Confidence: 0.3},
		}
	}

	source := &scriptedSource{steps: []sourceStep{
		{frame: vision.Frame{Image: img, Timestamp: base, Sequence: 1}},
		{frame: vision.Frame{Image: img, Timestamp: base.Add(3 * time.Second), Sequence: 2}},
	}}
	sidecar := &scriptedSidecar{steps: []sidecarStep{
		visitor("u1", vision.NewRect(40, 50, 110, 140)),
		visitor("u2", vision.NewRect(200, 50, 270, 140)),
	}}

	set := metrics.NewSet()
	eng := newTestEngine(t, cfg, st, source, sidecar, set)
	if err := eng.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer eng.Stop()

	ev := waitEvent(t, eng.Events())
	if ev.Type != engine.EventUnknownEntry {
		t.Fatalf("event type = %q, want %q", ev.Type, engine.EventUnknownEntry)
	}
	if ev.EntryType != string(store.EntryUnknownPerson) {
		t.Errorf("entry type = %q, want %q", ev.EntryType, store.EntryUnknownPerson)
	}
	if ev.Reason != "face detected, not in staff database (confidence: 0.30)" {
		t.Errorf("reason = %q", ev.Reason)
	}
	if ev.EntryID == 0 {
		t.Errorf("entry id not set on event")
	}

	// The second visitor carries the same embedding under a new track id;
	// the similarity window must absorb it.
	waitCounter(t, func() float64 {
		return testutil.ToFloat64(set.CapturesSuppressed.WithLabelValues(recorder.SuppressedBySimilarity))
	}, 1)
	eng.Stop()

	ctx := context.Background()
	entries, err := st.UnknownEntries(ctx, store.UnknownQuery{})
	if err != nil {
		t.Fatalf("unknown entries: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want the duplicate suppressed", len(entries))
	}
	entry, err := st.UnknownEntryByID(ctx, entries[0].ID)
	if err != nil {
		t.Fatalf("entry by id: %v", err)
	}
	if entry.TrackID != "u1" || entry.EntryType != store.EntryUnknownPerson {
		t.Errorf("entry = %q/%q", entry.TrackID, entry.EntryType)
	}
	if !entry.FaceDetected || entry.Mode != config.ModeCheckin {
		t.Errorf("entry flags = detected %v mode %q", entry.FaceDetected, entry.Mode)
	}
	if len(entry.Image) == 0 {
		t.Errorf("entry image is empty")
	}
	if got := testutil.ToFloat64(set.UnknownRecorded.WithLabelValues(string(store.EntryUnknownPerson))); got != 1 {
		t.Errorf("unknown recorded counter = %v, want 1", got)
	}
}

func TestEngineSkipsFramesByCadence(t *testing.T) {
	cfg := fastConfig(t)
	cfg.Engine.FrameSkip = 3
	st := testsupport.MustOpenStore(t, cfg)

	img := testsupport.NewTestImage(160, 120)
	steps := make([]sourceStep, 0, 6)
	for i := 0; i < 6; i++ {
		steps = append(steps, sourceStep{frame: vision.Frame{
			Image:     img,
			Timestamp: base.Add(time.Duration(i) * 100 * time.Millisecond),
			Sequence:  uint64(i + 1),
		}})
	}
	source := &scriptedSource{steps: steps}
	sidecar := &scriptedSidecar{}

	set := metrics.NewSet()
	eng := newTestEngine(t, cfg, st, source, sidecar, set)
	if err := eng.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer eng.Stop()

	waitCounter(t, func() float64 { return testutil.ToFloat64(set.FramesProcessed) }, 2)
	eng.Stop()

	if got := testutil.ToFloat64(set.FramesSkipped); got != 4 {
		t.Errorf("frames skipped = %v, want 4 of 6", got)
	}
	if got := sidecar.detectCalls(); got != 2 {
		t.Errorf("detect calls = %d, want 2", got)
	}
}

func TestEngineEnforcesMinimumDetectionGap(t *testing.T) {
	cfg := fastConfig(t)
	cfg.Engine.MinDetectionGapMillis = 200
	st := testsupport.MustOpenStore(t, cfg)

	img := testsupport.NewTestImage(160, 120)
	offsets := []time.Duration{0, 50 * time.Millisecond, 100 * time.Millisecond, 300 * time.Millisecond}
	steps := make([]sourceStep, 0, len(offsets))
	for i, off := range offsets {
		steps = append(steps, sourceStep{frame: vision.Frame{
			Image:     img,
			Timestamp: base.Add(off),
			Sequence:  uint64(i + 1),
		}})
	}
	source := &scriptedSource{steps: steps}
	sidecar := &scriptedSidecar{}

	set := metrics.NewSet()
	eng := newTestEngine(t, cfg, st, source, sidecar, set)
	if err := eng.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer eng.Stop()

	waitCounter(t, func() float64 { return testutil.ToFloat64(set.FramesProcessed) }, 2)
	eng.Stop()

	if got := testutil.ToFloat64(set.FramesSkipped); got != 2 {
		t.Errorf("frames skipped = %v, want the two inside the gap", got)
	}
}

func TestEngineSurvivesSourceAndSidecarFailures(t *testing.T) {
	cfg := fastConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	img := testsupport.NewTestImage(320, 240)
	box := vision.NewRect(60, 40, 140, 150)
	source := &scriptedSource{steps: []sourceStep{
		{err: errors.New("camera offline")},
		{frame: vision.Frame{Image: img, Timestamp: base, Sequence: 1}},
		{frame: vision.Frame{Image: img, Timestamp: base.Add(time.Second), Sequence: 2}},
	}}
	sidecar := &scriptedSidecar{steps: []sidecarStep{
		{detectErr: errors.New("detector overloaded")},
		{
			faces:  []faceclient.Face{{BBox: box, Confidence: 0.9}},
			tracks: []faceclient.Track{{ID: "u5", BBox: box}},
		},
	}}

	set := metrics.NewSet()
	eng := newTestEngine(t, cfg, st, source, sidecar, set)
	if err := eng.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer eng.Stop()

	ev := waitEvent(t, eng.Events())
	if ev.Type != engine.EventUnknownEntry {
		t.Fatalf("event type = %q, want the loop to keep going", ev.Type)
	}
	if ev.Reason != "face detected, no match found" {
		t.Errorf("reason = %q", ev.Reason)
	}
	eng.Stop()

	if got := testutil.ToFloat64(set.FrameErrors); got != 1 {
		t.Errorf("frame errors = %v, want 1", got)
	}
	if got := testutil.ToFloat64(set.DetectionErrors); got != 1 {
		t.Errorf("detection errors = %v, want 1", got)
	}
	if last := eng.Status().LastError; !strings.Contains(last, "detector overloaded") {
		t.Errorf("last error = %q", last)
	}
}

func TestEngineLifecycle(t *testing.T) {
	cfg := fastConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	set := metrics.NewSet()
	eng := newTestEngine(t, cfg, st, &scriptedSource{}, &scriptedSidecar{}, set)

	if err := eng.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := eng.Start(context.Background()); err == nil || err.Error() != "engine already running" {
		t.Fatalf("second start err = %v", err)
	}
	if !eng.Status().Running {
		t.Errorf("status not running after start")
	}
	eng.Stop()
	if eng.Status().Running {
		t.Errorf("status still running after stop")
	}
	if eng.Status().Mode != config.ModeCheckin {
		t.Errorf("mode = %q", eng.Status().Mode)
	}

	if err := eng.Start(context.Background()); err != nil {
		t.Fatalf("restart: %v", err)
	}
	eng.Stop()
	eng.Stop()
}
