package store_test

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"turnstile/internal/schedule"
	"turnstile/internal/services"
	"turnstile/internal/store"
	"turnstile/internal/testsupport"
	"turnstile/internal/vision"
)

func TestOpenAppliesMigrations(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	versions, err := st.AppliedMigrations(context.Background())
	if err != nil {
		t.Fatalf("AppliedMigrations failed: %v", err)
	}
	if len(versions) < 2 {
		t.Fatalf("expected at least two applied migrations, got %v", versions)
	}
	if versions[0] != "001_initial" {
		t.Fatalf("unexpected first migration: %s", versions[0])
	}

	// Reopening the same database must be a no-op.
	st2, err := store.OpenPath(cfg.DatabasePath())
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer st2.Close()
}

func TestSaveStaffRoundTrip(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	vector := []float32{0.1, 0.2, 0.3, 0.4}
	testsupport.SeedStaff(t, st, "EMP042", "Dana Reyes", vector)

	member, err := st.StaffByID(ctx, "EMP042")
	if err != nil {
		t.Fatalf("StaffByID failed: %v", err)
	}
	if member == nil || member.Name != "Dana Reyes" || !member.Active {
		t.Fatalf("unexpected staff member: %#v", member)
	}

	embeddings, err := st.StaffEmbeddings(ctx)
	if err != nil {
		t.Fatalf("StaffEmbeddings failed: %v", err)
	}
	if len(embeddings) != 1 || embeddings[0].StaffID != "EMP042" {
		t.Fatalf("unexpected embeddings: %#v", embeddings)
	}
	for i, v := range vector {
		if math.Abs(float64(embeddings[0].Vector[i]-v)) > 1e-6 {
			t.Fatalf("embedding value %d mismatch: %f != %f", i, embeddings[0].Vector[i], v)
		}
	}

	missing, err := st.StaffByID(ctx, "EMP999")
	if err != nil {
		t.Fatalf("StaffByID for missing staff failed: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for missing staff, got %#v", missing)
	}
}

func TestStaffRosterAndProfileUpdate(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.SeedStaff(t, st, "EMP001", "Ana Alvarez", []float32{1, 0})
	testsupport.SeedStaff(t, st, "EMP002", "Ben Osei", []float32{0, 1})

	if err := st.DeactivateStaff(ctx, "EMP002"); err != nil {
		t.Fatalf("DeactivateStaff failed: %v", err)
	}
	if err := st.DeactivateStaff(ctx, "EMP404"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not-found deactivating missing staff, got %v", err)
	}

	active, err := st.AllStaff(ctx, false)
	if err != nil {
		t.Fatalf("AllStaff(active) failed: %v", err)
	}
	if len(active) != 1 || active[0].StaffID != "EMP001" {
		t.Fatalf("unexpected active roster: %#v", active)
	}

	everyone, err := st.AllStaff(ctx, true)
	if err != nil {
		t.Fatalf("AllStaff(all) failed: %v", err)
	}
	if len(everyone) != 2 {
		t.Fatalf("expected 2 members including inactive, got %d", len(everyone))
	}

	if err := st.UpdateStaffProfile(ctx, "EMP001", "Ana A. Alvarez", "Ops", "E-1001"); err != nil {
		t.Fatalf("UpdateStaffProfile failed: %v", err)
	}
	member, err := st.StaffByID(ctx, "EMP001")
	if err != nil {
		t.Fatalf("StaffByID failed: %v", err)
	}
	if member.Name != "Ana A. Alvarez" || member.Department != "Ops" || member.EmployeeID != "E-1001" {
		t.Fatalf("profile not updated: %#v", member)
	}

	// The embedding survives a profile-only update.
	embeddings, err := st.StaffEmbeddings(ctx)
	if err != nil {
		t.Fatalf("StaffEmbeddings failed: %v", err)
	}
	if len(embeddings) != 1 || embeddings[0].StaffID != "EMP001" {
		t.Fatalf("unexpected embeddings after profile update: %#v", embeddings)
	}

	if err := st.UpdateStaffProfile(ctx, "EMP404", "Ghost", "", ""); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not-found updating missing staff, got %v", err)
	}
}

func TestStaffEmbeddingsSkipCorruptBlobs(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.SeedStaff(t, st, "EMP001", "Good Vector", []float32{1, 0, 0})
	testsupport.SeedStaff(t, st, "EMP002", "Bad Vector", []float32{0, 1, 0})

	// Corrupt the second embedding behind the codec's back.
	raw, err := store.OpenPath(cfg.DatabasePath())
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	if err := raw.CorruptEmbeddingForTest(ctx, "EMP002"); err != nil {
		t.Fatalf("corrupt embedding: %v", err)
	}
	raw.Close()

	embeddings, err := st.StaffEmbeddings(ctx)
	if err != nil {
		t.Fatalf("StaffEmbeddings failed: %v", err)
	}
	if len(embeddings) != 1 || embeddings[0].StaffID != "EMP001" {
		t.Fatalf("expected only the intact embedding, got %#v", embeddings)
	}
}

func TestRecordCheckInInsertsAndOverwrites(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	testsupport.SeedStaff(t, st, "EMP042", "Dana Reyes", nil)

	first := store.CheckIn{
		StaffID: "EMP042", Date: "2026-03-02", Time: "09:10:00",
		Status: schedule.StatusLate, LateMinutes: 10, Confidence: 0.82,
	}
	res, err := st.RecordCheckIn(ctx, first)
	if err != nil {
		t.Fatalf("RecordCheckIn failed: %v", err)
	}
	if res.AlreadyRecorded {
		t.Fatal("first check-in should not report an existing row")
	}
	if res.TotalVisits != 1 {
		t.Fatalf("expected 1 visit, got %d", res.TotalVisits)
	}

	second := first
	second.Time = "09:15:00"
	second.LateMinutes = 15
	res, err = st.RecordCheckIn(ctx, second)
	if err != nil {
		t.Fatalf("second RecordCheckIn failed: %v", err)
	}
	if !res.AlreadyRecorded {
		t.Fatal("second check-in should report the existing row")
	}
	if res.TotalVisits != 1 {
		t.Fatalf("re-check-in must not add a visit, got %d", res.TotalVisits)
	}

	days, events, err := st.AttendanceForDate(ctx, "2026-03-02")
	if err != nil {
		t.Fatalf("AttendanceForDate failed: %v", err)
	}
	if len(days) != 1 {
		t.Fatalf("expected one summary row, got %d", len(days))
	}
	if days[0].CheckInTime != "09:15:00" {
		t.Fatalf("re-check-in should overwrite the time, got %s", days[0].CheckInTime)
	}
	if days[0].StaffName != "Dana Reyes" {
		t.Fatalf("expected joined staff name, got %q", days[0].StaffName)
	}
	if len(events) != 2 {
		t.Fatalf("every accepted check-in appends an event, got %d", len(events))
	}
	if events[0].CheckTime != "09:15:00" || events[0].LateMinutes != 15 {
		t.Fatalf("unexpected newest event: %#v", events[0])
	}
}

func TestRecordCheckOutComputesHours(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	testsupport.SeedStaff(t, st, "EMP042", "Dana Reyes", nil)

	if _, err := st.RecordCheckIn(ctx, store.CheckIn{
		StaffID: "EMP042", Date: "2026-03-02", Time: "09:00:00",
		Status: schedule.StatusOnTime, Confidence: 0.9,
	}); err != nil {
		t.Fatalf("RecordCheckIn failed: %v", err)
	}

	res, err := st.RecordCheckOut(ctx, "EMP042", "2026-03-02", "17:30:00", 0.88)
	if err != nil {
		t.Fatalf("RecordCheckOut failed: %v", err)
	}
	if !res.AlreadyRecorded {
		t.Fatal("check-out should have found the existing row")
	}

	days, _, err := st.AttendanceForDate(ctx, "2026-03-02")
	if err != nil {
		t.Fatalf("AttendanceForDate failed: %v", err)
	}
	if len(days) != 1 {
		t.Fatalf("expected one row, got %d", len(days))
	}
	if math.Abs(days[0].HoursWorked-8.5) > 1e-6 {
		t.Fatalf("expected 8.5 hours, got %f", days[0].HoursWorked)
	}
	if days[0].CheckOutTime != "17:30:00" {
		t.Fatalf("unexpected check-out time: %s", days[0].CheckOutTime)
	}
}

func TestRecordCheckOutWithoutCheckInInsertsMinimalRow(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	testsupport.SeedStaff(t, st, "EMP007", "Lee Shaw", nil)

	res, err := st.RecordCheckOut(ctx, "EMP007", "2026-03-02", "18:00:00", 0.75)
	if err != nil {
		t.Fatalf("RecordCheckOut failed: %v", err)
	}
	if res.AlreadyRecorded {
		t.Fatal("no prior row should exist")
	}

	days, _, err := st.AttendanceForDate(ctx, "2026-03-02")
	if err != nil {
		t.Fatalf("AttendanceForDate failed: %v", err)
	}
	if len(days) != 1 {
		t.Fatalf("expected one row, got %d", len(days))
	}
	day := days[0]
	if day.CheckInTime != "" || day.CheckOutTime != "18:00:00" {
		t.Fatalf("unexpected times: in=%q out=%q", day.CheckInTime, day.CheckOutTime)
	}
	if day.Status != schedule.StatusPresent {
		t.Fatalf("minimal row should default to Present, got %s", day.Status)
	}
	if day.HoursWorked != 0 {
		t.Fatalf("hours should be zero without a check-in, got %f", day.HoursWorked)
	}
}

func TestLastCheckinWithinWindow(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	testsupport.SeedStaff(t, st, "EMP042", "Dana Reyes", nil)

	if _, err := st.RecordCheckIn(ctx, store.CheckIn{
		StaffID: "EMP042", Date: "2026-03-02", Time: "09:10:00",
		Status: schedule.StatusLate, LateMinutes: 10, Confidence: 0.8,
	}); err != nil {
		t.Fatalf("RecordCheckIn failed: %v", err)
	}

	at := time.Date(2026, 3, 2, 9, 13, 0, 0, time.Local)
	within, err := st.LastCheckinWithin(ctx, "EMP042", "2026-03-02", at, 5*time.Minute)
	if err != nil {
		t.Fatalf("LastCheckinWithin failed: %v", err)
	}
	if !within {
		t.Fatal("expected a check-in within the window")
	}

	later := time.Date(2026, 3, 2, 9, 30, 0, 0, time.Local)
	within, err = st.LastCheckinWithin(ctx, "EMP042", "2026-03-02", later, 5*time.Minute)
	if err != nil {
		t.Fatalf("LastCheckinWithin failed: %v", err)
	}
	if within {
		t.Fatal("expected no check-in within the window")
	}
}

func TestSaveUnknownEntryUpsertSemantics(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	face := vision.NewRect(40, 30, 80, 90)
	entry := &store.UnknownEntry{
		TrackID:        "17",
		EntryType:      store.EntryUnknownPerson,
		Date:           "2026-03-02",
		Time:           "10:15:00",
		DetectionTime:  time.Date(2026, 3, 2, 10, 15, 0, 0, time.UTC),
		Image:          testsupport.JPEGBytes(t, 64, 128),
		FaceBBox:       &face,
		FaceDetected:   true,
		FaceConfidence: 0.72,
		Reason:         "face detected, no match found",
		Mode:           "checkin",
	}

	id, updated, err := st.SaveUnknownEntry(ctx, entry)
	if err != nil {
		t.Fatalf("SaveUnknownEntry failed: %v", err)
	}
	if updated || id == 0 {
		t.Fatalf("first save should insert, got id=%d updated=%v", id, updated)
	}

	// Same track and date while unprocessed refreshes the row in place.
	entry2 := *entry
	entry2.Time = "10:16:30"
	entry2.Image = testsupport.JPEGBytes(t, 64, 128)
	id2, updated, err := st.SaveUnknownEntry(ctx, &entry2)
	if err != nil {
		t.Fatalf("second SaveUnknownEntry failed: %v", err)
	}
	if !updated || id2 != id {
		t.Fatalf("expected in-place update of row %d, got id=%d updated=%v", id, id2, updated)
	}

	entries, err := st.UnknownEntries(ctx, store.UnknownQuery{Date: "2026-03-02"})
	if err != nil {
		t.Fatalf("UnknownEntries failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(entries))
	}
	got := entries[0]
	if got.Time != "10:16:30" {
		t.Fatalf("expected refreshed time, got %s", got.Time)
	}
	if got.FaceBBox == nil || *got.FaceBBox != face {
		t.Fatalf("face bbox did not round trip: %#v", got.FaceBBox)
	}
	if len(got.Image) != 0 {
		t.Fatal("listing queries must not load image payloads")
	}

	// Once processed, the next sighting creates a new row.
	if err := st.MarkUnknownProcessed(ctx, id); err != nil {
		t.Fatalf("MarkUnknownProcessed failed: %v", err)
	}
	entry3 := *entry
	entry3.Time = "10:40:00"
	id3, updated, err := st.SaveUnknownEntry(ctx, &entry3)
	if err != nil {
		t.Fatalf("third SaveUnknownEntry failed: %v", err)
	}
	if updated || id3 == id {
		t.Fatalf("processed rows must not be refreshed, got id=%d updated=%v", id3, updated)
	}

	all, err := st.UnknownEntries(ctx, store.UnknownQuery{Date: "2026-03-02"})
	if err != nil {
		t.Fatalf("UnknownEntries failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected two rows after processing, got %d", len(all))
	}

	unprocessed, err := st.UnknownEntries(ctx, store.UnknownQuery{Date: "2026-03-02", OnlyUnprocessed: true})
	if err != nil {
		t.Fatalf("UnknownEntries unprocessed failed: %v", err)
	}
	if len(unprocessed) != 1 || unprocessed[0].ID != id3 {
		t.Fatalf("unexpected unprocessed rows: %#v", unprocessed)
	}
}

func TestUnknownEntryImageAndDelete(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	payload := testsupport.JPEGBytes(t, 48, 96)
	entry := &store.UnknownEntry{
		TrackID:       "9",
		EntryType:     store.EntryNoFace,
		Date:          "2026-03-02",
		Time:          "11:00:00",
		DetectionTime: time.Now(),
		Image:         payload,
		Reason:        "no face detected",
		Mode:          "checkin",
	}
	id, _, err := st.SaveUnknownEntry(ctx, entry)
	if err != nil {
		t.Fatalf("SaveUnknownEntry failed: %v", err)
	}

	stored, err := st.UnknownEntryImage(ctx, id)
	if err != nil {
		t.Fatalf("UnknownEntryImage failed: %v", err)
	}
	if len(stored) != len(payload) {
		t.Fatalf("image payload mismatch: %d != %d bytes", len(stored), len(payload))
	}

	if err := st.DeleteUnknownEntry(ctx, id); err != nil {
		t.Fatalf("DeleteUnknownEntry failed: %v", err)
	}
	if _, err := st.UnknownEntryImage(ctx, id); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not-found after delete, got %v", err)
	}
	if err := st.DeleteUnknownEntry(ctx, id); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not-found for second delete, got %v", err)
	}
}

func TestPurgeProcessedBefore(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	mk := func(track, date string) int64 {
		t.Helper()
		id, _, err := st.SaveUnknownEntry(ctx, &store.UnknownEntry{
			TrackID:       track,
			EntryType:     store.EntryUnknownPerson,
			Date:          date,
			Time:          "09:00:00",
			DetectionTime: time.Now(),
			Image:         testsupport.JPEGBytes(t, 32, 64),
			Mode:          "checkin",
		})
		if err != nil {
			t.Fatalf("SaveUnknownEntry failed: %v", err)
		}
		return id
	}

	oldProcessed := mk("1", "2026-02-01")
	oldOpen := mk("2", "2026-02-01")
	recent := mk("3", "2026-03-01")
	if err := st.MarkUnknownProcessed(ctx, oldProcessed); err != nil {
		t.Fatalf("MarkUnknownProcessed failed: %v", err)
	}
	if err := st.MarkUnknownProcessed(ctx, recent); err != nil {
		t.Fatalf("MarkUnknownProcessed failed: %v", err)
	}

	purged, err := st.PurgeProcessedBefore(ctx, "2026-02-15")
	if err != nil {
		t.Fatalf("PurgeProcessedBefore failed: %v", err)
	}
	if purged != 1 {
		t.Fatalf("expected 1 purged row, got %d", purged)
	}
	if entry, err := st.UnknownEntryByID(ctx, oldOpen); err != nil || entry == nil {
		t.Fatalf("unprocessed row must survive purge: %v %#v", err, entry)
	}
	if entry, err := st.UnknownEntryByID(ctx, recent); err != nil || entry == nil {
		t.Fatalf("recent processed row must survive purge: %v %#v", err, entry)
	}
}

func TestStatsForDate(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.SeedStaff(t, st, "EMP001", "Ana Ortiz", nil)
	testsupport.SeedStaff(t, st, "EMP002", "Ben Kim", nil)
	testsupport.SeedStaff(t, st, "EMP003", "Caro Voss", nil)

	date := "2026-03-02"
	if _, err := st.RecordCheckIn(ctx, store.CheckIn{
		StaffID: "EMP001", Date: date, Time: "08:55:00",
		Status: schedule.StatusOnTime, Confidence: 0.9,
	}); err != nil {
		t.Fatalf("RecordCheckIn failed: %v", err)
	}
	if _, err := st.RecordCheckIn(ctx, store.CheckIn{
		StaffID: "EMP002", Date: date, Time: "09:12:00",
		Status: schedule.StatusLate, LateMinutes: 12, Confidence: 0.85,
	}); err != nil {
		t.Fatalf("RecordCheckIn failed: %v", err)
	}
	if _, err := st.RecordCheckOut(ctx, "EMP001", date, "17:00:00", 0.9); err != nil {
		t.Fatalf("RecordCheckOut failed: %v", err)
	}
	if _, _, err := st.SaveUnknownEntry(ctx, &store.UnknownEntry{
		TrackID: "44", EntryType: store.EntryCoveredFace, Date: date,
		Time: "10:00:00", DetectionTime: time.Now(),
		Image: testsupport.JPEGBytes(t, 32, 64), Mode: "checkin",
	}); err != nil {
		t.Fatalf("SaveUnknownEntry failed: %v", err)
	}

	stats, err := st.StatsForDate(ctx, date)
	if err != nil {
		t.Fatalf("StatsForDate failed: %v", err)
	}
	if stats.StaffTotal != 3 {
		t.Fatalf("expected 3 staff, got %d", stats.StaffTotal)
	}
	if stats.CheckedIn != 2 || stats.CheckedOut != 1 {
		t.Fatalf("unexpected in/out counts: %+v", stats)
	}
	if stats.OnTime != 1 || stats.Late != 1 {
		t.Fatalf("unexpected status counts: %+v", stats)
	}
	if stats.Unknowns != 1 || stats.Unprocessed != 1 {
		t.Fatalf("unexpected unknown counts: %+v", stats)
	}

	unknownStats, err := st.UnknownStatsForDate(ctx, date)
	if err != nil {
		t.Fatalf("UnknownStatsForDate failed: %v", err)
	}
	if unknownStats.ByType[store.EntryCoveredFace] != 1 {
		t.Fatalf("unexpected unknown stats: %+v", unknownStats)
	}
}

func TestCheckHealth(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	health, err := st.CheckHealth(context.Background())
	if err != nil {
		t.Fatalf("CheckHealth failed: %v", err)
	}
	if !health.DatabaseExists || !health.DatabaseReadable {
		t.Fatalf("expected readable database: %+v", health)
	}
	if len(health.MissingTables) != 0 {
		t.Fatalf("expected no missing tables, got %v", health.MissingTables)
	}
	if !health.IntegrityCheck {
		t.Fatal("expected integrity check to pass")
	}
	if health.SchemaVersion == "" {
		t.Fatal("expected a schema version")
	}
}
