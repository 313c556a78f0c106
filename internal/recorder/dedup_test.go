package recorder_test

import (
	"testing"
	"time"

	"turnstile/internal/recorder"
)

func TestTrackGateInterval(t *testing.T) {
	cache := recorder.NewDedupCache(5*time.Minute, 0.7, 2*time.Second)
	base := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)

	if cache.TrackBlocked("7", "2025-06-02", base) {
		t.Fatal("first write blocked")
	}
	if !cache.TrackBlocked("7", "2025-06-02", base.Add(time.Second)) {
		t.Fatal("rapid repeat not blocked")
	}
	if cache.TrackBlocked("7", "2025-06-02", base.Add(3*time.Second)) {
		t.Fatal("write after interval blocked")
	}
	if cache.TrackBlocked("8", "2025-06-02", base.Add(3*time.Second)) {
		t.Fatal("unrelated track blocked")
	}
}

func TestTrackGateResetsAcrossDays(t *testing.T) {
	cache := recorder.NewDedupCache(5*time.Minute, 0.7, time.Hour)
	base := time.Date(2025, 6, 2, 23, 59, 30, 0, time.UTC)

	if cache.TrackBlocked("7", "2025-06-02", base) {
		t.Fatal("first write blocked")
	}
	if cache.TrackBlocked("7", "2025-06-03", base.Add(time.Minute)) {
		t.Fatal("new day treated as same capture")
	}
}

func TestSimilarSeenAcrossTracks(t *testing.T) {
	cache := recorder.NewDedupCache(5*time.Minute, 0.7, 2*time.Second)
	base := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)

	if cache.SimilarSeen([]float32{1, 0}, "a", base) {
		t.Fatal("first embedding reported as seen")
	}
	if !cache.SimilarSeen([]float32{1, 0}, "b", base.Add(time.Minute)) {
		t.Fatal("fragmented duplicate not suppressed")
	}
	if cache.SimilarSeen([]float32{0, 1}, "c", base.Add(time.Minute)) {
		t.Fatal("dissimilar embedding suppressed")
	}
	if cache.Len() != 2 {
		t.Fatalf("cache size = %d, want 2, suppressed duplicates must not cache", cache.Len())
	}
}

func TestSimilarSeenSameTrackRecapture(t *testing.T) {
	cache := recorder.NewDedupCache(5*time.Minute, 0.7, 2*time.Second)
	base := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)

	cache.SimilarSeen([]float32{1, 0}, "a", base)
	if cache.SimilarSeen([]float32{1, 0}, "a", base.Add(2*time.Second)) {
		t.Fatal("periodic re-capture of the same track suppressed")
	}
	if cache.Len() != 1 {
		t.Fatalf("cache size = %d, want refreshed single entry", cache.Len())
	}

	// The refresh keeps the entry alive past the original window.
	if !cache.SimilarSeen([]float32{1, 0}, "z", base.Add(5*time.Minute+time.Second)) {
		t.Fatal("refreshed entry expired from the original anchor")
	}
}

func TestSimilarSeenEvictsExpired(t *testing.T) {
	cache := recorder.NewDedupCache(5*time.Minute, 0.7, 2*time.Second)
	base := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)

	cache.SimilarSeen([]float32{1, 0}, "a", base)
	if cache.SimilarSeen([]float32{1, 0}, "b", base.Add(6*time.Minute)) {
		t.Fatal("expired entry still suppressing")
	}
	if cache.Len() != 1 {
		t.Fatalf("cache size = %d, want expired entry evicted and new one cached", cache.Len())
	}
}

func TestSimilarSeenIgnoresEmptyVector(t *testing.T) {
	cache := recorder.NewDedupCache(5*time.Minute, 0.7, 2*time.Second)
	if cache.SimilarSeen(nil, "a", time.Now()) {
		t.Fatal("empty vector reported as seen")
	}
	if cache.Len() != 0 {
		t.Fatal("empty vector was cached")
	}
}
