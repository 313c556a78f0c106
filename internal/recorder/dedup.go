package recorder

import (
	"sync"
	"time"

	"turnstile/internal/embedding"
)

// DedupCache keeps the two short-horizon structures that stop one physical
// appearance from producing repeated unknown entries: a per-track write gate
// and a rolling window of recently captured embeddings compared by cosine
// similarity. Entries age out lazily on each check.
type DedupCache struct {
	mu        sync.Mutex
	window    time.Duration
	threshold float64
	interval  time.Duration

	embeddings []cachedEmbedding
	trackGates map[string]trackGate
}

type cachedEmbedding struct {
	vector  []float32
	trackID string
	at      time.Time
}

type trackGate struct {
	date string
	at   time.Time
}

// NewDedupCache builds a cache with the given similarity window and
// threshold and the per-track re-capture interval.
func NewDedupCache(window time.Duration, threshold float64, interval time.Duration) *DedupCache {
	return &DedupCache{
		window:     window,
		threshold:  threshold,
		interval:   interval,
		trackGates: make(map[string]trackGate),
	}
}

// TrackBlocked reports whether a write for this track id should be skipped
// because one was already accepted for the same day within the re-capture
// interval. A passing check records the write.
func (c *DedupCache) TrackBlocked(trackID, date string, now time.Time) bool {
	if trackID == "" {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.evictGates(now)
	gate, ok := c.trackGates[trackID]
	if ok && gate.date == date && now.Sub(gate.at) < c.interval {
		return true
	}
	c.trackGates[trackID] = trackGate{date: date, at: now}
	return false
}

// SimilarSeen reports whether an embedding close enough to a recently cached
// one was captured inside the window under a different track id. A match on
// the same track id is a periodic re-capture, not a fragmented duplicate, so
// it passes and refreshes its cache entry. A novel embedding is cached; a
// suppressed duplicate is not, so the window anchors on the first sighting.
func (c *DedupCache) SimilarSeen(vector []float32, trackID string, now time.Time) bool {
	if len(vector) == 0 {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	kept := c.embeddings[:0]
	seen := false
	refreshed := false
	for i := range c.embeddings {
		entry := c.embeddings[i]
		if now.Sub(entry.at) > c.window {
			continue
		}
		if embedding.Cosine(vector, entry.vector) >= c.threshold {
			if entry.trackID == trackID {
				entry.vector = vector
				entry.at = now
				refreshed = true
			} else {
				seen = true
			}
		}
		kept = append(kept, entry)
	}
	c.embeddings = kept
	if !seen && !refreshed {
		c.embeddings = append(c.embeddings, cachedEmbedding{vector: vector, trackID: trackID, at: now})
	}
	return seen
}

// Len reports how many embeddings are currently cached, for status surfaces.
func (c *DedupCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.embeddings)
}

func (c *DedupCache) evictGates(now time.Time) {
	for id, gate := range c.trackGates {
		if now.Sub(gate.at) > c.window {
			delete(c.trackGates, id)
		}
	}
}
