package engine

import (
	"time"

	"turnstile/internal/tracking"
)

// Status is a point-in-time summary of engine health for the status
// surfaces.
type Status struct {
	Running      bool
	Mode         string
	LastFrameAt  time.Time
	LastError    string
	Tracks       tracking.Stats
	ActiveTracks []tracking.Snapshot
	RecentEvents []Event
}

// Status reports the current engine state.
func (e *Engine) Status() Status {
	e.mu.RLock()
	running := e.running
	lastErr := e.lastErr
	lastFrame := e.lastFrame
	recent := make([]Event, len(e.recent))
	copy(recent, e.recent)
	e.mu.RUnlock()

	status := Status{
		Running:      running,
		Mode:         e.cfg.Engine.Mode,
		LastFrameAt:  lastFrame,
		Tracks:       e.registry.Stats(),
		ActiveTracks: e.registry.ActiveTracks(),
		RecentEvents: recent,
	}
	if lastErr != nil {
		status.LastError = lastErr.Error()
	}
	return status
}

func (e *Engine) setLastError(err error) {
	e.mu.Lock()
	e.lastErr = err
	e.mu.Unlock()
}

func (e *Engine) markFrame(at time.Time) {
	e.mu.Lock()
	e.lastFrame = at
	e.mu.Unlock()
}
