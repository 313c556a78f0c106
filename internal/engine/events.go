package engine

import (
	"context"
	"time"

	"turnstile/internal/logging"
)

// EventType names a kind of attendance change.
type EventType string

const (
	EventCheckIn      EventType = "check_in"
	EventCheckOut     EventType = "check_out"
	EventUnknownEntry EventType = "unknown_entry"
)

// Event is one attendance change pushed by the engine. Staff fields are set
// for check-in and check-out events, entry fields for unknown entries.
type Event struct {
	Type        EventType
	At          time.Time
	StaffID     string
	Name        string
	Status      string
	LateMinutes int
	Confidence  float64
	TotalVisits int
	EntryID     int64
	EntryType   string
	Reason      string
}

const recentEventLimit = 32

// Events exposes the push side of the engine. The channel is buffered; when
// a consumer falls behind the oldest event is dropped so the frame loop
// never blocks.
func (e *Engine) Events() <-chan Event { return e.events }

// RecentEvents returns the retained event tail, oldest first.
func (e *Engine) RecentEvents() []Event {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Event, len(e.recent))
	copy(out, e.recent)
	return out
}

func (e *Engine) emit(event Event) {
	e.mu.Lock()
	e.recent = append(e.recent, event)
	if len(e.recent) > recentEventLimit {
		e.recent = e.recent[len(e.recent)-recentEventLimit:]
	}
	e.mu.Unlock()

	e.push(e.events, event)
	e.push(e.notifyCh, event)
}

func (e *Engine) push(ch chan Event, event Event) {
	select {
	case ch <- event:
		return
	default:
	}
	select {
	case <-ch:
		e.metrics.EventsDropped.Inc()
	default:
	}
	select {
	case ch <- event:
	default:
	}
}

// notifyLoop drains emitted events into the webhook notifier so a slow
// webhook endpoint cannot stall frame processing.
func (e *Engine) notifyLoop(ctx context.Context) {
	defer e.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-e.notifyCh:
			if err := e.sendNotification(ctx, event); err != nil {
				e.metrics.NotifyFailures.Inc()
				e.logger.Warn("notification failed",
					logging.String("event_type", string(event.Type)),
					logging.Error(err))
			}
		}
	}
}

func (e *Engine) sendNotification(ctx context.Context, event Event) error {
	switch event.Type {
	case EventCheckIn:
		return e.notifier.NotifyCheckIn(ctx, event.Name, event.Status, event.LateMinutes)
	case EventCheckOut:
		return e.notifier.NotifyCheckOut(ctx, event.Name)
	case EventUnknownEntry:
		return e.notifier.NotifyUnknownEntry(ctx, event.EntryType, event.Reason, event.EntryID)
	}
	return nil
}
