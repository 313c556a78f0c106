// Package tracking owns the lifecycle of active person tracks. It turns the
// unstable per-frame identity stream into discrete capture decisions: one
// attendance capture per staff leave/return cycle, and rate-limited unknown
// captures per tracker id. All state is process-local and never persisted.
package tracking

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"turnstile/internal/config"
	"turnstile/internal/logging"
	"turnstile/internal/vision"
)

// State describes where a track sits in its capture lifecycle.
type State string

const (
	StateUnconfirmed     State = "unconfirmed-in-frame"
	StateConfirmedStaff  State = "confirmed-staff-in-frame"
	StateAwaitingReturn  State = "left-awaiting-return"
	StateUnknownCaptured State = "unknown-captured"
)

// KeyKind tags which identity space a track key lives in.
type KeyKind string

const (
	KeyStaff   KeyKind = "staff"
	KeyUnknown KeyKind = "unknown"
)

// Key identifies the subject a track record is bound to. Staff records
// collapse onto the resolved staff id so fragmented tracker ids cannot
// double-capture one person; unknown records stay keyed by tracker id.
type Key struct {
	Kind KeyKind
	ID   string
}

// StaffKey builds the key for a confirmed staff subject.
func StaffKey(staffID string) Key { return Key{Kind: KeyStaff, ID: staffID} }

// UnknownKey builds the key for an unconfirmed tracker id.
func UnknownKey(trackID string) Key { return Key{Kind: KeyUnknown, ID: trackID} }

func (k Key) String() string { return fmt.Sprintf("%s/%s", k.Kind, k.ID) }

// Action tells the caller what to do with the detection that produced it.
type Action string

const (
	// ActionNone means the detection carried no new business meaning.
	ActionNone Action = "none"
	// ActionRecordAttendance means a confirmed staff capture should be
	// forwarded to the attendance recorder.
	ActionRecordAttendance Action = "record-attendance"
	// ActionRecordUnknown means the detection should be forwarded to the
	// unknown entry recorder.
	ActionRecordUnknown Action = "record-unknown"
)

// Observation is one detection-to-track association for the current frame.
type Observation struct {
	TrackID  string
	Identity vision.Identity
	At       time.Time
}

// Decision is the registry's verdict for one observation.
type Decision struct {
	Action     Action
	Key        Key
	State      State
	StaffID    string
	Confidence float64
	// DisplayFor is how long a staff capture should stay on screen.
	DisplayFor time.Duration
}

// Snapshot is a read-only view of one tracked subject, for status surfaces.
type Snapshot struct {
	Key       Key       `json:"key"`
	TrackID   string    `json:"track_id"`
	State     State     `json:"state"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
	InFrame   bool      `json:"in_frame"`
	BestScore float64   `json:"best_score,omitempty"`
}

// Stats summarizes registry activity since startup.
type Stats struct {
	ActiveTracks    int    `json:"active_tracks"`
	LockedStaff     int    `json:"locked_staff"`
	StaffCaptures   uint64 `json:"staff_captures"`
	UnknownCaptures uint64 `json:"unknown_captures"`
	PrunedTracks    uint64 `json:"pruned_tracks"`
}

// A single hit this far above the staff threshold locks a track without
// waiting for confirmation frames.
const strongLockMargin = 0.15

type record struct {
	key             Key
	trackID         string
	firstSeen       time.Time
	lastSeen        time.Time
	state           State
	inFrame         bool
	captured        bool
	bestScore       float64
	candidateStaff  string
	consecutive     int
	unknownRecorded bool
	lastCapture     time.Time
}

// lockEntry pins a tracker id to a staff id. The lock outlives weak frames
// on the same track but expires with the tracker id itself.
type lockEntry struct {
	staffID  string
	lastSeen time.Time
}

// Registry is the per-process track state machine. It is safe for use from
// the frame loop and concurrent status readers.
type Registry struct {
	logger *slog.Logger

	staffThreshold   float64
	confirmFrames    int
	leaveTimeout     time.Duration
	trackTimeout     time.Duration
	unknownRecapture time.Duration
	displayHold      time.Duration

	mu      sync.Mutex
	records map[Key]*record
	locks   map[string]*lockEntry

	staffCaptures   uint64
	unknownCaptures uint64
	pruned          uint64
}

// NewRegistry builds a registry from the tracking config section.
func NewRegistry(cfg *config.Config, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = logging.NewNop()
	}
	confirm := cfg.Tracking.ConsecutiveStaffFrames
	if confirm < 1 {
		confirm = 1
	}
	return &Registry{
		logger:           logging.NewComponentLogger(logger, "tracking"),
		staffThreshold:   cfg.Recognition.StaffThreshold,
		confirmFrames:    confirm,
		leaveTimeout:     time.Duration(cfg.Tracking.LeaveTimeoutSeconds) * time.Second,
		trackTimeout:     time.Duration(cfg.Tracking.TrackTimeoutSeconds) * time.Second,
		unknownRecapture: time.Duration(cfg.Tracking.UnknownRecaptureSeconds) * time.Second,
		displayHold:      time.Duration(cfg.Tracking.DisplayHoldSeconds) * time.Second,
		records:          make(map[Key]*record),
		locks:            make(map[string]*lockEntry),
	}
}

// Observe advances the state machine with one detection and returns what the
// caller should do with it. A track locked to a staff id is never downgraded,
// no matter how weak later frames on it score.
func (r *Registry) Observe(obs Observation) Decision {
	r.mu.Lock()
	defer r.mu.Unlock()

	if obs.TrackID == "" {
		return Decision{Action: ActionNone}
	}

	if lock, locked := r.locks[obs.TrackID]; locked {
		return r.observeStaff(lock.staffID, obs)
	}

	ident := obs.Identity
	if ident.IsStaff() && ident.Confidence >= r.staffThreshold {
		return r.observeStaffCandidate(obs)
	}
	return r.observeUnknown(obs)
}

// observeStaffCandidate counts confident staff frames toward a lock. A single
// strong hit locks immediately; otherwise the same staff id must be named on
// enough consecutive frames.
func (r *Registry) observeStaffCandidate(obs Observation) Decision {
	key := UnknownKey(obs.TrackID)
	rec := r.records[key]
	if rec == nil {
		rec = &record{key: key, trackID: obs.TrackID, firstSeen: obs.At, state: StateUnconfirmed}
		r.records[key] = rec
	}

	if obs.Identity.StaffID == rec.candidateStaff {
		rec.consecutive++
	} else {
		rec.candidateStaff = obs.Identity.StaffID
		rec.consecutive = 1
	}
	if obs.Identity.Confidence > rec.bestScore {
		rec.bestScore = obs.Identity.Confidence
	}
	rec.lastSeen = obs.At
	rec.inFrame = true

	strong := obs.Identity.Confidence >= r.staffThreshold+strongLockMargin
	if !strong && rec.consecutive < r.confirmFrames {
		return Decision{Action: ActionNone, Key: key, State: rec.state}
	}

	staffID := rec.candidateStaff
	delete(r.records, key)
	r.logger.Debug("track locked to staff",
		logging.String("track_id", obs.TrackID),
		logging.String("staff_id", staffID),
		logging.Float64("confidence", obs.Identity.Confidence))
	return r.observeStaff(staffID, obs)
}

// observeStaff updates the per-staff record. Captures fire only on a return
// after a completed leave cycle; a first sighting arms nothing and emits
// nothing, so a person pausing at the frame edge cannot trigger a capture.
func (r *Registry) observeStaff(staffID string, obs Observation) Decision {
	if lock := r.locks[obs.TrackID]; lock != nil {
		lock.lastSeen = obs.At
	} else {
		r.locks[obs.TrackID] = &lockEntry{staffID: staffID, lastSeen: obs.At}
	}

	key := StaffKey(staffID)
	rec := r.records[key]
	if rec == nil {
		rec = &record{key: key, firstSeen: obs.At, state: StateConfirmedStaff}
		r.records[key] = rec
	}
	rec.trackID = obs.TrackID
	if obs.Identity.Confidence > rec.bestScore {
		rec.bestScore = obs.Identity.Confidence
	}

	// If the sweep has not run since the track went absent, complete the
	// leave transition here so a return is not mistaken for presence.
	if rec.inFrame && !rec.lastSeen.IsZero() && obs.At.Sub(rec.lastSeen) > r.leaveTimeout {
		rec.inFrame = false
		rec.captured = true
	}

	decision := Decision{Action: ActionNone, Key: key, StaffID: staffID, Confidence: rec.bestScore}
	if !rec.inFrame {
		rec.inFrame = true
		if rec.captured {
			rec.captured = false
			r.staffCaptures++
			decision.Action = ActionRecordAttendance
			decision.DisplayFor = r.displayHold
			r.logger.Info("staff capture",
				logging.String("staff_id", staffID),
				logging.String("track_id", obs.TrackID),
				logging.Float64("confidence", rec.bestScore))
		}
	}
	rec.state = StateConfirmedStaff
	rec.lastSeen = obs.At
	decision.State = rec.state
	return decision
}

// observeUnknown rate-limits unknown captures per tracker id: immediately on
// first sighting, then at the recapture interval while the track persists.
func (r *Registry) observeUnknown(obs Observation) Decision {
	key := UnknownKey(obs.TrackID)
	rec := r.records[key]
	if rec == nil {
		rec = &record{key: key, trackID: obs.TrackID, firstSeen: obs.At, state: StateUnconfirmed}
		r.records[key] = rec
	}
	rec.lastSeen = obs.At
	rec.inFrame = true
	// A weak frame resets the consecutive staff count.
	rec.candidateStaff = ""
	rec.consecutive = 0
	if obs.Identity.Confidence > rec.bestScore {
		rec.bestScore = obs.Identity.Confidence
	}

	decision := Decision{Action: ActionNone, Key: key, Confidence: obs.Identity.Confidence}
	switch {
	case !rec.unknownRecorded:
		rec.unknownRecorded = true
		rec.lastCapture = obs.At
		rec.state = StateUnknownCaptured
		r.unknownCaptures++
		decision.Action = ActionRecordUnknown
	case obs.At.Sub(rec.lastCapture) >= r.unknownRecapture:
		rec.lastCapture = obs.At
		r.unknownCaptures++
		decision.Action = ActionRecordUnknown
	}
	decision.State = rec.state
	return decision
}

// Sweep transitions absent tracks and prunes stale ones. Staff records armed
// for a return capture are kept regardless of age; pruning never emits an
// event. Returns the number of records pruned.
func (r *Registry) Sweep(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	prunedNow := 0
	for key, rec := range r.records {
		absent := now.Sub(rec.lastSeen)
		if rec.inFrame && absent > r.leaveTimeout {
			rec.inFrame = false
			rec.state = StateAwaitingReturn
			if key.Kind == KeyStaff {
				rec.captured = true
			}
		}
		if absent <= r.trackTimeout {
			continue
		}
		if key.Kind == KeyStaff && rec.captured {
			continue
		}
		delete(r.records, key)
		prunedNow++
	}
	for trackID, lock := range r.locks {
		if now.Sub(lock.lastSeen) > r.trackTimeout {
			delete(r.locks, trackID)
		}
	}
	r.pruned += uint64(prunedNow)
	return prunedNow
}

// Reset drops every track and lock. The midnight rollover calls it so armed
// return captures do not carry into a new day; lifetime counters are kept.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = make(map[Key]*record)
	r.locks = make(map[string]*lockEntry)
}

// ActiveTracks returns a snapshot of every live record, staff first.
func (r *Registry) ActiveTracks() []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Snapshot, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, Snapshot{
			Key:       rec.key,
			TrackID:   rec.trackID,
			State:     rec.state,
			FirstSeen: rec.firstSeen,
			LastSeen:  rec.lastSeen,
			InFrame:   rec.inFrame,
			BestScore: rec.bestScore,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Key.Kind != out[j].Key.Kind {
			return out[i].Key.Kind == KeyStaff
		}
		return out[i].Key.ID < out[j].Key.ID
	})
	return out
}

// Stats reports counters for the status surfaces.
func (r *Registry) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	locked := 0
	for _, rec := range r.records {
		if rec.key.Kind == KeyStaff {
			locked++
		}
	}
	return Stats{
		ActiveTracks:    len(r.records),
		LockedStaff:     locked,
		StaffCaptures:   r.staffCaptures,
		UnknownCaptures: r.unknownCaptures,
		PrunedTracks:    r.pruned,
	}
}

