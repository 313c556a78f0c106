// Package engine runs the frame-processing loop: pull a frame, detect and
// identify faces, feed the track registry, and route its decisions to the
// attendance and unknown recorders. A per-frame failure never aborts the
// loop; errors are logged, counted, and the next frame is processed.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"turnstile/internal/config"
	"turnstile/internal/faceclient"
	"turnstile/internal/logging"
	"turnstile/internal/metrics"
	"turnstile/internal/motion"
	"turnstile/internal/notifications"
	"turnstile/internal/recorder"
	"turnstile/internal/store"
	"turnstile/internal/tracking"
	"turnstile/internal/vision"
)

// FrameSource supplies camera frames. The production source wraps the face
// engine's frame feed; tests script their own.
type FrameSource interface {
	Next(ctx context.Context) (vision.Frame, error)
}

// FaceClient is the slice of the recognition sidecar the primary path uses.
type FaceClient interface {
	Detect(ctx context.Context, jpegFrame []byte) ([]faceclient.Face, error)
	UpdateTracks(ctx context.Context, jpegFrame []byte, boxes []vision.Rect) ([]faceclient.Track, error)
	Identify(ctx context.Context, embedding []float32) (vision.Identity, error)
}

// AttendanceRecorder writes staff captures.
type AttendanceRecorder interface {
	Record(ctx context.Context, staffID string, at time.Time, confidence float64) (recorder.AttendanceResult, error)
	ResetDebounce()
}

// UnknownRecorder writes unknown sightings.
type UnknownRecorder interface {
	Record(ctx context.Context, capture recorder.Capture) (recorder.UnknownResult, error)
}

// Engine owns the frame loop and the push side of the attendance-changed
// interface.
type Engine struct {
	cfg    *config.Config
	logger *slog.Logger

	source     FrameSource
	faces      FaceClient
	registry   *tracking.Registry
	attendance AttendanceRecorder
	unknown    UnknownRecorder
	motion     *motion.Fallback
	notifier   notifications.Service
	metrics    *metrics.Set

	frameSkip int
	minGap    time.Duration
	retryWait time.Duration
	quality   int

	events   chan Event
	notifyCh chan Event

	mu        sync.RWMutex
	running   bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	lastErr   error
	lastFrame time.Time
	recent    []Event
}

// Option overrides an engine collaborator, mainly for tests.
type Option func(*Engine)

// WithFrameSource replaces the production camera source.
func WithFrameSource(source FrameSource) Option {
	return func(e *Engine) { e.source = source }
}

// WithFaceClient replaces the sidecar client.
func WithFaceClient(client FaceClient) Option {
	return func(e *Engine) { e.faces = client }
}

// WithNotifier replaces the webhook notifier.
func WithNotifier(notifier notifications.Service) Option {
	return func(e *Engine) { e.notifier = notifier }
}

// WithMetrics replaces the collector set.
func WithMetrics(set *metrics.Set) Option {
	return func(e *Engine) { e.metrics = set }
}

// WithMotion replaces the motion fallback worker.
func WithMotion(fallback *motion.Fallback) Option {
	return func(e *Engine) { e.motion = fallback }
}

// New constructs the engine and its default collaborators from config.
func New(cfg *config.Config, st *store.Store, logger *slog.Logger, opts ...Option) (*Engine, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	attendance, err := recorder.NewAttendance(cfg, st, logger)
	if err != nil {
		return nil, err
	}

	eventBuffer := cfg.Engine.EventBuffer
	if eventBuffer <= 0 {
		eventBuffer = 16
	}

	e := &Engine{
		cfg:        cfg,
		logger:     logging.NewComponentLogger(logger, "engine"),
		registry:   tracking.NewRegistry(cfg, logger),
		attendance: attendance,
		unknown:    recorder.NewUnknown(cfg, st, logger),
		notifier:   notifications.NewService(cfg),
		metrics:    metrics.NewSet(),
		frameSkip:  cfg.Engine.FrameSkip,
		minGap:     time.Duration(cfg.Engine.MinDetectionGapMillis) * time.Millisecond,
		retryWait:  time.Duration(cfg.Engine.FrameTimeoutMillis) * time.Millisecond,
		quality:    cfg.Engine.CaptureJPEGQuality,
		events:     make(chan Event, eventBuffer),
		notifyCh:   make(chan Event, eventBuffer),
	}
	if e.retryWait <= 0 {
		e.retryWait = 500 * time.Millisecond
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.source == nil || e.faces == nil {
		client := faceclient.New(cfg)
		if e.faces == nil {
			e.faces = client
		}
		if e.source == nil {
			e.source = NewCameraSource(cfg, client)
		}
	}
	if cfg.Motion.Enabled && e.motion == nil {
		// The motion path needs region re-detection, which injected test
		// clients usually do not provide; it stays off for those.
		if mfc, ok := e.faces.(motion.FaceClient); ok {
			e.motion = motion.NewFallback(cfg, motion.NewDetector(cfg), mfc, e.unknown, logger)
		}
	}
	return e, nil
}

// Start begins frame processing.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return errors.New("engine already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.running = true
	e.wg.Add(2)
	e.mu.Unlock()

	if e.motion != nil {
		e.motion.Start(runCtx)
	}
	go e.run(runCtx)
	go e.notifyLoop(runCtx)
	return nil
}

// Stop terminates frame processing and waits for completion.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	cancel := e.cancel
	e.running = false
	e.cancel = nil
	e.mu.Unlock()

	cancel()
	e.wg.Wait()
	if e.motion != nil {
		e.motion.Stop()
	}
}

// Metrics exposes the collector set so the web layer can serve it.
func (e *Engine) Metrics() *metrics.Set { return e.metrics }

// Notifier exposes the notification service for the IPC test command.
func (e *Engine) Notifier() notifications.Service { return e.notifier }

// ResetDay clears per-day capture state at the midnight rollover: track
// registry and staff debounce. Dedup caches expire on their own windows.
func (e *Engine) ResetDay() {
	e.registry.Reset()
	e.attendance.ResetDebounce()
	e.logger.Info("day rollover applied")
}
