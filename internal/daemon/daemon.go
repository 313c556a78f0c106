package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"turnstile/internal/api"
	"turnstile/internal/config"
	"turnstile/internal/engine"
	"turnstile/internal/logging"
	"turnstile/internal/schedule"
	"turnstile/internal/store"
)

// Daemon coordinates the attendance engine and enforces single-instance
// execution per host.
type Daemon struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   *store.Store
	engine  *engine.Engine
	logPath string
	info    api.DaemonInfo

	lockPath string
	lock     *flock.Flock
	camera   *cameraMonitor

	running atomic.Bool
	paused  atomic.Bool

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running       bool
	Paused        bool
	Engine        engine.Status
	Info          api.DaemonInfo
	DatabasePath  string
	SocketPath    string
	LockFilePath  string
	CameraMonitor bool
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, st *store.Store, logger *slog.Logger, eng *engine.Engine, info api.DaemonInfo) (*Daemon, error) {
	if cfg == nil || st == nil || logger == nil || eng == nil {
		return nil, errors.New("daemon requires config, store, logger, and engine")
	}
	if info.PID == 0 {
		info.PID = os.Getpid()
	}

	lockPath := filepath.Join(cfg.Paths.LogDir, "turnstiled.lock")
	d := &Daemon{
		cfg:      cfg,
		logger:   logger,
		store:    st,
		engine:   eng,
		logPath:  filepath.Join(cfg.Paths.LogDir, "turnstiled.log"),
		info:     info,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	d.camera = newCameraMonitor(cfg, logger, d.handleCameraEvent, d.running.Load)
	return d, nil
}

// Start acquires the daemon lock and launches the engine and camera monitor.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another turnstile daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.engine.Start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start engine: %w", err)
	}

	d.mu.Lock()
	d.ctx = runCtx
	d.cancel = cancel
	d.mu.Unlock()

	d.paused.Store(false)
	d.running.Store(true)
	if err := d.camera.Start(runCtx); err != nil {
		d.logger.Warn("camera hotplug monitor unavailable", logging.Error(err))
	}
	d.logger.Info("turnstile daemon started",
		logging.String(logging.FieldMode, d.cfg.Engine.Mode),
		logging.String("lock", d.lockPath))
	return nil
}

// Stop stops frame processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	d.camera.Stop()

	d.mu.Lock()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.ctx = nil
	d.mu.Unlock()

	d.engine.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.paused.Store(false)
	d.running.Store(false)
	d.logger.Info("turnstile daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// handleCameraEvent reacts to hotplug activity on the configured capture
// device: removal suspends the engine, reattachment resumes it.
func (d *Daemon) handleCameraEvent(ctx context.Context, action, device string) error {
	switch action {
	case "remove":
		return d.suspendCapture(device)
	case "add":
		return d.resumeCapture(device)
	default:
		return nil
	}
}

func (d *Daemon) suspendCapture(device string) error {
	if !d.running.Load() {
		return nil
	}
	if !d.paused.CompareAndSwap(false, true) {
		return nil
	}
	d.engine.Stop()
	logging.WarnWithContext(d.logger, "capture device removed, engine suspended", "camera_removed",
		logging.String("device", device),
		logging.String(logging.FieldErrorHint, "reattach the camera to resume capture"),
		logging.String(logging.FieldImpact, "attendance capture halted"),
	)
	return nil
}

func (d *Daemon) resumeCapture(device string) error {
	if !d.running.Load() || !d.paused.Load() {
		return nil
	}

	d.mu.Lock()
	runCtx := d.ctx
	d.mu.Unlock()
	if runCtx == nil {
		return nil
	}

	if err := d.engine.Start(runCtx); err != nil {
		return fmt.Errorf("resume engine: %w", err)
	}
	d.paused.Store(false)
	d.logger.Info("capture device reattached, engine resumed",
		logging.String("device", device),
		logging.String(logging.FieldEventType, "camera_reattached"),
	)
	return nil
}

// AttendanceToday returns per-staff day rows and raw events for a date.
// An empty date defaults to the current day.
func (d *Daemon) AttendanceToday(ctx context.Context, date string) ([]store.AttendanceDay, []store.CheckinEvent, error) {
	if d.store == nil {
		return nil, nil, errors.New("attendance store unavailable")
	}
	date = strings.TrimSpace(date)
	if date == "" {
		date = time.Now().Format(schedule.DateLayout)
	} else if _, err := time.Parse(schedule.DateLayout, date); err != nil {
		return nil, nil, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", date)
	}
	return d.store.AttendanceForDate(ctx, date)
}

// UnknownList returns unknown entries matching the query.
func (d *Daemon) UnknownList(ctx context.Context, query store.UnknownQuery) ([]store.UnknownEntry, error) {
	if d.store == nil {
		return nil, errors.New("attendance store unavailable")
	}
	return d.store.UnknownEntries(ctx, query)
}

// UnknownEntry returns a single unknown entry, or nil when the id is unknown.
func (d *Daemon) UnknownEntry(ctx context.Context, id int64) (*store.UnknownEntry, error) {
	if d.store == nil {
		return nil, errors.New("attendance store unavailable")
	}
	return d.store.UnknownEntryByID(ctx, id)
}

// DatabaseHealth returns detailed database diagnostics.
func (d *Daemon) DatabaseHealth(ctx context.Context) (store.DatabaseHealth, error) {
	if d.store == nil {
		return store.DatabaseHealth{}, errors.New("attendance store unavailable")
	}
	return d.store.CheckHealth(ctx)
}

// TestNotification triggers a test notification using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if d.cfg == nil {
		return false, "configuration unavailable", errors.New("configuration unavailable")
	}
	if strings.TrimSpace(d.cfg.Notifications.WebhookURL) == "" {
		return false, "webhook url not configured", nil
	}
	if err := d.engine.Notifier().TestNotification(ctx); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}

// LogPath returns the path to the daemon log file.
func (d *Daemon) LogPath() string {
	return d.logPath
}

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	return Status{
		Running:       d.running.Load(),
		Paused:        d.paused.Load(),
		Engine:        d.engine.Status(),
		Info:          d.info,
		DatabasePath:  d.cfg.DatabasePath(),
		SocketPath:    d.cfg.SocketPath(),
		LockFilePath:  d.lockPath,
		CameraMonitor: d.camera.Running(),
	}
}
