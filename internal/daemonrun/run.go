// Package daemonrun assembles and runs the turnstiled process: logging,
// store, engine, control socket, web API, and maintenance schedules.
package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"turnstile/internal/api"
	"turnstile/internal/config"
	"turnstile/internal/daemon"
	"turnstile/internal/engine"
	"turnstile/internal/ipc"
	"turnstile/internal/logging"
	"turnstile/internal/preflight"
	"turnstile/internal/schedule"
	"turnstile/internal/store"
	"turnstile/internal/web"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the turnstile daemon runtime loop and blocks until the process
// receives SIGINT or SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	startedAt := time.Now().UTC()
	runID := uuid.NewString()
	stamp := startedAt.Format("20060102T150405")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("turnstiled-%s.log", stamp))
	eventsPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("turnstiled-%s.events", stamp))

	logHub := logging.NewStreamHub(4096)
	eventArchive, archiveErr := logging.NewEventArchive(eventsPath)
	if archiveErr != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to initialize event archive: %v\n", archiveErr)
	} else if eventArchive != nil {
		logHub.AddSink(eventArchive)
		defer eventArchive.Close()
	}

	level := strings.TrimSpace(opts.LogLevel)
	if level == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:            level,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", logPath},
		ErrorOutputPaths: []string{"stderr", logPath},
		Development:      opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logger = slog.New(logging.NewStreamHandler(logger.Handler(), logHub))

	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update turnstiled.log link: %v\n", err)
	}
	cleanupLogs(logger, cfg, logPath, eventsPath)

	pidPath := filepath.Join(cfg.Paths.LogDir, "turnstiled.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	logger.Info("turnstile daemon starting",
		logging.String(logging.FieldEventType, "daemon_starting"),
		logging.String("run_id", runID),
		logging.String(logging.FieldMode, cfg.Engine.Mode),
		logging.String("socket", cfg.SocketPath()))
	logPreflight(logger, preflight.RunAll(signalCtx, cfg))

	st, err := store.Open(cfg)
	if err != nil {
		logger.Error("open attendance store", logging.Error(err))
		return err
	}
	defer st.Close()

	eng, err := engine.New(cfg, st, logger)
	if err != nil {
		return fmt.Errorf("create engine: %w", err)
	}

	info := api.DaemonInfo{PID: os.Getpid(), RunID: runID, StartedAt: startedAt}
	d, err := daemon.New(cfg, st, logger, eng, info)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	ipcServer, err := ipc.NewServer(signalCtx, cfg.SocketPath(), d, logger)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	if strings.TrimSpace(cfg.Web.Bind) != "" {
		webServer, err := web.NewServer(cfg, st, logger,
			web.WithEngine(eng),
			web.WithDaemonInfo(info),
			web.WithEventStream(logHub, eventArchive))
		if err != nil {
			return fmt.Errorf("create web server: %w", err)
		}
		go func() {
			if err := webServer.Start(); err != nil {
				logging.ErrorWithContext(logger, "web server failed", "web_server_failed",
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "check the web.bind address is free"),
					logging.String(logging.FieldImpact, "admin API and dashboard are unavailable"))
			}
		}()
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			if err := webServer.Shutdown(shutdownCtx); err != nil {
				logger.Warn("web server shutdown", logging.Error(err))
			}
		}()
	} else {
		logger.Info("web server disabled, no bind address configured")
	}

	runner := newMaintenanceRunner(cfg, logger, st, eng, logPath, eventsPath)
	runner.Start(signalCtx)
	defer runner.Stop()

	if err := d.Start(signalCtx); err != nil {
		logging.WarnWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "another instance may hold the lock; check camera and database access"),
			logging.String(logging.FieldImpact, "attendance capture is not running"))
	}

	<-signalCtx.Done()
	logger.Info("turnstile daemon shutting down")
	return nil
}

// newMaintenanceRunner registers the recurring housekeeping tasks: the
// midnight attendance rollover, log retention, and the processed
// unknown-entry purge.
func newMaintenanceRunner(cfg *config.Config, logger *slog.Logger, st *store.Store, eng *engine.Engine, logPath, eventsPath string) *schedule.Runner {
	runner := schedule.NewRunner(logger)

	runner.Daily("attendance rollover", 0, func(context.Context) error {
		eng.ResetDay()
		logger.Info("daily attendance state reset",
			logging.String(logging.FieldEventType, "attendance_rollover"))
		return nil
	})

	if cfg.Logging.RetentionDays > 0 {
		runner.Daily("log retention", 30*time.Minute, func(context.Context) error {
			cleanupLogs(logger, cfg, logPath, eventsPath)
			return nil
		})
	}

	if days := cfg.Maintenance.PurgeProcessedAfterDays; days > 0 {
		runner.Daily("unknown entry purge", time.Hour, func(taskCtx context.Context) error {
			cutoff := time.Now().AddDate(0, 0, -days).Format(schedule.DateLayout)
			removed, err := st.PurgeProcessedBefore(taskCtx, cutoff)
			if err != nil {
				return err
			}
			if removed > 0 {
				logger.Info("purged processed unknown entries",
					logging.Int64("removed", removed),
					logging.String("cutoff", cutoff))
			}
			return nil
		})
	}

	return runner
}

func cleanupLogs(logger *slog.Logger, cfg *config.Config, logPath, eventsPath string) {
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "turnstiled-*.log", Exclude: []string{logPath}},
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "turnstiled-*.events", Exclude: []string{eventsPath}},
	)
}

func logPreflight(logger *slog.Logger, results []preflight.Result) {
	for _, result := range results {
		if result.Passed {
			logger.Info("preflight check passed",
				logging.String(logging.FieldEventType, "preflight_check"),
				logging.String("check", result.Name),
				logging.String("detail", result.Detail))
			continue
		}
		logging.WarnWithContext(logger, "preflight check failed", "preflight_check_failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
			logging.String(logging.FieldImpact, "a dependency may be unavailable at capture time"))
	}
}

// ensureCurrentLogPointer keeps LogDir/turnstiled.log pointing at the
// current run's log file so tail tooling has a stable path.
func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "turnstiled.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
