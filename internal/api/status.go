package api

import (
	"os"
	"time"

	"turnstile/internal/config"
	"turnstile/internal/engine"
)

// DaemonInfo carries process metadata the status payload reports.
type DaemonInfo struct {
	PID       int
	RunID     string
	StartedAt time.Time
}

// BuildDaemonStatus assembles the daemon status payload from config, engine
// state, and process metadata.
func BuildDaemonStatus(cfg *config.Config, status engine.Status, info DaemonInfo) DaemonStatus {
	if info.PID == 0 {
		info.PID = os.Getpid()
	}
	return DaemonStatus{
		Running:      status.Running,
		PID:          info.PID,
		RunID:        info.RunID,
		StartedAt:    formatTime(info.StartedAt),
		DatabasePath: cfg.DatabasePath(),
		SocketPath:   cfg.SocketPath(),
		Engine:       FromEngineStatus(status),
	}
}
