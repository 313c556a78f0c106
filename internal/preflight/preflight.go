package preflight

import (
	"context"
	"strings"

	"turnstile/internal/config"
)

// minFreeDiskBytes is the least free space the data filesystem needs for
// capture snapshots and database growth before the check fails.
const minFreeDiskBytes = 256 << 20

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
// The camera check only runs when a capture device is configured.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result

	results = append(results, CheckDirectoryAccess("Data directory", cfg.Paths.DataDir))
	results = append(results, CheckDirectoryAccess("Log directory", cfg.Paths.LogDir))
	results = append(results, CheckDatabase(cfg.DatabasePath()))
	results = append(results, CheckDiskSpace("Disk space", cfg.Paths.DataDir, minFreeDiskBytes))
	results = append(results, CheckFaceEngine(ctx, cfg.Recognition.FaceEngineURL))

	if device := strings.TrimSpace(cfg.Camera.Device); device != "" {
		results = append(results, CheckCameraDevice(device))
	}

	return results
}
