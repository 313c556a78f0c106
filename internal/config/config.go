package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DataDir string `toml:"data_dir"`
	LogDir  string `toml:"log_dir"`
}

// Engine contains frame-loop settings.
type Engine struct {
	// Mode selects which attendance action this process records:
	// "checkin" or "checkout". Check-in and check-out cameras run as
	// separate daemons against the same database.
	Mode string `toml:"mode"`
	// FrameSkip processes every Nth frame on the primary detection path.
	FrameSkip int `toml:"frame_skip"`
	// MinDetectionGapMillis is the minimum wall-clock gap between primary
	// detection passes regardless of frame rate.
	MinDetectionGapMillis int `toml:"min_detection_gap_millis"`
	// FrameTimeoutMillis bounds a single frame fetch before the cycle is skipped.
	FrameTimeoutMillis int `toml:"frame_timeout_millis"`
	// CaptureJPEGQuality is the encode quality for stored capture images.
	CaptureJPEGQuality int `toml:"capture_jpeg_quality"`
	// EventBuffer sizes the attendance-changed event channel.
	EventBuffer int `toml:"event_buffer"`
}

// Recognition contains face engine connection and threshold settings.
type Recognition struct {
	FaceEngineURL  string `toml:"face_engine_url"`
	RequestTimeout int    `toml:"request_timeout"`
	// StaffThreshold is the minimum recognition confidence that can lock a
	// track to a staff identity.
	StaffThreshold float64 `toml:"staff_threshold"`
	// RecheckThreshold applies to admin-triggered re-identification of
	// stored unknown-entry images.
	RecheckThreshold float64 `toml:"recheck_threshold"`
	// UnknownThreshold is the ceiling below which a recognized identity is
	// still treated as unknown.
	UnknownThreshold float64 `toml:"unknown_threshold"`
	// CoveredFaceThreshold is the detection confidence below which a face is
	// classified as covered.
	CoveredFaceThreshold float64 `toml:"covered_face_threshold"`
	// DuplicateSimilarity is the cosine similarity at or above which two
	// unknown captures are considered the same person.
	DuplicateSimilarity float64 `toml:"duplicate_similarity"`
	// DedupWindowSeconds is the rolling window for the embedding dedup cache.
	DedupWindowSeconds int `toml:"dedup_window_seconds"`
}

// Tracking contains track lifecycle settings.
type Tracking struct {
	TrackTimeoutSeconds     int `toml:"track_timeout_seconds"`
	LeaveTimeoutSeconds     int `toml:"leave_timeout_seconds"`
	UnknownRecaptureSeconds int `toml:"unknown_recapture_seconds"`
	ConsecutiveStaffFrames  int `toml:"consecutive_staff_frames"`
	DisplayHoldSeconds      int `toml:"display_hold_seconds"`
}

// Attendance contains business-rule settings for check-in records.
type Attendance struct {
	// ExpectedArrival and LateWindowEnd are wall-clock times ("HH:MM").
	// Arrivals inside (ExpectedArrival, LateWindowEnd] are marked Late;
	// arrivals after the window are marked Present with zero late minutes.
	ExpectedArrival string `toml:"expected_arrival"`
	LateWindowEnd   string `toml:"late_window_end"`
	// DebounceSeconds suppresses repeat records for the same staff member.
	DebounceSeconds int `toml:"debounce_seconds"`
	// RecheckWindowMinutes skips a new check-in during admin re-checks when
	// one already exists within this window of the entry's detection time.
	RecheckWindowMinutes int `toml:"recheck_window_minutes"`
}

// Motion contains fallback motion-detector settings.
type Motion struct {
	Enabled                 bool    `toml:"enabled"`
	IntervalMillis          int     `toml:"interval_millis"`
	RecaptureIntervalMillis int     `toml:"recapture_interval_millis"`
	DiffThreshold           int     `toml:"diff_threshold"`
	MinAreaFraction         float64 `toml:"min_area_fraction"`
	MaxAreaFraction         float64 `toml:"max_area_fraction"`
	MinWidth                int     `toml:"min_width"`
	MinHeight               int     `toml:"min_height"`
	OverlapIOU              float64 `toml:"overlap_iou"`
	// BackgroundLearningRate blends each frame into the running background
	// model; 0 freezes the model, 1 replaces it wholesale.
	BackgroundLearningRate float64 `toml:"background_learning_rate"`
}

// Camera contains capture-device monitoring settings.
type Camera struct {
	Device         string `toml:"device"`
	MonitorHotplug bool   `toml:"monitor_hotplug"`
}

// Web contains HTTP API settings.
type Web struct {
	Bind           string `toml:"bind"`
	AuthSecret     string `toml:"auth_secret"`
	AuthIssuer     string `toml:"auth_issuer"`
	TokenTTLHours  int    `toml:"token_ttl_hours"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Notifications contains webhook push settings.
type Notifications struct {
	WebhookURL     string `toml:"webhook_url"`
	RequestTimeout int    `toml:"request_timeout"`
	CheckIns       bool   `toml:"check_ins"`
	CheckOuts      bool   `toml:"check_outs"`
	Unknowns       bool   `toml:"unknowns"`
	Errors         bool   `toml:"errors"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Maintenance contains scheduled housekeeping settings.
type Maintenance struct {
	// PurgeProcessedAfterDays removes processed unknown entries older than
	// this many days. Zero disables purging.
	PurgeProcessedAfterDays int `toml:"purge_processed_after_days"`
}

// Config encapsulates all configuration values for Turnstile.
//
// Configuration sections by subsystem:
//   - Paths: data and log directories
//   - Engine: frame loop throttling and capture encoding
//   - Recognition: face engine endpoint and confidence thresholds
//   - Tracking: track lifecycle timeouts
//   - Attendance: lateness rules and debounce
//   - Motion: fallback motion detector tuning
//   - Camera: capture device hotplug monitoring
//   - Web: HTTP API bind and auth
//   - Notifications: webhook push settings
//   - Logging: log format, level, and retention
//   - Maintenance: scheduled housekeeping
type Config struct {
	Paths         Paths         `toml:"paths"`
	Engine        Engine        `toml:"engine"`
	Recognition   Recognition   `toml:"recognition"`
	Tracking      Tracking      `toml:"tracking"`
	Attendance    Attendance    `toml:"attendance"`
	Motion        Motion        `toml:"motion"`
	Camera        Camera        `toml:"camera"`
	Web           Web           `toml:"web"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
	Maintenance   Maintenance   `toml:"maintenance"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/turnstile/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	if env := strings.TrimSpace(os.Getenv("TURNSTILE_CONFIG")); env != "" {
		return resolveConfigPath(env)
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("turnstile.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the sqlite database location under the data directory.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "turnstile.db")
}

// SocketPath returns the daemon control socket location under the log directory.
func (c *Config) SocketPath() string {
	return filepath.Join(c.Paths.LogDir, "turnstile.sock")
}

// CheckoutMode reports whether this process records check-outs instead of check-ins.
func (c *Config) CheckoutMode() bool {
	return c.Engine.Mode == ModeCheckout
}

// FaceEngineTimeout returns the face engine request timeout as a duration.
func (c *Config) FaceEngineTimeout() time.Duration {
	return time.Duration(c.Recognition.RequestTimeout) * time.Second
}

// Recognized engine modes.
const (
	ModeCheckin  = "checkin"
	ModeCheckout = "checkout"
)

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
