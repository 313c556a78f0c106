package preflight

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"

	"golang.org/x/sys/unix"

	"turnstile/internal/config"
)

// CheckFaceEngineFromConfig evaluates face engine status from config and connectivity.
func CheckFaceEngineFromConfig(cfg *config.Config) Result {
	const name = "Face engine"

	if cfg == nil {
		return Result{Name: name, Detail: "Unknown"}
	}
	if strings.TrimSpace(cfg.Recognition.FaceEngineURL) == "" {
		return Result{Name: name, Detail: "Missing URL"}
	}
	check := CheckFaceEngine(context.Background(), cfg.Recognition.FaceEngineURL)
	if check.Passed {
		return Result{Name: name, Passed: true, Detail: check.Detail}
	}
	return Result{Name: name, Detail: check.Detail}
}

// CheckWebhookFromConfig evaluates notification webhook status from config.
// It never posts to the webhook; a probe message would reach subscribers.
func CheckWebhookFromConfig(cfg *config.Config) Result {
	const name = "Notifications"

	if cfg == nil {
		return Result{Name: name, Detail: "Unknown"}
	}
	raw := strings.TrimSpace(cfg.Notifications.WebhookURL)
	if raw == "" {
		return Result{Name: name, Passed: true, Detail: "Disabled"}
	}
	parsed, err := url.Parse(raw)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return Result{Name: name, Detail: "Invalid webhook URL"}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("Webhook to %s", parsed.Host)}
}

// CameraProbe reports the current capture-device snapshot.
type CameraProbe struct {
	Present  bool
	Device   string
	Readable bool
}

// ProbeCamera inspects the configured video4linux device node.
func ProbeCamera(device string) CameraProbe {
	device = strings.TrimSpace(device)
	if device == "" {
		device = "/dev/video0"
	}
	info, err := os.Stat(device)
	if err != nil || info.Mode()&os.ModeCharDevice == 0 {
		return CameraProbe{Device: device}
	}
	probe := CameraProbe{Present: true, Device: device}
	if err := unix.Access(device, unix.R_OK); err == nil {
		probe.Readable = true
	}
	return probe
}

// CameraDetail renders a display-friendly summary for status UIs.
func (p CameraProbe) CameraDetail() string {
	if !p.Present {
		return "No camera device detected"
	}
	if !p.Readable {
		return fmt.Sprintf("Camera on %s (no read access)", p.Device)
	}
	return fmt.Sprintf("Camera ready on %s", p.Device)
}
