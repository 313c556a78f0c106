package daemon

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/pilebones/go-udev/netlink"

	"turnstile/internal/config"
	"turnstile/internal/logging"
)

// cameraMonitor listens for udev netlink events on the video4linux subsystem
// and reports attach and detach activity for the configured capture device.
// This removes the need for udev rules that poke the daemon from outside.
type cameraMonitor struct {
	cfg     *config.Config
	logger  *slog.Logger
	handler func(ctx context.Context, action, device string) error
	active  func() bool
	device  string

	mu      sync.Mutex
	conn    *netlink.UEventConn
	quit    chan struct{}
	running bool
}

// newCameraMonitor creates a monitor for capture-device hotplug events.
// It returns nil when hotplug monitoring is disabled or no device is set.
func newCameraMonitor(
	cfg *config.Config,
	logger *slog.Logger,
	handler func(ctx context.Context, action, device string) error,
	active func() bool,
) *cameraMonitor {
	if cfg == nil || !cfg.Camera.MonitorHotplug {
		return nil
	}

	device := strings.TrimSpace(cfg.Camera.Device)
	if device == "" {
		return nil
	}

	return &cameraMonitor{
		cfg:     cfg,
		logger:  logging.NewComponentLogger(logger, "camera-monitor"),
		handler: handler,
		active:  active,
		device:  device,
	}
}

// Start begins listening for udev netlink events.
func (m *cameraMonitor) Start(ctx context.Context) error {
	if m == nil {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return nil
	}

	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		logging.WarnWithContext(m.logger, "failed to connect to netlink socket; camera hotplug detection disabled", "netlink_connect_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "ensure the daemon has permission to access netlink sockets"),
			logging.String(logging.FieldImpact, "a detached camera will not suspend the engine"),
		)
		return nil // non-fatal, capture continues without hotplug awareness
	}

	m.conn = conn
	m.quit = make(chan struct{})
	m.running = true

	// Pass quit channel to the goroutine to avoid reading m.quit without lock
	quit := m.quit
	go m.monitorLoop(ctx, quit)

	m.logger.Info("camera hotplug monitor started",
		logging.String(logging.FieldEventType, "camera_monitor_started"),
		logging.String("device", m.device),
	)

	return nil
}

// Stop shuts down the camera monitor.
func (m *cameraMonitor) Stop() {
	if m == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	if m.quit != nil {
		close(m.quit)
		m.quit = nil
	}

	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}

	m.running = false

	m.logger.Info("camera hotplug monitor stopped",
		logging.String(logging.FieldEventType, "camera_monitor_stopped"),
	)
}

// Running reports whether the camera monitor is active.
func (m *cameraMonitor) Running() bool {
	if m == nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// monitorLoop reads netlink events and processes hotplug activity.
func (m *cameraMonitor) monitorLoop(ctx context.Context, quit <-chan struct{}) {
	events := make(chan netlink.UEvent)
	errs := make(chan error)

	matcher := m.buildMatcher()

	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()

	if conn == nil {
		return
	}

	monitorQuit := conn.Monitor(events, errs, matcher)

	for {
		select {
		case <-ctx.Done():
			close(monitorQuit)
			return
		case <-quit:
			close(monitorQuit)
			return
		case uevent := <-events:
			m.handleEvent(ctx, uevent)
		case err := <-errs:
			logging.WarnWithContext(m.logger, "camera monitor error", "camera_monitor_error",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check kernel netlink subsystem"),
				logging.String(logging.FieldImpact, "hotplug detection may be affected"),
			)
		}
	}
}

// buildMatcher creates a matcher for capture-device hotplug events.
// Matches: SUBSYSTEM=video4linux, ACTION=add|remove
func (m *cameraMonitor) buildMatcher() netlink.Matcher {
	action := "add|remove"
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Action: &action,
		Env: map[string]string{
			"SUBSYSTEM": "video4linux",
		},
	})
	return rules
}

// handleEvent processes a matched uevent.
func (m *cameraMonitor) handleEvent(ctx context.Context, uevent netlink.UEvent) {
	devname := m.extractDeviceName(uevent)
	if devname == "" {
		m.logger.Debug("ignoring event without device name",
			logging.String("action", string(uevent.Action)),
			logging.String("kobj", uevent.KObj),
		)
		return
	}

	if devname != m.device {
		m.logger.Debug("ignoring event for non-configured device",
			logging.String("device", devname),
			logging.String("configured_device", m.device),
		)
		return
	}

	if m.active != nil && !m.active() {
		m.logger.Debug("daemon not running, ignoring hotplug event",
			logging.String("device", devname),
		)
		return
	}

	action := string(uevent.Action)
	m.logger.Info("capture device hotplug event",
		logging.String(logging.FieldEventType, "camera_hotplug"),
		logging.String("device", devname),
		logging.String("action", action),
	)

	if m.handler == nil {
		return
	}

	if err := m.handler(ctx, action, devname); err != nil {
		logging.WarnWithContext(m.logger, "camera hotplug handler failed", "camera_handler_failed",
			logging.Error(err),
			logging.String("device", devname),
			logging.String("action", action),
			logging.String(logging.FieldErrorHint, "check engine logs for details"),
			logging.String(logging.FieldImpact, "engine suspend state may be stale"),
		)
	}
}

// extractDeviceName gets the device path from a uevent. video4linux uevents
// usually carry DEVNAME relative to /dev ("video0"), so the prefix is added
// when missing.
func (m *cameraMonitor) extractDeviceName(uevent netlink.UEvent) string {
	if devname := uevent.Env["DEVNAME"]; devname != "" {
		if strings.HasPrefix(devname, "/dev/") {
			return devname
		}
		return "/dev/" + strings.TrimPrefix(devname, "/")
	}

	// Fall back to the DEVPATH tail (e.g. /devices/.../video4linux/video0)
	devpath := uevent.Env["DEVPATH"]
	if devpath == "" {
		return ""
	}

	parts := strings.Split(devpath, "/")
	if len(parts) == 0 {
		return ""
	}
	return "/dev/" + parts[len(parts)-1]
}
