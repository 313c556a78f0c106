package daemon

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/pilebones/go-udev/netlink"

	"turnstile/internal/api"
	"turnstile/internal/config"
	"turnstile/internal/engine"
	"turnstile/internal/faceclient"
	"turnstile/internal/logging"
	"turnstile/internal/testsupport"
	"turnstile/internal/vision"
)

func monitorConfig(device string) *config.Config {
	cfg := &config.Config{}
	cfg.Camera.Device = device
	cfg.Camera.MonitorHotplug = true
	return cfg
}

func TestNewCameraMonitor(t *testing.T) {
	t.Run("nil config returns nil", func(t *testing.T) {
		m := newCameraMonitor(nil, nil, nil, nil)
		if m != nil {
			t.Error("expected nil monitor for nil config")
		}
	})

	t.Run("hotplug disabled returns nil", func(t *testing.T) {
		cfg := monitorConfig("/dev/video0")
		cfg.Camera.MonitorHotplug = false
		m := newCameraMonitor(cfg, nil, nil, nil)
		if m != nil {
			t.Error("expected nil monitor when hotplug monitoring is disabled")
		}
	})

	t.Run("empty device returns nil", func(t *testing.T) {
		m := newCameraMonitor(monitorConfig("  "), nil, nil, nil)
		if m != nil {
			t.Error("expected nil monitor for empty device")
		}
	})

	t.Run("valid config creates monitor", func(t *testing.T) {
		m := newCameraMonitor(monitorConfig("/dev/video0"), nil, nil, nil)
		if m == nil {
			t.Fatal("expected non-nil monitor")
		}
		if m.device != "/dev/video0" {
			t.Errorf("expected device /dev/video0, got %s", m.device)
		}
	})
}

func TestCameraMonitorRunning(t *testing.T) {
	t.Run("nil monitor returns false", func(t *testing.T) {
		var m *cameraMonitor
		if m.Running() {
			t.Error("expected Running() to return false for nil monitor")
		}
	})

	t.Run("unstarted monitor returns false", func(t *testing.T) {
		m := newCameraMonitor(monitorConfig("/dev/video0"), nil, nil, nil)
		if m.Running() {
			t.Error("expected Running() to return false for unstarted monitor")
		}
	})
}

func TestCameraMonitorStopStartIdempotency(t *testing.T) {
	t.Run("stop on nil monitor is safe", func(t *testing.T) {
		var m *cameraMonitor
		m.Stop() // must not panic
	})

	t.Run("start on nil monitor is safe", func(t *testing.T) {
		var m *cameraMonitor
		if err := m.Start(context.Background()); err != nil {
			t.Fatalf("Start on nil monitor should return nil, got: %v", err)
		}
	})

	t.Run("stop on unstarted monitor is safe", func(t *testing.T) {
		m := newCameraMonitor(monitorConfig("/dev/video0"), nil, nil, nil)
		m.Stop() // must not panic
		if m.Running() {
			t.Error("expected Running() to return false after Stop on unstarted monitor")
		}
	})

	t.Run("double stop is safe", func(t *testing.T) {
		m := newCameraMonitor(monitorConfig("/dev/video0"), nil, nil, nil)
		m.Stop()
		m.Stop() // second stop must not panic
	})

	t.Run("start swallows netlink connect failure", func(t *testing.T) {
		m := newCameraMonitor(monitorConfig("/dev/video0"), nil, nil, nil)
		// Connecting may fail without netlink access; either way Start
		// must not return a hard error.
		if err := m.Start(context.Background()); err != nil {
			t.Fatalf("Start should be non-fatal, got: %v", err)
		}
		m.Stop()
	})
}

func TestBuildCameraMatcher(t *testing.T) {
	m := newCameraMonitor(monitorConfig("/dev/video0"), nil, nil, nil)

	matcher := m.buildMatcher()
	if matcher == nil {
		t.Fatal("expected non-nil matcher")
	}

	addEvent := netlink.UEvent{
		Action: netlink.ADD,
		Env: map[string]string{
			"SUBSYSTEM": "video4linux",
			"DEVNAME":   "video0",
		},
	}
	if !matcher.Evaluate(addEvent) {
		t.Error("expected matcher to accept ADD on video4linux")
	}

	removeEvent := netlink.UEvent{
		Action: netlink.REMOVE,
		Env: map[string]string{
			"SUBSYSTEM": "video4linux",
			"DEVNAME":   "video0",
		},
	}
	if !matcher.Evaluate(removeEvent) {
		t.Error("expected matcher to accept REMOVE on video4linux")
	}

	changeEvent := netlink.UEvent{
		Action: netlink.CHANGE,
		Env: map[string]string{
			"SUBSYSTEM": "video4linux",
			"DEVNAME":   "video0",
		},
	}
	if matcher.Evaluate(changeEvent) {
		t.Error("expected matcher to reject CHANGE action")
	}

	blockEvent := netlink.UEvent{
		Action: netlink.ADD,
		Env: map[string]string{
			"SUBSYSTEM": "block",
			"DEVNAME":   "sda1",
		},
	}
	if matcher.Evaluate(blockEvent) {
		t.Error("expected matcher to reject other subsystems")
	}
}

func TestCameraHandleEvent(t *testing.T) {
	type call struct {
		action string
		device string
	}

	newRecorder := func(active func() bool) (*cameraMonitor, *[]call) {
		calls := &[]call{}
		handler := func(ctx context.Context, action, device string) error {
			*calls = append(*calls, call{action: action, device: device})
			return nil
		}
		m := newCameraMonitor(monitorConfig("/dev/video0"), nil, handler, active)
		return m, calls
	}

	t.Run("ignores event without device name", func(t *testing.T) {
		m, calls := newRecorder(nil)
		m.handleEvent(context.Background(), netlink.UEvent{
			Action: netlink.REMOVE,
			Env:    map[string]string{},
		})
		if len(*calls) != 0 {
			t.Error("handler should not be called for event without device name")
		}
	})

	t.Run("ignores event for non-configured device", func(t *testing.T) {
		m, calls := newRecorder(nil)
		m.handleEvent(context.Background(), netlink.UEvent{
			Action: netlink.REMOVE,
			Env: map[string]string{
				"DEVNAME": "/dev/video2",
			},
		})
		if len(*calls) != 0 {
			t.Error("handler should not be called for non-configured device")
		}
	})

	t.Run("ignores event while daemon inactive", func(t *testing.T) {
		m, calls := newRecorder(func() bool { return false })
		m.handleEvent(context.Background(), netlink.UEvent{
			Action: netlink.REMOVE,
			Env: map[string]string{
				"DEVNAME": "/dev/video0",
			},
		})
		if len(*calls) != 0 {
			t.Error("handler should not be called while daemon is inactive")
		}
	})

	t.Run("calls handler with action and device", func(t *testing.T) {
		m, calls := newRecorder(func() bool { return true })
		m.handleEvent(context.Background(), netlink.UEvent{
			Action: netlink.REMOVE,
			Env: map[string]string{
				"DEVNAME": "/dev/video0",
			},
		})
		if len(*calls) != 1 {
			t.Fatalf("expected 1 handler call, got %d", len(*calls))
		}
		if (*calls)[0] != (call{action: "remove", device: "/dev/video0"}) {
			t.Errorf("unexpected handler call %+v", (*calls)[0])
		}
	})

	t.Run("normalizes bare DEVNAME", func(t *testing.T) {
		m, calls := newRecorder(func() bool { return true })
		m.handleEvent(context.Background(), netlink.UEvent{
			Action: netlink.ADD,
			Env: map[string]string{
				"DEVNAME": "video0",
			},
		})
		if len(*calls) != 1 || (*calls)[0].device != "/dev/video0" {
			t.Fatalf("expected normalized device /dev/video0, got %+v", *calls)
		}
	})

	t.Run("extracts device from DEVPATH when DEVNAME missing", func(t *testing.T) {
		m, calls := newRecorder(func() bool { return true })
		m.handleEvent(context.Background(), netlink.UEvent{
			Action: netlink.ADD,
			Env: map[string]string{
				"DEVPATH": "/devices/pci0000:00/0000:00:14.0/usb1/1-3/1-3:1.0/video4linux/video0",
			},
		})
		if len(*calls) != 1 || (*calls)[0].device != "/dev/video0" {
			t.Fatalf("expected device /dev/video0 from DEVPATH, got %+v", *calls)
		}
	})

	t.Run("handler error does not panic", func(t *testing.T) {
		handler := func(ctx context.Context, action, device string) error {
			return errors.New("engine refused")
		}
		m := newCameraMonitor(monitorConfig("/dev/video0"), nil, handler, func() bool { return true })
		m.handleEvent(context.Background(), netlink.UEvent{
			Action: netlink.REMOVE,
			Env: map[string]string{
				"DEVNAME": "/dev/video0",
			},
		})
	})

	t.Run("respects dynamic active state", func(t *testing.T) {
		var active atomic.Bool
		m, calls := newRecorder(active.Load)
		event := netlink.UEvent{
			Action: netlink.REMOVE,
			Env: map[string]string{
				"DEVNAME": "/dev/video0",
			},
		}

		m.handleEvent(context.Background(), event)
		if len(*calls) != 0 {
			t.Fatalf("expected no calls while inactive, got %d", len(*calls))
		}

		active.Store(true)
		m.handleEvent(context.Background(), event)
		if len(*calls) != 1 {
			t.Fatalf("expected 1 call after activation, got %d", len(*calls))
		}
	})
}

// blockedSource supplies no frames and waits for shutdown.
type blockedSource struct{}

func (blockedSource) Next(ctx context.Context) (vision.Frame, error) {
	<-ctx.Done()
	return vision.Frame{}, ctx.Err()
}

type silentFaces struct{}

func (silentFaces) Detect(context.Context, []byte) ([]faceclient.Face, error) { return nil, nil }
func (silentFaces) UpdateTracks(context.Context, []byte, []vision.Rect) ([]faceclient.Track, error) {
	return nil, nil
}
func (silentFaces) Identify(context.Context, []float32) (vision.Identity, error) {
	return vision.Identity{}, nil
}

func TestSuspendResumeCapture(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	eng, err := engine.New(cfg, st, logging.NewNop(),
		engine.WithFrameSource(blockedSource{}),
		engine.WithFaceClient(silentFaces{}),
	)
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	d, err := New(cfg, st, logging.NewNop(), eng, api.DaemonInfo{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx := context.Background()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(d.Stop)

	if err := d.handleCameraEvent(ctx, "remove", "/dev/video0"); err != nil {
		t.Fatalf("remove event: %v", err)
	}
	status := d.Status()
	if !status.Running {
		t.Fatal("daemon should stay running while capture is suspended")
	}
	if !status.Paused {
		t.Fatal("expected paused state after device removal")
	}
	if status.Engine.Running {
		t.Fatal("expected engine to be suspended")
	}

	// Repeated removal is a no-op
	if err := d.handleCameraEvent(ctx, "remove", "/dev/video0"); err != nil {
		t.Fatalf("repeated remove event: %v", err)
	}

	if err := d.handleCameraEvent(ctx, "add", "/dev/video0"); err != nil {
		t.Fatalf("add event: %v", err)
	}
	status = d.Status()
	if status.Paused {
		t.Fatal("expected paused state cleared after reattach")
	}
	if !status.Engine.Running {
		t.Fatal("expected engine to resume")
	}

	// Reattach without suspension is a no-op
	if err := d.handleCameraEvent(ctx, "add", "/dev/video0"); err != nil {
		t.Fatalf("redundant add event: %v", err)
	}

	d.Stop()
	if d.Status().Running {
		t.Fatal("expected daemon stopped")
	}
}
