package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"turnstile/internal/api"
	"turnstile/internal/config"
	"turnstile/internal/daemon"
	"turnstile/internal/engine"
	"turnstile/internal/faceclient"
	"turnstile/internal/ipc"
	"turnstile/internal/logging"
	"turnstile/internal/store"
	"turnstile/internal/testsupport"
	"turnstile/internal/vision"
)

// quietSource supplies no frames and blocks until shutdown.
type quietSource struct{}

func (quietSource) Next(ctx context.Context) (vision.Frame, error) {
	<-ctx.Done()
	return vision.Frame{}, ctx.Err()
}

type quietFaces struct{}

func (quietFaces) Detect(context.Context, []byte) ([]faceclient.Face, error) { return nil, nil }
func (quietFaces) UpdateTracks(context.Context, []byte, []vision.Rect) ([]faceclient.Track, error) {
	return nil, nil
}
func (quietFaces) Identify(context.Context, []float32) (vision.Identity, error) {
	return vision.Identity{}, nil
}

type cliTestEnv struct {
	cfg        *config.Config
	store      *store.Store
	daemon     *daemon.Daemon
	server     *ipc.Server
	socketPath string
	configPath string
	logPath    string
	baseDir    string
	cancel     context.CancelFunc
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	homeDir := filepath.Join(base, "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)

	cfg := testsupport.NewConfig(t)

	configPath := filepath.Join(homeDir, ".config", "turnstile", "config.toml")
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	writeTestConfig(t, configPath, cfg)

	st := testsupport.MustOpenStore(t, cfg)
	logger := logging.NewNop()

	eng, err := engine.New(cfg, st, logger,
		engine.WithFrameSource(quietSource{}),
		engine.WithFaceClient(quietFaces{}),
	)
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	d, err := daemon.New(cfg, st, logger, eng, api.DaemonInfo{RunID: "cli-test", PID: os.Getpid()})
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	socketPath := filepath.Join(cfg.Paths.LogDir, "cli.sock")
	srv, err := ipc.NewServer(ctx, socketPath, d, logger)
	if err != nil {
		cancel()
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping CLI test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()

	env := &cliTestEnv{
		cfg:        cfg,
		store:      st,
		daemon:     d,
		server:     srv,
		socketPath: socketPath,
		configPath: configPath,
		logPath:    filepath.Join(cfg.Paths.LogDir, "turnstiled.log"),
		baseDir:    base,
		cancel:     cancel,
	}

	t.Cleanup(func() {
		cancel()
		srv.Close()
		d.Close()
	})

	return env
}

func runCLI(t *testing.T, args []string, socket, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	flags := []string{"--socket", socket}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func appendLine(path, line string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(line + "\n")
	return err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content := fmt.Sprintf(
		"[paths]\ndata_dir = %q\nlog_dir = %q\n\n[recognition]\nface_engine_url = %q\n\n[web]\nbind = %q\nauth_secret = %q\n",
		cfg.Paths.DataDir,
		cfg.Paths.LogDir,
		cfg.Recognition.FaceEngineURL,
		cfg.Web.Bind,
		cfg.Web.AuthSecret,
	)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func waitFor(t *testing.T, duration time.Duration, fn func() bool) {
	t.Helper()
	deadline := time.Now().Add(duration)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", duration)
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
