package main

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

// syncBuffer is a thread-safe wrapper around bytes.Buffer for use in tests.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Len()
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

var _ io.Writer = (*syncBuffer)(nil)

func TestDaemonStartAndStatus(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"start"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	requireContains(t, out, "Daemon started")

	out, _, err = runCLI(t, []string{"start"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("second start: %v", err)
	}
	requireContains(t, out, "Daemon already running")

	// Stop is not exercised through the CLI here: the daemon serves from
	// this test process and the stop path would terminate the test binary.

	out, _, err = runCLI(t, []string{"status"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "System Status")
	requireContains(t, out, "Running")
	requireContains(t, out, "Storage")
	requireContains(t, out, "Today's Attendance")
	requireContains(t, out, "Enrolled staff")
}

func TestDaemonStatusOffline(t *testing.T) {
	env := setupCLITestEnv(t)

	missingSocket := filepath.Join(env.baseDir, "missing.sock")
	out, _, err := runCLI(t, []string{"status"}, missingSocket, env.configPath)
	if err != nil {
		t.Fatalf("status offline: %v", err)
	}
	requireContains(t, out, "Not running")
	requireContains(t, out, "Today's Attendance")
	requireContains(t, out, "Enrolled staff")
}

func TestLogsFollow(t *testing.T) {
	env := setupCLITestEnv(t)

	if err := appendLine(env.logPath, "first"); err != nil {
		t.Fatalf("append first: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cmd := newRootCommand()
	cmd.SetArgs([]string{"--socket", env.socketPath, "--config", env.configPath, "logs", "--follow"})
	cmd.SetContext(ctx)
	// Use syncBuffer to avoid a data race between the goroutine writing
	// and the test reading.
	stdout := &syncBuffer{}
	cmd.SetOut(stdout)
	cmd.SetErr(&bytes.Buffer{})

	done := make(chan error, 1)
	go func() {
		done <- cmd.Execute()
	}()

	waitFor(t, 2*time.Second, func() bool { return stdout.Len() > 0 })
	if err := appendLine(env.logPath, "second"); err != nil {
		t.Fatalf("append second: %v", err)
	}
	waitFor(t, 3*time.Second, func() bool { return strings.Contains(stdout.String(), "second") })
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("execute: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("logs --follow did not exit")
	}
}
