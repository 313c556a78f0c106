package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestConfigInitAndValidate(t *testing.T) {
	env := setupCLITestEnv(t)

	// config validate resolves the default path when no --config is given.
	out, _, err := runCLI(t, []string{"config", "validate"}, env.socketPath, "")
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")

	tmp := t.TempDir()
	target := filepath.Join(tmp, "config.toml")
	out, _, err = runCLI(t, []string{"config", "init", "--path", target}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")

	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, env.socketPath, env.configPath); err == nil {
		t.Fatal("expected init over an existing file to fail without --overwrite")
	}

	out, _, err = runCLI(t, []string{"config", "init", "--path", target, "--overwrite"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("config init --overwrite: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
}

func TestConfigShowRedactsSecret(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"config", "show"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	requireContains(t, out, "<redacted>")
	if strings.Contains(out, "test-secret") {
		t.Fatal("expected the auth secret to be redacted")
	}
	requireContains(t, out, env.cfg.Paths.DataDir)
}
