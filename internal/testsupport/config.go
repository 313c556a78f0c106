package testsupport

import (
	"path/filepath"
	"testing"

	"turnstile/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t   testing.TB
	cfg *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Web.Bind = "127.0.0.1:0"
	cfgVal.Web.AuthSecret = "test-secret"
	cfgVal.Recognition.FaceEngineURL = "http://127.0.0.1:0"

	builder := &configBuilder{t: t, cfg: &cfgVal}
	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return builder.cfg
}

// WithMode sets the attendance mode on the test config.
func WithMode(mode string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Engine.Mode = mode
	}
}

// WithFaceEngineURL points the test config at a fake face engine.
func WithFaceEngineURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Recognition.FaceEngineURL = url
	}
}

// WithWebhookURL enables notifications against a test receiver.
func WithWebhookURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Notifications.WebhookURL = url
		b.cfg.Notifications.CheckIns = true
		b.cfg.Notifications.CheckOuts = true
		b.cfg.Notifications.Unknowns = true
		b.cfg.Notifications.Errors = true
	}
}
