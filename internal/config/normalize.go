package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeEngine()
	c.normalizeRecognition()
	c.normalizeWeb()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeEngine() {
	c.Engine.Mode = strings.ToLower(strings.TrimSpace(c.Engine.Mode))
	if c.Engine.Mode == "" {
		c.Engine.Mode = defaultMode
	}
	if c.Engine.FrameSkip <= 0 {
		c.Engine.FrameSkip = defaultFrameSkip
	}
	if c.Engine.CaptureJPEGQuality <= 0 || c.Engine.CaptureJPEGQuality > 100 {
		c.Engine.CaptureJPEGQuality = defaultCaptureJPEGQuality
	}
	if c.Engine.EventBuffer <= 0 {
		c.Engine.EventBuffer = defaultEventBuffer
	}
}

func (c *Config) normalizeRecognition() {
	if c.Recognition.FaceEngineURL == "" {
		if value, ok := os.LookupEnv("FACE_ENGINE_URL"); ok {
			c.Recognition.FaceEngineURL = value
		}
	}
	c.Recognition.FaceEngineURL = strings.TrimRight(strings.TrimSpace(c.Recognition.FaceEngineURL), "/")
	if c.Recognition.FaceEngineURL == "" {
		c.Recognition.FaceEngineURL = defaultFaceEngineURL
	}
	if c.Recognition.RequestTimeout <= 0 {
		c.Recognition.RequestTimeout = defaultFaceEngineTimeout
	}
}

func (c *Config) normalizeWeb() {
	if c.Web.AuthSecret == "" {
		if value, ok := os.LookupEnv("TURNSTILE_AUTH_SECRET"); ok {
			c.Web.AuthSecret = strings.TrimSpace(value)
		}
	}
	c.Web.Bind = strings.TrimSpace(c.Web.Bind)
	if c.Web.Bind == "" {
		c.Web.Bind = defaultWebBind
	}
	c.Web.AuthIssuer = strings.TrimSpace(c.Web.AuthIssuer)
	if c.Web.AuthIssuer == "" {
		c.Web.AuthIssuer = defaultAuthIssuer
	}
	if c.Web.TokenTTLHours <= 0 {
		c.Web.TokenTTLHours = defaultWebTokenTTLHours
	}
	if c.Web.RequestTimeout <= 0 {
		c.Web.RequestTimeout = defaultWebRequestTimeout
	}
}

func (c *Config) normalizeNotifications() {
	if c.Notifications.WebhookURL == "" {
		if value, ok := os.LookupEnv("TURNSTILE_WEBHOOK_URL"); ok {
			c.Notifications.WebhookURL = strings.TrimSpace(value)
		}
	}
	c.Notifications.WebhookURL = strings.TrimSpace(c.Notifications.WebhookURL)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyRequestTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = defaultLogRetentionDays
	}
}
