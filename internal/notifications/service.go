package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"turnstile/internal/config"
)

const userAgent = "Turnstile-Go/0.1.0"

// Service defines the notification surface exposed to the engine and daemon.
type Service interface {
	NotifyCheckIn(ctx context.Context, name, status string, lateMinutes int) error
	NotifyCheckOut(ctx context.Context, name string) error
	NotifyUnknownEntry(ctx context.Context, entryType, reason string, entryID int64) error
	NotifyError(ctx context.Context, err error, contextLabel string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a webhook-backed notification service. When no webhook
// URL is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	endpoint := strings.TrimSpace(cfg.Notifications.WebhookURL)
	if endpoint == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &webhookService{
		endpoint:  endpoint,
		client:    &http.Client{Timeout: timeout},
		checkIns:  cfg.Notifications.CheckIns,
		checkOuts: cfg.Notifications.CheckOuts,
		unknowns:  cfg.Notifications.Unknowns,
		errors:    cfg.Notifications.Errors,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type webhookService struct {
	endpoint string
	client   *http.Client

	checkIns  bool
	checkOuts bool
	unknowns  bool
	errors    bool
}

func (n *webhookService) NotifyCheckIn(ctx context.Context, name, status string, lateMinutes int) error {
	if !n.checkIns {
		return nil
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = "staff member"
	}
	icon := "✅"
	label := strings.TrimSpace(status)
	if lateMinutes > 0 {
		icon = "⏰"
		label = fmt.Sprintf("%d min Late", lateMinutes)
	}
	data := payload{
		title:   "Turnstile - Check-in",
		message: fmt.Sprintf("%s %s checked in (%s)", icon, name, label),
		tags:    []string{"turnstile", "attendance", "checkin"},
	}
	return n.send(ctx, data)
}

func (n *webhookService) NotifyCheckOut(ctx context.Context, name string) error {
	if !n.checkOuts {
		return nil
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = "staff member"
	}
	data := payload{
		title:   "Turnstile - Check-out",
		message: fmt.Sprintf("👋 %s checked out", name),
		tags:    []string{"turnstile", "attendance", "checkout"},
	}
	return n.send(ctx, data)
}

func (n *webhookService) NotifyUnknownEntry(ctx context.Context, entryType, reason string, entryID int64) error {
	if !n.unknowns {
		return nil
	}
	entryType = strings.TrimSpace(entryType)
	if entryType == "" {
		entryType = "unknown"
	}
	data := payload{
		title:   "Turnstile - Unknown Entry",
		message: fmt.Sprintf("🚨 Unknown entry #%d: %s", entryID, strings.TrimSpace(reason)),
		tags:    []string{"turnstile", "unknown", entryType},
	}
	return n.send(ctx, data)
}

func (n *webhookService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	if !n.errors {
		return nil
	}
	var builder strings.Builder
	builder.WriteString("❌ Error")
	if contextLabel = strings.TrimSpace(contextLabel); contextLabel != "" {
		builder.WriteString(" with ")
		builder.WriteString(contextLabel)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}

	data := payload{
		title:    "Turnstile - Error",
		message:  builder.String(),
		tags:     []string{"turnstile", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *webhookService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Turnstile - Test",
		message:  "🧪 Notification system test",
		tags:     []string{"turnstile", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *webhookService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("webhook returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyCheckIn(context.Context, string, string, int) error        { return nil }
func (noopService) NotifyCheckOut(context.Context, string) error                    { return nil }
func (noopService) NotifyUnknownEntry(context.Context, string, string, int64) error { return nil }
func (noopService) NotifyError(context.Context, error, string) error                { return nil }
func (noopService) TestNotification(context.Context) error                          { return nil }
