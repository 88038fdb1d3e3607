package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/lostmyalias/skyspoofer-trial-bot/internal/observability"
)

// Severity colors follow the staff channel conventions: red for abuse and
// errors, orange for warnings, green for successes.
const (
	colorRed    = 0xED4245
	colorOrange = 0xE67E22
	colorGreen  = 0x57F287
)

// Config configures the webhook notifier.
type Config struct {
	WebhookURL string        `mapstructure:"webhook_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// Webhook posts notifications as Discord webhook embeds.
type Webhook struct {
	url    string
	client *http.Client
}

// NewWebhook creates a webhook notifier. An empty URL yields a Noop so
// callers never have to branch on configuration.
func NewWebhook(cfg Config) Notifier {
	if cfg.WebhookURL == "" {
		return Noop{}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Webhook{
		url:    cfg.WebhookURL,
		client: &http.Client{Timeout: timeout},
	}
}

type webhookPayload struct {
	Embeds []webhookEmbed `json:"embeds"`
}

type webhookEmbed struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Color       int    `json:"color"`
	Timestamp   string `json:"timestamp"`
}

// Notify posts the embed and swallows any failure, logging at warn level.
func (w *Webhook) Notify(ctx context.Context, title, body string, severity Severity) {
	payload := webhookPayload{
		Embeds: []webhookEmbed{{
			Title:       title,
			Description: body,
			Color:       severityColor(severity),
			Timestamp:   time.Now().UTC().Format(time.RFC3339),
		}},
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		warn("Failed to encode notification", err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(encoded))
	if err != nil {
		warn("Failed to build notification request", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		warn("Failed to deliver notification", err)
		return
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusBadRequest {
		if observability.ServerLogger != nil {
			observability.ServerLogger.Warn("Notification webhook rejected",
				zap.Int("status", resp.StatusCode),
				zap.String("title", title))
		}
	}
}

func severityColor(severity Severity) int {
	switch severity {
	case SeveritySuccess:
		return colorGreen
	case SeverityWarning:
		return colorOrange
	case SeverityAbuse, SeverityError:
		return colorRed
	default:
		return colorOrange
	}
}

func warn(msg string, err error) {
	if observability.ServerLogger != nil {
		observability.ServerLogger.Warn(msg, zap.Error(err))
	}
}
