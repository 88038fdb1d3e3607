// Package notify delivers audit notifications to the staff channel. Every
// branch of the callback flow emits exactly one notification; failures to
// deliver are swallowed so the side channel can never alter an HTTP outcome.
package notify

import "context"

// Severity classifies a notification for the audit channel.
type Severity string

const (
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityAbuse   Severity = "abuse"
	SeverityError   Severity = "error"
)

// Notifier is the fire-and-forget audit sink consumed by the linking service.
type Notifier interface {
	Notify(ctx context.Context, title, body string, severity Severity)
}

// Noop discards all notifications. Used in tests and when no webhook URL is
// configured.
type Noop struct{}

func (Noop) Notify(ctx context.Context, title, body string, severity Severity) {}
