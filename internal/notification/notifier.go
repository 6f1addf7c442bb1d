// Package notification delivers alert messages to users. An endpoint is
// either a Telegram chat id or an http(s) webhook URL; Router picks the
// backend from the endpoint's shape.
package notification

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
)

// ErrNoBackend is returned when no configured backend accepts the endpoint.
var ErrNoBackend = errors.New("notification: no backend for endpoint")

// LogNotifier logs messages instead of sending them (dry runs, development).
type LogNotifier struct{}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Send(ctx context.Context, endpoint, text string) error {
	log.Printf("[notify] -> %s: %s", endpoint, strings.ReplaceAll(text, "\n", " | "))
	return nil
}

// Sender is the delivery contract shared by every backend.
type Sender interface {
	Send(ctx context.Context, endpoint, text string) error
}

// Router implements model.Notifier by dispatching on endpoint shape.
type Router struct {
	Telegram Sender // chat ids
	Webhook  Sender // http(s) URLs
}

// IsWebhook reports whether endpoint is an http(s) URL.
func IsWebhook(endpoint string) bool {
	return strings.HasPrefix(endpoint, "https://") || strings.HasPrefix(endpoint, "http://")
}

// IsChatID reports whether endpoint looks like a Telegram chat id.
func IsChatID(endpoint string) bool {
	s := strings.TrimPrefix(endpoint, "-")
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func (r *Router) Send(ctx context.Context, endpoint, text string) error {
	switch {
	case IsWebhook(endpoint) && r.Webhook != nil:
		return r.Webhook.Send(ctx, endpoint, text)
	case IsChatID(endpoint) && r.Telegram != nil:
		return r.Telegram.Send(ctx, endpoint, text)
	}
	return fmt.Errorf("%w: %q", ErrNoBackend, endpoint)
}
