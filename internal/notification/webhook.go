package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"
)

// Webhook POSTs messages as JSON to the endpoint URL.
type Webhook struct {
	client *http.Client
}

// NewWebhook creates a webhook sender with a 10s timeout.
func NewWebhook() *Webhook {
	return &Webhook{client: &http.Client{Timeout: 10 * time.Second}}
}

type webhookPayload struct {
	Text string `json:"text"`
	TS   string `json:"ts"`
}

func (w *Webhook) Send(ctx context.Context, url, text string) error {
	body, err := json.Marshal(webhookPayload{
		Text: text,
		TS:   time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("webhook: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook: unexpected status %d", resp.StatusCode)
	}

	log.Printf("[webhook] delivered to %s", url)
	return nil
}
