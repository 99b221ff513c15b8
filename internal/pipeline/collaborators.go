package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/newsloom/newsloom/internal/model"
)

// WebhookDeliverer posts published articles to a configured webhook URL.
type WebhookDeliverer struct {
	url    string
	client *http.Client
}

// NewWebhookDeliverer creates a deliverer posting to url.
func NewWebhookDeliverer(url string, timeout time.Duration) *WebhookDeliverer {
	return &WebhookDeliverer{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

// Deliver posts the article as JSON. Any non-2xx response is an error; the
// caller treats delivery as at-least-once and consumers dedupe by article ID.
func (d *WebhookDeliverer) Deliver(ctx context.Context, art model.Article) error {
	body, err := json.Marshal(art)
	if err != nil {
		return fmt.Errorf("pipeline: marshal delivery payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("pipeline: build delivery request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("pipeline: deliver article: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("pipeline: deliver article: unexpected status %d", resp.StatusCode)
	}
	return nil
}

