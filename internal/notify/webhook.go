package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultWebhookTimeout bounds one webhook POST.
const DefaultWebhookTimeout = 10 * time.Second

// maxErrorBody is how much of a failed response body is kept in the error.
const maxErrorBody = 512

// WebhookError is returned when the webhook answers with a non-2xx status.
type WebhookError struct {
	StatusCode int
	Body       string
}

func (e *WebhookError) Error() string {
	return fmt.Sprintf("webhook status %d: %s", e.StatusCode, e.Body)
}

// Webhook posts launches as chat webhook messages.
type Webhook struct {
	url        string
	httpClient *http.Client
}

// WebhookOption configures a Webhook.
type WebhookOption func(*Webhook)

// WithWebhookHTTPClient sets a custom HTTP client.
func WithWebhookHTTPClient(client *http.Client) WebhookOption {
	return func(w *Webhook) {
		w.httpClient = client
	}
}

// WithWebhookTimeout sets the request timeout.
func WithWebhookTimeout(d time.Duration) WebhookOption {
	return func(w *Webhook) {
		w.httpClient.Timeout = d
	}
}

// NewWebhook creates a Webhook notifier posting to url.
func NewWebhook(url string, opts ...WebhookOption) *Webhook {
	w := &Webhook{
		url:        url,
		httpClient: &http.Client{Timeout: DefaultWebhookTimeout},
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Name returns "webhook".
func (w *Webhook) Name() string { return "webhook" }

// Notify formats l and posts it.
func (w *Webhook) Notify(ctx context.Context, l *Launch) error {
	return w.Send(ctx, BuildMessage(l))
}

// Send posts msg as JSON.
func (w *Webhook) Send(ctx context.Context, msg *WebhookMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal webhook message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &WebhookError{StatusCode: resp.StatusCode, Body: string(snippet)}
	}

	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
