package pricing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Submission is what gets reported to the price collaborator
type Submission struct {
	ScanID    string    `json:"scan_id"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Accuracy  *float64  `json:"accuracy,omitempty"`
	Prices    Prices    `json:"prices"`
	Timestamp time.Time `json:"timestamp"`
}

// Submitter reports extracted prices to a third party
type Submitter interface {
	Submit(ctx context.Context, sub Submission) error
}

// WebhookSubmitter POSTs submissions as JSON
type WebhookSubmitter struct {
	url    string
	token  string
	client *http.Client
}

// NewWebhookSubmitter creates a submitter for url. An empty token sends no Authorization header.
func NewWebhookSubmitter(url, token string, timeout time.Duration) *WebhookSubmitter {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &WebhookSubmitter{
		url:    url,
		token:  token,
		client: &http.Client{Timeout: timeout},
	}
}

// Submit sends sub to the webhook; any non-2xx status is an error
func (w *WebhookSubmitter) Submit(ctx context.Context, sub Submission) error {
	body, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("marshaling submission: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if w.token != "" {
		req.Header.Set("Authorization", "Bearer "+w.token)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("calling webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("webhook error (status %d): %s", resp.StatusCode, string(msg))
	}
	return nil
}
