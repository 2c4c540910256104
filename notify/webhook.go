package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/use-agent/statuswatch/config"
)

// EventReportGenerated is the only event type sent today.
const EventReportGenerated = "report.generated"

// SignatureHeader carries the HMAC-SHA256 of the body as "sha256=<hex>".
const SignatureHeader = "X-Statuswatch-Signature"

// Event is the payload sent to webhook endpoints.
type Event struct {
	Type      string `json:"type"`
	RunID     string `json:"run_id"`
	Timestamp int64  `json:"timestamp"`
	Subject   string `json:"subject"`
	Summary   string `json:"summary,omitempty"`
	Data      any    `json:"data,omitempty"`
}

// Webhook posts signed JSON events with retries.
type Webhook struct {
	url    string
	secret string
	client *http.Client

	// delays precede each attempt; the first attempt is immediate.
	delays []time.Duration
}

// NewWebhook creates a Webhook for cfg.
func NewWebhook(cfg config.WebhookConfig) *Webhook {
	return &Webhook{
		url:    cfg.URL,
		secret: cfg.Secret,
		client: &http.Client{Timeout: 10 * time.Second},
		delays: []time.Duration{0, 1 * time.Second, 5 * time.Second, 30 * time.Second},
	}
}

func (w *Webhook) Name() string { return "webhook" }

// Send delivers d, retrying on failure until the retry schedule or ctx
// runs out.
func (w *Webhook) Send(ctx context.Context, d Delivery) error {
	body, err := json.Marshal(Event{
		Type:      EventReportGenerated,
		RunID:     d.RunID,
		Timestamp: d.GeneratedAt.Unix(),
		Subject:   d.Subject,
		Summary:   d.Body,
		Data:      d.Data,
	})
	if err != nil {
		return fmt.Errorf("webhook: marshal event: %w", err)
	}

	var lastErr error
	for attempt, delay := range w.delays {
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return fmt.Errorf("webhook: %w (last error: %v)", ctx.Err(), lastErr)
			}
		}
		lastErr = w.deliver(ctx, body)
		if lastErr == nil {
			return nil
		}
		slog.Warn("webhook delivery failed",
			"url", w.url,
			"run_id", d.RunID,
			"attempt", attempt+1,
			"error", lastErr,
		)
	}
	return fmt.Errorf("webhook: exhausted %d attempts: %w", len(w.delays), lastErr)
}

// deliver posts body once. The body is signed when a secret is set.
func (w *Webhook) deliver(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Statuswatch-Webhook/1.0")
	if w.secret != "" {
		req.Header.Set(SignatureHeader, "sha256="+Sign(w.secret, body))
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: deliver: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook: endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
