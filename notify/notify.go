// Package notify delivers finished reports over e-mail and signed webhooks.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/use-agent/statuswatch/config"
	"github.com/use-agent/statuswatch/metrics"
)

// Attachment is a file carried by a delivery.
type Attachment struct {
	Name        string
	ContentType string
	Data        []byte
}

// Delivery is one report ready to be sent.
type Delivery struct {
	RunID       string
	Subject     string
	Body        string // plain text, also the webhook's summary
	GeneratedAt time.Time
	Attachment  *Attachment

	// Data is attached to webhook events as-is.
	Data any
}

// Notifier sends a delivery over one channel.
type Notifier interface {
	Name() string
	Send(ctx context.Context, d Delivery) error
}

// FromConfig returns the notifiers whose configuration is complete.
func FromConfig(email config.EmailConfig, webhook config.WebhookConfig) []Notifier {
	var out []Notifier
	if email.Host != "" && len(email.To) > 0 {
		out = append(out, NewEmail(email))
	}
	if webhook.URL != "" {
		out = append(out, NewWebhook(webhook))
	}
	return out
}

// SendAll sends d over every notifier. A failing channel does not stop the
// others; the returned error joins every failure.
func SendAll(ctx context.Context, notifiers []Notifier, d Delivery) error {
	var errs []error
	for _, n := range notifiers {
		err := n.Send(ctx, d)
		metrics.ObserveDelivery(n.Name(), err)
		if err != nil {
			slog.Error("report delivery failed", "channel", n.Name(), "run_id", d.RunID, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", n.Name(), err))
			continue
		}
		slog.Info("report delivered", "channel", n.Name(), "run_id", d.RunID)
	}
	return errors.Join(errs...)
}

// Subject is the default subject line, e.g.
// "Relatório Técnico Diário - 19/10/2026".
func Subject(t time.Time) string {
	return "Relatório Técnico Diário - " + t.Format("02/01/2006")
}
