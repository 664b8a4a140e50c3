// Package mailgun implements the email adapter for the Mailgun API.
package mailgun

import (
	"context"
	"fmt"
	"log/slog"

	mg "github.com/mailgun/mailgun-go/v5"

	"github.com/nagaralert/nagaralert/internal/config"
	"github.com/nagaralert/nagaralert/internal/email"
)

const ProviderName email.ProviderName = "mailgun"

// Adapter sends mail through the Mailgun HTTP API.
type Adapter struct {
	logger *slog.Logger
	domain string
	client *mg.Client
}

// New creates a Mailgun adapter.
func New(log *slog.Logger, cfg config.EmailConfig) *Adapter {
	if log == nil {
		log = slog.Default()
	}
	client := mg.NewMailgun(cfg.MailgunAPIKey)
	if cfg.MailgunRegion == "eu" {
		client.SetAPIBase(mg.APIBaseEU)
	}
	return &Adapter{
		logger: log.With(slog.String("adapter", "mailgun")),
		domain: cfg.MailgunDomain,
		client: client,
	}
}

// Type returns the mailgun provider name.
func (a *Adapter) Type() email.ProviderName { return ProviderName }

// Send delivers one message through Mailgun.
func (a *Adapter) Send(ctx context.Context, msg email.OutboundEmail) error {
	from := msg.From
	if from == "" {
		from = fmt.Sprintf("noreply@%s", a.domain)
	}
	m := mg.NewMessage(a.domain, from, msg.Subject, msg.Body, msg.To)
	if msg.HTML {
		m.SetHTML(msg.Body)
	}
	if _, err := a.client.Send(ctx, m); err != nil {
		return fmt.Errorf("mailgun send: %w", err)
	}
	return nil
}
