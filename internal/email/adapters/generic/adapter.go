// Package generic implements the email adapter for plain SMTP servers.
package generic

import (
	"context"
	"fmt"
	"log/slog"

	mail "github.com/wneessen/go-mail"

	"github.com/nagaralert/nagaralert/internal/config"
	"github.com/nagaralert/nagaralert/internal/email"
)

const ProviderName email.ProviderName = "generic"

// Adapter sends mail over SMTP via go-mail.
type Adapter struct {
	logger *slog.Logger
	cfg    config.EmailConfig
}

// New creates an SMTP adapter.
func New(log *slog.Logger, cfg config.EmailConfig) *Adapter {
	if log == nil {
		log = slog.Default()
	}
	return &Adapter{logger: log.With(slog.String("adapter", "generic")), cfg: cfg}
}

// Type returns the generic provider name.
func (a *Adapter) Type() email.ProviderName { return ProviderName }

// Send delivers one message over SMTP.
func (a *Adapter) Send(ctx context.Context, msg email.OutboundEmail) error {
	m := mail.NewMsg()
	if err := m.From(msg.From); err != nil {
		return fmt.Errorf("set from: %w", err)
	}
	if err := m.To(msg.To); err != nil {
		return fmt.Errorf("set to: %w", err)
	}
	m.Subject(msg.Subject)
	if msg.HTML {
		m.SetBodyString(mail.TypeTextHTML, msg.Body)
	} else {
		m.SetBodyString(mail.TypeTextPlain, msg.Body)
	}
	m.SetMessageID()

	port := a.cfg.SMTPPort
	if port == 0 {
		port = 587
	}
	opts := []mail.Option{
		mail.WithPort(port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(a.cfg.Username),
		mail.WithPassword(a.cfg.Password),
	}
	switch a.cfg.SMTPSecurity {
	case "tls":
		opts = append(opts, mail.WithSSLPort(false), mail.WithTLSPolicy(mail.TLSMandatory))
	case "none":
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	default:
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	}

	client, err := mail.NewClient(a.cfg.SMTPHost, opts...)
	if err != nil {
		return fmt.Errorf("create smtp client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	return nil
}
