package email

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nagaralert/nagaralert/internal/config"
)

// Service routes outbound mail through the configured adapter and owns the
// default From address.
type Service struct {
	logger   *slog.Logger
	registry *Registry
	provider ProviderName
	from     string
}

// NewService creates an email service bound to the configured provider.
func NewService(log *slog.Logger, registry *Registry, cfg config.EmailConfig) *Service {
	if log == nil {
		log = slog.Default()
	}
	provider := ProviderName(strings.TrimSpace(cfg.Provider))
	if provider == "" {
		provider = "generic"
	}
	return &Service{
		logger:   log.With(slog.String("service", "email")),
		registry: registry,
		provider: provider,
		from:     cfg.From,
	}
}

// Send delivers one email through the configured adapter.
func (s *Service) Send(ctx context.Context, msg OutboundEmail) error {
	adapter, err := s.registry.Get(s.provider)
	if err != nil {
		return err
	}
	if msg.From == "" {
		msg.From = s.from
	}
	if strings.TrimSpace(msg.To) == "" {
		return fmt.Errorf("email recipient is required")
	}
	if err := adapter.Send(ctx, msg); err != nil {
		return fmt.Errorf("send via %s: %w", s.provider, err)
	}
	s.logger.Info("email sent", slog.String("to", msg.To), slog.String("subject", msg.Subject))
	return nil
}
