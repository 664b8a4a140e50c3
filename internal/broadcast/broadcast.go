// Package broadcast fans a verified alert out to residents of the affected
// area over chat and email. The dispatcher is stateless and shared between
// the intake flow and the administrative review endpoints; both produce the
// same history record shape.
package broadcast

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nagaralert/nagaralert/internal/channel"
	"github.com/nagaralert/nagaralert/internal/email"
	"github.com/nagaralert/nagaralert/internal/report"
)

// Mailer sends one outbound email.
type Mailer interface {
	Send(ctx context.Context, msg email.OutboundEmail) error
}

// Service is the broadcast dispatcher.
type Service struct {
	log          *slog.Logger
	reports      *report.Service
	registry     *channel.Registry
	mailer       Mailer
	chatTag      channel.ProviderTag
	dashboardURL string
}

// NewService builds the dispatcher. mailer may be nil (chat-only fan-out);
// chatTag selects the gateway used for resident chat sends.
func NewService(log *slog.Logger, reports *report.Service, registry *channel.Registry, mailer Mailer, chatTag channel.ProviderTag, dashboardURL string) *Service {
	return &Service{
		log:          log.With(slog.String("service", "broadcast")),
		reports:      reports,
		registry:     registry,
		mailer:       mailer,
		chatTag:      chatTag,
		dashboardURL: dashboardURL,
	}
}

// AreaMatches reports whether a stored address and an alert area refer to the
// same place. The match is a deliberately loose bidirectional substring test
// on lower-cased text, not a geocoded distance.
func AreaMatches(address, area string) bool {
	address = strings.ToLower(strings.TrimSpace(address))
	area = strings.ToLower(strings.TrimSpace(area))
	if address == "" || area == "" {
		return false
	}
	return strings.Contains(address, area) || strings.Contains(area, address)
}

// Dispatch sends message to every known user whose address matches area and
// appends one history record. simulatedRecipient, when non-empty, is always
// included in the chat fan-out (demo/self-notify path). Returns the number
// of matched recipients; per-recipient delivery failures are collected and
// logged, never abort the batch.
func (s *Service) Dispatch(ctx context.Context, area, message, simulatedRecipient string) (int, error) {
	chatTargets := make(map[string]bool)
	emailTargets := make(map[string]bool)
	if simulatedRecipient != "" {
		chatTargets[simulatedRecipient] = true
	}

	profiles, err := s.reports.Profiles(ctx)
	if err != nil {
		s.log.Error("load profiles for broadcast failed", slog.Any("error", err))
	}
	for sender, p := range profiles {
		if AreaMatches(p.DefaultAddress, area) {
			chatTargets[sender] = true
			if p.Email != "" {
				emailTargets[p.Email] = true
			}
		}
	}
	registered, err := s.reports.RegistryUsers(ctx)
	if err != nil {
		s.log.Error("load registry users for broadcast failed", slog.Any("error", err))
	}
	for _, u := range registered {
		if !AreaMatches(u.Address, area) {
			continue
		}
		if u.Mobile != "" {
			chatTargets[u.Mobile] = true
		}
		if u.Email != "" {
			emailTargets[u.Email] = true
		}
	}

	failed := 0
	if provider, err := s.registry.Get(s.chatTag); err != nil {
		s.log.Error("no chat provider for broadcast", slog.String("channel", s.chatTag.String()))
		failed += len(chatTargets)
	} else {
		for to := range chatTargets {
			if err := provider.SendText(ctx, to, message); err != nil {
				failed++
				s.log.Warn("broadcast chat send failed",
					slog.String("to", to), slog.Any("error", err))
			}
		}
	}
	if s.mailer != nil {
		subject, html := s.formatEmail(area, message)
		for to := range emailTargets {
			err := s.mailer.Send(ctx, email.OutboundEmail{
				To:      to,
				Subject: subject,
				Body:    html,
				HTML:    true,
			})
			if err != nil {
				failed++
				s.log.Warn("broadcast email send failed",
					slog.String("to", to), slog.Any("error", err))
			}
		}
	}

	reach := len(chatTargets) + len(emailTargets)
	status := "sent"
	if failed > 0 {
		status = "partial"
	}
	rec := report.BroadcastRecord{
		Area:    area,
		Type:    "targeted_alert",
		Message: message,
		Sender:  "system",
		Reach:   reach,
		Status:  status,
	}
	if _, err := s.reports.AppendBroadcast(ctx, rec); err != nil {
		s.log.Error("append broadcast record failed", slog.Any("error", err))
	}
	s.log.Info("broadcast complete",
		slog.String("area", area),
		slog.Int("reach", reach),
		slog.Int("failed", failed))
	return reach, nil
}

func (s *Service) formatEmail(area, message string) (subject, html string) {
	subject = "Area Alert: " + area
	html = fmt.Sprintf(`<div style="font-family:sans-serif;max-width:600px">
<h2 style="color:#c0392b">Area Alert</h2>
<p>%s</p>
<p><b>Area:</b> %s</p>
<p><a href="%s">Open the dashboard</a> for live status and nearby reports.</p>
</div>`, message, area, s.dashboardURL)
	return subject, html
}
