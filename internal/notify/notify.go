// Package notify raises out-of-band alarms for critical reports and keeps
// reporters informed when the review desk moves their report.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nagaralert/nagaralert/internal/channel"
	"github.com/nagaralert/nagaralert/internal/email"
	"github.com/nagaralert/nagaralert/internal/report"
)

// criticalDepartments route to the emergency escalation inbox.
var criticalDepartments = []string{
	"fire & safety",
	"medical",
	"ambulance",
	"police",
	"critical",
}

// Mailer sends one outbound email.
type Mailer interface {
	Send(ctx context.Context, msg email.OutboundEmail) error
}

// Service sends escalation emails and reporter status updates.
type Service struct {
	log          *slog.Logger
	registry     *channel.Registry
	mailer       Mailer
	escalationTo string
	dashboardURL string
}

// NewService builds a notifier. mailer may be nil; escalation becomes a
// logged no-op.
func NewService(log *slog.Logger, registry *channel.Registry, mailer Mailer, escalationTo, dashboardURL string) *Service {
	return &Service{
		log:          log.With(slog.String("service", "notify")),
		registry:     registry,
		mailer:       mailer,
		escalationTo: escalationTo,
		dashboardURL: dashboardURL,
	}
}

// IsCritical reports whether a department routes to the emergency inbox.
func IsCritical(department string) bool {
	department = strings.ToLower(strings.TrimSpace(department))
	for _, d := range criticalDepartments {
		if strings.Contains(department, d) {
			return true
		}
	}
	return false
}

// EscalateCritical emails the emergency inbox for critical-department
// reports. Non-critical departments are a no-op. Delivery is best-effort.
func (s *Service) EscalateCritical(ctx context.Context, r report.Report) {
	if !IsCritical(r.Department) {
		return
	}
	if s.mailer == nil || s.escalationTo == "" {
		s.log.Warn("critical report but escalation email unconfigured",
			slog.String("report_id", r.ID), slog.String("department", r.Department))
		return
	}
	address := ""
	if r.Location != nil {
		address = r.Location.Address
	}
	msg := email.OutboundEmail{
		To:      s.escalationTo,
		Subject: fmt.Sprintf("CRITICAL: %s (%s)", r.IssueType, r.Department),
		Body: fmt.Sprintf(`<div style="font-family:sans-serif;max-width:600px">
<h2 style="color:#c0392b">Critical Report</h2>
<p><b>Issue:</b> %s</p>
<p><b>Department:</b> %s</p>
<p><b>Priority:</b> %s</p>
<p><b>Location:</b> %s</p>
<p><b>Reporter:</b> %s</p>
<p><a href="%s/reports/%s">Open in dashboard</a></p>
</div>`, r.IssueType, r.Department, r.Priority, address, r.SenderID, s.dashboardURL, r.ID),
		HTML: true,
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		s.log.Error("escalation email failed",
			slog.String("report_id", r.ID), slog.Any("error", err))
		return
	}
	s.log.Info("critical report escalated",
		slog.String("report_id", r.ID), slog.String("department", r.Department))
}

// NotifyReporter tells the reporter over chat that their report moved to a
// new status. Failures are logged, never propagated.
func (s *Service) NotifyReporter(ctx context.Context, r report.Report, status report.Status) {
	tag := channel.ProviderTag(r.Source)
	provider, err := s.registry.Get(tag)
	if err != nil {
		s.log.Warn("no provider to notify reporter",
			slog.String("report_id", r.ID), slog.String("channel", r.Source))
		return
	}
	body := fmt.Sprintf("Update on your report (%s): status is now %s.", r.IssueType, status)
	switch status {
	case report.StatusAccepted:
		body = fmt.Sprintf("Good news! Your report (%s) has been accepted and assigned to %s.", r.IssueType, r.Department)
	case report.StatusResolved:
		body = fmt.Sprintf("Your report (%s) has been resolved. Thank you for making your city better!", r.IssueType)
	case report.StatusRejected:
		body = fmt.Sprintf("Your report (%s) was reviewed and could not be verified. You can submit again with a clearer photo.", r.IssueType)
	}
	if err := provider.SendText(ctx, r.SenderID, body); err != nil {
		s.log.Warn("reporter notification failed",
			slog.String("report_id", r.ID), slog.Any("error", err))
	}
}
