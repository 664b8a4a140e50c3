// Package intake runs the conversational state machine that turns inbound
// chat messages into civic reports: media opens a draft, text supplies the
// reporter's name and the issue location, and a completed draft lands as
// Verified or Pending depending on classifier confidence.
package intake

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nagaralert/nagaralert/internal/channel"
	"github.com/nagaralert/nagaralert/internal/classifier"
	"github.com/nagaralert/nagaralert/internal/composer"
	"github.com/nagaralert/nagaralert/internal/config"
	"github.com/nagaralert/nagaralert/internal/media"
	"github.com/nagaralert/nagaralert/internal/report"
)

// Confidence thresholds for the two completion paths. The location-event
// path accepts lower confidence because shared coordinates are stronger
// evidence than a typed address.
const (
	// TextAddressThreshold gates the typed-address path (strictly above).
	TextAddressThreshold = 80
	// LocationThreshold gates the shared-location path (at or above).
	LocationThreshold = 70
)

// ReportPoints is awarded to a citizen per completed report.
const ReportPoints = 10

// Fixed replies for flows that never reach the composer.
const (
	replyUnsupported   = "Please send text, a photo, video, voice note, or a location."
	replyFinishPending = "You have a pending report. Please finish that first."
	replySendPhoto     = "Please send a photo of the issue first, then share its location."
)

// Classifier decides whether media or text describes a real civic issue.
type Classifier interface {
	ClassifyMedia(ctx context.Context, data []byte, mimeType string) classifier.Verdict
	ClassifyText(ctx context.Context, text string) classifier.Verdict
}

// Replier generates the conversational reply for a situation.
type Replier interface {
	Compose(ctx context.Context, rc composer.Context) string
}

// Fetcher resolves a media reference to raw bytes, nil on failure.
type Fetcher interface {
	Fetch(ctx context.Context, provider channel.ProviderTag, ref string) []byte
}

// Dispatcher fans a verified alert out to residents of the affected area.
type Dispatcher interface {
	Dispatch(ctx context.Context, area, message, simulatedRecipient string) (int, error)
}

// Escalator raises an out-of-band alarm for critical-department reports.
type Escalator interface {
	EscalateCritical(ctx context.Context, r report.Report)
}

// Service is the intake state machine. One instance serves all providers;
// per-sender locking serializes concurrent deliveries from the same sender.
type Service struct {
	log           *slog.Logger
	reports       *report.Service
	registry      *channel.Registry
	fetcher       Fetcher
	blobs         media.Blobs
	classifier    Classifier
	composer      Replier
	dispatcher    Dispatcher
	escalator     Escalator
	locks         *senderLocks
	textThreshold int
	locThreshold  int
}

// NewService wires the intake state machine. blobs, dispatcher and escalator
// may be nil; the corresponding side effects are skipped.
func NewService(
	log *slog.Logger,
	cfg config.IntakeConfig,
	reports *report.Service,
	registry *channel.Registry,
	fetcher Fetcher,
	blobs media.Blobs,
	cls Classifier,
	comp Replier,
	dispatcher Dispatcher,
	escalator Escalator,
) *Service {
	textThreshold := cfg.TextThreshold
	if textThreshold <= 0 {
		textThreshold = TextAddressThreshold
	}
	locThreshold := cfg.LocationThreshold
	if locThreshold <= 0 {
		locThreshold = LocationThreshold
	}
	return &Service{
		log:           log.With(slog.String("service", "intake")),
		reports:       reports,
		registry:      registry,
		fetcher:       fetcher,
		blobs:         blobs,
		classifier:    cls,
		composer:      comp,
		dispatcher:    dispatcher,
		escalator:     escalator,
		locks:         newSenderLocks(),
		textThreshold: textThreshold,
		locThreshold:  locThreshold,
	}
}

// HandleBatch processes one webhook delivery's messages sequentially.
func (s *Service) HandleBatch(ctx context.Context, msgs []channel.InboundMessage) {
	for _, msg := range msgs {
		s.Handle(ctx, msg)
	}
}

// Handle runs one inbound message through the state machine. Errors are
// terminal here: they are logged and the sender still gets a reply wherever
// one is possible.
func (s *Service) Handle(ctx context.Context, msg channel.InboundMessage) {
	if msg.SenderID == "" {
		s.log.Warn("dropping message without sender", slog.String("channel", msg.Channel.String()))
		return
	}
	unlock := s.locks.lock(msg.SenderID)
	defer unlock()

	log := s.log.With(
		slog.String("sender", msg.SenderID),
		slog.String("channel", msg.Channel.String()),
		slog.String("kind", string(msg.Kind)))

	draft, err := s.reports.ActiveDraft(ctx, msg.SenderID)
	hasDraft := err == nil
	if err != nil && !errors.Is(err, report.ErrNoActiveDraft) {
		// Store trouble: proceed as if no draft exists so the sender still
		// gets a reply; the write path will log its own failures.
		log.Error("active draft lookup failed", slog.Any("error", err))
	}

	switch msg.Kind {
	case channel.KindMedia:
		if hasDraft {
			s.reply(ctx, msg, replyFinishPending)
			return
		}
		s.handleNewMedia(ctx, log, msg)
	case channel.KindText:
		switch {
		case hasDraft && draft.Status == report.StatusAwaitingName:
			s.handleName(ctx, log, msg, draft)
		case hasDraft && draft.Status == report.StatusAwaitingLocation:
			s.handleTextAddress(ctx, log, msg, draft)
		default:
			s.handleChat(ctx, msg)
		}
	case channel.KindLocation:
		if hasDraft && draft.Status == report.StatusAwaitingLocation {
			s.handleLocation(ctx, log, msg, draft)
			return
		}
		if hasDraft && draft.Status == report.StatusAwaitingName {
			s.reply(ctx, msg, replyFinishPending)
			return
		}
		s.reply(ctx, msg, replySendPhoto)
	default:
		s.reply(ctx, msg, replyUnsupported)
	}
}

// handleNewMedia opens a draft from a media message. Unfetchable media still
// opens the draft with a placeholder verdict; only an explicit "not real"
// verdict rejects.
func (s *Service) handleNewMedia(ctx context.Context, log *slog.Logger, msg channel.InboundMessage) {
	data := s.fetcher.Fetch(ctx, msg.Channel, msg.MediaRef)

	var verdict classifier.Verdict
	if data == nil {
		log.Info("media unavailable, proceeding with pending verdict")
		verdict = classifier.PendingVerdict()
	} else {
		verdict = s.classifier.ClassifyMedia(ctx, data, msg.Mime)
	}
	if !verdict.IsReal {
		reason := verdict.FakeReason
		if reason == "" {
			reason = "it does not show a civic issue"
		}
		s.reply(ctx, msg, "This doesn't look like a reportable civic issue ("+reason+"). Please send a photo of the problem.")
		return
	}

	mediaURL := s.archiveMedia(ctx, log, msg, data)

	profile, err := s.reports.Profile(ctx, msg.SenderID)
	if err != nil {
		log.Error("profile lookup failed", slog.Any("error", err))
	}

	status := report.StatusAwaitingName
	if profile.Name != "" {
		status = report.StatusAwaitingLocation
	}
	analysis, _ := json.Marshal(verdict)
	r := report.Report{
		ID:          report.NewID(),
		SenderID:    msg.SenderID,
		UserName:    profile.Name,
		IssueType:   verdict.Issue,
		Description: verdict.Description,
		Category:    verdict.Category,
		Priority:    verdict.Priority,
		Department:  verdict.Department,
		MediaURL:    mediaURL,
		MediaKind:   string(msg.MediaKind),
		Status:      status,
		Confidence:  verdict.Confidence,
		Analysis:    string(analysis),
		Source:      msg.Channel.String(),
	}
	if err := s.reports.CreateDraft(ctx, r); err != nil {
		log.Error("create draft failed", slog.Any("error", err))
		// Best effort: reply anyway so the sender is not left hanging.
	}
	log.Info("draft opened",
		slog.String("report_id", r.ID),
		slog.String("issue", r.IssueType),
		slog.String("status", string(status)))

	if status == report.StatusAwaitingName {
		s.reply(ctx, msg, s.composer.Compose(ctx, composer.Context{
			Kind:  composer.KindAskName,
			Issue: verdict.Issue,
		}))
		return
	}
	s.reply(ctx, msg, s.composer.Compose(ctx, composer.Context{
		Kind:      composer.KindMediaAnalysis,
		Issue:     verdict.Issue,
		Details:   verdict.Description,
		Priority:  verdict.Priority,
		MediaKind: string(msg.MediaKind),
	}))
}

// archiveMedia re-uploads fetched bytes to the blob store for a stable URL.
// Falls back to the provider reference when the upload is unavailable.
func (s *Service) archiveMedia(ctx context.Context, log *slog.Logger, msg channel.InboundMessage, data []byte) string {
	if data == nil || s.blobs == nil {
		return msg.MediaRef
	}
	key := "reports/" + report.NewID() + media.ExtensionFromMime(msg.Mime)
	if err := s.blobs.Put(ctx, key, bytes.NewReader(data)); err != nil {
		log.Warn("media archive failed", slog.Any("error", err))
		return msg.MediaRef
	}
	return s.blobs.PublicURL(key)
}

// handleName records the reporter's name and advances to the location step.
func (s *Service) handleName(ctx context.Context, log *slog.Logger, msg channel.InboundMessage, draft report.Report) {
	name := strings.TrimSpace(msg.Body)
	if name == "" {
		s.reply(ctx, msg, s.composer.Compose(ctx, composer.Context{
			Kind:  composer.KindAskName,
			Issue: draft.IssueType,
		}))
		return
	}
	if _, err := s.reports.Finalize(ctx, draft.ID, report.StatusAwaitingLocation, map[string]any{
		"userName": name,
	}); err != nil {
		log.Error("save reporter name failed", slog.Any("error", err))
	}
	if err := s.reports.SaveProfileFields(ctx, msg.SenderID, map[string]any{
		"name":  name,
		"phone": msg.SenderID,
	}); err != nil {
		log.Error("save profile name failed", slog.Any("error", err))
	}
	s.reply(ctx, msg, s.composer.Compose(ctx, composer.Context{
		Kind:      composer.KindMediaAnalysis,
		UserName:  name,
		Issue:     draft.IssueType,
		Details:   draft.Description,
		Priority:  draft.Priority,
		MediaKind: draft.MediaKind,
	}))
}

// handleTextAddress completes a draft from a typed address.
func (s *Service) handleTextAddress(ctx context.Context, log *slog.Logger, msg channel.InboundMessage, draft report.Report) {
	address := strings.TrimSpace(msg.Body)
	if address == "" {
		s.reply(ctx, msg, composer.FallbackReply)
		return
	}
	status := report.StatusPendingReview
	if draft.Confidence > s.textThreshold {
		status = report.StatusVerified
	}
	s.complete(ctx, log, msg, draft, status, report.Location{Address: address}, false)
}

// handleLocation completes a draft from a shared-location event.
func (s *Service) handleLocation(ctx context.Context, log *slog.Logger, msg channel.InboundMessage, draft report.Report) {
	loc := report.Location{}
	if msg.Coordinates != nil {
		loc.Lat = msg.Coordinates.Lat
		loc.Lng = msg.Coordinates.Lng
		loc.Address = msg.Coordinates.Address
	}
	if loc.Address == "" {
		if profile, err := s.reports.Profile(ctx, msg.SenderID); err == nil && profile.DefaultAddress != "" {
			loc.Address = profile.DefaultAddress
		}
	}
	if loc.Address == "" {
		loc.Address = fmt.Sprintf("%.5f, %.5f", loc.Lat, loc.Lng)
	}
	status := report.StatusPendingReview
	if draft.Confidence >= s.locThreshold {
		status = report.StatusVerified
	}
	// Shared-location completion also delivers the broadcast to the reporter.
	s.complete(ctx, log, msg, draft, status, loc, true)
}

// complete closes out a draft: persists the final status and location,
// backfills the profile address when none is stored, awards points, replies,
// and on Verified kicks off the broadcast without blocking the conversation.
func (s *Service) complete(ctx context.Context, log *slog.Logger, msg channel.InboundMessage, draft report.Report, status report.Status, loc report.Location, selfNotify bool) {
	final, err := s.reports.Finalize(ctx, draft.ID, status, map[string]any{
		"location": loc,
	})
	if err != nil {
		log.Error("finalize report failed", slog.Any("error", err))
		final = draft
		final.Status = status
		final.Location = &loc
	}
	log.Info("report completed",
		slog.String("report_id", final.ID),
		slog.String("status", string(status)),
		slog.Int("confidence", final.Confidence))

	profile, err := s.reports.Profile(ctx, msg.SenderID)
	if err != nil {
		log.Warn("profile lookup failed", slog.Any("error", err))
	}
	if profile.DefaultAddress == "" && loc.Address != "" {
		if err := s.reports.SaveProfileFields(ctx, msg.SenderID, map[string]any{
			"defaultAddress": loc.Address,
		}); err != nil {
			log.Warn("save default address failed", slog.Any("error", err))
		}
	}
	if _, err := s.reports.AwardPoints(ctx, msg.SenderID, ReportPoints, true); err != nil {
		log.Warn("award points failed", slog.Any("error", err))
	}

	s.reply(ctx, msg, s.composer.Compose(ctx, composer.Context{
		Kind:     composer.KindReportSuccess,
		UserName: final.UserName,
		Issue:    final.IssueType,
		Address:  loc.Address,
	}))

	if status != report.StatusVerified {
		return
	}
	// Fan-out happens off the request path; the sender's reply never waits
	// on broadcast delivery.
	simulated := ""
	if selfNotify {
		simulated = msg.SenderID
	}
	bg := context.WithoutCancel(ctx)
	go s.fanOut(bg, final, simulated)
}

func (s *Service) fanOut(ctx context.Context, r report.Report, simulatedRecipient string) {
	defer func() {
		if rec := recover(); rec != nil {
			s.log.Error("fan-out panicked", slog.Any("panic", rec))
		}
	}()
	if s.escalator != nil {
		s.escalator.EscalateCritical(ctx, r)
	}
	if s.dispatcher == nil || r.Location == nil {
		return
	}
	reach, err := s.dispatcher.Dispatch(ctx, r.Location.Address, FormatAlert(r), simulatedRecipient)
	if err != nil {
		s.log.Error("broadcast dispatch failed",
			slog.String("report_id", r.ID), slog.Any("error", err))
		return
	}
	s.log.Info("broadcast dispatched",
		slog.String("report_id", r.ID), slog.Int("reach", reach))
}

// handleChat answers free-form conversation outside any draft.
func (s *Service) handleChat(ctx context.Context, msg channel.InboundMessage) {
	s.reply(ctx, msg, s.composer.Compose(ctx, composer.Context{
		Kind: composer.KindChat,
		Text: msg.Body,
	}))
}

// FormatAlert renders the resident-facing alert for a verified report.
func FormatAlert(r report.Report) string {
	address := ""
	if r.Location != nil {
		address = r.Location.Address
	}
	return fmt.Sprintf("🚨 ALERT: %s reported near %s. Authorities have been notified. Please stay cautious in the area.", r.IssueType, address)
}

func (s *Service) reply(ctx context.Context, msg channel.InboundMessage, body string) {
	if body == "" {
		body = composer.FallbackReply
	}
	provider, err := s.registry.Get(msg.Channel)
	if err != nil {
		s.log.Error("no provider for reply", slog.String("channel", msg.Channel.String()))
		return
	}
	to := msg.ReplyTo
	if to == "" {
		to = msg.SenderID
	}
	if err := provider.SendText(ctx, to, body); err != nil {
		s.log.Error("send reply failed",
			slog.String("sender", msg.SenderID), slog.Any("error", err))
	}
}
