// Package composer turns state-machine outcomes into natural-language
// replies through an external text-generation collaborator. The generation
// model is opaque; this package owns the persona prompt, the per-situation
// context formatting, and the fixed degradation string.
package composer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/nagaralert/nagaralert/internal/config"
)

// FallbackReply is returned whenever generation fails. The conversation must
// never stall waiting on a reply that cannot be produced.
const FallbackReply = "I received your message. Please share the location."

// ContextKind selects the reply situation.
type ContextKind string

const (
	// KindAskName asks a first-time reporter for their name.
	KindAskName ContextKind = "ask_name"
	// KindMediaAnalysis acknowledges analyzed media and asks for location.
	KindMediaAnalysis ContextKind = "media_analysis"
	// KindReportSuccess confirms a completed, saved report.
	KindReportSuccess ContextKind = "report_success"
	// KindChat answers free-form conversation outside any draft.
	KindChat ContextKind = "chat"
)

// Context carries the structured inputs for one reply.
type Context struct {
	Kind      ContextKind
	UserName  string
	Issue     string
	Details   string
	Priority  string
	MediaKind string
	Address   string
	Text      string
}

// Composer generates persona-constrained replies.
type Composer struct {
	logger  *slog.Logger
	baseURL string
	apiKey  string
	botName string
	appName string
	client  *http.Client
}

// New creates a composer from config.
func New(log *slog.Logger, cfg config.ComposerConfig) *Composer {
	if log == nil {
		log = slog.Default()
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Composer{
		logger:  log.With(slog.String("service", "composer")),
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		botName: cfg.BotName,
		appName: cfg.AppName,
		client:  &http.Client{Timeout: timeout},
	}
}

// Compose builds the persona prompt for ctx and asks the collaborator for a
// reply. Any failure returns FallbackReply.
func (c *Composer) Compose(ctx context.Context, rc Context) string {
	body, err := json.Marshal(map[string]string{
		"system": c.persona(),
		"prompt": formatContext(rc),
	})
	if err != nil {
		return FallbackReply
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/generate", bytes.NewReader(body))
	if err != nil {
		return FallbackReply
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Error("generation failed", slog.Any("error", err))
		return FallbackReply
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= http.StatusBadRequest {
		c.logger.Error("generation failed", slog.Int("status", resp.StatusCode))
		return FallbackReply
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return FallbackReply
	}
	var out struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &out); err != nil || strings.TrimSpace(out.Text) == "" {
		return FallbackReply
	}
	return strings.TrimSpace(out.Text)
}

func (c *Composer) persona() string {
	return fmt.Sprintf(`You are "%s" from %s.

YOUR PERSONALITY:
- Dedicated community volunteer.
- Empathetic but efficient.
- Uses mild Indian English/Hinglish (e.g., "Ji", "Don't worry").

YOUR GOAL:
1. Acknowledge the photo/issue immediately.
2. Ask for the LOCATION if it's missing.

RULES:
- Keep it under 25 words.
- NO generic "Hello/Welcome". Jump to the issue.
- Example 1: "Pothole detected! looks dangerous. Where is this exactly?"
- Example 2: "Garbage pile noted. Please share the location so we can clean it."`, c.botName, c.appName)
}

func formatContext(rc Context) string {
	switch rc.Kind {
	case KindAskName:
		return fmt.Sprintf("User reported: %s. We need their Name. Ask casually.", rc.Issue)
	case KindMediaAnalysis:
		mediaKind := strings.ToUpper(rc.MediaKind)
		if mediaKind == "" {
			mediaKind = "PHOTO"
		}
		return fmt.Sprintf(
			"MEDIA_TYPE: %s\nREPORT: %s (%s)\nSEVERITY: %s\n\nTASK:\n- Acknowledge the %s.\n- Ask for the location politely but urgently.",
			mediaKind, rc.Issue, rc.Details, rc.Priority, mediaKind)
	case KindReportSuccess:
		return fmt.Sprintf(`Situation: Report verified for %s at %s.
Task: Send a formal but friendly confirmation.
Format exactly like this (fill in details):

Location Saved: %s

Report ID: #%04d
Status: Verified & Accepted

(We have alerted the authorities)`, rc.Issue, rc.Address, rc.Address, rand.Intn(10000))
	default:
		return fmt.Sprintf("User said: %q. Reply conversationally.", rc.Text)
	}
}
