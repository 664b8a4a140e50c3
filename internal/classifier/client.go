package classifier

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/nagaralert/nagaralert/internal/config"
)

// Client calls the classification collaborator. Transport failures never
// surface as errors: the flow always needs a Verdict to branch on, so any
// failure degrades to a rejecting one.
type Client struct {
	logger  *slog.Logger
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewClient creates a classifier client from config.
func NewClient(log *slog.Logger, cfg config.ClassifierConfig) *Client {
	if log == nil {
		log = slog.Default()
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		logger:  log.With(slog.String("service", "classifier")),
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: timeout},
	}
}

// ClassifyMedia submits media bytes for analysis.
func (c *Client) ClassifyMedia(ctx context.Context, data []byte, mimeType string) Verdict {
	payload := map[string]any{
		"mimeType": mimeType,
		"data":     base64.StdEncoding.EncodeToString(data),
	}
	return c.classify(ctx, payload)
}

// ClassifyText submits a text complaint for analysis.
func (c *Client) ClassifyText(ctx context.Context, text string) Verdict {
	return c.classify(ctx, map[string]any{"text": text})
}

func (c *Client) classify(ctx context.Context, payload map[string]any) Verdict {
	body, err := json.Marshal(payload)
	if err != nil {
		return c.failure("encode request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/classify", bytes.NewReader(body))
	if err != nil {
		return c.failure("build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return c.failure("call collaborator", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= http.StatusBadRequest {
		return c.failure("call collaborator", fmt.Errorf("status %d", resp.StatusCode))
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return c.failure("read response", err)
	}
	verdict, err := ParseVerdict(raw)
	if err != nil {
		return c.failure("parse response", err)
	}
	c.logger.Info("verdict",
		slog.Bool("is_real", verdict.IsReal),
		slog.String("issue", verdict.Issue),
		slog.String("department", verdict.Department),
		slog.Int("confidence", verdict.Confidence))
	return verdict
}

func (c *Client) failure(stage string, err error) Verdict {
	c.logger.Error("classification failed", slog.String("stage", stage), slog.Any("error", err))
	return Verdict{IsReal: false, FakeReason: "Classifier Service Error"}
}

// ParseVerdict maps the collaborator's loosely-shaped JSON into a Verdict.
// Models wrap output in code fences and rename fields between versions, so
// the mapping is defensive: fences are stripped, synonyms accepted, and
// anything missing is defaulted.
func ParseVerdict(raw []byte) (Verdict, error) {
	text := strings.TrimSpace(string(raw))
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```", "")

	var loose struct {
		IsReal      *bool           `json:"isReal"`
		IsValid     *bool           `json:"isValid"`
		Verified    *bool           `json:"verified"`
		FakeReason  string          `json:"fakeReason"`
		Issue       string          `json:"issue"`
		Detected    string          `json:"detected_issue"`
		Description string          `json:"description"`
		Category    string          `json:"category"`
		Priority    string          `json:"priority"`
		Severity    string          `json:"severity"`
		Department  string          `json:"department"`
		Confidence  json.RawMessage `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &loose); err != nil {
		return Verdict{}, fmt.Errorf("invalid verdict payload: %w", err)
	}

	v := Verdict{
		FakeReason:  loose.FakeReason,
		Issue:       firstNonEmpty(loose.Issue, loose.Detected, loose.Category, "General Issue"),
		Description: loose.Description,
		Category:    firstNonEmpty(loose.Category, "General"),
		Priority:    firstNonEmpty(loose.Priority, loose.Severity, PriorityMedium),
		Confidence:  parseConfidence(loose.Confidence),
	}
	switch {
	case loose.IsReal != nil:
		v.IsReal = *loose.IsReal
	case loose.IsValid != nil:
		v.IsReal = *loose.IsValid
	case loose.Verified != nil:
		v.IsReal = *loose.Verified
	}
	if !v.IsReal && v.FakeReason == "" {
		v.FakeReason = "Verification failed"
	}

	routed := strings.ToLower(v.Category + " " + v.Description)
	v.EventType, v.Department = routeEventAndDepartment(routed)
	if loose.Department != "" {
		v.Department = loose.Department
	}
	return v, nil
}

// parseConfidence accepts a bare number or a {"overall": n} object; anything
// else defaults to 80 per the collaborator contract.
func parseConfidence(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 80
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return clampConfidence(int(n))
	}
	var obj struct {
		Overall float64 `json:"overall"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Overall > 0 {
		return clampConfidence(int(obj.Overall))
	}
	return 80
}

func clampConfidence(n int) int {
	if n < 0 {
		return 0
	}
	if n > 100 {
		return 100
	}
	return n
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
