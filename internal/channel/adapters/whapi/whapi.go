// Package whapi implements the flat-envelope WhatsApp gateway (provider A).
// Inbound events arrive as {"messages":[...]} batches with direct media URLs;
// outbound text goes to POST {base}/messages/text with bearer auth.
package whapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/nagaralert/nagaralert/internal/channel"
	"github.com/nagaralert/nagaralert/internal/config"
)

const sendTimeout = 15 * time.Second

// Adapter implements channel.Provider for the whapi gateway.
type Adapter struct {
	logger  *slog.Logger
	baseURL string
	token   string
	client  *http.Client
}

// New creates a whapi adapter from the gateway configuration.
func New(log *slog.Logger, cfg config.WhapiConfig) *Adapter {
	if log == nil {
		log = slog.Default()
	}
	return &Adapter{
		logger:  log.With(slog.String("adapter", "whapi")),
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		client:  &http.Client{Timeout: sendTimeout},
	}
}

// Tag returns the whapi provider tag.
func (a *Adapter) Tag() channel.ProviderTag {
	return channel.ProviderWhapi
}

type envelope struct {
	Messages []rawMessage `json:"messages"`
}

type rawMessage struct {
	FromMe   bool       `json:"from_me"`
	ChatID   string     `json:"chat_id"`
	From     string     `json:"from"`
	Type     string     `json:"type"`
	Text     *textBody  `json:"text"`
	Image    *mediaBody `json:"image"`
	Video    *mediaBody `json:"video"`
	Audio    *mediaBody `json:"audio"`
	Voice    *mediaBody `json:"voice"`
	Location *location  `json:"location"`
}

type textBody struct {
	Body string `json:"body"`
}

type mediaBody struct {
	Link     string `json:"link"`
	URL      string `json:"url"`
	MimeType string `json:"mime_type"`
}

func (m *mediaBody) ref() string {
	if m == nil {
		return ""
	}
	if m.Link != "" {
		return m.Link
	}
	return m.URL
}

type location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Address   string  `json:"address"`
	Name      string  `json:"name"`
}

// Match reports whether the payload carries a top-level messages array.
func (a *Adapter) Match(payload []byte) bool {
	var probe struct {
		Messages []json.RawMessage `json:"messages"`
	}
	if err := json.Unmarshal(payload, &probe); err != nil {
		return false
	}
	return probe.Messages != nil
}

// Normalize maps the batch into canonical messages, skipping echoes of our
// own outbound sends.
func (a *Adapter) Normalize(payload []byte) ([]channel.InboundMessage, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", channel.ErrNormalization, err)
	}
	out := make([]channel.InboundMessage, 0, len(env.Messages))
	for _, raw := range env.Messages {
		if raw.FromMe {
			continue
		}
		msg, ok := a.normalizeOne(raw)
		if !ok {
			continue
		}
		out = append(out, msg)
	}
	return out, nil
}

func (a *Adapter) normalizeOne(raw rawMessage) (channel.InboundMessage, bool) {
	replyTo := raw.ChatID
	if replyTo == "" {
		replyTo = raw.From
	}
	if replyTo == "" {
		return channel.InboundMessage{}, false
	}
	msg := channel.InboundMessage{
		SenderID: channel.BareSender(replyTo),
		ReplyTo:  replyTo,
		Channel:  channel.ProviderWhapi,
	}

	switch raw.Type {
	case "text":
		msg.Kind = channel.KindText
		if raw.Text != nil {
			msg.Body = raw.Text.Body
		}
	case "image":
		msg.Kind = channel.KindMedia
		msg.MediaKind = channel.MediaImage
		msg.MediaRef = raw.Image.ref()
		msg.Mime = mimeOf(raw.Image, "image/jpeg")
	case "video":
		msg.Kind = channel.KindMedia
		msg.MediaKind = channel.MediaVideo
		msg.MediaRef = raw.Video.ref()
		msg.Mime = mimeOf(raw.Video, "video/mp4")
	case "audio", "voice":
		msg.Kind = channel.KindMedia
		msg.MediaKind = channel.MediaAudio
		msg.MediaRef = firstRef(raw.Audio, raw.Voice)
		msg.Mime = firstMime("audio/ogg", raw.Audio, raw.Voice)
	case "location":
		msg.Kind = channel.KindLocation
		if raw.Location != nil {
			address := raw.Location.Address
			if address == "" {
				address = raw.Location.Name
			}
			msg.Coordinates = &channel.Coordinates{
				Lat:     raw.Location.Latitude,
				Lng:     raw.Location.Longitude,
				Address: address,
			}
		}
	default:
		msg.Kind = channel.KindUnsupported
	}
	return msg, true
}

func mimeOf(m *mediaBody, fallback string) string {
	if m != nil && m.MimeType != "" {
		return m.MimeType
	}
	return fallback
}

func firstRef(bodies ...*mediaBody) string {
	for _, b := range bodies {
		if ref := b.ref(); ref != "" {
			return ref
		}
	}
	return ""
}

func firstMime(fallback string, bodies ...*mediaBody) string {
	for _, b := range bodies {
		if b != nil && b.MimeType != "" {
			return b.MimeType
		}
	}
	return fallback
}

// SendText posts a text message to the gateway.
func (a *Adapter) SendText(ctx context.Context, to, body string) error {
	if to == "" {
		return nil
	}
	payload, err := json.Marshal(map[string]string{"to": to, "body": body})
	if err != nil {
		return fmt.Errorf("encode send: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/messages/text", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build send request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+a.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("send text: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("send text: gateway returned %d", resp.StatusCode)
	}
	a.logger.Debug("reply sent", slog.String("to", to))
	return nil
}
