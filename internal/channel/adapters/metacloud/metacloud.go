// Package metacloud implements the Meta Cloud API WhatsApp gateway
// (provider B). Inbound events arrive in the nested business-account
// envelope; media is referenced by provider-internal id and resolved through
// the graph API by the media pipeline.
package metacloud

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

const (
	sendTimeout    = 15 * time.Second
	envelopeObject = "whatsapp_business_account"
)

// Adapter implements channel.Provider for the Meta Cloud API.
type Adapter struct {
	logger   *slog.Logger
	graphURL string
	token    string
	phoneID  string
	client   *http.Client
}

// New creates a Meta Cloud adapter from the gateway configuration.
func New(log *slog.Logger, cfg config.MetaConfig) *Adapter {
	if log == nil {
		log = slog.Default()
	}
	return &Adapter{
		logger:   log.With(slog.String("adapter", "metacloud")),
		graphURL: strings.TrimRight(cfg.GraphBaseURL, "/"),
		token:    cfg.Token,
		phoneID:  cfg.PhoneNumberID,
		client:   &http.Client{Timeout: sendTimeout},
	}
}

// Tag returns the metacloud provider tag.
func (a *Adapter) Tag() channel.ProviderTag {
	return channel.ProviderMeta
}

type envelope struct {
	Object string `json:"object"`
	Entry  []struct {
		Changes []struct {
			Value struct {
				Messages []rawMessage `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type rawMessage struct {
	From     string     `json:"from"`
	Type     string     `json:"type"`
	Text     *textBody  `json:"text"`
	Image    *mediaBody `json:"image"`
	Video    *mediaBody `json:"video"`
	Audio    *mediaBody `json:"audio"`
	Location *location  `json:"location"`
}

type textBody struct {
	Body string `json:"body"`
}

type mediaBody struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type"`
}

type location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Name      string  `json:"name"`
	Address   string  `json:"address"`
}

// Match reports whether the payload is a business-account envelope.
func (a *Adapter) Match(payload []byte) bool {
	var probe struct {
		Object string `json:"object"`
	}
	if err := json.Unmarshal(payload, &probe); err != nil {
		return false
	}
	return probe.Object == envelopeObject
}

// Normalize walks the entry/changes nesting and maps every message.
func (a *Adapter) Normalize(payload []byte) ([]channel.InboundMessage, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", channel.ErrNormalization, err)
	}
	if env.Object != envelopeObject {
		return nil, fmt.Errorf("%w: unexpected object %q", channel.ErrNormalization, env.Object)
	}
	var out []channel.InboundMessage
	for _, entry := range env.Entry {
		for _, change := range entry.Changes {
			for _, raw := range change.Value.Messages {
				msg, ok := a.normalizeOne(raw)
				if !ok {
					continue
				}
				out = append(out, msg)
			}
		}
	}
	return out, nil
}

func (a *Adapter) normalizeOne(raw rawMessage) (channel.InboundMessage, bool) {
	if raw.From == "" {
		return channel.InboundMessage{}, false
	}
	msg := channel.InboundMessage{
		SenderID: raw.From,
		ReplyTo:  raw.From,
		Channel:  channel.ProviderMeta,
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
		msg.MediaRef, msg.Mime = mediaRef(raw.Image, "image/jpeg")
	case "video":
		msg.Kind = channel.KindMedia
		msg.MediaKind = channel.MediaVideo
		msg.MediaRef, msg.Mime = mediaRef(raw.Video, "video/mp4")
	case "audio":
		msg.Kind = channel.KindMedia
		msg.MediaKind = channel.MediaAudio
		msg.MediaRef, msg.Mime = mediaRef(raw.Audio, "audio/ogg")
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

func mediaRef(m *mediaBody, fallbackMime string) (string, string) {
	if m == nil {
		return "", fallbackMime
	}
	mime := m.MimeType
	if mime == "" {
		mime = fallbackMime
	}
	return m.ID, mime
}

// SendText posts a text message through the graph API.
func (a *Adapter) SendText(ctx context.Context, to, body string) error {
	if to == "" {
		return nil
	}
	payload, err := json.Marshal(map[string]any{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "text",
		"text":              map[string]string{"body": body},
	})
	if err != nil {
		return fmt.Errorf("encode send: %w", err)
	}
	url := fmt.Sprintf("%s/%s/messages", a.graphURL, a.phoneID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
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
		return fmt.Errorf("send text: graph returned %d", resp.StatusCode)
	}
	a.logger.Debug("reply sent", slog.String("to", to))
	return nil
}
