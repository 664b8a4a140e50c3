// Package channel provides a unified abstraction over the supported chat
// gateways. It defines the canonical inbound message shape, the provider
// interfaces, and a registry keyed by provider tag.
package channel

import (
	"errors"
	"strings"
)

// ProviderTag identifies a chat gateway backend.
type ProviderTag string

const (
	// ProviderWhapi is the flat-envelope gateway (direct media URLs).
	ProviderWhapi ProviderTag = "whapi"
	// ProviderMeta is the Meta Cloud API gateway (nested envelope, media ids).
	ProviderMeta ProviderTag = "metacloud"
)

// String returns the provider tag as a plain string.
func (p ProviderTag) String() string {
	return string(p)
}

// MessageKind classifies an inbound message.
type MessageKind string

const (
	KindText     MessageKind = "text"
	KindMedia    MessageKind = "media"
	KindLocation MessageKind = "location"
	// KindUnsupported marks message types the bot cannot process. They are
	// normalized rather than rejected so the caller can reply with guidance.
	KindUnsupported MessageKind = "unsupported"
)

// MediaKind classifies the payload of a KindMedia message.
type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaVideo MediaKind = "video"
	MediaAudio MediaKind = "audio"
)

// Coordinates is a shared-location payload. Address may be empty when the
// provider sends bare coordinates.
type Coordinates struct {
	Lat     float64
	Lng     float64
	Address string
}

// InboundMessage is the canonical message shape every provider envelope is
// normalized into.
type InboundMessage struct {
	// SenderID is the bare channel address (phone number without the
	// provider suffix); it keys drafts and profiles.
	SenderID string
	// ReplyTo is the full channel address replies are sent to.
	ReplyTo string
	Channel ProviderTag
	Kind    MessageKind
	Body    string
	// MediaRef is a direct URL, a provider-internal media id, or an inline
	// data: payload depending on the provider.
	MediaRef    string
	MediaKind   MediaKind
	Mime        string
	Coordinates *Coordinates
}

// ErrNormalization marks a provider envelope that could not be mapped into
// InboundMessages. Such events are logged and dropped; there is no resolvable
// sender to reply to.
var ErrNormalization = errors.New("channel: malformed provider envelope")

// BareSender strips a provider suffix from a channel address
// ("123@s.whatsapp.net" -> "123").
func BareSender(address string) string {
	if idx := strings.IndexByte(address, '@'); idx >= 0 {
		return address[:idx]
	}
	return address
}
