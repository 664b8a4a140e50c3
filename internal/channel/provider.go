package channel

import (
	"context"
	"fmt"
	"sync"
)

// Normalizer maps a raw webhook payload into canonical inbound messages.
// Implementations are pure: no I/O, no side effects.
type Normalizer interface {
	// Match reports whether the raw payload is shaped like this provider's
	// envelope. Used to route a shared webhook endpoint.
	Match(payload []byte) bool
	// Normalize extracts the inbound messages from the payload. Messages
	// sent by the bot itself are skipped. Returns ErrNormalization when the
	// envelope cannot be decoded at all.
	Normalize(payload []byte) ([]InboundMessage, error)
}

// Sender delivers an outbound text message to a channel address.
type Sender interface {
	SendText(ctx context.Context, to, body string) error
}

// Provider is a complete chat gateway integration.
type Provider interface {
	Tag() ProviderTag
	Normalizer
	Sender
}

// Registry holds the registered providers.
type Registry struct {
	mu        sync.RWMutex
	providers map[ProviderTag]Provider
	order     []ProviderTag
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[ProviderTag]Provider)}
}

// Register adds a provider. Registering the same tag twice panics; provider
// wiring is a startup-time concern.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.providers[p.Tag()]; ok {
		panic(fmt.Sprintf("channel: provider %q already registered", p.Tag()))
	}
	r.providers[p.Tag()] = p
	r.order = append(r.order, p.Tag())
}

// Get returns the provider for tag.
func (r *Registry) Get(tag ProviderTag) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[tag]
	if !ok {
		return nil, fmt.Errorf("channel: provider not found: %s", tag)
	}
	return p, nil
}

// Resolve finds the provider whose envelope shape matches the payload.
func (r *Registry) Resolve(payload []byte) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, tag := range r.order {
		if p := r.providers[tag]; p.Match(payload) {
			return p, true
		}
	}
	return nil, false
}
