// Package email sends alert and escalation emails through a configurable
// provider. Delivery is best-effort; the broadcast batch never aborts on a
// single recipient failure.
package email

import (
	"context"
	"fmt"
	"sync"
)

// ProviderName identifies an email backend.
type ProviderName string

// OutboundEmail is a single message to deliver.
type OutboundEmail struct {
	From    string
	To      string
	Subject string
	Body    string
	HTML    bool
}

// Sender delivers outbound emails.
type Sender interface {
	Send(ctx context.Context, msg OutboundEmail) error
}

// Adapter is the base interface every email adapter implements.
type Adapter interface {
	Type() ProviderName
	Sender
}

// Registry holds the registered email adapters.
type Registry struct {
	mu       sync.RWMutex
	adapters map[ProviderName]Adapter
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[ProviderName]Adapter)}
}

// Register adds an adapter.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Type()] = a
}

// Get returns the adapter for name.
func (r *Registry) Get(name ProviderName) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[name]
	if !ok {
		return nil, fmt.Errorf("email adapter not found: %s", name)
	}
	return a, nil
}
