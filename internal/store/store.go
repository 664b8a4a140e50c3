// Package store defines the path-addressable document store the bot and the
// broadcast subsystem persist into. Documents live under slash-separated
// paths (for example "reports/<id>"); partial updates may address nested
// fields with slash-separated keys (for example "location/address").
package store

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrNotFound is returned when no document exists at the requested path.
var ErrNotFound = errors.New("store: document not found")

// Client is the storage abstraction. The backing engine is out of scope for
// this service; implementations must provide atomic per-path updates and a
// read-modify-write transaction primitive.
type Client interface {
	// Get decodes the document at path into out.
	Get(ctx context.Context, path string, out any) error
	// Set writes the full document at path, replacing any existing one.
	Set(ctx context.Context, path string, doc any) error
	// Update merges the given fields into the document at path, creating it
	// if absent. Keys may address nested fields with slashes.
	Update(ctx context.Context, path string, fields map[string]any) error
	// Push stores doc under parent with a generated child id and returns it.
	Push(ctx context.Context, parent string, doc any) (string, error)
	// List returns every direct child of parent keyed by child id.
	List(ctx context.Context, parent string) (map[string]json.RawMessage, error)
	// Query returns the children of parent whose top-level field equals the
	// given string value.
	Query(ctx context.Context, parent, field, equals string) (map[string]json.RawMessage, error)
	// Transaction applies fn to the current document at path (nil when
	// absent) and atomically stores the returned document.
	Transaction(ctx context.Context, path string, fn func(current json.RawMessage) (any, error)) error
	// Delete removes the document at path. Missing documents are not an error.
	Delete(ctx context.Context, path string) error
}

// MergeFields applies partial-update semantics to a decoded document.
// Slash-separated keys descend into nested objects, creating them as needed.
func MergeFields(doc map[string]any, fields map[string]any) map[string]any {
	if doc == nil {
		doc = make(map[string]any)
	}
	for key, value := range fields {
		setPath(doc, splitKey(key), value)
	}
	return doc
}

func splitKey(key string) []string {
	var parts []string
	start := 0
	for i := 0; i < len(key); i++ {
		if key[i] == '/' {
			if i > start {
				parts = append(parts, key[start:i])
			}
			start = i + 1
		}
	}
	if start < len(key) {
		parts = append(parts, key[start:])
	}
	return parts
}

func setPath(doc map[string]any, parts []string, value any) {
	if len(parts) == 0 {
		return
	}
	if len(parts) == 1 {
		doc[parts[0]] = value
		return
	}
	child, ok := doc[parts[0]].(map[string]any)
	if !ok {
		child = make(map[string]any)
		doc[parts[0]] = child
	}
	setPath(child, parts[1:], value)
}
