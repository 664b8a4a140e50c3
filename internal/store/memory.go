package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Memory is an in-process Client used by tests and local development.
type Memory struct {
	mu   sync.Mutex
	docs map[string]json.RawMessage
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{docs: make(map[string]json.RawMessage)}
}

func (m *Memory) Get(_ context.Context, path string, out any) error {
	m.mu.Lock()
	raw, ok := m.docs[path]
	m.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (m *Memory) Set(_ context.Context, path string, doc any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	m.mu.Lock()
	m.docs[path] = raw
	m.mu.Unlock()
	return nil
}

func (m *Memory) Update(_ context.Context, path string, fields map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current := make(map[string]any)
	if raw, ok := m.docs[path]; ok {
		if err := json.Unmarshal(raw, &current); err != nil {
			return fmt.Errorf("decode %s: %w", path, err)
		}
	}
	merged := MergeFields(current, fields)
	raw, err := json.Marshal(merged)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	m.docs[path] = raw
	return nil
}

func (m *Memory) Push(ctx context.Context, parent string, doc any) (string, error) {
	id := uuid.NewString()
	if err := m.Set(ctx, parent+"/"+id, doc); err != nil {
		return "", err
	}
	return id, nil
}

func (m *Memory) List(_ context.Context, parent string) (map[string]json.RawMessage, error) {
	prefix := parent + "/"
	out := make(map[string]json.RawMessage)
	m.mu.Lock()
	defer m.mu.Unlock()
	for path, raw := range m.docs {
		if !strings.HasPrefix(path, prefix) {
			continue
		}
		child := strings.TrimPrefix(path, prefix)
		if strings.Contains(child, "/") {
			continue
		}
		out[child] = raw
	}
	return out, nil
}

func (m *Memory) Query(ctx context.Context, parent, field, equals string) (map[string]json.RawMessage, error) {
	children, err := m.List(ctx, parent)
	if err != nil {
		return nil, err
	}
	out := make(map[string]json.RawMessage)
	for id, raw := range children {
		var doc map[string]any
		if err := json.Unmarshal(raw, &doc); err != nil {
			continue
		}
		if value, ok := doc[field].(string); ok && value == equals {
			out[id] = raw
		}
	}
	return out, nil
}

func (m *Memory) Transaction(_ context.Context, path string, fn func(current json.RawMessage) (any, error)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	next, err := fn(m.docs[path])
	if err != nil {
		return err
	}
	raw, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	m.docs[path] = raw
	return nil
}

func (m *Memory) Delete(_ context.Context, path string) error {
	m.mu.Lock()
	delete(m.docs, path)
	m.mu.Unlock()
	return nil
}
