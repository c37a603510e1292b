package secretstore

import (
	"context"
	"sync"
)

// Memory is a map-backed store. It serves as the test double and as a static
// backend for deployments that mount their secrets at startup.
type Memory struct {
	mu      sync.RWMutex
	secrets map[string][]byte
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{secrets: make(map[string][]byte)}
}

// Fetch returns the value stored under name, or ErrNotFound.
func (m *Memory) Fetch(_ context.Context, name string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.secrets[name]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

// Put stores value under name, replacing any previous value.
func (m *Memory) Put(_ context.Context, name string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := make([]byte, len(value))
	copy(v, value)
	m.secrets[name] = v
	return nil
}

// Delete removes name from the store.
func (m *Memory) Delete(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.secrets, name)
}
