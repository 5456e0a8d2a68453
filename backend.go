package stash

import (
	"bytes"
	"context"
	"sync"
)

// Backend is a durable key-value store addressed by string key.
// No transaction, batch, or delete operation is required.
type Backend interface {
	// Get returns the stored bytes for key, or ErrNotFound when the key has
	// no entry. Any other error means the backend could not be read.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set replaces the stored bytes for key.
	Set(ctx context.Context, key string, value []byte) error
}

// MemoryBackend is an in-process Backend. It is safe for concurrent use and
// is mostly useful for tests and for sharing values between bindings in a
// single process.
type MemoryBackend struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryBackend creates an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{data: make(map[string][]byte)}
}

// Get returns a copy of the bytes stored for key.
func (m *MemoryBackend) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return bytes.Clone(v), nil
}

// Set stores a copy of value under key.
func (m *MemoryBackend) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data[key] = bytes.Clone(value)
	return nil
}

// Len returns the number of stored keys.
func (m *MemoryBackend) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

// Ensure MemoryBackend implements Backend.
var _ Backend = (*MemoryBackend)(nil)
