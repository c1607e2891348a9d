package store

import (
	"context"
	"sync"
)

// MemoryStore implements DurableStore in process memory. It backs
// single-process deployments and tests; values do not survive a restart.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		values: make(map[string]string),
	}
}

// GetString returns the value for key and whether it exists
func (ms *MemoryStore) GetString(_ context.Context, key string) (string, bool, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	val, ok := ms.values[key]
	return val, ok, nil
}

// SetString stores the value for key
func (ms *MemoryStore) SetString(_ context.Context, key, value string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.values[key] = value
	return nil
}

// Remove deletes the key
func (ms *MemoryStore) Remove(_ context.Context, key string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	delete(ms.values, key)
	return nil
}

// Close is a no-op for the in-memory store
func (ms *MemoryStore) Close() error {
	return nil
}
