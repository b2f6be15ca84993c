package retailer

import (
	"context"
	"sync"
)

// Store persists configuration documents. Set merges partial into the stored
// document by top-level key; it never replaces the whole document. Service
// always hands Set complete nested objects.
type Store interface {
	Get(ctx context.Context, key string) (Partial, bool, error)
	Set(ctx context.Context, key string, partial Partial) error
}

// MemoryStore keeps documents in process memory.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]Partial
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]Partial)}
}

// Get returns a copy of the stored document.
func (m *MemoryStore) Get(_ context.Context, key string) (Partial, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	doc, ok := m.docs[key]
	if !ok {
		return nil, false, nil
	}
	return merge(nil, doc), true, nil
}

// Set merges partial into the stored document.
func (m *MemoryStore) Set(_ context.Context, key string, partial Partial) error {
	normalized, err := Normalize(partial)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[key] = merge(m.docs[key], normalized)
	return nil
}

var _ Store = (*MemoryStore)(nil)
