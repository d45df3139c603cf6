package storage

import (
	"context"
	"sync"
)

// MemoryStore is an in-process BlobStore. It backs tests and demos and is a
// faithful model of the collaborator contract: content-addressed, publicly
// fetchable by reference, no delete operation.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[Ref][]byte
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[Ref][]byte)}
}

func (m *MemoryStore) Upload(ctx context.Context, data []byte, name string) (Ref, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	ref, err := ComputeRef(data)
	if err != nil {
		return "", err
	}

	stored := make([]byte, len(data))
	copy(stored, data)

	m.mu.Lock()
	m.blobs[ref] = stored
	m.mu.Unlock()
	return ref, nil
}

func (m *MemoryStore) Fetch(ctx context.Context, ref Ref) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	stored, ok := m.blobs[ref]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrUnavailable
	}

	data := make([]byte, len(stored))
	copy(data, stored)
	return data, nil
}

// Len reports the number of distinct blobs held.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.blobs)
}
