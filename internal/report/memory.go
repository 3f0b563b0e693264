package report

import (
	"context"
	"sync"

	"github.com/cloudidm/onboard/internal/provision"
)

// MemoryStore keeps status records in memory. Used in tests and when the
// portal runs without MongoDB configured.
type MemoryStore struct {
	mu    sync.RWMutex
	store map[string]Entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{store: make(map[string]Entry)}
}

func (m *MemoryStore) Update(_ context.Context, email string, rec provision.StatusRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store[email] = entryFrom(email, rec)
	return nil
}

func (m *MemoryStore) Get(_ context.Context, email string) (*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if e, ok := m.store[email]; ok {
		return &e, nil
	}
	return nil, ErrNotFound
}
