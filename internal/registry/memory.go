package registry

import (
	"context"
	"sync"
	"time"
)

// memStore is an in-memory Store for development and tests. It keeps
// the same conflict semantics as the Postgres store so resolver races
// behave identically.
type memStore struct {
	mu   sync.Mutex
	recs map[string]TenantRecord
}

func NewMemoryStore() Store {
	return &memStore{recs: map[string]TenantRecord{}}
}

func (m *memStore) EnsureSchema(ctx context.Context) error { return nil }

func (m *memStore) Find(ctx context.Context, tenantID string) (*TenantRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recs[tenantID]
	if !ok {
		return nil, ErrNotFound
	}
	out := rec
	return &out, nil
}

func (m *memStore) Insert(ctx context.Context, rec *TenantRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.recs[rec.TenantID]; ok {
		return ErrConflict
	}
	m.recs[rec.TenantID] = *rec
	return nil
}

func (m *memStore) BumpUsage(ctx context.Context, tenantID string, delta int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recs[tenantID]
	if !ok {
		return ErrNotFound
	}
	rec.StorageUsedBytes += delta
	rec.UpdatedAt = time.Now().UTC()
	m.recs[tenantID] = rec
	return nil
}
