package store

import (
	"context"
	"sync"
	"time"
)

// MemoryBackend keeps collections in process memory. Contexts that share one
// MemoryBackend behave like tabs sharing one durable store.
type MemoryBackend struct {
	mu          sync.RWMutex
	collections map[string]map[string]Record
	now         func() time.Time
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		collections: make(map[string]map[string]Record),
		now:         time.Now,
	}
}

func (m *MemoryBackend) Load(ctx context.Context, collection string) (map[string]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]Record, len(m.collections[collection]))
	for id, rec := range m.collections[collection] {
		rec.Data = cloneBytes(rec.Data)
		out[id] = rec
	}
	return out, nil
}

func (m *MemoryBackend) Replace(ctx context.Context, collection string, records map[string]Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev := m.collections[collection]
	next := make(map[string]Record, len(records))
	now := m.now()
	for id, rec := range records {
		next[id] = Record{
			ID:        id,
			Version:   prev[id].Version + 1,
			Data:      cloneBytes(rec.Data),
			UpdatedAt: now,
		}
	}
	m.collections[collection] = next
	return nil
}

func (m *MemoryBackend) Get(ctx context.Context, collection, id string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.collections[collection][id]
	if !ok {
		return Record{}, ErrNotFound
	}
	rec.Data = cloneBytes(rec.Data)
	return rec, nil
}

func (m *MemoryBackend) CompareAndSwap(ctx context.Context, collection string, rec Record, expectedVersion int64) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	coll, ok := m.collections[collection]
	if !ok {
		coll = make(map[string]Record)
		m.collections[collection] = coll
	}

	current, exists := coll[rec.ID]
	switch {
	case expectedVersion == 0 && exists:
		return Record{}, ErrConflict
	case expectedVersion != 0 && !exists:
		return Record{}, ErrNotFound
	case exists && current.Version != expectedVersion:
		return Record{}, ErrVersionConflict
	}

	stored := Record{
		ID:        rec.ID,
		Version:   expectedVersion + 1,
		Data:      cloneBytes(rec.Data),
		UpdatedAt: m.now(),
	}
	coll[rec.ID] = stored
	stored.Data = cloneBytes(stored.Data)
	return stored, nil
}

func (m *MemoryBackend) Delete(ctx context.Context, collection, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.collections[collection], id)
	return nil
}

func (m *MemoryBackend) Ping(ctx context.Context) error { return nil }

func (m *MemoryBackend) Close() error { return nil }
