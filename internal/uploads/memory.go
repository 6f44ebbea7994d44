package uploads

import (
	"context"
	"sync"
)

// MemoryBackend keeps uploads in process memory.
type MemoryBackend struct {
	mu      sync.RWMutex
	records map[Kind]map[string]Record
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{records: make(map[Kind]map[string]Record)}
}

func (m *MemoryBackend) Put(_ context.Context, kind Kind, rec *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.records[kind] == nil {
		m.records[kind] = make(map[string]Record)
	}
	m.records[kind][rec.ID] = *rec
	return nil
}

func (m *MemoryBackend) Get(_ context.Context, kind Kind, id string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[kind][id]
	if !ok {
		return nil, ErrNotFound
	}
	return &rec, nil
}

func (m *MemoryBackend) List(_ context.Context, kind Kind) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Record, 0, len(m.records[kind]))
	for _, rec := range m.records[kind] {
		out = append(out, rec)
	}
	return out, nil
}
