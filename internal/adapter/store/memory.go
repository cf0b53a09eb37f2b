package store

import (
	"sort"
	"sync"

	"ctxrank/internal/domain"
)

// MemoryStore keeps entries in process memory. Nothing survives the
// process.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]domain.CacheEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]domain.CacheEntry),
	}
}

func (s *MemoryStore) Load(key string) (*domain.CacheEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[key]
	if !ok {
		return nil, ErrNotFound
	}
	entry.Matrix = cloneMatrix(entry.Matrix)
	return &entry, nil
}

func (s *MemoryStore) Save(entry *domain.CacheEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *entry
	stored.Matrix = cloneMatrix(entry.Matrix)
	s.entries[entry.Key] = stored
	return nil
}

// List returns headers sorted by key.
func (s *MemoryStore) List() ([]domain.CacheEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := make([]domain.CacheEntry, 0, len(s.entries))
	for _, e := range s.entries {
		e.Matrix = nil
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Key < entries[j].Key
	})
	return entries, nil
}

func (s *MemoryStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}

// Stored matrices are copied so callers cannot mutate them in place.
func cloneMatrix(m domain.Matrix) domain.Matrix {
	if m == nil {
		return nil
	}
	out := make(domain.Matrix, len(m))
	for i, row := range m {
		out[i] = append([]float32(nil), row...)
	}
	return out
}
