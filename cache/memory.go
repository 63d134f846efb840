package cache

import (
	"sync"
)

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Entry)}
}

// Get returns the entry stored under key.
func (s *MemoryStore) Get(key string) (Entry, bool) {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	return e, ok
}

// Set stores entry under key, replacing any previous entry.
func (s *MemoryStore) Set(key string, entry Entry) {
	s.mu.Lock()
	s.entries[key] = entry
	s.mu.Unlock()
}

// Delete removes key. Idempotent.
func (s *MemoryStore) Delete(key string) {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
}

// DeleteIf removes key if pred holds for its current entry.
func (s *MemoryStore) DeleteIf(key string, pred func(Entry) bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok || !pred(e) {
		return false
	}
	delete(s.entries, key)
	return true
}

// Range iterates over a snapshot of the entries.
func (s *MemoryStore) Range(fn func(key string, entry Entry) bool) {
	s.mu.RLock()
	snapshot := make(map[string]Entry, len(s.entries))
	for k, e := range s.entries {
		snapshot[k] = e
	}
	s.mu.RUnlock()

	for k, e := range snapshot {
		if !fn(k, e) {
			return
		}
	}
}

// Len returns the number of stored entries, expired or not.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Ensure MemoryStore implements Store
var _ Store = (*MemoryStore)(nil)
