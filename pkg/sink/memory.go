package sink

import (
	"context"
	"sync"
)

// Memory is an in-memory sink for tests and dry runs.
type Memory struct {
	mu          sync.RWMutex
	collections map[string]map[string]map[string]any
}

// NewMemory creates an empty in-memory sink.
func NewMemory() *Memory {
	return &Memory{
		collections: make(map[string]map[string]map[string]any),
	}
}

// Write stores the record. The first write for a key wins; duplicates are
// silently dropped, matching the key-uniqueness contract of durable sinks.
func (m *Memory) Write(_ context.Context, collection, key string, record map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	coll, ok := m.collections[collection]
	if !ok {
		coll = make(map[string]map[string]any)
		m.collections[collection] = coll
	}
	if _, exists := coll[key]; exists {
		return nil
	}
	coll[key] = record
	return nil
}

// Keys returns the keys present in a collection.
func (m *Memory) Keys(_ context.Context, collection string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	coll := m.collections[collection]
	keys := make([]string, 0, len(coll))
	for key := range coll {
		keys = append(keys, key)
	}
	return keys, nil
}

// Get returns the stored record for a key, if any.
func (m *Memory) Get(collection, key string) (map[string]any, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	record, ok := m.collections[collection][key]
	return record, ok
}

// Len returns the number of records in a collection.
func (m *Memory) Len(collection string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.collections[collection])
}
