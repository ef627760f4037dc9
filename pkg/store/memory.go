package store

import (
	"sync"
)

// MemoryStore is a simple in-memory implementation, intended for tests and
// environments without writable storage.
type MemoryStore struct {
	mu      sync.RWMutex
	data    map[string][]byte
	flushes int
	closed  int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

// Opener returns an Opener that always hands out this instance.
func (m *MemoryStore) Opener() Opener {
	return func() (Store, error) { return m, nil }
}

func (m *MemoryStore) Children(path string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	return childNames(path, keys), nil
}

func (m *MemoryStore) Get(key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

func (m *MemoryStore) Put(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := make([]byte, len(value))
	copy(v, value)
	m.data[key] = v
	return nil
}

func (m *MemoryStore) DeleteTree(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.data {
		if inTree(path, k) {
			delete(m.data, k)
		}
	}
	return nil
}

func (m *MemoryStore) Flush() error {
	m.mu.Lock()
	m.flushes++
	m.mu.Unlock()
	return nil
}

// Close is a no-op; the data outlives the operation that opened it.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	m.closed++
	m.mu.Unlock()
	return nil
}

// Keys returns every stored key, for inspection in tools and tests.
func (m *MemoryStore) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.data))
	for k := range m.data {
		out = append(out, k)
	}
	return out
}

// Stats reports how many times Flush and Close were called.
func (m *MemoryStore) Stats() (flushes, closes int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.flushes, m.closed
}
