// In-memory session tier.
//
// Information Hiding:
// - Radix tree key index hidden from users
// - Thread-safe access via RWMutex hidden behind interface
// - Nothing is written to disk; contents end with the process

package storage

import (
	"context"
	"sync"

	"github.com/richinex/fistop/internal/dsa"
)

// MemoryKV implements KVStore and Batcher for the session tier.
// It stands in for a browser's session storage: values live exactly as long
// as the process that created them.
type MemoryKV struct {
	mu   sync.RWMutex
	data *dsa.Trie[string]
}

// NewMemoryKV creates an empty session tier.
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{
		data: dsa.NewTrie[string](),
	}
}

// Get returns the value stored under key.
func (m *MemoryKV) Get(ctx context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.data.Search(key)
	return v, ok, nil
}

// Set stores value under key.
func (m *MemoryKV) Set(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data.Insert(key, value)
	return nil
}

// Remove deletes key.
func (m *MemoryKV) Remove(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data.Delete(key)
	return nil
}

// Keys lists all keys in lexical order.
func (m *MemoryKV) Keys(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := m.data.Keys()
	if keys == nil {
		keys = []string{}
	}
	return keys, nil
}

// Apply performs writes under a single lock acquisition.
func (m *MemoryKV) Apply(ctx context.Context, writes []Write) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, w := range writes {
		if w.Delete {
			m.data.Delete(w.Key)
		} else {
			m.data.Insert(w.Key, w.Value)
		}
	}
	return nil
}

// Clear drops every key.
func (m *MemoryKV) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data.Clear()
}
