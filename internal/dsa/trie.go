// Package dsa provides the index structures behind the storage tiers.
// Trie wraps go-radix; SuffixArray backs full-text search over stored results.
package dsa

import (
	"github.com/armon/go-radix"
)

// Trie is a compressed prefix tree keyed by string.
// Keys come back in lexical order, which is what the session tier
// relies on for stable key listings.
type Trie[V any] struct {
	tree *radix.Tree
	size int
}

// NewTrie creates an empty tree.
func NewTrie[V any]() *Trie[V] {
	return &Trie[V]{
		tree: radix.New(),
	}
}

// Insert adds or replaces the value for key.
func (t *Trie[V]) Insert(key string, value V) {
	_, updated := t.tree.Insert(key, value)
	if !updated {
		t.size++
	}
}

// Search looks up a key.
func (t *Trie[V]) Search(key string) (V, bool) {
	val, found := t.tree.Get(key)
	if !found {
		var zero V
		return zero, false
	}
	v, ok := val.(V)
	if !ok {
		var zero V
		return zero, false
	}
	return v, true
}

// StartsWith returns all keys with the given prefix, in lexical order.
func (t *Trie[V]) StartsWith(prefix string) []string {
	var results []string
	t.tree.WalkPrefix(prefix, func(k string, v interface{}) bool {
		results = append(results, k)
		return false
	})
	return results
}

// Delete removes a key. Returns true if it was present.
func (t *Trie[V]) Delete(key string) bool {
	_, deleted := t.tree.Delete(key)
	if deleted {
		t.size--
	}
	return deleted
}

// Size returns the number of keys.
func (t *Trie[V]) Size() int {
	return t.size
}

// Keys returns every key in lexical order.
func (t *Trie[V]) Keys() []string {
	return t.StartsWith("")
}

// Clear drops all keys.
func (t *Trie[V]) Clear() {
	t.tree = radix.New()
	t.size = 0
}
