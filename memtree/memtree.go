// Package memtree is a plain in-memory ordered map used only as a test
// oracle: tests build the same sequence of operations against both a
// buftree.Tree and a memtree.Tree and assert the two agree. It owns no
// buffer and performs no allocation tricks, so its correctness is easy to
// trust independently of everything buftree does.
package memtree

import (
	"cmp"
	"iter"
	"sort"
)

// Tree is an ordered key-value map backed by a single sorted slice pair.
type Tree[K cmp.Ordered, V any] struct {
	keys []K
	vals []V
}

// New returns an empty tree.
func New[K cmp.Ordered, V any]() *Tree[K, V] {
	return &Tree[K, V]{}
}

func (t *Tree[K, V]) search(key K) (int, bool) {
	idx := sort.Search(len(t.keys), func(i int) bool { return t.keys[i] >= key })
	if idx < len(t.keys) && t.keys[idx] == key {
		return idx, true
	}
	return idx, false
}

// Get looks up key.
func (t *Tree[K, V]) Get(key K) (V, bool) {
	var zero V
	idx, found := t.search(key)
	if !found {
		return zero, false
	}
	return t.vals[idx], true
}

// Insert sets key to value, returning any prior value.
func (t *Tree[K, V]) Insert(key K, value V) (V, bool) {
	var zero V
	idx, found := t.search(key)
	if found {
		old := t.vals[idx]
		t.vals[idx] = value
		return old, true
	}
	var zeroKey K
	t.keys = append(t.keys, zeroKey)
	copy(t.keys[idx+1:], t.keys[idx:])
	t.keys[idx] = key

	t.vals = append(t.vals, zero)
	copy(t.vals[idx+1:], t.vals[idx:])
	t.vals[idx] = value
	return zero, false
}

// Remove deletes key if present.
func (t *Tree[K, V]) Remove(key K) (V, bool) {
	var zero V
	idx, found := t.search(key)
	if !found {
		return zero, false
	}
	old := t.vals[idx]
	t.keys = append(t.keys[:idx], t.keys[idx+1:]...)
	t.vals = append(t.vals[:idx], t.vals[idx+1:]...)
	return old, true
}

// Len reports the number of entries.
func (t *Tree[K, V]) Len() int {
	return len(t.keys)
}

// Iter returns every (key, value) pair in ascending key order.
func (t *Tree[K, V]) Iter() iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		for i := range t.keys {
			if !yield(t.keys[i], t.vals[i]) {
				return
			}
		}
	}
}
