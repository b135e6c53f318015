// Package determinism provides primitives for guaranteeing deterministic
// execution. Grouping and iteration over strata must use these instead of
// Go built-in maps wherever iteration order reaches an output.
package determinism

import (
	"fmt"
	"sort"
)

// StableMap is a map that guarantees iteration order (sorted by key).
// The engine runs one stage at a time on a single goroutine, so the map
// carries no locking.
type StableMap[K comparable, V any] struct {
	keys    []K
	values  map[K]V
	keyFunc func(K) string // For custom ordering
}

// NewStableMap creates a new StableMap
func NewStableMap[K comparable, V any]() *StableMap[K, V] {
	return &StableMap[K, V]{
		values: make(map[K]V),
	}
}

// NewStableMapWithKeyFunc creates a StableMap with custom key ordering
func NewStableMapWithKeyFunc[K comparable, V any](keyFunc func(K) string) *StableMap[K, V] {
	return &StableMap[K, V]{
		values:  make(map[K]V),
		keyFunc: keyFunc,
	}
}

// Set adds or updates a key-value pair
func (m *StableMap[K, V]) Set(key K, value V) {
	if _, exists := m.values[key]; !exists {
		m.keys = append(m.keys, key)
		m.sortKeys()
	}
	m.values[key] = value
}

// Get retrieves a value by key
func (m *StableMap[K, V]) Get(key K) (V, bool) {
	val, ok := m.values[key]
	return val, ok
}

// Range iterates in stable sorted order
func (m *StableMap[K, V]) Range(fn func(K, V) bool) {
	for _, k := range m.keys {
		if !fn(k, m.values[k]) {
			break
		}
	}
}

// Keys returns all keys in sorted order
func (m *StableMap[K, V]) Keys() []K {
	result := make([]K, len(m.keys))
	copy(result, m.keys)
	return result
}

// Len returns the number of entries
func (m *StableMap[K, V]) Len() int {
	return len(m.values)
}

func (m *StableMap[K, V]) sortKeys() {
	sort.Slice(m.keys, func(i, j int) bool {
		if m.keyFunc != nil {
			return m.keyFunc(m.keys[i]) < m.keyFunc(m.keys[j])
		}
		return fmt.Sprint(m.keys[i]) < fmt.Sprint(m.keys[j])
	})
}

// SortSlice sorts a slice in a stable, deterministic manner
func SortSlice[T any](slice []T, less func(a, b T) bool) {
	sort.SliceStable(slice, func(i, j int) bool {
		return less(slice[i], slice[j])
	})
}

// SortedKeys returns map keys in sorted order
func SortedKeys[K comparable, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return fmt.Sprint(keys[i]) < fmt.Sprint(keys[j])
	})
	return keys
}

// RangeMapSorted iterates over a map in sorted key order
func RangeMapSorted[K comparable, V any](m map[K]V, fn func(K, V) bool) {
	for _, k := range SortedKeys(m) {
		if !fn(k, m[k]) {
			break
		}
	}
}
