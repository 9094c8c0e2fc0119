package cache

import (
	"context"
	"slices"
	"sync"
)

// Store is a list cache keyed by scope.
type Store[T any] interface {
	// Get returns the cached listing. ok is false on a miss.
	Get(ctx context.Context, scope string) (items []T, ok bool, err error)

	// Set replaces the listing for scope.
	Set(ctx context.Context, scope string, items []T) error

	// Delete removes the listing for scope. Deleting a missing scope is not an error.
	Delete(ctx context.Context, scope string) error

	// Clear removes every listing in the store.
	Clear(ctx context.Context) error
}

// MemoryStore is an in-process Store. Items are copied on the way in and
// out so callers cannot alter a stored listing.
type MemoryStore[T any] struct {
	mu      sync.RWMutex
	entries map[string]*Entry[T]
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore[T any]() *MemoryStore[T] {
	return &MemoryStore[T]{entries: make(map[string]*Entry[T])}
}

// Get implements Store.
func (s *MemoryStore[T]) Get(_ context.Context, scope string) ([]T, bool, error) {
	s.mu.RLock()
	entry, ok := s.entries[scope]
	s.mu.RUnlock()

	if !ok {
		CacheMisses.WithLabelValues(BackendMemory).Inc()
		return nil, false, nil
	}

	CacheHits.WithLabelValues(BackendMemory).Inc()
	items := slices.Clone(entry.Items)
	if items == nil {
		items = []T{}
	}
	return items, true, nil
}

// Set implements Store.
func (s *MemoryStore[T]) Set(_ context.Context, scope string, items []T) error {
	entry := &Entry[T]{Items: slices.Clone(items), CachedAt: timeNow()}

	s.mu.Lock()
	s.entries[scope] = entry
	s.mu.Unlock()
	return nil
}

// Delete implements Store.
func (s *MemoryStore[T]) Delete(_ context.Context, scope string) error {
	s.mu.Lock()
	delete(s.entries, scope)
	s.mu.Unlock()
	return nil
}

// Clear implements Store.
func (s *MemoryStore[T]) Clear(_ context.Context) error {
	s.mu.Lock()
	clear(s.entries)
	s.mu.Unlock()
	return nil
}

// Len returns the number of cached scopes.
func (s *MemoryStore[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
