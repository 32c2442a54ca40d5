// Package cache provides keyed identity stores that share a single
// enable switch.
package cache

import (
	"fmt"
	"regexp"
	"sort"
	"sync"
	"sync/atomic"
)

// Cache holds two independent stores, one for clients and one for
// resources. While disabled, writes to either store are ignored.
type Cache[C any, R any] struct {
	enabled   *atomic.Bool
	clients   *Store[C]
	resources *Store[R]
}

func New[C any, R any]() *Cache[C, R] {
	enabled := &atomic.Bool{}
	enabled.Store(true)

	return &Cache[C, R]{
		enabled:   enabled,
		clients:   newStore[C](enabled),
		resources: newStore[R](enabled),
	}
}

func (c *Cache[C, R]) Clients() *Store[C] {
	return c.clients
}

func (c *Cache[C, R]) Resources() *Store[R] {
	return c.resources
}

func (c *Cache[C, R]) Enabled() bool {
	return c.enabled.Load()
}

func (c *Cache[C, R]) Enable() {
	c.enabled.Store(true)
}

// Disable stops the cache from accepting new entries and flushes both stores.
func (c *Cache[C, R]) Disable() {
	c.enabled.Store(false)
	c.Reset()
}

func (c *Cache[C, R]) Reset() {
	c.clients.Clear()
	c.resources.Clear()
}

type Store[T any] struct {
	mu      sync.RWMutex
	enabled *atomic.Bool
	items   map[string]T
}

func newStore[T any](enabled *atomic.Bool) *Store[T] {
	return &Store[T]{
		enabled: enabled,
		items:   map[string]T{},
	}
}

func (s *Store[T]) Get(key string) (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.items[key]
	return item, ok
}

// Set stores item under key. It reports false if the cache is disabled.
func (s *Store[T]) Set(key string, item T) bool {
	if !s.enabled.Load() {
		return false
	}

	s.mu.Lock()
	s.items[key] = item
	s.mu.Unlock()

	return true
}

func (s *Store[T]) Has(key string) bool {
	_, ok := s.Get(key)
	return ok
}

func (s *Store[T]) Delete(key string) {
	s.mu.Lock()
	delete(s.items, key)
	s.mu.Unlock()
}

// DeleteFunc removes every entry for which match returns true and returns
// the number of removed entries.
func (s *Store[T]) DeleteFunc(match func(key string, item T) bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for k, v := range s.items {
		if match(k, v) {
			delete(s.items, k)
			count++
		}
	}

	return count
}

// Purge removes all entries whose key matches the regular expression pattern.
func (s *Store[T]) Purge(pattern string) (int, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return 0, fmt.Errorf("invalid purge pattern %q: %w", pattern, err)
	}

	return s.DeleteFunc(func(key string, _ T) bool {
		return re.MatchString(key)
	}), nil
}

func (s *Store[T]) Clear() {
	s.mu.Lock()
	s.items = map[string]T{}
	s.mu.Unlock()
}

func (s *Store[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Keys returns all keys in sorted order.
func (s *Store[T]) Keys() []string {
	s.mu.RLock()
	keys := make([]string, 0, len(s.items))
	for k := range s.items {
		keys = append(keys, k)
	}
	s.mu.RUnlock()

	sort.Strings(keys)
	return keys
}
