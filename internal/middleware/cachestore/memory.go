package cachestore

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// Memory is an in-process LRU store with per-entry expiry.
// It is safe for concurrent use. Values are stored as given and Get returns
// the same value to every caller, so callers must copy before mutating.
type Memory struct {
	mu      sync.Mutex
	maxSize int
	items   map[string]*list.Element
	lru     *list.List
	now     func() time.Time
	closed  bool
}

type memoryEntry struct {
	key     string
	value   any
	expires time.Time
}

// MemoryOption configures a Memory store.
type MemoryOption func(*Memory)

// WithClock overrides the time source.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) {
		if now != nil {
			m.now = now
		}
	}
}

// NewMemory creates an LRU store holding at most maxSize entries.
func NewMemory(maxSize int, opts ...MemoryOption) *Memory {
	if maxSize <= 0 {
		maxSize = 1024
	}
	m := &Memory{
		maxSize: maxSize,
		items:   make(map[string]*list.Element),
		lru:     list.New(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Get implements Store. Expired entries are removed on access.
func (m *Memory) Get(_ context.Context, key string) (any, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, false, ErrClosed
	}
	elem, ok := m.items[key]
	if !ok {
		return nil, false, nil
	}

	entry := elem.Value.(*memoryEntry) //nolint:errcheck // list only contains *memoryEntry
	if !entry.expires.IsZero() && !m.now().Before(entry.expires) {
		m.removeElement(elem)
		return nil, false, nil
	}

	m.lru.MoveToFront(elem)
	return entry.value, true, nil
}

// Set implements Store.
func (m *Memory) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	var expires time.Time
	if ttl > 0 {
		expires = m.now().Add(ttl)
	}

	if elem, ok := m.items[key]; ok {
		m.lru.MoveToFront(elem)
		entry := elem.Value.(*memoryEntry) //nolint:errcheck // list only contains *memoryEntry
		entry.value = value
		entry.expires = expires
		return nil
	}

	if m.lru.Len() >= m.maxSize {
		m.evictOldest()
	}

	elem := m.lru.PushFront(&memoryEntry{key: key, value: value, expires: expires})
	m.items[key] = elem
	return nil
}

// Delete implements Store.
func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if elem, ok := m.items[key]; ok {
		m.removeElement(elem)
	}
	return nil
}

// Len returns the number of entries, including expired ones not yet evicted.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lru.Len()
}

// Clear removes all entries.
func (m *Memory) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.items = make(map[string]*list.Element)
	m.lru.Init()
}

// Close implements Store.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.items = make(map[string]*list.Element)
	m.lru.Init()
	return nil
}

// evictOldest removes the least recently used entry.
// Must be called with lock held.
func (m *Memory) evictOldest() {
	if elem := m.lru.Back(); elem != nil {
		m.removeElement(elem)
	}
}

// removeElement must be called with lock held.
func (m *Memory) removeElement(elem *list.Element) {
	m.lru.Remove(elem)
	entry := elem.Value.(*memoryEntry) //nolint:errcheck // list only contains *memoryEntry
	delete(m.items, entry.key)
}
