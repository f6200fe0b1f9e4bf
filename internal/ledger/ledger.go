// Package ledger records which disclosures were already dispatched.
//
// The ledger lives only for the process lifetime. A restart may re-emit the
// records in the current fetch window once.
package ledger

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/JakeFAU/kapwatch/internal/disclosure"
)

// Memory is an unbounded set of keys.
type Memory struct {
	mu   sync.RWMutex
	keys map[string]struct{}
}

// NewMemory returns an empty Memory ledger.
func NewMemory() *Memory {
	return &Memory{keys: make(map[string]struct{})}
}

// Seen reports whether key was marked.
func (m *Memory) Seen(key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.keys[key]
	return ok
}

// Mark records key.
func (m *Memory) Mark(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[key] = struct{}{}
}

// Len returns the number of marked keys.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.keys)
}

// LRU is a bounded ledger that forgets the least recently marked keys once
// full. The capacity must comfortably exceed the fetch window or evicted keys
// still in the window would be dispatched again.
type LRU struct {
	cache *lru.Cache[string, struct{}]
}

// NewLRU returns an LRU ledger holding at most size keys.
func NewLRU(size int) (*LRU, error) {
	cache, err := lru.New[string, struct{}](size)
	if err != nil {
		return nil, fmt.Errorf("create lru ledger: %w", err)
	}
	return &LRU{cache: cache}, nil
}

// Seen reports whether key is still remembered. It does not refresh recency.
func (l *LRU) Seen(key string) bool {
	return l.cache.Contains(key)
}

// Mark records key, evicting the oldest entry when full.
func (l *LRU) Mark(key string) {
	l.cache.Add(key, struct{}{})
}

// Len returns the number of remembered keys.
func (l *LRU) Len() int {
	return l.cache.Len()
}

// New picks an implementation: unbounded when maxEntries is zero, LRU otherwise.
func New(maxEntries int) (disclosure.Ledger, error) {
	if maxEntries <= 0 {
		return NewMemory(), nil
	}
	return NewLRU(maxEntries)
}
