// Package cache implements the thread-safe TTL store shared by every
// worker: tickers, klines, positions, and balances, each refreshed on its
// own cadence and fanned out to subscribers.
package cache

import (
	"sync"
	"time"
)

// Class names an entry category; each has its own default TTL.
type Class string

const (
	ClassTicker   Class = "ticker"
	ClassKline    Class = "kline"
	ClassPosition Class = "position"
	ClassBalance  Class = "balance"
)

// DefaultTTLs holds the spec's default freshness windows per class.
var DefaultTTLs = map[Class]time.Duration{
	ClassTicker:   30 * time.Second,
	ClassKline:    60 * time.Second,
	ClassPosition: 10 * time.Second,
	ClassBalance:  30 * time.Second,
}

type entry struct {
	value     any
	expiresAt time.Time
}

// Store is a thread-safe TTL key-value cache. Expired entries are removed
// lazily on Get and periodically by Cleanup.
type Store struct {
	mu      sync.RWMutex
	entries map[string]entry
	now     func() time.Time
}

// New creates an empty store.
func New() *Store {
	return &Store{
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

// Get returns the cached value for key if present and not expired.
func (s *Store) Get(key string) (any, bool) {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if s.now().After(e.expiresAt) {
		s.mu.Lock()
		delete(s.entries, key)
		s.mu.Unlock()
		return nil, false
	}
	return e.value, true
}

// Set stores value under key with the given TTL, stamped from now.
func (s *Store) Set(key string, value any, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = entry{value: value, expiresAt: s.now().Add(ttl)}
}

// Delete removes key unconditionally.
func (s *Store) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
}

// Cleanup removes every expired entry. Call periodically from a
// background goroutine; it is also performed lazily by Get.
func (s *Store) Cleanup() int {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for k, e := range s.entries {
		if now.After(e.expiresAt) {
			delete(s.entries, k)
			removed++
		}
	}
	return removed
}

// Len reports the number of entries currently held, including any not yet
// lazily reaped.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
