// Package ttlstore provides a mutex-guarded map with per-entry expiry and a
// hard capacity ceiling.
//
// It backs the gateway's two bounded maps: pending authorization codes and
// the authenticated-client address cache. Entries disappear in two ways:
// lazily, when a lookup finds them expired, and in bulk via Sweep, which a
// single gateway-owned background task calls on a fixed interval. When an
// insert (or a sweep) finds the store above its capacity, the
// oldest-inserted entries are evicted first, independent of expiry, so
// memory stays bounded even under abusive traffic that never completes the
// flow.
package ttlstore

import (
	"sync"
	"time"
)

type entry[V any] struct {
	value     V
	expiresAt time.Time
	seq       uint64
}

// orderKey records insertion order. Stale records (deleted or re-inserted
// keys) are skipped during eviction and dropped during compaction.
type orderKey struct {
	key string
	seq uint64
}

// Store is a bounded, time-limited map from string keys to values of type V.
// All methods are safe for concurrent use.
type Store[V any] struct {
	mu      sync.Mutex
	max     int
	seq     uint64
	entries map[string]entry[V]
	order   []orderKey
	now     func() time.Time
}

// New builds a Store holding at most max entries. A max of zero or less
// means unbounded.
func New[V any](max int) *Store[V] {
	return &Store[V]{
		max:     max,
		entries: make(map[string]entry[V]),
		now:     time.Now,
	}
}

// Put inserts or replaces the value for key. If the insert pushes the store
// past its capacity, the oldest-inserted entries are evicted to make room.
func (s *Store[V]) Put(key string, value V, expiresAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	s.entries[key] = entry[V]{value: value, expiresAt: expiresAt, seq: s.seq}
	s.order = append(s.order, orderKey{key: key, seq: s.seq})
	s.evictLocked()
}

// Get returns the live value for key. Expired entries are deleted on sight
// and reported as a miss.
func (s *Store[V]) Get(key string) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	if !s.now().Before(e.expiresAt) {
		delete(s.entries, key)
		var zero V
		return zero, false
	}
	return e.value, true
}

// Delete removes key and reports whether an entry was actually removed.
// Callers performing a read-then-delete must treat a false return as the
// entry having been consumed concurrently.
func (s *Store[V]) Delete(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[key]; !ok {
		return false
	}
	delete(s.entries, key)
	return true
}

// Len reports the number of entries currently held, including any that have
// expired but not yet been swept.
func (s *Store[V]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Sweep removes expired entries, then enforces the capacity ceiling by
// evicting oldest-inserted entries. It returns the counts removed by each
// phase.
func (s *Store[V]) Sweep() (expired, evicted int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for key, e := range s.entries {
		if !now.Before(e.expiresAt) {
			delete(s.entries, key)
			expired++
		}
	}
	evicted = s.evictLocked()
	s.compactLocked()
	return expired, evicted
}

// evictLocked drops oldest-inserted entries until the store fits its
// capacity. Order records whose seq no longer matches the live entry are
// stale and skipped.
func (s *Store[V]) evictLocked() (evicted int) {
	if s.max <= 0 {
		return 0
	}
	i := 0
	for len(s.entries) > s.max && i < len(s.order) {
		ok := s.order[i]
		if e, live := s.entries[ok.key]; live && e.seq == ok.seq {
			delete(s.entries, ok.key)
			evicted++
		}
		i++
	}
	s.order = s.order[i:]
	return evicted
}

// compactLocked rebuilds the order slice from live entries so it does not
// grow without bound across churn. Relative order is preserved via seq.
func (s *Store[V]) compactLocked() {
	if len(s.order) <= 2*len(s.entries) {
		return
	}
	kept := s.order[:0]
	for _, ok := range s.order {
		if e, live := s.entries[ok.key]; live && e.seq == ok.seq {
			kept = append(kept, ok)
		}
	}
	s.order = kept
}
