// Package l1 implements the bounded in-process L1 Store (spec §4.1):
// a key→entry map with pluggable recency/frequency/age eviction,
// safe for concurrent access.
package l1

import (
	"sync"
	"time"

	"github.com/cacheforge/semcache/cacheentry"
	"github.com/cacheforge/semcache/config"
	"github.com/cacheforge/semcache/hashing"
)

// Stats reports L1 store bookkeeping (spec §4.1 `stats`).
type Stats struct {
	Size      int
	Capacity  int
	Hits      int64
	Misses    int64
	Evictions int64
}

// Store is a bounded, concurrency-safe key→entry map with one of the
// three eviction policies selected at construction.
type Store struct {
	mu       sync.Mutex
	entries  map[hashing.L1Key]*cacheentry.Entry
	capacity int
	policy   policy

	hits      int64
	misses    int64
	evictions int64
}

// New builds an L1 Store from the l1_cache section of the
// configuration.
func New(cfg config.L1CacheConfig) *Store {
	var p policy
	switch cfg.EvictionStrategy {
	case config.EvictionFrequency:
		p = newFrequencyPolicy()
	case config.EvictionAge:
		p = newAgePolicy(time.Duration(cfg.TTLSeconds) * time.Second)
	default:
		p = newRecencyPolicy()
	}
	capacity := cfg.MaxSize
	if capacity <= 0 {
		capacity = 1
	}
	return &Store{
		entries:  make(map[hashing.L1Key]*cacheentry.Entry, capacity),
		capacity: capacity,
		policy:   p,
	}
}

// Get returns the entry for key, bumping its access bookkeeping.
// Entries past the age policy's TTL are evicted lazily and reported
// as a miss (spec §4.1).
func (s *Store) Get(key hashing.L1Key) (*cacheentry.Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok {
		s.misses++
		return nil, false
	}
	now := time.Now()
	if s.policy.expired(key, now) {
		s.removeLocked(key)
		s.misses++
		return nil, false
	}

	entry.AccessCount++
	entry.LastAccessAt = now
	s.policy.onAccess(key)
	s.hits++
	return entry, true
}

// Put inserts or overwrites the entry for key. If the store is at
// capacity, exactly one entry is evicted first, per the active
// policy (spec §4.1).
func (s *Store) Put(key hashing.L1Key, entry *cacheentry.Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[key]; exists {
		s.entries[key] = entry
		s.policy.onAccess(key)
		return
	}

	if len(s.entries) >= s.capacity {
		if victim, ok := s.policy.victim(); ok {
			s.removeLocked(victim)
			s.evictions++
		}
	}

	s.entries[key] = entry
	s.policy.onInsert(key)
}

// Delete removes key, if present.
func (s *Store) Delete(key hashing.L1Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(key)
}

// Clear empties the store.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.entries {
		s.removeLocked(key)
	}
}

// Stats returns a point-in-time snapshot, eagerly sweeping expired
// age-policy entries first (spec §4.1: "eagerly evicted when
// enumeration scans them").
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for key := range s.entries {
		if s.policy.expired(key, now) {
			s.removeLocked(key)
		}
	}

	return Stats{
		Size:      len(s.entries),
		Capacity:  s.capacity,
		Hits:      s.hits,
		Misses:    s.misses,
		Evictions: s.evictions,
	}
}

func (s *Store) removeLocked(key hashing.L1Key) {
	if _, ok := s.entries[key]; !ok {
		return
	}
	delete(s.entries, key)
	s.policy.onRemove(key)
}
