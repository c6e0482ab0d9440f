package l1_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cacheforge/semcache/cacheentry"
	"github.com/cacheforge/semcache/config"
	"github.com/cacheforge/semcache/hashing"
	"github.com/cacheforge/semcache/l1"
)

func key(s string) hashing.L1Key {
	return hashing.L1KeyFor(s, "", cacheentry.Scope{}, nil)
}

func entry(prompt string) *cacheentry.Entry {
	return &cacheentry.Entry{
		EntryID:   cacheentry.NewEntryID(),
		Prompt:    prompt,
		Response:  "resp:" + prompt,
		CreatedAt: time.Now(),
	}
}

func TestRecencyEvictsLeastRecentlyAccessed(t *testing.T) {
	store := l1.New(config.L1CacheConfig{MaxSize: 2, EvictionStrategy: config.EvictionRecency})

	a, b, c := key("a"), key("b"), key("c")
	store.Put(a, entry("a"))
	store.Put(b, entry("b"))

	// touch a so it is now more recently used than b
	_, ok := store.Get(a)
	require.True(t, ok)

	store.Put(c, entry("c"))

	_, stillHasA := store.Get(a)
	_, hasB := store.Get(b)
	_, hasC := store.Get(c)

	require.True(t, stillHasA)
	require.False(t, hasB, "b was least recently used and should have been evicted")
	require.True(t, hasC)
}

func TestFrequencyEvictsLeastAccessed(t *testing.T) {
	store := l1.New(config.L1CacheConfig{MaxSize: 2, EvictionStrategy: config.EvictionFrequency})

	a, b, c := key("a"), key("b"), key("c")
	store.Put(a, entry("a"))
	store.Put(b, entry("b"))

	// access a several times, b never again
	store.Get(a)
	store.Get(a)
	store.Get(a)

	store.Put(c, entry("c"))

	_, hasA := store.Get(a)
	_, hasB := store.Get(b)
	_, hasC := store.Get(c)

	require.True(t, hasA)
	require.False(t, hasB, "b had the lowest access count and should have been evicted")
	require.True(t, hasC)
}

func TestAgeExpiresEntriesPastTTL(t *testing.T) {
	store := l1.New(config.L1CacheConfig{MaxSize: 10, TTLSeconds: 0, EvictionStrategy: config.EvictionAge})

	k := key("a")
	store.Put(k, entry("a"))
	time.Sleep(2 * time.Millisecond)

	_, ok := store.Get(k)
	require.False(t, ok, "entry should be expired under a zero-second TTL")
}

func TestStatsTracksHitsMissesAndEvictions(t *testing.T) {
	store := l1.New(config.L1CacheConfig{MaxSize: 1, EvictionStrategy: config.EvictionRecency})

	a, b := key("a"), key("b")
	store.Put(a, entry("a"))
	store.Get(a)
	store.Get(b) // miss
	store.Put(b, entry("b"))

	stats := store.Stats()
	require.Equal(t, 1, stats.Size)
	require.Equal(t, int64(1), stats.Hits)
	require.Equal(t, int64(1), stats.Misses)
	require.Equal(t, int64(1), stats.Evictions)
}

func TestClearRemovesAllEntries(t *testing.T) {
	store := l1.New(config.L1CacheConfig{MaxSize: 10, EvictionStrategy: config.EvictionRecency})
	store.Put(key("a"), entry("a"))
	store.Put(key("b"), entry("b"))

	store.Clear()

	require.Equal(t, 0, store.Stats().Size)
	_, ok := store.Get(key("a"))
	require.False(t, ok)
}
