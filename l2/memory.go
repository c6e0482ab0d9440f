package l2

import (
	"context"
	"sort"
	"sync"
	"time"
)

// record is the in-memory analogue of the teacher's CacheEntry — an
// embedding plus its payload, indexed by entry ID.
type record struct {
	embedding []float64
	payload   Payload
	expiresAt time.Time
}

// InMemoryBackend is a process-local Backend, grounded on the
// teacher's caching.Engine: a map keyed by entry ID plus a brute-force
// cosine scan for vector_search. Production deployments should back
// Backend with a real vector-search-capable store (e.g. Redis with
// RediSearch); this implementation provides the full contract without
// one.
type InMemoryBackend struct {
	mu      sync.RWMutex
	entries map[string]*record
	sets    map[string]map[string]struct{}
}

// NewInMemoryBackend constructs an empty backend.
func NewInMemoryBackend() *InMemoryBackend {
	return &InMemoryBackend{
		entries: make(map[string]*record),
		sets:    make(map[string]map[string]struct{}),
	}
}

func (b *InMemoryBackend) IndexAdd(_ context.Context, entryID string, embedding []float64, payload Payload) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	expiresAt := time.Time{}
	if payload.TTL > 0 {
		expiresAt = payload.CreatedAt.Add(payload.TTL)
	}
	b.entries[entryID] = &record{embedding: embedding, payload: payload, expiresAt: expiresAt}
	return nil
}

func (b *InMemoryBackend) VectorSearch(_ context.Context, embedding []float64, filters Filters, k int, distanceThreshold float64) ([]Match, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	now := time.Now()
	candidates := make([]Match, 0, len(b.entries))
	for id, rec := range b.entries {
		if !rec.expiresAt.IsZero() && rec.expiresAt.Before(now) {
			continue
		}
		if filters.UserID != "" && rec.payload.UserID != filters.UserID {
			continue
		}
		if filters.ScopeHash != "" && rec.payload.ScopeHash != filters.ScopeHash {
			continue
		}
		if filters.Version != "" && rec.payload.Version != filters.Version {
			continue
		}

		dist := cosineDistance(embedding, rec.embedding)
		if dist > distanceThreshold {
			continue
		}
		candidates = append(candidates, Match{EntryID: id, Distance: dist, Payload: rec.payload})
	}

	sortMatchesByDistance(candidates)
	if k > 0 && len(candidates) > k {
		candidates = candidates[:k]
	}
	return candidates, nil
}

func (b *InMemoryBackend) FindByPromptHash(_ context.Context, promptHash string, filters Filters) (Match, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if promptHash == "" {
		return Match{}, false, nil
	}

	now := time.Now()
	for id, rec := range b.entries {
		if rec.payload.PromptHash != promptHash {
			continue
		}
		if !rec.expiresAt.IsZero() && rec.expiresAt.Before(now) {
			continue
		}
		if filters.UserID != "" && rec.payload.UserID != filters.UserID {
			continue
		}
		if filters.ScopeHash != "" && rec.payload.ScopeHash != filters.ScopeHash {
			continue
		}
		if filters.Version != "" && rec.payload.Version != filters.Version {
			continue
		}
		return Match{EntryID: id, Distance: 0, Payload: rec.payload}, true, nil
	}
	return Match{}, false, nil
}

func (b *InMemoryBackend) Delete(_ context.Context, entryID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.entries, entryID)
	return nil
}

func (b *InMemoryBackend) Exists(_ context.Context, entryID string) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.entries[entryID]
	return ok, nil
}

func (b *InMemoryBackend) SetMemberAdd(_ context.Context, setKey, member string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	set, ok := b.sets[setKey]
	if !ok {
		set = make(map[string]struct{})
		b.sets[setKey] = set
	}
	set[member] = struct{}{}
	return nil
}

func (b *InMemoryBackend) SetMemberRemove(_ context.Context, setKey, member string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if set, ok := b.sets[setKey]; ok {
		delete(set, member)
	}
	return nil
}

func (b *InMemoryBackend) SetRead(_ context.Context, setKey string) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	set, ok := b.sets[setKey]
	if !ok {
		return nil, nil
	}
	out := make([]string, 0, len(set))
	for member := range set {
		out = append(out, member)
	}
	return out, nil
}

func (b *InMemoryBackend) SetClear(_ context.Context, setKey string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.sets, setKey)
	return nil
}

// Ping always succeeds: there is no remote connection to lose.
func (b *InMemoryBackend) Ping(_ context.Context) error {
	return nil
}

// Close is a no-op: InMemoryBackend holds no external resources.
func (b *InMemoryBackend) Close() error {
	return nil
}

func sortMatchesByDistance(matches []Match) {
	sort.Slice(matches, func(i, j int) bool { return matches[i].Distance < matches[j].Distance })
}
