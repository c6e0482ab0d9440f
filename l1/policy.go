package l1

import (
	"container/heap"
	"container/list"
	"time"

	"github.com/cacheforge/semcache/hashing"
)

// policy selects which key to evict on overflow and, for the age
// strategy, which keys are lazily expired on access (spec §4.1). Each
// of the three strategies is a distinct implementation rather than a
// shared base with conditionals — "do not emulate via inheritance"
// (spec §9).
type policy interface {
	onInsert(key hashing.L1Key)
	onAccess(key hashing.L1Key)
	onRemove(key hashing.L1Key)
	// victim returns the key to evict on overflow, if any.
	victim() (hashing.L1Key, bool)
	// expired reports whether key should be treated as gone even
	// though it's still present in the map (age policy only).
	expired(key hashing.L1Key, now time.Time) bool
}

// ─── Recency (LRU) ──────────────────────────────────────────

// recencyPolicy evicts the least recently accessed entry. Grounded on
// container/list + map, the same structure a bounded LRU uses
// elsewhere in the pack (no third-party LRU library is exercised
// anywhere in the retrieved corpus; container/list is the idiom).
type recencyPolicy struct {
	order *list.List
	elems map[hashing.L1Key]*list.Element
}

func newRecencyPolicy() *recencyPolicy {
	return &recencyPolicy{order: list.New(), elems: make(map[hashing.L1Key]*list.Element)}
}

func (p *recencyPolicy) onInsert(key hashing.L1Key) {
	p.elems[key] = p.order.PushFront(key)
}

func (p *recencyPolicy) onAccess(key hashing.L1Key) {
	if e, ok := p.elems[key]; ok {
		p.order.MoveToFront(e)
	}
}

func (p *recencyPolicy) onRemove(key hashing.L1Key) {
	if e, ok := p.elems[key]; ok {
		p.order.Remove(e)
		delete(p.elems, key)
	}
}

func (p *recencyPolicy) victim() (hashing.L1Key, bool) {
	back := p.order.Back()
	if back == nil {
		return hashing.L1Key{}, false
	}
	return back.Value.(hashing.L1Key), true
}

func (p *recencyPolicy) expired(hashing.L1Key, time.Time) bool { return false }

// ─── Frequency ──────────────────────────────────────────────

// frequencyPolicy evicts the entry with the lowest access count,
// ties broken by recency. Uses a min-heap for an O(log n) victim
// lookup (spec §4.1 accepts O(log n) here).
type frequencyPolicy struct {
	items map[hashing.L1Key]*freqItem
	pq    freqHeap
}

type freqItem struct {
	key      hashing.L1Key
	count    int64
	lastUsed int64 // monotonic tie-breaker, smaller = older
	index    int
}

type freqHeap []*freqItem

func (h freqHeap) Len() int { return len(h) }
func (h freqHeap) Less(i, j int) bool {
	if h[i].count != h[j].count {
		return h[i].count < h[j].count
	}
	return h[i].lastUsed < h[j].lastUsed
}
func (h freqHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index, h[j].index = i, j
}
func (h *freqHeap) Push(x interface{}) {
	item := x.(*freqItem)
	item.index = len(*h)
	*h = append(*h, item)
}
func (h *freqHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

func newFrequencyPolicy() *frequencyPolicy {
	return &frequencyPolicy{items: make(map[hashing.L1Key]*freqItem)}
}

func (p *frequencyPolicy) onInsert(key hashing.L1Key) {
	item := &freqItem{key: key, count: 0, lastUsed: p.clock()}
	p.items[key] = item
	heap.Push(&p.pq, item)
}

func (p *frequencyPolicy) onAccess(key hashing.L1Key) {
	item, ok := p.items[key]
	if !ok {
		return
	}
	item.count++
	item.lastUsed = p.clock()
	heap.Fix(&p.pq, item.index)
}

func (p *frequencyPolicy) onRemove(key hashing.L1Key) {
	item, ok := p.items[key]
	if !ok {
		return
	}
	heap.Remove(&p.pq, item.index)
	delete(p.items, key)
}

func (p *frequencyPolicy) victim() (hashing.L1Key, bool) {
	if p.pq.Len() == 0 {
		return hashing.L1Key{}, false
	}
	return p.pq[0].key, true
}

func (p *frequencyPolicy) expired(hashing.L1Key, time.Time) bool { return false }

var freqClock int64

func (p *frequencyPolicy) clock() int64 {
	freqClock++
	return freqClock
}

// ─── Age ────────────────────────────────────────────────────

// agePolicy gives every entry a per-policy TTL (l1_cache.ttl_seconds).
// Entries older than the TTL are lazily evicted on access and eagerly
// evicted when Stats/Clear enumerate the store (spec §4.1).
type agePolicy struct {
	ttl        time.Duration
	insertedAt map[hashing.L1Key]time.Time
	order      *list.List // oldest-first, for overflow victim selection
	elems      map[hashing.L1Key]*list.Element
}

func newAgePolicy(ttl time.Duration) *agePolicy {
	return &agePolicy{
		ttl:        ttl,
		insertedAt: make(map[hashing.L1Key]time.Time),
		order:      list.New(),
		elems:      make(map[hashing.L1Key]*list.Element),
	}
}

func (p *agePolicy) onInsert(key hashing.L1Key) {
	p.insertedAt[key] = time.Now()
	p.elems[key] = p.order.PushBack(key)
}

func (p *agePolicy) onAccess(hashing.L1Key) {}

func (p *agePolicy) onRemove(key hashing.L1Key) {
	delete(p.insertedAt, key)
	if e, ok := p.elems[key]; ok {
		p.order.Remove(e)
		delete(p.elems, key)
	}
}

func (p *agePolicy) victim() (hashing.L1Key, bool) {
	front := p.order.Front()
	if front == nil {
		return hashing.L1Key{}, false
	}
	return front.Value.(hashing.L1Key), true
}

func (p *agePolicy) expired(key hashing.L1Key, now time.Time) bool {
	at, ok := p.insertedAt[key]
	if !ok {
		return false
	}
	return now.Sub(at) > p.ttl
}
