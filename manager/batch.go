package manager

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/cacheforge/semcache/cacheentry"
	"github.com/cacheforge/semcache/hashing"
)

// BatchRequest is one input to BatchCheck.
type BatchRequest struct {
	Prompt string
	UserID string
	Scope  cacheentry.Scope
}

// BatchResult is BatchCheck's per-request outcome, in original order.
type BatchResult struct {
	Response string
	Hit      bool
}

// BatchCheck implements spec §4.6.3: an L1-only phase over every
// input (parallel-safe, run synchronously here since the L1 Store's
// own mutex already serializes it), then a concurrency-bounded L2
// phase over the remaining misses. concurrency <= 0 means "one
// worker per remaining miss", the spec's stated default.
func (m *Manager) BatchCheck(ctx context.Context, requests []BatchRequest, concurrency int) []BatchResult {
	results := make([]BatchResult, len(requests))
	l1Keys := make([]hashing.L1Key, len(requests))
	scopeHashes := make([]string, len(requests))
	misses := make([]int, 0, len(requests))

	for i, req := range requests {
		m.metrics.RecordQuery()
		l1Keys[i] = hashing.L1KeyFor(req.Prompt, req.UserID, req.Scope, m.cfg.ContextFields)
		scopeHashes[i] = hashing.ScopeHash(req.Scope, m.cfg.ContextFields)

		if m.cfg.L1Cache.Enabled {
			if entry, ok := m.l1.Get(l1Keys[i]); ok {
				m.metrics.RecordL1(true, 0)
				m.metrics.RecordHit()
				m.metrics.AddTokensSavedEstimate(tokensSavedEstimate(entry.Response))
				m.recordContextHit(req.Scope)
				results[i] = BatchResult{Response: entry.Response, Hit: true}
				continue
			}
			m.metrics.RecordL1(false, 0)
		}
		misses = append(misses, i)
	}

	if len(misses) == 0 {
		return results
	}
	if concurrency <= 0 {
		concurrency = len(misses)
	}

	var g errgroup.Group
	g.SetLimit(concurrency)

	for _, idx := range misses {
		idx := idx
		g.Go(func() error {
			req := requests[idx]
			// checkL2 never returns an error; a failed lookup yields a
			// miss for that slot only (spec §4.6.3).
			response, hit := m.checkL2(ctx, req.Prompt, req.UserID, req.Scope, l1Keys[idx], scopeHashes[idx])
			results[idx] = BatchResult{Response: response, Hit: hit}
			return nil
		})
	}
	_ = g.Wait()

	return results
}
