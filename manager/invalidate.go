package manager

import (
	"context"
	"net/http"

	"github.com/cacheforge/semcache/cerr"
	"github.com/cacheforge/semcache/metrics"
)

// InvalidateByTag implements spec §4.6.4: resolves tag, deletes every
// referenced entry from L2 and L1, clears the tag set, and returns
// the number of distinct entries deleted. Idempotent.
func (m *Manager) InvalidateByTag(ctx context.Context, tag string) (int, error) {
	if m.tagIdx == nil {
		return 0, nil
	}
	entryIDs, err := m.tagIdx.InvalidateByTag(ctx, tag)
	if err != nil {
		return 0, cerr.New(cerr.KindBackendUnavailable, "manager.InvalidateByTag", err)
	}
	m.evictFromL1(entryIDs)
	m.metrics.RecordTagInvalidation(tag, len(entryIDs))
	return len(entryIDs), nil
}

// InvalidateByTags implements spec §4.6.4's multi-tag form: union
// (match_all=false) or intersection (match_all=true) of the resolved
// sets, same deletion semantics.
func (m *Manager) InvalidateByTags(ctx context.Context, tags []string, matchAll bool) (int, error) {
	if m.tagIdx == nil {
		return 0, nil
	}
	entryIDs, err := m.tagIdx.InvalidateByTags(ctx, tags, matchAll)
	if err != nil {
		return 0, cerr.New(cerr.KindBackendUnavailable, "manager.InvalidateByTags", err)
	}
	m.evictFromL1(entryIDs)
	for _, tag := range tags {
		m.metrics.RecordTagInvalidation(tag, len(entryIDs))
	}
	return len(entryIDs), nil
}

func (m *Manager) evictFromL1(entryIDs []string) {
	if !m.cfg.L1Cache.Enabled {
		for _, entryID := range entryIDs {
			m.forgetKey(entryID)
		}
		return
	}
	for _, entryID := range entryIDs {
		if key, ok := m.forgetKey(entryID); ok {
			m.l1.Delete(key)
		}
	}
}

// ClearL1 implements spec §4.6.5's clear_l1: empties the L1 Store.
// Subsequent checks fall through to L2 and repopulate L1 on their
// next hit (spec §8: "clear_l1 followed by check for a previously
// L1-hit key returns the same response via L2 and re-populates L1").
func (m *Manager) ClearL1() {
	if m.cfg.L1Cache.Enabled {
		m.l1.Clear()
	}
}

// GetMetrics returns a point-in-time snapshot of the Metrics Registry
// (spec §4.6.5's get_metrics).
func (m *Manager) GetMetrics() metrics.Snapshot {
	return m.metrics.Snapshot()
}

// GetMetricsPrometheus returns the Prometheus text-exposition handler
// (spec §4.6.5's get_metrics_prometheus).
func (m *Manager) GetMetricsPrometheus() http.Handler {
	return m.metrics.Handler()
}
