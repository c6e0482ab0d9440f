// Package manager implements the Cache Manager (spec §4.6): the
// coordinator that ties the Key Hasher, L1 Store, L2 Backend,
// Staleness Controller, Tag Index, and Metrics Registry into the
// public check/store/batch_check/invalidate surface.
package manager

import (
	"context"
	"sync"
	"time"

	"github.com/cacheforge/semcache/cacheentry"
	"github.com/cacheforge/semcache/cerr"
	"github.com/cacheforge/semcache/config"
	"github.com/cacheforge/semcache/hashing"
	"github.com/cacheforge/semcache/l1"
	"github.com/cacheforge/semcache/l2"
	"github.com/cacheforge/semcache/metrics"
	"github.com/cacheforge/semcache/reranker"
	"github.com/cacheforge/semcache/retry"
	"github.com/cacheforge/semcache/staleness"
	"github.com/cacheforge/semcache/tagindex"
	"github.com/cacheforge/semcache/vectorizer"
)

// Manager is the semantic cache's single entry point. It is safe for
// concurrent use by multiple in-flight requests (spec §5: "Multiple
// in-flight requests on separate tasks may execute concurrently and
// share the L1 Store and Metrics Registry").
type Manager struct {
	cfg       *config.Config
	l1        *l1.Store
	l2Backend l2.Backend
	tagIdx    *tagindex.Index // nil when tagging is disabled
	embedder  vectorizer.Embedder
	reranker  reranker.Reranker
	metrics   *metrics.Registry
	scheduler *staleness.Scheduler
	refresh   staleness.RefreshFunc

	keysMu sync.Mutex
	keys   map[string]hashing.L1Key // entry_id -> l1_key, for tag-driven L1 eviction
}

// Options bundles the constructed dependencies a Manager coordinates.
// Vectorizer and Reranker are built from config by their own
// factories; L2Backend is chosen by the caller (in-memory or Redis).
type Options struct {
	Config    *config.Config
	L2Backend l2.Backend
	Embedder  vectorizer.Embedder
	Reranker  reranker.Reranker // nil when disabled
	Metrics   *metrics.Registry
	Refresh   staleness.RefreshFunc // nil disables background refresh
}

// New builds a Manager. The L1 Store and Tag Index are constructed
// internally from config so policy selection stays out of callers'
// hands.
func New(opts Options) *Manager {
	m := &Manager{
		cfg:       opts.Config,
		l1:        l1.New(opts.Config.L1Cache),
		l2Backend: opts.L2Backend,
		embedder:  opts.Embedder,
		reranker:  opts.Reranker,
		metrics:   opts.Metrics,
		refresh:   opts.Refresh,
		keys:      make(map[string]hashing.L1Key),
	}
	if opts.Config.EnableTags {
		m.tagIdx = tagindex.New(opts.L2Backend, opts.Config.Name, opts.Config.MaxTagsPerEntry)
	}
	m.scheduler = staleness.NewScheduler(opts.Refresh, m.storeRefreshed)
	return m
}

// Close releases resources held by the Manager's L2 backend (e.g. the
// Redis connection pool). Safe to call once during shutdown.
func (m *Manager) Close() error {
	return m.l2Backend.Close()
}

// Ping reports whether the L2 backend is currently reachable, surfaced
// through the admin API's /healthz.
func (m *Manager) Ping(ctx context.Context) error {
	return m.l2Backend.Ping(ctx)
}

func (m *Manager) hasRefreshCallback() bool {
	return m.refresh != nil
}

func (m *Manager) staleParams() staleness.Params {
	return staleness.Params{
		TTL:                     time.Duration(m.cfg.TTL) * time.Second,
		Tolerance:               time.Duration(m.cfg.StaleToleranceSeconds) * time.Second,
		MaxStale:                time.Duration(m.cfg.MaxStaleAgeSeconds) * time.Second,
		Version:                 m.cfg.CacheVersion,
		EnableVersionChecking:   m.cfg.EnableVersionChecking,
		EnableStaleRevalidation: m.cfg.EnableStaleWhileRevalidate,
		HasRefreshCallback:      m.hasRefreshCallback(),
	}
}

// withRetry retries fn per spec §7's BackendTransient policy:
// exponential backoff up to cfg.max_retries, keyed off
// cfg.retry_backoff_base_ms. Non-transient errors (and success) pass
// through on the first attempt.
func (m *Manager) withRetry(ctx context.Context, fn func() error) error {
	backoffBase := time.Duration(m.cfg.RetryBackoffBaseMs) * time.Millisecond
	return retry.Do(ctx, m.cfg.MaxRetries, backoffBase, fn)
}

func (m *Manager) contextHitKeyField() string {
	if m.cfg.ContextHitKeyField != "" {
		return m.cfg.ContextHitKeyField
	}
	if len(m.cfg.ContextFields) > 0 {
		return m.cfg.ContextFields[0]
	}
	return ""
}

func (m *Manager) recordContextHit(scope cacheentry.Scope) {
	if !m.cfg.EnableContextHashing {
		return
	}
	bucket := scope[m.contextHitKeyField()]
	m.metrics.RecordContextHit(bucket)
}

func (m *Manager) rememberKey(entryID string, key hashing.L1Key) {
	m.keysMu.Lock()
	m.keys[entryID] = key
	m.keysMu.Unlock()
}

func (m *Manager) forgetKey(entryID string) (hashing.L1Key, bool) {
	m.keysMu.Lock()
	defer m.keysMu.Unlock()
	key, ok := m.keys[entryID]
	delete(m.keys, entryID)
	return key, ok
}

func tokensSavedEstimate(response string) int {
	// Character-based estimate (~4 chars/token), matching the
	// teacher's tokens_saved accounting style in caching.go.
	return len(response) / 4
}

// Check implements spec §4.6.1. It never returns an error: a failed
// lookup (embedding or backend failure) degrades to a miss and
// increments the errors counter, per spec §7's failure policy.
//
// bypass skips both the L1 and L2 read path entirely, the library's
// equivalent of the admin API's `Cache-Control: no-cache` /
// `X-Cache-Bypass` header — the caller still gets counted as a query
// and a miss, but no stored entry is consulted.
func (m *Manager) Check(ctx context.Context, prompt, userID string, scope cacheentry.Scope, bypass bool) (string, bool) {
	m.metrics.RecordQuery()

	if bypass {
		m.metrics.RecordMiss()
		return "", false
	}

	l1Key := hashing.L1KeyFor(prompt, userID, scope, m.cfg.ContextFields)
	scopeHash := hashing.ScopeHash(scope, m.cfg.ContextFields)

	if m.cfg.L1Cache.Enabled {
		start := time.Now()
		if entry, ok := m.l1.Get(l1Key); ok {
			m.metrics.RecordL1(true, msSince(start))
			m.metrics.RecordHit()
			m.metrics.AddTokensSavedEstimate(tokensSavedEstimate(entry.Response))
			m.recordContextHit(scope)
			return entry.Response, true
		}
		m.metrics.RecordL1(false, msSince(start))
	}

	response, ok := m.checkL2(ctx, prompt, userID, scope, l1Key, scopeHash)
	if !ok {
		return "", false
	}
	return response, true
}

// checkL2 runs the L2 path: embed, vector-search, optional rerank,
// staleness evaluation, and L1 population on a surviving hit (spec
// §4.6.1 steps 3-6).
func (m *Manager) checkL2(ctx context.Context, prompt, userID string, scope cacheentry.Scope, l1Key hashing.L1Key, scopeHash string) (string, bool) {
	filters := l2.Filters{UserID: userID, ScopeHash: scopeHash}
	if m.cfg.EnableVersionChecking {
		filters.Version = m.cfg.CacheVersion
	}

	l2Start := time.Now()

	var best l2.Match
	var exactMatch l2.Match
	var exactOK bool
	exactErr := m.withRetry(ctx, func() error {
		var err error
		exactMatch, exactOK, err = m.l2Backend.FindByPromptHash(ctx, hashing.PromptHash(prompt), filters)
		return err
	})
	if exactErr == nil && exactOK {
		best = exactMatch
	} else {
		var embedding []float64
		err := m.withRetry(ctx, func() error {
			embedCtx, cancel := context.WithTimeout(ctx, m.cfg.EmbedTimeout)
			defer cancel()
			var embedErr error
			embedding, embedErr = m.embedder.Embed(embedCtx, prompt)
			return embedErr
		})
		if err != nil {
			m.metrics.RecordError()
			m.metrics.RecordMiss()
			return "", false
		}

		k := m.cfg.TopK
		if m.reranker != nil && m.cfg.Reranker.Limit > k {
			k = m.cfg.Reranker.Limit
		}
		if k < 1 {
			k = 1
		}

		var matches []l2.Match
		err = m.withRetry(ctx, func() error {
			var searchErr error
			matches, searchErr = m.l2Backend.VectorSearch(ctx, embedding, filters, k, m.cfg.DistanceThreshold)
			return searchErr
		})
		if err != nil {
			m.metrics.RecordError()
			m.metrics.RecordL2(false, msSince(l2Start))
			m.metrics.RecordMiss()
			return "", false
		}
		if len(matches) == 0 {
			m.metrics.RecordL2(false, msSince(l2Start))
			m.metrics.RecordMiss()
			return "", false
		}

		best = m.selectBest(ctx, prompt, matches)
	}

	evalEntry := &cacheentry.Entry{Version: best.Payload.Version, CreatedAt: best.Payload.CreatedAt}
	params := m.staleParams()
	verdict, reason := staleness.Evaluate(evalEntry, time.Now(), params)

	switch reason {
	case staleness.ReasonVersionMismatch:
		m.metrics.RecordVersionMismatch()
	case staleness.ReasonStaleRefused:
		m.metrics.RecordStaleRefused()
	}

	if verdict == staleness.Discard {
		m.metrics.RecordL2(false, msSince(l2Start))
		m.metrics.RecordMiss()
		return "", false
	}

	if verdict == staleness.StaleAcceptable || verdict == staleness.ExpiredServable {
		m.metrics.RecordStaleServed()
		if staleness.ShouldRefresh(verdict, params) {
			m.scheduler.Trigger(l1Key.String(), staleness.RefreshRequest{Prompt: prompt, UserID: userID, Scope: scope}, best.Payload.Tags)
		}
	}

	m.metrics.RecordL2(true, msSince(l2Start))
	m.metrics.RecordHit()
	m.metrics.AddTokensSavedEstimate(tokensSavedEstimate(best.Payload.Response))
	m.recordContextHit(scope)

	if m.cfg.L1Cache.Enabled {
		m.l1.Put(l1Key, &cacheentry.Entry{
			EntryID:    best.EntryID,
			Prompt:     prompt,
			Response:   best.Payload.Response,
			UserID:     userID,
			ScopeHash:  scopeHash,
			Tags:       best.Payload.Tags,
			Metadata:   best.Payload.Metadata,
			CreatedAt:  best.Payload.CreatedAt,
			TTLSeconds: m.cfg.TTL,
			Version:    best.Payload.Version,
		})
	}

	return best.Payload.Response, true
}

// selectBest applies the reranker when enabled and there is more than
// one candidate, otherwise returns the nearest vector match (spec
// §4.6.1 step 4). A reranker error or empty result falls back to the
// nearest match rather than failing the lookup.
func (m *Manager) selectBest(ctx context.Context, prompt string, matches []l2.Match) l2.Match {
	if m.reranker == nil || len(matches) < 2 {
		return matches[0]
	}

	candidates := make([]reranker.Candidate, len(matches))
	for i, match := range matches {
		candidates[i] = reranker.Candidate{EntryID: match.EntryID, Text: match.Payload.Response}
	}

	var ranked []reranker.Ranked
	err := m.withRetry(ctx, func() error {
		var rerankErr error
		ranked, rerankErr = m.reranker.Rerank(ctx, prompt, candidates)
		return rerankErr
	})
	if err != nil || len(ranked) == 0 {
		return matches[0]
	}

	for _, match := range matches {
		if match.EntryID == ranked[0].Candidate.EntryID {
			return match
		}
	}
	return matches[0]
}

// Store implements spec §4.6.2.
func (m *Manager) Store(ctx context.Context, prompt, response, userID string, scope cacheentry.Scope, tags []string, metadata map[string]string) error {
	if prompt == "" {
		return cerr.New(cerr.KindInvalidArgument, "manager.Store", errEmptyPrompt)
	}
	if err := m.validateTags(tags); err != nil {
		return err
	}

	var embedding []float64
	err := m.withRetry(ctx, func() error {
		embedCtx, cancel := context.WithTimeout(ctx, m.cfg.EmbedTimeout)
		defer cancel()
		var embedErr error
		embedding, embedErr = m.embedder.Embed(embedCtx, prompt)
		return embedErr
	})
	if err != nil {
		m.metrics.RecordError()
		return cerr.New(cerr.KindBackendUnavailable, "manager.Store", err)
	}

	entryID := cacheentry.NewEntryID()
	scopeHash := hashing.ScopeHash(scope, m.cfg.ContextFields)
	now := time.Now()

	payload := l2.Payload{
		Response:   response,
		Metadata:   metadata,
		CreatedAt:  now,
		Version:    m.cfg.CacheVersion,
		UserID:     userID,
		ScopeHash:  scopeHash,
		Tags:       tags,
		TTL:        time.Duration(m.cfg.TTL) * time.Second,
		PromptHash: hashing.PromptHash(prompt),
	}

	if err := m.withRetry(ctx, func() error {
		return m.l2Backend.IndexAdd(ctx, entryID, embedding, payload)
	}); err != nil {
		m.metrics.RecordError()
		return cerr.New(cerr.KindBackendUnavailable, "manager.Store", err)
	}

	l1Key := hashing.L1KeyFor(prompt, userID, scope, m.cfg.ContextFields)
	m.rememberKey(entryID, l1Key)

	if m.tagIdx != nil && len(tags) > 0 {
		// Best-effort: a failed attach does not invalidate the store
		// (spec §4.6.2 step 4).
		_ = m.tagIdx.AttachAll(ctx, entryID, tags)
	}

	if m.cfg.L1Cache.Enabled {
		m.l1.Put(l1Key, &cacheentry.Entry{
			EntryID:    entryID,
			Prompt:     prompt,
			Response:   response,
			UserID:     userID,
			ScopeHash:  scopeHash,
			Tags:       tags,
			Metadata:   metadata,
			CreatedAt:  now,
			TTLSeconds: m.cfg.TTL,
			Version:    m.cfg.CacheVersion,
		})
	}

	return nil
}

func (m *Manager) validateTags(tags []string) error {
	if len(tags) == 0 {
		return nil
	}
	if !m.cfg.EnableTags || m.cfg.MaxTagsPerEntry == 0 {
		return cerr.New(cerr.KindInvalidArgument, "manager.Store", errTaggingDisabled)
	}
	if len(tags) > m.cfg.MaxTagsPerEntry {
		return cerr.New(cerr.KindInvalidArgument, "manager.Store", errTooManyTags)
	}
	return nil
}

// storeRefreshed implements the background-refresh half of spec
// §4.5: it replaces the L2 record and repopulates L1 under the
// original tags, reusing the triggering request's scope and user.
func (m *Manager) storeRefreshed(ctx context.Context, req staleness.RefreshRequest, response string, tags []string) error {
	return m.Store(ctx, req.Prompt, response, req.UserID, req.Scope, tags, nil)
}

func msSince(start time.Time) float64 {
	return float64(time.Since(start)) / float64(time.Millisecond)
}
