package manager_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cacheforge/semcache/cacheentry"
	"github.com/cacheforge/semcache/config"
	"github.com/cacheforge/semcache/l2"
	"github.com/cacheforge/semcache/manager"
	"github.com/cacheforge/semcache/metrics"
)

// stubEmbedder returns a deterministic embedding per prompt so tests
// can control similarity without a real provider.
type stubEmbedder struct {
	vectors map[string][]float64
}

func (s *stubEmbedder) Name() string { return "stub" }

func (s *stubEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	if v, ok := s.vectors[text]; ok {
		return v, nil
	}
	// Distinct from every explicitly registered vector in these tests,
	// so an unmapped prompt never accidentally collides.
	return []float64{0, 0, 1}, nil
}

func testConfig() *config.Config {
	cfg := config.Defaults()
	cfg.RedisURL = "redis://localhost:6379"
	cfg.L1Cache.Enabled = true
	cfg.L1Cache.MaxSize = 100
	cfg.EmbedTimeout = 5 * time.Second
	return &cfg
}

func newTestManager(cfg *config.Config, embedder *stubEmbedder) (*manager.Manager, *metrics.Registry) {
	backend := l2.NewInMemoryBackend()
	reg := metrics.New("test")
	m := manager.New(manager.Options{
		Config:    cfg,
		L2Backend: backend,
		Embedder:  embedder,
		Metrics:   reg,
	})
	return m, reg
}

func TestStoreThenCheckReturnsExactMatch(t *testing.T) {
	cfg := testConfig()
	embedder := &stubEmbedder{vectors: map[string][]float64{"what is the capital of France?": {1, 0, 0}}}
	m, _ := newTestManager(cfg, embedder)
	ctx := context.Background()

	err := m.Store(ctx, "what is the capital of France?", "Paris", "", cacheentry.Scope{}, nil, nil)
	require.NoError(t, err)

	response, hit := m.Check(ctx, "what is the capital of France?", "", cacheentry.Scope{}, false)
	require.True(t, hit)
	require.Equal(t, "Paris", response)
}

func TestExactMatchBypassesEmbedderOnClearedL1(t *testing.T) {
	cfg := testConfig()
	embedder := &stubEmbedder{vectors: map[string][]float64{"q": {1, 0, 0}}}
	m, _ := newTestManager(cfg, embedder)
	ctx := context.Background()

	require.NoError(t, m.Store(ctx, "q", "a", "", cacheentry.Scope{}, nil, nil))
	m.ClearL1()

	// Even with whitespace differences that normalize away, the exact
	// prompt-hash match should still be found via L2 without needing a
	// registered embedding vector for the padded variant.
	response, hit := m.Check(ctx, "  q ", "", cacheentry.Scope{}, false)
	require.True(t, hit)
	require.Equal(t, "a", response)
}

func TestCheckBypassSkipsStoredEntry(t *testing.T) {
	cfg := testConfig()
	embedder := &stubEmbedder{vectors: map[string][]float64{"q": {1, 0, 0}}}
	m, _ := newTestManager(cfg, embedder)
	ctx := context.Background()

	require.NoError(t, m.Store(ctx, "q", "a", "", cacheentry.Scope{}, nil, nil))

	_, hit := m.Check(ctx, "q", "", cacheentry.Scope{}, true)
	require.False(t, hit)

	// A non-bypassed lookup for the same prompt still finds it.
	response, hit := m.Check(ctx, "q", "", cacheentry.Scope{}, false)
	require.True(t, hit)
	require.Equal(t, "a", response)
}

func TestCheckMissesOnEmptyCache(t *testing.T) {
	cfg := testConfig()
	m, _ := newTestManager(cfg, &stubEmbedder{})
	_, hit := m.Check(context.Background(), "anything", "", cacheentry.Scope{}, false)
	require.False(t, hit)
}

func TestClearL1FallsThroughToL2AndRepopulates(t *testing.T) {
	cfg := testConfig()
	embedder := &stubEmbedder{vectors: map[string][]float64{"q": {1, 0, 0}}}
	m, _ := newTestManager(cfg, embedder)
	ctx := context.Background()

	require.NoError(t, m.Store(ctx, "q", "a", "", cacheentry.Scope{}, nil, nil))
	_, hit := m.Check(ctx, "q", "", cacheentry.Scope{}, false) // populates L1
	require.True(t, hit)

	m.ClearL1()

	response, hit := m.Check(ctx, "q", "", cacheentry.Scope{}, false)
	require.True(t, hit)
	require.Equal(t, "a", response)
}

func TestInvalidateByTagRemovesMatchingEntries(t *testing.T) {
	cfg := testConfig()
	embedder := &stubEmbedder{vectors: map[string][]float64{
		"q1": {1, 0, 0},
		"q2": {0, 1, 0},
	}}
	m, _ := newTestManager(cfg, embedder)
	ctx := context.Background()

	require.NoError(t, m.Store(ctx, "q1", "r1", "", cacheentry.Scope{}, []string{"brand:apple"}, nil))
	require.NoError(t, m.Store(ctx, "q2", "r2", "", cacheentry.Scope{}, []string{"brand:apple", "cat:phone"}, nil))

	count, err := m.InvalidateByTag(ctx, "brand:apple")
	require.NoError(t, err)
	require.Equal(t, 2, count)

	_, hit := m.Check(ctx, "q1", "", cacheentry.Scope{}, false)
	require.False(t, hit)
	_, hit = m.Check(ctx, "q2", "", cacheentry.Scope{}, false)
	require.False(t, hit)
}

func TestStoreRejectsTooManyTags(t *testing.T) {
	cfg := testConfig()
	cfg.MaxTagsPerEntry = 1
	m, _ := newTestManager(cfg, &stubEmbedder{})

	err := m.Store(context.Background(), "q", "r", "", cacheentry.Scope{}, []string{"a", "b"}, nil)
	require.Error(t, err)
}

func TestStoreRejectsEmptyPrompt(t *testing.T) {
	cfg := testConfig()
	m, _ := newTestManager(cfg, &stubEmbedder{})
	err := m.Store(context.Background(), "", "r", "", cacheentry.Scope{}, nil, nil)
	require.Error(t, err)
}

func TestBatchCheckPreservesOrderAndHandlesMixedHits(t *testing.T) {
	cfg := testConfig()
	embedder := &stubEmbedder{vectors: map[string][]float64{"known": {1, 0, 0}}}
	m, _ := newTestManager(cfg, embedder)
	ctx := context.Background()

	require.NoError(t, m.Store(ctx, "known", "cached-response", "", cacheentry.Scope{}, nil, nil))
	m.ClearL1() // force the known entry through the L2 path too

	results := m.BatchCheck(ctx, []manager.BatchRequest{
		{Prompt: "known"},
		{Prompt: "unknown"},
	}, 2)

	require.Len(t, results, 2)
	require.True(t, results[0].Hit)
	require.Equal(t, "cached-response", results[0].Response)
	require.False(t, results[1].Hit)
}

func TestMetricsTrackHitsAndMisses(t *testing.T) {
	cfg := testConfig()
	embedder := &stubEmbedder{vectors: map[string][]float64{"q": {1, 0, 0}}}
	m, reg := newTestManager(cfg, embedder)
	ctx := context.Background()

	require.NoError(t, m.Store(ctx, "q", "a", "", cacheentry.Scope{}, nil, nil))
	m.Check(ctx, "q", "", cacheentry.Scope{}, false)
	m.Check(ctx, "missing", "", cacheentry.Scope{}, false)

	snapshot := reg.Snapshot()
	require.Equal(t, float64(1), snapshot.Hits)
	require.Equal(t, float64(1), snapshot.Misses)
}
