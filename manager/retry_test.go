package manager_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cacheforge/semcache/cacheentry"
	"github.com/cacheforge/semcache/cerr"
	"github.com/cacheforge/semcache/l2"
	"github.com/cacheforge/semcache/manager"
	"github.com/cacheforge/semcache/metrics"
)

// flakyBackend fails IndexAdd with a BackendTransient error the first
// failuresBeforeSuccess times, then delegates to the embedded
// InMemoryBackend, so Store's retry loop has something to retry on.
type flakyBackend struct {
	*l2.InMemoryBackend
	failuresBeforeSuccess int
	attempts              int
}

func (b *flakyBackend) IndexAdd(ctx context.Context, entryID string, embedding []float64, payload l2.Payload) error {
	b.attempts++
	if b.attempts <= b.failuresBeforeSuccess {
		return cerr.New(cerr.KindBackendTransient, "l2.IndexAdd", errors.New("connection reset"))
	}
	return b.InMemoryBackend.IndexAdd(ctx, entryID, embedding, payload)
}

func TestStoreRetriesTransientIndexAddFailures(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRetries = 3
	cfg.RetryBackoffBaseMs = 1
	backend := &flakyBackend{InMemoryBackend: l2.NewInMemoryBackend(), failuresBeforeSuccess: 2}

	m := manager.New(manager.Options{
		Config:    cfg,
		L2Backend: backend,
		Embedder:  &stubEmbedder{vectors: map[string][]float64{"q": {1, 0, 0}}},
		Metrics:   metrics.New("test-retry"),
	})

	err := m.Store(context.Background(), "q", "a", "", cacheentry.Scope{}, nil, nil)
	require.NoError(t, err)
	require.Equal(t, 3, backend.attempts)
}

func TestStoreGivesUpAfterMaxRetriesExhausted(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRetries = 1
	cfg.RetryBackoffBaseMs = 1
	backend := &flakyBackend{InMemoryBackend: l2.NewInMemoryBackend(), failuresBeforeSuccess: 5}

	m := manager.New(manager.Options{
		Config:    cfg,
		L2Backend: backend,
		Embedder:  &stubEmbedder{vectors: map[string][]float64{"q": {1, 0, 0}}},
		Metrics:   metrics.New("test-retry-exhausted"),
	})

	err := m.Store(context.Background(), "q", "a", "", cacheentry.Scope{}, nil, nil)
	require.Error(t, err)
	require.True(t, cerr.Is(err, cerr.KindBackendUnavailable))
	require.Equal(t, 2, backend.attempts)
}

func TestManagerPingAndClosePassThroughToBackend(t *testing.T) {
	cfg := testConfig()
	backend := l2.NewInMemoryBackend()
	m := manager.New(manager.Options{
		Config:    cfg,
		L2Backend: backend,
		Embedder:  &stubEmbedder{},
		Metrics:   metrics.New("test-health"),
	})

	require.NoError(t, m.Ping(context.Background()))
	require.NoError(t, m.Close())
}
