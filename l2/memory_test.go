package l2_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cacheforge/semcache/l2"
)

func TestVectorSearchOrdersByIncreasingDistance(t *testing.T) {
	ctx := context.Background()
	backend := l2.NewInMemoryBackend()

	require.NoError(t, backend.IndexAdd(ctx, "near", []float64{1, 0}, l2.Payload{Response: "near", CreatedAt: time.Now()}))
	require.NoError(t, backend.IndexAdd(ctx, "far", []float64{0, 1}, l2.Payload{Response: "far", CreatedAt: time.Now()}))

	matches, err := backend.VectorSearch(ctx, []float64{1, 0}, l2.Filters{}, 10, 2.0)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	require.Equal(t, "near", matches[0].EntryID)
	require.Equal(t, "far", matches[1].EntryID)
	require.Less(t, matches[0].Distance, matches[1].Distance)
}

func TestVectorSearchRespectsDistanceThreshold(t *testing.T) {
	ctx := context.Background()
	backend := l2.NewInMemoryBackend()
	require.NoError(t, backend.IndexAdd(ctx, "orthogonal", []float64{0, 1}, l2.Payload{Response: "x", CreatedAt: time.Now()}))

	matches, err := backend.VectorSearch(ctx, []float64{1, 0}, l2.Filters{}, 10, 0.1)
	require.NoError(t, err)
	require.Empty(t, matches)
}

func TestVectorSearchFiltersByScopeHashAndUser(t *testing.T) {
	ctx := context.Background()
	backend := l2.NewInMemoryBackend()
	require.NoError(t, backend.IndexAdd(ctx, "a", []float64{1, 0}, l2.Payload{
		Response: "a", CreatedAt: time.Now(), UserID: "u1", ScopeHash: "s1",
	}))
	require.NoError(t, backend.IndexAdd(ctx, "b", []float64{1, 0}, l2.Payload{
		Response: "b", CreatedAt: time.Now(), UserID: "u2", ScopeHash: "s1",
	}))

	matches, err := backend.VectorSearch(ctx, []float64{1, 0}, l2.Filters{UserID: "u1"}, 10, 2.0)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	require.Equal(t, "a", matches[0].EntryID)
}

func TestVectorSearchSkipsExpiredEntries(t *testing.T) {
	ctx := context.Background()
	backend := l2.NewInMemoryBackend()
	require.NoError(t, backend.IndexAdd(ctx, "expired", []float64{1, 0}, l2.Payload{
		Response: "x", CreatedAt: time.Now().Add(-time.Hour), TTL: time.Second,
	}))

	matches, err := backend.VectorSearch(ctx, []float64{1, 0}, l2.Filters{}, 10, 2.0)
	require.NoError(t, err)
	require.Empty(t, matches)
}

func TestFindByPromptHashMatchesExactlyAndRespectsFilters(t *testing.T) {
	ctx := context.Background()
	backend := l2.NewInMemoryBackend()
	require.NoError(t, backend.IndexAdd(ctx, "a", []float64{1, 0}, l2.Payload{
		Response: "a", CreatedAt: time.Now(), UserID: "u1", PromptHash: "hash-1",
	}))

	match, ok, err := backend.FindByPromptHash(ctx, "hash-1", l2.Filters{UserID: "u1"})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "a", match.EntryID)
	require.Zero(t, match.Distance)

	_, ok, err = backend.FindByPromptHash(ctx, "hash-1", l2.Filters{UserID: "other"})
	require.NoError(t, err)
	require.False(t, ok)

	_, ok, err = backend.FindByPromptHash(ctx, "no-such-hash", l2.Filters{})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDeleteRemovesEntry(t *testing.T) {
	ctx := context.Background()
	backend := l2.NewInMemoryBackend()
	require.NoError(t, backend.IndexAdd(ctx, "a", []float64{1, 0}, l2.Payload{Response: "a", CreatedAt: time.Now()}))

	require.NoError(t, backend.Delete(ctx, "a"))
	exists, err := backend.Exists(ctx, "a")
	require.NoError(t, err)
	require.False(t, exists)
}

func TestSetMemberLifecycle(t *testing.T) {
	ctx := context.Background()
	backend := l2.NewInMemoryBackend()

	require.NoError(t, backend.SetMemberAdd(ctx, "tag:brand:apple", "e1"))
	require.NoError(t, backend.SetMemberAdd(ctx, "tag:brand:apple", "e2"))

	members, err := backend.SetRead(ctx, "tag:brand:apple")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"e1", "e2"}, members)

	require.NoError(t, backend.SetMemberRemove(ctx, "tag:brand:apple", "e1"))
	members, err = backend.SetRead(ctx, "tag:brand:apple")
	require.NoError(t, err)
	require.Equal(t, []string{"e2"}, members)

	require.NoError(t, backend.SetClear(ctx, "tag:brand:apple"))
	members, err = backend.SetRead(ctx, "tag:brand:apple")
	require.NoError(t, err)
	require.Empty(t, members)
}

func TestInMemoryBackendPingAndCloseAlwaysSucceed(t *testing.T) {
	backend := l2.NewInMemoryBackend()
	require.NoError(t, backend.Ping(context.Background()))
	require.NoError(t, backend.Close())
}
