package tagindex_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cacheforge/semcache/l2"
	"github.com/cacheforge/semcache/tagindex"
)

func TestInvalidateByTagDeletesReferencedEntries(t *testing.T) {
	ctx := context.Background()
	backend := l2.NewInMemoryBackend()
	idx := tagindex.New(backend, "test", 10)

	require.NoError(t, backend.IndexAdd(ctx, "e1", []float64{1, 0}, l2.Payload{Response: "r1"}))
	require.NoError(t, backend.IndexAdd(ctx, "e2", []float64{1, 0}, l2.Payload{Response: "r2"}))
	require.NoError(t, idx.AttachAll(ctx, "e1", []string{"brand:apple"}))
	require.NoError(t, idx.AttachAll(ctx, "e2", []string{"brand:apple", "cat:phone"}))

	deleted, err := idx.InvalidateByTag(ctx, "brand:apple")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"e1", "e2"}, deleted)

	exists1, _ := backend.Exists(ctx, "e1")
	exists2, _ := backend.Exists(ctx, "e2")
	require.False(t, exists1)
	require.False(t, exists2)
}

func TestInvalidateByTagIsIdempotent(t *testing.T) {
	ctx := context.Background()
	backend := l2.NewInMemoryBackend()
	idx := tagindex.New(backend, "test", 10)

	require.NoError(t, backend.IndexAdd(ctx, "e1", []float64{1, 0}, l2.Payload{Response: "r1"}))
	require.NoError(t, idx.AttachAll(ctx, "e1", []string{"x"}))

	first, err := idx.InvalidateByTag(ctx, "x")
	require.NoError(t, err)
	require.Len(t, first, 1)

	second, err := idx.InvalidateByTag(ctx, "x")
	require.NoError(t, err)
	require.Empty(t, second)
}

func TestInvalidateByTagsUnionVsIntersection(t *testing.T) {
	ctx := context.Background()
	backend := l2.NewInMemoryBackend()
	idx := tagindex.New(backend, "test", 10)

	require.NoError(t, backend.IndexAdd(ctx, "e1", []float64{1, 0}, l2.Payload{Response: "r1"}))
	require.NoError(t, backend.IndexAdd(ctx, "e2", []float64{1, 0}, l2.Payload{Response: "r2"}))
	require.NoError(t, idx.AttachAll(ctx, "e1", []string{"a"}))
	require.NoError(t, idx.AttachAll(ctx, "e2", []string{"a", "b"}))

	union, err := idx.InvalidateByTags(ctx, []string{"a", "b"}, false)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"e1", "e2"}, union)
}

func TestInvalidateByTagsIntersectionOnlyDeletesOverlap(t *testing.T) {
	ctx := context.Background()
	backend := l2.NewInMemoryBackend()
	idx := tagindex.New(backend, "test", 10)

	require.NoError(t, backend.IndexAdd(ctx, "e1", []float64{1, 0}, l2.Payload{Response: "r1"}))
	require.NoError(t, backend.IndexAdd(ctx, "e2", []float64{1, 0}, l2.Payload{Response: "r2"}))
	require.NoError(t, idx.AttachAll(ctx, "e1", []string{"a"}))
	require.NoError(t, idx.AttachAll(ctx, "e2", []string{"a", "b"}))

	intersection, err := idx.InvalidateByTags(ctx, []string{"a", "b"}, true)
	require.NoError(t, err)
	require.Equal(t, []string{"e2"}, intersection)

	stillExists, _ := backend.Exists(ctx, "e1")
	require.True(t, stillExists)
}

func TestAttachAllRejectsOverLimit(t *testing.T) {
	ctx := context.Background()
	backend := l2.NewInMemoryBackend()
	idx := tagindex.New(backend, "test", 1)

	err := idx.AttachAll(ctx, "e1", []string{"a", "b"})
	require.Error(t, err)
}

func TestRemoveEntryClearsTagMembership(t *testing.T) {
	ctx := context.Background()
	backend := l2.NewInMemoryBackend()
	idx := tagindex.New(backend, "test", 10)

	require.NoError(t, idx.AttachAll(ctx, "e1", []string{"a", "b"}))
	require.NoError(t, idx.RemoveEntry(ctx, "e1"))

	members, err := idx.Resolve(ctx, "a")
	require.NoError(t, err)
	require.Empty(t, members)
}
