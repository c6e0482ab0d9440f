// Package tagindex implements the Tag Index (spec §4.2): a reverse
// mapping from tag to the set of entry_ids carrying it, plus a
// per-entry reverse set so an entry's tags can be found and cleared
// without a full scan. Both live in L2, behind the Backend's
// set_member_* operations.
package tagindex

import (
	"context"
	"errors"

	"github.com/cacheforge/semcache/cerr"
	"github.com/cacheforge/semcache/l2"
)

var errTooManyTags = errors.New("entry exceeds max_tags_per_entry")

// Index is a thin coordinator over an l2.Backend's set operations. It
// holds no state of its own — every call is a direct L2 round trip,
// matching the spec's note that tag-index writes are not atomic
// across multiple tags.
type Index struct {
	backend   l2.Backend
	indexName string
	maxTags   int
}

// New builds a tag index over the given backend. indexName namespaces
// the tag and reverse-set keys (spec §6: "<name>:tag:<tag_value>").
func New(backend l2.Backend, indexName string, maxTagsPerEntry int) *Index {
	return &Index{backend: backend, indexName: indexName, maxTags: maxTagsPerEntry}
}

func (idx *Index) tagKey(tag string) string {
	return idx.indexName + ":tag:" + tag
}

func (idx *Index) entryTagsKey(entryID string) string {
	return idx.indexName + ":entrytags:" + entryID
}

// Attach adds tag to entryID's tag set and registers it in the
// entry's reverse map (spec §4.2).
func (idx *Index) Attach(ctx context.Context, entryID, tag string) error {
	if err := idx.backend.SetMemberAdd(ctx, idx.tagKey(tag), entryID); err != nil {
		return err
	}
	return idx.backend.SetMemberAdd(ctx, idx.entryTagsKey(entryID), tag)
}

// AttachAll attaches every tag in tags to entryID, rejecting the call
// up front if it would exceed max_tags_per_entry (spec §4.2).
// Individual attach failures are returned but do not roll back
// earlier ones — the tag index is best-effort (spec §4.6.2).
func (idx *Index) AttachAll(ctx context.Context, entryID string, tags []string) error {
	if idx.maxTags > 0 && len(tags) > idx.maxTags {
		return cerr.New(cerr.KindInvalidArgument, "tagindex.AttachAll", errTooManyTags)
	}
	for _, tag := range tags {
		if err := idx.Attach(ctx, entryID, tag); err != nil {
			return err
		}
	}
	return nil
}

// Resolve returns the current entry_id set for tag.
func (idx *Index) Resolve(ctx context.Context, tag string) ([]string, error) {
	return idx.backend.SetRead(ctx, idx.tagKey(tag))
}

// RemoveEntry removes entryID from every tag set it belongs to, then
// clears its reverse map (spec §4.2).
func (idx *Index) RemoveEntry(ctx context.Context, entryID string) error {
	tags, err := idx.backend.SetRead(ctx, idx.entryTagsKey(entryID))
	if err != nil {
		return err
	}
	for _, tag := range tags {
		if err := idx.backend.SetMemberRemove(ctx, idx.tagKey(tag), entryID); err != nil {
			return err
		}
	}
	return idx.backend.SetClear(ctx, idx.entryTagsKey(entryID))
}

// InvalidateByTag resolves tag, deletes every referenced entry from
// L2, and clears the tag's set. It returns the deleted entry_ids so
// the caller (the Cache Manager) can also evict them from L1 (spec
// §4.2, §4.6.4). Idempotent: a second call against an already-cleared
// tag resolves an empty set and deletes nothing.
func (idx *Index) InvalidateByTag(ctx context.Context, tag string) ([]string, error) {
	entryIDs, err := idx.Resolve(ctx, tag)
	if err != nil {
		return nil, err
	}
	for _, entryID := range entryIDs {
		if err := idx.backend.Delete(ctx, entryID); err != nil {
			return nil, err
		}
		if err := idx.backend.SetClear(ctx, idx.entryTagsKey(entryID)); err != nil {
			return nil, err
		}
	}
	if err := idx.backend.SetClear(ctx, idx.tagKey(tag)); err != nil {
		return nil, err
	}
	return entryIDs, nil
}

// InvalidateByTags resolves the union (matchAll=false) or
// intersection (matchAll=true) of the given tags' sets and deletes
// each referenced entry the same way InvalidateByTag does (spec
// §4.2).
func (idx *Index) InvalidateByTags(ctx context.Context, tags []string, matchAll bool) ([]string, error) {
	if len(tags) == 0 {
		return nil, nil
	}

	sets := make([]map[string]struct{}, 0, len(tags))
	for _, tag := range tags {
		members, err := idx.Resolve(ctx, tag)
		if err != nil {
			return nil, err
		}
		set := make(map[string]struct{}, len(members))
		for _, m := range members {
			set[m] = struct{}{}
		}
		sets = append(sets, set)
	}

	var combined map[string]struct{}
	if matchAll {
		combined = intersect(sets)
	} else {
		combined = union(sets)
	}

	entryIDs := make([]string, 0, len(combined))
	for entryID := range combined {
		entryIDs = append(entryIDs, entryID)
	}

	for _, entryID := range entryIDs {
		if err := idx.backend.Delete(ctx, entryID); err != nil {
			return nil, err
		}
		if err := idx.RemoveEntry(ctx, entryID); err != nil {
			return nil, err
		}
	}
	for _, tag := range tags {
		if err := idx.backend.SetClear(ctx, idx.tagKey(tag)); err != nil {
			return nil, err
		}
	}
	return entryIDs, nil
}

func union(sets []map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{})
	for _, s := range sets {
		for k := range s {
			out[k] = struct{}{}
		}
	}
	return out
}

func intersect(sets []map[string]struct{}) map[string]struct{} {
	if len(sets) == 0 {
		return map[string]struct{}{}
	}
	out := make(map[string]struct{})
	for k := range sets[0] {
		inAll := true
		for _, s := range sets[1:] {
			if _, ok := s[k]; !ok {
				inAll = false
				break
			}
		}
		if inAll {
			out[k] = struct{}{}
		}
	}
	return out
}
