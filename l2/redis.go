package l2

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cacheforge/semcache/cerr"
	"github.com/cacheforge/semcache/redisclient"
)

// storedRecord is the JSON wire shape for one indexed entry, matching
// the field layout in spec §6's persisted state layout.
type storedRecord struct {
	Embedding  []float64         `json:"vector"`
	Response   string            `json:"response"`
	Metadata   map[string]string `json:"metadata"`
	CreatedAt  int64             `json:"created_at"`
	Version    string            `json:"version"`
	UserID     string            `json:"user_id"`
	ScopeHash  string            `json:"scope_hash"`
	Tags       []string          `json:"tags"`
	TTL        int64             `json:"ttl"`
	PromptHash string            `json:"prompt_hash"`
}

// RedisBackend implements Backend atop go-redis. Index entries are
// stored as `<name>:entry:<id>` JSON blobs with a server-side TTL; a
// `<name>:ids` set tracks live members for vector_search enumeration.
// go-redis alone has no k-NN search, so vector_search is a
// client-side brute-force scan over the index's members — the same
// tradeoff the teacher's in-memory engine documents ("production
// deployments should back this with Redis Vector Search"). Tag sets
// use native Redis sets, one member-add/remove round trip per call.
type RedisBackend struct {
	client    *redisclient.Client
	indexName string
}

// NewRedisBackend builds a Backend over the given index namespace.
func NewRedisBackend(client *redisclient.Client, indexName string) *RedisBackend {
	return &RedisBackend{client: client, indexName: indexName}
}

func (b *RedisBackend) entryKey(entryID string) string {
	return fmt.Sprintf("%s:entry:%s", b.indexName, entryID)
}

func (b *RedisBackend) idsKey() string {
	return b.indexName + ":ids"
}

func (b *RedisBackend) promptHashKey(promptHash string) string {
	return fmt.Sprintf("%s:prompthash:%s", b.indexName, promptHash)
}

func (b *RedisBackend) IndexAdd(ctx context.Context, entryID string, embedding []float64, payload Payload) error {
	rec := storedRecord{
		Embedding:  embedding,
		Response:   payload.Response,
		Metadata:   payload.Metadata,
		CreatedAt:  payload.CreatedAt.Unix(),
		Version:    payload.Version,
		UserID:     payload.UserID,
		ScopeHash:  payload.ScopeHash,
		Tags:       payload.Tags,
		TTL:        int64(payload.TTL.Seconds()),
		PromptHash: payload.PromptHash,
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return cerr.New(cerr.KindSerialization, "l2.IndexAdd", err)
	}

	pipe := b.client.Raw.TxPipeline()
	pipe.Set(ctx, b.entryKey(entryID), data, payload.TTL)
	pipe.SAdd(ctx, b.idsKey(), entryID)
	if payload.PromptHash != "" {
		pipe.SAdd(ctx, b.promptHashKey(payload.PromptHash), entryID)
		if payload.TTL > 0 {
			pipe.Expire(ctx, b.promptHashKey(payload.PromptHash), payload.TTL)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return cerr.New(cerr.KindBackendTransient, "l2.IndexAdd", err)
	}
	return nil
}

// FindByPromptHash looks up the `<name>:prompthash:<hash>` set populated
// by IndexAdd, then filters its members the same way VectorSearch does
// (spec's exact-match fast path, SPEC_FULL.md "Supplemented features").
func (b *RedisBackend) FindByPromptHash(ctx context.Context, promptHash string, filters Filters) (Match, bool, error) {
	if promptHash == "" {
		return Match{}, false, nil
	}

	ids, err := b.client.Raw.SMembers(ctx, b.promptHashKey(promptHash)).Result()
	if err != nil {
		return Match{}, false, cerr.New(cerr.KindBackendTransient, "l2.FindByPromptHash", err)
	}
	if len(ids) == 0 {
		return Match{}, false, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = b.entryKey(id)
	}
	values, err := b.client.Raw.MGet(ctx, keys...).Result()
	if err != nil {
		return Match{}, false, cerr.New(cerr.KindBackendTransient, "l2.FindByPromptHash", err)
	}

	for i, raw := range values {
		if raw == nil {
			continue
		}
		str, ok := raw.(string)
		if !ok {
			continue
		}
		var rec storedRecord
		if err := json.Unmarshal([]byte(str), &rec); err != nil {
			continue
		}
		if filters.UserID != "" && rec.UserID != filters.UserID {
			continue
		}
		if filters.ScopeHash != "" && rec.ScopeHash != filters.ScopeHash {
			continue
		}
		if filters.Version != "" && rec.Version != filters.Version {
			continue
		}
		return Match{
			EntryID:  ids[i],
			Distance: 0,
			Payload: Payload{
				Response:   rec.Response,
				Metadata:   rec.Metadata,
				CreatedAt:  time.Unix(rec.CreatedAt, 0),
				Version:    rec.Version,
				UserID:     rec.UserID,
				ScopeHash:  rec.ScopeHash,
				Tags:       rec.Tags,
				TTL:        time.Duration(rec.TTL) * time.Second,
				PromptHash: rec.PromptHash,
			},
		}, true, nil
	}
	return Match{}, false, nil
}

func (b *RedisBackend) VectorSearch(ctx context.Context, embedding []float64, filters Filters, k int, distanceThreshold float64) ([]Match, error) {
	ids, err := b.client.Raw.SMembers(ctx, b.idsKey()).Result()
	if err != nil {
		return nil, cerr.New(cerr.KindBackendTransient, "l2.VectorSearch", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = b.entryKey(id)
	}
	values, err := b.client.Raw.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, cerr.New(cerr.KindBackendTransient, "l2.VectorSearch", err)
	}

	matches := make([]Match, 0, len(ids))
	staleIDs := make([]string, 0)
	for i, raw := range values {
		if raw == nil {
			// Expired under Redis's own TTL; the ids set has gone stale
			// and will be pruned below.
			staleIDs = append(staleIDs, ids[i])
			continue
		}
		str, ok := raw.(string)
		if !ok {
			continue
		}
		var rec storedRecord
		if err := json.Unmarshal([]byte(str), &rec); err != nil {
			continue
		}
		if filters.UserID != "" && rec.UserID != filters.UserID {
			continue
		}
		if filters.ScopeHash != "" && rec.ScopeHash != filters.ScopeHash {
			continue
		}
		if filters.Version != "" && rec.Version != filters.Version {
			continue
		}

		dist := cosineDistance(embedding, rec.Embedding)
		if dist > distanceThreshold {
			continue
		}
		matches = append(matches, Match{
			EntryID:  ids[i],
			Distance: dist,
			Payload: Payload{
				Response:  rec.Response,
				Metadata:  rec.Metadata,
				CreatedAt: time.Unix(rec.CreatedAt, 0),
				Version:   rec.Version,
				UserID:    rec.UserID,
				ScopeHash: rec.ScopeHash,
				Tags:      rec.Tags,
				TTL:       time.Duration(rec.TTL) * time.Second,
			},
		})
	}

	if len(staleIDs) > 0 {
		b.client.Raw.SRem(ctx, b.idsKey(), toInterfaceSlice(staleIDs)...)
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Distance < matches[j].Distance })
	if k > 0 && len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

func (b *RedisBackend) Delete(ctx context.Context, entryID string) error {
	var promptHash string
	if raw, err := b.client.Raw.Get(ctx, b.entryKey(entryID)).Result(); err == nil {
		var rec storedRecord
		if jsonErr := json.Unmarshal([]byte(raw), &rec); jsonErr == nil {
			promptHash = rec.PromptHash
		}
	}

	pipe := b.client.Raw.TxPipeline()
	pipe.Del(ctx, b.entryKey(entryID))
	pipe.SRem(ctx, b.idsKey(), entryID)
	if promptHash != "" {
		pipe.SRem(ctx, b.promptHashKey(promptHash), entryID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return cerr.New(cerr.KindBackendUnavailable, "l2.Delete", err)
	}
	return nil
}

func (b *RedisBackend) Exists(ctx context.Context, entryID string) (bool, error) {
	n, err := b.client.Raw.Exists(ctx, b.entryKey(entryID)).Result()
	if err != nil {
		return false, cerr.New(cerr.KindBackendUnavailable, "l2.Exists", err)
	}
	return n > 0, nil
}

func (b *RedisBackend) SetMemberAdd(ctx context.Context, setKey, member string) error {
	if err := b.client.Raw.SAdd(ctx, setKey, member).Err(); err != nil {
		return cerr.New(cerr.KindBackendUnavailable, "l2.SetMemberAdd", err)
	}
	return nil
}

func (b *RedisBackend) SetMemberRemove(ctx context.Context, setKey, member string) error {
	if err := b.client.Raw.SRem(ctx, setKey, member).Err(); err != nil {
		return cerr.New(cerr.KindBackendUnavailable, "l2.SetMemberRemove", err)
	}
	return nil
}

func (b *RedisBackend) SetRead(ctx context.Context, setKey string) ([]string, error) {
	members, err := b.client.Raw.SMembers(ctx, setKey).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, cerr.New(cerr.KindBackendUnavailable, "l2.SetRead", err)
	}
	return members, nil
}

func (b *RedisBackend) SetClear(ctx context.Context, setKey string) error {
	if err := b.client.Raw.Del(ctx, setKey).Err(); err != nil {
		return cerr.New(cerr.KindBackendUnavailable, "l2.SetClear", err)
	}
	return nil
}

// Ping passes through to the underlying client, surfacing Redis
// reachability for the admin API's /healthz.
func (b *RedisBackend) Ping(ctx context.Context) error {
	return b.client.Ping(ctx)
}

// Close releases the underlying Redis connection pool.
func (b *RedisBackend) Close() error {
	return b.client.Close()
}

func toInterfaceSlice(ss []string) []interface{} {
	out := make([]interface{}, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
