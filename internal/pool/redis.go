package pool

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/oriys/satchel/internal/domain"
)

const (
	queueKeyPrefix = "satchel:pool:queue:"
	seenKeyPrefix  = "satchel:pool:seen:"
	metaKeyPrefix  = "satchel:pool:meta:"
)

// enqueueScript appends any set-id in ARGV not already present in the
// category's "known ids" set (KEYS[2]) to its FIFO list (KEYS[1]), then
// updates the metadata hash (KEYS[3]) in the same round trip: total,
// last_updated, last_batch_size. This is the single atomic step spec §4.2
// requires between the list mutation and the counter update.
var enqueueScript = redis.NewScript(`
local queueKey = KEYS[1]
local seenKey = KEYS[2]
local metaKey = KEYS[3]
local now = ARGV[1]
local added = 0
for i = 2, #ARGV do
    local id = ARGV[i]
    if redis.call('SISMEMBER', seenKey, id) == 0 then
        redis.call('RPUSH', queueKey, id)
        redis.call('SADD', seenKey, id)
        added = added + 1
    end
end
if added > 0 then
    redis.call('HSET', metaKey, 'last_updated', now, 'last_batch_size', added)
    redis.call('HSET', metaKey, 'total_available', redis.call('LLEN', queueKey))
end
return added
`)

// RedisIndex implements Index on Redis, grounded on the teacher's
// go-redis/v8 client wrapper (internal/store/redis.go) and Lua-script
// idiom for single-round-trip atomic operations.
type RedisIndex struct {
	client *redis.Client
}

// NewRedisIndex wraps an existing Redis client. The pool and ledger share
// one Redis deployment in this system; callers construct a single
// *redis.Client and hand it to both.
func NewRedisIndex(client *redis.Client) *RedisIndex {
	return &RedisIndex{client: client}
}

func (idx *RedisIndex) Enqueue(ctx context.Context, categoryID string, setIDs []string) error {
	if len(setIDs) == 0 {
		return nil
	}
	args := make([]interface{}, 0, len(setIDs)+1)
	args = append(args, time.Now().UTC().Format(time.RFC3339Nano))
	for _, id := range setIDs {
		args = append(args, id)
	}
	keys := []string{queueKeyPrefix + categoryID, seenKeyPrefix + categoryID, metaKeyPrefix + categoryID}
	if err := enqueueScript.Run(ctx, idx.client, keys, args...).Err(); err != nil {
		return fmt.Errorf("pool enqueue %s: %w", categoryID, err)
	}
	return nil
}

func (idx *RedisIndex) PeekAll(ctx context.Context, categoryID string) ([]string, error) {
	ids, err := idx.client.LRange(ctx, queueKeyPrefix+categoryID, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("pool peek %s: %w", categoryID, err)
	}
	return ids, nil
}

func (idx *RedisIndex) DequeueOne(ctx context.Context, categoryID string) (string, bool, error) {
	queueKey := queueKeyPrefix + categoryID
	id, err := idx.client.LPop(ctx, queueKey).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("pool dequeue %s: %w", categoryID, err)
	}
	pipe := idx.client.Pipeline()
	pipe.SRem(ctx, seenKeyPrefix+categoryID, id)
	pipe.HSet(ctx, metaKeyPrefix+categoryID, "last_updated", time.Now().UTC().Format(time.RFC3339Nano))
	pipe.HSet(ctx, metaKeyPrefix+categoryID, "total_available", idx.client.LLen(ctx, queueKey).Val())
	if _, err := pipe.Exec(ctx); err != nil {
		return "", false, fmt.Errorf("pool dequeue metadata update %s: %w", categoryID, err)
	}
	return id, true, nil
}

func (idx *RedisIndex) Drop(ctx context.Context, categoryID string) error {
	pipe := idx.client.Pipeline()
	pipe.Del(ctx, queueKeyPrefix+categoryID)
	pipe.Del(ctx, seenKeyPrefix+categoryID)
	pipe.HSet(ctx, metaKeyPrefix+categoryID, "total_available", 0, "last_batch_size", 0, "last_updated", time.Now().UTC().Format(time.RFC3339Nano))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("pool drop %s: %w", categoryID, err)
	}
	return nil
}

func (idx *RedisIndex) Metadata(ctx context.Context, categoryID string) (domain.CategoryMeta, error) {
	vals, err := idx.client.HGetAll(ctx, metaKeyPrefix+categoryID).Result()
	if err != nil {
		return domain.CategoryMeta{}, fmt.Errorf("pool metadata %s: %w", categoryID, err)
	}
	meta := domain.CategoryMeta{CategoryID: categoryID}
	if v, ok := vals["total_available"]; ok {
		fmt.Sscanf(v, "%d", &meta.TotalAvailable)
	}
	if v, ok := vals["last_batch_size"]; ok {
		fmt.Sscanf(v, "%d", &meta.LastBatchSize)
	}
	if v, ok := vals["last_updated"]; ok {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			meta.LastUpdated = t
		}
	}
	return meta, nil
}
