package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/oriys/satchel/internal/domain"
)

const (
	allocKeyPrefix     = "alloc:"
	allocMetaKeyPrefix = "alloc:meta:"
	allocTSKeyPrefix   = "alloc:ts:"

	maxCASRetries = 8
)

// categoryMeta is the per-category slice of alloc:meta:<userId>, JSON-encoded
// as one hash field per category.
type categoryMeta struct {
	Count                  int       `json:"count"`
	LastAssigned           string    `json:"last_assigned"`
	LastUpdated            time.Time `json:"last_updated"`
	LastUpdatedPerCategory time.Time `json:"last_updated_per_category"`
	EvictedCount           int       `json:"evicted_count"`
	EvictedAt              time.Time `json:"evicted_at,omitempty"`
}

// RedisLedger implements Store on Redis using optimistic (WATCH/MULTI/EXEC)
// compare-and-swap writes, grounded on the teacher's go-redis/v8 client
// wrapper style (internal/store/redis.go). This is the "(b)" per-user
// serialization primitive spec §5 allows as an alternative to a per-user
// advisory lock: two concurrent writers for the same user race on the
// transaction, and the loser retries against the refreshed snapshot rather
// than blocking.
type RedisLedger struct {
	client *redis.Client
}

// NewRedisLedger wraps an existing Redis client.
func NewRedisLedger(client *redis.Client) *RedisLedger {
	return &RedisLedger{client: client}
}

func (l *RedisLedger) Load(ctx context.Context, userID, categoryID string) (domain.UserCategoryState, error) {
	state, _, err := l.loadWithMeta(ctx, userID, categoryID)
	return state, err
}

func (l *RedisLedger) loadWithMeta(ctx context.Context, userID, categoryID string) (domain.UserCategoryState, categoryMeta, error) {
	allocKey := allocKeyPrefix + userID
	metaKey := allocMetaKeyPrefix + userID
	tsKey := allocTSKeyPrefix + userID

	pipe := l.client.Pipeline()
	listCmd := pipe.HGet(ctx, allocKey, categoryID)
	metaCmd := pipe.HGet(ctx, metaKey, categoryID)
	tsCmd := pipe.HGetAll(ctx, tsKey)
	_, err := pipe.Exec(ctx)
	if err != nil && err != redis.Nil {
		return domain.UserCategoryState{}, categoryMeta{}, fmt.Errorf("ledger load %s/%s: %w", userID, categoryID, err)
	}

	state := domain.EmptyUserCategoryState(userID, categoryID)
	if raw, err := listCmd.Result(); err == nil {
		_ = json.Unmarshal([]byte(raw), &state.SetIDs)
	} else if err != redis.Nil {
		return domain.UserCategoryState{}, categoryMeta{}, fmt.Errorf("ledger load list %s/%s: %w", userID, categoryID, err)
	}

	var meta categoryMeta
	if raw, err := metaCmd.Result(); err == nil {
		_ = json.Unmarshal([]byte(raw), &meta)
	} else if err != redis.Nil {
		return domain.UserCategoryState{}, categoryMeta{}, fmt.Errorf("ledger load meta %s/%s: %w", userID, categoryID, err)
	}

	prefix := categoryID + ":"
	if all, err := tsCmd.Result(); err == nil {
		for k, v := range all {
			if !strings.HasPrefix(k, prefix) {
				continue
			}
			setID := strings.TrimPrefix(k, prefix)
			if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
				state.AssignedAt[setID] = t
			}
		}
	}

	state.Count = meta.Count
	state.LastAssigned = meta.LastAssigned
	state.LastUpdated = meta.LastUpdated
	state.LastUpdatedPerCategory = meta.LastUpdatedPerCategory
	state.EvictedCount = meta.EvictedCount
	state.EvictedAt = meta.EvictedAt
	return state, meta, nil
}

func (l *RedisLedger) Append(ctx context.Context, userID, categoryID, setID string, assignedAt time.Time) error {
	allocKey := allocKeyPrefix + userID
	metaKey := allocMetaKeyPrefix + userID
	tsKey := allocTSKeyPrefix + userID

	txf := func(tx *redis.Tx) error {
		state, meta, err := l.loadTxState(ctx, tx, userID, categoryID)
		if err != nil {
			return err
		}
		if state.Has(setID) {
			return fmt.Errorf("%w: set %s already allocated to %s/%s", domain.ErrInvariantViolation, setID, userID, categoryID)
		}

		state.SetIDs = append(state.SetIDs, setID)
		meta.Count = len(state.SetIDs)
		meta.LastAssigned = setID
		meta.LastUpdated = assignedAt
		meta.LastUpdatedPerCategory = assignedAt

		listJSON, err := json.Marshal(state.SetIDs)
		if err != nil {
			return err
		}
		metaJSON, err := json.Marshal(meta)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, allocKey, categoryID, listJSON)
			pipe.HSet(ctx, metaKey, categoryID, metaJSON)
			pipe.HSet(ctx, tsKey, categoryID+":"+setID, assignedAt.UTC().Format(time.RFC3339Nano))
			return nil
		})
		return err
	}

	if err := l.runCAS(ctx, txf, allocKey, metaKey, tsKey); err != nil {
		return fmt.Errorf("ledger append %s/%s: %w", userID, categoryID, err)
	}
	return nil
}

func (l *RedisLedger) Drop(ctx context.Context, userID, categoryID string, setIDs []string, now time.Time) error {
	if len(setIDs) == 0 {
		return nil
	}
	allocKey := allocKeyPrefix + userID
	metaKey := allocMetaKeyPrefix + userID
	tsKey := allocTSKeyPrefix + userID

	drop := make(map[string]struct{}, len(setIDs))
	for _, id := range setIDs {
		drop[id] = struct{}{}
	}

	txf := func(tx *redis.Tx) error {
		state, meta, err := l.loadTxState(ctx, tx, userID, categoryID)
		if err != nil {
			return err
		}

		kept := make([]string, 0, len(state.SetIDs))
		removed := 0
		for _, id := range state.SetIDs {
			if _, ok := drop[id]; ok {
				removed++
				continue
			}
			kept = append(kept, id)
		}
		meta.Count = len(kept)
		meta.EvictedCount += removed
		meta.EvictedAt = now

		return tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if len(kept) == 0 {
				pipe.HDel(ctx, allocKey, categoryID)
				pipe.HDel(ctx, metaKey, categoryID)
			} else {
				listJSON, err := json.Marshal(kept)
				if err != nil {
					return err
				}
				metaJSON, err := json.Marshal(meta)
				if err != nil {
					return err
				}
				pipe.HSet(ctx, allocKey, categoryID, listJSON)
				pipe.HSet(ctx, metaKey, categoryID, metaJSON)
			}
			for id := range drop {
				pipe.HDel(ctx, tsKey, categoryID+":"+id)
			}
			return nil
		})
	}

	if err := l.runCAS(ctx, txf, allocKey, metaKey, tsKey); err != nil {
		return fmt.Errorf("ledger drop %s/%s: %w", userID, categoryID, err)
	}
	return nil
}

func (l *RedisLedger) ResetUser(ctx context.Context, userID string) error {
	keys := []string{allocKeyPrefix + userID, allocMetaKeyPrefix + userID, allocTSKeyPrefix + userID}
	if err := l.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("ledger reset user %s: %w", userID, err)
	}
	return nil
}

func (l *RedisLedger) Categories(ctx context.Context, userID string) ([]string, error) {
	cats, err := l.client.HKeys(ctx, allocKeyPrefix+userID).Result()
	if err != nil {
		return nil, fmt.Errorf("ledger categories %s: %w", userID, err)
	}
	return cats, nil
}

// loadTxState reads the current state inside an in-flight WATCH
// transaction, using the transaction's own connection so the read is part
// of the same optimistic snapshot guarded by runCAS's retry loop.
func (l *RedisLedger) loadTxState(ctx context.Context, tx *redis.Tx, userID, categoryID string) (domain.UserCategoryState, categoryMeta, error) {
	allocKey := allocKeyPrefix + userID
	metaKey := allocMetaKeyPrefix + userID
	tsKey := allocTSKeyPrefix + userID

	state := domain.EmptyUserCategoryState(userID, categoryID)
	var meta categoryMeta

	if raw, err := tx.HGet(ctx, allocKey, categoryID).Result(); err == nil {
		_ = json.Unmarshal([]byte(raw), &state.SetIDs)
	} else if err != redis.Nil {
		return state, meta, err
	}
	if raw, err := tx.HGet(ctx, metaKey, categoryID).Result(); err == nil {
		_ = json.Unmarshal([]byte(raw), &meta)
	} else if err != redis.Nil {
		return state, meta, err
	}
	prefix := categoryID + ":"
	if all, err := tx.HGetAll(ctx, tsKey).Result(); err == nil {
		for k, v := range all {
			if !strings.HasPrefix(k, prefix) {
				continue
			}
			if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
				state.AssignedAt[strings.TrimPrefix(k, prefix)] = t
			}
		}
	}
	return state, meta, nil
}

// runCAS retries txf against keys with Redis's native optimistic-locking
// transaction until it commits or maxCASRetries is exceeded.
func (l *RedisLedger) runCAS(ctx context.Context, txf func(tx *redis.Tx) error, keys ...string) error {
	var lastErr error
	for attempt := 0; attempt < maxCASRetries; attempt++ {
		err := l.client.Watch(ctx, txf, keys...)
		if err == nil {
			return nil
		}
		if err == redis.TxFailedErr {
			lastErr = err
			continue
		}
		return err
	}
	return fmt.Errorf("exceeded %d CAS retries: %w", maxCASRetries, lastErr)
}
