package store

import (
	"context"
	"fmt"
	"hash/fnv"

	"github.com/jackc/pgx/v5"
)

// builderLockSpace namespaces the category advisory lock keys away from any
// other advisory locks this process might someday take, by XORing it into
// the per-category hash below.
const builderLockSpace int64 = 0x73617463685f6c6b // "satch_lk"

// categoryLockKey derives a stable int64 advisory-lock key for categoryID.
// The builder is single-writer per category (spec §4.1): concurrent builds
// on the same category could otherwise double-consume items past the same
// watermark, so every build serializes on this lock before reading the
// content store.
func categoryLockKey(categoryID string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(categoryID))
	return builderLockSpace ^ int64(h.Sum64())
}

// acquireCategoryBuildLock takes a transaction-scoped Postgres advisory
// lock for categoryID. It is released automatically when tx commits or
// rolls back.
func (s *Postgres) acquireCategoryBuildLock(ctx context.Context, tx pgx.Tx, categoryID string) error {
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, categoryLockKey(categoryID)); err != nil {
		return fmt.Errorf("acquire build lock for category %s: %w", categoryID, err)
	}
	return nil
}
