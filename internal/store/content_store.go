package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/oriys/satchel/internal/domain"
)

// ContentStore is the Content Store contract (spec component A, §4.5).
// Items are append-only: once written they are never mutated, and a
// duplicate-hash insert within a category is suppressed, not an error.
type ContentStore interface {
	// PutBatch inserts items, skipping any whose (category, hash) already
	// exists. The suppression is an insert-if-absent at the hash
	// secondary index, not a pre-read — two builders may race to insert
	// the same hash (design note §9).
	PutBatch(ctx context.Context, items []domain.Item) (stored, skippedDuplicateByHash int, err error)
	// GetBatch resolves items by (id, hash) pairs, in no particular order;
	// refs whose id+hash are not found are simply omitted.
	GetBatch(ctx context.Context, refs []domain.ItemRef) ([]domain.Item, error)
	// QueryByCategory returns every item in categoryID whose id is
	// lexicographically greater than afterID (empty string means "from
	// the beginning"), sorted ascending by id.
	QueryByCategory(ctx context.Context, categoryID, afterID string) ([]domain.Item, error)
	// QueryByHash returns every item sharing hash, across categories.
	QueryByHash(ctx context.Context, hash string) ([]domain.Item, error)
}

func (s *Postgres) PutBatch(ctx context.Context, items []domain.Item) (int, int, error) {
	if len(items) == 0 {
		return 0, 0, nil
	}

	stored := 0
	skipped := 0
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		for _, item := range items {
			payload := domain.NormalizePayload(item.Payload)
			tag, err := tx.Exec(ctx, `
				INSERT INTO items (id, hash, category_id, payload, created_at)
				VALUES ($1, $2, $3, $4, COALESCE($5, NOW()))
				ON CONFLICT (category_id, hash) DO NOTHING
			`, item.ID, item.Hash, item.CategoryID, payload, nullableTime(item.CreatedAt))
			if err != nil {
				return fmt.Errorf("insert item %s: %w", item.ID, err)
			}
			if tag.RowsAffected() == 1 {
				stored++
			} else {
				skipped++
			}
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return stored, skipped, nil
}

func (s *Postgres) GetBatch(ctx context.Context, refs []domain.ItemRef) ([]domain.Item, error) {
	if len(refs) == 0 {
		return nil, nil
	}

	ids := make([]string, len(refs))
	for i, r := range refs {
		ids[i] = r.ID
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, hash, category_id, payload, created_at FROM items WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("get batch: %w", err)
	}
	defer rows.Close()

	wanted := make(map[string]string, len(refs)) // id -> hash
	for _, r := range refs {
		wanted[r.ID] = r.Hash
	}

	var out []domain.Item
	for rows.Next() {
		var item domain.Item
		var payload json.RawMessage
		if err := rows.Scan(&item.ID, &item.Hash, &item.CategoryID, &payload, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		item.Payload = payload
		if wantHash, ok := wanted[item.ID]; ok && wantHash == item.Hash {
			out = append(out, item)
		}
	}
	return out, rows.Err()
}

func (s *Postgres) QueryByCategory(ctx context.Context, categoryID, afterID string) ([]domain.Item, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, hash, category_id, payload, created_at
		FROM items
		WHERE category_id = $1 AND id > $2
		ORDER BY id ASC
	`, categoryID, afterID)
	if err != nil {
		return nil, fmt.Errorf("query by category %s: %w", categoryID, err)
	}
	defer rows.Close()

	var items []domain.Item
	for rows.Next() {
		var item domain.Item
		var payload json.RawMessage
		if err := rows.Scan(&item.ID, &item.Hash, &item.CategoryID, &payload, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		item.Payload = payload
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// The query already sorts by id, but re-sort defensively: the builder's
	// "sort ascending by id to make runs deterministic" (spec §4.1 step 2)
	// is an explicit contract, not an implementation detail of Postgres.
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

func (s *Postgres) QueryByHash(ctx context.Context, hash string) ([]domain.Item, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, hash, category_id, payload, created_at FROM items WHERE hash = $1
	`, hash)
	if err != nil {
		return nil, fmt.Errorf("query by hash: %w", err)
	}
	defer rows.Close()

	var items []domain.Item
	for rows.Next() {
		var item domain.Item
		var payload json.RawMessage
		if err := rows.Scan(&item.ID, &item.Hash, &item.CategoryID, &payload, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		item.Payload = payload
		items = append(items, item)
	}
	return items, rows.Err()
}
