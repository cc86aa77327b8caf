package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/oriys/satchel/internal/domain"
)

// SetCatalog is the Set Catalog contract (spec component B, §4.5). A set's
// Refs are fixed at creation and never rewritten here.
type SetCatalog interface {
	// Put persists a newly built set.
	Put(ctx context.Context, set domain.Set) error
	// GetLatestWatermark returns the maximum watermark over all sets of
	// categoryID, or ("", false) if the category has no sets yet — the
	// builder treats that as "resume from the minimal id".
	GetLatestWatermark(ctx context.Context, categoryID string) (string, bool, error)
	// Get resolves a single set by id, or (zero, false) if not found.
	Get(ctx context.Context, setID string) (domain.Set, bool, error)
	// GetSets resolves multiple sets by id, in no particular order. Named
	// distinctly from ContentStore.GetBatch (spec's store.getBatch) since a
	// single Postgres-backed type implements both interfaces and Go does
	// not allow two methods of the same name with different signatures.
	GetSets(ctx context.Context, setIDs []string) ([]domain.Set, error)
	// GetByWatermark returns every set of categoryID sharing watermark
	// exactly — i.e. the sets produced by one build batch. The builder
	// uses this to find the previous batch's sets on reconciliation, since
	// a batch always shares one watermark across its N sets.
	GetByWatermark(ctx context.Context, categoryID, watermark string) ([]domain.Set, error)
}

func (s *Postgres) Put(ctx context.Context, set domain.Set) error {
	refsJSON, err := json.Marshal(set.Refs)
	if err != nil {
		return fmt.Errorf("marshal refs for set %s: %w", set.SetID, err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO sets (set_id, category_id, refs, watermark, created_at)
		VALUES ($1, $2, $3, $4, COALESCE($5, NOW()))
	`, set.SetID, set.CategoryID, refsJSON, set.Watermark, nullableTime(set.CreatedAt))
	if err != nil {
		return fmt.Errorf("put set %s: %w", set.SetID, err)
	}
	return nil
}

func (s *Postgres) GetLatestWatermark(ctx context.Context, categoryID string) (string, bool, error) {
	var watermark string
	err := s.pool.QueryRow(ctx, `
		SELECT watermark FROM sets WHERE category_id = $1 ORDER BY watermark DESC LIMIT 1
	`, categoryID).Scan(&watermark)
	if err != nil {
		if isNoRows(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("latest watermark for %s: %w", categoryID, err)
	}
	return watermark, true, nil
}

func (s *Postgres) Get(ctx context.Context, setID string) (domain.Set, bool, error) {
	sets, err := s.GetSets(ctx, []string{setID})
	if err != nil {
		return domain.Set{}, false, err
	}
	if len(sets) == 0 {
		return domain.Set{}, false, nil
	}
	return sets[0], true, nil
}

func (s *Postgres) GetByWatermark(ctx context.Context, categoryID, watermark string) ([]domain.Set, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT set_id, category_id, refs, watermark, created_at FROM sets
		WHERE category_id = $1 AND watermark = $2
	`, categoryID, watermark)
	if err != nil {
		return nil, fmt.Errorf("get sets by watermark for %s: %w", categoryID, err)
	}
	defer rows.Close()

	var out []domain.Set
	for rows.Next() {
		var set domain.Set
		var refsJSON []byte
		if err := rows.Scan(&set.SetID, &set.CategoryID, &refsJSON, &set.Watermark, &set.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan set: %w", err)
		}
		if err := json.Unmarshal(refsJSON, &set.Refs); err != nil {
			return nil, fmt.Errorf("unmarshal refs for set %s: %w", set.SetID, err)
		}
		out = append(out, set)
	}
	return out, rows.Err()
}

func (s *Postgres) GetSets(ctx context.Context, setIDs []string) ([]domain.Set, error) {
	if len(setIDs) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `
		SELECT set_id, category_id, refs, watermark, created_at FROM sets WHERE set_id = ANY($1)
	`, setIDs)
	if err != nil {
		return nil, fmt.Errorf("get sets batch: %w", err)
	}
	defer rows.Close()

	var out []domain.Set
	for rows.Next() {
		var set domain.Set
		var refsJSON []byte
		if err := rows.Scan(&set.SetID, &set.CategoryID, &refsJSON, &set.Watermark, &set.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan set: %w", err)
		}
		if err := json.Unmarshal(refsJSON, &set.Refs); err != nil {
			return nil, fmt.Errorf("unmarshal refs for set %s: %w", set.SetID, err)
		}
		out = append(out, set)
	}
	return out, rows.Err()
}
