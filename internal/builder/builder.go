// Package builder implements the Set Builder (spec component G): the batch
// job that turns newly ingested items into fixed-size sets and makes them
// offerable by enqueuing them into the Pool Index.
package builder

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/oriys/satchel/internal/domain"
	"github.com/oriys/satchel/internal/logging"
	"github.com/oriys/satchel/internal/metrics"
	"github.com/oriys/satchel/internal/observability"
	"github.com/oriys/satchel/internal/pool"
	"github.com/oriys/satchel/internal/store"
)

// Builder composes the Content Store, Set Catalog, Pool Index, and a
// per-category lock into the `build` access spec.md §4.1 describes.
type Builder struct {
	Content store.ContentStore
	Catalog store.SetCatalog
	Pool    pool.Index
	Locker  store.Locker

	// Categories is the known-categories table this build run iterates.
	Categories domain.CategoryTable

	// NewSetID generates a fresh set-id; overridable in tests. Defaults to
	// uuid.NewString.
	NewSetID func() string
	// Now returns the current time; overridable in tests.
	Now func() time.Time

	Metrics *metrics.Builder
}

// New builds a Builder with the default id generator and clock.
func New(content store.ContentStore, catalog store.SetCatalog, idx pool.Index, locker store.Locker, categories domain.CategoryTable) *Builder {
	return &Builder{
		Content:    content,
		Catalog:    catalog,
		Pool:       idx,
		Locker:     locker,
		Categories: categories,
		NewSetID:   uuid.NewString,
		Now:        time.Now,
	}
}

func (b *Builder) newSetID() string {
	if b.NewSetID != nil {
		return b.NewSetID()
	}
	return uuid.NewString()
}

func (b *Builder) now() time.Time {
	if b.Now != nil {
		return b.Now()
	}
	return time.Now()
}

// CategoryResult is one category's outcome from a Build run.
type CategoryResult struct {
	CategoryID    string
	SetsProduced  int
	ItemsConsumed int
	Watermark     string // unchanged from the prior run if SetsProduced == 0
	Shortfall     bool
	Reenqueued    int // sets from a prior incomplete run re-offered this run
}

// Result is the per-category outcome of one Build run, mirroring the
// `generate-sets` operation's response shape (spec §6's `{perCategoryCount, …}`).
type Result struct {
	Categories map[string]CategoryResult
	Errors     map[string]error // category -> catalog-write failure (fatal for that category)
}

// Build runs the builder over every known category, producing up to
// numSetsPerCategory sets of itemsPerSet items each. Per spec.md §4.1's
// failure policy: a Catalog write error aborts that category's batch and is
// recorded in Result.Errors; a Pool error is logged (via logging.Op()) and the
// builder moves on to the next category without retrying.
func (b *Builder) Build(ctx context.Context, numSetsPerCategory, itemsPerSet int) (Result, error) {
	if numSetsPerCategory <= 0 || itemsPerSet <= 0 {
		return Result{}, fmt.Errorf("%w: numSetsPerCategory and itemsPerSet must be positive", domain.ErrValidation)
	}

	result := Result{
		Categories: map[string]CategoryResult{},
		Errors:     map[string]error{},
	}
	for _, categoryID := range b.Categories.IDs() {
		start := b.now()
		cr, err := b.buildCategory(ctx, categoryID, numSetsPerCategory, itemsPerSet)
		if b.Metrics != nil {
			b.Metrics.ObserveBatchDuration(categoryID, b.now().Sub(start).Seconds())
		}
		if err != nil {
			result.Errors[categoryID] = err
			continue
		}
		result.Categories[categoryID] = cr
	}
	return result, nil
}

// BuildCategory runs the builder for a single category — the unit the CLI's
// `satchel build --category` subcommand and tests operate on.
func (b *Builder) BuildCategory(ctx context.Context, categoryID string, numSetsPerCategory, itemsPerSet int) (CategoryResult, error) {
	if numSetsPerCategory <= 0 || itemsPerSet <= 0 {
		return CategoryResult{}, fmt.Errorf("%w: numSetsPerCategory and itemsPerSet must be positive", domain.ErrValidation)
	}
	return b.buildCategory(ctx, categoryID, numSetsPerCategory, itemsPerSet)
}

func (b *Builder) buildCategory(ctx context.Context, categoryID string, numSetsPerCategory, itemsPerSet int) (CategoryResult, error) {
	ctx, span := observability.StartSpan(ctx, "builder.build_category",
		observability.AttrCategoryID.String(categoryID),
	)
	defer span.End()

	result := CategoryResult{CategoryID: categoryID}

	err := b.Locker.WithCategoryLock(ctx, categoryID, func(ctx context.Context) error {
		watermark, _, err := b.Catalog.GetLatestWatermark(ctx, categoryID)
		if err != nil {
			return fmt.Errorf("lookup watermark: %w", err)
		}
		result.Watermark = watermark

		// Reconciliation: a prior run may have persisted sets to the
		// catalog and then failed to enqueue them (spec §4.1 edge case).
		// Re-offering is safe: Pool.Enqueue dedupes against its
		// known-set-ids index.
		if watermark != "" {
			if n, err := b.reenqueuePriorBatch(ctx, categoryID, watermark); err != nil {
				// Pool errors on reconciliation are logged and do not
				// abort the new batch (same policy as step 6 below).
				logging.Op().Warn("reenqueue prior batch failed", "category", categoryID, "error", err)
			} else {
				result.Reenqueued = n
			}
		}

		items, err := b.Content.QueryByCategory(ctx, categoryID, watermark)
		if err != nil {
			return fmt.Errorf("query items: %w", err)
		}

		if len(items) < itemsPerSet {
			result.Shortfall = true
			logging.Op().Info("builder shortfall", "category", categoryID, "items_available", len(items), "items_per_set", itemsPerSet)
			if b.Metrics != nil {
				b.Metrics.Shortfall(categoryID)
			}
			return nil
		}

		n := numSetsPerCategory
		if maxSets := len(items) / itemsPerSet; maxSets < n {
			n = maxSets
		}
		consumed := n * itemsPerSet
		batch := items[:consumed]
		newWatermark := batch[len(batch)-1].ID

		sets := make([]domain.Set, n)
		setIDs := make([]string, n)
		now := b.now()
		for i := 0; i < n; i++ {
			slice := batch[i*itemsPerSet : (i+1)*itemsPerSet]
			refs := make([]domain.ItemRef, len(slice))
			for j, item := range slice {
				refs[j] = domain.ItemRef{ID: item.ID, Hash: item.Hash}
			}
			set := domain.Set{
				SetID:      b.newSetID(),
				CategoryID: categoryID,
				Refs:       refs,
				Watermark:  newWatermark,
				CreatedAt:  now,
			}
			sets[i] = set
			setIDs[i] = set.SetID
		}

		// Step 5: persist to the catalog. A failure here aborts the batch
		// — nothing has been offered yet, so there is nothing to roll back.
		for _, set := range sets {
			if err := b.Catalog.Put(ctx, set); err != nil {
				return fmt.Errorf("persist set %s: %w", set.SetID, err)
			}
		}

		result.SetsProduced = n
		result.ItemsConsumed = consumed
		result.Watermark = newWatermark

		// Step 6: enqueue atomically with metadata. A pool failure here is
		// the "catalog write succeeded, enqueue failed" edge case — it is
		// logged, not retried inline, and left for the next run's
		// reconciliation pass to repair.
		if err := b.Pool.Enqueue(ctx, categoryID, setIDs); err != nil {
			logging.Op().Warn("pool enqueue failed after catalog write", "category", categoryID, "sets", n, "error", err)
			return nil
		}

		logging.Op().Info("built category batch", "category", categoryID, "sets", n, "items_consumed", consumed, "watermark", newWatermark)
		if b.Metrics != nil {
			b.Metrics.SetsProduced(categoryID, n)
			if meta, err := b.Pool.Metadata(ctx, categoryID); err == nil {
				b.Metrics.SetPoolDepth(categoryID, meta.TotalAvailable)
			}
		}
		return nil
	})
	if err != nil {
		observability.SetSpanError(span, err)
		return CategoryResult{CategoryID: categoryID}, err
	}
	span.SetAttributes(observability.AttrSetsCount.Int(result.SetsProduced))
	observability.SetSpanOK(span)
	return result, nil
}

// reenqueuePriorBatch re-offers any sets sharing the category's current
// watermark that the pool doesn't already know about. Pool.Enqueue's
// known-set-ids guard makes this safe to call unconditionally.
func (b *Builder) reenqueuePriorBatch(ctx context.Context, categoryID, watermark string) (int, error) {
	sets, err := b.Catalog.GetByWatermark(ctx, categoryID, watermark)
	if err != nil {
		return 0, fmt.Errorf("list prior batch: %w", err)
	}
	if len(sets) == 0 {
		return 0, nil
	}
	ids := make([]string, len(sets))
	for i, s := range sets {
		ids[i] = s.SetID
	}
	if err := b.Pool.Enqueue(ctx, categoryID, ids); err != nil {
		return 0, fmt.Errorf("reenqueue prior batch: %w", err)
	}
	return len(ids), nil
}

