package builder

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/oriys/satchel/internal/domain"
	"github.com/oriys/satchel/internal/pool"
	"github.com/oriys/satchel/internal/store"
)

func newTestBuilder(categoryIDs ...string) (*Builder, *store.Memory, pool.Index) {
	content := store.NewMemory()
	idx := pool.NewMemoryIndex()
	locker := store.NewMemoryLocker()

	cats := make([]domain.Category, len(categoryIDs))
	for i, id := range categoryIDs {
		cats[i] = domain.Category{ID: id, DisplayName: id}
	}

	seq := 0
	b := New(content, content, idx, locker, domain.CategoryTable{Categories: cats})
	b.NewSetID = func() string {
		seq++
		return fmt.Sprintf("set-%02d", seq)
	}
	b.Now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }
	return b, content, idx
}

func seedItems(t *testing.T, content *store.Memory, categoryID string, ids ...string) {
	t.Helper()
	items := make([]domain.Item, len(ids))
	for i, id := range ids {
		items[i] = domain.Item{ID: id, Hash: "h-" + id, CategoryID: categoryID}
	}
	if _, _, err := content.PutBatch(context.Background(), items); err != nil {
		t.Fatalf("seed items: %v", err)
	}
}

func TestScenario6_BuilderPartitioning(t *testing.T) {
	ctx := context.Background()
	b, content, idx := newTestBuilder("cat-X")

	ids := make([]string, 14)
	for i := 0; i < 14; i++ {
		ids[i] = fmt.Sprintf("i%02d", i+1)
	}
	seedItems(t, content, "cat-X", ids...)

	result, err := b.BuildCategory(ctx, "cat-X", 3, 5)
	if err != nil {
		t.Fatalf("build category: %v", err)
	}

	if result.SetsProduced != 2 {
		t.Fatalf("sets produced = %d, want 2", result.SetsProduced)
	}
	if result.ItemsConsumed != 10 {
		t.Fatalf("items consumed = %d, want 10", result.ItemsConsumed)
	}
	if result.Watermark != "i10" {
		t.Fatalf("watermark = %s, want i10", result.Watermark)
	}

	poolIDs, err := idx.PeekAll(ctx, "cat-X")
	if err != nil {
		t.Fatalf("peek pool: %v", err)
	}
	if len(poolIDs) != 2 {
		t.Fatalf("pool grew by %d, want 2", len(poolIDs))
	}

	// Remaining items i11..i14 must still be queryable past the new watermark.
	remaining, err := content.QueryByCategory(ctx, "cat-X", result.Watermark)
	if err != nil {
		t.Fatalf("query remaining: %v", err)
	}
	if len(remaining) != 4 {
		t.Fatalf("remaining items = %d, want 4", len(remaining))
	}
	if remaining[0].ID != "i11" || remaining[3].ID != "i14" {
		t.Fatalf("unexpected remaining items: %+v", remaining)
	}

	// Both emitted sets share the batch watermark.
	for _, setID := range poolIDs {
		set, ok, err := b.Catalog.Get(ctx, setID)
		if err != nil || !ok {
			t.Fatalf("get set %s: ok=%v err=%v", setID, ok, err)
		}
		if set.Watermark != "i10" {
			t.Fatalf("set %s watermark = %s, want i10", setID, set.Watermark)
		}
		if len(set.Refs) != 5 {
			t.Fatalf("set %s has %d refs, want 5", setID, len(set.Refs))
		}
	}
}

func TestBuildCategoryShortfallEmitsNothing(t *testing.T) {
	ctx := context.Background()
	b, content, idx := newTestBuilder("cat-X")
	seedItems(t, content, "cat-X", "i01", "i02", "i03")

	result, err := b.BuildCategory(ctx, "cat-X", 3, 5)
	if err != nil {
		t.Fatalf("build category: %v", err)
	}
	if !result.Shortfall || result.SetsProduced != 0 {
		t.Fatalf("expected shortfall with 0 sets, got %+v", result)
	}

	poolIDs, err := idx.PeekAll(ctx, "cat-X")
	if err != nil {
		t.Fatalf("peek pool: %v", err)
	}
	if len(poolIDs) != 0 {
		t.Fatalf("pool should remain empty on shortfall, got %v", poolIDs)
	}
}

func TestBuildCategoryCapsAtNumSetsPerCategory(t *testing.T) {
	ctx := context.Background()
	b, content, _ := newTestBuilder("cat-X")
	ids := make([]string, 30) // enough for 6 sets of 5, but cap is 2
	for i := range ids {
		ids[i] = fmt.Sprintf("i%02d", i+1)
	}
	seedItems(t, content, "cat-X", ids...)

	result, err := b.BuildCategory(ctx, "cat-X", 2, 5)
	if err != nil {
		t.Fatalf("build category: %v", err)
	}
	if result.SetsProduced != 2 || result.ItemsConsumed != 10 {
		t.Fatalf("expected 2 sets / 10 items consumed, got %+v", result)
	}
	if result.Watermark != "i10" {
		t.Fatalf("watermark = %s, want i10", result.Watermark)
	}
}

func TestBuildCategoryReenqueuesPriorBatchNotYetInPool(t *testing.T) {
	ctx := context.Background()
	b, content, idx := newTestBuilder("cat-X")
	seedItems(t, content, "cat-X", "i01", "i02", "i03", "i04", "i05")

	// Simulate a prior run that persisted the set to the Catalog but never
	// reached the pool enqueue step (spec §4.1's edge case).
	orphan := domain.Set{
		SetID:      "set-orphan",
		CategoryID: "cat-X",
		Refs:       []domain.ItemRef{{ID: "i01", Hash: "h-i01"}},
		Watermark:  "i05",
		CreatedAt:  time.Now(),
	}
	if err := content.Put(ctx, orphan); err != nil {
		t.Fatalf("seed orphan set: %v", err)
	}

	// No new items past i05, so this run only reconciles.
	result, err := b.BuildCategory(ctx, "cat-X", 3, 5)
	if err != nil {
		t.Fatalf("build category: %v", err)
	}
	if result.Reenqueued != 1 {
		t.Fatalf("reenqueued = %d, want 1", result.Reenqueued)
	}
	if result.SetsProduced != 0 {
		t.Fatalf("expected no new sets produced, got %+v", result)
	}

	poolIDs, err := idx.PeekAll(ctx, "cat-X")
	if err != nil {
		t.Fatalf("peek pool: %v", err)
	}
	if len(poolIDs) != 1 || poolIDs[0] != "set-orphan" {
		t.Fatalf("pool = %v, want [set-orphan]", poolIDs)
	}

	// Running again must not duplicate the reconciled set in the pool.
	if _, err := b.BuildCategory(ctx, "cat-X", 3, 5); err != nil {
		t.Fatalf("second build category: %v", err)
	}
	poolIDs, err = idx.PeekAll(ctx, "cat-X")
	if err != nil {
		t.Fatalf("peek pool: %v", err)
	}
	if len(poolIDs) != 1 {
		t.Fatalf("pool should still have exactly 1 entry, got %v", poolIDs)
	}
}

func TestBuildIteratesAllKnownCategories(t *testing.T) {
	ctx := context.Background()
	b, content, idx := newTestBuilder("cat-X", "cat-Y")
	seedItems(t, content, "cat-X", "i01", "i02", "i03", "i04", "i05")
	seedItems(t, content, "cat-Y", "j01", "j02")

	result, err := b.Build(ctx, 3, 5)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	if result.Categories["cat-X"].SetsProduced != 1 {
		t.Fatalf("cat-X sets produced = %d, want 1", result.Categories["cat-X"].SetsProduced)
	}
	if cr, ok := result.Categories["cat-Y"]; !ok || !cr.Shortfall {
		t.Fatalf("cat-Y should report a shortfall, got %+v ok=%v", cr, ok)
	}
	if len(result.Errors) != 0 {
		t.Fatalf("expected no fatal errors, got %v", result.Errors)
	}

	poolX, _ := idx.PeekAll(ctx, "cat-X")
	if len(poolX) != 1 {
		t.Fatalf("cat-X pool = %v, want 1 entry", poolX)
	}
}

func TestBuildRejectsNonPositiveParams(t *testing.T) {
	ctx := context.Background()
	b, _, _ := newTestBuilder("cat-X")
	if _, err := b.Build(ctx, 0, 5); err == nil {
		t.Fatal("expected error for numSetsPerCategory=0")
	}
	if _, err := b.Build(ctx, 3, 0); err == nil {
		t.Fatal("expected error for itemsPerSet=0")
	}
}
