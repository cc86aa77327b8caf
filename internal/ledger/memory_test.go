package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/oriys/satchel/internal/domain"
)

func TestMemoryStoreAppendRejectsDuplicate(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	now := time.Now()

	if err := store.Append(ctx, "U", "cat-X", "S1", now); err != nil {
		t.Fatalf("first append: %v", err)
	}
	err := store.Append(ctx, "U", "cat-X", "S1", now)
	if !errors.Is(err, domain.ErrInvariantViolation) {
		t.Fatalf("expected ErrInvariantViolation on duplicate append, got %v", err)
	}
}

func TestMemoryStoreAppendBijectionWithTimestamp(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	now := time.Now()

	_ = store.Append(ctx, "U", "cat-X", "S1", now)
	_ = store.Append(ctx, "U", "cat-X", "S2", now.Add(time.Minute))

	state, err := store.Load(ctx, "U", "cat-X")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(state.SetIDs) != 2 || len(state.AssignedAt) != 2 {
		t.Fatalf("expected 2 set-ids and 2 timestamps, got %+v", state)
	}
	if state.Count != 2 || state.LastAssigned != "S2" {
		t.Fatalf("counters wrong: %+v", state)
	}
}

func TestMemoryStoreDropClearsCategoryWhenEmpty(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	now := time.Now()
	_ = store.Append(ctx, "U", "cat-X", "S1", now)

	if err := store.Drop(ctx, "U", "cat-X", []string{"S1"}, now); err != nil {
		t.Fatalf("drop: %v", err)
	}
	state, err := store.Load(ctx, "U", "cat-X")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(state.SetIDs) != 0 {
		t.Fatalf("expected empty state after dropping last set, got %+v", state)
	}
	if state.EvictedCount != 1 {
		t.Fatalf("expected EvictedCount=1, got %d", state.EvictedCount)
	}

	cats, err := store.Categories(ctx, "U")
	if err != nil {
		t.Fatalf("categories: %v", err)
	}
	if len(cats) != 0 {
		t.Fatalf("expected category entry deleted entirely, got %v", cats)
	}
}

func TestMemoryStoreResetUser(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	now := time.Now()
	_ = store.Append(ctx, "U", "cat-X", "S1", now)
	_ = store.Append(ctx, "U", "cat-Y", "S2", now)

	if err := store.ResetUser(ctx, "U"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	cats, _ := store.Categories(ctx, "U")
	if len(cats) != 0 {
		t.Fatalf("expected no categories after reset, got %v", cats)
	}
}

func TestMemoryStoreLoadMissingUserReturnsEmpty(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	state, err := store.Load(ctx, "ghost", "cat-X")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(state.SetIDs) != 0 {
		t.Fatalf("expected empty state for unknown user, got %+v", state)
	}
}
