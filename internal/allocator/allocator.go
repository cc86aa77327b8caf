// Package allocator orchestrates a single allocation access: apply eviction,
// read the pool, pick the first unseen set, record the new assignment (spec
// component F).
//
// # Concurrency
//
// Per (user, category), AllocateNext performs these suspension points in
// order: eviction read, eviction write, ledger read, pool read, ledger
// append write, then a second eviction read (and write, when the append took
// the list past the count cap). Each is a single round trip to its backing
// store. The Ledger
// implementation is responsible for serializing concurrent calls for the
// same user (internal/ledger's CAS retry loop); AllocateNext itself holds no
// lock and assumes that guarantee.
//
// # Idempotence
//
// Repeated calls with the same (u, c) are not idempotent: each successful
// call consumes a distinct set. Callers that need idempotent retries must
// apply a dedupe key upstream — this package does not provide one.
package allocator

import (
	"context"
	"fmt"
	"time"

	"github.com/oriys/satchel/internal/domain"
	"github.com/oriys/satchel/internal/eviction"
	"github.com/oriys/satchel/internal/ledger"
	"github.com/oriys/satchel/internal/logging"
	"github.com/oriys/satchel/internal/metrics"
	"github.com/oriys/satchel/internal/observability"
	"github.com/oriys/satchel/internal/pool"
)

// Allocator composes the Pool Index, the Allocation Ledger, and the Eviction
// Policy into the single `allocateNext` access pattern spec §4.3 describes.
type Allocator struct {
	Pool   pool.Index
	Ledger ledger.Store
	Config eviction.Config

	// Now returns the current time; overridable in tests. Defaults to
	// time.Now when constructed via New.
	Now func() time.Time

	Metrics *metrics.Allocation

	// Logger records one audit entry per AllocateNext call. Nil disables
	// audit logging; the operational logger (logging.Op()) is always used
	// regardless of this field.
	Logger *logging.Logger
}

// New builds an Allocator with the default (real-time) clock.
func New(idx pool.Index, store ledger.Store, cfg eviction.Config) *Allocator {
	return &Allocator{
		Pool:   idx,
		Ledger: store,
		Config: cfg,
		Now:    time.Now,
	}
}

// now returns a.Now if set, otherwise the real clock.
func (a *Allocator) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

// AllocateNext performs one access for (userID, categoryID): apply
// eviction, then scan the pool for the first set-id the user hasn't seen,
// record it, and return it. It returns ("", nil) when the pool has nothing
// new to offer the user — spec's ErrNoSetsAvailable is
// reported to the caller as a per-category failure, not surfaced as an error
// from this call.
func (a *Allocator) AllocateNext(ctx context.Context, userID, categoryID string) (string, error) {
	ctx, span := observability.StartSpan(ctx, "allocator.allocate_next",
		observability.AttrUserID.String(userID),
		observability.AttrCategoryID.String(categoryID),
	)
	defer span.End()

	started := a.now()
	setID, err := a.allocateNext(ctx, userID, categoryID, started)
	if err != nil {
		observability.SetSpanError(span, err)
	} else {
		span.SetAttributes(observability.AttrSetID.String(setID))
		observability.SetSpanOK(span)
	}
	a.audit(userID, categoryID, setID, started, err)
	return setID, err
}

func (a *Allocator) allocateNext(ctx context.Context, userID, categoryID string, now time.Time) (string, error) {
	// Step 1: apply eviction. Its outcome is recorded but never surfaces
	// as an error to the caller (spec §4.3 step 1).
	if err := a.applyEviction(ctx, userID, categoryID, now); err != nil {
		return "", fmt.Errorf("%w: eviction failed for %s/%s: %v", domain.ErrLedgerUnavailable, userID, categoryID, err)
	}

	// Step 2: read the user's current list (post-eviction).
	state, err := a.Ledger.Load(ctx, userID, categoryID)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrLedgerUnavailable, err)
	}

	// Step 3: read the pool in FIFO order.
	poolIDs, err := a.Pool.PeekAll(ctx, categoryID)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrPoolUnavailable, err)
	}

	// Step 4: first pool entry not already held.
	var next string
	found := false
	for _, id := range poolIDs {
		if !state.Has(id) {
			next = id
			found = true
			break
		}
	}
	if !found {
		a.recordOutcome(categoryID, false)
		return "", nil
	}

	// Step 5/6: record and return.
	if err := a.Ledger.Append(ctx, userID, categoryID, next, now); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrLedgerUnavailable, err)
	}
	// An append that takes the list past the count cap drops the oldest
	// entries, so the list never ends a call above MaxSetsPerCategory.
	if err := a.applyEviction(ctx, userID, categoryID, now); err != nil {
		return "", fmt.Errorf("%w: eviction failed for %s/%s: %v", domain.ErrLedgerUnavailable, userID, categoryID, err)
	}
	a.recordOutcome(categoryID, true)
	return next, nil
}

func (a *Allocator) audit(userID, categoryID, setID string, started time.Time, err error) {
	if a.Logger == nil {
		return
	}
	entry := &logging.RequestLog{
		Operation:  "allocate_next",
		UserID:     userID,
		CategoryID: categoryID,
		SetID:      setID,
		DurationMs: a.now().Sub(started).Milliseconds(),
		Success:    err == nil,
	}
	if err != nil {
		entry.Error = err.Error()
	}
	a.Logger.Log(entry)
}

// BatchResult is the per-category outcome of AllocateBatch, mirroring the
// `allocate` operation's response shape (spec §6).
type BatchResult struct {
	UserID     string
	Successful map[string]string // categoryID -> setID
	Failed     map[string]string // categoryID -> reason
}

// AllocateBatch composes AllocateNext per category, aggregating per-category
// failures into Failed rather than failing the whole batch (spec §7
// propagation policy).
func (a *Allocator) AllocateBatch(ctx context.Context, userID string, categoryIDs []string) BatchResult {
	result := BatchResult{
		UserID:     userID,
		Successful: map[string]string{},
		Failed:     map[string]string{},
	}
	for _, categoryID := range categoryIDs {
		setID, err := a.AllocateNext(ctx, userID, categoryID)
		switch {
		case err != nil:
			result.Failed[categoryID] = err.Error()
		case setID == "":
			result.Failed[categoryID] = domain.ErrNoSetsAvailable.Error()
		default:
			result.Successful[categoryID] = setID
		}
	}
	return result
}

// EvictUser runs the standalone evictUser(u) operation (spec §4.4) across
// every category with allocation state for userID.
func (a *Allocator) EvictUser(ctx context.Context, userID string) error {
	categories, err := a.Ledger.Categories(ctx, userID)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrLedgerUnavailable, err)
	}
	now := a.now()
	for _, categoryID := range categories {
		if err := a.applyEviction(ctx, userID, categoryID, now); err != nil {
			return fmt.Errorf("%w: evict %s/%s: %v", domain.ErrLedgerUnavailable, userID, categoryID, err)
		}
	}
	return nil
}

// applyEviction loads the current state, runs the pure Evict decision, and
// applies the drop to the ledger if anything was marked for removal.
func (a *Allocator) applyEviction(ctx context.Context, userID, categoryID string, now time.Time) error {
	state, err := a.Ledger.Load(ctx, userID, categoryID)
	if err != nil {
		return err
	}
	if len(state.SetIDs) == 0 {
		return nil
	}

	result := eviction.Evict(now, a.Config, state)
	if len(result.Removed) == 0 {
		return nil
	}
	if err := a.Ledger.Drop(ctx, userID, categoryID, result.RemovedIDs(), now); err != nil {
		return err
	}
	a.recordEviction(categoryID, len(result.Removed))
	return nil
}

func (a *Allocator) recordOutcome(categoryID string, success bool) {
	if a.Metrics == nil {
		return
	}
	if success {
		a.Metrics.Allocated(categoryID)
	} else {
		a.Metrics.Exhausted(categoryID)
	}
}

func (a *Allocator) recordEviction(categoryID string, count int) {
	if a.Metrics == nil {
		return
	}
	a.Metrics.Evicted(categoryID, count)
}
