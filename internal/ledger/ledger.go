// Package ledger implements the Allocation Ledger (spec component D): the
// durable, per-(user, category) record of which sets a user has been handed,
// with an individual assignedAt timestamp per set.
//
// # Concurrency
//
// The ledger for a single user is exclusively mutated by the allocator and
// the eviction apply step for that user. Concurrent requests for the same
// (user, category) must serialize to preserve the no-duplicate invariant and
// the bijection between set-ids and timestamps. RedisLedger uses a
// compare-and-swap write with bounded retry (spec §5's option (b)) rather
// than a lock server. It watches the user's three hash keys, which every
// category shares, so concurrent writes for the same user conflict and retry
// even when they touch different categories. MemoryStore serializes every
// call on a single mutex.
package ledger

import (
	"context"
	"time"

	"github.com/oriys/satchel/internal/domain"
)

// Store is the Allocation Ledger contract (spec §4.3's D operations).
type Store interface {
	// Load returns the current state for (userID, categoryID). A user or
	// category with no prior allocations returns an empty state, not an
	// error.
	Load(ctx context.Context, userID, categoryID string) (domain.UserCategoryState, error)
	// Append records a new assignment: setID is appended to the ordered
	// list and assignedAt is recorded for it, atomically with the bumped
	// per-category counters. Append fails if setID is already present
	// (ErrInvariantViolation) — the allocator is expected to have already
	// filtered the pool against the current state.
	Append(ctx context.Context, userID, categoryID, setID string, assignedAt time.Time) error
	// Drop removes setIDs from (userID, categoryID)'s list and deletes
	// their assignedAt entries in the same write, bumping EvictedCount and
	// EvictedAt. If the category becomes empty, its entry is deleted from
	// the user's record entirely.
	Drop(ctx context.Context, userID, categoryID string, setIDs []string, now time.Time) error
	// ResetUser clears every category entry for userID (the
	// administrative "reset user" operation, spec §3).
	ResetUser(ctx context.Context, userID string) error
	// Categories lists the category ids that have any allocation state
	// for userID, used by the standalone evictUser(u) operation.
	Categories(ctx context.Context, userID string) ([]string, error)
}
