// Package pool implements the Pool Index (spec component C): a per-category
// FIFO of set-ids that the builder enqueues and the allocator scans.
//
// # Design rationale
//
// The pool is never mutated by allocation — spec §4.3's key design choice.
// A set-id is removed from a category's pool only by the builder re-running
// (it does not remove), or by an administrative drain. This lets many users
// draw disjoint views over the same pool without any allocation-side
// contention on the pool itself: Index.PeekAll is a lock-free read from the
// Allocator's point of view, and Index.Enqueue is the builder's only write
// path, serialized per category by its own advisory lock (see
// internal/store's builder lock). Drop and DequeueOne are the administrative
// drain's writes.
//
// # Atomicity
//
// Enqueue must update the ordered list and the category metadata counters in
// one logical step (spec §4.2). RedisIndex does this with a Lua script so
// both halves commit in a single round trip, following the same
// single-round-trip Lua pattern the teacher repo uses for atomic
// read-then-act operations (see internal/store/redis.go's
// getFunctionByNameScript and internal/ratelimit/redis_backend.go's
// tokenBucketScript).
package pool

import (
	"context"

	"github.com/oriys/satchel/internal/domain"
)

// Index is the Pool Index contract (spec §4.2).
type Index interface {
	// Enqueue appends setIDs to categoryID's pool in order, skipping any
	// id already known to the pool (at-least-once builder re-enqueue must
	// not create duplicates), and atomically updates CategoryMeta.
	Enqueue(ctx context.Context, categoryID string, setIDs []string) error
	// PeekAll returns categoryID's pool in FIFO order (earliest insert
	// first). It is non-destructive.
	PeekAll(ctx context.Context, categoryID string) ([]string, error)
	// DequeueOne destructively removes and returns the earliest set-id in
	// categoryID's pool. It is used only by administrative drains, never
	// by the allocator. The second return value is false if the pool is
	// empty.
	DequeueOne(ctx context.Context, categoryID string) (string, bool, error)
	// Drop empties categoryID's pool and resets its metadata.
	Drop(ctx context.Context, categoryID string) error
	// Metadata returns categoryID's current counters.
	Metadata(ctx context.Context, categoryID string) (domain.CategoryMeta, error)
}
