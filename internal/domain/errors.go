package domain

import "errors"

// Sentinel errors surfaced by the core, matching spec §7's error kinds.
// Components wrap these with fmt.Errorf("...: %w", err) for context; callers
// match on the sentinel with errors.Is.
var (
	// ErrNoSetsAvailable means the pool is empty or exhausted relative to
	// the user; it is reported as a per-category failure, not a
	// request-level error.
	ErrNoSetsAvailable = errors.New("no sets available")
	// ErrLedgerUnavailable means a ledger read/write failed or timed out.
	ErrLedgerUnavailable = errors.New("ledger unavailable")
	// ErrPoolUnavailable means a pool read/write failed or timed out.
	ErrPoolUnavailable = errors.New("pool unavailable")
	// ErrValidation means malformed input.
	ErrValidation = errors.New("validation error")
	// ErrBuilderShortfall means the builder produced fewer sets than
	// requested for a category; it is logged, not fatal.
	ErrBuilderShortfall = errors.New("builder shortfall")
	// ErrInvariantViolation indicates a serialization bug (e.g. a pool scan
	// surfaced a set-id already present in the user's list) and must abort
	// and alert rather than silently continue.
	ErrInvariantViolation = errors.New("invariant violation")
	// ErrTimeout means a backend call exceeded its deadline.
	ErrTimeout = errors.New("timeout")
)
