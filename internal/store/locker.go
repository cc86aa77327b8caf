package store

import (
	"context"
	"sync"

	"github.com/jackc/pgx/v5"
)

// Locker serializes builder runs per category (spec §4.1's "builder is
// single-writer per category"). fn runs with the lock held and its error, if
// any, aborts the batch without partial commits surviving past the caller's
// own store writes.
type Locker interface {
	WithCategoryLock(ctx context.Context, categoryID string, fn func(ctx context.Context) error) error
}

// PostgresLocker takes a transaction-scoped advisory lock around fn so two
// builder processes racing on the same category serialize instead of
// double-consuming items past the same watermark.
type PostgresLocker struct {
	pg *Postgres
}

// NewPostgresLocker wraps pg's connection pool for category-scoped advisory
// locking.
func NewPostgresLocker(pg *Postgres) *PostgresLocker {
	return &PostgresLocker{pg: pg}
}

func (l *PostgresLocker) WithCategoryLock(ctx context.Context, categoryID string, fn func(ctx context.Context) error) error {
	return pgx.BeginFunc(ctx, l.pg.pool, func(tx pgx.Tx) error {
		if err := l.pg.acquireCategoryBuildLock(ctx, tx, categoryID); err != nil {
			return err
		}
		return fn(ctx)
	})
}

// MemoryLocker is an in-process stand-in for tests and single-node
// deployments without Postgres: one sync.Mutex per category, created
// lazily.
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewMemoryLocker returns an empty MemoryLocker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{locks: map[string]*sync.Mutex{}}
}

func (l *MemoryLocker) categoryLock(categoryID string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.locks[categoryID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[categoryID] = m
	}
	return m
}

func (l *MemoryLocker) WithCategoryLock(ctx context.Context, categoryID string, fn func(ctx context.Context) error) error {
	m := l.categoryLock(categoryID)
	m.Lock()
	defer m.Unlock()
	return fn(ctx)
}

var (
	_ Locker = (*PostgresLocker)(nil)
	_ Locker = (*MemoryLocker)(nil)
)
