// Package store implements the two durable collaborators the core treats as
// external systems: the Content Store (component A) and the Set Catalog
// (component B), both specified only at their interface in spec §4.5/§6.
// This rewrite backs both on Postgres via pgx, grounded on the teacher's
// pgxpool + ensureSchema idiom (internal/store/postgres.go in the teacher).
package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres wraps a pgxpool.Pool and implements both ContentStore and
// SetCatalog. The core never writes to it in the allocator path — only the
// builder writes, and only the merge surface (outside this core) reads from
// it for content.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to dsn, verifies connectivity, and ensures the schema
// exists.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN is required")
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}

	s := &Postgres{pool: pool}

	if err := s.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *Postgres) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

func (s *Postgres) Ping(ctx context.Context) error {
	if s.pool == nil {
		return fmt.Errorf("postgres not initialized")
	}
	return s.pool.Ping(ctx)
}

func (s *Postgres) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS items (
			id TEXT PRIMARY KEY,
			hash TEXT NOT NULL,
			category_id TEXT NOT NULL,
			payload JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (category_id, hash)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_items_category_id ON items(category_id, id)`,
		`CREATE INDEX IF NOT EXISTS idx_items_hash ON items(hash)`,
		`CREATE TABLE IF NOT EXISTS sets (
			set_id TEXT PRIMARY KEY,
			category_id TEXT NOT NULL,
			refs JSONB NOT NULL,
			watermark TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sets_category_watermark ON sets(category_id, watermark DESC)`,
	}

	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
