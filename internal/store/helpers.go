package store

import (
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
)

// nullableTime returns nil for a zero time.Time so callers can pass it to a
// `COALESCE($n, NOW())` parameter and let Postgres supply the default.
func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// isNoRows reports whether err is pgx's "no rows in result set" sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

var (
	_ ContentStore = (*Postgres)(nil)
	_ SetCatalog   = (*Postgres)(nil)
	_ ContentStore = (*Memory)(nil)
	_ SetCatalog   = (*Memory)(nil)
)
