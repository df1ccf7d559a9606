package credstore

import (
	"context"
	"database/sql"
)

// SetGooseUp replaces the migration runner for the duration of a test.
func SetGooseUp(fn func(ctx context.Context, db *sql.DB, dir string) error) (restore func()) {
	prev := gooseUp
	gooseUp = fn
	return func() { gooseUp = prev }
}
