package credstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
	"github.com/pressly/goose/v3"

	"github.com/fzdarsky/quietplanet/internal/credstore/migrations"
)

// DBTX is the subset of database/sql used by PostgresStore.
// Both *sql.DB and *sql.Tx satisfy it.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// PostgresStore is a Store backed by PostgreSQL.
type PostgresStore struct {
	db DBTX
}

// NewPostgresStore wraps an open database handle.
func NewPostgresStore(db DBTX) *PostgresStore {
	return &PostgresStore{db: db}
}

// OpenPostgres opens a pgx-backed connection pool, checks connectivity and applies the
// embedded migrations.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

// gooseUp is a seam for tests.
var gooseUp = func(ctx context.Context, db *sql.DB, dir string) error {
	return goose.UpContext(ctx, db, dir)
}

// Migrate applies the embedded schema migrations.
func Migrate(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set migration dialect: %w", err)
	}
	if err := gooseUp(ctx, db, "."); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// Lookup implements Store.
func (s *PostgresStore) Lookup(ctx context.Context, username string) (*Record, error) {
	query := `SELECT username, salt, verifier, role, created_at FROM users
		 WHERE username = $1`

	rec := &Record{}
	var role string
	err := s.db.QueryRowContext(ctx, query, username).
		Scan(&rec.Username, &rec.Salt, &rec.Verifier, &role, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	rec.Role, err = ParseRole(role)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return rec, nil
}

// Register implements Store.
func (s *PostgresStore) Register(ctx context.Context, username, salt, verifier string) error {
	query := `INSERT INTO users (username, salt, verifier)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (username) DO NOTHING
		 RETURNING username`

	var inserted string
	err := s.db.QueryRowContext(ctx, query, username, salt, verifier).Scan(&inserted)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// UpdateRole implements Store. The role history is written by a database trigger.
func (s *PostgresStore) UpdateRole(ctx context.Context, username string, role Role) error {
	if _, err := ParseRole(string(role)); err != nil {
		return err
	}

	query := `UPDATE users SET role = $2 WHERE username = $1`

	res, err := s.db.ExecContext(ctx, query, username, string(role))
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// LogAuthEvent implements Store.
func (s *PostgresStore) LogAuthEvent(ctx context.Context, username string, event Event) error {
	query := `INSERT INTO auth_logs (username, event) VALUES ($1, $2)`

	if _, err := s.db.ExecContext(ctx, query, username, string(event)); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
