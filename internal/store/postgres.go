package store

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps each blob as a row in a key/value table.
type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the backing table if it does not exist yet.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	const stmt = `CREATE TABLE IF NOT EXISTS kv_blobs (key TEXT PRIMARY KEY, value TEXT NOT NULL);`

	if _, err := s.db.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("migrate kv_blobs: %w", err)
	}

	return nil
}

func (s *PostgresStore) Get(ctx context.Context, key string) (string, bool, error) {
	const stmt = `SELECT value FROM kv_blobs WHERE key = $1;`

	var raw string
	err := s.db.QueryRow(ctx, stmt, key).Scan(&raw)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("postgres get %s: %w", key, err)
	}

	return raw, true, nil
}

func (s *PostgresStore) Set(ctx context.Context, key, raw string) error {
	const stmt = `
INSERT INTO kv_blobs (key, value) VALUES ($1, $2)
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value;`

	if _, err := s.db.Exec(ctx, stmt, key, raw); err != nil {
		return fmt.Errorf("postgres set %s: %w", key, err)
	}

	return nil
}

func (s *PostgresStore) Remove(ctx context.Context, key string) error {
	const stmt = `DELETE FROM kv_blobs WHERE key = $1;`

	if _, err := s.db.Exec(ctx, stmt, key); err != nil {
		return fmt.Errorf("postgres del %s: %w", key, err)
	}

	return nil
}
