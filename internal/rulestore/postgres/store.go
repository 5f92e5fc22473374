// Package postgres stores rule snapshots in a Postgres table.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/San-2310/hsbc-hack/internal/rulestore"
)

const schema = `CREATE TABLE IF NOT EXISTS rule_snapshots (
	key        TEXT PRIMARY KEY,
	body       TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// Store implements rulestore.Store on a pgx connection pool
type Store struct {
	pool *pgxpool.Pool
	key  string
}

func init() {
	rulestore.Register("postgres", New)
}

// New connects to cfg.DSN and ensures the snapshot table exists
func New(ctx context.Context, cfg rulestore.Config) (rulestore.Store, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create table rule_snapshots: %w", err)
	}
	return &Store{pool: pool, key: cfg.KeyOrDefault()}, nil
}

func (s *Store) Load(ctx context.Context) ([]byte, error) {
	var body []byte
	err := s.pool.QueryRow(ctx, `SELECT body FROM rule_snapshots WHERE key = $1`, s.key).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot %q: %w", s.key, err)
	}
	return body, nil
}

func (s *Store) Save(ctx context.Context, snapshot []byte) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO rule_snapshots (key, body, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET body = EXCLUDED.body, updated_at = EXCLUDED.updated_at`,
		s.key, string(snapshot),
	)
	if err != nil {
		return fmt.Errorf("save snapshot %q: %w", s.key, err)
	}
	return nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
