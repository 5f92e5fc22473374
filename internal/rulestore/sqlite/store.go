// Package sqlite stores rule snapshots in a SQLite table.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/San-2310/hsbc-hack/internal/rulestore"
)

const schema = `CREATE TABLE IF NOT EXISTS rule_snapshots (
	key        TEXT PRIMARY KEY,
	body       TEXT NOT NULL,
	updated_at TEXT NOT NULL
)`

// Store implements rulestore.Store for SQLite. Timestamps are stored as
// RFC3339Nano text since SQLite has no native timestamp type.
type Store struct {
	db  *sql.DB
	key string
}

func init() {
	rulestore.Register("sqlite", New)
}

// New opens the database at cfg.DSN and ensures the snapshot table exists
func New(ctx context.Context, cfg rulestore.Config) (rulestore.Store, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create table rule_snapshots: %w", err)
	}
	return &Store{db: db, key: cfg.KeyOrDefault()}, nil
}

func (s *Store) Load(ctx context.Context) ([]byte, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT body FROM rule_snapshots WHERE key = ?`, s.key).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot %q: %w", s.key, err)
	}
	return []byte(body), nil
}

func (s *Store) Save(ctx context.Context, snapshot []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO rule_snapshots (key, body, updated_at) VALUES (?, ?, ?)`,
		s.key, string(snapshot), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("save snapshot %q: %w", s.key, err)
	}
	return nil
}

func (s *Store) Close() error { return s.db.Close() }
