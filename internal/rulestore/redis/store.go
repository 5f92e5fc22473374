// Package redis stores rule snapshots under a single redis key.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/San-2310/hsbc-hack/internal/rulestore"
)

const dialTimeout = 5 * time.Second

// Store implements rulestore.Store on a go-redis client
type Store struct {
	client *redis.Client
	key    string
}

func init() {
	rulestore.Register("redis", New)
}

// New connects to cfg.DSN, either a redis:// URL or a host:port address
func New(ctx context.Context, cfg rulestore.Config) (rulestore.Store, error) {
	opts, err := redis.ParseURL(cfg.DSN)
	if err != nil {
		opts = &redis.Options{Addr: cfg.DSN}
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = dialTimeout
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return NewWithClient(client, cfg.KeyOrDefault()), nil
}

// NewWithClient wraps an existing client
func NewWithClient(client *redis.Client, key string) *Store {
	return &Store{client: client, key: key}
}

func (s *Store) Load(ctx context.Context) ([]byte, error) {
	val, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get key %s: %w", s.key, err)
	}
	return val, nil
}

func (s *Store) Save(ctx context.Context, snapshot []byte) error {
	if err := s.client.Set(ctx, s.key, snapshot, 0).Err(); err != nil {
		return fmt.Errorf("failed to set key %s: %w", s.key, err)
	}
	return nil
}

func (s *Store) Close() error { return s.client.Close() }
