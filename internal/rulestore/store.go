// Package rulestore persists rule registry snapshots. Backends register
// themselves by driver name from init() and are selected with Open.
package rulestore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrClosed is returned by operations on a closed store
var ErrClosed = errors.New("rulestore: store is closed")

// Config selects and configures a backend.
//
// Driver must match a registered backend. DSN and Key are passed through
// to the backend; their meaning is backend-specific (a file path, a SQL
// connection string, a redis address). A non-empty Passphrase encrypts
// snapshots at rest with any backend.
type Config struct {
	Driver     string
	DSN        string
	Key        string
	Passphrase string
}

// DefaultKey names the snapshot when Config.Key is empty
const DefaultKey = "rules"

// KeyOrDefault returns the configured snapshot key
func (c Config) KeyOrDefault() string {
	if c.Key == "" {
		return DefaultKey
	}
	return c.Key
}

// Store loads and saves a single serialized rule snapshot.
//
// Load returns (nil, nil) when nothing has been saved yet.
type Store interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, snapshot []byte) error
	Close() error
}

// Factory builds a store from its configuration
type Factory func(ctx context.Context, cfg Config) (Store, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register makes a backend available under driver.
//
// Panics if driver is empty, f is nil or driver is already registered.
func Register(driver string, f Factory) {
	mu.Lock()
	defer mu.Unlock()

	if driver == "" {
		panic("rulestore: Register called with empty driver")
	}
	if f == nil {
		panic("rulestore: Register called with nil factory")
	}
	if _, exists := factories[driver]; exists {
		panic(fmt.Sprintf("rulestore: factory already registered for driver=%q", driver))
	}
	factories[driver] = f
}

// Drivers lists the registered driver names
func Drivers() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(factories))
	for name := range factories {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Open constructs the store for cfg.Driver
func Open(ctx context.Context, cfg Config) (Store, error) {
	if cfg.Driver == "" {
		return nil, errors.New("rulestore: missing driver")
	}

	mu.RLock()
	f := factories[cfg.Driver]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("unsupported rulestore driver=%s", cfg.Driver)
	}
	s, err := f(ctx, cfg)
	if err != nil || cfg.Passphrase == "" {
		return s, err
	}
	enc, err := NewEncrypted(s, cfg.Passphrase, DefaultEncryptionConfig())
	if err != nil {
		s.Close()
		return nil, err
	}
	return enc, nil
}

func init() {
	Register("memory", func(context.Context, Config) (Store, error) { return NewMemory(), nil })
	Register("file", func(_ context.Context, cfg Config) (Store, error) { return NewFile(cfg.DSN) })
}
