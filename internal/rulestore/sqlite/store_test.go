package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/San-2310/hsbc-hack/internal/rulestore"
)

func TestSQLiteStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "rules.db")

	s, err := rulestore.Open(ctx, rulestore.Config{Driver: "sqlite", DSN: dsn})
	require.NoError(t, err)

	data, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, data)

	require.NoError(t, s.Save(ctx, []byte(`{"normalization":{}}`)))
	require.NoError(t, s.Save(ctx, []byte(`{"flag":{}}`)))
	require.NoError(t, s.Close())

	// Reopen to check the snapshot survived.
	s, err = New(ctx, rulestore.Config{DSN: dsn})
	require.NoError(t, err)
	defer s.Close()

	data, err = s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, `{"flag":{}}`, string(data))
}

func TestSQLiteStoreKeysAreIndependent(t *testing.T) {
	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "rules.db")

	a, err := New(ctx, rulestore.Config{DSN: dsn, Key: "team-a"})
	require.NoError(t, err)
	defer a.Close()
	b, err := New(ctx, rulestore.Config{DSN: dsn, Key: "team-b"})
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, a.Save(ctx, []byte(`"a"`)))

	data, err := b.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, data)
}
