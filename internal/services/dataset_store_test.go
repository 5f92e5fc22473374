package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/San-2310/hsbc-hack/pkg/contracts/domain"
)

func smallDataset(t *testing.T, n int) *domain.Dataset {
	t.Helper()
	b := domain.NewBuilder("n")
	for i := 0; i < n; i++ {
		b.Append(domain.Number(float64(i)))
	}
	ds, err := b.Build()
	require.NoError(t, err)
	return ds
}

func TestMemoryDatasetStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryDatasetStore(0)

	info, err := s.Put(ctx, smallDataset(t, 3), domain.DatasetInfo{Rows: 99})
	require.NoError(t, err)
	assert.NotEmpty(t, info.ID)
	assert.Equal(t, 3, info.Rows, "rows come from the dataset")
	assert.Equal(t, []string{"n"}, info.Columns)
	assert.Equal(t, StageIngested, info.Stage)

	ds, got, err := s.Get(ctx, info.ID)
	require.NoError(t, err)
	assert.Equal(t, info, got)
	assert.Equal(t, 3, ds.Len())

	require.NoError(t, s.Delete(ctx, info.ID))
	_, _, err = s.Get(ctx, info.ID)
	assert.ErrorIs(t, err, ErrDatasetNotFound)
	assert.ErrorIs(t, s.Delete(ctx, info.ID), ErrDatasetNotFound)
}

func TestMemoryDatasetStoreEvictsOldest(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryDatasetStore(2)

	a, err := s.Put(ctx, smallDataset(t, 1), domain.DatasetInfo{ID: "a"})
	require.NoError(t, err)
	_, err = s.Put(ctx, smallDataset(t, 1), domain.DatasetInfo{ID: "b"})
	require.NoError(t, err)
	_, err = s.Put(ctx, smallDataset(t, 1), domain.DatasetInfo{ID: "c"})
	require.NoError(t, err)

	_, _, err = s.Get(ctx, a.ID)
	assert.ErrorIs(t, err, ErrDatasetNotFound)

	list, err := s.List(ctx)
	require.NoError(t, err)
	ids := []string{}
	for _, i := range list {
		ids = append(ids, i.ID)
	}
	assert.Equal(t, []string{"b", "c"}, ids)
}

func TestMemoryDatasetStoreHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewMemoryDatasetStore(0).Put(ctx, smallDataset(t, 1), domain.DatasetInfo{})
	assert.ErrorIs(t, err, context.Canceled)
}
