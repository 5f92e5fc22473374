package services

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/San-2310/hsbc-hack/pkg/contracts/domain"
)

// Dataset stages
const (
	StageIngested   = "ingested"
	StageNormalized = "normalized"
)

// DatasetStore keeps datasets addressed by id
type DatasetStore interface {
	// Put stores ds and returns its catalogue entry. info.ID is assigned
	// when empty; Rows and Columns are always taken from ds.
	Put(ctx context.Context, ds *domain.Dataset, info domain.DatasetInfo) (domain.DatasetInfo, error)
	Get(ctx context.Context, id string) (*domain.Dataset, domain.DatasetInfo, error)
	List(ctx context.Context) ([]domain.DatasetInfo, error)
	Delete(ctx context.Context, id string) error
}

type storedDataset struct {
	data *domain.Dataset
	info domain.DatasetInfo
	seq  uint64
}

// MemoryDatasetStore holds datasets in memory. When a capacity is set the
// oldest dataset is evicted first.
type MemoryDatasetStore struct {
	mu       sync.RWMutex
	items    map[string]*storedDataset
	capacity int
	seq      uint64
	newID    func() string
}

// NewMemoryDatasetStore creates a store. capacity <= 0 means unbounded.
func NewMemoryDatasetStore(capacity int) *MemoryDatasetStore {
	return &MemoryDatasetStore{
		items:    make(map[string]*storedDataset),
		capacity: capacity,
		newID:    func() string { return uuid.New().String() },
	}
}

func (s *MemoryDatasetStore) Put(ctx context.Context, ds *domain.Dataset, info domain.DatasetInfo) (domain.DatasetInfo, error) {
	if err := ctx.Err(); err != nil {
		return domain.DatasetInfo{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if info.ID == "" {
		info.ID = s.newID()
	}
	info.Rows = ds.Len()
	info.Columns = ds.Columns()
	if info.Stage == "" {
		info.Stage = StageIngested
	}

	s.seq++
	s.items[info.ID] = &storedDataset{data: ds, info: info, seq: s.seq}
	s.evict()
	return info, nil
}

// evict drops the oldest entries above capacity. Caller holds the lock.
func (s *MemoryDatasetStore) evict() {
	for s.capacity > 0 && len(s.items) > s.capacity {
		var oldestID string
		var oldest uint64
		for id, item := range s.items {
			if oldestID == "" || item.seq < oldest {
				oldestID, oldest = id, item.seq
			}
		}
		delete(s.items, oldestID)
	}
}

func (s *MemoryDatasetStore) Get(ctx context.Context, id string) (*domain.Dataset, domain.DatasetInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[id]
	if !ok {
		return nil, domain.DatasetInfo{}, ErrDatasetNotFound
	}
	return item.data, item.info, nil
}

// List returns entries oldest first
func (s *MemoryDatasetStore) List(ctx context.Context) ([]domain.DatasetInfo, error) {
	s.mu.RLock()
	items := make([]*storedDataset, 0, len(s.items))
	for _, item := range s.items {
		items = append(items, item)
	}
	s.mu.RUnlock()

	sort.Slice(items, func(i, j int) bool { return items[i].seq < items[j].seq })
	out := make([]domain.DatasetInfo, len(items))
	for i, item := range items {
		out[i] = item.info
	}
	return out, nil
}

func (s *MemoryDatasetStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		return ErrDatasetNotFound
	}
	delete(s.items, id)
	return nil
}
