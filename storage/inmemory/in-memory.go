package inmemory

import (
	"context"
	"sort"
	"sync"

	"github.com/Eotel/go-machinist/model"
	"github.com/Eotel/go-machinist/storage"
)

// MemStorage keeps the latest sample of every metric.
type MemStorage struct {
	metrics map[string]model.Metric
	mu      sync.RWMutex
}

var _ storage.Storage = (*MemStorage)(nil)

func NewMemStorage() *MemStorage {
	return &MemStorage{
		metrics: make(map[string]model.Metric),
	}
}

func (store *MemStorage) Save(ctx context.Context, m model.Metric) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	store.mu.Lock()
	defer store.mu.Unlock()

	store.metrics[storage.Key(m.Namespace, m.Name)] = m
	return nil
}

func (store *MemStorage) SaveBatch(ctx context.Context, metrics []model.Metric) error {
	for _, m := range metrics {
		if err := store.Save(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

func (store *MemStorage) Get(ctx context.Context, namespace, name string) (model.Metric, error) {
	store.mu.RLock()
	defer store.mu.RUnlock()

	m, ok := store.metrics[storage.Key(namespace, name)]
	if !ok {
		return model.Metric{}, storage.ErrMetricNotFound
	}
	return m, nil
}

// GetAll returns every stored metric ordered by key.
func (store *MemStorage) GetAll(ctx context.Context) ([]model.Metric, error) {
	store.mu.RLock()
	defer store.mu.RUnlock()

	keys := make([]string, 0, len(store.metrics))
	for k := range store.metrics {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	result := make([]model.Metric, 0, len(keys))
	for _, k := range keys {
		result = append(result, store.metrics[k])
	}
	return result, nil
}

func (store *MemStorage) Len() int {
	store.mu.RLock()
	defer store.mu.RUnlock()
	return len(store.metrics)
}
