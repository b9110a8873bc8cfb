package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/kubilitics/kubilitics-topoview/internal/models"
	"github.com/kubilitics/kubilitics-topoview/internal/pkg/datasetcache"
	"github.com/kubilitics/kubilitics-topoview/internal/pkg/tracing"
)

// ErrNoDataset is returned before the first dataset has been published.
var ErrNoDataset = errors.New("no dataset published yet")

// DatasetService holds the latest cluster dataset and notifies subscribers
// when it is replaced.
type DatasetService interface {
	// Publish replaces the dataset and returns its generation.
	Publish(ctx context.Context, ds *models.Dataset) uint64
	// Dataset returns the latest dataset restricted to namespace ("" = all).
	Dataset(ctx context.Context, namespace string) (*models.Dataset, uint64, error)
	// Subscribe returns a channel receiving a value after every publish. The
	// channel has a buffer of one; bursts coalesce.
	Subscribe() (<-chan struct{}, func())
}

type datasetService struct {
	cache *datasetcache.Cache
	log   *slog.Logger

	mu         sync.RWMutex
	dataset    *models.Dataset
	generation uint64
	subs       map[uint64]chan struct{}
	nextSub    uint64
}

// NewDatasetService returns an empty service. cache may be nil.
func NewDatasetService(cache *datasetcache.Cache, log *slog.Logger) DatasetService {
	if cache == nil {
		cache = datasetcache.New(0, 0)
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &datasetService{cache: cache, log: log, subs: map[uint64]chan struct{}{}}
}

func (s *datasetService) Publish(ctx context.Context, ds *models.Dataset) uint64 {
	_, span := tracing.StartSpan(ctx, "dataset.publish")
	defer span.End()

	s.mu.Lock()
	s.dataset = ds
	s.generation++
	gen := s.generation
	subs := make([]chan struct{}, 0, len(s.subs))
	for _, ch := range s.subs {
		subs = append(subs, ch)
	}
	s.mu.Unlock()

	s.cache.Purge()
	for _, ch := range subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	s.log.Debug("dataset published", "generation", gen, "pods", len(ds.Pods), "subscribers", len(subs))
	return gen
}

func (s *datasetService) Dataset(_ context.Context, namespace string) (*models.Dataset, uint64, error) {
	s.mu.RLock()
	ds, gen := s.dataset, s.generation
	s.mu.RUnlock()
	if ds == nil {
		return nil, 0, ErrNoDataset
	}
	if namespace == "" {
		return ds, gen, nil
	}
	if cached, ok := s.cache.Get(gen, namespace); ok {
		return cached, gen, nil
	}
	filtered := ds.FilterNamespace(namespace)
	s.cache.Set(gen, namespace, filtered)
	return filtered, gen, nil
}

func (s *datasetService) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}
