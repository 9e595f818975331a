package memory

import (
	"context"
	"sync"

	"launchwatch/internal/domain"
	"launchwatch/internal/storage"
)

// MetricTimeseriesStore is an in-memory implementation of storage.MetricTimeseriesStore.
// Points are kept in insertion order, which the lifecycle manager guarantees is
// chronological.
type MetricTimeseriesStore struct {
	mu   sync.RWMutex
	data map[seriesKey][]*domain.MetricPoint
}

type seriesKey struct {
	mint   string
	metric domain.Metric
}

// NewMetricTimeseriesStore creates a new in-memory timeseries store.
func NewMetricTimeseriesStore() *MetricTimeseriesStore {
	return &MetricTimeseriesStore{
		data: make(map[seriesKey][]*domain.MetricPoint),
	}
}

// InsertBulk appends multiple points.
func (s *MetricTimeseriesStore) InsertBulk(_ context.Context, points []*domain.MetricPoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range points {
		if p == nil || p.Mint == "" || p.Metric == "" {
			return storage.ErrInvalidInput
		}
	}
	for _, p := range points {
		key := seriesKey{p.Mint, p.Metric}
		pointCopy := *p
		s.data[key] = append(s.data[key], &pointCopy)
	}
	return nil
}

// GetByMint retrieves all points of one metric for a mint, ordered by timestamp ASC.
func (s *MetricTimeseriesStore) GetByMint(_ context.Context, mint string, metric domain.Metric) ([]*domain.MetricPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	series := s.data[seriesKey{mint, metric}]
	result := make([]*domain.MetricPoint, 0, len(series))
	for _, p := range series {
		pointCopy := *p
		result = append(result, &pointCopy)
	}
	return result, nil
}

// GetByTimeRange retrieves points of one metric within [start, end] ms (inclusive).
func (s *MetricTimeseriesStore) GetByTimeRange(_ context.Context, mint string, metric domain.Metric, start, end int64) ([]*domain.MetricPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.MetricPoint
	for _, p := range s.data[seriesKey{mint, metric}] {
		if p.TimestampMs >= start && p.TimestampMs <= end {
			pointCopy := *p
			result = append(result, &pointCopy)
		}
	}
	return result, nil
}

var _ storage.MetricTimeseriesStore = (*MetricTimeseriesStore)(nil)
