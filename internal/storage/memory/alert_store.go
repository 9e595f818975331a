package memory

import (
	"context"
	"sort"
	"sync"

	"launchwatch/internal/domain"
	"launchwatch/internal/storage"
)

// AlertStore is an in-memory implementation of storage.AlertStore.
type AlertStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Alert // keyed by alert ID
}

// NewAlertStore creates a new in-memory alert store.
func NewAlertStore() *AlertStore {
	return &AlertStore{
		data: make(map[string]*domain.Alert),
	}
}

// Insert adds a dispatched alert. Returns ErrDuplicateKey if the ID exists.
func (s *AlertStore) Insert(_ context.Context, a *domain.Alert) error {
	if a == nil || a.ID == "" || a.TokenAddress == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[a.ID]; exists {
		return storage.ErrDuplicateKey
	}
	alertCopy := *a
	s.data[a.ID] = &alertCopy
	return nil
}

// GetByToken retrieves alerts for a token address, ordered by timestamp ASC.
func (s *AlertStore) GetByToken(_ context.Context, tokenAddress string) ([]*domain.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Alert
	for _, a := range s.data {
		if a.TokenAddress == tokenAddress {
			alertCopy := *a
			result = append(result, &alertCopy)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Timestamp != result[j].Timestamp {
			return result[i].Timestamp < result[j].Timestamp
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

var _ storage.AlertStore = (*AlertStore)(nil)
