package memory

import (
	"context"
	"sync"
	"time"

	"launchwatch/internal/storage"
)

// SeenStore is an in-memory implementation of storage.SeenStore with explicit
// sweep-based eviction. Retention is bounded: entries older than the cutoff
// passed to Sweep are dropped, so the set does not grow without limit.
type SeenStore struct {
	mu   sync.RWMutex
	data map[string]int64 // signature -> marked-at Unix ms
	now  func() time.Time
}

// NewSeenStore creates a new in-memory seen-signature store.
func NewSeenStore() *SeenStore {
	return &SeenStore{
		data: make(map[string]int64),
		now:  time.Now,
	}
}

// IsSeen reports whether a signature was marked and not yet swept.
func (s *SeenStore) IsSeen(_ context.Context, signature string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, exists := s.data[signature]
	return exists, nil
}

// MarkSeen records a signature as processed.
func (s *SeenStore) MarkSeen(_ context.Context, signature string) error {
	if signature == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[signature] = s.now().UnixMilli()
	return nil
}

// Sweep evicts entries marked before the cutoff.
func (s *SeenStore) Sweep(_ context.Context, cutoffMs int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for sig, at := range s.data {
		if at < cutoffMs {
			delete(s.data, sig)
		}
	}
	return nil
}

// Len reports the current entry count. Used by observability gauges.
func (s *SeenStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

var _ storage.SeenStore = (*SeenStore)(nil)
