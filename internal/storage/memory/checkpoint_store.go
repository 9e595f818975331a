package memory

import (
	"context"
	"sync"

	"launchwatch/internal/storage"
)

// CheckpointStore is an in-memory implementation of storage.CheckpointStore.
type CheckpointStore struct {
	mu   sync.RWMutex
	data map[string]storage.Checkpoint // keyed by program address
}

// NewCheckpointStore creates a new in-memory checkpoint store.
func NewCheckpointStore() *CheckpointStore {
	return &CheckpointStore{
		data: make(map[string]storage.Checkpoint),
	}
}

// Get returns the checkpoint for a program address.
func (s *CheckpointStore) Get(_ context.Context, program string) (*storage.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cp, exists := s.data[program]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return &cp, nil
}

// Set saves the checkpoint for a program address.
func (s *CheckpointStore) Set(_ context.Context, program string, cp *storage.Checkpoint) error {
	if program == "" || cp == nil {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[program] = *cp
	return nil
}

var _ storage.CheckpointStore = (*CheckpointStore)(nil)
