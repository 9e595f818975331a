package postgres

import (
	"context"
	"fmt"

	"launchwatch/internal/storage"
)

// CheckpointStore implements storage.CheckpointStore using PostgreSQL.
// One row per monitored program address; Set upserts.
type CheckpointStore struct {
	pool *Pool
}

// NewCheckpointStore creates a new CheckpointStore.
func NewCheckpointStore(pool *Pool) *CheckpointStore {
	return &CheckpointStore{pool: pool}
}

// Compile-time interface check.
var _ storage.CheckpointStore = (*CheckpointStore)(nil)

// Get returns the checkpoint for a program address.
func (s *CheckpointStore) Get(ctx context.Context, program string) (*storage.Checkpoint, error) {
	query := `SELECT slot, signature FROM poll_checkpoints WHERE program = $1`

	var cp storage.Checkpoint
	err := s.pool.QueryRow(ctx, query, program).Scan(&cp.Slot, &cp.Signature)
	if err != nil {
		return nil, mapError(err, "get checkpoint")
	}
	return &cp, nil
}

// Set saves the checkpoint for a program address.
func (s *CheckpointStore) Set(ctx context.Context, program string, cp *storage.Checkpoint) error {
	if program == "" || cp == nil {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO poll_checkpoints (program, slot, signature, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (program) DO UPDATE
		SET slot = EXCLUDED.slot, signature = EXCLUDED.signature, updated_at = NOW()
	`

	if _, err := s.pool.Exec(ctx, query, program, cp.Slot, cp.Signature); err != nil {
		return fmt.Errorf("set checkpoint: %w", err)
	}
	return nil
}
