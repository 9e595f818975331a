package memory

import (
	"context"
	"errors"
	"testing"

	"launchwatch/internal/storage"
)

func TestCheckpointStore(t *testing.T) {
	s := NewCheckpointStore()
	ctx := context.Background()

	if _, err := s.Get(ctx, "prog1"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound before first Set, got %v", err)
	}

	if err := s.Set(ctx, "prog1", &storage.Checkpoint{Slot: 1000, Signature: "sigA"}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	cp, err := s.Get(ctx, "prog1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if cp.Slot != 1000 || cp.Signature != "sigA" {
		t.Errorf("Unexpected checkpoint: %+v", cp)
	}

	// Overwrite advances the checkpoint.
	s.Set(ctx, "prog1", &storage.Checkpoint{Slot: 2000, Signature: "sigB"})
	cp, _ = s.Get(ctx, "prog1")
	if cp.Slot != 2000 {
		t.Errorf("Expected slot 2000, got %d", cp.Slot)
	}

	// Programs are independent.
	if _, err := s.Get(ctx, "prog2"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for other program, got %v", err)
	}
}
