package memory

import (
	"context"
	"errors"
	"testing"

	"launchwatch/internal/domain"
	"launchwatch/internal/storage"
)

func TestEventStore_InsertAndOrdering(t *testing.T) {
	s := NewEventStore()
	ctx := context.Background()

	events := []*domain.ClassifiedEvent{
		{Signature: "s3", Mint: "m1", Slot: 300, Type: domain.EventBuy, BlockTime: 30},
		{Signature: "s1", Mint: "m1", Slot: 100, Type: domain.EventBuy, BlockTime: 10},
		{Signature: "s2", Mint: "m1", Slot: 200, Type: domain.EventSell, BlockTime: 20},
	}
	for _, e := range events {
		if err := s.Insert(ctx, e); err != nil {
			t.Fatalf("Insert %s failed: %v", e.Signature, err)
		}
	}

	got, err := s.GetByMint(ctx, "m1")
	if err != nil {
		t.Fatalf("GetByMint failed: %v", err)
	}
	if len(got) != 3 || got[0].Signature != "s1" || got[2].Signature != "s3" {
		t.Errorf("Expected slot-ordered [s1 s2 s3], got %+v", got)
	}

	if err := s.Insert(ctx, events[0]); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}
}

func TestEventStore_SameSignatureDifferentMint(t *testing.T) {
	// One transaction can classify against several mints; the audit key is
	// (signature, mint).
	s := NewEventStore()
	ctx := context.Background()

	if err := s.Insert(ctx, &domain.ClassifiedEvent{Signature: "s1", Mint: "m1"}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := s.Insert(ctx, &domain.ClassifiedEvent{Signature: "s1", Mint: "m2"}); err != nil {
		t.Fatalf("Insert for second mint failed: %v", err)
	}
}

func TestEventStore_InsertBulkAtomic(t *testing.T) {
	s := NewEventStore()
	ctx := context.Background()

	if err := s.Insert(ctx, &domain.ClassifiedEvent{Signature: "dup", Mint: "m1"}); err != nil {
		t.Fatalf("Seed insert failed: %v", err)
	}

	batch := []*domain.ClassifiedEvent{
		{Signature: "a", Mint: "m1"},
		{Signature: "dup", Mint: "m1"},
	}
	if err := s.InsertBulk(ctx, batch); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Fatalf("Expected ErrDuplicateKey, got %v", err)
	}

	// Nothing from the failed batch may have been applied.
	got, _ := s.GetByMint(ctx, "m1")
	if len(got) != 1 {
		t.Errorf("Expected only the seed event after failed bulk, got %d", len(got))
	}
}

func TestEventStore_GetByTimeRange(t *testing.T) {
	s := NewEventStore()
	ctx := context.Background()

	s.Insert(ctx, &domain.ClassifiedEvent{Signature: "s1", Mint: "m1", Slot: 1, BlockTime: 100})
	s.Insert(ctx, &domain.ClassifiedEvent{Signature: "s2", Mint: "m1", Slot: 2, BlockTime: 200})
	s.Insert(ctx, &domain.ClassifiedEvent{Signature: "s3", Mint: "m1", Slot: 3, BlockTime: 300})

	got, err := s.GetByTimeRange(ctx, "m1", 100, 200)
	if err != nil {
		t.Fatalf("GetByTimeRange failed: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("Expected 2 events in [100,200], got %d", len(got))
	}
}
