package poller

import (
	"context"
	"errors"
	"testing"

	"launchwatch/internal/solana"
	"launchwatch/internal/solana/stub"
	"launchwatch/internal/storage/memory"
)

const testProgram = "Prog1111111111111111111111111111111111111111"

func newTestPoller(t *testing.T, rpc solana.RPCClient) (*Poller, *memory.CheckpointStore) {
	t.Helper()
	checkpoints := memory.NewCheckpointStore()
	p, err := New(rpc, memory.NewSeenStore(), checkpoints, Options{Program: testProgram})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return p, checkpoints
}

func TestPoll_UnchangedSlotIsNoOp(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.SetSlot(1000)
	rpc.AddSignatures(testProgram, []solana.SignatureInfo{{Signature: "s1", Slot: 1000}})

	p, _ := newTestPoller(t, rpc)

	batch, err := p.Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll failed: %v", err)
	}
	if err := p.Commit(context.Background(), batch); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	// Same slot: no signature fetch, empty batch.
	sigCallsBefore := rpc.SigCalls
	batch, err = p.Poll(context.Background())
	if err != nil {
		t.Fatalf("Second poll failed: %v", err)
	}
	if !batch.Empty() {
		t.Errorf("Expected empty batch at unchanged slot, got %d signatures", len(batch.Signatures))
	}
	if rpc.SigCalls != sigCallsBefore {
		t.Errorf("Expected no signature fetch at unchanged slot")
	}
}

func TestPoll_ChronologicalOrderAndFailedSkip(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.SetSlot(1000)
	// RPC order is newest first; s2 failed on chain.
	rpc.AddSignatures(testProgram, []solana.SignatureInfo{
		{Signature: "s3", Slot: 300},
		{Signature: "s2", Slot: 200, Err: map[string]any{"InstructionError": []any{}}},
		{Signature: "s1", Slot: 100},
	})

	p, _ := newTestPoller(t, rpc)

	batch, err := p.Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll failed: %v", err)
	}
	if len(batch.Signatures) != 2 {
		t.Fatalf("Expected 2 signatures, got %d", len(batch.Signatures))
	}
	if batch.Signatures[0].Signature != "s1" || batch.Signatures[1].Signature != "s3" {
		t.Errorf("Expected oldest-first [s1 s3], got %+v", batch.Signatures)
	}
}

func TestPoll_SeenFilteredAfterCommit(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.SetSlot(1000)
	rpc.AddSignatures(testProgram, []solana.SignatureInfo{
		{Signature: "s2", Slot: 200},
		{Signature: "s1", Slot: 100},
	})

	p, _ := newTestPoller(t, rpc)
	ctx := context.Background()

	batch, err := p.Poll(ctx)
	if err != nil {
		t.Fatalf("Poll failed: %v", err)
	}
	if err := p.Commit(ctx, batch); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	// New slot, same signatures still returned by the RPC: all filtered.
	rpc.SetSlot(1001)
	batch, err = p.Poll(ctx)
	if err != nil {
		t.Fatalf("Second poll failed: %v", err)
	}
	if !batch.Empty() {
		t.Errorf("Expected seen signatures filtered, got %+v", batch.Signatures)
	}
}

func TestPoll_ErrorDoesNotAdvanceMark(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.SetSlot(1000)
	rpc.AddSignatures(testProgram, []solana.SignatureInfo{{Signature: "s1", Slot: 100}})

	p, _ := newTestPoller(t, rpc)
	ctx := context.Background()

	batch, _ := p.Poll(ctx)
	p.Commit(ctx, batch)
	slotBefore, sigBefore := p.HighWaterMark()

	rpc.SetSlot(1001)
	rpc.SlotErr = errors.New("rpc down")
	if _, err := p.Poll(ctx); err == nil {
		t.Fatal("Expected poll error")
	}

	slot, sig := p.HighWaterMark()
	if slot != slotBefore || sig != sigBefore {
		t.Errorf("Mark moved on failed cycle: (%d,%q) -> (%d,%q)", slotBefore, sigBefore, slot, sig)
	}

	// Recovery: the same batch is fetched again.
	rpc.SlotErr = nil
	rpc.AddSignatures(testProgram, []solana.SignatureInfo{
		{Signature: "s2", Slot: 1001},
		{Signature: "s1", Slot: 100},
	})
	batch, err := p.Poll(ctx)
	if err != nil {
		t.Fatalf("Recovery poll failed: %v", err)
	}
	if len(batch.Signatures) != 1 || batch.Signatures[0].Signature != "s2" {
		t.Errorf("Expected only unseen s2 after recovery, got %+v", batch.Signatures)
	}
}

func TestCommit_PersistsCheckpoint(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.SetSlot(1000)
	rpc.AddSignatures(testProgram, []solana.SignatureInfo{
		{Signature: "s2", Slot: 900},
		{Signature: "s1", Slot: 800},
	})

	p, checkpoints := newTestPoller(t, rpc)
	ctx := context.Background()

	batch, _ := p.Poll(ctx)
	if err := p.Commit(ctx, batch); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	cp, err := checkpoints.Get(ctx, testProgram)
	if err != nil {
		t.Fatalf("Checkpoint not persisted: %v", err)
	}
	if cp.Slot != 1000 || cp.Signature != "s2" {
		t.Errorf("Expected checkpoint (1000, s2), got (%d, %q)", cp.Slot, cp.Signature)
	}

	// A fresh poller resumes from the stored checkpoint.
	p2, err := New(rpc, memory.NewSeenStore(), checkpoints, Options{Program: testProgram})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := p2.Load(ctx); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	slot, sig := p2.HighWaterMark()
	if slot != 1000 || sig != "s2" {
		t.Errorf("Expected resume at (1000, s2), got (%d, %q)", slot, sig)
	}
}
