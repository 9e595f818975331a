// Package poller tracks new transaction signatures for a monitored program
// address, maintaining a high-water mark so nothing is reprocessed and nothing
// is silently skipped on transient failure.
package poller

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"launchwatch/internal/solana"
	"launchwatch/internal/storage"
)

// DefaultPageLimit bounds one signature fetch.
const DefaultPageLimit = 50

// DefaultRetention is the seen-set eviction window. A signature cannot
// usefully recur after it.
const DefaultRetention = 24 * time.Hour

// Batch is the result of one poll cycle: the candidate high-water mark and
// the unseen signatures in chronological order (oldest first).
type Batch struct {
	// Slot is the chain height observed at poll time. Commit advances the
	// checkpoint to it only after the whole batch is processed.
	Slot int64
	// Signatures are unseen, non-failed signatures, oldest first.
	Signatures []solana.SignatureInfo
}

// Empty reports whether the cycle found nothing to process.
func (b *Batch) Empty() bool {
	return len(b.Signatures) == 0
}

// Options configures a Poller.
type Options struct {
	// Program is the monitored program address.
	Program string
	// PageLimit bounds one signature fetch. Default 50.
	PageLimit int
	// Retention is the seen-set eviction window. Default 24h.
	Retention time.Duration
	// Logger defaults to log.Default().
	Logger *log.Logger
}

// Poller fetches unseen signatures for one program address. It is not safe
// for concurrent use: cycles are strictly sequential, a new Poll must not
// start before the previous batch's Commit (or abandonment).
type Poller struct {
	rpc         solana.RPCClient
	seen        storage.SeenStore
	checkpoints storage.CheckpointStore

	program   string
	pageLimit int
	retention time.Duration
	logger    *log.Logger

	lastSlot      int64
	lastSignature string
	loaded        bool
	lastSweep     time.Time
}

// New creates a poller. The checkpoint store may be nil for ephemeral runs;
// progress then lives only in memory.
func New(rpc solana.RPCClient, seen storage.SeenStore, checkpoints storage.CheckpointStore, opts Options) (*Poller, error) {
	if rpc == nil || seen == nil {
		return nil, errors.New("poller: rpc client and seen store are required")
	}
	if opts.Program == "" {
		return nil, errors.New("poller: program address is required")
	}
	if opts.PageLimit <= 0 {
		opts.PageLimit = DefaultPageLimit
	}
	if opts.Retention <= 0 {
		opts.Retention = DefaultRetention
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Poller{
		rpc:         rpc,
		seen:        seen,
		checkpoints: checkpoints,
		program:     opts.Program,
		pageLimit:   opts.PageLimit,
		retention:   opts.Retention,
		logger:      opts.Logger,
	}, nil
}

// Load restores the high-water mark from the checkpoint store. A missing
// checkpoint is not an error: polling starts from the current chain tip.
func (p *Poller) Load(ctx context.Context) error {
	p.loaded = true
	if p.checkpoints == nil {
		return nil
	}
	cp, err := p.checkpoints.Get(ctx, p.program)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load checkpoint: %w", err)
	}
	p.lastSlot = cp.Slot
	p.lastSignature = cp.Signature
	p.logger.Printf("poller: resuming program %s from slot %d", p.program, cp.Slot)
	return nil
}

// Poll runs one cycle: check the chain height, fetch new signatures, filter
// failed and already-seen ones, and return the remainder oldest first. The
// high-water mark is NOT advanced here; call Commit after the batch has been
// fully processed. An error leaves the mark untouched so nothing is skipped.
func (p *Poller) Poll(ctx context.Context) (*Batch, error) {
	if !p.loaded {
		if err := p.Load(ctx); err != nil {
			return nil, err
		}
	}

	slot, err := p.rpc.GetSlot(ctx)
	if err != nil {
		return nil, fmt.Errorf("get slot: %w", err)
	}

	// Unchanged height means no new blocks: no-op cycle.
	if slot == p.lastSlot {
		return &Batch{Slot: slot}, nil
	}

	opts := &solana.SignaturesOpts{Limit: p.pageLimit}
	if p.lastSignature != "" {
		opts.Until = p.lastSignature
	}

	sigs, err := p.rpc.GetSignaturesForAddress(ctx, p.program, opts)
	if err != nil {
		return nil, fmt.Errorf("get signatures: %w", err)
	}

	// The RPC returns newest first; walk backwards to yield oldest first.
	batch := &Batch{Slot: slot}
	for i := len(sigs) - 1; i >= 0; i-- {
		sig := sigs[i]
		if sig.Err != nil {
			// Failed at the source; nothing to classify.
			continue
		}
		seen, err := p.seen.IsSeen(ctx, sig.Signature)
		if err != nil {
			return nil, fmt.Errorf("check seen: %w", err)
		}
		if seen {
			continue
		}
		batch.Signatures = append(batch.Signatures, sig)
	}

	return batch, nil
}

// Commit marks the batch's signatures as seen and advances the high-water
// mark to the batch's slot. Call only after the whole batch was applied;
// a cycle that failed mid-batch must abandon the batch instead, so the next
// Poll re-fetches the same signatures.
func (p *Poller) Commit(ctx context.Context, batch *Batch) error {
	if batch == nil {
		return errors.New("poller: nil batch")
	}

	for _, sig := range batch.Signatures {
		if err := p.seen.MarkSeen(ctx, sig.Signature); err != nil {
			return fmt.Errorf("mark seen: %w", err)
		}
	}

	p.lastSlot = batch.Slot
	if n := len(batch.Signatures); n > 0 {
		p.lastSignature = batch.Signatures[n-1].Signature
	}

	if p.checkpoints != nil {
		cp := &storage.Checkpoint{Slot: p.lastSlot, Signature: p.lastSignature}
		if err := p.checkpoints.Set(ctx, p.program, cp); err != nil {
			return fmt.Errorf("persist checkpoint: %w", err)
		}
	}

	p.maybeSweep(ctx)
	return nil
}

// HighWaterMark returns the current committed position.
func (p *Poller) HighWaterMark() (slot int64, signature string) {
	return p.lastSlot, p.lastSignature
}

// maybeSweep evicts seen-set entries older than the retention window, at most
// once per hour.
func (p *Poller) maybeSweep(ctx context.Context) {
	now := time.Now()
	if now.Sub(p.lastSweep) < time.Hour {
		return
	}
	p.lastSweep = now
	cutoff := now.Add(-p.retention).UnixMilli()
	if err := p.seen.Sweep(ctx, cutoff); err != nil {
		p.logger.Printf("poller: seen-set sweep failed: %v", err)
	}
}
