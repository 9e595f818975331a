// Package main backfills historical transactions for one monitored program:
// it pages backwards through the signature history, classifies each
// transaction and folds the events into the token lifecycle.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"launchwatch/internal/classify"
	"launchwatch/internal/config"
	"launchwatch/internal/domain"
	"launchwatch/internal/lifecycle"
	"launchwatch/internal/metadata"
	"launchwatch/internal/solana"
	"launchwatch/internal/storage"
	"launchwatch/internal/storage/memory"
	pgstore "launchwatch/internal/storage/postgres"
)

func main() {
	envPath := flag.String("env", ".env", "Path to .env file (missing file is ignored)")
	pages := flag.Int("pages", 10, "Maximum signature pages to walk backwards")
	before := flag.String("before", "", "Start walking backwards from this signature (default: chain tip)")
	flag.Parse()

	logger := log.New(os.Stdout, "[backfill] ", log.LstdFlags|log.Lshortfile)

	cfg, err := config.Load(*envPath)
	if err != nil {
		logger.Fatalf("Configuration error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, stopping after current page...", sig)
		cancel()
	}()

	endpoints := make([]solana.Endpoint, 0, len(cfg.Endpoints()))
	for i, url := range cfg.Endpoints() {
		endpoints = append(endpoints, solana.Endpoint{URL: url, Private: i == 0})
	}
	gateway, err := solana.NewGateway(solana.GatewayOptions{
		Endpoints:        endpoints,
		BulkProbeProgram: cfg.Program,
		Logger:           logger,
	})
	if err != nil {
		logger.Fatalf("Failed to create gateway: %v", err)
	}
	if err := gateway.Initialize(ctx); err != nil {
		logger.Fatalf("Failed to connect to any RPC endpoint: %v", err)
	}

	tokens, cleanup, err := createTokenStore(ctx, cfg)
	if err != nil {
		logger.Fatalf("Failed to create stores: %v", err)
	}
	defer cleanup()

	manager, err := lifecycle.NewManager(tokens, memory.NewMetricTimeseriesStore(), memory.NewEventStore(), nil, lifecycle.Config{
		AlertThreshold:  cfg.AlertThreshold,
		Graduation:      lifecycle.GraduationRule(cfg.GraduationRule),
		VolumeBandLower: cfg.VolumeBandLower,
		VolumeBandUpper: cfg.VolumeBandUpper,
		GraduationScore: cfg.GraduationScore,
		StaleAfter:      cfg.StaleAfter,
		Logger:          logger,
	})
	if err != nil {
		logger.Fatalf("Failed to create lifecycle manager: %v", err)
	}

	b := &backfiller{
		rpc:        gateway,
		classifier: classify.NewClassifier(),
		lifecycle:  manager,
		metadata:   metadata.NewFetcher(gateway),
		tokens:     tokens,
		program:    cfg.Program,
		pageLimit:  cfg.PageLimit,
		logger:     logger,
	}

	processed, err := b.run(ctx, *before, *pages)
	if err != nil && err != context.Canceled {
		logger.Fatalf("Backfill failed: %v", err)
	}
	logger.Printf("Backfill complete: %d transactions processed", processed)
}

type backfiller struct {
	rpc        solana.RPCClient
	classifier *classify.Classifier
	lifecycle  *lifecycle.Manager
	metadata   *metadata.Fetcher
	tokens     storage.TokenStore
	program    string
	pageLimit  int
	logger     *log.Logger
}

// run walks the signature history oldest-page-last, then processes each
// page's transactions in chronological order. Pages are independent: an
// interrupted run leaves earlier pages fully applied, and re-running is
// safe because event application is idempotent per signature.
func (b *backfiller) run(ctx context.Context, before string, pages int) (int, error) {
	var collected []solana.SignatureInfo
	cursor := before

	for page := 0; page < pages; page++ {
		if ctx.Err() != nil {
			break
		}
		sigs, err := b.rpc.GetSignaturesForAddress(ctx, b.program, &solana.SignaturesOpts{
			Before: cursor,
			Limit:  b.pageLimit,
		})
		if err != nil {
			return 0, err
		}
		if len(sigs) == 0 {
			break
		}
		b.logger.Printf("Page %d: %d signatures", page+1, len(sigs))
		collected = append(collected, sigs...)
		cursor = sigs[len(sigs)-1].Signature
	}

	// Oldest first across all pages.
	sort.SliceStable(collected, func(i, j int) bool {
		if collected[i].Slot != collected[j].Slot {
			return collected[i].Slot < collected[j].Slot
		}
		return collected[i].Signature < collected[j].Signature
	})

	processed := 0
	for _, sig := range collected {
		if ctx.Err() != nil {
			return processed, ctx.Err()
		}
		if sig.Err != nil {
			continue
		}
		if err := b.processSignature(ctx, sig.Signature); err != nil {
			b.logger.Printf("Skipping %s: %v", sig.Signature, err)
			continue
		}
		processed++
	}
	return processed, nil
}

func (b *backfiller) processSignature(ctx context.Context, signature string) error {
	tx, err := b.rpc.GetTransaction(ctx, signature)
	if err != nil {
		return err
	}
	if tx == nil || tx.Failed() {
		return nil
	}

	for _, mint := range classify.TargetMints(tx) {
		ev := b.classifier.Classify(tx, mint)
		if err := b.ensureTracked(ctx, tx, mint); err != nil {
			return err
		}
		if _, err := b.lifecycle.ApplyEvent(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}

// ensureTracked inserts a token record for a mint seen for the first time.
func (b *backfiller) ensureTracked(ctx context.Context, tx *solana.ParsedTransaction, mint string) error {
	_, err := b.tokens.GetByMint(ctx, mint)
	if err == nil {
		return nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return err
	}

	t := &domain.Token{
		Mint:      mint,
		CreatedAt: tx.BlockTime * 1000,
	}
	if len(tx.AccountKeys) > 0 {
		t.Creator = tx.AccountKeys[0]
	}
	if meta, metaErr := b.metadata.Fetch(ctx, mint); metaErr == nil {
		t.Symbol = meta.Symbol
		t.Name = meta.Name
		t.Supply = meta.Supply
	}

	err = b.lifecycle.Track(ctx, t)
	if errors.Is(err, storage.ErrDuplicateKey) {
		return nil
	}
	return err
}

func createTokenStore(ctx context.Context, cfg *config.Config) (storage.TokenStore, func(), error) {
	if cfg.StorageBackend != "postgres" {
		return memory.NewTokenStore(), func() {}, nil
	}
	pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, nil, err
	}
	if err := pgstore.RunMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return pgstore.NewTokenStore(pool), pool.Close, nil
}
