// Package monitor drives the watch loop: it polls for new signatures,
// fetches and classifies the transactions, feeds the token lifecycle and
// periodically refreshes on-chain metrics.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"launchwatch/internal/classify"
	"launchwatch/internal/domain"
	"launchwatch/internal/lifecycle"
	"launchwatch/internal/metadata"
	"launchwatch/internal/observability"
	"launchwatch/internal/poller"
	"launchwatch/internal/pricefeed"
	"launchwatch/internal/solana"
	"launchwatch/internal/storage"
)

const (
	defaultPollInterval    = 10 * time.Second
	defaultRefreshInterval = time.Minute
	defaultSweepInterval   = 10 * time.Minute
	defaultFetchWorkers    = 8
)

// Options contains configuration for creating a Runner.
type Options struct {
	RPC        solana.RPCClient
	Poller     *poller.Poller
	Classifier *classify.Classifier
	Lifecycle  *lifecycle.Manager
	Tokens     storage.TokenStore

	// Metadata enriches newly discovered tokens. Optional.
	Metadata *metadata.Fetcher
	// Quoter provides the SOL/USD reference price. Optional.
	Quoter pricefeed.Quoter
	// Logs is a live log subscription that triggers an immediate poll
	// cycle when the monitored program is mentioned. Optional.
	Logs    solana.LogStream
	Program string

	PollInterval    time.Duration // Default: 10s
	RefreshInterval time.Duration // Default: 1m
	SweepInterval   time.Duration // Default: 10m
	FetchWorkers    int           // Default: 8
	Logger          *log.Logger
}

// Runner orchestrates continuous polling, classification and lifecycle
// updates for one monitored program.
type Runner struct {
	rpc        solana.RPCClient
	poller     *poller.Poller
	classifier *classify.Classifier
	lifecycle  *lifecycle.Manager
	tokens     storage.TokenStore
	metadata   *metadata.Fetcher
	quoter     pricefeed.Quoter
	logs       solana.LogStream
	program    string

	pollInterval    time.Duration
	refreshInterval time.Duration
	sweepInterval   time.Duration
	fetchWorkers    int
	logger          *log.Logger
}

// NewRunner creates a new monitor runner.
func NewRunner(opts Options) (*Runner, error) {
	if opts.RPC == nil {
		return nil, errors.New("monitor: rpc client is required")
	}
	if opts.Poller == nil {
		return nil, errors.New("monitor: poller is required")
	}
	if opts.Classifier == nil {
		return nil, errors.New("monitor: classifier is required")
	}
	if opts.Lifecycle == nil {
		return nil, errors.New("monitor: lifecycle manager is required")
	}
	if opts.Tokens == nil {
		return nil, errors.New("monitor: token store is required")
	}

	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = defaultRefreshInterval
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = defaultSweepInterval
	}
	if opts.FetchWorkers <= 0 {
		opts.FetchWorkers = defaultFetchWorkers
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}

	return &Runner{
		rpc:             opts.RPC,
		poller:          opts.Poller,
		classifier:      opts.Classifier,
		lifecycle:       opts.Lifecycle,
		tokens:          opts.Tokens,
		metadata:        opts.Metadata,
		quoter:          opts.Quoter,
		logs:            opts.Logs,
		program:         opts.Program,
		pollInterval:    opts.PollInterval,
		refreshInterval: opts.RefreshInterval,
		sweepInterval:   opts.SweepInterval,
		fetchWorkers:    opts.FetchWorkers,
		logger:          opts.Logger,
	}, nil
}

// Run starts the watch loop. It blocks until the context is cancelled;
// an in-flight batch is always finished (or abandoned uncommitted) before
// returning, so no signature is ever half-processed across restarts.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Println("Starting monitor runner...")

	var notifications <-chan solana.LogNotification
	if r.logs != nil && r.program != "" {
		var err error
		notifications, err = r.logs.Subscribe(ctx, r.program)
		if err != nil {
			return fmt.Errorf("subscribe to program logs: %w", err)
		}
		r.logger.Printf("Subscribed to log mentions of %s", r.program)
	}

	pollTicker := time.NewTicker(r.pollInterval)
	defer pollTicker.Stop()
	refreshTicker := time.NewTicker(r.refreshInterval)
	defer refreshTicker.Stop()
	sweepTicker := time.NewTicker(r.sweepInterval)
	defer sweepTicker.Stop()

	r.logger.Printf("Runner started, poll interval: %v, refresh interval: %v, sweep interval: %v",
		r.pollInterval, r.refreshInterval, r.sweepInterval)

	for {
		select {
		case <-ctx.Done():
			r.logger.Println("Runner stopping...")
			return ctx.Err()

		case <-pollTicker.C:
			r.runPollCycle(ctx)

		case _, ok := <-notifications:
			if !ok {
				r.logger.Println("Log notification channel closed")
				notifications = nil
				continue
			}
			// A live mention means fresh signatures are waiting; poll now
			// instead of waiting out the ticker. The seen-set dedupes.
			r.runPollCycle(ctx)

		case <-refreshTicker.C:
			r.refreshMetrics(ctx)

		case <-sweepTicker.C:
			r.runSweep(ctx)
		}
	}
}

// runPollCycle executes one poll-fetch-classify-apply-commit cycle. The
// checkpoint only advances when every signature of the batch was handled,
// so a mid-cycle error leaves the whole batch to be retried.
func (r *Runner) runPollCycle(ctx context.Context) {
	batch, err := r.poller.Poll(ctx)
	if err != nil {
		r.logger.Printf("Poll failed: %v", err)
		observability.RecordPollCycle("error")
		return
	}
	if batch.Empty() {
		observability.RecordPollCycle("empty")
		return
	}
	observability.RecordSignaturesFetched(len(batch.Signatures))

	txs, err := r.fetchTransactions(ctx, batch.Signatures)
	if err != nil {
		r.logger.Printf("Transaction fetch failed, batch retried next cycle: %v", err)
		observability.RecordPollCycle("error")
		return
	}

	if err := r.processTransactions(ctx, txs); err != nil {
		r.logger.Printf("Batch processing failed, batch retried next cycle: %v", err)
		observability.RecordPollCycle("error")
		return
	}

	if err := r.poller.Commit(ctx, batch); err != nil {
		r.logger.Printf("Commit failed: %v", err)
		observability.RecordPollCycle("error")
		return
	}

	slot, _ := r.poller.HighWaterMark()
	observability.UpdateHighWaterSlot(slot)
	observability.RecordPollCycle("committed")
	observability.RecordSuccessfulPoll(time.Now().Unix())
	r.logger.Printf("Committed batch of %d signatures at slot %d", len(batch.Signatures), slot)
}

// fetchTransactions pulls full transactions concurrently and returns them
// in chronological (slot, signature) order. Any fetch error fails the
// whole batch: partial processing would advance past unprocessed work.
func (r *Runner) fetchTransactions(ctx context.Context, sigs []solana.SignatureInfo) ([]*solana.ParsedTransaction, error) {
	results := make([]*solana.ParsedTransaction, len(sigs))
	errs := make([]error, len(sigs))

	jobs := make(chan int)
	var wg sync.WaitGroup
	workers := r.fetchWorkers
	if workers > len(sigs) {
		workers = len(sigs)
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				tx, err := r.rpc.GetTransaction(ctx, sigs[i].Signature)
				if err != nil {
					errs[i] = fmt.Errorf("get transaction %s: %w", sigs[i].Signature, err)
					continue
				}
				results[i] = tx
				observability.RecordTransactionFetched()
			}
		}()
	}
	for i := range sigs {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	txs := make([]*solana.ParsedTransaction, 0, len(results))
	for i, tx := range results {
		if tx == nil {
			// Pruned or not yet available on this node. Skipping is safe:
			// the signature stays unseen until the batch commits.
			r.logger.Printf("Transaction %s not found, skipping", sigs[i].Signature)
			observability.RecordSignatureSkipped("not_found")
			continue
		}
		txs = append(txs, tx)
	}

	sort.SliceStable(txs, func(i, j int) bool {
		if txs[i].Slot != txs[j].Slot {
			return txs[i].Slot < txs[j].Slot
		}
		return txs[i].Signature < txs[j].Signature
	})
	return txs, nil
}

// processTransactions classifies each transaction per mentioned mint and
// folds the events into the lifecycle in chronological order.
func (r *Runner) processTransactions(ctx context.Context, txs []*solana.ParsedTransaction) error {
	for _, tx := range txs {
		if tx.Failed() {
			observability.RecordSignatureSkipped("failed")
			continue
		}

		for _, mint := range classify.TargetMints(tx) {
			ev := r.classifier.Classify(tx, mint)
			observability.RecordEventClassified(string(ev.Type))

			if err := r.ensureTracked(ctx, tx, mint); err != nil {
				return fmt.Errorf("track %s: %w", mint, err)
			}
			if _, err := r.lifecycle.ApplyEvent(ctx, ev); err != nil {
				return fmt.Errorf("apply %s for %s: %w", ev.Signature, mint, err)
			}
		}
	}
	return nil
}

// ensureTracked inserts a token record for a mint seen for the first time,
// enriched with on-chain metadata when available.
func (r *Runner) ensureTracked(ctx context.Context, tx *solana.ParsedTransaction, mint string) error {
	_, err := r.tokens.GetByMint(ctx, mint)
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

	if r.metadata != nil {
		meta, metaErr := r.metadata.Fetch(ctx, mint)
		if metaErr != nil {
			r.logger.Printf("Metadata fetch for %s failed: %v", mint, metaErr)
		} else {
			t.Symbol = meta.Symbol
			t.Name = meta.Name
			t.Supply = meta.Supply
		}
	}

	err = r.lifecycle.Track(ctx, t)
	if errors.Is(err, storage.ErrDuplicateKey) {
		return nil
	}
	if err == nil {
		observability.RecordTokenTracked()
		r.logger.Printf("Tracking new token %s (%s)", mint, t.Symbol)
	}
	return err
}

// refreshMetrics re-reads supply and holder distribution for every active
// token and feeds the snapshots to the lifecycle. Failures are per-token:
// one broken mint must not starve the others.
func (r *Runner) refreshMetrics(ctx context.Context) {
	if r.quoter != nil {
		if price, err := r.quoter.SolPrice(ctx); err != nil {
			r.logger.Printf("SOL price fetch failed: %v", err)
		} else {
			observability.UpdateSolPrice(price)
		}
	}

	tokens, err := r.tokens.ListActive(ctx)
	if err != nil {
		r.logger.Printf("List active tokens failed: %v", err)
		return
	}
	observability.UpdateActiveTokens(len(tokens))

	for _, t := range tokens {
		if ctx.Err() != nil {
			return
		}
		if err := r.refreshToken(ctx, t); err != nil {
			r.logger.Printf("Metric refresh for %s failed: %v", t.Mint, err)
		}
	}
	observability.RecordSuccessfulRefresh(time.Now().Unix())
}

// bulkScanner is the capability check a gateway-backed RPC client exposes.
type bulkScanner interface {
	SupportsBulkScan(ctx context.Context) (bool, error)
}

func (r *Runner) refreshToken(ctx context.Context, tok *domain.Token) error {
	mint := tok.Mint
	snap := &domain.MetricSnapshot{
		TimestampMs: time.Now().UnixMilli(),
		// The trade-implied price so the price series carries real observations.
		Price: tok.Price,
	}

	supply, err := r.rpc.GetTokenSupply(ctx, mint)
	if err != nil {
		return fmt.Errorf("get token supply: %w", err)
	}
	if supply != nil {
		snap.Supply = supply.Amount
	}

	largest, err := r.rpc.GetTokenLargestAccounts(ctx, mint)
	if err != nil {
		return fmt.Errorf("get largest accounts: %w", err)
	}
	for _, acc := range largest {
		if acc.Amount > 0 {
			snap.Holders = append(snap.Holders, domain.HolderBalance{Address: acc.Address, Balance: acc.Amount})
			snap.HolderCount++
		}
	}

	// The largest-accounts list caps at 20 entries, so it undercounts any
	// healthy token. When the endpoint allows bulk scans, count the real
	// holder set; otherwise the capped count is the best available.
	if count, ok := r.countHolders(ctx, mint); ok {
		snap.HolderCount = count
	}

	_, err = r.lifecycle.ApplyMetricSnapshot(ctx, mint, snap)
	return err
}

// countHolders scans every token account of a mint, counting distinct owners
// with a nonzero balance. Reports ok=false when the endpoint does not allow
// bulk scans or the scan failed; callers then keep the capped count.
func (r *Runner) countHolders(ctx context.Context, mint string) (int, bool) {
	scanner, isScanner := r.rpc.(bulkScanner)
	if !isScanner {
		return 0, false
	}
	supported, err := scanner.SupportsBulkScan(ctx)
	if err != nil || !supported {
		return 0, false
	}

	accounts, err := r.rpc.GetTokenAccountsByMint(ctx, mint)
	if err != nil {
		r.logger.Printf("Holder scan for %s failed: %v", mint, err)
		return 0, false
	}
	owners := make(map[string]struct{}, len(accounts))
	for _, acc := range accounts {
		if acc.Amount > 0 {
			owners[acc.Address] = struct{}{}
		}
	}
	return len(owners), true
}

func (r *Runner) runSweep(ctx context.Context) {
	swept, err := r.lifecycle.SweepStale(ctx)
	if err != nil {
		r.logger.Printf("Stale sweep failed: %v", err)
		return
	}
	if swept > 0 {
		observability.RecordTokensSwept(swept)
		r.logger.Printf("Swept %d stale tokens", swept)
	}
}
