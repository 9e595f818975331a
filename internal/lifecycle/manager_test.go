package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"launchwatch/internal/domain"
	"launchwatch/internal/pricefeed"
	"launchwatch/internal/storage"
	"launchwatch/internal/storage/memory"
)

type captureSink struct {
	mu     sync.Mutex
	alerts []*domain.Alert
}

func (s *captureSink) Dispatch(_ context.Context, a *domain.Alert) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, a)
}

func (s *captureSink) byType(t domain.AlertType) []*domain.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Alert
	for _, a := range s.alerts {
		if a.Type == t {
			out = append(out, a)
		}
	}
	return out
}

func newTestManager(t *testing.T, cfg Config) (*Manager, *memory.TokenStore, *captureSink) {
	t.Helper()
	tokens := memory.NewTokenStore()
	sink := &captureSink{}
	m, err := NewManager(tokens, memory.NewMetricTimeseriesStore(), memory.NewEventStore(), sink, cfg)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	return m, tokens, sink
}

func trackToken(t *testing.T, m *Manager, mint string, createdAt int64) {
	t.Helper()
	err := m.Track(context.Background(), &domain.Token{Mint: mint, Symbol: "TST", CreatedAt: createdAt})
	if err != nil {
		t.Fatalf("Track failed: %v", err)
	}
}

func TestApplyEvent_Aggregates(t *testing.T) {
	m, _, _ := newTestManager(t, Config{})
	base := time.Now()
	m.now = func() time.Time { return base }
	ctx := context.Background()

	trackToken(t, m, "m1", base.UnixMilli())

	tok, err := m.ApplyEvent(ctx, &domain.ClassifiedEvent{
		Signature: "s1", Mint: "m1", Type: domain.EventBuy, Amount: 1500, BlockTime: base.Unix(),
	})
	if err != nil {
		t.Fatalf("ApplyEvent failed: %v", err)
	}
	if tok.Volume != 1500 || tok.TxCount != 1 {
		t.Errorf("Expected volume 1500 tx 1, got %v/%d", tok.Volume, tok.TxCount)
	}
	if tok.LastTradeTime != base.Unix()*1000 {
		t.Errorf("Expected last trade time set, got %d", tok.LastTradeTime)
	}

	tok, err = m.ApplyEvent(ctx, &domain.ClassifiedEvent{
		Signature: "s2", Mint: "m1", Type: domain.EventSell, Amount: -500, BlockTime: base.Unix(),
	})
	if err != nil {
		t.Fatalf("ApplyEvent failed: %v", err)
	}
	// Sell magnitude still counts toward traded volume.
	if tok.Volume != 2000 || tok.TxCount != 2 {
		t.Errorf("Expected volume 2000 tx 2, got %v/%d", tok.Volume, tok.TxCount)
	}

	tok, err = m.ApplyEvent(ctx, &domain.ClassifiedEvent{
		Signature: "s3", Mint: "m1", Type: domain.EventLiquidityAdd, LiquidityDelta: -6000, BlockTime: base.Unix(),
	})
	if err != nil {
		t.Fatalf("ApplyEvent failed: %v", err)
	}
	if tok.Liquidity != 6000 {
		t.Errorf("Expected liquidity 6000, got %v", tok.Liquidity)
	}
}

func TestApplyEvent_Idempotent(t *testing.T) {
	m, _, _ := newTestManager(t, Config{})
	base := time.Now()
	m.now = func() time.Time { return base }
	ctx := context.Background()

	trackToken(t, m, "m1", base.UnixMilli())

	ev := &domain.ClassifiedEvent{Signature: "dup", Mint: "m1", Type: domain.EventBuy, Amount: 100, BlockTime: base.Unix()}
	first, err := m.ApplyEvent(ctx, ev)
	if err != nil {
		t.Fatalf("ApplyEvent failed: %v", err)
	}

	second, err := m.ApplyEvent(ctx, ev)
	if err != nil {
		t.Fatalf("Replay failed: %v", err)
	}
	if second.Volume != first.Volume || second.TxCount != first.TxCount {
		t.Errorf("Replay double-counted: %v/%d vs %v/%d",
			first.Volume, first.TxCount, second.Volume, second.TxCount)
	}
}

func TestScoreBounds_AnySequence(t *testing.T) {
	m, _, _ := newTestManager(t, Config{})
	base := time.Now()
	m.now = func() time.Time { return base }
	ctx := context.Background()

	trackToken(t, m, "m1", base.UnixMilli())

	events := []*domain.ClassifiedEvent{
		{Signature: "a", Mint: "m1", Type: domain.EventBuy, Amount: 1e9, BlockTime: base.Unix()},
		{Signature: "b", Mint: "m1", Type: domain.EventLiquidityAdd, LiquidityDelta: -1e8, BlockTime: base.Unix()},
		{Signature: "c", Mint: "m1", Type: domain.EventBurn, Amount: -1e12, BlockTime: base.Unix()},
		{Signature: "d", Mint: "m1", Type: domain.EventUnknown},
	}
	for _, ev := range events {
		tok, err := m.ApplyEvent(ctx, ev)
		if err != nil {
			t.Fatalf("ApplyEvent %s failed: %v", ev.Signature, err)
		}
		if tok.PotentialScore < 0 || tok.PotentialScore > 100 {
			t.Fatalf("Score out of bounds after %s: %d", ev.Signature, tok.PotentialScore)
		}
	}

	snap := &domain.MetricSnapshot{Volume: 1e9, HolderCount: 100000, Liquidity: 1e9, Price: 5}
	tok, err := m.ApplyMetricSnapshot(ctx, "m1", snap)
	if err != nil {
		t.Fatalf("ApplyMetricSnapshot failed: %v", err)
	}
	if tok.PotentialScore < 0 || tok.PotentialScore > 100 {
		t.Errorf("Score out of bounds after snapshot: %d", tok.PotentialScore)
	}
}

func TestSnapshot_NewToTracked(t *testing.T) {
	m, _, _ := newTestManager(t, Config{})
	ctx := context.Background()
	trackToken(t, m, "m1", time.Now().UnixMilli())

	tok, err := m.ApplyMetricSnapshot(ctx, "m1", &domain.MetricSnapshot{Price: 0.01, HolderCount: 5})
	if err != nil {
		t.Fatalf("ApplyMetricSnapshot failed: %v", err)
	}
	if tok.State != domain.StateTracked {
		t.Errorf("Expected tracked after first snapshot, got %s", tok.State)
	}
}

func TestGraduation_VolumeBandMonotonic(t *testing.T) {
	m, _, sink := newTestManager(t, Config{})
	base := time.Now()
	m.now = func() time.Time { return base }
	ctx := context.Background()

	trackToken(t, m, "m1", base.UnixMilli())

	// First snapshot moves to tracked, volume below the band.
	if _, err := m.ApplyMetricSnapshot(ctx, "m1", &domain.MetricSnapshot{Volume: 10_000}); err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}

	// Volume 55,000 is inside the default 50k-69k band.
	tok, err := m.ApplyMetricSnapshot(ctx, "m1", &domain.MetricSnapshot{Volume: 55_000})
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if !tok.Graduated || tok.State != domain.StateGraduated {
		t.Fatalf("Expected graduation at 55k, got %+v", tok)
	}
	if tok.GraduatedAt == nil {
		t.Fatal("Expected graduation timestamp set")
	}
	gradAt := *tok.GraduatedAt

	// A later volume of 40,000 does not revert the flag or timestamp.
	tok, err = m.ApplyMetricSnapshot(ctx, "m1", &domain.MetricSnapshot{Volume: 40_000})
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if !tok.Graduated || tok.State != domain.StateGraduated {
		t.Errorf("Graduation reverted: %+v", tok)
	}
	if tok.GraduatedAt == nil || *tok.GraduatedAt != gradAt {
		t.Errorf("Graduation timestamp changed: %v", tok.GraduatedAt)
	}

	if got := sink.byType(domain.AlertGraduated); len(got) != 1 {
		t.Errorf("Expected exactly 1 graduation alert, got %d", len(got))
	}
}

func TestAlert_AtMostOnce(t *testing.T) {
	// Score threshold 1 so any scoring event crosses it.
	m, _, sink := newTestManager(t, Config{AlertThreshold: 1})
	base := time.Now()
	m.now = func() time.Time { return base }
	ctx := context.Background()

	trackToken(t, m, "m1", base.UnixMilli())

	for i, sig := range []string{"s1", "s2", "s3"} {
		_, err := m.ApplyEvent(ctx, &domain.ClassifiedEvent{
			Signature: sig, Mint: "m1", Type: domain.EventBuy, Amount: float64(1000 * (i + 1)), BlockTime: base.Unix(),
		})
		if err != nil {
			t.Fatalf("ApplyEvent failed: %v", err)
		}
	}

	if got := sink.byType(domain.AlertHighPotential); len(got) != 1 {
		t.Fatalf("Expected exactly 1 high-potential alert, got %d", len(got))
	}

	tok, _ := m.tokens.GetByMint(ctx, "m1")
	if !tok.AlertSent {
		t.Error("Expected alert-sent flag persisted")
	}
	if m.ShouldAlert(tok) {
		t.Error("ShouldAlert must be false once the flag is set")
	}
}

func TestSweepStale(t *testing.T) {
	m, tokens, _ := newTestManager(t, Config{StaleAfter: time.Hour})
	base := time.Now()
	ctx := context.Background()

	// Token last touched two hours ago.
	m.now = func() time.Time { return base.Add(-2 * time.Hour) }
	trackToken(t, m, "old", base.Add(-3*time.Hour).UnixMilli())
	if _, err := m.ApplyMetricSnapshot(ctx, "old", &domain.MetricSnapshot{Price: 1}); err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}

	// Graduated token of the same age stays terminal-graduated.
	trackToken(t, m, "grad", base.Add(-3*time.Hour).UnixMilli())
	m.ApplyMetricSnapshot(ctx, "grad", &domain.MetricSnapshot{Volume: 10_000})
	if _, err := m.ApplyMetricSnapshot(ctx, "grad", &domain.MetricSnapshot{Volume: 55_000}); err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}

	// Fresh token.
	m.now = func() time.Time { return base }
	trackToken(t, m, "fresh", base.UnixMilli())
	if _, err := m.ApplyMetricSnapshot(ctx, "fresh", &domain.MetricSnapshot{Price: 1}); err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}

	swept, err := m.SweepStale(ctx)
	if err != nil {
		t.Fatalf("SweepStale failed: %v", err)
	}
	if swept != 1 {
		t.Fatalf("Expected 1 swept token, got %d", swept)
	}

	old, _ := tokens.GetByMint(ctx, "old")
	if old.State != domain.StateStale || old.Active {
		t.Errorf("Expected old token stale+inactive, got %+v", old)
	}
	grad, _ := tokens.GetByMint(ctx, "grad")
	if grad.State != domain.StateGraduated {
		t.Errorf("Graduated token must stay graduated, got %s", grad.State)
	}
	fresh, _ := tokens.GetByMint(ctx, "fresh")
	if fresh.State != domain.StateTracked {
		t.Errorf("Fresh token must stay tracked, got %s", fresh.State)
	}
}

func TestPatternDetection(t *testing.T) {
	m, _, _ := newTestManager(t, Config{})
	base := time.Now()
	m.now = func() time.Time { return base }
	ctx := context.Background()

	trackToken(t, m, "m1", base.UnixMilli())

	if _, err := m.ApplyMetricSnapshot(ctx, "m1", &domain.MetricSnapshot{Volume: 1_000}); err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}

	// Volume 10x and a top holder owning 90% of supply.
	tok, err := m.ApplyMetricSnapshot(ctx, "m1", &domain.MetricSnapshot{
		Volume: 10_000,
		Supply: 1_000_000,
		Holders: []domain.HolderBalance{
			{Address: "whale", Balance: 900_000},
		},
	})
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}

	want := map[string]bool{"volume_spike": false, "concentrated_supply": false}
	for _, tag := range tok.Patterns {
		if _, ok := want[tag]; ok {
			want[tag] = true
		}
	}
	for tag, found := range want {
		if !found {
			t.Errorf("Expected pattern %q, got %v", tag, tok.Patterns)
		}
	}

	// Patterns reflect the present state: a flat follow-up clears the spike.
	tok, err = m.ApplyMetricSnapshot(ctx, "m1", &domain.MetricSnapshot{Volume: 10_000})
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	for _, tag := range tok.Patterns {
		if tag == "volume_spike" {
			t.Errorf("Stale spike tag survived flat volume: %v", tok.Patterns)
		}
	}
}

// failingTokenStore fails every Update to exercise rollback.
type failingTokenStore struct {
	storage.TokenStore
}

func (s *failingTokenStore) Update(context.Context, *domain.Token) error {
	return errors.New("disk on fire")
}

func TestApplyEvent_PersistFailureRollsBack(t *testing.T) {
	inner := memory.NewTokenStore()
	m, err := NewManager(&failingTokenStore{TokenStore: inner}, nil, nil, nil, Config{
		PersistRetries:   1,
		PersistBaseDelay: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	base := time.Now()
	m.now = func() time.Time { return base }
	ctx := context.Background()

	if err := m.Track(ctx, &domain.Token{Mint: "m1", CreatedAt: base.UnixMilli()}); err != nil {
		t.Fatalf("Track failed: %v", err)
	}

	ev := &domain.ClassifiedEvent{Signature: "s1", Mint: "m1", Type: domain.EventBuy, Amount: 100, BlockTime: base.Unix()}
	if _, err := m.ApplyEvent(ctx, ev); err == nil {
		t.Fatal("Expected persist failure to surface")
	}

	// Durable state is untouched and the signature was not consumed.
	tok, _ := inner.GetByMint(ctx, "m1")
	if tok.Volume != 0 || tok.TxCount != 0 {
		t.Errorf("State changed despite failed persist: %+v", tok)
	}
	ring, err := m.ringFor(ctx, "m1")
	if err != nil {
		t.Fatalf("ringFor failed: %v", err)
	}
	if ring.contains("s1") {
		t.Error("Signature must not be marked processed after rollback")
	}
	if len(tok.RecentSignatures) != 0 {
		t.Errorf("Persisted signature window changed despite failed persist: %v", tok.RecentSignatures)
	}
}

func TestApplyEvent_IdempotentAcrossRestarts(t *testing.T) {
	tokens := memory.NewTokenStore()
	base := time.Now()
	ctx := context.Background()

	m1, err := NewManager(tokens, nil, nil, nil, Config{})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	m1.now = func() time.Time { return base }

	if err := m1.Track(ctx, &domain.Token{Mint: "m1", CreatedAt: base.UnixMilli()}); err != nil {
		t.Fatalf("Track failed: %v", err)
	}

	ev := &domain.ClassifiedEvent{Signature: "sig-a", Mint: "m1", Type: domain.EventBuy, Amount: 500, BlockTime: base.Unix()}
	tok, err := m1.ApplyEvent(ctx, ev)
	if err != nil {
		t.Fatalf("ApplyEvent failed: %v", err)
	}
	if tok.Volume != 500 || tok.TxCount != 1 {
		t.Fatalf("Expected volume 500 tx 1, got %v/%d", tok.Volume, tok.TxCount)
	}
	if len(tok.RecentSignatures) != 1 || tok.RecentSignatures[0] != "sig-a" {
		t.Fatalf("Expected persisted signature window [sig-a], got %v", tok.RecentSignatures)
	}

	// A fresh manager over the same store stands in for a restarted process:
	// its in-memory state is empty, so only the persisted window can veto the replay.
	m2, err := NewManager(tokens, nil, nil, nil, Config{})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	m2.now = func() time.Time { return base }

	tok, err = m2.ApplyEvent(ctx, ev)
	if err != nil {
		t.Fatalf("Replayed ApplyEvent failed: %v", err)
	}
	if tok.Volume != 500 || tok.TxCount != 1 {
		t.Errorf("Replay after restart double-counted: volume=%v txCount=%d, want volume=500 txCount=1", tok.Volume, tok.TxCount)
	}
}

// conflictOnceTokenStore reports a version conflict on the first Update to
// exercise the fresh-read retry path.
type conflictOnceTokenStore struct {
	storage.TokenStore
	conflicted bool
}

func (s *conflictOnceTokenStore) Update(ctx context.Context, t *domain.Token) error {
	if !s.conflicted {
		s.conflicted = true
		return storage.ErrConflict
	}
	return s.TokenStore.Update(ctx, t)
}

func TestApplyEvent_ConflictRetryCountsVelocityOnce(t *testing.T) {
	inner := memory.NewTokenStore()
	m, err := NewManager(&conflictOnceTokenStore{TokenStore: inner}, nil, nil, nil, Config{
		PersistRetries:   1,
		PersistBaseDelay: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	base := time.Now()
	m.now = func() time.Time { return base }
	ctx := context.Background()

	if err := m.Track(ctx, &domain.Token{Mint: "m1", CreatedAt: base.UnixMilli()}); err != nil {
		t.Fatalf("Track failed: %v", err)
	}

	tok, err := m.ApplyEvent(ctx, &domain.ClassifiedEvent{
		Signature: "s1", Mint: "m1", Type: domain.EventBuy, Amount: 100, BlockTime: base.Unix(),
	})
	if err != nil {
		t.Fatalf("ApplyEvent failed: %v", err)
	}
	if tok.TxCount != 1 {
		t.Errorf("Expected tx count 1 after conflict retry, got %d", tok.TxCount)
	}

	// The re-applied mutation must not count the event into the hour bucket twice.
	if last, _ := m.velocity.counts("m1", base.UnixMilli()); last != 1 {
		t.Errorf("Expected 1 event in the current hour bucket, got %d", last)
	}
}

func TestApplyEvent_QuoteCurrencyConversion(t *testing.T) {
	m, _, _ := newTestManager(t, Config{Quoter: pricefeed.StaticQuoter{Price: 200}})
	base := time.Now()
	m.now = func() time.Time { return base }
	ctx := context.Background()

	trackToken(t, m, "m1", base.UnixMilli())

	// 500 tokens bought for 1.5 SOL at $200/SOL: $300 of volume, $0.60 each.
	tok, err := m.ApplyEvent(ctx, &domain.ClassifiedEvent{
		Signature: "s1", Mint: "m1", Type: domain.EventBuy,
		Amount: 500, QuoteAmount: 1.5, BlockTime: base.Unix(),
	})
	if err != nil {
		t.Fatalf("ApplyEvent failed: %v", err)
	}
	if tok.Volume != 300 {
		t.Errorf("Expected volume 300 in quote currency, got %v", tok.Volume)
	}
	if tok.Price != 0.6 {
		t.Errorf("Expected trade-implied price 0.6, got %v", tok.Price)
	}

	tok, err = m.ApplyEvent(ctx, &domain.ClassifiedEvent{
		Signature: "s2", Mint: "m1", Type: domain.EventLiquidityAdd,
		LiquidityDelta: 10_000, QuoteAmount: 25, BlockTime: base.Unix(),
	})
	if err != nil {
		t.Fatalf("ApplyEvent failed: %v", err)
	}
	if tok.Liquidity != 5000 {
		t.Errorf("Expected liquidity 5000 in quote currency, got %v", tok.Liquidity)
	}

	// Without a quote leg the raw token amount still counts, so events from
	// plain transfers keep moving the aggregates.
	tok, err = m.ApplyEvent(ctx, &domain.ClassifiedEvent{
		Signature: "s3", Mint: "m1", Type: domain.EventBuy, Amount: 100, BlockTime: base.Unix(),
	})
	if err != nil {
		t.Fatalf("ApplyEvent failed: %v", err)
	}
	if tok.Volume != 400 {
		t.Errorf("Expected volume 400 after fallback event, got %v", tok.Volume)
	}
}

func TestGraduation_QuoteVolumeBand(t *testing.T) {
	m, _, sink := newTestManager(t, Config{Quoter: pricefeed.StaticQuoter{Price: 100}})
	base := time.Now()
	m.now = func() time.Time { return base }
	ctx := context.Background()

	trackToken(t, m, "m1", base.UnixMilli())
	// First snapshot moves the token to tracked.
	if _, err := m.ApplyMetricSnapshot(ctx, "m1", &domain.MetricSnapshot{HolderCount: 3}); err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}

	// 600 SOL at $100 lands the quote-currency volume inside the band even
	// though the raw token amount would overshoot it.
	tok, err := m.ApplyEvent(ctx, &domain.ClassifiedEvent{
		Signature: "s1", Mint: "m1", Type: domain.EventBuy,
		Amount: 2_000_000, QuoteAmount: 600, BlockTime: base.Unix(),
	})
	if err != nil {
		t.Fatalf("ApplyEvent failed: %v", err)
	}
	if !tok.Graduated {
		t.Fatalf("Expected graduation at quote volume %v", tok.Volume)
	}
	if got := sink.byType(domain.AlertGraduated); len(got) != 1 {
		t.Errorf("Expected one graduation alert, got %d", len(got))
	}
}
