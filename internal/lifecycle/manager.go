// Package lifecycle owns the mutable state of every tracked token: it
// consumes classified events and metric snapshots, recomputes the potential
// score, and drives the new -> tracked -> graduated|stale state machine.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"launchwatch/internal/domain"
	"launchwatch/internal/pricefeed"
	"launchwatch/internal/scoring"
	"launchwatch/internal/storage"
)

// ErrInvalidEvent is returned when an event fails boundary validation.
var ErrInvalidEvent = errors.New("lifecycle: invalid event")

// GraduationRule selects how a token graduates. The exact rule differs
// between deployments, so it is configuration rather than a constant.
type GraduationRule string

const (
	// GraduateByVolumeBand graduates when volume enters [lower, upper].
	GraduateByVolumeBand GraduationRule = "volume_band"
	// GraduateByScore graduates when the score reaches a threshold.
	GraduateByScore GraduationRule = "score_threshold"
)

// AlertSink receives alert payloads on threshold crossings. The lifecycle
// manager calls it at most once per token per alert type, after the flag
// transition has been durably persisted.
type AlertSink interface {
	Dispatch(ctx context.Context, a *domain.Alert)
}

// Config holds lifecycle policy.
type Config struct {
	// AlertThreshold is the score at which a high-potential alert fires. Default 80.
	AlertThreshold int
	// Graduation selects the graduation rule. Default GraduateByVolumeBand.
	Graduation GraduationRule
	// VolumeBandLower/Upper bound the graduation volume band. Defaults 50000/69000.
	VolumeBandLower float64
	VolumeBandUpper float64
	// GraduationScore is the score threshold for GraduateByScore. Default 90.
	GraduationScore int
	// StaleAfter is the inactivity window before a token goes stale. Default 24h.
	StaleAfter time.Duration
	// RecentSignatures sizes the per-token idempotence ring. Default 64.
	RecentSignatures int
	// PersistRetries bounds retries of a failed persistence write. Default 3.
	PersistRetries int
	// PersistBaseDelay is the backoff base for persistence retries. Default 1s.
	PersistBaseDelay time.Duration
	// Quoter converts the SOL leg of trades to quote currency, so volume,
	// liquidity and the graduation band are denominated in it. Optional:
	// without a quoter (or when an event carries no SOL leg) aggregates fall
	// back to raw token units.
	Quoter pricefeed.Quoter
	// Logger defaults to log.Default().
	Logger *log.Logger
}

func (c *Config) applyDefaults() {
	if c.AlertThreshold <= 0 {
		c.AlertThreshold = 80
	}
	if c.Graduation == "" {
		c.Graduation = GraduateByVolumeBand
	}
	if c.VolumeBandLower <= 0 {
		c.VolumeBandLower = 50_000
	}
	if c.VolumeBandUpper <= 0 {
		c.VolumeBandUpper = 69_000
	}
	if c.GraduationScore <= 0 {
		c.GraduationScore = 90
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = 24 * time.Hour
	}
	if c.RecentSignatures <= 0 {
		c.RecentSignatures = 64
	}
	if c.PersistRetries <= 0 {
		c.PersistRetries = 3
	}
	if c.PersistBaseDelay <= 0 {
		c.PersistBaseDelay = time.Second
	}
	if c.Logger == nil {
		c.Logger = log.Default()
	}
}

// Manager is the single writer of token score, graduation and alert fields.
// Per-token updates are serialized by a per-mint lock; different tokens
// update concurrently.
type Manager struct {
	tokens storage.TokenStore
	series storage.MetricTimeseriesStore // optional audit timeseries
	events storage.EventStore            // optional audit trail
	sink   AlertSink                     // optional

	cfg    Config
	quoter pricefeed.Quoter
	logger *log.Logger
	now    func() time.Time

	mu       sync.Mutex
	locks    map[string]*sync.Mutex
	recent   map[string]*sigRing
	velocity *velocityTracker
}

// NewManager creates a lifecycle manager. The timeseries store, event store
// and alert sink may be nil; the corresponding side effects are then skipped.
func NewManager(tokens storage.TokenStore, series storage.MetricTimeseriesStore, events storage.EventStore, sink AlertSink, cfg Config) (*Manager, error) {
	if tokens == nil {
		return nil, errors.New("lifecycle: token store is required")
	}
	cfg.applyDefaults()
	return &Manager{
		tokens:   tokens,
		series:   series,
		events:   events,
		sink:     sink,
		cfg:      cfg,
		quoter:   cfg.Quoter,
		logger:   cfg.Logger,
		now:      time.Now,
		locks:    make(map[string]*sync.Mutex),
		recent:   make(map[string]*sigRing),
		velocity: newVelocityTracker(),
	}, nil
}

// Track registers a newly discovered token. Returns storage.ErrDuplicateKey
// when the mint is already known.
func (m *Manager) Track(ctx context.Context, t *domain.Token) error {
	if t == nil || t.Mint == "" {
		return ErrInvalidEvent
	}
	nowMs := m.now().UnixMilli()
	if t.CreatedAt == 0 {
		t.CreatedAt = nowMs
	}
	t.State = domain.StateNew
	t.Active = true
	t.UpdatedAt = nowMs
	return m.tokens.Insert(ctx, t)
}

// ApplyEvent folds one classified event into the token's running aggregates
// and recomputes the score. Applying the same signature twice is a no-op:
// the token record remembers the last N processed signatures.
func (m *Manager) ApplyEvent(ctx context.Context, ev *domain.ClassifiedEvent) (*domain.Token, error) {
	if ev == nil || ev.Mint == "" || ev.Signature == "" {
		return nil, ErrInvalidEvent
	}

	unlock := m.lockToken(ev.Mint)
	defer unlock()

	ring, err := m.ringFor(ctx, ev.Mint)
	if err != nil {
		return nil, err
	}
	if ring.contains(ev.Signature) {
		return m.tokens.GetByMint(ctx, ev.Mint)
	}

	nowMs := m.now().UnixMilli()
	eventMs := ev.BlockTime * 1000
	if eventMs == 0 {
		eventMs = nowMs
	}

	// The updated signature window is persisted inside the same write as the
	// aggregates, so idempotence survives a crash between apply and commit.
	recent := ring.snapshotWith(ev.Signature)

	solPrice := m.quote(ctx)

	var crossedAlert, graduatedNow bool
	tok, err := m.updateToken(ctx, ev.Mint, func(t *domain.Token) {
		crossedAlert, graduatedNow = false, false
		t.RecentSignatures = recent

		if ev.Type != domain.EventUnknown {
			t.TxCount++
		}

		tokenAmount := math.Abs(ev.Amount)
		quoteValue := ev.QuoteAmount * solPrice

		switch ev.Type {
		case domain.EventBuy, domain.EventSell:
			if quoteValue > 0 {
				t.Volume += quoteValue
				if tokenAmount > 0 {
					t.Price = quoteValue / tokenAmount
				}
			} else {
				t.Volume += tokenAmount
			}
			t.LastTradeTime = eventMs
		case domain.EventLiquidityAdd:
			if quoteValue > 0 {
				t.Liquidity += quoteValue
			} else {
				t.Liquidity += math.Abs(ev.LiquidityDelta)
			}
		case domain.EventLiquidityRemove:
			removed := math.Abs(ev.LiquidityDelta)
			if quoteValue > 0 {
				removed = quoteValue
			}
			t.Liquidity = math.Max(0, t.Liquidity-removed)
		case domain.EventMint:
			t.Supply += ev.Amount
		case domain.EventBurn:
			t.Supply = math.Max(0, t.Supply+ev.Amount) // amount is negative
		}

		m.recomputeScore(t, nowMs)
		graduatedNow = m.maybeGraduate(t, nowMs)
		crossedAlert = m.maybeAlert(t)
		t.UpdatedAt = nowMs
	})
	if err != nil {
		return nil, err
	}

	// Ring membership and velocity are recorded only after the durable write:
	// an event that failed to persist will be retried and must not be seen as
	// already applied, nor counted twice in the hour bucket when the conflict
	// path re-runs the mutation.
	ring.add(ev.Signature)
	if ev.Type != domain.EventUnknown {
		m.velocity.record(ev.Mint, eventMs)
	}
	m.audit(ctx, ev)
	m.emit(ctx, tok, crossedAlert, graduatedNow, nowMs)
	return tok, nil
}

// ApplyMetricSnapshot refreshes a token's live metrics, appends the
// observations to the timeseries and recomputes the score. The first
// successful snapshot moves a new token to tracked.
func (m *Manager) ApplyMetricSnapshot(ctx context.Context, mint string, snap *domain.MetricSnapshot) (*domain.Token, error) {
	if mint == "" || snap == nil {
		return nil, ErrInvalidEvent
	}

	unlock := m.lockToken(mint)
	defer unlock()

	nowMs := m.now().UnixMilli()
	snapMs := snap.TimestampMs
	if snapMs == 0 {
		snapMs = nowMs
	}

	var crossedAlert, graduatedNow bool
	tok, err := m.updateToken(ctx, mint, func(t *domain.Token) {
		crossedAlert, graduatedNow = false, false

		if snap.Volume > 0 {
			t.VolumeGrowthRate = scoring.VolumeGrowthRate(t.Volume, snap.Volume)
			t.Volume = snap.Volume
		}
		if snap.Price > 0 {
			t.Price = snap.Price
		}
		if snap.HolderCount > 0 {
			t.HolderCount = snap.HolderCount
		}
		if snap.Liquidity > 0 {
			t.Liquidity = snap.Liquidity
		}
		if snap.Supply > 0 {
			t.Supply = snap.Supply
		}
		if len(snap.Holders) > 0 {
			t.HolderDistribution = snap.Holders
		}

		if t.State == domain.StateNew {
			t.State = domain.StateTracked
		}

		m.recomputeScore(t, nowMs)
		graduatedNow = m.maybeGraduate(t, nowMs)
		crossedAlert = m.maybeAlert(t)
		t.UpdatedAt = nowMs
	})
	if err != nil {
		return nil, err
	}

	m.appendSeries(ctx, tok, snap, snapMs)
	m.emit(ctx, tok, crossedAlert, graduatedNow, nowMs)
	return tok, nil
}

// SweepStale marks tokens inactive past the retention window as stale.
// Graduated tokens are terminal and never become stale. Returns the number
// of tokens transitioned.
func (m *Manager) SweepStale(ctx context.Context) (int, error) {
	nowMs := m.now().UnixMilli()
	cutoff := nowMs - m.cfg.StaleAfter.Milliseconds()

	active, err := m.tokens.ListActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("list active tokens: %w", err)
	}

	swept := 0
	for _, t := range active {
		if t.Graduated || t.UpdatedAt >= cutoff {
			continue
		}
		mint := t.Mint

		unlock := m.lockToken(mint)
		_, err := m.updateToken(ctx, mint, func(t *domain.Token) {
			if t.Graduated || t.UpdatedAt >= cutoff {
				return
			}
			t.State = domain.StateStale
			t.Active = false
			t.UpdatedAt = nowMs
		})
		unlock()
		if err != nil {
			m.logger.Printf("lifecycle: stale sweep of %s failed: %v", mint, err)
			continue
		}
		m.velocity.forget(mint)
		swept++
	}
	return swept, nil
}

// ShouldAlert reports whether a token would fire a high-potential alert
// right now: score at or above the threshold with no alert sent yet.
func (m *Manager) ShouldAlert(t *domain.Token) bool {
	return t != nil && !t.AlertSent && t.PotentialScore >= m.cfg.AlertThreshold
}

// recomputeScore recalculates the composite score from current metrics.
func (m *Manager) recomputeScore(t *domain.Token, nowMs int64) {
	ageHours := float64(nowMs-t.CreatedAt) / float64(hourMs)
	if ageHours < 0 {
		ageHours = 0
	}

	// Floor the rate divisor at one minute so a token seconds old does not
	// report an absurd transactions-per-hour figure.
	rateHours := math.Max(ageHours, 1.0/60.0)
	txPerHour := float64(t.TxCount) / rateHours

	lastHour, prevHour := m.velocity.counts(t.Mint, nowMs)

	result := scoring.Score(scoring.Input{
		Liquidity:   t.Liquidity,
		HolderCount: t.HolderCount,
		Volume:      t.Volume,
		AgeHours:    ageHours,
		TxPerHour:   txPerHour,
		TxLastHour:  lastHour,
		TxPrevHour:  prevHour,
		TopTenShare: scoring.TopTenShare(t.HolderDistribution, t.Supply),
	})
	t.PotentialScore = result.Score
	t.ConcentrationRisk = result.ConcentrationRisk
	t.Patterns = detectPatterns(t, result.Components.Velocity)
}

// detectPatterns derives the current pattern tags from a token's metrics.
// Tags describe the present state and are recomputed in full on every
// update rather than accumulated.
func detectPatterns(t *domain.Token, velocityScore int) []string {
	var tags []string
	if t.VolumeGrowthRate >= 2 {
		tags = append(tags, "volume_spike")
	}
	if velocityScore >= 15 {
		tags = append(tags, "high_velocity")
	}
	if t.ConcentrationRisk == domain.RiskHigh || t.ConcentrationRisk == domain.RiskManipulated {
		tags = append(tags, "concentrated_supply")
	}
	if t.Liquidity > 0 && t.Volume/t.Liquidity >= 10 {
		tags = append(tags, "thin_liquidity")
	}
	return tags
}

// maybeGraduate applies the configured graduation rule. Graduation is
// monotonic: the flag and timestamp are set once and never revert.
func (m *Manager) maybeGraduate(t *domain.Token, nowMs int64) bool {
	if t.Graduated || t.State != domain.StateTracked {
		return false
	}

	var graduate bool
	switch m.cfg.Graduation {
	case GraduateByScore:
		graduate = t.PotentialScore >= m.cfg.GraduationScore
	default:
		graduate = t.Volume >= m.cfg.VolumeBandLower && t.Volume <= m.cfg.VolumeBandUpper
	}
	if !graduate {
		return false
	}

	t.Graduated = true
	at := nowMs
	t.GraduatedAt = &at
	t.State = domain.StateGraduated
	return true
}

// maybeAlert marks the alert-sent flag on the first threshold crossing. The
// flag is persisted together with the rest of the update, so delivery and
// marking form one logical unit.
func (m *Manager) maybeAlert(t *domain.Token) bool {
	if t.AlertSent || t.PotentialScore < m.cfg.AlertThreshold {
		return false
	}
	t.AlertSent = true
	return true
}

// emit forwards alert payloads after the flag transitions were durably
// persisted. Delivery failures are the sink's concern and never roll back
// state.
func (m *Manager) emit(ctx context.Context, t *domain.Token, crossedAlert, graduatedNow bool, nowMs int64) {
	if m.sink == nil {
		return
	}
	if crossedAlert {
		m.sink.Dispatch(ctx, &domain.Alert{
			Type:         domain.AlertHighPotential,
			TokenAddress: t.Mint,
			TokenSymbol:  t.Symbol,
			Score:        t.PotentialScore,
			Timestamp:    nowMs,
		})
	}
	if graduatedNow {
		m.sink.Dispatch(ctx, &domain.Alert{
			Type:         domain.AlertGraduated,
			TokenAddress: t.Mint,
			TokenSymbol:  t.Symbol,
			Score:        t.PotentialScore,
			Timestamp:    nowMs,
		})
	}
}

// quote returns the current SOL reference price, or zero when no quoter is
// configured or the fetch failed. A zero return makes callers fall back to
// raw token units.
func (m *Manager) quote(ctx context.Context) float64 {
	if m.quoter == nil {
		return 0
	}
	price, err := m.quoter.SolPrice(ctx)
	if err != nil {
		m.logger.Printf("lifecycle: quote price fetch failed: %v", err)
		return 0
	}
	return price
}

// audit appends the event to the audit store. Duplicates are expected when a
// batch is replayed after a partial failure and are not errors.
func (m *Manager) audit(ctx context.Context, ev *domain.ClassifiedEvent) {
	if m.events == nil {
		return
	}
	if err := m.events.Insert(ctx, ev); err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
		m.logger.Printf("lifecycle: event audit write failed for %s: %v", ev.Signature, err)
	}
}

// appendSeries records the snapshot observations. The token row is the
// durable truth; a failed timeseries append is reported, not fatal.
func (m *Manager) appendSeries(ctx context.Context, t *domain.Token, snap *domain.MetricSnapshot, atMs int64) {
	if m.series == nil {
		return
	}
	points := []*domain.MetricPoint{
		{Mint: t.Mint, Metric: domain.MetricVolume, TimestampMs: atMs, Value: snap.Volume},
		{Mint: t.Mint, Metric: domain.MetricPrice, TimestampMs: atMs, Value: snap.Price},
		{Mint: t.Mint, Metric: domain.MetricHolderCount, TimestampMs: atMs, Value: float64(snap.HolderCount)},
		{Mint: t.Mint, Metric: domain.MetricLiquidity, TimestampMs: atMs, Value: snap.Liquidity},
	}
	if err := m.series.InsertBulk(ctx, points); err != nil {
		m.logger.Printf("lifecycle: timeseries append failed for %s: %v", t.Mint, err)
	}
}

// updateToken runs one read-modify-write cycle under the caller-held token
// lock: fresh read, mutate, persist with bounded retries. A version conflict
// is retried once with a fresh read and re-applied mutation. On exhaustion
// the in-memory copy is discarded, leaving state at its last durable value.
func (m *Manager) updateToken(ctx context.Context, mint string, mutate func(*domain.Token)) (*domain.Token, error) {
	t, err := m.tokens.GetByMint(ctx, mint)
	if err != nil {
		return nil, err
	}
	mutate(t)

	var lastErr error
	for attempt := 0; attempt <= m.cfg.PersistRetries; attempt++ {
		if attempt > 0 {
			delay := m.cfg.PersistBaseDelay * time.Duration(1<<(attempt-1))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		err := m.tokens.Update(ctx, t)
		if err == nil {
			return t, nil
		}
		if errors.Is(err, storage.ErrConflict) {
			// Concurrent write slipped past the lock (another process).
			// One fresh read and re-apply, then give up.
			fresh, readErr := m.tokens.GetByMint(ctx, mint)
			if readErr != nil {
				return nil, readErr
			}
			mutate(fresh)
			updErr := m.tokens.Update(ctx, fresh)
			if updErr == nil {
				return fresh, nil
			}
			lastErr = updErr
			break
		}
		lastErr = err
	}

	m.logger.Printf("lifecycle: durable update of %s failed, rolling back: %v", mint, lastErr)
	return nil, fmt.Errorf("persist token %s: %w", mint, lastErr)
}

func (m *Manager) lockToken(mint string) func() {
	m.mu.Lock()
	l, ok := m.locks[mint]
	if !ok {
		l = &sync.Mutex{}
		m.locks[mint] = l
	}
	m.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// ringFor returns the token's signature ring, rebuilding it from the
// persisted snapshot the first time a token is touched after startup.
// Callers hold the per-mint lock.
func (m *Manager) ringFor(ctx context.Context, mint string) (*sigRing, error) {
	m.mu.Lock()
	r, ok := m.recent[mint]
	m.mu.Unlock()
	if ok {
		return r, nil
	}

	t, err := m.tokens.GetByMint(ctx, mint)
	if err != nil {
		return nil, err
	}
	r = newSigRingFrom(m.cfg.RecentSignatures, t.RecentSignatures)

	m.mu.Lock()
	m.recent[mint] = r
	m.mu.Unlock()
	return r, nil
}
