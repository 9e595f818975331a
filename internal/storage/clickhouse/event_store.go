package clickhouse

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"launchwatch/internal/domain"
	"launchwatch/internal/storage"
)

// EventStore implements storage.EventStore using ClickHouse for the audit
// trail of classified events.
type EventStore struct {
	conn *Conn
}

// NewEventStore creates a new EventStore.
func NewEventStore(conn *Conn) *EventStore {
	return &EventStore{conn: conn}
}

// Compile-time interface check.
var _ storage.EventStore = (*EventStore)(nil)

// Insert adds a new event. Returns ErrDuplicateKey if (signature, mint) exists.
func (s *EventStore) Insert(ctx context.Context, e *domain.ClassifiedEvent) error {
	return s.InsertBulk(ctx, []*domain.ClassifiedEvent{e})
}

// InsertBulk adds multiple events. Fails the entire batch on any duplicate.
// MergeTree does not enforce uniqueness at insert time; duplicates are checked
// explicitly before the batch is sent.
func (s *EventStore) InsertBulk(ctx context.Context, events []*domain.ClassifiedEvent) error {
	if len(events) == 0 {
		return nil
	}

	type key struct {
		signature string
		mint      string
	}
	seen := make(map[key]struct{}, len(events))
	for _, e := range events {
		if e == nil || e.Signature == "" || e.Mint == "" {
			return storage.ErrInvalidInput
		}
		k := key{e.Signature, e.Mint}
		if _, exists := seen[k]; exists {
			return storage.ErrDuplicateKey
		}
		seen[k] = struct{}{}
	}

	for _, e := range events {
		exists, err := s.exists(ctx, e.Signature, e.Mint)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		if exists {
			return storage.ErrDuplicateKey
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO classified_events (
			signature, mint, event_type, from_wallet, to_wallet,
			amount, liquidity_delta, wallets, slot, block_time, note
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, e := range events {
		err = batch.Append(
			e.Signature, e.Mint, string(e.Type), e.FromWallet, e.ToWallet,
			e.Amount, e.LiquidityDelta, e.Wallets, uint64(e.Slot), uint64(e.BlockTime), e.Note,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

func (s *EventStore) exists(ctx context.Context, signature, mint string) (bool, error) {
	var count uint64
	err := s.conn.QueryRow(ctx,
		`SELECT count() FROM classified_events WHERE signature = ? AND mint = ?`,
		signature, mint,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetByMint retrieves all events for a mint, ordered by (slot, signature) ASC.
func (s *EventStore) GetByMint(ctx context.Context, mint string) ([]*domain.ClassifiedEvent, error) {
	query := `
		SELECT signature, mint, event_type, from_wallet, to_wallet,
		       amount, liquidity_delta, wallets, slot, block_time, note
		FROM classified_events
		WHERE mint = ?
		ORDER BY slot ASC, signature ASC
	`

	rows, err := s.conn.Query(ctx, query, mint)
	if err != nil {
		return nil, fmt.Errorf("query by mint: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// GetByTimeRange retrieves events for a mint with block time within [start, end] (inclusive).
func (s *EventStore) GetByTimeRange(ctx context.Context, mint string, start, end int64) ([]*domain.ClassifiedEvent, error) {
	query := `
		SELECT signature, mint, event_type, from_wallet, to_wallet,
		       amount, liquidity_delta, wallets, slot, block_time, note
		FROM classified_events
		WHERE mint = ? AND block_time >= ? AND block_time <= ?
		ORDER BY slot ASC, signature ASC
	`

	rows, err := s.conn.Query(ctx, query, mint, uint64(start), uint64(end))
	if err != nil {
		return nil, fmt.Errorf("query by time range: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

func scanEvents(rows driver.Rows) ([]*domain.ClassifiedEvent, error) {
	var result []*domain.ClassifiedEvent
	for rows.Next() {
		var e domain.ClassifiedEvent
		var typeStr string
		var slot, blockTime uint64
		err := rows.Scan(
			&e.Signature, &e.Mint, &typeStr, &e.FromWallet, &e.ToWallet,
			&e.Amount, &e.LiquidityDelta, &e.Wallets, &slot, &blockTime, &e.Note,
		)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Type = domain.EventType(typeStr)
		e.Slot = int64(slot)
		e.BlockTime = int64(blockTime)
		result = append(result, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return result, nil
}
