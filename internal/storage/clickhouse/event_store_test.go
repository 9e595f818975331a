package clickhouse

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"launchwatch/internal/domain"
	"launchwatch/internal/storage"
)

func TestEventStore_InsertAndQuery(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewEventStore(conn)
	ctx := context.Background()

	events := []*domain.ClassifiedEvent{
		{Signature: "s2", Mint: "m1", Type: domain.EventSell, Amount: -500, Wallets: []string{"a"}, Slot: 200, BlockTime: 20},
		{Signature: "s1", Mint: "m1", Type: domain.EventBuy, Amount: 100, Wallets: []string{"b"}, Slot: 100, BlockTime: 10},
	}
	require.NoError(t, store.InsertBulk(ctx, events))

	got, err := store.GetByMint(ctx, "m1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "s1", got[0].Signature)
	assert.Equal(t, domain.EventBuy, got[0].Type)
	assert.Equal(t, []string{"a"}, got[1].Wallets)
	assert.Equal(t, float64(-500), got[1].Amount)

	ranged, err := store.GetByTimeRange(ctx, "m1", 15, 30)
	require.NoError(t, err)
	require.Len(t, ranged, 1)
	assert.Equal(t, "s2", ranged[0].Signature)
}

func TestEventStore_DuplicateRejected(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewEventStore(conn)
	ctx := context.Background()

	e := &domain.ClassifiedEvent{Signature: "dup", Mint: "m1", Type: domain.EventBuy, Slot: 1}
	require.NoError(t, store.Insert(ctx, e))
	assert.ErrorIs(t, store.Insert(ctx, e), storage.ErrDuplicateKey)

	// Same signature against a different mint is a distinct audit row.
	require.NoError(t, store.Insert(ctx, &domain.ClassifiedEvent{Signature: "dup", Mint: "m2", Type: domain.EventBuy, Slot: 1}))

	// Intra-batch duplicate fails before anything is sent.
	batch := []*domain.ClassifiedEvent{
		{Signature: "x", Mint: "m3", Slot: 1},
		{Signature: "x", Mint: "m3", Slot: 1},
	}
	assert.ErrorIs(t, store.InsertBulk(ctx, batch), storage.ErrDuplicateKey)
}
