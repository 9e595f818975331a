package storage

import (
	"context"

	"launchwatch/internal/domain"
)

// TokenStore provides access to tracked-token storage. Updates are per-token
// atomic: a read-modify-write on one token never interleaves with another
// write to the same token.
type TokenStore interface {
	// Insert adds a new token. Returns ErrDuplicateKey if the mint exists.
	Insert(ctx context.Context, t *domain.Token) error

	// GetByMint retrieves a token by mint address. Returns ErrNotFound if not exists.
	GetByMint(ctx context.Context, mint string) (*domain.Token, error)

	// Update writes a modified token back. The stored version must match
	// t.Version or ErrConflict is returned; on success the stored version is
	// incremented and t.Version is updated to match.
	Update(ctx context.Context, t *domain.Token) error

	// ListActive retrieves all active tokens, ordered by created_at ASC.
	ListActive(ctx context.Context) ([]*domain.Token, error)

	// ListByState retrieves all tokens in the given lifecycle state, ordered by created_at ASC.
	ListByState(ctx context.Context, state domain.TokenState) ([]*domain.Token, error)
}

// EventStore provides append-only audit storage for classified events.
type EventStore interface {
	// Insert adds a new event. Returns ErrDuplicateKey if (signature, mint) exists.
	Insert(ctx context.Context, e *domain.ClassifiedEvent) error

	// InsertBulk adds multiple events. Fails the entire batch on any duplicate.
	InsertBulk(ctx context.Context, events []*domain.ClassifiedEvent) error

	// GetByMint retrieves all events for a mint, ordered by (slot, signature) ASC.
	GetByMint(ctx context.Context, mint string) ([]*domain.ClassifiedEvent, error)

	// GetByTimeRange retrieves events for a mint with block time within [start, end] seconds (inclusive).
	GetByTimeRange(ctx context.Context, mint string, start, end int64) ([]*domain.ClassifiedEvent, error)
}

// MetricTimeseriesStore provides append-only storage for per-token metric
// observations. Points are never updated or removed.
type MetricTimeseriesStore interface {
	// InsertBulk adds multiple points.
	InsertBulk(ctx context.Context, points []*domain.MetricPoint) error

	// GetByMint retrieves all points of one metric for a mint, ordered by timestamp ASC.
	GetByMint(ctx context.Context, mint string, metric domain.Metric) ([]*domain.MetricPoint, error)

	// GetByTimeRange retrieves points of one metric within [start, end] ms (inclusive).
	GetByTimeRange(ctx context.Context, mint string, metric domain.Metric, start, end int64) ([]*domain.MetricPoint, error)
}

// Checkpoint is the poller's last processed position for one program address.
type Checkpoint struct {
	Slot      int64  // last fully processed slot
	Signature string // most recent processed signature at that slot
}

// CheckpointStore persists poller progress so a restart resumes without
// reprocessing the chain from scratch.
type CheckpointStore interface {
	// Get returns the checkpoint for a program address.
	// Returns ErrNotFound if no progress has been saved yet.
	Get(ctx context.Context, program string) (*Checkpoint, error)

	// Set saves the checkpoint for a program address.
	Set(ctx context.Context, program string, cp *Checkpoint) error
}

// AlertStore provides append-only storage for dispatched alerts.
type AlertStore interface {
	// Insert adds a dispatched alert. Returns ErrDuplicateKey if the ID exists.
	Insert(ctx context.Context, a *domain.Alert) error

	// GetByToken retrieves alerts for a token address, ordered by timestamp ASC.
	GetByToken(ctx context.Context, tokenAddress string) ([]*domain.Alert, error)
}

// SeenStore tracks recently processed transaction signatures with bounded
// retention. Implementations evict entries older than the retention window;
// a signature may report unseen again after the window passes, which is safe
// because the poller's checkpoint already excludes it.
type SeenStore interface {
	// IsSeen reports whether a signature was marked within the retention window.
	IsSeen(ctx context.Context, signature string) (bool, error)

	// MarkSeen records a signature as processed.
	MarkSeen(ctx context.Context, signature string) error

	// Sweep evicts entries marked before the cutoff (Unix ms). Backends with
	// native expiry may implement it as a no-op.
	Sweep(ctx context.Context, cutoffMs int64) error
}
