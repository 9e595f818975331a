// Package redis implements the seen-signature set on Redis, for deployments
// where poller progress must survive restarts of a single watcher process.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"launchwatch/internal/storage"
)

// SeenStore is a Redis-backed implementation of storage.SeenStore. Retention
// is enforced by per-key TTL, so Sweep is a no-op.
type SeenStore struct {
	client    *redis.Client
	keyPrefix string
	retention time.Duration
}

// NewSeenStore creates a Redis-backed seen-signature store. Keys expire after
// the retention window.
func NewSeenStore(client *redis.Client, keyPrefix string, retention time.Duration) *SeenStore {
	if keyPrefix == "" {
		keyPrefix = "launchwatch:seen:"
	}
	return &SeenStore{client: client, keyPrefix: keyPrefix, retention: retention}
}

// IsSeen reports whether a signature was marked within the retention window.
func (s *SeenStore) IsSeen(ctx context.Context, signature string) (bool, error) {
	n, err := s.client.Exists(ctx, s.keyPrefix+signature).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return n > 0, nil
}

// MarkSeen records a signature as processed with the retention TTL.
func (s *SeenStore) MarkSeen(ctx context.Context, signature string) error {
	if signature == "" {
		return storage.ErrInvalidInput
	}
	if err := s.client.Set(ctx, s.keyPrefix+signature, 1, s.retention).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Sweep is a no-op: Redis expires keys natively.
func (s *SeenStore) Sweep(context.Context, int64) error {
	return nil
}

var _ storage.SeenStore = (*SeenStore)(nil)
