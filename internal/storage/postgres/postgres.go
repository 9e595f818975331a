// Package postgres implements token, checkpoint and alert storage on PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"launchwatch/internal/storage"
)

// Pool wraps pgxpool.Pool so the stores depend on one local type.
type Pool struct {
	*pgxpool.Pool
}

// NewPool connects to PostgreSQL and verifies the connection with a ping.
func NewPool(ctx context.Context, dsn string) (*Pool, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &Pool{Pool: pool}, nil
}

// unique_violation, the only PostgreSQL error code the stores branch on.
const pgErrUniqueViolation = "23505"

// mapError translates driver errors into the storage sentinels the callers
// match on, and wraps everything else with the failed operation.
func mapError(err error, op string) error {
	var pgErr *pgconn.PgError
	switch {
	case errors.As(err, &pgErr) && pgErr.Code == pgErrUniqueViolation:
		return storage.ErrDuplicateKey
	case errors.Is(err, pgx.ErrNoRows):
		return storage.ErrNotFound
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
