package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"launchwatch/internal/domain"
	"launchwatch/internal/storage"
)

// AlertStore implements storage.AlertStore using PostgreSQL.
type AlertStore struct {
	pool *Pool
}

// NewAlertStore creates a new AlertStore.
func NewAlertStore(pool *Pool) *AlertStore {
	return &AlertStore{pool: pool}
}

// Compile-time interface check.
var _ storage.AlertStore = (*AlertStore)(nil)

// Insert adds a dispatched alert. Returns ErrDuplicateKey if the ID exists.
func (s *AlertStore) Insert(ctx context.Context, a *domain.Alert) error {
	if a == nil || a.ID == "" || a.TokenAddress == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO alerts (id, type, token_address, token_symbol, score, timestamp_ms)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := s.pool.Exec(ctx, query,
		a.ID, string(a.Type), a.TokenAddress, a.TokenSymbol, a.Score, a.Timestamp,
	)
	if err != nil {
		return mapError(err, "insert alert")
	}
	return nil
}

// GetByToken retrieves alerts for a token address, ordered by timestamp ASC.
func (s *AlertStore) GetByToken(ctx context.Context, tokenAddress string) ([]*domain.Alert, error) {
	query := `
		SELECT id, type, token_address, token_symbol, score, timestamp_ms
		FROM alerts
		WHERE token_address = $1
		ORDER BY timestamp_ms ASC, id ASC
	`

	rows, err := s.pool.Query(ctx, query, tokenAddress)
	if err != nil {
		return nil, fmt.Errorf("get alerts by token: %w", err)
	}
	defer rows.Close()

	var result []*domain.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		result = append(result, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate alerts: %w", err)
	}
	return result, nil
}

func scanAlert(row pgx.Row) (*domain.Alert, error) {
	var a domain.Alert
	var typeStr string
	if err := row.Scan(&a.ID, &typeStr, &a.TokenAddress, &a.TokenSymbol, &a.Score, &a.Timestamp); err != nil {
		return nil, err
	}
	a.Type = domain.AlertType(typeStr)
	return &a, nil
}
