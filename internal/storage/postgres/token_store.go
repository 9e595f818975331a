package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"launchwatch/internal/domain"
	"launchwatch/internal/storage"
)

// TokenStore implements storage.TokenStore using PostgreSQL.
// Optimistic concurrency: updates match the version the caller read and bump
// it atomically, so a read-modify-write on one token never interleaves with
// another write to the same token.
type TokenStore struct {
	pool *Pool
}

// NewTokenStore creates a new TokenStore.
func NewTokenStore(pool *Pool) *TokenStore {
	return &TokenStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TokenStore = (*TokenStore)(nil)

const tokenColumns = `
	mint, symbol, name, creator, created_at,
	price, volume, holder_count, liquidity, supply, holder_distribution,
	tx_count, last_trade_time, recent_signatures,
	potential_score, concentration_risk, volume_growth_rate, patterns,
	state, graduated, graduated_at, alert_sent, active, updated_at, version
`

// Insert adds a new token. Returns ErrDuplicateKey if the mint exists.
func (s *TokenStore) Insert(ctx context.Context, t *domain.Token) error {
	if t == nil || t.Mint == "" {
		return storage.ErrInvalidInput
	}

	holders, patterns, recent, err := marshalJSONFields(t)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO tokens (` + tokenColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
		        $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25)
	`

	_, err = s.pool.Exec(ctx, query,
		t.Mint, t.Symbol, t.Name, t.Creator, t.CreatedAt,
		t.Price, t.Volume, t.HolderCount, t.Liquidity, t.Supply, holders,
		t.TxCount, t.LastTradeTime, recent,
		t.PotentialScore, string(t.ConcentrationRisk), t.VolumeGrowthRate, patterns,
		string(t.State), t.Graduated, t.GraduatedAt, t.AlertSent, t.Active, t.UpdatedAt, t.Version,
	)
	if err != nil {
		return mapError(err, "insert token")
	}
	return nil
}

// GetByMint retrieves a token by mint address. Returns ErrNotFound if not exists.
func (s *TokenStore) GetByMint(ctx context.Context, mint string) (*domain.Token, error) {
	query := `SELECT ` + tokenColumns + ` FROM tokens WHERE mint = $1`

	row := s.pool.QueryRow(ctx, query, mint)
	t, err := scanToken(row)
	if err != nil {
		return nil, mapError(err, "get token by mint")
	}
	return t, nil
}

// Update writes a modified token back. The WHERE clause on version makes the
// concurrency check and the write one atomic statement.
func (s *TokenStore) Update(ctx context.Context, t *domain.Token) error {
	if t == nil || t.Mint == "" {
		return storage.ErrInvalidInput
	}

	holders, patterns, recent, err := marshalJSONFields(t)
	if err != nil {
		return err
	}

	query := `
		UPDATE tokens SET
			symbol = $2, name = $3, creator = $4, created_at = $5,
			price = $6, volume = $7, holder_count = $8, liquidity = $9, supply = $10,
			holder_distribution = $11, tx_count = $12, last_trade_time = $13,
			recent_signatures = $14,
			potential_score = $15, concentration_risk = $16, volume_growth_rate = $17,
			patterns = $18, state = $19, graduated = $20, graduated_at = $21,
			alert_sent = $22, active = $23, updated_at = $24, version = version + 1
		WHERE mint = $1 AND version = $25
	`

	tag, err := s.pool.Exec(ctx, query,
		t.Mint, t.Symbol, t.Name, t.Creator, t.CreatedAt,
		t.Price, t.Volume, t.HolderCount, t.Liquidity, t.Supply,
		holders, t.TxCount, t.LastTradeTime, recent,
		t.PotentialScore, string(t.ConcentrationRisk), t.VolumeGrowthRate,
		patterns, string(t.State), t.Graduated, t.GraduatedAt,
		t.AlertSent, t.Active, t.UpdatedAt, t.Version,
	)
	if err != nil {
		return fmt.Errorf("update token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Distinguish a missing row from a stale version.
		var exists bool
		if err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM tokens WHERE mint = $1)`, t.Mint).Scan(&exists); err != nil {
			return fmt.Errorf("update token: check existence: %w", err)
		}
		if !exists {
			return storage.ErrNotFound
		}
		return storage.ErrConflict
	}

	t.Version++
	return nil
}

// ListActive retrieves all active tokens, ordered by created_at ASC.
func (s *TokenStore) ListActive(ctx context.Context) ([]*domain.Token, error) {
	query := `SELECT ` + tokenColumns + ` FROM tokens WHERE active ORDER BY created_at ASC, mint ASC`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list active tokens: %w", err)
	}
	defer rows.Close()

	return scanTokens(rows)
}

// ListByState retrieves all tokens in the given state, ordered by created_at ASC.
func (s *TokenStore) ListByState(ctx context.Context, state domain.TokenState) ([]*domain.Token, error) {
	query := `SELECT ` + tokenColumns + ` FROM tokens WHERE state = $1 ORDER BY created_at ASC, mint ASC`

	rows, err := s.pool.Query(ctx, query, string(state))
	if err != nil {
		return nil, fmt.Errorf("list tokens by state: %w", err)
	}
	defer rows.Close()

	return scanTokens(rows)
}

func marshalJSONFields(t *domain.Token) (holders, patterns, recent []byte, err error) {
	holders, err = json.Marshal(t.HolderDistribution)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("marshal holder distribution: %w", err)
	}
	patterns, err = json.Marshal(t.Patterns)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("marshal patterns: %w", err)
	}
	recent, err = json.Marshal(t.RecentSignatures)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("marshal recent signatures: %w", err)
	}
	return holders, patterns, recent, nil
}

// scanToken scans a single row into a Token.
func scanToken(row pgx.Row) (*domain.Token, error) {
	var t domain.Token
	var stateStr, riskStr string
	var holders, patterns, recent []byte

	err := row.Scan(
		&t.Mint, &t.Symbol, &t.Name, &t.Creator, &t.CreatedAt,
		&t.Price, &t.Volume, &t.HolderCount, &t.Liquidity, &t.Supply, &holders,
		&t.TxCount, &t.LastTradeTime, &recent,
		&t.PotentialScore, &riskStr, &t.VolumeGrowthRate, &patterns,
		&stateStr, &t.Graduated, &t.GraduatedAt, &t.AlertSent, &t.Active, &t.UpdatedAt, &t.Version,
	)
	if err != nil {
		return nil, err
	}

	t.State = domain.TokenState(stateStr)
	t.ConcentrationRisk = domain.ConcentrationRisk(riskStr)
	if err := json.Unmarshal(holders, &t.HolderDistribution); err != nil {
		return nil, fmt.Errorf("unmarshal holder distribution: %w", err)
	}
	if err := json.Unmarshal(patterns, &t.Patterns); err != nil {
		return nil, fmt.Errorf("unmarshal patterns: %w", err)
	}
	if err := json.Unmarshal(recent, &t.RecentSignatures); err != nil {
		return nil, fmt.Errorf("unmarshal recent signatures: %w", err)
	}
	return &t, nil
}

func scanTokens(rows pgx.Rows) ([]*domain.Token, error) {
	var result []*domain.Token
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, fmt.Errorf("scan token: %w", err)
		}
		result = append(result, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tokens: %w", err)
	}
	return result, nil
}
