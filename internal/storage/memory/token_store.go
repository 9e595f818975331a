// Package memory holds in-memory storage implementations used in tests and
// single-process deployments.
package memory

import (
	"context"
	"sort"
	"sync"

	"launchwatch/internal/domain"
	"launchwatch/internal/storage"
)

// TokenStore is an in-memory implementation of storage.TokenStore.
type TokenStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Token // keyed by mint
}

// NewTokenStore creates a new in-memory token store.
func NewTokenStore() *TokenStore {
	return &TokenStore{
		data: make(map[string]*domain.Token),
	}
}

// Insert adds a new token. Returns ErrDuplicateKey if the mint exists.
func (s *TokenStore) Insert(_ context.Context, t *domain.Token) error {
	if t == nil || t.Mint == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[t.Mint]; exists {
		return storage.ErrDuplicateKey
	}

	s.data[t.Mint] = copyToken(t)
	return nil
}

// GetByMint retrieves a token by mint address. Returns ErrNotFound if not exists.
func (s *TokenStore) GetByMint(_ context.Context, mint string) (*domain.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, exists := s.data[mint]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return copyToken(t), nil
}

// Update writes a modified token back under optimistic concurrency control.
func (s *TokenStore) Update(_ context.Context, t *domain.Token) error {
	if t == nil || t.Mint == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored, exists := s.data[t.Mint]
	if !exists {
		return storage.ErrNotFound
	}
	if stored.Version != t.Version {
		return storage.ErrConflict
	}

	t.Version++
	s.data[t.Mint] = copyToken(t)
	return nil
}

// ListActive retrieves all active tokens, ordered by created_at ASC.
func (s *TokenStore) ListActive(_ context.Context) ([]*domain.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Token
	for _, t := range s.data {
		if t.Active {
			result = append(result, copyToken(t))
		}
	}
	sortByCreatedAt(result)
	return result, nil
}

// ListByState retrieves all tokens in the given state, ordered by created_at ASC.
func (s *TokenStore) ListByState(_ context.Context, state domain.TokenState) ([]*domain.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Token
	for _, t := range s.data {
		if t.State == state {
			result = append(result, copyToken(t))
		}
	}
	sortByCreatedAt(result)
	return result, nil
}

// copyToken deep-copies a token so callers never share slices with the store.
func copyToken(t *domain.Token) *domain.Token {
	c := *t
	if t.HolderDistribution != nil {
		c.HolderDistribution = append([]domain.HolderBalance(nil), t.HolderDistribution...)
	}
	if t.Patterns != nil {
		c.Patterns = append([]string(nil), t.Patterns...)
	}
	if t.RecentSignatures != nil {
		c.RecentSignatures = append([]string(nil), t.RecentSignatures...)
	}
	if t.GraduatedAt != nil {
		at := *t.GraduatedAt
		c.GraduatedAt = &at
	}
	return &c
}

func sortByCreatedAt(tokens []*domain.Token) {
	sort.Slice(tokens, func(i, j int) bool {
		if tokens[i].CreatedAt != tokens[j].CreatedAt {
			return tokens[i].CreatedAt < tokens[j].CreatedAt
		}
		return tokens[i].Mint < tokens[j].Mint
	})
}

var _ storage.TokenStore = (*TokenStore)(nil)
