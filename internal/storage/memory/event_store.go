package memory

import (
	"context"
	"sort"
	"sync"

	"launchwatch/internal/domain"
	"launchwatch/internal/storage"
)

// EventStore is an in-memory implementation of storage.EventStore.
type EventStore struct {
	mu   sync.RWMutex
	data map[eventKey]*domain.ClassifiedEvent
}

type eventKey struct {
	signature string
	mint      string
}

// NewEventStore creates a new in-memory event store.
func NewEventStore() *EventStore {
	return &EventStore{
		data: make(map[eventKey]*domain.ClassifiedEvent),
	}
}

// Insert adds a new event. Returns ErrDuplicateKey if (signature, mint) exists.
func (s *EventStore) Insert(_ context.Context, e *domain.ClassifiedEvent) error {
	if e == nil || e.Signature == "" || e.Mint == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(e)
}

// InsertBulk adds multiple events. Fails the entire batch on any duplicate.
func (s *EventStore) InsertBulk(_ context.Context, events []*domain.ClassifiedEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range events {
		if e == nil || e.Signature == "" || e.Mint == "" {
			return storage.ErrInvalidInput
		}
		if _, exists := s.data[eventKey{e.Signature, e.Mint}]; exists {
			return storage.ErrDuplicateKey
		}
	}
	for _, e := range events {
		if err := s.insertLocked(e); err != nil {
			return err
		}
	}
	return nil
}

func (s *EventStore) insertLocked(e *domain.ClassifiedEvent) error {
	key := eventKey{e.Signature, e.Mint}
	if _, exists := s.data[key]; exists {
		return storage.ErrDuplicateKey
	}
	s.data[key] = copyEvent(e)
	return nil
}

// GetByMint retrieves all events for a mint, ordered by (slot, signature) ASC.
func (s *EventStore) GetByMint(_ context.Context, mint string) ([]*domain.ClassifiedEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.ClassifiedEvent
	for _, e := range s.data {
		if e.Mint == mint {
			result = append(result, copyEvent(e))
		}
	}
	sortEvents(result)
	return result, nil
}

// GetByTimeRange retrieves events for a mint with block time within [start, end] (inclusive).
func (s *EventStore) GetByTimeRange(_ context.Context, mint string, start, end int64) ([]*domain.ClassifiedEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.ClassifiedEvent
	for _, e := range s.data {
		if e.Mint == mint && e.BlockTime >= start && e.BlockTime <= end {
			result = append(result, copyEvent(e))
		}
	}
	sortEvents(result)
	return result, nil
}

func copyEvent(e *domain.ClassifiedEvent) *domain.ClassifiedEvent {
	c := *e
	if e.Wallets != nil {
		c.Wallets = append([]string(nil), e.Wallets...)
	}
	return &c
}

func sortEvents(events []*domain.ClassifiedEvent) {
	sort.Slice(events, func(i, j int) bool {
		if events[i].Slot != events[j].Slot {
			return events[i].Slot < events[j].Slot
		}
		return events[i].Signature < events[j].Signature
	})
}

var _ storage.EventStore = (*EventStore)(nil)
