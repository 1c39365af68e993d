package host

import (
	"context"
	"errors"
	"sync"

	"lendcore/market"
	"lendcore/obligation"
	"lendcore/reserve"
)

// ErrNotFound is returned by MemStore when no record exists under the
// requested key.
var ErrNotFound = errors.New("host: record not found")

// MemStore is an in-memory Store, used by lending package tests in place of
// a real persistence backend (grounded on native/lending/engine.go's
// engineState, reimplemented here as a map-backed fake rather than a chain
// state trie since the engine in this module is decoupled from any
// particular storage backend).
type MemStore struct {
	mu         sync.Mutex
	markets    map[market.ID]market.Market
	reserves   map[reserve.ID]reserve.Reserve
	obligation map[obligation.ID]obligation.Obligation
}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		markets:    make(map[market.ID]market.Market),
		reserves:   make(map[reserve.ID]reserve.Reserve),
		obligation: make(map[obligation.ID]obligation.Obligation),
	}
}

func (s *MemStore) GetMarket(_ context.Context, id market.ID) (market.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.markets[id]
	if !ok {
		return market.Market{}, ErrNotFound
	}
	return m, nil
}

func (s *MemStore) PutMarket(_ context.Context, m market.Market) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markets[m.ID] = m
	return nil
}

func (s *MemStore) GetReserve(_ context.Context, id reserve.ID) (reserve.Reserve, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reserves[id]
	if !ok {
		return reserve.Reserve{}, ErrNotFound
	}
	return r, nil
}

func (s *MemStore) PutReserve(_ context.Context, id reserve.ID, r reserve.Reserve) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reserves[id] = r
	return nil
}

func (s *MemStore) GetObligation(_ context.Context, id obligation.ID) (obligation.Obligation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.obligation[id]
	if !ok {
		return obligation.Obligation{}, ErrNotFound
	}
	return o, nil
}

func (s *MemStore) PutObligation(_ context.Context, id obligation.ID, o obligation.Obligation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.obligation[id] = o
	return nil
}
