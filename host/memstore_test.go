package host

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"lendcore/market"
	"lendcore/reserve"
)

func TestMemStoreRoundTripsMarket(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	m := market.Market{ID: market.ID{1}, OwnerID: market.ID{2}, Version: 1}

	require.NoError(t, s.PutMarket(ctx, m))
	got, err := s.GetMarket(ctx, m.ID)
	require.NoError(t, err)
	require.Equal(t, m, got)
}

func TestMemStoreGetMarketMissingReturnsErrNotFound(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	_, err := s.GetMarket(ctx, market.ID{9})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemStoreRoundTripsReserve(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	id := reserve.ID{5}
	r := reserve.Reserve{Version: 1}

	require.NoError(t, s.PutReserve(ctx, id, r))
	got, err := s.GetReserve(ctx, id)
	require.NoError(t, err)
	require.Equal(t, r, got)
}

func TestMemStoreGetReserveMissingReturnsErrNotFound(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	_, err := s.GetReserve(ctx, reserve.ID{7})
	require.ErrorIs(t, err, ErrNotFound)
}
