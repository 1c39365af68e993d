package lending

import (
	"context"
	"errors"
	"log/slog"

	"lendcore/fixedpoint"
	"lendcore/host"
	"lendcore/market"
	"lendcore/obligation"
	"lendcore/observability/logging"
	"lendcore/reserve"
)

// InitializeMarket implements spec §6's initialize_market: creates the
// market's global policy record, owned by caller. Every risk ceiling and
// mode flag starts at its zero value; update_market/update_market_owner
// configure them afterward (spec §3: "markets... are created empty").
func (e *Engine) InitializeMarket(ctx context.Context, marketID market.ID, owner [32]byte, quoteCurrency [32]byte) (m market.Market, err error) {
	defer func() { e.observe("initialize_market", err) }()
	if _, err = e.store.GetMarket(ctx, marketID); err == nil {
		return market.Market{}, ErrAlreadyInitialized
	} else if !errors.Is(err, host.ErrNotFound) {
		return market.Market{}, err
	}
	next := market.Market{
		ID:            marketID,
		OwnerID:       owner,
		QuoteCurrency: quoteCurrency,
	}
	if err = e.store.PutMarket(ctx, next); err != nil {
		return market.Market{}, err
	}
	e.logger.Info("initialized market", logging.MarketAttr(marketID))
	return next, nil
}

// InitializeReserve implements spec §6's initialize_reserve: creates a
// fresh, empty per-asset pool under marketID. A new reserve always starts
// StatusHidden (spec §3: "status = Hidden on a new reserve"); the owner
// moves it to Active with update_reserve_mode. Deposits, borrows and
// liquidations do not check a reserve's status, so they accept a Hidden
// reserve as they do an Active one.
func (e *Engine) InitializeReserve(ctx context.Context, m market.Market, caller market.ID, reserveID reserve.ID, mintID, supplyVaultID, feeVaultID, collateralMintID reserve.ID, mintDecimals uint8) (r reserve.Reserve, err error) {
	defer func() { e.observe("initialize_reserve", err) }()
	if caller != m.OwnerID {
		return reserve.Reserve{}, ErrNotOwner
	}
	if _, err = e.store.GetReserve(ctx, reserveID); err == nil {
		return reserve.Reserve{}, ErrAlreadyInitialized
	} else if !errors.Is(err, host.ErrNotFound) {
		return reserve.Reserve{}, err
	}
	next := reserve.Reserve{
		Version:         1,
		LendingMarketID: m.ID,
		Liquidity: reserve.Liquidity{
			MintID:                mintID,
			MintDecimals:          mintDecimals,
			SupplyVaultID:         supplyVaultID,
			FeeVaultID:            feeVaultID,
			CumulativeBorrowIndex: fixedpoint.BFOne(),
		},
		Collateral: reserve.Collateral{
			MintID: collateralMintID,
		},
		Config: reserve.Config{
			Status: reserve.StatusHidden,
		},
	}
	if err = e.store.PutReserve(ctx, reserveID, next); err != nil {
		return reserve.Reserve{}, err
	}
	e.logger.Info("initialized reserve", logging.ReserveAttr(reserveID))
	return next, nil
}

// InitializeObligation implements spec §6's initialize_obligation{tag, id}:
// creates an empty per-user position under marketID. id is always 0 (spec
// §3) — it and the two PDA seeds tag selects between are address-derivation
// details of the surrounding chain runtime, outside this package's scope
// (spec overview: "chain-specific runtime... signer seeds" is an external
// collaborator). tag itself is stored and validated here: 0 selects no
// mint-seed pairing, 1 or 2 select one of the two mint-keyed seed slots.
func (e *Engine) InitializeObligation(ctx context.Context, obligationID obligation.ID, m market.Market, owner [32]byte, tag uint64) (o obligation.Obligation, err error) {
	defer func() { e.observe("initialize_obligation", err) }()
	if tag > 2 {
		return obligation.Obligation{}, ErrInvalidObligationTag
	}
	if _, err = e.store.GetObligation(ctx, obligationID); err == nil {
		return obligation.Obligation{}, ErrAlreadyInitialized
	} else if !errors.Is(err, host.ErrNotFound) {
		return obligation.Obligation{}, err
	}
	next := obligation.Obligation{
		Version:         1,
		LendingMarketID: m.ID,
		OwnerID:         owner,
		Tag:             tag,
	}
	if err = e.store.PutObligation(ctx, obligationID, next); err != nil {
		return obligation.Obligation{}, err
	}
	e.logger.Info("initialized obligation", logging.ObligationAttr(obligationID), slog.Uint64("tag", tag))
	return next, nil
}
