// Package lending implements the top-level Engine: the operation surface
// spec §6 lists (refresh, deposit/borrow/repay/withdraw, liquidation,
// flash loans, fee sweeps, and config updates), wired against the host
// package's narrow external interfaces. Shape and error-handling style are
// grounded on native/lending/engine.go's Engine/engineState split: a small
// struct holding its dependencies (set once by NewEngine), and
// operations that load state, run pure arithmetic against the owned value
// types in reserve/obligation/market, and persist the result in one Put
// call per mutated record.
package lending

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"lendcore/host"
	"lendcore/market"
	"lendcore/obligation"
	"lendcore/observability/logging"
	"lendcore/observability/metrics"
	"lendcore/oracle"
	"lendcore/reserve"

	"lendcore/fixedpoint"
)

// Engine orchestrates every mutating and read operation over the
// store/token/oracle host interfaces.
type Engine struct {
	store   host.Store
	tokens  host.TokenTransfer
	oracles host.OracleProvider
	logger  *slog.Logger
	metrics *metrics.LendingMetrics
}

// NewEngine constructs an engine wired to its host dependencies. A nil
// logger defaults to slog.Default(); metrics default to the process-wide
// singleton registry.
func NewEngine(store host.Store, tokens host.TokenTransfer, oracles host.OracleProvider, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:   store,
		tokens:  tokens,
		oracles: oracles,
		logger:  logging.WithComponent(logger, "lending"),
		metrics: metrics.Lending(),
	}
}

func (e *Engine) observe(operation string, err error) {
	e.metrics.ObserveOperation(operation)
	if err != nil {
		e.metrics.ObserveOperationFailure(operation, errorCode(err))
	}
}

// errorCode renders an error's message as a metrics label; errors in this
// package are sentinel values so the message itself is a stable code.
func errorCode(err error) string {
	return err.Error()
}

// requirePriceStatus asserts r's cached price-status flags, stamped by its
// last refresh_reserve, satisfy required (spec §4.7/§4.8: borrow and
// withdraw-with-debt require ALL_CHECKS, liquidation requires
// LIQUIDATION_CHECKS). Skipped when the engine has no oracle wired: without
// a price reading RefreshReserve never sets any price-status bits, so the
// assertion would reject every guarded operation on such an engine.
func (e *Engine) requirePriceStatus(r reserve.Reserve, nowSlot uint64, required oracle.StatusFlags) error {
	if e.oracles == nil {
		return nil
	}
	if !r.LastUpdate.Fresh(nowSlot, required) {
		return ErrPriceNotValid
	}
	return nil
}

// reconcile runs host.ReconcileBalances against r's own vault, translating
// a detected mismatch into the package's own sentinel error (spec §5).
func (e *Engine) reconcile(ctx context.Context, r reserve.Reserve) error {
	if err := host.ReconcileBalances(ctx, e.tokens, r); err != nil {
		if errors.Is(err, host.ErrVaultBalanceMismatch) {
			return ErrReserveVaultBalanceMismatch
		}
		return err
	}
	return nil
}

// RefreshReserve implements spec §4.4's refresh_reserve: accrue interest,
// fetch and validate the oracle price, and stamp last_update. Guarded
// operations that depend on this reserve must cite it via
// tx.RecordRefreshReserve before calling RefreshObligation.
func (e *Engine) RefreshReserve(ctx context.Context, tx *TxContext, reserveID reserve.ID, nowSlot, nowTS uint64) (r reserve.Reserve, err error) {
	defer func() { e.observe("refresh_reserve", err) }()
	if e.store == nil {
		return reserve.Reserve{}, ErrNilStore
	}
	r, err = e.store.GetReserve(ctx, reserveID)
	if err != nil {
		return reserve.Reserve{}, err
	}

	var priceResult *oracle.PriceResult
	if e.oracles != nil {
		raw, twap, oerr := e.oracles.GetPrice(ctx, reserveID)
		if oerr != nil {
			return reserve.Reserve{}, oerr
		}
		validated, verr := oracle.Validate(raw, twap, r.Config.TokenInfo.Oracle, int64(nowTS))
		if verr != nil {
			return reserve.Reserve{}, verr
		}
		priceResult = &validated
	}

	next, err := r.RefreshReserve(nowSlot, nowTS, priceResult)
	if err != nil {
		return reserve.Reserve{}, err
	}
	if err := e.store.PutReserve(ctx, reserveID, next); err != nil {
		return reserve.Reserve{}, err
	}
	if tx != nil {
		tx.RecordRefreshReserve(reserveID)
	}

	util, uerr := next.Utilization()
	if uerr == nil {
		util, uerr = util.MulU64(1_000_000)
	}
	if uerr == nil {
		if asFloat, ferr := util.ToRoundU64(); ferr == nil {
			e.metrics.SetReserveUtilization(idLabel(reserveID), float64(asFloat)/1e6)
		}
	}
	e.logger.Info("refreshed reserve", logging.ReserveAttr(reserveID), slog.Uint64("slot", nowSlot))
	return next, nil
}

// RefreshObligation implements spec §4.6: recompute every aggregate valuation
// field by walking the obligation's deposit and borrow slots against their
// paired, already-refreshed reserves.
func (e *Engine) RefreshObligation(ctx context.Context, tx *TxContext, obligationID obligation.ID, m market.Market, nowSlot uint64) (o obligation.Obligation, err error) {
	defer func() { e.observe("refresh_obligation", err) }()
	if e.store == nil {
		return obligation.Obligation{}, ErrNilStore
	}
	o, err = e.store.GetObligation(ctx, obligationID)
	if err != nil {
		return obligation.Obligation{}, err
	}

	next := o
	next.DepositedValue = fixedpoint.Zero()
	next.AllowedBorrowValue = fixedpoint.Zero()
	next.UnhealthyBorrowValue = fixedpoint.Zero()
	next.BorrowedAssetsMarketValue = fixedpoint.Zero()
	next.BorrowFactorAdjustedDebtValue = fixedpoint.Zero()
	next.NumOfObsoleteReserves = 0
	next.LowestReserveDepositLTV = 100
	combinedFlags := oracle.AllChecks

	for i, dep := range next.Deposits {
		if dep.DepositReserveID == (reserve.ID{}) {
			continue
		}
		res, rerr := e.store.GetReserve(ctx, dep.DepositReserveID)
		if rerr != nil {
			return obligation.Obligation{}, rerr
		}
		if res.LastUpdate.Slot != nowSlot {
			return obligation.Obligation{}, reserve.ErrReserveStale
		}
		if res.Config.Status == reserve.StatusObsolete {
			next.NumOfObsoleteReserves++
		}
		mv, merr := depositMarketValue(res, dep.DepositedAmount)
		if merr != nil {
			return obligation.Obligation{}, merr
		}
		next.Deposits[i].MarketValue = mv
		next.DepositedValue, err = next.DepositedValue.Add(mv)
		if err != nil {
			return obligation.Obligation{}, err
		}
		ltvShare, err := mv.Mul(fixedpoint.FromPercent(res.Config.LoanToValuePct))
		if err != nil {
			return obligation.Obligation{}, err
		}
		next.AllowedBorrowValue, err = next.AllowedBorrowValue.Add(ltvShare)
		if err != nil {
			return obligation.Obligation{}, err
		}
		threshShare, err := mv.Mul(fixedpoint.FromPercent(res.Config.LiquidationThresholdPct))
		if err != nil {
			return obligation.Obligation{}, err
		}
		next.UnhealthyBorrowValue, err = next.UnhealthyBorrowValue.Add(threshShare)
		if err != nil {
			return obligation.Obligation{}, err
		}
		if res.Config.LoanToValuePct < next.LowestReserveDepositLTV {
			next.LowestReserveDepositLTV = res.Config.LoanToValuePct
		}
		combinedFlags = combinedFlags.And(res.LastUpdate.PriceStatusFlags)
	}

	for i, bor := range next.Borrows {
		if bor.BorrowReserveID == (reserve.ID{}) {
			continue
		}
		res, rerr := e.store.GetReserve(ctx, bor.BorrowReserveID)
		if rerr != nil {
			return obligation.Obligation{}, rerr
		}
		if res.LastUpdate.Slot != nowSlot {
			return obligation.Obligation{}, reserve.ErrReserveStale
		}
		accrued, aerr := next.AccrueInterest(i, res.Liquidity.CumulativeBorrowIndex)
		if aerr != nil {
			return obligation.Obligation{}, aerr
		}
		next = accrued
		bor = next.Borrows[i]

		mv, merr := bor.BorrowedAmount.Mul(res.Liquidity.MarketPrice)
		if merr != nil {
			return obligation.Obligation{}, merr
		}
		decScale := pow10U64(res.Liquidity.MintDecimals)
		mv, merr = mv.DivU64(decScale)
		if merr != nil {
			return obligation.Obligation{}, merr
		}
		next.Borrows[i].MarketValue = mv
		next.BorrowedAssetsMarketValue, err = next.BorrowedAssetsMarketValue.Add(mv)
		if err != nil {
			return obligation.Obligation{}, err
		}
		borrowFactor, berr := fixedpoint.FromU64(uint64(res.Config.BorrowFactorPct)).DivU64(100)
		if berr != nil {
			return obligation.Obligation{}, berr
		}
		bf, berr := mv.Mul(borrowFactor)
		if berr != nil {
			return obligation.Obligation{}, berr
		}
		next.Borrows[i].BorrowFactorAdjustedMarketValue = bf
		next.BorrowFactorAdjustedDebtValue, err = next.BorrowFactorAdjustedDebtValue.Add(bf)
		if err != nil {
			return obligation.Obligation{}, err
		}
		combinedFlags = combinedFlags.And(res.LastUpdate.PriceStatusFlags)
	}

	next.AllowedBorrowValue = m.CapAllowedBorrowValue(next.AllowedBorrowValue)
	next.UnhealthyBorrowValue = m.CapUnhealthyBorrowValue(next.UnhealthyBorrowValue)
	next = next.RecomputeHasDebt()
	next.LastUpdate.PriceStatusFlags = combinedFlags
	next.LastUpdate.Slot = nowSlot

	if err := e.store.PutObligation(ctx, obligationID, next); err != nil {
		return obligation.Obligation{}, err
	}
	if tx != nil {
		tx.RecordRefreshObligation()
	}
	e.logger.Info("refreshed obligation", logging.ObligationAttr(obligationID))
	return next, nil
}

// borrowMarketValueForSlot computes a single borrow slot's market value
// against a reserve's current price, the same per-slot formula
// RefreshObligation uses, for callers that check a just-mutated slot before
// its next refresh (spec §4.7's net-value-floor check).
func borrowMarketValueForSlot(res reserve.Reserve, borrowedAmount fixedpoint.F) (fixedpoint.F, error) {
	mv, err := borrowedAmount.Mul(res.Liquidity.MarketPrice)
	if err != nil {
		return fixedpoint.F{}, err
	}
	return mv.DivU64(pow10U64(res.Liquidity.MintDecimals))
}

func depositMarketValue(res reserve.Reserve, depositedAmount uint64) (fixedpoint.F, error) {
	rate, err := res.ExchangeRate()
	if err != nil {
		return fixedpoint.F{}, err
	}
	liqAmount, err := fixedpoint.FromU64(depositedAmount).Div(rate)
	if err != nil {
		return fixedpoint.F{}, err
	}
	mv, err := liqAmount.Mul(res.Liquidity.MarketPrice)
	if err != nil {
		return fixedpoint.F{}, err
	}
	return mv.DivU64(pow10U64(res.Liquidity.MintDecimals))
}

func idLabel(id reserve.ID) string {
	return fmt.Sprintf("%x", id[:8])
}

// pow10U64 mirrors reserve's unexported pow10 for decimal scaling of
// cross-reserve market-value math the obligation aggregation needs.
func pow10U64(n uint8) uint64 {
	v := uint64(1)
	for i := uint8(0); i < n; i++ {
		v *= 10
	}
	return v
}
