package lending

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"lendcore/curve"
	"lendcore/fixedpoint"
	"lendcore/market"
	"lendcore/obligation"
	"lendcore/oracle"
	"lendcore/reserve"
)

// fakeOracle implements host.OracleProvider with a fixed publish
// timestamp for both the spot price and its TWAP reading, letting tests
// control whether RefreshReserve's age checks pass (publishTS == the
// refresh's nowTS) or fail (publishTS far enough in the past to exceed a
// reserve's configured MaxAgePriceSeconds/MaxAgeTwapSeconds).
type fakeOracle struct {
	publishTS int64
}

func (f fakeOracle) GetPrice(_ context.Context, _ reserve.ID) (oracle.RawPrice, *oracle.RawPrice, error) {
	raw := oracle.RawPrice{PriceInt: 1_000_000, Expo: -6, Confidence: 0, PublishTS: f.publishTS}
	twap := raw
	return raw, &twap, nil
}

// twapAwareTokenInfo enables the TWAP divergence check against a
// zero-divergence fakeOracle reading, since oracle.Validate never sets
// TwapChecked while TWAP validation is disabled (oracle.StatusFlags'
// AllChecks requires it).
func twapAwareTokenInfo() oracle.TokenInfo {
	return oracle.TokenInfo{
		MaxTwapDivergenceBps: 100,
		MaxAgePriceSeconds:   60,
		MaxAgeTwapSeconds:    60,
	}
}

func id(b byte) reserve.ID {
	var out reserve.ID
	out[0] = b
	return out
}

// freshID generates a reserve/obligation id guaranteed distinct from every
// hand-picked id(N) fixture in this package, for tests that need more ids
// than the single-byte scheme can comfortably keep collision-free.
func freshID(t *testing.T) reserve.ID {
	t.Helper()
	u := uuid.New()
	var out reserve.ID
	copy(out[:], u[:])
	return out
}

func addr(b byte) [32]byte {
	var out [32]byte
	out[0] = b
	return out
}

func flatCurve(rateBps uint32) curve.Curve {
	c := curve.Curve{}
	for i := 0; i < curve.NumPoints; i++ {
		step := uint16(i * (10_000 / (curve.NumPoints - 1)))
		if i == curve.NumPoints-1 {
			step = 10_000
		}
		c.Points[i] = curve.Point{UtilizationBps: step, BorrowRateBps: rateBps}
	}
	return c
}

// testReserve builds a well-formed, already-fresh reserve stored under
// reserveID, priced at 1.0 with a flat zero borrow rate unless overridden by
// the caller. The underlying liquidity mint is a distinct id from reserveID
// itself, matching operations.go's convention of keying c-token transfers by
// the reserve id and liquidity transfers by Liquidity.MintID.
func testReserve(reserveID reserve.ID, nowSlot uint64) reserve.Reserve {
	mintID := underlyingMintFor(reserveID)
	return reserve.Reserve{
		Version:         1,
		LendingMarketID: id(0xAA),
		LastUpdate: reserve.LastUpdate{
			Slot:    nowSlot,
			StampTS: nowSlot,
		},
		Liquidity: reserve.Liquidity{
			MintID:                mintID,
			MintDecimals:          6,
			SupplyVaultID:         mintID,
			FeeVaultID:            feeVaultFor(mintID),
			MarketPrice:           fixedpoint.FromU64(1),
			CumulativeBorrowIndex: fixedpoint.BFOne(),
		},
		Collateral: reserve.Collateral{
			MintID: reserveID,
		},
		Config: reserve.Config{
			Status:                  reserve.StatusActive,
			AssetTier:               reserve.TierRegular,
			LoanToValuePct:          75,
			LiquidationThresholdPct: 85,
			MinLiquidationBonusBps:  200,
			MaxLiquidationBonusBps:  1000,
			BorrowFactorPct:         100,
			BorrowRateCurve:         flatCurve(0),
			DepositLimit:            1_000_000_000,
			BorrowLimit:             1_000_000_000,
		},
	}
}

func underlyingMintFor(reserveID reserve.ID) reserve.ID {
	out := reserveID
	out[31] = 0x4D // 'M', keeps the underlying mint distinct from reserveID itself
	return out
}

func feeVaultFor(mintID reserve.ID) reserve.ID {
	out := mintID
	out[30] = 0xFE
	return out
}

func testMarket(owner [32]byte) market.Market {
	return market.Market{
		ID:                                   id(0xAA),
		OwnerID:                              owner,
		LiquidationMaxDebtCloseFactorPct:      20,
		InsolvencyRiskUnhealthyLTVPct:        90,
		MinFullLiquidationValueThreshold:     2,
		MaxLiquidatableDebtMarketValueAtOnce: 1_000_000_000,
		GlobalUnhealthyBorrowValue:           1_000_000_000,
		GlobalAllowedBorrowValue:             1_000_000_000,
	}
}

func emptyObligation(owner [32]byte) obligation.Obligation {
	return obligation.Obligation{
		OwnerID:         owner,
		LendingMarketID: id(0xAA),
	}
}
