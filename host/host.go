// Package host defines the narrow interfaces the lending engine needs from
// its surrounding runtime: token movement, oracle price feeds, and
// persistence for reserves/obligations/markets. The shape is grounded on
// native/lending/engine.go's engineState interface (Get*/Put* pairs per
// record type) and the token-transfer calls native/lending/engine.go makes
// against account balances directly; here those balance mutations are
// pulled out behind a TokenTransfer interface so the engine never touches
// a concrete ledger type.
package host

import (
	"context"

	"lendcore/market"
	"lendcore/obligation"
	"lendcore/oracle"
	"lendcore/reserve"
)

// TokenTransfer moves balances for a single mint between a reserve's vault
// and a counterparty. Amounts are denominated in the mint's
// native integer units (spec §3's liquidity amounts).
type TokenTransfer interface {
	TransferToVault(ctx context.Context, mintID reserve.ID, from [32]byte, amount uint64) error
	TransferFromVault(ctx context.Context, mintID reserve.ID, to [32]byte, amount uint64) error
	MintCollateral(ctx context.Context, mintID reserve.ID, to [32]byte, amount uint64) error
	BurnCollateral(ctx context.Context, mintID reserve.ID, from [32]byte, amount uint64) error
	// VaultBalance reports the vault account's current on-chain token
	// balance for vaultID, used by ReconcileBalances to detect drift
	// between the host ledger and the reserve's own accounting (spec §5).
	VaultBalance(ctx context.Context, vaultID reserve.ID) (uint64, error)
}

// OracleProvider fetches the raw price shape for a reserve's configured
// price feed; the engine runs it through oracle.Validate itself.
type OracleProvider interface {
	GetPrice(ctx context.Context, reserveID reserve.ID) (oracle.RawPrice, *oracle.RawPrice, error)
}

// Store persists the three record types the engine mutates. Each Get
// returns a copy; each Put replaces the stored copy wholesale, matching the
// value-semantics design of reserve.Reserve/obligation.Obligation (spec §9).
type Store interface {
	GetMarket(ctx context.Context, id market.ID) (market.Market, error)
	PutMarket(ctx context.Context, m market.Market) error

	GetReserve(ctx context.Context, id reserve.ID) (reserve.Reserve, error)
	PutReserve(ctx context.Context, id reserve.ID, r reserve.Reserve) error

	GetObligation(ctx context.Context, id obligation.ID) (obligation.Obligation, error)
	PutObligation(ctx context.Context, id obligation.ID, o obligation.Obligation) error
}
