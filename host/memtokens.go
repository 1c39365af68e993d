package host

import (
	"context"
	"errors"
	"sync"

	"lendcore/reserve"
)

// ErrInsufficientBalance is returned by MemTokens when a transfer would
// leave an account or vault negative.
var ErrInsufficientBalance = errors.New("host: insufficient balance")

// MemTokens is an in-memory TokenTransfer fake for tests. A single balance
// ledger is keyed by mint id (liquidity calls key it by a reserve's
// Liquidity.MintID, c-token calls key it by the reserve id itself, per
// operations.go's own convention of treating c-tokens as just another
// mint), plus a vault balance per mint.
type MemTokens struct {
	mu       sync.Mutex
	vaults   map[reserve.ID]uint64
	balances map[reserve.ID]map[[32]byte]uint64
}

// NewMemTokens constructs an empty token ledger.
func NewMemTokens() *MemTokens {
	return &MemTokens{
		vaults:   make(map[reserve.ID]uint64),
		balances: make(map[reserve.ID]map[[32]byte]uint64),
	}
}

// Credit seeds an owner's balance for mintID, for test setup.
func (t *MemTokens) Credit(mintID reserve.ID, owner [32]byte, amount uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ensure(mintID)
	t.balances[mintID][owner] += amount
}

// SeedVault sets the vault balance for mintID directly, for test setup that
// bypasses the normal deposit flow.
func (t *MemTokens) SeedVault(mintID reserve.ID, amount uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.vaults[mintID] = amount
}

// LiquidityBalance reports owner's current balance for mintID.
func (t *MemTokens) LiquidityBalance(mintID reserve.ID, owner [32]byte) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.balances[mintID][owner]
}

// CollateralBalance reports owner's current c-token balance, where
// reserveID doubles as the c-token's mint id.
func (t *MemTokens) CollateralBalance(reserveID reserve.ID, owner [32]byte) uint64 {
	return t.LiquidityBalance(reserveID, owner)
}

func (t *MemTokens) ensure(mintID reserve.ID) {
	if t.balances[mintID] == nil {
		t.balances[mintID] = make(map[[32]byte]uint64)
	}
}

func (t *MemTokens) TransferToVault(_ context.Context, mintID reserve.ID, from [32]byte, amount uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ensure(mintID)
	if t.balances[mintID][from] < amount {
		return ErrInsufficientBalance
	}
	t.balances[mintID][from] -= amount
	t.vaults[mintID] += amount
	return nil
}

func (t *MemTokens) TransferFromVault(_ context.Context, mintID reserve.ID, to [32]byte, amount uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.vaults[mintID] < amount {
		return ErrInsufficientBalance
	}
	t.vaults[mintID] -= amount
	t.ensure(mintID)
	t.balances[mintID][to] += amount
	return nil
}

func (t *MemTokens) MintCollateral(_ context.Context, mintID reserve.ID, to [32]byte, amount uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ensure(mintID)
	t.balances[mintID][to] += amount
	return nil
}

func (t *MemTokens) BurnCollateral(_ context.Context, mintID reserve.ID, from [32]byte, amount uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ensure(mintID)
	if t.balances[mintID][from] < amount {
		return ErrInsufficientBalance
	}
	t.balances[mintID][from] -= amount
	return nil
}

func (t *MemTokens) VaultBalance(_ context.Context, vaultID reserve.ID) (uint64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.vaults[vaultID], nil
}

var _ TokenTransfer = (*MemTokens)(nil)
