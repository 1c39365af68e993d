package host

import (
	"context"
	"errors"

	"lendcore/reserve"
)

// ErrVaultBalanceMismatch is returned by ReconcileBalances when the host
// ledger's vault balance has drifted from the reserve's own liquidity
// accounting (spec §5's "reserve-token balance/vault/accounting mismatch").
var ErrVaultBalanceMismatch = errors.New("host: vault balance does not match reserve accounting")

// ReconcileBalances implements the post-transfer sanity check spec §5
// describes abstractly: after any operation that moves tokens into or out
// of a reserve's supply vault, the vault's actual balance must equal the
// reserve's available_amount. Called by lending.Engine after each operation
// that moves liquidity into or out of a reserve's vault.
func ReconcileBalances(ctx context.Context, tokens TokenTransfer, r reserve.Reserve) error {
	if tokens == nil {
		return nil
	}
	actual, err := tokens.VaultBalance(ctx, r.Liquidity.MintID)
	if err != nil {
		return err
	}
	if actual != r.Liquidity.AvailableAmount {
		return ErrVaultBalanceMismatch
	}
	return nil
}
