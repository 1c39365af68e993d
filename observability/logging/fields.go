package logging

import (
	"encoding/hex"
	"log/slog"
)

// idAttr renders a 32-byte identifier as a hex string attribute, trimmed to
// its first 8 bytes for readability in logs (full ids are recoverable from
// the persisted record, not needed in the log line itself).
func idAttr(key string, id [32]byte) slog.Attr {
	return slog.String(key, hex.EncodeToString(id[:8]))
}

// ReserveAttr is the canonical slog attribute for a reserve identifier.
func ReserveAttr(id [32]byte) slog.Attr { return idAttr("reserve_id", id) }

// ObligationAttr is the canonical slog attribute for an obligation identifier.
func ObligationAttr(id [32]byte) slog.Attr { return idAttr("obligation_id", id) }

// MarketAttr is the canonical slog attribute for a market identifier.
func MarketAttr(id [32]byte) slog.Attr { return idAttr("market_id", id) }

// OperationAttr names the engine operation a log line belongs to (e.g.
// "borrow", "liquidate_and_redeem").
func OperationAttr(name string) slog.Attr { return slog.String("operation", name) }
