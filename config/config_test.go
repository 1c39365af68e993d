package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "USD", cfg.QuoteCurrency)
	require.Equal(t, uint8(50), cfg.LiquidationMaxDebtCloseFactorPct)
}

func TestLoadMissingFileErrors(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	require.Error(t, err)
}

func TestLoadAppliesDefaultsForOmittedFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "market.yaml")
	require.NoError(t, os.WriteFile(path, []byte("globalAllowedBorrowValue: 1000\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, uint64(1000), cfg.GlobalAllowedBorrowValue)
	require.Equal(t, uint8(80), cfg.PriceRefreshTriggerToMaxAgePct)
}

func TestLoadRejectsBadCloseFactor(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "market.yaml")
	require.NoError(t, os.WriteFile(path, []byte("liquidationMaxDebtCloseFactorPct: 150\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestReserveConfigCurveRejectsWrongPointCount(t *testing.T) {
	rc := ReserveConfig{BorrowRateCurve: []CurvePoint{{UtilizationBps: 0, BorrowRateBps: 0}}}
	_, err := rc.Curve()
	require.Error(t, err)
}

func TestReserveConfigAssetTierRejectsUnknown(t *testing.T) {
	rc := ReserveConfig{AssetTier: "bogus"}
	_, err := rc.assetTier()
	require.Error(t, err)
}

func TestReserveConfigAssetTierDefaultsToRegular(t *testing.T) {
	rc := ReserveConfig{}
	tier, err := rc.assetTier()
	require.NoError(t, err)
	require.Equal(t, uint8(0), uint8(tier))
}
