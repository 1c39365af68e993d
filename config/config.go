// Package config loads reserve and market policy from YAML, the way
// gateway/config/config.go's Load/applyAuthDefaults/Validate trio does for
// the teacher's gateway service: defaults first, then an optional file
// decode on top, then validation.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"lendcore/curve"
	"lendcore/reserve"
)

// CurvePoint mirrors curve.Point in YAML-friendly form.
type CurvePoint struct {
	UtilizationBps uint16 `yaml:"utilizationBps"`
	BorrowRateBps  uint32 `yaml:"borrowRateBps"`
}

// ReserveConfig is the YAML shape for one reserve's risk and fee policy.
type ReserveConfig struct {
	Name                            string       `yaml:"name"`
	AssetTier                       string       `yaml:"assetTier"`
	ProtocolTakeRatePct              uint8        `yaml:"protocolTakeRatePct"`
	ProtocolLiquidationFeePct        uint8        `yaml:"protocolLiquidationFeePct"`
	LoanToValuePct                   uint8        `yaml:"loanToValuePct"`
	LiquidationThresholdPct          uint8        `yaml:"liquidationThresholdPct"`
	MinLiquidationBonusBps           uint16       `yaml:"minLiquidationBonusBps"`
	MaxLiquidationBonusBps           uint16       `yaml:"maxLiquidationBonusBps"`
	BadDebtLiquidationBonusBps       uint16       `yaml:"badDebtLiquidationBonusBps"`
	BorrowFactorPct                  uint16       `yaml:"borrowFactorPct"`
	DepositLimit                     uint64       `yaml:"depositLimit"`
	BorrowLimit                      uint64       `yaml:"borrowLimit"`
	BorrowFeeBits                    uint64       `yaml:"borrowFeeBits"`
	FlashLoanFeeBits                 uint64       `yaml:"flashLoanFeeBits"`
	BorrowRateCurve                  []CurvePoint `yaml:"borrowRateCurve"`
	MaxTwapDivergenceBps             uint64       `yaml:"maxTwapDivergenceBps"`
	MaxAgePriceSeconds                uint64       `yaml:"maxAgePriceSeconds"`
	MaxAgeTwapSeconds                 uint64       `yaml:"maxAgeTwapSeconds"`
}

// MarketConfig is the YAML shape for the global market policy.
type MarketConfig struct {
	QuoteCurrency                        string `yaml:"quoteCurrency"`
	ReferralFeeBps                       uint16 `yaml:"referralFeeBps"`
	PriceRefreshTriggerToMaxAgePct       uint8  `yaml:"priceRefreshTriggerToMaxAgePct"`
	LiquidationMaxDebtCloseFactorPct     uint8  `yaml:"liquidationMaxDebtCloseFactorPct"`
	InsolvencyRiskUnhealthyLTVPct        uint8  `yaml:"insolvencyRiskUnhealthyLtvPct"`
	MinFullLiquidationValueThreshold     uint64 `yaml:"minFullLiquidationValueThreshold"`
	MaxLiquidatableDebtMarketValueAtOnce uint64 `yaml:"maxLiquidatableDebtMarketValueAtOnce"`
	GlobalUnhealthyBorrowValue           uint64 `yaml:"globalUnhealthyBorrowValue"`
	GlobalAllowedBorrowValue             uint64 `yaml:"globalAllowedBorrowValue"`
	Reserves                             []ReserveConfig `yaml:"reserves"`
}

// defaultMarketConfig matches the conservative defaults spec §3 implies for
// an unconfigured market: emergency mode off, borrowing enabled, a close
// factor of 50%.
func defaultMarketConfig() MarketConfig {
	return MarketConfig{
		QuoteCurrency:                    "USD",
		PriceRefreshTriggerToMaxAgePct:   80,
		LiquidationMaxDebtCloseFactorPct: 50,
		InsolvencyRiskUnhealthyLTVPct:    100,
	}
}

// Load reads a MarketConfig from path, applying defaults for any field the
// file omits and validating the result. An empty path returns the defaults
// untouched (same convention as gateway/config.Load).
func Load(path string) (MarketConfig, error) {
	cfg := defaultMarketConfig()
	if path == "" {
		if err := cfg.Validate(); err != nil {
			return MarketConfig{}, fmt.Errorf("validate config: %w", err)
		}
		return cfg, nil
	}

	file, err := os.Open(path)
	if err != nil {
		return MarketConfig{}, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	if err := decoder.Decode(&cfg); err != nil {
		return MarketConfig{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return MarketConfig{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func (c *MarketConfig) normalize() {
	if c.PriceRefreshTriggerToMaxAgePct == 0 {
		c.PriceRefreshTriggerToMaxAgePct = 80
	}
	if c.LiquidationMaxDebtCloseFactorPct == 0 {
		c.LiquidationMaxDebtCloseFactorPct = 50
	}
	if c.InsolvencyRiskUnhealthyLTVPct == 0 {
		c.InsolvencyRiskUnhealthyLTVPct = 100
	}
	if c.QuoteCurrency == "" {
		c.QuoteCurrency = "USD"
	}
}

// Validate checks the close factor (1-100), a nonzero insolvency-risk LTV,
// and each reserve's asset tier and rate curve. The other reserve.Validate
// checks (LTV, liquidation threshold, bonus bounds) are not run here.
func (c MarketConfig) Validate() error {
	if c.LiquidationMaxDebtCloseFactorPct == 0 || c.LiquidationMaxDebtCloseFactorPct > 100 {
		return fmt.Errorf("config: liquidationMaxDebtCloseFactorPct must be in (0, 100]")
	}
	if c.InsolvencyRiskUnhealthyLTVPct == 0 {
		return fmt.Errorf("config: insolvencyRiskUnhealthyLtvPct must be positive")
	}
	for i, rc := range c.Reserves {
		if _, err := rc.assetTier(); err != nil {
			return fmt.Errorf("config: reserve[%d] %q: %w", i, rc.Name, err)
		}
		if _, err := rc.Curve(); err != nil {
			return fmt.Errorf("config: reserve[%d] %q: %w", i, rc.Name, err)
		}
	}
	return nil
}

func (rc ReserveConfig) assetTier() (reserve.AssetTier, error) {
	switch rc.AssetTier {
	case "", "regular":
		return reserve.TierRegular, nil
	case "isolated_collateral":
		return reserve.TierIsolatedCollateral, nil
	case "isolated_debt":
		return reserve.TierIsolatedDebt, nil
	default:
		return 0, fmt.Errorf("unknown assetTier %q", rc.AssetTier)
	}
}

// Curve builds a curve.Curve from the configured points, validating the
// piecewise-linear shape.
func (rc ReserveConfig) Curve() (curve.Curve, error) {
	if len(rc.BorrowRateCurve) != curve.NumPoints {
		return curve.Curve{}, fmt.Errorf("borrowRateCurve must have exactly %d points, got %d", curve.NumPoints, len(rc.BorrowRateCurve))
	}
	var c curve.Curve
	for i, p := range rc.BorrowRateCurve {
		c.Points[i] = curve.Point{UtilizationBps: p.UtilizationBps, BorrowRateBps: p.BorrowRateBps}
	}
	if err := c.Validate(); err != nil {
		return curve.Curve{}, err
	}
	return c, nil
}
