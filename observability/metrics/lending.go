// Package metrics exposes Prometheus instrumentation for the lending
// engine, following the singleton-registry-via-sync.Once idiom that the
// teacher's potso metrics use: a package-level accessor lazily constructs
// and registers the vectors once, and every method tolerates a nil
// receiver so instrumentation can be omitted without guarding every call
// site.
package metrics

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// LendingMetrics tracks the engine's operation counts, utilization, and
// liquidation activity.
type LendingMetrics struct {
	operationsTotal     *prometheus.CounterVec
	operationFailures   *prometheus.CounterVec
	reserveUtilization  *prometheus.GaugeVec
	reserveBorrowRate   *prometheus.GaugeVec
	liquidationsTotal   *prometheus.CounterVec
	liquidationBonusBps *prometheus.GaugeVec
	flashLoansTotal     *prometheus.CounterVec
	protocolFeesAccrued *prometheus.GaugeVec
}

var (
	lendingOnce     sync.Once
	lendingRegistry *LendingMetrics
)

// Lending returns the process-wide lending metrics registry, constructing
// and registering it on first use.
func Lending() *LendingMetrics {
	lendingOnce.Do(func() {
		lendingRegistry = &LendingMetrics{
			operationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "lending_operations_total",
				Help: "Count of engine operations executed, by operation name.",
			}, []string{"operation"}),
			operationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "lending_operation_failures_total",
				Help: "Count of engine operations that returned an error, by operation and error code.",
			}, []string{"operation", "error"}),
			reserveUtilization: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "lending_reserve_utilization",
				Help: "Current borrow utilization for a reserve.",
			}, []string{"reserve"}),
			reserveBorrowRate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "lending_reserve_borrow_rate",
				Help: "Current annualized borrow rate for a reserve.",
			}, []string{"reserve"}),
			liquidationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "lending_liquidations_total",
				Help: "Count of liquidate_and_redeem calls by outcome.",
			}, []string{"outcome"}),
			liquidationBonusBps: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "lending_liquidation_bonus_bps",
				Help: "Liquidation bonus applied to the most recent liquidation of a reserve.",
			}, []string{"reserve"}),
			flashLoansTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "lending_flash_loans_total",
				Help: "Count of completed flash_borrow/flash_repay pairs by reserve.",
			}, []string{"reserve"}),
			protocolFeesAccrued: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "lending_protocol_fees_accrued",
				Help: "Accumulated protocol fees outstanding for a reserve.",
			}, []string{"reserve"}),
		}
		prometheus.MustRegister(
			lendingRegistry.operationsTotal,
			lendingRegistry.operationFailures,
			lendingRegistry.reserveUtilization,
			lendingRegistry.reserveBorrowRate,
			lendingRegistry.liquidationsTotal,
			lendingRegistry.liquidationBonusBps,
			lendingRegistry.flashLoansTotal,
			lendingRegistry.protocolFeesAccrued,
		)
	})
	return lendingRegistry
}

func (m *LendingMetrics) ObserveOperation(operation string) {
	if m == nil {
		return
	}
	m.operationsTotal.WithLabelValues(normalizeLabel(operation)).Inc()
}

func (m *LendingMetrics) ObserveOperationFailure(operation, errorCode string) {
	if m == nil {
		return
	}
	m.operationFailures.WithLabelValues(normalizeLabel(operation), normalizeLabel(errorCode)).Inc()
}

func (m *LendingMetrics) SetReserveUtilization(reserve string, utilization float64) {
	if m == nil {
		return
	}
	m.reserveUtilization.WithLabelValues(normalizeLabel(reserve)).Set(utilization)
}

func (m *LendingMetrics) SetReserveBorrowRate(reserve string, rate float64) {
	if m == nil {
		return
	}
	m.reserveBorrowRate.WithLabelValues(normalizeLabel(reserve)).Set(rate)
}

func (m *LendingMetrics) ObserveLiquidation(outcome string) {
	if m == nil {
		return
	}
	m.liquidationsTotal.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *LendingMetrics) SetLiquidationBonusBps(reserve string, bps float64) {
	if m == nil {
		return
	}
	m.liquidationBonusBps.WithLabelValues(normalizeLabel(reserve)).Set(bps)
}

func (m *LendingMetrics) ObserveFlashLoan(reserve string) {
	if m == nil {
		return
	}
	m.flashLoansTotal.WithLabelValues(normalizeLabel(reserve)).Inc()
}

func (m *LendingMetrics) SetProtocolFeesAccrued(reserve string, amount float64) {
	if m == nil {
		return
	}
	m.protocolFeesAccrued.WithLabelValues(normalizeLabel(reserve)).Set(amount)
}

func normalizeLabel(label string) string {
	trimmed := strings.TrimSpace(label)
	if trimmed == "" {
		return "unknown"
	}
	return strings.ToLower(trimmed)
}
