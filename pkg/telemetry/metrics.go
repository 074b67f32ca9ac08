package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric names
const (
	MetricAccountBalance        = "risk_calculator_account_balance"
	MetricMarginUsed            = "risk_calculator_margin_used"
	MetricPnLRealizedTotal      = "risk_calculator_pnl_realized_total"
	MetricPnLUnrealized         = "risk_calculator_pnl_unrealized"
	MetricLiquidationDistance   = "risk_calculator_liquidation_distance_pct"
	MetricPositionsOpenedTotal  = "risk_calculator_positions_opened_total"
	MetricPositionsClosedTotal  = "risk_calculator_positions_closed_total"
	MetricPriceFetchErrorsTotal = "risk_calculator_price_fetch_errors_total"
	MetricPriceFetchLatency     = "risk_calculator_price_fetch_latency_ms"
)

// MetricsHolder holds initialized instruments
type MetricsHolder struct {
	AccountBalance        metric.Float64ObservableGauge
	MarginUsed            metric.Float64ObservableGauge
	PnLRealizedTotal      metric.Float64Counter
	PnLUnrealized         metric.Float64ObservableGauge
	LiquidationDistance   metric.Float64ObservableGauge
	PositionsOpenedTotal  metric.Int64Counter
	PositionsClosedTotal  metric.Int64Counter
	PriceFetchErrorsTotal metric.Int64Counter
	PriceFetchLatency     metric.Float64Histogram

	// State for observable gauges
	mu                 sync.RWMutex
	balance            float64
	marginUsedMap      map[string]float64 // margin mode -> amount
	unrealizedPnLMap   map[string]float64 // symbol -> pnl
	liquidationDistMap map[string]float64 // position id -> pct
	initialized        bool
}

var (
	globalMetrics *MetricsHolder
	initOnce      sync.Once
)

// GetGlobalMetrics returns the singleton metrics holder
func GetGlobalMetrics() *MetricsHolder {
	initOnce.Do(func() {
		globalMetrics = &MetricsHolder{
			marginUsedMap:      make(map[string]float64),
			unrealizedPnLMap:   make(map[string]float64),
			liquidationDistMap: make(map[string]float64),
		}
	})
	return globalMetrics
}

// InitMetrics initializes instruments using the meter
func (m *MetricsHolder) InitMetrics(meter metric.Meter) error {
	var err error

	m.PnLRealizedTotal, err = meter.Float64Counter(MetricPnLRealizedTotal, metric.WithDescription("Cumulative realized profit/loss"))
	if err != nil {
		return err
	}

	m.PositionsOpenedTotal, err = meter.Int64Counter(MetricPositionsOpenedTotal, metric.WithDescription("Total positions opened"))
	if err != nil {
		return err
	}

	m.PositionsClosedTotal, err = meter.Int64Counter(MetricPositionsClosedTotal, metric.WithDescription("Total positions closed"))
	if err != nil {
		return err
	}

	m.PriceFetchErrorsTotal, err = meter.Int64Counter(MetricPriceFetchErrorsTotal, metric.WithDescription("Price lookups that failed or were stale"))
	if err != nil {
		return err
	}

	m.PriceFetchLatency, err = meter.Float64Histogram(MetricPriceFetchLatency, metric.WithDescription("Latency of price source calls"), metric.WithUnit("ms"))
	if err != nil {
		return err
	}

	// Observables
	m.AccountBalance, err = meter.Float64ObservableGauge(MetricAccountBalance, metric.WithDescription("Account balance"),
		metric.WithFloat64Callback(func(ctx context.Context, obs metric.Float64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			obs.Observe(m.balance)
			return nil
		}))
	if err != nil {
		return err
	}

	m.MarginUsed, err = meter.Float64ObservableGauge(MetricMarginUsed, metric.WithDescription("Allocated margin by margin mode"),
		metric.WithFloat64Callback(func(ctx context.Context, obs metric.Float64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			for mode, val := range m.marginUsedMap {
				obs.Observe(val, metric.WithAttributes(attribute.String("mode", mode)))
			}
			return nil
		}))
	if err != nil {
		return err
	}

	m.PnLUnrealized, err = meter.Float64ObservableGauge(MetricPnLUnrealized, metric.WithDescription("Current unrealized PnL"),
		metric.WithFloat64Callback(func(ctx context.Context, obs metric.Float64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			for sym, val := range m.unrealizedPnLMap {
				obs.Observe(val, metric.WithAttributes(attribute.String("symbol", sym)))
			}
			return nil
		}))
	if err != nil {
		return err
	}

	m.LiquidationDistance, err = meter.Float64ObservableGauge(MetricLiquidationDistance, metric.WithDescription("Distance from mark to liquidation price in percent"),
		metric.WithFloat64Callback(func(ctx context.Context, obs metric.Float64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			for id, val := range m.liquidationDistMap {
				obs.Observe(val, metric.WithAttributes(attribute.String("position", id)))
			}
			return nil
		}))
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.initialized = true
	m.mu.Unlock()
	return nil
}

func (m *MetricsHolder) ready() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.initialized
}

// Helpers to update observable state

func (m *MetricsHolder) SetBalance(value float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balance = value
}

func (m *MetricsHolder) SetMarginUsed(mode string, value float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.marginUsedMap[mode] = value
}

func (m *MetricsHolder) SetUnrealizedPnL(symbol string, value float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unrealizedPnLMap[symbol] = value
}

// ResetUnrealizedPnL drops all per-symbol values before a fresh valuation pass
func (m *MetricsHolder) ResetUnrealizedPnL() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unrealizedPnLMap = make(map[string]float64)
}

func (m *MetricsHolder) SetLiquidationDistance(positionID string, pct float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.liquidationDistMap[positionID] = pct
}

func (m *MetricsHolder) ClearLiquidationDistance(positionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.liquidationDistMap, positionID)
}

// Counter helpers are no-ops until InitMetrics has run

func (m *MetricsHolder) RecordRealizedPnL(ctx context.Context, symbol string, value float64) {
	if !m.ready() {
		return
	}
	m.PnLRealizedTotal.Add(ctx, value, metric.WithAttributes(attribute.String("symbol", symbol)))
}

func (m *MetricsHolder) RecordPositionOpened(ctx context.Context, symbol, mode string) {
	if !m.ready() {
		return
	}
	m.PositionsOpenedTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("symbol", symbol),
		attribute.String("mode", mode),
	))
}

func (m *MetricsHolder) RecordPositionClosed(ctx context.Context, symbol, mode string) {
	if !m.ready() {
		return
	}
	m.PositionsClosedTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("symbol", symbol),
		attribute.String("mode", mode),
	))
}

func (m *MetricsHolder) RecordPriceFetch(ctx context.Context, source string, latencyMs float64, failedSymbols int) {
	if !m.ready() {
		return
	}
	m.PriceFetchLatency.Record(ctx, latencyMs, metric.WithAttributes(attribute.String("source", source)))
	if failedSymbols > 0 {
		m.PriceFetchErrorsTotal.Add(ctx, int64(failedSymbols), metric.WithAttributes(attribute.String("source", source)))
	}
}

func (m *MetricsHolder) GetUnrealizedPnL() map[string]float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make(map[string]float64)
	for k, v := range m.unrealizedPnLMap {
		res[k] = v
	}
	return res
}

func (m *MetricsHolder) GetMarginUsed() map[string]float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make(map[string]float64)
	for k, v := range m.marginUsedMap {
		res[k] = v
	}
	return res
}

func (m *MetricsHolder) GetBalance() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.balance
}
