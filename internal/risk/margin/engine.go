// Package margin computes position sizing, margin and liquidation thresholds
// for leveraged futures. The Engine is immutable after construction and safe
// for concurrent use.
package margin

import (
	"fmt"
	"sort"
	"strings"

	"risk_calculator/internal/core"
	"risk_calculator/internal/trading/position"
	apperrors "risk_calculator/pkg/errors"

	"github.com/shopspring/decimal"
)

var (
	zero    = decimal.Zero
	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
)

// Tier assigns a maintenance margin rate to leverage up to MaxLeverage
type Tier struct {
	MaxLeverage decimal.Decimal
	MMR         decimal.Decimal
}

// DefaultTiers are used when configuration supplies none
func DefaultTiers() []Tier {
	return []Tier{
		{MaxLeverage: decimal.NewFromInt(20), MMR: decimal.RequireFromString("0.005")},
		{MaxLeverage: decimal.NewFromInt(50), MMR: decimal.RequireFromString("0.0045")},
		{MaxLeverage: decimal.NewFromInt(125), MMR: decimal.RequireFromString("0.004")},
	}
}

// Engine holds the leverage ceiling and MMR tables
type Engine struct {
	maxLeverage decimal.Decimal
	tiers       []Tier
	symbolMMR   map[string]decimal.Decimal
}

// NewEngine builds an engine; tiers are sorted by leverage
func NewEngine(maxLeverage decimal.Decimal, tiers []Tier, symbolMMR map[string]decimal.Decimal) (*Engine, error) {
	if maxLeverage.LessThan(one) {
		return nil, apperrors.NewInputError("max_leverage", maxLeverage, "must be at least 1")
	}
	if len(tiers) == 0 {
		tiers = DefaultTiers()
	}

	sorted := make([]Tier, len(tiers))
	copy(sorted, tiers)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].MaxLeverage.LessThan(sorted[j].MaxLeverage) })
	for _, t := range sorted {
		if !validRate(t.MMR) {
			return nil, apperrors.NewInputError("leverage_tiers.mmr", t.MMR, "must be in (0, 1)")
		}
	}

	overrides := make(map[string]decimal.Decimal, len(symbolMMR))
	for sym, mmr := range symbolMMR {
		if !validRate(mmr) {
			return nil, apperrors.NewInputError("symbol_mmr."+sym, mmr, "must be in (0, 1)")
		}
		overrides[strings.ToUpper(sym)] = mmr
	}

	return &Engine{
		maxLeverage: maxLeverage,
		tiers:       sorted,
		symbolMMR:   overrides,
	}, nil
}

// MaxLeverage returns the configured ceiling
func (e *Engine) MaxLeverage() decimal.Decimal {
	return e.maxLeverage
}

// ValidateLeverage enforces 1 <= leverage <= ceiling
func (e *Engine) ValidateLeverage(leverage decimal.Decimal) error {
	if leverage.LessThan(one) {
		return apperrors.NewInputError("leverage", leverage, "must be at least 1")
	}
	if leverage.GreaterThan(e.maxLeverage) {
		return apperrors.NewInputError("leverage", leverage, fmt.Sprintf("exceeds maximum %s", e.maxLeverage))
	}
	return nil
}

// DefaultMMR picks the symbol override, else the first tier covering leverage
func (e *Engine) DefaultMMR(symbol string, leverage decimal.Decimal) decimal.Decimal {
	if mmr, ok := e.symbolMMR[strings.ToUpper(symbol)]; ok {
		return mmr
	}
	for _, t := range e.tiers {
		if leverage.LessThanOrEqual(t.MaxLeverage) {
			return t.MMR
		}
	}
	return e.tiers[len(e.tiers)-1].MMR
}

// SizeFromRisk returns the base quantity whose loss from entry to stop equals
// balance × riskPct.
func (e *Engine) SizeFromRisk(balance, riskPct, entryPrice, stopPrice, leverage decimal.Decimal) (decimal.Decimal, error) {
	if !balance.IsPositive() {
		return zero, apperrors.NewInputError("balance", balance, "must be positive")
	}
	if !riskPct.IsPositive() || riskPct.GreaterThan(one) {
		return zero, apperrors.NewInputError("risk_pct", riskPct, "must be in (0, 1]")
	}
	if !entryPrice.IsPositive() {
		return zero, apperrors.NewInputError("entry_price", entryPrice, "must be positive")
	}
	if !stopPrice.IsPositive() {
		return zero, apperrors.NewInputError("stop_price", stopPrice, "must be positive")
	}
	if stopPrice.Equal(entryPrice) {
		return zero, apperrors.NewInputError("stop_price", stopPrice, "must differ from entry price")
	}
	if err := e.ValidateLeverage(leverage); err != nil {
		return zero, err
	}

	riskAmount := balance.Mul(riskPct)
	priceDeltaPct := entryPrice.Sub(stopPrice).Abs().Div(entryPrice)
	notional := riskAmount.Div(priceDeltaPct)
	return notional.Div(entryPrice), nil
}

// RequiredMargin is notional / leverage
func (e *Engine) RequiredMargin(notional, leverage decimal.Decimal) (decimal.Decimal, error) {
	if err := e.ValidateLeverage(leverage); err != nil {
		return zero, err
	}
	if notional.IsNegative() {
		return zero, apperrors.NewInputError("notional", notional, "must not be negative")
	}
	return notional.Div(leverage), nil
}

// LiquidationPrice applies entry × (1 − dir × (1/leverage − mmr)).
// Isolated positions use their own leverage; cross positions use the effective
// leverage notional / allocatedMargin, so rebalancing moves the threshold.
func (e *Engine) LiquidationPrice(pos *position.Position) (decimal.Decimal, error) {
	inv, err := inverseLeverage(pos)
	if err != nil {
		return zero, err
	}
	return liquidationAt(pos.ID, pos.Side, pos.EntryPrice, inv, pos.MaintenanceMarginRate)
}

// UnrealizedPnL is dir × (price − entry) × size
func (e *Engine) UnrealizedPnL(pos *position.Position, price decimal.Decimal) decimal.Decimal {
	return pos.Direction().Mul(price.Sub(pos.EntryPrice)).Mul(pos.Size)
}

// PnLPct is unrealized PnL as a fraction of allocated margin; zero when nothing is allocated
func (e *Engine) PnLPct(pos *position.Position, price decimal.Decimal) decimal.Decimal {
	if !pos.AllocatedMargin.IsPositive() {
		return zero
	}
	return e.UnrealizedPnL(pos, price).Div(pos.AllocatedMargin)
}

// IsLiquidated reports whether price has crossed to the losing side of the liquidation price
func (e *Engine) IsLiquidated(pos *position.Position, price decimal.Decimal) (bool, error) {
	liq, err := e.LiquidationPrice(pos)
	if err != nil {
		return false, err
	}
	return !pos.Direction().Mul(price.Sub(liq)).IsPositive(), nil
}

// MaintenanceMargin is |size| × price × mmr
func (e *Engine) MaintenanceMargin(size, price, mmr decimal.Decimal) decimal.Decimal {
	return size.Abs().Mul(price).Mul(mmr)
}

// AccountLiquidationPrice estimates where the whole cross account would be
// liquidated: p' = (e − s·p − MMR_o) / (|s|·mmr − s), floored at zero, with
// s the signed size and MMR_o the maintenance requirement of other positions.
func (e *Engine) AccountLiquidationPrice(pos *position.Position, equity, otherMaintenance decimal.Decimal) (decimal.Decimal, error) {
	s := pos.Direction().Mul(pos.Size)
	denominator := s.Abs().Mul(pos.MaintenanceMarginRate).Sub(s)
	if denominator.IsZero() {
		return zero, apperrors.NewInputError("maintenance_margin_rate", pos.MaintenanceMarginRate, "leaves no liquidation threshold")
	}
	liq := equity.Sub(s.Mul(pos.EntryPrice)).Sub(otherMaintenance).Div(denominator)
	if liq.IsNegative() {
		return zero, nil
	}
	return liq, nil
}

// PnLAtTarget is the profit if price reaches target
func (e *Engine) PnLAtTarget(pos *position.Position, target decimal.Decimal) decimal.Decimal {
	return e.UnrealizedPnL(pos, target)
}

// ROI expresses pnl as a percentage of margin; zero without margin
func (e *Engine) ROI(pnl, margin decimal.Decimal) decimal.Decimal {
	if !margin.IsPositive() {
		return zero
	}
	return pnl.Div(margin).Mul(hundred)
}

// RiskReward is reward to target over risk to invalidation. ok is false when
// the risk leg is not positive and the ratio is unbounded.
func (e *Engine) RiskReward(side core.Side, entry, target, invalidation decimal.Decimal) (ratio decimal.Decimal, ok bool) {
	dir := decimal.NewFromInt(side.Direction())
	reward := dir.Mul(target.Sub(entry))
	risk := dir.Mul(entry.Sub(invalidation))
	if !risk.IsPositive() {
		return zero, false
	}
	return reward.Div(risk), true
}

func inverseLeverage(pos *position.Position) (decimal.Decimal, error) {
	switch pos.MarginMode {
	case core.MarginIsolated:
		if pos.Leverage.LessThan(one) {
			return zero, apperrors.NewInputError("leverage", pos.Leverage, "must be at least 1")
		}
		return one.Div(pos.Leverage), nil
	case core.MarginCross:
		notional := pos.Notional()
		if !notional.IsPositive() {
			return zero, apperrors.NewInputError("size", pos.Size, "must be positive")
		}
		return pos.AllocatedMargin.Div(notional), nil
	default:
		return zero, apperrors.NewInputError("margin_mode", pos.MarginMode, "must be CROSS or ISOLATED")
	}
}

func liquidationAt(id int64, side core.Side, entry, inverseLev, mmr decimal.Decimal) (decimal.Decimal, error) {
	if mmr.GreaterThanOrEqual(inverseLev) {
		reason := fmt.Sprintf("maintenance rate %s leaves no buffer at margin ratio %s", mmr, inverseLev.StringFixed(6))
		if id > 0 {
			reason += fmt.Sprintf(" (position #%d)", id)
		}
		return zero, apperrors.NewInputError("maintenance_margin_rate", mmr, reason)
	}

	dir := decimal.NewFromInt(side.Direction())
	liq := entry.Mul(one.Sub(dir.Mul(inverseLev.Sub(mmr))))
	if liq.IsNegative() {
		return zero, nil
	}
	return liq, nil
}

func validRate(r decimal.Decimal) bool {
	return r.IsPositive() && r.LessThan(one)
}
