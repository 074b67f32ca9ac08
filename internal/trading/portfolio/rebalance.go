package portfolio

import (
	"risk_calculator/internal/core"
	"risk_calculator/internal/trading/position"
	apperrors "risk_calculator/pkg/errors"

	"github.com/shopspring/decimal"
)

// Allocation records one cross position's margin before and after a rebalance
type Allocation struct {
	PositionID       int64
	Symbol           string
	Notional         decimal.Decimal
	Before           decimal.Decimal
	After            decimal.Decimal
	LiquidationPrice *decimal.Decimal // nil when the allocation leaves no threshold
}

// Rebalance redistributes free balance across cross positions in proportion
// to their notional at the latest mark. It fails with InsufficientMargin,
// changing nothing, when isolated margin already exceeds the balance.
func (p *Portfolio) Rebalance() ([]Allocation, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rebalanceLocked()
}

func (p *Portfolio) rebalanceLocked() ([]Allocation, error) {
	free := p.freeBalanceLocked()
	if free.IsNegative() {
		return nil, &apperrors.MarginError{
			Required:  p.isolatedMarginLocked(),
			Available: p.balance,
			Reason:    "isolated margin exceeds balance, account is under-margined",
		}
	}

	var cross []*position.Position
	for _, pos := range p.sortedOpenLocked() {
		if pos.MarginMode == core.MarginCross {
			cross = append(cross, pos)
		}
	}
	if len(cross) == 0 {
		return nil, nil
	}

	amounts := proportionalShares(free, cross, p.markLocked)

	allocations := make([]Allocation, len(cross))
	for i, pos := range cross {
		allocations[i] = Allocation{
			PositionID: pos.ID,
			Symbol:     pos.Symbol,
			Notional:   pos.NotionalAt(p.markLocked(pos)),
			Before:     pos.AllocatedMargin,
			After:      amounts[i],
		}
		// shares are non-negative by construction
		_ = pos.SetAllocatedMargin(amounts[i])
		if liq, err := p.engine.LiquidationPrice(pos); err == nil {
			allocations[i].LiquidationPrice = &liq
		}
	}

	return allocations, nil
}

// proportionalShares splits total by notional weight; the last share takes
// the remainder so the shares sum to total exactly.
func proportionalShares(total decimal.Decimal, cross []*position.Position, mark func(*position.Position) decimal.Decimal) []decimal.Decimal {
	notionals := make([]decimal.Decimal, len(cross))
	sum := decimal.Zero
	for i, pos := range cross {
		notionals[i] = pos.NotionalAt(mark(pos))
		sum = sum.Add(notionals[i])
	}

	shares := make([]decimal.Decimal, len(cross))
	assigned := decimal.Zero
	for i := range cross {
		if i == len(cross)-1 {
			shares[i] = total.Sub(assigned)
			break
		}
		shares[i] = total.Mul(notionals[i]).Div(sum)
		assigned = assigned.Add(shares[i])
	}
	if shares[len(shares)-1].IsNegative() {
		shares[len(shares)-1] = decimal.Zero
	}
	return shares
}

// settleCrossLocked rebalances after a committed change. When the account can
// no longer fund cross positions their allocations are zeroed.
func (p *Portfolio) settleCrossLocked(trigger string) {
	if !p.hasCrossLocked() {
		return
	}
	if _, err := p.rebalanceLocked(); err != nil {
		for _, pos := range p.positions {
			if pos.MarginMode == core.MarginCross {
				_ = pos.SetAllocatedMargin(decimal.Zero)
			}
		}
		p.logger.Warn("Cross positions left without margin",
			"trigger", trigger,
			"balance", p.balance.StringFixed(2),
			"error", err)
	}
}
