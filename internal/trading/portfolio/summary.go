package portfolio

import (
	"sort"
	"strings"
	"time"

	"risk_calculator/internal/core"
	"risk_calculator/internal/trading/position"
	"risk_calculator/pkg/tradingutils"

	"github.com/shopspring/decimal"
)

// PositionDetail is the valuation of one open position
type PositionDetail struct {
	Position                *position.Position
	Priced                  bool
	CurrentPrice            decimal.Decimal
	Notional                decimal.Decimal
	UnrealizedPnL           decimal.Decimal
	PnLPct                  decimal.Decimal // fraction of allocated margin
	LiquidationPrice        *decimal.Decimal
	LiquidationError        string
	AccountLiquidationPrice *decimal.Decimal // cross only
	LiquidationDistancePct  *decimal.Decimal
	Liquidated              bool
	PnLAtTarget             *decimal.Decimal
	ROIAtTargetPct          *decimal.Decimal
	RiskReward              *decimal.Decimal
	MaxLoss                 decimal.Decimal
}

// Summary is a read-only view of the account at a set of prices
type Summary struct {
	GeneratedAt        time.Time
	InitialBalance     decimal.Decimal
	Balance            decimal.Decimal
	FreeBalance        decimal.Decimal
	Available          decimal.Decimal
	Equity             decimal.Decimal
	IsolatedMargin     decimal.Decimal
	CrossMargin        decimal.Decimal
	TotalMarginUsed    decimal.Decimal
	UnderMargined      bool            // allocated margin exceeds the balance after a loss past liquidation
	MarginShortfall    decimal.Decimal // TotalMarginUsed - Balance when under-margined
	RealizedPnL        decimal.Decimal
	TotalUnrealizedPnL decimal.Decimal
	OpenPositions      int
	ClosedPositions    int
	Positions          []PositionDetail
	Unpriced           []string
}

// Summary values every open position. Positions whose symbol has no price
// are listed unpriced and excluded from unrealized PnL. It never mutates state.
func (p *Portfolio) Summary(prices map[string]decimal.Decimal) Summary {
	p.mu.RLock()
	defer p.mu.RUnlock()

	normalized := make(map[string]decimal.Decimal, len(prices))
	for sym, price := range prices {
		if price.IsPositive() {
			normalized[strings.ToUpper(sym)] = price
		}
	}

	isolated := p.isolatedMarginLocked()
	crossMargin := p.crossMarginLocked()
	s := Summary{
		GeneratedAt:     p.clock().UTC(),
		InitialBalance:  p.initialBalance,
		Balance:         p.balance,
		FreeBalance:     p.balance.Sub(isolated),
		Available:       p.availableLocked(),
		IsolatedMargin:  isolated,
		CrossMargin:     crossMargin,
		TotalMarginUsed: isolated.Add(crossMargin),
		RealizedPnL:     p.realizedPnL,
		OpenPositions:   len(p.positions),
		ClosedPositions: len(p.history),
		MarginShortfall: p.shortfallLocked(),
	}
	s.UnderMargined = s.MarginShortfall.IsPositive()

	open := p.sortedOpenLocked()
	unpriced := make(map[string]struct{})
	totalUnrealized := decimal.Zero

	for _, pos := range open {
		detail := p.detailLocked(pos, open, normalized)
		if detail.Priced {
			totalUnrealized = totalUnrealized.Add(detail.UnrealizedPnL)
		} else {
			unpriced[pos.Symbol] = struct{}{}
		}
		s.Positions = append(s.Positions, detail)
	}

	for sym := range unpriced {
		s.Unpriced = append(s.Unpriced, sym)
	}
	sort.Strings(s.Unpriced)

	s.TotalUnrealizedPnL = totalUnrealized
	s.Equity = p.balance.Add(totalUnrealized)
	return s
}

func (p *Portfolio) detailLocked(pos *position.Position, open []*position.Position, prices map[string]decimal.Decimal) PositionDetail {
	e := p.engine
	detail := PositionDetail{
		Position: pos.Clone(),
		MaxLoss:  pos.AllocatedMargin,
	}
	if pos.MarginMode == core.MarginCross {
		detail.MaxLoss = p.balance
	}

	liq, err := e.LiquidationPrice(pos)
	if err != nil {
		detail.LiquidationError = err.Error()
	} else {
		detail.LiquidationPrice = &liq
	}

	if pos.MarginMode == core.MarginCross {
		other := decimal.Zero
		for _, o := range open {
			if o.ID == pos.ID {
				continue
			}
			price, ok := prices[o.Symbol]
			if !ok {
				price = o.EntryPrice
			}
			other = other.Add(e.MaintenanceMargin(o.Size, price, o.MaintenanceMarginRate))
		}
		if accountLiq, err := e.AccountLiquidationPrice(pos, p.balance, other); err == nil {
			detail.AccountLiquidationPrice = &accountLiq
		}
	}

	if pos.TakeProfit != nil {
		pnl := e.PnLAtTarget(pos, *pos.TakeProfit)
		roi := e.ROI(pnl, pos.InitialMargin())
		detail.PnLAtTarget = &pnl
		detail.ROIAtTargetPct = &roi

		invalidation := liq
		if pos.StopPrice != nil {
			invalidation = *pos.StopPrice
		}
		if pos.StopPrice != nil || detail.LiquidationPrice != nil {
			if rr, ok := e.RiskReward(pos.Side, pos.EntryPrice, *pos.TakeProfit, invalidation); ok {
				detail.RiskReward = &rr
			}
		}
	}

	price, ok := prices[pos.Symbol]
	if !ok {
		return detail
	}

	detail.Priced = true
	detail.CurrentPrice = price
	detail.Notional = pos.NotionalAt(price)
	detail.UnrealizedPnL = e.UnrealizedPnL(pos, price)
	detail.PnLPct = e.PnLPct(pos, price)

	if detail.LiquidationPrice != nil {
		dist := tradingutils.DistancePct(price, *detail.LiquidationPrice).Abs()
		detail.LiquidationDistancePct = &dist
		detail.Liquidated = !pos.Direction().Mul(price.Sub(*detail.LiquidationPrice)).IsPositive()
	}

	return detail
}
