package margin

import (
	"risk_calculator/internal/core"
	"risk_calculator/internal/trading/position"
	apperrors "risk_calculator/pkg/errors"

	"github.com/shopspring/decimal"
)

// QuoteRequest describes a hypothetical trade. Size comes from MarginAmount
// when set, else from StopPrice via SizeFromRisk, else margin = balance × riskPct.
type QuoteRequest struct {
	Symbol       string
	Side         core.Side
	MarginMode   core.MarginMode
	Balance      decimal.Decimal
	RiskPct      decimal.Decimal
	Leverage     decimal.Decimal
	EntryPrice   decimal.Decimal
	StopPrice    *decimal.Decimal
	TakeProfit   *decimal.Decimal
	MarginAmount *decimal.Decimal
	MMR          *decimal.Decimal
}

// Quote is the full set of metrics for a QuoteRequest
type Quote struct {
	Symbol                  string
	Side                    core.Side
	MarginMode              core.MarginMode
	Size                    decimal.Decimal
	Notional                decimal.Decimal
	Margin                  decimal.Decimal
	Leverage                decimal.Decimal
	MaintenanceMarginRate   decimal.Decimal
	LiquidationPrice        decimal.Decimal
	AccountLiquidationPrice *decimal.Decimal // cross only
	LossAtStop              *decimal.Decimal
	PnLAtTarget             *decimal.Decimal
	ROIPct                  *decimal.Decimal
	RiskReward              *decimal.Decimal // nil when unbounded or no target
	MaxLoss                 decimal.Decimal
}

// Quote runs a standalone calculation without touching any portfolio.
// Cross quotes assume the whole balance backs the trade.
func (e *Engine) Quote(req QuoteRequest) (*Quote, error) {
	if !req.Balance.IsPositive() {
		return nil, apperrors.NewInputError("balance", req.Balance, "must be positive")
	}
	if !req.EntryPrice.IsPositive() {
		return nil, apperrors.NewInputError("entry_price", req.EntryPrice, "must be positive")
	}
	if err := e.ValidateLeverage(req.Leverage); err != nil {
		return nil, err
	}

	var notional decimal.Decimal
	switch {
	case req.MarginAmount != nil:
		if !req.MarginAmount.IsPositive() {
			return nil, apperrors.NewInputError("margin", *req.MarginAmount, "must be positive")
		}
		notional = req.MarginAmount.Mul(req.Leverage)
	case req.StopPrice != nil:
		size, err := e.SizeFromRisk(req.Balance, req.RiskPct, req.EntryPrice, *req.StopPrice, req.Leverage)
		if err != nil {
			return nil, err
		}
		notional = size.Mul(req.EntryPrice)
	default:
		if !req.RiskPct.IsPositive() || req.RiskPct.GreaterThan(one) {
			return nil, apperrors.NewInputError("risk_pct", req.RiskPct, "must be in (0, 1]")
		}
		notional = req.Balance.Mul(req.RiskPct).Mul(req.Leverage)
	}

	margin, err := e.RequiredMargin(notional, req.Leverage)
	if err != nil {
		return nil, err
	}

	mmr := e.DefaultMMR(req.Symbol, req.Leverage)
	if req.MMR != nil {
		mmr = *req.MMR
	}

	allocated := margin
	if req.MarginMode == core.MarginCross {
		allocated = req.Balance
	}

	symbol := req.Symbol
	if symbol == "" {
		symbol = "QUOTE"
	}
	pos, err := position.New(position.Params{
		Symbol:                symbol,
		Side:                  req.Side,
		MarginMode:            req.MarginMode,
		EntryPrice:            req.EntryPrice,
		Size:                  notional.Div(req.EntryPrice),
		Leverage:              req.Leverage,
		AllocatedMargin:       allocated,
		MaintenanceMarginRate: mmr,
		StopPrice:             req.StopPrice,
		TakeProfit:            req.TakeProfit,
	})
	if err != nil {
		return nil, err
	}

	liq, err := e.LiquidationPrice(pos)
	if err != nil {
		return nil, err
	}

	q := &Quote{
		Symbol:                pos.Symbol,
		Side:                  pos.Side,
		MarginMode:            pos.MarginMode,
		Size:                  pos.Size,
		Notional:              notional,
		Margin:                margin,
		Leverage:              req.Leverage,
		MaintenanceMarginRate: mmr,
		LiquidationPrice:      liq,
		MaxLoss:               margin,
	}

	if pos.MarginMode == core.MarginCross {
		q.MaxLoss = req.Balance
		accountLiq, err := e.AccountLiquidationPrice(pos, req.Balance, zero)
		if err == nil {
			q.AccountLiquidationPrice = &accountLiq
		}
	}

	invalidation := liq
	if req.StopPrice != nil {
		loss := e.UnrealizedPnL(pos, *req.StopPrice).Neg()
		q.LossAtStop = &loss
		invalidation = *req.StopPrice
	}

	if req.TakeProfit != nil {
		pnl := e.PnLAtTarget(pos, *req.TakeProfit)
		roi := e.ROI(pnl, margin)
		q.PnLAtTarget = &pnl
		q.ROIPct = &roi
		if rr, ok := e.RiskReward(pos.Side, req.EntryPrice, *req.TakeProfit, invalidation); ok {
			q.RiskReward = &rr
		}
	}

	return q, nil
}
