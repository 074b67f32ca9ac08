// Package position defines a leveraged futures position and its lifecycle
package position

import (
	"fmt"
	"strings"
	"time"

	"risk_calculator/internal/core"
	apperrors "risk_calculator/pkg/errors"

	"github.com/shopspring/decimal"
)

var one = decimal.NewFromInt(1)

// Position is one leveraged exposure on a symbol
type Position struct {
	ID                    int64               `json:"id"`
	Symbol                string              `json:"symbol"`
	Side                  core.Side           `json:"side"`
	MarginMode            core.MarginMode     `json:"margin_mode"`
	EntryPrice            decimal.Decimal     `json:"entry_price"`
	Size                  decimal.Decimal     `json:"size"`
	Leverage              decimal.Decimal     `json:"leverage"`
	AllocatedMargin       decimal.Decimal     `json:"allocated_margin"`
	MaintenanceMarginRate decimal.Decimal     `json:"maintenance_margin_rate"`
	Status                core.PositionStatus `json:"status"`
	RealizedPnL           *decimal.Decimal    `json:"realized_pnl,omitempty"`
	ExitPrice             *decimal.Decimal    `json:"exit_price,omitempty"`
	StopPrice             *decimal.Decimal    `json:"stop_price,omitempty"`
	TakeProfit            *decimal.Decimal    `json:"take_profit,omitempty"`
	OpenedAt              time.Time           `json:"opened_at"`
	ClosedAt              *time.Time          `json:"closed_at,omitempty"`
}

// Params carries the inputs for a new position
type Params struct {
	ID                    int64
	Symbol                string
	Side                  core.Side
	MarginMode            core.MarginMode
	EntryPrice            decimal.Decimal
	Size                  decimal.Decimal
	Leverage              decimal.Decimal
	AllocatedMargin       decimal.Decimal
	MaintenanceMarginRate decimal.Decimal
	StopPrice             *decimal.Decimal
	TakeProfit            *decimal.Decimal
	OpenedAt              time.Time
}

// New validates params and returns an OPEN position
func New(p Params) (*Position, error) {
	symbol := strings.ToUpper(strings.TrimSpace(p.Symbol))
	if symbol == "" {
		return nil, apperrors.NewInputError("symbol", p.Symbol, "must not be empty")
	}
	if !p.Side.Valid() {
		return nil, apperrors.NewInputError("side", p.Side, "must be LONG or SHORT")
	}
	if !p.MarginMode.Valid() {
		return nil, apperrors.NewInputError("margin_mode", p.MarginMode, "must be CROSS or ISOLATED")
	}
	if !p.EntryPrice.IsPositive() {
		return nil, apperrors.NewInputError("entry_price", p.EntryPrice, "must be positive")
	}
	if !p.Size.IsPositive() {
		return nil, apperrors.NewInputError("size", p.Size, "must be positive")
	}
	if p.Leverage.LessThan(one) {
		return nil, apperrors.NewInputError("leverage", p.Leverage, "must be at least 1")
	}
	if p.AllocatedMargin.IsNegative() {
		return nil, apperrors.NewInputError("allocated_margin", p.AllocatedMargin, "must not be negative")
	}
	if !p.MaintenanceMarginRate.IsPositive() || p.MaintenanceMarginRate.GreaterThanOrEqual(one) {
		return nil, apperrors.NewInputError("maintenance_margin_rate", p.MaintenanceMarginRate, "must be in (0, 1)")
	}

	dir := decimal.NewFromInt(p.Side.Direction())
	if p.StopPrice != nil {
		// stop must sit on the loss side of entry
		if !p.StopPrice.IsPositive() || !dir.Mul(p.EntryPrice.Sub(*p.StopPrice)).IsPositive() {
			return nil, apperrors.NewInputError("stop_price", *p.StopPrice, fmt.Sprintf("must be on the loss side of entry %s for %s", p.EntryPrice, p.Side))
		}
	}
	if p.TakeProfit != nil {
		if !dir.Mul(p.TakeProfit.Sub(p.EntryPrice)).IsPositive() {
			return nil, apperrors.NewInputError("take_profit", *p.TakeProfit, fmt.Sprintf("must be on the profit side of entry %s for %s", p.EntryPrice, p.Side))
		}
	}

	openedAt := p.OpenedAt
	if openedAt.IsZero() {
		openedAt = time.Now().UTC()
	}

	return &Position{
		ID:                    p.ID,
		Symbol:                symbol,
		Side:                  p.Side,
		MarginMode:            p.MarginMode,
		EntryPrice:            p.EntryPrice,
		Size:                  p.Size,
		Leverage:              p.Leverage,
		AllocatedMargin:       p.AllocatedMargin,
		MaintenanceMarginRate: p.MaintenanceMarginRate,
		Status:                core.StatusOpen,
		StopPrice:             copyDecimal(p.StopPrice),
		TakeProfit:            copyDecimal(p.TakeProfit),
		OpenedAt:              openedAt,
	}, nil
}

// IsOpen reports whether the position still participates in margin accounting
func (p *Position) IsOpen() bool {
	return p.Status == core.StatusOpen
}

// Direction is +1 for LONG, -1 for SHORT
func (p *Position) Direction() decimal.Decimal {
	return decimal.NewFromInt(p.Side.Direction())
}

// Notional is size valued at entry
func (p *Position) Notional() decimal.Decimal {
	return p.Size.Mul(p.EntryPrice)
}

// NotionalAt is size valued at price
func (p *Position) NotionalAt(price decimal.Decimal) decimal.Decimal {
	return p.Size.Mul(price)
}

// InitialMargin is notional at entry over leverage
func (p *Position) InitialMargin() decimal.Decimal {
	return p.Notional().Div(p.Leverage)
}

// SetAllocatedMargin reassigns a cross position's share of free balance
func (p *Position) SetAllocatedMargin(margin decimal.Decimal) error {
	if p.MarginMode != core.MarginCross {
		return fmt.Errorf("position #%d: isolated margin is fixed after open", p.ID)
	}
	if margin.IsNegative() {
		return apperrors.NewInputError("allocated_margin", margin, "must not be negative")
	}
	p.AllocatedMargin = margin
	return nil
}

// Close moves the position to CLOSED exactly once
func (p *Position) Close(exitPrice, realizedPnL decimal.Decimal, at time.Time) error {
	if !p.IsOpen() {
		return &apperrors.NotFoundError{PositionID: p.ID, Closed: true}
	}
	if !exitPrice.IsPositive() {
		return apperrors.NewInputError("exit_price", exitPrice, "must be positive")
	}
	p.Status = core.StatusClosed
	p.ExitPrice = &exitPrice
	p.RealizedPnL = &realizedPnL
	closedAt := at.UTC()
	p.ClosedAt = &closedAt
	return nil
}

// Clone returns a deep copy safe to hand out of the portfolio lock
func (p *Position) Clone() *Position {
	c := *p
	c.RealizedPnL = copyDecimal(p.RealizedPnL)
	c.ExitPrice = copyDecimal(p.ExitPrice)
	c.StopPrice = copyDecimal(p.StopPrice)
	c.TakeProfit = copyDecimal(p.TakeProfit)
	if p.ClosedAt != nil {
		t := *p.ClosedAt
		c.ClosedAt = &t
	}
	return &c
}

func (p *Position) String() string {
	return fmt.Sprintf("#%d %s %s %s size=%s entry=%s lev=%sx margin=%s",
		p.ID, p.Symbol, p.Side, p.MarginMode, p.Size, p.EntryPrice, p.Leverage, p.AllocatedMargin.StringFixed(2))
}

func copyDecimal(d *decimal.Decimal) *decimal.Decimal {
	if d == nil {
		return nil
	}
	v := *d
	return &v
}
