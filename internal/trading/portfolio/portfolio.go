// Package portfolio owns the account balance and its open positions. It
// enforces the margin coverage invariant on every mutation and shares free
// balance across cross-margin positions.
package portfolio

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"risk_calculator/internal/core"
	"risk_calculator/internal/risk/margin"
	"risk_calculator/internal/trading/position"
	apperrors "risk_calculator/pkg/errors"

	"github.com/shopspring/decimal"
)

// OpenRequest describes a position to open. Size comes from MarginAmount when
// set, otherwise from RiskPct and StopPrice.
type OpenRequest struct {
	Symbol       string
	Side         core.Side
	MarginMode   core.MarginMode
	EntryPrice   decimal.Decimal
	Leverage     decimal.Decimal
	RiskPct      decimal.Decimal
	StopPrice    *decimal.Decimal
	TakeProfit   *decimal.Decimal
	MarginAmount *decimal.Decimal
	MMR          *decimal.Decimal
}

// Portfolio is safe for concurrent use
type Portfolio struct {
	mu sync.RWMutex

	engine *margin.Engine
	logger core.ILogger
	clock  func() time.Time

	balance        decimal.Decimal
	initialBalance decimal.Decimal
	realizedPnL    decimal.Decimal
	nextID         int64

	positions map[int64]*position.Position
	history   []*position.Position
	marks     map[string]decimal.Decimal
}

// New creates an empty portfolio holding balance
func New(balance decimal.Decimal, engine *margin.Engine, logger core.ILogger) (*Portfolio, error) {
	if balance.IsNegative() {
		return nil, apperrors.NewInputError("balance", balance, "must not be negative")
	}
	if engine == nil {
		return nil, fmt.Errorf("portfolio requires a risk engine")
	}
	return &Portfolio{
		engine:         engine,
		logger:         logger.WithField("component", "portfolio"),
		clock:          time.Now,
		balance:        balance,
		initialBalance: balance,
		realizedPnL:    decimal.Zero,
		nextID:         1,
		positions:      make(map[int64]*position.Position),
		marks:          make(map[string]decimal.Decimal),
	}, nil
}

// Engine exposes the risk engine the portfolio was built with
func (p *Portfolio) Engine() *margin.Engine {
	return p.engine
}

// Balance is total account equity excluding unrealized PnL
func (p *Portfolio) Balance() decimal.Decimal {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.balance
}

// FreeBalance is balance minus isolated carve-outs; it is what cross positions share
func (p *Portfolio) FreeBalance() decimal.Decimal {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.freeBalanceLocked()
}

// Available is free balance not already committed as initial margin of cross positions
func (p *Portfolio) Available() decimal.Decimal {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.availableLocked()
}

// OpenPosition validates, sizes and adds a position. State is unchanged on error.
func (p *Portfolio) OpenPosition(req OpenRequest) (*position.Position, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.engine.ValidateLeverage(req.Leverage); err != nil {
		return nil, err
	}
	if !req.EntryPrice.IsPositive() {
		return nil, apperrors.NewInputError("entry_price", req.EntryPrice, "must be positive")
	}

	var size decimal.Decimal
	switch {
	case req.MarginAmount != nil:
		if !req.MarginAmount.IsPositive() {
			return nil, apperrors.NewInputError("margin", *req.MarginAmount, "must be positive")
		}
		size = req.MarginAmount.Mul(req.Leverage).Div(req.EntryPrice)
	case req.StopPrice != nil:
		var err error
		size, err = p.engine.SizeFromRisk(p.balance, req.RiskPct, req.EntryPrice, *req.StopPrice, req.Leverage)
		if err != nil {
			return nil, err
		}
	default:
		return nil, apperrors.NewInputError("stop_price", nil, "required when sizing from risk")
	}

	required, err := p.engine.RequiredMargin(size.Mul(req.EntryPrice), req.Leverage)
	if err != nil {
		return nil, err
	}

	mmr := p.engine.DefaultMMR(req.Symbol, req.Leverage)
	if req.MMR != nil {
		mmr = *req.MMR
	}

	pos, err := position.New(position.Params{
		ID:                    p.nextID,
		Symbol:                req.Symbol,
		Side:                  req.Side,
		MarginMode:            req.MarginMode,
		EntryPrice:            req.EntryPrice,
		Size:                  size,
		Leverage:              req.Leverage,
		AllocatedMargin:       required,
		MaintenanceMarginRate: mmr,
		StopPrice:             req.StopPrice,
		TakeProfit:            req.TakeProfit,
		OpenedAt:              p.clock(),
	})
	if err != nil {
		return nil, err
	}

	// At nominal leverage the threshold must exist on the loss side
	if _, err := p.engine.LiquidationPrice(pos); err != nil {
		return nil, err
	}

	available := p.availableLocked()
	if required.GreaterThan(available) {
		return nil, &apperrors.MarginError{
			Required:  required,
			Available: available,
			Reason:    fmt.Sprintf("cannot open %s %s %s", pos.Symbol, pos.Side, pos.MarginMode),
		}
	}

	p.positions[pos.ID] = pos
	p.nextID++

	if p.hasCrossLocked() {
		// free balance >= required margin here, so allocation cannot fail
		if _, err := p.rebalanceLocked(); err != nil {
			delete(p.positions, pos.ID)
			p.nextID--
			return nil, err
		}
	}

	p.logger.Info("Position opened",
		"id", pos.ID,
		"symbol", pos.Symbol,
		"side", pos.Side.String(),
		"mode", pos.MarginMode.String(),
		"size", pos.Size.String(),
		"entry", pos.EntryPrice.String(),
		"leverage", pos.Leverage.String(),
		"margin", pos.AllocatedMargin.StringFixed(2))

	return pos.Clone(), nil
}

// ClosePosition realizes PnL at exitPrice and credits it to the balance.
// The close always commits; if the remaining cross positions can no longer
// be funded their allocations drop to zero and a warning is logged.
func (p *Portfolio) ClosePosition(id int64, exitPrice decimal.Decimal) (decimal.Decimal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pos, ok := p.positions[id]
	if !ok {
		return decimal.Zero, &apperrors.NotFoundError{PositionID: id, Closed: p.isClosedLocked(id)}
	}
	if !exitPrice.IsPositive() {
		return decimal.Zero, apperrors.NewInputError("exit_price", exitPrice, "must be positive")
	}

	pnl := p.engine.UnrealizedPnL(pos, exitPrice)
	if err := pos.Close(exitPrice, pnl, p.clock()); err != nil {
		return decimal.Zero, err
	}

	p.balance = p.balance.Add(pnl)
	p.realizedPnL = p.realizedPnL.Add(pnl)
	delete(p.positions, id)
	p.history = append(p.history, pos)

	p.logger.Info("Position closed",
		"id", id,
		"symbol", pos.Symbol,
		"exit", exitPrice.String(),
		"realized_pnl", pnl.StringFixed(2),
		"balance", p.balance.StringFixed(2))

	p.settleCrossLocked("close")
	return pnl, nil
}

// UpdateMarks records the latest positive prices used to weight cross allocations
func (p *Portfolio) UpdateMarks(prices map[string]decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for sym, price := range prices {
		if price.IsPositive() {
			p.marks[strings.ToUpper(sym)] = price
		}
	}
}

// Marks returns a copy of the recorded mark prices
func (p *Portfolio) Marks() map[string]decimal.Decimal {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]decimal.Decimal, len(p.marks))
	for k, v := range p.marks {
		out[k] = v
	}
	return out
}

// Deposit adds funds and redistributes cross margin
func (p *Portfolio) Deposit(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return apperrors.NewInputError("amount", amount, "must be positive")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.balance = p.balance.Add(amount)
	p.logger.Info("Deposit", "amount", amount.String(), "balance", p.balance.StringFixed(2))
	p.settleCrossLocked("deposit")
	return nil
}

// Withdraw removes funds not committed as margin
func (p *Portfolio) Withdraw(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return apperrors.NewInputError("amount", amount, "must be positive")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	available := p.availableLocked()
	if amount.GreaterThan(available) {
		return &apperrors.MarginError{Required: amount, Available: available, Reason: "withdrawal exceeds uncommitted balance"}
	}

	p.balance = p.balance.Sub(amount)
	p.logger.Info("Withdraw", "amount", amount.String(), "balance", p.balance.StringFixed(2))
	p.settleCrossLocked("withdraw")
	return nil
}

// ResetBalance starts a new accounting period at amount. Realized PnL is
// cleared; open positions are kept and their margin must still be covered.
func (p *Portfolio) ResetBalance(amount decimal.Decimal) error {
	if amount.IsNegative() {
		return apperrors.NewInputError("amount", amount, "must not be negative")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	committed := p.isolatedMarginLocked().Add(p.crossInitialMarginLocked())
	if amount.LessThan(committed) {
		return &apperrors.MarginError{Required: committed, Available: amount, Reason: "new balance must cover margin of open positions"}
	}

	p.balance = amount
	p.initialBalance = amount
	p.realizedPnL = decimal.Zero
	p.logger.Info("Balance reset", "balance", amount.String())
	p.settleCrossLocked("reset")
	return nil
}

// Position returns a copy of an open or closed position
func (p *Portfolio) Position(id int64) (*position.Position, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if pos, ok := p.positions[id]; ok {
		return pos.Clone(), nil
	}
	for _, pos := range p.history {
		if pos.ID == id {
			return pos.Clone(), nil
		}
	}
	return nil, &apperrors.NotFoundError{PositionID: id}
}

// OpenPositions returns copies of open positions in id order
func (p *Portfolio) OpenPositions() []*position.Position {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]*position.Position, 0, len(p.positions))
	for _, pos := range p.sortedOpenLocked() {
		out = append(out, pos.Clone())
	}
	return out
}

// History returns copies of closed positions in close order
func (p *Portfolio) History() []*position.Position {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]*position.Position, 0, len(p.history))
	for _, pos := range p.history {
		out = append(out, pos.Clone())
	}
	return out
}

// OpenSymbols lists distinct symbols with open positions, sorted
func (p *Portfolio) OpenSymbols() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	seen := make(map[string]struct{})
	var syms []string
	for _, pos := range p.positions {
		if _, ok := seen[pos.Symbol]; ok {
			continue
		}
		seen[pos.Symbol] = struct{}{}
		syms = append(syms, pos.Symbol)
	}
	sort.Strings(syms)
	return syms
}

func (p *Portfolio) sortedOpenLocked() []*position.Position {
	out := make([]*position.Position, 0, len(p.positions))
	for _, pos := range p.positions {
		out = append(out, pos)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (p *Portfolio) isClosedLocked(id int64) bool {
	for _, pos := range p.history {
		if pos.ID == id {
			return true
		}
	}
	return false
}

func (p *Portfolio) hasCrossLocked() bool {
	for _, pos := range p.positions {
		if pos.MarginMode == core.MarginCross {
			return true
		}
	}
	return false
}

func (p *Portfolio) isolatedMarginLocked() decimal.Decimal {
	total := decimal.Zero
	for _, pos := range p.positions {
		if pos.MarginMode == core.MarginIsolated {
			total = total.Add(pos.AllocatedMargin)
		}
	}
	return total
}

func (p *Portfolio) crossMarginLocked() decimal.Decimal {
	total := decimal.Zero
	for _, pos := range p.positions {
		if pos.MarginMode == core.MarginCross {
			total = total.Add(pos.AllocatedMargin)
		}
	}
	return total
}

func (p *Portfolio) crossInitialMarginLocked() decimal.Decimal {
	total := decimal.Zero
	for _, pos := range p.positions {
		if pos.MarginMode == core.MarginCross {
			total = total.Add(pos.InitialMargin())
		}
	}
	return total
}

// shortfallLocked is how far allocated margin exceeds the balance, zero when covered
func (p *Portfolio) shortfallLocked() decimal.Decimal {
	gap := p.isolatedMarginLocked().Add(p.crossMarginLocked()).Sub(p.balance)
	if gap.IsPositive() {
		return gap
	}
	return decimal.Zero
}

func (p *Portfolio) freeBalanceLocked() decimal.Decimal {
	return p.balance.Sub(p.isolatedMarginLocked())
}

func (p *Portfolio) availableLocked() decimal.Decimal {
	return p.freeBalanceLocked().Sub(p.crossInitialMarginLocked())
}

func (p *Portfolio) markLocked(pos *position.Position) decimal.Decimal {
	if mark, ok := p.marks[pos.Symbol]; ok {
		return mark
	}
	return pos.EntryPrice
}
