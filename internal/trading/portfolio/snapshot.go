package portfolio

import (
	"fmt"
	"strings"
	"time"

	"risk_calculator/internal/core"
	"risk_calculator/internal/trading/position"
	apperrors "risk_calculator/pkg/errors"

	"github.com/shopspring/decimal"
)

// Snapshot is the complete persisted state of a portfolio
type Snapshot struct {
	Balance        decimal.Decimal            `json:"balance"`
	InitialBalance decimal.Decimal            `json:"initial_balance"`
	RealizedPnL    decimal.Decimal            `json:"realized_pnl"`
	NextID         int64                      `json:"next_id"`
	Positions      []*position.Position       `json:"positions"`
	History        []*position.Position       `json:"history"`
	Marks          map[string]decimal.Decimal `json:"marks"`
	TakenAt        time.Time                  `json:"taken_at"`
	// UnderMargined marks a state left by closing past liquidation, where
	// isolated margin exceeds the balance and cross allocations are zero
	UnderMargined bool `json:"under_margined,omitempty"`
}

// Snapshot captures the current state
func (p *Portfolio) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	s := Snapshot{
		Balance:        p.balance,
		InitialBalance: p.initialBalance,
		RealizedPnL:    p.realizedPnL,
		NextID:         p.nextID,
		Positions:      make([]*position.Position, 0, len(p.positions)),
		History:        make([]*position.Position, 0, len(p.history)),
		Marks:          make(map[string]decimal.Decimal, len(p.marks)),
		TakenAt:        p.clock().UTC(),
		UnderMargined:  p.shortfallLocked().IsPositive(),
	}
	for _, pos := range p.sortedOpenLocked() {
		s.Positions = append(s.Positions, pos.Clone())
	}
	for _, pos := range p.history {
		s.History = append(s.History, pos.Clone())
	}
	for sym, mark := range p.marks {
		s.Marks[sym] = mark
	}
	return s
}

// Restore replaces the portfolio state with s after validating it.
// Allocations are taken as stored; nothing is rebalanced.
func (p *Portfolio) Restore(s Snapshot) error {
	if s.Balance.IsNegative() {
		return apperrors.NewInputError("snapshot.balance", s.Balance, "must not be negative")
	}

	positions := make(map[int64]*position.Position, len(s.Positions))
	maxID := int64(0)
	allocated, cross := decimal.Zero, decimal.Zero
	for _, pos := range s.Positions {
		if pos == nil || !pos.IsOpen() {
			return fmt.Errorf("snapshot: open set contains a closed or empty position")
		}
		if _, dup := positions[pos.ID]; dup {
			return fmt.Errorf("snapshot: duplicate position id %d", pos.ID)
		}
		restored, err := p.restorePosition(pos)
		if err != nil {
			return err
		}
		positions[pos.ID] = restored
		allocated = allocated.Add(restored.AllocatedMargin)
		if restored.MarginMode == core.MarginCross {
			cross = cross.Add(restored.AllocatedMargin)
		}
		if pos.ID > maxID {
			maxID = pos.ID
		}
	}

	if allocated.GreaterThan(s.Balance) && !(s.UnderMargined && cross.IsZero()) {
		return &apperrors.MarginError{
			Required:  allocated,
			Available: s.Balance,
			Reason:    "snapshot allocates more margin than its balance",
		}
	}

	history := make([]*position.Position, 0, len(s.History))
	for _, pos := range s.History {
		if pos == nil || pos.IsOpen() || pos.RealizedPnL == nil {
			return fmt.Errorf("snapshot: history contains an open or unrealized position")
		}
		if _, dup := positions[pos.ID]; dup {
			return fmt.Errorf("snapshot: position id %d is both open and closed", pos.ID)
		}
		history = append(history, pos.Clone())
		if pos.ID > maxID {
			maxID = pos.ID
		}
	}

	nextID := s.NextID
	if nextID <= maxID {
		nextID = maxID + 1
	}

	marks := make(map[string]decimal.Decimal, len(s.Marks))
	for sym, mark := range s.Marks {
		if mark.IsPositive() {
			marks[strings.ToUpper(sym)] = mark
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.balance = s.Balance
	p.initialBalance = s.InitialBalance
	p.realizedPnL = s.RealizedPnL
	p.nextID = nextID
	p.positions = positions
	p.history = history
	p.marks = marks

	p.logger.Debug("Portfolio restored",
		"balance", s.Balance.String(),
		"open", len(positions),
		"closed", len(history))
	return nil
}

// restorePosition rebuilds an open position through the same checks as a
// fresh open, plus the engine's leverage ceiling
func (p *Portfolio) restorePosition(pos *position.Position) (*position.Position, error) {
	if pos.ID <= 0 {
		return nil, apperrors.NewInputError("snapshot.position.id", pos.ID, "must be positive")
	}
	if err := p.engine.ValidateLeverage(pos.Leverage); err != nil {
		return nil, fmt.Errorf("snapshot: position #%d: %w", pos.ID, err)
	}
	restored, err := position.New(position.Params{
		ID:                    pos.ID,
		Symbol:                pos.Symbol,
		Side:                  pos.Side,
		MarginMode:            pos.MarginMode,
		EntryPrice:            pos.EntryPrice,
		Size:                  pos.Size,
		Leverage:              pos.Leverage,
		AllocatedMargin:       pos.AllocatedMargin,
		MaintenanceMarginRate: pos.MaintenanceMarginRate,
		StopPrice:             pos.StopPrice,
		TakeProfit:            pos.TakeProfit,
		OpenedAt:              pos.OpenedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("snapshot: position #%d: %w", pos.ID, err)
	}
	if restored.MarginMode == core.MarginIsolated && !restored.AllocatedMargin.IsPositive() {
		return nil, apperrors.NewInputError("allocated_margin", restored.AllocatedMargin, fmt.Sprintf("isolated position #%d has no margin", pos.ID))
	}
	return restored, nil
}
