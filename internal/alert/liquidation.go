package alert

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"risk_calculator/internal/trading/portfolio"
	"risk_calculator/internal/trading/simulator"

	"github.com/shopspring/decimal"
)

// LiquidationMonitor turns valuation reports into alerts. A position is
// warned once while it stays inside the warning band and re-arms after it
// leaves; a liquidation is reported once.
type LiquidationMonitor struct {
	alerts  *Manager
	warnPct decimal.Decimal

	mu     sync.Mutex
	warned map[int64]bool
}

// NewLiquidationMonitor warns when the mark is within warnPct percent of the
// liquidation price. A zero warnPct only reports liquidations.
func NewLiquidationMonitor(am *Manager, warnPct decimal.Decimal) *LiquidationMonitor {
	return &LiquidationMonitor{
		alerts:  am,
		warnPct: warnPct,
		warned:  make(map[int64]bool),
	}
}

// Observe sends the alerts due for report and returns how many were sent
func (m *LiquidationMonitor) Observe(ctx context.Context, report *simulator.Report) int {
	if report == nil {
		return 0
	}

	newly := make(map[int64]bool, len(report.NewlyLiquidated))
	for _, id := range report.NewlyLiquidated {
		newly[id] = true
	}

	type pending struct {
		level  Level
		title  string
		msg    string
		detail portfolio.PositionDetail
	}
	var due []pending

	m.mu.Lock()
	seen := make(map[int64]bool, len(report.Summary.Positions))
	for _, d := range report.Summary.Positions {
		id := d.Position.ID
		seen[id] = true

		switch {
		case newly[id]:
			due = append(due, pending{Critical, "Position liquidated", liquidatedMessage(d), d})
			m.warned[id] = true
		case d.Liquidated:
		case m.inBand(d):
			if !m.warned[id] {
				due = append(due, pending{Warning, "Position near liquidation", warningMessage(d), d})
				m.warned[id] = true
			}
		default:
			delete(m.warned, id)
		}
	}
	for id := range m.warned {
		if !seen[id] {
			delete(m.warned, id)
		}
	}
	m.mu.Unlock()

	for _, p := range due {
		m.alerts.Alert(ctx, p.title, p.msg, p.level, fields(p.detail))
	}
	return len(due)
}

func (m *LiquidationMonitor) inBand(d portfolio.PositionDetail) bool {
	if !m.warnPct.IsPositive() || d.LiquidationDistancePct == nil {
		return false
	}
	return d.LiquidationDistancePct.LessThanOrEqual(m.warnPct)
}

func liquidatedMessage(d portfolio.PositionDetail) string {
	pos := d.Position
	return fmt.Sprintf("#%d %s %s %sx crossed its liquidation price", pos.ID, pos.Symbol, pos.Side, pos.Leverage.String())
}

func warningMessage(d portfolio.PositionDetail) string {
	pos := d.Position
	return fmt.Sprintf("#%d %s %s %sx is %s%% from liquidation", pos.ID, pos.Symbol, pos.Side, pos.Leverage.String(), d.LiquidationDistancePct.StringFixed(2))
}

func fields(d portfolio.PositionDetail) map[string]string {
	pos := d.Position
	f := map[string]string{
		"position":       strconv.FormatInt(pos.ID, 10),
		"symbol":         pos.Symbol,
		"side":           pos.Side.String(),
		"margin_mode":    pos.MarginMode.String(),
		"entry":          pos.EntryPrice.String(),
		"mark":           d.CurrentPrice.String(),
		"unrealized_pnl": d.UnrealizedPnL.StringFixed(2),
	}
	if d.LiquidationPrice != nil {
		f["liquidation"] = d.LiquidationPrice.StringFixed(2)
	}
	return f
}
