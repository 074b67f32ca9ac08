package simulator

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"risk_calculator/internal/trading/portfolio"
	"risk_calculator/pkg/tradingutils"

	"github.com/shopspring/decimal"
)

// Scenario is the account valued after one uniform relative price move
type Scenario struct {
	Shock         decimal.Decimal // fractional move, e.g. -0.1
	Prices        map[string]decimal.Decimal
	Equity        decimal.Decimal
	UnrealizedPnL decimal.Decimal
	Liquidated    []int64
	Summary       portfolio.Summary
}

// StressTest values the portfolio with every mark shocked by each move.
// Marks fall back to entry price for symbols never priced. It is read-only.
func (s *Simulator) StressTest(ctx context.Context, shocks []decimal.Decimal) ([]Scenario, error) {
	if s.pool == nil {
		return nil, errors.New("stress test requires a worker pool")
	}
	if len(shocks) == 0 {
		return nil, nil
	}

	base := s.portfolio.Marks()
	for _, pos := range s.portfolio.OpenPositions() {
		if _, ok := base[pos.Symbol]; !ok {
			base[pos.Symbol] = pos.EntryPrice
		}
	}

	scenarios := make([]Scenario, len(shocks))
	tasks := make([]func(ctx context.Context) error, 0, len(shocks))
	for i, shock := range shocks {
		if shock.LessThanOrEqual(decimal.NewFromInt(-1)) {
			return nil, fmt.Errorf("shock %s would take prices to zero", shock)
		}
		i, shock := i, shock
		tasks = append(tasks, func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			scenarios[i] = s.scenario(base, shock)
			return nil
		})
	}

	if err := s.pool.RunAll(ctx, tasks); err != nil {
		return nil, fmt.Errorf("stress test: %w", err)
	}

	sort.SliceStable(scenarios, func(i, j int) bool { return scenarios[i].Shock.LessThan(scenarios[j].Shock) })
	return scenarios, nil
}

func (s *Simulator) scenario(base map[string]decimal.Decimal, shock decimal.Decimal) Scenario {
	prices := make(map[string]decimal.Decimal, len(base))
	for sym, price := range base {
		prices[sym] = tradingutils.ApplyShock(price, shock)
	}

	summary := s.portfolio.Summary(prices)
	sc := Scenario{
		Shock:         shock,
		Prices:        prices,
		Equity:        summary.Equity,
		UnrealizedPnL: summary.TotalUnrealizedPnL,
		Summary:       summary,
	}
	for _, detail := range summary.Positions {
		if detail.Liquidated {
			sc.Liquidated = append(sc.Liquidated, detail.Position.ID)
		}
	}
	sc.Liquidated = sortedIDs(sc.Liquidated)
	return sc
}
