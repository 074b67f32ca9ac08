// Package simulator values a portfolio against live, replayed or shocked prices
package simulator

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"
	"time"

	"risk_calculator/internal/core"
	"risk_calculator/internal/trading/portfolio"
	"risk_calculator/pkg/concurrency"
	apperrors "risk_calculator/pkg/errors"
	"risk_calculator/pkg/telemetry"

	"github.com/shopspring/decimal"
)

// Config controls a simulator run
type Config struct {
	PriceTimeout    time.Duration
	RebalanceOnTick bool
}

// Report is the account state at one valuation tick
type Report struct {
	At              time.Time
	Summary         portfolio.Summary
	PriceErrors     map[string]string
	Allocations     []portfolio.Allocation
	RebalanceError  string
	NewlyLiquidated []int64
}

// Tick is one step of a replayed price stream
type Tick struct {
	At     time.Time
	Prices map[string]decimal.Decimal
}

// Simulator drives a portfolio through price updates. It never opens or
// closes positions; liquidations are reported, not executed.
type Simulator struct {
	portfolio *portfolio.Portfolio
	prices    core.IPriceSource
	pool      *concurrency.WorkerPool
	cfg       Config
	logger    core.ILogger

	mu         sync.Mutex
	liquidated map[int64]struct{}
	exported   map[int64]struct{}
}

// New creates a simulator. prices may be nil for Replay and StressTest only.
func New(p *portfolio.Portfolio, prices core.IPriceSource, pool *concurrency.WorkerPool, cfg Config, logger core.ILogger) *Simulator {
	if cfg.PriceTimeout <= 0 {
		cfg.PriceTimeout = 10 * time.Second
	}
	return &Simulator{
		portfolio:  p,
		prices:     prices,
		pool:       pool,
		cfg:        cfg,
		logger:     logger.WithField("component", "simulator"),
		liquidated: make(map[int64]struct{}),
		exported:   make(map[int64]struct{}),
	}
}

// Snapshot fetches prices for every open symbol and values the portfolio.
// Symbols that cannot be priced are reported, not fatal.
func (s *Simulator) Snapshot(ctx context.Context) (*Report, error) {
	if s.prices == nil {
		return nil, errors.New("simulator has no price source")
	}

	symbols := s.portfolio.OpenSymbols()
	prices := map[string]decimal.Decimal{}
	priceErrs := map[string]string{}

	if len(symbols) > 0 {
		fetchCtx, cancel := context.WithTimeout(ctx, s.cfg.PriceTimeout)
		fetched, err := s.prices.GetPrices(fetchCtx, symbols)
		cancel()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		for sym, p := range fetched {
			prices[sym] = p
		}
		for sym, e := range apperrors.BySymbol(err) {
			if sym == "" {
				for _, missing := range symbols {
					if _, ok := prices[missing]; !ok {
						priceErrs[missing] = e.Error()
					}
				}
				continue
			}
			priceErrs[sym] = e.Error()
		}
	}

	report := s.evaluate(ctx, time.Now().UTC(), prices)
	report.PriceErrors = priceErrs
	for sym, msg := range priceErrs {
		s.logger.Warn("Price unavailable, position not valued", "symbol", sym, "error", msg)
	}
	return report, nil
}

// Replay values the portfolio at each tick in order and returns one report per tick
func (s *Simulator) Replay(ctx context.Context, ticks []Tick) ([]*Report, error) {
	reports := make([]*Report, 0, len(ticks))
	for _, tick := range ticks {
		if err := ctx.Err(); err != nil {
			return reports, err
		}
		at := tick.At
		if at.IsZero() {
			at = time.Now().UTC()
		}
		report := s.evaluate(ctx, at, tick.Prices)
		report.PriceErrors = map[string]string{}
		for _, sym := range report.Summary.Unpriced {
			report.PriceErrors[sym] = apperrors.ErrPriceUnavailable.Error()
		}
		reports = append(reports, report)
	}
	return reports, nil
}

func (s *Simulator) evaluate(ctx context.Context, at time.Time, prices map[string]decimal.Decimal) *Report {
	report := &Report{At: at}

	s.portfolio.UpdateMarks(prices)
	if s.cfg.RebalanceOnTick {
		allocations, err := s.portfolio.Rebalance()
		if err != nil {
			report.RebalanceError = err.Error()
			s.logger.Warn("Rebalance failed", "error", err)
		}
		report.Allocations = allocations
	}

	report.Summary = s.portfolio.Summary(prices)

	s.mu.Lock()
	current := make(map[int64]struct{})
	for _, detail := range report.Summary.Positions {
		if !detail.Liquidated {
			continue
		}
		id := detail.Position.ID
		current[id] = struct{}{}
		if _, seen := s.liquidated[id]; !seen {
			report.NewlyLiquidated = append(report.NewlyLiquidated, id)
			s.logger.Warn("Position reached liquidation price",
				"position_id", id,
				"symbol", detail.Position.Symbol,
				"price", detail.CurrentPrice.String(),
				"liquidation_price", detail.LiquidationPrice.String())
		}
	}
	s.liquidated = current
	s.mu.Unlock()

	s.export(ctx, report.Summary)
	return report
}

func (s *Simulator) export(ctx context.Context, summary portfolio.Summary) {
	m := telemetry.GetGlobalMetrics()
	m.SetBalance(toFloat(summary.Balance))
	m.SetMarginUsed(core.MarginIsolated.String(), toFloat(summary.IsolatedMargin))
	m.SetMarginUsed(core.MarginCross.String(), toFloat(summary.CrossMargin))

	m.ResetUnrealizedPnL()
	bySymbol := make(map[string]decimal.Decimal)
	for _, detail := range summary.Positions {
		if detail.Priced {
			bySymbol[detail.Position.Symbol] = bySymbol[detail.Position.Symbol].Add(detail.UnrealizedPnL)
		}
	}
	for sym, pnl := range bySymbol {
		m.SetUnrealizedPnL(sym, toFloat(pnl))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[int64]struct{}, len(summary.Positions))
	for _, detail := range summary.Positions {
		if detail.LiquidationDistancePct == nil {
			continue
		}
		id := detail.Position.ID
		seen[id] = struct{}{}
		m.SetLiquidationDistance(strconv.FormatInt(id, 10), toFloat(*detail.LiquidationDistancePct))
	}
	for id := range s.exported {
		if _, ok := seen[id]; !ok {
			m.ClearLiquidationDistance(strconv.FormatInt(id, 10))
		}
	}
	s.exported = seen
}

func toFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

func sortedIDs(ids []int64) []int64 {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
