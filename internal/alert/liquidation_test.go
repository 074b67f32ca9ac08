package alert

import (
	"context"
	"testing"
	"time"

	"risk_calculator/internal/core"
	"risk_calculator/internal/mock"
	"risk_calculator/internal/risk/margin"
	"risk_calculator/internal/trading/portfolio"
	"risk_calculator/internal/trading/simulator"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestLiquidationMonitor_Observe(t *testing.T) {
	engine, err := margin.NewEngine(decimal.NewFromInt(125), nil, nil)
	require.NoError(t, err)
	p, err := portfolio.New(d("1000"), engine, mock.NewMockLogger())
	require.NoError(t, err)

	amount := d("100")
	// liquidation at 45250
	_, err = p.OpenPosition(portfolio.OpenRequest{
		Symbol:       "BTC",
		Side:         core.SideLong,
		MarginMode:   core.MarginIsolated,
		EntryPrice:   d("50000"),
		Leverage:     d("10"),
		MarginAmount: &amount,
	})
	require.NoError(t, err)

	src := mock.NewMockPriceSource(map[string]decimal.Decimal{"BTC": d("50000")})
	sim := simulator.New(p, src, nil, simulator.Config{PriceTimeout: time.Second}, mock.NewMockLogger())

	am := NewManager(mock.NewMockLogger())
	ch := &mockChannel{name: "mock"}
	am.AddChannel(ch)
	monitor := NewLiquidationMonitor(am, d("5"))

	step := func(price string) int {
		src.SetPrice("BTC", d(price))
		report, err := sim.Snapshot(context.Background())
		require.NoError(t, err)
		return monitor.Observe(context.Background(), report)
	}

	assert.Equal(t, 0, step("50000"), "far from liquidation")
	assert.Equal(t, 1, step("47000"), "enters warning band")
	assert.Equal(t, 0, step("46800"), "already warned")
	assert.Equal(t, 0, step("50000"), "leaves band")
	assert.Equal(t, 1, step("46000"), "re-armed")
	assert.Equal(t, 1, step("45000"), "liquidated")
	assert.Equal(t, 0, step("44000"), "liquidation reported once")

	sent := ch.getSent()
	require.Len(t, sent, 3)
	assert.Equal(t, Warning, sent[0].Level)
	assert.Contains(t, sent[0].Message, "from liquidation")
	assert.Equal(t, "45250.00", sent[0].Fields["liquidation"])
	assert.Equal(t, Critical, sent[2].Level)
	assert.Equal(t, "BTC", sent[2].Fields["symbol"])
}

func TestLiquidationMonitor_NilReport(t *testing.T) {
	monitor := NewLiquidationMonitor(NewManager(mock.NewMockLogger()), decimal.Zero)
	assert.Equal(t, 0, monitor.Observe(context.Background(), nil))
}
