package position

import (
	"encoding/json"
	"testing"
	"time"

	"risk_calculator/internal/core"
	apperrors "risk_calculator/pkg/errors"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func dp(s string) *decimal.Decimal {
	v := d(s)
	return &v
}

func validParams() Params {
	return Params{
		ID:                    1,
		Symbol:                "btc",
		Side:                  core.SideLong,
		MarginMode:            core.MarginIsolated,
		EntryPrice:            d("50000"),
		Size:                  d("0.02"),
		Leverage:              d("10"),
		AllocatedMargin:       d("100"),
		MaintenanceMarginRate: d("0.005"),
		StopPrice:             dp("49000"),
		TakeProfit:            dp("55000"),
	}
}

func TestNew(t *testing.T) {
	pos, err := New(validParams())
	require.NoError(t, err)

	assert.Equal(t, "BTC", pos.Symbol)
	assert.Equal(t, core.StatusOpen, pos.Status)
	assert.Nil(t, pos.RealizedPnL)
	assert.True(t, d("1000").Equal(pos.Notional()))
	assert.True(t, d("100").Equal(pos.InitialMargin()))
	assert.False(t, pos.OpenedAt.IsZero())
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(p *Params)
		field  string
	}{
		{"empty symbol", func(p *Params) { p.Symbol = " " }, "symbol"},
		{"bad side", func(p *Params) { p.Side = 0 }, "side"},
		{"bad mode", func(p *Params) { p.MarginMode = 0 }, "margin_mode"},
		{"zero entry", func(p *Params) { p.EntryPrice = decimal.Zero }, "entry_price"},
		{"negative size", func(p *Params) { p.Size = d("-1") }, "size"},
		{"leverage below one", func(p *Params) { p.Leverage = d("0.5") }, "leverage"},
		{"negative margin", func(p *Params) { p.AllocatedMargin = d("-1") }, "allocated_margin"},
		{"mmr of one", func(p *Params) { p.MaintenanceMarginRate = d("1") }, "maintenance_margin_rate"},
		{"long stop above entry", func(p *Params) { p.StopPrice = dp("51000") }, "stop_price"},
		{"stop equals entry", func(p *Params) { p.StopPrice = dp("50000") }, "stop_price"},
		{"long take profit below entry", func(p *Params) { p.TakeProfit = dp("48000") }, "take_profit"},
		{"short stop below entry", func(p *Params) {
			p.Side = core.SideShort
			p.TakeProfit = nil
		}, "stop_price"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validParams()
			tt.mutate(&p)
			_, err := New(p)
			require.ErrorIs(t, err, apperrors.ErrInvalidInput)

			var inputErr *apperrors.InputError
			require.ErrorAs(t, err, &inputErr)
			assert.Equal(t, tt.field, inputErr.Field)
		})
	}
}

func TestClose_ExactlyOnce(t *testing.T) {
	pos, err := New(validParams())
	require.NoError(t, err)

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, pos.Close(d("51000"), d("20"), at))
	assert.Equal(t, core.StatusClosed, pos.Status)
	assert.True(t, d("20").Equal(*pos.RealizedPnL))
	assert.Equal(t, at, *pos.ClosedAt)

	err = pos.Close(d("52000"), d("40"), at)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.True(t, d("20").Equal(*pos.RealizedPnL), "realized pnl is fixed at first close")
}

func TestClose_RejectsNonPositiveExit(t *testing.T) {
	pos, err := New(validParams())
	require.NoError(t, err)

	assert.ErrorIs(t, pos.Close(decimal.Zero, decimal.Zero, time.Now()), apperrors.ErrInvalidInput)
	assert.True(t, pos.IsOpen())
}

func TestSetAllocatedMargin(t *testing.T) {
	pos, err := New(validParams())
	require.NoError(t, err)
	assert.Error(t, pos.SetAllocatedMargin(d("50")), "isolated margin is fixed")

	p := validParams()
	p.MarginMode = core.MarginCross
	cross, err := New(p)
	require.NoError(t, err)
	require.NoError(t, cross.SetAllocatedMargin(d("250")))
	assert.True(t, d("250").Equal(cross.AllocatedMargin))
	assert.ErrorIs(t, cross.SetAllocatedMargin(d("-1")), apperrors.ErrInvalidInput)
}

func TestClone_IsDeep(t *testing.T) {
	pos, err := New(validParams())
	require.NoError(t, err)

	c := pos.Clone()
	*c.StopPrice = d("1")
	assert.True(t, d("49000").Equal(*pos.StopPrice))
}

func TestJSONRoundTripKeepsStatusAndPnL(t *testing.T) {
	pos, err := New(validParams())
	require.NoError(t, err)
	require.NoError(t, pos.Close(d("49000"), d("-20"), time.Now()))

	data, err := json.Marshal(pos)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"status":"CLOSED"`)

	var back Position
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, core.StatusClosed, back.Status)
	assert.True(t, d("-20").Equal(*back.RealizedPnL))
	assert.Equal(t, core.SideLong, back.Side)
	assert.Equal(t, core.MarginIsolated, back.MarginMode)
}
