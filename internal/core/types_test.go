package core

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSide(t *testing.T) {
	side, err := ParseSide("long")
	require.NoError(t, err)
	assert.Equal(t, SideLong, side)
	assert.Equal(t, int64(1), side.Direction())

	side, err = ParseSide(" SELL ")
	require.NoError(t, err)
	assert.Equal(t, SideShort, side)
	assert.Equal(t, int64(-1), side.Direction())

	_, err = ParseSide("sideways")
	assert.Error(t, err)
}

func TestParseMarginMode(t *testing.T) {
	mode, err := ParseMarginMode("Isolated")
	require.NoError(t, err)
	assert.Equal(t, MarginIsolated, mode)

	_, err = ParseMarginMode("portfolio")
	assert.Error(t, err)
}

func TestEnumJSON(t *testing.T) {
	type record struct {
		Side   Side           `json:"side"`
		Mode   MarginMode     `json:"mode"`
		Status PositionStatus `json:"status"`
	}

	data, err := json.Marshal(record{Side: SideShort, Mode: MarginCross, Status: StatusClosed})
	require.NoError(t, err)
	assert.JSONEq(t, `{"side":"SHORT","mode":"CROSS","status":"CLOSED"}`, string(data))

	var decoded record
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, SideShort, decoded.Side)
	assert.Equal(t, MarginCross, decoded.Mode)
	assert.Equal(t, StatusClosed, decoded.Status)
}
