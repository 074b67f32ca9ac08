package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateInput(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{name: "valid input", input: "BTC", wantErr: false},
		{name: "command injection", input: "ls; rm -rf /", wantErr: true},
		{name: "path traversal", input: "../../../etc/passwd", wantErr: true},
		{name: "sql injection", input: "'; DROP TABLE positions; --", wantErr: true},
		{name: "empty input", input: "", wantErr: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateInput(tt.input)
			if tt.wantErr {
				assert.EqualError(t, err, "potentially malicious input detected")
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNormalizeSymbol(t *testing.T) {
	sym, err := NormalizeSymbol(" btc ")
	require.NoError(t, err)
	assert.Equal(t, "BTC", sym)

	_, err = NormalizeSymbol("B")
	assert.Error(t, err)
	_, err = NormalizeSymbol("BTC-USD")
	assert.Error(t, err)
}

func TestNormalizeSymbols(t *testing.T) {
	syms, err := NormalizeSymbols("btc, eth,BTC,,sol")
	require.NoError(t, err)
	assert.Equal(t, []string{"BTC", "ETH", "SOL"}, syms)

	_, err = NormalizeSymbols("btc,x;y")
	assert.Error(t, err)
}
