package pricing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"risk_calculator/internal/config"
	"risk_calculator/internal/mock"
	apperrors "risk_calculator/pkg/errors"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const premiumIndexBody = `[
 {"symbol":"BTCUSDT","markPrice":"50010.50","indexPrice":"50000.00","lastFundingRate":"0.0001","nextFundingTime":1700000000000,"time":1699990000000},
 {"symbol":"ETHUSDT","markPrice":"3001.25","indexPrice":"3000.00","lastFundingRate":"0.0001","nextFundingTime":1700000000000,"time":1699990000000},
 {"symbol":"DOGEUSDT","markPrice":"0","indexPrice":"0.08","lastFundingRate":"0.0001","nextFundingTime":1700000000000,"time":1699990000000}
]`

const tickerBody = `[
 {"symbol":"BTCUSDT","priceChange":"-625.00","priceChangePercent":"-1.234","lastPrice":"50010.50"},
 {"symbol":"ETHUSDT","priceChange":"75.00","priceChangePercent":"2.560","lastPrice":"3001.25"}
]`

func newFuturesServer(t *testing.T, tickerStatus int) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/fapi/v1/premiumIndex":
			_, _ = w.Write([]byte(premiumIndexBody))
		case "/fapi/v1/ticker/24hr":
			w.WriteHeader(tickerStatus)
			if tickerStatus == http.StatusOK {
				_, _ = w.Write([]byte(tickerBody))
			} else {
				_, _ = w.Write([]byte(`{"code":-1003,"msg":"Too many requests"}`))
			}
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func testBinance(url string) *BinanceSource {
	return NewBinanceSource(BinanceConfig{
		BaseURL:            url,
		Timeout:            2 * time.Second,
		RateLimitPerMinute: 6000,
	}, mock.NewMockLogger())
}

func TestBinance_GetPrices(t *testing.T) {
	server := newFuturesServer(t, http.StatusOK)
	src := testBinance(server.URL)

	prices, err := src.GetPrices(context.Background(), []string{"btc", "ETH"})
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("50010.5").Equal(prices["BTC"]))
	assert.True(t, decimal.RequireFromString("3001.25").Equal(prices["ETH"]))
}

func TestBinance_PartialFailure(t *testing.T) {
	server := newFuturesServer(t, http.StatusOK)
	src := testBinance(server.URL)

	prices, err := src.GetPrices(context.Background(), []string{"BTC", "DOGE", "XYZ"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrPriceUnavailable))
	assert.Len(t, prices, 1)

	failed := apperrors.BySymbol(err)
	assert.Contains(t, failed, "DOGE")
	assert.True(t, errors.Is(failed["XYZ"], errNotListed))
}

func TestBinance_Quotes(t *testing.T) {
	server := newFuturesServer(t, http.StatusOK)
	src := testBinance(server.URL)

	quotes, err := src.Quotes(context.Background(), []string{"ETH", "BTC"})
	require.NoError(t, err)
	require.Len(t, quotes, 2)
	assert.Equal(t, "BTC", quotes[0].Symbol)
	assert.Equal(t, "-1.234", quotes[0].Change24hPct.String())
	assert.Equal(t, "2.56", quotes[1].Change24hPct.String())
}

func TestBinance_QuotesWithoutTicker(t *testing.T) {
	server := newFuturesServer(t, http.StatusTooManyRequests)
	src := testBinance(server.URL)

	quotes, err := src.Quotes(context.Background(), []string{"BTC"})
	require.NoError(t, err)
	require.Len(t, quotes, 1)
	assert.True(t, quotes[0].Change24hPct.IsZero())
}

func TestBinance_ServerDown(t *testing.T) {
	server := newFuturesServer(t, http.StatusOK)
	src := testBinance(server.URL)
	server.Close()

	prices, err := src.GetPrices(context.Background(), []string{"BTC", "ETH"})
	require.Error(t, err)
	assert.Empty(t, prices)
	assert.Len(t, apperrors.BySymbol(err), 2)
}

func TestNewProvider_Binance(t *testing.T) {
	server := newFuturesServer(t, http.StatusOK)
	cfg := config.DefaultConfig().PriceSource
	cfg.Provider = config.ProviderBinance
	cfg.FuturesURL = server.URL

	p, err := NewProvider(cfg, "USD", nil, mock.NewMockLogger())
	require.NoError(t, err)
	defer p.Close()

	assert.Equal(t, config.ProviderBinance, p.Name())
	quotes, err := p.Quotes(context.Background(), []string{"BTC"})
	require.NoError(t, err)
	require.Len(t, quotes, 1)
	assert.Equal(t, "-1.234", quotes[0].Change24hPct.String())
}
