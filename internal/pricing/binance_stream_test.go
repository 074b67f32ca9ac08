package pricing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"risk_calculator/internal/mock"
	apperrors "risk_calculator/pkg/errors"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBinanceStream_URL(t *testing.T) {
	s, err := NewBinanceStream(BinanceStreamConfig{
		StreamURL: "wss://fstream.binance.com/stream",
		Symbols:   []string{"btc", "ETH", "btc"},
	}, mock.NewMockLogger())
	require.NoError(t, err)
	assert.Equal(t, "wss://fstream.binance.com/stream?streams=btcusdt@markPrice/ethusdt@markPrice",
		s.streamURL("wss://fstream.binance.com/stream"))
}

func TestBinanceStream_RequiresSymbols(t *testing.T) {
	_, err := NewBinanceStream(BinanceStreamConfig{StreamURL: "wss://x"}, mock.NewMockLogger())
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
}

func TestBinanceStream_HandleMessage(t *testing.T) {
	s, err := NewBinanceStream(BinanceStreamConfig{StreamURL: "wss://x", Symbols: []string{"BTC", "ETH"}}, mock.NewMockLogger())
	require.NoError(t, err)

	s.handleMessage([]byte(`{"stream":"btcusdt@markPrice","data":{"e":"markPriceUpdate","E":1,"s":"BTCUSDT","p":"50000.10"}}`))
	s.handleMessage([]byte(`{"e":"markPriceUpdate","s":"ETHUSDT","p":"3000"}`))
	s.handleMessage([]byte(`{"e":"markPriceUpdate","s":"ETHUSDT","p":"-1"}`))
	s.handleMessage([]byte(`not json`))

	prices, err := s.GetPrices(context.Background(), []string{"BTC", "ETH"})
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("50000.1").Equal(prices["BTC"]))
	assert.True(t, decimal.NewFromInt(3000).Equal(prices["ETH"]))
}

func TestBinanceStream_StalePricesWithheld(t *testing.T) {
	s, err := NewBinanceStream(BinanceStreamConfig{StreamURL: "wss://x", Symbols: []string{"BTC"}, StaleAfter: time.Minute}, mock.NewMockLogger())
	require.NoError(t, err)

	now := time.Now()
	s.now = func() time.Time { return now }
	s.handleMessage([]byte(`{"s":"BTCUSDT","p":"50000"}`))

	s.now = func() time.Time { return now.Add(2 * time.Minute) }
	prices, err := s.GetPrices(context.Background(), []string{"BTC", "SOL"})
	require.Error(t, err)
	assert.Empty(t, prices)

	failed := apperrors.BySymbol(err)
	assert.True(t, errors.Is(failed["BTC"], ErrStalePrice))
	assert.True(t, errors.Is(failed["SOL"], errNoStreamData))
}

func TestBinanceStream_EndToEnd(t *testing.T) {
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "btcusdt@markPrice", r.URL.Query().Get("streams"))
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage,
			[]byte(`{"stream":"btcusdt@markPrice","data":{"e":"markPriceUpdate","s":"BTCUSDT","p":"61000"}}`))
		_, _, _ = conn.ReadMessage()
	}))
	defer server.Close()

	s, err := NewBinanceStream(BinanceStreamConfig{
		StreamURL: "ws" + strings.TrimPrefix(server.URL, "http"),
		Symbols:   []string{"BTC"},
	}, mock.NewMockLogger())
	require.NoError(t, err)
	s.Start()
	defer s.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, s.WaitFor(ctx, []string{"BTC"}))

	prices, err := s.GetPrices(ctx, []string{"BTC"})
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(61000).Equal(prices["BTC"]))
}
