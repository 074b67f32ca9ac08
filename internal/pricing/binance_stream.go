package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"risk_calculator/internal/core"
	apperrors "risk_calculator/pkg/errors"
	"risk_calculator/pkg/websocket"

	"github.com/shopspring/decimal"
)

// ErrStalePrice marks a streamed price older than the staleness window
var ErrStalePrice = errors.New("stale price")

var errNoStreamData = errors.New("no stream data yet")

// BinanceStreamConfig configures the mark price stream
type BinanceStreamConfig struct {
	StreamURL  string
	Symbols    []string
	QuoteAsset string
	StaleAfter time.Duration
}

type streamPrice struct {
	price      decimal.Decimal
	receivedAt time.Time
}

// markPriceEvent is the payload of a <symbol>@markPrice stream
type markPriceEvent struct {
	EventType string `json:"e"`
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	MarkPrice string `json:"p"`
}

type combinedEvent struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// BinanceStream keeps the latest futures mark price per symbol from a combined stream
type BinanceStream struct {
	quote      string
	staleAfter time.Duration
	symbols    []string
	client     *websocket.Client
	logger     core.ILogger
	now        func() time.Time

	mu     sync.RWMutex
	prices map[string]streamPrice
}

// NewBinanceStream prepares a stream for the given symbols; call Start to connect
func NewBinanceStream(cfg BinanceStreamConfig, logger core.ILogger) (*BinanceStream, error) {
	symbols := normalizeSymbols(cfg.Symbols)
	if len(symbols) == 0 {
		return nil, apperrors.NewInputError("symbols", cfg.Symbols, "at least one symbol is required for streaming")
	}
	if cfg.StreamURL == "" {
		return nil, apperrors.NewInputError("stream_url", cfg.StreamURL, "must not be empty")
	}
	if cfg.QuoteAsset == "" {
		cfg.QuoteAsset = "USDT"
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = time.Minute
	}

	s := &BinanceStream{
		quote:      strings.ToUpper(cfg.QuoteAsset),
		staleAfter: cfg.StaleAfter,
		symbols:    symbols,
		logger:     logger.WithField("component", "binance_stream"),
		now:        time.Now,
		prices:     make(map[string]streamPrice, len(symbols)),
	}
	s.client = websocket.NewClient(s.streamURL(cfg.StreamURL), s.handleMessage, logger)
	s.client.SetReconnectWait(2 * time.Second)
	s.client.SetOnConnected(func() {
		s.logger.Info("Mark price stream connected", "symbols", strings.Join(symbols, ","))
	})
	return s, nil
}

func (s *BinanceStream) streamURL(base string) string {
	streams := make([]string, 0, len(s.symbols))
	for _, sym := range s.symbols {
		streams = append(streams, strings.ToLower(sym+s.quote)+"@markPrice")
	}
	return fmt.Sprintf("%s?streams=%s", strings.TrimRight(base, "/"), strings.Join(streams, "/"))
}

// Start connects in the background
func (s *BinanceStream) Start() {
	s.client.Start()
}

// Stop closes the stream
func (s *BinanceStream) Stop() {
	s.client.Stop()
}

// Connected reports whether the socket is up
func (s *BinanceStream) Connected() bool {
	return s.client.Connected()
}

// WaitFor blocks until every symbol has a price or ctx is done
func (s *BinanceStream) WaitFor(ctx context.Context, symbols []string) error {
	symbols = normalizeSymbols(symbols)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		if s.hasAll(symbols) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *BinanceStream) hasAll(symbols []string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sym := range symbols {
		if _, ok := s.prices[sym]; !ok {
			return false
		}
	}
	return true
}

// GetPrices implements core.IPriceSource from the latest streamed values
func (s *BinanceStream) GetPrices(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := s.now()
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]decimal.Decimal, len(symbols))
	var errs []error
	for _, sym := range normalizeSymbols(symbols) {
		p, ok := s.prices[sym]
		switch {
		case !ok:
			errs = append(errs, &apperrors.PriceError{Symbol: sym, Cause: errNoStreamData})
		case now.Sub(p.receivedAt) > s.staleAfter:
			errs = append(errs, &apperrors.PriceError{
				Symbol: sym,
				Cause:  fmt.Errorf("%w: last update %s ago", ErrStalePrice, now.Sub(p.receivedAt).Truncate(time.Second)),
			})
		default:
			out[sym] = p.price
		}
	}
	return out, apperrors.NewPriceErrors(errs)
}

func (s *BinanceStream) handleMessage(message []byte) {
	payload := message
	var combined combinedEvent
	if err := json.Unmarshal(message, &combined); err == nil && len(combined.Data) > 0 {
		payload = combined.Data
	}

	var event markPriceEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		s.logger.Warn("Failed to decode mark price event", "error", err)
		return
	}
	if event.Symbol == "" || event.MarkPrice == "" {
		return
	}

	price, err := decimal.NewFromString(event.MarkPrice)
	if err != nil || !price.IsPositive() {
		s.logger.Warn("Invalid mark price", "symbol", event.Symbol, "price", event.MarkPrice)
		return
	}

	sym := strings.TrimSuffix(strings.ToUpper(event.Symbol), s.quote)

	s.mu.Lock()
	s.prices[sym] = streamPrice{price: price, receivedAt: s.now()}
	s.mu.Unlock()
}
