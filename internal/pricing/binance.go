package pricing

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"risk_calculator/internal/core"
	apperrors "risk_calculator/pkg/errors"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

var errNotListed = errors.New("no perpetual contract")

// BinanceConfig configures the USD-M futures REST source
type BinanceConfig struct {
	BaseURL            string
	APIKey             string
	QuoteAsset         string
	Timeout            time.Duration
	RateLimitPerMinute int
}

// BinanceSource reads mark prices from /fapi/v1/premiumIndex
type BinanceSource struct {
	client     *futures.Client
	limiter    *rate.Limiter
	quoteAsset string
	logger     core.ILogger
}

// NewBinanceSource creates a rate limited futures client. Public market
// endpoints need no secret; the key only raises the request weight budget.
func NewBinanceSource(cfg BinanceConfig, logger core.ILogger) *BinanceSource {
	if cfg.QuoteAsset == "" {
		cfg.QuoteAsset = "USDT"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RateLimitPerMinute <= 0 {
		cfg.RateLimitPerMinute = 60
	}

	client := futures.NewClient(cfg.APIKey, "")
	if cfg.BaseURL != "" {
		client.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	client.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	burst := cfg.RateLimitPerMinute / 10
	if burst < 1 {
		burst = 1
	}

	return &BinanceSource{
		client:     client,
		limiter:    rate.NewLimiter(rate.Limit(float64(cfg.RateLimitPerMinute)/60), burst),
		quoteAsset: strings.ToUpper(cfg.QuoteAsset),
		logger:     logger.WithField("component", "binance"),
	}
}

// GetPrices implements core.IPriceSource using mark prices
func (s *BinanceSource) GetPrices(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error) {
	symbols = normalizeSymbols(symbols)
	out := make(map[string]decimal.Decimal, len(symbols))
	if len(symbols) == 0 {
		return out, nil
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return out, s.failAll(symbols, fmt.Errorf("rate limiter: %w", err))
	}

	indexes, err := s.client.NewPremiumIndexService().Do(ctx)
	if err != nil {
		s.logger.Warn("Binance premium index request failed", "error", err)
		return out, s.failAll(symbols, err)
	}

	marks := make(map[string]string, len(indexes))
	for _, idx := range indexes {
		marks[idx.Symbol] = idx.MarkPrice
	}

	var errs []error
	for _, sym := range symbols {
		raw, ok := marks[sym+s.quoteAsset]
		if !ok {
			errs = append(errs, &apperrors.PriceError{Symbol: sym, Cause: errNotListed})
			continue
		}
		price, err := decimal.NewFromString(raw)
		if err != nil || !price.IsPositive() {
			errs = append(errs, &apperrors.PriceError{Symbol: sym, Cause: fmt.Errorf("invalid mark price %q", raw)})
			continue
		}
		out[sym] = price
	}
	return out, apperrors.NewPriceErrors(errs)
}

// Quotes returns mark price and 24h change. The 24h change is best effort;
// a failed ticker request leaves it at zero.
func (s *BinanceSource) Quotes(ctx context.Context, symbols []string) ([]Quote, error) {
	symbols = normalizeSymbols(symbols)
	if len(symbols) == 0 {
		symbols = SupportedSymbols()
	}

	prices, priceErr := s.GetPrices(ctx, symbols)

	changes := make(map[string]decimal.Decimal)
	if err := s.limiter.Wait(ctx); err == nil {
		stats, err := s.client.NewListPriceChangeStatsService().Do(ctx)
		if err != nil {
			s.logger.Warn("Binance 24h ticker request failed", "error", err)
		}
		for _, st := range stats {
			if pct, err := decimal.NewFromString(st.PriceChangePercent); err == nil {
				changes[st.Symbol] = pct
			}
		}
	}

	out := make([]Quote, 0, len(prices))
	for sym, price := range prices {
		out = append(out, Quote{Symbol: sym, Price: price, Change24hPct: changes[sym+s.quoteAsset]})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, priceErr
}

func (s *BinanceSource) failAll(symbols []string, cause error) error {
	errs := make([]error, 0, len(symbols))
	for _, sym := range symbols {
		errs = append(errs, &apperrors.PriceError{Symbol: sym, Cause: cause})
	}
	return apperrors.NewPriceErrors(errs)
}
