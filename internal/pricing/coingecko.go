package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"risk_calculator/internal/core"
	apperrors "risk_calculator/pkg/errors"
	apihttp "risk_calculator/pkg/http"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

var errUnsupportedSymbol = errors.New("unsupported symbol")

// CoinGeckoConfig configures the REST source
type CoinGeckoConfig struct {
	BaseURL            string
	APIKey             string
	VsCurrency         string
	Timeout            time.Duration
	RateLimitPerMinute int
}

// Quote is a price with its 24h change in percent
type Quote struct {
	Symbol       string
	Price        decimal.Decimal
	Change24hPct decimal.Decimal
}

// CoinGeckoSource fetches spot prices from /simple/price
type CoinGeckoSource struct {
	client     *apihttp.Client
	limiter    *rate.Limiter
	vsCurrency string
	logger     core.ILogger
}

// NewCoinGeckoSource creates a rate limited CoinGecko client
func NewCoinGeckoSource(cfg CoinGeckoConfig, logger core.ILogger) *CoinGeckoSource {
	if cfg.VsCurrency == "" {
		cfg.VsCurrency = "usd"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RateLimitPerMinute <= 0 {
		cfg.RateLimitPerMinute = 30
	}

	var signer apihttp.Signer
	if cfg.APIKey != "" {
		signer = apihttp.HeaderSigner{Header: "x-cg-demo-api-key", Value: cfg.APIKey}
	}

	burst := cfg.RateLimitPerMinute / 10
	if burst < 1 {
		burst = 1
	}

	return &CoinGeckoSource{
		client:     apihttp.NewClient(strings.TrimRight(cfg.BaseURL, "/"), cfg.Timeout, signer),
		limiter:    rate.NewLimiter(rate.Limit(float64(cfg.RateLimitPerMinute)/60), burst),
		vsCurrency: strings.ToLower(cfg.VsCurrency),
		logger:     logger.WithField("component", "coingecko"),
	}
}

// GetPrices implements core.IPriceSource
func (s *CoinGeckoSource) GetPrices(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error) {
	quotes, err := s.fetch(ctx, normalizeSymbols(symbols))
	prices := make(map[string]decimal.Decimal, len(quotes))
	for sym, q := range quotes {
		prices[sym] = q.Price
	}
	return prices, err
}

// Quotes returns price and 24h change, for every supported symbol when none are given
func (s *CoinGeckoSource) Quotes(ctx context.Context, symbols []string) ([]Quote, error) {
	symbols = normalizeSymbols(symbols)
	if len(symbols) == 0 {
		symbols = SupportedSymbols()
	}

	quotes, err := s.fetch(ctx, symbols)
	out := make([]Quote, 0, len(quotes))
	for _, q := range quotes {
		out = append(out, q)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, err
}

func (s *CoinGeckoSource) fetch(ctx context.Context, symbols []string) (map[string]Quote, error) {
	out := make(map[string]Quote, len(symbols))
	var errs []error

	ids := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		id, ok := CoinGeckoID(sym)
		if !ok {
			errs = append(errs, &apperrors.PriceError{Symbol: sym, Cause: errUnsupportedSymbol})
			continue
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return out, apperrors.NewPriceErrors(errs)
	}

	failAll := func(cause error) (map[string]Quote, error) {
		for _, id := range ids {
			errs = append(errs, &apperrors.PriceError{Symbol: symbolByCoinGeckoID[id], Cause: cause})
		}
		return out, apperrors.NewPriceErrors(errs)
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return failAll(fmt.Errorf("rate limiter: %w", err))
	}

	body, err := s.client.Get(ctx, "/simple/price", map[string]string{
		"ids":                 strings.Join(ids, ","),
		"vs_currencies":       s.vsCurrency,
		"include_24hr_change": "true",
	})
	if err != nil {
		s.logger.Warn("CoinGecko request failed", "ids", len(ids), "error", err)
		return failAll(err)
	}

	var payload map[string]map[string]decimal.Decimal
	if err := json.Unmarshal(body, &payload); err != nil {
		return failAll(fmt.Errorf("decode response: %w", err))
	}

	changeKey := s.vsCurrency + "_24h_change"
	for _, id := range ids {
		sym := symbolByCoinGeckoID[id]
		values, ok := payload[id]
		if !ok {
			errs = append(errs, &apperrors.PriceError{Symbol: sym, Cause: errors.New("missing from response")})
			continue
		}
		price, ok := values[s.vsCurrency]
		if !ok || !price.IsPositive() {
			errs = append(errs, &apperrors.PriceError{Symbol: sym, Cause: fmt.Errorf("no %s price", s.vsCurrency)})
			continue
		}
		out[sym] = Quote{Symbol: sym, Price: price, Change24hPct: values[changeKey]}
	}

	return out, apperrors.NewPriceErrors(errs)
}
