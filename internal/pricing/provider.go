package pricing

import (
	"context"
	"fmt"
	"strings"

	"risk_calculator/internal/config"
	"risk_calculator/internal/core"

	"github.com/shopspring/decimal"
)

// Provider is the configured price source wrapped in a last-good-price cache
type Provider struct {
	*CachedSource
	quoter quoter
	stream *BinanceStream
}

type quoter interface {
	Quotes(ctx context.Context, symbols []string) ([]Quote, error)
}

// NewProvider builds the source named by cfg.Provider. Streaming needs the
// symbol set up front; it is connected before returning.
func NewProvider(cfg config.PriceSourceConfig, quoteAsset string, symbols []string, logger core.ILogger) (*Provider, error) {
	p := &Provider{}
	var inner core.IPriceSource

	switch cfg.Provider {
	case config.ProviderCoinGecko:
		src := NewCoinGeckoSource(CoinGeckoConfig{
			BaseURL:            cfg.BaseURL,
			APIKey:             cfg.APIKey.Reveal(),
			Timeout:            cfg.Timeout(),
			RateLimitPerMinute: cfg.RateLimitPerMinute,
		}, logger)
		p.quoter = src
		inner = src
	case config.ProviderBinance:
		src := NewBinanceSource(BinanceConfig{
			BaseURL:            cfg.FuturesURL,
			APIKey:             cfg.APIKey.Reveal(),
			QuoteAsset:         streamQuote(quoteAsset),
			Timeout:            cfg.Timeout(),
			RateLimitPerMinute: cfg.RateLimitPerMinute,
		}, logger)
		p.quoter = src
		inner = src
	case config.ProviderBinanceStream:
		stream, err := NewBinanceStream(BinanceStreamConfig{
			StreamURL:  cfg.StreamURL,
			Symbols:    symbols,
			QuoteAsset: streamQuote(quoteAsset),
			StaleAfter: cfg.StaleAfter(),
		}, logger)
		if err != nil {
			return nil, err
		}
		stream.Start()
		p.stream = stream
		inner = stream
	case config.ProviderStatic:
		prices := make(map[string]decimal.Decimal, len(cfg.StaticPrices))
		for sym, v := range cfg.StaticPrices {
			prices[sym] = decimal.NewFromFloat(v)
		}
		inner = NewStaticSource(prices)
	default:
		return nil, fmt.Errorf("unknown price provider %q", cfg.Provider)
	}

	p.CachedSource = NewCachedSource(inner, cfg.Provider, cfg.StaleAfter(), logger)
	return p, nil
}

// streamQuote maps the account quote asset onto the futures settlement asset
func streamQuote(quoteAsset string) string {
	if quoteAsset == "" || strings.EqualFold(quoteAsset, "USD") {
		return "USDT"
	}
	return strings.ToUpper(quoteAsset)
}

// Quotes returns 24h change data when the provider supports it
func (p *Provider) Quotes(ctx context.Context, symbols []string) ([]Quote, error) {
	if p.quoter != nil {
		return p.quoter.Quotes(ctx, symbols)
	}
	prices, err := p.GetPrices(ctx, symbols)
	out := make([]Quote, 0, len(prices))
	for _, sym := range normalizeSymbols(symbols) {
		if price, ok := prices[sym]; ok {
			out = append(out, Quote{Symbol: sym, Price: price})
		}
	}
	return out, err
}

// WaitReady blocks until streamed prices exist for symbols; other providers return at once
func (p *Provider) WaitReady(ctx context.Context, symbols []string) error {
	if p.stream == nil {
		return nil
	}
	return p.stream.WaitFor(ctx, symbols)
}

// Close releases the stream connection
func (p *Provider) Close() {
	if p.stream != nil {
		p.stream.Stop()
	}
}
