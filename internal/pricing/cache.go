package pricing

import (
	"context"
	"sync"
	"time"

	"risk_calculator/internal/core"
	apperrors "risk_calculator/pkg/errors"
	"risk_calculator/pkg/telemetry"

	"github.com/shopspring/decimal"
)

type cachedPrice struct {
	price     decimal.Decimal
	fetchedAt time.Time
}

// CachedSource remembers the last good price per symbol and serves it while
// the upstream is failing, until it is older than maxAge.
type CachedSource struct {
	inner  core.IPriceSource
	name   string
	maxAge time.Duration
	logger core.ILogger
	now    func() time.Time

	mu      sync.Mutex
	entries map[string]cachedPrice
}

func NewCachedSource(inner core.IPriceSource, name string, maxAge time.Duration, logger core.ILogger) *CachedSource {
	return &CachedSource{
		inner:   inner,
		name:    name,
		maxAge:  maxAge,
		logger:  logger.WithField("component", "price_cache"),
		now:     time.Now,
		entries: make(map[string]cachedPrice),
	}
}

// Name is the upstream source name used in metrics
func (c *CachedSource) Name() string {
	return c.name
}

func (c *CachedSource) GetPrices(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error) {
	symbols = normalizeSymbols(symbols)
	start := time.Now()
	prices, err := c.inner.GetPrices(ctx, symbols)
	latency := float64(time.Since(start).Microseconds()) / 1000

	now := c.now()
	out := make(map[string]decimal.Decimal, len(symbols))
	failed := apperrors.BySymbol(err)

	c.mu.Lock()
	var errs []error
	for _, sym := range symbols {
		if p, ok := prices[sym]; ok {
			c.entries[sym] = cachedPrice{price: p, fetchedAt: now}
			out[sym] = p
			continue
		}
		cause, ok := failed[sym]
		if !ok {
			cause = failed[""]
		}
		if cause == nil {
			// upstream omitted the symbol without reporting why
			cause = apperrors.ErrPriceUnavailable
		}
		if entry, ok := c.entries[sym]; ok && now.Sub(entry.fetchedAt) <= c.maxAge {
			c.logger.Debug("Serving cached price", "symbol", sym, "age", now.Sub(entry.fetchedAt).String())
			out[sym] = entry.price
			continue
		}
		if pe, ok := cause.(*apperrors.PriceError); ok {
			errs = append(errs, pe)
		} else {
			errs = append(errs, &apperrors.PriceError{Symbol: sym, Cause: cause})
		}
	}
	c.mu.Unlock()

	telemetry.GetGlobalMetrics().RecordPriceFetch(ctx, c.name, latency, len(errs))
	if len(errs) > 0 {
		c.logger.Warn("Price lookup incomplete", "source", c.name, "failed", len(errs), "requested", len(symbols))
	}
	return out, apperrors.NewPriceErrors(errs)
}
