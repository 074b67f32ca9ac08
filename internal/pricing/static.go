package pricing

import (
	"context"
	"strings"
	"sync"

	apperrors "risk_calculator/pkg/errors"

	"github.com/shopspring/decimal"
)

// StaticSource serves fixed prices from configuration
type StaticSource struct {
	mu     sync.RWMutex
	prices map[string]decimal.Decimal
}

// NewStaticSource copies prices, dropping non-positive entries
func NewStaticSource(prices map[string]decimal.Decimal) *StaticSource {
	s := &StaticSource{prices: make(map[string]decimal.Decimal, len(prices))}
	for sym, p := range prices {
		if p.IsPositive() {
			s.prices[strings.ToUpper(sym)] = p
		}
	}
	return s
}

// Set overrides one price
func (s *StaticSource) Set(symbol string, price decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[strings.ToUpper(symbol)] = price
}

func (s *StaticSource) GetPrices(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]decimal.Decimal, len(symbols))
	var errs []error
	for _, sym := range normalizeSymbols(symbols) {
		if p, ok := s.prices[sym]; ok {
			out[sym] = p
			continue
		}
		errs = append(errs, &apperrors.PriceError{Symbol: sym})
	}
	return out, apperrors.NewPriceErrors(errs)
}
