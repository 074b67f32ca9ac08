package mock

import (
	"context"
	"strings"
	"sync"
	"time"

	apperrors "risk_calculator/pkg/errors"

	"github.com/shopspring/decimal"
)

// MockPriceSource implements core.IPriceSource with scripted prices
type MockPriceSource struct {
	mu       sync.Mutex
	prices   map[string]decimal.Decimal
	failures map[string]error
	delay    time.Duration
	calls    int
}

func NewMockPriceSource(prices map[string]decimal.Decimal) *MockPriceSource {
	m := &MockPriceSource{
		prices:   make(map[string]decimal.Decimal),
		failures: make(map[string]error),
	}
	for sym, p := range prices {
		m.prices[strings.ToUpper(sym)] = p
	}
	return m
}

// SetPrice updates one symbol
func (m *MockPriceSource) SetPrice(symbol string, price decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prices[strings.ToUpper(symbol)] = price
}

// Fail makes lookups for symbol return err
func (m *MockPriceSource) Fail(symbol string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[strings.ToUpper(symbol)] = err
}

// SetDelay makes GetPrices block for d or until ctx is done
func (m *MockPriceSource) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

// Calls returns how many times GetPrices ran
func (m *MockPriceSource) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *MockPriceSource) GetPrices(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error) {
	m.mu.Lock()
	m.calls++
	delay := m.delay
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]decimal.Decimal, len(symbols))
	var errs []error
	for _, sym := range symbols {
		sym = strings.ToUpper(sym)
		if err, ok := m.failures[sym]; ok {
			errs = append(errs, &apperrors.PriceError{Symbol: sym, Cause: err})
			continue
		}
		if p, ok := m.prices[sym]; ok {
			out[sym] = p
			continue
		}
		errs = append(errs, &apperrors.PriceError{Symbol: sym})
	}
	return out, apperrors.NewPriceErrors(errs)
}
