package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"risk_calculator/internal/bootstrap"
	"risk_calculator/internal/pricing"
	"risk_calculator/internal/storage"
	"risk_calculator/internal/trading/account"
	"risk_calculator/pkg/cli"
	"risk_calculator/pkg/telemetry"

	"github.com/shopspring/decimal"
)

var errUsage = errors.New("usage")

// cmdEnv lazily builds what a command needs and releases it on close
type cmdEnv struct {
	app    *bootstrap.App
	ctx    context.Context
	stdout io.Writer
	stderr io.Writer

	svc      *account.Service
	store    storage.Store
	provider *pricing.Provider
}

func (e *cmdEnv) account() (*account.Service, error) {
	if e.svc != nil {
		return e.svc, nil
	}
	if err := telemetry.InitMetrics(); err != nil {
		e.app.Logger.Warn("Metrics unavailable", "error", err)
	}
	svc, store, err := bootstrap.NewAccount(e.ctx, e.app.Cfg, e.app.Logger)
	if err != nil {
		return nil, err
	}
	e.svc, e.store = svc, store
	return svc, nil
}

// prices builds the configured price source for symbols. Streams need the
// symbol set up front, so a stream provider is built once per command.
func (e *cmdEnv) prices(symbols []string) (*pricing.Provider, error) {
	if e.provider != nil {
		return e.provider, nil
	}
	cfg := e.app.Cfg
	p, err := pricing.NewProvider(cfg.PriceSource, cfg.App.QuoteAsset, symbols, e.app.Logger)
	if err != nil {
		return nil, err
	}
	e.provider = p

	ctx, cancel := context.WithTimeout(e.ctx, cfg.PriceSource.Timeout())
	defer cancel()
	if err := p.WaitReady(ctx, symbols); err != nil {
		e.app.Logger.Warn("Stream not ready for every symbol", "error", err)
	}
	return p, nil
}

// currentPrice fetches one symbol, bounded by the configured timeout
func (e *cmdEnv) currentPrice(symbol string) (decimal.Decimal, error) {
	p, err := e.prices([]string{symbol})
	if err != nil {
		return decimal.Zero, err
	}
	ctx, cancel := context.WithTimeout(e.ctx, e.app.Cfg.PriceSource.Timeout())
	defer cancel()
	prices, err := p.GetPrices(ctx, []string{symbol})
	if price, ok := prices[symbol]; ok {
		return price, nil
	}
	if err == nil {
		err = fmt.Errorf("no price for %s", symbol)
	}
	return decimal.Zero, err
}

func (e *cmdEnv) close() {
	if e.provider != nil {
		e.provider.Close()
	}
	if e.store != nil {
		if err := e.store.Close(); err != nil {
			e.app.Logger.Warn("Failed to close state store", "error", err)
		}
	}
}

func (e *cmdEnv) flagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(e.stderr)
	return fs
}

// decimalFlag is an optional decimal command-line value
type decimalFlag struct {
	value *decimal.Decimal
}

func (f *decimalFlag) String() string {
	if f == nil || f.value == nil {
		return ""
	}
	return f.value.String()
}

func (f *decimalFlag) Set(s string) error {
	v, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("not a number: %q", s)
	}
	f.value = &v
	return nil
}

func (f *decimalFlag) IsSet() bool { return f.value != nil }

func (f *decimalFlag) Or(def decimal.Decimal) decimal.Decimal {
	if f.value == nil {
		return def
	}
	return *f.value
}

func decimalVar(fs *flag.FlagSet, name, usage string) *decimalFlag {
	f := &decimalFlag{}
	fs.Var(f, name, usage)
	return f
}

func requireSymbol(raw string) (string, error) {
	if raw == "" {
		return "", fmt.Errorf("%w: -symbol is required", errUsage)
	}
	return cli.NormalizeSymbol(raw)
}

func parseShocks(raw string) ([]decimal.Decimal, error) {
	var out []decimal.Decimal
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		pct := strings.HasSuffix(part, "%")
		v, err := decimal.NewFromString(strings.TrimSuffix(part, "%"))
		if err != nil {
			return nil, fmt.Errorf("%w: bad shock %q", errUsage, part)
		}
		if pct {
			v = v.Div(decimal.NewFromInt(100))
		}
		out = append(out, v)
	}
	return out, nil
}

func decimalsFromFloats(vs []float64) []decimal.Decimal {
	out := make([]decimal.Decimal, 0, len(vs))
	for _, v := range vs {
		out = append(out, decimal.NewFromFloat(v))
	}
	return out
}
