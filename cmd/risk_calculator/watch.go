package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"risk_calculator/internal/alert"
	"risk_calculator/internal/bootstrap"
	"risk_calculator/internal/infrastructure/health"
	"risk_calculator/internal/infrastructure/metrics"
	"risk_calculator/internal/trading/account"
	"risk_calculator/internal/trading/simulator"
	"risk_calculator/pkg/telemetry"
)

// watcher revalues the account every interval until its context ends
type watcher struct {
	env      *cmdEnv
	svc      *account.Service
	sim      *simulator.Simulator
	interval time.Duration
	alerts   *alert.LiquidationMonitor

	mu      sync.Mutex
	lastErr error
}

func runWatch(e *cmdEnv, args []string) error {
	fs := e.flagSet("watch")
	interval := fs.Duration("interval", e.app.Cfg.Watch.Interval(), "Valuation interval")
	once := fs.Bool("once", false, "Run a single valuation and exit")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *interval <= 0 {
		return fmt.Errorf("%w: -interval must be positive", errUsage)
	}

	cfg := e.app.Cfg
	if cfg.Telemetry.EnableMetrics {
		tel, err := telemetry.Setup(telemetry.Options{ServiceName: cfg.App.Name, Version: version, Writer: e.stderr})
		if err != nil {
			return err
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = tel.Shutdown(ctx)
		}()
	}

	svc, err := e.account()
	if err != nil {
		return err
	}
	p := svc.Portfolio()
	if len(p.OpenSymbols()) == 0 {
		fmt.Fprintln(e.stdout, "no open positions; open one first")
		return nil
	}

	sim, pool, err := e.simulator(p, true)
	if err != nil {
		return err
	}
	defer pool.Stop()

	w := &watcher{
		env:      e,
		svc:      svc,
		sim:      sim,
		interval: *interval,
		alerts:   bootstrap.NewLiquidationMonitor(cfg, e.app.Logger),
	}
	if *once {
		return w.tick(e.ctx)
	}

	hm := health.NewHealthManager(e.app.Logger)
	hm.Register("store", func() error {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		return svc.Ping(ctx)
	})
	hm.Register("price_source", w.lastError)

	runners := []bootstrap.Runner{w}
	if cfg.Telemetry.EnableMetrics {
		runners = append(runners, metrics.NewServer(cfg.Telemetry.MetricsPort, hm, e.app.Logger))
	}
	return e.app.Run(runners...)
}

func (w *watcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if err := w.tick(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			w.env.app.Logger.Warn("Valuation failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (w *watcher) tick(ctx context.Context) error {
	report, err := w.sim.Snapshot(ctx)
	w.setLastError(err, report)
	if err != nil {
		return err
	}
	if err := w.svc.Save(ctx); err != nil {
		w.env.app.Logger.Warn("Marks not saved", "error", err)
	}

	out := w.env.stdout
	fmt.Fprintf(out, "\n== %s ==\n", report.At.Local().Format(time.RFC3339))
	renderSummary(out, report.Summary, report.PriceErrors)
	for _, id := range report.NewlyLiquidated {
		fmt.Fprintf(out, "!! position #%d reached its liquidation price\n", id)
	}
	if report.RebalanceError != "" {
		fmt.Fprintf(out, "!! rebalance failed: %s\n", report.RebalanceError)
	}
	if w.alerts != nil {
		w.alerts.Observe(ctx, report)
	}

	shocks := w.env.app.Cfg.Watch.Shocks
	if len(shocks) > 0 {
		scenarios, err := w.sim.StressTest(ctx, decimalsFromFloats(shocks))
		if err != nil {
			return err
		}
		fmt.Fprintln(out)
		renderStress(out, report.Summary, scenarios)
	}
	return nil
}

func (w *watcher) setLastError(err error, report *simulator.Report) {
	w.mu.Lock()
	defer w.mu.Unlock()
	switch {
	case err != nil:
		w.lastErr = err
	case report != nil && len(report.PriceErrors) > 0:
		w.lastErr = fmt.Errorf("%d symbol(s) unpriced", len(report.PriceErrors))
	default:
		w.lastErr = nil
	}
}

func (w *watcher) lastError() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastErr
}
