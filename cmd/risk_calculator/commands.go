package main

import (
	"context"
	"fmt"

	"risk_calculator/internal/config"
	"risk_calculator/internal/core"
	"risk_calculator/internal/pricing"
	"risk_calculator/internal/risk/margin"
	"risk_calculator/internal/trading/portfolio"
	"risk_calculator/internal/trading/simulator"
	"risk_calculator/pkg/cli"
	"risk_calculator/pkg/concurrency"
	"risk_calculator/pkg/tradingutils"

	"github.com/shopspring/decimal"
)

// tradeFlags are shared by quote and open
type tradeFlags struct {
	symbol, side, mode *string
	entry, stop, tp    *decimalFlag
	leverage, risk     *decimalFlag
	margin, mmr        *decimalFlag
	balance            *decimalFlag
}

func addTradeFlags(e *cmdEnv, name string) (*tradeFlags, func([]string) error) {
	fs := e.flagSet(name)
	tf := &tradeFlags{
		symbol:   fs.String("symbol", "", "Symbol, e.g. BTC"),
		side:     fs.String("side", "long", "long or short"),
		mode:     fs.String("mode", "isolated", "isolated or cross"),
		entry:    decimalVar(fs, "entry", "Entry price (current price when omitted)"),
		stop:     decimalVar(fs, "stop", "Stop price; sizes the trade so the loss at stop equals the risk"),
		tp:       decimalVar(fs, "tp", "Take-profit price"),
		leverage: decimalVar(fs, "lev", "Leverage (default 10)"),
		risk:     decimalVar(fs, "risk", "Risk in percent of balance (default from config)"),
		margin:   decimalVar(fs, "margin", "Fixed margin amount instead of risk sizing"),
		mmr:      decimalVar(fs, "mmr", "Maintenance margin rate override, e.g. 0.005"),
	}
	if name == "quote" {
		tf.balance = decimalVar(fs, "balance", "Balance to size against (account available balance when omitted)")
	}
	return tf, fs.Parse
}

func (tf *tradeFlags) resolve(e *cmdEnv) (symbol string, side core.Side, mode core.MarginMode, entry, lev, risk decimal.Decimal, err error) {
	if symbol, err = requireSymbol(*tf.symbol); err != nil {
		return
	}
	if side, err = core.ParseSide(*tf.side); err != nil {
		err = fmt.Errorf("%w: %v", errUsage, err)
		return
	}
	if mode, err = core.ParseMarginMode(*tf.mode); err != nil {
		err = fmt.Errorf("%w: %v", errUsage, err)
		return
	}
	lev = tf.leverage.Or(decimal.NewFromInt(10))
	risk = decimal.NewFromFloat(e.app.Cfg.Risk.DefaultRiskPct)
	if tf.risk.IsSet() {
		risk = tradingutils.FractionFromPercent(*tf.risk.value)
	}
	if tf.entry.IsSet() {
		entry = *tf.entry.value
		return
	}
	entry, err = e.currentPrice(symbol)
	return
}

func runQuote(e *cmdEnv, args []string) error {
	tf, parse := addTradeFlags(e, "quote")
	if err := parse(args); err != nil {
		return err
	}
	symbol, side, mode, entry, lev, risk, err := tf.resolve(e)
	if err != nil {
		return err
	}

	svc, err := e.account()
	if err != nil {
		return err
	}
	balance := tf.balance.Or(svc.Portfolio().Available())

	q, err := svc.Portfolio().Engine().Quote(margin.QuoteRequest{
		Symbol:       symbol,
		Side:         side,
		MarginMode:   mode,
		Balance:      balance,
		RiskPct:      risk,
		Leverage:     lev,
		EntryPrice:   entry,
		StopPrice:    tf.stop.value,
		TakeProfit:   tf.tp.value,
		MarginAmount: tf.margin.value,
		MMR:          tf.mmr.value,
	})
	if err != nil {
		return err
	}
	renderQuote(e.stdout, q, entry)
	return nil
}

func runOpen(e *cmdEnv, args []string) error {
	tf, parse := addTradeFlags(e, "open")
	if err := parse(args); err != nil {
		return err
	}
	symbol, side, mode, entry, lev, risk, err := tf.resolve(e)
	if err != nil {
		return err
	}
	if !tf.margin.IsSet() && !tf.stop.IsSet() {
		return fmt.Errorf("%w: open needs -stop (risk sizing) or -margin", errUsage)
	}

	svc, err := e.account()
	if err != nil {
		return err
	}
	pos, err := svc.Open(e.ctx, portfolio.OpenRequest{
		Symbol:       symbol,
		Side:         side,
		MarginMode:   mode,
		EntryPrice:   entry,
		Leverage:     lev,
		RiskPct:      risk,
		StopPrice:    tf.stop.value,
		TakeProfit:   tf.tp.value,
		MarginAmount: tf.margin.value,
		MMR:          tf.mmr.value,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(e.stdout, "opened #%d %s %s %s size %s @ %s x%s margin %s\n",
		pos.ID, pos.Symbol, pos.Side, pos.MarginMode,
		tradingutils.RoundQuantity(pos.Size, tradingutils.QtyDecimals),
		pos.EntryPrice, pos.Leverage, pos.AllocatedMargin.StringFixed(2))
	if liq, err := svc.Portfolio().Engine().LiquidationPrice(pos); err == nil {
		fmt.Fprintf(e.stdout, "liquidation price %s\n", tradingutils.RoundPrice(liq, tradingutils.PriceDecimals).StringFixed(tradingutils.PriceDecimals))
	}
	return nil
}

func runClose(e *cmdEnv, args []string) error {
	fs := e.flagSet("close")
	id := fs.Int64("id", 0, "Position id")
	exit := decimalVar(fs, "exit", "Exit price (current price when omitted)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id <= 0 {
		return fmt.Errorf("%w: -id is required", errUsage)
	}

	svc, err := e.account()
	if err != nil {
		return err
	}
	pos, err := svc.Portfolio().Position(*id)
	if err != nil {
		return err
	}

	price := exit.Or(decimal.Zero)
	if !exit.IsSet() {
		if price, err = e.currentPrice(pos.Symbol); err != nil {
			return err
		}
	}

	pnl, err := svc.Close(e.ctx, *id, price)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "closed #%d %s @ %s realized %s balance %s\n",
		*id, pos.Symbol, price, pnl.StringFixed(2), svc.Portfolio().Balance().StringFixed(2))
	return nil
}

func runSummary(e *cmdEnv, args []string) error {
	fs := e.flagSet("summary")
	offline := fs.Bool("offline", false, "Use recorded marks instead of fetching prices")
	if err := fs.Parse(args); err != nil {
		return err
	}

	svc, err := e.account()
	if err != nil {
		return err
	}
	p := svc.Portfolio()

	if *offline || len(p.OpenSymbols()) == 0 {
		renderSummary(e.stdout, p.Summary(p.Marks()), nil)
		return nil
	}

	src, err := e.prices(p.OpenSymbols())
	if err != nil {
		return err
	}
	sim := simulator.New(p, src, nil, simulator.Config{
		PriceTimeout:    e.app.Cfg.PriceSource.Timeout(),
		RebalanceOnTick: e.app.Cfg.Risk.RebalanceOnTick,
	}, e.app.Logger)
	report, err := sim.Snapshot(e.ctx)
	if err != nil {
		return err
	}
	if err := svc.Save(e.ctx); err != nil {
		e.app.Logger.Warn("Marks not saved", "error", err)
	}
	renderSummary(e.stdout, report.Summary, report.PriceErrors)
	return nil
}

func runPrices(e *cmdEnv, args []string) error {
	fs := e.flagSet("prices")
	raw := fs.String("symbols", "", "Comma separated symbols (open positions, static prices or top coins when empty)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	symbols, err := cli.NormalizeSymbols(*raw)
	if err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if len(symbols) == 0 {
		symbols = e.defaultSymbols()
	}

	src, err := e.prices(symbols)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(e.ctx, e.app.Cfg.PriceSource.Timeout())
	defer cancel()
	quotes, err := src.Quotes(ctx, symbols)
	renderQuotes(e.stdout, quotes)
	if err != nil && len(quotes) == 0 {
		return err
	}
	if err != nil {
		fmt.Fprintln(e.stderr, "warning:", err)
	}
	return nil
}

func (e *cmdEnv) defaultSymbols() []string {
	if svc, err := e.account(); err == nil {
		if open := svc.Portfolio().OpenSymbols(); len(open) > 0 {
			return open
		}
	}
	if e.app.Cfg.PriceSource.Provider == config.ProviderStatic {
		return e.app.Cfg.PriceSource.StaticSymbols()
	}
	return pricing.SupportedSymbols()
}

func amountCommand(name string, op func(e *cmdEnv, amount decimal.Decimal) error) func(*cmdEnv, []string) error {
	return func(e *cmdEnv, args []string) error {
		fs := e.flagSet(name)
		amount := decimalVar(fs, "amount", "Amount in quote currency")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if !amount.IsSet() {
			return fmt.Errorf("%w: -amount is required", errUsage)
		}
		if err := op(e, *amount.value); err != nil {
			return err
		}
		svc, _ := e.account()
		fmt.Fprintf(e.stdout, "%s %s, balance %s\n", name, amount.value.String(), svc.Portfolio().Balance().StringFixed(2))
		return nil
	}
}

var (
	runDeposit = amountCommand("deposit", func(e *cmdEnv, amount decimal.Decimal) error {
		svc, err := e.account()
		if err != nil {
			return err
		}
		return svc.Deposit(e.ctx, amount)
	})
	runWithdraw = amountCommand("withdraw", func(e *cmdEnv, amount decimal.Decimal) error {
		svc, err := e.account()
		if err != nil {
			return err
		}
		return svc.Withdraw(e.ctx, amount)
	})
	runReset = amountCommand("reset", func(e *cmdEnv, amount decimal.Decimal) error {
		svc, err := e.account()
		if err != nil {
			return err
		}
		return svc.Reset(e.ctx, amount)
	})
)

func runJournal(e *cmdEnv, args []string) error {
	fs := e.flagSet("journal")
	limit := fs.Int("limit", 20, "Number of most recent entries (0 for all)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	svc, err := e.account()
	if err != nil {
		return err
	}
	entries, err := svc.Journal(e.ctx, *limit)
	if err != nil {
		return err
	}
	renderJournal(e.stdout, entries)
	return nil
}

func runStress(e *cmdEnv, args []string) error {
	fs := e.flagSet("stress")
	raw := fs.String("shocks", "", "Comma separated moves as fractions or percents, e.g. -0.1,5% (default from config)")
	refresh := fs.Bool("refresh", true, "Fetch current prices before shocking")
	if err := fs.Parse(args); err != nil {
		return err
	}

	shocks, err := parseShocks(*raw)
	if err != nil {
		return err
	}
	if len(shocks) == 0 {
		shocks = decimalsFromFloats(e.app.Cfg.Watch.Shocks)
	}

	svc, err := e.account()
	if err != nil {
		return err
	}
	p := svc.Portfolio()
	sim, pool, err := e.simulator(p, *refresh && len(p.OpenSymbols()) > 0)
	if err != nil {
		return err
	}
	defer pool.Stop()

	if *refresh && len(p.OpenSymbols()) > 0 {
		if _, err := sim.Snapshot(e.ctx); err != nil {
			return err
		}
	}

	scenarios, err := sim.StressTest(e.ctx, shocks)
	if err != nil {
		return err
	}
	renderStress(e.stdout, p.Summary(p.Marks()), scenarios)
	return nil
}

func (e *cmdEnv) simulator(p *portfolio.Portfolio, withPrices bool) (*simulator.Simulator, *concurrency.WorkerPool, error) {
	cfg := e.app.Cfg
	var src core.IPriceSource
	if withPrices {
		provider, err := e.prices(p.OpenSymbols())
		if err != nil {
			return nil, nil, err
		}
		src = provider
	}
	pool := concurrency.NewWorkerPool(concurrency.PoolConfig{
		Name:        "stress",
		MaxWorkers:  cfg.Concurrency.StressPoolSize,
		MaxCapacity: cfg.Concurrency.StressPoolBuffer,
	}, e.app.Logger)
	sim := simulator.New(p, src, pool, simulator.Config{
		PriceTimeout:    cfg.PriceSource.Timeout(),
		RebalanceOnTick: cfg.Risk.RebalanceOnTick,
	}, e.app.Logger)
	return sim, pool, nil
}
