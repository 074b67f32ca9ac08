package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"risk_calculator/internal/pricing"
	"risk_calculator/internal/risk/margin"
	"risk_calculator/internal/storage"
	"risk_calculator/internal/trading/portfolio"
	"risk_calculator/internal/trading/simulator"
	"risk_calculator/pkg/tradingutils"

	"github.com/shopspring/decimal"
)

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func money(d decimal.Decimal) string { return d.StringFixed(2) }

func price(d decimal.Decimal) string {
	return tradingutils.RoundPrice(d, tradingutils.PriceDecimals).StringFixed(tradingutils.PriceDecimals)
}

func optPrice(d *decimal.Decimal) string {
	if d == nil {
		return "-"
	}
	return price(*d)
}

func pct(d decimal.Decimal) string { return d.StringFixed(tradingutils.PercentDecimals) + "%" }

func optPct(d *decimal.Decimal) string {
	if d == nil {
		return "-"
	}
	return pct(*d)
}

func renderQuote(w io.Writer, q *margin.Quote, entry decimal.Decimal) {
	t := newTable(w)
	fmt.Fprintf(t, "symbol\t%s %s %s\n", q.Symbol, q.Side, q.MarginMode)
	fmt.Fprintf(t, "entry\t%s\n", price(entry))
	fmt.Fprintf(t, "size\t%s\n", tradingutils.RoundQuantity(q.Size, tradingutils.QtyDecimals))
	fmt.Fprintf(t, "notional\t%s\n", money(q.Notional))
	fmt.Fprintf(t, "margin\t%s (x%s)\n", money(q.Margin), q.Leverage)
	fmt.Fprintf(t, "maintenance rate\t%s\n", q.MaintenanceMarginRate)
	fmt.Fprintf(t, "liquidation price\t%s (%s away)\n", price(q.LiquidationPrice), pct(tradingutils.DistancePct(entry, q.LiquidationPrice).Abs()))
	if q.AccountLiquidationPrice != nil {
		fmt.Fprintf(t, "account liquidation\t%s\n", price(*q.AccountLiquidationPrice))
	}
	if q.LossAtStop != nil {
		fmt.Fprintf(t, "loss at stop\t%s\n", money(*q.LossAtStop))
	}
	if q.PnLAtTarget != nil {
		fmt.Fprintf(t, "pnl at target\t%s (ROI %s)\n", money(*q.PnLAtTarget), optPct(q.ROIPct))
	}
	if q.RiskReward != nil {
		fmt.Fprintf(t, "risk/reward\t1:%s\n", q.RiskReward.StringFixed(2))
	}
	fmt.Fprintf(t, "max loss\t%s\n", money(q.MaxLoss))
	t.Flush()
}

func renderSummary(w io.Writer, s portfolio.Summary, priceErrs map[string]string) {
	t := newTable(w)
	fmt.Fprintf(t, "balance\t%s\tinitial\t%s\n", money(s.Balance), money(s.InitialBalance))
	fmt.Fprintf(t, "equity\t%s\tunrealized\t%s\n", money(s.Equity), money(s.TotalUnrealizedPnL))
	fmt.Fprintf(t, "free\t%s\tavailable\t%s\n", money(s.FreeBalance), money(s.Available))
	fmt.Fprintf(t, "margin isolated\t%s\tcross\t%s\n", money(s.IsolatedMargin), money(s.CrossMargin))
	fmt.Fprintf(t, "realized\t%s\tclosed\t%d\n", money(s.RealizedPnL), s.ClosedPositions)
	t.Flush()
	if s.UnderMargined {
		fmt.Fprintf(w, "!! under-margined: allocated margin exceeds balance by %s\n", money(s.MarginShortfall))
	}

	if len(s.Positions) == 0 {
		fmt.Fprintln(w, "\nno open positions")
		return
	}

	fmt.Fprintln(w)
	t = newTable(w)
	fmt.Fprintln(t, "ID\tSYMBOL\tSIDE\tMODE\tSIZE\tENTRY\tPRICE\tMARGIN\tPNL\tPNL%\tLIQ\tACCT LIQ\tDIST\tRR")
	for _, d := range s.Positions {
		pos := d.Position
		current, pnl, pnlPct := "-", "-", "-"
		if d.Priced {
			current = price(d.CurrentPrice)
			pnl = money(d.UnrealizedPnL)
			pnlPct = pct(d.PnLPct.Mul(decimal.NewFromInt(100)))
		}
		liq := optPrice(d.LiquidationPrice)
		if d.Liquidated {
			liq += " LIQUIDATED"
		}
		rr := "-"
		if d.RiskReward != nil {
			rr = "1:" + d.RiskReward.StringFixed(2)
		}
		fmt.Fprintf(t, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			pos.ID, pos.Symbol, pos.Side, pos.MarginMode,
			tradingutils.RoundQuantity(pos.Size, tradingutils.QtyDecimals),
			price(pos.EntryPrice), current, money(pos.AllocatedMargin), pnl, pnlPct,
			liq, optPrice(d.AccountLiquidationPrice), optPct(d.LiquidationDistancePct), rr)
	}
	t.Flush()

	if len(s.Unpriced) > 0 {
		fmt.Fprintf(w, "\nunpriced: %s\n", strings.Join(s.Unpriced, ", "))
	}
	syms := make([]string, 0, len(priceErrs))
	for sym := range priceErrs {
		syms = append(syms, sym)
	}
	sort.Strings(syms)
	for _, sym := range syms {
		fmt.Fprintf(w, "  %s: %s\n", sym, priceErrs[sym])
	}
}

func renderQuotes(w io.Writer, quotes []pricing.Quote) {
	t := newTable(w)
	fmt.Fprintln(t, "SYMBOL\tPRICE\t24H")
	for _, q := range quotes {
		fmt.Fprintf(t, "%s\t%s\t%s\n", q.Symbol, price(q.Price), pct(q.Change24hPct))
	}
	t.Flush()
}

func renderJournal(w io.Writer, entries []storage.JournalEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "journal is empty")
		return
	}
	t := newTable(w)
	fmt.Fprintln(t, "TIME\tKIND\tPOSITION\tSYMBOL\tAMOUNT\tBALANCE\tNOTE")
	for _, e := range entries {
		pos := "-"
		if e.PositionID > 0 {
			pos = fmt.Sprintf("#%d", e.PositionID)
		}
		fmt.Fprintf(t, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			e.At.Format("2006-01-02 15:04:05"), e.Kind, pos, e.Symbol, money(e.Amount), money(e.BalanceAfter), e.Note)
	}
	t.Flush()
}

func renderStress(w io.Writer, base portfolio.Summary, scenarios []simulator.Scenario) {
	if len(base.Positions) == 0 {
		fmt.Fprintln(w, "no open positions")
		return
	}
	t := newTable(w)
	fmt.Fprintln(t, "SHOCK\tEQUITY\tUNREALIZED\tLIQUIDATED")
	for _, sc := range scenarios {
		ids := make([]string, 0, len(sc.Liquidated))
		for _, id := range sc.Liquidated {
			ids = append(ids, fmt.Sprintf("#%d", id))
		}
		liq := "-"
		if len(ids) > 0 {
			liq = strings.Join(ids, " ")
		}
		fmt.Fprintf(t, "%s\t%s\t%s\t%s\n", pct(sc.Shock.Mul(decimal.NewFromInt(100))), money(sc.Equity), money(sc.UnrealizedPnL), liq)
	}
	t.Flush()
}
