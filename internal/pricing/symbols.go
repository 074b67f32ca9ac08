// Package pricing provides market price sources for valuation
package pricing

import (
	"sort"
	"strings"
)

// coinGeckoIDs maps trading symbols to CoinGecko coin ids for the top 20 coins
var coinGeckoIDs = map[string]string{
	"BTC":   "bitcoin",
	"ETH":   "ethereum",
	"USDT":  "tether",
	"BNB":   "binancecoin",
	"SOL":   "solana",
	"XRP":   "ripple",
	"USDC":  "usd-coin",
	"ADA":   "cardano",
	"DOGE":  "dogecoin",
	"TRX":   "tron",
	"AVAX":  "avalanche-2",
	"LINK":  "chainlink",
	"DOT":   "polkadot",
	"MATIC": "polygon-pos",
	"LTC":   "litecoin",
	"SHIB":  "shiba-inu",
	"UNI":   "uniswap",
	"XLM":   "stellar",
	"NEAR":  "near",
	"APT":   "aptos",
}

var symbolByCoinGeckoID = func() map[string]string {
	m := make(map[string]string, len(coinGeckoIDs))
	for sym, id := range coinGeckoIDs {
		m[id] = sym
	}
	return m
}()

// SupportedSymbols lists the symbols the CoinGecko source can price
func SupportedSymbols() []string {
	syms := make([]string, 0, len(coinGeckoIDs))
	for sym := range coinGeckoIDs {
		syms = append(syms, sym)
	}
	sort.Strings(syms)
	return syms
}

// CoinGeckoID returns the coin id for symbol
func CoinGeckoID(symbol string) (string, bool) {
	id, ok := coinGeckoIDs[strings.ToUpper(symbol)]
	return id, ok
}

func normalizeSymbols(symbols []string) []string {
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
