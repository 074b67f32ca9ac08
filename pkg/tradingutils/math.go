// Package tradingutils holds small decimal helpers shared by the risk and CLI layers
package tradingutils

import (
	"github.com/shopspring/decimal"
)

// Display precision used for reports
const (
	PriceDecimals   = 2
	QtyDecimals     = 6
	PercentDecimals = 2
)

var hundred = decimal.NewFromInt(100)

// RoundPrice rounds a price to the specified decimals
func RoundPrice(price decimal.Decimal, priceDecimals int) decimal.Decimal {
	return price.Round(int32(priceDecimals))
}

// RoundQuantity truncates a quantity to the specified decimals so a rounded
// size never exceeds the computed one
func RoundQuantity(qty decimal.Decimal, qtyDecimals int) decimal.Decimal {
	return qty.Truncate(int32(qtyDecimals))
}

// PercentOf returns part/whole*100, zero when whole is zero
func PercentOf(part, whole decimal.Decimal) decimal.Decimal {
	if whole.IsZero() {
		return decimal.Zero
	}
	return part.Div(whole).Mul(hundred)
}

// FractionFromPercent converts 1.5 into 0.015
func FractionFromPercent(pct decimal.Decimal) decimal.Decimal {
	return pct.Div(hundred)
}

// DistancePct is the signed move from price to target relative to price, in percent
func DistancePct(price, target decimal.Decimal) decimal.Decimal {
	return PercentOf(target.Sub(price), price)
}

// ApplyShock moves a price by a fractional shock, e.g. -0.1 for a 10% drop.
// The result never goes below zero.
func ApplyShock(price, shock decimal.Decimal) decimal.Decimal {
	shocked := price.Mul(decimal.NewFromInt(1).Add(shock))
	if shocked.IsNegative() {
		return decimal.Zero
	}
	return shocked
}
