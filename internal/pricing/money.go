package pricing

import "github.com/shopspring/decimal"

// Round2 rounds a monetary amount half-up to two decimal places.
// Half-up, not banker's rounding: 2.345 becomes 2.35.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

var hundred = decimal.NewFromInt(100)
