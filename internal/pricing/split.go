package pricing

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LineItem is one variation/quantity pair as supplied by the cart or order layer.
type LineItem struct {
	VariationID    uuid.UUID
	Quantity       int
	BasePrice      decimal.Decimal
	DepositEnabled bool
	DepositPercent decimal.Decimal
}

// PricedLine is a LineItem whose unit price has been resolved through the
// price book. Resolved guards against skipping resolution; totals computed
// from an unresolved line fail with ErrMissingPrice.
type PricedLine struct {
	LineItem
	UnitPrice decimal.Decimal
	Resolved  bool
}

// ItemTotal returns quantity times resolved unit price.
func (l PricedLine) ItemTotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// InterestRateRule surcharges the deferred portion of a line item when the
// chosen deposit percentage falls inside [LowerRange, UpperRange], inclusive.
type InterestRateRule struct {
	VariationID     uuid.UUID
	LowerRange      decimal.Decimal
	UpperRange      decimal.Decimal
	Rate            decimal.Decimal
	MustPayShipping bool
}

// Contains reports whether the rule covers the deposit percentage.
func (r InterestRateRule) Contains(pct decimal.Decimal) bool {
	return pct.GreaterThanOrEqual(r.LowerRange) && pct.LessThanOrEqual(r.UpperRange)
}

// PaymentSplit is the per-line outcome of the deposit calculation.
type PaymentSplit struct {
	PayNow          decimal.Decimal
	PayLater        decimal.Decimal
	InterestAmount  decimal.Decimal
	EffectiveRate   decimal.Decimal
	MustPayShipping bool
}

// ComputeSplit derives the pay-now and pay-later amounts for one priced line.
//
// With deposits disabled (or a zero percentage) the full item total is due
// immediately. Otherwise the deposit percentage of the item total is due now,
// rounded half-up to 2 decimals, and the remainder plus interest is deferred.
// The interest rate comes from the first rule covering the percentage,
// lowest LowerRange winning; no covering rule means zero interest.
func ComputeSplit(line PricedLine, rules []InterestRateRule) (PaymentSplit, error) {
	if !line.Resolved {
		return PaymentSplit{}, ErrMissingPrice
	}
	if line.Quantity < 1 {
		return PaymentSplit{}, fmt.Errorf("%w: got %d", ErrInvalidQuantity, line.Quantity)
	}
	pct := line.DepositPercent
	if pct.IsNegative() || pct.GreaterThan(hundred) {
		return PaymentSplit{}, fmt.Errorf("%w: got %s", ErrInvalidDepositPercentage, pct)
	}

	itemTotal := Round2(line.ItemTotal())
	if !line.DepositEnabled || pct.IsZero() {
		return PaymentSplit{PayNow: itemTotal, PayLater: decimal.Zero, InterestAmount: decimal.Zero, EffectiveRate: decimal.Zero}, nil
	}

	payNow := Round2(itemTotal.Mul(pct).Div(hundred))
	remaining := itemTotal.Sub(payNow)

	split := PaymentSplit{PayNow: payNow, EffectiveRate: decimal.Zero, InterestAmount: decimal.Zero}
	if rule, ok := matchRule(line.VariationID, pct, rules); ok {
		split.EffectiveRate = rule.Rate
		split.InterestAmount = Round2(remaining.Mul(rule.Rate).Div(hundred))
		split.MustPayShipping = rule.MustPayShipping
	}
	split.PayLater = remaining.Add(split.InterestAmount)
	return split, nil
}

// matchRule finds the covering rule for the line's variation. Rules with a
// zero VariationID apply to every variation.
func matchRule(variationID uuid.UUID, pct decimal.Decimal, rules []InterestRateRule) (InterestRateRule, bool) {
	var best InterestRateRule
	found := false
	for _, r := range rules {
		if r.VariationID != uuid.Nil && r.VariationID != variationID {
			continue
		}
		if !r.Contains(pct) {
			continue
		}
		if !found || r.LowerRange.LessThan(best.LowerRange) {
			best = r
			found = true
		}
	}
	return best, found
}

// ValidateRules rejects interest rule sets with overlapping percentage
// ranges. Both bounds are inclusive, so ranges sharing an endpoint overlap.
func ValidateRules(rules []InterestRateRule) error {
	for _, r := range rules {
		if r.UpperRange.LessThan(r.LowerRange) {
			return fmt.Errorf("%w: rule [%s,%s]", ErrInvalidRange, r.LowerRange, r.UpperRange)
		}
		if r.LowerRange.IsNegative() || r.UpperRange.GreaterThan(hundred) {
			return fmt.Errorf("%w: rule [%s,%s]", ErrInvalidDepositPercentage, r.LowerRange, r.UpperRange)
		}
	}
	if len(rules) < 2 {
		return nil
	}
	grouped := make(map[uuid.UUID][]InterestRateRule)
	for _, r := range rules {
		grouped[r.VariationID] = append(grouped[r.VariationID], r)
	}
	for _, group := range grouped {
		sort.Slice(group, func(i, j int) bool { return group[i].LowerRange.LessThan(group[j].LowerRange) })
		for i := 1; i < len(group); i++ {
			prev, cur := group[i-1], group[i]
			if !cur.LowerRange.GreaterThan(prev.UpperRange) {
				return fmt.Errorf("%w: rules [%s,%s] and [%s,%s]",
					ErrOverlappingConfiguration, prev.LowerRange, prev.UpperRange, cur.LowerRange, cur.UpperRange)
			}
		}
	}
	return nil
}
