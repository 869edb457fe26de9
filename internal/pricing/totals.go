package pricing

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Fee is an additional charge attached either to the whole order (empty
// AppliesTo) or to specific variations before purchase.
type Fee struct {
	Name      string
	Amount    decimal.Decimal
	Required  bool
	AppliesTo []uuid.UUID
}

// OrderTotals aggregates every computed component of an order. All amounts
// carry two fractional digits, rounded half-up.
type OrderTotals struct {
	Subtotal       decimal.Decimal
	ShippingCost   decimal.Decimal
	DiscountAmount decimal.Decimal
	FeesTotal      decimal.Decimal
	PayNowAmount   decimal.Decimal
	PayLaterAmount decimal.Decimal
	InterestTotal  decimal.Decimal
	GrandTotal     decimal.Decimal

	// ShippingDueNow is set when any matched interest rule requires shipping
	// to be settled together with the deposit.
	ShippingDueNow bool
}

// ComputeOrderTotal combines line subtotals, shipping, fees and discount into
// the final totals. The grand total never goes negative: an oversized
// discount clamps it to zero rather than crediting the buyer. Lines with
// deposits enabled are additionally run through ComputeSplit and their
// pay-now/pay-later/interest amounts summed.
func ComputeOrderTotal(lines []PricedLine, shippingCost, discountAmount decimal.Decimal, fees []Fee, rules []InterestRateRule) (OrderTotals, error) {
	subtotal := decimal.Zero
	for _, line := range lines {
		if !line.Resolved {
			return OrderTotals{}, ErrMissingPrice
		}
		subtotal = subtotal.Add(line.ItemTotal())
	}
	subtotal = Round2(subtotal)

	feesTotal := decimal.Zero
	for _, fee := range fees {
		feesTotal = feesTotal.Add(fee.Amount)
	}
	feesTotal = Round2(feesTotal)

	grand := Round2(subtotal.Add(shippingCost).Add(feesTotal).Sub(discountAmount))
	if grand.IsNegative() {
		grand = decimal.Zero.Round(2)
	}

	totals := OrderTotals{
		Subtotal:       subtotal,
		ShippingCost:   Round2(shippingCost),
		DiscountAmount: Round2(discountAmount),
		FeesTotal:      feesTotal,
		GrandTotal:     grand,
		PayNowAmount:   subtotal,
		PayLaterAmount: decimal.Zero,
		InterestTotal:  decimal.Zero,
	}

	anyDeposit := false
	for _, line := range lines {
		if line.DepositEnabled && line.DepositPercent.IsPositive() {
			anyDeposit = true
			break
		}
	}
	if !anyDeposit {
		return totals, nil
	}

	payNow, payLater, interest := decimal.Zero, decimal.Zero, decimal.Zero
	for _, line := range lines {
		split, err := ComputeSplit(line, rules)
		if err != nil {
			return OrderTotals{}, err
		}
		payNow = payNow.Add(split.PayNow)
		payLater = payLater.Add(split.PayLater)
		interest = interest.Add(split.InterestAmount)
		if split.MustPayShipping {
			totals.ShippingDueNow = true
		}
	}
	totals.PayNowAmount = Round2(payNow)
	totals.PayLaterAmount = Round2(payLater)
	totals.InterestTotal = Round2(interest)
	return totals, nil
}
