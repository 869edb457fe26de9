package pricing

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func pricedLine(unit string, qty int, depositPct string) PricedLine {
	line := PricedLine{
		LineItem:  LineItem{Quantity: qty},
		UnitPrice: dec(unit),
		Resolved:  true,
	}
	if depositPct != "" {
		line.DepositEnabled = true
		line.DepositPercent = dec(depositPct)
	}
	return line
}

func TestComputeSplitThirtyPercentDeposit(t *testing.T) {
	rules := []InterestRateRule{{LowerRange: dec("20"), UpperRange: dec("40"), Rate: dec("5")}}
	split, err := ComputeSplit(pricedLine("100", 10, "30"), rules)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !split.PayNow.Equal(dec("300.00")) {
		t.Fatalf("expected payNow 300.00, got %s", split.PayNow)
	}
	if !split.InterestAmount.Equal(dec("35.00")) {
		t.Fatalf("expected interest 35.00, got %s", split.InterestAmount)
	}
	if !split.PayLater.Equal(dec("735.00")) {
		t.Fatalf("expected payLater 735.00, got %s", split.PayLater)
	}
	if !split.EffectiveRate.Equal(dec("5")) {
		t.Fatalf("expected effective rate 5, got %s", split.EffectiveRate)
	}
}

func TestComputeSplitDepositDisabled(t *testing.T) {
	split, err := ComputeSplit(pricedLine("100", 5, ""), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !split.PayNow.Equal(dec("500.00")) || !split.PayLater.IsZero() || !split.InterestAmount.IsZero() {
		t.Fatalf("expected full payment up front, got %+v", split)
	}
}

func TestComputeSplitZeroPercentBehavesLikeDisabled(t *testing.T) {
	rules := []InterestRateRule{{LowerRange: dec("0"), UpperRange: dec("100"), Rate: dec("9")}}
	split, err := ComputeSplit(pricedLine("100", 5, "0"), rules)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !split.PayNow.Equal(dec("500.00")) || !split.PayLater.IsZero() || !split.InterestAmount.IsZero() {
		t.Fatalf("zero percent must equal disabled, got %+v", split)
	}
}

func TestComputeSplitFullDepositLeavesNothingDeferred(t *testing.T) {
	rules := []InterestRateRule{{LowerRange: dec("0"), UpperRange: dec("100"), Rate: dec("50")}}
	split, err := ComputeSplit(pricedLine("99.99", 3, "100"), rules)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !split.PayLater.IsZero() {
		t.Fatalf("expected payLater 0 at 100%% deposit, got %s", split.PayLater)
	}
	if !split.InterestAmount.IsZero() {
		t.Fatalf("expected no interest on empty remainder, got %s", split.InterestAmount)
	}
}

func TestComputeSplitRejectsOutOfRangePercent(t *testing.T) {
	for _, pct := range []string{"-1", "100.01", "250"} {
		_, err := ComputeSplit(pricedLine("100", 1, pct), nil)
		if !errors.Is(err, ErrInvalidDepositPercentage) {
			t.Fatalf("pct %s: expected ErrInvalidDepositPercentage, got %v", pct, err)
		}
	}
}

func TestComputeSplitUnresolvedPrice(t *testing.T) {
	line := PricedLine{LineItem: LineItem{Quantity: 1, DepositEnabled: true, DepositPercent: dec("50")}}
	_, err := ComputeSplit(line, nil)
	if !errors.Is(err, ErrMissingPrice) {
		t.Fatalf("expected ErrMissingPrice, got %v", err)
	}
}

func TestComputeSplitNoMatchingRuleMeansZeroInterest(t *testing.T) {
	rules := []InterestRateRule{{LowerRange: dec("60"), UpperRange: dec("80"), Rate: dec("5")}}
	split, err := ComputeSplit(pricedLine("100", 10, "30"), rules)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !split.InterestAmount.IsZero() || !split.EffectiveRate.IsZero() {
		t.Fatalf("expected zero interest outside all rules, got %+v", split)
	}
	if !split.PayLater.Equal(dec("700.00")) {
		t.Fatalf("expected payLater 700.00, got %s", split.PayLater)
	}
}

func TestComputeSplitLowestLowerRangeWins(t *testing.T) {
	rules := []InterestRateRule{
		{LowerRange: dec("25"), UpperRange: dec("50"), Rate: dec("9")},
		{LowerRange: dec("10"), UpperRange: dec("40"), Rate: dec("3")},
	}
	split, err := ComputeSplit(pricedLine("100", 10, "30"), rules)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !split.EffectiveRate.Equal(dec("3")) {
		t.Fatalf("expected the lower-range rule to win, got rate %s", split.EffectiveRate)
	}
}

func TestComputeSplitConservation(t *testing.T) {
	// payNow + payLater - interest must equal the item total for every valid percentage.
	rules := []InterestRateRule{
		{LowerRange: dec("1"), UpperRange: dec("33"), Rate: dec("7.5")},
		{LowerRange: dec("34"), UpperRange: dec("66"), Rate: dec("4")},
		{LowerRange: dec("67"), UpperRange: dec("100"), Rate: dec("1.25")},
	}
	line := pricedLine("33.33", 7, "")
	itemTotal := Round2(line.ItemTotal())
	for pct := 0; pct <= 100; pct++ {
		line.DepositEnabled = true
		line.DepositPercent = decimal.NewFromInt(int64(pct))
		split, err := ComputeSplit(line, rules)
		if err != nil {
			t.Fatalf("pct %d: unexpected error: %v", pct, err)
		}
		got := split.PayNow.Add(split.PayLater).Sub(split.InterestAmount)
		if !got.Equal(itemTotal) {
			t.Fatalf("pct %d: conservation broken: %s != %s", pct, got, itemTotal)
		}
	}
}

func TestComputeSplitRoundsHalfUp(t *testing.T) {
	// 46.90 * 5% = 2.345, which must round to 2.35 rather than banker's 2.34.
	split, err := ComputeSplit(pricedLine("67", 1, "30"), []InterestRateRule{
		{LowerRange: dec("20"), UpperRange: dec("40"), Rate: dec("5")},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !split.PayNow.Equal(dec("20.10")) {
		t.Fatalf("expected payNow 20.10, got %s", split.PayNow)
	}
	if !split.InterestAmount.Equal(dec("2.35")) {
		t.Fatalf("expected half-up interest 2.35, got %s", split.InterestAmount)
	}
}

func TestValidateRulesOverlap(t *testing.T) {
	err := ValidateRules([]InterestRateRule{
		{LowerRange: dec("0"), UpperRange: dec("30"), Rate: dec("5")},
		{LowerRange: dec("30"), UpperRange: dec("60"), Rate: dec("3")},
	})
	if !errors.Is(err, ErrOverlappingConfiguration) {
		t.Fatalf("inclusive bounds sharing an endpoint must overlap, got %v", err)
	}

	err = ValidateRules([]InterestRateRule{
		{LowerRange: dec("0"), UpperRange: dec("29.99"), Rate: dec("5")},
		{LowerRange: dec("30"), UpperRange: dec("60"), Rate: dec("3")},
	})
	if err != nil {
		t.Fatalf("disjoint rules must validate, got %v", err)
	}
}

func TestValidateRulesBounds(t *testing.T) {
	if err := ValidateRules([]InterestRateRule{{LowerRange: dec("40"), UpperRange: dec("20")}}); !errors.Is(err, ErrInvalidRange) {
		t.Fatalf("expected ErrInvalidRange, got %v", err)
	}
	if err := ValidateRules([]InterestRateRule{{LowerRange: dec("-5"), UpperRange: dec("20")}}); !errors.Is(err, ErrInvalidDepositPercentage) {
		t.Fatalf("expected ErrInvalidDepositPercentage, got %v", err)
	}
}
