package pricing

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func dec(value string) decimal.Decimal {
	d, err := decimal.NewFromString(value)
	if err != nil {
		panic(err)
	}
	return d
}

func TestResolveUnitPriceNoTiers(t *testing.T) {
	price, err := ResolveUnitPrice(dec("100"), nil, 3, TierGapFail)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !price.Equal(dec("100")) {
		t.Fatalf("expected base price 100, got %s", price)
	}
}

func TestResolveUnitPriceVolumeTier(t *testing.T) {
	tiers := []PriceTier{
		{MinQuantity: 1, MaxQuantity: 9, Price: dec("100")},
		{MinQuantity: 10, MaxQuantity: 49, Price: dec("90")},
	}
	price, err := ResolveUnitPrice(dec("100"), tiers, 15, TierGapFail)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !price.Equal(dec("90")) {
		t.Fatalf("expected tier price 90, got %s", price)
	}
}

func TestResolveUnitPriceBoundariesInclusive(t *testing.T) {
	tiers := []PriceTier{
		{MinQuantity: 1, MaxQuantity: 9, Price: dec("100")},
		{MinQuantity: 10, MaxQuantity: 49, Price: dec("90")},
	}
	for _, tc := range []struct {
		qty  int
		want string
	}{
		{9, "100"},
		{10, "90"},
		{49, "90"},
	} {
		price, err := ResolveUnitPrice(dec("100"), tiers, tc.qty, TierGapFail)
		if err != nil {
			t.Fatalf("qty %d: unexpected error: %v", tc.qty, err)
		}
		if !price.Equal(dec(tc.want)) {
			t.Fatalf("qty %d: expected %s, got %s", tc.qty, tc.want, price)
		}
	}
}

func TestResolveUnitPriceUnboundedTier(t *testing.T) {
	tiers := []PriceTier{{MinQuantity: 50, MaxQuantity: 0, Price: dec("80")}}
	price, err := ResolveUnitPrice(dec("100"), tiers, 5000, TierGapFail)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !price.Equal(dec("80")) {
		t.Fatalf("expected 80, got %s", price)
	}
}

func TestResolveUnitPriceGap(t *testing.T) {
	tiers := []PriceTier{{MinQuantity: 10, MaxQuantity: 49, Price: dec("90")}}

	_, err := ResolveUnitPrice(dec("100"), tiers, 5, TierGapFail)
	if !errors.Is(err, ErrNoPriceTierMatch) {
		t.Fatalf("expected ErrNoPriceTierMatch, got %v", err)
	}

	price, err := ResolveUnitPrice(dec("100"), tiers, 5, TierGapBasePrice)
	if err != nil {
		t.Fatalf("unexpected error with fallback policy: %v", err)
	}
	if !price.Equal(dec("100")) {
		t.Fatalf("expected fallback base price 100, got %s", price)
	}
}

func TestResolveUnitPriceRejectsNonPositiveQuantity(t *testing.T) {
	_, err := ResolveUnitPrice(dec("100"), nil, 0, TierGapFail)
	if !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("expected ErrInvalidQuantity, got %v", err)
	}
}

func TestValidateTiersOverlap(t *testing.T) {
	err := ValidateTiers([]PriceTier{
		{MinQuantity: 1, MaxQuantity: 10, Price: dec("100")},
		{MinQuantity: 10, MaxQuantity: 20, Price: dec("90")},
	})
	if !errors.Is(err, ErrOverlappingConfiguration) {
		t.Fatalf("expected overlap error for shared boundary, got %v", err)
	}

	err = ValidateTiers([]PriceTier{
		{MinQuantity: 1, MaxQuantity: 0, Price: dec("100")},
		{MinQuantity: 50, MaxQuantity: 99, Price: dec("90")},
	})
	if !errors.Is(err, ErrOverlappingConfiguration) {
		t.Fatalf("expected overlap error for unbounded tier, got %v", err)
	}
}

func TestValidateTiersDuplicateMin(t *testing.T) {
	err := ValidateTiers([]PriceTier{
		{MinQuantity: 5, MaxQuantity: 9, Price: dec("100")},
		{MinQuantity: 5, MaxQuantity: 20, Price: dec("90")},
	})
	if !errors.Is(err, ErrOverlappingConfiguration) {
		t.Fatalf("expected duplicate min error, got %v", err)
	}
}

func TestValidateTiersAccepts(t *testing.T) {
	err := ValidateTiers([]PriceTier{
		{MinQuantity: 1, MaxQuantity: 9, Price: dec("100")},
		{MinQuantity: 10, MaxQuantity: 49, Price: dec("90")},
		{MinQuantity: 50, MaxQuantity: 0, Price: dec("80")},
	})
	if err != nil {
		t.Fatalf("expected valid tier set, got %v", err)
	}
}
