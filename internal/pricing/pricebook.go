package pricing

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PriceTier maps a quantity range to a unit price for one variation.
// MaxQuantity zero means the tier is unbounded above.
type PriceTier struct {
	VariationID uuid.UUID
	MinQuantity int
	MaxQuantity int
	Price       decimal.Decimal
}

// Contains reports whether the tier covers the given quantity. Both bounds are inclusive.
func (t PriceTier) Contains(qty int) bool {
	if qty < t.MinQuantity {
		return false
	}
	return t.MaxQuantity == 0 || qty <= t.MaxQuantity
}

// TierGapPolicy decides what happens when no tier covers the requested quantity.
type TierGapPolicy int

const (
	// TierGapFail rejects quantities not covered by any tier.
	TierGapFail TierGapPolicy = iota
	// TierGapBasePrice falls back to the variation base price.
	TierGapBasePrice
)

// ResolveUnitPrice returns the unit price for the requested quantity.
// With no tiers configured the base price applies. With tiers configured,
// the single covering tier wins; a gap is resolved by the policy.
func ResolveUnitPrice(basePrice decimal.Decimal, tiers []PriceTier, qty int, policy TierGapPolicy) (decimal.Decimal, error) {
	if qty < 1 {
		return decimal.Decimal{}, fmt.Errorf("%w: got %d", ErrInvalidQuantity, qty)
	}
	if len(tiers) == 0 {
		return basePrice, nil
	}
	for _, tier := range tiers {
		if tier.Contains(qty) {
			return tier.Price, nil
		}
	}
	if policy == TierGapBasePrice {
		return basePrice, nil
	}
	return decimal.Decimal{}, fmt.Errorf("%w: quantity %d", ErrNoPriceTierMatch, qty)
}

// ValidateTiers rejects tier sets whose quantity ranges overlap, so that at
// most one tier can ever match a quantity. Bounds are inclusive; a tier with
// MaxQuantity zero extends to infinity and must therefore come last.
func ValidateTiers(tiers []PriceTier) error {
	if len(tiers) < 2 {
		return validateTierBounds(tiers)
	}
	if err := validateTierBounds(tiers); err != nil {
		return err
	}
	sorted := make([]PriceTier, len(tiers))
	copy(sorted, tiers)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].MinQuantity < sorted[j].MinQuantity })
	for i := 1; i < len(sorted); i++ {
		prev, cur := sorted[i-1], sorted[i]
		if prev.MinQuantity == cur.MinQuantity {
			return fmt.Errorf("%w: duplicate minimum quantity %d", ErrOverlappingConfiguration, cur.MinQuantity)
		}
		if prev.MaxQuantity == 0 || prev.MaxQuantity >= cur.MinQuantity {
			return fmt.Errorf("%w: tiers [%d,%d] and [%d,%d]",
				ErrOverlappingConfiguration, prev.MinQuantity, prev.MaxQuantity, cur.MinQuantity, cur.MaxQuantity)
		}
	}
	return nil
}

func validateTierBounds(tiers []PriceTier) error {
	for _, t := range tiers {
		if t.MinQuantity < 1 {
			return fmt.Errorf("%w: minimum quantity %d", ErrInvalidQuantity, t.MinQuantity)
		}
		if t.MaxQuantity != 0 && t.MaxQuantity < t.MinQuantity {
			return fmt.Errorf("%w: tier [%d,%d]", ErrInvalidRange, t.MinQuantity, t.MaxQuantity)
		}
	}
	return nil
}
