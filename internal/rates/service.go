package rates

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sokoni-dev/backend-sokoni/internal/catalog"
	"github.com/sokoni-dev/backend-sokoni/internal/common"
	"github.com/sokoni-dev/backend-sokoni/internal/pricing"
)

// Store abstracts rule persistence.
type Store interface {
	ReplaceRules(ctx context.Context, variationID uuid.UUID, rules []pricing.InterestRateRule) ([]Rule, error)
	ListRules(ctx context.Context, variationID uuid.UUID) ([]Rule, error)
	ListRulesForVariations(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID][]pricing.InterestRateRule, error)
}

// VariationLookup resolves variation ownership. Satisfied by catalog.Store.
type VariationLookup interface {
	GetVariation(ctx context.Context, id uuid.UUID) (catalog.Variation, error)
}

// RuleInput captures one rule row in a rule replacement payload.
type RuleInput struct {
	LowerRange      decimal.Decimal `json:"lower_range"`
	UpperRange      decimal.Decimal `json:"upper_range"`
	Rate            decimal.Decimal `json:"rate"`
	MustPayShipping bool            `json:"must_pay_shipping"`
}

// Service manages per-variation interest-rate rules.
type Service struct {
	Store      Store
	Variations VariationLookup
	Validate   *validator.Validate
}

func (s *Service) ownedVariation(ctx context.Context, vendorID, variationID uuid.UUID) error {
	v, err := s.Variations.GetVariation(ctx, variationID)
	if err != nil {
		if errors.Is(err, catalog.ErrVariationNotFound) {
			return common.NotFound("variation not found")
		}
		return err
	}
	if v.VendorID != vendorID {
		return common.NotFound("variation not found")
	}
	return nil
}

// SetRules replaces the interest-rate rules of a vendor-owned variation.
// Overlapping ranges are rejected before anything is written.
func (s *Service) SetRules(ctx context.Context, vendorID, variationID uuid.UUID, inputs []RuleInput) ([]Rule, error) {
	if err := s.ownedVariation(ctx, vendorID, variationID); err != nil {
		return nil, err
	}
	hundred := decimal.NewFromInt(100)
	rules := make([]pricing.InterestRateRule, 0, len(inputs))
	for _, in := range inputs {
		if in.LowerRange.IsNegative() || in.UpperRange.GreaterThan(hundred) {
			return nil, common.BadRequest("rule ranges must lie within [0, 100]", pricing.ErrInvalidRange)
		}
		if in.Rate.IsNegative() {
			return nil, common.BadRequest("rate must not be negative", nil)
		}
		rules = append(rules, pricing.InterestRateRule{
			VariationID:     variationID,
			LowerRange:      in.LowerRange,
			UpperRange:      in.UpperRange,
			Rate:            in.Rate,
			MustPayShipping: in.MustPayShipping,
		})
	}
	if err := pricing.ValidateRules(rules); err != nil {
		return nil, common.NewAppError("OVERLAPPING_CONFIGURATION", err.Error(), http.StatusConflict, err)
	}
	return s.Store.ReplaceRules(ctx, variationID, rules)
}

// List returns the rules configured for a vendor-owned variation.
func (s *Service) List(ctx context.Context, vendorID, variationID uuid.UUID) ([]Rule, error) {
	if err := s.ownedVariation(ctx, vendorID, variationID); err != nil {
		return nil, err
	}
	return s.Store.ListRules(ctx, variationID)
}
