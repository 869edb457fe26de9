package rates_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/sokoni-dev/backend-sokoni/internal/catalog"
	"github.com/sokoni-dev/backend-sokoni/internal/common"
	"github.com/sokoni-dev/backend-sokoni/internal/pricing"
	"github.com/sokoni-dev/backend-sokoni/internal/rates"
)

type fakeRuleStore struct {
	rules map[uuid.UUID][]rates.Rule
}

func (f *fakeRuleStore) ReplaceRules(_ context.Context, variationID uuid.UUID, in []pricing.InterestRateRule) ([]rates.Rule, error) {
	stored := make([]rates.Rule, 0, len(in))
	for _, r := range in {
		stored = append(stored, rates.Rule{
			ID:              uuid.New(),
			VariationID:     variationID,
			LowerRange:      r.LowerRange,
			UpperRange:      r.UpperRange,
			Rate:            r.Rate,
			MustPayShipping: r.MustPayShipping,
		})
	}
	f.rules[variationID] = stored
	return stored, nil
}

func (f *fakeRuleStore) ListRules(_ context.Context, variationID uuid.UUID) ([]rates.Rule, error) {
	return f.rules[variationID], nil
}

func (f *fakeRuleStore) ListRulesForVariations(_ context.Context, ids []uuid.UUID) (map[uuid.UUID][]pricing.InterestRateRule, error) {
	out := map[uuid.UUID][]pricing.InterestRateRule{}
	for _, id := range ids {
		for _, r := range f.rules[id] {
			out[id] = append(out[id], r.RateRule())
		}
	}
	return out, nil
}

type fakeLookup struct {
	variations map[uuid.UUID]catalog.Variation
}

func (f *fakeLookup) GetVariation(_ context.Context, id uuid.UUID) (catalog.Variation, error) {
	v, ok := f.variations[id]
	if !ok {
		return catalog.Variation{}, catalog.ErrVariationNotFound
	}
	return v, nil
}

func newService(vendorID uuid.UUID) (*rates.Service, uuid.UUID) {
	variationID := uuid.New()
	lookup := &fakeLookup{variations: map[uuid.UUID]catalog.Variation{
		variationID: {ID: variationID, VendorID: vendorID},
	}}
	svc := &rates.Service{
		Store:      &fakeRuleStore{rules: map[uuid.UUID][]rates.Rule{}},
		Variations: lookup,
	}
	return svc, variationID
}

func TestSetRulesRejectsOverlap(t *testing.T) {
	vendorID := uuid.New()
	svc, variationID := newService(vendorID)

	// [20,40] and [40,60] share the endpoint 40
	_, err := svc.SetRules(context.Background(), vendorID, variationID, []rates.RuleInput{
		{LowerRange: decimal.NewFromInt(20), UpperRange: decimal.NewFromInt(40), Rate: decimal.NewFromInt(5)},
		{LowerRange: decimal.NewFromInt(40), UpperRange: decimal.NewFromInt(60), Rate: decimal.NewFromInt(3)},
	})
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "OVERLAPPING_CONFIGURATION", appErr.Code)
}

func TestSetRulesAcceptsDisjointRanges(t *testing.T) {
	vendorID := uuid.New()
	svc, variationID := newService(vendorID)

	rules, err := svc.SetRules(context.Background(), vendorID, variationID, []rates.RuleInput{
		{LowerRange: decimal.NewFromInt(20), UpperRange: decimal.NewFromInt(40), Rate: decimal.NewFromInt(5), MustPayShipping: true},
		{LowerRange: decimal.NewFromInt(41), UpperRange: decimal.NewFromInt(60), Rate: decimal.NewFromInt(3)},
	})
	require.NoError(t, err)
	require.Len(t, rules, 2)

	listed, err := svc.List(context.Background(), vendorID, variationID)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	require.True(t, listed[0].MustPayShipping)
}

func TestSetRulesBounds(t *testing.T) {
	vendorID := uuid.New()
	svc, variationID := newService(vendorID)

	_, err := svc.SetRules(context.Background(), vendorID, variationID, []rates.RuleInput{
		{LowerRange: decimal.NewFromInt(50), UpperRange: decimal.NewFromInt(120), Rate: decimal.NewFromInt(5)},
	})
	require.ErrorIs(t, err, pricing.ErrInvalidRange)
}

func TestSetRulesOwnership(t *testing.T) {
	vendorID := uuid.New()
	svc, variationID := newService(vendorID)

	_, err := svc.SetRules(context.Background(), uuid.New(), variationID, nil)
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "NOT_FOUND", appErr.Code)
}
