package catalog_test

import (
	"context"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/sokoni-dev/backend-sokoni/internal/catalog"
	"github.com/sokoni-dev/backend-sokoni/internal/common"
	"github.com/sokoni-dev/backend-sokoni/internal/pricing"
)

type fakeStore struct {
	variations map[uuid.UUID]catalog.Variation
	tiers      map[uuid.UUID][]catalog.Tier
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		variations: map[uuid.UUID]catalog.Variation{},
		tiers:      map[uuid.UUID][]catalog.Tier{},
	}
}

func (f *fakeStore) CreateVariation(_ context.Context, v catalog.Variation) (catalog.Variation, error) {
	v.ID = uuid.New()
	f.variations[v.ID] = v
	return v, nil
}

func (f *fakeStore) GetVariation(_ context.Context, id uuid.UUID) (catalog.Variation, error) {
	v, ok := f.variations[id]
	if !ok {
		return catalog.Variation{}, catalog.ErrVariationNotFound
	}
	return v, nil
}

func (f *fakeStore) ListVariationsByVendor(_ context.Context, vendorID uuid.UUID, limit, offset int) ([]catalog.Variation, int64, error) {
	var out []catalog.Variation
	for _, v := range f.variations {
		if v.VendorID == vendorID {
			out = append(out, v)
		}
	}
	return out, int64(len(out)), nil
}

func (f *fakeStore) UpdateVariation(_ context.Context, v catalog.Variation) (catalog.Variation, error) {
	existing, ok := f.variations[v.ID]
	if !ok || existing.VendorID != v.VendorID {
		return catalog.Variation{}, catalog.ErrVariationNotFound
	}
	f.variations[v.ID] = v
	return v, nil
}

func (f *fakeStore) DeleteVariation(_ context.Context, id, vendorID uuid.UUID) error {
	existing, ok := f.variations[id]
	if !ok || existing.VendorID != vendorID {
		return catalog.ErrVariationNotFound
	}
	delete(f.variations, id)
	delete(f.tiers, id)
	return nil
}

func (f *fakeStore) ReplaceTiers(_ context.Context, variationID uuid.UUID, tiers []pricing.PriceTier) ([]catalog.Tier, error) {
	stored := make([]catalog.Tier, 0, len(tiers))
	for _, t := range tiers {
		stored = append(stored, catalog.Tier{
			ID:          uuid.New(),
			VariationID: variationID,
			MinQuantity: t.MinQuantity,
			MaxQuantity: t.MaxQuantity,
			Price:       t.Price,
		})
	}
	f.tiers[variationID] = stored
	return stored, nil
}

func (f *fakeStore) ListTiers(_ context.Context, variationID uuid.UUID) ([]catalog.Tier, error) {
	return f.tiers[variationID], nil
}

func (f *fakeStore) ListTiersForVariations(_ context.Context, ids []uuid.UUID) (map[uuid.UUID][]pricing.PriceTier, error) {
	out := map[uuid.UUID][]pricing.PriceTier{}
	for _, id := range ids {
		for _, t := range f.tiers[id] {
			out[id] = append(out[id], t.PriceTier())
		}
	}
	return out, nil
}

func newService(store catalog.Store) *catalog.Service {
	return &catalog.Service{
		Store:     store,
		Validate:  validator.New(),
		GapPolicy: pricing.TierGapFail,
	}
}

func TestCreateVariationValidation(t *testing.T) {
	svc := newService(newFakeStore())
	vendorID := uuid.New()

	_, err := svc.Create(context.Background(), vendorID, catalog.VariationInput{
		Name:      "x",
		BasePrice: decimal.NewFromInt(100),
	})
	require.Error(t, err, "single-character name should fail validation")

	_, err = svc.Create(context.Background(), vendorID, catalog.VariationInput{
		Name:           "Maize Flour 2kg",
		BasePrice:      decimal.NewFromInt(100),
		DepositPercent: decimal.NewFromInt(150),
	})
	require.ErrorIs(t, err, pricing.ErrInvalidDepositPercentage)

	v, err := svc.Create(context.Background(), vendorID, catalog.VariationInput{
		Name:      "Maize Flour 2kg",
		BasePrice: decimal.RequireFromString("149.999"),
	})
	require.NoError(t, err)
	require.Equal(t, "150", v.BasePrice.String(), "base price rounds half-up to 2dp")
	require.Equal(t, 1, v.MOQ, "MOQ defaults to 1")
}

func TestSetTiersRejectsOverlap(t *testing.T) {
	store := newFakeStore()
	svc := newService(store)
	vendorID := uuid.New()

	v, err := svc.Create(context.Background(), vendorID, catalog.VariationInput{
		Name:      "Cement 50kg",
		BasePrice: decimal.NewFromInt(700),
	})
	require.NoError(t, err)

	_, err = svc.SetTiers(context.Background(), vendorID, v.ID, []catalog.TierInput{
		{MinQuantity: 1, MaxQuantity: 10, Price: decimal.NewFromInt(700)},
		{MinQuantity: 10, MaxQuantity: 20, Price: decimal.NewFromInt(650)},
	})
	require.Error(t, err)
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "OVERLAPPING_CONFIGURATION", appErr.Code)
	require.Empty(t, store.tiers[v.ID], "nothing is written when validation fails")

	tiers, err := svc.SetTiers(context.Background(), vendorID, v.ID, []catalog.TierInput{
		{MinQuantity: 1, MaxQuantity: 9, Price: decimal.NewFromInt(700)},
		{MinQuantity: 10, MaxQuantity: 0, Price: decimal.NewFromInt(650)},
	})
	require.NoError(t, err)
	require.Len(t, tiers, 2)
}

func TestSetTiersOwnership(t *testing.T) {
	svc := newService(newFakeStore())
	owner := uuid.New()

	v, err := svc.Create(context.Background(), owner, catalog.VariationInput{
		Name:      "Cement 50kg",
		BasePrice: decimal.NewFromInt(700),
	})
	require.NoError(t, err)

	_, err = svc.SetTiers(context.Background(), uuid.New(), v.ID, []catalog.TierInput{
		{MinQuantity: 1, MaxQuantity: 0, Price: decimal.NewFromInt(650)},
	})
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "NOT_FOUND", appErr.Code, "foreign vendors must not learn the variation exists")
}

func TestQuotePrice(t *testing.T) {
	svc := newService(newFakeStore())
	vendorID := uuid.New()

	v, err := svc.Create(context.Background(), vendorID, catalog.VariationInput{
		Name:      "Sugar 1kg",
		BasePrice: decimal.NewFromInt(100),
	})
	require.NoError(t, err)

	_, err = svc.SetTiers(context.Background(), vendorID, v.ID, []catalog.TierInput{
		{MinQuantity: 10, MaxQuantity: 49, Price: decimal.NewFromInt(90)},
	})
	require.NoError(t, err)

	unit, err := svc.QuotePrice(context.Background(), v.ID, 15)
	require.NoError(t, err)
	require.True(t, unit.Equal(decimal.NewFromInt(90)))

	// qty 5 falls below the only tier; fail-fast policy surfaces the gap
	_, err = svc.QuotePrice(context.Background(), v.ID, 5)
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "NO_PRICE_TIER_MATCH", appErr.Code)
}
