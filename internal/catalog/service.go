package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sokoni-dev/backend-sokoni/internal/common"
	"github.com/sokoni-dev/backend-sokoni/internal/pricing"
)

// Store abstracts variation and tier persistence.
type Store interface {
	CreateVariation(ctx context.Context, v Variation) (Variation, error)
	GetVariation(ctx context.Context, id uuid.UUID) (Variation, error)
	ListVariationsByVendor(ctx context.Context, vendorID uuid.UUID, limit, offset int) ([]Variation, int64, error)
	UpdateVariation(ctx context.Context, v Variation) (Variation, error)
	DeleteVariation(ctx context.Context, id, vendorID uuid.UUID) error
	ReplaceTiers(ctx context.Context, variationID uuid.UUID, tiers []pricing.PriceTier) ([]Tier, error)
	ListTiers(ctx context.Context, variationID uuid.UUID) ([]Tier, error)
	ListTiersForVariations(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID][]pricing.PriceTier, error)
}

// VariationInput captures payload for creating or updating a variation.
type VariationInput struct {
	Name           string          `json:"name" validate:"required,min=2,max=160"`
	SKU            string          `json:"sku" validate:"omitempty,max=64"`
	BasePrice      decimal.Decimal `json:"base_price"`
	MOQ            int             `json:"moq" validate:"omitempty,min=1"`
	DepositEnabled bool            `json:"deposit_enabled"`
	DepositPercent decimal.Decimal `json:"deposit_percent"`
}

// TierInput captures one tier row in a tier replacement payload.
type TierInput struct {
	MinQuantity int             `json:"min_quantity" validate:"min=1"`
	MaxQuantity int             `json:"max_quantity" validate:"min=0"`
	Price       decimal.Decimal `json:"price"`
}

// VariationDetail is the public pricing snapshot of a variation.
type VariationDetail struct {
	Variation Variation `json:"variation"`
	Tiers     []Tier    `json:"tiers"`
}

// Service orchestrates variation and price-tier management.
type Service struct {
	Store     Store
	Cache     *Cache
	Validate  *validator.Validate
	GapPolicy pricing.TierGapPolicy
}

func variationCacheKey(id uuid.UUID) string {
	return "catalog:variation:" + id.String()
}

func (s *Service) checkInput(in VariationInput) error {
	if s.Validate != nil {
		if err := s.Validate.Struct(in); err != nil {
			return common.BadRequest("invalid variation payload", err)
		}
	}
	if in.BasePrice.IsNegative() {
		return common.BadRequest("base_price must not be negative", nil)
	}
	if in.DepositPercent.IsNegative() || in.DepositPercent.GreaterThan(decimal.NewFromInt(100)) {
		return common.BadRequest("deposit_percent must be between 0 and 100", pricing.ErrInvalidDepositPercentage)
	}
	return nil
}

// Create registers a new variation for the vendor.
func (s *Service) Create(ctx context.Context, vendorID uuid.UUID, in VariationInput) (Variation, error) {
	if err := s.checkInput(in); err != nil {
		return Variation{}, err
	}
	moq := in.MOQ
	if moq < 1 {
		moq = 1
	}
	return s.Store.CreateVariation(ctx, Variation{
		VendorID:       vendorID,
		Name:           in.Name,
		SKU:            in.SKU,
		BasePrice:      pricing.Round2(in.BasePrice),
		MOQ:            moq,
		DepositEnabled: in.DepositEnabled,
		DepositPercent: in.DepositPercent,
	})
}

// Update modifies a vendor-owned variation and drops its cached snapshot.
func (s *Service) Update(ctx context.Context, vendorID, id uuid.UUID, in VariationInput) (Variation, error) {
	if err := s.checkInput(in); err != nil {
		return Variation{}, err
	}
	moq := in.MOQ
	if moq < 1 {
		moq = 1
	}
	updated, err := s.Store.UpdateVariation(ctx, Variation{
		ID:             id,
		VendorID:       vendorID,
		Name:           in.Name,
		SKU:            in.SKU,
		BasePrice:      pricing.Round2(in.BasePrice),
		MOQ:            moq,
		DepositEnabled: in.DepositEnabled,
		DepositPercent: in.DepositPercent,
	})
	if err != nil {
		if errors.Is(err, ErrVariationNotFound) {
			return Variation{}, common.NotFound("variation not found")
		}
		return Variation{}, err
	}
	_ = s.Cache.Del(ctx, variationCacheKey(id))
	return updated, nil
}

// Delete removes a vendor-owned variation.
func (s *Service) Delete(ctx context.Context, vendorID, id uuid.UUID) error {
	if err := s.Store.DeleteVariation(ctx, id, vendorID); err != nil {
		if errors.Is(err, ErrVariationNotFound) {
			return common.NotFound("variation not found")
		}
		return err
	}
	_ = s.Cache.Del(ctx, variationCacheKey(id))
	return nil
}

// ListByVendor returns the vendor's variations.
func (s *Service) ListByVendor(ctx context.Context, vendorID uuid.UUID, page, perPage int) ([]Variation, int64, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 20
	}
	return s.Store.ListVariationsByVendor(ctx, vendorID, perPage, (page-1)*perPage)
}

// Get returns the public pricing snapshot of a variation, cached.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (VariationDetail, error) {
	key := variationCacheKey(id)
	var cached VariationDetail
	if ok, err := s.Cache.GetJSON(ctx, key, &cached); err == nil && ok {
		return cached, nil
	}
	v, err := s.Store.GetVariation(ctx, id)
	if err != nil {
		if errors.Is(err, ErrVariationNotFound) {
			return VariationDetail{}, common.NotFound("variation not found")
		}
		return VariationDetail{}, err
	}
	tiers, err := s.Store.ListTiers(ctx, id)
	if err != nil {
		return VariationDetail{}, fmt.Errorf("list tiers: %w", err)
	}
	detail := VariationDetail{Variation: v, Tiers: tiers}
	_ = s.Cache.SetJSON(ctx, key, detail)
	return detail, nil
}

// SetTiers replaces the tier set of a vendor-owned variation. Overlapping or
// duplicate tiers are rejected before anything is written.
func (s *Service) SetTiers(ctx context.Context, vendorID, variationID uuid.UUID, inputs []TierInput) ([]Tier, error) {
	v, err := s.Store.GetVariation(ctx, variationID)
	if err != nil {
		if errors.Is(err, ErrVariationNotFound) {
			return nil, common.NotFound("variation not found")
		}
		return nil, err
	}
	if v.VendorID != vendorID {
		return nil, common.NotFound("variation not found")
	}
	tiers := make([]pricing.PriceTier, 0, len(inputs))
	for _, in := range inputs {
		if s.Validate != nil {
			if err := s.Validate.Struct(in); err != nil {
				return nil, common.BadRequest("invalid tier payload", err)
			}
		}
		if in.Price.IsNegative() {
			return nil, common.BadRequest("tier price must not be negative", nil)
		}
		tiers = append(tiers, pricing.PriceTier{
			VariationID: variationID,
			MinQuantity: in.MinQuantity,
			MaxQuantity: in.MaxQuantity,
			Price:       pricing.Round2(in.Price),
		})
	}
	if err := pricing.ValidateTiers(tiers); err != nil {
		return nil, common.NewAppError("OVERLAPPING_CONFIGURATION", err.Error(), http.StatusConflict, err)
	}
	stored, err := s.Store.ReplaceTiers(ctx, variationID, tiers)
	if err != nil {
		return nil, err
	}
	_ = s.Cache.Del(ctx, variationCacheKey(variationID))
	return stored, nil
}

// QuotePrice resolves the unit price for a quantity through the price book.
func (s *Service) QuotePrice(ctx context.Context, variationID uuid.UUID, qty int) (decimal.Decimal, error) {
	detail, err := s.Get(ctx, variationID)
	if err != nil {
		return decimal.Zero, err
	}
	tiers := make([]pricing.PriceTier, 0, len(detail.Tiers))
	for _, t := range detail.Tiers {
		tiers = append(tiers, t.PriceTier())
	}
	unit, err := pricing.ResolveUnitPrice(detail.Variation.BasePrice, tiers, qty, s.GapPolicy)
	if err != nil {
		switch {
		case errors.Is(err, pricing.ErrInvalidQuantity):
			return decimal.Zero, common.BadRequest("quantity must be at least 1", err)
		case errors.Is(err, pricing.ErrNoPriceTierMatch):
			return decimal.Zero, common.NewAppError("NO_PRICE_TIER_MATCH", "no price tier covers the requested quantity", http.StatusUnprocessableEntity, err)
		}
		return decimal.Zero, err
	}
	return unit, nil
}
