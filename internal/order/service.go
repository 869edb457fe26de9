package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sokoni-dev/backend-sokoni/internal/common"
	"github.com/sokoni-dev/backend-sokoni/internal/events"
	"github.com/sokoni-dev/backend-sokoni/internal/obs"
	"github.com/sokoni-dev/backend-sokoni/internal/pricing"
)

// Store abstracts order persistence.
type Store interface {
	GetOrder(ctx context.Context, id uuid.UUID) (Order, error)
	ListOrdersByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]Order, int64, error)
	ListItems(ctx context.Context, orderID uuid.UUID) ([]Item, error)
	OrderBelongsToVendor(ctx context.Context, orderID, vendorID uuid.UUID) (bool, error)
	AddFee(ctx context.Context, fee Fee) (Fee, error)
	ListFees(ctx context.Context, orderID uuid.UUID) ([]Fee, error)
	UpdateTotals(ctx context.Context, orderID uuid.UUID, t pricing.OrderTotals) error
	UpdateStatus(ctx context.Context, orderID uuid.UUID, status string) error
	CreateProductFee(ctx context.Context, fee ProductFee) (ProductFee, error)
	ListProductFeesByVendor(ctx context.Context, vendorID uuid.UUID) ([]ProductFee, error)
}

// RuleSource loads interest rules for a set of variations. Satisfied by
// rates.Store.
type RuleSource interface {
	ListRulesForVariations(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID][]pricing.InterestRateRule, error)
}

// Detail is the full order view.
type Detail struct {
	Order Order  `json:"order"`
	Items []Item `json:"items"`
	Fees  []Fee  `json:"fees"`
}

// Service covers buyer order views, vendor fee attachment and totals
// recomputation.
type Service struct {
	Store  Store
	Rules  RuleSource
	Events *events.Bus
}

// ListForUser returns the buyer's orders.
func (s *Service) ListForUser(ctx context.Context, userID uuid.UUID, page, perPage int) ([]Order, int64, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 20
	}
	return s.Store.ListOrdersByUser(ctx, userID, perPage, (page-1)*perPage)
}

// GetForUser returns one of the buyer's orders with items and fees.
func (s *Service) GetForUser(ctx context.Context, userID, orderID uuid.UUID) (Detail, error) {
	o, err := s.Store.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Detail{}, common.NotFound("order not found")
		}
		return Detail{}, err
	}
	if o.UserID != userID {
		return Detail{}, common.NotFound("order not found")
	}
	items, err := s.Store.ListItems(ctx, orderID)
	if err != nil {
		return Detail{}, err
	}
	fees, err := s.Store.ListFees(ctx, orderID)
	if err != nil {
		return Detail{}, err
	}
	return Detail{Order: o, Items: items, Fees: fees}, nil
}

// requireVendorOrder hides orders that carry none of the vendor's variations,
// the same way catalog and rates hide foreign resources.
func (s *Service) requireVendorOrder(ctx context.Context, vendorID, orderID uuid.UUID) error {
	ok, err := s.Store.OrderBelongsToVendor(ctx, orderID, vendorID)
	if err != nil {
		return err
	}
	if !ok {
		return common.NotFound("order not found")
	}
	return nil
}

// AttachFee adds a vendor's fee to an order of theirs and recomputes its
// totals.
func (s *Service) AttachFee(ctx context.Context, vendorID, orderID uuid.UUID, name string, amount decimal.Decimal, required bool) (Detail, error) {
	if name == "" {
		return Detail{}, common.BadRequest("fee name is required", nil)
	}
	if amount.IsNegative() {
		return Detail{}, common.BadRequest("fee amount must not be negative", nil)
	}
	if err := s.requireVendorOrder(ctx, vendorID, orderID); err != nil {
		return Detail{}, err
	}
	o, err := s.Store.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Detail{}, common.NotFound("order not found")
		}
		return Detail{}, err
	}
	if o.Status == StatusCanceled || o.Status == StatusExpired {
		return Detail{}, common.Conflict("order is no longer open", nil)
	}
	if _, err := s.Store.AddFee(ctx, Fee{OrderID: orderID, Name: name, Amount: pricing.Round2(amount), Required: required}); err != nil {
		return Detail{}, err
	}
	return s.Recompute(ctx, orderID)
}

// RecomputeForVendor reprices one of the vendor's orders. The unscoped
// Recompute stays available for the background recompute task.
func (s *Service) RecomputeForVendor(ctx context.Context, vendorID, orderID uuid.UUID) (Detail, error) {
	if err := s.requireVendorOrder(ctx, vendorID, orderID); err != nil {
		return Detail{}, err
	}
	return s.Recompute(ctx, orderID)
}

// Recompute reprices the order from its frozen lines, current fees, shipping
// and discount, and persists the result.
func (s *Service) Recompute(ctx context.Context, orderID uuid.UUID) (Detail, error) {
	o, err := s.Store.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Detail{}, common.NotFound("order not found")
		}
		return Detail{}, err
	}
	items, err := s.Store.ListItems(ctx, orderID)
	if err != nil {
		return Detail{}, err
	}
	fees, err := s.Store.ListFees(ctx, orderID)
	if err != nil {
		return Detail{}, err
	}

	lines := make([]pricing.PricedLine, 0, len(items))
	ids := make([]uuid.UUID, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.VariationID)
		lines = append(lines, pricing.PricedLine{
			LineItem: pricing.LineItem{
				VariationID:    it.VariationID,
				Quantity:       it.Quantity,
				BasePrice:      it.UnitPrice,
				DepositEnabled: it.DepositEnabled,
				DepositPercent: it.DepositPercent,
			},
			UnitPrice: it.UnitPrice,
			Resolved:  true,
		})
	}
	var rules []pricing.InterestRateRule
	if s.Rules != nil {
		byVar, err := s.Rules.ListRulesForVariations(ctx, ids)
		if err != nil {
			return Detail{}, fmt.Errorf("load rules: %w", err)
		}
		for _, rs := range byVar {
			rules = append(rules, rs...)
		}
	}
	pricingFees := make([]pricing.Fee, 0, len(fees))
	for _, f := range fees {
		pricingFees = append(pricingFees, pricing.Fee{Name: f.Name, Amount: f.Amount, Required: f.Required})
	}

	totals, err := pricing.ComputeOrderTotal(lines, o.ShippingCost, o.DiscountAmount, pricingFees, rules)
	if err != nil {
		if obs.TotalsRecomputeTotal != nil {
			obs.TotalsRecomputeTotal.WithLabelValues("error").Inc()
		}
		return Detail{}, err
	}
	if err := s.Store.UpdateTotals(ctx, orderID, totals); err != nil {
		return Detail{}, err
	}
	if obs.TotalsRecomputeTotal != nil {
		obs.TotalsRecomputeTotal.WithLabelValues("ok").Inc()
	}
	if s.Events != nil {
		_, _ = s.Events.Emit(ctx, events.TopicOrderTotalsRecomputed, orderID, map[string]any{
			"orderId":    orderID.String(),
			"grandTotal": totals.GrandTotal.String(),
			"payNow":     totals.PayNowAmount.String(),
		})
	}
	return s.detail(ctx, orderID)
}

func (s *Service) detail(ctx context.Context, orderID uuid.UUID) (Detail, error) {
	o, err := s.Store.GetOrder(ctx, orderID)
	if err != nil {
		return Detail{}, err
	}
	items, err := s.Store.ListItems(ctx, orderID)
	if err != nil {
		return Detail{}, err
	}
	fees, err := s.Store.ListFees(ctx, orderID)
	if err != nil {
		return Detail{}, err
	}
	return Detail{Order: o, Items: items, Fees: fees}, nil
}

// CreateProductFee registers a vendor's pre-purchase fee for a variation set.
func (s *Service) CreateProductFee(ctx context.Context, vendorID uuid.UUID, name string, amount decimal.Decimal, required bool, variationIDs []uuid.UUID) (ProductFee, error) {
	if name == "" {
		return ProductFee{}, common.BadRequest("fee name is required", nil)
	}
	if amount.IsNegative() {
		return ProductFee{}, common.BadRequest("fee amount must not be negative", nil)
	}
	if len(variationIDs) == 0 {
		return ProductFee{}, common.BadRequest("at least one variation is required", nil)
	}
	return s.Store.CreateProductFee(ctx, ProductFee{
		VendorID:     vendorID,
		Name:         name,
		Amount:       pricing.Round2(amount),
		Required:     required,
		VariationIDs: variationIDs,
	})
}

// ListProductFees returns a vendor's configured fees.
func (s *Service) ListProductFees(ctx context.Context, vendorID uuid.UUID) ([]ProductFee, error) {
	return s.Store.ListProductFeesByVendor(ctx, vendorID)
}
