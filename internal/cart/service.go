package cart

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sokoni-dev/backend-sokoni/internal/catalog"
	"github.com/sokoni-dev/backend-sokoni/internal/common"
	"github.com/sokoni-dev/backend-sokoni/internal/pricing"
)

// ErrEmptyCart is returned when a quote or checkout is requested on a cart
// with no items.
var ErrEmptyCart = errors.New("cart: cart is empty")

// Store abstracts cart persistence.
type Store interface {
	EnsureCartByUser(ctx context.Context, userID uuid.UUID, expiresAt time.Time) (Cart, error)
	EnsureCartByAnon(ctx context.Context, anonID string, expiresAt time.Time) (Cart, error)
	GetCart(ctx context.Context, id uuid.UUID) (Cart, error)
	UpsertItem(ctx context.Context, cartID, variationID uuid.UUID, qty int, depositPct *decimal.Decimal) (Item, error)
	RemoveItem(ctx context.Context, cartID, itemID uuid.UUID) error
	ListItems(ctx context.Context, cartID uuid.UUID) ([]Item, error)
	ClearCart(ctx context.Context, cartID uuid.UUID) error
}

// RuleSource loads interest rules for a set of variations. Satisfied by
// rates.Store.
type RuleSource interface {
	ListRulesForVariations(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID][]pricing.InterestRateRule, error)
}

// FeeSource loads pre-purchase fees that apply to a set of variations.
type FeeSource interface {
	ListFeesForVariations(ctx context.Context, ids []uuid.UUID) ([]pricing.Fee, error)
}

// QuoteLine is the per-item breakdown inside a quote.
type QuoteLine struct {
	VariationID    uuid.UUID            `json:"variation_id"`
	Name           string               `json:"name"`
	Quantity       int                  `json:"quantity"`
	UnitPrice      decimal.Decimal      `json:"unit_price"`
	ItemTotal      decimal.Decimal      `json:"item_total"`
	DepositPercent decimal.Decimal      `json:"deposit_percent"`
	Split          pricing.PaymentSplit `json:"split"`
}

// Quote is the full order-total preview for a cart.
type Quote struct {
	CartID uuid.UUID           `json:"cart_id"`
	Lines  []QuoteLine         `json:"lines"`
	Totals pricing.OrderTotals `json:"totals"`
}

// Service encapsulates cart domain operations.
type Service struct {
	Store     Store
	Catalog   catalog.Store
	Rules     RuleSource
	Fees      FeeSource
	GapPolicy pricing.TierGapPolicy
	TTL       time.Duration
	Now       func() time.Time
}

func (s *Service) ttl() time.Duration {
	if s.TTL <= 0 {
		return 7 * 24 * time.Hour
	}
	return s.TTL
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Ensure loads or creates a cart for the provided identity. One of userID or
// anonID must be non-empty.
func (s *Service) Ensure(ctx context.Context, userID, anonID string) (Cart, error) {
	expires := s.now().Add(s.ttl())
	if userID != "" {
		uid, err := uuid.Parse(userID)
		if err != nil {
			return Cart{}, common.BadRequest("invalid user id", err)
		}
		return s.Store.EnsureCartByUser(ctx, uid, expires)
	}
	if anonID != "" {
		return s.Store.EnsureCartByAnon(ctx, anonID, expires)
	}
	return Cart{}, common.BadRequest("user or anonymous identity required", nil)
}

// AddItem validates the variation and MOQ, then upserts the line item.
func (s *Service) AddItem(ctx context.Context, cartID, variationID uuid.UUID, qty int, depositPct *decimal.Decimal) (Item, error) {
	if qty < 1 {
		return Item{}, common.BadRequest("quantity must be at least 1", pricing.ErrInvalidQuantity)
	}
	if _, err := s.Store.GetCart(ctx, cartID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return Item{}, common.NotFound("cart not found")
		}
		return Item{}, err
	}
	v, err := s.Catalog.GetVariation(ctx, variationID)
	if err != nil {
		if errors.Is(err, catalog.ErrVariationNotFound) {
			return Item{}, common.NotFound("variation not found")
		}
		return Item{}, err
	}
	if qty < v.MOQ {
		return Item{}, common.BadRequest(fmt.Sprintf("minimum order quantity for %s is %d", v.Name, v.MOQ), nil)
	}
	if depositPct != nil {
		if !v.DepositEnabled {
			return Item{}, common.BadRequest("deposits are not enabled for this variation", nil)
		}
		if depositPct.IsNegative() || depositPct.GreaterThan(decimal.NewFromInt(100)) {
			return Item{}, common.BadRequest("deposit_percent must be between 0 and 100", pricing.ErrInvalidDepositPercentage)
		}
	}
	return s.Store.UpsertItem(ctx, cartID, variationID, qty, depositPct)
}

// RemoveItem drops one line item from the cart.
func (s *Service) RemoveItem(ctx context.Context, cartID, itemID uuid.UUID) error {
	if err := s.Store.RemoveItem(ctx, cartID, itemID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return common.NotFound("cart item not found")
		}
		return err
	}
	return nil
}

// Get returns the cart with its items.
func (s *Service) Get(ctx context.Context, cartID uuid.UUID) (Cart, []Item, error) {
	c, err := s.Store.GetCart(ctx, cartID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Cart{}, nil, common.NotFound("cart not found")
		}
		return Cart{}, nil, err
	}
	items, err := s.Store.ListItems(ctx, cartID)
	if err != nil {
		return Cart{}, nil, err
	}
	return c, items, nil
}

// PriceLines resolves every cart item through the price book and returns the
// priced lines together with the applicable rules and fees. Checkout reuses
// this to guarantee the persisted order matches the quoted amounts.
func (s *Service) PriceLines(ctx context.Context, items []Item) ([]pricing.PricedLine, []pricing.InterestRateRule, []pricing.Fee, []QuoteLine, error) {
	if len(items) == 0 {
		return nil, nil, nil, nil, common.NewAppError("EMPTY_CART", "cart is empty", http.StatusUnprocessableEntity, ErrEmptyCart)
	}
	ids := make([]uuid.UUID, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.VariationID)
	}
	tiersByVar, err := s.Catalog.ListTiersForVariations(ctx, ids)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("load tiers: %w", err)
	}
	rulesByVar := map[uuid.UUID][]pricing.InterestRateRule{}
	if s.Rules != nil {
		if rulesByVar, err = s.Rules.ListRulesForVariations(ctx, ids); err != nil {
			return nil, nil, nil, nil, fmt.Errorf("load rules: %w", err)
		}
	}
	var fees []pricing.Fee
	if s.Fees != nil {
		if fees, err = s.Fees.ListFeesForVariations(ctx, ids); err != nil {
			return nil, nil, nil, nil, fmt.Errorf("load fees: %w", err)
		}
	}

	lines := make([]pricing.PricedLine, 0, len(items))
	quoteLines := make([]QuoteLine, 0, len(items))
	var allRules []pricing.InterestRateRule
	for _, it := range items {
		v, err := s.Catalog.GetVariation(ctx, it.VariationID)
		if err != nil {
			if errors.Is(err, catalog.ErrVariationNotFound) {
				return nil, nil, nil, nil, common.NotFound("variation no longer exists")
			}
			return nil, nil, nil, nil, err
		}
		if it.Quantity < v.MOQ {
			return nil, nil, nil, nil, common.BadRequest(fmt.Sprintf("minimum order quantity for %s is %d", v.Name, v.MOQ), nil)
		}
		unit, err := pricing.ResolveUnitPrice(v.BasePrice, tiersByVar[it.VariationID], it.Quantity, s.GapPolicy)
		if err != nil {
			if errors.Is(err, pricing.ErrNoPriceTierMatch) {
				return nil, nil, nil, nil, common.NewAppError("NO_PRICE_TIER_MATCH",
					fmt.Sprintf("no price tier covers quantity %d of %s", it.Quantity, v.Name),
					http.StatusUnprocessableEntity, err)
			}
			return nil, nil, nil, nil, err
		}
		pct := v.DepositPercent
		if it.DepositPercent != nil {
			pct = *it.DepositPercent
		}
		line := pricing.PricedLine{
			LineItem: pricing.LineItem{
				VariationID:    it.VariationID,
				Quantity:       it.Quantity,
				BasePrice:      v.BasePrice,
				DepositEnabled: v.DepositEnabled,
				DepositPercent: pct,
			},
			UnitPrice: unit,
			Resolved:  true,
		}
		rules := rulesByVar[it.VariationID]
		split, err := pricing.ComputeSplit(line, rules)
		if err != nil {
			return nil, nil, nil, nil, err
		}
		lines = append(lines, line)
		allRules = append(allRules, rules...)
		quoteLines = append(quoteLines, QuoteLine{
			VariationID:    it.VariationID,
			Name:           v.Name,
			Quantity:       it.Quantity,
			UnitPrice:      unit,
			ItemTotal:      pricing.Round2(line.ItemTotal()),
			DepositPercent: pct,
			Split:          split,
		})
	}
	return lines, allRules, fees, quoteLines, nil
}

// Quote computes the full order-total preview for a cart.
func (s *Service) Quote(ctx context.Context, cartID uuid.UUID, shipping, discount decimal.Decimal) (Quote, error) {
	_, items, err := s.Get(ctx, cartID)
	if err != nil {
		return Quote{}, err
	}
	lines, rules, fees, quoteLines, err := s.PriceLines(ctx, items)
	if err != nil {
		return Quote{}, err
	}
	totals, err := pricing.ComputeOrderTotal(lines, shipping, discount, fees, rules)
	if err != nil {
		return Quote{}, err
	}
	return Quote{CartID: cartID, Lines: quoteLines, Totals: totals}, nil
}
