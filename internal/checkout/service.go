package checkout

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/sokoni-dev/backend-sokoni/internal/cart"
	"github.com/sokoni-dev/backend-sokoni/internal/common"
	"github.com/sokoni-dev/backend-sokoni/internal/events"
	"github.com/sokoni-dev/backend-sokoni/internal/obs"
	"github.com/sokoni-dev/backend-sokoni/internal/order"
	"github.com/sokoni-dev/backend-sokoni/internal/pricing"
)

// Input is the checkout request payload.
type Input struct {
	CartID         uuid.UUID       `json:"cart_id"`
	ShippingCost   decimal.Decimal `json:"shipping_cost"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
}

// Output describes the created order and what is due immediately.
type Output struct {
	OrderID        uuid.UUID       `json:"order_id"`
	Status         string          `json:"status"`
	Currency       string          `json:"currency"`
	PayNowAmount   decimal.Decimal `json:"pay_now_amount"`
	PayLaterAmount decimal.Decimal `json:"pay_later_amount"`
	GrandTotal     decimal.Decimal `json:"grand_total"`
	ShippingDueNow bool            `json:"shipping_due_now"`
}

// Service turns a cart into an order inside one transaction.
type Service struct {
	Pool     *pgxpool.Pool
	Cart     *cart.Service
	Orders   *order.PGStore
	Events   *events.Bus
	Currency string
}

// Create resolves prices, computes the payment split and totals, and persists
// the order with its items and fees atomically.
func (s *Service) Create(ctx context.Context, userID string, in Input) (Output, error) {
	uid, err := uuid.Parse(userID)
	if err != nil {
		return Output{}, common.BadRequest("invalid user id", err)
	}
	if in.CartID == uuid.Nil {
		return Output{}, common.BadRequest("cart_id is required", nil)
	}
	if in.ShippingCost.IsNegative() || in.DiscountAmount.IsNegative() {
		return Output{}, common.BadRequest("shipping_cost and discount_amount must not be negative", nil)
	}

	c, items, err := s.Cart.Get(ctx, in.CartID)
	if err != nil {
		return Output{}, err
	}
	if c.UserID != nil && *c.UserID != uid {
		return Output{}, common.NewAppError("NOT_FOUND", "cart not found", 404, ErrCartMismatch)
	}

	lines, rules, fees, quoteLines, err := s.Cart.PriceLines(ctx, items)
	if err != nil {
		s.countCheckout("rejected")
		return Output{}, err
	}
	totals, err := pricing.ComputeOrderTotal(lines, in.ShippingCost, in.DiscountAmount, fees, rules)
	if err != nil {
		s.countCheckout("rejected")
		return Output{}, err
	}

	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Output{}, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	otx := s.Orders.WithTx(tx)

	created, err := otx.CreateOrder(ctx, order.Order{
		UserID:         uid,
		CartID:         in.CartID,
		Status:         order.StatusPendingPayment,
		Currency:       s.Currency,
		Subtotal:       totals.Subtotal,
		ShippingCost:   totals.ShippingCost,
		DiscountAmount: totals.DiscountAmount,
		FeesTotal:      totals.FeesTotal,
		PayNowAmount:   totals.PayNowAmount,
		PayLaterAmount: totals.PayLaterAmount,
		InterestTotal:  totals.InterestTotal,
		GrandTotal:     totals.GrandTotal,
		ShippingDueNow: totals.ShippingDueNow,
	})
	if err != nil {
		return Output{}, err
	}
	for i, line := range lines {
		ql := quoteLines[i]
		if _, err := otx.InsertItem(ctx, order.Item{
			OrderID:         created.ID,
			VariationID:     line.VariationID,
			Name:            ql.Name,
			Quantity:        line.Quantity,
			UnitPrice:       line.UnitPrice,
			DepositEnabled:  line.DepositEnabled,
			DepositPercent:  line.DepositPercent,
			PayNow:          ql.Split.PayNow,
			PayLater:        ql.Split.PayLater,
			InterestAmount:  ql.Split.InterestAmount,
			EffectiveRate:   ql.Split.EffectiveRate,
			MustPayShipping: ql.Split.MustPayShipping,
		}); err != nil {
			return Output{}, err
		}
	}
	for _, fee := range fees {
		if _, err := otx.AddFee(ctx, order.Fee{
			OrderID:  created.ID,
			Name:     fee.Name,
			Amount:   fee.Amount,
			Required: fee.Required,
		}); err != nil {
			return Output{}, err
		}
	}
	if _, err := tx.Exec(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, in.CartID); err != nil {
		return Output{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Output{}, err
	}
	s.countCheckout("ok")

	if s.Events != nil {
		_, _ = s.Events.Emit(ctx, events.TopicOrderCreated, created.ID, map[string]any{
			"orderId":    created.ID.String(),
			"userId":     userID,
			"payNow":     totals.PayNowAmount.String(),
			"grandTotal": totals.GrandTotal.String(),
		})
	}

	return Output{
		OrderID:        created.ID,
		Status:         created.Status,
		Currency:       created.Currency,
		PayNowAmount:   totals.PayNowAmount,
		PayLaterAmount: totals.PayLaterAmount,
		GrandTotal:     totals.GrandTotal,
		ShippingDueNow: totals.ShippingDueNow,
	}, nil
}

func (s *Service) countCheckout(result string) {
	if obs.CheckoutTotal != nil {
		obs.CheckoutTotal.WithLabelValues(result).Inc()
	}
}

// ErrCartMismatch signals the cart belongs to a different user.
var ErrCartMismatch = errors.New("checkout: cart does not belong to user")
