package payment

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/sokoni-dev/backend-sokoni/internal/common"
	"github.com/sokoni-dev/backend-sokoni/internal/events"
	"github.com/sokoni-dev/backend-sokoni/internal/obs"
	"github.com/sokoni-dev/backend-sokoni/internal/order"
)

// Store is the persistence surface the service needs. *PGStore satisfies it.
type Store interface {
	CreatePayment(ctx context.Context, p Payment) (Payment, error)
	GetLatestByOrder(ctx context.Context, orderID uuid.UUID) (Payment, error)
	GetByCheckoutRequestID(ctx context.Context, checkoutRequestID string) (Payment, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status, receipt string, payload []byte) error
	InsertEvent(ctx context.Context, paymentID uuid.UUID, status string, payload []byte) error
}

// OrderStore is the slice of the order store the payment flow touches.
// *order.PGStore satisfies it.
type OrderStore interface {
	GetOrder(ctx context.Context, id uuid.UUID) (order.Order, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
}

// Service coordinates STK pushes against orders.
type Service struct {
	Store      Store
	Orders     OrderStore
	Provider   Provider
	Events     *events.Bus
	PendingTTL time.Duration
	Now        func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// AmountDue returns what the customer owes on the next payment. For a fresh
// deposit order that is the pay-now portion plus shipping when a rate rule
// demands shipping upfront; for an order with no deferred portion it is the
// grand total; for a partially paid order it is the outstanding balance. The
// grand total excludes the interest surcharge (it rides on the deferred
// portion only), so the balance adds it back before subtracting the deposit.
func AmountDue(o order.Order) decimal.Decimal {
	first := o.PayNowAmount
	if o.ShippingDueNow {
		first = first.Add(o.ShippingCost)
	}
	if o.Status == order.StatusPartiallyPaid {
		return o.GrandTotal.Add(o.InterestTotal).Sub(first)
	}
	if o.PayLaterAmount.IsZero() {
		return o.GrandTotal
	}
	return first
}

// NextStatusOnPayment returns the order status after a successful payment: a
// deposit moves the order to partially paid, a balance or full payment closes
// it out as paid.
func NextStatusOnPayment(o order.Order) string {
	switch o.Status {
	case order.StatusPendingPayment:
		if o.PayLaterAmount.IsPositive() {
			return order.StatusPartiallyPaid
		}
		return order.StatusPaid
	case order.StatusPartiallyPaid:
		return order.StatusPaid
	}
	return o.Status
}

// accountReference derives the customer-visible paybill reference from the
// order id. Daraja caps it at twelve characters.
func accountReference(orderID uuid.UUID) string {
	return clamp(strings.ToUpper(strings.ReplaceAll(orderID.String(), "-", "")), maxAccountRefLen)
}

// InitiateSTK pushes a payment prompt for the order's outstanding amount. A
// still-pending, unexpired push for the same order is reused instead of
// prompting the customer twice.
func (s *Service) InitiateSTK(ctx context.Context, userID string, orderID uuid.UUID, phone string) (Payment, error) {
	ctx, span := otel.Tracer("payment.Service").Start(ctx, "PaymentService.InitiateSTK")
	defer span.End()
	result := "error"
	defer func() {
		span.SetAttributes(
			attribute.String("order.id", orderID.String()),
			attribute.String("payment.result", result),
		)
		if obs.StkPushTotal != nil {
			obs.StkPushTotal.WithLabelValues(result).Inc()
		}
	}()

	uid, err := uuid.Parse(userID)
	if err != nil {
		return Payment{}, common.BadRequest("invalid user id", err)
	}
	o, err := s.Orders.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			return Payment{}, common.NotFound("order not found")
		}
		return Payment{}, err
	}
	if o.UserID != uid {
		return Payment{}, common.NotFound("order not found")
	}
	if o.Status != order.StatusPendingPayment && o.Status != order.StatusPartiallyPaid {
		return Payment{}, common.Conflict("order status "+o.Status+" does not allow payment", nil)
	}
	amount := AmountDue(o)
	if !amount.IsPositive() {
		return Payment{}, common.Conflict("nothing due on this order", nil)
	}

	existing, err := s.Store.GetLatestByOrder(ctx, orderID)
	switch {
	case err == nil:
		if existing.Status == StatusPending && existing.ExpiresAt.After(s.now()) {
			result = "reused"
			return existing, nil
		}
	case errors.Is(err, ErrNotFound):
	default:
		return Payment{}, err
	}

	req := STKRequest{
		OrderID:          orderID,
		Phone:            phone,
		Amount:           amount,
		AccountReference: accountReference(orderID),
		Description:      "Sokoni order",
	}
	resp, err := s.Provider.STKPush(ctx, req)
	if err != nil {
		span.RecordError(err)
		return Payment{}, common.NewAppError("STK_PUSH_FAILED", "payment prompt could not be sent", 502, err)
	}

	ttl := s.PendingTTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	payload, _ := json.Marshal(map[string]any{"request": req, "response": resp})
	p, err := s.Store.CreatePayment(ctx, Payment{
		OrderID:           orderID,
		Provider:          "mpesa",
		Status:            StatusPending,
		Amount:            amount,
		Phone:             phone,
		MerchantRequestID: resp.MerchantRequestID,
		CheckoutRequestID: resp.CheckoutRequestID,
		Payload:           payload,
		ExpiresAt:         s.now().Add(ttl),
	})
	if err != nil {
		return Payment{}, err
	}
	_ = s.Store.InsertEvent(ctx, p.ID, StatusPending, payload)
	result = "ok"

	if s.Events != nil {
		_, _ = s.Events.Emit(ctx, events.TopicPaymentInitiated, orderID, map[string]any{
			"orderId":           orderID.String(),
			"paymentId":         p.ID.String(),
			"amount":            amount.String(),
			"checkoutRequestId": resp.CheckoutRequestID,
		})
	}
	return p, nil
}

// StatusForOrder returns the best-known payment status for the user's order.
// Without a payment row the order state decides: a closed order reads as paid,
// a partially paid one reports exactly that rather than overstating
// settlement, everything else is pending.
func (s *Service) StatusForOrder(ctx context.Context, userID string, orderID uuid.UUID) (string, error) {
	uid, err := uuid.Parse(userID)
	if err != nil {
		return "", common.BadRequest("invalid user id", err)
	}
	o, err := s.Orders.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			return "", common.NotFound("order not found")
		}
		return "", err
	}
	if o.UserID != uid {
		return "", common.NotFound("order not found")
	}
	p, err := s.Store.GetLatestByOrder(ctx, orderID)
	if err == nil {
		return p.Status, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return "", err
	}
	switch o.Status {
	case order.StatusPaid:
		return StatusPaid, nil
	case order.StatusPartiallyPaid:
		return order.StatusPartiallyPaid, nil
	case order.StatusCanceled, order.StatusExpired:
		return StatusFailed, nil
	default:
		return StatusPending, nil
	}
}
