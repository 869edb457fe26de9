package payment

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/sokoni-dev/backend-sokoni/internal/common"
	"github.com/sokoni-dev/backend-sokoni/internal/events"
	"github.com/sokoni-dev/backend-sokoni/internal/obs"
)

// Webhook receives Daraja STK callbacks and settles the matching payment.
type Webhook struct {
	Store     Store
	Orders    OrderStore
	Provider  Provider
	Replay    *redis.Client
	ReplayTTL time.Duration
	Events    *events.Bus
}

type darajaAck struct {
	ResultCode int    `json:"ResultCode"`
	ResultDesc string `json:"ResultDesc"`
}

func ack(w http.ResponseWriter) {
	common.JSON(w, http.StatusOK, darajaAck{ResultCode: 0, ResultDesc: "Accepted"})
}

func countCallback(result string) {
	if obs.PaymentCallbackTotal != nil {
		obs.PaymentCallbackTotal.WithLabelValues(result).Inc()
	}
}

// Handle processes POST /webhooks/mpesa. Daraja retries callbacks it does not
// get a 200 acknowledgement for, so duplicates and unmatched pushes are
// acknowledged rather than errored.
func (h *Webhook) Handle(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil || h.Provider == nil {
		common.JSONError(w, http.StatusInternalServerError, "PAYMENT_NOT_CONFIGURED", "webhook unavailable", nil)
		return
	}
	logger := zerolog.Ctx(r.Context())
	body, err := io.ReadAll(r.Body)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_BODY", "unable to read payload", nil)
		return
	}
	cb, err := h.Provider.ParseCallback(body)
	if err != nil {
		countCallback("invalid")
		common.JSONError(w, http.StatusBadRequest, "CALLBACK_INVALID", err.Error(), nil)
		return
	}
	ctx := r.Context()

	if h.Replay != nil && h.ReplayTTL > 0 {
		key := "mpesa:cb:" + cb.CheckoutRequestID
		fresh, err := h.Replay.SetNX(ctx, key, "1", h.ReplayTTL).Result()
		if err != nil {
			common.JSONError(w, http.StatusInternalServerError, "REPLAY_STORE_ERROR", err.Error(), nil)
			return
		}
		if !fresh {
			countCallback("replay")
			logger.Warn().Str("checkout_request_id", cb.CheckoutRequestID).Msg("duplicate payment callback")
			ack(w)
			return
		}
	}

	p, err := h.Store.GetByCheckoutRequestID(ctx, cb.CheckoutRequestID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			countCallback("unmatched")
			logger.Warn().Str("checkout_request_id", cb.CheckoutRequestID).Msg("callback for unknown payment")
			ack(w)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "PAYMENT_FETCH_ERROR", err.Error(), nil)
		return
	}
	if p.Status != StatusPending {
		countCallback("settled")
		ack(w)
		return
	}

	if cb.Paid() {
		if err := h.settlePaid(ctx, p, cb); err != nil {
			common.JSONError(w, http.StatusInternalServerError, "PAYMENT_UPDATE_ERROR", err.Error(), nil)
			return
		}
		countCallback("paid")
	} else {
		if err := h.recordFailed(ctx, p, cb); err != nil {
			common.JSONError(w, http.StatusInternalServerError, "PAYMENT_UPDATE_ERROR", err.Error(), nil)
			return
		}
		countCallback("failed")
	}
	ack(w)
}

func (h *Webhook) settlePaid(ctx context.Context, p Payment, cb CallbackResult) error {
	if err := h.Store.UpdateStatus(ctx, p.ID, StatusPaid, cb.ReceiptNumber, cb.Payload); err != nil {
		return err
	}
	_ = h.Store.InsertEvent(ctx, p.ID, StatusPaid, cb.Payload)

	o, err := h.Orders.GetOrder(ctx, p.OrderID)
	if err != nil {
		return err
	}
	next := NextStatusOnPayment(o)
	if next != o.Status {
		if err := h.Orders.UpdateStatus(ctx, o.ID, next); err != nil {
			return err
		}
	}
	if h.Events != nil {
		_, _ = h.Events.Emit(ctx, events.TopicOrderPaid, o.ID, map[string]any{
			"orderId":     o.ID.String(),
			"paymentId":   p.ID.String(),
			"orderStatus": next,
			"amount":      p.Amount.String(),
			"receipt":     cb.ReceiptNumber,
		})
	}
	return nil
}

// recordFailed marks the attempt failed but leaves the order payable so the
// customer can retry with a fresh push.
func (h *Webhook) recordFailed(ctx context.Context, p Payment, cb CallbackResult) error {
	if err := h.Store.UpdateStatus(ctx, p.ID, StatusFailed, "", cb.Payload); err != nil {
		return err
	}
	_ = h.Store.InsertEvent(ctx, p.ID, StatusFailed, cb.Payload)
	if h.Events != nil {
		_, _ = h.Events.Emit(ctx, events.TopicPaymentFailed, p.OrderID, map[string]any{
			"orderId":    p.OrderID.String(),
			"paymentId":  p.ID.String(),
			"resultCode": cb.ResultCode,
			"resultDesc": cb.ResultDesc,
		})
	}
	return nil
}
