package tasks

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/sokoni-dev/backend-sokoni/internal/events"
	"github.com/sokoni-dev/backend-sokoni/internal/lock"
	"github.com/sokoni-dev/backend-sokoni/internal/obs"
	"github.com/sokoni-dev/backend-sokoni/internal/order"
	"github.com/sokoni-dev/backend-sokoni/internal/payment"
)

// PaymentStore is the slice of the payment store the reconciler needs.
// *payment.PGStore satisfies it.
type PaymentStore interface {
	ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]payment.Payment, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status, receipt string, payload []byte) error
	InsertEvent(ctx context.Context, paymentID uuid.UUID, status string, payload []byte) error
}

// Handlers holds the dependencies for background task processing.
type Handlers struct {
	Payments  PaymentStore
	Orders    payment.OrderStore
	Recompute *order.Service
	Provider  payment.Provider
	Events    *events.Bus
	Lock      lock.Locker
	BatchSize int
	Now       func() time.Time
}

func (h *Handlers) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

// Register binds the task handlers onto an asynq mux.
func (h *Handlers) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TypePaymentReconcile, h.HandlePaymentReconcile)
	mux.HandleFunc(TypeOrderRecompute, h.HandleOrderRecompute)
}

// HandlePaymentReconcile expires stale pending payments. Before giving up on
// a push it asks the gateway for the outcome, so payments whose callback was
// lost still settle. A Redis lock keeps concurrent workers from double
// processing the same batch.
func (h *Handlers) HandlePaymentReconcile(ctx context.Context, _ *asynq.Task) error {
	return h.Lock.WithLock(ctx, "tasks:payment:reconcile", time.Minute, func(ctx context.Context) error {
		if obs.ReconcileRuns != nil {
			obs.ReconcileRuns.Inc()
		}
		batch := h.BatchSize
		if batch <= 0 {
			batch = 100
		}
		stale, err := h.Payments.ListPendingBefore(ctx, h.now(), batch)
		if err != nil {
			return err
		}
		logger := zerolog.Ctx(ctx)
		for _, p := range stale {
			if h.settleIfPaid(ctx, p) {
				logger.Info().Str("payment_id", p.ID.String()).Msg("late settlement during reconcile")
				continue
			}
			if err := h.Payments.UpdateStatus(ctx, p.ID, payment.StatusExpired, "", nil); err != nil {
				logger.Error().Err(err).Str("payment_id", p.ID.String()).Msg("expire payment")
				continue
			}
			_ = h.Payments.InsertEvent(ctx, p.ID, payment.StatusExpired, nil)
			if obs.ReconcileExpired != nil {
				obs.ReconcileExpired.Inc()
			}
			if h.Events != nil {
				_, _ = h.Events.Emit(ctx, events.TopicPaymentExpired, p.OrderID, map[string]any{
					"orderId":   p.OrderID.String(),
					"paymentId": p.ID.String(),
				})
			}
		}
		return nil
	})
}

// settleIfPaid queries the gateway for the push outcome and settles the
// payment when the customer actually paid.
func (h *Handlers) settleIfPaid(ctx context.Context, p payment.Payment) bool {
	if h.Provider == nil || p.CheckoutRequestID == "" {
		return false
	}
	res, err := h.Provider.QueryStatus(ctx, p.CheckoutRequestID)
	if err != nil || res.ResultCode != "0" {
		return false
	}
	if err := h.Payments.UpdateStatus(ctx, p.ID, payment.StatusPaid, "", nil); err != nil {
		return false
	}
	_ = h.Payments.InsertEvent(ctx, p.ID, payment.StatusPaid, nil)
	if h.Orders != nil {
		if o, err := h.Orders.GetOrder(ctx, p.OrderID); err == nil {
			if next := payment.NextStatusOnPayment(o); next != o.Status {
				_ = h.Orders.UpdateStatus(ctx, o.ID, next)
			}
		}
	}
	if h.Events != nil {
		_, _ = h.Events.Emit(ctx, events.TopicOrderPaid, p.OrderID, map[string]any{
			"orderId":   p.OrderID.String(),
			"paymentId": p.ID.String(),
			"amount":    p.Amount.String(),
		})
	}
	return true
}

// HandleOrderRecompute rebuilds an order's totals from its frozen lines and
// the current fees.
func (h *Handlers) HandleOrderRecompute(ctx context.Context, t *asynq.Task) error {
	var payload RecomputePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return err
	}
	if h.Recompute == nil {
		return nil
	}
	_, err := h.Recompute.Recompute(ctx, payload.OrderID)
	return err
}
