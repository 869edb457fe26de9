package tasks

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// Task type names registered with the asynq server.
const (
	TypePaymentReconcile = "payment:reconcile"
	TypeOrderRecompute   = "order:recompute"
)

// RecomputePayload identifies the order whose totals should be rebuilt.
type RecomputePayload struct {
	OrderID uuid.UUID `json:"order_id"`
}

// NewPaymentReconcileTask builds the periodic reconciliation task.
func NewPaymentReconcileTask() *asynq.Task {
	return asynq.NewTask(TypePaymentReconcile, nil)
}

// NewOrderRecomputeTask builds a one-off totals recompute task for an order.
func NewOrderRecomputeTask(orderID uuid.UUID) (*asynq.Task, error) {
	payload, err := json.Marshal(RecomputePayload{OrderID: orderID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeOrderRecompute, payload), nil
}
