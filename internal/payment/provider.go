package payment

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// STKRequest asks the provider to push a payment prompt to the customer's
// phone for the amount due on an order.
type STKRequest struct {
	OrderID          uuid.UUID
	Phone            string
	Amount           decimal.Decimal
	AccountReference string
	Description      string
}

// STKResponse is the provider's acknowledgement of an accepted push.
type STKResponse struct {
	MerchantRequestID   string
	CheckoutRequestID   string
	ResponseCode        string
	ResponseDescription string
	CustomerMessage     string
}

// CallbackResult is the normalized outcome extracted from a provider
// payment callback. ResultCode zero means the customer completed payment.
type CallbackResult struct {
	MerchantRequestID string
	CheckoutRequestID string
	ResultCode        int
	ResultDesc        string
	Amount            decimal.Decimal
	ReceiptNumber     string
	Phone             string
	Payload           []byte
}

// Paid reports whether the callback describes a completed payment.
func (c CallbackResult) Paid() bool { return c.ResultCode == 0 }

// StatusResult is the provider's answer to a push status query.
type StatusResult struct {
	ResponseCode string
	ResultCode   string
	ResultDesc   string
}

// Provider abstracts the mobile-money gateway.
type Provider interface {
	STKPush(ctx context.Context, req STKRequest) (STKResponse, error)
	ParseCallback(body []byte) (CallbackResult, error)
	QueryStatus(ctx context.Context, checkoutRequestID string) (StatusResult, error)
}
