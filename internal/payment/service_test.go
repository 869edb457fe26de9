package payment_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/sokoni-dev/backend-sokoni/internal/common"
	"github.com/sokoni-dev/backend-sokoni/internal/order"
	"github.com/sokoni-dev/backend-sokoni/internal/payment"
)

type memPaymentStore struct {
	payments map[uuid.UUID]payment.Payment
	events   int
}

func newMemPaymentStore() *memPaymentStore {
	return &memPaymentStore{payments: map[uuid.UUID]payment.Payment{}}
}

func (m *memPaymentStore) CreatePayment(_ context.Context, p payment.Payment) (payment.Payment, error) {
	p.ID = uuid.New()
	p.CreatedAt = time.Now()
	m.payments[p.ID] = p
	return p, nil
}

func (m *memPaymentStore) GetLatestByOrder(_ context.Context, orderID uuid.UUID) (payment.Payment, error) {
	var latest payment.Payment
	found := false
	for _, p := range m.payments {
		if p.OrderID != orderID {
			continue
		}
		if !found || p.CreatedAt.After(latest.CreatedAt) {
			latest = p
			found = true
		}
	}
	if !found {
		return payment.Payment{}, payment.ErrNotFound
	}
	return latest, nil
}

func (m *memPaymentStore) GetByCheckoutRequestID(_ context.Context, id string) (payment.Payment, error) {
	for _, p := range m.payments {
		if p.CheckoutRequestID == id {
			return p, nil
		}
	}
	return payment.Payment{}, payment.ErrNotFound
}

func (m *memPaymentStore) UpdateStatus(_ context.Context, id uuid.UUID, status, receipt string, payload []byte) error {
	p, ok := m.payments[id]
	if !ok {
		return payment.ErrNotFound
	}
	p.Status = status
	if receipt != "" {
		p.ReceiptNumber = receipt
	}
	if payload != nil {
		p.Payload = payload
	}
	m.payments[id] = p
	return nil
}

func (m *memPaymentStore) InsertEvent(context.Context, uuid.UUID, string, []byte) error {
	m.events++
	return nil
}

type memOrders struct {
	orders map[uuid.UUID]order.Order
}

func (m *memOrders) GetOrder(_ context.Context, id uuid.UUID) (order.Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return order.Order{}, order.ErrNotFound
	}
	return o, nil
}

func (m *memOrders) UpdateStatus(_ context.Context, id uuid.UUID, status string) error {
	o, ok := m.orders[id]
	if !ok {
		return order.ErrNotFound
	}
	o.Status = status
	m.orders[id] = o
	return nil
}

type stubProvider struct {
	pushes []payment.STKRequest
	err    error
}

func (p *stubProvider) STKPush(_ context.Context, req payment.STKRequest) (payment.STKResponse, error) {
	if p.err != nil {
		return payment.STKResponse{}, p.err
	}
	p.pushes = append(p.pushes, req)
	return payment.STKResponse{
		MerchantRequestID: "mr-1",
		CheckoutRequestID: "ws_CO_test_1",
		ResponseCode:      "0",
		CustomerMessage:   "Success. Request accepted for processing",
	}, nil
}

func (p *stubProvider) ParseCallback([]byte) (payment.CallbackResult, error) {
	return payment.CallbackResult{}, nil
}

func (p *stubProvider) QueryStatus(context.Context, string) (payment.StatusResult, error) {
	return payment.StatusResult{}, nil
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func depositOrder(userID uuid.UUID) order.Order {
	return order.Order{
		ID:             uuid.New(),
		UserID:         userID,
		Status:         order.StatusPendingPayment,
		Currency:       "KES",
		Subtotal:       dec("1000"),
		ShippingCost:   dec("200"),
		PayNowAmount:   dec("300"),
		PayLaterAmount: dec("735"),
		InterestTotal:  dec("35"),
		GrandTotal:     dec("1200"),
	}
}

func TestAmountDue(t *testing.T) {
	userID := uuid.New()

	o := depositOrder(userID)
	if got := payment.AmountDue(o); !got.Equal(dec("300")) {
		t.Fatalf("deposit order due = %s, want 300", got)
	}

	o.ShippingDueNow = true
	if got := payment.AmountDue(o); !got.Equal(dec("500")) {
		t.Fatalf("shipping-due order due = %s, want 500", got)
	}

	o.Status = order.StatusPartiallyPaid
	if got := payment.AmountDue(o); !got.Equal(dec("735")) {
		t.Fatalf("balance due = %s, want 735", got)
	}

	full := order.Order{
		Status:       order.StatusPendingPayment,
		PayNowAmount: dec("1000"),
		ShippingCost: dec("200"),
		GrandTotal:   dec("1200"),
	}
	if got := payment.AmountDue(full); !got.Equal(dec("1200")) {
		t.Fatalf("full payment due = %s, want grand total 1200", got)
	}
}

func TestAmountDueBalanceCarriesInterest(t *testing.T) {
	// 1000 at a 30% deposit under a 5% rule: the second push must collect the
	// deferred 700 plus the 35 surcharge, not just grand total minus deposit.
	o := order.Order{
		Status:         order.StatusPartiallyPaid,
		Subtotal:       dec("1000"),
		PayNowAmount:   dec("300"),
		PayLaterAmount: dec("735"),
		InterestTotal:  dec("35"),
		GrandTotal:     dec("1000"),
	}
	if got := payment.AmountDue(o); !got.Equal(dec("735")) {
		t.Fatalf("balance due = %s, want pay-later 735", got)
	}
	if got := payment.AmountDue(o); !got.Equal(o.PayLaterAmount) {
		t.Fatalf("balance due = %s, want PayLaterAmount %s", got, o.PayLaterAmount)
	}
}

func TestInitiateSTKCreatesPendingPayment(t *testing.T) {
	userID := uuid.New()
	o := depositOrder(userID)
	orders := &memOrders{orders: map[uuid.UUID]order.Order{o.ID: o}}
	store := newMemPaymentStore()
	provider := &stubProvider{}
	svc := &payment.Service{Store: store, Orders: orders, Provider: provider, PendingTTL: 10 * time.Minute}

	p, err := svc.InitiateSTK(context.Background(), userID.String(), o.ID, "0712345678")
	require.NoError(t, err)
	require.Equal(t, payment.StatusPending, p.Status)
	require.Equal(t, "ws_CO_test_1", p.CheckoutRequestID)
	require.True(t, p.Amount.Equal(dec("300")))
	require.Len(t, provider.pushes, 1)
	require.True(t, provider.pushes[0].Amount.Equal(dec("300")))
	require.LessOrEqual(t, len(provider.pushes[0].AccountReference), 12)
	require.Equal(t, 1, store.events)
}

func TestInitiateSTKReusesPendingPush(t *testing.T) {
	userID := uuid.New()
	o := depositOrder(userID)
	orders := &memOrders{orders: map[uuid.UUID]order.Order{o.ID: o}}
	store := newMemPaymentStore()
	provider := &stubProvider{}
	svc := &payment.Service{Store: store, Orders: orders, Provider: provider, PendingTTL: 10 * time.Minute}

	first, err := svc.InitiateSTK(context.Background(), userID.String(), o.ID, "0712345678")
	require.NoError(t, err)
	second, err := svc.InitiateSTK(context.Background(), userID.String(), o.ID, "0712345678")
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Len(t, provider.pushes, 1, "no second prompt while one is pending")
}

func TestInitiateSTKRejectsClosedOrder(t *testing.T) {
	userID := uuid.New()
	o := depositOrder(userID)
	o.Status = order.StatusCanceled
	orders := &memOrders{orders: map[uuid.UUID]order.Order{o.ID: o}}
	svc := &payment.Service{Store: newMemPaymentStore(), Orders: orders, Provider: &stubProvider{}}

	_, err := svc.InitiateSTK(context.Background(), userID.String(), o.ID, "0712345678")
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "CONFLICT", appErr.Code)
}

func TestInitiateSTKHidesForeignOrder(t *testing.T) {
	o := depositOrder(uuid.New())
	orders := &memOrders{orders: map[uuid.UUID]order.Order{o.ID: o}}
	svc := &payment.Service{Store: newMemPaymentStore(), Orders: orders, Provider: &stubProvider{}}

	_, err := svc.InitiateSTK(context.Background(), uuid.NewString(), o.ID, "0712345678")
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "NOT_FOUND", appErr.Code)
}

func TestStatusForOrderFallsBackToOrderState(t *testing.T) {
	userID := uuid.New()
	o := depositOrder(userID)
	o.Status = order.StatusCanceled
	orders := &memOrders{orders: map[uuid.UUID]order.Order{o.ID: o}}
	svc := &payment.Service{Store: newMemPaymentStore(), Orders: orders, Provider: &stubProvider{}}

	status, err := svc.StatusForOrder(context.Background(), userID.String(), o.ID)
	require.NoError(t, err)
	require.Equal(t, payment.StatusFailed, status)
}

func TestStatusForOrderReportsPartialSettlement(t *testing.T) {
	userID := uuid.New()
	o := depositOrder(userID)
	o.Status = order.StatusPartiallyPaid
	orders := &memOrders{orders: map[uuid.UUID]order.Order{o.ID: o}}
	svc := &payment.Service{Store: newMemPaymentStore(), Orders: orders, Provider: &stubProvider{}}

	status, err := svc.StatusForOrder(context.Background(), userID.String(), o.ID)
	require.NoError(t, err)
	require.Equal(t, order.StatusPartiallyPaid, status, "deposit alone must not read as fully paid")
}
