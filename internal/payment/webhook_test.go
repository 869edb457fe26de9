package payment_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/sokoni-dev/backend-sokoni/internal/order"
	"github.com/sokoni-dev/backend-sokoni/internal/payment"
)

const paidCallback = `{
  "Body": {
    "stkCallback": {
      "MerchantRequestID": "mr-1",
      "CheckoutRequestID": "ws_CO_test_1",
      "ResultCode": 0,
      "ResultDesc": "The service request is processed successfully.",
      "CallbackMetadata": {
        "Item": [
          {"Name": "Amount", "Value": 300},
          {"Name": "MpesaReceiptNumber", "Value": "NLJ7RT61SV"},
          {"Name": "PhoneNumber", "Value": 254712345678}
        ]
      }
    }
  }
}`

const canceledCallback = `{
  "Body": {
    "stkCallback": {
      "MerchantRequestID": "mr-1",
      "CheckoutRequestID": "ws_CO_test_1",
      "ResultCode": 1032,
      "ResultDesc": "Request cancelled by user."
    }
  }
}`

func newWebhookFixture(t *testing.T) (*payment.Webhook, *memPaymentStore, *memOrders, uuid.UUID) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	userID := uuid.New()
	o := depositOrder(userID)
	orders := &memOrders{orders: map[uuid.UUID]order.Order{o.ID: o}}
	store := newMemPaymentStore()
	_, err := store.CreatePayment(t.Context(), payment.Payment{
		OrderID:           o.ID,
		Provider:          "mpesa",
		Status:            payment.StatusPending,
		Amount:            dec("300"),
		CheckoutRequestID: "ws_CO_test_1",
		ExpiresAt:         time.Now().Add(10 * time.Minute),
	})
	require.NoError(t, err)

	wh := &payment.Webhook{
		Store:     store,
		Orders:    orders,
		Provider:  &payment.Mpesa{},
		Replay:    rdb,
		ReplayTTL: time.Hour,
	}
	return wh, store, orders, o.ID
}

func postCallback(t *testing.T, wh *payment.Webhook, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/mpesa", strings.NewReader(body))
	rec := httptest.NewRecorder()
	wh.Handle(rec, req)
	return rec
}

func TestWebhookSettlesDeposit(t *testing.T) {
	wh, store, orders, orderID := newWebhookFixture(t)

	rec := postCallback(t, wh, paidCallback)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"ResultCode":0`)

	p, err := store.GetByCheckoutRequestID(t.Context(), "ws_CO_test_1")
	require.NoError(t, err)
	require.Equal(t, payment.StatusPaid, p.Status)
	require.Equal(t, "NLJ7RT61SV", p.ReceiptNumber)

	o, err := orders.GetOrder(t.Context(), orderID)
	require.NoError(t, err)
	require.Equal(t, order.StatusPartiallyPaid, o.Status, "deposit settles into partially paid")
}

func TestWebhookBalancePaymentCompletesOrder(t *testing.T) {
	wh, store, orders, orderID := newWebhookFixture(t)
	require.NoError(t, orders.UpdateStatus(t.Context(), orderID, order.StatusPartiallyPaid))

	rec := postCallback(t, wh, paidCallback)
	require.Equal(t, http.StatusOK, rec.Code)

	o, err := orders.GetOrder(t.Context(), orderID)
	require.NoError(t, err)
	require.Equal(t, order.StatusPaid, o.Status)

	p, err := store.GetByCheckoutRequestID(t.Context(), "ws_CO_test_1")
	require.NoError(t, err)
	require.Equal(t, payment.StatusPaid, p.Status)
}

func TestWebhookReplayIsAcknowledgedOnce(t *testing.T) {
	wh, store, _, _ := newWebhookFixture(t)

	rec := postCallback(t, wh, paidCallback)
	require.Equal(t, http.StatusOK, rec.Code)
	eventsAfterFirst := store.events

	rec = postCallback(t, wh, paidCallback)
	require.Equal(t, http.StatusOK, rec.Code, "duplicates are acked so the gateway stops retrying")
	require.Equal(t, eventsAfterFirst, store.events, "duplicate must not settle twice")
}

func TestWebhookFailureKeepsOrderPayable(t *testing.T) {
	wh, store, orders, orderID := newWebhookFixture(t)

	rec := postCallback(t, wh, canceledCallback)
	require.Equal(t, http.StatusOK, rec.Code)

	p, err := store.GetByCheckoutRequestID(t.Context(), "ws_CO_test_1")
	require.NoError(t, err)
	require.Equal(t, payment.StatusFailed, p.Status)

	o, err := orders.GetOrder(t.Context(), orderID)
	require.NoError(t, err)
	require.Equal(t, order.StatusPendingPayment, o.Status, "customer can retry after a cancelled prompt")
}

func TestWebhookUnknownPushIsAcked(t *testing.T) {
	wh, _, _, _ := newWebhookFixture(t)
	unknown := strings.Replace(paidCallback, "ws_CO_test_1", "ws_CO_other", 1)

	rec := postCallback(t, wh, unknown)
	require.Equal(t, http.StatusOK, rec.Code)
}
