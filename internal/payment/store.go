package payment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Payment statuses.
const (
	StatusPending = "PENDING"
	StatusPaid    = "PAID"
	StatusFailed  = "FAILED"
	StatusExpired = "EXPIRED"
)

// ErrNotFound is returned when no payment matches the lookup.
var ErrNotFound = errors.New("payment: not found")

// Payment is a single charge attempt against an order.
type Payment struct {
	ID                uuid.UUID       `json:"id"`
	OrderID           uuid.UUID       `json:"order_id"`
	Provider          string          `json:"provider"`
	Status            string          `json:"status"`
	Amount            decimal.Decimal `json:"amount"`
	Phone             string          `json:"phone"`
	MerchantRequestID string          `json:"merchant_request_id,omitempty"`
	CheckoutRequestID string          `json:"checkout_request_id,omitempty"`
	ReceiptNumber     string          `json:"receipt_number,omitempty"`
	Payload           []byte          `json:"-"`
	ExpiresAt         time.Time       `json:"expires_at"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// PGStore persists payments and their event trail in Postgres.
type PGStore struct {
	Pool *pgxpool.Pool
}

const paymentColumns = `
	id, order_id, provider, status, amount::text, phone,
	merchant_request_id, checkout_request_id, receipt_number,
	payload, expires_at, created_at, updated_at`

func scanPayment(row pgx.Row) (Payment, error) {
	var p Payment
	var amount string
	err := row.Scan(
		&p.ID, &p.OrderID, &p.Provider, &p.Status, &amount, &p.Phone,
		&p.MerchantRequestID, &p.CheckoutRequestID, &p.ReceiptNumber,
		&p.Payload, &p.ExpiresAt, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Payment{}, ErrNotFound
		}
		return Payment{}, err
	}
	p.Amount, err = decimal.NewFromString(amount)
	return p, err
}

// CreatePayment inserts a pending payment row.
func (s *PGStore) CreatePayment(ctx context.Context, p Payment) (Payment, error) {
	row := s.Pool.QueryRow(ctx, `
		INSERT INTO payments (
			order_id, provider, status, amount, phone,
			merchant_request_id, checkout_request_id, payload, expires_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING`+paymentColumns,
		p.OrderID, p.Provider, p.Status, p.Amount.String(), p.Phone,
		p.MerchantRequestID, p.CheckoutRequestID, p.Payload, p.ExpiresAt,
	)
	return scanPayment(row)
}

// GetLatestByOrder returns the most recent payment for an order.
func (s *PGStore) GetLatestByOrder(ctx context.Context, orderID uuid.UUID) (Payment, error) {
	row := s.Pool.QueryRow(ctx, `
		SELECT`+paymentColumns+`
		FROM payments
		WHERE order_id = $1
		ORDER BY created_at DESC
		LIMIT 1`, orderID)
	return scanPayment(row)
}

// GetByCheckoutRequestID looks a payment up by the provider push identifier.
func (s *PGStore) GetByCheckoutRequestID(ctx context.Context, checkoutRequestID string) (Payment, error) {
	row := s.Pool.QueryRow(ctx, `
		SELECT`+paymentColumns+`
		FROM payments
		WHERE checkout_request_id = $1
		ORDER BY created_at DESC
		LIMIT 1`, checkoutRequestID)
	return scanPayment(row)
}

// UpdateStatus records a payment outcome together with the provider receipt
// and raw payload.
func (s *PGStore) UpdateStatus(ctx context.Context, id uuid.UUID, status, receipt string, payload []byte) error {
	tag, err := s.Pool.Exec(ctx, `
		UPDATE payments
		SET status = $2,
		    receipt_number = COALESCE(NULLIF($3, ''), receipt_number),
		    payload = COALESCE($4, payload),
		    updated_at = now()
		WHERE id = $1`, id, status, receipt, payload)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListPendingBefore returns pending payments whose expiry passed before the
// cutoff, oldest first. Used by the reconciliation worker.
func (s *PGStore) ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]Payment, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT`+paymentColumns+`
		FROM payments
		WHERE status = $1 AND expires_at < $2
		ORDER BY expires_at
		LIMIT $3`, StatusPending, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// InsertEvent appends to the payment's append-only status trail.
func (s *PGStore) InsertEvent(ctx context.Context, paymentID uuid.UUID, status string, payload []byte) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO payment_events (payment_id, status, payload)
		VALUES ($1, $2, $3)`, paymentID, status, payload)
	return err
}
