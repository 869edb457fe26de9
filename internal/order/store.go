package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/sokoni-dev/backend-sokoni/internal/pricing"
)

// ErrNotFound indicates the requested order could not be located.
var ErrNotFound = errors.New("order: not found")

// Order statuses.
const (
	StatusPendingPayment = "PENDING_PAYMENT"
	StatusPartiallyPaid  = "PARTIALLY_PAID"
	StatusPaid           = "PAID"
	StatusCanceled       = "CANCELED"
	StatusExpired        = "EXPIRED"
)

// Order is a placed order with its computed totals.
type Order struct {
	ID             uuid.UUID       `json:"id"`
	UserID         uuid.UUID       `json:"user_id"`
	CartID         uuid.UUID       `json:"cart_id"`
	Status         string          `json:"status"`
	Currency       string          `json:"currency"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	ShippingCost   decimal.Decimal `json:"shipping_cost"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	FeesTotal      decimal.Decimal `json:"fees_total"`
	PayNowAmount   decimal.Decimal `json:"pay_now_amount"`
	PayLaterAmount decimal.Decimal `json:"pay_later_amount"`
	InterestTotal  decimal.Decimal `json:"interest_total"`
	GrandTotal     decimal.Decimal `json:"grand_total"`
	ShippingDueNow bool            `json:"shipping_due_now"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Item is one order line with its frozen price and payment split.
type Item struct {
	ID              uuid.UUID       `json:"id"`
	OrderID         uuid.UUID       `json:"order_id"`
	VariationID     uuid.UUID       `json:"variation_id"`
	Name            string          `json:"name"`
	Quantity        int             `json:"quantity"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	DepositEnabled  bool            `json:"deposit_enabled"`
	DepositPercent  decimal.Decimal `json:"deposit_percent"`
	PayNow          decimal.Decimal `json:"pay_now"`
	PayLater        decimal.Decimal `json:"pay_later"`
	InterestAmount  decimal.Decimal `json:"interest_amount"`
	EffectiveRate   decimal.Decimal `json:"effective_rate"`
	MustPayShipping bool            `json:"must_pay_shipping"`
}

// Fee is an additional charge attached to an order.
type Fee struct {
	ID       uuid.UUID       `json:"id"`
	OrderID  uuid.UUID       `json:"order_id"`
	Name     string          `json:"name"`
	Amount   decimal.Decimal `json:"amount"`
	Required bool            `json:"required"`
}

// ProductFee is a vendor-configured pre-purchase charge applying to a set of
// variations.
type ProductFee struct {
	ID           uuid.UUID       `json:"id"`
	VendorID     uuid.UUID       `json:"vendor_id"`
	Name         string          `json:"name"`
	Amount       decimal.Decimal `json:"amount"`
	Required     bool            `json:"required"`
	VariationIDs []uuid.UUID     `json:"variation_ids"`
}

// Querier is satisfied by both *pgxpool.Pool and pgx.Tx, letting checkout run
// order writes inside its own transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PGStore persists orders, items and fees in Postgres.
type PGStore struct {
	DB Querier
}

// NewPGStore constructs a store over a pool.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{DB: pool}
}

// WithTx returns a store bound to the given transaction.
func (s *PGStore) WithTx(tx pgx.Tx) *PGStore {
	return &PGStore{DB: tx}
}

const orderColumns = `id, user_id, cart_id, status, currency,
	subtotal::text, shipping_cost::text, discount_amount::text, fees_total::text,
	pay_now_amount::text, pay_later_amount::text, interest_total::text, grand_total::text,
	shipping_due_now, created_at, updated_at`

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	var sub, ship, disc, fees, payNow, payLater, interest, grand string
	err := row.Scan(&o.ID, &o.UserID, &o.CartID, &o.Status, &o.Currency,
		&sub, &ship, &disc, &fees, &payNow, &payLater, &interest, &grand,
		&o.ShippingDueNow, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return Order{}, err
	}
	for _, pair := range []struct {
		dst *decimal.Decimal
		src string
	}{
		{&o.Subtotal, sub}, {&o.ShippingCost, ship}, {&o.DiscountAmount, disc}, {&o.FeesTotal, fees},
		{&o.PayNowAmount, payNow}, {&o.PayLaterAmount, payLater}, {&o.InterestTotal, interest}, {&o.GrandTotal, grand},
	} {
		d, err := decimal.NewFromString(pair.src)
		if err != nil {
			return Order{}, fmt.Errorf("parse order amount: %w", err)
		}
		*pair.dst = d
	}
	return o, nil
}

// CreateOrder inserts an order row with its totals.
func (s *PGStore) CreateOrder(ctx context.Context, o Order) (Order, error) {
	row := s.DB.QueryRow(ctx, `
		INSERT INTO orders (user_id, cart_id, status, currency,
			subtotal, shipping_cost, discount_amount, fees_total,
			pay_now_amount, pay_later_amount, interest_total, grand_total, shipping_due_now)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING `+orderColumns,
		o.UserID, o.CartID, o.Status, o.Currency,
		o.Subtotal.String(), o.ShippingCost.String(), o.DiscountAmount.String(), o.FeesTotal.String(),
		o.PayNowAmount.String(), o.PayLaterAmount.String(), o.InterestTotal.String(), o.GrandTotal.String(),
		o.ShippingDueNow)
	return scanOrder(row)
}

// GetOrder fetches an order by id.
func (s *PGStore) GetOrder(ctx context.Context, id uuid.UUID) (Order, error) {
	row := s.DB.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	o, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrNotFound
	}
	return o, err
}

// ListOrdersByUser returns a user's orders, newest first.
func (s *PGStore) ListOrdersByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]Order, int64, error) {
	var total int64
	if err := s.DB.QueryRow(ctx, `SELECT count(*) FROM orders WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := s.DB.Query(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE user_id = $1 ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]Order, 0, limit)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, o)
	}
	return out, total, rows.Err()
}

// InsertItem adds one order line.
func (s *PGStore) InsertItem(ctx context.Context, it Item) (Item, error) {
	row := s.DB.QueryRow(ctx, `
		INSERT INTO order_items (order_id, variation_id, name, quantity, unit_price,
			deposit_enabled, deposit_percent, pay_now, pay_later, interest_amount,
			effective_rate, must_pay_shipping)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id`,
		it.OrderID, it.VariationID, it.Name, it.Quantity, it.UnitPrice.String(),
		it.DepositEnabled, it.DepositPercent.String(), it.PayNow.String(), it.PayLater.String(),
		it.InterestAmount.String(), it.EffectiveRate.String(), it.MustPayShipping)
	if err := row.Scan(&it.ID); err != nil {
		return Item{}, err
	}
	return it, nil
}

// ListItems returns the order's lines.
func (s *PGStore) ListItems(ctx context.Context, orderID uuid.UUID) ([]Item, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT id, order_id, variation_id, name, quantity, unit_price::text,
			deposit_enabled, deposit_percent::text, pay_now::text, pay_later::text,
			interest_amount::text, effective_rate::text, must_pay_shipping
		FROM order_items WHERE order_id = $1 ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Item
	for rows.Next() {
		var it Item
		var unit, pct, payNow, payLater, interest, rate string
		if err := rows.Scan(&it.ID, &it.OrderID, &it.VariationID, &it.Name, &it.Quantity, &unit,
			&it.DepositEnabled, &pct, &payNow, &payLater, &interest, &rate, &it.MustPayShipping); err != nil {
			return nil, err
		}
		for _, pair := range []struct {
			dst *decimal.Decimal
			src string
		}{
			{&it.UnitPrice, unit}, {&it.DepositPercent, pct}, {&it.PayNow, payNow},
			{&it.PayLater, payLater}, {&it.InterestAmount, interest}, {&it.EffectiveRate, rate},
		} {
			d, err := decimal.NewFromString(pair.src)
			if err != nil {
				return nil, fmt.Errorf("parse item amount: %w", err)
			}
			*pair.dst = d
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// OrderBelongsToVendor reports whether any of the order's lines sell one of
// the vendor's variations.
func (s *PGStore) OrderBelongsToVendor(ctx context.Context, orderID, vendorID uuid.UUID) (bool, error) {
	var ok bool
	err := s.DB.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM order_items oi
			JOIN variations v ON v.id = oi.variation_id
			WHERE oi.order_id = $1 AND v.vendor_id = $2)`, orderID, vendorID).Scan(&ok)
	return ok, err
}

// AddFee attaches a fee to an order.
func (s *PGStore) AddFee(ctx context.Context, fee Fee) (Fee, error) {
	row := s.DB.QueryRow(ctx, `
		INSERT INTO order_fees (order_id, name, amount, required)
		VALUES ($1, $2, $3, $4)
		RETURNING id`,
		fee.OrderID, fee.Name, fee.Amount.String(), fee.Required)
	if err := row.Scan(&fee.ID); err != nil {
		return Fee{}, err
	}
	return fee, nil
}

// ListFees returns the fees attached to an order.
func (s *PGStore) ListFees(ctx context.Context, orderID uuid.UUID) ([]Fee, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT id, order_id, name, amount::text, required
		FROM order_fees WHERE order_id = $1 ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Fee
	for rows.Next() {
		var f Fee
		var amount string
		if err := rows.Scan(&f.ID, &f.OrderID, &f.Name, &amount, &f.Required); err != nil {
			return nil, err
		}
		if f.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("parse fee amount: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// UpdateTotals persists recomputed totals on an order.
func (s *PGStore) UpdateTotals(ctx context.Context, orderID uuid.UUID, t pricing.OrderTotals) error {
	tag, err := s.DB.Exec(ctx, `
		UPDATE orders SET subtotal = $2, shipping_cost = $3, discount_amount = $4,
			fees_total = $5, pay_now_amount = $6, pay_later_amount = $7,
			interest_total = $8, grand_total = $9, shipping_due_now = $10, updated_at = now()
		WHERE id = $1`,
		orderID, t.Subtotal.String(), t.ShippingCost.String(), t.DiscountAmount.String(),
		t.FeesTotal.String(), t.PayNowAmount.String(), t.PayLaterAmount.String(),
		t.InterestTotal.String(), t.GrandTotal.String(), t.ShippingDueNow)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateStatus transitions an order's status.
func (s *PGStore) UpdateStatus(ctx context.Context, orderID uuid.UUID, status string) error {
	tag, err := s.DB.Exec(ctx, `UPDATE orders SET status = $2, updated_at = now() WHERE id = $1`, orderID, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateProductFee registers a vendor's pre-purchase fee.
func (s *PGStore) CreateProductFee(ctx context.Context, fee ProductFee) (ProductFee, error) {
	row := s.DB.QueryRow(ctx, `
		INSERT INTO product_fees (vendor_id, name, amount, required, variation_ids)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		fee.VendorID, fee.Name, fee.Amount.String(), fee.Required, fee.VariationIDs)
	if err := row.Scan(&fee.ID); err != nil {
		return ProductFee{}, err
	}
	return fee, nil
}

// ListProductFeesByVendor returns a vendor's configured fees.
func (s *PGStore) ListProductFeesByVendor(ctx context.Context, vendorID uuid.UUID) ([]ProductFee, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT id, vendor_id, name, amount::text, required, variation_ids
		FROM product_fees WHERE vendor_id = $1 ORDER BY name`, vendorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectProductFees(rows)
}

func collectProductFees(rows pgx.Rows) ([]ProductFee, error) {
	var out []ProductFee
	for rows.Next() {
		var f ProductFee
		var amount string
		if err := rows.Scan(&f.ID, &f.VendorID, &f.Name, &amount, &f.Required, &f.VariationIDs); err != nil {
			return nil, err
		}
		var err error
		if f.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("parse fee amount: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// ListFeesForVariations returns product fees touching any of the given
// variations, in the pricing engine's fee shape. Satisfies cart.FeeSource.
func (s *PGStore) ListFeesForVariations(ctx context.Context, ids []uuid.UUID) ([]pricing.Fee, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.DB.Query(ctx, `
		SELECT id, vendor_id, name, amount::text, required, variation_ids
		FROM product_fees WHERE variation_ids && $1`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fees, err := collectProductFees(rows)
	if err != nil {
		return nil, err
	}
	out := make([]pricing.Fee, 0, len(fees))
	for _, f := range fees {
		out = append(out, pricing.Fee{
			Name:      f.Name,
			Amount:    f.Amount,
			Required:  f.Required,
			AppliesTo: f.VariationIDs,
		})
	}
	return out, nil
}
