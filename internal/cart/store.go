package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// ErrNotFound indicates the requested cart or item could not be located.
var ErrNotFound = errors.New("cart: not found")

// Cart groups a buyer's line items. Guest carts are keyed by AnonID.
type Cart struct {
	ID        uuid.UUID  `json:"id"`
	UserID    *uuid.UUID `json:"user_id,omitempty"`
	AnonID    string     `json:"anon_id,omitempty"`
	ExpiresAt time.Time  `json:"expires_at"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Item is one variation/quantity pair in a cart. DepositPercent overrides the
// variation's default when the buyer picks their own deposit.
type Item struct {
	ID             uuid.UUID        `json:"id"`
	CartID         uuid.UUID        `json:"cart_id"`
	VariationID    uuid.UUID        `json:"variation_id"`
	Quantity       int              `json:"quantity"`
	DepositPercent *decimal.Decimal `json:"deposit_percent,omitempty"`
}

// PGStore persists carts and cart items in Postgres.
type PGStore struct {
	Pool *pgxpool.Pool
}

const cartColumns = `id, user_id, anon_id, expires_at, created_at, updated_at`

func scanCart(row pgx.Row) (Cart, error) {
	var c Cart
	var anon *string
	if err := row.Scan(&c.ID, &c.UserID, &anon, &c.ExpiresAt, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return Cart{}, err
	}
	if anon != nil {
		c.AnonID = *anon
	}
	return c, nil
}

// EnsureCartByUser loads the user's active cart or creates one.
func (s *PGStore) EnsureCartByUser(ctx context.Context, userID uuid.UUID, expiresAt time.Time) (Cart, error) {
	row := s.Pool.QueryRow(ctx, `
		SELECT `+cartColumns+` FROM carts
		WHERE user_id = $1 AND expires_at > now()
		ORDER BY created_at DESC LIMIT 1`, userID)
	c, err := scanCart(row)
	if err == nil {
		_, _ = s.Pool.Exec(ctx, `UPDATE carts SET expires_at = $2, updated_at = now() WHERE id = $1`, c.ID, expiresAt)
		return c, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Cart{}, err
	}
	row = s.Pool.QueryRow(ctx, `
		INSERT INTO carts (user_id, expires_at) VALUES ($1, $2)
		RETURNING `+cartColumns, userID, expiresAt)
	return scanCart(row)
}

// EnsureCartByAnon loads the guest cart or creates one.
func (s *PGStore) EnsureCartByAnon(ctx context.Context, anonID string, expiresAt time.Time) (Cart, error) {
	row := s.Pool.QueryRow(ctx, `
		SELECT `+cartColumns+` FROM carts
		WHERE anon_id = $1 AND expires_at > now()
		ORDER BY created_at DESC LIMIT 1`, anonID)
	c, err := scanCart(row)
	if err == nil {
		_, _ = s.Pool.Exec(ctx, `UPDATE carts SET expires_at = $2, updated_at = now() WHERE id = $1`, c.ID, expiresAt)
		return c, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Cart{}, err
	}
	row = s.Pool.QueryRow(ctx, `
		INSERT INTO carts (anon_id, expires_at) VALUES ($1, $2)
		RETURNING `+cartColumns, anonID, expiresAt)
	return scanCart(row)
}

// GetCart fetches a cart by id.
func (s *PGStore) GetCart(ctx context.Context, id uuid.UUID) (Cart, error) {
	row := s.Pool.QueryRow(ctx, `SELECT `+cartColumns+` FROM carts WHERE id = $1`, id)
	c, err := scanCart(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Cart{}, ErrNotFound
	}
	return c, err
}

// UpsertItem inserts a line item or replaces quantity and deposit choice for
// an existing variation in the cart.
func (s *PGStore) UpsertItem(ctx context.Context, cartID, variationID uuid.UUID, qty int, depositPct *decimal.Decimal) (Item, error) {
	var pct *string
	if depositPct != nil {
		v := depositPct.String()
		pct = &v
	}
	row := s.Pool.QueryRow(ctx, `
		INSERT INTO cart_items (cart_id, variation_id, quantity, deposit_percent)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (cart_id, variation_id)
		DO UPDATE SET quantity = EXCLUDED.quantity, deposit_percent = EXCLUDED.deposit_percent
		RETURNING id, cart_id, variation_id, quantity, deposit_percent::text`,
		cartID, variationID, qty, pct)
	return scanItem(row)
}

func scanItem(row pgx.Row) (Item, error) {
	var it Item
	var pct *string
	if err := row.Scan(&it.ID, &it.CartID, &it.VariationID, &it.Quantity, &pct); err != nil {
		return Item{}, err
	}
	if pct != nil {
		d, err := decimal.NewFromString(*pct)
		if err != nil {
			return Item{}, fmt.Errorf("parse deposit_percent: %w", err)
		}
		it.DepositPercent = &d
	}
	return it, nil
}

// RemoveItem deletes one line item.
func (s *PGStore) RemoveItem(ctx context.Context, cartID, itemID uuid.UUID) error {
	tag, err := s.Pool.Exec(ctx, `DELETE FROM cart_items WHERE id = $1 AND cart_id = $2`, itemID, cartID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListItems returns a cart's line items.
func (s *PGStore) ListItems(ctx context.Context, cartID uuid.UUID) ([]Item, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT id, cart_id, variation_id, quantity, deposit_percent::text
		FROM cart_items WHERE cart_id = $1
		ORDER BY id`, cartID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// ClearCart removes all items, used after successful checkout.
func (s *PGStore) ClearCart(ctx context.Context, cartID uuid.UUID) error {
	_, err := s.Pool.Exec(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, cartID)
	return err
}
