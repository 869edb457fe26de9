package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/sokoni-dev/backend-sokoni/internal/pricing"
)

// ErrVariationNotFound is returned when a variation does not exist or is not
// owned by the requesting vendor.
var ErrVariationNotFound = errors.New("catalog: variation not found")

// Variation is a sellable product variation with its deposit configuration.
type Variation struct {
	ID             uuid.UUID       `json:"id"`
	VendorID       uuid.UUID       `json:"vendor_id"`
	Name           string          `json:"name"`
	SKU            string          `json:"sku,omitempty"`
	BasePrice      decimal.Decimal `json:"base_price"`
	MOQ            int             `json:"moq"`
	DepositEnabled bool            `json:"deposit_enabled"`
	DepositPercent decimal.Decimal `json:"deposit_percent"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Tier is a stored price tier row.
type Tier struct {
	ID          uuid.UUID       `json:"id"`
	VariationID uuid.UUID       `json:"variation_id"`
	MinQuantity int             `json:"min_quantity"`
	MaxQuantity int             `json:"max_quantity"`
	Price       decimal.Decimal `json:"price"`
}

// PriceTier converts the stored row into the pricing engine's tier shape.
func (t Tier) PriceTier() pricing.PriceTier {
	return pricing.PriceTier{
		VariationID: t.VariationID,
		MinQuantity: t.MinQuantity,
		MaxQuantity: t.MaxQuantity,
		Price:       t.Price,
	}
}

// PGStore persists variations and price tiers in Postgres.
type PGStore struct {
	Pool *pgxpool.Pool
}

const variationColumns = `id, vendor_id, name, sku, base_price::text, moq, deposit_enabled, deposit_percent::text, created_at, updated_at`

func scanVariation(row pgx.Row) (Variation, error) {
	var (
		v          Variation
		sku        *string
		basePrice  string
		depositPct string
	)
	err := row.Scan(&v.ID, &v.VendorID, &v.Name, &sku, &basePrice, &v.MOQ, &v.DepositEnabled, &depositPct, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return Variation{}, err
	}
	if sku != nil {
		v.SKU = *sku
	}
	if v.BasePrice, err = decimal.NewFromString(basePrice); err != nil {
		return Variation{}, fmt.Errorf("parse base_price: %w", err)
	}
	if v.DepositPercent, err = decimal.NewFromString(depositPct); err != nil {
		return Variation{}, fmt.Errorf("parse deposit_percent: %w", err)
	}
	return v, nil
}

// CreateVariation inserts a new variation.
func (s *PGStore) CreateVariation(ctx context.Context, v Variation) (Variation, error) {
	row := s.Pool.QueryRow(ctx, `
		INSERT INTO variations (vendor_id, name, sku, base_price, moq, deposit_enabled, deposit_percent)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7)
		RETURNING `+variationColumns,
		v.VendorID, v.Name, v.SKU, v.BasePrice.String(), v.MOQ, v.DepositEnabled, v.DepositPercent.String())
	return scanVariation(row)
}

// GetVariation fetches a variation by id.
func (s *PGStore) GetVariation(ctx context.Context, id uuid.UUID) (Variation, error) {
	row := s.Pool.QueryRow(ctx, `SELECT `+variationColumns+` FROM variations WHERE id = $1`, id)
	v, err := scanVariation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Variation{}, ErrVariationNotFound
	}
	return v, err
}

// ListVariationsByVendor returns a vendor's variations with a total count.
func (s *PGStore) ListVariationsByVendor(ctx context.Context, vendorID uuid.UUID, limit, offset int) ([]Variation, int64, error) {
	var total int64
	if err := s.Pool.QueryRow(ctx, `SELECT count(*) FROM variations WHERE vendor_id = $1`, vendorID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := s.Pool.Query(ctx, `
		SELECT `+variationColumns+` FROM variations
		WHERE vendor_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`, vendorID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]Variation, 0, limit)
	for rows.Next() {
		v, err := scanVariation(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, v)
	}
	return out, total, rows.Err()
}

// UpdateVariation updates a vendor-owned variation.
func (s *PGStore) UpdateVariation(ctx context.Context, v Variation) (Variation, error) {
	row := s.Pool.QueryRow(ctx, `
		UPDATE variations
		SET name = $3, sku = NULLIF($4, ''), base_price = $5, moq = $6,
		    deposit_enabled = $7, deposit_percent = $8, updated_at = now()
		WHERE id = $1 AND vendor_id = $2
		RETURNING `+variationColumns,
		v.ID, v.VendorID, v.Name, v.SKU, v.BasePrice.String(), v.MOQ, v.DepositEnabled, v.DepositPercent.String())
	updated, err := scanVariation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Variation{}, ErrVariationNotFound
	}
	return updated, err
}

// DeleteVariation removes a vendor-owned variation and its tiers.
func (s *PGStore) DeleteVariation(ctx context.Context, id, vendorID uuid.UUID) error {
	tag, err := s.Pool.Exec(ctx, `DELETE FROM variations WHERE id = $1 AND vendor_id = $2`, id, vendorID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrVariationNotFound
	}
	return nil
}

// ReplaceTiers swaps the tier set for a variation in one transaction.
func (s *PGStore) ReplaceTiers(ctx context.Context, variationID uuid.UUID, tiers []pricing.PriceTier) ([]Tier, error) {
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if _, err := tx.Exec(ctx, `DELETE FROM price_tiers WHERE variation_id = $1`, variationID); err != nil {
		return nil, err
	}
	out := make([]Tier, 0, len(tiers))
	for _, t := range tiers {
		var stored Tier
		var price string
		err := tx.QueryRow(ctx, `
			INSERT INTO price_tiers (variation_id, min_quantity, max_quantity, price)
			VALUES ($1, $2, $3, $4)
			RETURNING id, variation_id, min_quantity, max_quantity, price::text`,
			variationID, t.MinQuantity, t.MaxQuantity, t.Price.String()).
			Scan(&stored.ID, &stored.VariationID, &stored.MinQuantity, &stored.MaxQuantity, &price)
		if err != nil {
			return nil, err
		}
		if stored.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("parse tier price: %w", err)
		}
		out = append(out, stored)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return out, nil
}

// ListTiers returns the tiers for one variation ordered by min quantity.
func (s *PGStore) ListTiers(ctx context.Context, variationID uuid.UUID) ([]Tier, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT id, variation_id, min_quantity, max_quantity, price::text
		FROM price_tiers WHERE variation_id = $1
		ORDER BY min_quantity`, variationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Tier
	for rows.Next() {
		var t Tier
		var price string
		if err := rows.Scan(&t.ID, &t.VariationID, &t.MinQuantity, &t.MaxQuantity, &price); err != nil {
			return nil, err
		}
		if t.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("parse tier price: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ListTiersForVariations loads tiers for a batch of variations, keyed by
// variation id. Used by the cart quote and checkout paths.
func (s *PGStore) ListTiersForVariations(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID][]pricing.PriceTier, error) {
	if len(ids) == 0 {
		return map[uuid.UUID][]pricing.PriceTier{}, nil
	}
	rows, err := s.Pool.Query(ctx, `
		SELECT variation_id, min_quantity, max_quantity, price::text
		FROM price_tiers WHERE variation_id = ANY($1)
		ORDER BY variation_id, min_quantity`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[uuid.UUID][]pricing.PriceTier, len(ids))
	for rows.Next() {
		var t pricing.PriceTier
		var price string
		if err := rows.Scan(&t.VariationID, &t.MinQuantity, &t.MaxQuantity, &price); err != nil {
			return nil, err
		}
		if t.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("parse tier price: %w", err)
		}
		out[t.VariationID] = append(out[t.VariationID], t)
	}
	return out, rows.Err()
}
