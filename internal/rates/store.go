package rates

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/sokoni-dev/backend-sokoni/internal/pricing"
)

// Rule is a stored interest-rate rule row.
type Rule struct {
	ID              uuid.UUID       `json:"id"`
	VariationID     uuid.UUID       `json:"variation_id"`
	LowerRange      decimal.Decimal `json:"lower_range"`
	UpperRange      decimal.Decimal `json:"upper_range"`
	Rate            decimal.Decimal `json:"rate"`
	MustPayShipping bool            `json:"must_pay_shipping"`
}

// RateRule converts the stored row into the pricing engine's rule shape.
func (r Rule) RateRule() pricing.InterestRateRule {
	return pricing.InterestRateRule{
		VariationID:     r.VariationID,
		LowerRange:      r.LowerRange,
		UpperRange:      r.UpperRange,
		Rate:            r.Rate,
		MustPayShipping: r.MustPayShipping,
	}
}

// PGStore persists interest-rate rules in Postgres.
type PGStore struct {
	Pool *pgxpool.Pool
}

func scanRule(row pgx.Row) (Rule, error) {
	var r Rule
	var lower, upper, rate string
	if err := row.Scan(&r.ID, &r.VariationID, &lower, &upper, &rate, &r.MustPayShipping); err != nil {
		return Rule{}, err
	}
	var err error
	if r.LowerRange, err = decimal.NewFromString(lower); err != nil {
		return Rule{}, fmt.Errorf("parse lower_range: %w", err)
	}
	if r.UpperRange, err = decimal.NewFromString(upper); err != nil {
		return Rule{}, fmt.Errorf("parse upper_range: %w", err)
	}
	if r.Rate, err = decimal.NewFromString(rate); err != nil {
		return Rule{}, fmt.Errorf("parse rate: %w", err)
	}
	return r, nil
}

// ReplaceRules swaps the rule set for a variation in one transaction.
func (s *PGStore) ReplaceRules(ctx context.Context, variationID uuid.UUID, rules []pricing.InterestRateRule) ([]Rule, error) {
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if _, err := tx.Exec(ctx, `DELETE FROM interest_rate_rules WHERE variation_id = $1`, variationID); err != nil {
		return nil, err
	}
	out := make([]Rule, 0, len(rules))
	for _, r := range rules {
		row := tx.QueryRow(ctx, `
			INSERT INTO interest_rate_rules (variation_id, lower_range, upper_range, rate, must_pay_shipping)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id, variation_id, lower_range::text, upper_range::text, rate::text, must_pay_shipping`,
			variationID, r.LowerRange.String(), r.UpperRange.String(), r.Rate.String(), r.MustPayShipping)
		stored, err := scanRule(row)
		if err != nil {
			return nil, err
		}
		out = append(out, stored)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return out, nil
}

// ListRules returns the rules for one variation ordered by lower range.
func (s *PGStore) ListRules(ctx context.Context, variationID uuid.UUID) ([]Rule, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT id, variation_id, lower_range::text, upper_range::text, rate::text, must_pay_shipping
		FROM interest_rate_rules WHERE variation_id = $1
		ORDER BY lower_range`, variationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Rule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListRulesForVariations loads rules for a batch of variations, keyed by
// variation id. Used by the cart quote and checkout paths.
func (s *PGStore) ListRulesForVariations(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID][]pricing.InterestRateRule, error) {
	if len(ids) == 0 {
		return map[uuid.UUID][]pricing.InterestRateRule{}, nil
	}
	rows, err := s.Pool.Query(ctx, `
		SELECT id, variation_id, lower_range::text, upper_range::text, rate::text, must_pay_shipping
		FROM interest_rate_rules WHERE variation_id = ANY($1)
		ORDER BY variation_id, lower_range`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[uuid.UUID][]pricing.InterestRateRule, len(ids))
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		out[r.VariationID] = append(out[r.VariationID], r.RateRule())
	}
	return out, rows.Err()
}
