// Command seeder loads a small demo dataset: a vendor with tiered-price
// variations, deposit settings and interest-rate rules. Useful for local
// development and sandbox demos.
package main

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/sokoni-dev/backend-sokoni/internal/catalog"
	"github.com/sokoni-dev/backend-sokoni/internal/config"
	"github.com/sokoni-dev/backend-sokoni/internal/db"
	"github.com/sokoni-dev/backend-sokoni/internal/pricing"
	"github.com/sokoni-dev/backend-sokoni/internal/rates"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	if err := db.Migrate(db.MigrateURL(cfg.DatabaseURL)); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("connect database: %v", err)
	}
	defer pool.Close()

	catalogStore := &catalog.PGStore{Pool: pool}
	ratesStore := &rates.PGStore{Pool: pool}
	vendorID := uuid.New()

	type seedVariation struct {
		v     catalog.Variation
		tiers []pricing.PriceTier
		rules []pricing.InterestRateRule
	}
	seeds := []seedVariation{
		{
			v: catalog.Variation{
				VendorID:       vendorID,
				Name:           "Solar Generator 500W",
				SKU:            "GEN-500",
				BasePrice:      dec("100"),
				MOQ:            5,
				DepositEnabled: true,
				DepositPercent: dec("30"),
			},
			tiers: []pricing.PriceTier{
				{MinQuantity: 1, MaxQuantity: 10, Price: dec("100")},
				{MinQuantity: 11, MaxQuantity: 50, Price: dec("90")},
				{MinQuantity: 51, MaxQuantity: 0, Price: dec("80")},
			},
			rules: []pricing.InterestRateRule{
				{LowerRange: dec("20"), UpperRange: dec("40"), Rate: dec("5")},
				{LowerRange: dec("41"), UpperRange: dec("70"), Rate: dec("3"), MustPayShipping: true},
			},
		},
		{
			v: catalog.Variation{
				VendorID:  vendorID,
				Name:      "Ceramic Water Filter",
				SKU:       "FIL-CER",
				BasePrice: dec("25.50"),
				MOQ:       1,
			},
			tiers: []pricing.PriceTier{
				{MinQuantity: 1, MaxQuantity: 99, Price: dec("25.50")},
				{MinQuantity: 100, MaxQuantity: 0, Price: dec("21.75")},
			},
		},
	}

	for _, seed := range seeds {
		created, err := catalogStore.CreateVariation(ctx, seed.v)
		if err != nil {
			log.Fatalf("create variation %s: %v", seed.v.Name, err)
		}
		if _, err := catalogStore.ReplaceTiers(ctx, created.ID, seed.tiers); err != nil {
			log.Fatalf("seed tiers for %s: %v", seed.v.Name, err)
		}
		if len(seed.rules) > 0 {
			for i := range seed.rules {
				seed.rules[i].VariationID = created.ID
			}
			if _, err := ratesStore.ReplaceRules(ctx, created.ID, seed.rules); err != nil {
				log.Fatalf("seed rules for %s: %v", seed.v.Name, err)
			}
		}
		log.Printf("seeded %s (%s)", created.Name, created.ID)
	}
	log.Printf("seeding complete, vendor %s", vendorID)
}
