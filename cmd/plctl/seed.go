package main

import (
	"context"
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/palletline-systems/palletline-stack/internal/database"
)

var (
	seedTenants    int
	seedWarehouses int
	seedProducts   int
	seedLocations  int
	seedRand       int64
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Populate the database with development data",
	Long:  "seed inserts fake tenants, warehouses, products and locations for local development. Never run against production.",
	RunE: func(cmd *cobra.Command, args []string) error {
		faker := gofakeit.New(seedRand)

		ctx := context.Background()
		pool, err := database.NewPool(ctx, cfg.Database.URL(), 2)
		if err != nil {
			return err
		}
		defer pool.Close()

		s := &seeder{pool: pool, faker: faker, now: time.Now().UTC()}
		return s.run(ctx)
	},
}

func init() {
	seedCmd.Flags().IntVar(&seedTenants, "tenants", 2, "number of tenants")
	seedCmd.Flags().IntVar(&seedWarehouses, "warehouses", 2, "warehouses per tenant")
	seedCmd.Flags().IntVar(&seedProducts, "products", 50, "products per tenant")
	seedCmd.Flags().IntVar(&seedLocations, "locations", 40, "locations per warehouse")
	seedCmd.Flags().Int64Var(&seedRand, "seed", 0, "random seed (0 for time-based)")
}

type seeder struct {
	pool  *pgxpool.Pool
	faker *gofakeit.Faker
	now   time.Time
}

func (s *seeder) run(ctx context.Context) error {
	for i := 0; i < seedTenants; i++ {
		tenantID, err := s.insertTenant(ctx)
		if err != nil {
			return err
		}
		for j := 0; j < seedProducts; j++ {
			if err := s.insertProduct(ctx, tenantID); err != nil {
				return err
			}
		}
		for j := 0; j < seedWarehouses; j++ {
			warehouseID, err := s.insertWarehouse(ctx, tenantID, j)
			if err != nil {
				return err
			}
			for k := 0; k < seedLocations; k++ {
				if err := s.insertLocation(ctx, warehouseID, k); err != nil {
					return err
				}
			}
		}
		fmt.Printf("tenant %s: %d warehouses, %d products, %d locations each\n",
			tenantID, seedWarehouses, seedProducts, seedLocations)
	}
	return nil
}

func (s *seeder) insertTenant(ctx context.Context) (string, error) {
	id := uuid.NewString()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO tenants (id, name, active, created_at)
		VALUES ($1, $2, TRUE, $3)
	`, id, s.faker.Company(), s.now)
	if err != nil {
		return "", fmt.Errorf("insert tenant: %w", err)
	}
	return id, nil
}

func (s *seeder) insertWarehouse(ctx context.Context, tenantID string, n int) (string, error) {
	id := uuid.NewString()
	code := fmt.Sprintf("WH-%02d", n+1)
	name := s.faker.City() + " Distribution Center"
	_, err := s.pool.Exec(ctx, `
		INSERT INTO warehouses (id, tenant_id, code, name, timezone, active, created_at)
		VALUES ($1, $2, $3, $4, $5, TRUE, $6)
	`, id, tenantID, code, name, s.faker.TimeZoneRegion(), s.now)
	if err != nil {
		return "", fmt.Errorf("insert warehouse %s: %w", code, err)
	}
	return id, nil
}

func (s *seeder) insertProduct(ctx context.Context, tenantID string) error {
	id := uuid.NewString()
	sku := fmt.Sprintf("%s-%05d", s.faker.LetterN(3), s.faker.Number(0, 99999))
	price := decimal.NewFromFloat(s.faker.Price(0.5, 500)).Round(2)
	reorderPoint := decimal.NewFromInt(int64(s.faker.Number(5, 100)))
	safetyStock := decimal.NewFromInt(int64(s.faker.Number(2, 30)))

	tempZone := ""
	if s.faker.Bool() && s.faker.Bool() {
		tempZone = s.faker.RandomString([]string{"CHILLED", "FROZEN"})
	}
	hazmat := s.faker.Number(0, 99) < 5

	_, err := s.pool.Exec(ctx, `
		INSERT INTO products (id, tenant_id, sku, name, reorder_point, safety_stock,
		                      unit_price, temperature_zone, hazmat, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9, TRUE)
	`, id, tenantID, sku, s.faker.ProductName(), reorderPoint, safetyStock,
		price, tempZone, hazmat)
	if err != nil {
		return fmt.Errorf("insert product %s: %w", sku, err)
	}
	return nil
}

func (s *seeder) insertLocation(ctx context.Context, warehouseID string, n int) error {
	id := uuid.NewString()
	zone := string(rune('A' + n/10))
	code := fmt.Sprintf("%s-%02d", zone, n%10+1)

	locType := "PICK"
	switch {
	case n%10 == 9:
		locType = "BULK"
	case n == 0:
		locType = "RECEIVE"
	}

	tempZone := ""
	if zone == "C" {
		tempZone = "CHILLED"
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO locations (id, warehouse_id, code, zone, type, pick_sequence,
		                       utilization_pct, distance_from_dock, pick_frequency,
		                       temperature_zone, hazmat_certified, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULLIF($10, ''), $11, TRUE)
	`, id, warehouseID, code, zone, locType, n+1,
		s.faker.Float64Range(0, 95), s.faker.Float64Range(5, 200),
		s.faker.Float64Range(0, 50), tempZone, zone == "A")
	if err != nil {
		return fmt.Errorf("insert location %s: %w", code, err)
	}
	return nil
}
