package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/palletline-systems/palletline-stack/internal/database"
)

// PostgresDirectory reads tenants and warehouses from PostgreSQL.
type PostgresDirectory struct {
	pool *pgxpool.Pool
}

// NewPostgresDirectory creates a directory over the pool.
func NewPostgresDirectory(pool *pgxpool.Pool) *PostgresDirectory {
	return &PostgresDirectory{pool: pool}
}

func (d *PostgresDirectory) q(ctx context.Context) database.Querier {
	if tx, ok := database.TxFrom(ctx); ok {
		return tx
	}
	return d.pool
}

func (d *PostgresDirectory) GetTenant(ctx context.Context, id string) (*Tenant, error) {
	row := d.q(ctx).QueryRow(ctx, `
		SELECT id, name, active, created_at
		FROM tenants
		WHERE id = $1`, id)

	var t Tenant
	if err := row.Scan(&t.ID, &t.Name, &t.Active, &t.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get tenant: %w", err)
	}
	return &t, nil
}

func (d *PostgresDirectory) ActiveTenants(ctx context.Context) ([]*Tenant, error) {
	rows, err := d.q(ctx).Query(ctx, `
		SELECT id, name, active, created_at
		FROM tenants
		WHERE active
		ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()

	var tenants []*Tenant
	for rows.Next() {
		var t Tenant
		if err := rows.Scan(&t.ID, &t.Name, &t.Active, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan tenant: %w", err)
		}
		tenants = append(tenants, &t)
	}
	return tenants, rows.Err()
}

func (d *PostgresDirectory) ActiveWarehouses(ctx context.Context, tenantID string) ([]*Warehouse, error) {
	rows, err := d.q(ctx).Query(ctx, `
		SELECT id, tenant_id, code, name, timezone, active, created_at
		FROM warehouses
		WHERE tenant_id = $1 AND active
		ORDER BY code, id`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list warehouses: %w", err)
	}
	defer rows.Close()

	var warehouses []*Warehouse
	for rows.Next() {
		var w Warehouse
		if err := rows.Scan(&w.ID, &w.TenantID, &w.Code, &w.Name, &w.Timezone, &w.Active, &w.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan warehouse: %w", err)
		}
		warehouses = append(warehouses, &w)
	}
	return warehouses, rows.Err()
}

var _ Directory = (*PostgresDirectory)(nil)
