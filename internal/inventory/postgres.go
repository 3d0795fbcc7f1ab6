package inventory

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/palletline-systems/palletline-stack/internal/database"
)

// PostgresRepository implements the inventory repositories on PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a PostgreSQL-backed inventory repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) q(ctx context.Context) database.Querier {
	if tx, ok := database.TxFrom(ctx); ok {
		return tx
	}
	return r.pool
}

// --- StockRepository ---

const stockColumns = `id, tenant_id, warehouse_id, product_id, COALESCE(variant_id, ''),
       location_id, COALESCE(lot_id, ''), on_hand, reserved, inbound, outbound,
       version, last_movement_at`

func (r *PostgresRepository) GetStockLevel(ctx context.Context, id string) (*StockLevel, error) {
	query := `SELECT ` + stockColumns + ` FROM stock_levels WHERE id = $1`

	level, err := scanStockLevel(r.q(ctx).QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: stock level %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("get stock level %s: %w", id, err)
	}
	return level, nil
}

func (r *PostgresRepository) FindStockLevels(ctx context.Context, f StockFilter) ([]*StockLevel, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, val any) {
		args = append(args, val)
		conds = append(conds, cond+"$"+strconv.Itoa(len(args)))
	}
	if f.TenantID != "" {
		add("tenant_id = ", f.TenantID)
	}
	if f.WarehouseID != "" {
		add("warehouse_id = ", f.WarehouseID)
	}
	if f.ProductID != "" {
		add("product_id = ", f.ProductID)
	}
	if f.VariantID != "" {
		add("variant_id = ", f.VariantID)
	}
	if f.LocationID != "" {
		add("location_id = ", f.LocationID)
	}

	query := `SELECT ` + stockColumns + ` FROM stock_levels`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY id"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += " LIMIT $" + strconv.Itoa(len(args))
	}

	rows, err := r.q(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find stock levels: %w", err)
	}
	defer rows.Close()

	var levels []*StockLevel
	for rows.Next() {
		level, err := scanStockLevel(rows)
		if err != nil {
			return nil, fmt.Errorf("scan stock level: %w", err)
		}
		levels = append(levels, level)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return levels, nil
}

func (r *PostgresRepository) CreateStockLevel(ctx context.Context, level *StockLevel) error {
	query := `
		INSERT INTO stock_levels (id, tenant_id, warehouse_id, product_id, variant_id,
		                          location_id, lot_id, on_hand, reserved, inbound, outbound,
		                          version, last_movement_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, NULLIF($7, ''), $8, $9, $10, $11, $12, $13)
	`
	_, err := r.q(ctx).Exec(ctx, query,
		level.ID, level.TenantID, level.WarehouseID, level.ProductID, level.VariantID,
		level.LocationID, level.LotID, level.OnHand, level.Reserved, level.Inbound,
		level.Outbound, level.Version, level.LastMovementAt,
	)
	if err != nil {
		return fmt.Errorf("create stock level %s: %w", level.ID, err)
	}
	return nil
}

// UpdateStockLevel writes the row guarded by the version CAS.
func (r *PostgresRepository) UpdateStockLevel(ctx context.Context, level *StockLevel, expectedVersion int64) error {
	query := `
		UPDATE stock_levels
		SET on_hand = $1, reserved = $2, inbound = $3, outbound = $4,
		    version = $5, last_movement_at = $6
		WHERE id = $7 AND version = $8
	`
	tag, err := r.q(ctx).Exec(ctx, query,
		level.OnHand, level.Reserved, level.Inbound, level.Outbound,
		level.Version, level.LastMovementAt, level.ID, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("update stock level %s: %w", level.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: stock level %s, expected version %d",
			ErrOptimisticLockConflict, level.ID, expectedVersion)
	}
	return nil
}

func scanStockLevel(row pgx.Row) (*StockLevel, error) {
	l := &StockLevel{}
	err := row.Scan(
		&l.ID, &l.TenantID, &l.WarehouseID, &l.ProductID, &l.VariantID,
		&l.LocationID, &l.LotID, &l.OnHand, &l.Reserved, &l.Inbound, &l.Outbound,
		&l.Version, &l.LastMovementAt,
	)
	if err != nil {
		return nil, err
	}
	return l, nil
}

// --- LotRepository ---

const lotColumns = `id, tenant_id, product_id, lot_number, status,
       expiration_date, manufacture_date, received_at`

func (r *PostgresRepository) GetLot(ctx context.Context, id string) (*Lot, error) {
	query := `SELECT ` + lotColumns + ` FROM lots WHERE id = $1`

	lot, err := scanLot(r.q(ctx).QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: lot %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("get lot %s: %w", id, err)
	}
	return lot, nil
}

func (r *PostgresRepository) FindLotsByProduct(ctx context.Context, tenantID, productID string) ([]*Lot, error) {
	query := `SELECT ` + lotColumns + ` FROM lots WHERE tenant_id = $1 AND product_id = $2 ORDER BY id`
	return r.queryLots(ctx, query, tenantID, productID)
}

func (r *PostgresRepository) FindExpiredLots(ctx context.Context, tenantID string, before time.Time) ([]*Lot, error) {
	query := `
		SELECT ` + lotColumns + `
		FROM lots
		WHERE tenant_id = $1
		  AND status IN ($2, $3)
		  AND expiration_date IS NOT NULL
		  AND expiration_date < $4
		ORDER BY expiration_date ASC
	`
	return r.queryLots(ctx, query, tenantID, LotAvailable, LotReleased, before)
}

func (r *PostgresRepository) queryLots(ctx context.Context, query string, args ...any) ([]*Lot, error) {
	rows, err := r.q(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query lots: %w", err)
	}
	defer rows.Close()

	var lots []*Lot
	for rows.Next() {
		lot, err := scanLot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan lot: %w", err)
		}
		lots = append(lots, lot)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return lots, nil
}

func (r *PostgresRepository) CreateLot(ctx context.Context, lot *Lot) error {
	query := `
		INSERT INTO lots (id, tenant_id, product_id, lot_number, status,
		                  expiration_date, manufacture_date, received_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.q(ctx).Exec(ctx, query,
		lot.ID, lot.TenantID, lot.ProductID, lot.LotNumber, lot.Status,
		lot.ExpirationDate, lot.ManufactureDate, lot.ReceivedAt,
	)
	if err != nil {
		return fmt.Errorf("create lot %s: %w", lot.ID, err)
	}
	return nil
}

func (r *PostgresRepository) UpdateLotStatus(ctx context.Context, id string, status LotStatus) error {
	tag, err := r.q(ctx).Exec(ctx, `UPDATE lots SET status = $1 WHERE id = $2`, status, id)
	if err != nil {
		return fmt.Errorf("update lot %s status: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: lot %s", ErrNotFound, id)
	}
	return nil
}

func scanLot(row pgx.Row) (*Lot, error) {
	l := &Lot{}
	err := row.Scan(
		&l.ID, &l.TenantID, &l.ProductID, &l.LotNumber, &l.Status,
		&l.ExpirationDate, &l.ManufactureDate, &l.ReceivedAt,
	)
	if err != nil {
		return nil, err
	}
	return l, nil
}

// --- ReservationRepository ---

const reservationColumns = `id, tenant_id, product_id, COALESCE(variant_id, ''),
       stock_level_id, COALESCE(lot_id, ''), quantity, quantity_fulfilled,
       reference_type, reference_id, COALESCE(reference_line, ''), status,
       expires_at, created_at`

func (r *PostgresRepository) GetReservation(ctx context.Context, id string) (*Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE id = $1`

	res, err := scanReservation(r.q(ctx).QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: reservation %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("get reservation %s: %w", id, err)
	}
	return res, nil
}

func (r *PostgresRepository) FindReservationsByReference(ctx context.Context, tenantID, referenceType, referenceID string) ([]*Reservation, error) {
	query := `
		SELECT ` + reservationColumns + `
		FROM reservations
		WHERE tenant_id = $1 AND reference_type = $2 AND reference_id = $3
		ORDER BY id
	`
	rows, err := r.q(ctx).Query(ctx, query, tenantID, referenceType, referenceID)
	if err != nil {
		return nil, fmt.Errorf("find reservations: %w", err)
	}
	defer rows.Close()

	var reservations []*Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reservation: %w", err)
		}
		reservations = append(reservations, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return reservations, nil
}

func (r *PostgresRepository) CreateReservation(ctx context.Context, res *Reservation) error {
	query := `
		INSERT INTO reservations (id, tenant_id, product_id, variant_id, stock_level_id,
		                          lot_id, quantity, quantity_fulfilled, reference_type,
		                          reference_id, reference_line, status, expires_at, created_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, NULLIF($6, ''), $7, $8, $9, $10,
		        NULLIF($11, ''), $12, $13, $14)
	`
	_, err := r.q(ctx).Exec(ctx, query,
		res.ID, res.TenantID, res.ProductID, res.VariantID, res.StockLevelID,
		res.LotID, res.Quantity, res.QuantityFulfilled, res.ReferenceType,
		res.ReferenceID, res.ReferenceLine, res.Status, res.ExpiresAt, res.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create reservation %s: %w", res.ID, err)
	}
	return nil
}

func (r *PostgresRepository) UpdateReservationStatus(ctx context.Context, id string, status ReservationStatus) error {
	tag, err := r.q(ctx).Exec(ctx, `UPDATE reservations SET status = $1 WHERE id = $2`, status, id)
	if err != nil {
		return fmt.Errorf("update reservation %s status: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: reservation %s", ErrNotFound, id)
	}
	return nil
}

func scanReservation(row pgx.Row) (*Reservation, error) {
	res := &Reservation{}
	err := row.Scan(
		&res.ID, &res.TenantID, &res.ProductID, &res.VariantID,
		&res.StockLevelID, &res.LotID, &res.Quantity, &res.QuantityFulfilled,
		&res.ReferenceType, &res.ReferenceID, &res.ReferenceLine, &res.Status,
		&res.ExpiresAt, &res.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// --- CatalogRepository ---

const productColumns = `id, tenant_id, sku, name, COALESCE(abc_class, ''), COALESCE(xyz_class, ''),
       reorder_point, safety_stock, unit_price, COALESCE(temperature_zone, ''), hazmat, active`

func (r *PostgresRepository) GetProduct(ctx context.Context, tenantID, productID string) (*Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE tenant_id = $1 AND id = $2`

	p, err := scanProduct(r.q(ctx).QueryRow(ctx, query, tenantID, productID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: product %s", ErrNotFound, productID)
		}
		return nil, fmt.Errorf("get product %s: %w", productID, err)
	}
	return p, nil
}

func (r *PostgresRepository) FindActiveProducts(ctx context.Context, tenantID string) ([]*Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE tenant_id = $1 AND active ORDER BY id`

	rows, err := r.q(ctx).Query(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("find active products: %w", err)
	}
	defer rows.Close()

	var products []*Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return products, nil
}

func (r *PostgresRepository) UpdateProductClasses(ctx context.Context, tenantID, productID, abcClass, xyzClass string) error {
	query := `UPDATE products SET abc_class = $1, xyz_class = $2 WHERE tenant_id = $3 AND id = $4`
	tag, err := r.q(ctx).Exec(ctx, query, abcClass, xyzClass, tenantID, productID)
	if err != nil {
		return fmt.Errorf("update product %s classes: %w", productID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: product %s", ErrNotFound, productID)
	}
	return nil
}

func (r *PostgresRepository) UpdateProductSafetyStock(ctx context.Context, tenantID, productID string, safetyStock decimal.Decimal) error {
	query := `UPDATE products SET safety_stock = $1 WHERE tenant_id = $2 AND id = $3`
	tag, err := r.q(ctx).Exec(ctx, query, safetyStock, tenantID, productID)
	if err != nil {
		return fmt.Errorf("update product %s safety stock: %w", productID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: product %s", ErrNotFound, productID)
	}
	return nil
}

func scanProduct(row pgx.Row) (*Product, error) {
	p := &Product{}
	err := row.Scan(
		&p.ID, &p.TenantID, &p.SKU, &p.Name, &p.AbcClass, &p.XyzClass,
		&p.ReorderPoint, &p.SafetyStock, &p.UnitPrice, &p.TemperatureZone,
		&p.Hazmat, &p.Active,
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}

const locationColumns = `id, warehouse_id, code, COALESCE(zone, ''), type, pick_sequence,
       utilization_pct, distance_from_dock, pick_frequency,
       COALESCE(temperature_zone, ''), hazmat_certified, active`

func (r *PostgresRepository) GetLocation(ctx context.Context, id string) (*Location, error) {
	query := `SELECT ` + locationColumns + ` FROM locations WHERE id = $1`

	loc, err := scanLocation(r.q(ctx).QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: location %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("get location %s: %w", id, err)
	}
	return loc, nil
}

func (r *PostgresRepository) FindActiveLocations(ctx context.Context, warehouseID string) ([]*Location, error) {
	query := `SELECT ` + locationColumns + ` FROM locations WHERE warehouse_id = $1 AND active ORDER BY pick_sequence`

	rows, err := r.q(ctx).Query(ctx, query, warehouseID)
	if err != nil {
		return nil, fmt.Errorf("find active locations: %w", err)
	}
	defer rows.Close()

	var locations []*Location
	for rows.Next() {
		loc, err := scanLocation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan location: %w", err)
		}
		locations = append(locations, loc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return locations, nil
}

func scanLocation(row pgx.Row) (*Location, error) {
	loc := &Location{}
	err := row.Scan(
		&loc.ID, &loc.WarehouseID, &loc.Code, &loc.Zone, &loc.Type, &loc.PickSequence,
		&loc.UtilizationPct, &loc.DistanceFromDock, &loc.PickFrequency,
		&loc.TemperatureZone, &loc.HazmatCertified, &loc.Active,
	)
	if err != nil {
		return nil, err
	}
	return loc, nil
}

// --- MovementRepository ---

func (r *PostgresRepository) CreateMovement(ctx context.Context, mv *Movement) error {
	query := `
		INSERT INTO movements (id, tenant_id, warehouse_id, product_id, location_id,
		                       lot_id, type, quantity, occurred_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8, $9)
	`
	_, err := r.q(ctx).Exec(ctx, query,
		mv.ID, mv.TenantID, mv.WarehouseID, mv.ProductID, mv.LocationID,
		mv.LotID, mv.Type, mv.Quantity, mv.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("create movement %s: %w", mv.ID, err)
	}
	return nil
}

func (r *PostgresRepository) FindMovements(ctx context.Context, f MovementFilter) ([]*Movement, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, val any) {
		args = append(args, val)
		conds = append(conds, cond+"$"+strconv.Itoa(len(args)))
	}
	if f.TenantID != "" {
		add("tenant_id = ", f.TenantID)
	}
	if f.WarehouseID != "" {
		add("warehouse_id = ", f.WarehouseID)
	}
	if f.ProductID != "" {
		add("product_id = ", f.ProductID)
	}
	if f.Type != "" {
		add("type = ", f.Type)
	}
	if !f.Since.IsZero() {
		add("occurred_at >= ", f.Since)
	}
	if !f.Until.IsZero() {
		add("occurred_at < ", f.Until)
	}

	query := `
		SELECT id, tenant_id, warehouse_id, product_id, location_id,
		       COALESCE(lot_id, ''), type, quantity, occurred_at
		FROM movements
	`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY occurred_at ASC"

	rows, err := r.q(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find movements: %w", err)
	}
	defer rows.Close()

	var movements []*Movement
	for rows.Next() {
		mv := &Movement{}
		if err := rows.Scan(
			&mv.ID, &mv.TenantID, &mv.WarehouseID, &mv.ProductID, &mv.LocationID,
			&mv.LotID, &mv.Type, &mv.Quantity, &mv.OccurredAt,
		); err != nil {
			return nil, fmt.Errorf("scan movement: %w", err)
		}
		movements = append(movements, mv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return movements, nil
}

var (
	_ StockRepository       = (*PostgresRepository)(nil)
	_ LotRepository         = (*PostgresRepository)(nil)
	_ ReservationRepository = (*PostgresRepository)(nil)
	_ CatalogRepository     = (*PostgresRepository)(nil)
	_ MovementRepository    = (*PostgresRepository)(nil)
)
