package inventory

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// StockFilter narrows stock-level queries. Zero values mean "no constraint".
type StockFilter struct {
	TenantID    string
	WarehouseID string
	ProductID   string
	VariantID   string
	LocationID  string
	Limit       int
}

// StockRepository persists stock levels. Update performs the version CAS the
// mutator relies on.
type StockRepository interface {
	GetStockLevel(ctx context.Context, id string) (*StockLevel, error)
	FindStockLevels(ctx context.Context, f StockFilter) ([]*StockLevel, error)
	CreateStockLevel(ctx context.Context, level *StockLevel) error

	// UpdateStockLevel writes the level iff the stored version equals
	// expectedVersion, returning ErrOptimisticLockConflict otherwise.
	UpdateStockLevel(ctx context.Context, level *StockLevel, expectedVersion int64) error
}

// LotRepository persists lot batches.
type LotRepository interface {
	GetLot(ctx context.Context, id string) (*Lot, error)
	FindLotsByProduct(ctx context.Context, tenantID, productID string) ([]*Lot, error)

	// FindExpiredLots returns lots whose expiration date is before the cutoff
	// and whose status still permits picking.
	FindExpiredLots(ctx context.Context, tenantID string, before time.Time) ([]*Lot, error)

	CreateLot(ctx context.Context, lot *Lot) error
	UpdateLotStatus(ctx context.Context, id string, status LotStatus) error
}

// ReservationRepository persists reservations.
type ReservationRepository interface {
	GetReservation(ctx context.Context, id string) (*Reservation, error)
	FindReservationsByReference(ctx context.Context, tenantID, referenceType, referenceID string) ([]*Reservation, error)
	CreateReservation(ctx context.Context, res *Reservation) error
	UpdateReservationStatus(ctx context.Context, id string, status ReservationStatus) error
}

// CatalogRepository reads products and locations.
type CatalogRepository interface {
	GetProduct(ctx context.Context, tenantID, productID string) (*Product, error)
	FindActiveProducts(ctx context.Context, tenantID string) ([]*Product, error)
	UpdateProductClasses(ctx context.Context, tenantID, productID, abcClass, xyzClass string) error
	UpdateProductSafetyStock(ctx context.Context, tenantID, productID string, safetyStock decimal.Decimal) error

	GetLocation(ctx context.Context, id string) (*Location, error)
	FindActiveLocations(ctx context.Context, warehouseID string) ([]*Location, error)
}
