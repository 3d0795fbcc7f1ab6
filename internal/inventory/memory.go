package inventory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// MemoryRepository is an in-memory implementation of every inventory
// repository, for tests and single-process setups.
type MemoryRepository struct {
	mu           sync.RWMutex
	stockLevels  map[string]*StockLevel
	lots         map[string]*Lot
	reservations map[string]*Reservation
	products     map[string]*Product
	locations    map[string]*Location
	movements    []*Movement
}

// NewMemoryRepository creates an empty in-memory inventory store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		stockLevels:  make(map[string]*StockLevel),
		lots:         make(map[string]*Lot),
		reservations: make(map[string]*Reservation),
		products:     make(map[string]*Product),
		locations:    make(map[string]*Location),
	}
}

// --- StockRepository ---

func (r *MemoryRepository) GetStockLevel(_ context.Context, id string) (*StockLevel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	level, ok := r.stockLevels[id]
	if !ok {
		return nil, fmt.Errorf("%w: stock level %s", ErrNotFound, id)
	}
	cp := *level
	return &cp, nil
}

func (r *MemoryRepository) FindStockLevels(_ context.Context, f StockFilter) ([]*StockLevel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*StockLevel
	for _, l := range r.stockLevels {
		if f.TenantID != "" && l.TenantID != f.TenantID {
			continue
		}
		if f.WarehouseID != "" && l.WarehouseID != f.WarehouseID {
			continue
		}
		if f.ProductID != "" && l.ProductID != f.ProductID {
			continue
		}
		if f.VariantID != "" && l.VariantID != f.VariantID {
			continue
		}
		if f.LocationID != "" && l.LocationID != f.LocationID {
			continue
		}
		cp := *l
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (r *MemoryRepository) CreateStockLevel(_ context.Context, level *StockLevel) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.stockLevels[level.ID]; exists {
		return fmt.Errorf("stock level %s already exists", level.ID)
	}
	cp := *level
	r.stockLevels[level.ID] = &cp
	return nil
}

func (r *MemoryRepository) UpdateStockLevel(_ context.Context, level *StockLevel, expectedVersion int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.stockLevels[level.ID]
	if !ok {
		return fmt.Errorf("%w: stock level %s", ErrNotFound, level.ID)
	}
	if current.Version != expectedVersion {
		return fmt.Errorf("%w: stock level %s at version %d, expected %d",
			ErrOptimisticLockConflict, level.ID, current.Version, expectedVersion)
	}
	cp := *level
	r.stockLevels[level.ID] = &cp
	return nil
}

// --- LotRepository ---

func (r *MemoryRepository) GetLot(_ context.Context, id string) (*Lot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	lot, ok := r.lots[id]
	if !ok {
		return nil, fmt.Errorf("%w: lot %s", ErrNotFound, id)
	}
	cp := *lot
	return &cp, nil
}

func (r *MemoryRepository) FindLotsByProduct(_ context.Context, tenantID, productID string) ([]*Lot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Lot
	for _, l := range r.lots {
		if l.TenantID == tenantID && l.ProductID == productID {
			cp := *l
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MemoryRepository) FindExpiredLots(_ context.Context, tenantID string, before time.Time) ([]*Lot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Lot
	for _, l := range r.lots {
		if l.TenantID != tenantID {
			continue
		}
		if l.Status != LotAvailable && l.Status != LotReleased {
			continue
		}
		if l.ExpirationDate != nil && l.ExpirationDate.Before(before) {
			cp := *l
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MemoryRepository) CreateLot(_ context.Context, lot *Lot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.lots[lot.ID]; exists {
		return fmt.Errorf("lot %s already exists", lot.ID)
	}
	cp := *lot
	r.lots[lot.ID] = &cp
	return nil
}

func (r *MemoryRepository) UpdateLotStatus(_ context.Context, id string, status LotStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	lot, ok := r.lots[id]
	if !ok {
		return fmt.Errorf("%w: lot %s", ErrNotFound, id)
	}
	lot.Status = status
	return nil
}

// --- ReservationRepository ---

func (r *MemoryRepository) GetReservation(_ context.Context, id string) (*Reservation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	res, ok := r.reservations[id]
	if !ok {
		return nil, fmt.Errorf("%w: reservation %s", ErrNotFound, id)
	}
	cp := *res
	return &cp, nil
}

func (r *MemoryRepository) FindReservationsByReference(_ context.Context, tenantID, referenceType, referenceID string) ([]*Reservation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Reservation
	for _, res := range r.reservations {
		if res.TenantID == tenantID && res.ReferenceType == referenceType && res.ReferenceID == referenceID {
			cp := *res
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MemoryRepository) CreateReservation(_ context.Context, res *Reservation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.reservations[res.ID]; exists {
		return fmt.Errorf("reservation %s already exists", res.ID)
	}
	cp := *res
	r.reservations[res.ID] = &cp
	return nil
}

func (r *MemoryRepository) UpdateReservationStatus(_ context.Context, id string, status ReservationStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	res, ok := r.reservations[id]
	if !ok {
		return fmt.Errorf("%w: reservation %s", ErrNotFound, id)
	}
	res.Status = status
	return nil
}

// --- CatalogRepository ---

func (r *MemoryRepository) GetProduct(_ context.Context, tenantID, productID string) (*Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.products[productID]
	if !ok || p.TenantID != tenantID {
		return nil, fmt.Errorf("%w: product %s", ErrNotFound, productID)
	}
	cp := *p
	return &cp, nil
}

func (r *MemoryRepository) FindActiveProducts(_ context.Context, tenantID string) ([]*Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Product
	for _, p := range r.products {
		if p.TenantID == tenantID && p.Active {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MemoryRepository) UpdateProductClasses(_ context.Context, tenantID, productID, abcClass, xyzClass string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.products[productID]
	if !ok || p.TenantID != tenantID {
		return fmt.Errorf("%w: product %s", ErrNotFound, productID)
	}
	p.AbcClass = abcClass
	p.XyzClass = xyzClass
	return nil
}

func (r *MemoryRepository) UpdateProductSafetyStock(_ context.Context, tenantID, productID string, safetyStock decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.products[productID]
	if !ok || p.TenantID != tenantID {
		return fmt.Errorf("%w: product %s", ErrNotFound, productID)
	}
	p.SafetyStock = safetyStock
	return nil
}

func (r *MemoryRepository) GetLocation(_ context.Context, id string) (*Location, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	loc, ok := r.locations[id]
	if !ok {
		return nil, fmt.Errorf("%w: location %s", ErrNotFound, id)
	}
	cp := *loc
	return &cp, nil
}

func (r *MemoryRepository) FindActiveLocations(_ context.Context, warehouseID string) ([]*Location, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Location
	for _, loc := range r.locations {
		if loc.WarehouseID == warehouseID && loc.Active {
			cp := *loc
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PickSequence < out[j].PickSequence })
	return out, nil
}

// --- MovementRepository ---

func (r *MemoryRepository) CreateMovement(_ context.Context, mv *Movement) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *mv
	r.movements = append(r.movements, &cp)
	return nil
}

func (r *MemoryRepository) FindMovements(_ context.Context, f MovementFilter) ([]*Movement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Movement
	for _, mv := range r.movements {
		if f.TenantID != "" && mv.TenantID != f.TenantID {
			continue
		}
		if f.WarehouseID != "" && mv.WarehouseID != f.WarehouseID {
			continue
		}
		if f.ProductID != "" && mv.ProductID != f.ProductID {
			continue
		}
		if f.Type != "" && mv.Type != f.Type {
			continue
		}
		if !f.Since.IsZero() && mv.OccurredAt.Before(f.Since) {
			continue
		}
		if !f.Until.IsZero() && !mv.OccurredAt.Before(f.Until) {
			continue
		}
		cp := *mv
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OccurredAt.Before(out[j].OccurredAt) })
	return out, nil
}

// AddProduct seeds a product. Test helper.
func (r *MemoryRepository) AddProduct(p *Product) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *p
	r.products[p.ID] = &cp
}

// AddLocation seeds a location. Test helper.
func (r *MemoryRepository) AddLocation(loc *Location) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *loc
	r.locations[loc.ID] = &cp
}

var (
	_ StockRepository       = (*MemoryRepository)(nil)
	_ LotRepository         = (*MemoryRepository)(nil)
	_ ReservationRepository = (*MemoryRepository)(nil)
	_ CatalogRepository     = (*MemoryRepository)(nil)
	_ MovementRepository    = (*MemoryRepository)(nil)
)
