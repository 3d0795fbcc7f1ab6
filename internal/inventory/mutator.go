package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MaxAdjustAttempts bounds the CAS retry loop in AdjustWithRetry.
const MaxAdjustAttempts = 3

// Deltas describes a quantity change applied to one stock level. Signed
// values; zero fields leave the quantity untouched. AllowNegative records an
// explicit override permitting on-hand to go below zero.
type Deltas struct {
	OnHand        decimal.Decimal
	Reserved      decimal.Decimal
	Inbound       decimal.Decimal
	Outbound      decimal.Decimal
	AllowNegative bool
}

// Mutator is the only writer of stock quantities. Every write is a
// compare-and-swap on the row version.
type Mutator struct {
	stock StockRepository
	now   func() time.Time
}

// NewMutator creates a mutator over the given stock repository.
func NewMutator(stock StockRepository) *Mutator {
	return &Mutator{
		stock: stock,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the mutator clock. Test hook.
func (m *Mutator) SetClock(now func() time.Time) { m.now = now }

// Adjust applies deltas to the stock level identified by id iff its current
// version equals expectedVersion. A lost race returns
// ErrOptimisticLockConflict; a resulting negative on-hand without the
// override returns ErrNegativeStockBlocked. On success the stored version is
// incremented and the updated level returned.
func (m *Mutator) Adjust(ctx context.Context, id string, deltas Deltas, expectedVersion int64) (*StockLevel, error) {
	level, err := m.stock.GetStockLevel(ctx, id)
	if err != nil {
		return nil, err
	}
	if level.Version != expectedVersion {
		return nil, fmt.Errorf("%w: stock level %s at version %d, expected %d",
			ErrOptimisticLockConflict, id, level.Version, expectedVersion)
	}

	next, err := apply(level, deltas, m.now())
	if err != nil {
		return nil, err
	}

	if err := m.stock.UpdateStockLevel(ctx, next, expectedVersion); err != nil {
		return nil, err
	}
	return next, nil
}

// AdjustWithRetry re-reads and retries Adjust on CAS conflicts, up to
// MaxAdjustAttempts. Non-retriable errors abort immediately.
func (m *Mutator) AdjustWithRetry(ctx context.Context, id string, deltas Deltas) (*StockLevel, error) {
	var lastErr error
	for attempt := 0; attempt < MaxAdjustAttempts; attempt++ {
		level, err := m.stock.GetStockLevel(ctx, id)
		if err != nil {
			return nil, err
		}

		updated, err := m.Adjust(ctx, id, deltas, level.Version)
		if err == nil {
			return updated, nil
		}
		if !errors.Is(err, ErrOptimisticLockConflict) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("%w: stock level %s after %d attempts: %w",
		ErrRetriesExhausted, id, MaxAdjustAttempts, lastErr)
}

// Upsert creates the stock level at version 1 when it does not exist, or
// adjusts the existing row. Used on first receipt into a
// (product, location, lot).
func (m *Mutator) Upsert(ctx context.Context, level *StockLevel, deltas Deltas) (*StockLevel, error) {
	existing, err := m.findExisting(ctx, level)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if existing != nil {
		return m.AdjustWithRetry(ctx, existing.ID, deltas)
	}

	fresh := *level
	if fresh.ID == "" {
		fresh.ID = uuid.New().String()
	}
	applied, err := apply(&fresh, deltas, m.now())
	if err != nil {
		return nil, err
	}
	applied.Version = 1
	if err := m.stock.CreateStockLevel(ctx, applied); err != nil {
		return nil, err
	}
	return applied, nil
}

func (m *Mutator) findExisting(ctx context.Context, level *StockLevel) (*StockLevel, error) {
	levels, err := m.stock.FindStockLevels(ctx, StockFilter{
		TenantID:    level.TenantID,
		WarehouseID: level.WarehouseID,
		ProductID:   level.ProductID,
		VariantID:   level.VariantID,
		LocationID:  level.LocationID,
	})
	if err != nil {
		return nil, err
	}
	for _, l := range levels {
		if l.LotID == level.LotID {
			return l, nil
		}
	}
	return nil, ErrNotFound
}

// apply returns a copy of level with deltas applied and the version bumped.
func apply(level *StockLevel, deltas Deltas, now time.Time) (*StockLevel, error) {
	next := *level
	next.OnHand = next.OnHand.Add(deltas.OnHand)
	next.Reserved = next.Reserved.Add(deltas.Reserved)
	next.Inbound = next.Inbound.Add(deltas.Inbound)
	next.Outbound = next.Outbound.Add(deltas.Outbound)

	if next.OnHand.IsNegative() && !deltas.AllowNegative {
		return nil, fmt.Errorf("%w: stock level %s would reach %s on hand",
			ErrNegativeStockBlocked, level.ID, next.OnHand.String())
	}
	if next.Reserved.IsNegative() {
		next.Reserved = decimal.Zero
	}

	next.Version = level.Version + 1
	next.LastMovementAt = now
	return &next, nil
}
