package agents

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/palletline-systems/palletline-stack/internal/agent"
	"github.com/palletline-systems/palletline-stack/internal/allocation"
	"github.com/palletline-systems/palletline-stack/internal/event"
	"github.com/palletline-systems/palletline-stack/internal/inventory"
)

// referenceTypeOrder names the reservation reference for sales orders.
const referenceTypeOrder = "SALES_ORDER"

// FefoAgent reserves stock for placed orders in first-expire-first-out
// order: for each line it allocates across lots, creates reservations, and
// bumps the reserved quantity on the covering stock levels. Idempotent on
// the order reference: a redelivery carries over the reservations an earlier
// delivery persisted, allocates only the uncovered remainder, and emits the
// allocation event again.
type FefoAgent struct {
	stock        inventory.StockRepository
	lots         inventory.LotRepository
	reservations inventory.ReservationRepository
	catalog      inventory.CatalogRepository
	mutator      *inventory.Mutator
	now          func() time.Time
}

// NewFefoAgent creates the fefo-reservation agent.
func NewFefoAgent(
	stock inventory.StockRepository,
	lots inventory.LotRepository,
	reservations inventory.ReservationRepository,
	catalog inventory.CatalogRepository,
	mutator *inventory.Mutator,
) *FefoAgent {
	return &FefoAgent{
		stock:        stock,
		lots:         lots,
		reservations: reservations,
		catalog:      catalog,
		mutator:      mutator,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the agent clock. Test hook.
func (a *FefoAgent) SetClock(now func() time.Time) { a.now = now }

func (a *FefoAgent) Name() string        { return "fefo-reservation" }
func (a *FefoAgent) Description() string { return "reserves stock for placed orders in FEFO order" }
func (a *FefoAgent) SubscribesTo() []string {
	return []string{event.TypeOrderPlaced}
}

func (a *FefoAgent) Handle(ctx context.Context, env *event.Envelope, ec *agent.ExecContext) (*agent.Result, error) {
	var payload OrderPlacedPayload
	if err := env.DecodePayload(&payload); err != nil {
		return agent.Fail(fmt.Sprintf("malformed payload: %v", err)), nil
	}
	if payload.OrderID == "" || len(payload.Lines) == 0 {
		return agent.Fail("payload missing order_id or lines"), nil
	}

	// Reservations persisted by an earlier delivery. A redelivery resumes
	// from them: covered quantity is carried into the payload, only the
	// remainder is allocated, and the allocation event is emitted again so a
	// crash before publication never strands the order.
	existing, err := a.reservations.FindReservationsByReference(ctx, ec.TenantID, referenceTypeOrder, payload.OrderID)
	if err != nil {
		return nil, fmt.Errorf("check existing reservations: %w", err)
	}

	out := OrderAllocationPayload{
		OrderID:       payload.OrderID,
		WarehouseID:   payload.WarehouseID,
		FullyReserved: true,
		Shortfalls:    make(map[string]string),
	}
	now := a.now()

	for _, line := range payload.Lines {
		covered := decimal.Zero
		for _, res := range existing {
			if res.ReferenceLine != line.LineID {
				continue
			}
			covered = covered.Add(res.Quantity)
			out.Lines = append(out.Lines, AllocationLine{
				LineID:        line.LineID,
				ProductID:     res.ProductID,
				LotID:         res.LotID,
				LocationID:    a.locationOf(ctx, res.StockLevelID),
				Quantity:      res.Quantity,
				ReservationID: res.ID,
			})
		}

		remaining := line.Quantity.Sub(covered)
		if remaining.Sign() <= 0 {
			continue
		}

		result, err := a.allocateLine(ctx, ec.TenantID, payload.WarehouseID, line, remaining, now)
		if err != nil {
			return nil, err
		}
		if !result.FullyAllocated {
			out.FullyReserved = false
			out.Shortfalls[line.LineID] = result.ShortfallQuantity.String()
		}

		for _, alloc := range result.Lines {
			resID, err := a.reserve(ctx, ec.TenantID, payload.OrderID, line, alloc, now)
			if err != nil {
				return nil, err
			}
			out.Lines = append(out.Lines, AllocationLine{
				LineID:        line.LineID,
				ProductID:     line.ProductID,
				LotID:         alloc.LotID,
				LocationID:    alloc.LocationID,
				Quantity:      alloc.Quantity,
				ReservationID: resID,
			})
		}
	}

	eventType := event.TypeOrderFullyAllocated
	if !out.FullyReserved {
		eventType = event.TypeOrderPartiallyAllocated
	}
	if len(out.Shortfalls) == 0 {
		out.Shortfalls = nil
	}

	derived, err := env.Derive(eventType, out, event.Actor{Type: event.ActorAgent, ID: a.Name()})
	if err != nil {
		return nil, fmt.Errorf("derive allocation event: %w", err)
	}
	msg := fmt.Sprintf("reserved %d lines for order %s", len(out.Lines), payload.OrderID)
	if len(existing) > 0 {
		msg = fmt.Sprintf("resumed order %s with %d lines reserved", payload.OrderID, len(out.Lines))
	}
	return agent.OK(msg, derived), nil
}

// locationOf resolves the location behind a stock level. Best effort, for
// payload reporting only.
func (a *FefoAgent) locationOf(ctx context.Context, stockLevelID string) string {
	level, err := a.stock.GetStockLevel(ctx, stockLevelID)
	if err != nil {
		return ""
	}
	return level.LocationID
}

// allocateLine gathers the candidate sources for one demand line and runs
// the FEFO allocator over them for the given quantity.
func (a *FefoAgent) allocateLine(ctx context.Context, tenantID, warehouseID string, line OrderLine, quantity decimal.Decimal, now time.Time) (*allocation.Result, error) {
	levels, err := a.stock.FindStockLevels(ctx, inventory.StockFilter{
		TenantID:    tenantID,
		WarehouseID: warehouseID,
		ProductID:   line.ProductID,
		VariantID:   line.VariantID,
	})
	if err != nil {
		return nil, fmt.Errorf("load stock levels for %s: %w", line.ProductID, err)
	}

	sources := make([]allocation.Source, 0, len(levels))
	for _, level := range levels {
		src := allocation.Source{Level: level}
		if level.LotID != "" {
			lot, err := a.lots.GetLot(ctx, level.LotID)
			if err != nil {
				return nil, fmt.Errorf("load lot %s: %w", level.LotID, err)
			}
			src.Lot = lot
		}
		if loc, err := a.catalog.GetLocation(ctx, level.LocationID); err == nil {
			src.Location = loc
		}
		sources = append(sources, src)
	}

	result := allocation.Allocate(allocation.Request{
		ProductID:   line.ProductID,
		VariantID:   line.VariantID,
		WarehouseID: warehouseID,
		Quantity:    quantity,
	}, sources, now)
	return &result, nil
}

// reserve persists one allocation line: a reservation row plus the reserved
// bump on the stock level.
func (a *FefoAgent) reserve(ctx context.Context, tenantID, orderID string, line OrderLine, alloc allocation.Line, now time.Time) (string, error) {
	res := &inventory.Reservation{
		ID:            uuid.New().String(),
		TenantID:      tenantID,
		ProductID:     line.ProductID,
		VariantID:     line.VariantID,
		StockLevelID:  alloc.StockLevelID,
		LotID:         alloc.LotID,
		Quantity:      alloc.Quantity,
		ReferenceType: referenceTypeOrder,
		ReferenceID:   orderID,
		ReferenceLine: line.LineID,
		Status:        inventory.ReservationActive,
		CreatedAt:     now,
	}
	if err := a.reservations.CreateReservation(ctx, res); err != nil {
		return "", fmt.Errorf("create reservation: %w", err)
	}

	_, err := a.mutator.AdjustWithRetry(ctx, alloc.StockLevelID, inventory.Deltas{
		Reserved: alloc.Quantity,
	})
	if err != nil {
		return "", fmt.Errorf("reserve stock on %s: %w", alloc.StockLevelID, err)
	}
	return res.ID, nil
}
