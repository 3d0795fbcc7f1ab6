package agents

import (
	"context"
	"fmt"
	"time"

	"github.com/palletline-systems/palletline-stack/internal/agent"
	"github.com/palletline-systems/palletline-stack/internal/analytics"
	"github.com/palletline-systems/palletline-stack/internal/event"
	"github.com/palletline-systems/palletline-stack/internal/inventory"
)

// analysisWindow is how far back the analytics agents look at movement
// history.
const analysisWindow = 90 * 24 * time.Hour

// AbcXyzAgent reclassifies every active product from the trailing shipment
// history: revenue Pareto for the ABC class, demand variability for XYZ.
// Idempotent: re-running over the same history writes the same classes.
type AbcXyzAgent struct {
	catalog   inventory.CatalogRepository
	movements inventory.MovementRepository
	now       func() time.Time
}

// NewAbcXyzAgent creates the abc-xyz-analysis agent.
func NewAbcXyzAgent(catalog inventory.CatalogRepository, movements inventory.MovementRepository) *AbcXyzAgent {
	return &AbcXyzAgent{
		catalog:   catalog,
		movements: movements,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the agent clock. Test hook.
func (a *AbcXyzAgent) SetClock(now func() time.Time) { a.now = now }

func (a *AbcXyzAgent) Name() string        { return "abc-xyz-analysis" }
func (a *AbcXyzAgent) Description() string { return "reclassifies products by revenue and demand variability" }
func (a *AbcXyzAgent) SubscribesTo() []string {
	return []string{event.TypeScheduledAbcXyzAnalysis}
}

func (a *AbcXyzAgent) Handle(ctx context.Context, env *event.Envelope, ec *agent.ExecContext) (*agent.Result, error) {
	products, err := a.catalog.FindActiveProducts(ctx, ec.TenantID)
	if err != nil {
		return nil, fmt.Errorf("load products: %w", err)
	}
	if len(products) == 0 {
		return agent.OK("no active products"), nil
	}

	now := a.now()
	since := now.Add(-analysisWindow)

	revenues := make([]analytics.ProductRevenue, 0, len(products))
	demand := make(map[string][]float64, len(products))
	for _, p := range products {
		series, err := a.weeklyDemand(ctx, ec.TenantID, p.ID, since, now)
		if err != nil {
			return nil, err
		}
		demand[p.ID] = series

		price, _ := p.UnitPrice.Float64()
		var shipped float64
		for _, qty := range series {
			shipped += qty
		}
		revenues = append(revenues, analytics.ProductRevenue{
			ProductID: p.ID,
			Revenue:   shipped * price,
		})
	}

	abc := analytics.ClassifyABC(revenues)
	classes := make(map[string]string, len(products))
	for _, p := range products {
		xyz := analytics.ClassifyXYZ(demand[p.ID])
		classes[p.ID] = abc[p.ID] + xyz
		if err := a.catalog.UpdateProductClasses(ctx, ec.TenantID, p.ID, abc[p.ID], xyz); err != nil {
			return nil, fmt.Errorf("persist classes for %s: %w", p.ID, err)
		}
	}

	var payload ScheduledPayload
	_ = env.DecodePayload(&payload)

	derived, err := env.Derive(event.TypeAbcXyzCompleted, AbcXyzCompletedPayload{
		WarehouseID: payload.WarehouseID,
		Classified:  len(classes),
		Classes:     classes,
	}, event.Actor{Type: event.ActorAgent, ID: a.Name()})
	if err != nil {
		return nil, fmt.Errorf("derive completion event: %w", err)
	}
	return agent.OK(fmt.Sprintf("classified %d products", len(classes)), derived), nil
}

// weeklyDemand buckets the product's outbound shipments into weekly totals
// across the window, oldest first. Empty weeks count as zero demand.
func (a *AbcXyzAgent) weeklyDemand(ctx context.Context, tenantID, productID string, since, until time.Time) ([]float64, error) {
	movements, err := a.movements.FindMovements(ctx, inventory.MovementFilter{
		TenantID:  tenantID,
		ProductID: productID,
		Type:      inventory.MovementShip,
		Since:     since,
		Until:     until,
	})
	if err != nil {
		return nil, fmt.Errorf("load movements for %s: %w", productID, err)
	}
	return bucketWeekly(movements, since, until), nil
}

// bucketWeekly sums movement quantities into consecutive 7-day buckets.
func bucketWeekly(movements []*inventory.Movement, since, until time.Time) []float64 {
	weeks := int(until.Sub(since).Hours()/(24*7)) + 1
	series := make([]float64, weeks)
	for _, mv := range movements {
		idx := int(mv.OccurredAt.Sub(since).Hours() / (24 * 7))
		if idx < 0 || idx >= weeks {
			continue
		}
		qty, _ := mv.Quantity.Float64()
		series[idx] += qty
	}
	return series
}
