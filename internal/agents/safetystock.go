package agents

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/palletline-systems/palletline-stack/internal/agent"
	"github.com/palletline-systems/palletline-stack/internal/analytics"
	"github.com/palletline-systems/palletline-stack/internal/event"
	"github.com/palletline-systems/palletline-stack/internal/inventory"
)

// Safety stock sizing assumptions. Lead time statistics would come from the
// purchasing module; until then the recalculation uses fixed planning values.
const (
	serviceLevelZ95 = 1.65
	leadTimeDays    = 7.0
	leadTimeStdDev  = 2.0
)

// SafetyStockAgent resizes every product's safety stock from the trailing
// demand statistics using the z-score formula.
type SafetyStockAgent struct {
	catalog   inventory.CatalogRepository
	movements inventory.MovementRepository
	now       func() time.Time
}

// NewSafetyStockAgent creates the safety-stock-recalc agent.
func NewSafetyStockAgent(catalog inventory.CatalogRepository, movements inventory.MovementRepository) *SafetyStockAgent {
	return &SafetyStockAgent{
		catalog:   catalog,
		movements: movements,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the agent clock. Test hook.
func (a *SafetyStockAgent) SetClock(now func() time.Time) { a.now = now }

func (a *SafetyStockAgent) Name() string        { return "safety-stock-recalc" }
func (a *SafetyStockAgent) Description() string { return "resizes safety stock from demand statistics" }
func (a *SafetyStockAgent) SubscribesTo() []string {
	return []string{event.TypeScheduledSafetyStock}
}

func (a *SafetyStockAgent) Handle(ctx context.Context, env *event.Envelope, ec *agent.ExecContext) (*agent.Result, error) {
	products, err := a.catalog.FindActiveProducts(ctx, ec.TenantID)
	if err != nil {
		return nil, fmt.Errorf("load products: %w", err)
	}
	if len(products) == 0 {
		return agent.OK("no active products"), nil
	}

	now := a.now()
	since := now.Add(-analysisWindow)
	recalculated := make(map[string]string, len(products))

	for _, p := range products {
		movements, err := a.movements.FindMovements(ctx, inventory.MovementFilter{
			TenantID:  ec.TenantID,
			ProductID: p.ID,
			Type:      inventory.MovementShip,
			Since:     since,
			Until:     now,
		})
		if err != nil {
			return nil, fmt.Errorf("load movements for %s: %w", p.ID, err)
		}

		daily := bucketDaily(movements, since, now)
		ss := analytics.SafetyStock(analytics.SafetyStockInput{
			ServiceLevelZ:   serviceLevelZ95,
			LeadTimeDays:    leadTimeDays,
			LeadTimeStdDev:  leadTimeStdDev,
			DailyDemandMean: analytics.Mean(daily),
			DailyDemandStd:  analytics.StdDev(daily),
		})

		quantity := decimal.NewFromFloat(ss).Ceil()
		if err := a.catalog.UpdateProductSafetyStock(ctx, ec.TenantID, p.ID, quantity); err != nil {
			return nil, fmt.Errorf("persist safety stock for %s: %w", p.ID, err)
		}
		recalculated[p.ID] = quantity.String()
	}

	var payload ScheduledPayload
	_ = env.DecodePayload(&payload)

	derived, err := env.Derive(event.TypeSafetyStockRecalculated, SafetyStockRecalculatedPayload{
		WarehouseID:  payload.WarehouseID,
		Recalculated: len(recalculated),
		SafetyStocks: recalculated,
	}, event.Actor{Type: event.ActorAgent, ID: a.Name()})
	if err != nil {
		return nil, fmt.Errorf("derive recalculation event: %w", err)
	}
	return agent.OK(fmt.Sprintf("recalculated %d products", len(recalculated)), derived), nil
}

// bucketDaily sums movement quantities into consecutive 1-day buckets.
func bucketDaily(movements []*inventory.Movement, since, until time.Time) []float64 {
	days := int(until.Sub(since).Hours()/24) + 1
	series := make([]float64, days)
	for _, mv := range movements {
		idx := int(mv.OccurredAt.Sub(since).Hours() / 24)
		if idx < 0 || idx >= days {
			continue
		}
		qty, _ := mv.Quantity.Float64()
		series[idx] += qty
	}
	return series
}
