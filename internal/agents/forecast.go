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

const (
	forecastWindowWeeks  = 4
	forecastHorizonWeeks = 4
)

// ForecastAgent projects weekly demand per product with a trailing moving
// average.
type ForecastAgent struct {
	catalog   inventory.CatalogRepository
	movements inventory.MovementRepository
	now       func() time.Time
}

// NewForecastAgent creates the demand-forecast agent.
func NewForecastAgent(catalog inventory.CatalogRepository, movements inventory.MovementRepository) *ForecastAgent {
	return &ForecastAgent{
		catalog:   catalog,
		movements: movements,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the agent clock. Test hook.
func (a *ForecastAgent) SetClock(now func() time.Time) { a.now = now }

func (a *ForecastAgent) Name() string        { return "demand-forecast" }
func (a *ForecastAgent) Description() string { return "projects weekly demand per product" }
func (a *ForecastAgent) SubscribesTo() []string {
	return []string{event.TypeScheduledDemandForecast}
}

func (a *ForecastAgent) Handle(ctx context.Context, env *event.Envelope, ec *agent.ExecContext) (*agent.Result, error) {
	products, err := a.catalog.FindActiveProducts(ctx, ec.TenantID)
	if err != nil {
		return nil, fmt.Errorf("load products: %w", err)
	}
	if len(products) == 0 {
		return agent.OK("no active products"), nil
	}

	now := a.now()
	since := now.Add(-analysisWindow)
	forecasts := make(map[string][]float64, len(products))

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
		series := bucketWeekly(movements, since, now)
		forecasts[p.ID] = analytics.MovingAverageForecast(series, forecastWindowWeeks, forecastHorizonWeeks)
	}

	var payload ScheduledPayload
	_ = env.DecodePayload(&payload)

	derived, err := env.Derive(event.TypeDemandForecastGenerated, DemandForecastPayload{
		WarehouseID: payload.WarehouseID,
		Horizon:     forecastHorizonWeeks,
		Forecasts:   forecasts,
	}, event.Actor{Type: event.ActorAgent, ID: a.Name()})
	if err != nil {
		return nil, fmt.Errorf("derive forecast event: %w", err)
	}
	return agent.OK(fmt.Sprintf("forecast %d products", len(forecasts)), derived), nil
}
