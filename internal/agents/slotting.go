package agents

import (
	"context"
	"fmt"

	"github.com/palletline-systems/palletline-stack/internal/agent"
	"github.com/palletline-systems/palletline-stack/internal/event"
	"github.com/palletline-systems/palletline-stack/internal/inventory"
	"github.com/palletline-systems/palletline-stack/internal/slotting"
)

// SlottingAgent reacts to goods receipts by ranking putaway locations and
// emitting the suggestions.
type SlottingAgent struct {
	catalog inventory.CatalogRepository
	scorer  *slotting.Scorer
}

// NewSlottingAgent creates the slotting-suggestion agent.
func NewSlottingAgent(catalog inventory.CatalogRepository, scorer *slotting.Scorer) *SlottingAgent {
	if scorer == nil {
		scorer = slotting.NewScorer(slotting.DefaultWeights())
	}
	return &SlottingAgent{catalog: catalog, scorer: scorer}
}

func (a *SlottingAgent) Name() string        { return "slotting-suggestion" }
func (a *SlottingAgent) Description() string { return "ranks putaway locations for received goods" }
func (a *SlottingAgent) SubscribesTo() []string {
	return []string{event.TypeGoodsReceived}
}

func (a *SlottingAgent) Handle(ctx context.Context, env *event.Envelope, ec *agent.ExecContext) (*agent.Result, error) {
	var payload GoodsReceivedPayload
	if err := env.DecodePayload(&payload); err != nil {
		return agent.Fail(fmt.Sprintf("malformed payload: %v", err)), nil
	}
	if payload.ProductID == "" || payload.WarehouseID == "" {
		return agent.Fail("payload missing product_id or warehouse_id"), nil
	}

	product, err := a.catalog.GetProduct(ctx, ec.TenantID, payload.ProductID)
	if err != nil {
		return nil, fmt.Errorf("load product: %w", err)
	}
	candidates, err := a.catalog.FindActiveLocations(ctx, payload.WarehouseID)
	if err != nil {
		return nil, fmt.Errorf("load locations: %w", err)
	}
	if len(candidates) == 0 {
		return agent.OK("no candidate locations"), nil
	}

	qty, _ := payload.Quantity.Float64()
	ranked := a.scorer.Rank(candidates, slotting.Context{
		AbcClass:            product.AbcClass,
		RequiredTemperature: product.TemperatureZone,
		Hazmat:              product.Hazmat,
		Quantity:            qty,
	})
	if len(ranked) == 0 {
		return agent.OK("no eligible locations"), nil
	}

	out := SlottingSuggestionsPayload{
		ProductID:   payload.ProductID,
		WarehouseID: payload.WarehouseID,
		Quantity:    payload.Quantity,
	}
	for _, s := range ranked {
		out.Suggestions = append(out.Suggestions, SlottingSuggestion{
			LocationID: s.Location.ID,
			Code:       s.Location.Code,
			Score:      s.Score,
			Breakdown: map[string]float64{
				"abc_velocity": s.Breakdown.AbcVelocity,
				"proximity":    s.Breakdown.Proximity,
				"capacity":     s.Breakdown.Capacity,
				"temperature":  s.Breakdown.Temperature,
				"fefo":         s.Breakdown.Fefo,
				"hazard":       s.Breakdown.Hazard,
			},
		})
	}

	derived, err := env.Derive(event.TypeSlottingSuggestions, out, event.Actor{Type: event.ActorAgent, ID: a.Name()})
	if err != nil {
		return nil, fmt.Errorf("derive suggestions event: %w", err)
	}
	return agent.OK(fmt.Sprintf("ranked %d locations", len(ranked)), derived), nil
}
