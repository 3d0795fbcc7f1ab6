package agents

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/palletline-systems/palletline-stack/internal/agent"
	"github.com/palletline-systems/palletline-stack/internal/event"
	"github.com/palletline-systems/palletline-stack/internal/inventory"
)

// LowStockAgent watches movements and alerts when a product's available
// quantity falls to its reorder point (WARNING) or its safety stock
// (CRITICAL).
type LowStockAgent struct {
	stock   inventory.StockRepository
	catalog inventory.CatalogRepository
}

// NewLowStockAgent creates the low-stock-threshold agent.
func NewLowStockAgent(stock inventory.StockRepository, catalog inventory.CatalogRepository) *LowStockAgent {
	return &LowStockAgent{stock: stock, catalog: catalog}
}

func (a *LowStockAgent) Name() string        { return "low-stock-threshold" }
func (a *LowStockAgent) Description() string { return "alerts when available stock crosses thresholds" }
func (a *LowStockAgent) SubscribesTo() []string {
	return []string{event.TypeMovementRecorded}
}

func (a *LowStockAgent) Handle(ctx context.Context, env *event.Envelope, ec *agent.ExecContext) (*agent.Result, error) {
	var payload MovementRecordedPayload
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
	levels, err := a.stock.FindStockLevels(ctx, inventory.StockFilter{
		TenantID:    ec.TenantID,
		WarehouseID: payload.WarehouseID,
		ProductID:   payload.ProductID,
	})
	if err != nil {
		return nil, fmt.Errorf("load stock levels: %w", err)
	}

	available := decimal.Zero
	for _, l := range levels {
		available = available.Add(l.Available())
	}

	level := alertLevel(available, product.ReorderPoint, product.SafetyStock)
	if level == "" {
		return agent.OK("stock above thresholds"), nil
	}

	derived, err := env.Derive(event.TypeLowStockAlert, LowStockAlertPayload{
		ProductID:    payload.ProductID,
		WarehouseID:  payload.WarehouseID,
		AlertLevel:   level,
		Available:    available,
		ReorderPoint: product.ReorderPoint,
		SafetyStock:  product.SafetyStock,
	}, event.Actor{Type: event.ActorAgent, ID: a.Name()})
	if err != nil {
		return nil, fmt.Errorf("derive alert event: %w", err)
	}
	return agent.OK(fmt.Sprintf("%s: available %s", level, available), derived), nil
}

// alertLevel compares available stock to the product thresholds. Safety stock
// is the harder floor, so it wins when both are crossed. No thresholds
// configured means no alert.
func alertLevel(available, reorderPoint, safetyStock decimal.Decimal) string {
	if safetyStock.IsPositive() && available.LessThanOrEqual(safetyStock) {
		return AlertCritical
	}
	if reorderPoint.IsPositive() && available.LessThanOrEqual(reorderPoint) {
		return AlertWarning
	}
	return ""
}
