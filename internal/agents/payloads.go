// Package agents holds the concrete reaction handlers wired into the
// registry at startup: slotting suggestions, FEFO reservations, low-stock
// alerts, expiry sweeps, the analytics recalculations, and the audit trail.
package agents

import (
	"github.com/shopspring/decimal"
)

// GoodsReceivedPayload is the Inventory.GoodsReceived payload.
type GoodsReceivedPayload struct {
	ProductID   string          `json:"product_id"`
	WarehouseID string          `json:"warehouse_id"`
	LocationID  string          `json:"location_id,omitempty"`
	LotID       string          `json:"lot_id,omitempty"`
	Quantity    decimal.Decimal `json:"quantity"`
}

// MovementRecordedPayload is the Inventory.MovementRecorded payload.
type MovementRecordedPayload struct {
	ProductID    string          `json:"product_id"`
	WarehouseID  string          `json:"warehouse_id"`
	LocationID   string          `json:"location_id,omitempty"`
	LotID        string          `json:"lot_id,omitempty"`
	MovementType string          `json:"movement_type"`
	Quantity     decimal.Decimal `json:"quantity"`
}

// OrderLine is one demand line of a placed order.
type OrderLine struct {
	LineID    string          `json:"line_id"`
	ProductID string          `json:"product_id"`
	VariantID string          `json:"variant_id,omitempty"`
	Quantity  decimal.Decimal `json:"quantity"`
}

// OrderPlacedPayload is the SalesOrder.OrderPlaced payload.
type OrderPlacedPayload struct {
	OrderID     string      `json:"order_id"`
	WarehouseID string      `json:"warehouse_id"`
	Lines       []OrderLine `json:"lines"`
}

// ScheduledPayload is the skeleton every scheduler-fabricated event carries.
type ScheduledPayload struct {
	WarehouseID string `json:"warehouse_id"`
	TriggeredBy string `json:"triggered_by"`
	JobName     string `json:"job_name"`
}

// SlottingSuggestion is one ranked putaway candidate.
type SlottingSuggestion struct {
	LocationID string             `json:"location_id"`
	Code       string             `json:"code"`
	Score      float64            `json:"score"`
	Breakdown  map[string]float64 `json:"breakdown"`
}

// SlottingSuggestionsPayload is the Inventory.SlottingSuggestionsGenerated
// payload.
type SlottingSuggestionsPayload struct {
	ProductID   string               `json:"product_id"`
	WarehouseID string               `json:"warehouse_id"`
	Quantity    decimal.Decimal      `json:"quantity"`
	Suggestions []SlottingSuggestion `json:"suggestions"`
}

// Alert levels for Inventory.LowStockAlert.
const (
	AlertWarning  = "WARNING"
	AlertCritical = "CRITICAL"
)

// LowStockAlertPayload is the Inventory.LowStockAlert payload.
type LowStockAlertPayload struct {
	ProductID    string          `json:"product_id"`
	WarehouseID  string          `json:"warehouse_id"`
	AlertLevel   string          `json:"alert_level"`
	Available    decimal.Decimal `json:"available"`
	ReorderPoint decimal.Decimal `json:"reorder_point"`
	SafetyStock  decimal.Decimal `json:"safety_stock"`
}

// ActionAutoQuarantine marks stock quarantined by the expiry sweep.
const ActionAutoQuarantine = "AUTO_QUARANTINE"

// LotExpiredPayload is the Inventory.LotExpired payload.
type LotExpiredPayload struct {
	LotID       string `json:"lot_id"`
	ProductID   string `json:"product_id"`
	LotNumber   string `json:"lot_number"`
	ActionTaken string `json:"action_taken"`
	DaysExpired int    `json:"days_expired"`
}

// AllocationLine is one reserved slice reported on the order allocation
// events.
type AllocationLine struct {
	LineID        string          `json:"line_id"`
	ProductID     string          `json:"product_id"`
	LotID         string          `json:"lot_id,omitempty"`
	LocationID    string          `json:"location_id"`
	Quantity      decimal.Decimal `json:"quantity"`
	ReservationID string          `json:"reservation_id"`
}

// OrderAllocationPayload is the payload of SalesOrder.OrderFullyAllocated and
// SalesOrder.OrderPartiallyAllocated.
type OrderAllocationPayload struct {
	OrderID       string            `json:"order_id"`
	WarehouseID   string            `json:"warehouse_id"`
	FullyReserved bool              `json:"fully_reserved"`
	Lines         []AllocationLine  `json:"lines"`
	Shortfalls    map[string]string `json:"shortfalls,omitempty"` // line id -> unmet quantity
}

// AbcXyzCompletedPayload is the Analytics.AbcXyzCompleted payload.
type AbcXyzCompletedPayload struct {
	WarehouseID string            `json:"warehouse_id,omitempty"`
	Classified  int               `json:"classified"`
	Classes     map[string]string `json:"classes"` // product id -> "AX".."CZ"
}

// SafetyStockRecalculatedPayload is the Analytics.SafetyStockRecalculated
// payload.
type SafetyStockRecalculatedPayload struct {
	WarehouseID  string            `json:"warehouse_id,omitempty"`
	Recalculated int               `json:"recalculated"`
	SafetyStocks map[string]string `json:"safety_stocks"` // product id -> quantity
}

// DemandForecastPayload is the Analytics.DemandForecastGenerated payload.
type DemandForecastPayload struct {
	WarehouseID string               `json:"warehouse_id,omitempty"`
	Horizon     int                  `json:"horizon_weeks"`
	Forecasts   map[string][]float64 `json:"forecasts"` // product id -> weekly quantities
}
