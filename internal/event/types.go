package event

// Canonical event type names. Every name follows the Aggregate.Verb grammar;
// cross-name aliases for the same intent are bugs.
const (
	// Inventory lifecycle
	TypeGoodsReceived       = "Inventory.GoodsReceived"
	TypeMovementRecorded    = "Inventory.MovementRecorded"
	TypeSlottingSuggestions = "Inventory.SlottingSuggestionsGenerated"
	TypeLowStockAlert       = "Inventory.LowStockAlert"
	TypeLotExpired          = "Inventory.LotExpired"
	TypeReservationCreated  = "Inventory.ReservationCreated"

	// Sales order lifecycle
	TypeOrderPlaced             = "SalesOrder.OrderPlaced"
	TypeOrderFullyAllocated     = "SalesOrder.OrderFullyAllocated"
	TypeOrderPartiallyAllocated = "SalesOrder.OrderPartiallyAllocated"

	// Synthetic events fabricated by the scheduler
	TypeScheduledExpiryCheck    = "Scheduled.ExpiryCheck"
	TypeScheduledAbcXyzAnalysis = "Scheduled.AbcXyzAnalysis"
	TypeScheduledSafetyStock    = "Scheduled.SafetyStockRecalc"
	TypeScheduledDemandForecast = "Scheduled.DemandForecast"

	// Analytics results
	TypeAbcXyzCompleted         = "Analytics.AbcXyzCompleted"
	TypeSafetyStockRecalculated = "Analytics.SafetyStockRecalculated"
	TypeDemandForecastGenerated = "Analytics.DemandForecastGenerated"
)

// MatchAll is the registry wildcard: agents subscribed to it receive every
// event type.
const MatchAll = "*"
