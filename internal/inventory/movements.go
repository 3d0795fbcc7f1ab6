package inventory

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// MovementType classifies a stock movement.
type MovementType string

const (
	MovementShip    MovementType = "SHIP"
	MovementReceive MovementType = "RECEIVE"
	MovementAdjust  MovementType = "ADJUST"
)

// Movement is one recorded stock change. Outbound movements are the demand
// signal the analytics agents consume.
type Movement struct {
	ID          string
	TenantID    string
	WarehouseID string
	ProductID   string
	LocationID  string
	LotID       string
	Type        MovementType
	Quantity    decimal.Decimal
	OccurredAt  time.Time
}

// MovementFilter narrows movement queries.
type MovementFilter struct {
	TenantID    string
	WarehouseID string
	ProductID   string
	Type        MovementType
	Since       time.Time
	Until       time.Time
}

// MovementRepository persists movements.
type MovementRepository interface {
	CreateMovement(ctx context.Context, mv *Movement) error
	FindMovements(ctx context.Context, f MovementFilter) ([]*Movement, error)
}
