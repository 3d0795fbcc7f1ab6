// Package inventory holds the warehouse stock model: stock levels, lots,
// reservations, products and locations, plus the optimistic mutator that is
// the only writer of stock quantities.
package inventory

import (
	"time"

	"github.com/shopspring/decimal"
)

// LotStatus is the lifecycle state of a lot batch.
type LotStatus string

const (
	LotAvailable  LotStatus = "AVAILABLE"
	LotReleased   LotStatus = "RELEASED"
	LotQuarantine LotStatus = "QUARANTINE"
	LotHold       LotStatus = "HOLD"
	LotExpired    LotStatus = "EXPIRED"
)

// ReservationStatus is the lifecycle state of a reservation.
type ReservationStatus string

const (
	ReservationActive    ReservationStatus = "ACTIVE"
	ReservationFulfilled ReservationStatus = "FULFILLED"
	ReservationCancelled ReservationStatus = "CANCELLED"
	ReservationExpired   ReservationStatus = "EXPIRED"
)

// LocationType classifies a location's role in the pick path.
type LocationType string

const (
	LocationPick    LocationType = "PICK"
	LocationStaging LocationType = "STAGING"
	LocationBulk    LocationType = "BULK"
	LocationReceive LocationType = "RECEIVE"
)

// StockLevel tracks quantities per (tenant, warehouse, product, variant,
// location, lot). Quantities only change through the mutator, which bumps
// Version on every write.
type StockLevel struct {
	ID             string
	TenantID       string
	WarehouseID    string
	ProductID      string
	VariantID      string
	LocationID     string
	LotID          string
	OnHand         decimal.Decimal
	Reserved       decimal.Decimal
	Inbound        decimal.Decimal
	Outbound       decimal.Decimal
	Version        int64
	LastMovementAt time.Time
}

// Available is on-hand minus reserved, floored at zero.
func (s *StockLevel) Available() decimal.Decimal {
	avail := s.OnHand.Sub(s.Reserved)
	if avail.IsNegative() {
		return decimal.Zero
	}
	return avail
}

// Lot is a batch of a product sharing a lot number and expiry.
type Lot struct {
	ID              string
	TenantID        string
	ProductID       string
	LotNumber       string
	Status          LotStatus
	ExpirationDate  *time.Time
	ManufactureDate *time.Time
	ReceivedAt      time.Time
}

// Pickable reports whether the lot may be allocated: status AVAILABLE or
// RELEASED, and not expiring within minDaysToExpiration of now.
func (l *Lot) Pickable(minDaysToExpiration int, now time.Time) bool {
	if l.Status != LotAvailable && l.Status != LotReleased {
		return false
	}
	if l.ExpirationDate == nil {
		return true
	}
	return l.DaysToExpiration(now) >= minDaysToExpiration
}

// DaysToExpiration is the whole number of days until the expiration date,
// negative once the lot is past it. Lots without an expiration date report a
// very large horizon.
func (l *Lot) DaysToExpiration(now time.Time) int {
	if l.ExpirationDate == nil {
		return 1 << 30
	}
	return int(l.ExpirationDate.Sub(now).Hours() / 24)
}

// Reservation holds quantity against a stock level for an order line. While
// ACTIVE it contributes its unfulfilled remainder to the stock level's
// reserved total.
type Reservation struct {
	ID                string
	TenantID          string
	ProductID         string
	VariantID         string
	StockLevelID      string
	LotID             string
	Quantity          decimal.Decimal
	QuantityFulfilled decimal.Decimal
	ReferenceType     string
	ReferenceID       string
	ReferenceLine     string
	Status            ReservationStatus
	ExpiresAt         *time.Time
	CreatedAt         time.Time
}

// Remaining is the quantity still held by an active reservation.
func (r *Reservation) Remaining() decimal.Decimal {
	return r.Quantity.Sub(r.QuantityFulfilled)
}

// Product is the catalog entry the agents consult for thresholds and
// slotting context.
type Product struct {
	ID              string
	TenantID        string
	SKU             string
	Name            string
	AbcClass        string
	XyzClass        string
	ReorderPoint    decimal.Decimal
	SafetyStock     decimal.Decimal
	UnitPrice       decimal.Decimal
	TemperatureZone string
	Hazmat          bool
	Active          bool
}

// Location is a storage position in a warehouse. The slotting fields
// (utilization, distance, pick frequency) feed the scorer.
type Location struct {
	ID               string
	WarehouseID      string
	Code             string
	Zone             string
	Type             LocationType
	PickSequence     int
	UtilizationPct   float64
	DistanceFromDock float64
	PickFrequency    float64
	TemperatureZone  string
	HazmatCertified  bool
	Active           bool
}
