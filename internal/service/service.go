// Package service implements the command side of the warehouse API. Every
// command mutates its business rows, appends the resulting envelope to the
// event store, and enqueues it on the outbox inside one transaction, so an
// event exists if and only if the mutation committed.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/palletline-systems/palletline-stack/internal/agents"
	"github.com/palletline-systems/palletline-stack/internal/event"
	"github.com/palletline-systems/palletline-stack/internal/eventstore"
	"github.com/palletline-systems/palletline-stack/internal/inventory"
	"github.com/palletline-systems/palletline-stack/internal/logging"
	"github.com/palletline-systems/palletline-stack/internal/outbox"
)

// ErrValidation marks a command rejected before any mutation.
var ErrValidation = errors.New("invalid command")

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// TxRunner executes fn inside one transaction. Production wiring closes over
// database.InTx; tests pass the function through.
type TxRunner func(ctx context.Context, fn func(ctx context.Context) error) error

// PassthroughTx runs fn without a transaction, for memory-backed setups.
func PassthroughTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// Service executes warehouse commands.
type Service struct {
	stock     inventory.StockRepository
	lots      inventory.LotRepository
	movements inventory.MovementRepository
	mutator   *inventory.Mutator
	store     eventstore.Store
	box       outbox.Repository
	runTx     TxRunner
	log       *logging.Logger
	now       func() time.Time
}

// New creates a service.
func New(
	stock inventory.StockRepository,
	lots inventory.LotRepository,
	movements inventory.MovementRepository,
	mutator *inventory.Mutator,
	store eventstore.Store,
	box outbox.Repository,
	runTx TxRunner,
	log *logging.Logger,
) *Service {
	return &Service{
		stock:     stock,
		lots:      lots,
		movements: movements,
		mutator:   mutator,
		store:     store,
		box:       box,
		runTx:     runTx,
		log:       log.With(logging.Component("service")),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the service clock. Test hook.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// Actor identifies who issued a command.
type Actor struct {
	Type event.ActorType
	ID   string
}

func (a Actor) orDefault() event.Actor {
	t := a.Type
	if t == "" {
		t = event.ActorUser
	}
	return event.Actor{Type: t, ID: a.ID}
}

// ReceiptCommand records goods arriving at a location.
type ReceiptCommand struct {
	TenantID      string
	WarehouseID   string
	ProductID     string
	VariantID     string
	LocationID    string
	Quantity      decimal.Decimal
	LotNumber     string
	Expiration    *time.Time
	CorrelationID string
	Actor         Actor
}

// RecordReceipt books the received quantity onto a stock level, creating the
// lot and the level as needed, and emits Inventory.GoodsReceived.
func (s *Service) RecordReceipt(ctx context.Context, cmd ReceiptCommand) (*event.Envelope, error) {
	if cmd.TenantID == "" || cmd.WarehouseID == "" || cmd.ProductID == "" || cmd.LocationID == "" {
		return nil, invalidf("tenant_id, warehouse_id, product_id and location_id are required")
	}
	if !cmd.Quantity.IsPositive() {
		return nil, invalidf("quantity must be positive, got %s", cmd.Quantity)
	}

	now := s.now()
	var lot *inventory.Lot
	if cmd.LotNumber != "" {
		lot = &inventory.Lot{
			ID:             uuid.New().String(),
			TenantID:       cmd.TenantID,
			ProductID:      cmd.ProductID,
			LotNumber:      cmd.LotNumber,
			Status:         inventory.LotAvailable,
			ExpirationDate: cmd.Expiration,
			ReceivedAt:     now,
		}
	}

	lotID := ""
	if lot != nil {
		lotID = lot.ID
	}
	env, err := s.mint(event.TypeGoodsReceived, agents.GoodsReceivedPayload{
		ProductID:   cmd.ProductID,
		WarehouseID: cmd.WarehouseID,
		LocationID:  cmd.LocationID,
		LotID:       lotID,
		Quantity:    cmd.Quantity,
	}, cmd.TenantID, cmd.WarehouseID, cmd.CorrelationID, cmd.Actor)
	if err != nil {
		return nil, err
	}

	err = s.runTx(ctx, func(ctx context.Context) error {
		if lot != nil {
			if err := s.lots.CreateLot(ctx, lot); err != nil {
				return fmt.Errorf("create lot: %w", err)
			}
		}
		_, err := s.mutator.Upsert(ctx, &inventory.StockLevel{
			TenantID:    cmd.TenantID,
			WarehouseID: cmd.WarehouseID,
			ProductID:   cmd.ProductID,
			VariantID:   cmd.VariantID,
			LocationID:  cmd.LocationID,
			LotID:       lotID,
		}, inventory.Deltas{OnHand: cmd.Quantity})
		if err != nil {
			return fmt.Errorf("book stock: %w", err)
		}

		if err := s.recordMovementRow(ctx, cmd.TenantID, cmd.WarehouseID, cmd.ProductID, cmd.LocationID, lotID, inventory.MovementReceive, cmd.Quantity, now); err != nil {
			return err
		}
		return s.commitEvent(ctx, env)
	})
	if err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "receipt recorded",
		logging.TenantID(cmd.TenantID),
		logging.WarehouseID(cmd.WarehouseID),
		logging.EventID(env.EventID),
		"product_id", cmd.ProductID,
		"quantity", cmd.Quantity.String())
	return env, nil
}

// MovementCommand adjusts stock at a location. SHIP removes the quantity;
// ADJUST applies it signed.
type MovementCommand struct {
	TenantID      string
	WarehouseID   string
	ProductID     string
	VariantID     string
	LocationID    string
	LotID         string
	Type          inventory.MovementType
	Quantity      decimal.Decimal
	AllowNegative bool
	CorrelationID string
	Actor         Actor
}

// RecordMovement applies the stock change and emits
// Inventory.MovementRecorded.
func (s *Service) RecordMovement(ctx context.Context, cmd MovementCommand) (*event.Envelope, error) {
	if cmd.TenantID == "" || cmd.WarehouseID == "" || cmd.ProductID == "" || cmd.LocationID == "" {
		return nil, invalidf("tenant_id, warehouse_id, product_id and location_id are required")
	}

	var delta decimal.Decimal
	switch cmd.Type {
	case inventory.MovementShip:
		if !cmd.Quantity.IsPositive() {
			return nil, invalidf("ship quantity must be positive, got %s", cmd.Quantity)
		}
		delta = cmd.Quantity.Neg()
	case inventory.MovementAdjust:
		if cmd.Quantity.IsZero() {
			return nil, invalidf("adjustment quantity must be non-zero")
		}
		delta = cmd.Quantity
	default:
		return nil, invalidf("unsupported movement type %q", cmd.Type)
	}

	level, err := s.findLevel(ctx, cmd)
	if err != nil {
		return nil, err
	}

	env, err := s.mint(event.TypeMovementRecorded, agents.MovementRecordedPayload{
		ProductID:    cmd.ProductID,
		WarehouseID:  cmd.WarehouseID,
		LocationID:   cmd.LocationID,
		LotID:        cmd.LotID,
		MovementType: string(cmd.Type),
		Quantity:     cmd.Quantity,
	}, cmd.TenantID, cmd.WarehouseID, cmd.CorrelationID, cmd.Actor)
	if err != nil {
		return nil, err
	}

	err = s.runTx(ctx, func(ctx context.Context) error {
		_, err := s.mutator.AdjustWithRetry(ctx, level.ID, inventory.Deltas{
			OnHand:        delta,
			AllowNegative: cmd.AllowNegative,
		})
		if err != nil {
			return err
		}
		if err := s.recordMovementRow(ctx, cmd.TenantID, cmd.WarehouseID, cmd.ProductID, cmd.LocationID, cmd.LotID, cmd.Type, cmd.Quantity, s.now()); err != nil {
			return err
		}
		return s.commitEvent(ctx, env)
	})
	if err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "movement recorded",
		logging.TenantID(cmd.TenantID),
		logging.EventID(env.EventID),
		"movement_type", string(cmd.Type),
		"quantity", cmd.Quantity.String())
	return env, nil
}

// OrderCommand publishes a placed order onto the bus. Reservation is the
// FEFO agent's job downstream.
type OrderCommand struct {
	TenantID      string
	WarehouseID   string
	OrderID       string
	Lines         []agents.OrderLine
	CorrelationID string
	Actor         Actor
}

// PlaceOrder emits SalesOrder.OrderPlaced.
func (s *Service) PlaceOrder(ctx context.Context, cmd OrderCommand) (*event.Envelope, error) {
	if cmd.TenantID == "" || cmd.WarehouseID == "" || cmd.OrderID == "" {
		return nil, invalidf("tenant_id, warehouse_id and order_id are required")
	}
	if len(cmd.Lines) == 0 {
		return nil, invalidf("order %s has no lines", cmd.OrderID)
	}
	for _, line := range cmd.Lines {
		if line.LineID == "" || line.ProductID == "" {
			return nil, invalidf("order %s has a line missing line_id or product_id", cmd.OrderID)
		}
		if !line.Quantity.IsPositive() {
			return nil, invalidf("order %s line %s quantity must be positive", cmd.OrderID, line.LineID)
		}
	}

	env, err := s.mint(event.TypeOrderPlaced, agents.OrderPlacedPayload{
		OrderID:     cmd.OrderID,
		WarehouseID: cmd.WarehouseID,
		Lines:       cmd.Lines,
	}, cmd.TenantID, cmd.WarehouseID, cmd.CorrelationID, cmd.Actor)
	if err != nil {
		return nil, err
	}

	err = s.runTx(ctx, func(ctx context.Context) error {
		return s.commitEvent(ctx, env)
	})
	if err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "order placed",
		logging.TenantID(cmd.TenantID),
		logging.EventID(env.EventID),
		"order_id", cmd.OrderID,
		"lines", len(cmd.Lines))
	return env, nil
}

// mint builds the command's envelope. A missing correlation ID starts a
// fresh chain.
func (s *Service) mint(eventType string, payload any, tenantID, warehouseID, correlationID string, actor Actor) (*event.Envelope, error) {
	if correlationID == "" {
		correlationID = uuid.New().String()
	}
	env, err := event.New(eventType, payload, event.Context{
		CorrelationID: correlationID,
		Actor:         actor.orDefault(),
		TenantID:      tenantID,
		WarehouseID:   warehouseID,
	})
	if err != nil {
		return nil, fmt.Errorf("mint %s: %w", eventType, err)
	}
	return env, nil
}

// commitEvent appends the envelope to the event store and enqueues it on the
// outbox. Must run inside the command's transaction.
func (s *Service) commitEvent(ctx context.Context, env *event.Envelope) error {
	record, err := eventstore.NewRecord(env)
	if err != nil {
		return err
	}
	if err := s.store.Append(ctx, record); err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	entry, err := outbox.NewEntry(env)
	if err != nil {
		return err
	}
	if err := s.box.Enqueue(ctx, entry); err != nil {
		return fmt.Errorf("enqueue outbox entry: %w", err)
	}
	return nil
}

func (s *Service) recordMovementRow(ctx context.Context, tenantID, warehouseID, productID, locationID, lotID string, mvType inventory.MovementType, qty decimal.Decimal, at time.Time) error {
	if err := s.movements.CreateMovement(ctx, &inventory.Movement{
		ID:          uuid.New().String(),
		TenantID:    tenantID,
		WarehouseID: warehouseID,
		ProductID:   productID,
		LocationID:  locationID,
		LotID:       lotID,
		Type:        mvType,
		Quantity:    qty,
		OccurredAt:  at,
	}); err != nil {
		return fmt.Errorf("record movement: %w", err)
	}
	return nil
}

// findLevel resolves the stock level a movement targets.
func (s *Service) findLevel(ctx context.Context, cmd MovementCommand) (*inventory.StockLevel, error) {
	levels, err := s.stock.FindStockLevels(ctx, inventory.StockFilter{
		TenantID:    cmd.TenantID,
		WarehouseID: cmd.WarehouseID,
		ProductID:   cmd.ProductID,
		VariantID:   cmd.VariantID,
		LocationID:  cmd.LocationID,
	})
	if err != nil {
		return nil, fmt.Errorf("find stock level: %w", err)
	}
	for _, l := range levels {
		if l.LotID == cmd.LotID {
			return l, nil
		}
	}
	return nil, fmt.Errorf("%w: no stock level for product %s at location %s",
		inventory.ErrNotFound, cmd.ProductID, cmd.LocationID)
}
