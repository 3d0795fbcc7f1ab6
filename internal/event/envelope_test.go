package event

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testContext() Context {
	return Context{
		CorrelationID: uuid.New().String(),
		Actor:         Actor{Type: ActorUser, ID: "u-100"},
		TenantID:      uuid.New().String(),
		WarehouseID:   uuid.New().String(),
	}
}

func TestNewMintsIdentityAndVersion(t *testing.T) {
	ec := testContext()
	env, err := New(TypeGoodsReceived, map[string]any{"quantity": 10}, ec)
	require.NoError(t, err)

	_, err = uuid.Parse(env.EventID)
	assert.NoError(t, err)
	assert.Equal(t, SchemaVersion, env.SchemaVersion)
	assert.Equal(t, ec.CorrelationID, env.CorrelationID)
	assert.Equal(t, ec.TenantID, env.TenantID)
	assert.Empty(t, env.CausationID)
	assert.False(t, env.OccurredAt.IsZero())
}

func TestNewRejectsBadEventTypes(t *testing.T) {
	tests := []struct {
		name      string
		eventType string
	}{
		{"no dot", "GoodsReceived"},
		{"lowercase aggregate", "inventory.GoodsReceived"},
		{"lowercase verb", "Inventory.goodsReceived"},
		{"extra segment", "Inventory.Goods.Received"},
		{"empty", ""},
		{"digits", "Inventory.Goods2Received"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.eventType, nil, testContext())
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidEventType)
		})
	}
}

func TestNewRejectsMalformedIdentifiers(t *testing.T) {
	ec := testContext()
	ec.TenantID = "not-a-uuid"
	_, err := New(TypeGoodsReceived, nil, ec)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidEnvelope)

	ec = testContext()
	ec.Actor = Actor{Type: "ROBOT", ID: "r2"}
	_, err = New(TypeGoodsReceived, nil, ec)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidEnvelope)
}

func TestDeriveChainsCausationAndPreservesCorrelation(t *testing.T) {
	parent, err := New(TypeGoodsReceived, nil, testContext())
	require.NoError(t, err)

	child, err := parent.Derive(TypeSlottingSuggestions, map[string]any{"count": 3},
		Actor{Type: ActorAgent, ID: "slotting-suggestion"})
	require.NoError(t, err)

	assert.Equal(t, parent.EventID, child.CausationID)
	assert.Equal(t, parent.CorrelationID, child.CorrelationID)
	assert.Equal(t, parent.TenantID, child.TenantID)
	assert.Equal(t, parent.WarehouseID, child.WarehouseID)
	assert.NotEqual(t, parent.EventID, child.EventID)
}

func TestRoutingKeyFor(t *testing.T) {
	tests := []struct {
		eventType string
		want      string
	}{
		{"Inventory.MovementRecorded", "inventory.movement.recorded"},
		{"Inventory.GoodsReceived", "inventory.goods.received"},
		{"SalesOrder.OrderPlaced", "sales.order.order.placed"},
		{"Scheduled.ExpiryCheck", "scheduled.expiry.check"},
		{"Inventory.LotExpired", "inventory.lot.expired"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, RoutingKeyFor(tt.eventType), tt.eventType)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	parent, err := New(TypeOrderPlaced, map[string]any{
		"order_id": uuid.New().String(),
		"lines":    []any{map[string]any{"product_id": "p1", "quantity": 7.0}},
	}, testContext())
	require.NoError(t, err)

	env, err := parent.Derive(TypeOrderFullyAllocated, map[string]any{"reserved": 7.0},
		Actor{Type: ActorAgent, ID: "fefo-reservation"})
	require.NoError(t, err)

	data, err := Encode(env)
	require.NoError(t, err)

	decoded, err := Decode(data)
	require.NoError(t, err)

	assert.Equal(t, env.EventID, decoded.EventID)
	assert.Equal(t, env.EventType, decoded.EventType)
	assert.Equal(t, env.CorrelationID, decoded.CorrelationID)
	assert.Equal(t, env.CausationID, decoded.CausationID)
	assert.Equal(t, env.TenantID, decoded.TenantID)
	assert.Equal(t, env.WarehouseID, decoded.WarehouseID)
	assert.Equal(t, env.Actor, decoded.Actor)
	assert.True(t, env.OccurredAt.Equal(decoded.OccurredAt))
	assert.JSONEq(t, string(env.Payload), string(decoded.Payload))
}

func TestDecodeRejectsInvalid(t *testing.T) {
	_, err := Decode([]byte(`{"event_id":"nope"}`))
	require.Error(t, err)

	_, err = Decode([]byte(`not json`))
	require.Error(t, err)
}

func TestCanonicalTypesSatisfyGrammar(t *testing.T) {
	for _, et := range []string{
		TypeGoodsReceived, TypeMovementRecorded, TypeSlottingSuggestions,
		TypeLowStockAlert, TypeLotExpired, TypeReservationCreated,
		TypeOrderPlaced, TypeOrderFullyAllocated, TypeOrderPartiallyAllocated,
		TypeScheduledExpiryCheck, TypeScheduledAbcXyzAnalysis,
		TypeScheduledSafetyStock, TypeScheduledDemandForecast,
		TypeAbcXyzCompleted, TypeSafetyStockRecalculated, TypeDemandForecastGenerated,
	} {
		assert.Regexp(t, `^[A-Z][A-Za-z]+\.[A-Z][A-Za-z]+$`, et)
	}
}
