package eventstore

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/palletline-systems/palletline-stack/internal/event"
)

func mintEnvelope(t *testing.T, tenantID string) *event.Envelope {
	t.Helper()
	env, err := event.New(event.TypeMovementRecorded, map[string]any{"quantity": 3}, event.Context{
		CorrelationID: uuid.New().String(),
		Actor:         event.Actor{Type: event.ActorUser, ID: "u-1"},
		TenantID:      tenantID,
		WarehouseID:   uuid.New().String(),
	})
	require.NoError(t, err)
	return env
}

func TestNewRecordCopiesEnvelopeIdentity(t *testing.T) {
	env := mintEnvelope(t, uuid.New().String())
	rec, err := NewRecord(env)
	require.NoError(t, err)

	assert.Equal(t, env.EventID, rec.EventID)
	assert.Equal(t, env.EventType, rec.EventType)
	assert.Equal(t, env.TenantID, rec.TenantID)
	assert.Equal(t, env.CorrelationID, rec.CorrelationID)
	assert.Equal(t, "USER", rec.ActorType)
	assert.False(t, rec.StoredAt.IsZero())
}

func TestAppendIsIdempotent(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	rec, err := NewRecord(mintEnvelope(t, uuid.New().String()))
	require.NoError(t, err)

	require.NoError(t, store.Append(ctx, rec))
	require.NoError(t, store.Append(ctx, rec))
	assert.Equal(t, 1, store.Len())
}

func TestGetMissingEvent(t *testing.T) {
	store := NewMemoryStore()
	_, err := store.Get(context.Background(), uuid.New().String())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListFilters(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	tenantA := uuid.New().String()
	tenantB := uuid.New().String()

	recA, err := NewRecord(mintEnvelope(t, tenantA))
	require.NoError(t, err)
	recA.OccurredAt = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	recB, err := NewRecord(mintEnvelope(t, tenantA))
	require.NoError(t, err)
	recB.OccurredAt = time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)

	recOther, err := NewRecord(mintEnvelope(t, tenantB))
	require.NoError(t, err)

	require.NoError(t, store.Append(ctx, recA))
	require.NoError(t, store.Append(ctx, recB))
	require.NoError(t, store.Append(ctx, recOther))

	got, err := store.List(ctx, Filter{TenantID: tenantA})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, recB.EventID, got[0].EventID, "newest first")
	assert.Equal(t, recA.EventID, got[1].EventID)

	got, err = store.List(ctx, Filter{TenantID: tenantA, Limit: 1})
	require.NoError(t, err)
	require.Len(t, got, 1)

	got, err = store.List(ctx, Filter{TenantID: tenantA, Since: recB.OccurredAt})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, recB.EventID, got[0].EventID)

	got, err = store.List(ctx, Filter{CorrelationID: recA.CorrelationID})
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestChainWalksToRoot(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	tenantID := uuid.New().String()

	root := mintEnvelope(t, tenantID)
	middle, err := root.Derive(event.TypeReservationCreated, map[string]any{"qty": 1},
		event.Actor{Type: event.ActorAgent, ID: "fefo-reservation"})
	require.NoError(t, err)
	leaf, err := middle.Derive(event.TypeLowStockAlert, map[string]any{"severity": "WARNING"},
		event.Actor{Type: event.ActorAgent, ID: "low-stock-threshold"})
	require.NoError(t, err)

	for _, env := range []*event.Envelope{root, middle, leaf} {
		rec, err := NewRecord(env)
		require.NoError(t, err)
		require.NoError(t, store.Append(ctx, rec))
	}

	chain, err := store.Chain(ctx, leaf.EventID)
	require.NoError(t, err)
	require.Len(t, chain, 3)
	assert.Equal(t, root.EventID, chain[0].EventID)
	assert.Equal(t, middle.EventID, chain[1].EventID)
	assert.Equal(t, leaf.EventID, chain[2].EventID)

	for _, rec := range chain {
		assert.Equal(t, root.CorrelationID, rec.CorrelationID, "correlation is preserved along the chain")
	}
}
