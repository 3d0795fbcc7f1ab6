package outbox

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/palletline-systems/palletline-stack/internal/event"
)

func testEnvelope(t *testing.T) *event.Envelope {
	t.Helper()
	env, err := event.New(event.TypeGoodsReceived, map[string]any{"quantity": 5}, event.Context{
		CorrelationID: uuid.New().String(),
		Actor:         event.Actor{Type: event.ActorUser, ID: "u-1"},
		TenantID:      uuid.New().String(),
		WarehouseID:   uuid.New().String(),
	})
	require.NoError(t, err)
	return env
}

func TestNewEntry(t *testing.T) {
	env := testEnvelope(t)
	entry, err := NewEntry(env)
	require.NoError(t, err)

	assert.Equal(t, env.EventID, entry.ID)
	assert.Equal(t, env.TenantID, entry.TenantID)
	assert.Equal(t, event.TypeGoodsReceived, entry.EventType)
	assert.Equal(t, "inventory.goods.received", entry.RoutingKey)
	assert.Equal(t, StatusPending, entry.Status)
	assert.Equal(t, DefaultMaxRetries, entry.MaxRetries)

	decoded, err := event.Decode(entry.Envelope)
	require.NoError(t, err)
	assert.Equal(t, env.EventID, decoded.EventID)
}

func TestBackoffIsExponential(t *testing.T) {
	assert.Equal(t, 2*time.Second, Backoff(1))
	assert.Equal(t, 4*time.Second, Backoff(2))
	assert.Equal(t, 8*time.Second, Backoff(3))
	assert.Equal(t, 32*time.Second, Backoff(5))
}

func TestMemoryRepositoryDuplicateEnqueue(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	entry, err := NewEntry(testEnvelope(t))
	require.NoError(t, err)

	require.NoError(t, repo.Enqueue(ctx, entry))
	err = repo.Enqueue(ctx, entry)
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestClaimPendingOrderingAndSchedule(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo.SetClock(func() time.Time { return base })

	older, err := NewEntry(testEnvelope(t))
	require.NoError(t, err)
	older.CreatedAt = base.Add(-2 * time.Minute)
	older.ScheduledAt = base.Add(-2 * time.Minute)

	newer, err := NewEntry(testEnvelope(t))
	require.NoError(t, err)
	newer.CreatedAt = base.Add(-time.Minute)
	newer.ScheduledAt = base.Add(-time.Minute)

	future, err := NewEntry(testEnvelope(t))
	require.NoError(t, err)
	future.ScheduledAt = base.Add(time.Hour)

	require.NoError(t, repo.Enqueue(ctx, newer))
	require.NoError(t, repo.Enqueue(ctx, older))
	require.NoError(t, repo.Enqueue(ctx, future))

	claimed, err := repo.ClaimPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 2, "future-scheduled entry must not be claimed")
	assert.Equal(t, older.ID, claimed[0].ID, "oldest first")
	assert.Equal(t, newer.ID, claimed[1].ID)

	claimed, err = repo.ClaimPending(ctx, 1)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
}

func TestStatusMachine(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo.SetClock(func() time.Time { return base })

	entry, err := NewEntry(testEnvelope(t))
	require.NoError(t, err)
	require.NoError(t, repo.Enqueue(ctx, entry))

	// PENDING -> PENDING with backoff until the cap, then FAILED.
	for i := 1; i < DefaultMaxRetries; i++ {
		require.NoError(t, repo.MarkFailed(ctx, entry.ID, "broker unreachable"))
		got, ok := repo.Get(entry.ID)
		require.True(t, ok)
		assert.Equal(t, StatusPending, got.Status)
		assert.Equal(t, i, got.RetryCount)
		assert.Equal(t, base.Add(Backoff(i)), got.ScheduledAt)
		assert.Equal(t, "broker unreachable", got.LastError)
	}

	require.NoError(t, repo.MarkFailed(ctx, entry.ID, "broker unreachable"))
	got, ok := repo.Get(entry.ID)
	require.True(t, ok)
	assert.Equal(t, StatusFailed, got.Status)

	// Operator requeue resets the budget.
	require.NoError(t, repo.Requeue(ctx, entry.ID))
	got, _ = repo.Get(entry.ID)
	assert.Equal(t, StatusPending, got.Status)
	assert.Equal(t, 0, got.RetryCount)
	assert.Empty(t, got.LastError)
}

func TestMarkPublishedTerminal(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	entry, err := NewEntry(testEnvelope(t))
	require.NoError(t, err)
	require.NoError(t, repo.Enqueue(ctx, entry))
	require.NoError(t, repo.MarkPublished(ctx, entry.ID))

	got, ok := repo.Get(entry.ID)
	require.True(t, ok)
	assert.Equal(t, StatusPublished, got.Status)
	require.NotNil(t, got.PublishedAt)

	claimed, err := repo.ClaimPending(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, claimed)
}

func TestGCRemovesOnlyOldPublished(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	base := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	old, err := NewEntry(testEnvelope(t))
	require.NoError(t, err)
	require.NoError(t, repo.Enqueue(ctx, old))
	repo.SetClock(func() time.Time { return base.AddDate(0, 0, -10) })
	require.NoError(t, repo.MarkPublished(ctx, old.ID))

	fresh, err := NewEntry(testEnvelope(t))
	require.NoError(t, err)
	require.NoError(t, repo.Enqueue(ctx, fresh))
	repo.SetClock(func() time.Time { return base })
	require.NoError(t, repo.MarkPublished(ctx, fresh.ID))

	pending, err := NewEntry(testEnvelope(t))
	require.NoError(t, err)
	require.NoError(t, repo.Enqueue(ctx, pending))

	removed, err := repo.GC(ctx, base.AddDate(0, 0, -7))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	_, stillThere := repo.Get(fresh.ID)
	assert.True(t, stillThere)
	_, stillThere = repo.Get(pending.ID)
	assert.True(t, stillThere)
	_, gone := repo.Get(old.ID)
	assert.False(t, gone)
}

func TestStats(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	a, _ := NewEntry(testEnvelope(t))
	b, _ := NewEntry(testEnvelope(t))
	require.NoError(t, repo.Enqueue(ctx, a))
	require.NoError(t, repo.Enqueue(ctx, b))
	require.NoError(t, repo.MarkPublished(ctx, b.ID))

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Pending)
	assert.Equal(t, int64(1), stats.Published)
	assert.Equal(t, int64(0), stats.Failed)
}
