package outbox

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/palletline-systems/palletline-stack/internal/database"
)

// Integration tests run only against a real database, pointed at by
// PALLETLINE_TEST_DATABASE_URL. Migrations are applied on first connect.
func testRepository(t *testing.T) *PostgresRepository {
	t.Helper()

	url := os.Getenv("PALLETLINE_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("PALLETLINE_TEST_DATABASE_URL not set")
	}

	require.NoError(t, database.Migrate(url, "file://../../migrations"))

	pool, err := database.NewPool(context.Background(), url, 4)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, err = pool.Exec(context.Background(), "TRUNCATE outbox")
	require.NoError(t, err)

	return NewPostgresRepository(pool)
}

func TestPostgresRepositoryRoundTrip(t *testing.T) {
	repo := testRepository(t)
	ctx := context.Background()

	entry, err := NewEntry(testEnvelope(t))
	require.NoError(t, err)
	require.NoError(t, repo.Enqueue(ctx, entry))

	err = repo.Enqueue(ctx, entry)
	assert.ErrorIs(t, err, ErrDuplicate)

	claimed, err := repo.ClaimPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, entry.ID, claimed[0].ID)
	assert.Equal(t, StatusPending, claimed[0].Status)
	assert.Equal(t, entry.RoutingKey, claimed[0].RoutingKey)
	assert.JSONEq(t, string(entry.Envelope), string(claimed[0].Envelope))

	require.NoError(t, repo.MarkPublished(ctx, entry.ID))

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.Pending)
	assert.Equal(t, int64(1), stats.Published)

	removed, err := repo.GC(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
}

func TestPostgresRepositoryRetrySchedule(t *testing.T) {
	repo := testRepository(t)
	ctx := context.Background()

	entry, err := NewEntry(testEnvelope(t))
	require.NoError(t, err)
	require.NoError(t, repo.Enqueue(ctx, entry))

	// Below the cap the entry stays PENDING with a future scheduled_at, so an
	// immediate claim must not return it.
	require.NoError(t, repo.MarkFailed(ctx, entry.ID, "broker down"))
	claimed, err := repo.ClaimPending(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, claimed)

	for i := 1; i < entry.MaxRetries; i++ {
		require.NoError(t, repo.MarkFailed(ctx, entry.ID, "broker down"))
	}

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Failed)

	// Requeue resets the budget and makes the entry immediately claimable.
	require.NoError(t, repo.Requeue(ctx, entry.ID))
	claimed, err = repo.ClaimPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, 0, claimed[0].RetryCount)
	assert.Empty(t, claimed[0].LastError)

	err = repo.MarkPublished(ctx, "no-such-entry")
	assert.ErrorIs(t, err, ErrNotFound)
}
