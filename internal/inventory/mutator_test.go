package inventory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedStockLevel(t *testing.T, repo *MemoryRepository, onHand, reserved int64) *StockLevel {
	t.Helper()
	level := &StockLevel{
		ID:          uuid.New().String(),
		TenantID:    uuid.New().String(),
		WarehouseID: uuid.New().String(),
		ProductID:   uuid.New().String(),
		LocationID:  uuid.New().String(),
		OnHand:      decimal.NewFromInt(onHand),
		Reserved:    decimal.NewFromInt(reserved),
		Version:     1,
	}
	require.NoError(t, repo.CreateStockLevel(context.Background(), level))
	return level
}

func TestAdjustAppliesDeltasAndBumpsVersion(t *testing.T) {
	repo := NewMemoryRepository()
	m := NewMutator(repo)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m.SetClock(func() time.Time { return now })

	level := seedStockLevel(t, repo, 10, 2)

	updated, err := m.Adjust(context.Background(), level.ID, Deltas{
		OnHand:   decimal.NewFromInt(-3),
		Reserved: decimal.NewFromInt(1),
	}, 1)
	require.NoError(t, err)

	assert.True(t, updated.OnHand.Equal(decimal.NewFromInt(7)))
	assert.True(t, updated.Reserved.Equal(decimal.NewFromInt(3)))
	assert.True(t, updated.Available().Equal(decimal.NewFromInt(4)))
	assert.Equal(t, int64(2), updated.Version)
	assert.Equal(t, now, updated.LastMovementAt)

	stored, err := repo.GetStockLevel(context.Background(), level.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stored.Version)
}

func TestAdjustStaleVersionConflicts(t *testing.T) {
	repo := NewMemoryRepository()
	m := NewMutator(repo)
	level := seedStockLevel(t, repo, 10, 0)

	_, err := m.Adjust(context.Background(), level.ID, Deltas{OnHand: decimal.NewFromInt(1)}, 99)
	assert.ErrorIs(t, err, ErrOptimisticLockConflict)
}

func TestAdjustBlocksNegativeStock(t *testing.T) {
	repo := NewMemoryRepository()
	m := NewMutator(repo)
	level := seedStockLevel(t, repo, 5, 0)

	_, err := m.Adjust(context.Background(), level.ID, Deltas{OnHand: decimal.NewFromInt(-6)}, 1)
	assert.ErrorIs(t, err, ErrNegativeStockBlocked)

	// The override permits the signed result.
	updated, err := m.Adjust(context.Background(), level.ID, Deltas{
		OnHand:        decimal.NewFromInt(-6),
		AllowNegative: true,
	}, 1)
	require.NoError(t, err)
	assert.True(t, updated.OnHand.Equal(decimal.NewFromInt(-1)))
	assert.True(t, updated.Available().Equal(decimal.Zero), "available never goes negative")
}

func TestConcurrentAdjustSameVersionCommitsExactlyOne(t *testing.T) {
	repo := NewMemoryRepository()
	m := NewMutator(repo)
	level := seedStockLevel(t, repo, 100, 0)

	const writers = 8
	var wg sync.WaitGroup
	results := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Adjust(context.Background(), level.ID, Deltas{OnHand: decimal.NewFromInt(-1)}, 1)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var committed, conflicted int
	for err := range results {
		switch {
		case err == nil:
			committed++
		case assert.ErrorIs(t, err, ErrOptimisticLockConflict):
			conflicted++
		}
	}
	assert.Equal(t, 1, committed)
	assert.Equal(t, writers-1, conflicted)

	stored, err := repo.GetStockLevel(context.Background(), level.ID)
	require.NoError(t, err)
	assert.True(t, stored.OnHand.Equal(decimal.NewFromInt(99)))
	assert.Equal(t, int64(2), stored.Version)
}

func TestAdjustWithRetryRidesOutConflicts(t *testing.T) {
	repo := NewMemoryRepository()
	m := NewMutator(repo)
	level := seedStockLevel(t, repo, 100, 0)

	const writers = 3
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.AdjustWithRetry(context.Background(), level.ID, Deltas{OnHand: decimal.NewFromInt(-1)})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	stored, err := repo.GetStockLevel(context.Background(), level.ID)
	require.NoError(t, err)
	assert.True(t, stored.OnHand.Equal(decimal.NewFromInt(97)))
	assert.Equal(t, int64(1+writers), stored.Version)
}

func TestUpsertCreatesAtVersionOne(t *testing.T) {
	repo := NewMemoryRepository()
	m := NewMutator(repo)

	template := &StockLevel{
		TenantID:    uuid.New().String(),
		WarehouseID: uuid.New().String(),
		ProductID:   uuid.New().String(),
		LocationID:  uuid.New().String(),
		LotID:       uuid.New().String(),
	}

	created, err := m.Upsert(context.Background(), template, Deltas{OnHand: decimal.NewFromInt(10)})
	require.NoError(t, err)
	assert.Equal(t, int64(1), created.Version)
	assert.True(t, created.OnHand.Equal(decimal.NewFromInt(10)))
	assert.NotEmpty(t, created.ID)

	// A second upsert for the same (product, location, lot) adjusts in place.
	adjusted, err := m.Upsert(context.Background(), template, Deltas{OnHand: decimal.NewFromInt(5)})
	require.NoError(t, err)
	assert.Equal(t, created.ID, adjusted.ID)
	assert.True(t, adjusted.OnHand.Equal(decimal.NewFromInt(15)))
	assert.Equal(t, int64(2), adjusted.Version)
}

func TestLotPickable(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	in10 := now.AddDate(0, 0, 10)
	yesterday := now.AddDate(0, 0, -1)

	tests := []struct {
		name    string
		lot     Lot
		minDays int
		want    bool
	}{
		{"available no expiry", Lot{Status: LotAvailable}, 0, true},
		{"released far expiry", Lot{Status: LotReleased, ExpirationDate: &in10}, 5, true},
		{"expiring inside window", Lot{Status: LotAvailable, ExpirationDate: &in10}, 30, false},
		{"already expired", Lot{Status: LotAvailable, ExpirationDate: &yesterday}, 0, false},
		{"quarantined", Lot{Status: LotQuarantine}, 0, false},
		{"on hold", Lot{Status: LotHold}, 0, false},
		{"expired status", Lot{Status: LotExpired}, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.lot.Pickable(tt.minDays, now))
		})
	}
}
