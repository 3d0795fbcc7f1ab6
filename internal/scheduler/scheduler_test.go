package scheduler

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/palletline-systems/palletline-stack/internal/directory"
	"github.com/palletline-systems/palletline-stack/internal/event"
	"github.com/palletline-systems/palletline-stack/internal/eventstore"
	"github.com/palletline-systems/palletline-stack/internal/logging"
	"github.com/palletline-systems/palletline-stack/internal/outbox"
)

func newScheduler(t *testing.T, dir directory.Directory) (*Scheduler, *eventstore.MemoryStore, *outbox.MemoryRepository) {
	t.Helper()
	store := eventstore.NewMemoryStore()
	box := outbox.NewMemoryRepository()
	s := New(DefaultJobs(), dir, store, box, PassthroughTx, 7*24*time.Hour, logging.New(slog.LevelError, "json"))
	return s, store, box
}

func seededDirectory() *directory.MemoryDirectory {
	dir := directory.NewMemoryDirectory()
	dir.AddTenant(&directory.Tenant{ID: "t-1", Name: "Acme", Active: true})
	dir.AddTenant(&directory.Tenant{ID: "t-2", Name: "Globex", Active: true})
	dir.AddTenant(&directory.Tenant{ID: "t-idle", Name: "Idle", Active: false})
	dir.AddWarehouse(&directory.Warehouse{ID: "w-1a", TenantID: "t-1", Code: "AMS", Active: true})
	dir.AddWarehouse(&directory.Warehouse{ID: "w-1b", TenantID: "t-1", Code: "RTM", Active: true})
	dir.AddWarehouse(&directory.Warehouse{ID: "w-2a", TenantID: "t-2", Code: "BER", Active: true})
	dir.AddWarehouse(&directory.Warehouse{ID: "w-old", TenantID: "t-2", Code: "OLD", Active: false})
	return dir
}

func TestRunJobFansOutPerTenantAndWarehouse(t *testing.T) {
	s, store, box := newScheduler(t, seededDirectory())

	require.NoError(t, s.RunJob(context.Background(), "lot-expiry-check"))

	// 2 warehouses for t-1 plus 1 for t-2; inactive rows are skipped.
	assert.Equal(t, 3, store.Len())

	stats, err := box.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Pending)

	records, err := store.List(context.Background(), eventstore.Filter{TenantID: "t-1"})
	require.NoError(t, err)
	require.Len(t, records, 2)
	for _, r := range records {
		assert.Equal(t, event.TypeScheduledExpiryCheck, r.EventType)
		assert.Equal(t, string(event.ActorSystem), r.ActorType)
		assert.NotEmpty(t, r.CorrelationID)
		assert.Empty(t, r.CausationID, "synthetic events start a fresh chain")

		env, err := event.Decode(r.Envelope)
		require.NoError(t, err)
		var payload map[string]string
		require.NoError(t, env.DecodePayload(&payload))
		assert.Equal(t, "scheduler", payload["triggered_by"])
		assert.Equal(t, "lot-expiry-check", payload["job_name"])
		assert.Equal(t, r.WarehouseID, payload["warehouse_id"])
	}

	// Each envelope carries its own correlation ID.
	assert.NotEqual(t, records[0].CorrelationID, records[1].CorrelationID)
}

func TestRunJobHonorsTenantScopeAndPayload(t *testing.T) {
	store := eventstore.NewMemoryStore()
	box := outbox.NewMemoryRepository()
	jobs := []Job{{
		Name:      "lot-expiry-check",
		Schedule:  "0 0 * * *",
		EventType: event.TypeScheduledExpiryCheck,
		TenantID:  "t-2",
		Payload:   map[string]any{"grace_days": 3, "triggered_by": "operator"},
	}}
	s := New(jobs, seededDirectory(), store, box, PassthroughTx, 7*24*time.Hour, logging.New(slog.LevelError, "json"))

	require.NoError(t, s.RunJob(context.Background(), "lot-expiry-check"))

	// Only t-2's single active warehouse is fanned out.
	require.Equal(t, 1, store.Len())
	records, err := store.List(context.Background(), eventstore.Filter{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "t-2", records[0].TenantID)
	assert.Equal(t, "w-2a", records[0].WarehouseID)

	env, err := event.Decode(records[0].Envelope)
	require.NoError(t, err)
	var payload map[string]any
	require.NoError(t, env.DecodePayload(&payload))
	assert.EqualValues(t, 3, payload["grace_days"])
	assert.Equal(t, "scheduler", payload["triggered_by"], "skeleton keys win over job payload")
	assert.Equal(t, "lot-expiry-check", payload["job_name"])
}

func TestRunJobUnknownName(t *testing.T) {
	s, _, _ := newScheduler(t, seededDirectory())
	assert.Error(t, s.RunJob(context.Background(), "no-such-job"))
}

func TestOutboxCleanupRemovesOldPublishedRows(t *testing.T) {
	s, _, box := newScheduler(t, seededDirectory())
	now := time.Date(2026, 5, 1, 5, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return now })

	enqueueAndPublish(t, box, now.Add(-8*24*time.Hour))
	enqueueAndPublish(t, box, now.Add(-time.Hour))

	require.NoError(t, s.RunJob(context.Background(), "outbox-cleanup"))

	stats, err := box.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Published, "only rows older than the retention window are removed")
}

// enqueueAndPublish inserts one entry and publishes it at the given instant
// by steering the repository clock.
func enqueueAndPublish(t *testing.T, box *outbox.MemoryRepository, publishedAt time.Time) {
	t.Helper()
	env, err := event.New(event.TypeGoodsReceived, map[string]string{"k": "v"}, event.Context{
		CorrelationID: "corr-" + publishedAt.Format("150405.000000000"),
		Actor:         event.Actor{Type: event.ActorUser, ID: "u"},
		TenantID:      "t-1",
	})
	require.NoError(t, err)
	entry, err := outbox.NewEntry(env)
	require.NoError(t, err)
	require.NoError(t, box.Enqueue(context.Background(), entry))

	box.SetClock(func() time.Time { return publishedAt })
	require.NoError(t, box.MarkPublished(context.Background(), entry.ID))
	box.SetClock(func() time.Time { return time.Now().UTC() })
}

func TestDefaultJobsCoverEveryScheduledEventType(t *testing.T) {
	jobs := DefaultJobs()
	types := make(map[string]bool)
	for _, j := range jobs {
		if j.EventType != "" {
			types[j.EventType] = true
		}
	}
	assert.True(t, types[event.TypeScheduledExpiryCheck])
	assert.True(t, types[event.TypeScheduledAbcXyzAnalysis])
	assert.True(t, types[event.TypeScheduledSafetyStock])
	assert.True(t, types[event.TypeScheduledDemandForecast])
}

func TestLoadJobsOverridesSchedules(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
jobs:
  - name: lot-expiry-check
    schedule: "30 1 * * *"
`), 0o600))

	jobs, err := LoadJobs(path)
	require.NoError(t, err)

	byName := make(map[string]Job)
	for _, j := range jobs {
		byName[j.Name] = j
	}
	assert.Equal(t, "30 1 * * *", byName["lot-expiry-check"].Schedule)
	assert.Equal(t, "0 2 1 * *", byName["abc-xyz-analysis"].Schedule, "untouched jobs keep their default")
}

func TestLoadJobsAppliesTenantScopeAndPayload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
jobs:
  - name: demand-forecast
    schedule: "0 6 * * 1"
    tenant_id: t-7
    payload:
      horizon_weeks: 8
`), 0o600))

	jobs, err := LoadJobs(path)
	require.NoError(t, err)

	byName := make(map[string]Job)
	for _, j := range jobs {
		byName[j.Name] = j
	}
	job := byName["demand-forecast"]
	assert.Equal(t, "0 6 * * 1", job.Schedule)
	assert.Equal(t, "t-7", job.TenantID)
	assert.EqualValues(t, 8, job.Payload["horizon_weeks"])
	assert.Empty(t, byName["lot-expiry-check"].TenantID, "untouched jobs stay unscoped")
}

func TestLoadJobsRejectsUnknownJob(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
jobs:
  - name: mystery-job
    schedule: "* * * * *"
`), 0o600))

	_, err := LoadJobs(path)
	assert.Error(t, err)
}

func TestStartRegistersAllJobs(t *testing.T) {
	s, _, _ := newScheduler(t, seededDirectory())
	require.NoError(t, s.Start())
	s.Stop()
}
