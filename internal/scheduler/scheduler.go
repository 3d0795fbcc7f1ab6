// Package scheduler fabricates the synthetic events that drive the periodic
// agents: expiry sweeps, analytics recalculations, demand forecasts. Each
// tick fans out one envelope per active tenant and warehouse through the
// transactional outbox, so scheduled work rides the same bus as everything
// else.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/palletline-systems/palletline-stack/internal/directory"
	"github.com/palletline-systems/palletline-stack/internal/event"
	"github.com/palletline-systems/palletline-stack/internal/eventstore"
	"github.com/palletline-systems/palletline-stack/internal/logging"
	"github.com/palletline-systems/palletline-stack/internal/metrics"
	"github.com/palletline-systems/palletline-stack/internal/outbox"
)

// actorScheduler identifies scheduler-fabricated envelopes.
const actorScheduler = "scheduler"

// jobOutboxCleanup is the internal maintenance job that garbage-collects
// published outbox rows. It runs in-process and never emits events.
const jobOutboxCleanup = "outbox-cleanup"

// TxRunner executes fn inside one transaction. Production wiring closes over
// database.InTx; tests pass the function through.
type TxRunner func(ctx context.Context, fn func(ctx context.Context) error) error

// PassthroughTx runs fn without a transaction, for memory-backed setups.
func PassthroughTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// Scheduler owns the cron table. All schedules evaluate in UTC.
type Scheduler struct {
	jobs  []Job
	dir   directory.Directory
	store eventstore.Store
	box   outbox.Repository
	runTx TxRunner
	gcAge time.Duration
	log   *logging.Logger

	cron *cron.Cron
	now  func() time.Time
}

// New creates a scheduler over the given job table.
func New(jobs []Job, dir directory.Directory, store eventstore.Store, box outbox.Repository, runTx TxRunner, gcAge time.Duration, log *logging.Logger) *Scheduler {
	if gcAge <= 0 {
		gcAge = 7 * 24 * time.Hour
	}
	return &Scheduler{
		jobs:  jobs,
		dir:   dir,
		store: store,
		box:   box,
		runTx: runTx,
		gcAge: gcAge,
		log:   log.With(logging.Component("scheduler")),
		cron:  cron.New(cron.WithLocation(time.UTC)),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Start registers the job table with cron and begins ticking.
func (s *Scheduler) Start() error {
	for _, job := range s.jobs {
		job := job
		if _, err := s.cron.AddFunc(job.Schedule, func() { s.tick(job) }); err != nil {
			return fmt.Errorf("register job %s (%q): %w", job.Name, job.Schedule, err)
		}
		s.log.Info("job registered", logging.Job(job.Name), "schedule", job.Schedule)
	}
	s.cron.Start()
	return nil
}

// Stop halts the cron loop and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info("scheduler stopped")
}

// SetClock overrides the scheduler clock. Test hook.
func (s *Scheduler) SetClock(now func() time.Time) { s.now = now }

// RunJob executes one job immediately by name, outside its schedule.
// Operator entry point.
func (s *Scheduler) RunJob(ctx context.Context, name string) error {
	for _, job := range s.jobs {
		if job.Name == name {
			return s.run(ctx, job)
		}
	}
	return fmt.Errorf("unknown job %q", name)
}

func (s *Scheduler) tick(job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	if err := s.run(ctx, job); err != nil {
		s.log.ErrorContext(ctx, "job failed", logging.Job(job.Name), logging.Error(err))
	}
}

func (s *Scheduler) run(ctx context.Context, job Job) error {
	metrics.SchedulerTicks.WithLabelValues(job.Name).Inc()

	if job.Name == jobOutboxCleanup {
		return s.cleanupOutbox(ctx)
	}

	tenants, err := s.dir.ActiveTenants(ctx)
	if err != nil {
		return fmt.Errorf("list tenants: %w", err)
	}

	var emitted int
	for _, tenant := range tenants {
		if job.TenantID != "" && tenant.ID != job.TenantID {
			continue
		}
		warehouses, err := s.dir.ActiveWarehouses(ctx, tenant.ID)
		if err != nil {
			return fmt.Errorf("list warehouses for %s: %w", tenant.ID, err)
		}
		for _, wh := range warehouses {
			if err := s.emit(ctx, job, tenant.ID, wh.ID); err != nil {
				return err
			}
			emitted++
		}
	}

	s.log.InfoContext(ctx, "job fan-out complete", logging.Job(job.Name), "envelopes", emitted)
	return nil
}

// emit fabricates one synthetic envelope and commits it to the event store
// and the outbox atomically. Every envelope starts a fresh correlation chain.
func (s *Scheduler) emit(ctx context.Context, job Job, tenantID, warehouseID string) error {
	payload := make(map[string]any, len(job.Payload)+3)
	for k, v := range job.Payload {
		payload[k] = v
	}
	payload["warehouse_id"] = warehouseID
	payload["triggered_by"] = actorScheduler
	payload["job_name"] = job.Name

	env, err := event.New(job.EventType, payload, event.Context{
		CorrelationID: uuid.New().String(),
		Actor:         event.Actor{Type: event.ActorSystem, ID: actorScheduler},
		TenantID:      tenantID,
		WarehouseID:   warehouseID,
	})
	if err != nil {
		return fmt.Errorf("mint envelope for %s: %w", job.Name, err)
	}

	record, err := eventstore.NewRecord(env)
	if err != nil {
		return fmt.Errorf("build record for %s: %w", job.Name, err)
	}
	entry, err := outbox.NewEntry(env)
	if err != nil {
		return fmt.Errorf("build outbox entry for %s: %w", job.Name, err)
	}

	err = s.runTx(ctx, func(ctx context.Context) error {
		if err := s.store.Append(ctx, record); err != nil {
			return fmt.Errorf("append event: %w", err)
		}
		if err := s.box.Enqueue(ctx, entry); err != nil && !errors.Is(err, outbox.ErrDuplicate) {
			return fmt.Errorf("enqueue outbox entry: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	metrics.SchedulerEventsEnqueued.Inc()
	s.log.DebugContext(ctx, "synthetic event enqueued",
		logging.Job(job.Name),
		logging.TenantID(tenantID),
		logging.WarehouseID(warehouseID),
		logging.EventID(env.EventID))
	return nil
}

func (s *Scheduler) cleanupOutbox(ctx context.Context) error {
	cutoff := s.now().Add(-s.gcAge)
	removed, err := s.box.GC(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("outbox gc: %w", err)
	}
	s.log.InfoContext(ctx, "outbox gc complete", "removed", removed, "cutoff", cutoff)
	return nil
}
