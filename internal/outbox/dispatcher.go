package outbox

import (
	"context"
	"sync"
	"time"

	"github.com/palletline-systems/palletline-stack/internal/logging"
	"github.com/palletline-systems/palletline-stack/internal/messaging"
	"github.com/palletline-systems/palletline-stack/internal/metrics"
)

// DispatcherConfig controls the dispatcher loop.
type DispatcherConfig struct {
	PollInterval time.Duration
	BatchSize    int
}

// Dispatcher drains PENDING outbox entries to the broker. Publish semantics
// are at-least-once: a crash between broker ack and MarkPublished re-publishes
// the same envelope on restart, which the broker collapses by message ID and
// consumers guard against by event ID.
type Dispatcher struct {
	repo      Repository
	publisher messaging.Publisher
	cfg       DispatcherConfig
	log       *logging.Logger

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(repo Repository, publisher messaging.Publisher, cfg DispatcherConfig, log *logging.Logger) *Dispatcher {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &Dispatcher{
		repo:      repo,
		publisher: publisher,
		cfg:       cfg,
		log:       log.With(logging.Component("outbox-dispatcher")),
	}
}

// Start begins the polling loop.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return ErrAlreadyRunning
	}
	d.running = true
	d.stopChan = make(chan struct{})
	d.mu.Unlock()

	d.log.Info("outbox dispatcher starting",
		"poll_interval", d.cfg.PollInterval.String(),
		"batch_size", d.cfg.BatchSize)

	d.wg.Add(1)
	go d.run(ctx)
	return nil
}

// Stop drains the in-flight batch and stops the loop.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.running = false
	close(d.stopChan)
	d.mu.Unlock()

	d.wg.Wait()
	d.log.Info("outbox dispatcher stopped")
}

func (d *Dispatcher) run(ctx context.Context) {
	defer d.wg.Done()

	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-d.stopChan:
			return
		case <-ticker.C:
			d.drainBatch(ctx)
		}
	}
}

// drainBatch claims one batch of due entries and publishes each.
func (d *Dispatcher) drainBatch(ctx context.Context) {
	entries, err := d.repo.ClaimPending(ctx, d.cfg.BatchSize)
	if err != nil {
		d.log.ErrorContext(ctx, "failed to claim pending entries", logging.Error(err))
		return
	}
	if len(entries) == 0 {
		return
	}

	for _, entry := range entries {
		select {
		case <-d.stopChan:
			return
		default:
		}
		d.publishOne(ctx, entry)
	}

	if stats, err := d.repo.Stats(ctx); err == nil {
		metrics.OutboxQueueSize.Set(float64(stats.Pending))
	}
}

func (d *Dispatcher) publishOne(ctx context.Context, entry *Entry) {
	subject := messaging.EventSubject(entry.RoutingKey)
	header := map[string]string{
		messaging.HeaderTenantID:   entry.TenantID,
		messaging.HeaderEventType:  entry.EventType,
		messaging.HeaderRetryCount: "0",
	}

	err := d.publisher.Publish(ctx, subject, entry.ID, entry.Envelope, header)
	if err != nil {
		metrics.OutboxPublishFailures.Inc()
		d.log.WarnContext(ctx, "publish failed, scheduling retry",
			logging.OutboxID(entry.ID),
			logging.RoutingKey(entry.RoutingKey),
			logging.RetryCount(entry.RetryCount),
			logging.Error(err))
		if mErr := d.repo.MarkFailed(ctx, entry.ID, err.Error()); mErr != nil {
			d.log.ErrorContext(ctx, "failed to mark entry failed", logging.OutboxID(entry.ID), logging.Error(mErr))
		}
		if entry.RetryCount+1 >= entry.MaxRetries {
			metrics.OutboxDeadRows.Inc()
		}
		return
	}

	if err := d.repo.MarkPublished(ctx, entry.ID); err != nil {
		// The broker has the message; the row stays PENDING and will be
		// published again. Consumers de-duplicate on event_id.
		d.log.ErrorContext(ctx, "published but failed to mark row", logging.OutboxID(entry.ID), logging.Error(err))
		return
	}
	metrics.OutboxPublished.Inc()
	d.log.DebugContext(ctx, "entry published",
		logging.OutboxID(entry.ID),
		logging.RoutingKey(entry.RoutingKey))
}
