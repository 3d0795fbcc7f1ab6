package consumer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/palletline-systems/palletline-stack/internal/messaging"
	natsbroker "github.com/palletline-systems/palletline-stack/internal/messaging/nats"
)

// Runner binds a Consumer to the durable JetStream work queue.
type Runner struct {
	consumer *Consumer
	client   *natsbroker.JetStreamClient

	mu      sync.Mutex
	running bool
	cctx    jetstream.ConsumeContext
}

// NewRunner creates a runner.
func NewRunner(consumer *Consumer, client *natsbroker.JetStreamClient) *Runner {
	return &Runner{consumer: consumer, client: client}
}

// Start declares the stream topology and begins consuming. Declarations are
// idempotent, so every replica can run them on boot.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return fmt.Errorf("consumer already running")
	}

	if _, err := r.client.CreateOrUpdateStream(ctx, natsbroker.EventsStream); err != nil {
		return err
	}
	if _, err := r.client.CreateOrUpdateStream(ctx, natsbroker.DeadLetterStream); err != nil {
		return err
	}

	cons, err := r.client.CreateOrUpdateConsumer(ctx, messaging.StreamEvents, natsbroker.ConsumerConfig{
		Name:          messaging.ConsumerAgentProcessor,
		FilterSubject: messaging.SubjectWildcard,
		AckWait:       r.consumer.cfg.AckWait,
		// The broker-side cap is one past ours so the final attempt reaches
		// Process and is parked by the dead-letter path, not dropped.
		MaxDeliver:    r.consumer.cfg.MaxDeliver + 1,
		MaxAckPending: r.consumer.cfg.Prefetch,
	})
	if err != nil {
		return err
	}

	cctx, err := cons.Consume(func(m jetstream.Msg) {
		pctx, cancel := context.WithTimeout(context.Background(), r.consumer.cfg.AckWait)
		defer cancel()
		r.consumer.Process(pctx, &jsMsg{m: m})
	})
	if err != nil {
		return fmt.Errorf("start consume loop: %w", err)
	}

	r.cctx = cctx
	r.running = true
	return nil
}

// Stop drains the consume loop.
func (r *Runner) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running {
		return
	}
	r.cctx.Drain()
	r.running = false
}

// jsMsg adapts a jetstream delivery to the Msg interface.
type jsMsg struct {
	m jetstream.Msg
}

func (j *jsMsg) Subject() string { return j.m.Subject() }
func (j *jsMsg) Data() []byte    { return j.m.Data() }

func (j *jsMsg) Delivered() int {
	meta, err := j.m.Metadata()
	if err != nil {
		return 1
	}
	return int(meta.NumDelivered)
}

func (j *jsMsg) Ack() error { return j.m.Ack() }

func (j *jsMsg) NakWithDelay(delay time.Duration) error { return j.m.NakWithDelay(delay) }
