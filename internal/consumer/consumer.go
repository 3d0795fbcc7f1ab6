// Package consumer drains the durable event stream, runs the agent runtime
// over each envelope, and re-publishes whatever the agents derive. Failure
// handling follows the two-channel split: domain failures are acked and
// reported, infrastructure failures ride the broker's redelivery with an
// exponential backoff until the dead-letter queue takes over.
package consumer

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/palletline-systems/palletline-stack/internal/agent"
	"github.com/palletline-systems/palletline-stack/internal/event"
	"github.com/palletline-systems/palletline-stack/internal/eventstore"
	"github.com/palletline-systems/palletline-stack/internal/logging"
	"github.com/palletline-systems/palletline-stack/internal/messaging"
	"github.com/palletline-systems/palletline-stack/internal/metrics"
)

// Config controls the consume loop.
type Config struct {
	// MaxDeliver caps total delivery attempts. The default of 4 gives the
	// first delivery plus three backoff retries before dead-lettering.
	MaxDeliver int

	// AckWait is how long the broker waits for an ack before redelivering.
	AckWait time.Duration

	// Prefetch bounds unacknowledged in-flight messages.
	Prefetch int
}

// DefaultConfig returns the production consume settings.
func DefaultConfig() Config {
	return Config{
		MaxDeliver: 4,
		AckWait:    60 * time.Second,
		Prefetch:   10,
	}
}

// Msg is the slice of a broker delivery the consumer needs. The jetstream
// adapter implements it in production; tests hand in fakes.
type Msg interface {
	Subject() string
	Data() []byte

	// Delivered is the 1-based delivery attempt for this message.
	Delivered() int

	Ack() error
	NakWithDelay(delay time.Duration) error
}

// Consumer processes inbound envelopes through the agent runtime.
type Consumer struct {
	runtime   *agent.Runtime
	publisher messaging.Publisher
	store     eventstore.Store
	guard     Guard
	cfg       Config
	log       *logging.Logger
}

// New creates a consumer.
func New(runtime *agent.Runtime, publisher messaging.Publisher, store eventstore.Store, guard Guard, cfg Config, log *logging.Logger) *Consumer {
	if cfg.MaxDeliver <= 0 {
		cfg.MaxDeliver = 4
	}
	if cfg.AckWait <= 0 {
		cfg.AckWait = 60 * time.Second
	}
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = 10
	}
	return &Consumer{
		runtime:   runtime,
		publisher: publisher,
		store:     store,
		guard:     guard,
		cfg:       cfg,
		log:       log.With(logging.Component("consumer")),
	}
}

// Process handles one delivery end to end: decode, de-duplicate, persist,
// dispatch to the agents, publish the derived envelopes, ack.
func (c *Consumer) Process(ctx context.Context, msg Msg) {
	env, err := event.Decode(msg.Data())
	if err != nil {
		// A payload that does not parse will never parse. Park it
		// immediately instead of burning the retry budget.
		c.log.ErrorContext(ctx, "malformed envelope, dead-lettering",
			"subject", msg.Subject(),
			logging.Error(err))
		c.deadLetter(ctx, msg, "", err)
		return
	}

	log := c.log.With(
		logging.EventID(env.EventID),
		logging.EventType(env.EventType),
		logging.TenantID(env.TenantID),
		logging.CorrelationID(env.CorrelationID))

	if seen, gErr := c.guard.Seen(ctx, env.EventID); gErr != nil {
		// Guard outage: process anyway. Agents tolerate replays.
		log.WarnContext(ctx, "idempotency guard unavailable, processing without it", logging.Error(gErr))
	} else if seen {
		log.DebugContext(ctx, "duplicate delivery, skipping")
		metrics.EventsProcessed.WithLabelValues("duplicate").Inc()
		c.ack(ctx, msg, env.EventID)
		return
	}

	if err := c.append(ctx, env); err != nil {
		log.ErrorContext(ctx, "event store append failed", logging.Error(err))
		c.retryOrPark(ctx, msg, env, err)
		return
	}

	dispatch, err := c.runtime.Dispatch(ctx, env)
	if err != nil {
		log.WarnContext(ctx, "agent dispatch hit infrastructure failure",
			"succeeded", dispatch.Succeeded,
			"failed", dispatch.Failed,
			logging.Error(err))
		c.retryOrPark(ctx, msg, env, err)
		return
	}

	if err := c.publishDerived(ctx, env, dispatch.Events); err != nil {
		// Some derived envelopes may already be out; the broker collapses
		// the re-publish by message ID on the next attempt.
		log.WarnContext(ctx, "derived publish failed", logging.Error(err))
		c.retryOrPark(ctx, msg, env, err)
		return
	}

	if err := c.guard.Mark(ctx, env.EventID); err != nil {
		log.WarnContext(ctx, "failed to mark event processed", logging.Error(err))
	}
	c.ack(ctx, msg, env.EventID)

	outcome := "success"
	if dispatch.Failed > 0 {
		outcome = "domain_failure"
	}
	metrics.EventsProcessed.WithLabelValues(outcome).Inc()
	log.InfoContext(ctx, "event processed",
		"agents_succeeded", dispatch.Succeeded,
		"agents_failed", dispatch.Failed,
		"derived_events", len(dispatch.Events),
		logging.Duration(dispatch.WallTime.Milliseconds()))
}

// append persists the inbound envelope to the event store. Appends are
// idempotent on event ID, so redeliveries are harmless.
func (c *Consumer) append(ctx context.Context, env *event.Envelope) error {
	record, err := eventstore.NewRecord(env)
	if err != nil {
		return fmt.Errorf("build event record: %w", err)
	}
	return c.store.Append(ctx, record)
}

// publishDerived appends and publishes every derived envelope. Publish order
// follows agent completion order; consumers only rely on causation links.
func (c *Consumer) publishDerived(ctx context.Context, inbound *event.Envelope, derived []*event.Envelope) error {
	for _, env := range derived {
		if err := c.append(ctx, env); err != nil {
			return err
		}

		data, err := event.Encode(env)
		if err != nil {
			return fmt.Errorf("encode derived envelope %s: %w", env.EventID, err)
		}
		subject := messaging.EventSubject(event.RoutingKeyFor(env.EventType))
		header := map[string]string{
			messaging.HeaderTenantID:      env.TenantID,
			messaging.HeaderEventType:     env.EventType,
			messaging.HeaderCorrelationID: env.CorrelationID,
			messaging.HeaderCausationID:   inbound.EventID,
			messaging.HeaderRetryCount:    "0",
		}
		if err := c.publisher.Publish(ctx, subject, env.EventID, data, header); err != nil {
			return fmt.Errorf("publish derived envelope %s: %w", env.EventID, err)
		}
		metrics.DerivedEventsPublished.Inc()
	}
	return nil
}

// retryOrPark schedules a backoff redelivery, or dead-letters the message
// once the delivery budget is spent.
func (c *Consumer) retryOrPark(ctx context.Context, msg Msg, env *event.Envelope, cause error) {
	attempt := msg.Delivered()
	if attempt >= c.cfg.MaxDeliver {
		c.log.ErrorContext(ctx, "retry budget exhausted, dead-lettering",
			logging.EventID(env.EventID),
			logging.EventType(env.EventType),
			logging.RetryCount(attempt-1),
			logging.Error(cause))
		c.deadLetter(ctx, msg, env.EventID, cause)
		return
	}

	delay := Backoff(attempt)
	metrics.EventsProcessed.WithLabelValues("retry").Inc()
	c.log.WarnContext(ctx, "scheduling redelivery",
		logging.EventID(env.EventID),
		logging.RetryCount(attempt-1),
		"delay", delay.String())
	if err := msg.NakWithDelay(delay); err != nil {
		c.log.ErrorContext(ctx, "nak failed", logging.EventID(env.EventID), logging.Error(err))
	}
}

// deadLetter parks the raw message on the dead-letter subject and removes it
// from the work queue.
func (c *Consumer) deadLetter(ctx context.Context, msg Msg, eventID string, cause error) {
	header := map[string]string{
		"x-original-subject": msg.Subject(),
		"x-death-reason":     cause.Error(),
		messaging.HeaderRetryCount: strconv.Itoa(msg.Delivered() - 1),
	}
	if err := c.publisher.Publish(ctx, messaging.SubjectDeadLetter, eventID, msg.Data(), header); err != nil {
		// Leave the message unacked; the broker redelivers and the park is
		// attempted again.
		c.log.ErrorContext(ctx, "dead-letter publish failed", logging.Error(err))
		return
	}
	metrics.EventsDeadLettered.Inc()
	metrics.EventsProcessed.WithLabelValues("dead_lettered").Inc()
	c.ack(ctx, msg, eventID)
}

func (c *Consumer) ack(ctx context.Context, msg Msg, eventID string) {
	if err := msg.Ack(); err != nil {
		c.log.ErrorContext(ctx, "ack failed", logging.EventID(eventID), logging.Error(err))
	}
}

// Backoff returns the redelivery delay after the given delivery attempt:
// 2s, 4s, 8s, doubling per attempt.
func Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 10 {
		attempt = 10
	}
	return time.Duration(1<<uint(attempt)) * time.Second
}
