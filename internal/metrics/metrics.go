// Package metrics defines the process-wide prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Outbox metrics
	OutboxQueueSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "palletline_outbox_queue_size",
			Help: "Number of PENDING outbox rows",
		},
	)

	OutboxPublished = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "palletline_outbox_published_total",
			Help: "Total outbox rows published to the broker",
		},
	)

	OutboxPublishFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "palletline_outbox_publish_failures_total",
			Help: "Total failed publish attempts",
		},
	)

	OutboxDeadRows = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "palletline_outbox_failed_rows_total",
			Help: "Total outbox rows moved to terminal FAILED",
		},
	)

	// Consumer metrics
	EventsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "palletline_consumer_events_total",
			Help: "Total inbound events by outcome",
		},
		[]string{"outcome"},
	)

	EventsDeadLettered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "palletline_consumer_dead_lettered_total",
			Help: "Total inbound events parked on the dead-letter queue",
		},
	)

	DerivedEventsPublished = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "palletline_consumer_derived_events_total",
			Help: "Total derived events re-published by the consumer",
		},
	)

	// Agent runtime metrics
	AgentInvocations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "palletline_agent_invocations_total",
			Help: "Total agent invocations by agent and outcome",
		},
		[]string{"agent", "outcome"},
	)

	AgentDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "palletline_agent_duration_seconds",
			Help:    "Duration of agent invocations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"agent"},
	)

	// Scheduler metrics
	SchedulerTicks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "palletline_scheduler_ticks_total",
			Help: "Total scheduler job executions by job",
		},
		[]string{"job"},
	)

	SchedulerEventsEnqueued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "palletline_scheduler_events_enqueued_total",
			Help: "Total synthetic envelopes enqueued by the scheduler",
		},
	)
)
