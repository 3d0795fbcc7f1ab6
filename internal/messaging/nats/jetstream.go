package nats

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/palletline-systems/palletline-stack/internal/messaging"
)

// JetStreamClient extends Client with JetStream persistence capabilities.
type JetStreamClient struct {
	*Client
	js jetstream.JetStream
}

// StreamConfig defines a JetStream stream configuration.
type StreamConfig struct {
	Name      string
	Subjects  []string
	MaxAge    time.Duration
	MaxBytes  int64
	MaxMsgs   int64
	Retention jetstream.RetentionPolicy
	Storage   jetstream.StorageType
}

// ConsumerConfig defines a durable JetStream consumer configuration.
type ConsumerConfig struct {
	// Name is the durable consumer name.
	Name string

	// FilterSubject filters which messages this consumer receives.
	FilterSubject string

	// AckWait is the time to wait for acknowledgment before redelivery.
	AckWait time.Duration

	// MaxDeliver caps total delivery attempts (first delivery + redeliveries).
	MaxDeliver int

	// MaxAckPending bounds unacknowledged messages (the prefetch knob).
	MaxAckPending int
}

// EventsStream is the durable work queue backing the event bus fan-in.
var EventsStream = StreamConfig{
	Name:      messaging.StreamEvents,
	Subjects:  []string{messaging.SubjectWildcard},
	MaxAge:    7 * 24 * time.Hour,
	MaxBytes:  1024 * 1024 * 1024, // 1GB
	MaxMsgs:   1000000,
	Retention: jetstream.WorkQueuePolicy,
	Storage:   jetstream.FileStorage,
}

// DeadLetterStream parks messages whose consumer retry budget is exhausted.
// Retained for operator inspection and replay.
var DeadLetterStream = StreamConfig{
	Name:      messaging.StreamDeadLetter,
	Subjects:  []string{messaging.SubjectDeadLetterWildcard},
	MaxAge:    30 * 24 * time.Hour,
	MaxBytes:  256 * 1024 * 1024, // 256MB
	MaxMsgs:   100000,
	Retention: jetstream.LimitsPolicy,
	Storage:   jetstream.FileStorage,
}

// NewJetStreamClient creates a JetStream-enabled client.
func NewJetStreamClient(cfg Config) (*JetStreamClient, error) {
	client, err := NewClient(cfg)
	if err != nil {
		return nil, err
	}

	js, err := jetstream.New(client.conn)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	return &JetStreamClient{Client: client, js: js}, nil
}

// CreateOrUpdateStream creates or updates a stream.
func (c *JetStreamClient) CreateOrUpdateStream(ctx context.Context, cfg StreamConfig) (jetstream.Stream, error) {
	stream, err := c.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      cfg.Name,
		Subjects:  cfg.Subjects,
		MaxAge:    cfg.MaxAge,
		MaxBytes:  cfg.MaxBytes,
		MaxMsgs:   cfg.MaxMsgs,
		Retention: cfg.Retention,
		Storage:   cfg.Storage,
	})
	if err != nil {
		return nil, fmt.Errorf("create/update stream %s: %w", cfg.Name, err)
	}
	return stream, nil
}

// CreateOrUpdateConsumer creates or updates a durable consumer on a stream.
func (c *JetStreamClient) CreateOrUpdateConsumer(ctx context.Context, streamName string, cfg ConsumerConfig) (jetstream.Consumer, error) {
	stream, err := c.js.Stream(ctx, streamName)
	if err != nil {
		return nil, fmt.Errorf("get stream %s: %w", streamName, err)
	}

	consumer, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Name:          cfg.Name,
		Durable:       cfg.Name,
		FilterSubject: cfg.FilterSubject,
		AckWait:       cfg.AckWait,
		MaxDeliver:    cfg.MaxDeliver,
		MaxAckPending: cfg.MaxAckPending,
		AckPolicy:     jetstream.AckExplicitPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("create/update consumer %s: %w", cfg.Name, err)
	}
	return consumer, nil
}

// Consumer returns an existing durable consumer.
func (c *JetStreamClient) Consumer(ctx context.Context, streamName, consumerName string) (jetstream.Consumer, error) {
	stream, err := c.js.Stream(ctx, streamName)
	if err != nil {
		return nil, fmt.Errorf("get stream %s: %w", streamName, err)
	}
	consumer, err := stream.Consumer(ctx, consumerName)
	if err != nil {
		return nil, fmt.Errorf("get consumer %s: %w", consumerName, err)
	}
	return consumer, nil
}

// Publish sends a message with headers and a message ID to a subject and
// waits for the stream acknowledgment. The message ID doubles as the
// JetStream de-duplication key, so a crashed publisher re-publishing the same
// envelope is collapsed by the broker within the dedup window.
func (c *JetStreamClient) Publish(ctx context.Context, subject, msgID string, data []byte, header map[string]string) error {
	msg := &nats.Msg{
		Subject: subject,
		Data:    data,
		Header:  toHeader(header),
	}
	if msg.Header == nil {
		msg.Header = nats.Header{}
	}
	if msgID != "" {
		msg.Header.Set(jetstream.MsgIDHeader, msgID)
	}

	if _, err := c.js.PublishMsg(ctx, msg); err != nil {
		return fmt.Errorf("publish to %s: %w", subject, err)
	}
	return nil
}

// Peek reads up to limit messages from the head of a stream without
// consuming them, via a throwaway ephemeral consumer. Operator tooling only.
func (c *JetStreamClient) Peek(ctx context.Context, streamName string, limit int) ([]*messaging.Message, error) {
	stream, err := c.js.Stream(ctx, streamName)
	if err != nil {
		return nil, fmt.Errorf("get stream %s: %w", streamName, err)
	}

	cons, err := stream.CreateConsumer(ctx, jetstream.ConsumerConfig{
		DeliverPolicy:     jetstream.DeliverAllPolicy,
		AckPolicy:         jetstream.AckNonePolicy,
		InactiveThreshold: time.Minute,
	})
	if err != nil {
		return nil, fmt.Errorf("create peek consumer: %w", err)
	}
	defer func() { _ = stream.DeleteConsumer(ctx, cons.CachedInfo().Name) }()

	batch, err := cons.FetchNoWait(limit)
	if err != nil {
		return nil, fmt.Errorf("fetch from %s: %w", streamName, err)
	}

	var out []*messaging.Message
	for msg := range batch.Messages() {
		out = append(out, &messaging.Message{
			Subject: msg.Subject(),
			Data:    msg.Data(),
			Header:  fromHeader(msg.Headers()),
		})
	}
	return out, batch.Error()
}

var _ messaging.Publisher = (*JetStreamClient)(nil)
