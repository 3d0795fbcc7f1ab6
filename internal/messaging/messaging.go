// Package messaging provides abstractions for the event broker. It defines
// interfaces that let the dispatcher, consumer and tooling publish and
// subscribe without being coupled to a specific broker implementation.
package messaging

import "context"

// Message represents a message received from or sent to the broker.
type Message struct {
	// Subject is the topic the message was published to.
	Subject string

	// Data is the raw message payload (a serialized envelope).
	Data []byte

	// Header contains key-value message headers.
	Header map[string]string
}

// Publisher publishes messages to subjects.
type Publisher interface {
	// Publish sends a message to the specified subject. The message ID is
	// used for broker-side de-duplication of repeated publishes.
	Publish(ctx context.Context, subject, msgID string, data []byte, header map[string]string) error

	// Close releases any resources held by the publisher.
	Close() error
}

// Header keys carried on every event message.
const (
	HeaderTenantID      = "x-tenant-id"
	HeaderEventType     = "x-event-type"
	HeaderCorrelationID = "x-correlation-id"
	HeaderCausationID   = "x-causation-id"
	HeaderRetryCount    = "x-retry-count"
)
