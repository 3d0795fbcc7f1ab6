// Package outbox implements the transactional outbox: a durable queue of
// envelopes written in the same transaction as the business rows they
// describe, drained to the broker by the dispatcher.
package outbox

import (
	"errors"
	"time"

	"github.com/palletline-systems/palletline-stack/internal/event"
)

// Status is the lifecycle state of an outbox entry.
type Status string

const (
	// StatusPending means the entry awaits publication (or a retry).
	StatusPending Status = "PENDING"

	// StatusPublished is terminal success. Rows are garbage-collected after a
	// configurable age.
	StatusPublished Status = "PUBLISHED"

	// StatusFailed is terminal failure after exhausting retries. Rows are
	// retained for operator inspection.
	StatusFailed Status = "FAILED"
)

// DefaultMaxRetries bounds publish attempts before an entry goes FAILED.
// Overridden once at boot from configuration.
var DefaultMaxRetries = 5

var (
	// ErrNotFound indicates no outbox entry with that ID exists.
	ErrNotFound = errors.New("outbox entry not found")

	// ErrDuplicate indicates an entry for the same event ID already exists.
	ErrDuplicate = errors.New("outbox entry already exists")

	// ErrAlreadyRunning indicates a second Start on a running dispatcher.
	ErrAlreadyRunning = errors.New("dispatcher already running")
)

// Entry owns exactly one envelope awaiting broker publication.
type Entry struct {
	ID          string
	TenantID    string
	EventType   string
	RoutingKey  string
	Envelope    []byte // canonical JSON of the envelope
	Status      Status
	RetryCount  int
	MaxRetries  int
	LastError   string
	ScheduledAt time.Time
	CreatedAt   time.Time
	PublishedAt *time.Time
}

// NewEntry builds a PENDING entry for an envelope. The entry ID equals the
// event ID so outbox rows are unique per event.
func NewEntry(env *event.Envelope) (*Entry, error) {
	data, err := event.Encode(env)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	return &Entry{
		ID:          env.EventID,
		TenantID:    env.TenantID,
		EventType:   env.EventType,
		RoutingKey:  env.RoutingKey(),
		Envelope:    data,
		Status:      StatusPending,
		MaxRetries:  DefaultMaxRetries,
		ScheduledAt: now,
		CreatedAt:   now,
	}, nil
}

// Backoff returns the retry delay after the given retry count:
// 2^retry seconds.
func Backoff(retryCount int) time.Duration {
	return time.Duration(1<<uint(retryCount)) * time.Second
}

// Stats is an operator-facing snapshot of the queue.
type Stats struct {
	Pending   int64 `json:"pending"`
	Published int64 `json:"published"`
	Failed    int64 `json:"failed"`
}
