// Package eventstore persists every domain event as an immutable audit record.
// The store is append-only: rows are never updated or deleted, and appends are
// idempotent on event ID so redelivered events do not produce duplicates.
package eventstore

import (
	"context"
	"errors"
	"time"

	"github.com/palletline-systems/palletline-stack/internal/event"
)

var (
	// ErrNotFound indicates no event with that ID exists.
	ErrNotFound = errors.New("event not found")
)

// Record is one persisted domain event.
type Record struct {
	EventID       string
	EventType     string
	TenantID      string
	WarehouseID   string
	CorrelationID string
	CausationID   string
	ActorType     string
	ActorID       string
	Envelope      []byte
	OccurredAt    time.Time
	StoredAt      time.Time
}

// NewRecord builds a Record from an envelope.
func NewRecord(env *event.Envelope) (*Record, error) {
	data, err := event.Encode(env)
	if err != nil {
		return nil, err
	}
	return &Record{
		EventID:       env.EventID,
		EventType:     env.EventType,
		TenantID:      env.TenantID,
		WarehouseID:   env.WarehouseID,
		CorrelationID: env.CorrelationID,
		CausationID:   env.CausationID,
		ActorType:     string(env.Actor.Type),
		ActorID:       env.Actor.ID,
		Envelope:      data,
		OccurredAt:    env.OccurredAt,
		StoredAt:      time.Now().UTC(),
	}, nil
}

// Filter narrows a List call. Zero values mean "no constraint".
type Filter struct {
	TenantID      string
	EventType     string
	CorrelationID string
	Since         time.Time
	Until         time.Time
	Limit         int
}

// Store is the append-only event log.
type Store interface {
	// Append persists a record. Appending an event ID that already exists is
	// a no-op so redeliveries and outbox re-publishes stay idempotent.
	Append(ctx context.Context, rec *Record) error

	// Get returns the record for an event ID.
	Get(ctx context.Context, eventID string) (*Record, error)

	// List returns records matching the filter, newest first.
	List(ctx context.Context, f Filter) ([]*Record, error)

	// Chain walks the causation chain from the given event back to its root,
	// root first.
	Chain(ctx context.Context, eventID string) ([]*Record, error)
}
