// Package event defines the canonical envelope every domain event travels in,
// from the command transaction through the outbox, the broker, and the agents.
package event

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SchemaVersion is the current envelope schema version (major.minor).
const SchemaVersion = "1.0"

// ActorType identifies what kind of principal produced an event.
type ActorType string

const (
	ActorUser        ActorType = "USER"
	ActorSystem      ActorType = "SYSTEM"
	ActorAgent       ActorType = "AGENT"
	ActorIntegration ActorType = "INTEGRATION"
)

// eventTypeRe is the AggregateName.VerbPhrase grammar every event type must match.
var eventTypeRe = regexp.MustCompile(`^[A-Z][A-Za-z]+\.[A-Z][A-Za-z]+$`)

// Actor identifies who or what produced an envelope.
type Actor struct {
	Type  ActorType `json:"type"`
	ID    string    `json:"id"`
	Roles []string  `json:"roles,omitempty"`
}

// Envelope is an immutable domain event record. Downstream code must never
// mutate an envelope in place; a derivation creates a new envelope whose
// causation_id names the source. Re-publishing an existing envelope unchanged
// is forbidden.
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	OccurredAt    time.Time       `json:"occurred_at"`
	SchemaVersion string          `json:"schema_version"`
	CorrelationID string          `json:"correlation_id"`
	CausationID   string          `json:"causation_id,omitempty"`
	Actor         Actor           `json:"actor"`
	TenantID      string          `json:"tenant_id"`
	WarehouseID   string          `json:"warehouse_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// Context carries the identifiers a constructor needs to mint an envelope.
type Context struct {
	CorrelationID string
	CausationID   string
	Actor         Actor
	TenantID      string
	WarehouseID   string
}

// New mints a new envelope with a fresh event ID, the current UTC timestamp,
// and the current schema version. The payload may be any JSON-serializable
// value; raw JSON is passed through untouched.
func New(eventType string, payload any, ec Context) (*Envelope, error) {
	raw, err := marshalPayload(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload for %s: %w", eventType, err)
	}

	env := &Envelope{
		EventID:       uuid.New().String(),
		EventType:     eventType,
		OccurredAt:    time.Now().UTC(),
		SchemaVersion: SchemaVersion,
		CorrelationID: ec.CorrelationID,
		CausationID:   ec.CausationID,
		Actor:         ec.Actor,
		TenantID:      ec.TenantID,
		WarehouseID:   ec.WarehouseID,
		Payload:       raw,
	}

	if err := env.Validate(); err != nil {
		return nil, err
	}
	return env, nil
}

// Derive creates a new envelope caused by this one. Correlation, tenant and
// warehouse identifiers are preserved along the derivation path; causation_id
// is set to the source's event_id.
func (e *Envelope) Derive(eventType string, payload any, actor Actor) (*Envelope, error) {
	return New(eventType, payload, Context{
		CorrelationID: e.CorrelationID,
		CausationID:   e.EventID,
		Actor:         actor,
		TenantID:      e.TenantID,
		WarehouseID:   e.WarehouseID,
	})
}

// Validate checks the envelope against the wire contract: event type grammar,
// well-formed identifiers, known actor type, and mandatory fields.
func (e *Envelope) Validate() error {
	if !eventTypeRe.MatchString(e.EventType) {
		return fmt.Errorf("%w: event type %q", ErrInvalidEventType, e.EventType)
	}
	if _, err := uuid.Parse(e.EventID); err != nil {
		return fmt.Errorf("%w: event_id %q", ErrInvalidEnvelope, e.EventID)
	}
	if _, err := uuid.Parse(e.CorrelationID); err != nil {
		return fmt.Errorf("%w: correlation_id %q", ErrInvalidEnvelope, e.CorrelationID)
	}
	if e.CausationID != "" {
		if _, err := uuid.Parse(e.CausationID); err != nil {
			return fmt.Errorf("%w: causation_id %q", ErrInvalidEnvelope, e.CausationID)
		}
	}
	if _, err := uuid.Parse(e.TenantID); err != nil {
		return fmt.Errorf("%w: tenant_id %q", ErrInvalidEnvelope, e.TenantID)
	}
	if e.WarehouseID != "" {
		if _, err := uuid.Parse(e.WarehouseID); err != nil {
			return fmt.Errorf("%w: warehouse_id %q", ErrInvalidEnvelope, e.WarehouseID)
		}
	}
	switch e.Actor.Type {
	case ActorUser, ActorSystem, ActorAgent, ActorIntegration:
	default:
		return fmt.Errorf("%w: actor type %q", ErrInvalidEnvelope, e.Actor.Type)
	}
	if e.Actor.ID == "" {
		return fmt.Errorf("%w: empty actor id", ErrInvalidEnvelope)
	}
	if e.OccurredAt.IsZero() {
		return fmt.Errorf("%w: zero occurred_at", ErrInvalidEnvelope)
	}
	if e.SchemaVersion == "" {
		return fmt.Errorf("%w: empty schema_version", ErrInvalidEnvelope)
	}
	return nil
}

// RoutingKey derives the broker routing key from the event type: lower-case,
// dot-separated words split on camel-case boundaries.
// Inventory.MovementRecorded -> inventory.movement.recorded
func (e *Envelope) RoutingKey() string {
	return RoutingKeyFor(e.EventType)
}

// RoutingKeyFor converts an event type to its routing key.
func RoutingKeyFor(eventType string) string {
	var b strings.Builder
	for i, r := range eventType {
		switch {
		case r == '.':
			b.WriteByte('.')
		case r >= 'A' && r <= 'Z':
			if i > 0 && eventType[i-1] != '.' {
				b.WriteByte('.')
			}
			b.WriteRune(r - 'A' + 'a')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// DecodePayload unmarshals the payload into v.
func (e *Envelope) DecodePayload(v any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("%w: empty payload", ErrInvalidEnvelope)
	}
	return json.Unmarshal(e.Payload, v)
}

func marshalPayload(payload any) (json.RawMessage, error) {
	switch p := payload.(type) {
	case nil:
		return json.RawMessage(`{}`), nil
	case json.RawMessage:
		return p, nil
	case []byte:
		return json.RawMessage(p), nil
	default:
		return json.Marshal(payload)
	}
}
