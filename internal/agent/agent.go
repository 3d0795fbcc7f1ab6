// Package agent defines the reaction-handler contract, the subscription
// registry, and the runtime that executes agents for one inbound event.
package agent

import (
	"context"

	"github.com/palletline-systems/palletline-stack/internal/event"
	"github.com/palletline-systems/palletline-stack/internal/logging"
)

// MatchAll subscribes an agent to every event type.
const MatchAll = "*"

// ExecContext carries the per-invocation ambient state an agent may use.
type ExecContext struct {
	TenantID      string
	WarehouseID   string
	CorrelationID string
	Log           *logging.Logger
}

// Result is what an agent returns from one invocation. Events are derived
// envelopes handed to the caller for publication; agents never touch the
// broker themselves.
type Result struct {
	Success bool
	Message string
	Data    map[string]any
	Events  []*event.Envelope
	Errors  []string
}

// OK builds a successful result.
func OK(message string, events ...*event.Envelope) *Result {
	return &Result{Success: true, Message: message, Events: events}
}

// Fail builds a failed result. The inbound event is still acked; the failure
// is persisted as logs and metrics, not as a redelivery.
func Fail(message string, errs ...string) *Result {
	return &Result{Success: false, Message: message, Errors: errs}
}

// Agent is a reaction handler. Implementations must be idempotent on
// redelivery: running twice on the same inbound envelope must not duplicate
// state changes.
type Agent interface {
	// Name is the unique agent identifier.
	Name() string

	// Description is a short human summary for operators.
	Description() string

	// SubscribesTo lists the event types the agent reacts to; "*" means all.
	SubscribesTo() []string

	// Handle reacts to one inbound envelope. A returned error marks an
	// infrastructure failure eligible for redelivery; domain failures belong
	// in the Result with Success=false.
	Handle(ctx context.Context, env *event.Envelope, ec *ExecContext) (*Result, error)
}
