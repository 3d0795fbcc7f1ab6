package agents

import (
	"context"

	"github.com/palletline-systems/palletline-stack/internal/agent"
	"github.com/palletline-systems/palletline-stack/internal/event"
	"github.com/palletline-systems/palletline-stack/internal/logging"
)

// AuditTrailAgent subscribes to every event and writes a structured log line
// per envelope. It never derives events, so the catch-all subscription cannot
// feed the cascade.
type AuditTrailAgent struct{}

// NewAuditTrailAgent creates the audit-trail agent.
func NewAuditTrailAgent() *AuditTrailAgent { return &AuditTrailAgent{} }

func (a *AuditTrailAgent) Name() string        { return "audit-trail" }
func (a *AuditTrailAgent) Description() string { return "logs every event on the bus" }
func (a *AuditTrailAgent) SubscribesTo() []string {
	return []string{event.MatchAll}
}

func (a *AuditTrailAgent) Handle(ctx context.Context, env *event.Envelope, ec *agent.ExecContext) (*agent.Result, error) {
	ec.Log.InfoContext(ctx, "event observed",
		logging.EventID(env.EventID),
		logging.EventType(env.EventType),
		logging.TenantID(env.TenantID),
		logging.CorrelationID(env.CorrelationID),
		logging.CausationID(env.CausationID),
		"actor_type", string(env.Actor.Type),
		"actor_id", env.Actor.ID,
		"occurred_at", env.OccurredAt)
	return agent.OK("logged"), nil
}
