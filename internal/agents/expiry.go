package agents

import (
	"context"
	"fmt"
	"time"

	"github.com/palletline-systems/palletline-stack/internal/agent"
	"github.com/palletline-systems/palletline-stack/internal/event"
	"github.com/palletline-systems/palletline-stack/internal/inventory"
)

// ExpiryAgent sweeps lots past their expiration date: marks them EXPIRED and
// emits one Inventory.LotExpired per lot. Idempotent by construction: the
// sweep only sees lots still in a pickable status, so a redelivered sweep
// finds nothing to do.
type ExpiryAgent struct {
	lots inventory.LotRepository
	now  func() time.Time
}

// NewExpiryAgent creates the lot-expiry-sweep agent.
func NewExpiryAgent(lots inventory.LotRepository) *ExpiryAgent {
	return &ExpiryAgent{
		lots: lots,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the agent clock. Test hook.
func (a *ExpiryAgent) SetClock(now func() time.Time) { a.now = now }

func (a *ExpiryAgent) Name() string        { return "lot-expiry-sweep" }
func (a *ExpiryAgent) Description() string { return "expires lots past their expiration date" }
func (a *ExpiryAgent) SubscribesTo() []string {
	return []string{event.TypeScheduledExpiryCheck}
}

func (a *ExpiryAgent) Handle(ctx context.Context, env *event.Envelope, ec *agent.ExecContext) (*agent.Result, error) {
	now := a.now()
	expired, err := a.lots.FindExpiredLots(ctx, ec.TenantID, now)
	if err != nil {
		return nil, fmt.Errorf("find expired lots: %w", err)
	}
	if len(expired) == 0 {
		return agent.OK("no expired lots"), nil
	}

	result := &agent.Result{Success: true}
	for _, lot := range expired {
		if err := a.lots.UpdateLotStatus(ctx, lot.ID, inventory.LotExpired); err != nil {
			return nil, fmt.Errorf("expire lot %s: %w", lot.ID, err)
		}

		daysExpired := -lot.DaysToExpiration(now)
		if daysExpired < 1 {
			daysExpired = 1
		}
		derived, err := env.Derive(event.TypeLotExpired, LotExpiredPayload{
			LotID:       lot.ID,
			ProductID:   lot.ProductID,
			LotNumber:   lot.LotNumber,
			ActionTaken: ActionAutoQuarantine,
			DaysExpired: daysExpired,
		}, event.Actor{Type: event.ActorAgent, ID: a.Name()})
		if err != nil {
			return nil, fmt.Errorf("derive lot expired event: %w", err)
		}
		result.Events = append(result.Events, derived)
	}
	result.Message = fmt.Sprintf("expired %d lots", len(expired))
	return result, nil
}
