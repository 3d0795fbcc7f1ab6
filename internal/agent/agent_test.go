package agent

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/palletline-systems/palletline-stack/internal/event"
	"github.com/palletline-systems/palletline-stack/internal/logging"
)

type stubAgent struct {
	name       string
	subscribes []string
	handle     func(ctx context.Context, env *event.Envelope, ec *ExecContext) (*Result, error)
}

func (s *stubAgent) Name() string            { return s.name }
func (s *stubAgent) Description() string     { return "stub" }
func (s *stubAgent) SubscribesTo() []string  { return s.subscribes }
func (s *stubAgent) Handle(ctx context.Context, env *event.Envelope, ec *ExecContext) (*Result, error) {
	if s.handle == nil {
		return OK(""), nil
	}
	return s.handle(ctx, env, ec)
}

func testLogger() *logging.Logger {
	return logging.New(slog.LevelError, "json")
}

func inboundEnvelope(t *testing.T) *event.Envelope {
	t.Helper()
	env, err := event.New(event.TypeMovementRecorded, map[string]any{"quantity": 1}, event.Context{
		CorrelationID: uuid.New().String(),
		Actor:         event.Actor{Type: event.ActorUser, ID: "u-1"},
		TenantID:      uuid.New().String(),
		WarehouseID:   uuid.New().String(),
	})
	require.NoError(t, err)
	return env
}

func TestRegistryAgentsForIncludesCatchAll(t *testing.T) {
	reg := NewRegistry(testLogger())
	reg.Register(&stubAgent{name: "specific", subscribes: []string{event.TypeMovementRecorded}})
	reg.Register(&stubAgent{name: "catch-all", subscribes: []string{MatchAll}})
	reg.Register(&stubAgent{name: "other", subscribes: []string{event.TypeGoodsReceived}})

	agents := reg.AgentsFor(event.TypeMovementRecorded)
	require.Len(t, agents, 2)
	assert.Equal(t, "specific", agents[0].Name())
	assert.Equal(t, "catch-all", agents[1].Name())

	agents = reg.AgentsFor("SalesOrder.OrderPlaced")
	require.Len(t, agents, 1)
	assert.Equal(t, "catch-all", agents[0].Name())
}

func TestRegistryDuplicateNameReplaces(t *testing.T) {
	reg := NewRegistry(testLogger())
	reg.Register(&stubAgent{name: "dup", subscribes: []string{event.TypeGoodsReceived}})
	reg.Register(&stubAgent{name: "dup", subscribes: []string{event.TypeMovementRecorded}})

	assert.Empty(t, reg.AgentsFor(event.TypeGoodsReceived), "old subscriptions are dropped")
	require.Len(t, reg.AgentsFor(event.TypeMovementRecorded), 1)
	assert.Equal(t, []string{"dup"}, reg.Names())
}

func TestRegistryUnregister(t *testing.T) {
	reg := NewRegistry(testLogger())
	reg.Register(&stubAgent{name: "a", subscribes: []string{MatchAll}})
	reg.Unregister("a")
	reg.Unregister("missing")

	assert.Empty(t, reg.AgentsFor(event.TypeGoodsReceived))
	_, ok := reg.Get("a")
	assert.False(t, ok)
}

func TestDispatchRewritesDerivedIdentity(t *testing.T) {
	reg := NewRegistry(testLogger())
	reg.Register(&stubAgent{
		name:       "emitter",
		subscribes: []string{event.TypeMovementRecorded},
		handle: func(_ context.Context, env *event.Envelope, _ *ExecContext) (*Result, error) {
			// Deliberately wrong identity fields; the runtime must fix them.
			derived, err := event.New(event.TypeLowStockAlert, map[string]any{"severity": "WARNING"}, event.Context{
				CorrelationID: uuid.New().String(),
				Actor:         event.Actor{Type: event.ActorUser, ID: "wrong"},
				TenantID:      uuid.New().String(),
			})
			if err != nil {
				return nil, err
			}
			return OK("emitted", derived), nil
		},
	})
	rt := NewRuntime(reg, RuntimeConfig{ContinueOnError: true}, testLogger())
	inbound := inboundEnvelope(t)

	dispatch, err := rt.Dispatch(context.Background(), inbound)
	require.NoError(t, err)
	require.Len(t, dispatch.Events, 1)

	derived := dispatch.Events[0]
	assert.Equal(t, inbound.TenantID, derived.TenantID)
	assert.Equal(t, inbound.CorrelationID, derived.CorrelationID)
	assert.Equal(t, inbound.EventID, derived.CausationID)
	assert.Equal(t, inbound.WarehouseID, derived.WarehouseID)
	assert.Equal(t, event.ActorAgent, derived.Actor.Type)
	assert.Equal(t, "emitter", derived.Actor.ID)
	assert.Equal(t, 1, dispatch.Succeeded)
}

func TestDispatchDomainFailureDoesNotError(t *testing.T) {
	reg := NewRegistry(testLogger())
	reg.Register(&stubAgent{
		name:       "conflicted",
		subscribes: []string{event.TypeMovementRecorded},
		handle: func(context.Context, *event.Envelope, *ExecContext) (*Result, error) {
			return Fail("insufficient stock", "NEGATIVE_STOCK_BLOCKED"), nil
		},
	})
	reg.Register(&stubAgent{name: "healthy", subscribes: []string{event.TypeMovementRecorded}})
	rt := NewRuntime(reg, RuntimeConfig{ContinueOnError: true}, testLogger())

	dispatch, err := rt.Dispatch(context.Background(), inboundEnvelope(t))
	require.NoError(t, err, "domain failures do not trigger redelivery")
	assert.Equal(t, 1, dispatch.Succeeded)
	assert.Equal(t, 1, dispatch.Failed)
	assert.Equal(t, "NEGATIVE_STOCK_BLOCKED", dispatch.Failures["conflicted"])
}

func TestDispatchInfrastructureErrorPropagates(t *testing.T) {
	reg := NewRegistry(testLogger())
	reg.Register(&stubAgent{
		name:       "broken",
		subscribes: []string{event.TypeMovementRecorded},
		handle: func(context.Context, *event.Envelope, *ExecContext) (*Result, error) {
			return nil, context.DeadlineExceeded
		},
	})
	rt := NewRuntime(reg, RuntimeConfig{ContinueOnError: true}, testLogger())

	dispatch, err := rt.Dispatch(context.Background(), inboundEnvelope(t))
	require.Error(t, err)
	assert.Equal(t, 1, dispatch.Failed)
}

func TestDispatchPanicBecomesError(t *testing.T) {
	reg := NewRegistry(testLogger())
	reg.Register(&stubAgent{
		name:       "panicky",
		subscribes: []string{event.TypeMovementRecorded},
		handle: func(context.Context, *event.Envelope, *ExecContext) (*Result, error) {
			panic("boom")
		},
	})
	rt := NewRuntime(reg, RuntimeConfig{ContinueOnError: true}, testLogger())

	_, err := rt.Dispatch(context.Background(), inboundEnvelope(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicked")
}

func TestDispatchTimeout(t *testing.T) {
	reg := NewRegistry(testLogger())
	reg.Register(&stubAgent{
		name:       "slow",
		subscribes: []string{event.TypeMovementRecorded},
		handle: func(ctx context.Context, _ *event.Envelope, _ *ExecContext) (*Result, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	})
	rt := NewRuntime(reg, RuntimeConfig{Timeout: 20 * time.Millisecond, ContinueOnError: true}, testLogger())

	_, err := rt.Dispatch(context.Background(), inboundEnvelope(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
}

func TestDispatchShortCircuitWithoutContinueOnError(t *testing.T) {
	invoked := make(chan string, 3)
	mk := func(name string, fail bool) *stubAgent {
		return &stubAgent{
			name:       name,
			subscribes: []string{event.TypeMovementRecorded},
			handle: func(context.Context, *event.Envelope, *ExecContext) (*Result, error) {
				invoked <- name
				if fail {
					return Fail("no"), nil
				}
				return OK(""), nil
			},
		}
	}
	reg := NewRegistry(testLogger())
	reg.Register(mk("first", true))
	reg.Register(mk("second", false))

	// Concurrency 1 forces one agent per batch; the second batch must not run.
	rt := NewRuntime(reg, RuntimeConfig{Concurrency: 1, ContinueOnError: false}, testLogger())
	dispatch, err := rt.Dispatch(context.Background(), inboundEnvelope(t))
	require.NoError(t, err)

	close(invoked)
	var names []string
	for n := range invoked {
		names = append(names, n)
	}
	assert.Equal(t, []string{"first"}, names)
	assert.Equal(t, 1, dispatch.Failed)
	assert.Equal(t, 0, dispatch.Succeeded)
}

func TestDispatchNoSubscribers(t *testing.T) {
	rt := NewRuntime(NewRegistry(testLogger()), RuntimeConfig{}, testLogger())
	dispatch, err := rt.Dispatch(context.Background(), inboundEnvelope(t))
	require.NoError(t, err)
	assert.Empty(t, dispatch.Events)
	assert.Zero(t, dispatch.Succeeded)
}
