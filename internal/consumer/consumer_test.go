package consumer

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/palletline-systems/palletline-stack/internal/agent"
	"github.com/palletline-systems/palletline-stack/internal/event"
	"github.com/palletline-systems/palletline-stack/internal/eventstore"
	"github.com/palletline-systems/palletline-stack/internal/logging"
	"github.com/palletline-systems/palletline-stack/internal/messaging"
)

type fakeMsg struct {
	subject   string
	data      []byte
	delivered int

	acked bool
	naks  []time.Duration
}

func (m *fakeMsg) Subject() string { return m.subject }
func (m *fakeMsg) Data() []byte    { return m.data }
func (m *fakeMsg) Delivered() int {
	if m.delivered == 0 {
		return 1
	}
	return m.delivered
}
func (m *fakeMsg) Ack() error { m.acked = true; return nil }
func (m *fakeMsg) NakWithDelay(d time.Duration) error {
	m.naks = append(m.naks, d)
	return nil
}

type published struct {
	subject string
	msgID   string
	data    []byte
	header  map[string]string
}

type fakePublisher struct {
	calls []published
	err   error
}

func (p *fakePublisher) Publish(_ context.Context, subject, msgID string, data []byte, header map[string]string) error {
	if p.err != nil {
		return p.err
	}
	p.calls = append(p.calls, published{subject: subject, msgID: msgID, data: data, header: header})
	return nil
}

func (p *fakePublisher) Close() error { return nil }

type stubAgent struct {
	name       string
	subscribes []string
	handle     func(ctx context.Context, env *event.Envelope, ec *agent.ExecContext) (*agent.Result, error)
}

func (a *stubAgent) Name() string            { return a.name }
func (a *stubAgent) Description() string     { return "stub" }
func (a *stubAgent) SubscribesTo() []string  { return a.subscribes }
func (a *stubAgent) Handle(ctx context.Context, env *event.Envelope, ec *agent.ExecContext) (*agent.Result, error) {
	return a.handle(ctx, env, ec)
}

type harness struct {
	consumer  *Consumer
	publisher *fakePublisher
	store     *eventstore.MemoryStore
	guard     *MemoryGuard
	registry  *agent.Registry
}

func newHarness(t *testing.T, agents ...agent.Agent) *harness {
	t.Helper()
	log := logging.New(slog.LevelError, "json")
	registry := agent.NewRegistry(log)
	for _, a := range agents {
		registry.Register(a)
	}
	runtime := agent.NewRuntime(registry, agent.RuntimeConfig{
		Concurrency:     4,
		Timeout:         time.Second,
		ContinueOnError: true,
	}, log)

	publisher := &fakePublisher{}
	store := eventstore.NewMemoryStore()
	guard := NewMemoryGuard(time.Hour)
	return &harness{
		consumer:  New(runtime, publisher, store, guard, DefaultConfig(), log),
		publisher: publisher,
		store:     store,
		guard:     guard,
		registry:  registry,
	}
}

func testEnvelope(t *testing.T, eventType string) *event.Envelope {
	t.Helper()
	env, err := event.New(eventType, map[string]string{"k": "v"}, event.Context{
		CorrelationID: uuid.New().String(),
		Actor:         event.Actor{Type: event.ActorUser, ID: "u-1"},
		TenantID:      uuid.New().String(),
		WarehouseID:   uuid.New().String(),
	})
	require.NoError(t, err)
	return env
}

func msgFor(t *testing.T, env *event.Envelope) *fakeMsg {
	t.Helper()
	data, err := event.Encode(env)
	require.NoError(t, err)
	return &fakeMsg{
		subject: messaging.EventSubject(event.RoutingKeyFor(env.EventType)),
		data:    data,
	}
}

func TestProcessDispatchesAndPublishesDerived(t *testing.T) {
	echo := &stubAgent{
		name:       "echo",
		subscribes: []string{event.TypeGoodsReceived},
		handle: func(_ context.Context, env *event.Envelope, _ *agent.ExecContext) (*agent.Result, error) {
			derived, err := env.Derive(event.TypeSlottingSuggestions, map[string]string{"ok": "1"},
				event.Actor{Type: event.ActorAgent, ID: "echo"})
			require.NoError(t, err)
			return agent.OK("done", derived), nil
		},
	}
	h := newHarness(t, echo)

	env := testEnvelope(t, event.TypeGoodsReceived)
	msg := msgFor(t, env)
	h.consumer.Process(context.Background(), msg)

	assert.True(t, msg.acked)
	assert.Empty(t, msg.naks)

	// Inbound and derived both landed in the event store.
	_, err := h.store.Get(context.Background(), env.EventID)
	require.NoError(t, err)
	assert.Equal(t, 2, h.store.Len())

	require.Len(t, h.publisher.calls, 1)
	call := h.publisher.calls[0]
	assert.Equal(t, "events.inventory.slotting.suggestions.generated", call.subject)
	assert.Equal(t, env.TenantID, call.header[messaging.HeaderTenantID])
	assert.Equal(t, env.CorrelationID, call.header[messaging.HeaderCorrelationID])
	assert.Equal(t, env.EventID, call.header[messaging.HeaderCausationID])

	derived, err := event.Decode(call.data)
	require.NoError(t, err)
	assert.Equal(t, derived.EventID, call.msgID)
	assert.Equal(t, env.EventID, derived.CausationID)

	seen, err := h.guard.Seen(context.Background(), env.EventID)
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestProcessSkipsDuplicateDelivery(t *testing.T) {
	calls := 0
	counting := &stubAgent{
		name:       "counting",
		subscribes: []string{event.TypeGoodsReceived},
		handle: func(context.Context, *event.Envelope, *agent.ExecContext) (*agent.Result, error) {
			calls++
			return agent.OK("noted"), nil
		},
	}
	h := newHarness(t, counting)

	env := testEnvelope(t, event.TypeGoodsReceived)
	first := msgFor(t, env)
	h.consumer.Process(context.Background(), first)
	require.True(t, first.acked)
	require.Equal(t, 1, calls)

	second := msgFor(t, env)
	second.delivered = 2
	h.consumer.Process(context.Background(), second)
	assert.True(t, second.acked)
	assert.Equal(t, 1, calls, "duplicate must not reach the agents")
}

func TestProcessDomainFailureStillAcks(t *testing.T) {
	conflicted := &stubAgent{
		name:       "conflicted",
		subscribes: []string{event.TypeGoodsReceived},
		handle: func(context.Context, *event.Envelope, *agent.ExecContext) (*agent.Result, error) {
			return agent.Fail("negative stock blocked"), nil
		},
	}
	h := newHarness(t, conflicted)

	msg := msgFor(t, testEnvelope(t, event.TypeGoodsReceived))
	h.consumer.Process(context.Background(), msg)

	assert.True(t, msg.acked, "domain failures do not trigger redelivery")
	assert.Empty(t, msg.naks)
	assert.Empty(t, h.publisher.calls)
}

func TestProcessInfrastructureFailureBacksOff(t *testing.T) {
	flaky := &stubAgent{
		name:       "flaky",
		subscribes: []string{event.TypeGoodsReceived},
		handle: func(context.Context, *event.Envelope, *agent.ExecContext) (*agent.Result, error) {
			return nil, errors.New("database unavailable")
		},
	}
	h := newHarness(t, flaky)

	env := testEnvelope(t, event.TypeGoodsReceived)

	msg := msgFor(t, env)
	h.consumer.Process(context.Background(), msg)
	assert.False(t, msg.acked)
	require.Len(t, msg.naks, 1)
	assert.Equal(t, 2*time.Second, msg.naks[0])

	second := msgFor(t, env)
	second.delivered = 2
	h.consumer.Process(context.Background(), second)
	require.Len(t, second.naks, 1)
	assert.Equal(t, 4*time.Second, second.naks[0])

	third := msgFor(t, env)
	third.delivered = 3
	h.consumer.Process(context.Background(), third)
	require.Len(t, third.naks, 1)
	assert.Equal(t, 8*time.Second, third.naks[0])

	// Guard was never marked; redeliveries still reach the agents.
	seen, err := h.guard.Seen(context.Background(), env.EventID)
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestProcessDeadLettersAfterRetryBudget(t *testing.T) {
	broken := &stubAgent{
		name:       "broken",
		subscribes: []string{event.TypeGoodsReceived},
		handle: func(context.Context, *event.Envelope, *agent.ExecContext) (*agent.Result, error) {
			return nil, errors.New("still broken")
		},
	}
	h := newHarness(t, broken)

	env := testEnvelope(t, event.TypeGoodsReceived)
	msg := msgFor(t, env)
	msg.delivered = 4

	h.consumer.Process(context.Background(), msg)

	assert.Empty(t, msg.naks)
	assert.True(t, msg.acked, "parked messages leave the work queue")
	require.Len(t, h.publisher.calls, 1)
	call := h.publisher.calls[0]
	assert.Equal(t, messaging.SubjectDeadLetter, call.subject)
	assert.Equal(t, env.EventID, call.msgID)
	assert.Equal(t, msg.subject, call.header["x-original-subject"])
	assert.Equal(t, "3", call.header[messaging.HeaderRetryCount])
	assert.Equal(t, msg.data, call.data)
}

func TestProcessDeadLettersMalformedPayloadImmediately(t *testing.T) {
	h := newHarness(t)

	msg := &fakeMsg{subject: "events.broken", data: []byte("not json")}
	h.consumer.Process(context.Background(), msg)

	assert.True(t, msg.acked)
	assert.Empty(t, msg.naks, "a poison message never earns a retry")
	require.Len(t, h.publisher.calls, 1)
	assert.Equal(t, messaging.SubjectDeadLetter, h.publisher.calls[0].subject)
}

func TestProcessLeavesMessageWhenDeadLetterPublishFails(t *testing.T) {
	h := newHarness(t)
	h.publisher.err = errors.New("broker down")

	msg := &fakeMsg{subject: "events.broken", data: []byte("not json")}
	h.consumer.Process(context.Background(), msg)

	assert.False(t, msg.acked, "without a park the broker must redeliver")
}

func TestBackoffDoublesPerAttempt(t *testing.T) {
	assert.Equal(t, 2*time.Second, Backoff(0))
	assert.Equal(t, 2*time.Second, Backoff(1))
	assert.Equal(t, 4*time.Second, Backoff(2))
	assert.Equal(t, 8*time.Second, Backoff(3))
	assert.Equal(t, 1024*time.Second, Backoff(10))
	assert.Equal(t, 1024*time.Second, Backoff(99))
}

func TestRedisGuard(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	defer client.Close()

	guard := NewRedisGuard(client, time.Minute)
	ctx := context.Background()
	eventID := uuid.New().String()

	seen, err := guard.Seen(ctx, eventID)
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, guard.Mark(ctx, eventID))
	seen, err = guard.Seen(ctx, eventID)
	require.NoError(t, err)
	assert.True(t, seen)

	// Markers expire with the TTL.
	srv.FastForward(2 * time.Minute)
	seen, err = guard.Seen(ctx, eventID)
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestMemoryGuardExpiry(t *testing.T) {
	guard := NewMemoryGuard(time.Minute)
	now := time.Now()
	guard.SetClock(func() time.Time { return now })

	ctx := context.Background()
	require.NoError(t, guard.Mark(ctx, "e-1"))

	seen, err := guard.Seen(ctx, "e-1")
	require.NoError(t, err)
	assert.True(t, seen)

	now = now.Add(2 * time.Minute)
	seen, err = guard.Seen(ctx, "e-1")
	require.NoError(t, err)
	assert.False(t, seen)
}
