package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/palletline-systems/palletline-stack/internal/event"
	"github.com/palletline-systems/palletline-stack/internal/logging"
	"github.com/palletline-systems/palletline-stack/internal/metrics"
)

// RuntimeConfig controls agent execution.
type RuntimeConfig struct {
	// Concurrency is the batch size: at most this many agents run in
	// parallel for one inbound envelope.
	Concurrency int

	// Timeout is the per-agent invocation deadline.
	Timeout time.Duration

	// ContinueOnError keeps executing remaining batches after a failure;
	// false short-circuits once any failure in the current batch is seen.
	ContinueOnError bool
}

// Dispatch summarizes one inbound envelope's trip through the agents.
type Dispatch struct {
	// Events is every derived envelope, in agent-completion order, after the
	// defensive identity rewrite.
	Events []*event.Envelope

	// Succeeded and Failed count agent invocations.
	Succeeded int
	Failed    int

	// WallTime is the total dispatch duration.
	WallTime time.Duration

	// Failures maps agent name to its failure description.
	Failures map[string]string
}

// Runtime executes the subscribed agents for one inbound envelope with
// bounded concurrency and per-agent timeouts. It never touches the broker;
// derived envelopes go back to the caller.
//
// Two failure channels exist. An agent that returns a Result with
// Success=false reports a domain failure: it is aggregated and the inbound
// message is still acked. An agent that returns an error (or panics, or
// exceeds its deadline) reports an infrastructure failure: Dispatch returns
// a non-nil error alongside the partial aggregate, and the caller's retry
// machinery takes over.
type Runtime struct {
	registry *Registry
	cfg      RuntimeConfig
	log      *logging.Logger
}

// NewRuntime creates a runtime over the registry.
func NewRuntime(registry *Registry, cfg RuntimeConfig, log *logging.Logger) *Runtime {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 10
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Runtime{
		registry: registry,
		cfg:      cfg,
		log:      log.With(logging.Component("agent-runtime")),
	}
}

// Dispatch runs every agent subscribed to the envelope's event type.
func (r *Runtime) Dispatch(ctx context.Context, env *event.Envelope) (*Dispatch, error) {
	started := time.Now()
	agents := r.registry.AgentsFor(env.EventType)

	dispatch := &Dispatch{Failures: make(map[string]string)}
	if len(agents) == 0 {
		dispatch.WallTime = time.Since(started)
		return dispatch, nil
	}

	ec := &ExecContext{
		TenantID:      env.TenantID,
		WarehouseID:   env.WarehouseID,
		CorrelationID: env.CorrelationID,
		Log:           r.log,
	}

	var (
		mu        sync.Mutex
		infraErrs []error
	)
	for start := 0; start < len(agents); start += r.cfg.Concurrency {
		end := start + r.cfg.Concurrency
		if end > len(agents) {
			end = len(agents)
		}
		batch := agents[start:end]

		g, gctx := errgroup.WithContext(ctx)
		batchFailed := false
		for _, a := range batch {
			a := a
			g.Go(func() error {
				result, err := r.invoke(gctx, a, env, ec)

				mu.Lock()
				defer mu.Unlock()
				switch {
				case err != nil:
					dispatch.Failed++
					batchFailed = true
					dispatch.Failures[a.Name()] = err.Error()
					infraErrs = append(infraErrs, fmt.Errorf("agent %s: %w", a.Name(), err))
				case result.Success:
					dispatch.Succeeded++
					dispatch.Events = append(dispatch.Events, r.sanitize(env, a.Name(), result.Events)...)
				default:
					dispatch.Failed++
					batchFailed = true
					dispatch.Failures[a.Name()] = failureText(result)
					dispatch.Events = append(dispatch.Events, r.sanitize(env, a.Name(), result.Events)...)
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return dispatch, err
		}
		if batchFailed && !r.cfg.ContinueOnError {
			r.log.WarnContext(ctx, "short-circuiting remaining agent batches",
				logging.EventID(env.EventID),
				"remaining", len(agents)-end)
			break
		}
	}

	dispatch.WallTime = time.Since(started)
	return dispatch, errors.Join(infraErrs...)
}

// invoke runs one agent under the per-agent deadline. Panics and timeouts
// surface as errors so the caller's retry path can take over.
func (r *Runtime) invoke(ctx context.Context, a Agent, env *event.Envelope, ec *ExecContext) (*Result, error) {
	actx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	started := time.Now()
	done := make(chan *Result, 1)
	errc := make(chan error, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				errc <- fmt.Errorf("agent panicked: %v", rec)
			}
		}()
		res, err := a.Handle(actx, env, ec)
		if err != nil {
			errc <- err
			return
		}
		if res == nil {
			res = OK("")
		}
		done <- res
	}()

	var (
		result *Result
		err    error
	)
	select {
	case result = <-done:
	case err = <-errc:
		r.log.WarnContext(ctx, "agent failed",
			logging.Agent(a.Name()),
			logging.EventID(env.EventID),
			logging.Error(err))
	case <-actx.Done():
		err = fmt.Errorf("agent %s timed out after %s", a.Name(), r.cfg.Timeout)
		r.log.WarnContext(ctx, "agent timed out",
			logging.Agent(a.Name()),
			logging.EventID(env.EventID),
			"timeout", r.cfg.Timeout.String())
	}

	elapsed := time.Since(started)
	outcome := "success"
	if err != nil || (result != nil && !result.Success) {
		outcome = "failure"
	}
	metrics.AgentInvocations.WithLabelValues(a.Name(), outcome).Inc()
	metrics.AgentDuration.WithLabelValues(a.Name()).Observe(elapsed.Seconds())
	r.log.DebugContext(ctx, "agent invocation finished",
		logging.Agent(a.Name()),
		logging.EventID(env.EventID),
		logging.EventType(env.EventType),
		logging.Duration(elapsed.Milliseconds()),
		"outcome", outcome)
	return result, err
}

// sanitize defensively rewrites the identity fields on every derived
// envelope: tenant, warehouse and correlation come from the inbound envelope,
// causation names it, and the actor is the emitting agent.
func (r *Runtime) sanitize(inbound *event.Envelope, agentName string, events []*event.Envelope) []*event.Envelope {
	out := make([]*event.Envelope, 0, len(events))
	for _, derived := range events {
		if derived == nil {
			continue
		}
		derived.TenantID = inbound.TenantID
		derived.CorrelationID = inbound.CorrelationID
		derived.CausationID = inbound.EventID
		if derived.WarehouseID == "" {
			derived.WarehouseID = inbound.WarehouseID
		}
		if derived.Actor.Type != event.ActorAgent || derived.Actor.ID == "" {
			derived.Actor = event.Actor{Type: event.ActorAgent, ID: agentName}
		}
		out = append(out, derived)
	}
	return out
}

func failureText(result *Result) string {
	if len(result.Errors) > 0 {
		return result.Errors[0]
	}
	return result.Message
}
