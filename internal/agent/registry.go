package agent

import (
	"sort"
	"sync"

	"github.com/palletline-systems/palletline-stack/internal/logging"
)

// Registry indexes agents by name and by subscribed event type. It is
// populated at process start and read-only during steady state; writes are
// serialized by a coarse mutex.
type Registry struct {
	mu            sync.RWMutex
	byName        map[string]Agent
	subscriptions map[string][]string // event type -> agent names, registration order
	log           *logging.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(log *logging.Logger) *Registry {
	return &Registry{
		byName:        make(map[string]Agent),
		subscriptions: make(map[string][]string),
		log:           log.With(logging.Component("agent-registry")),
	}
}

// Register adds an agent, indexing every subscribed event type. Registering
// a duplicate name replaces the prior entry with a warning.
func (r *Registry) Register(a Agent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := a.Name()
	if _, exists := r.byName[name]; exists {
		r.log.Warn("replacing already registered agent", logging.Agent(name))
		r.removeSubscriptions(name)
	}
	r.byName[name] = a
	for _, eventType := range a.SubscribesTo() {
		r.subscriptions[eventType] = append(r.subscriptions[eventType], name)
	}
	r.log.Info("agent registered",
		logging.Agent(name),
		"subscribes_to", a.SubscribesTo())
}

// Unregister removes an agent from both indexes. Unknown names are a no-op.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[name]; !exists {
		return
	}
	delete(r.byName, name)
	r.removeSubscriptions(name)
}

// removeSubscriptions drops name from every event type index. Caller holds
// the write lock.
func (r *Registry) removeSubscriptions(name string) {
	for eventType, names := range r.subscriptions {
		filtered := names[:0]
		for _, n := range names {
			if n != name {
				filtered = append(filtered, n)
			}
		}
		if len(filtered) == 0 {
			delete(r.subscriptions, eventType)
		} else {
			r.subscriptions[eventType] = filtered
		}
	}
}

// Get returns the agent registered under name.
func (r *Registry) Get(name string) (Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.byName[name]
	return a, ok
}

// AgentsFor returns the agents subscribed to the event type plus the
// catch-all subscribers, each at most once, in registration order.
func (r *Registry) AgentsFor(eventType string) []Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool)
	var agents []Agent
	for _, name := range r.subscriptions[eventType] {
		if !seen[name] {
			seen[name] = true
			agents = append(agents, r.byName[name])
		}
	}
	if eventType != MatchAll {
		for _, name := range r.subscriptions[MatchAll] {
			if !seen[name] {
				seen[name] = true
				agents = append(agents, r.byName[name])
			}
		}
	}
	return agents
}

// Names lists every registered agent name, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
