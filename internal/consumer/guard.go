package consumer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Guard tracks which event IDs have already been fully processed. The broker
// delivers at least once, so the guard is what turns redeliveries into no-ops
// at the consumer edge. Agents are additionally idempotent on their own
// terms; the guard is the fast path, not the only defense.
type Guard interface {
	// Seen reports whether the event ID was already processed.
	Seen(ctx context.Context, eventID string) (bool, error)

	// Mark records the event ID as processed.
	Mark(ctx context.Context, eventID string) error
}

const guardKeyPrefix = "palletline:processed:"

// RedisGuard keeps processed-event markers in redis with a TTL, so the set
// is shared across consumer replicas and survives restarts.
type RedisGuard struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedisGuard creates a redis-backed guard. TTL bounds marker lifetime;
// it must exceed the broker's maximum redelivery horizon.
func NewRedisGuard(client redis.UniversalClient, ttl time.Duration) *RedisGuard {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisGuard{client: client, ttl: ttl}
}

func (g *RedisGuard) Seen(ctx context.Context, eventID string) (bool, error) {
	n, err := g.client.Exists(ctx, guardKeyPrefix+eventID).Result()
	if err != nil {
		return false, fmt.Errorf("check processed marker: %w", err)
	}
	return n > 0, nil
}

func (g *RedisGuard) Mark(ctx context.Context, eventID string) error {
	if err := g.client.Set(ctx, guardKeyPrefix+eventID, 1, g.ttl).Err(); err != nil {
		return fmt.Errorf("set processed marker: %w", err)
	}
	return nil
}

// MemoryGuard is an in-process guard for tests and single-node setups.
type MemoryGuard struct {
	mu      sync.Mutex
	seen    map[string]time.Time
	ttl     time.Duration
	nowFunc func() time.Time
}

// NewMemoryGuard creates an in-memory guard.
func NewMemoryGuard(ttl time.Duration) *MemoryGuard {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &MemoryGuard{
		seen:    make(map[string]time.Time),
		ttl:     ttl,
		nowFunc: time.Now,
	}
}

// SetClock overrides the guard clock. Test hook.
func (g *MemoryGuard) SetClock(now func() time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nowFunc = now
}

func (g *MemoryGuard) Seen(_ context.Context, eventID string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	expiry, ok := g.seen[eventID]
	if !ok {
		return false, nil
	}
	if g.nowFunc().After(expiry) {
		delete(g.seen, eventID)
		return false, nil
	}
	return true, nil
}

func (g *MemoryGuard) Mark(_ context.Context, eventID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seen[eventID] = g.nowFunc().Add(g.ttl)
	return nil
}
