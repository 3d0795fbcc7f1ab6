package outbox

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryRepository is an in-memory Repository for tests and single-process
// development setups.
type MemoryRepository struct {
	mu      sync.Mutex
	entries map[string]*Entry
	now     func() time.Time
}

// NewMemoryRepository creates an empty in-memory outbox.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		entries: make(map[string]*Entry),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the repository clock. Test hook.
func (r *MemoryRepository) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

func (r *MemoryRepository) Enqueue(_ context.Context, entry *Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[entry.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicate, entry.ID)
	}
	cp := *entry
	r.entries[entry.ID] = &cp
	return nil
}

func (r *MemoryRepository) ClaimPending(_ context.Context, limit int) ([]*Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	var due []*Entry
	for _, e := range r.entries {
		if e.Status == StatusPending && !e.ScheduledAt.After(now) {
			cp := *e
			due = append(due, &cp)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].CreatedAt.Before(due[j].CreatedAt) })
	if len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (r *MemoryRepository) MarkPublished(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	now := r.now()
	e.Status = StatusPublished
	e.PublishedAt = &now
	return nil
}

func (r *MemoryRepository) MarkFailed(_ context.Context, id string, cause string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	e.RetryCount++
	e.LastError = cause
	if e.RetryCount >= e.MaxRetries {
		e.Status = StatusFailed
	} else {
		e.Status = StatusPending
		e.ScheduledAt = r.now().Add(Backoff(e.RetryCount))
	}
	return nil
}

func (r *MemoryRepository) Requeue(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	e.Status = StatusPending
	e.RetryCount = 0
	e.LastError = ""
	e.ScheduledAt = r.now()
	return nil
}

func (r *MemoryRepository) GC(_ context.Context, publishedBefore time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed int64
	for id, e := range r.entries {
		if e.Status == StatusPublished && e.PublishedAt != nil && e.PublishedAt.Before(publishedBefore) {
			delete(r.entries, id)
			removed++
		}
	}
	return removed, nil
}

func (r *MemoryRepository) Stats(_ context.Context) (*Stats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := &Stats{}
	for _, e := range r.entries {
		switch e.Status {
		case StatusPending:
			s.Pending++
		case StatusPublished:
			s.Published++
		case StatusFailed:
			s.Failed++
		}
	}
	return s, nil
}

// Get returns a copy of an entry. Test helper.
func (r *MemoryRepository) Get(id string) (*Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return nil, false
	}
	cp := *e
	return &cp, true
}

var _ Repository = (*MemoryRepository)(nil)
