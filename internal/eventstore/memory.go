package eventstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore is an in-memory Store for tests and single-process setups.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
}

// NewMemoryStore creates an empty in-memory event store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*Record)}
}

func (s *MemoryStore) Append(_ context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[rec.EventID]; exists {
		return nil
	}
	cp := *rec
	s.records[rec.EventID] = &cp
	return nil
}

func (s *MemoryStore) Get(_ context.Context, eventID string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[eventID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, eventID)
	}
	cp := *rec
	return &cp, nil
}

func (s *MemoryStore) List(_ context.Context, f Filter) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Record
	for _, rec := range s.records {
		if f.TenantID != "" && rec.TenantID != f.TenantID {
			continue
		}
		if f.EventType != "" && rec.EventType != f.EventType {
			continue
		}
		if f.CorrelationID != "" && rec.CorrelationID != f.CorrelationID {
			continue
		}
		if !f.Since.IsZero() && rec.OccurredAt.Before(f.Since) {
			continue
		}
		if !f.Until.IsZero() && !rec.OccurredAt.Before(f.Until) {
			continue
		}
		cp := *rec
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OccurredAt.After(out[j].OccurredAt) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *MemoryStore) Chain(_ context.Context, eventID string) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[eventID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, eventID)
	}

	var chain []*Record
	seen := make(map[string]bool)
	for rec != nil && !seen[rec.EventID] {
		seen[rec.EventID] = true
		cp := *rec
		chain = append(chain, &cp)
		if rec.CausationID == "" {
			break
		}
		rec = s.records[rec.CausationID]
	}

	// Root first.
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

// Len returns the number of stored events. Test helper.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

var _ Store = (*MemoryStore)(nil)
