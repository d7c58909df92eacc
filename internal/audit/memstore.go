package audit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

var _ Store = (*MemStore)(nil)

// MemStore is an in-memory [Store] bounded to a fixed number of entries.
// The oldest entries are dropped first. The zero value keeps up to 1000.
type MemStore struct {
	mu      sync.RWMutex
	entries []Entry
	max     int
	now     func() time.Time
}

// NewMemStore returns a MemStore holding at most max entries. max <= 0
// means 1000.
func NewMemStore(max int) *MemStore {
	return &MemStore{max: max}
}

// Record implements [Store].
func (s *MemStore) Record(_ context.Context, e Entry) (Entry, error) {
	now := time.Now
	if s.now != nil {
		now = s.now
	}
	e, err := Prepare(e, now())
	if err != nil {
		return Entry{}, fmt.Errorf("audit: record: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	limit := s.max
	if limit <= 0 {
		limit = 1000
	}
	s.entries = append(s.entries, e)
	if over := len(s.entries) - limit; over > 0 {
		s.entries = append(s.entries[:0:0], s.entries[over:]...)
	}
	return e, nil
}

// Get implements [Store].
func (s *MemStore) Get(_ context.Context, id string) (Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.entries {
		if e.ID == id {
			return e, nil
		}
	}
	return Entry{}, ErrNotFound
}

// List implements [Store].
func (s *MemStore) List(_ context.Context, opts ListOptions) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit := opts.EffectiveLimit()
	out := make([]Entry, 0, min(limit, len(s.entries)))
	for i := len(s.entries) - 1; i >= 0 && len(out) < limit; i-- {
		e := s.entries[i]
		if opts.CallID != "" && e.CallID != opts.CallID {
			continue
		}
		if opts.Outcome != "" && e.Outcome != opts.Outcome {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// Len returns the number of entries held.
func (s *MemStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
