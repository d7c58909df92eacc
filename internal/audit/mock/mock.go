// Package mock provides a test double for [audit.Store].
//
// The mock records every call and exposes fields that control what it
// returns. It is safe for concurrent use.
package mock

import (
	"context"
	"strconv"
	"sync"

	"github.com/MrWong99/beepwise/internal/audit"
)

var _ audit.Store = (*Store)(nil)

// Call records one method invocation.
type Call struct {
	Method string
	Args   []any
}

// Store is a configurable [audit.Store]. Recorded entries are kept and
// returned by Get and List unless the *Result fields override them.
type Store struct {
	mu      sync.Mutex
	calls   []Call
	entries []audit.Entry

	// RecordErr is returned by [Store.Record] when non-nil.
	RecordErr error

	// GetErr is returned by [Store.Get] when non-nil.
	GetErr error

	// ListResult is returned by [Store.List] when non-nil.
	ListResult []audit.Entry

	// ListErr is returned by [Store.List] when non-nil.
	ListErr error
}

// Record implements [audit.Store].
func (s *Store) Record(_ context.Context, e audit.Entry) (audit.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, Call{Method: "Record", Args: []any{e}})
	if s.RecordErr != nil {
		return audit.Entry{}, s.RecordErr
	}
	if e.ID == "" {
		e.ID = "mock-" + strconv.Itoa(len(s.entries)+1)
	}
	s.entries = append(s.entries, e)
	return e, nil
}

// Get implements [audit.Store].
func (s *Store) Get(_ context.Context, id string) (audit.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, Call{Method: "Get", Args: []any{id}})
	if s.GetErr != nil {
		return audit.Entry{}, s.GetErr
	}
	for _, e := range s.entries {
		if e.ID == id {
			return e, nil
		}
	}
	return audit.Entry{}, audit.ErrNotFound
}

// List implements [audit.Store].
func (s *Store) List(_ context.Context, opts audit.ListOptions) ([]audit.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, Call{Method: "List", Args: []any{opts}})
	if s.ListErr != nil {
		return nil, s.ListErr
	}
	if s.ListResult != nil {
		return s.ListResult, nil
	}
	out := make([]audit.Entry, len(s.entries))
	for i, e := range s.entries {
		out[len(out)-1-i] = e
	}
	return out, nil
}

// Entries returns a copy of the recorded entries in insertion order.
func (s *Store) Entries() []audit.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]audit.Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Calls returns a copy of all recorded calls.
func (s *Store) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// CallCount returns how many times method was called.
func (s *Store) CallCount(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}
