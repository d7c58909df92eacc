package audit

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemStore_RecordAssignsFields(t *testing.T) {
	s := NewMemStore(0)
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	e, err := s.Record(context.Background(), Entry{CallID: "vm1", Outcome: OutcomeBeep, StartAt: 12.34})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if len(e.ID) != 16 {
		t.Errorf("ID = %q, want 16 hex chars", e.ID)
	}
	if !e.RecordedAt.Equal(fixed) {
		t.Errorf("RecordedAt = %v, want %v", e.RecordedAt, fixed)
	}

	got, err := s.Get(context.Background(), e.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.StartAt != 12.34 || got.CallID != "vm1" {
		t.Errorf("Get = %+v", got)
	}
}

func TestMemStore_KeepsExplicitID(t *testing.T) {
	s := NewMemStore(0)
	e, err := s.Record(context.Background(), Entry{ID: "call-42"})
	if err != nil {
		t.Fatal(err)
	}
	if e.ID != "call-42" {
		t.Errorf("ID = %q, want call-42", e.ID)
	}
}

func TestMemStore_GetNotFound(t *testing.T) {
	s := NewMemStore(0)
	if _, err := s.Get(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestMemStore_ListNewestFirstWithFilters(t *testing.T) {
	s := NewMemStore(0)
	ctx := context.Background()
	for _, e := range []Entry{
		{ID: "1", CallID: "vm1", Outcome: OutcomeBeep},
		{ID: "2", CallID: "vm2", Outcome: OutcomeSilence},
		{ID: "3", CallID: "vm1", Outcome: OutcomeUndetermined},
		{ID: "4", CallID: "vm1", Outcome: OutcomeBeep},
	} {
		if _, err := s.Record(ctx, e); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		name string
		opts ListOptions
		want []string
	}{
		{"all", ListOptions{}, []string{"4", "3", "2", "1"}},
		{"call", ListOptions{CallID: "vm1"}, []string{"4", "3", "1"}},
		{"outcome", ListOptions{Outcome: OutcomeBeep}, []string{"4", "1"}},
		{"limit", ListOptions{Limit: 2}, []string{"4", "3"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.List(ctx, tt.opts)
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("List = %d entries, want %d", len(got), len(tt.want))
			}
			for i, id := range tt.want {
				if got[i].ID != id {
					t.Errorf("entry %d = %q, want %q", i, got[i].ID, id)
				}
			}
		})
	}
}

func TestMemStore_DropsOldest(t *testing.T) {
	s := NewMemStore(2)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		if _, err := s.Record(ctx, Entry{ID: id}); err != nil {
			t.Fatal(err)
		}
	}
	if s.Len() != 2 {
		t.Fatalf("Len = %d, want 2", s.Len())
	}
	if _, err := s.Get(ctx, "a"); !errors.Is(err, ErrNotFound) {
		t.Error("oldest entry was not dropped")
	}
}
