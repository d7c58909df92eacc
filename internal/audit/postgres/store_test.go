package postgres_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/beepwise/internal/audit"
	"github.com/MrWong99/beepwise/internal/audit/postgres"
)

// testDSN returns the test database DSN from the environment, or skips the
// test if BEEPWISE_TEST_POSTGRES_DSN is not set.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("BEEPWISE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("BEEPWISE_TEST_POSTGRES_DSN not set, skipping PostgreSQL integration tests")
	}
	return dsn
}

func newTestStore(t *testing.T) *postgres.Store {
	t.Helper()
	dsn := testDSN(t)
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	if _, err := pool.Exec(ctx, `DROP TABLE IF EXISTS greeting_decisions`); err != nil {
		pool.Close()
		t.Fatalf("drop: %v", err)
	}
	pool.Close()

	s, err := postgres.NewStore(ctx, dsn)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_RecordGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	in := audit.Entry{
		CallID:     "vm3",
		Source:     "http://localhost:5000/audio/stream?file=vm3",
		Mode:       "augmented",
		Outcome:    audit.OutcomeSilence,
		Reason:     "Sustained silence + LLM confirmation",
		StartAt:    9.62,
		DecidedAt:  11.52,
		Silence:    2.0,
		Gated:      true,
		Transcript: "please leave a message",
	}
	rec, err := s.Record(ctx, in)
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if rec.ID == "" || rec.RecordedAt.IsZero() {
		t.Fatalf("Record did not fill ID or RecordedAt: %+v", rec)
	}

	got, err := s.Get(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.CallID != in.CallID || got.Outcome != in.Outcome || !got.Gated || got.Transcript != in.Transcript {
		t.Errorf("Get = %+v, want fields of %+v", got, in)
	}
	if got.StartAt != in.StartAt {
		t.Errorf("StartAt = %v, want %v", got.StartAt, in.StartAt)
	}
}

func TestStore_GetNotFound(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Get(context.Background(), "missing"); !errors.Is(err, audit.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestStore_ListFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for _, e := range []audit.Entry{
		{CallID: "vm1", Mode: "baseline", Outcome: audit.OutcomeBeep},
		{CallID: "vm2", Mode: "baseline", Outcome: audit.OutcomeSilence},
		{CallID: "vm1", Mode: "baseline", Outcome: audit.OutcomeUndetermined},
	} {
		if _, err := s.Record(ctx, e); err != nil {
			t.Fatal(err)
		}
	}

	all, err := s.List(ctx, audit.ListOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Errorf("List all = %d, want 3", len(all))
	}

	vm1, err := s.List(ctx, audit.ListOptions{CallID: "vm1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(vm1) != 2 {
		t.Errorf("List vm1 = %d, want 2", len(vm1))
	}

	beeps, err := s.List(ctx, audit.ListOptions{CallID: "vm1", Outcome: audit.OutcomeBeep, Limit: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(beeps) != 1 || beeps[0].Outcome != audit.OutcomeBeep {
		t.Errorf("List beeps = %+v", beeps)
	}
}

func TestStore_Ping(t *testing.T) {
	s := newTestStore(t)
	if err := s.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
}
