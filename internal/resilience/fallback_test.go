package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestTry_PrimarySuccess(t *testing.T) {
	g := NewFallbackGroup("primary", "primary", BreakerConfig{MaxFailures: 3})
	g.Add("secondary", "secondary")

	got, err := Try(context.Background(), g, func(_ context.Context, v string) (string, error) {
		return v, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "primary" {
		t.Fatalf("got %q, want primary", got)
	}
}

func TestTry_Failover(t *testing.T) {
	g := NewFallbackGroup("primary", "primary", BreakerConfig{MaxFailures: 3})
	g.Add("secondary", "secondary")

	got, err := Try(context.Background(), g, func(_ context.Context, v string) (string, error) {
		if v == "primary" {
			return "", errTest
		}
		return v, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "secondary" {
		t.Fatalf("got %q, want secondary", got)
	}
}

func TestTry_AllFail(t *testing.T) {
	g := NewFallbackGroup("a", 1, BreakerConfig{MaxFailures: 3})
	g.Add("b", 2)

	_, err := Try(context.Background(), g, func(context.Context, int) (int, error) {
		return 0, errTest
	})
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
	if !errors.Is(err, errTest) {
		t.Errorf("err = %v, want it to wrap the last failure", err)
	}
}

func TestTry_SkipsOpenPrimary(t *testing.T) {
	g := NewFallbackGroup("primary", "primary", BreakerConfig{MaxFailures: 1, Cooldown: time.Hour})
	g.Add("secondary", "secondary")

	var primaryCalls int
	call := func(_ context.Context, v string) (string, error) {
		if v == "primary" {
			primaryCalls++
			return "", errTest
		}
		return v, nil
	}
	for range 3 {
		if _, err := Try(context.Background(), g, call); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if primaryCalls != 1 {
		t.Errorf("primary called %d times, want 1 before its breaker opened", primaryCalls)
	}
}

func TestTry_CancelledContext(t *testing.T) {
	g := NewFallbackGroup("a", 1, BreakerConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	_, err := Try(ctx, g, func(context.Context, int) (int, error) {
		calls++
		return 0, nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if calls != 0 {
		t.Errorf("fn called %d times on a cancelled context", calls)
	}
}

func TestFallbackGroup_Names(t *testing.T) {
	g := NewFallbackGroup("groq", 0, BreakerConfig{})
	g.Add("openai", 1)
	names := g.Names()
	if len(names) != 2 || names[0] != "groq" || names[1] != "openai" {
		t.Errorf("Names() = %v", names)
	}
}
