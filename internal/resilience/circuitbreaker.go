// Package resilience protects the detector from a slow or failing judgment
// backend.
//
// [Breaker] is a three-state circuit breaker (closed, open, half-open).
// [FallbackGroup] tries a primary and its fallbacks in order, each behind its
// own breaker. [LLMFallback] applies that to llm.Provider.
//
// All types are safe for concurrent use.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [Breaker.Do] while the breaker rejects calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the operating mode of a [Breaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen rejects calls with [ErrCircuitOpen] until the cooldown elapses.
	StateOpen

	// StateHalfOpen lets a limited number of probes through. A failed probe
	// re-opens the breaker; enough successful probes close it.
	StateHalfOpen
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig holds tuning knobs for a [Breaker].
type BreakerConfig struct {
	// Name labels log lines and state-change callbacks.
	Name string

	// MaxFailures is the number of consecutive failures that opens the
	// breaker. Default: 5.
	MaxFailures int

	// Cooldown is how long the breaker stays open. Default: 30s.
	Cooldown time.Duration

	// Probes is the number of successful half-open calls required to close
	// the breaker again. Default: 1.
	Probes int

	// OnStateChange, if set, is called after every transition with the lock
	// released.
	OnStateChange func(name string, from, to State)

	// Now replaces time.Now in tests.
	Now func() time.Time
}

// Breaker implements the circuit breaker pattern.
type Breaker struct {
	name        string
	maxFailures int
	cooldown    time.Duration
	probes      int
	onChange    func(string, State, State)
	now         func() time.Time

	mu        sync.Mutex
	state     State
	failures  int
	openedAt  time.Time
	inFlight  int
	successes int
}

// NewBreaker creates a [Breaker]. Zero config fields take the defaults.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.Probes <= 0 {
		cfg.Probes = 1
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Breaker{
		name:        cfg.Name,
		maxFailures: cfg.MaxFailures,
		cooldown:    cfg.Cooldown,
		probes:      cfg.Probes,
		onChange:    cfg.OnStateChange,
		now:         cfg.Now,
	}
}

// Do runs fn if the breaker admits the call. Errors wrapping
// context.Canceled are returned but not counted as failures: the caller gave
// up, the backend did not fail.
func (b *Breaker) Do(ctx context.Context, fn func(context.Context) error) error {
	probe, err := b.admit()
	if err != nil {
		return err
	}

	err = fn(ctx)

	b.mu.Lock()
	from := b.state
	switch {
	case err == nil:
		b.onSuccess(probe)
	case errors.Is(err, context.Canceled):
		if probe {
			b.inFlight--
		}
	default:
		b.onFailure(probe)
	}
	to := b.state
	b.mu.Unlock()

	b.notify(from, to)
	return err
}

func (b *Breaker) admit() (probe bool, err error) {
	b.mu.Lock()
	from := b.state
	if b.state == StateOpen {
		if b.now().Sub(b.openedAt) < b.cooldown {
			b.mu.Unlock()
			return false, ErrCircuitOpen
		}
		b.state = StateHalfOpen
		b.inFlight = 0
		b.successes = 0
	}
	if b.state == StateHalfOpen {
		if b.inFlight >= b.probes {
			b.mu.Unlock()
			b.notify(from, StateHalfOpen)
			return false, ErrCircuitOpen
		}
		b.inFlight++
		probe = true
	}
	to := b.state
	b.mu.Unlock()

	b.notify(from, to)
	return probe, nil
}

// onSuccess must be called with b.mu held.
func (b *Breaker) onSuccess(probe bool) {
	if !probe {
		b.failures = 0
		return
	}
	b.inFlight--
	b.successes++
	if b.successes >= b.probes {
		b.state = StateClosed
		b.failures = 0
	}
}

// onFailure must be called with b.mu held.
func (b *Breaker) onFailure(probe bool) {
	if probe {
		b.inFlight--
		b.state = StateOpen
		b.openedAt = b.now()
		return
	}
	b.failures++
	if b.failures >= b.maxFailures {
		b.state = StateOpen
		b.openedAt = b.now()
	}
}

func (b *Breaker) notify(from, to State) {
	if from == to {
		return
	}
	slog.Info("circuit breaker state change", "name", b.name, "from", from, "to", to)
	if b.onChange != nil {
		b.onChange(b.name, from, to)
	}
}

// State returns the current state. An open breaker whose cooldown has
// elapsed reports [StateHalfOpen]; the transition itself happens on the next
// [Breaker.Do].
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.cooldown {
		return StateHalfOpen
	}
	return b.state
}

// Reset forces the breaker closed and clears its counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	from := b.state
	b.state = StateClosed
	b.failures = 0
	b.inFlight = 0
	b.successes = 0
	b.mu.Unlock()
	b.notify(from, StateClosed)
}
