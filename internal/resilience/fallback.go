package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed is returned when every entry of a [FallbackGroup] failed or
// was rejected by its breaker.
var ErrAllFailed = errors.New("all providers failed")

type entry[T any] struct {
	name    string
	value   T
	breaker *Breaker
}

// FallbackGroup holds a primary value and ordered fallbacks of the same type,
// each guarded by its own [Breaker]. Register entries before first use; the
// group is safe for concurrent calls afterwards.
type FallbackGroup[T any] struct {
	entries []entry[T]
	cfg     BreakerConfig
}

// NewFallbackGroup creates a group with primary as its first entry. cfg is
// copied for every entry's breaker with Name replaced by the entry name.
func NewFallbackGroup[T any](name string, primary T, cfg BreakerConfig) *FallbackGroup[T] {
	g := &FallbackGroup[T]{cfg: cfg}
	g.Add(name, primary)
	return g
}

// Add appends a fallback. Entries are tried in the order they were added.
func (g *FallbackGroup[T]) Add(name string, value T) {
	cfg := g.cfg
	cfg.Name = name
	g.entries = append(g.entries, entry[T]{name: name, value: value, breaker: NewBreaker(cfg)})
}

// Names returns the entry names in try order.
func (g *FallbackGroup[T]) Names() []string {
	names := make([]string, len(g.entries))
	for i, e := range g.entries {
		names[i] = e.name
	}
	return names
}

// Try calls fn against each entry until one succeeds. A cancelled ctx stops
// the walk immediately and returns ctx.Err().
func Try[T, R any](ctx context.Context, g *FallbackGroup[T], fn func(context.Context, T) (R, error)) (R, error) {
	var (
		zero    R
		lastErr error
	)
	for i := range g.entries {
		e := &g.entries[i]
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		var result R
		err := e.breaker.Do(ctx, func(ctx context.Context) error {
			var callErr error
			result, callErr = fn(ctx, e.value)
			return callErr
		})
		if err == nil {
			return result, nil
		}
		lastErr = err
		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("skipping provider, circuit open", "provider", e.name)
			continue
		}
		slog.Warn("provider failed, trying next", "provider", e.name, "err", err)
	}
	return zero, fmt.Errorf("%w: %w", ErrAllFailed, lastErr)
}
