package judge

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/MrWong99/beepwise/internal/observe"
	"github.com/MrWong99/beepwise/internal/resilience"
)

// DefaultTimeout bounds a single judge call made by [Cached].
const DefaultTimeout = 2 * time.Second

// Source is a versioned transcript. transcript.Buffer satisfies it.
type Source interface {
	Snapshot() string
	Version() uint64
	Changed() <-chan struct{}
}

// CachedOption configures a [Cached] judge.
type CachedOption func(*Cached)

// WithName labels logs, spans and metrics. Default: "judge".
func WithName(name string) CachedOption {
	return func(c *Cached) {
		if name != "" {
			c.name = name
		}
	}
}

// WithTimeout overrides [DefaultTimeout]. Zero disables the per-call
// deadline.
func WithTimeout(d time.Duration) CachedOption {
	return func(c *Cached) {
		c.timeout = d
	}
}

// WithMinInterval spaces successive judge calls at least d apart. Changes
// arriving in between are folded into one call on the latest snapshot.
func WithMinInterval(d time.Duration) CachedOption {
	return func(c *Cached) {
		c.minInterval = d
	}
}

// WithBreaker routes every call through b. While b is open the cached
// answer is reset to false.
func WithBreaker(b *resilience.Breaker) CachedOption {
	return func(c *Cached) {
		c.breaker = b
	}
}

// WithMetrics records call duration and errors on m.
func WithMetrics(m *observe.Metrics) CachedOption {
	return func(c *Cached) {
		c.metrics = m
	}
}

// Cached runs a [Judge] off the frame path. [Cached.Run] re-asks the judge
// each time the transcript version moves; [Cached.Finished] returns the
// answer for the latest completed call without blocking. A failed call
// stores false so that a broken backend can only delay a silence decision,
// never trigger one.
type Cached struct {
	judge       Judge
	src         Source
	name        string
	timeout     time.Duration
	minInterval time.Duration
	breaker     *resilience.Breaker
	metrics     *observe.Metrics

	finished atomic.Bool
	calls    atomic.Int64
}

// NewCached wraps j, reading transcripts from src.
func NewCached(j Judge, src Source, opts ...CachedOption) *Cached {
	c := &Cached{
		judge:   j,
		src:     src,
		name:    "judge",
		timeout: DefaultTimeout,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Finished reports the latest answer. It never blocks.
func (c *Cached) Finished() bool {
	return c.finished.Load()
}

// Calls returns the number of judge calls made so far.
func (c *Cached) Calls() int64 {
	return c.calls.Load()
}

// Run polls src until ctx is done. The judge is never asked before the
// first transcript change. Run returns nil on cancellation.
func (c *Cached) Run(ctx context.Context) error {
	var asked uint64
	for {
		changed := c.src.Changed()
		if v := c.src.Version(); v != asked {
			asked = v
			c.ask(ctx, c.src.Snapshot())
			if c.minInterval > 0 {
				t := time.NewTimer(c.minInterval)
				select {
				case <-ctx.Done():
					t.Stop()
					return nil
				case <-t.C:
				}
			}
			continue
		}
		select {
		case <-ctx.Done():
			return nil
		case <-changed:
		}
	}
}

func (c *Cached) ask(ctx context.Context, text string) {
	if ctx.Err() != nil {
		return
	}
	ctx, span := observe.StartSpan(ctx, "judge.greeting_finished")
	defer span.End()
	span.SetAttributes(
		attribute.String("judge.name", c.name),
		attribute.Int("transcript.length", len(text)),
	)

	callCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	c.calls.Add(1)
	start := time.Now()
	var ok bool
	call := func(ctx context.Context) error {
		var err error
		ok, err = c.judge.GreetingFinished(ctx, text)
		return err
	}
	var err error
	if c.breaker != nil {
		err = c.breaker.Do(callCtx, call)
	} else {
		err = call(callCtx)
	}
	elapsed := time.Since(start)

	if c.metrics != nil {
		c.metrics.RecordJudgment(ctx, c.name, elapsed.Seconds(), err)
	}
	if err != nil {
		ok = false
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		observe.Logger(ctx).Warn("judge call failed",
			slog.String("judge", c.name),
			slog.Duration("elapsed", elapsed),
			slog.Any("err", err),
		)
	}
	span.SetAttributes(attribute.Bool("judge.finished", ok))
	c.finished.Store(ok)
}
