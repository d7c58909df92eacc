package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrWong99/beepwise/pkg/source"
)

// Default connection retry parameters.
const (
	defaultMaxRetries = 5
	defaultBackoff    = 250 * time.Millisecond
	defaultMaxBackoff = 5 * time.Second
)

// OpenFunc opens a frame source, e.g. by dialling a stream server.
type OpenFunc func(ctx context.Context) (source.Source, error)

// RetryConfig configures [Connect].
type RetryConfig struct {
	// Name identifies the source in logs.
	Name string

	// MaxRetries is the number of attempts after the first one. Defaults to
	// 5 if zero; negative disables retries.
	MaxRetries int

	// Backoff is the initial wait between attempts. Doubles each attempt up
	// to MaxBackoff. Defaults to 250ms if zero.
	Backoff time.Duration

	// MaxBackoff caps the wait. Defaults to 5s if zero.
	MaxBackoff time.Duration
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxRetries == 0 {
		c.MaxRetries = defaultMaxRetries
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.Backoff <= 0 {
		c.Backoff = defaultBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = defaultMaxBackoff
	}
	return c
}

// Connect calls open until it succeeds, retrying with exponential backoff.
// [source.ErrNotFound] is permanent and returned at once, as is ctx's error.
func Connect(ctx context.Context, open OpenFunc, cfg RetryConfig) (source.Source, error) {
	cfg = cfg.withDefaults()
	backoff := cfg.Backoff

	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			slog.Warn("source connection attempt failed",
				"source", cfg.Name,
				"attempt", attempt,
				"max_retries", cfg.MaxRetries,
				"backoff", backoff,
				"err", lastErr,
			)
			t := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				t.Stop()
				return nil, ctx.Err()
			case <-t.C:
			}
			backoff = min(backoff*2, cfg.MaxBackoff)
		}

		src, err := open(ctx)
		if err == nil {
			if attempt > 0 {
				slog.Info("source connected", "source", cfg.Name, "attempt", attempt)
			}
			return src, nil
		}
		if errors.Is(err, source.ErrNotFound) || ctx.Err() != nil {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("session: connect %s: giving up after %d retries: %w", cfg.Name, cfg.MaxRetries, lastErr)
}
