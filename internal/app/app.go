// Package app wires the beepwise subsystems into a running application.
//
// The App struct owns the full lifecycle: New builds the audit store, the
// transcript judge and the session runner from the config, Detect analyses
// one call, Serve runs the paced stream server, and Shutdown tears
// everything down in order.
//
// For testing, inject mock implementations via functional options
// (WithAuditStore, WithMetrics). When an option is not provided, New creates
// real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/MrWong99/beepwise/internal/audit"
	"github.com/MrWong99/beepwise/internal/audit/postgres"
	"github.com/MrWong99/beepwise/internal/config"
	"github.com/MrWong99/beepwise/internal/greeting"
	"github.com/MrWong99/beepwise/internal/health"
	"github.com/MrWong99/beepwise/internal/judge"
	"github.com/MrWong99/beepwise/internal/observe"
	"github.com/MrWong99/beepwise/internal/resilience"
	"github.com/MrWong99/beepwise/internal/session"
	"github.com/MrWong99/beepwise/internal/streamserver"
	"github.com/MrWong99/beepwise/pkg/provider/llm"
	"github.com/MrWong99/beepwise/pkg/provider/stt"
	"github.com/MrWong99/beepwise/pkg/provider/vad"
)

// NamedLLM is a fallback LLM backend and the name it is logged under.
type NamedLLM struct {
	Name     string
	Provider llm.Provider
}

// Providers holds one interface value per provider slot. Nil means the
// provider is not configured. Populated by main.go via the config registry.
type Providers struct {
	LLM         llm.Provider
	LLMFallback []NamedLLM
	STT         stt.Provider
	VAD         vad.Engine
}

// App owns all subsystem lifetimes.
type App struct {
	providers      *Providers
	metrics        *observe.Metrics
	metricsHandler http.Handler
	audit          audit.Store
	health         *health.Handler
	server         *streamserver.Server

	mu     sync.RWMutex
	cfg    *config.Config
	runner *session.Runner

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithAuditStore injects an audit store instead of creating one from config.
func WithAuditStore(s audit.Store) Option {
	return func(a *App) { a.audit = s }
}

// WithMetrics injects the metric instruments instead of the global ones.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler mounts h on /metrics of the stream server.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsHandler = h }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry). cfg must already
// be validated.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.VAD == nil {
		return nil, errors.New("app: a vad engine is required")
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Audit store ───────────────────────────────────────────────────
	checkers, err := a.initAudit(ctx)
	if err != nil {
		a.runClosers()
		return nil, fmt.Errorf("app: init audit: %w", err)
	}

	// ── 2. Session runner ────────────────────────────────────────────────
	runner, err := a.buildRunner(cfg)
	if err != nil {
		a.runClosers()
		return nil, fmt.Errorf("app: init runner: %w", err)
	}
	a.runner = runner

	// ── 3. Stream server ─────────────────────────────────────────────────
	checkers = append(checkers, health.FilesChecker("catalog", a.catalogPaths))
	a.health = health.New(checkers...)
	srvOpts := []streamserver.Option{
		streamserver.WithMetrics(a.metrics),
		streamserver.WithAudit(a.audit),
		streamserver.WithHealth(a.health),
	}
	if a.metricsHandler != nil {
		srvOpts = append(srvOpts, streamserver.WithMetricsHandler(a.metricsHandler))
	}
	a.server = streamserver.New(catalog{a}, srvOpts...)

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initAudit opens the Postgres audit store when configured, or keeps
// decisions in memory. It returns the readiness checks the store needs.
func (a *App) initAudit(ctx context.Context) ([]health.Checker, error) {
	if a.audit != nil {
		return nil, nil
	}

	dsn := a.cfg.Audit.PostgresDSN
	if dsn == "" {
		a.audit = audit.NewMemStore(0)
		return nil, nil
	}

	store, err := postgres.NewStore(ctx, dsn)
	if err != nil {
		return nil, err
	}
	a.audit = store
	a.closers = append(a.closers, store.Close)
	slog.Info("audit log connected to postgres")
	return []health.Checker{health.PingChecker("audit", store)}, nil
}

// buildRunner creates the session runner for cfg. It is called again on
// every detection or judge reload.
func (a *App) buildRunner(cfg *config.Config) (*session.Runner, error) {
	opts := []session.Option{
		session.WithAudit(a.audit),
		session.WithMetrics(a.metrics),
	}
	if a.providers.STT != nil {
		opts = append(opts, session.WithSTT(a.providers.STT))
	}
	if cfg.Detection.Mode == greeting.ModeAugmented {
		j, label, err := a.buildJudge(cfg)
		if err != nil {
			return nil, err
		}
		name := string(cfg.Judge.Kind)
		breaker := resilience.NewBreaker(a.breakerConfig(cfg, "judge."+name))
		opts = append(opts, session.WithJudge(j, label,
			judge.WithName(name),
			judge.WithTimeout(cfg.Judge.Timeout),
			judge.WithMinInterval(cfg.Judge.MinInterval),
			judge.WithBreaker(breaker),
			judge.WithMetrics(a.metrics),
		))
	}
	return session.NewRunner(SessionConfig(cfg), a.providers.VAD, opts...)
}

// buildJudge returns the transcript judge selected by cfg.Judge.Kind and the
// label used in decision reasons.
func (a *App) buildJudge(cfg *config.Config) (judge.Judge, string, error) {
	switch cfg.Judge.Kind {
	case config.JudgeLLM:
		if a.providers.LLM == nil {
			return nil, "", errors.New("judge.kind llm requires an llm provider")
		}
		var p llm.Provider = a.providers.LLM
		if len(a.providers.LLMFallback) > 0 {
			name := cfg.Providers.LLM.Name
			fb := resilience.NewLLMFallback(name, p, a.breakerConfig(cfg, "llm."+name))
			for _, f := range a.providers.LLMFallback {
				fb.AddFallback(f.Name, f.Provider)
			}
			p = fb
		}
		return judge.NewLLM(p, judge.WithMinChars(cfg.Judge.MinChars)), "LLM", nil
	case config.JudgePhrase:
		var opts []judge.PhraseOption
		if len(cfg.Judge.Cues) > 0 {
			opts = append(opts, judge.WithCues(cfg.Judge.Cues...))
		}
		return judge.NewPhrase(opts...), "closing phrase", nil
	case config.JudgeAlways:
		return judge.Always{}, "unconditional", nil
	default:
		return nil, "", fmt.Errorf("unknown judge kind %q", cfg.Judge.Kind)
	}
}

func (a *App) breakerConfig(cfg *config.Config, name string) resilience.BreakerConfig {
	bc := cfg.Breaker(name)
	bc.OnStateChange = func(name string, from, to resilience.State) {
		slog.Warn("circuit breaker state change", "name", name, "from", from, "to", to)
		a.metrics.RecordBreakerTransition(context.Background(), name, to.String())
	}
	return bc
}

// SessionConfig derives the per-call detection setup from cfg.
func SessionConfig(cfg *config.Config) session.Config {
	return session.Config{
		Format:         cfg.Format(),
		Greeting:       cfg.Greeting(),
		Beep:           cfg.Beep(),
		VAD:            cfg.VAD(),
		FallbackOffset: cfg.Detection.FallbackOffset,
		Language:       OptString(cfg.Providers.STT.Options, "language"),
	}
}

// OptString returns the string option key, or "" if it is missing or not a
// string.
func OptString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	v, ok := opts[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Config returns the configuration currently in effect.
func (a *App) Config() *config.Config {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cfg
}

// Runner returns the session runner currently in effect.
func (a *App) Runner() *session.Runner {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.runner
}

// Audit returns the decision log.
func (a *App) Audit() audit.Store { return a.audit }

// Handler returns the stream server's HTTP handler.
func (a *App) Handler() http.Handler { return a.server.Handler() }

// ─── Reload ──────────────────────────────────────────────────────────────────

// Reload applies a hot-reloaded config. Detection and judge changes rebuild
// the runner; calls already running keep the runner they started with.
// Catalog changes take effect on the next request. It is meant to be passed
// to [config.NewWatcher].
func (a *App) Reload(_, next *config.Config, d config.ConfigDiff) {
	var runner *session.Runner
	if d.DetectionChanged || d.JudgeChanged {
		r, err := a.buildRunner(next)
		if err != nil {
			slog.Error("config reload: keeping previous detection settings", "err", err)
			return
		}
		runner = r
	}

	a.mu.Lock()
	a.cfg = next
	if runner != nil {
		a.runner = runner
	}
	a.mu.Unlock()

	if runner != nil {
		slog.Info("detection settings reloaded",
			"mode", next.Detection.Mode,
			"judge", next.Judge.Kind,
			"silence_threshold", next.Detection.SilenceThreshold,
		)
	}
	if n := len(d.StreamsAdded) + len(d.StreamsRemoved) + len(d.StreamsChanged); n > 0 {
		slog.Info("stream catalog reloaded", "added", d.StreamsAdded, "removed", d.StreamsRemoved, "changed", d.StreamsChanged)
	}
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Serve runs the stream server on cfg.Server.ListenAddr until ctx is
// cancelled, then drains it within the shutdown timeout.
func (a *App) Serve(ctx context.Context) error {
	cfg := a.Config()
	srv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		var err error
		if tls := cfg.Server.TLS; tls != nil {
			err = srv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		errCh <- err
	}()
	slog.Info("stream server listening", "addr", cfg.Server.ListenAddr, "tls", cfg.Server.TLS != nil)

	select {
	case err := <-errCh:
		return fmt.Errorf("app: stream server: %w", err)
	case <-ctx.Done():
	}

	timeout := cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("app: stream server shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("app: stream server: %w", err)
	}
	return nil
}

// Shutdown runs the closers in order. It is safe to call more than once;
// only the first call has effect.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// runClosers releases what New opened before failing.
func (a *App) runClosers() {
	for _, c := range a.closers {
		_ = c()
	}
	a.closers = nil
}
