// Command beepwise finds the end of a voicemail greeting in a live call
// stream and reports when recording may start. It can also serve a catalog
// of recorded calls as paced audio streams.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/beepwise/internal/app"
	"github.com/MrWong99/beepwise/internal/config"
	"github.com/MrWong99/beepwise/internal/greeting"
	"github.com/MrWong99/beepwise/internal/observe"
	"github.com/MrWong99/beepwise/internal/session"
	"github.com/MrWong99/beepwise/pkg/provider/llm"
	"github.com/MrWong99/beepwise/pkg/provider/llm/anyllm"
	"github.com/MrWong99/beepwise/pkg/provider/llm/openai"
	"github.com/MrWong99/beepwise/pkg/provider/stt"
	"github.com/MrWong99/beepwise/pkg/provider/stt/deepgram"
	"github.com/MrWong99/beepwise/pkg/provider/vad"
	"github.com/MrWong99/beepwise/pkg/provider/vad/energy"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "", "path to the YAML configuration file (built-in defaults when empty)")
	sourceURL := flag.String("source", "", "call audio: http(s):// or ws(s):// stream URL, or a WAV file path")
	mode := flag.String("mode", "", "override detection.mode: baseline or augmented")
	serve := flag.Bool("serve", false, "run the paced stream server on server.listen_addr")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := loadConfig(*configPath, *sourceURL, *mode)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "beepwise: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "beepwise: %v\n", err)
		}
		return 1
	}
	if cfg.Source.URL == "" && !*serve {
		fmt.Fprintln(os.Stderr, "beepwise: nothing to do, pass -source to analyse a call or -serve to run the stream server")
		flag.Usage()
		return 2
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(slogLevel(cfg.Server.LogLevel))
	slog.SetDefault(newLogger(level))

	slog.Info("beepwise starting",
		"version", version,
		"config", *configPath,
		"mode", cfg.Detection.Mode,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "beepwise",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		tctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(tctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg, *serve)

	application, err := app.New(ctx, cfg, providers, app.WithMetricsHandler(observe.MetricsHandler()))
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout+time.Second)
		defer cancel()
		if err := application.Shutdown(sctx); err != nil {
			slog.Error("shutdown error", "err", err)
		}
	}()

	// ── Hot reload ────────────────────────────────────────────────────────────
	if *configPath != "" {
		w, err := config.NewWatcher(*configPath, func(old, next *config.Config, d config.ConfigDiff) {
			if d.LogLevelChanged {
				level.Set(slogLevel(d.NewLogLevel))
				slog.Info("log level changed", "level", d.NewLogLevel)
			}
			// Flag overrides survive reloads.
			next.Source = cfg.Source
			if *mode != "" {
				next.Detection.Mode = cfg.Detection.Mode
			}
			application.Reload(old, next, d)
		})
		if err != nil {
			slog.Warn("config hot reload disabled", "err", err)
		} else {
			defer w.Stop()
		}
	}

	// ── Stream server ─────────────────────────────────────────────────────────
	serveErr := make(chan error, 1)
	if *serve {
		go func() { serveErr <- application.Serve(ctx) }()
	}

	// ── One-shot detection ────────────────────────────────────────────────────
	status := 0
	if cfg.Source.URL != "" {
		res, err := application.Detect(ctx, cfg.Source)
		switch {
		case errors.Is(err, context.Canceled):
			slog.Info("detection interrupted")
			return 130
		case err != nil:
			slog.Error("detection failed", "source", cfg.Source.URL, "err", err)
			status = 1
		}
		if err == nil || res.Frames > 0 {
			reportDecision(res)
		}
	}

	if !*serve {
		return status
	}
	slog.Info("server ready, press Ctrl+C to shut down")
	if err := <-serveErr; err != nil {
		slog.Error("stream server error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return status
}

// loadConfig reads path (or the built-in defaults) and applies the flag
// overrides before validating.
func loadConfig(path, sourceURL, mode string) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		cfg, err = config.Load(path)
		if err != nil {
			return nil, err
		}
	} else {
		cfg = config.Default()
	}

	if sourceURL != "" {
		cfg.Source.URL = sourceURL
		cfg.Source.Kind = config.InferSourceKind(sourceURL)
	}
	if mode != "" {
		cfg.Detection.Mode = greeting.Mode(mode)
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// reportDecision logs the outcome and prints the compliance summary.
func reportDecision(res session.Result) {
	if res.Determined {
		slog.Info("compliance decision",
			"call_id", res.Call.ID,
			"reason", res.Reason,
			"start_at", fmt.Sprintf("%.2f", res.StartAt),
			"kind", res.Decision.Kind,
		)
	} else {
		slog.Warn("no compliance decision, applying fallback",
			"call_id", res.Call.ID,
			"fallback_offset", res.StartAt,
		)
	}
	fmt.Print(res.Summary())
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the appropriate
// provider from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	// ── LLM ───────────────────────────────────────────────────────────────────
	// Every any-llm-go vendor shares the same pattern: optional APIKey +
	// optional BaseURL. ollama is a local server and takes no key.
	for _, vendor := range anyllm.Vendors {
		reg.RegisterLLM(vendor, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" && vendor != "ollama" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(vendor, entry.Model, opts...)
		})
	}

	// openai-direct talks to the OpenAI API (or a compatible endpoint) with
	// the official SDK instead of any-llm-go.
	reg.RegisterLLM("openai-direct", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []openai.Option
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		if org := app.OptString(entry.Options, "organization"); org != "" {
			opts = append(opts, openai.WithOrganization(org))
		}
		if t := app.OptString(entry.Options, "timeout"); t != "" {
			d, err := time.ParseDuration(t)
			if err != nil {
				return nil, fmt.Errorf("openai-direct: options.timeout: %w", err)
			}
			opts = append(opts, openai.WithTimeout(d))
		}
		if n, ok, err := optInt(entry.Options, "max_retries"); err != nil {
			return nil, fmt.Errorf("openai-direct: options.max_retries: %w", err)
		} else if ok {
			opts = append(opts, openai.WithMaxRetries(n))
		}
		return openai.New(entry.APIKey, entry.Model, opts...)
	})

	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if lang := app.OptString(entry.Options, "language"); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(entry.BaseURL))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	// ── VAD ───────────────────────────────────────────────────────────────────

	reg.RegisterVAD("energy", func(config.ProviderEntry) (vad.Engine, error) {
		return energy.Engine{}, nil
	})
}

// buildProviders instantiates every configured provider. Unset entries stay
// nil; the fallback LLMs are created in order.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}

	if name := cfg.Providers.LLM.Name; name != "" {
		p, err := reg.CreateLLM(cfg.Providers.LLM)
		if err != nil {
			return nil, fmt.Errorf("create llm provider %q: %w", name, err)
		}
		ps.LLM = p
		slog.Info("provider created", "kind", "llm", "name", name, "model", cfg.Providers.LLM.Model)
	}

	for i, entry := range cfg.Providers.LLMFallback {
		p, err := reg.CreateLLM(entry)
		if err != nil {
			return nil, fmt.Errorf("create llm fallback %d %q: %w", i, entry.Name, err)
		}
		ps.LLMFallback = append(ps.LLMFallback, app.NamedLLM{Name: entry.Name, Provider: p})
		slog.Info("provider created", "kind", "llm_fallback", "name", entry.Name, "model", entry.Model)
	}

	if name := cfg.Providers.STT.Name; name != "" {
		p, err := reg.CreateSTT(cfg.Providers.STT)
		if err != nil {
			return nil, fmt.Errorf("create stt provider %q: %w", name, err)
		}
		ps.STT = p
		slog.Info("provider created", "kind", "stt", "name", name)
	}

	p, err := reg.CreateVAD(cfg.Providers.VAD)
	if err != nil {
		return nil, fmt.Errorf("create vad provider %q: %w", cfg.Providers.VAD.Name, err)
	}
	ps.VAD = p

	return ps, nil
}

// optInt reads an integer provider option. YAML numbers decode as int, quoted
// values as string.
func optInt(opts map[string]any, key string) (int, bool, error) {
	switch v := opts[key].(type) {
	case nil:
		return 0, false, nil
	case int:
		return v, true, nil
	case string:
		n, err := strconv.Atoi(v)
		return n, err == nil, err
	default:
		return 0, false, fmt.Errorf("unsupported type %T", v)
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config, serve bool) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║        beepwise, startup summary      ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	fmt.Printf("║  Mode            : %-19s ║\n", cfg.Detection.Mode)
	printProvider("LLM", cfg.Providers.LLM.Name, cfg.Providers.LLM.Model)
	printProvider("STT", cfg.Providers.STT.Name, cfg.Providers.STT.Model)
	printProvider("VAD", cfg.Providers.VAD.Name, "")
	if cfg.Detection.Mode == greeting.ModeAugmented {
		fmt.Printf("║  Judge           : %-19s ║\n", cfg.Judge.Kind)
	}
	fmt.Printf("║  Audio           : %-19s ║\n", fmt.Sprintf("%d Hz / %d ms", cfg.Audio.SampleRate, cfg.Audio.FrameMS))
	fmt.Printf("║  Silence         : %-19s ║\n", fmt.Sprintf("%.2fs", cfg.Detection.SilenceThreshold))
	if cfg.Audit.PostgresDSN != "" {
		fmt.Printf("║  Audit log       : %-19s ║\n", "postgres")
	} else {
		fmt.Printf("║  Audit log       : %-19s ║\n", "memory")
	}
	if serve {
		fmt.Printf("║  Listen addr     : %-19s ║\n", cfg.Server.ListenAddr)
		fmt.Printf("║  Streams         : %-19d ║\n", len(cfg.Stream.Files))
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level slog.Leveler) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
