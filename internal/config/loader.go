package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/beepwise/internal/greeting"
	"github.com/MrWong99/beepwise/pkg/beep"
	"github.com/MrWong99/beepwise/pkg/provider/llm/anyllm"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm": append([]string{"openai-direct"}, anyllm.Vendors...),
	"stt": {"deepgram"},
	"vad": {"energy"},
}

// envAPIKeys maps provider names to the environment variable consulted when
// the entry carries no api_key. LLM vendors read their own variables inside
// any-llm-go.
var envAPIKeys = map[string]string{
	"deepgram":      "DEEPGRAM_API_KEY",
	"openai-direct": "OPENAI_API_KEY",
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and
// validates the result. An empty document yields the defaults.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a validated configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills zero fields of cfg with their defaults and resolves
// API keys from the environment.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":5000"
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 5 * time.Second
	}

	if cfg.Providers.VAD.Name == "" {
		cfg.Providers.VAD.Name = "energy"
	}
	resolveAPIKey(&cfg.Providers.LLM)
	resolveAPIKey(&cfg.Providers.STT)
	for i := range cfg.Providers.LLMFallback {
		resolveAPIKey(&cfg.Providers.LLMFallback[i])
	}

	if cfg.Audio.SampleRate == 0 {
		cfg.Audio.SampleRate = 8000
	}
	if cfg.Audio.FrameMS == 0 {
		cfg.Audio.FrameMS = 20
	}

	d := greeting.DefaultConfig()
	if cfg.Detection.Mode == "" {
		cfg.Detection.Mode = d.Mode
	}
	if cfg.Detection.SilenceThreshold == 0 {
		cfg.Detection.SilenceThreshold = d.SilenceThreshold
	}
	if cfg.Detection.BeepOffset == 0 {
		cfg.Detection.BeepOffset = d.BeepOffset
	}
	if cfg.Detection.SilenceOffset == 0 {
		cfg.Detection.SilenceOffset = d.SilenceOffset
	}
	if cfg.Detection.FallbackOffset == 0 {
		cfg.Detection.FallbackOffset = 0.5
	}

	if cfg.Judge.Kind == "" {
		cfg.Judge.Kind = JudgePhrase
		if cfg.Providers.LLM.Name != "" {
			cfg.Judge.Kind = JudgeLLM
		}
	}
	if cfg.Judge.Timeout == 0 {
		cfg.Judge.Timeout = 2 * time.Second
	}
	if cfg.Judge.MinChars == 0 {
		cfg.Judge.MinChars = 20
	}

	if cfg.Source.Kind == "" && cfg.Source.URL != "" {
		cfg.Source.Kind = InferSourceKind(cfg.Source.URL)
	}
}

// InferSourceKind guesses the source kind from a URL or path.
func InferSourceKind(raw string) SourceKind {
	u, err := url.Parse(raw)
	if err != nil {
		return SourceFile
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return SourceHTTP
	case "ws", "wss":
		return SourceWebSocket
	}
	return SourceFile
}

func resolveAPIKey(e *ProviderEntry) {
	if e.APIKey != "" {
		return
	}
	if env, ok := envAPIKeys[e.Name]; ok {
		e.APIKey = os.Getenv(env)
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.ShutdownTimeout < 0 {
		errs = append(errs, fmt.Errorf("server.shutdown_timeout %v must not be negative", cfg.Server.ShutdownTimeout))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Providers
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("vad", cfg.Providers.VAD.Name)
	for i, fb := range cfg.Providers.LLMFallback {
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("providers.llm_fallback[%d].name is required", i))
			continue
		}
		validateProviderName("llm", fb.Name)
	}
	if len(cfg.Providers.LLMFallback) > 0 && cfg.Providers.LLM.Name == "" {
		errs = append(errs, errors.New("providers.llm_fallback requires providers.llm"))
	}

	// Audio
	if cfg.Audio.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d must be positive", cfg.Audio.SampleRate))
	}
	if cfg.Audio.FrameMS <= 0 {
		errs = append(errs, fmt.Errorf("audio.frame_ms %d must be positive", cfg.Audio.FrameMS))
	} else if cfg.Audio.SampleRate > 0 && cfg.Audio.SampleRate*cfg.Audio.FrameMS%1000 != 0 {
		errs = append(errs, fmt.Errorf("audio.frame_ms %d does not divide into whole samples at %d Hz", cfg.Audio.FrameMS, cfg.Audio.SampleRate))
	}

	// Detection
	if err := cfg.Greeting().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("detection: %w", err))
	}
	if cfg.Detection.FallbackOffset < 0 {
		errs = append(errs, fmt.Errorf("detection.fallback_offset %.3f must not be negative", cfg.Detection.FallbackOffset))
	}
	b := cfg.Detection.Beep
	if b.MinFrames < 0 || b.MaxFrames < 0 {
		errs = append(errs, errors.New("detection.beep.min_frames and max_frames must not be negative"))
	}
	minFrames, maxFrames := b.MinFrames, b.MaxFrames
	if d := beep.DefaultConfig(0); minFrames <= 0 {
		minFrames = d.MinFrames
	}
	if d := beep.DefaultConfig(0); maxFrames <= 0 {
		maxFrames = d.MaxFrames
	}
	if minFrames > maxFrames {
		errs = append(errs, fmt.Errorf("detection.beep.min_frames %d exceeds max_frames %d", minFrames, maxFrames))
	}
	if b.BandRatioThreshold < 0 || b.BandRatioThreshold >= 1 {
		errs = append(errs, fmt.Errorf("detection.beep.band_ratio_threshold %.2f is out of range [0, 1)", b.BandRatioThreshold))
	}
	if b.PeakDominanceThreshold != 0 && b.PeakDominanceThreshold < 1 {
		errs = append(errs, fmt.Errorf("detection.beep.peak_dominance_threshold %.2f must be at least 1", b.PeakDominanceThreshold))
	}
	if b.EnergySpikeMultiplier < 0 {
		errs = append(errs, fmt.Errorf("detection.beep.energy_spike_multiplier %.2f must not be negative", b.EnergySpikeMultiplier))
	}
	v := cfg.Detection.VAD
	if v.EnergyThreshold < 0 {
		errs = append(errs, fmt.Errorf("detection.vad.energy_threshold %.2f must not be negative", v.EnergyThreshold))
	}
	if v.Smoothing < 0 || v.Smoothing > 1 {
		errs = append(errs, fmt.Errorf("detection.vad.smoothing %.3f is out of range (0, 1]", v.Smoothing))
	}

	// Judge
	if cfg.Judge.Kind != "" && !cfg.Judge.Kind.IsValid() {
		errs = append(errs, fmt.Errorf("judge.kind %q is invalid; valid values: llm, phrase, always", cfg.Judge.Kind))
	}
	if cfg.Judge.Kind == JudgeLLM && cfg.Providers.LLM.Name == "" {
		errs = append(errs, errors.New("judge.kind llm requires providers.llm"))
	}
	if cfg.Judge.Timeout < 0 || cfg.Judge.MinInterval < 0 {
		errs = append(errs, errors.New("judge.timeout and judge.min_interval must not be negative"))
	}
	if cfg.Judge.MinChars < 0 {
		errs = append(errs, fmt.Errorf("judge.min_chars %d must not be negative", cfg.Judge.MinChars))
	}
	if cfg.Judge.Breaker.MaxFailures < 0 || cfg.Judge.Breaker.Cooldown < 0 {
		errs = append(errs, errors.New("judge.breaker values must not be negative"))
	}
	if cfg.Detection.Mode == greeting.ModeAugmented && cfg.Providers.STT.Name == "" {
		errs = append(errs, errors.New("detection.mode augmented requires providers.stt"))
	}
	if cfg.Detection.Mode == greeting.ModeAugmented && cfg.Providers.STT.Name != "" && cfg.Providers.STT.APIKey == "" {
		slog.Warn("providers.stt has no api_key; the transcription service will likely reject the stream",
			"provider", cfg.Providers.STT.Name)
	}

	// Source
	if cfg.Source.Kind != "" && !cfg.Source.Kind.IsValid() {
		errs = append(errs, fmt.Errorf("source.kind %q is invalid; valid values: http, ws, file", cfg.Source.Kind))
	}

	// Stream catalog
	for name, path := range cfg.Stream.Files {
		if name == "" || path == "" {
			errs = append(errs, fmt.Errorf("stream.files entry %q: name and path are required", name))
		}
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name; may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
