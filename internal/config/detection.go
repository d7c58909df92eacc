package config

import (
	"path/filepath"

	"github.com/MrWong99/beepwise/internal/greeting"
	"github.com/MrWong99/beepwise/internal/resilience"
	"github.com/MrWong99/beepwise/pkg/audio"
	"github.com/MrWong99/beepwise/pkg/beep"
	"github.com/MrWong99/beepwise/pkg/provider/vad"
)

// Format returns the pipeline frame layout.
func (c *Config) Format() audio.Format {
	return audio.Format{
		SampleRate:   c.Audio.SampleRate,
		FrameSamples: c.Audio.SampleRate * c.Audio.FrameMS / 1000,
	}
}

// Greeting returns the orchestrator policy.
func (c *Config) Greeting() greeting.Config {
	return greeting.Config{
		Mode:             c.Detection.Mode,
		SilenceThreshold: c.Detection.SilenceThreshold,
		BeepOffset:       c.Detection.BeepOffset,
		SilenceOffset:    c.Detection.SilenceOffset,
	}
}

// Beep returns the beep detector configuration. Zero fields are defaulted
// by beep.New.
func (c *Config) Beep() beep.Config {
	b := c.Detection.Beep
	return beep.Config{
		SampleRate:             c.Audio.SampleRate,
		MinFrames:              b.MinFrames,
		MaxFrames:              b.MaxFrames,
		BandRatioThreshold:     b.BandRatioThreshold,
		PeakDominanceThreshold: b.PeakDominanceThreshold,
		EnergySpikeMultiplier:  b.EnergySpikeMultiplier,
	}
}

// VAD returns the per-session VAD configuration.
func (c *Config) VAD() vad.Config {
	return vad.Config{
		SampleRate:      c.Audio.SampleRate,
		FrameSamples:    c.Format().FrameSamples,
		EnergyThreshold: c.Detection.VAD.EnergyThreshold,
		Smoothing:       c.Detection.VAD.Smoothing,
	}
}

// Breaker returns the circuit breaker configuration for the named judge.
func (c *Config) Breaker(name string) resilience.BreakerConfig {
	return resilience.BreakerConfig{
		Name:        name,
		MaxFailures: c.Judge.Breaker.MaxFailures,
		Cooldown:    c.Judge.Breaker.Cooldown,
	}
}

// StreamPath resolves a catalog name to a file path. ok is false for names
// not in the catalog.
func (c *Config) StreamPath(name string) (path string, ok bool) {
	p, ok := c.Stream.Files[name]
	if !ok {
		return "", false
	}
	if c.Stream.Dir != "" && !filepath.IsAbs(p) {
		p = filepath.Join(c.Stream.Dir, p)
	}
	return p, true
}
