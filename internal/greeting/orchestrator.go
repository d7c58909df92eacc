// Package greeting decides when a voicemail greeting has ended and recording
// may begin.
//
// The [Orchestrator] feeds every frame to a beep detector and a VAD session
// and resolves their outputs into a single terminal [Decision]. Two strategies
// race, evaluated in a fixed priority on every frame:
//
//  1. Beep: a confirmed beep wins immediately. The decision timestamp is the
//     start of the confirming run plus BeepOffset.
//  2. Silence: once speech has been heard, non-speech frames accumulate
//     silence. When the silence reaches SilenceThreshold (and, in augmented
//     mode, the [Gate] reports the greeting finished) the decision timestamp
//     is the start of the silence plus SilenceOffset.
//
// The beep strategy is always checked first, so a beep confirmed on the same
// frame that completes the silence still wins.
//
// After the decision the orchestrator is inert: further frames invoke no
// detector and produce nothing. An Orchestrator serves one call and is not
// safe for concurrent use; the Gate it consults must be.
package greeting

import (
	"errors"
	"fmt"

	"github.com/MrWong99/beepwise/pkg/audio"
	"github.com/MrWong99/beepwise/pkg/provider/vad"
)

// Kind names the strategy that produced a decision.
type Kind string

const (
	KindBeep    Kind = "beep"
	KindSilence Kind = "silence"
)

// Mode selects the orchestrator variant.
type Mode string

const (
	// ModeBaseline fires the silence strategy on silence alone.
	ModeBaseline Mode = "baseline"

	// ModeAugmented additionally requires the Gate to confirm the greeting
	// has finished.
	ModeAugmented Mode = "augmented"
)

// IsValid reports whether m is a recognised mode.
func (m Mode) IsValid() bool {
	return m == ModeBaseline || m == ModeAugmented
}

// Decision is the terminal output of an Orchestrator.
type Decision struct {
	// Kind is the strategy that fired.
	Kind Kind

	// Timestamp is the stream time, in seconds, at which recording may start.
	Timestamp float64

	// DecidedAt is the timestamp of the frame on which the decision was made.
	DecidedAt float64

	// Silence is the accumulated silence, in seconds, for silence decisions.
	Silence float64

	// Gated is true when an external judgment confirmed a silence decision.
	Gated bool
}

// Gate answers, without blocking, whether the greeting appears finished.
type Gate interface {
	Finished() bool
}

// GateFunc adapts a function to [Gate].
type GateFunc func() bool

// Finished implements [Gate].
func (f GateFunc) Finished() bool { return f() }

// always is the gate used when none is configured.
var always = GateFunc(func() bool { return true })

// BeepDetector is the subset of *beep.Detector the orchestrator needs.
type BeepDetector interface {
	Process(frame []float64, timestamp float64) (float64, bool)
}

// Config holds the decision policy.
type Config struct {
	Mode Mode

	// SilenceThreshold is the silence after speech, in seconds, that ends the
	// greeting. Default 2.0.
	SilenceThreshold float64

	// BeepOffset is added to the confirmed beep start. Default 0.02.
	BeepOffset float64

	// SilenceOffset is added to the start of the silence. Default 0.1.
	SilenceOffset float64
}

// DefaultConfig returns the baseline policy.
func DefaultConfig() Config {
	return Config{
		Mode:             ModeBaseline,
		SilenceThreshold: 2.0,
		BeepOffset:       0.02,
		SilenceOffset:    0.1,
	}
}

// Validate checks that c is usable.
func (c Config) Validate() error {
	var errs []error
	if !c.Mode.IsValid() {
		errs = append(errs, fmt.Errorf("greeting: mode %q is invalid; valid values: baseline, augmented", c.Mode))
	}
	if c.SilenceThreshold <= 0 {
		errs = append(errs, fmt.Errorf("greeting: silence threshold %.3f must be positive", c.SilenceThreshold))
	}
	if c.BeepOffset < 0 {
		errs = append(errs, fmt.Errorf("greeting: beep offset %.3f must not be negative", c.BeepOffset))
	}
	if c.SilenceOffset < 0 {
		errs = append(errs, fmt.Errorf("greeting: silence offset %.3f must not be negative", c.SilenceOffset))
	}
	return errors.Join(errs...)
}

// Option configures an [Orchestrator].
type Option func(*Orchestrator)

// WithGate installs the external judgment consulted by the augmented variant.
// A nil gate behaves as always finished.
func WithGate(g Gate) Option {
	return func(o *Orchestrator) {
		if g != nil {
			o.gate = g
		}
	}
}

// Orchestrator is the per-call decision state machine.
type Orchestrator struct {
	cfg  Config
	beep BeepDetector
	vad  vad.SessionHandle
	gate Gate

	heardSpeech    bool
	silenceSamples int64
	sampleRate     int

	decided  bool
	decision Decision
}

// New returns an Orchestrator driving the given detectors.
func New(cfg Config, beep BeepDetector, v vad.SessionHandle, opts ...Option) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if beep == nil {
		return nil, errors.New("greeting: beep detector must not be nil")
	}
	if v == nil {
		return nil, errors.New("greeting: vad session must not be nil")
	}
	o := &Orchestrator{cfg: cfg, beep: beep, vad: v, gate: always}
	for _, opt := range opts {
		opt(o)
	}
	if cfg.Mode == ModeBaseline {
		o.gate = always
	}
	return o, nil
}

// Process runs one frame through both strategies. It returns the decision
// and true exactly once, on the frame that produces it. Frames must arrive
// in stream order.
func (o *Orchestrator) Process(fr audio.Frame) (Decision, bool) {
	if o.decided {
		return Decision{}, false
	}

	if start, ok := o.beep.Process(fr.Samples, fr.Timestamp); ok {
		return o.decide(Decision{
			Kind:      KindBeep,
			Timestamp: start + o.cfg.BeepOffset,
			DecidedAt: fr.Timestamp,
		})
	}

	if o.vad.IsSpeech(fr.Samples) {
		o.heardSpeech = true
		o.silenceSamples = 0
	} else if o.heardSpeech {
		o.sampleRate = fr.SampleRate
		o.silenceSamples += int64(len(fr.Samples))
	}

	if !o.heardSpeech {
		return Decision{}, false
	}
	silence := o.Silence()
	if silence < o.cfg.SilenceThreshold {
		return Decision{}, false
	}
	if !o.gate.Finished() {
		return Decision{}, false
	}
	return o.decide(Decision{
		Kind:      KindSilence,
		Timestamp: (fr.Timestamp - silence) + o.cfg.SilenceOffset,
		DecidedAt: fr.Timestamp,
		Silence:   silence,
		Gated:     o.cfg.Mode == ModeAugmented,
	})
}

func (o *Orchestrator) decide(d Decision) (Decision, bool) {
	o.decided = true
	o.decision = d
	return d, true
}

// Decision returns the terminal decision, if one has been made.
func (o *Orchestrator) Decision() (Decision, bool) {
	return o.decision, o.decided
}

// HeardSpeech reports whether any frame has been classified as speech.
func (o *Orchestrator) HeardSpeech() bool { return o.heardSpeech }

// Silence returns the silence, in seconds, accumulated since the last speech frame.
func (o *Orchestrator) Silence() float64 {
	if o.sampleRate <= 0 {
		return 0
	}
	return float64(o.silenceSamples) / float64(o.sampleRate)
}

// Config returns the policy the orchestrator was built with.
func (o *Orchestrator) Config() Config { return o.cfg }
