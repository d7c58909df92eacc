package greeting

import (
	"math"
	"math/rand/v2"
	"sync/atomic"
	"testing"

	"github.com/MrWong99/beepwise/pkg/audio"
	"github.com/MrWong99/beepwise/pkg/beep"
	"github.com/MrWong99/beepwise/pkg/provider/vad"
	"github.com/MrWong99/beepwise/pkg/provider/vad/energy"
	vadmock "github.com/MrWong99/beepwise/pkg/provider/vad/mock"
)

const eps = 1e-9

// scriptedBeep fires once at call index fireAt (zero-based) with start.
type scriptedBeep struct {
	fireAt int
	start  float64
	calls  int
}

func (b *scriptedBeep) Process(_ []float64, _ float64) (float64, bool) {
	i := b.calls
	b.calls++
	if i == b.fireAt {
		return b.start, true
	}
	return 0, false
}

// frameAt builds a 20 ms 8 kHz frame for index i.
func frameAt(i int) audio.Frame {
	return audio.Frame{
		Samples:    make([]float64, audio.DefaultFrameSamples),
		SampleRate: audio.DefaultSampleRate,
		Timestamp:  float64(i*audio.DefaultFrameSamples) / audio.DefaultSampleRate,
	}
}

func newOrchestrator(t *testing.T, cfg Config, b BeepDetector, v vad.SessionHandle, opts ...Option) *Orchestrator {
	t.Helper()
	o, err := New(cfg, b, v, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return o
}

// speechThenSilence scripts speechFrames of speech after one calibration frame.
func speechThenSilence(speechFrames int) []bool {
	return append([]bool{false}, vadmock.Speech(speechFrames, 0)...)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"augmented", func(c *Config) { c.Mode = ModeAugmented }, false},
		{"bad mode", func(c *Config) { c.Mode = "llm" }, true},
		{"zero threshold", func(c *Config) { c.SilenceThreshold = 0 }, true},
		{"negative beep offset", func(c *Config) { c.BeepOffset = -0.1 }, true},
		{"negative silence offset", func(c *Config) { c.SilenceOffset = -0.1 }, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tc.wantErr {
				t.Errorf("Validate() err = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestNew_NilDetectors(t *testing.T) {
	if _, err := New(DefaultConfig(), nil, &vadmock.Session{}); err == nil {
		t.Error("expected error for nil beep detector")
	}
	if _, err := New(DefaultConfig(), &scriptedBeep{fireAt: -1}, nil); err == nil {
		t.Error("expected error for nil vad")
	}
}

func TestProcess_BeepDecision(t *testing.T) {
	b := &scriptedBeep{fireAt: 30, start: 0.52}
	o := newOrchestrator(t, DefaultConfig(), b, &vadmock.Session{})

	var got Decision
	for i := range 40 {
		if d, ok := o.Process(frameAt(i)); ok {
			got = d
		}
	}
	if got.Kind != KindBeep {
		t.Fatalf("kind = %q, want beep", got.Kind)
	}
	if math.Abs(got.Timestamp-0.54) > eps {
		t.Errorf("timestamp = %v, want 0.54 (start + 0.02)", got.Timestamp)
	}
	if math.Abs(got.DecidedAt-frameAt(30).Timestamp) > eps {
		t.Errorf("decided at = %v, want %v", got.DecidedAt, frameAt(30).Timestamp)
	}
}

func TestProcess_SilenceDecisionBaseline(t *testing.T) {
	v := &vadmock.Session{Script: speechThenSilence(25)}
	o := newOrchestrator(t, DefaultConfig(), &scriptedBeep{fireAt: -1}, v)

	decisions := 0
	var got Decision
	for i := range 300 {
		if d, ok := o.Process(frameAt(i)); ok {
			decisions++
			got = d
		}
	}
	if decisions != 1 {
		t.Fatalf("decisions = %d, want exactly 1", decisions)
	}
	if got.Kind != KindSilence {
		t.Fatalf("kind = %q, want silence", got.Kind)
	}

	// Speech on frames 1..25, silence from frame 26; 100 silent frames make
	// 2.0 s, so the decision lands on frame 125.
	if math.Abs(got.DecidedAt-frameAt(125).Timestamp) > eps {
		t.Errorf("decided at = %v, want %v", got.DecidedAt, frameAt(125).Timestamp)
	}
	if math.Abs(got.Silence-2.0) > eps {
		t.Errorf("silence = %v, want 2.0", got.Silence)
	}
	want := got.DecidedAt - got.Silence + 0.1
	if math.Abs(got.Timestamp-want) > eps {
		t.Errorf("timestamp = %v, want %v", got.Timestamp, want)
	}
	if math.Abs(got.Timestamp-0.6) > eps {
		t.Errorf("timestamp = %v, want 0.6", got.Timestamp)
	}
	if got.Gated {
		t.Error("baseline decision must not be marked gated")
	}
}

func TestProcess_NoSilenceDecisionBeforeSpeech(t *testing.T) {
	o := newOrchestrator(t, DefaultConfig(), &scriptedBeep{fireAt: -1}, &vadmock.Session{})
	for i := range 1000 {
		if _, ok := o.Process(frameAt(i)); ok {
			t.Fatalf("decision at frame %d without any speech", i)
		}
	}
	if o.HeardSpeech() {
		t.Error("HeardSpeech() = true")
	}
	if o.Silence() != 0 {
		t.Errorf("Silence() = %v, want 0 before speech", o.Silence())
	}
}

func TestProcess_SpeechResetsSilence(t *testing.T) {
	script := []bool{false, true}
	for range 90 {
		script = append(script, false)
	}
	script = append(script, true)
	v := &vadmock.Session{Script: script}
	o := newOrchestrator(t, DefaultConfig(), &scriptedBeep{fireAt: -1}, v)

	for i := range len(script) - 1 {
		if _, ok := o.Process(frameAt(i)); ok {
			t.Fatalf("unexpected decision at frame %d", i)
		}
	}
	if math.Abs(o.Silence()-1.8) > eps {
		t.Fatalf("silence = %v, want 1.8", o.Silence())
	}
	o.Process(frameAt(len(script) - 1))
	if o.Silence() != 0 {
		t.Errorf("silence after speech = %v, want 0", o.Silence())
	}
}

func TestProcess_AugmentedWaitsForGate(t *testing.T) {
	var finished atomic.Bool
	gateCalls := 0
	gate := GateFunc(func() bool {
		gateCalls++
		return finished.Load()
	})

	cfg := DefaultConfig()
	cfg.Mode = ModeAugmented
	v := &vadmock.Session{Script: speechThenSilence(10)}
	o := newOrchestrator(t, cfg, &scriptedBeep{fireAt: -1}, v, WithGate(gate))

	// 1 calibration + 10 speech + 150 silent frames: 3 s of silence, gate closed.
	for i := range 161 {
		if _, ok := o.Process(frameAt(i)); ok {
			t.Fatalf("decision at frame %d while gate is closed", i)
		}
	}
	if gateCalls == 0 {
		t.Fatal("gate was never consulted")
	}
	if gateCalls > 161 {
		t.Fatalf("gate consulted %d times for 161 frames", gateCalls)
	}

	finished.Store(true)
	d, ok := o.Process(frameAt(161))
	if !ok {
		t.Fatal("expected a decision once the gate opens")
	}
	if d.Kind != KindSilence || !d.Gated {
		t.Errorf("decision = %+v, want gated silence", d)
	}
	want := d.DecidedAt - d.Silence + 0.1
	if math.Abs(d.Timestamp-want) > eps {
		t.Errorf("timestamp = %v, want %v", d.Timestamp, want)
	}
	if math.Abs(d.Silence-3.02) > eps {
		t.Errorf("silence = %v, want 3.02", d.Silence)
	}
}

func TestProcess_GateNotConsultedBelowThreshold(t *testing.T) {
	calls := 0
	cfg := DefaultConfig()
	cfg.Mode = ModeAugmented
	v := &vadmock.Session{Script: speechThenSilence(5)}
	o := newOrchestrator(t, cfg, &scriptedBeep{fireAt: -1}, v, WithGate(GateFunc(func() bool {
		calls++
		return true
	})))
	// 1 + 5 + 99 silent frames: 1.98 s.
	for i := range 105 {
		o.Process(frameAt(i))
	}
	if calls != 0 {
		t.Errorf("gate consulted %d times before the silence threshold", calls)
	}
}

func TestProcess_AugmentedNilGateIsAlwaysTrue(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Mode = ModeAugmented
	v := &vadmock.Session{Script: speechThenSilence(3)}
	o := newOrchestrator(t, cfg, &scriptedBeep{fireAt: -1}, v, WithGate(nil))
	for i := range 200 {
		if _, ok := o.Process(frameAt(i)); ok {
			return
		}
	}
	t.Fatal("augmented orchestrator without a gate never decided")
}

func TestProcess_BaselineIgnoresGate(t *testing.T) {
	v := &vadmock.Session{Script: speechThenSilence(3)}
	o := newOrchestrator(t, DefaultConfig(), &scriptedBeep{fireAt: -1}, v,
		WithGate(GateFunc(func() bool { return false })))
	for i := range 200 {
		if _, ok := o.Process(frameAt(i)); ok {
			return
		}
	}
	t.Fatal("baseline orchestrator must not wait for the gate")
}

func TestProcess_BeepWinsOnSameFrame(t *testing.T) {
	// Silence completes on frame 102 (1 calibration + 2 speech + 100 silent);
	// the beep is confirmed on that same frame.
	v := &vadmock.Session{Script: speechThenSilence(2)}
	b := &scriptedBeep{fireAt: 102, start: 1.9}
	o := newOrchestrator(t, DefaultConfig(), b, v)

	var got Decision
	for i := range 200 {
		if d, ok := o.Process(frameAt(i)); ok {
			got = d
			break
		}
	}
	if got.Kind != KindBeep {
		t.Fatalf("kind = %q, want beep to take priority", got.Kind)
	}
}

func TestProcess_InertAfterDecision(t *testing.T) {
	b := &scriptedBeep{fireAt: 0, start: 0}
	v := &vadmock.Session{}
	o := newOrchestrator(t, DefaultConfig(), b, v)

	first, ok := o.Process(frameAt(0))
	if !ok {
		t.Fatal("expected decision on first frame")
	}
	vadCalls := v.Calls()
	for i := 1; i < 500; i++ {
		if _, ok := o.Process(frameAt(i)); ok {
			t.Fatalf("second decision at frame %d", i)
		}
	}
	if b.calls != 1 {
		t.Errorf("beep detector called %d times, want 1", b.calls)
	}
	if v.Calls() != vadCalls {
		t.Errorf("vad called after decision: %d -> %d", vadCalls, v.Calls())
	}
	stored, decided := o.Decision()
	if !decided || stored != first {
		t.Errorf("Decision() = %+v, %v; want %+v, true", stored, decided, first)
	}
}

// ---- end-to-end with the real detectors ----

type synth struct {
	rng    *rand.Rand
	sample int
	frames []audio.Frame
}

func (s *synth) add(n int, gen func(i int) float64) {
	for range n {
		samples := make([]float64, audio.DefaultFrameSamples)
		for j := range samples {
			samples[j] = gen(s.sample + j)
		}
		s.frames = append(s.frames, audio.Frame{
			Samples:    samples,
			SampleRate: audio.DefaultSampleRate,
			Timestamp:  float64(s.sample) / audio.DefaultSampleRate,
		})
		s.sample += len(samples)
	}
}

func (s *synth) noise(amp float64) func(int) float64 {
	return func(int) float64 { return amp * (2*s.rng.Float64() - 1) }
}

func sine(freq, amp float64) func(int) float64 {
	return func(i int) float64 {
		return amp * math.Sin(2*math.Pi*freq*float64(i)/audio.DefaultSampleRate)
	}
}

func realOrchestrator(t *testing.T) *Orchestrator {
	t.Helper()
	b, err := beep.New(beep.DefaultConfig(audio.DefaultSampleRate))
	if err != nil {
		t.Fatalf("beep.New: %v", err)
	}
	v, err := energy.New(vad.Config{SampleRate: audio.DefaultSampleRate})
	if err != nil {
		t.Fatalf("energy.New: %v", err)
	}
	return newOrchestrator(t, DefaultConfig(), b, v)
}

func run(o *Orchestrator, frames []audio.Frame) (Decision, int) {
	count := 0
	var got Decision
	for _, fr := range frames {
		if d, ok := o.Process(fr); ok {
			count++
			got = d
		}
	}
	return got, count
}

func TestEndToEnd_GreetingThenBeep(t *testing.T) {
	s := &synth{rng: rand.New(rand.NewPCG(21, 22))}
	s.add(25, s.noise(1e-3))
	s.add(50, s.noise(0.3)) // "speech"
	s.add(25, s.noise(1e-3))
	beepStart := float64(s.sample) / audio.DefaultSampleRate
	s.add(20, sine(1000, 0.5))
	s.add(50, s.noise(1e-3))

	got, n := run(realOrchestrator(t), s.frames)
	if n != 1 {
		t.Fatalf("decisions = %d, want 1", n)
	}
	if got.Kind != KindBeep {
		t.Fatalf("kind = %q, want beep", got.Kind)
	}
	if math.Abs(got.Timestamp-(beepStart+0.02)) > eps {
		t.Errorf("timestamp = %v, want %v", got.Timestamp, beepStart+0.02)
	}
}

func TestEndToEnd_GreetingThenSilence(t *testing.T) {
	s := &synth{rng: rand.New(rand.NewPCG(23, 24))}
	s.add(25, s.noise(1e-3))
	s.add(50, s.noise(0.3))
	s.add(200, s.noise(1e-3))

	got, n := run(realOrchestrator(t), s.frames)
	if n != 1 {
		t.Fatalf("decisions = %d, want 1", n)
	}
	if got.Kind != KindSilence {
		t.Fatalf("kind = %q, want silence", got.Kind)
	}
	want := got.DecidedAt - got.Silence + 0.1
	if math.Abs(got.Timestamp-want) > eps {
		t.Errorf("timestamp = %v, want %v", got.Timestamp, want)
	}
	if got.Silence < 2.0 {
		t.Errorf("silence = %v, want >= 2.0", got.Silence)
	}
}

func TestEndToEnd_PureSilenceUndetermined(t *testing.T) {
	s := &synth{}
	s.add(500, func(int) float64 { return 0 })
	if _, n := run(realOrchestrator(t), s.frames); n != 0 {
		t.Fatalf("decisions = %d on pure silence, want 0", n)
	}
}
