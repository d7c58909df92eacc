// Package vad defines the Engine interface for Voice Activity Detection backends.
//
// A VAD engine produces stateful, per-stream sessions. Each session keeps its
// own adaptation state (noise floor, smoothing history) so that concurrent
// calls are classified independently.
//
// IsSpeech is synchronous and returns immediately; it runs inside the
// per-frame decision loop.
//
// Implementations must be safe for concurrent use across different sessions.
// A single SessionHandle must not be shared between goroutines.
package vad

// Config holds the parameters for a VAD session.
type Config struct {
	// SampleRate is the audio sample rate in Hz of the frames passed to IsSpeech.
	SampleRate int

	// FrameSamples is the number of samples per frame. Zero accepts any length.
	FrameSamples int

	// EnergyThreshold is how many times louder than the background a frame must
	// be to count as speech. Typical: 2.0.
	EnergyThreshold float64

	// Smoothing is the weight of the current frame in the exponential
	// background estimate, in (0, 1). Small values adapt slowly. Typical: 0.01.
	Smoothing float64
}

// SessionHandle classifies the frames of a single audio stream.
type SessionHandle interface {
	// IsSpeech reports whether frame, a slice of normalised samples, contains
	// speech. The first call on a fresh session only calibrates and always
	// returns false.
	IsSpeech(frame []float64) bool

	// Reset discards all adaptation state. The next IsSpeech call calibrates
	// again.
	Reset()
}

// Engine is the factory for VAD sessions.
//
// Implementations must be safe for concurrent use: multiple goroutines may call
// NewSession simultaneously to create independent sessions.
type Engine interface {
	// NewSession creates a new VAD session. It returns an error when cfg is out
	// of range for the engine.
	NewSession(cfg Config) (SessionHandle, error)
}
