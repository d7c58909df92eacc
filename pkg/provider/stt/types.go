package stt

import "time"

// Transcript is one recognition result. Partials and finals share the type.
type Transcript struct {
	// Text is the recognised speech.
	Text string

	// IsFinal distinguishes committed results from interim guesses.
	IsFinal bool

	// Confidence is the provider's score in [0, 1], or zero when not reported.
	Confidence float64

	// Start is the offset of the utterance from the start of the stream.
	Start time.Duration

	// Duration is the length of the utterance.
	Duration time.Duration
}
