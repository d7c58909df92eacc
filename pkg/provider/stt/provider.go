// Package stt defines the streaming Speech-to-Text interface used to transcribe
// voicemail greetings while they play.
//
// A Provider opens one SessionHandle per call. The session accepts raw PCM
// frames and emits two transcript streams: interim partials that may still
// change, and finals the provider has committed to.
//
// Implementations must be safe for concurrent use: the frame loop sends audio
// while a separate goroutine drains the transcript channels.
package stt

import "context"

// Encoding names the wire format of the audio chunks passed to SendAudio.
type Encoding string

// EncodingLinear16 is little-endian signed 16-bit PCM, the only format the
// pipeline produces.
const EncodingLinear16 Encoding = "linear16"

// StreamConfig describes the audio format and recognition hints for a new
// session.
type StreamConfig struct {
	// SampleRate is the audio sample rate in Hz. Telephony audio is 8000.
	SampleRate int

	// Channels is the number of audio channels. Greetings are always mono.
	Channels int

	// Language is the BCP-47 language tag for recognition (e.g., "en-US").
	// Empty uses the provider default.
	Language string

	// Encoding is the chunk format. Empty means EncodingLinear16.
	Encoding Encoding
}

// SessionHandle is an open streaming session.
//
// Callers must call Close when the session is no longer needed. All methods
// must be safe for concurrent use.
type SessionHandle interface {
	// SendAudio delivers one chunk of audio in the agreed format. Calling
	// SendAudio after Close returns an error.
	SendAudio(chunk []byte) error

	// Partials emits interim transcripts. The channel is closed when the
	// session ends.
	Partials() <-chan Transcript

	// Finals emits committed transcripts. The channel is closed when the
	// session ends.
	Finals() <-chan Transcript

	// Close flushes pending audio, ends the session and releases its
	// resources. Calling Close more than once is safe and returns nil.
	Close() error
}

// Provider is the abstraction over any streaming STT backend.
type Provider interface {
	// StartStream opens a new session. The caller owns the returned handle.
	StartStream(ctx context.Context, cfg StreamConfig) (SessionHandle, error)
}
