// Package audio holds the frame representation shared by every stage of the
// greeting-end pipeline together with the helpers that sit on the PCM wire
// boundary: 16-bit little-endian decoding, fixed-size framing, downmixing and
// resampling.
//
// Frames are immutable once produced. Each detector borrows a frame for the
// duration of a single call and must not retain the Samples slice.
package audio

import (
	"errors"
	"fmt"
)

// Pipeline defaults used by the voicemail pipeline. Telephone audio arrives
// as 8 kHz mono and is cut into 20 ms frames.
const (
	DefaultSampleRate     = 8000
	DefaultFrameDuration  = 0.02
	DefaultFrameSamples   = 160
	BytesPerSample        = 2
	DefaultFrameSizeBytes = DefaultFrameSamples * BytesPerSample
)

// ErrMalformedFrame is returned when a frame does not match the pipeline
// format. Such frames are rejected before they reach any detector.
var ErrMalformedFrame = errors.New("audio: malformed frame")

// Format describes the fixed layout of frames within one pipeline instance.
type Format struct {
	// SampleRate in Hz (8000 for telephone audio).
	SampleRate int

	// FrameSamples is the number of samples in every frame.
	FrameSamples int
}

// DefaultFormat returns the 8 kHz / 160 sample (20 ms) telephone format.
func DefaultFormat() Format {
	return Format{SampleRate: DefaultSampleRate, FrameSamples: DefaultFrameSamples}
}

// Validate reports whether f describes a usable frame layout.
func (f Format) Validate() error {
	if f.SampleRate <= 0 {
		return fmt.Errorf("audio: sample rate %d must be positive", f.SampleRate)
	}
	if f.FrameSamples < 2 {
		return fmt.Errorf("audio: frame size %d must be at least 2 samples", f.FrameSamples)
	}
	return nil
}

// FrameDuration returns the duration of one frame in seconds.
func (f Format) FrameDuration() float64 {
	return float64(f.FrameSamples) / float64(f.SampleRate)
}

// FrameBytes returns the size of one frame on the 16-bit PCM wire.
func (f Format) FrameBytes() int {
	return f.FrameSamples * BytesPerSample
}

// Frame is a fixed-length run of normalised mono samples in [-1, 1].
type Frame struct {
	// Samples holds the normalised amplitudes.
	Samples []float64

	// SampleRate in Hz.
	SampleRate int

	// Timestamp is the number of samples seen before this frame divided by
	// SampleRate, in seconds.
	Timestamp float64
}

// NewFrame validates samples against f and returns the resulting frame.
// A wrong length or an empty frame wraps [ErrMalformedFrame].
func NewFrame(f Format, samples []float64, timestamp float64) (Frame, error) {
	if len(samples) != f.FrameSamples {
		return Frame{}, fmt.Errorf("%w: got %d samples, want %d", ErrMalformedFrame, len(samples), f.FrameSamples)
	}
	if timestamp < 0 {
		return Frame{}, fmt.Errorf("%w: negative timestamp %.3f", ErrMalformedFrame, timestamp)
	}
	return Frame{Samples: samples, SampleRate: f.SampleRate, Timestamp: timestamp}, nil
}

// Duration returns the length of the frame in seconds.
func (fr Frame) Duration() float64 {
	if fr.SampleRate <= 0 {
		return 0
	}
	return float64(len(fr.Samples)) / float64(fr.SampleRate)
}
