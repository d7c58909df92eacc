// Package judge decides, from the transcript heard so far, whether a
// voicemail greeting has finished.
//
// A [Judge] may be slow (an LLM round trip) and may fail. The frame loop
// never calls one directly: [Cached] re-asks the judge in the background
// whenever the transcript changes and exposes the latest answer through a
// non-blocking Finished method that satisfies greeting.Gate.
package judge

import "context"

// Judge answers whether transcript reads like a complete greeting.
// Implementations must be safe for concurrent use.
type Judge interface {
	GreetingFinished(ctx context.Context, transcript string) (bool, error)
}

// Func adapts a function to [Judge].
type Func func(ctx context.Context, transcript string) (bool, error)

// GreetingFinished implements [Judge].
func (f Func) GreetingFinished(ctx context.Context, transcript string) (bool, error) {
	return f(ctx, transcript)
}

// Always reports every greeting as finished. It turns the augmented
// orchestrator back into the silence-only baseline.
type Always struct{}

// GreetingFinished implements [Judge].
func (Always) GreetingFinished(context.Context, string) (bool, error) { return true, nil }

var (
	_ Judge = Func(nil)
	_ Judge = Always{}
	_ Judge = (*LLM)(nil)
	_ Judge = (*Phrase)(nil)
)
