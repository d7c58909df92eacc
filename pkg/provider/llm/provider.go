// Package llm defines the one-shot completion interface used to ask a
// language model whether a greeting has finished.
//
// Only non-streaming completions are modelled: every question the detector
// asks is answered by a handful of tokens.
//
// Implementations must be safe for concurrent use and return promptly when
// ctx is cancelled.
package llm

import "context"

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single chat message.
type Message struct {
	Role    string
	Content string
}

// Usage holds token accounting returned by the backend.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest carries everything the model needs to answer.
type CompletionRequest struct {
	// SystemPrompt, when set, is sent as a leading system message.
	SystemPrompt string

	// Messages is the ordered conversation. It must not be empty.
	Messages []Message

	// Temperature is sent only when non-nil, so an explicit zero requests
	// greedy decoding instead of the provider default.
	Temperature *float64

	// MaxTokens caps the completion length. Zero uses the provider default.
	MaxTokens int
}

// CompletionResponse is the model's reply.
type CompletionResponse struct {
	Content string
	Usage   Usage
}

// Provider is the abstraction over any LLM backend.
type Provider interface {
	// Complete sends req and waits for the full response.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

// Float returns a pointer to v, for optional request fields.
func Float(v float64) *float64 { return &v }
