package judge

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/MrWong99/beepwise/pkg/provider/llm"
)

const (
	// DefaultMinChars is the transcript length below which the LLM is not
	// asked and the greeting is assumed to be still playing.
	DefaultMinChars = 20

	llmMaxTokens = 5
)

const promptTemplate = `You are classifying voicemail greetings.

Transcript:
"%s"

Question:
Has the voicemail greeting finished, such that recording can safely start?

Answer ONLY with YES or NO.`

// LLMOption configures an [LLM] judge.
type LLMOption func(*LLM)

// WithMinChars overrides [DefaultMinChars].
func WithMinChars(n int) LLMOption {
	return func(j *LLM) {
		if n >= 0 {
			j.minChars = n
		}
	}
}

// LLM asks a language model for a YES/NO verdict.
type LLM struct {
	provider llm.Provider
	minChars int
}

// NewLLM returns an LLM judge backed by p.
func NewLLM(p llm.Provider, opts ...LLMOption) *LLM {
	j := &LLM{provider: p, minChars: DefaultMinChars}
	for _, o := range opts {
		o(j)
	}
	return j
}

// GreetingFinished implements [Judge]. Short transcripts return false
// without a model call. Any answer starting with YES, ignoring case and
// surrounding whitespace, means finished.
func (j *LLM) GreetingFinished(ctx context.Context, transcript string) (bool, error) {
	transcript = strings.TrimSpace(transcript)
	if utf8.RuneCountInString(transcript) < j.minChars {
		return false, nil
	}

	resp, err := j.provider.Complete(ctx, llm.CompletionRequest{
		Messages: []llm.Message{{
			Role:    llm.RoleUser,
			Content: Prompt(transcript),
		}},
		Temperature: llm.Float(0),
		MaxTokens:   llmMaxTokens,
	})
	if err != nil {
		return false, fmt.Errorf("judge: llm: %w", err)
	}
	if resp == nil {
		return false, fmt.Errorf("judge: llm: empty response")
	}

	answer := strings.TrimSpace(resp.Content)
	slog.Debug("llm judgment", "answer", answer, "chars", len(transcript))
	return strings.HasPrefix(strings.ToUpper(answer), "YES"), nil
}

// Prompt renders the classification prompt for transcript.
func Prompt(transcript string) string {
	return fmt.Sprintf(promptTemplate, transcript)
}
