package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/beepwise/pkg/provider/llm"
	llmmock "github.com/MrWong99/beepwise/pkg/provider/llm/mock"
)

func TestLLMFallback_PrimarySuccess(t *testing.T) {
	primary := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "YES"}}
	secondary := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "NO"}}

	fb := NewLLMFallback("groq", primary, BreakerConfig{MaxFailures: 3})
	fb.AddFallback("openai", secondary)

	resp, err := fb.Complete(context.Background(), llm.CompletionRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "YES" {
		t.Fatalf("content = %q, want YES", resp.Content)
	}
	if primary.CallCount() != 1 || secondary.CallCount() != 0 {
		t.Fatalf("calls primary=%d secondary=%d, want 1/0", primary.CallCount(), secondary.CallCount())
	}
}

func TestLLMFallback_Failover(t *testing.T) {
	primary := &llmmock.Provider{CompleteErr: errors.New("rate limited")}
	secondary := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "NO"}}

	fb := NewLLMFallback("groq", primary, BreakerConfig{MaxFailures: 3})
	fb.AddFallback("openai", secondary)

	resp, err := fb.Complete(context.Background(), llm.CompletionRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "NO" {
		t.Fatalf("content = %q, want NO", resp.Content)
	}
}

func TestLLMFallback_AllFail(t *testing.T) {
	fb := NewLLMFallback("groq", &llmmock.Provider{CompleteErr: errTest}, BreakerConfig{})
	_, err := fb.Complete(context.Background(), llm.CompletionRequest{})
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}
