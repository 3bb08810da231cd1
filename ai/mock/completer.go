package mock

import (
	"context"

	"github.com/marketlens/marketlens/ai"
)

// MockCompleter is a test double for ai.Completer.
// It allows custom behavior injection via a function field.
type MockCompleter struct {
	// CompleteFunc is called by Complete if set.
	// If nil, returns a canned well-formed answer.
	CompleteFunc func(ctx context.Context, messages []ai.ChatMessage, params ai.SamplingParams) (*ai.ChatResult, error)

	callCount int
}

// NewMockCompleter creates a mock completer returning a fixed answer.
// Note: Returns concrete type to allow test assertions via GetMockCompleter().
func NewMockCompleter() *MockCompleter {
	return &MockCompleter{}
}

// Complete returns the injected behavior's result, or a canned response that
// satisfies the four-section answer template with a single citation.
func (m *MockCompleter) Complete(ctx context.Context, messages []ai.ChatMessage, params ai.SamplingParams) (*ai.ChatResult, error) {
	m.callCount++

	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, messages, params)
	}

	return &ai.ChatResult{
		Content: "Conclusion:\nMarkets digested the release without stress [1].\n" +
			"Impact:\nRisk pricing is broadly unchanged [1].\n" +
			"Risk:\nEvidence coverage is thin.\n" +
			"Watchpoints:\nWatch the next scheduled release [1].",
		Usage: &ai.Usage{PromptTokens: 42, CompletionTokens: 36, TotalTokens: 78},
	}, nil
}

// CallCount returns the number of times Complete was called.
func (m *MockCompleter) CallCount() int {
	return m.callCount
}

// Reset clears the call count and injected behavior.
func (m *MockCompleter) Reset() {
	m.callCount = 0
	m.CompleteFunc = nil
}
