package openai

import (
	"context"
	"errors"
	"log/slog"

	"github.com/marketlens/marketlens/ai"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// Completer implements ai.Completer using OpenAI-compatible chat APIs.
type Completer struct {
	client llms.Model
	logger *slog.Logger
}

// newCompleter is an internal constructor that returns the concrete type.
// Used by Provider to manage the instance.
func newCompleter(config *ai.Config) (*Completer, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	token := config.APIKey
	if token == "" {
		token = "none"
	}
	client, err := openai.New(
		openai.WithBaseURL(config.ChatHost),
		openai.WithToken(token),
		openai.WithModel(config.ChatModel),
	)
	if err != nil {
		return nil, err
	}

	return &Completer{
		client: client,
		logger: slog.Default().With("component", "openai-completer"),
	}, nil
}

// NewCompleter creates a new completer using the provided configuration.
//
// Returns ai.Completer interface to enforce abstraction.
func NewCompleter(config *ai.Config) (ai.Completer, error) {
	return newCompleter(config)
}

// Complete sends the ordered message list to the model and returns the
// generated text plus token usage when the backend reports it.
func (c *Completer) Complete(ctx context.Context, messages []ai.ChatMessage, params ai.SamplingParams) (*ai.ChatResult, error) {
	content := make([]llms.MessageContent, 0, len(messages))
	for _, message := range messages {
		role := llms.ChatMessageTypeHuman
		if message.Role == ai.RoleSystem {
			role = llms.ChatMessageTypeSystem
		}
		content = append(content, llms.MessageContent{
			Role:  role,
			Parts: []llms.ContentPart{llms.TextPart(message.Content)},
		})
	}

	opts := []llms.CallOption{
		llms.WithTemperature(params.Temperature),
	}
	if params.Model != "" {
		opts = append(opts, llms.WithModel(params.Model))
	}
	if params.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(params.MaxTokens))
	}

	response, err := c.client.GenerateContent(ctx, content, opts...)
	if err != nil {
		c.logger.Error("chat completion failed", "model", params.Model, "err", err)
		return nil, err
	}
	if len(response.Choices) == 0 {
		return nil, errors.New("openai: completion returned no choices")
	}

	choice := response.Choices[0]
	return &ai.ChatResult{
		Content: choice.Content,
		Usage:   usageFromGenerationInfo(choice.GenerationInfo),
	}, nil
}

// usageFromGenerationInfo pulls token counters out of the backend-specific
// generation info map. Returns nil when the backend reported nothing.
func usageFromGenerationInfo(info map[string]any) *ai.Usage {
	if len(info) == 0 {
		return nil
	}
	usage := &ai.Usage{
		PromptTokens:     intFromAny(info["PromptTokens"]),
		CompletionTokens: intFromAny(info["CompletionTokens"]),
		TotalTokens:      intFromAny(info["TotalTokens"]),
	}
	if usage.TotalTokens == 0 {
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	}
	if usage.PromptTokens == 0 && usage.CompletionTokens == 0 && usage.TotalTokens == 0 {
		return nil
	}
	return usage
}

func intFromAny(value any) int {
	switch v := value.(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}
