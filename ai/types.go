package ai

// Role identifies the author of a chat message.
type Role string

const (
	RoleSystem Role = "system"
	RoleUser   Role = "user"
)

// ChatMessage is one entry in the ordered message list sent to a Completer.
type ChatMessage struct {
	Role    Role
	Content string
}

// SamplingParams are the generation knobs forwarded to the model.
type SamplingParams struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

// Usage carries token accounting reported by the backend. All fields are zero
// when the backend does not report usage.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// ChatResult is the outcome of one completion call.
type ChatResult struct {
	Content string
	Usage   *Usage
}
