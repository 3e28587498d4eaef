package llm

// ChatRequest represents a provider-agnostic, non-streaming chat completion
// request. Providers translate it into their own wire format.
type ChatRequest struct {
	// Model name (e.g., "gpt-4o", "claude-3-5-sonnet-latest", "llama3")
	Model string `json:"model"`

	// Conversation messages, system turn first when present
	Messages []Message `json:"messages"`

	// Sampling parameters. Nil means the provider default.
	Temperature      *float64 `json:"temperature,omitempty"`
	FrequencyPenalty *float64 `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float64 `json:"presence_penalty,omitempty"`
	MaxTokens        *int     `json:"max_tokens,omitempty"`
}

// System returns the content of the leading system turn, if any.
func (r *ChatRequest) System() string {
	if len(r.Messages) > 0 && r.Messages[0].Role == RoleSystem {
		return r.Messages[0].Content
	}
	return ""
}

// Turns returns the messages that follow the leading system turn.
func (r *ChatRequest) Turns() []Message {
	if len(r.Messages) > 0 && r.Messages[0].Role == RoleSystem {
		return r.Messages[1:]
	}
	return r.Messages
}

// Float64 returns a pointer to v.
func Float64(v float64) *float64 {
	return &v
}
