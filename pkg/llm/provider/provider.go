package provider

import (
	"context"

	"github.com/papercomputeco/ligandx/pkg/llm"
)

// Provider is the LLM backend collaborator: a blocking, non-streaming call
// from a message history to the model's answer.
type Provider interface {
	// Name returns the canonical provider name (e.g., "openai", "anthropic", "ollama", "gemini")
	Name() string

	// Complete sends the conversation and returns the assistant's answer.
	// Backend and network failures are returned as *llm.TransportError.
	Complete(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error)
}
