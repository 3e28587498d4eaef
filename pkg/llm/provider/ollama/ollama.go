// Package ollama
package ollama

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/papercomputeco/ligandx/pkg/llm"
)

const defaultBaseURL = "http://localhost:11434"

// provider calls a local Ollama server's chat endpoint.
type provider struct {
	baseURL string
	client  *http.Client
}

func New(baseURL string, client *http.Client) *provider {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &provider{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

func (o *provider) Name() string {
	return "ollama"
}

func (o *provider) Complete(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	body := ollamaRequest{
		Model:    req.Model,
		Messages: make([]ollamaMessage, 0, len(req.Messages)),
		Options: &ollamaOptions{
			Temperature:      req.Temperature,
			FrequencyPenalty: req.FrequencyPenalty,
			PresencePenalty:  req.PresencePenalty,
			NumPredict:       req.MaxTokens,
		},
	}
	for _, msg := range req.Messages {
		body.Messages = append(body.Messages, ollamaMessage(msg))
	}

	var resp ollamaResponse
	if err := llm.PostJSON(ctx, o.client, o.Name(), o.baseURL+"/api/chat", nil, body, &resp); err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, &llm.TransportError{Provider: o.Name(), Err: errors.New(resp.Error)}
	}

	return &llm.ChatResponse{
		Model:      resp.Model,
		CreatedAt:  resp.CreatedAt,
		Message:    llm.NewTextMessage(llm.RoleAssistant, resp.Message.Content),
		StopReason: resp.DoneReason,
		Usage: &llm.Usage{
			PromptTokens:     resp.PromptEvalCount,
			CompletionTokens: resp.EvalCount,
			TotalTokens:      resp.PromptEvalCount + resp.EvalCount,
		},
	}, nil
}
