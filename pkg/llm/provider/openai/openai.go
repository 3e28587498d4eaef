// Package openai
package openai

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/papercomputeco/ligandx/pkg/llm"
)

const defaultBaseURL = "https://api.openai.com"

// provider calls OpenAI's Chat Completions API.
type provider struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

func New(apiKey, baseURL string, client *http.Client) *provider {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &provider{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

func (o *provider) Name() string {
	return "openai"
}

func (o *provider) Complete(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	body := openaiRequest{
		Model:            req.Model,
		Messages:         make([]openaiMessage, 0, len(req.Messages)),
		MaxTokens:        req.MaxTokens,
		Temperature:      req.Temperature,
		FrequencyPenalty: req.FrequencyPenalty,
		PresencePenalty:  req.PresencePenalty,
	}
	for _, msg := range req.Messages {
		body.Messages = append(body.Messages, openaiMessage(msg))
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+o.apiKey)

	var resp openaiResponse
	if err := llm.PostJSON(ctx, o.client, o.Name(), o.baseURL+"/v1/chat/completions", header, body, &resp); err != nil {
		return nil, err
	}

	if resp.Error != nil {
		return nil, &llm.TransportError{Provider: o.Name(), Err: errors.New(resp.Error.Message)}
	}
	if len(resp.Choices) == 0 {
		return nil, &llm.TransportError{Provider: o.Name(), Err: errors.New("no choices returned")}
	}

	choice := resp.Choices[0]
	out := &llm.ChatResponse{
		Model:      resp.Model,
		Message:    llm.NewTextMessage(llm.RoleAssistant, choice.Message.Content),
		StopReason: choice.FinishReason,
	}
	if resp.Created != 0 {
		out.CreatedAt = time.Unix(resp.Created, 0)
	}
	if resp.Usage != nil {
		out.Usage = &llm.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		}
	}
	return out, nil
}
