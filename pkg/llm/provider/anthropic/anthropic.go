// Package anthropic
package anthropic

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/papercomputeco/ligandx/pkg/llm"
)

const (
	defaultBaseURL   = "https://api.anthropic.com"
	apiVersion       = "2023-06-01"
	defaultMaxTokens = 4096
)

// provider calls Anthropic's Messages API. Anthropic has no frequency or
// presence penalty, so those request fields are not forwarded.
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

func (a *provider) Name() string {
	return "anthropic"
}

func (a *provider) Complete(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	body := anthropicRequest{
		Model:       req.Model,
		System:      req.System(),
		MaxTokens:   defaultMaxTokens,
		Temperature: req.Temperature,
	}
	if req.MaxTokens != nil {
		body.MaxTokens = *req.MaxTokens
	}
	for _, msg := range req.Turns() {
		body.Messages = append(body.Messages, anthropicMessage(msg))
	}

	header := http.Header{}
	header.Set("x-api-key", a.apiKey)
	header.Set("anthropic-version", apiVersion)

	var resp anthropicResponse
	if err := llm.PostJSON(ctx, a.client, a.Name(), a.baseURL+"/v1/messages", header, body, &resp); err != nil {
		return nil, err
	}

	if resp.Error != nil {
		return nil, &llm.TransportError{Provider: a.Name(), Err: errors.New(resp.Error.Message)}
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	out := &llm.ChatResponse{
		Model:      resp.Model,
		CreatedAt:  time.Now(),
		Message:    llm.NewTextMessage(llm.RoleAssistant, text.String()),
		StopReason: resp.StopReason,
	}
	if resp.Usage != nil {
		out.Usage = &llm.Usage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
		}
	}
	return out, nil
}
