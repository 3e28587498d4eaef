// Package gemini calls Google's Gemini API through the genai SDK.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"google.golang.org/genai"

	"github.com/papercomputeco/ligandx/pkg/llm"
)

type provider struct {
	client *genai.Client
}

// New creates a Gemini provider. baseURL and client are optional and mainly
// exist so the provider can be pointed at a test server.
func New(ctx context.Context, apiKey, baseURL string, client *http.Client) (*provider, error) {
	if apiKey == "" {
		return nil, errors.New("gemini API key is required")
	}

	cfg := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: client,
	}
	if baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}

	c, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &provider{client: c}, nil
}

func (g *provider) Name() string {
	return "gemini"
}

func (g *provider) Complete(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	contents := make([]*genai.Content, 0, len(req.Messages))
	for _, msg := range req.Turns() {
		role := genai.Role(genai.RoleUser)
		if msg.Role == llm.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(msg.Content, role))
	}

	config := &genai.GenerateContentConfig{
		Temperature:      toFloat32(req.Temperature),
		FrequencyPenalty: toFloat32(req.FrequencyPenalty),
		PresencePenalty:  toFloat32(req.PresencePenalty),
	}
	if system := req.System(); system != "" {
		config.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	if req.MaxTokens != nil {
		config.MaxOutputTokens = int32(*req.MaxTokens)
	}

	resp, err := g.client.Models.GenerateContent(ctx, req.Model, contents, config)
	if err != nil {
		return nil, toTransportError(g.Name(), err)
	}
	if len(resp.Candidates) == 0 {
		return nil, &llm.TransportError{Provider: g.Name(), Err: errors.New("no candidates returned")}
	}

	out := &llm.ChatResponse{
		Model:      req.Model,
		CreatedAt:  time.Now(),
		Message:    llm.NewTextMessage(llm.RoleAssistant, resp.Text()),
		StopReason: string(resp.Candidates[0].FinishReason),
	}
	if resp.ModelVersion != "" {
		out.Model = resp.ModelVersion
	}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = &llm.Usage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}
	return out, nil
}

func toFloat32(v *float64) *float32 {
	if v == nil {
		return nil
	}
	return genai.Ptr(float32(*v))
}

func toTransportError(name string, err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &llm.TransportError{Provider: name, StatusCode: apiErr.Code, Err: err}
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return &llm.TransportError{Provider: name, StatusCode: apiErrPtr.Code, Err: err}
	}
	return &llm.TransportError{Provider: name, Err: err}
}
