package testutils

import (
	"context"
	"strings"
	"sync"

	"github.com/papercomputeco/ligandx/pkg/llm"
)

// MockProvider is a scripted LLM provider. Each request is answered by the
// first rule whose substring appears in the last user turn; a rule's answers
// are consumed in order and the final one repeats.
type MockProvider struct {
	mu sync.Mutex

	// ProviderName is returned by Name; defaults to "mock".
	ProviderName string

	// Default answers requests no rule matches.
	Default string

	// Cached marks every response as served from cache.
	Cached bool

	rules    []*rule
	failures []error
	requests []*llm.ChatRequest
}

type rule struct {
	contains string
	answers  []string
	served   int
}

// NewMockProvider creates an empty MockProvider.
func NewMockProvider() *MockProvider {
	return &MockProvider{}
}

// On adds a rule answering questions containing substr.
func (m *MockProvider) On(substr string, answers ...string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, &rule{contains: substr, answers: answers})
	return m
}

// FailNext makes the next len(errs) calls return errs in order.
func (m *MockProvider) FailNext(errs ...error) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, errs...)
	return m
}

func (m *MockProvider) Name() string {
	if m.ProviderName == "" {
		return "mock"
	}
	return m.ProviderName
}

func (m *MockProvider) Complete(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *req
	cp.Messages = append([]llm.Message(nil), req.Messages...)
	m.requests = append(m.requests, &cp)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(m.failures) > 0 {
		err := m.failures[0]
		m.failures = m.failures[1:]
		return nil, err
	}

	question := lastUser(req.Messages)
	answer := m.Default
	for _, r := range m.rules {
		if !strings.Contains(question, r.contains) || len(r.answers) == 0 {
			continue
		}
		i := min(r.served, len(r.answers)-1)
		r.served++
		answer = r.answers[i]
		break
	}

	return &llm.ChatResponse{
		Model:      req.Model,
		Message:    llm.NewTextMessage(llm.RoleAssistant, answer),
		StopReason: "stop",
		Cached:     m.Cached,
	}, nil
}

// Calls returns the number of requests received.
func (m *MockProvider) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// CallsContaining returns the number of requests whose last user turn
// contains substr.
func (m *MockProvider) CallsContaining(substr string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.requests {
		if strings.Contains(lastUser(r.Messages), substr) {
			n++
		}
	}
	return n
}

// Requests returns copies of every request received.
func (m *MockProvider) Requests() []*llm.ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*llm.ChatRequest(nil), m.requests...)
}

func lastUser(msgs []llm.Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == llm.RoleUser {
			return msgs[i].Content
		}
	}
	return ""
}
