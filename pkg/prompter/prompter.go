// Package prompter sends conversations to an LLM provider, retrying
// transport failures with bounded exponential backoff and re-asking once
// when an answer cannot be coerced to the expected shape.
package prompter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/papercomputeco/ligandx/pkg/coerce"
	"github.com/papercomputeco/ligandx/pkg/conversation"
	"github.com/papercomputeco/ligandx/pkg/llm"
	"github.com/papercomputeco/ligandx/pkg/llm/provider"
	"github.com/papercomputeco/ligandx/pkg/logger"
)

// ErrTransportExhausted is returned when every transport attempt failed.
var ErrTransportExhausted = errors.New("transport attempts exhausted")

// ErrNoQuestion is returned when the conversation does not end with an
// unanswered user turn.
var ErrNoQuestion = errors.New("conversation has no pending question")

// Retry kinds reported to an Observer.
const (
	RetryTransport   = "transport"
	RetryCoercion    = "coercion"
	RetryStructural  = "structural"
	RetryPerformance = "performance"
	RetryRemoval     = "removal"
)

// Request outcomes reported to an Observer.
const (
	OutcomeOK     = "ok"
	OutcomeCached = "cached"
	OutcomeError  = "error"
)

// Config controls sampling and retry behavior.
type Config struct {
	Model            string
	Temperature      float64
	FrequencyPenalty float64
	PresencePenalty  float64

	// MaxTransportAttempts <= 0 retries until ctx is done.
	MaxTransportAttempts int
	InitialBackoff       time.Duration
	MaxBackoff           time.Duration

	// CallTimeout bounds a single backend call. Zero means no bound.
	CallTimeout time.Duration

	// CoercionRetries is the number of re-asks after an answer fails to
	// coerce.
	CoercionRetries int
}

// DefaultConfig returns the default retry policy with temperature and
// penalties at zero.
func DefaultConfig(model string) Config {
	return Config{
		Model:                model,
		MaxTransportAttempts: 5,
		InitialBackoff:       time.Second,
		MaxBackoff:           30 * time.Second,
		CallTimeout:          2 * time.Minute,
		CoercionRetries:      1,
	}
}

// Recorder receives every backend exchange.
type Recorder interface {
	RecordExchange(history []llm.Message, answer string)
}

// Observer receives request and retry counts.
type Observer interface {
	ObserveRequest(provider, outcome string, elapsed time.Duration)
	ObserveRetry(kind string)
}

type nopObserver struct{}

func (nopObserver) ObserveRequest(string, string, time.Duration) {}
func (nopObserver) ObserveRetry(string)                          {}

// NopObserver discards observations.
var NopObserver Observer = nopObserver{}

// Prompter asks questions on behalf of one pipeline. It is not safe for
// concurrent use; one request is outstanding at a time.
type Prompter struct {
	provider provider.Provider
	cfg      Config
	recorder Recorder
	observer Observer
	logger   *slog.Logger
}

// Option configures a Prompter.
type Option func(*Prompter)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Prompter) { p.logger = l }
}

// WithObserver sets the metrics observer.
func WithObserver(o Observer) Option {
	return func(p *Prompter) {
		if o != nil {
			p.observer = o
		}
	}
}

// New creates a Prompter over the given provider.
func New(prov provider.Provider, cfg Config, opts ...Option) *Prompter {
	p := &Prompter{
		provider: prov,
		cfg:      cfg,
		observer: NopObserver,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = logger.OrNop(p.logger)
	return p
}

// With returns a copy of p that records exchanges to rec.
func (p *Prompter) With(rec Recorder) *Prompter {
	cp := *p
	cp.recorder = rec
	return &cp
}

// WithCoercionRetries returns a copy of p that re-asks at most n times when
// an answer does not coerce.
func (p *Prompter) WithCoercionRetries(n int) *Prompter {
	cp := *p
	cp.cfg.CoercionRetries = max(n, 0)
	return &cp
}

// Observer returns the observer p reports to.
func (p *Prompter) Observer() Observer {
	return p.observer
}

// Ask sends conv, appends the raw answer as an assistant turn and returns
// it.
func (p *Prompter) Ask(ctx context.Context, conv *conversation.Conversation) (string, error) {
	raw, err := p.send(ctx, conv)
	if err != nil {
		return "", err
	}
	if err := conv.Append(llm.RoleAssistant, raw); err != nil {
		return "", err
	}
	return raw, nil
}

// AskShape sends conv and coerces the answer to shape. An answer that fails
// to coerce is discarded and the same conversation is re-sent, up to
// CoercionRetries times. On success the raw answer is appended to conv and
// both the coerced value and raw text are returned. On final failure conv
// is left unchanged and a *coerce.ShapeMismatchError is returned.
func (p *Prompter) AskShape(ctx context.Context, conv *conversation.Conversation, shape coerce.Shape) (any, string, error) {
	for attempt := 0; ; attempt++ {
		raw, err := p.send(ctx, conv)
		if err != nil {
			return nil, "", err
		}

		v, err := coerce.Coerce(shape, raw)
		if err == nil {
			if err := conv.Append(llm.RoleAssistant, raw); err != nil {
				return nil, "", err
			}
			return v, raw, nil
		}

		if attempt >= p.cfg.CoercionRetries {
			return nil, raw, err
		}

		p.observer.ObserveRetry(RetryCoercion)
		p.logger.Warn("answer did not coerce, asking again",
			"shape", string(shape),
			"attempt", attempt+1,
			"error", err,
		)
	}
}

func (p *Prompter) send(ctx context.Context, conv *conversation.Conversation) (string, error) {
	if !conv.AwaitingAnswer() {
		return "", ErrNoQuestion
	}

	req := p.request(conv)
	resp, err := p.complete(ctx, req)
	if err != nil {
		return "", err
	}

	raw := resp.Message.Content
	if p.recorder != nil {
		p.recorder.RecordExchange(req.Messages, raw)
	}
	return raw, nil
}

func (p *Prompter) request(conv *conversation.Conversation) *llm.ChatRequest {
	return &llm.ChatRequest{
		Model:            p.cfg.Model,
		Messages:         conv.Messages(),
		Temperature:      llm.Float64(p.cfg.Temperature),
		FrequencyPenalty: llm.Float64(p.cfg.FrequencyPenalty),
		PresencePenalty:  llm.Float64(p.cfg.PresencePenalty),
	}
}

// complete calls the provider until it succeeds, a non-retryable error is
// returned, the attempt cap is reached, or ctx is done.
func (p *Prompter) complete(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	var lastErr error
	name := p.provider.Name()

	for attempt := 0; p.cfg.MaxTransportAttempts <= 0 || attempt < p.cfg.MaxTransportAttempts; attempt++ {
		if attempt > 0 {
			backoff := calculateBackoff(p.cfg, attempt-1)
			p.observer.ObserveRetry(RetryTransport)
			p.logger.Warn("backend call failed, retrying",
				"provider", name,
				"attempt", attempt,
				"backoff", backoff,
				"error", lastErr,
			)

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		resp, err := p.call(ctx, req)
		if err == nil {
			return resp, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		var te *llm.TransportError
		if errors.As(err, &te) && !te.Retryable() {
			return nil, err
		}
		lastErr = err
	}

	return nil, fmt.Errorf("%w after %d attempts: %w", ErrTransportExhausted, p.cfg.MaxTransportAttempts, lastErr)
}

func (p *Prompter) call(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	if p.cfg.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.CallTimeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := p.provider.Complete(ctx, req)
	elapsed := time.Since(start)

	switch {
	case err != nil:
		p.observer.ObserveRequest(p.provider.Name(), OutcomeError, elapsed)
	case resp.Cached:
		p.observer.ObserveRequest(p.provider.Name(), OutcomeCached, elapsed)
	default:
		p.observer.ObserveRequest(p.provider.Name(), OutcomeOK, elapsed)
	}
	return resp, err
}

// calculateBackoff computes initial * 2^retry, capped at MaxBackoff.
func calculateBackoff(cfg Config, retry int) time.Duration {
	backoff := float64(cfg.InitialBackoff) * math.Pow(2, float64(retry))
	if cfg.MaxBackoff > 0 && backoff > float64(cfg.MaxBackoff) {
		backoff = float64(cfg.MaxBackoff)
	}
	return time.Duration(backoff)
}
