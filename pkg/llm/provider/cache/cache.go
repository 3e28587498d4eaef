// Package cache decorates a provider with an answer cache. Identical
// requests (same model, sampling parameters and messages) are answered from
// the store instead of the model, so re-running a batch replays earlier
// answers.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/papercomputeco/ligandx/pkg/llm"
	"github.com/papercomputeco/ligandx/pkg/llm/provider"
	"github.com/papercomputeco/ligandx/pkg/logger"
)

// DefaultTTL applies when Config.TTL is zero.
const DefaultTTL = 7 * 24 * time.Hour

const keyPrefix = "ligandx:answer:"

// ErrMiss is returned by a Store without the key.
var ErrMiss = errors.New("cache miss")

// Store holds encoded responses.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Config configures the decorator.
type Config struct {
	Store  Store
	TTL    time.Duration
	Logger *slog.Logger
}

// Provider answers from the store when it can and fills it otherwise.
type Provider struct {
	next   provider.Provider
	store  Store
	ttl    time.Duration
	logger *slog.Logger
}

// Wrap decorates next.
func Wrap(next provider.Provider, c Config) *Provider {
	ttl := c.TTL
	if ttl == 0 {
		ttl = DefaultTTL
	}
	return &Provider{
		next:   next,
		store:  c.Store,
		ttl:    ttl,
		logger: logger.OrNop(c.Logger),
	}
}

// Name reports the wrapped provider's name.
func (p *Provider) Name() string {
	return p.next.Name()
}

// Complete serves a cached answer or calls the wrapped provider. Store
// failures are logged and never fail the call. Only successful responses
// are stored.
func (p *Provider) Complete(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	key, err := Key(req)
	if err != nil {
		return nil, err
	}

	data, err := p.store.Get(ctx, key)
	switch {
	case err == nil:
		var resp llm.ChatResponse
		if jerr := json.Unmarshal(data, &resp); jerr == nil {
			resp.Cached = true
			p.logger.Debug("answer cache hit", "key", key)
			return &resp, nil
		}
		p.logger.Warn("discarding undecodable cache entry", "key", key)
	case !errors.Is(err, ErrMiss):
		p.logger.Warn("answer cache lookup failed", "error", err)
	}

	resp, err := p.next.Complete(ctx, req)
	if err != nil {
		return nil, err
	}

	stored := *resp
	stored.Cached = false
	if data, err := json.Marshal(&stored); err == nil {
		if err := p.store.Set(ctx, key, data, p.ttl); err != nil {
			p.logger.Warn("answer cache write failed", "error", err)
		}
	}
	return resp, nil
}

// Key derives the cache key of req.
func Key(req *llm.ChatRequest) (string, error) {
	data, err := json.Marshal(struct {
		Model            string        `json:"model"`
		Temperature      *float64      `json:"temperature"`
		FrequencyPenalty *float64      `json:"frequency_penalty"`
		PresencePenalty  *float64      `json:"presence_penalty"`
		MaxTokens        *int          `json:"max_tokens"`
		Messages         []llm.Message `json:"messages"`
	}{
		Model:            req.Model,
		Temperature:      req.Temperature,
		FrequencyPenalty: req.FrequencyPenalty,
		PresencePenalty:  req.PresencePenalty,
		MaxTokens:        req.MaxTokens,
		Messages:         req.Messages,
	})
	if err != nil {
		return "", fmt.Errorf("encoding cache key: %w", err)
	}
	sum := sha256.Sum256(data)
	return keyPrefix + hex.EncodeToString(sum[:]), nil
}

// RedisStore stores responses in redis.
type RedisStore struct {
	client redis.Cmdable
}

// RedisConfig configures NewRedisStore.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisStore connects and pings.
func NewRedisStore(ctx context.Context, c RedisConfig) (*RedisStore, *redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     c.Addr,
		Password: c.Password,
		DB:       c.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("failed to ping redis at %s: %w", c.Addr, err)
	}
	return NewRedisStoreWithClient(client), client, nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client redis.Cmdable) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	return data, err
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.client.Set(ctx, key, value, ttl).Err()
}

var _ provider.Provider = (*Provider)(nil)
