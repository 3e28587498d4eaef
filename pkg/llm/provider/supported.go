package provider

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/papercomputeco/ligandx/pkg/credentials"
	"github.com/papercomputeco/ligandx/pkg/llm/provider/anthropic"
	"github.com/papercomputeco/ligandx/pkg/llm/provider/gemini"
	"github.com/papercomputeco/ligandx/pkg/llm/provider/ollama"
	"github.com/papercomputeco/ligandx/pkg/llm/provider/openai"
	"github.com/papercomputeco/ligandx/pkg/logger"
)

// Supported provider type constants
const (
	Anthropic = "anthropic"
	OpenAI    = "openai"
	Ollama    = "ollama"
	Gemini    = "gemini"
)

// SupportedProviders returns the list of all supported provider type names.
func SupportedProviders() []string {
	return []string{OpenAI, Anthropic, Ollama, Gemini}
}

// Config holds what is needed to build a Provider.
type Config struct {
	Provider string               // "openai", "anthropic", "ollama" or "gemini"
	APIKey   string               // explicit API key (highest priority)
	BaseURL  string               // override base URL
	Timeout  time.Duration        // HTTP client timeout, 0 for none
	CredMgr  *credentials.Manager // credentials from ligandx auth
	Logger   *slog.Logger
}

// HasCredentials checks whether an API key can be resolved from the config
// without creating a provider.
func HasCredentials(cfg Config) bool {
	provider := strings.ToLower(cfg.Provider)
	if provider == Ollama {
		return true
	}
	return resolveAPIKey(cfg, provider) != ""
}

// New creates a Provider for cfg.Provider.
// Resolution order for the API key:
//  1. Explicit APIKey in config
//  2. credentials.Manager (from ligandx auth)
//  3. Environment variables (OPENAI_API_KEY / ANTHROPIC_API_KEY / GEMINI_API_KEY)
//
// Ollama needs no key.
func New(ctx context.Context, cfg Config) (Provider, error) {
	provider := strings.ToLower(cfg.Provider)
	if provider == "" {
		provider = OpenAI
	}

	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}

	client := &http.Client{Timeout: cfg.Timeout}

	apiKey := resolveAPIKey(cfg, provider)
	if apiKey == "" && provider != Ollama {
		return nil, fmt.Errorf("no API key found for %s (set %s or run 'ligandx auth %s')",
			provider, credentials.EnvVarForProvider(provider), provider)
	}

	log.Debug("creating llm provider", "provider", provider, "base_url", cfg.BaseURL)

	switch provider {
	case OpenAI:
		return openai.New(apiKey, cfg.BaseURL, client), nil
	case Anthropic:
		return anthropic.New(apiKey, cfg.BaseURL, client), nil
	case Ollama:
		return ollama.New(cfg.BaseURL, client), nil
	case Gemini:
		return gemini.New(ctx, apiKey, cfg.BaseURL, client)
	default:
		return nil, fmt.Errorf("unknown provider type: %q (supported: %v)", cfg.Provider, SupportedProviders())
	}
}

func resolveAPIKey(cfg Config, provider string) string {
	return credentials.Resolve(cfg.CredMgr, provider, cfg.APIKey)
}
