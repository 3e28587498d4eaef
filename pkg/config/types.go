package config

import (
	"fmt"
	"strconv"
	"time"
)

// Config represents the persistent ligandx configuration stored as
// config.toml in the .ligandx/ directory.
type Config struct {
	Version     int               `toml:"version"`
	LLM         LLMConfig         `toml:"llm"`
	Retry       RetryConfig       `toml:"retry"`
	Pipeline    PipelineConfig    `toml:"pipeline"`
	Storage     StorageConfig     `toml:"storage"`
	Cache       CacheConfig       `toml:"cache"`
	Events      EventsConfig      `toml:"events"`
	ObjectStore ObjectStoreConfig `toml:"object_store"`
	API         APIConfig         `toml:"api"`
	Log         LogConfig         `toml:"log"`
}

// LLMConfig selects the backend and its sampling parameters.
type LLMConfig struct {
	Provider         string  `toml:"provider"`
	Model            string  `toml:"model"`
	FineTunedModel   string  `toml:"fine_tuned_model"`
	BaseURL          string  `toml:"base_url"`
	Temperature      float64 `toml:"temperature"`
	FrequencyPenalty float64 `toml:"frequency_penalty"`
	PresencePenalty  float64 `toml:"presence_penalty"`
	CallTimeout      string  `toml:"call_timeout"`
}

// RetryConfig holds every attempt cap used while talking to the model.
// MaxTransportAttempts <= 0 retries until the context is cancelled.
type RetryConfig struct {
	MaxTransportAttempts int    `toml:"max_transport_attempts"`
	InitialBackoff       string `toml:"initial_backoff"`
	MaxBackoff           string `toml:"max_backoff"`
	CoercionRetries      int    `toml:"coercion_retries"`
	StructuralAttempts   int    `toml:"structural_attempts"`
	PerformanceAttempts  int    `toml:"performance_attempts"`
	RemovalAttempts      int    `toml:"removal_attempts"`
}

// PipelineConfig holds the input/output layout of a batch run.
type PipelineConfig struct {
	CandidateDir      string `toml:"candidate_dir"`
	RepresentationDir string `toml:"representation_dir"`
	OutputDir         string `toml:"output_dir"`
	Format            string `toml:"format"`    // TSV | JSON
	Splitting         string `toml:"splitting"` // split | non_split
	Model             string `toml:"model"`     // few_shot | zero_shot | fine_tuning
	FollowUp          bool   `toml:"follow_up"`
	PromptsFile       string `toml:"prompts_file"`
	ExamplesDir       string `toml:"examples_dir"`
}

// StorageConfig selects the run store. Driver "none" disables it.
type StorageConfig struct {
	Driver      string `toml:"driver"` // sqlite | postgres | none
	SQLitePath  string `toml:"sqlite_path"`
	PostgresDSN string `toml:"postgres_dsn"`
}

// CacheConfig configures the redis answer cache. Empty address disables it.
type CacheConfig struct {
	RedisAddr     string `toml:"redis_addr"`
	RedisPassword string `toml:"redis_password"`
	RedisDB       int    `toml:"redis_db"`
	TTL           string `toml:"ttl"`
}

// EventsConfig configures document events. Empty brokers disables Kafka.
type EventsConfig struct {
	KafkaBrokers string `toml:"kafka_brokers"` // comma separated
	KafkaTopic   string `toml:"kafka_topic"`
}

// ObjectStoreConfig configures the MinIO/S3 output mirror. Empty endpoint
// disables it.
type ObjectStoreConfig struct {
	Endpoint  string `toml:"endpoint"`
	Bucket    string `toml:"bucket"`
	Prefix    string `toml:"prefix"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	UseSSL    bool   `toml:"use_ssl"`
}

// APIConfig holds API server settings.
type APIConfig struct {
	Listen string `toml:"listen"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `toml:"level"`
	JSON  bool   `toml:"json"`
	// File, when set, also receives every record as JSON.
	File string `toml:"file"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

func stringKey(field func(c *Config) *string) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return *field(c) },
		set: func(c *Config, v string) error { *field(c) = v; return nil },
	}
}

func choiceKey(name string, field func(c *Config) *string, choices ...string) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return *field(c) },
		set: func(c *Config, v string) error {
			for _, choice := range choices {
				if v == choice {
					*field(c) = v
					return nil
				}
			}
			return fmt.Errorf("invalid value for %s: %q (expected one of %v)", name, v, choices)
		},
	}
}

func durationKey(name string, field func(c *Config) *string) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return *field(c) },
		set: func(c *Config, v string) error {
			if v == "" {
				*field(c) = v
				return nil
			}
			if _, err := time.ParseDuration(v); err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = v
			return nil
		},
	}
}

func intKey(name string, field func(c *Config) *int) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return strconv.Itoa(*field(c)) },
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = n
			return nil
		},
	}
}

func floatKey(name string, field func(c *Config) *float64) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return strconv.FormatFloat(*field(c), 'g', -1, 64) },
		set: func(c *Config, v string) error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = f
			return nil
		},
	}
}

func boolKey(name string, field func(c *Config) *bool) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return strconv.FormatBool(*field(c)) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = b
			return nil
		},
	}
}

// keyOrder lists every supported key in TOML section order.
var keyOrder = []string{
	"llm.provider",
	"llm.model",
	"llm.fine_tuned_model",
	"llm.base_url",
	"llm.temperature",
	"llm.frequency_penalty",
	"llm.presence_penalty",
	"llm.call_timeout",
	"retry.max_transport_attempts",
	"retry.initial_backoff",
	"retry.max_backoff",
	"retry.coercion_retries",
	"retry.structural_attempts",
	"retry.performance_attempts",
	"retry.removal_attempts",
	"pipeline.candidate_dir",
	"pipeline.representation_dir",
	"pipeline.output_dir",
	"pipeline.format",
	"pipeline.splitting",
	"pipeline.model",
	"pipeline.follow_up",
	"pipeline.prompts_file",
	"pipeline.examples_dir",
	"storage.driver",
	"storage.sqlite_path",
	"storage.postgres_dsn",
	"cache.redis_addr",
	"cache.redis_password",
	"cache.redis_db",
	"cache.ttl",
	"events.kafka_brokers",
	"events.kafka_topic",
	"object_store.endpoint",
	"object_store.bucket",
	"object_store.prefix",
	"object_store.access_key",
	"object_store.secret_key",
	"object_store.use_ssl",
	"api.listen",
	"log.level",
	"log.json",
	"log.file",
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"llm.provider":          choiceKey("llm.provider", func(c *Config) *string { return &c.LLM.Provider }, "openai", "anthropic", "ollama", "gemini"),
	"llm.model":             stringKey(func(c *Config) *string { return &c.LLM.Model }),
	"llm.fine_tuned_model":  stringKey(func(c *Config) *string { return &c.LLM.FineTunedModel }),
	"llm.base_url":          stringKey(func(c *Config) *string { return &c.LLM.BaseURL }),
	"llm.temperature":       floatKey("llm.temperature", func(c *Config) *float64 { return &c.LLM.Temperature }),
	"llm.frequency_penalty": floatKey("llm.frequency_penalty", func(c *Config) *float64 { return &c.LLM.FrequencyPenalty }),
	"llm.presence_penalty":  floatKey("llm.presence_penalty", func(c *Config) *float64 { return &c.LLM.PresencePenalty }),
	"llm.call_timeout":      durationKey("llm.call_timeout", func(c *Config) *string { return &c.LLM.CallTimeout }),

	"retry.max_transport_attempts": intKey("retry.max_transport_attempts", func(c *Config) *int { return &c.Retry.MaxTransportAttempts }),
	"retry.initial_backoff":        durationKey("retry.initial_backoff", func(c *Config) *string { return &c.Retry.InitialBackoff }),
	"retry.max_backoff":            durationKey("retry.max_backoff", func(c *Config) *string { return &c.Retry.MaxBackoff }),
	"retry.coercion_retries":       intKey("retry.coercion_retries", func(c *Config) *int { return &c.Retry.CoercionRetries }),
	"retry.structural_attempts":    intKey("retry.structural_attempts", func(c *Config) *int { return &c.Retry.StructuralAttempts }),
	"retry.performance_attempts":   intKey("retry.performance_attempts", func(c *Config) *int { return &c.Retry.PerformanceAttempts }),
	"retry.removal_attempts":       intKey("retry.removal_attempts", func(c *Config) *int { return &c.Retry.RemovalAttempts }),

	"pipeline.candidate_dir":      stringKey(func(c *Config) *string { return &c.Pipeline.CandidateDir }),
	"pipeline.representation_dir": stringKey(func(c *Config) *string { return &c.Pipeline.RepresentationDir }),
	"pipeline.output_dir":         stringKey(func(c *Config) *string { return &c.Pipeline.OutputDir }),
	"pipeline.format":             choiceKey("pipeline.format", func(c *Config) *string { return &c.Pipeline.Format }, "TSV", "JSON"),
	"pipeline.splitting":          choiceKey("pipeline.splitting", func(c *Config) *string { return &c.Pipeline.Splitting }, "split", "non_split"),
	"pipeline.model":              choiceKey("pipeline.model", func(c *Config) *string { return &c.Pipeline.Model }, "few_shot", "zero_shot", "fine_tuning"),
	"pipeline.follow_up":          boolKey("pipeline.follow_up", func(c *Config) *bool { return &c.Pipeline.FollowUp }),
	"pipeline.prompts_file":       stringKey(func(c *Config) *string { return &c.Pipeline.PromptsFile }),
	"pipeline.examples_dir":       stringKey(func(c *Config) *string { return &c.Pipeline.ExamplesDir }),

	"storage.driver":       choiceKey("storage.driver", func(c *Config) *string { return &c.Storage.Driver }, "sqlite", "postgres", "none"),
	"storage.sqlite_path":  stringKey(func(c *Config) *string { return &c.Storage.SQLitePath }),
	"storage.postgres_dsn": stringKey(func(c *Config) *string { return &c.Storage.PostgresDSN }),

	"cache.redis_addr":     stringKey(func(c *Config) *string { return &c.Cache.RedisAddr }),
	"cache.redis_password": stringKey(func(c *Config) *string { return &c.Cache.RedisPassword }),
	"cache.redis_db":       intKey("cache.redis_db", func(c *Config) *int { return &c.Cache.RedisDB }),
	"cache.ttl":            durationKey("cache.ttl", func(c *Config) *string { return &c.Cache.TTL }),

	"events.kafka_brokers": stringKey(func(c *Config) *string { return &c.Events.KafkaBrokers }),
	"events.kafka_topic":   stringKey(func(c *Config) *string { return &c.Events.KafkaTopic }),

	"object_store.endpoint":   stringKey(func(c *Config) *string { return &c.ObjectStore.Endpoint }),
	"object_store.bucket":     stringKey(func(c *Config) *string { return &c.ObjectStore.Bucket }),
	"object_store.prefix":     stringKey(func(c *Config) *string { return &c.ObjectStore.Prefix }),
	"object_store.access_key": stringKey(func(c *Config) *string { return &c.ObjectStore.AccessKey }),
	"object_store.secret_key": stringKey(func(c *Config) *string { return &c.ObjectStore.SecretKey }),
	"object_store.use_ssl":    boolKey("object_store.use_ssl", func(c *Config) *bool { return &c.ObjectStore.UseSSL }),

	"api.listen": stringKey(func(c *Config) *string { return &c.API.Listen }),

	"log.level": choiceKey("log.level", func(c *Config) *string { return &c.Log.Level }, "debug", "info", "warn", "error"),
	"log.json":  boolKey("log.json", func(c *Config) *bool { return &c.Log.JSON }),
	"log.file":  stringKey(func(c *Config) *string { return &c.Log.File }),
}

// Durations parses the duration-valued settings. Empty values yield zero.
func (c *Config) Durations() (Durations, error) {
	var d Durations
	for _, f := range []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"llm.call_timeout", c.LLM.CallTimeout, &d.CallTimeout},
		{"retry.initial_backoff", c.Retry.InitialBackoff, &d.InitialBackoff},
		{"retry.max_backoff", c.Retry.MaxBackoff, &d.MaxBackoff},
		{"cache.ttl", c.Cache.TTL, &d.CacheTTL},
	} {
		if f.raw == "" {
			continue
		}
		v, err := time.ParseDuration(f.raw)
		if err != nil {
			return d, fmt.Errorf("invalid value for %s: %w", f.name, err)
		}
		*f.dst = v
	}
	return d, nil
}

// Durations holds the parsed duration settings of a Config.
type Durations struct {
	CallTimeout    time.Duration
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	CacheTTL       time.Duration
}
