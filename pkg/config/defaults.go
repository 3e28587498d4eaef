package config

const (
	defaultProvider    = "openai"
	defaultModel       = "gpt-4o"
	defaultCallTimeout = "2m"

	defaultMaxTransportAttempts = 5
	defaultInitialBackoff       = "1s"
	defaultMaxBackoff           = "30s"
	defaultCoercionRetries      = 1
	defaultAttemptCap           = 3

	defaultCandidateDir      = "candidates"
	defaultRepresentationDir = "representations"
	defaultOutputDir         = "output"
	defaultFormat            = "JSON"
	defaultSplitting         = "split"
	defaultFrontEnd          = "few_shot"

	defaultStorageDriver = "sqlite"
	defaultCacheTTL      = "168h"
	defaultKafkaTopic    = "ligandx.documents"
	defaultAPIListen     = ":8081"
	defaultLogLevel      = "info"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		LLM: LLMConfig{
			Provider:    defaultProvider,
			Model:       defaultModel,
			CallTimeout: defaultCallTimeout,
		},
		Retry: RetryConfig{
			MaxTransportAttempts: defaultMaxTransportAttempts,
			InitialBackoff:       defaultInitialBackoff,
			MaxBackoff:           defaultMaxBackoff,
			CoercionRetries:      defaultCoercionRetries,
			StructuralAttempts:   defaultAttemptCap,
			PerformanceAttempts:  defaultAttemptCap,
			RemovalAttempts:      defaultAttemptCap,
		},
		Pipeline: PipelineConfig{
			CandidateDir:      defaultCandidateDir,
			RepresentationDir: defaultRepresentationDir,
			OutputDir:         defaultOutputDir,
			Format:            defaultFormat,
			Splitting:         defaultSplitting,
			Model:             defaultFrontEnd,
			FollowUp:          true,
		},
		Storage: StorageConfig{
			Driver: defaultStorageDriver,
		},
		Cache: CacheConfig{
			TTL: defaultCacheTTL,
		},
		Events: EventsConfig{
			KafkaTopic: defaultKafkaTopic,
		},
		API: APIConfig{
			Listen: defaultAPIListen,
		},
		Log: LogConfig{
			Level: defaultLogLevel,
		},
	}
}
