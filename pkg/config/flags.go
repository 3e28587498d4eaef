package config

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flag is the single source of truth for a CLI flag.
// Commands reference flags by registry key rather than hard-coding names,
// defaults and descriptions inline, so "refine" and "extract" cannot drift.
type Flag struct {
	// Name is the long flag name (e.g. "model").
	Name string

	// Shorthand is the one-letter short flag (e.g. "m"). Empty for no shorthand.
	Shorthand string

	// ViperKey is the dotted config key this flag maps to (e.g. "llm.model").
	ViperKey string

	// Description is the help text shown in --help output.
	Description string
}

// FlagSet is a mapping of flag names to Flag structs that hold their name,
// shorthand, viper key, etc.
type FlagSet map[string]Flag

// Flag registry keys.
const (
	FlagProvider          = "provider"
	FlagModel             = "model"
	FlagFineTunedModel    = "fine-tuned-model"
	FlagBaseURL           = "base-url"
	FlagCallTimeout       = "call-timeout"
	FlagMaxAttempts       = "max-attempts"
	FlagCandidateDir      = "candidates"
	FlagRepresentationDir = "representations"
	FlagOutputDir         = "output"
	FlagFormat            = "format"
	FlagSplitting         = "splitting"
	FlagFrontEnd          = "mode"
	FlagFollowUp          = "follow-up"
	FlagPromptsFile       = "prompts"
	FlagExamplesDir       = "examples"
	FlagStorageDriver     = "storage"
	FlagSQLite            = "sqlite"
	FlagPostgresDSN       = "postgres-dsn"
	FlagRedisAddr         = "redis"
	FlagKafkaBrokers      = "kafka-brokers"
	FlagKafkaTopic        = "kafka-topic"
	FlagAPIListen         = "listen"
)

// Registry holds every flag shared between commands.
var Registry = FlagSet{
	FlagProvider:          {Name: "provider", Shorthand: "p", ViperKey: "llm.provider", Description: "LLM provider (openai, anthropic, ollama, gemini)"},
	FlagModel:             {Name: "model", Shorthand: "m", ViperKey: "llm.model", Description: "Model id used for the conversations"},
	FlagFineTunedModel:    {Name: "fine-tuned-model", ViperKey: "llm.fine_tuned_model", Description: "Model id used by the fine_tuning front end"},
	FlagBaseURL:           {Name: "base-url", ViperKey: "llm.base_url", Description: "Override the provider base URL"},
	FlagCallTimeout:       {Name: "call-timeout", ViperKey: "llm.call_timeout", Description: "Timeout for a single LLM call"},
	FlagMaxAttempts:       {Name: "max-attempts", ViperKey: "retry.max_transport_attempts", Description: "Transport attempts per call (0 retries until cancelled)"},
	FlagCandidateDir:      {Name: "candidates", Shorthand: "c", ViperKey: "pipeline.candidate_dir", Description: "Directory of candidate JSON documents"},
	FlagRepresentationDir: {Name: "representations", Shorthand: "r", ViperKey: "pipeline.representation_dir", Description: "Directory of table representations"},
	FlagOutputDir:         {Name: "output", Shorthand: "o", ViperKey: "pipeline.output_dir", Description: "Output directory (json/, log/, token/ subfolders)"},
	FlagFormat:            {Name: "format", ViperKey: "pipeline.format", Description: "Representation format (TSV or JSON)"},
	FlagSplitting:         {Name: "splitting", ViperKey: "pipeline.splitting", Description: "Input layout (split or non_split)"},
	FlagFrontEnd:          {Name: "mode", ViperKey: "pipeline.model", Description: "Extraction front end (few_shot, zero_shot, fine_tuning)"},
	FlagFollowUp:          {Name: "follow-up", ViperKey: "pipeline.follow_up", Description: "Run the follow-up refinement after extraction"},
	FlagPromptsFile:       {Name: "prompts", ViperKey: "pipeline.prompts_file", Description: "YAML file overriding the question tables"},
	FlagExamplesDir:       {Name: "examples", ViperKey: "pipeline.examples_dir", Description: "Directory of few-shot example pairs"},
	FlagStorageDriver:     {Name: "storage", ViperKey: "storage.driver", Description: "Run store driver (sqlite, postgres, none)"},
	FlagSQLite:            {Name: "sqlite", Shorthand: "s", ViperKey: "storage.sqlite_path", Description: "Path to the SQLite run store"},
	FlagPostgresDSN:       {Name: "postgres-dsn", ViperKey: "storage.postgres_dsn", Description: "PostgreSQL connection string for the run store"},
	FlagRedisAddr:         {Name: "redis", ViperKey: "cache.redis_addr", Description: "Redis address for the answer cache"},
	FlagKafkaBrokers:      {Name: "kafka-brokers", ViperKey: "events.kafka_brokers", Description: "Comma separated Kafka brokers for document events"},
	FlagKafkaTopic:        {Name: "kafka-topic", ViperKey: "events.kafka_topic", Description: "Kafka topic for document events"},
	FlagAPIListen:         {Name: "listen", Shorthand: "l", ViperKey: "api.listen", Description: "Address for the API server to listen on"},
}

// AddStringFlag registers a string flag on cmd from the given FlagSet.
// The flag's name, shorthand, default, and description all come from the
// FlagSet entry so they cannot drift across commands.
func AddStringFlag(cmd *cobra.Command, fs FlagSet, key string, target *string) {
	def, ok := fs[key]
	if !ok {
		return
	}

	cmd.Flags().StringVarP(target, def.Name, def.Shorthand, defaults().GetString(def.ViperKey), def.Description)
}

// AddIntFlag registers an int flag on cmd from the given FlagSet.
func AddIntFlag(cmd *cobra.Command, fs FlagSet, key string, target *int) {
	def, ok := fs[key]
	if !ok {
		return
	}

	cmd.Flags().IntVarP(target, def.Name, def.Shorthand, defaults().GetInt(def.ViperKey), def.Description)
}

// AddBoolFlag registers a bool flag on cmd from the given FlagSet.
func AddBoolFlag(cmd *cobra.Command, fs FlagSet, key string, target *bool) {
	def, ok := fs[key]
	if !ok {
		return
	}

	cmd.Flags().BoolVarP(target, def.Name, def.Shorthand, defaults().GetBool(def.ViperKey), def.Description)
}

// BindRegisteredFlags binds already-registered flags to viper using definitions
// from the given FlagSet. Call this in PreRunE after InitViper to connect flags
// to the viper precedence chain (flag > env > config file > default).
func BindRegisteredFlags(v *viper.Viper, cmd *cobra.Command, fs FlagSet, registryKeys []string) {
	for _, registryKey := range registryKeys {
		def, ok := fs[registryKey]
		if !ok {
			continue
		}

		f := cmd.Flags().Lookup(def.Name)
		if f == nil {
			continue
		}

		_ = v.BindPFlag(def.ViperKey, f)
	}
}

// defaults returns a viper instance holding only NewDefaultConfig() values.
func defaults() *viper.Viper {
	v := viper.New()
	setViperDefaults(v)
	return v
}
