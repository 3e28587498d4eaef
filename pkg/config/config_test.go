package config_test

import (
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/cobra"

	"github.com/papercomputeco/ligandx/pkg/config"
)

var _ = Describe("Configer", func() {
	var (
		tmpDir string
		c      *config.Configer
	)

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "config-test-*")
		Expect(err).NotTo(HaveOccurred())

		c, err = config.NewConfiger(tmpDir)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	writeConfig := func(data string) {
		Expect(os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte(data), 0o600)).To(Succeed())
	}

	Describe("LoadConfig", func() {
		It("returns defaults when no config file exists", func() {
			cfg, err := c.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg).To(Equal(config.NewDefaultConfig()))
		})

		It("overlays file values on the defaults", func() {
			writeConfig(`[llm]
provider = "anthropic"
model = "claude-3-5-sonnet-latest"

[retry]
max_transport_attempts = 0

[pipeline]
follow_up = false
format = "TSV"
`)
			cfg, err := c.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.LLM.Provider).To(Equal("anthropic"))
			Expect(cfg.Retry.MaxTransportAttempts).To(Equal(0))
			Expect(cfg.Pipeline.FollowUp).To(BeFalse())
			Expect(cfg.Pipeline.Format).To(Equal("TSV"))

			// untouched keys keep their defaults
			Expect(cfg.Retry.InitialBackoff).To(Equal("1s"))
			Expect(cfg.Pipeline.Splitting).To(Equal("split"))
		})

		It("returns an error for malformed TOML", func() {
			writeConfig("not valid [[[")
			_, err := c.LoadConfig()
			Expect(err).To(HaveOccurred())
		})

		It("returns an error for an unsupported version", func() {
			writeConfig("version = 7\n")
			_, err := c.LoadConfig()
			Expect(err).To(MatchError(ContainSubstring("unsupported config version 7")))
		})
	})

	Describe("SetConfigValue and GetConfigValue", func() {
		It("round-trips values through the file", func() {
			Expect(c.SetConfigValue("llm.model", "gpt-4o-mini")).To(Succeed())
			Expect(c.SetConfigValue("retry.max_transport_attempts", "0")).To(Succeed())
			Expect(c.SetConfigValue("pipeline.follow_up", "false")).To(Succeed())
			Expect(c.SetConfigValue("llm.temperature", "0.2")).To(Succeed())

			Expect(c.GetConfigValue("llm.model")).To(Equal("gpt-4o-mini"))
			Expect(c.GetConfigValue("retry.max_transport_attempts")).To(Equal("0"))
			Expect(c.GetConfigValue("pipeline.follow_up")).To(Equal("false"))
			Expect(c.GetConfigValue("llm.temperature")).To(Equal("0.2"))
			Expect(c.GetConfigValue("llm.provider")).To(Equal("openai"))
		})

		DescribeTable("rejects invalid values",
			func(key, value string) {
				Expect(c.SetConfigValue(key, value)).NotTo(Succeed())
			},
			Entry("unknown key", "proxy.listen", "x"),
			Entry("bad provider", "llm.provider", "bedrock"),
			Entry("bad format", "pipeline.format", "csv"),
			Entry("bad splitting", "pipeline.splitting", "halves"),
			Entry("bad front end", "pipeline.model", "one_shot"),
			Entry("bad int", "retry.removal_attempts", "three"),
			Entry("bad duration", "retry.max_backoff", "soon"),
			Entry("bad bool", "object_store.use_ssl", "maybe"),
		)

		It("errors for unknown keys on get", func() {
			_, err := c.GetConfigValue("nope")
			Expect(err).To(HaveOccurred())
		})
	})

	It("refuses to save a nil config", func() {
		Expect(c.SaveConfig(nil)).NotTo(Succeed())
	})
})

var _ = Describe("ValidConfigKeys", func() {
	It("lists every key in section order", func() {
		keys := config.ValidConfigKeys()
		Expect(keys[0]).To(Equal("llm.provider"))
		Expect(keys).To(ContainElements("pipeline.splitting", "storage.driver", "object_store.bucket", "cache.ttl"))
		for _, k := range keys {
			Expect(config.IsValidConfigKey(k)).To(BeTrue(), k)
		}
		Expect(config.IsValidConfigKey("embedding.model")).To(BeFalse())
	})
})

var _ = Describe("PresetConfig", func() {
	It("configures the llm section for a provider", func() {
		cfg, err := config.PresetConfig("Gemini")
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.LLM.Provider).To(Equal("gemini"))
		Expect(cfg.Pipeline.FollowUp).To(BeTrue())
	})

	It("rejects unknown presets", func() {
		_, err := config.PresetConfig("bedrock")
		Expect(err).To(HaveOccurred())
		Expect(config.ValidPresetNames()).To(ContainElement("ollama"))
	})
})

var _ = Describe("Durations", func() {
	It("parses the duration settings", func() {
		d, err := config.NewDefaultConfig().Durations()
		Expect(err).NotTo(HaveOccurred())
		Expect(d.CallTimeout).To(Equal(2 * time.Minute))
		Expect(d.InitialBackoff).To(Equal(time.Second))
		Expect(d.MaxBackoff).To(Equal(30 * time.Second))
		Expect(d.CacheTTL).To(Equal(168 * time.Hour))
	})

	It("reports the offending key", func() {
		cfg := config.NewDefaultConfig()
		cfg.Cache.TTL = "forever"
		_, err := cfg.Durations()
		Expect(err).To(MatchError(ContainSubstring("cache.ttl")))
	})
})

var _ = Describe("InitViper", func() {
	var tmpDir string

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "viper-test-*")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	It("returns defaults when no config file exists", func() {
		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		cfg, err := config.FromViper(v)
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg).To(Equal(config.NewDefaultConfig()))
	})

	It("layers env over file over defaults", func() {
		Expect(os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte(`[llm]
provider = "anthropic"
model = "claude-3-5-sonnet-latest"
`), 0o600)).To(Succeed())

		os.Setenv("LIGANDX_LLM_MODEL", "claude-3-5-haiku-latest")
		defer os.Unsetenv("LIGANDX_LLM_MODEL")

		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		cfg, err := config.FromViper(v)
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.LLM.Provider).To(Equal("anthropic"))
		Expect(cfg.LLM.Model).To(Equal("claude-3-5-haiku-latest"))
		Expect(cfg.API.Listen).To(Equal(":8081"))
	})

	It("rejects invalid values coming from the environment", func() {
		os.Setenv("LIGANDX_PIPELINE_FORMAT", "xml")
		defer os.Unsetenv("LIGANDX_PIPELINE_FORMAT")

		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		_, err = config.FromViper(v)
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("Flag registry", func() {
	var tmpDir string

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "bindflag-test-*")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	It("registers flags with defaults from the default config", func() {
		cmd := &cobra.Command{Use: "test"}
		var model, output string
		var attempts int
		var followUp bool
		config.AddStringFlag(cmd, config.Registry, config.FlagModel, &model)
		config.AddStringFlag(cmd, config.Registry, config.FlagOutputDir, &output)
		config.AddIntFlag(cmd, config.Registry, config.FlagMaxAttempts, &attempts)
		config.AddBoolFlag(cmd, config.Registry, config.FlagFollowUp, &followUp)

		Expect(model).To(Equal("gpt-4o"))
		Expect(output).To(Equal("output"))
		Expect(attempts).To(Equal(5))
		Expect(followUp).To(BeTrue())
		Expect(cmd.Flags().ShorthandLookup("m")).NotTo(BeNil())
	})

	It("lets a set flag win over the config file", func() {
		Expect(os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte("[api]\nlisten = \":5555\"\n"), 0o600)).To(Succeed())

		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		cmd := &cobra.Command{Use: "test"}
		var listen string
		config.AddStringFlag(cmd, config.Registry, config.FlagAPIListen, &listen)
		config.BindRegisteredFlags(v, cmd, config.Registry, []string{config.FlagAPIListen, "nonexistent"})
		Expect(v.GetString("api.listen")).To(Equal(":5555"))

		Expect(cmd.Flags().Set("listen", ":7777")).To(Succeed())
		Expect(v.GetString("api.listen")).To(Equal(":7777"))
	})
})
