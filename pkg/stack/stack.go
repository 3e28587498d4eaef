// Package stack assembles ligandx components from a resolved config.Config.
// Commands open only the pieces they need; Close releases them in reverse
// order.
package stack

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/papercomputeco/ligandx/pkg/config"
	"github.com/papercomputeco/ligandx/pkg/credentials"
	"github.com/papercomputeco/ligandx/pkg/dotdir"
	"github.com/papercomputeco/ligandx/pkg/eventstream"
	"github.com/papercomputeco/ligandx/pkg/eventstream/kafka"
	"github.com/papercomputeco/ligandx/pkg/eventstream/nop"
	"github.com/papercomputeco/ligandx/pkg/llm/provider"
	"github.com/papercomputeco/ligandx/pkg/llm/provider/cache"
	"github.com/papercomputeco/ligandx/pkg/logger"
	"github.com/papercomputeco/ligandx/pkg/metrics"
	"github.com/papercomputeco/ligandx/pkg/prompter"
	"github.com/papercomputeco/ligandx/pkg/sink"
	"github.com/papercomputeco/ligandx/pkg/storage"
	"github.com/papercomputeco/ligandx/pkg/storage/inmemory"
	"github.com/papercomputeco/ligandx/pkg/storage/postgres"
	"github.com/papercomputeco/ligandx/pkg/storage/sqlite"
	"github.com/papercomputeco/ligandx/pkg/storage/worker"
)

// Storage driver names.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverNone     = "none"
)

// DefaultDBName is the run store file created in the .ligandx/ directory
// when storage.sqlite_path is empty.
const DefaultDBName = "ligandx.db"

// Stack holds the shared components of a command invocation.
type Stack struct {
	Config    *config.Config
	ConfigDir string
	Logger    *slog.Logger
	Metrics   *metrics.Metrics

	durations config.Durations
	provider  provider.Provider
	driver    storage.Driver
	opened    bool
	closers   []func() error
}

// New parses the duration settings and builds the logger and metrics.
func New(cfg *config.Config, configDir string, debug bool) (*Stack, error) {
	d, err := cfg.Durations()
	if err != nil {
		return nil, err
	}

	opts := []logger.Option{
		logger.WithLevel(cfg.Log.Level),
		logger.WithJSON(cfg.Log.JSON),
		logger.WithPretty(true),
		logger.WithWriter(os.Stderr),
	}
	if debug {
		opts = append(opts, logger.WithDebug(true))
	}

	s := &Stack{
		Config:    cfg,
		ConfigDir: configDir,
		Logger:    logger.New(opts...),
		Metrics:   metrics.New(metrics.WithRuntimeCollectors()),
		durations: d,
	}

	if cfg.Log.File != "" {
		f, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, fmt.Errorf("opening log file: %w", err)
		}
		s.onClose(f.Close)
		fileOpts := []logger.Option{
			logger.WithLevel(cfg.Log.Level),
			logger.WithJSON(true),
			logger.WithWriter(f),
		}
		if debug {
			fileOpts = append(fileOpts, logger.WithDebug(true))
		}
		s.Logger = logger.Multi(s.Logger, logger.New(fileOpts...))
	}

	return s, nil
}

func (s *Stack) onClose(fn func() error) {
	s.closers = append(s.closers, fn)
}

// Close releases everything opened through the stack, newest first.
func (s *Stack) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

// Provider builds the configured LLM backend, wrapped in the redis answer
// cache when cache.redis_addr is set. Later calls return the same backend.
func (s *Stack) Provider(ctx context.Context) (provider.Provider, error) {
	if s.provider != nil {
		return s.provider, nil
	}
	prov, err := s.openProvider(ctx)
	if err != nil {
		return nil, err
	}
	s.provider = prov
	return prov, nil
}

func (s *Stack) openProvider(ctx context.Context) (provider.Provider, error) {
	c := s.Config

	credMgr, err := credentials.NewManager(s.ConfigDir)
	if err != nil {
		return nil, fmt.Errorf("loading credentials: %w", err)
	}

	prov, err := provider.New(ctx, provider.Config{
		Provider: c.LLM.Provider,
		BaseURL:  c.LLM.BaseURL,
		CredMgr:  credMgr,
		Logger:   s.Logger,
	})
	if err != nil {
		return nil, err
	}

	if c.Cache.RedisAddr == "" {
		return prov, nil
	}

	store, client, err := cache.NewRedisStore(ctx, cache.RedisConfig{
		Addr:     c.Cache.RedisAddr,
		Password: c.Cache.RedisPassword,
		DB:       c.Cache.RedisDB,
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to answer cache: %w", err)
	}
	s.onClose(client.Close)

	s.Logger.Info("answer cache enabled", "addr", c.Cache.RedisAddr, "ttl", s.durations.CacheTTL)
	return cache.Wrap(prov, cache.Config{
		Store:  store,
		TTL:    s.durations.CacheTTL,
		Logger: s.Logger,
	}), nil
}

// Prompter builds a prompter for model over prov, reporting to the stack's
// metrics.
func (s *Stack) Prompter(prov provider.Provider, model string) *prompter.Prompter {
	c := s.Config

	cfg := prompter.DefaultConfig(model)
	cfg.Temperature = c.LLM.Temperature
	cfg.FrequencyPenalty = c.LLM.FrequencyPenalty
	cfg.PresencePenalty = c.LLM.PresencePenalty
	cfg.MaxTransportAttempts = c.Retry.MaxTransportAttempts
	cfg.CoercionRetries = c.Retry.CoercionRetries
	cfg.CallTimeout = s.durations.CallTimeout
	if s.durations.InitialBackoff > 0 {
		cfg.InitialBackoff = s.durations.InitialBackoff
	}
	if s.durations.MaxBackoff > 0 {
		cfg.MaxBackoff = s.durations.MaxBackoff
	}

	return prompter.New(prov, cfg,
		prompter.WithLogger(s.Logger),
		prompter.WithObserver(s.Metrics),
	)
}

// Driver opens the configured run store. It returns nil when storage is
// disabled. Later calls return the same store.
func (s *Stack) Driver(ctx context.Context) (storage.Driver, error) {
	if s.opened {
		return s.driver, nil
	}
	driver, err := s.openDriver(ctx)
	if err != nil {
		return nil, err
	}
	s.driver, s.opened = driver, true
	return driver, nil
}

// DriverOrMemory is Driver with an in-memory store in place of a disabled
// one.
func (s *Stack) DriverOrMemory(ctx context.Context) (storage.Driver, error) {
	driver, err := s.Driver(ctx)
	if err != nil {
		return nil, err
	}
	if driver == nil {
		s.Logger.Info("using in-memory storage")
		driver = inmemory.NewDriver()
		s.driver = driver
	}
	return driver, nil
}

func (s *Stack) openDriver(ctx context.Context) (storage.Driver, error) {
	c := s.Config.Storage

	var (
		driver storage.Driver
		err    error
	)
	switch strings.ToLower(c.Driver) {
	case "", DriverNone:
		s.Logger.Debug("run store disabled")
		return nil, nil

	case DriverSQLite:
		path := c.SQLitePath
		if path == "" {
			path, err = dotdir.NewManager().File(s.ConfigDir, DefaultDBName)
			if err != nil {
				return nil, err
			}
		}
		driver, err = sqlite.NewDriver(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite run store: %w", err)
		}
		s.Logger.Info("using sqlite run store", "path", path)

	case DriverPostgres:
		if c.PostgresDSN == "" {
			return nil, errors.New("storage.postgres_dsn is required for the postgres driver")
		}
		driver, err = postgres.NewDriver(ctx, c.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("opening postgres run store: %w", err)
		}
		s.Logger.Info("using postgres run store")

	default:
		return nil, fmt.Errorf("unknown storage driver: %q", c.Driver)
	}

	s.onClose(driver.Close)
	return driver, nil
}

// Pool starts a storage worker pool over driver. The pool is drained before
// the driver is closed.
func (s *Stack) Pool(driver storage.Driver) (*worker.Pool, error) {
	pool, err := worker.NewPool(&worker.Config{
		Driver:     driver,
		NumWorkers: 2,
		Logger:     s.Logger,
	})
	if err != nil {
		return nil, err
	}
	s.onClose(func() error {
		pool.Close()
		return nil
	})
	return pool, nil
}

// Publisher returns the Kafka publisher when brokers are configured and the
// nop publisher otherwise.
func (s *Stack) Publisher() (eventstream.Publisher, error) {
	c := s.Config.Events

	brokers := splitList(c.KafkaBrokers)
	if len(brokers) == 0 {
		return nop.NewPublisher(), nil
	}

	pub, err := kafka.NewPublisher(kafka.Config{
		Brokers:      brokers,
		Topic:        c.KafkaTopic,
		WriteTimeout: 10 * time.Second,
		Logger:       s.Logger,
	})
	if err != nil {
		return nil, err
	}
	s.onClose(pub.Close)

	s.Logger.Info("publishing document events", "brokers", brokers, "topic", c.KafkaTopic)
	return pub, nil
}

// Sink writes artifacts under outputDir and mirrors them to the object
// store when one is configured.
func (s *Stack) Sink(ctx context.Context, outputDir string) (sink.Sink, error) {
	dir, err := sink.NewDir(outputDir)
	if err != nil {
		return nil, err
	}

	c := s.Config.ObjectStore
	if c.Endpoint == "" {
		return dir, nil
	}

	store, err := sink.NewMinIO(ctx, &sink.MinIOConfig{
		Endpoint:  c.Endpoint,
		Bucket:    c.Bucket,
		Prefix:    c.Prefix,
		AccessKey: c.AccessKey,
		SecretKey: c.SecretKey,
		UseSSL:    c.UseSSL,
		Logger:    s.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to object store: %w", err)
	}

	s.Logger.Info("mirroring outputs to object store", "endpoint", c.Endpoint, "bucket", c.Bucket)
	return sink.Multi{dir, store}, nil
}

// ExtractionDir is where a front end writes its candidate documents when
// follow-up refinement is chained after it.
func ExtractionDir(outputDir string) string {
	return filepath.Join(outputDir, "extraction")
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
