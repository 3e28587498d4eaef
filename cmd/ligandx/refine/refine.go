// Package refinecmder provides the refine command: the follow-up question
// protocol over a directory of candidate documents.
package refinecmder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/ligandx/api"
	"github.com/papercomputeco/ligandx/pkg/cliui"
	"github.com/papercomputeco/ligandx/pkg/config"
	"github.com/papercomputeco/ligandx/pkg/followup"
	"github.com/papercomputeco/ligandx/pkg/pipeline"
	"github.com/papercomputeco/ligandx/pkg/source"
	"github.com/papercomputeco/ligandx/pkg/stack"
	"github.com/papercomputeco/ligandx/pkg/storage/worker"
	"github.com/papercomputeco/ligandx/pkg/watchstate"
)

const refineLongDesc string = `Refine candidate ligand tables with follow-up questions.

For every <key>.json in the candidate directory, the matching table
representation is loaded and the model is walked through the follow-up
protocol: ligand discovery, per-ligand property discovery and refinement,
then element pruning. Results are written to the output directory as
json/<key>.json, log/<key>.csv and token/<key>.csv.

Every exchange is recorded in the run store, and a document event is
published per table when Kafka is configured.

With --watch the candidate directory is watched instead, and every
candidate created or rewritten there is refined as it appears. --serve
runs the API server (see "ligandx serve") next to the run, so the live
metrics and recorded turns can be inspected while it is in progress. Only
one watcher runs per .ligandx directory; "ligandx status" shows it.

Examples:
  ligandx refine -c candidates -r representations -o output
  ligandx refine --format TSV --provider anthropic --model claude-3-5-sonnet-latest
  ligandx refine --watch --serve --listen :8081`

const refineShortDesc string = "Refine candidate ligand tables"

// flags shared with the viper precedence chain.
var refineFlags = []string{
	config.FlagProvider,
	config.FlagModel,
	config.FlagBaseURL,
	config.FlagCallTimeout,
	config.FlagMaxAttempts,
	config.FlagCandidateDir,
	config.FlagRepresentationDir,
	config.FlagOutputDir,
	config.FlagFormat,
	config.FlagSplitting,
	config.FlagPromptsFile,
	config.FlagStorageDriver,
	config.FlagSQLite,
	config.FlagPostgresDSN,
	config.FlagRedisAddr,
	config.FlagKafkaBrokers,
	config.FlagKafkaTopic,
	config.FlagAPIListen,
}

type refineCommander struct {
	flags flagValues
	watch bool
	serve bool
}

// flagValues receives the registered flags. The resolved values are read
// back through viper so config.toml and LIGANDX_* apply when a flag is
// not given.
type flagValues struct {
	provider, model, baseURL, callTimeout string
	maxAttempts                           int
	candidates, representations, output   string
	format, splitting, prompts            string
	storage, sqlite, postgresDSN          string
	redis, kafkaBrokers, kafkaTopic       string
	listen                                string
}

func NewRefineCmd() *cobra.Command {
	cmder := &refineCommander{}

	cmd := &cobra.Command{
		Use:   "refine",
		Short: refineShortDesc,
		Long:  refineLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			debug, _ := cmd.Flags().GetBool("debug")

			cfg, err := config.Resolve(cmd, configDir, refineFlags)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			st, err := stack.New(cfg, configDir, debug)
			if err != nil {
				return err
			}
			defer func() {
				if cerr := st.Close(); cerr != nil {
					st.Logger.Warn("closing resources", "error", cerr)
				}
			}()

			opts := Options{
				CandidateDir: cfg.Pipeline.CandidateDir,
				Watch:        cmder.watch,
				Out:          cmd.OutOrStdout(),
			}
			if cmder.serve {
				stopAPI, err := startAPI(ctx, st)
				if err != nil {
					return err
				}
				defer stopAPI()
				opts.APIURL = apiURL(cfg.API.Listen)
			}

			report, err := Run(ctx, st, opts)
			if report != nil {
				PrintReport(cmd.OutOrStdout(), report)
			}
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	f := &cmder.flags
	config.AddStringFlag(cmd, config.Registry, config.FlagProvider, &f.provider)
	config.AddStringFlag(cmd, config.Registry, config.FlagModel, &f.model)
	config.AddStringFlag(cmd, config.Registry, config.FlagBaseURL, &f.baseURL)
	config.AddStringFlag(cmd, config.Registry, config.FlagCallTimeout, &f.callTimeout)
	config.AddIntFlag(cmd, config.Registry, config.FlagMaxAttempts, &f.maxAttempts)
	config.AddStringFlag(cmd, config.Registry, config.FlagCandidateDir, &f.candidates)
	config.AddStringFlag(cmd, config.Registry, config.FlagRepresentationDir, &f.representations)
	config.AddStringFlag(cmd, config.Registry, config.FlagOutputDir, &f.output)
	config.AddStringFlag(cmd, config.Registry, config.FlagFormat, &f.format)
	config.AddStringFlag(cmd, config.Registry, config.FlagSplitting, &f.splitting)
	config.AddStringFlag(cmd, config.Registry, config.FlagPromptsFile, &f.prompts)
	config.AddStringFlag(cmd, config.Registry, config.FlagStorageDriver, &f.storage)
	config.AddStringFlag(cmd, config.Registry, config.FlagSQLite, &f.sqlite)
	config.AddStringFlag(cmd, config.Registry, config.FlagPostgresDSN, &f.postgresDSN)
	config.AddStringFlag(cmd, config.Registry, config.FlagRedisAddr, &f.redis)
	config.AddStringFlag(cmd, config.Registry, config.FlagKafkaBrokers, &f.kafkaBrokers)
	config.AddStringFlag(cmd, config.Registry, config.FlagKafkaTopic, &f.kafkaTopic)
	config.AddStringFlag(cmd, config.Registry, config.FlagAPIListen, &f.listen)
	cmd.Flags().BoolVarP(&cmder.watch, "watch", "w", false, "Watch the candidate directory and refine candidates as they appear")
	cmd.Flags().BoolVar(&cmder.serve, "serve", false, "Serve the API and /metrics while the run is in progress")

	return cmd
}

// Options selects what Run refines.
type Options struct {
	// CandidateDir holds the candidate documents.
	CandidateDir string

	// Watch keeps the run open and refines candidates as they appear.
	Watch bool

	// APIURL is recorded in the watch state when the API runs alongside.
	APIURL string

	// Out receives progress output. Nil discards it.
	Out io.Writer
}

// Run builds the refinement pipeline from the stack and runs it over the
// candidate directory.
func Run(ctx context.Context, st *stack.Stack, opts Options) (*pipeline.Report, error) {
	cfg := st.Config
	out := opts.Out
	if out == nil {
		out = io.Discard
	}

	var runner *pipeline.Runner
	err := cliui.Step(out, "Preparing refinement run", func() error {
		var err error
		runner, err = newRunner(ctx, st, opts.CandidateDir)
		return err
	})
	if err != nil {
		return nil, err
	}

	st.Logger.Info("refining candidates",
		"run_id", runner.RunID(),
		"provider", cfg.LLM.Provider,
		"model", cfg.LLM.Model,
		"format", cfg.Pipeline.Format,
		"splitting", cfg.Pipeline.Splitting,
		"candidates", opts.CandidateDir,
	)

	if opts.Watch {
		return watch(ctx, st, runner, opts)
	}
	return runner.Run(ctx)
}

// watch holds the watcher lock of the .ligandx directory for as long as the
// runner watches the candidate directory.
func watch(ctx context.Context, st *stack.Stack, runner *pipeline.Runner, opts Options) (*pipeline.Report, error) {
	manager, err := watchstate.NewManager(st.ConfigDir)
	if err != nil {
		return nil, err
	}
	lock, err := manager.TryLock()
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := manager.ClearState(); err != nil {
			st.Logger.Warn("clearing watch state", "error", err)
		}
		if err := lock.Release(); err != nil {
			st.Logger.Warn("releasing watch lock", "error", err)
		}
	}()

	state := &watchstate.State{
		RunID:        runner.RunID(),
		CandidateDir: opts.CandidateDir,
		OutputDir:    st.Config.Pipeline.OutputDir,
		APIURL:       opts.APIURL,
	}
	if err := manager.SaveState(state); err != nil {
		return nil, err
	}

	return runner.Watch(ctx, opts.CandidateDir)
}

func newRunner(ctx context.Context, st *stack.Stack, candidateDir string) (*pipeline.Runner, error) {
	cfg := st.Config

	format, err := source.ParseFormat(cfg.Pipeline.Format)
	if err != nil {
		return nil, err
	}
	src, err := source.NewDir(candidateDir, cfg.Pipeline.RepresentationDir, format)
	if err != nil {
		return nil, err
	}

	questions, err := followup.LoadQuestions(cfg.Pipeline.PromptsFile)
	if err != nil {
		return nil, err
	}

	prov, err := st.Provider(ctx)
	if err != nil {
		return nil, err
	}

	orch, err := followup.New(&followup.Config{
		Prompter:            st.Prompter(prov, cfg.LLM.Model),
		Questions:           questions,
		PerformanceAttempts: cfg.Retry.PerformanceAttempts,
		StructuralAttempts:  cfg.Retry.StructuralAttempts,
		RemovalAttempts:     cfg.Retry.RemovalAttempts,
		Logger:              st.Logger,
	})
	if err != nil {
		return nil, err
	}

	snk, err := st.Sink(ctx, cfg.Pipeline.OutputDir)
	if err != nil {
		return nil, err
	}

	driver, err := st.Driver(ctx)
	if err != nil {
		return nil, err
	}
	var pool *worker.Pool
	if driver != nil {
		pool, err = st.Pool(driver)
		if err != nil {
			return nil, err
		}
	}

	pub, err := st.Publisher()
	if err != nil {
		return nil, err
	}

	return pipeline.New(&pipeline.Config{
		Source:    src,
		Refiner:   orch,
		Sink:      snk,
		Driver:    driver,
		Pool:      pool,
		Publisher: pub,
		Observer:  st.Metrics,
		Provider:  prov.Name(),
		Model:     cfg.LLM.Model,
		Logger:    st.Logger,
	})
}

// startAPI serves the run store and the live metrics of this run. The
// returned func shuts the server down.
func startAPI(ctx context.Context, st *stack.Stack) (func(), error) {
	driver, err := st.DriverOrMemory(ctx)
	if err != nil {
		return nil, err
	}
	server, err := api.NewServer(api.Config{ListenAddr: st.Config.API.Listen}, driver, st.Metrics.Handler(), st.Logger)
	if err != nil {
		return nil, err
	}

	go func() {
		if err := server.Run(); err != nil {
			st.Logger.Error("API server stopped", "error", err)
		}
	}()

	return func() {
		if err := server.Shutdown(); err != nil {
			st.Logger.Warn("shutting down API server", "error", err)
		}
	}, nil
}

func apiURL(listen string) string {
	if strings.HasPrefix(listen, ":") {
		return "http://localhost" + listen
	}
	return "http://" + listen
}

// PrintReport renders the per-document summary of a run.
func PrintReport(w io.Writer, report *pipeline.Report) {
	title := fmt.Sprintf("Run %s", report.RunID)
	md := cliui.SummaryTable(title, report.Statuses, report.Errors)

	rendered, err := cliui.RenderMarkdown(md)
	if err != nil {
		rendered = md
	}
	fmt.Fprint(w, rendered)
	fmt.Fprintf(w, "  %s\n\n", cliui.StatusLine(report.Statuses))
}
