// Package extractcmder provides the extract command: a front end that
// turns table representations into candidate JSON, optionally followed by
// refinement.
package extractcmder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	refinecmder "github.com/papercomputeco/ligandx/cmd/ligandx/refine"
	"github.com/papercomputeco/ligandx/pkg/cliui"
	"github.com/papercomputeco/ligandx/pkg/config"
	"github.com/papercomputeco/ligandx/pkg/frontend"
	"github.com/papercomputeco/ligandx/pkg/source"
	"github.com/papercomputeco/ligandx/pkg/stack"
)

const extractLongDesc string = `Extract candidate ligand tables from table representations.

Every representation in the representation directory is sent through one
of three front ends:

  few_shot     system prompt, example pairs from --examples, then the table
  zero_shot    ligand list first, then each ligand built over several turns
  fine_tuning  the table sent to --fine-tuned-model

Answers that parse are written as <output>/extraction/<key>.json, the rest
as <key>.txt. With --follow-up (the default) the parsed candidates are then
refined exactly as "ligandx refine" would.

Examples:
  ligandx extract --mode few_shot --examples examples/
  ligandx extract --mode zero_shot --format TSV --follow-up=false
  ligandx extract --mode fine_tuning --fine-tuned-model ft:gpt-4o:lab::abc123`

const extractShortDesc string = "Extract candidate ligand tables"

// Extraction statuses.
const (
	StatusExtracted = "extracted"
	StatusUnparsed  = "unparsed"
	StatusFailed    = "failed"
)

var extractFlags = []string{
	config.FlagProvider,
	config.FlagModel,
	config.FlagFineTunedModel,
	config.FlagBaseURL,
	config.FlagCallTimeout,
	config.FlagMaxAttempts,
	config.FlagRepresentationDir,
	config.FlagOutputDir,
	config.FlagFormat,
	config.FlagSplitting,
	config.FlagFrontEnd,
	config.FlagFollowUp,
	config.FlagPromptsFile,
	config.FlagExamplesDir,
	config.FlagStorageDriver,
	config.FlagSQLite,
	config.FlagPostgresDSN,
	config.FlagRedisAddr,
	config.FlagKafkaBrokers,
	config.FlagKafkaTopic,
}

type extractCommander struct {
	provider, model, fineTuned, baseURL, callTimeout string
	maxAttempts                                      int
	representations, output, format, splitting       string
	mode, prompts, examples                          string
	followUp                                         bool
	storage, sqlite, postgresDSN                     string
	redis, kafkaBrokers, kafkaTopic                  string
}

func NewExtractCmd() *cobra.Command {
	c := &extractCommander{}

	cmd := &cobra.Command{
		Use:   "extract",
		Short: extractShortDesc,
		Long:  extractLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			debug, _ := cmd.Flags().GetBool("debug")

			cfg, err := config.Resolve(cmd, configDir, extractFlags)
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

			err = run(ctx, st, cmd.OutOrStdout())
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	config.AddStringFlag(cmd, config.Registry, config.FlagProvider, &c.provider)
	config.AddStringFlag(cmd, config.Registry, config.FlagModel, &c.model)
	config.AddStringFlag(cmd, config.Registry, config.FlagFineTunedModel, &c.fineTuned)
	config.AddStringFlag(cmd, config.Registry, config.FlagBaseURL, &c.baseURL)
	config.AddStringFlag(cmd, config.Registry, config.FlagCallTimeout, &c.callTimeout)
	config.AddIntFlag(cmd, config.Registry, config.FlagMaxAttempts, &c.maxAttempts)
	config.AddStringFlag(cmd, config.Registry, config.FlagRepresentationDir, &c.representations)
	config.AddStringFlag(cmd, config.Registry, config.FlagOutputDir, &c.output)
	config.AddStringFlag(cmd, config.Registry, config.FlagFormat, &c.format)
	config.AddStringFlag(cmd, config.Registry, config.FlagSplitting, &c.splitting)
	config.AddStringFlag(cmd, config.Registry, config.FlagFrontEnd, &c.mode)
	config.AddBoolFlag(cmd, config.Registry, config.FlagFollowUp, &c.followUp)
	config.AddStringFlag(cmd, config.Registry, config.FlagPromptsFile, &c.prompts)
	config.AddStringFlag(cmd, config.Registry, config.FlagExamplesDir, &c.examples)
	config.AddStringFlag(cmd, config.Registry, config.FlagStorageDriver, &c.storage)
	config.AddStringFlag(cmd, config.Registry, config.FlagSQLite, &c.sqlite)
	config.AddStringFlag(cmd, config.Registry, config.FlagPostgresDSN, &c.postgresDSN)
	config.AddStringFlag(cmd, config.Registry, config.FlagRedisAddr, &c.redis)
	config.AddStringFlag(cmd, config.Registry, config.FlagKafkaBrokers, &c.kafkaBrokers)
	config.AddStringFlag(cmd, config.Registry, config.FlagKafkaTopic, &c.kafkaTopic)

	return cmd
}

func run(ctx context.Context, st *stack.Stack, out io.Writer) error {
	cfg := st.Config
	dir := stack.ExtractionDir(cfg.Pipeline.OutputDir)

	report, err := Extract(ctx, st, dir)
	if report != nil {
		printReport(out, "Extraction", report)
	}
	if err != nil {
		return err
	}

	if !cfg.Pipeline.FollowUp {
		return nil
	}

	refined, err := refinecmder.Run(ctx, st, refinecmder.Options{CandidateDir: dir, Out: out})
	if refined != nil {
		refinecmder.PrintReport(out, refined)
	}
	return err
}

// Report is the outcome of an extraction batch.
type Report struct {
	Statuses map[string]string
	Errors   map[string]error
}

// Extract runs the configured front end over every representation and
// saves the results in dir. A failed table is recorded and the batch
// continues; only cancellation stops it.
func Extract(ctx context.Context, st *stack.Stack, dir string) (*Report, error) {
	cfg := st.Config

	kind, err := frontend.ParseKind(cfg.Pipeline.Model)
	if err != nil {
		return nil, err
	}
	format, err := source.ParseFormat(cfg.Pipeline.Format)
	if err != nil {
		return nil, err
	}
	reps := &source.Dir{RepresentationDir: cfg.Pipeline.RepresentationDir, Format: format}
	keys, err := reps.RepresentationKeys()
	if err != nil {
		return nil, err
	}

	model := cfg.LLM.Model
	if kind == frontend.FineTuning {
		if cfg.LLM.FineTunedModel == "" {
			return nil, errors.New("llm.fine_tuned_model is required for the fine_tuning front end")
		}
		model = cfg.LLM.FineTunedModel
	}

	var examples []frontend.Example
	if kind == frontend.FewShot {
		examples, err = frontend.LoadExamples(cfg.Pipeline.ExamplesDir)
		if err != nil {
			return nil, fmt.Errorf("loading examples: %w", err)
		}
		if len(examples) == 0 {
			st.Logger.Warn("few_shot front end running without examples")
		}
	}

	prov, err := st.Provider(ctx)
	if err != nil {
		return nil, err
	}
	extractor, err := frontend.New(&frontend.Config{
		Kind:     kind,
		Prompter: st.Prompter(prov, model),
		Examples: examples,
		Logger:   st.Logger,
	})
	if err != nil {
		return nil, err
	}

	st.Logger.Info("extracting tables", "extractor", kind, "model", model, "tables", len(keys), "splitting", cfg.Pipeline.Splitting)

	report := &Report{Statuses: map[string]string{}, Errors: map[string]error{}}
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		status, err := extractOne(ctx, extractor, reps, key, dir)
		report.Statuses[key] = status
		if err != nil {
			report.Errors[key] = err
			st.Logger.Error("extraction failed", "document", key, "error", err)
			if ctxErr := ctx.Err(); ctxErr != nil {
				return report, ctxErr
			}
			continue
		}
		st.Logger.Info("table extracted", "document", key, "status", status)
	}
	return report, nil
}

func extractOne(ctx context.Context, extractor *frontend.Extractor, reps *source.Dir, key, dir string) (string, error) {
	rep, err := reps.Representation(key)
	if err != nil {
		return StatusFailed, err
	}
	ex, err := extractor.Extract(ctx, key, rep)
	if err != nil {
		return StatusFailed, err
	}
	if _, err := ex.Save(dir); err != nil {
		return StatusFailed, err
	}
	if !ex.Parsed {
		return StatusUnparsed, nil
	}
	return StatusExtracted, nil
}

func printReport(w io.Writer, title string, report *Report) {
	md := cliui.SummaryTable(title, report.Statuses, report.Errors)
	rendered, err := cliui.RenderMarkdown(md)
	if err != nil {
		rendered = md
	}
	fmt.Fprint(w, rendered)
	fmt.Fprintf(w, "  %s\n\n", cliui.StatusLine(report.Statuses))
}
