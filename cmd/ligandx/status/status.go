// Package statuscmder provides the status command for displaying recorded
// refinement runs and their document outcomes.
package statuscmder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/ligandx/pkg/cliui"
	"github.com/papercomputeco/ligandx/pkg/config"
	"github.com/papercomputeco/ligandx/pkg/stack"
	"github.com/papercomputeco/ligandx/pkg/storage"
	"github.com/papercomputeco/ligandx/pkg/utils"
	"github.com/papercomputeco/ligandx/pkg/watchstate"
)

const statusLongDesc string = `Show recorded refinement runs.

Without arguments, lists the runs in the run store, newest first. Given a run
ID, shows the outcome of every document in that run: its status, the ligands
kept and the error that stopped it, if any.

Examples:
  ligandx status
  ligandx status 0b6c7f0e-5d1a-4c59-8d8e-0f7b1b0d3c2a
  ligandx status --storage postgres --postgres-dsn postgres://localhost/ligandx`

const statusShortDesc string = "Show recorded refinement runs"

const errorPreviewLen = 72

var statusFlags = []string{
	config.FlagStorageDriver,
	config.FlagSQLite,
	config.FlagPostgresDSN,
}

type statusCommander struct {
	storage     string
	sqlitePath  string
	postgresDSN string
}

func NewStatusCmd() *cobra.Command {
	cmder := &statusCommander{}

	cmd := &cobra.Command{
		Use:   "status [run-id]",
		Short: statusShortDesc,
		Long:  statusLongDesc,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			debug, _ := cmd.Flags().GetBool("debug")

			cfg, err := config.Resolve(cmd, configDir, statusFlags)
			if err != nil {
				return err
			}

			st, err := stack.New(cfg, configDir, debug)
			if err != nil {
				return err
			}
			defer func() {
				if cerr := st.Close(); cerr != nil {
					st.Logger.Warn("closing resources", "error", cerr)
				}
			}()

			driver, err := st.Driver(cmd.Context())
			if err != nil {
				return err
			}
			if driver == nil {
				return errors.New("no run store configured (storage.driver is none)")
			}

			runID := ""
			if len(args) == 1 {
				runID = args[0]
			} else {
				printWatcher(cmd.OutOrStdout(), st)
			}
			return Print(cmd.Context(), cmd.OutOrStdout(), driver, runID)
		},
	}

	config.AddStringFlag(cmd, config.Registry, config.FlagStorageDriver, &cmder.storage)
	config.AddStringFlag(cmd, config.Registry, config.FlagSQLite, &cmder.sqlitePath)
	config.AddStringFlag(cmd, config.Registry, config.FlagPostgresDSN, &cmder.postgresDSN)

	return cmd
}

// Print writes the run list, or the documents of runID when it is set.
func Print(ctx context.Context, w io.Writer, driver storage.Driver, runID string) error {
	if runID == "" {
		return printRuns(ctx, w, driver)
	}
	return printRun(ctx, w, driver, runID)
}

func printRuns(ctx context.Context, w io.Writer, driver storage.Driver) error {
	runs, err := driver.ListRuns(ctx)
	if err != nil {
		return fmt.Errorf("listing runs: %w", err)
	}

	if len(runs) == 0 {
		fmt.Fprintf(w, "  %s No runs recorded.\n", cliui.DimStyle.Render("●"))
		return nil
	}

	fmt.Fprintln(w)
	for _, run := range runs {
		fmt.Fprintf(w, "  %s  %s  %s  %s\n",
			cliui.NameStyle.Render(run.ID),
			cliui.DimStyle.Render(run.StartedAt.Local().Format(time.DateTime)),
			cliui.ValueStyle.Render(strconv.Itoa(run.Documents)+" docs"),
			cliui.KeyStyle.Render(runState(run)),
		)
	}
	fmt.Fprintln(w)
	return nil
}

func printRun(ctx context.Context, w io.Writer, driver storage.Driver, runID string) error {
	run, err := driver.GetRun(ctx, runID)
	if err != nil {
		return fmt.Errorf("loading run: %w", err)
	}

	docs, err := driver.ListDocuments(ctx, runID)
	if err != nil {
		return fmt.Errorf("listing documents: %w", err)
	}

	fmt.Fprintf(w, "\n  %s  %s\n", cliui.KeyStyle.Render("Run:      "), cliui.NameStyle.Render(run.ID))
	fmt.Fprintf(w, "  %s  %s\n", cliui.KeyStyle.Render("Model:    "), cliui.ValueStyle.Render(run.Provider+"/"+run.Model))
	fmt.Fprintf(w, "  %s  %s\n", cliui.KeyStyle.Render("State:    "), cliui.ValueStyle.Render(runState(*run)))
	fmt.Fprintf(w, "  %s  %s\n\n", cliui.KeyStyle.Render("Documents:"), cliui.ValueStyle.Render(strconv.Itoa(len(docs))))

	statuses := make(map[string]string, len(docs))
	for _, doc := range docs {
		statuses[doc.Key] = doc.Status

		line := fmt.Sprintf("  %s %s", cliui.StatusMark(doc.Status), doc.Key)
		if len(doc.Ligands) > 0 {
			line += " " + cliui.DimStyle.Render("["+strings.Join(doc.Ligands, ", ")+"]")
		}
		if doc.Error != "" {
			line += " " + cliui.WarnStyle.Render(utils.Truncate(doc.Error, errorPreviewLen))
		}
		fmt.Fprintln(w, line)
	}

	if len(docs) > 0 {
		fmt.Fprintf(w, "\n  %s\n", cliui.StatusLine(statuses))
	}
	fmt.Fprintln(w)
	return nil
}

// printWatcher reports the refine watcher recorded in the .ligandx directory.
func printWatcher(w io.Writer, st *stack.Stack) {
	manager, err := watchstate.NewManager(st.ConfigDir)
	if err != nil {
		st.Logger.Warn("resolving watch state", "error", err)
		return
	}
	state, err := manager.LoadState()
	if err != nil {
		st.Logger.Warn("loading watch state", "error", err)
		return
	}
	if state == nil {
		return
	}

	fmt.Fprintf(w, "\n  %s  %s %s\n",
		cliui.KeyStyle.Render("Watching:"),
		cliui.ValueStyle.Render(state.CandidateDir),
		cliui.DimStyle.Render(fmt.Sprintf("(run %s, pid %d)", state.RunID, state.PID)),
	)
	if state.APIURL != "" {
		fmt.Fprintf(w, "  %s  %s\n", cliui.KeyStyle.Render("API:     "), cliui.ValueStyle.Render(state.APIURL))
	}
}

func runState(run storage.Run) string {
	if run.FinishedAt == nil {
		return "running"
	}
	return "finished in " + run.FinishedAt.Sub(run.StartedAt).Round(time.Second).String()
}
