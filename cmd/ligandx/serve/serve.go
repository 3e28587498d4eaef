// Package servecmder provides the serve command: the HTTP API over the run
// store.
package servecmder

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/ligandx/api"
	"github.com/papercomputeco/ligandx/pkg/config"
	"github.com/papercomputeco/ligandx/pkg/stack"
)

type serveCommander struct {
	listen      string
	storage     string
	sqlitePath  string
	postgresDSN string
}

const serveLongDesc string = `Run the ligandx API server for inspecting refinement runs.

Routes:
  GET /ping                      liveness
  GET /v1/runs                   runs, newest first
  GET /v1/runs/:id               one run
  GET /v1/runs/:id/documents     document outcomes of a run
  GET /v1/turns/:hash            one recorded turn
  GET /v1/turns/:hash/history    the conversation ending at a turn
  GET /metrics                   prometheus metrics

With --storage none the server runs over an empty in-memory store.`

const serveShortDesc string = "Run the ligandx API server"

var serveFlags = []string{
	config.FlagAPIListen,
	config.FlagStorageDriver,
	config.FlagSQLite,
	config.FlagPostgresDSN,
}

func NewServeCmd() *cobra.Command {
	cmder := &serveCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			debug, _ := cmd.Flags().GetBool("debug")

			cfg, err := config.Resolve(cmd, configDir, serveFlags)
			if err != nil {
				return err
			}
			return run(cmd, cfg, configDir, debug)
		},
	}

	config.AddStringFlag(cmd, config.Registry, config.FlagAPIListen, &cmder.listen)
	config.AddStringFlag(cmd, config.Registry, config.FlagStorageDriver, &cmder.storage)
	config.AddStringFlag(cmd, config.Registry, config.FlagSQLite, &cmder.sqlitePath)
	config.AddStringFlag(cmd, config.Registry, config.FlagPostgresDSN, &cmder.postgresDSN)

	return cmd
}

func run(cmd *cobra.Command, cfg *config.Config, configDir string, debug bool) error {
	st, err := stack.New(cfg, configDir, debug)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			st.Logger.Warn("closing resources", "error", cerr)
		}
	}()

	driver, err := st.DriverOrMemory(cmd.Context())
	if err != nil {
		return err
	}

	server, err := api.NewServer(api.Config{ListenAddr: cfg.API.Listen}, driver, st.Metrics.Handler(), st.Logger)
	if err != nil {
		return err
	}

	errChan := make(chan error, 1)
	go func() {
		if err := server.Run(); err != nil {
			errChan <- fmt.Errorf("API server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		st.Logger.Info("received signal, shutting down", "signal", sig.String())
		return server.Shutdown()
	}
}
