// Package configcmder provides the config command for managing persistent
// ligandx configuration stored in the .ligandx/ directory.
package configcmder

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/ligandx/pkg/cliui"
	"github.com/papercomputeco/ligandx/pkg/config"
)

const configLongDesc string = `Manage persistent ligandx configuration.

Configuration is stored as config.toml in the .ligandx/ directory and
provides default values for command flags. CLI flags and LIGANDX_*
environment variables take precedence over config file values.

Keys use dotted notation matching the TOML section structure:
  llm.provider, llm.model, llm.fine_tuned_model, llm.base_url,
  retry.max_transport_attempts, retry.initial_backoff,
  pipeline.candidate_dir, pipeline.representation_dir, pipeline.output_dir,
  pipeline.format, pipeline.model, pipeline.follow_up,
  storage.driver, storage.sqlite_path, cache.redis_addr,
  events.kafka_brokers, object_store.endpoint, api.listen

Run "ligandx config list" for the full set.

Examples:
  ligandx config set llm.provider anthropic
  ligandx config set pipeline.format TSV
  ligandx config get llm.model
  ligandx config list`

const configShortDesc string = "Manage persistent ligandx configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}

// header prints which config file a subcommand is operating on.
func header(cmd *cobra.Command, target string) {
	out := cmd.OutOrStdout()
	if target == "" {
		fmt.Fprintf(out, "\n  %s\n\n", cliui.DimStyle.Render("No config file found. Using defaults."))
		return
	}
	fmt.Fprintf(out, "\n  %s %s\n\n",
		cliui.KeyStyle.Render("Config file:"),
		cliui.DimStyle.Render(target),
	)
}

func unknownKey(key string) error {
	return fmt.Errorf("unknown config key: %q\n\nValid keys: %s",
		key, strings.Join(config.ValidConfigKeys(), ", "))
}

func completeKeys(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	if len(args) == 0 {
		return config.ValidConfigKeys(), cobra.ShellCompDirectiveNoFileComp
	}
	return nil, cobra.ShellCompDirectiveNoFileComp
}
