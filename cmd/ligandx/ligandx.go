// Package ligandxcmder is the root ligandx command.
package ligandxcmder

import (
	"github.com/spf13/cobra"

	authcmder "github.com/papercomputeco/ligandx/cmd/ligandx/auth"
	configcmder "github.com/papercomputeco/ligandx/cmd/ligandx/config"
	extractcmder "github.com/papercomputeco/ligandx/cmd/ligandx/extract"
	initcmder "github.com/papercomputeco/ligandx/cmd/ligandx/init"
	refinecmder "github.com/papercomputeco/ligandx/cmd/ligandx/refine"
	servecmder "github.com/papercomputeco/ligandx/cmd/ligandx/serve"
	statuscmder "github.com/papercomputeco/ligandx/cmd/ligandx/status"
	versioncmder "github.com/papercomputeco/ligandx/cmd/version"
)

const ligandxLongDesc string = `ligandx extracts ligand property tables from scientific table
representations with an LLM and refines them with follow-up questions.

Run the pipeline using:
  ligandx extract     Extract candidate JSON with a front end, then refine it
  ligandx refine      Refine existing candidate JSON
  ligandx status      Show recorded runs
  ligandx serve       Inspect recorded runs over HTTP

Configure it using:
  ligandx init        Create a local .ligandx/ directory
  ligandx config      Manage persistent configuration
  ligandx auth        Store API credentials`

const ligandxShortDesc string = "ligandx - ligand table extraction and refinement"

func NewLigandxCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "ligandx",
		Short:        ligandxShortDesc,
		Long:         ligandxLongDesc,
		SilenceUsage: true,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override path to .ligandx/ config directory")

	// Add subcommands
	cmd.AddCommand(extractcmder.NewExtractCmd())
	cmd.AddCommand(refinecmder.NewRefineCmd())
	cmd.AddCommand(statuscmder.NewStatusCmd())
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(initcmder.NewInitCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(authcmder.NewAuthCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
