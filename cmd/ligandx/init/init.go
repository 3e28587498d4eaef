// Package initcmder provides the init command for initializing a local
// .ligandx directory in the current working directory.
package initcmder

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/ligandx/pkg/cliui"
	"github.com/papercomputeco/ligandx/pkg/config"
	"github.com/papercomputeco/ligandx/pkg/dotdir"
)

const initLongDesc string = `Initialize a new .ligandx/ directory in the current working directory.

Creates a local .ligandx/ directory that takes precedence over the default
~/.ligandx/ directory for configuration, credentials and the run store.

With --preset, a config.toml is written with the LLM section set up for the
named provider. An existing config.toml is left alone unless --force is given.

Examples:
  ligandx init
  ligandx init --preset anthropic
  ligandx init --preset ollama --force`

const initShortDesc string = "Initialize a local .ligandx/ directory"

type initCommander struct {
	preset string
	dir    string
	force  bool
}

func NewInitCmd() *cobra.Command {
	cmder := &initCommander{}

	cmd := &cobra.Command{
		Use:   "init",
		Short: initShortDesc,
		Long:  initLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&cmder.preset, "preset", "", "Write a config.toml for a provider ("+strings.Join(config.ValidPresetNames(), ", ")+")")
	cmd.Flags().StringVar(&cmder.dir, "dir", "", "Parent directory to initialize (default: current directory)")
	cmd.Flags().BoolVar(&cmder.force, "force", false, "Overwrite an existing config.toml")

	_ = cmd.RegisterFlagCompletionFunc("preset", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return config.ValidPresetNames(), cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

func (c *initCommander) run(out io.Writer) error {
	parent := c.dir
	if parent == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("getting current directory: %w", err)
		}
		parent = cwd
	}

	dir := filepath.Join(parent, dotdir.DirName)

	info, err := os.Stat(dir)
	switch {
	case err == nil && info.IsDir():
		fmt.Fprintf(out, "Already initialized: %s\n", dir)
	case err == nil:
		return fmt.Errorf("%s exists and is not a directory", dir)
	case errors.Is(err, os.ErrNotExist):
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating .ligandx directory: %w", err)
		}
		fmt.Fprintf(out, "Initialized .ligandx directory: %s\n", dir)
	default:
		return fmt.Errorf("checking .ligandx directory: %w", err)
	}

	if c.preset == "" {
		return nil
	}

	return c.writePreset(out, dir)
}

func (c *initCommander) writePreset(out io.Writer, dir string) error {
	cfg, err := config.PresetConfig(c.preset)
	if err != nil {
		return err
	}

	configer, err := config.NewConfiger(dir)
	if err != nil {
		return err
	}

	target := configer.GetTarget()
	if _, err := os.Stat(target); err == nil && !c.force {
		fmt.Fprintf(out, "%s config exists, keeping it (use --force to overwrite): %s\n",
			cliui.WarnStyle.Render("!"), target)
		return nil
	}

	if err := configer.SaveConfig(cfg); err != nil {
		return err
	}

	fmt.Fprintf(out, "%s Wrote %s preset: %s\n", cliui.SuccessMark, c.preset, target)
	return nil
}
