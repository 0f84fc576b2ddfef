// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Mufeed Ali

package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"profmerge/internal/config"
)

// dimColor is used for less important/secondary text in the CLI output
var dimColor = color.New(color.Faint)

// newConfigCmd is the parent command for all configuration-related subcommands.
func newConfigCmd(a *app, flags *mergeFlags) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect profmerge configuration",
		Long: `Provides subcommands to inspect the profmerge configuration file, which
supplies defaults for --sparse, --timeout, --validate and --concurrency.`,
	}

	configShowCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(flags.configPath)
			if err != nil {
				return err
			}
			data, err := config.Marshal(cfg)
			if err != nil {
				return err
			}
			_, err = a.stdout.Write(data)
			return err
		},
	}

	configPathCmd := &cobra.Command{
		Use:   "path",
		Short: "Print the default configuration file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.DefaultConfigPath()
			if err != nil {
				return err
			}
			fmt.Fprintln(a.stdout, path)
			if flags.configPath != "" {
				dimColor.Fprintf(a.stdout, "(overridden by --config %s)\n", flags.configPath)
			}
			return nil
		},
	}

	configCmd.AddCommand(configShowCmd, configPathCmd)
	return configCmd
}
