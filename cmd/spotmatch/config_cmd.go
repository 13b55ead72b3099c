package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spotmatch/internal/config"
)

// createConfigCmd manages the configuration file
func createConfigCmd(a *app) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}

	configCmd.AddCommand(&cobra.Command{
		Use:   "init [path]",
		Short: "Write the annotated sample configuration",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "spotmatch.toml"
			if len(args) == 1 {
				path = args[0]
			}
			if err := config.WriteSample(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	})

	configCmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show which configuration file is in use",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !a.configFound {
				fmt.Fprintf(cmd.OutOrStdout(), "(built-in defaults; no file at %s)\n", a.configPath)
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), a.configPath)
			return nil
		},
	})

	return configCmd
}
