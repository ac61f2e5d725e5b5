// Package config manages config.yaml from the command line.
package config

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spaceportal/spaceportal/internal/conf"
)

// InitName is the subcommand that runs without loading settings.
const InitName = "init"

// Command creates the config command.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage config.yaml",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   InitName + " [path]",
		Short: "Write the annotated default config.yaml",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "config.yaml"
			if len(args) == 1 {
				path = args[0]
			}
			if err := conf.WriteDefaultConfig(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "save <path>",
		Short: "Write the effective settings, including environment and flag overrides",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := conf.SaveYAMLConfig(args[0], settings); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", args[0])
			return nil
		},
	})

	return cmd
}
