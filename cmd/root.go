// Package cmd builds the spaceportal command line.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/spaceportal/spaceportal/cmd/config"
	"github.com/spaceportal/spaceportal/cmd/importer"
	"github.com/spaceportal/spaceportal/cmd/serve"
	"github.com/spaceportal/spaceportal/internal/buildinfo"
	"github.com/spaceportal/spaceportal/internal/conf"
)

// RootCommand creates and returns the root command. settings is filled
// from config.yaml, environment and flags before any subcommand runs.
func RootCommand(build *buildinfo.Context) *cobra.Command {
	settings := &conf.Settings{}
	var configFile string

	rootCmd := &cobra.Command{
		Use:           "spaceportal",
		Short:         "Import NASA DONKI solar flares and APOD imagery",
		Version:       build.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to config.yaml")
	if err := setupFlags(rootCmd); err != nil {
		panic(err)
	}

	configCmd := config.Command(settings)
	rootCmd.AddCommand(
		serve.Command(settings, build),
		importer.Command(settings, build),
		configCmd,
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		// config init must work before a valid config exists
		if cmd.Parent() == configCmd && cmd.Name() == config.InitName {
			return nil
		}

		loaded, err := conf.Load(configFile)
		if err != nil {
			return err
		}
		*settings = *loaded
		return nil
	}

	return rootCmd
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command) error {
	flags := rootCmd.PersistentFlags()
	flags.BoolP("debug", "d", false, "Enable debug output")
	flags.String("apikey", "", "NASA API key (overrides nasa.apikey and NASA_API_KEY)")
	flags.String("log-level", "", "Default log level")

	bindings := map[string]string{
		"debug":                 "debug",
		"nasa.apikey":           "apikey",
		"logging.default_level": "log-level",
	}
	for key, flag := range bindings {
		if err := viper.BindPFlag(key, flags.Lookup(flag)); err != nil {
			return fmt.Errorf("error binding flag %s: %w", flag, err)
		}
	}
	return nil
}
