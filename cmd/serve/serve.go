// Package serve runs the import API.
package serve

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/spaceportal/spaceportal/internal/app"
	"github.com/spaceportal/spaceportal/internal/buildinfo"
	"github.com/spaceportal/spaceportal/internal/conf"
	"github.com/spaceportal/spaceportal/internal/logger"
)

// Command creates the serve command.
func Command(settings *conf.Settings, build *buildinfo.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the import API",
		Long:  "Start the HTTP import API and, when telemetry is enabled, the Prometheus metrics endpoint.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, settings, build)
		},
	}

	if err := setupFlags(cmd); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
		os.Exit(1)
	}

	return cmd
}

func setupFlags(cmd *cobra.Command) error {
	cmd.Flags().String("listen", "", "Listen address of the import API")
	cmd.Flags().Bool("telemetry", false, "Enable Prometheus telemetry endpoint")
	cmd.Flags().String("telemetry-listen", "", "Listen address of the telemetry endpoint")

	for key, flag := range map[string]string{
		"webserver.listen":  "listen",
		"telemetry.enabled": "telemetry",
		"telemetry.listen":  "telemetry-listen",
	} {
		if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return fmt.Errorf("error binding flags: %w", err)
		}
	}
	return nil
}

func run(ctx context.Context, settings *conf.Settings, build *buildinfo.Context) error {
	a, err := app.New(ctx, settings, build)
	if err != nil {
		return err
	}
	defer a.Close()

	log := a.Log.Module("main")
	log.Info("starting spaceportal", logger.String("version", build.GetVersion()))

	g, ctx := errgroup.WithContext(ctx)
	if settings.WebServer.Enabled {
		server := a.NewAPIServer()
		g.Go(func() error { return server.Run(ctx) })
	}
	if endpoint := a.NewMetricsEndpoint(); endpoint != nil {
		g.Go(func() error { return endpoint.Run(ctx) })
	}

	err = g.Wait()
	log.Info("spaceportal stopped")
	return err
}
