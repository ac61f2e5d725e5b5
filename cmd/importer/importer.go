// Package importer runs one import from the command line and prints the
// result as JSON.
package importer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/spaceportal/spaceportal/internal/app"
	"github.com/spaceportal/spaceportal/internal/buildinfo"
	"github.com/spaceportal/spaceportal/internal/conf"
	"github.com/spaceportal/spaceportal/internal/daterange"
	"github.com/spaceportal/spaceportal/internal/ingest"
)

// Command creates the import command and its feed subcommands.
func Command(settings *conf.Settings, build *buildinfo.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import records from a NASA feed",
	}

	cmd.AddCommand(
		flaresCommand(settings, build),
		apodCommand(settings, build),
		apodRangeCommand(settings, build),
	)
	return cmd
}

func flaresCommand(settings *conf.Settings, build *buildinfo.Context) *cobra.Command {
	var start, end string
	cmd := &cobra.Command{
		Use:   "flares",
		Short: "Import DONKI solar flares",
		Long:  "Import DONKI solar flares between --start and --end. End defaults to today, start to the configured lookback before end.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := optionalDay("start", start)
			if err != nil {
				return err
			}
			e, err := optionalDay("end", end)
			if err != nil {
				return err
			}
			return run(cmd, settings, build, func(ctx context.Context, svc *ingest.Service) (*ingest.Result, error) {
				return svc.ImportFlares(ctx, s, e)
			})
		},
	}
	cmd.Flags().StringVar(&start, "start", "", "First day, YYYY-MM-DD")
	cmd.Flags().StringVar(&end, "end", "", "Last day, YYYY-MM-DD")
	return cmd
}

func apodCommand(settings *conf.Settings, build *buildinfo.Context) *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "apod",
		Short: "Import the Astronomy Picture of the Day for one date",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := optionalDay("date", date)
			if err != nil {
				return err
			}
			return run(cmd, settings, build, func(ctx context.Context, svc *ingest.Service) (*ingest.Result, error) {
				return svc.ImportSingle(ctx, d)
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "Day to import, YYYY-MM-DD (default today)")
	return cmd
}

func apodRangeCommand(settings *conf.Settings, build *buildinfo.Context) *cobra.Command {
	var start, end string
	cmd := &cobra.Command{
		Use:   "apod-range",
		Short: "Import Astronomy Pictures of the Day for an inclusive date range",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := daterange.ParseDay(start)
			if err != nil {
				return fmt.Errorf("invalid --start: %w", err)
			}
			e, err := daterange.ParseDay(end)
			if err != nil {
				return fmt.Errorf("invalid --end: %w", err)
			}
			return run(cmd, settings, build, func(ctx context.Context, svc *ingest.Service) (*ingest.Result, error) {
				return svc.ImportRange(ctx, s, e)
			})
		},
	}
	cmd.Flags().StringVar(&start, "start", "", "First day, YYYY-MM-DD")
	cmd.Flags().StringVar(&end, "end", "", "Last day, YYYY-MM-DD")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")
	return cmd
}

type importFunc func(ctx context.Context, svc *ingest.Service) (*ingest.Result, error)

func run(cmd *cobra.Command, settings *conf.Settings, build *buildinfo.Context, fn importFunc) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := app.New(ctx, settings, build)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := fn(ctx, a.Service)
	if res != nil {
		if werr := writeResult(cmd.OutOrStdout(), res); werr != nil && err == nil {
			err = werr
		}
	}
	return err
}

func writeResult(w io.Writer, res *ingest.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

func optionalDay(name, raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	d, err := daterange.ParseDay(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid --%s: %w", name, err)
	}
	return &d, nil
}
