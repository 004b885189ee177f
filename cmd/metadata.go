package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"seatwatch/internal/bootstrap"
	"seatwatch/internal/errs"
	metadatausecase "seatwatch/internal/usecase/metadata"
)

type metadataDeps struct {
	fx.In

	Metadata *metadatausecase.Service
}

var metadataCmd = &cobra.Command{
	Use:   "metadata",
	Short: "Show metadata index commands",
}

var metadataRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Backfill the show metadata index",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, deps metadataDeps) error {
		force, _ := cmd.Flags().GetBool("force")
		ctx := cmd.Context()

		if err := deps.Metadata.Load(ctx); err != nil {
			return errs.Wrap(err, "load metadata index")
		}
		report, err := deps.Metadata.Refresh(ctx, force)
		if err != nil {
			return errs.Wrap(err, "refresh metadata")
		}

		out := cmd.OutOrStdout()
		if report.Skipped {
			_, err = fmt.Fprintln(out, "metadata index is fresh, skipped (use --force to refresh)")
		} else {
			_, err = fmt.Fprintf(out, "days: %d failed_days: %d fetched: %d indexed: %d\n",
				report.Days, report.FailedDays, report.Fetched, report.Indexed)
		}
		if err != nil {
			return errs.Wrap(err, "write metadata output")
		}
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(metadataCmd)
	metadataCmd.AddCommand(metadataRefreshCmd)
	metadataRefreshCmd.Flags().Bool("force", false, "Refresh even when the index is within its TTL")
}
