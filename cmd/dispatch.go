package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"seatwatch/internal/bootstrap"
	"seatwatch/internal/errs"
	"seatwatch/internal/usecase/notify"
)

type notifyDeps struct {
	fx.In

	Notifier *notify.Service
}

var dispatchCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Send queue delivery commands",
}

var dispatchOnceCmd = &cobra.Command{
	Use:   "once",
	Short: "Deliver one batch of ready queue items",
	RunE: withApp(func(cmd *cobra.Command, app *bootstrap.App, deps notifyDeps) error {
		limit, _ := cmd.Flags().GetInt("limit")
		if limit <= 0 {
			limit = app.Config.Delivery.BatchSize
		}

		report, err := deps.Notifier.ConsumeReady(cmd.Context(), limit)
		if err != nil {
			return errs.Wrap(err, "consume ready")
		}
		if _, err := fmt.Fprintf(cmd.OutOrStdout(), "attempted: %d sent: %d retrying: %d failed: %d write_errors: %d\n",
			report.Attempted, report.Sent, report.Retrying, report.Failed, report.Errors); err != nil {
			return errs.Wrap(err, "write dispatch output")
		}
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(dispatchCmd)
	dispatchCmd.AddCommand(dispatchOnceCmd)
	dispatchOnceCmd.Flags().Int("limit", 0, "Max items to deliver (default: delivery.batch_size)")
}
