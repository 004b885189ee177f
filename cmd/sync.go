package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"seatwatch/internal/bootstrap"
	"seatwatch/internal/bootstrap/logging"
	"seatwatch/internal/domain/inventory"
	"seatwatch/internal/errs"
	metadatausecase "seatwatch/internal/usecase/metadata"
	"seatwatch/internal/usecase/notify"
	"seatwatch/internal/usecase/syncer"
)

type syncDeps struct {
	fx.In

	Metadata *metadatausecase.Service
	Syncer   *syncer.Service
	Notifier *notify.Service
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Inventory sync commands",
}

var syncOnceCmd = &cobra.Command{
	Use:   "once",
	Short: "Run one sync pass and queue notifications",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, deps syncDeps) error {
		ctx := cmd.Context()

		eventIDs, _ := cmd.Flags().GetStringSlice("event")
		skipNotify, _ := cmd.Flags().GetBool("no-notify")

		if err := deps.Metadata.Load(ctx); err != nil {
			logging.Warn(ctx, "load metadata index failed", slog.Any("err", errs.Loggable(err)))
		}

		var (
			changes []inventory.ChangeLogEntry
			syncErr error
		)
		if len(eventIDs) > 0 {
			changes, syncErr = deps.Syncer.Sync(ctx, eventIDs)
		} else {
			changes, syncErr = deps.Syncer.SyncAll(ctx)
		}
		if syncErr != nil && len(changes) == 0 {
			return errs.Wrap(syncErr, "sync inventory")
		}

		out := cmd.OutOrStdout()
		if _, err := fmt.Fprintf(out, "changes: %d\n", len(changes)); err != nil {
			return errs.Wrap(err, "write sync output")
		}
		for _, change := range changes {
			if _, err := fmt.Fprintf(out, "  [%s] %s %s %d/%d\n", change.Type, change.TicketID, change.EventTitle, change.Stock, change.Total); err != nil {
				return errs.Wrap(err, "write sync output")
			}
		}

		if !skipNotify && len(changes) > 0 {
			matches, err := deps.Notifier.Match(ctx, changes)
			if err != nil {
				return errs.Wrap(err, "match changes")
			}
			report, err := deps.Notifier.EnqueueMatches(ctx, matches)
			if _, werr := fmt.Fprintf(out, "queued: %d duplicates: %d failed: %d\n", report.Queued, report.Duplicates, report.Failed); werr != nil {
				return errs.Wrap(werr, "write sync output")
			}
			if err != nil {
				return errs.Wrap(err, "enqueue matches")
			}
		}
		return syncErr
	}),
}

func init() {
	rootCmd.AddCommand(syncCmd)
	syncCmd.AddCommand(syncOnceCmd)
	syncOnceCmd.Flags().StringSlice("event", nil, "Sync only these event ids (repeatable)")
	syncOnceCmd.Flags().Bool("no-notify", false, "Record changes without queueing notifications")
}
