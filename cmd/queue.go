package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"seatwatch/internal/bootstrap"
	"seatwatch/internal/errs"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Send queue inspection commands",
}

var queueStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print send queue counts by status",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, deps notifyDeps) error {
		stats, err := deps.Notifier.QueueStats(cmd.Context())
		if err != nil {
			return errs.Wrap(err, "load queue stats")
		}
		if _, err := fmt.Fprintf(cmd.OutOrStdout(), "pending: %d\nretrying: %d\nsent: %d\nfailed: %d\ntotal: %d\n",
			stats.Pending, stats.Retrying, stats.Sent, stats.Failed, stats.Total()); err != nil {
			return errs.Wrap(err, "write queue output")
		}
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(queueCmd)
	queueCmd.AddCommand(queueStatsCmd)
}
