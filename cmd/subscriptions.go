package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"seatwatch/internal/bootstrap"
	"seatwatch/internal/errs"
	"seatwatch/internal/ports"
	"seatwatch/internal/usecase/subscriptions"
)

type subscriptionDeps struct {
	fx.In

	Repo ports.SubscriptionRepository
	UOW  ports.UnitOfWork
}

var subscriptionsCmd = &cobra.Command{
	Use:   "subscriptions",
	Short: "Subscriber management commands",
}

var subscriptionsImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Replace subscribers from a TOML seed file",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, deps subscriptionDeps) error {
		file, _ := cmd.Flags().GetString("file")

		subs, err := subscriptions.LoadSeedFile(file)
		if err != nil {
			return errs.Wrap(err, "load seed file")
		}
		count, err := subscriptions.NewImporter(deps.Repo, deps.UOW).Import(cmd.Context(), subs)
		if err != nil {
			return errs.Wrap(err, "import subscriptions")
		}
		if _, err := fmt.Fprintf(cmd.OutOrStdout(), "imported %d subscribers from %s\n", count, file); err != nil {
			return errs.Wrap(err, "write import output")
		}
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(subscriptionsCmd)
	subscriptionsCmd.AddCommand(subscriptionsImportCmd)
	subscriptionsImportCmd.Flags().String("file", "configs/subscribers.toml", "Path to the subscriber seed file")
}
