package cmd

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"seatwatch/internal/bootstrap"
	"seatwatch/internal/errs"
	"seatwatch/internal/usecase/monitorconsole"
)

var consoleMonitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Start the queue and change log monitor",
	RunE: withApp(func(cmd *cobra.Command, app *bootstrap.App, deps notifyDeps) error {
		limit, _ := cmd.Flags().GetInt("changes")
		refreshInterval, _ := cmd.Flags().GetDuration("refresh-interval")
		if refreshInterval <= 0 {
			refreshInterval = 5 * time.Second
		}

		model := monitorconsole.NewMonitorModel(cmd.Context(), deps.Notifier, monitorconsole.Options{
			ChangeLimit:     limit,
			DispatchLimit:   app.Config.Delivery.BatchSize,
			RefreshInterval: refreshInterval,
			Location:        app.Config.App.Location(),
		})

		program := tea.NewProgram(model, tea.WithAltScreen())
		if _, err := program.Run(); err != nil {
			return errs.Wrap(err, "run monitor console")
		}
		return nil
	}),
}

func init() {
	consoleCmd.AddCommand(consoleMonitorCmd)
	consoleMonitorCmd.Flags().Int("changes", 20, "Recent changes to show")
	consoleMonitorCmd.Flags().Duration("refresh-interval", 5*time.Second, "Auto refresh interval")
}
