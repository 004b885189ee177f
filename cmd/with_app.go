package cmd

import (
	"context"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"seatwatch/internal/bootstrap"
	"seatwatch/internal/bootstrap/logging"
	"seatwatch/internal/errs"
)

// withApp boots the fx graph and hands run the dependencies it asks for.
// T is an fx.In struct; only the components it names get constructed.
func withApp[T any](run func(cmd *cobra.Command, app *bootstrap.App, deps T) error) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := logging.WithAttrs(
			cmd.Context(),
			slog.String("command", cmd.CommandPath()),
			slog.String("config_file", cfgFile),
		)

		var app *bootstrap.App
		var deps T
		fxApp := fx.New(
			bootstrap.Module,
			fx.WithLogger(func() fxevent.Logger {
				logger := &fxevent.SlogLogger{Logger: logging.Logger(ctx)}
				logger.UseLogLevel(slog.LevelDebug)
				return logger
			}),
			fx.Provide(func() context.Context { return ctx }),
			fx.Provide(
				fx.Annotate(
					func() string { return cfgFile },
					fx.ResultTags(`name:"configFile"`),
				),
			),
			fx.Populate(&app),
			fx.Invoke(func(d T) { deps = d }),
		)

		startCtx, cancelStart := context.WithTimeout(ctx, 10*time.Second)
		defer cancelStart()
		if err := fxApp.Start(startCtx); err != nil {
			logging.Error(ctx, "bootstrap application failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "start fx application")
		}

		defer func() {
			stopCtx, cancelStop := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancelStop()
			if err := fxApp.Stop(stopCtx); err != nil {
				logging.Error(ctx, "fx application stop failed", slog.Any("err", errs.Loggable(err)))
			}
		}()

		logger := logging.New(cmd.ErrOrStderr(), app.Config.App.LogLevel, app.Config.App.LogFormat)
		cmd.SetContext(logging.WithLogger(ctx, logger))

		if err := run(cmd, app, deps); err != nil {
			return errs.Wrap(err, "run command")
		}
		return nil
	}
}

// noDeps is for commands that only need the App.
type noDeps struct {
	fx.In
}
