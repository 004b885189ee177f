package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"seatwatch/internal/bootstrap"
	"seatwatch/internal/bootstrap/config"
	"seatwatch/internal/bootstrap/logging"
	"seatwatch/internal/errs"
	"seatwatch/internal/httpapi"
	"seatwatch/internal/infrastructure/metrics"
	"seatwatch/internal/supervisor"
)

type serveDeps struct {
	fx.In

	syncDeps
	Pipeline *metrics.Pipeline
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the supervised sync, dispatch and metadata loops with the HTTP endpoint",
	RunE: withApp(func(cmd *cobra.Command, app *bootstrap.App, deps serveDeps) error {
		cfg := app.Config

		level := new(slog.LevelVar)
		level.Set(logging.ParseLevel(cfg.App.LogLevel))
		ctx := logging.WithLogger(cmd.Context(), logging.NewLeveled(cmd.ErrOrStderr(), level, cfg.App.LogFormat))
		if err := config.Watch(ctx, cfgFile, func(next config.Config) {
			level.Set(logging.ParseLevel(next.App.LogLevel))
			logging.Info(ctx, "log level applied", slog.String("log_level", next.App.LogLevel))
		}); err != nil {
			logging.Warn(ctx, "config watch disabled", slog.Any("err", errs.Loggable(err)))
		}

		if err := deps.Metadata.Load(ctx); err != nil {
			logging.Warn(ctx, "load metadata index failed", slog.Any("err", errs.Loggable(err)))
		}

		tree := supervisor.NewTree(logging.Logger(ctx), supervisor.TreeConfig{})
		tree.AddPipelineService(supervisor.NewTickerService("metadata-refresh", cfg.Metadata.RefreshInterval,
			supervisor.RefreshCycle(deps.Metadata)))
		tree.AddPipelineService(supervisor.NewTickerService("sync", cfg.Sync.Interval,
			supervisor.SyncCycle(deps.Syncer, deps.Notifier)))
		tree.AddPipelineService(supervisor.NewTickerService("dispatch", cfg.Delivery.Interval,
			supervisor.DispatchCycle(deps.Notifier, cfg.Delivery.BatchSize)))

		if cfg.HTTP.Addr != "" {
			server := &http.Server{
				Addr:              cfg.HTTP.Addr,
				Handler:           httpapi.NewRouter(ctx, app.Ping, deps.Notifier, deps.Pipeline.Registry()),
				ReadHeaderTimeout: 5 * time.Second,
			}
			tree.AddAPIService(supervisor.NewHTTPService(server, 10*time.Second))
			logging.Info(ctx, "http endpoint enabled", slog.String("addr", cfg.HTTP.Addr))
		}

		logging.Info(ctx, "serve started",
			slog.Duration("sync_interval", cfg.Sync.Interval),
			slog.Duration("dispatch_interval", cfg.Delivery.Interval),
			slog.Duration("metadata_interval", cfg.Metadata.RefreshInterval),
		)
		if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return errs.Wrap(err, "serve supervisor tree")
		}
		logging.Info(ctx, "serve stopped")
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
