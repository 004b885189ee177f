package bootstrap

import (
	"context"
	"errors"
	"log/slog"

	"gorm.io/gorm"

	"seatwatch/internal/bootstrap/config"
	"seatwatch/internal/bootstrap/logging"
	"seatwatch/internal/errs"
	"seatwatch/internal/infrastructure/persistence/gormstore/model"
)

type App struct {
	Config config.Config
	DB     *gorm.DB
}

func (a *App) InitSchema(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return errs.Wrap(err, "check context")
	}

	logCtx := logging.Component(ctx, "bootstrap.app")
	logging.Info(logCtx, "start schema migration", slog.String("database_driver", a.Config.Database.Driver))

	if err := a.DB.WithContext(ctx).AutoMigrate(model.All()...); err != nil {
		return errs.Wrap(err, "auto migrate schema")
	}

	logging.Info(logCtx, "schema migration completed")
	return nil
}

// Ping checks that the state store answers.
func (a *App) Ping(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	sqlDB, err := a.DB.DB()
	if err != nil {
		return errs.Wrap(err, "get sql db")
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return errs.Wrap(err, "ping database")
	}
	return nil
}
