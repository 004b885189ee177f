package bootstrap

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"go.uber.org/fx"
	"gorm.io/gorm"

	"seatwatch/internal/bootstrap/config"
	"seatwatch/internal/bootstrap/database"
	"seatwatch/internal/bootstrap/logging"
	cacheinfra "seatwatch/internal/infrastructure/cache"
	"seatwatch/internal/infrastructure/delivery"
	"seatwatch/internal/infrastructure/metrics"
	gormrepo "seatwatch/internal/infrastructure/persistence/gormstore/repository"
	gormuow "seatwatch/internal/infrastructure/persistence/gormstore/uow"
	"seatwatch/internal/infrastructure/remote"
	"seatwatch/internal/ports"
	metadatausecase "seatwatch/internal/usecase/metadata"
	"seatwatch/internal/usecase/notify"
	"seatwatch/internal/usecase/syncer"
)

var Module = fx.Options(
	fx.Provide(provideConfig),
	fx.Provide(provideDatabase),
	fx.Provide(provideApp),
	fx.Provide(
		fx.Annotate(
			func() ports.SystemClock { return ports.SystemClock{} },
			fx.As(new(ports.Clock)),
		),
	),
	fx.Provide(metrics.NewPipeline),
	fx.Provide(func(p *metrics.Pipeline) ports.PipelineMetrics { return p }),
	fx.Provide(
		fx.Annotate(
			gormuow.NewUnitOfWork,
			fx.As(new(ports.UnitOfWork)),
		),
	),
	fx.Provide(
		fx.Annotate(
			gormrepo.NewInventoryRepository,
			fx.As(new(ports.InventoryRepository)),
			fx.As(new(ports.InventoryReadRepository)),
		),
	),
	fx.Provide(
		fx.Annotate(
			gormrepo.NewSubscriptionRepository,
			fx.As(new(ports.SubscriptionRepository)),
			fx.As(new(ports.SubscriptionReadRepository)),
		),
	),
	fx.Provide(
		fx.Annotate(
			gormrepo.NewSendQueueRepository,
			fx.As(new(ports.SendQueueRepository)),
		),
	),
	fx.Provide(
		fx.Annotate(
			gormrepo.NewShowCacheRepository,
			fx.As(new(ports.ShowCacheRepository)),
		),
	),
	fx.Provide(provideCache),
	fx.Provide(provideTicketingSource),
	fx.Provide(provideMetadataSource),
	fx.Provide(provideChannel),
	fx.Provide(provideMetadataService),
	fx.Provide(func(s *metadatausecase.Service) ports.MetadataIndex { return s }),
	fx.Provide(provideSyncer),
	fx.Provide(provideNotifier),
)

type configParams struct {
	fx.In

	Ctx        context.Context
	ConfigFile string `name:"configFile"`
}

func provideConfig(p configParams) (config.Config, error) {
	ctx := logging.Component(p.Ctx, "bootstrap.fx")
	return config.Load(ctx, p.ConfigFile)
}

func provideDatabase(lc fx.Lifecycle, ctx context.Context, cfg config.Config) (*gorm.DB, error) {
	logCtx := logging.Component(ctx, "bootstrap.fx")

	db, err := database.Open(logCtx, cfg.Database)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		},
	})

	return db, nil
}

func provideApp(cfg config.Config, db *gorm.DB) *App {
	return &App{
		Config: cfg,
		DB:     db,
	}
}

// provideCache selects the metadata blob store: the shared database by
// default, Redis when cache.driver=redis.
func provideCache(lc fx.Lifecycle, ctx context.Context, cfg config.Config, db *gorm.DB, clock ports.Clock) (ports.Cache, error) {
	if !strings.EqualFold(cfg.Cache.Driver, "redis") {
		return cacheinfra.NewDatabaseCache(db, clock), nil
	}

	client, err := cacheinfra.NewRedisClient(logging.Component(ctx, "bootstrap.fx"), cfg.Cache.Redis)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			return client.Close()
		},
	})
	return cacheinfra.NewRedisCache(client, cfg.App.Name), nil
}

func provideTicketingSource(ctx context.Context, cfg config.Config, m ports.PipelineMetrics) (ports.TicketingSource, error) {
	return remote.NewTicketingClient(ctx, cfg.Ticketing, cfg.App.Location(), m)
}

func provideMetadataSource(ctx context.Context, cfg config.Config, m ports.PipelineMetrics) (ports.MetadataSource, error) {
	return remote.NewMetadataClient(ctx, cfg.Metadata.RemoteConfig, cfg.App.Location(), m)
}

func provideChannel(lc fx.Lifecycle, ctx context.Context, cfg config.Config) (ports.Channel, error) {
	channel, err := delivery.New(cfg.Delivery)
	if err != nil {
		return nil, err
	}
	if closer, ok := channel.(io.Closer); ok {
		lc.Append(fx.Hook{
			OnStop: func(_ context.Context) error {
				return closer.Close()
			},
		})
	}
	logging.Info(logging.Component(ctx, "bootstrap.fx"), "delivery channel ready", slog.String("channel", channel.Name()))
	return channel, nil
}

func provideMetadataService(
	source ports.MetadataSource,
	store ports.ShowCacheRepository,
	cache ports.Cache,
	clock ports.Clock,
	cfg config.Config,
) *metadatausecase.Service {
	return metadatausecase.NewService(source, store, cache, clock, metadatausecase.Config{
		TTL:          cfg.Metadata.CacheTTL,
		BackfillDays: cfg.Metadata.BackfillDays,
		Location:     cfg.App.Location(),
	})
}

func provideSyncer(
	source ports.TicketingSource,
	repo ports.InventoryRepository,
	uow ports.UnitOfWork,
	index ports.MetadataIndex,
	m ports.PipelineMetrics,
	clock ports.Clock,
	cfg config.Config,
) *syncer.Service {
	return syncer.NewService(source, repo, uow, index, m, clock, syncer.Config{
		PageSizes:        cfg.Ticketing.PageSizes,
		FetchConcurrency: cfg.Sync.FetchConcurrency,
		SessionTolerance: cfg.Metadata.SessionTolerance,
		Location:         cfg.App.Location(),
	})
}

func provideNotifier(
	subscriptions ports.SubscriptionReadRepository,
	queue ports.SendQueueRepository,
	inventory ports.InventoryReadRepository,
	uow ports.UnitOfWork,
	channel ports.Channel,
	m ports.PipelineMetrics,
	clock ports.Clock,
	cfg config.Config,
) *notify.Service {
	return notify.NewService(subscriptions, queue, inventory, uow, channel, m, clock, notify.Config{
		MaxRetries: cfg.Delivery.MaxRetries,
		Backoff:    cfg.Delivery.Backoff,
		MaxLines:   cfg.Delivery.MaxLines,
		Location:   cfg.App.Location(),
	})
}
