package syncer

import (
	"context"
	"errors"
	"sync"
	"time"

	"seatwatch/internal/domain/inventory"
	"seatwatch/internal/errs"
	"seatwatch/internal/ports"
)

var (
	ErrSyncInProgress   = errors.New("sync already in progress")
	ErrIndexUnavailable = errors.New("event index unavailable")
)

type Config struct {
	PageSizes        []int
	FetchConcurrency int
	SessionTolerance time.Duration
	Location         *time.Location
}

// Service runs the read → enrich → persist pipeline per event. Network
// phases run concurrently up to FetchConcurrency; Persist is serialized by
// a single write lock so no transaction is held across a remote call.
type Service struct {
	source   ports.TicketingSource
	repo     ports.InventoryRepository
	uow      ports.UnitOfWork
	metadata ports.MetadataIndex
	metrics  ports.PipelineMetrics
	clock    ports.Clock
	cfg      Config

	runMu   sync.Mutex
	writeMu sync.Mutex
}

func NewService(
	source ports.TicketingSource,
	repo ports.InventoryRepository,
	uow ports.UnitOfWork,
	metadata ports.MetadataIndex,
	metrics ports.PipelineMetrics,
	clock ports.Clock,
	cfg Config,
) *Service {
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}
	if clock == nil {
		clock = ports.SystemClock{}
	}
	if len(cfg.PageSizes) == 0 {
		cfg.PageSizes = []int{1000, 500, 200}
	}
	if cfg.FetchConcurrency < 1 {
		cfg.FetchConcurrency = 5
	}
	if cfg.SessionTolerance <= 0 {
		cfg.SessionTolerance = 10 * time.Minute
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}

	return &Service{
		source:   source,
		repo:     repo,
		uow:      uow,
		metadata: metadata,
		metrics:  metrics,
		clock:    clock,
		cfg:      cfg,
	}
}

// ReadContext loads what the store already knows about eventID. An event
// never seen before yields an empty snapshot.
func (s *Service) ReadContext(ctx context.Context, eventID string) (inventory.Snapshot, error) {
	if ctx == nil {
		return inventory.Snapshot{}, errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return inventory.Snapshot{}, errs.Wrap(err, "check context")
	}
	if eventID == "" {
		return inventory.Snapshot{}, inventory.ErrEventIDRequired
	}

	snapshot, err := s.repo.LoadSnapshot(ctx, eventID)
	if err != nil {
		return inventory.Snapshot{}, errs.Wrapf(err, "read context for event %s", eventID)
	}
	return snapshot, nil
}
