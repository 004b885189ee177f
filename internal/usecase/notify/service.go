package notify

import (
	"time"

	"seatwatch/internal/ports"
)

const ticketUpdateScope = "ticket_update"

type Config struct {
	MaxRetries int
	Backoff    []time.Duration
	MaxLines   int
	Location   *time.Location
}

// Service matches change log entries to subscribers and drives the send
// queue through its pending → retrying → sent|failed lifecycle.
type Service struct {
	subscriptions ports.SubscriptionReadRepository
	queue         ports.SendQueueRepository
	inventory     ports.InventoryReadRepository
	uow           ports.UnitOfWork
	channel       ports.Channel
	metrics       ports.PipelineMetrics
	clock         ports.Clock
	cfg           Config
}

func NewService(
	subscriptions ports.SubscriptionReadRepository,
	queue ports.SendQueueRepository,
	inventory ports.InventoryReadRepository,
	uow ports.UnitOfWork,
	channel ports.Channel,
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
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if len(cfg.Backoff) == 0 {
		cfg.Backoff = []time.Duration{time.Minute, 5 * time.Minute, 15 * time.Minute}
	}
	if cfg.MaxLines <= 0 {
		cfg.MaxLines = 10
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}

	return &Service{
		subscriptions: subscriptions,
		queue:         queue,
		inventory:     inventory,
		uow:           uow,
		channel:       channel,
		metrics:       metrics,
		clock:         clock,
		cfg:           cfg,
	}
}

// backoffAfter is the delay before attempt retryCount+1. Counts past the
// schedule reuse its last step.
func (s *Service) backoffAfter(retryCount int) time.Duration {
	idx := retryCount - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(s.cfg.Backoff) {
		idx = len(s.cfg.Backoff) - 1
	}
	return s.cfg.Backoff[idx]
}
