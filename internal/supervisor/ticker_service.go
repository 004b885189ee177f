package supervisor

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"seatwatch/internal/bootstrap/logging"
	"seatwatch/internal/errs"
)

// TickerService runs fn once at start and then every interval. A failing
// tick is logged and the loop keeps going; only a panic or ctx cancellation
// ends Serve.
type TickerService struct {
	name     string
	interval time.Duration
	fn       func(ctx context.Context) error
}

func NewTickerService(name string, interval time.Duration, fn func(ctx context.Context) error) *TickerService {
	if interval <= 0 {
		interval = time.Minute
	}
	return &TickerService{name: name, interval: interval, fn: fn}
}

func (s *TickerService) Serve(ctx context.Context) error {
	logCtx := logging.WithAttrs(ctx, slog.String("component", "supervisor.ticker"), slog.String("service", s.name))
	logging.Info(logCtx, "ticker started", slog.Duration("interval", s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.tick(logCtx)

		select {
		case <-ctx.Done():
			logging.Info(logCtx, "ticker stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *TickerService) tick(ctx context.Context) {
	started := time.Now()
	err := s.fn(ctx)
	switch {
	case err == nil:
		logging.Debug(ctx, "tick done", slog.Duration("elapsed", time.Since(started)))
	case errors.Is(err, context.Canceled):
	default:
		logging.Warn(ctx, "tick failed",
			slog.Duration("elapsed", time.Since(started)),
			slog.Any("err", errs.Loggable(err)),
		)
	}
}

func (s *TickerService) String() string {
	return s.name
}
