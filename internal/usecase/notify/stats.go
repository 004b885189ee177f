package notify

import (
	"context"
	"errors"

	"seatwatch/internal/domain/inventory"
	"seatwatch/internal/errs"
	"seatwatch/internal/ports"
)

type QueueStats struct {
	Pending  int64
	Retrying int64
	Sent     int64
	Failed   int64
}

func (q QueueStats) Total() int64 {
	return q.Pending + q.Retrying + q.Sent + q.Failed
}

func (s *Service) QueueStats(ctx context.Context) (QueueStats, error) {
	if ctx == nil {
		return QueueStats{}, errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return QueueStats{}, errs.Wrap(err, "check context")
	}

	counts, err := s.queue.CountByStatus(ctx)
	if err != nil {
		return QueueStats{}, errs.Wrap(err, "count queue items")
	}
	return QueueStats{
		Pending:  counts[ports.SendPending],
		Retrying: counts[ports.SendRetrying],
		Sent:     counts[ports.SendSent],
		Failed:   counts[ports.SendFailed],
	}, nil
}

// RecentChanges returns the newest change log entries first.
func (s *Service) RecentChanges(ctx context.Context, limit int) ([]inventory.ChangeLogEntry, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, errs.Wrap(err, "check context")
	}

	changes, err := s.inventory.ListRecentChanges(ctx, limit)
	if err != nil {
		return nil, errs.Wrap(err, "list recent changes")
	}
	return changes, nil
}
