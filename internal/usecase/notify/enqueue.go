package notify

import (
	"context"
	"errors"
	"log/slog"
	"sort"

	"seatwatch/internal/bootstrap/logging"
	"seatwatch/internal/domain/inventory"
	"seatwatch/internal/errs"
	"seatwatch/internal/ports"
)

var dedupStatuses = []ports.SendStatus{ports.SendPending, ports.SendRetrying, ports.SendSent}

// Enqueue queues one message for userID unless an item with the same dedup
// key is already pending, retrying or sent. It reports whether a row was
// inserted.
func (s *Service) Enqueue(ctx context.Context, userID string, changes []inventory.ChangeLogEntry) (bool, error) {
	if ctx == nil {
		return false, errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return false, errs.Wrap(err, "check context")
	}
	if userID == "" {
		return false, errors.New("user id is required")
	}
	if len(changes) == 0 {
		return false, nil
	}

	now := s.clock.Now()
	key := DedupKey(changes[0].TicketID, now, s.cfg.Location)
	raw, err := encodePayload(changes)
	if err != nil {
		return false, err
	}

	inserted := false
	err = s.uow.WithTx(ctx, func(txCtx context.Context) error {
		dup, err := s.queue.HasDuplicate(txCtx, userID, key, dedupStatuses)
		if err != nil {
			return err
		}
		if dup {
			return nil
		}
		if _, err := s.queue.Insert(txCtx, ports.SendQueueItem{
			UserID:    userID,
			Channel:   s.channelName(),
			Scope:     ticketUpdateScope,
			Payload:   raw,
			Status:    ports.SendPending,
			DedupKey:  key,
			CreatedAt: now,
		}); err != nil {
			return err
		}
		inserted = true
		return nil
	})
	if err != nil {
		return false, errs.Wrapf(err, "enqueue notification for %s", userID)
	}

	logCtx := logging.Component(ctx, "usecase.notify")
	if inserted {
		logging.Debug(logCtx, "notification queued", slog.String("user_id", userID), slog.String("dedup_key", key), slog.Int("changes", len(changes)))
	} else {
		logging.Debug(logCtx, "duplicate notification skipped", slog.String("user_id", userID), slog.String("dedup_key", key))
	}
	return inserted, nil
}

type EnqueueReport struct {
	Queued     int
	Duplicates int
	Failed     int
}

// EnqueueMatches queues every user's batch in user id order. A failure for
// one user does not stop the others.
func (s *Service) EnqueueMatches(ctx context.Context, matches map[string][]inventory.ChangeLogEntry) (EnqueueReport, error) {
	if ctx == nil {
		return EnqueueReport{}, errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return EnqueueReport{}, errs.Wrap(err, "check context")
	}

	users := make([]string, 0, len(matches))
	for user := range matches {
		users = append(users, user)
	}
	sort.Strings(users)

	logCtx := logging.Component(ctx, "usecase.notify")
	var report EnqueueReport
	var failures []error
	for _, user := range users {
		inserted, err := s.Enqueue(ctx, user, matches[user])
		switch {
		case err != nil:
			report.Failed++
			failures = append(failures, err)
			logging.Warn(logCtx, "enqueue failed", slog.String("user_id", user), slog.Any("err", errs.Loggable(err)))
		case inserted:
			report.Queued++
		default:
			report.Duplicates++
		}
	}
	return report, errors.Join(failures...)
}

func (s *Service) channelName() string {
	if s.channel == nil {
		return ""
	}
	return s.channel.Name()
}
