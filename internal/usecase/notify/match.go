package notify

import (
	"context"
	"errors"
	"log/slog"

	"seatwatch/internal/bootstrap/logging"
	"seatwatch/internal/domain/inventory"
	"seatwatch/internal/domain/subscription"
	"seatwatch/internal/errs"
)

// Match returns, per user, the changes that user should receive. Each
// user's list keeps the input order and holds every change at most once.
func (s *Service) Match(ctx context.Context, changes []inventory.ChangeLogEntry) (map[string][]inventory.ChangeLogEntry, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, errs.Wrap(err, "check context")
	}

	out := make(map[string][]inventory.ChangeLogEntry)
	if len(changes) == 0 {
		return out, nil
	}

	subs, err := s.subscriptions.ListSubscriptions(ctx)
	if err != nil {
		return nil, errs.Wrap(err, "list subscriptions")
	}

	logCtx := logging.Component(ctx, "usecase.notify")
	now := s.clock.Now().In(s.cfg.Location)
	suppressed := 0
	for _, sub := range subs {
		if sub.Suppressed(now) {
			suppressed++
			continue
		}
		for _, change := range changes {
			if wants(sub, change) {
				out[sub.UserID] = append(out[sub.UserID], change)
			}
		}
	}

	logging.Info(logCtx, "changes matched",
		slog.Int("changes", len(changes)),
		slog.Int("subscriptions", len(subs)),
		slog.Int("suppressed", suppressed),
		slog.Int("recipients", len(out)),
	)
	return out, nil
}

func wants(sub subscription.Subscription, change inventory.ChangeLogEntry) bool {
	required := inventory.RequiredLevel(change.Type)
	global := sub.Option.NotificationLevel

	if sub.Option.AllowBroadcast && global > 0 && global >= required {
		return true
	}

	candidate := subscription.Candidate{
		EventID:   change.EventID,
		PlayID:    change.PlayID,
		City:      change.City,
		Title:     change.EventTitle,
		CastNames: change.CastNames,
	}
	for _, target := range sub.Targets {
		if !target.Matches(candidate) {
			continue
		}
		level := subscription.EffectiveLevel(global, target.Level)
		if level > 0 && level >= required {
			return true
		}
	}
	return false
}
