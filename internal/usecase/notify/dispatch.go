package notify

import (
	"context"
	"errors"
	"log/slog"

	"seatwatch/internal/bootstrap/logging"
	"seatwatch/internal/errs"
	"seatwatch/internal/ports"
)

var (
	errNoChannel  = errors.New("delivery channel is not configured")
	errRetryLimit = errors.New("retry limit exceeded")
)

type DispatchReport struct {
	Attempted int
	Sent      int
	Retrying  int
	Failed    int
	// Errors counts items whose state could not be written back.
	Errors int
}

// ConsumeReady delivers up to limit ready items. Every item is handled on
// its own; one failed delivery never stops the batch.
func (s *Service) ConsumeReady(ctx context.Context, limit int) (DispatchReport, error) {
	if ctx == nil {
		return DispatchReport{}, errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return DispatchReport{}, errs.Wrap(err, "check context")
	}
	if s.channel == nil {
		return DispatchReport{}, errNoChannel
	}

	logCtx := logging.Component(ctx, "usecase.notify")
	var report DispatchReport

	expired, err := s.queue.FailExceeded(ctx, s.cfg.MaxRetries, errRetryLimit.Error())
	if err != nil {
		return DispatchReport{}, errs.Wrap(err, "fail exceeded queue items")
	}
	if expired > 0 {
		report.Failed += int(expired)
		for range expired {
			s.metrics.ObserveDelivery(string(ports.SendFailed))
		}
		logging.Warn(logCtx, "queue items past retry limit failed",
			slog.Int64("items", expired),
			slog.Int("max_retries", s.cfg.MaxRetries),
		)
	}

	items, err := s.queue.ListReady(ctx, s.clock.Now(), s.cfg.MaxRetries, limit)
	if err != nil {
		return report, errs.Wrap(err, "list ready queue items")
	}

	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return report, errs.Wrap(err, "check context")
		}
		report.Attempted++

		itemCtx := logging.WithAttrs(logCtx,
			slog.Uint64("queue_id", item.ID),
			slog.String("user_id", item.UserID),
		)
		result, err := s.deliver(itemCtx, item)
		if err != nil {
			report.Errors++
			logging.Error(itemCtx, "update queue item failed", slog.Any("err", errs.Loggable(err)))
			continue
		}
		s.metrics.ObserveDelivery(string(result))
		switch result {
		case ports.SendSent:
			report.Sent++
		case ports.SendRetrying:
			report.Retrying++
		case ports.SendFailed:
			report.Failed++
		}
	}

	if report.Attempted > 0 || report.Failed > 0 {
		logging.Info(logCtx, "dispatch finished",
			slog.Int("attempted", report.Attempted),
			slog.Int("sent", report.Sent),
			slog.Int("retrying", report.Retrying),
			slog.Int("failed", report.Failed),
			slog.Int("errors", report.Errors),
		)
	}
	return report, nil
}

func (s *Service) deliver(ctx context.Context, item ports.SendQueueItem) (ports.SendStatus, error) {
	summaries, err := decodePayload(item.Payload)
	if err != nil {
		// Undecodable payloads are terminal.
		if markErr := s.queue.MarkFailed(ctx, item.ID, item.RetryCount, err.Error()); markErr != nil {
			return "", markErr
		}
		logging.Warn(ctx, "queue item has unreadable payload", slog.Any("err", errs.Loggable(err)))
		return ports.SendFailed, nil
	}

	sendErr := s.channel.PostPrivateMessage(ctx, item.UserID, Render(summaries, s.cfg.MaxLines, s.cfg.Location))
	now := s.clock.Now()
	if sendErr == nil {
		if err := s.queue.MarkSent(ctx, item.ID, now); err != nil {
			return "", err
		}
		return ports.SendSent, nil
	}

	if item.RetryCount >= s.cfg.MaxRetries {
		if err := s.queue.MarkFailed(ctx, item.ID, item.RetryCount, sendErr.Error()); err != nil {
			return "", err
		}
		logging.Warn(ctx, "delivery failed permanently",
			slog.Int("retry_count", item.RetryCount),
			slog.Any("err", errs.Loggable(sendErr)),
		)
		return ports.SendFailed, nil
	}

	retryCount := item.RetryCount + 1
	next := now.Add(s.backoffAfter(retryCount))
	if err := s.queue.MarkRetry(ctx, item.ID, retryCount, next, sendErr.Error()); err != nil {
		return "", err
	}
	logging.Info(ctx, "delivery failed, retry scheduled",
		slog.Int("retry_count", retryCount),
		slog.Time("next_retry_at", next),
		slog.Any("err", errs.Loggable(sendErr)),
	)
	return ports.SendRetrying, nil
}
