package supervisor

import (
	"context"
	"errors"
	"log/slog"

	"seatwatch/internal/bootstrap/logging"
	"seatwatch/internal/domain/inventory"
	"seatwatch/internal/errs"
	"seatwatch/internal/usecase/metadata"
	"seatwatch/internal/usecase/notify"
	"seatwatch/internal/usecase/syncer"
)

type Syncer interface {
	SyncAll(ctx context.Context) ([]inventory.ChangeLogEntry, error)
}

type Notifier interface {
	Match(ctx context.Context, changes []inventory.ChangeLogEntry) (map[string][]inventory.ChangeLogEntry, error)
	EnqueueMatches(ctx context.Context, matches map[string][]inventory.ChangeLogEntry) (notify.EnqueueReport, error)
}

type Dispatcher interface {
	ConsumeReady(ctx context.Context, limit int) (notify.DispatchReport, error)
}

type MetadataRefresher interface {
	Refresh(ctx context.Context, force bool) (metadata.RefreshReport, error)
}

// SyncCycle runs one full sync and queues notifications for whatever
// changes were committed, including those of an aborted run.
func SyncCycle(sync Syncer, notifier Notifier) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		logCtx := logging.Component(ctx, "supervisor.sync")

		changes, syncErr := sync.SyncAll(ctx)
		if errors.Is(syncErr, syncer.ErrSyncInProgress) {
			logging.Info(logCtx, "sync skipped, previous run still active")
			return nil
		}
		if len(changes) == 0 {
			return syncErr
		}

		matches, err := notifier.Match(ctx, changes)
		if err != nil {
			return errors.Join(syncErr, errs.Wrap(err, "match changes"))
		}
		report, err := notifier.EnqueueMatches(ctx, matches)
		logging.Info(logCtx, "notifications queued",
			slog.Int("changes", len(changes)),
			slog.Int("users", len(matches)),
			slog.Int("queued", report.Queued),
			slog.Int("duplicates", report.Duplicates),
			slog.Int("failed", report.Failed),
		)
		if err != nil {
			return errors.Join(syncErr, errs.Wrap(err, "enqueue matches"))
		}
		return syncErr
	}
}

func DispatchCycle(dispatcher Dispatcher, batchSize int) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		report, err := dispatcher.ConsumeReady(ctx, batchSize)
		if err != nil {
			return errs.Wrap(err, "consume ready")
		}
		if report.Attempted > 0 {
			logging.Info(logging.Component(ctx, "supervisor.dispatch"), "dispatch batch done",
				slog.Int("attempted", report.Attempted),
				slog.Int("sent", report.Sent),
				slog.Int("retrying", report.Retrying),
				slog.Int("failed", report.Failed),
			)
		}
		return nil
	}
}

// RefreshCycle refreshes the metadata index unless it is still fresh.
func RefreshCycle(refresher MetadataRefresher) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		report, err := refresher.Refresh(ctx, false)
		if err != nil {
			return errs.Wrap(err, "refresh metadata")
		}
		if !report.Skipped {
			logging.Info(logging.Component(ctx, "supervisor.metadata"), "metadata refreshed",
				slog.Int("days", report.Days),
				slog.Int("failed_days", report.FailedDays),
				slog.Int("indexed", report.Indexed),
			)
		}
		return nil
	}
}
