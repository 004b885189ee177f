package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"seatwatch/internal/bootstrap/logging"
	"seatwatch/internal/domain/inventory"
	"seatwatch/internal/errs"
)

type eventResult struct {
	EventID string
	Changes []inventory.ChangeLogEntry
	Err     error
}

// SyncAll pulls the event index and syncs every listed event. When the
// index cannot be read with any page size the run returns no changes.
func (s *Service) SyncAll(ctx context.Context) ([]inventory.ChangeLogEntry, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, errs.Wrap(err, "check context")
	}
	if !s.runMu.TryLock() {
		return nil, ErrSyncInProgress
	}
	defer s.runMu.Unlock()

	ctx = logging.WithRun(logging.Component(ctx, "usecase.syncer"), "sync", uuid.NewString())
	started := s.clock.Now()

	ids, hints, err := s.fetchIndex(ctx)
	if err != nil {
		logging.Error(ctx, "event index fetch failed", slog.Any("err", errs.Loggable(err)))
		s.metrics.ObserveSyncRun("index_failed", s.clock.Now().Sub(started))
		return nil, err
	}
	return s.run(ctx, ids, hints, started)
}

// Sync processes the given events. Connectivity failures stop the run; the
// changes already persisted are returned with the error.
func (s *Service) Sync(ctx context.Context, eventIDs []string) ([]inventory.ChangeLogEntry, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, errs.Wrap(err, "check context")
	}
	if !s.runMu.TryLock() {
		return nil, ErrSyncInProgress
	}
	defer s.runMu.Unlock()

	ctx = logging.WithRun(logging.Component(ctx, "usecase.syncer"), "sync", uuid.NewString())
	return s.run(ctx, eventIDs, nil, s.clock.Now())
}

func (s *Service) fetchIndex(ctx context.Context) ([]string, map[string]string, error) {
	var lastErr error
	for _, size := range s.cfg.PageSizes {
		events, err := s.source.ListEvents(ctx, size)
		if err != nil {
			if errs.IsConnectivity(err) || ctx.Err() != nil {
				return nil, nil, fmt.Errorf("%w: %w", ErrIndexUnavailable, err)
			}
			lastErr = err
			logging.Warn(ctx, "event index page failed, shrinking",
				slog.Int("page_size", size),
				slog.Any("err", errs.Loggable(err)),
			)
			continue
		}

		ids := make([]string, 0, len(events))
		hints := make(map[string]string, len(events))
		for _, event := range events {
			ids = append(ids, event.ID)
			if event.City != "" {
				hints[event.ID] = event.City
			}
		}
		logging.Info(ctx, "event index fetched", slog.Int("page_size", size), slog.Int("events", len(ids)))
		return ids, hints, nil
	}
	return nil, nil, fmt.Errorf("%w: all page sizes failed: %w", ErrIndexUnavailable, lastErr)
}

func (s *Service) run(ctx context.Context, eventIDs []string, hints map[string]string, started time.Time) ([]inventory.ChangeLogEntry, error) {
	ids := dedupeIDs(eventIDs)
	results := make([]eventResult, len(ids))

	sem := semaphore.NewWeighted(int64(s.cfg.FetchConcurrency))
	group, groupCtx := errgroup.WithContext(ctx)
	for i, id := range ids {
		group.Go(func() error {
			results[i] = s.processEvent(groupCtx, sem, id, hints[id])
			if err := results[i].Err; err != nil && errs.IsConnectivity(err) {
				return err
			}
			return nil
		})
	}
	runErr := group.Wait()

	changes := make([]inventory.ChangeLogEntry, 0)
	failed := 0
	for _, result := range results {
		switch {
		case result.Err == nil:
			s.metrics.ObserveEventResult("ok")
			for _, change := range result.Changes {
				s.metrics.ObserveChange(string(change.Type))
			}
			changes = append(changes, result.Changes...)
		case runErr != nil && !errs.IsConnectivity(result.Err) && errors.Is(result.Err, context.Canceled):
			s.metrics.ObserveEventResult("canceled")
			logging.Debug(ctx, "event skipped after abort", slog.String("event_id", result.EventID))
		default:
			failed++
			s.metrics.ObserveEventResult("failed")
			logging.Warn(ctx, "event sync failed",
				slog.String("event_id", result.EventID),
				slog.Any("err", errs.Loggable(result.Err)),
			)
		}
	}

	elapsed := s.clock.Now().Sub(started)
	outcome := "ok"
	if runErr != nil {
		outcome = "aborted"
	} else if failed > 0 {
		outcome = "partial"
	}
	s.metrics.ObserveSyncRun(outcome, elapsed)

	logging.Info(ctx, "sync run finished",
		slog.String("outcome", outcome),
		slog.Int("events", len(ids)),
		slog.Int("failed", failed),
		slog.Int("changes", len(changes)),
		slog.Duration("elapsed", elapsed),
	)
	if runErr != nil {
		return changes, errs.Wrap(runErr, "sync aborted")
	}
	return changes, nil
}

func (s *Service) processEvent(ctx context.Context, sem *semaphore.Weighted, eventID string, cityHint string) eventResult {
	result := eventResult{EventID: eventID}

	if err := sem.Acquire(ctx, 1); err != nil {
		result.Err = errs.Wrap(err, "acquire fetch slot")
		return result
	}
	released := false
	release := func() {
		if !released {
			released = true
			sem.Release(1)
		}
	}
	defer release()

	snapshot, err := s.ReadContext(ctx, eventID)
	if err != nil {
		result.Err = err
		return result
	}
	details, err := s.source.EventDetails(ctx, eventID)
	if err != nil {
		result.Err = err
		return result
	}
	if details.Event.City == "" {
		details.Event.City = cityHint
	}
	enrichment, err := s.Enrich(ctx, eventID, details, snapshot)
	if err != nil {
		result.Err = err
		return result
	}

	// Free the fetch slot before queueing on the write lock.
	release()

	changes, err := s.Persist(ctx, eventID, details, enrichment, snapshot)
	if err != nil {
		result.Err = err
		return result
	}
	result.Changes = changes
	return result
}

func dedupeIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
