package metadata

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"

	"seatwatch/internal/bootstrap/logging"
	domainmetadata "seatwatch/internal/domain/metadata"
	"seatwatch/internal/errs"
	"seatwatch/internal/ports"
)

const indexCacheKey = "metadata:index"

var errBackfillFailed = errors.New("metadata backfill failed for every day")

type Config struct {
	TTL          time.Duration
	BackfillDays int
	Location     *time.Location
}

// Service owns the show/cast metadata index. Readers get an immutable
// snapshot; Refresh builds a new index and swaps it in as a whole.
type Service struct {
	source ports.MetadataSource
	store  ports.ShowCacheRepository
	cache  ports.Cache
	clock  ports.Clock
	cfg    Config

	index     atomic.Pointer[domainmetadata.Index]
	refreshMu sync.Mutex
}

func NewService(source ports.MetadataSource, store ports.ShowCacheRepository, cache ports.Cache, clock ports.Clock, cfg Config) *Service {
	if clock == nil {
		clock = ports.SystemClock{}
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	if cfg.BackfillDays <= 0 {
		cfg.BackfillDays = 30
	}

	s := &Service{
		source: source,
		store:  store,
		cache:  cache,
		clock:  clock,
		cfg:    cfg,
	}
	s.index.Store(domainmetadata.EmptyIndex())
	return s
}

// Snapshot returns the current index. It never returns nil.
func (s *Service) Snapshot() *domainmetadata.Index {
	return s.index.Load()
}

type indexBlob struct {
	RefreshedAt time.Time                `json:"refreshed_at"`
	Sessions    []domainmetadata.Session `json:"sessions"`
}

// Load restores the index from the cache blob, falling back to the
// persisted show cache rows when no blob is stored.
func (s *Service) Load(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return errs.Wrap(err, "check context")
	}

	logCtx := logging.Component(ctx, "usecase.metadata")

	if s.cache != nil {
		raw, found, err := s.cache.Get(ctx, indexCacheKey)
		if err != nil {
			logging.Warn(logCtx, "read metadata blob failed", slog.Any("err", errs.Loggable(err)))
		} else if found {
			var blob indexBlob
			if err := json.Unmarshal([]byte(raw), &blob); err != nil {
				logging.Warn(logCtx, "decode metadata blob failed", slog.Any("err", errs.Loggable(err)))
			} else {
				s.index.Store(domainmetadata.NewIndex(blob.Sessions, blob.RefreshedAt))
				logging.Info(logCtx, "metadata index loaded from cache", slog.Int("sessions", len(blob.Sessions)))
				return nil
			}
		}
	}

	sessions, err := s.store.ListSessionsSince(ctx, s.startOfDay(s.clock.Now()), s.cfg.Location)
	if err != nil {
		return errs.Wrap(err, "load show cache")
	}
	// Rows without a blob carry no refresh time, so the next Refresh runs.
	s.index.Store(domainmetadata.NewIndex(sessions, time.Time{}))
	logging.Info(logCtx, "metadata index loaded from show cache", slog.Int("sessions", len(sessions)))
	return nil
}

type RefreshReport struct {
	Skipped    bool
	Days       int
	FailedDays int
	Fetched    int
	Indexed    int
}

// Refresh backfills the configured day window from the metadata feed when
// the index is older than the TTL, or unconditionally when force is set.
func (s *Service) Refresh(ctx context.Context, force bool) (RefreshReport, error) {
	if ctx == nil {
		return RefreshReport{}, errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return RefreshReport{}, errs.Wrap(err, "check context")
	}

	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	logCtx := logging.Component(ctx, "usecase.metadata")
	now := s.clock.Now()
	if !force && !s.Snapshot().Stale(now, s.cfg.TTL) {
		logging.Debug(logCtx, "metadata index is fresh", slog.Time("refreshed_at", s.Snapshot().RefreshedAt()))
		return RefreshReport{Skipped: true}, nil
	}

	report := RefreshReport{Days: s.cfg.BackfillDays}
	start := s.startOfDay(now)
	fetched := make([]domainmetadata.Session, 0)
	for i := 0; i < s.cfg.BackfillDays; i++ {
		day := start.AddDate(0, 0, i)
		sessions, err := s.source.SearchDay(ctx, day)
		if err != nil {
			if errs.IsConnectivity(err) || ctx.Err() != nil {
				return report, errs.Wrapf(err, "search metadata day %s", day.Format(time.DateOnly))
			}
			report.FailedDays++
			logging.Warn(logCtx, "metadata day fetch failed",
				slog.String("day", day.Format(time.DateOnly)),
				slog.Any("err", errs.Loggable(err)),
			)
			continue
		}
		fetched = append(fetched, sessions...)
	}
	if report.FailedDays == report.Days {
		return report, errBackfillFailed
	}

	written, err := s.store.UpsertSessions(ctx, fetched)
	if err != nil {
		return report, errs.Wrap(err, "save show cache")
	}
	report.Fetched = written

	persisted, err := s.store.ListSessionsSince(ctx, start, s.cfg.Location)
	if err != nil {
		return report, errs.Wrap(err, "reload show cache")
	}
	next := domainmetadata.NewIndex(persisted, now)
	report.Indexed = next.Len()

	if err := s.saveBlob(ctx, next); err != nil {
		logging.Warn(logCtx, "save metadata blob failed", slog.Any("err", errs.Loggable(err)))
	}
	s.index.Store(next)

	logging.Info(logCtx, "metadata index refreshed",
		slog.Int("days", report.Days),
		slog.Int("failed_days", report.FailedDays),
		slog.Int("fetched", report.Fetched),
		slog.Int("indexed", report.Indexed),
	)
	return report, nil
}

// FetchDay asks the feed for one day and returns an index over it without
// storing anything.
func (s *Service) FetchDay(ctx context.Context, day time.Time) (*domainmetadata.Index, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, errs.Wrap(err, "check context")
	}

	sessions, err := s.source.SearchDay(ctx, day.In(s.cfg.Location))
	if err != nil {
		return nil, errs.Wrapf(err, "search metadata day %s", day.In(s.cfg.Location).Format(time.DateOnly))
	}
	return domainmetadata.NewIndex(sessions, s.clock.Now()), nil
}

func (s *Service) saveBlob(ctx context.Context, index *domainmetadata.Index) error {
	if s.cache == nil {
		return nil
	}
	raw, err := json.Marshal(indexBlob{RefreshedAt: index.RefreshedAt(), Sessions: index.Sessions()})
	if err != nil {
		return errs.Wrap(err, "encode metadata blob")
	}
	if err := s.cache.Set(ctx, indexCacheKey, string(raw), 0); err != nil {
		return errs.Wrap(err, "store metadata blob")
	}
	return nil
}

func (s *Service) startOfDay(t time.Time) time.Time {
	local := t.In(s.cfg.Location)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.cfg.Location)
}
