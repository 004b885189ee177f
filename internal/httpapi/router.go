package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	json "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"seatwatch/internal/bootstrap/logging"
	"seatwatch/internal/domain/inventory"
	"seatwatch/internal/errs"
	"seatwatch/internal/usecase/notify"
)

const maxRecentChanges = 200

// Pinger reports whether the state store is reachable.
type Pinger func(ctx context.Context) error

type QueueReader interface {
	QueueStats(ctx context.Context) (notify.QueueStats, error)
	RecentChanges(ctx context.Context, limit int) ([]inventory.ChangeLogEntry, error)
}

type Handler struct {
	ctx          context.Context
	ping         Pinger
	queue        QueueReader
	gatherer     prometheus.Gatherer
	feedInterval time.Duration
}

type Option func(*Handler)

// WithFeedInterval sets how often /ws/changes polls for new rows.
func WithFeedInterval(interval time.Duration) Option {
	return func(h *Handler) {
		if interval > 0 {
			h.feedInterval = interval
		}
	}
}

func NewRouter(ctx context.Context, ping Pinger, queue QueueReader, gatherer prometheus.Gatherer, opts ...Option) http.Handler {
	h := &Handler{
		ctx:          logging.Component(ctx, "httpapi"),
		ping:         ping,
		queue:        queue,
		gatherer:     gatherer,
		feedInterval: defaultFeedInterval,
	}
	for _, opt := range opts {
		opt(h)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	// Long-lived websocket streams stay outside the request timeout.
	r.Get("/ws/changes", h.changeFeed)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(10 * time.Second))
		r.Get("/healthz", h.health)
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
		r.Route("/api", func(r chi.Router) {
			r.Get("/queue/stats", h.queueStats)
			r.Get("/changes", h.recentChanges)
		})
	})
	return r
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if h.ping != nil {
		if err := h.ping(r.Context()); err != nil {
			logging.Warn(h.ctx, "health check failed", slog.Any("err", errs.Loggable(err)))
			h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type queueStatsResponse struct {
	Pending  int64 `json:"pending"`
	Retrying int64 `json:"retrying"`
	Sent     int64 `json:"sent"`
	Failed   int64 `json:"failed"`
	Total    int64 `json:"total"`
}

func (h *Handler) queueStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.queue.QueueStats(r.Context())
	if err != nil {
		h.writeError(w, err, "load queue stats")
		return
	}
	h.writeJSON(w, http.StatusOK, queueStatsResponse{
		Pending:  stats.Pending,
		Retrying: stats.Retrying,
		Sent:     stats.Sent,
		Failed:   stats.Failed,
		Total:    stats.Total(),
	})
}

func (h *Handler) recentChanges(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		limit = min(parsed, maxRecentChanges)
	}

	changes, err := h.queue.RecentChanges(r.Context(), limit)
	if err != nil {
		h.writeError(w, err, "load recent changes")
		return
	}
	summaries := make([]notify.ChangeSummary, 0, len(changes))
	for _, change := range changes {
		summaries = append(summaries, notify.Summarize(change))
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"changes": summaries})
}

func (h *Handler) writeError(w http.ResponseWriter, err error, action string) {
	logging.Error(h.ctx, action+" failed", slog.Any("err", errs.Loggable(err)))
	h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": action + " failed"})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logging.Warn(h.ctx, "write response failed", slog.Any("err", errs.Loggable(err)))
	}
}
