package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"seatwatch/internal/bootstrap/logging"
	"seatwatch/internal/errs"
	"seatwatch/internal/usecase/notify"
)

const (
	defaultFeedInterval = 2 * time.Second
	feedWriteTimeout    = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// changeFeed streams change log rows appended after the client connected.
// Each text frame is one notify.ChangeSummary.
func (h *Handler) changeFeed(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// The cursor is taken before the upgrade so nothing written after the
	// handshake is missed.
	var cursor uint64
	latest, err := h.queue.RecentChanges(ctx, 1)
	if err != nil {
		h.writeError(w, err, "load feed cursor")
		return
	}
	if len(latest) > 0 {
		cursor = latest[0].ID
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn(h.ctx, "websocket upgrade failed", slog.Any("err", errs.Loggable(err)))
		return
	}
	defer conn.Close()

	feedCtx := logging.WithAttrs(h.ctx, slog.String("remote", r.RemoteAddr))
	logging.Debug(feedCtx, "change feed opened", slog.Uint64("cursor", cursor))

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.feedInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-closed:
			logging.Debug(feedCtx, "change feed closed by client")
			return
		case <-ticker.C:
			next, err := h.pushChanges(ctx, conn, cursor)
			if err != nil {
				logging.Warn(feedCtx, "change feed stopped", slog.Any("err", errs.Loggable(err)))
				return
			}
			cursor = next
		}
	}
}

func (h *Handler) pushChanges(ctx context.Context, conn *websocket.Conn, cursor uint64) (uint64, error) {
	changes, err := h.queue.RecentChanges(ctx, maxRecentChanges)
	if err != nil {
		return cursor, errs.Wrap(err, "load recent changes")
	}
	// RecentChanges is newest first.
	for i := len(changes) - 1; i >= 0; i-- {
		change := changes[i]
		if change.ID <= cursor {
			continue
		}
		frame, err := json.Marshal(notify.Summarize(change))
		if err != nil {
			return cursor, errs.Wrap(err, "encode change")
		}
		if err := conn.SetWriteDeadline(time.Now().Add(feedWriteTimeout)); err != nil {
			return cursor, errs.Wrap(err, "set write deadline")
		}
		if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			return cursor, errs.Wrap(err, "write change frame")
		}
		cursor = change.ID
	}
	return cursor, nil
}
