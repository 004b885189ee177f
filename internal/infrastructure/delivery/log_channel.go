package delivery

import (
	"context"
	"errors"
	"log/slog"

	"seatwatch/internal/bootstrap/logging"
	"seatwatch/internal/ports"
)

// LogChannel writes messages to the structured log instead of sending them.
type LogChannel struct{}

var _ ports.Channel = LogChannel{}

func (LogChannel) Name() string {
	return "log"
}

func (LogChannel) PostPrivateMessage(ctx context.Context, userID string, text string) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	logging.Info(logging.Component(ctx, "delivery.log"), "private message",
		slog.String("user_id", userID),
		slog.String("text", text),
	)
	return nil
}
