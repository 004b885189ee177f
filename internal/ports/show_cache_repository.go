package ports

import (
	"context"
	"time"

	"seatwatch/internal/domain/metadata"
)

// ShowCacheRepository persists metadata sessions keyed by (slot, musical).
type ShowCacheRepository interface {
	UpsertSessions(ctx context.Context, sessions []metadata.Session) (int, error)
	// ListSessionsSince returns sessions starting on or after from, with
	// wall clocks interpreted in loc.
	ListSessionsSince(ctx context.Context, from time.Time, loc *time.Location) ([]metadata.Session, error)
}
