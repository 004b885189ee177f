package ports

import (
	"context"
	"time"
)

type SendStatus string

const (
	SendPending  SendStatus = "pending"
	SendRetrying SendStatus = "retrying"
	SendSent     SendStatus = "sent"
	SendFailed   SendStatus = "failed"
)

func (s SendStatus) Terminal() bool {
	return s == SendSent || s == SendFailed
}

type SendQueueItem struct {
	ID          uint64
	UserID      string
	Channel     string
	Scope       string
	Payload     []byte
	Status      SendStatus
	RetryCount  int
	NextRetryAt *time.Time
	DedupKey    string
	LastError   string
	SentAt      *time.Time
	CreatedAt   time.Time
}

type SendQueueRepository interface {
	// HasDuplicate reports an item for (userID, dedupKey) in one of statuses.
	HasDuplicate(ctx context.Context, userID string, dedupKey string, statuses []SendStatus) (bool, error)
	Insert(ctx context.Context, item SendQueueItem) (SendQueueItem, error)
	ListReady(ctx context.Context, now time.Time, maxRetries int, limit int) ([]SendQueueItem, error)
	// FailExceeded marks open items above maxRetries as failed.
	FailExceeded(ctx context.Context, maxRetries int, lastError string) (int64, error)
	MarkSent(ctx context.Context, id uint64, sentAt time.Time) error
	MarkRetry(ctx context.Context, id uint64, retryCount int, nextRetryAt time.Time, lastError string) error
	MarkFailed(ctx context.Context, id uint64, retryCount int, lastError string) error
	CountByStatus(ctx context.Context) (map[SendStatus]int64, error)
}
