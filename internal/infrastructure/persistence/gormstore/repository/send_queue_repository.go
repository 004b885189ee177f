package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"seatwatch/internal/errs"
	"seatwatch/internal/infrastructure/persistence/gormstore/model"
	"seatwatch/internal/ports"
)

type SendQueueRepository struct {
	db *gorm.DB
}

var _ ports.SendQueueRepository = (*SendQueueRepository)(nil)

func NewSendQueueRepository(db *gorm.DB) *SendQueueRepository {
	return &SendQueueRepository{db: db}
}

func (r *SendQueueRepository) HasDuplicate(ctx context.Context, userID string, dedupKey string, statuses []ports.SendStatus) (bool, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return false, err
	}

	values := make([]string, 0, len(statuses))
	for _, status := range statuses {
		values = append(values, string(status))
	}

	var count int64
	if err := db.Model(&model.SendQueue{}).
		Where("user_id = ? AND dedup_key = ?", userID, dedupKey).
		Where("status IN ?", values).
		Count(&count).Error; err != nil {
		return false, errs.Wrap(err, "count duplicate send queue items")
	}
	return count > 0, nil
}

func (r *SendQueueRepository) Insert(ctx context.Context, item ports.SendQueueItem) (ports.SendQueueItem, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return ports.SendQueueItem{}, err
	}

	now := item.CreatedAt.UTC()
	if item.CreatedAt.IsZero() {
		now = time.Now().UTC()
	}
	status := item.Status
	if status == "" {
		status = ports.SendPending
	}

	row := model.SendQueue{
		UserID:      item.UserID,
		DedupKey:    item.DedupKey,
		Channel:     item.Channel,
		Scope:       item.Scope,
		Payload:     item.Payload,
		Status:      string(status),
		NextRetryAt: utcPtr(item.NextRetryAt),
		RetryCount:  item.RetryCount,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := db.Create(&row).Error; err != nil {
		return ports.SendQueueItem{}, errs.Wrap(err, "insert send queue item")
	}
	return mapSendQueue(row), nil
}

func (r *SendQueueRepository) ListReady(ctx context.Context, now time.Time, maxRetries int, limit int) ([]ports.SendQueueItem, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return nil, err
	}

	query := db.Model(&model.SendQueue{}).
		Where("status IN ?", []string{string(ports.SendPending), string(ports.SendRetrying)}).
		Where("next_retry_at IS NULL OR next_retry_at <= ?", now.UTC()).
		Where("retry_count <= ?", maxRetries).
		Order("id asc")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var rows []model.SendQueue
	if err := query.Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query ready send queue items")
	}

	items := make([]ports.SendQueueItem, 0, len(rows))
	for _, row := range rows {
		items = append(items, mapSendQueue(row))
	}
	return items, nil
}

// FailExceeded moves open items whose retry count is above maxRetries to
// failed. Such rows are left behind when the retry ceiling is lowered.
func (r *SendQueueRepository) FailExceeded(ctx context.Context, maxRetries int, lastError string) (int64, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return 0, err
	}

	result := db.Model(&model.SendQueue{}).
		Where("status IN ?", []string{string(ports.SendPending), string(ports.SendRetrying)}).
		Where("retry_count > ?", maxRetries).
		Updates(map[string]any{
			"status":        string(ports.SendFailed),
			"next_retry_at": nil,
			"last_error":    lastError,
			"updated_at":    time.Now().UTC(),
		})
	if result.Error != nil {
		return 0, errs.Wrap(result.Error, "fail exceeded send queue items")
	}
	return result.RowsAffected, nil
}

func (r *SendQueueRepository) MarkSent(ctx context.Context, id uint64, sentAt time.Time) error {
	at := sentAt.UTC()
	return r.update(ctx, id, "mark send queue item sent", map[string]any{
		"status":        string(ports.SendSent),
		"sent_at":       at,
		"next_retry_at": nil,
		"updated_at":    at,
	})
}

func (r *SendQueueRepository) MarkRetry(ctx context.Context, id uint64, retryCount int, nextRetryAt time.Time, lastError string) error {
	return r.update(ctx, id, "mark send queue item retrying", map[string]any{
		"status":        string(ports.SendRetrying),
		"retry_count":   retryCount,
		"next_retry_at": nextRetryAt.UTC(),
		"last_error":    lastError,
		"updated_at":    time.Now().UTC(),
	})
}

func (r *SendQueueRepository) MarkFailed(ctx context.Context, id uint64, retryCount int, lastError string) error {
	return r.update(ctx, id, "mark send queue item failed", map[string]any{
		"status":        string(ports.SendFailed),
		"retry_count":   retryCount,
		"next_retry_at": nil,
		"last_error":    lastError,
		"updated_at":    time.Now().UTC(),
	})
}

func (r *SendQueueRepository) CountByStatus(ctx context.Context) (map[ports.SendStatus]int64, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return nil, err
	}

	var rows []struct {
		Status string
		Total  int64
	}
	if err := db.Model(&model.SendQueue{}).
		Select("status, count(*) AS total").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "count send queue by status")
	}

	out := map[ports.SendStatus]int64{
		ports.SendPending:  0,
		ports.SendRetrying: 0,
		ports.SendSent:     0,
		ports.SendFailed:   0,
	}
	for _, row := range rows {
		out[ports.SendStatus(row.Status)] = row.Total
	}
	return out, nil
}

func (r *SendQueueRepository) update(ctx context.Context, id uint64, action string, values map[string]any) error {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return err
	}

	result := db.Model(&model.SendQueue{}).Where("id = ?", id).Updates(values)
	if result.Error != nil {
		return errs.Wrap(result.Error, action)
	}
	if result.RowsAffected == 0 {
		return errs.Wrapf(gorm.ErrRecordNotFound, "%s %d", action, id)
	}
	return nil
}

func mapSendQueue(row model.SendQueue) ports.SendQueueItem {
	return ports.SendQueueItem{
		ID:          row.ID,
		UserID:      row.UserID,
		Channel:     row.Channel,
		Scope:       row.Scope,
		Payload:     []byte(row.Payload),
		Status:      ports.SendStatus(row.Status),
		RetryCount:  row.RetryCount,
		NextRetryAt: row.NextRetryAt,
		DedupKey:    row.DedupKey,
		LastError:   row.LastError,
		SentAt:      row.SentAt,
		CreatedAt:   row.CreatedAt,
	}
}

func utcPtr(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	utc := value.UTC()
	return &utc
}
