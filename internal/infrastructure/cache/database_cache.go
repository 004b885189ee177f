package cache

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"seatwatch/internal/errs"
	"seatwatch/internal/infrastructure/persistence/gormstore/model"
	"seatwatch/internal/ports"
)

// DatabaseCache stores cache entries in the cache_kv table of the main
// database. A zero ttl never expires.
type DatabaseCache struct {
	db    *gorm.DB
	clock ports.Clock
}

var _ ports.Cache = (*DatabaseCache)(nil)

func NewDatabaseCache(db *gorm.DB, clock ports.Clock) *DatabaseCache {
	if clock == nil {
		clock = ports.SystemClock{}
	}
	return &DatabaseCache{db: db, clock: clock}
}

func (c *DatabaseCache) Get(ctx context.Context, key string) (string, bool, error) {
	trimmedKey, err := checkKey(ctx, key)
	if err != nil {
		return "", false, err
	}

	var row model.CacheKV
	if err := c.db.WithContext(ctx).Where("cache_key = ?", trimmedKey).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", false, nil
		}
		return "", false, errs.Wrap(err, "query cache by key")
	}
	if row.ExpiresAt != nil && !c.clock.Now().Before(*row.ExpiresAt) {
		return "", false, nil
	}

	return row.Value, true, nil
}

func (c *DatabaseCache) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	trimmedKey, err := checkKey(ctx, key)
	if err != nil {
		return err
	}

	now := c.clock.Now().UTC()
	row := model.CacheKV{
		Key:       trimmedKey,
		Value:     value,
		UpdatedAt: now,
	}
	if ttl > 0 {
		expiresAt := now.Add(ttl)
		row.ExpiresAt = &expiresAt
	}

	if err := c.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "cache_key"}},
		DoUpdates: clause.Assignments(map[string]any{
			"value":      row.Value,
			"expires_at": row.ExpiresAt,
			"updated_at": row.UpdatedAt,
		}),
	}).Create(&row).Error; err != nil {
		return errs.Wrap(err, "upsert cache key")
	}

	return nil
}

func (c *DatabaseCache) Delete(ctx context.Context, key string) error {
	trimmedKey, err := checkKey(ctx, key)
	if err != nil {
		return err
	}

	if err := c.db.WithContext(ctx).Where("cache_key = ?", trimmedKey).Delete(&model.CacheKV{}).Error; err != nil {
		return errs.Wrap(err, "delete cache key")
	}
	return nil
}

// Purge removes expired entries and returns how many were dropped.
func (c *DatabaseCache) Purge(ctx context.Context) (int64, error) {
	if ctx == nil {
		return 0, errors.New("context is required")
	}
	result := c.db.WithContext(ctx).
		Where("expires_at IS NOT NULL AND expires_at <= ?", c.clock.Now().UTC()).
		Delete(&model.CacheKV{})
	if result.Error != nil {
		return 0, errs.Wrap(result.Error, "purge expired cache keys")
	}
	return result.RowsAffected, nil
}

func checkKey(ctx context.Context, key string) (string, error) {
	if ctx == nil {
		return "", errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return "", errs.Wrap(err, "check context")
	}

	trimmedKey := strings.TrimSpace(key)
	if trimmedKey == "" {
		return "", errors.New("key is required")
	}
	return trimmedKey, nil
}
