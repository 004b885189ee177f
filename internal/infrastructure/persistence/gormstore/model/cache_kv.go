package model

import "time"

type CacheKV struct {
	Key       string     `gorm:"column:cache_key;primaryKey;size:191"`
	Value     string     `gorm:"column:value;not null"`
	ExpiresAt *time.Time `gorm:"column:expires_at;index"`
	UpdatedAt time.Time  `gorm:"column:updated_at;not null"`
}

func (CacheKV) TableName() string {
	return "cache_kv"
}
