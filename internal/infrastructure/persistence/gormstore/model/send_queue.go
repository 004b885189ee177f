package model

import (
	"time"

	"gorm.io/datatypes"
)

type SendQueue struct {
	ID          uint64         `gorm:"column:id;primaryKey;autoIncrement"`
	UserID      string         `gorm:"column:user_id;size:64;not null;index:idx_send_queue_user_dedup,priority:1"`
	DedupKey    string         `gorm:"column:dedup_key;size:128;not null;index:idx_send_queue_user_dedup,priority:2"`
	Channel     string         `gorm:"column:channel;size:16;not null"`
	Scope       string         `gorm:"column:scope;size:32;not null"`
	Payload     datatypes.JSON `gorm:"column:payload;not null"`
	Status      string         `gorm:"column:status;size:16;not null;index:idx_send_queue_ready,priority:1"`
	NextRetryAt *time.Time     `gorm:"column:next_retry_at;index:idx_send_queue_ready,priority:2"`
	RetryCount  int            `gorm:"column:retry_count;not null;default:0"`
	LastError   string         `gorm:"column:last_error;type:text"`
	SentAt      *time.Time     `gorm:"column:sent_at"`
	CreatedAt   time.Time      `gorm:"column:created_at;not null"`
	UpdatedAt   time.Time      `gorm:"column:updated_at;not null"`
}

func (SendQueue) TableName() string {
	return "send_queue"
}
