package model

import "time"

type Event struct {
	ID           string     `gorm:"column:id;primaryKey;size:64"`
	Title        string     `gorm:"column:title;type:text;not null"`
	Venue        string     `gorm:"column:venue;type:text;not null"`
	City         string     `gorm:"column:city;size:32;not null;default:''"`
	MetadataID   *string    `gorm:"column:metadata_id;size:64"`
	LastSyncedAt *time.Time `gorm:"column:last_synced_at"`
	CreatedAt    time.Time  `gorm:"column:created_at;not null;autoCreateTime"`
	UpdatedAt    time.Time  `gorm:"column:updated_at;not null;autoUpdateTime"`
}

func (Event) TableName() string {
	return "event"
}
