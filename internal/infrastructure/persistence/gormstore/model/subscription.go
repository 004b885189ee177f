package model

import (
	"time"

	"gorm.io/datatypes"
)

type Subscription struct {
	ID        uint64    `gorm:"column:id;primaryKey;autoIncrement"`
	UserID    string    `gorm:"column:user_id;size:64;not null;uniqueIndex"`
	CreatedAt time.Time `gorm:"column:created_at;not null;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null;autoUpdateTime"`
}

func (Subscription) TableName() string {
	return "subscription"
}

type SubscriptionTarget struct {
	ID             uint64                      `gorm:"column:id;primaryKey;autoIncrement"`
	SubscriptionID uint64                      `gorm:"column:subscription_id;not null;index"`
	Kind           string                      `gorm:"column:kind;size:16;not null"`
	TargetID       string                      `gorm:"column:target_id;size:64;not null;default:''"`
	Name           string                      `gorm:"column:name;size:128;not null;default:''"`
	CityFilter     string                      `gorm:"column:city_filter;size:32;not null;default:''"`
	Level          *int                        `gorm:"column:level"`
	IncludeEvents  datatypes.JSONSlice[string] `gorm:"column:include_events"`
	ExcludeEvents  datatypes.JSONSlice[string] `gorm:"column:exclude_events"`
}

func (SubscriptionTarget) TableName() string {
	return "subscription_target"
}

type SubscriptionOption struct {
	SubscriptionID    uint64 `gorm:"column:subscription_id;primaryKey;autoIncrement:false"`
	NotificationLevel int    `gorm:"column:notification_level;not null;default:0"`
	Muted             bool   `gorm:"column:muted;not null;default:false"`
	SilentHours       string `gorm:"column:silent_hours;size:16;not null;default:''"`
	AllowBroadcast    bool   `gorm:"column:allow_broadcast;not null;default:false"`
}

func (SubscriptionOption) TableName() string {
	return "subscription_option"
}
