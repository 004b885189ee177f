package model

import (
	"time"

	"gorm.io/datatypes"
)

// TicketUpdateLog is append-only.
type TicketUpdateLog struct {
	ID          uint64                      `gorm:"column:id;primaryKey;autoIncrement"`
	TicketID    string                      `gorm:"column:ticket_id;size:64;not null;index"`
	EventID     string                      `gorm:"column:event_id;size:64;not null;index"`
	EventTitle  string                      `gorm:"column:event_title;type:text;not null"`
	PlayID      string                      `gorm:"column:play_id;size:64;not null;default:''"`
	ChangeType  string                      `gorm:"column:change_type;size:16;not null;index"`
	Message     string                      `gorm:"column:message;type:text;not null"`
	SessionTime *time.Time                  `gorm:"column:session_time"`
	City        string                      `gorm:"column:city;size:32;not null;default:''"`
	Price       float64                     `gorm:"column:price;not null;default:0"`
	Stock       int                         `gorm:"column:stock;not null;default:0"`
	Total       int                         `gorm:"column:total;not null;default:0"`
	CastNames   datatypes.JSONSlice[string] `gorm:"column:cast_names"`
	CreatedAt   time.Time                   `gorm:"column:created_at;not null;index"`
}

func (TicketUpdateLog) TableName() string {
	return "ticket_update_log"
}
