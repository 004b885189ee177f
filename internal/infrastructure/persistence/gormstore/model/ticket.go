package model

import "time"

type Ticket struct {
	ID          string     `gorm:"column:id;primaryKey;size:64"`
	EventID     string     `gorm:"column:event_id;size:64;not null;index"`
	Title       string     `gorm:"column:title;type:text;not null"`
	Price       float64    `gorm:"column:price;not null;default:0"`
	TotalTicket int        `gorm:"column:total_ticket;not null;default:0"`
	LeftTicket  int        `gorm:"column:left_ticket;not null;default:0"`
	Status      string     `gorm:"column:status;size:16;not null"`
	SessionTime *time.Time `gorm:"column:session_time"`
	City        string     `gorm:"column:city;size:32;not null;default:''"`
	ValidFrom   string     `gorm:"column:valid_from;size:64;not null;default:''"`
	CreatedAt   time.Time  `gorm:"column:created_at;not null;autoCreateTime"`
	UpdatedAt   time.Time  `gorm:"column:updated_at;not null;autoUpdateTime"`
}

func (Ticket) TableName() string {
	return "ticket"
}
