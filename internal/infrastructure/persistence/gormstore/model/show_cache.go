package model

import (
	"time"

	"gorm.io/datatypes"
)

type CastCredit struct {
	Artist string `json:"artist"`
	Role   string `json:"role"`
}

// ShowCache holds one metadata-feed session. Date is the wall clock
// "YYYY-MM-DD HH:MM".
type ShowCache struct {
	ID          uint64                          `gorm:"column:id;primaryKey;autoIncrement"`
	Date        string                          `gorm:"column:date;size:16;not null;uniqueIndex:uq_saoju_show_slot,priority:1"`
	MusicalName string                          `gorm:"column:musical_name;size:128;not null;uniqueIndex:uq_saoju_show_slot,priority:2"`
	City        string                          `gorm:"column:city;size:32;not null;default:''"`
	CastStr     datatypes.JSONSlice[CastCredit] `gorm:"column:cast_str"`
	Theatre     string                          `gorm:"column:theatre;type:text;not null"`
	UpdatedAt   time.Time                       `gorm:"column:updated_at;not null"`
}

func (ShowCache) TableName() string {
	return "saoju_show_cache"
}
