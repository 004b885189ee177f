package model

type CastMember struct {
	ID   uint64 `gorm:"column:id;primaryKey;autoIncrement"`
	Name string `gorm:"column:name;size:128;not null;uniqueIndex"`
}

func (CastMember) TableName() string {
	return "cast_member"
}

type TicketCastAssociation struct {
	TicketID string `gorm:"column:ticket_id;primaryKey;size:64"`
	CastID   uint64 `gorm:"column:cast_id;primaryKey;autoIncrement:false"`
	Role     string `gorm:"column:role;primaryKey;size:128"`
	Rank     int    `gorm:"column:rank;not null;default:999"`
}

func (TicketCastAssociation) TableName() string {
	return "ticket_cast_association"
}
