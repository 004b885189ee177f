package repository

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"seatwatch/internal/domain/metadata"
	"seatwatch/internal/errs"
	"seatwatch/internal/infrastructure/persistence/gormstore/model"
	"seatwatch/internal/ports"
)

type ShowCacheRepository struct {
	db *gorm.DB
}

var _ ports.ShowCacheRepository = (*ShowCacheRepository)(nil)

func NewShowCacheRepository(db *gorm.DB) *ShowCacheRepository {
	return &ShowCacheRepository{db: db}
}

func (r *ShowCacheRepository) UpsertSessions(ctx context.Context, sessions []metadata.Session) (int, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	rows := make([]model.ShowCache, 0, len(sessions))
	for _, session := range sessions {
		musical := strings.TrimSpace(session.Musical)
		if musical == "" || session.Start.IsZero() {
			continue
		}
		cast := make([]model.CastCredit, 0, len(session.Cast))
		for _, credit := range session.Cast {
			cast = append(cast, model.CastCredit{Artist: credit.Artist, Role: credit.Role})
		}
		rows = append(rows, model.ShowCache{
			Date:        session.Slot(),
			MusicalName: musical,
			City:        session.City,
			CastStr:     cast,
			Theatre:     session.Theatre,
			UpdatedAt:   now,
		})
	}
	if len(rows) == 0 {
		return 0, nil
	}

	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "date"}, {Name: "musical_name"}},
		DoUpdates: clause.AssignmentColumns([]string{"city", "cast_str", "theatre", "updated_at"}),
	}).CreateInBatches(&rows, 200).Error; err != nil {
		return 0, errs.Wrap(err, "upsert show cache")
	}
	return len(rows), nil
}

func (r *ShowCacheRepository) ListSessionsSince(ctx context.Context, from time.Time, loc *time.Location) ([]metadata.Session, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return nil, err
	}
	if loc == nil {
		loc = time.UTC
	}

	var rows []model.ShowCache
	if err := db.Where("date >= ?", from.In(loc).Format(metadata.SlotLayout)).
		Order("date asc").
		Order("musical_name asc").
		Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query show cache")
	}

	sessions := make([]metadata.Session, 0, len(rows))
	for _, row := range rows {
		start, err := time.ParseInLocation(metadata.SlotLayout, row.Date, loc)
		if err != nil {
			continue
		}
		cast := make([]metadata.Credit, 0, len(row.CastStr))
		for _, credit := range row.CastStr {
			cast = append(cast, metadata.Credit{Artist: credit.Artist, Role: credit.Role})
		}
		sessions = append(sessions, metadata.Session{
			Start:   start,
			Musical: row.MusicalName,
			City:    row.City,
			Theatre: row.Theatre,
			Cast:    cast,
		})
	}
	return sessions, nil
}
