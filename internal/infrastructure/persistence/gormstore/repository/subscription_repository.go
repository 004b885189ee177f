package repository

import (
	"context"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"seatwatch/internal/domain/subscription"
	"seatwatch/internal/errs"
	"seatwatch/internal/infrastructure/persistence/gormstore/model"
	"seatwatch/internal/ports"
)

type SubscriptionRepository struct {
	db *gorm.DB
}

var _ ports.SubscriptionRepository = (*SubscriptionRepository)(nil)

func NewSubscriptionRepository(db *gorm.DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

// ListSubscriptions returns every subscriber ordered by user id. Targets
// with an unknown kind are dropped.
func (r *SubscriptionRepository) ListSubscriptions(ctx context.Context) ([]subscription.Subscription, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return nil, err
	}

	var subs []model.Subscription
	if err := db.Order("user_id asc").Find(&subs).Error; err != nil {
		return nil, errs.Wrap(err, "query subscriptions")
	}
	if len(subs) == 0 {
		return nil, nil
	}

	ids := make([]uint64, 0, len(subs))
	for _, sub := range subs {
		ids = append(ids, sub.ID)
	}

	var targets []model.SubscriptionTarget
	if err := db.Where("subscription_id IN ?", ids).Order("id asc").Find(&targets).Error; err != nil {
		return nil, errs.Wrap(err, "query subscription targets")
	}
	var options []model.SubscriptionOption
	if err := db.Where("subscription_id IN ?", ids).Find(&options).Error; err != nil {
		return nil, errs.Wrap(err, "query subscription options")
	}

	targetsBySub := make(map[uint64][]subscription.Target, len(subs))
	for _, row := range targets {
		kind, err := subscription.ParseTargetKind(row.Kind)
		if err != nil {
			continue
		}
		targetsBySub[row.SubscriptionID] = append(targetsBySub[row.SubscriptionID], subscription.Target{
			Kind:          kind,
			TargetID:      row.TargetID,
			Name:          row.Name,
			CityFilter:    row.CityFilter,
			Level:         row.Level,
			IncludeEvents: []string(row.IncludeEvents),
			ExcludeEvents: []string(row.ExcludeEvents),
		})
	}
	optionBySub := make(map[uint64]subscription.Option, len(options))
	for _, row := range options {
		optionBySub[row.SubscriptionID] = subscription.Option{
			NotificationLevel: row.NotificationLevel,
			Muted:             row.Muted,
			SilentHours:       row.SilentHours,
			AllowBroadcast:    row.AllowBroadcast,
		}
	}

	out := make([]subscription.Subscription, 0, len(subs))
	for _, sub := range subs {
		out = append(out, subscription.Subscription{
			UserID:  sub.UserID,
			Targets: targetsBySub[sub.ID],
			Option:  optionBySub[sub.ID],
		})
	}
	return out, nil
}

func (r *SubscriptionRepository) ReplaceSubscription(ctx context.Context, sub subscription.Subscription) error {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return err
	}
	if err := sub.Validate(); err != nil {
		return err
	}

	userID := strings.TrimSpace(sub.UserID)
	row := model.Subscription{UserID: userID}
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoNothing: true,
	}).Create(&row).Error; err != nil {
		return errs.Wrap(err, "create subscription")
	}
	row = model.Subscription{}
	if err := db.Where("user_id = ?", userID).Take(&row).Error; err != nil {
		return errs.Wrap(err, "reload subscription")
	}

	if err := db.Where("subscription_id = ?", row.ID).Delete(&model.SubscriptionTarget{}).Error; err != nil {
		return errs.Wrap(err, "delete subscription targets")
	}
	if len(sub.Targets) > 0 {
		targets := make([]model.SubscriptionTarget, 0, len(sub.Targets))
		for _, target := range sub.Targets {
			targets = append(targets, model.SubscriptionTarget{
				SubscriptionID: row.ID,
				Kind:           target.Kind.String(),
				TargetID:       strings.TrimSpace(target.TargetID),
				Name:           strings.TrimSpace(target.Name),
				CityFilter:     strings.TrimSpace(target.CityFilter),
				Level:          target.Level,
				IncludeEvents:  target.IncludeEvents,
				ExcludeEvents:  target.ExcludeEvents,
			})
		}
		if err := db.Create(&targets).Error; err != nil {
			return errs.Wrap(err, "create subscription targets")
		}
	}

	option := model.SubscriptionOption{
		SubscriptionID:    row.ID,
		NotificationLevel: sub.Option.NotificationLevel,
		Muted:             sub.Option.Muted,
		SilentHours:       strings.TrimSpace(sub.Option.SilentHours),
		AllowBroadcast:    sub.Option.AllowBroadcast,
	}
	if err := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "subscription_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"notification_level", "muted", "silent_hours", "allow_broadcast",
		}),
	}).Create(&option).Error; err != nil {
		return errs.Wrap(err, "upsert subscription option")
	}
	return nil
}
