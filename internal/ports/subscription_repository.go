package ports

import (
	"context"

	"seatwatch/internal/domain/subscription"
)

type SubscriptionReadRepository interface {
	ListSubscriptions(ctx context.Context) ([]subscription.Subscription, error)
}

type SubscriptionRepository interface {
	SubscriptionReadRepository
	// ReplaceSubscription overwrites the user's targets and options.
	ReplaceSubscription(ctx context.Context, sub subscription.Subscription) error
}
