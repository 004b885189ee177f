package model

// All lists every table in migration order.
func All() []any {
	return []any{
		&Event{},
		&Ticket{},
		&CastMember{},
		&TicketCastAssociation{},
		&TicketUpdateLog{},
		&SendQueue{},
		&ShowCache{},
		&Subscription{},
		&SubscriptionTarget{},
		&SubscriptionOption{},
		&CacheKV{},
	}
}
