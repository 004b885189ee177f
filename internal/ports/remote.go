package ports

import (
	"context"
	"time"

	"seatwatch/internal/domain/metadata"
)

// EventSummary is one row of the ticketing feed's event index.
type EventSummary struct {
	ID    string
	Title string
	Venue string
	City  string
}

// EventInfo is the basic block of an event detail page. City is only set
// when the event index advertised one.
type EventInfo struct {
	ID         string
	Title      string
	Venue      string
	City       string
	MetadataID string
}

// TicketPayload is one ticket as advertised upstream. Status is the raw
// upstream value; SessionTime is nil when the feed omits it.
type TicketPayload struct {
	ID          string
	Title       string
	Price       float64
	Total       int
	Stock       int
	Status      string
	SessionTime *time.Time
	ValidFrom   string
	City        string
}

type EventDetails struct {
	Event   EventInfo
	Tickets []TicketPayload
}

// TicketingSource is the read side of the primary ticketing platform.
type TicketingSource interface {
	ListEvents(ctx context.Context, limit int) ([]EventSummary, error)
	EventDetails(ctx context.Context, eventID string) (EventDetails, error)
}

// MetadataSource is the read side of the show/cast metadata platform.
type MetadataSource interface {
	SearchDay(ctx context.Context, day time.Time) ([]metadata.Session, error)
}

// MetadataIndex serves cached show metadata to enrichment. Snapshot never
// blocks; FetchDay reaches the feed and keeps the result in memory only.
type MetadataIndex interface {
	Snapshot() *metadata.Index
	FetchDay(ctx context.Context, day time.Time) (*metadata.Index, error)
}
