package ports

import (
	"context"
	"errors"
	"time"

	"seatwatch/internal/domain/inventory"
)

var ErrEventNotFound = errors.New("event not found")

type EventRecord struct {
	ID           string
	Title        string
	Venue        string
	City         string
	MetadataID   string
	LastSyncedAt time.Time
}

type TicketRecord struct {
	ID          string
	EventID     string
	Title       string
	Price       float64
	Total       int
	Stock       int
	Status      inventory.Status
	SessionTime *time.Time
	City        string
	ValidFrom   string
}

// CastAssignment links one artist to a ticket in a role. Authoritative is
// false when Rank is a fallback and must not overwrite a stored rank.
type CastAssignment struct {
	TicketID      string
	Artist        string
	Role          string
	Rank          int
	Authoritative bool
}

type InventoryReadRepository interface {
	GetEvent(ctx context.Context, eventID string) (EventRecord, error)
	LoadSnapshot(ctx context.Context, eventID string) (inventory.Snapshot, error)
	ListTicketCast(ctx context.Context, ticketID string) ([]CastAssignment, error)
	ListRecentChanges(ctx context.Context, limit int) ([]inventory.ChangeLogEntry, error)
}

type InventoryRepository interface {
	InventoryReadRepository
	UpsertEvent(ctx context.Context, event EventRecord) error
	// SaveTicket writes the ticket only when a stored field differs and
	// reports whether a write happened.
	SaveTicket(ctx context.Context, ticket TicketRecord) (bool, error)
	// DeleteTicketsExcept removes the event's tickets whose ids are not in
	// keep, along with their cast links, and returns the removed ids.
	DeleteTicketsExcept(ctx context.Context, eventID string, keep []string) ([]string, error)
	AssignCast(ctx context.Context, assignment CastAssignment) error
	AppendChangeLog(ctx context.Context, entries []inventory.ChangeLogEntry) ([]inventory.ChangeLogEntry, error)
}
