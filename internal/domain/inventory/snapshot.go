package inventory

import (
	"fmt"
	"strings"
)

// KnownTicket is what the local store already holds for one ticket.
type KnownTicket struct {
	TicketState
	City      string
	CastNames []string
}

func (k KnownTicket) HasCast() bool {
	return len(k.CastNames) > 0
}

// Snapshot is the locally known state of one event, read before any
// network I/O for that event.
type Snapshot struct {
	EventID string
	Exists  bool
	Tickets map[string]KnownTicket
}

func EmptySnapshot(eventID string) Snapshot {
	return Snapshot{EventID: eventID, Tickets: map[string]KnownTicket{}}
}

// Previous returns the stored state of ticketID, or nil when it is new.
func (s Snapshot) Previous(ticketID string) *TicketState {
	known, ok := s.Tickets[ticketID]
	if !ok {
		return nil
	}
	state := known.TicketState
	return &state
}

func (s Snapshot) Known(ticketID string) (KnownTicket, bool) {
	known, ok := s.Tickets[ticketID]
	return known, ok
}

// ValidateTicket rejects payload rows that cannot be stored or classified.
func ValidateTicket(id string, stock int, total int) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: empty ticket id", ErrMalformedTicket)
	}
	if stock < 0 {
		return fmt.Errorf("%w: ticket %s has negative stock %d", ErrMalformedTicket, id, stock)
	}
	if total < 0 {
		return fmt.Errorf("%w: ticket %s has negative total %d", ErrMalformedTicket, id, total)
	}
	return nil
}
