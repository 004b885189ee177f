package inventory

import (
	"fmt"
	"strings"
	"time"
)

type ChangeType string

const (
	ChangePending  ChangeType = "pending"
	ChangeNew      ChangeType = "new"
	ChangeAdd      ChangeType = "add"
	ChangeRestock  ChangeType = "restock"
	ChangeBack     ChangeType = "back"
	ChangeDecrease ChangeType = "decrease"
)

// ChangeTypes lists every classification in notification-urgency order.
func ChangeTypes() []ChangeType {
	return []ChangeType{ChangePending, ChangeNew, ChangeAdd, ChangeRestock, ChangeBack, ChangeDecrease}
}

func ParseChangeType(raw string) (ChangeType, error) {
	candidate := ChangeType(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range ChangeTypes() {
		if candidate == known {
			return known, nil
		}
	}
	return "", fmt.Errorf("unknown change type %q", raw)
}

// RequiredLevel is the minimum subscriber level that receives a change type.
func RequiredLevel(changeType ChangeType) int {
	switch changeType {
	case ChangeNew, ChangePending:
		return 1
	case ChangeRestock, ChangeAdd:
		return 2
	case ChangeDecrease:
		return 4
	case ChangeBack:
		return 5
	default:
		return MaxLevel + 1
	}
}

// MaxLevel is the highest notification level a subscriber can select.
const MaxLevel = 5

func Message(changeType ChangeType) string {
	switch changeType {
	case ChangePending:
		return "awaiting sale"
	case ChangeNew:
		return "now on sale"
	case ChangeAdd:
		return "capacity increased"
	case ChangeRestock:
		return "back in stock"
	case ChangeBack:
		return "more seats released"
	case ChangeDecrease:
		return "seats selling"
	default:
		return string(changeType)
	}
}

// TicketState is the part of a ticket the classifier compares.
type TicketState struct {
	Stock  int
	Total  int
	Status Status
}

// Classify returns the change a new observation represents relative to the
// previous one. prev is nil when the ticket is not known locally. The rules
// are evaluated in priority order and the first match wins.
func Classify(prev *TicketState, next TicketState) (ChangeType, bool) {
	if prev == nil {
		switch {
		case next.Status.IsPending():
			return ChangePending, true
		case next.Stock > 0:
			return ChangeNew, true
		default:
			return "", false
		}
	}

	switch {
	case prev.Status.IsPending() && !next.Status.IsPending():
		return ChangeNew, true
	case next.Total > prev.Total:
		return ChangeAdd, true
	case prev.Stock == 0 && next.Stock > 0:
		return ChangeRestock, true
	case next.Stock > prev.Stock:
		return ChangeBack, true
	case next.Stock < prev.Stock:
		return ChangeDecrease, true
	default:
		return "", false
	}
}

// ChangeLogEntry is one detected change as recorded in the append-only log.
type ChangeLogEntry struct {
	ID          uint64
	TicketID    string
	EventID     string
	EventTitle  string
	PlayID      string
	Type        ChangeType
	Message     string
	SessionTime *time.Time
	City        string
	Price       float64
	Stock       int
	Total       int
	CastNames   []string
	CreatedAt   time.Time
}
