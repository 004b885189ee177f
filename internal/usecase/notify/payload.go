package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"seatwatch/internal/domain/inventory"
	"seatwatch/internal/errs"
)

// ChangeSummary is the part of a change log entry carried in a queued
// message.
type ChangeSummary struct {
	ChangeID    uint64     `json:"change_id"`
	TicketID    string     `json:"ticket_id"`
	EventID     string     `json:"event_id"`
	EventTitle  string     `json:"event_title"`
	Type        string     `json:"type"`
	Message     string     `json:"message"`
	SessionTime *time.Time `json:"session_time,omitempty"`
	City        string     `json:"city,omitempty"`
	Price       float64    `json:"price"`
	Stock       int        `json:"stock"`
	Total       int        `json:"total"`
	Cast        []string   `json:"cast,omitempty"`
}

type payload struct {
	Changes []ChangeSummary `json:"changes"`
}

func Summarize(change inventory.ChangeLogEntry) ChangeSummary {
	return ChangeSummary{
		ChangeID:    change.ID,
		TicketID:    change.TicketID,
		EventID:     change.EventID,
		EventTitle:  change.EventTitle,
		Type:        string(change.Type),
		Message:     change.Message,
		SessionTime: change.SessionTime,
		City:        change.City,
		Price:       change.Price,
		Stock:       change.Stock,
		Total:       change.Total,
		Cast:        change.CastNames,
	}
}

func encodePayload(changes []inventory.ChangeLogEntry) ([]byte, error) {
	p := payload{Changes: make([]ChangeSummary, 0, len(changes))}
	for _, change := range changes {
		p.Changes = append(p.Changes, Summarize(change))
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, errs.Wrap(err, "encode queue payload")
	}
	return raw, nil
}

func decodePayload(raw []byte) ([]ChangeSummary, error) {
	var p payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, errs.Wrap(err, "decode queue payload")
	}
	return p.Changes, nil
}

// DedupKey identifies one notification batch: the first change's ticket
// and the hour it was queued in.
func DedupKey(primaryTicketID string, at time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return fmt.Sprintf("%s:%s", strings.TrimSpace(primaryTicketID), at.In(loc).Format("2006010215"))
}

// Render builds the message text: a header, at most maxLines summary lines
// and an overflow counter.
func Render(changes []ChangeSummary, maxLines int, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	if maxLines <= 0 {
		maxLines = len(changes)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Ticket updates (%d)", len(changes))
	for i, change := range changes {
		if i == maxLines {
			fmt.Fprintf(&b, "\n... and %d more", len(changes)-maxLines)
			break
		}
		b.WriteString("\n")
		b.WriteString(renderLine(change, loc))
	}
	return b.String()
}

func renderLine(change ChangeSummary, loc *time.Location) string {
	parts := []string{"[" + change.Type + "]", change.EventTitle}
	if change.SessionTime != nil {
		parts = append(parts, change.SessionTime.In(loc).Format("01-02 15:04"))
	}
	if change.City != "" {
		parts = append(parts, change.City)
	}
	parts = append(parts,
		fmt.Sprintf("¥%g", change.Price),
		fmt.Sprintf("%d/%d", change.Stock, change.Total),
		change.Message,
	)
	line := strings.Join(parts, " ")
	if len(change.Cast) > 0 {
		line += " | " + strings.Join(change.Cast, " ")
	}
	return line
}
