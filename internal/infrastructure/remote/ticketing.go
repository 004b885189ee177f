package remote

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"seatwatch/internal/bootstrap/config"
	"seatwatch/internal/errs"
	"seatwatch/internal/ports"
)

// TicketingClient reads the primary ticketing feed.
type TicketingClient struct {
	client *client
	loc    *time.Location
}

var _ ports.TicketingSource = (*TicketingClient)(nil)

func NewTicketingClient(ctx context.Context, cfg config.RemoteConfig, loc *time.Location, metrics ports.PipelineMetrics) (*TicketingClient, error) {
	c, err := newClient(ctx, "ticketing", cfg, metrics)
	if err != nil {
		return nil, err
	}
	if loc == nil {
		loc = time.UTC
	}
	return &TicketingClient{client: c, loc: loc}, nil
}

type eventIndexResponse struct {
	Events *[]struct {
		ID       flexString `json:"id"`
		Title    string     `json:"title"`
		Location string     `json:"location"`
		City     string     `json:"city"`
	} `json:"events"`
}

func (t *TicketingClient) ListEvents(ctx context.Context, limit int) ([]ports.EventSummary, error) {
	query := url.Values{}
	query.Set("filter", "recommendation")
	query.Set("limit", strconv.Itoa(limit))
	query.Set("page", "0")

	body, err := t.client.get(ctx, "events", query)
	if err != nil {
		return nil, errs.Wrap(err, "fetch event index")
	}

	var payload eventIndexResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: decode event index: %v", ErrBadResponse, err)
	}
	if payload.Events == nil {
		return nil, fmt.Errorf("%w: event index has no events field", ErrBadResponse)
	}

	out := make([]ports.EventSummary, 0, len(*payload.Events))
	for _, event := range *payload.Events {
		id := strings.TrimSpace(string(event.ID))
		if id == "" {
			continue
		}
		out = append(out, ports.EventSummary{
			ID:    id,
			Title: strings.TrimSpace(event.Title),
			Venue: strings.TrimSpace(event.Location),
			City:  strings.TrimSpace(event.City),
		})
	}
	return out, nil
}

type eventDetailsResponse struct {
	BasicInfo *struct {
		ID         flexString `json:"id"`
		Title      string     `json:"title"`
		Location   string     `json:"location"`
		MetadataID flexString `json:"metadata_id"`
	} `json:"basic_info"`
	TicketDetails *[]struct {
		ID          flexString `json:"id"`
		Title       string     `json:"title"`
		TicketPrice flexFloat  `json:"ticket_price"`
		TotalTicket flexInt    `json:"total_ticket"`
		LeftTicket  flexInt    `json:"left_ticket_count"`
		Status      string     `json:"status"`
		StartTime   string     `json:"start_time"`
		ValidFrom   string     `json:"valid_from"`
		City        string     `json:"city"`
	} `json:"ticket_details"`
}

// EventDetails fetches one event. A ticket whose start time cannot be
// parsed is kept with a nil session time. A payload without the
// ticket_details key is rejected; an empty list is a valid sold-off event.
func (t *TicketingClient) EventDetails(ctx context.Context, eventID string) (ports.EventDetails, error) {
	body, err := t.client.get(ctx, "event/"+url.PathEscape(eventID)+"/details", nil)
	if err != nil {
		return ports.EventDetails{}, errs.Wrapf(err, "fetch event %s details", eventID)
	}

	var payload eventDetailsResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return ports.EventDetails{}, fmt.Errorf("%w: decode event %s details: %v", ErrBadResponse, eventID, err)
	}
	if payload.BasicInfo == nil {
		return ports.EventDetails{}, fmt.Errorf("%w: event %s details have no basic_info", ErrBadResponse, eventID)
	}
	if payload.TicketDetails == nil {
		return ports.EventDetails{}, fmt.Errorf("%w: event %s details have no ticket_details", ErrBadResponse, eventID)
	}

	id := strings.TrimSpace(string(payload.BasicInfo.ID))
	if id == "" {
		id = eventID
	}
	details := ports.EventDetails{
		Event: ports.EventInfo{
			ID:         id,
			Title:      strings.TrimSpace(payload.BasicInfo.Title),
			Venue:      strings.TrimSpace(payload.BasicInfo.Location),
			MetadataID: strings.TrimSpace(string(payload.BasicInfo.MetadataID)),
		},
		Tickets: make([]ports.TicketPayload, 0, len(*payload.TicketDetails)),
	}

	for _, ticket := range *payload.TicketDetails {
		sessionTime, _ := parseSessionTime(ticket.StartTime, t.loc)
		details.Tickets = append(details.Tickets, ports.TicketPayload{
			ID:          strings.TrimSpace(string(ticket.ID)),
			Title:       strings.TrimSpace(ticket.Title),
			Price:       float64(ticket.TicketPrice),
			Total:       int(ticket.TotalTicket),
			Stock:       int(ticket.LeftTicket),
			Status:      ticket.Status,
			SessionTime: sessionTime,
			ValidFrom:   strings.TrimSpace(ticket.ValidFrom),
			City:        strings.TrimSpace(ticket.City),
		})
	}
	return details, nil
}
