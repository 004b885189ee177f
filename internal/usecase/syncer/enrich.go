package syncer

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"seatwatch/internal/bootstrap/logging"
	"seatwatch/internal/domain/inventory"
	domainmetadata "seatwatch/internal/domain/metadata"
	"seatwatch/internal/errs"
	"seatwatch/internal/ports"
)

type TicketEnrichment struct {
	City string
	// Cast is empty when no session matched. Tickets with stored cast get
	// their credits again so that ranks follow the current role sequence.
	Cast []domainmetadata.RankedCredit
}

// CastNames lists artists in display order.
func (t TicketEnrichment) CastNames() []string {
	ordered := make([]domainmetadata.RankedCredit, len(t.Cast))
	copy(ordered, t.Cast)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Rank < ordered[j].Rank
	})
	names := make([]string, 0, len(ordered))
	seen := make(map[string]struct{}, len(ordered))
	for _, credit := range ordered {
		if _, ok := seen[credit.Artist]; ok {
			continue
		}
		seen[credit.Artist] = struct{}{}
		names = append(names, credit.Artist)
	}
	return names
}

type EnrichmentResult struct {
	EventID  string
	ShowName string
	CityHint string
	Tickets  map[string]TicketEnrichment
	// FetchedDay is set when the metadata feed was queried for this event.
	FetchedDay string
}

// Enrich resolves city and cast for the tickets of one event. It only
// reads the cached metadata index and at most one metadata feed day. A
// connectivity failure on the day lookup fails the event; other lookup
// errors leave the cached index in place.
func (s *Service) Enrich(ctx context.Context, eventID string, details ports.EventDetails, snapshot inventory.Snapshot) (EnrichmentResult, error) {
	if ctx == nil {
		return EnrichmentResult{}, errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return EnrichmentResult{}, errs.Wrap(err, "check context")
	}

	logCtx := logging.WithAttrs(logging.Component(ctx, "usecase.syncer"), slog.String("event_id", eventID))

	result := EnrichmentResult{
		EventID:  eventID,
		ShowName: domainmetadata.ShowName(details.Event.Title),
		CityHint: eventCityHint(details.Event),
		Tickets:  make(map[string]TicketEnrichment, len(details.Tickets)),
	}

	index := domainmetadata.EmptyIndex()
	if s.metadata != nil {
		index = s.metadata.Snapshot()
	}

	if day, ok := s.firstSessionDay(details.Tickets, snapshot); ok && result.ShowName != "" && s.metadata != nil && !index.HasMusicalOn(result.ShowName, day) {
		result.FetchedDay = day.Format(time.DateOnly)
		extra, err := s.metadata.FetchDay(ctx, day)
		switch {
		case errs.IsConnectivity(err):
			return EnrichmentResult{}, errs.Wrapf(err, "fetch metadata day %s", result.FetchedDay)
		case err != nil:
			logging.Warn(logCtx, "metadata day lookup failed",
				slog.String("day", result.FetchedDay),
				slog.Any("err", errs.Loggable(err)),
			)
		default:
			index = index.Merge(extra)
		}
	}
	sequence := index.RoleSequence(result.ShowName)

	for _, ticket := range details.Tickets {
		if ticket.ID == "" {
			continue
		}
		known, _ := snapshot.Known(ticket.ID)

		enriched := TicketEnrichment{City: s.resolveCity(index, result, ticket, known)}
		if ticket.SessionTime != nil && result.ShowName != "" {
			if session, ok := index.Nearest(result.ShowName, ticket.SessionTime.In(s.cfg.Location), s.cfg.SessionTolerance, enriched.City); ok {
				enriched.Cast = domainmetadata.RankCast(session.Cast, sequence)
			}
		}
		result.Tickets[ticket.ID] = enriched
	}
	return result, nil
}

func (s *Service) resolveCity(index *domainmetadata.Index, result EnrichmentResult, ticket ports.TicketPayload, known inventory.KnownTicket) string {
	if city := domainmetadata.NormalizeCity(ticket.City); city != "" {
		return city
	}
	if known.City != "" {
		return known.City
	}
	if city := domainmetadata.ExtractCity(ticket.Title); city != "" {
		return city
	}
	if ticket.SessionTime != nil && result.ShowName != "" {
		if session, ok := index.Exact(result.ShowName, ticket.SessionTime.In(s.cfg.Location)); ok && session.City != "" {
			return session.City
		}
	}
	return result.CityHint
}

// firstSessionDay is the earliest session date among tickets that still
// need a metadata lookup.
func (s *Service) firstSessionDay(tickets []ports.TicketPayload, snapshot inventory.Snapshot) (time.Time, bool) {
	var first *time.Time
	for _, ticket := range tickets {
		if ticket.SessionTime == nil {
			continue
		}
		known, _ := snapshot.Known(ticket.ID)
		if known.HasCast() && known.City != "" {
			continue
		}
		if first == nil || ticket.SessionTime.Before(*first) {
			first = ticket.SessionTime
		}
	}
	if first == nil {
		return time.Time{}, false
	}
	local := first.In(s.cfg.Location)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.cfg.Location), true
}

func eventCityHint(event ports.EventInfo) string {
	if city := domainmetadata.ExtractCity(event.Venue); city != "" {
		return city
	}
	if city := domainmetadata.ExtractCity(event.Title); city != "" {
		return city
	}
	return domainmetadata.NormalizeCity(event.City)
}
