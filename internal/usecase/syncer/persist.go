package syncer

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"seatwatch/internal/bootstrap/logging"
	"seatwatch/internal/domain/inventory"
	"seatwatch/internal/errs"
	"seatwatch/internal/ports"
)

// Persist writes one event's payload in a single transaction under the
// write lock and returns the change log rows it appended.
func (s *Service) Persist(ctx context.Context, eventID string, details ports.EventDetails, enrichment EnrichmentResult, snapshot inventory.Snapshot) ([]inventory.ChangeLogEntry, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, errs.Wrap(err, "check context")
	}
	if strings.TrimSpace(eventID) == "" {
		return nil, inventory.ErrEventIDRequired
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	logCtx := logging.WithAttrs(logging.Component(ctx, "usecase.syncer"), slog.String("event_id", eventID))
	now := s.clock.Now()

	var saved []inventory.ChangeLogEntry
	var updated int
	var removed []string
	err := s.uow.WithTx(ctx, func(txCtx context.Context) error {
		if err := s.repo.UpsertEvent(txCtx, ports.EventRecord{
			ID:           eventID,
			Title:        details.Event.Title,
			Venue:        details.Event.Venue,
			City:         enrichment.CityHint,
			MetadataID:   details.Event.MetadataID,
			LastSyncedAt: now,
		}); err != nil {
			return err
		}

		keep := make([]string, 0, len(details.Tickets))
		seen := make(map[string]struct{}, len(details.Tickets))
		entries := make([]inventory.ChangeLogEntry, 0)

		for _, payload := range details.Tickets {
			id := strings.TrimSpace(payload.ID)
			if id != "" {
				if _, dup := seen[id]; dup {
					logging.Warn(logCtx, "duplicate ticket in payload", slog.String("ticket_id", id))
					continue
				}
				seen[id] = struct{}{}
				// A known id stays even when its row is malformed this round.
				keep = append(keep, id)
			}

			status, err := validatePayload(payload)
			if err != nil {
				logging.Warn(logCtx, "skip malformed ticket",
					slog.String("ticket_id", id),
					slog.Any("err", errs.Loggable(err)),
				)
				continue
			}

			enriched := enrichment.Tickets[id]
			changed, err := s.repo.SaveTicket(txCtx, ports.TicketRecord{
				ID:          id,
				EventID:     eventID,
				Title:       payload.Title,
				Price:       payload.Price,
				Total:       payload.Total,
				Stock:       payload.Stock,
				Status:      status,
				SessionTime: payload.SessionTime,
				City:        enriched.City,
				ValidFrom:   payload.ValidFrom,
			})
			if err != nil {
				return err
			}
			if changed {
				updated++
			}

			for _, credit := range enriched.Cast {
				if err := s.repo.AssignCast(txCtx, ports.CastAssignment{
					TicketID:      id,
					Artist:        credit.Artist,
					Role:          credit.Role,
					Rank:          credit.Rank,
					Authoritative: credit.Authoritative,
				}); err != nil {
					return err
				}
			}

			changeType, ok := inventory.Classify(snapshot.Previous(id), inventory.TicketState{
				Stock:  payload.Stock,
				Total:  payload.Total,
				Status: status,
			})
			if !ok {
				continue
			}

			castNames := enriched.CastNames()
			if known, found := snapshot.Known(id); found && known.HasCast() {
				castNames = known.CastNames
			}
			entries = append(entries, inventory.ChangeLogEntry{
				TicketID:    id,
				EventID:     eventID,
				EventTitle:  details.Event.Title,
				PlayID:      details.Event.MetadataID,
				Type:        changeType,
				Message:     inventory.Message(changeType),
				SessionTime: payload.SessionTime,
				City:        enriched.City,
				Price:       payload.Price,
				Stock:       payload.Stock,
				Total:       payload.Total,
				CastNames:   castNames,
				CreatedAt:   now,
			})
		}

		var err error
		removed, err = s.repo.DeleteTicketsExcept(txCtx, eventID, keep)
		if err != nil {
			return err
		}

		saved, err = s.repo.AppendChangeLog(txCtx, entries)
		return err
	})
	if err != nil {
		return nil, errs.Wrapf(err, "persist event %s", eventID)
	}

	if len(removed) > 0 || len(saved) > 0 || updated > 0 {
		logging.Info(logCtx, "event persisted",
			slog.Int("tickets_written", updated),
			slog.Int("tickets_removed", len(removed)),
			slog.Int("changes", len(saved)),
		)
	}
	return saved, nil
}

func validatePayload(payload ports.TicketPayload) (inventory.Status, error) {
	if err := inventory.ValidateTicket(payload.ID, payload.Stock, payload.Total); err != nil {
		return "", err
	}
	return inventory.NormalizeStatus(payload.Status)
}
