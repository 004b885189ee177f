package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"seatwatch/internal/domain/inventory"
	"seatwatch/internal/errs"
	"seatwatch/internal/infrastructure/persistence/gormstore/model"
	"seatwatch/internal/ports"
)

type InventoryRepository struct {
	db *gorm.DB
}

var _ ports.InventoryRepository = (*InventoryRepository)(nil)

func NewInventoryRepository(db *gorm.DB) *InventoryRepository {
	return &InventoryRepository{db: db}
}

func (r *InventoryRepository) GetEvent(ctx context.Context, eventID string) (ports.EventRecord, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return ports.EventRecord{}, err
	}

	var row model.Event
	if err := db.Where("id = ?", eventID).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.EventRecord{}, ports.ErrEventNotFound
		}
		return ports.EventRecord{}, errs.Wrap(err, "query event")
	}
	return mapEvent(row), nil
}

// LoadSnapshot reads the event, its tickets and their cast in one read
// transaction so a concurrent writer cannot split the view. It joins the
// transaction carried by ctx when there is one.
func (r *InventoryRepository) LoadSnapshot(ctx context.Context, eventID string) (inventory.Snapshot, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return inventory.Snapshot{}, err
	}
	if ports.TxFromContext(ctx) != nil {
		return loadSnapshot(db, eventID)
	}

	var snapshot inventory.Snapshot
	err = db.Transaction(func(tx *gorm.DB) error {
		var err error
		snapshot, err = loadSnapshot(tx, eventID)
		return err
	}, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return inventory.Snapshot{}, err
	}
	return snapshot, nil
}

func loadSnapshot(db *gorm.DB, eventID string) (inventory.Snapshot, error) {
	snapshot := inventory.EmptySnapshot(eventID)

	var exists int64
	if err := db.Model(&model.Event{}).Where("id = ?", eventID).Count(&exists).Error; err != nil {
		return inventory.Snapshot{}, errs.Wrap(err, "count event")
	}
	snapshot.Exists = exists > 0

	var tickets []model.Ticket
	if err := db.Where("event_id = ?", eventID).Order("id asc").Find(&tickets).Error; err != nil {
		return inventory.Snapshot{}, errs.Wrap(err, "query event tickets")
	}
	if len(tickets) == 0 {
		return snapshot, nil
	}

	ticketIDs := make([]string, 0, len(tickets))
	for _, ticket := range tickets {
		ticketIDs = append(ticketIDs, ticket.ID)
	}
	castByTicket, err := loadCastNames(db, ticketIDs)
	if err != nil {
		return inventory.Snapshot{}, err
	}

	for _, ticket := range tickets {
		snapshot.Tickets[ticket.ID] = inventory.KnownTicket{
			TicketState: inventory.TicketState{
				Stock:  ticket.LeftTicket,
				Total:  ticket.TotalTicket,
				Status: inventory.Status(ticket.Status),
			},
			City:      ticket.City,
			CastNames: castByTicket[ticket.ID],
		}
	}
	return snapshot, nil
}

type castRow struct {
	TicketID string
	Name     string
	Role     string
	Rank     int
}

func queryCastRows(db *gorm.DB, ticketIDs []string) ([]castRow, error) {
	var rows []castRow
	err := db.Table(model.TicketCastAssociation{}.TableName()+" AS a").
		Select("a.ticket_id AS ticket_id, c.name AS name, a.role AS role, a.`rank` AS `rank`").
		Joins("JOIN "+model.CastMember{}.TableName()+" AS c ON c.id = a.cast_id").
		Where("a.ticket_id IN ?", ticketIDs).
		Order("a.ticket_id asc").
		Order("a.`rank` asc").
		Order("c.name asc").
		Scan(&rows).Error
	if err != nil {
		return nil, errs.Wrap(err, "query ticket cast")
	}
	return rows, nil
}

func loadCastNames(db *gorm.DB, ticketIDs []string) (map[string][]string, error) {
	rows, err := queryCastRows(db, ticketIDs)
	if err != nil {
		return nil, err
	}

	out := make(map[string][]string, len(ticketIDs))
	for _, row := range rows {
		names := out[row.TicketID]
		duplicate := false
		for _, name := range names {
			if name == row.Name {
				duplicate = true
				break
			}
		}
		if !duplicate {
			out[row.TicketID] = append(names, row.Name)
		}
	}
	return out, nil
}

func (r *InventoryRepository) ListTicketCast(ctx context.Context, ticketID string) ([]ports.CastAssignment, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return nil, err
	}

	rows, err := queryCastRows(db, []string{ticketID})
	if err != nil {
		return nil, err
	}
	items := make([]ports.CastAssignment, 0, len(rows))
	for _, row := range rows {
		items = append(items, ports.CastAssignment{
			TicketID: row.TicketID,
			Artist:   row.Name,
			Role:     row.Role,
			Rank:     row.Rank,
		})
	}
	return items, nil
}

func (r *InventoryRepository) UpsertEvent(ctx context.Context, event ports.EventRecord) error {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return err
	}
	if strings.TrimSpace(event.ID) == "" {
		return inventory.ErrEventIDRequired
	}

	syncedAt := event.LastSyncedAt.UTC()
	row := model.Event{
		ID:           event.ID,
		Title:        event.Title,
		Venue:        event.Venue,
		City:         event.City,
		MetadataID:   optionalString(event.MetadataID),
		LastSyncedAt: &syncedAt,
	}

	if err := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"title":          row.Title,
			"venue":          row.Venue,
			"city":           row.City,
			"metadata_id":    row.MetadataID,
			"last_synced_at": row.LastSyncedAt,
			"updated_at":     syncedAt,
		}),
	}).Create(&row).Error; err != nil {
		return errs.Wrap(err, "upsert event")
	}
	return nil
}

func (r *InventoryRepository) SaveTicket(ctx context.Context, ticket ports.TicketRecord) (bool, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return false, err
	}

	sessionTime := truncateTime(ticket.SessionTime)

	var existing model.Ticket
	err = db.Where("id = ?", ticket.ID).Take(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		row := model.Ticket{
			ID:          ticket.ID,
			EventID:     ticket.EventID,
			Title:       ticket.Title,
			Price:       ticket.Price,
			TotalTicket: ticket.Total,
			LeftTicket:  ticket.Stock,
			Status:      string(ticket.Status),
			SessionTime: sessionTime,
			City:        ticket.City,
			ValidFrom:   ticket.ValidFrom,
		}
		if err := db.Create(&row).Error; err != nil {
			return false, errs.Wrap(err, "create ticket")
		}
		return true, nil
	}
	if err != nil {
		return false, errs.Wrap(err, "query ticket")
	}

	updates := map[string]any{}
	if existing.EventID != ticket.EventID {
		updates["event_id"] = ticket.EventID
	}
	if existing.Title != ticket.Title {
		updates["title"] = ticket.Title
	}
	if existing.Price != ticket.Price {
		updates["price"] = ticket.Price
	}
	if existing.TotalTicket != ticket.Total {
		updates["total_ticket"] = ticket.Total
	}
	if existing.LeftTicket != ticket.Stock {
		updates["left_ticket"] = ticket.Stock
	}
	if existing.Status != string(ticket.Status) {
		updates["status"] = string(ticket.Status)
	}
	if !sameTime(existing.SessionTime, sessionTime) {
		updates["session_time"] = sessionTime
	}
	if existing.City != ticket.City {
		updates["city"] = ticket.City
	}
	if existing.ValidFrom != ticket.ValidFrom {
		updates["valid_from"] = ticket.ValidFrom
	}
	if len(updates) == 0 {
		return false, nil
	}

	if err := db.Model(&model.Ticket{}).Where("id = ?", ticket.ID).Updates(updates).Error; err != nil {
		return false, errs.Wrap(err, "update ticket")
	}
	return true, nil
}

func (r *InventoryRepository) DeleteTicketsExcept(ctx context.Context, eventID string, keep []string) ([]string, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return nil, err
	}

	query := db.Model(&model.Ticket{}).Where("event_id = ?", eventID)
	if len(keep) > 0 {
		query = query.Where("id NOT IN ?", keep)
	}

	var orphanIDs []string
	if err := query.Order("id asc").Pluck("id", &orphanIDs).Error; err != nil {
		return nil, errs.Wrap(err, "query orphan tickets")
	}
	if len(orphanIDs) == 0 {
		return nil, nil
	}

	if err := db.Where("ticket_id IN ?", orphanIDs).Delete(&model.TicketCastAssociation{}).Error; err != nil {
		return nil, errs.Wrap(err, "delete orphan cast associations")
	}
	if err := db.Where("id IN ?", orphanIDs).Delete(&model.Ticket{}).Error; err != nil {
		return nil, errs.Wrap(err, "delete orphan tickets")
	}
	return orphanIDs, nil
}

func (r *InventoryRepository) AssignCast(ctx context.Context, assignment ports.CastAssignment) error {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return err
	}

	name := strings.TrimSpace(assignment.Artist)
	if name == "" {
		return errors.New("cast artist is required")
	}

	member := model.CastMember{Name: name}
	created := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoNothing: true,
	}).Create(&member)
	if created.Error != nil {
		return errs.Wrap(created.Error, "create cast member")
	}
	if created.RowsAffected == 0 || member.ID == 0 {
		member = model.CastMember{}
		if err := db.Where("name = ?", name).Take(&member).Error; err != nil {
			return errs.Wrap(err, "query cast member")
		}
	}

	role := strings.TrimSpace(assignment.Role)
	var existing model.TicketCastAssociation
	err = db.Where("ticket_id = ? AND cast_id = ? AND role = ?", assignment.TicketID, member.ID, role).Take(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		row := model.TicketCastAssociation{
			TicketID: assignment.TicketID,
			CastID:   member.ID,
			Role:     role,
			Rank:     assignment.Rank,
		}
		// Select("*") keeps a zero rank from falling back to the column default.
		if err := db.Select("*").Create(&row).Error; err != nil {
			return errs.Wrap(err, "create cast association")
		}
		return nil
	}
	if err != nil {
		return errs.Wrap(err, "query cast association")
	}

	if !assignment.Authoritative || existing.Rank == assignment.Rank {
		return nil
	}
	if err := db.Model(&model.TicketCastAssociation{}).
		Where("ticket_id = ? AND cast_id = ? AND role = ?", assignment.TicketID, member.ID, role).
		Updates(map[string]any{"rank": assignment.Rank}).Error; err != nil {
		return errs.Wrap(err, "refresh cast rank")
	}
	return nil
}

func (r *InventoryRepository) AppendChangeLog(ctx context.Context, entries []inventory.ChangeLogEntry) ([]inventory.ChangeLogEntry, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}

	rows := make([]model.TicketUpdateLog, 0, len(entries))
	for _, entry := range entries {
		createdAt := entry.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now()
		}
		rows = append(rows, model.TicketUpdateLog{
			TicketID:    entry.TicketID,
			EventID:     entry.EventID,
			EventTitle:  entry.EventTitle,
			PlayID:      entry.PlayID,
			ChangeType:  string(entry.Type),
			Message:     entry.Message,
			SessionTime: truncateTime(entry.SessionTime),
			City:        entry.City,
			Price:       entry.Price,
			Stock:       entry.Stock,
			Total:       entry.Total,
			CastNames:   entry.CastNames,
			CreatedAt:   createdAt.UTC(),
		})
	}
	if err := db.Create(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "append change log")
	}

	out := make([]inventory.ChangeLogEntry, 0, len(rows))
	for _, row := range rows {
		out = append(out, mapChangeLog(row))
	}
	return out, nil
}

func (r *InventoryRepository) ListRecentChanges(ctx context.Context, limit int) ([]inventory.ChangeLogEntry, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return nil, err
	}

	query := db.Model(&model.TicketUpdateLog{}).Order("id desc")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var rows []model.TicketUpdateLog
	if err := query.Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query change log")
	}

	out := make([]inventory.ChangeLogEntry, 0, len(rows))
	for _, row := range rows {
		out = append(out, mapChangeLog(row))
	}
	return out, nil
}

func mapEvent(row model.Event) ports.EventRecord {
	record := ports.EventRecord{
		ID:    row.ID,
		Title: row.Title,
		Venue: row.Venue,
		City:  row.City,
	}
	if row.MetadataID != nil {
		record.MetadataID = *row.MetadataID
	}
	if row.LastSyncedAt != nil {
		record.LastSyncedAt = *row.LastSyncedAt
	}
	return record
}

func mapChangeLog(row model.TicketUpdateLog) inventory.ChangeLogEntry {
	return inventory.ChangeLogEntry{
		ID:          row.ID,
		TicketID:    row.TicketID,
		EventID:     row.EventID,
		EventTitle:  row.EventTitle,
		PlayID:      row.PlayID,
		Type:        inventory.ChangeType(row.ChangeType),
		Message:     row.Message,
		SessionTime: row.SessionTime,
		City:        row.City,
		Price:       row.Price,
		Stock:       row.Stock,
		Total:       row.Total,
		CastNames:   []string(row.CastNames),
		CreatedAt:   row.CreatedAt,
	}
}

func optionalString(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func truncateTime(value *time.Time) *time.Time {
	if value == nil || value.IsZero() {
		return nil
	}
	truncated := value.UTC().Truncate(time.Second)
	return &truncated
}

func sameTime(a *time.Time, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
