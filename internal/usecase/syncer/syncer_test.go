package syncer

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"seatwatch/internal/domain/inventory"
	domainmetadata "seatwatch/internal/domain/metadata"
	"seatwatch/internal/errs"
	"seatwatch/internal/infrastructure/persistence/gormstore/model"
	"seatwatch/internal/infrastructure/persistence/gormstore/repository"
	"seatwatch/internal/infrastructure/persistence/gormstore/uow"
	"seatwatch/internal/ports"
)

var shanghai = time.FixedZone("CST", 8*3600)

var errBadPayload = errors.New("bad payload")

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

type fakeTicketing struct {
	mu        sync.Mutex
	index     []ports.EventSummary
	listErrs  map[int]error
	listCalls []int
	details   map[string]ports.EventDetails
	detailErr map[string]error
}

func newFakeTicketing() *fakeTicketing {
	return &fakeTicketing{
		listErrs:  map[int]error{},
		details:   map[string]ports.EventDetails{},
		detailErr: map[string]error{},
	}
}

func (f *fakeTicketing) ListEvents(_ context.Context, limit int) ([]ports.EventSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls = append(f.listCalls, limit)
	if err, ok := f.listErrs[limit]; ok {
		return nil, err
	}
	return f.index, nil
}

func (f *fakeTicketing) EventDetails(_ context.Context, eventID string) (ports.EventDetails, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.detailErr[eventID]; ok {
		return ports.EventDetails{}, err
	}
	details, ok := f.details[eventID]
	if !ok {
		return ports.EventDetails{}, errBadPayload
	}
	return details, nil
}

func (f *fakeTicketing) set(eventID string, title string, tickets ...ports.TicketPayload) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.details[eventID] = ports.EventDetails{
		Event:   ports.EventInfo{ID: eventID, Title: title, Venue: "上海大剧院", MetadataID: "p-" + eventID},
		Tickets: tickets,
	}
}

type fakeMetadata struct {
	mu       sync.Mutex
	index    *domainmetadata.Index
	days     map[string][]domainmetadata.Session
	fetchErr error
	calls    int
}

func (f *fakeMetadata) Snapshot() *domainmetadata.Index {
	if f.index == nil {
		return domainmetadata.EmptyIndex()
	}
	return f.index
}

func (f *fakeMetadata) FetchDay(_ context.Context, day time.Time) (*domainmetadata.Index, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return domainmetadata.NewIndex(f.days[day.Format(time.DateOnly)], day), nil
}

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(gormsqlite.Open(filepath.Join(t.TempDir(), "sync.sqlite")), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := db.AutoMigrate(model.All()...); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}
	return db
}

func setupService(t *testing.T, source *fakeTicketing, meta *fakeMetadata) (*Service, *gorm.DB) {
	t.Helper()
	db := setupDB(t)
	if meta == nil {
		meta = &fakeMetadata{}
	}
	svc := NewService(
		source,
		repository.NewInventoryRepository(db),
		uow.NewUnitOfWork(db),
		meta,
		nil,
		&fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, shanghai)},
		Config{PageSizes: []int{1000, 500, 200}, FetchConcurrency: 5, SessionTolerance: 10 * time.Minute, Location: shanghai},
	)
	return svc, db
}

func ticket(id string, stock int, total int, status string) ports.TicketPayload {
	session := time.Date(2026, 3, 8, 19, 30, 0, 0, shanghai)
	return ports.TicketPayload{
		ID:          id,
		Title:       "19:30 场",
		Price:       280,
		Total:       total,
		Stock:       stock,
		Status:      status,
		SessionTime: &session,
	}
}

func changeTypes(changes []inventory.ChangeLogEntry) []inventory.ChangeType {
	out := make([]inventory.ChangeType, 0, len(changes))
	for _, change := range changes {
		out = append(out, change.Type)
	}
	return out
}

func countLogs(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var count int64
	if err := db.Model(&model.TicketUpdateLog{}).Count(&count).Error; err != nil {
		t.Fatalf("count change log: %v", err)
	}
	return count
}

func TestSyncRestockAndAddScenarios(t *testing.T) {
	source := newFakeTicketing()
	svc, _ := setupService(t, source, nil)
	ctx := context.Background()

	source.set("e1", "《赵氏孤儿》", ticket("t1", 0, 10, "active"))
	changes, err := svc.Sync(ctx, []string{"e1"})
	if err != nil {
		t.Fatalf("Sync(initial) error = %v", err)
	}
	if len(changes) != 0 {
		t.Fatalf("Sync(initial) changes = %v, want none for sold-out new ticket", changeTypes(changes))
	}

	source.set("e1", "《赵氏孤儿》", ticket("t1", 3, 10, "active"))
	changes, err = svc.Sync(ctx, []string{"e1"})
	if err != nil {
		t.Fatalf("Sync(restock) error = %v", err)
	}
	if !reflect.DeepEqual(changeTypes(changes), []inventory.ChangeType{inventory.ChangeRestock}) {
		t.Fatalf("Sync(restock) changes = %v", changeTypes(changes))
	}
	if changes[0].ID == 0 || changes[0].PlayID != "p-e1" || changes[0].Message != inventory.Message(inventory.ChangeRestock) {
		t.Fatalf("Sync(restock) entry = %+v", changes[0])
	}

	source.set("e1", "《赵氏孤儿》", ticket("t1", 3, 15, "active"))
	changes, err = svc.Sync(ctx, []string{"e1"})
	if err != nil {
		t.Fatalf("Sync(add) error = %v", err)
	}
	if !reflect.DeepEqual(changeTypes(changes), []inventory.ChangeType{inventory.ChangeAdd}) {
		t.Fatalf("Sync(add) changes = %v", changeTypes(changes))
	}
}

func TestSyncIsIdempotent(t *testing.T) {
	source := newFakeTicketing()
	svc, db := setupService(t, source, nil)
	ctx := context.Background()

	source.set("e1", "《赵氏孤儿》", ticket("t1", 3, 10, "active"), ticket("t2", 0, 10, "pending"))
	first, err := svc.Sync(ctx, []string{"e1"})
	if err != nil {
		t.Fatalf("Sync(first) error = %v", err)
	}
	if !reflect.DeepEqual(changeTypes(first), []inventory.ChangeType{inventory.ChangeNew, inventory.ChangePending}) {
		t.Fatalf("Sync(first) changes = %v", changeTypes(first))
	}

	var before []model.Ticket
	if err := db.Order("id asc").Find(&before).Error; err != nil {
		t.Fatalf("query tickets: %v", err)
	}
	logsBefore := countLogs(t, db)

	replay, err := svc.Sync(ctx, []string{"e1"})
	if err != nil {
		t.Fatalf("Sync(replay) error = %v", err)
	}
	if len(replay) != 0 {
		t.Fatalf("Sync(replay) changes = %v, want none", changeTypes(replay))
	}

	var after []model.Ticket
	if err := db.Order("id asc").Find(&after).Error; err != nil {
		t.Fatalf("query tickets: %v", err)
	}
	if !reflect.DeepEqual(before, after) {
		t.Fatalf("Sync(replay) mutated tickets:\nbefore=%+v\nafter=%+v", before, after)
	}
	if got := countLogs(t, db); got != logsBefore {
		t.Fatalf("change log rows = %d, want %d", got, logsBefore)
	}
}

func TestSyncReapsOrphansWithoutLogRows(t *testing.T) {
	source := newFakeTicketing()
	svc, db := setupService(t, source, nil)
	ctx := context.Background()

	source.set("e1", "《赵氏孤儿》", ticket("t1", 3, 10, "active"), ticket("t2", 2, 10, "active"))
	if _, err := svc.Sync(ctx, []string{"e1"}); err != nil {
		t.Fatalf("Sync(first) error = %v", err)
	}
	logsBefore := countLogs(t, db)

	source.set("e1", "《赵氏孤儿》", ticket("t1", 3, 10, "active"))
	changes, err := svc.Sync(ctx, []string{"e1"})
	if err != nil {
		t.Fatalf("Sync(second) error = %v", err)
	}
	if len(changes) != 0 {
		t.Fatalf("Sync(second) changes = %v", changeTypes(changes))
	}

	var count int64
	if err := db.Model(&model.Ticket{}).Where("id = ?", "t2").Count(&count).Error; err != nil {
		t.Fatalf("count tickets: %v", err)
	}
	if count != 0 {
		t.Fatalf("orphan ticket still present")
	}
	if got := countLogs(t, db); got != logsBefore {
		t.Fatalf("change log rows = %d, want %d", got, logsBefore)
	}
}

func TestSyncSkipsMalformedTickets(t *testing.T) {
	source := newFakeTicketing()
	svc, db := setupService(t, source, nil)
	ctx := context.Background()

	source.set("e1", "《赵氏孤儿》",
		ticket("t1", 3, 10, "active"),
		ticket("", 3, 10, "active"),
		ticket("t2", -1, 10, "active"),
		ticket("t3", 3, 10, "mystery"),
	)
	changes, err := svc.Sync(ctx, []string{"e1"})
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if len(changes) != 1 || changes[0].TicketID != "t1" {
		t.Fatalf("Sync() changes = %+v", changes)
	}

	// A stored ticket that turns malformed is left alone rather than reaped.
	source.set("e1", "《赵氏孤儿》", ticket("t1", -5, 10, "active"))
	if _, err := svc.Sync(ctx, []string{"e1"}); err != nil {
		t.Fatalf("Sync(malformed known) error = %v", err)
	}
	var stored model.Ticket
	if err := db.Where("id = ?", "t1").Take(&stored).Error; err != nil {
		t.Fatalf("query t1: %v", err)
	}
	if stored.LeftTicket != 3 {
		t.Fatalf("t1 stock = %d, want 3", stored.LeftTicket)
	}
}

func TestSyncIsolatesEventFailuresAndKeepsInputOrder(t *testing.T) {
	source := newFakeTicketing()
	svc, _ := setupService(t, source, nil)

	source.set("e1", "《赵氏孤儿》", ticket("t1", 3, 10, "active"))
	source.set("e3", "《丽兹》", ticket("t3a", 1, 5, "active"), ticket("t3b", 2, 5, "active"))
	source.detailErr["e2"] = errBadPayload

	changes, err := svc.Sync(context.Background(), []string{"e3", "e2", "e1", "e3"})
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	got := make([]string, 0, len(changes))
	for _, change := range changes {
		got = append(got, change.TicketID)
	}
	if want := []string{"t3a", "t3b", "t1"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("Sync() ticket order = %v, want %v", got, want)
	}
}

func TestSyncConnectivityFailureAbortsRun(t *testing.T) {
	source := newFakeTicketing()
	svc, _ := setupService(t, source, nil)

	source.set("e2", "《丽兹》", ticket("t2", 1, 5, "active"))
	source.detailErr["e1"] = errs.Connectivity(errors.New("connection refused"))

	changes, err := svc.Sync(context.Background(), []string{"e1", "e2"})
	if !errs.IsConnectivity(err) {
		t.Fatalf("Sync() error = %v, want connectivity", err)
	}
	for _, change := range changes {
		if change.EventID != "e2" {
			t.Fatalf("Sync() returned change for %s", change.EventID)
		}
	}
}

func TestSyncRejectsOverlappingRuns(t *testing.T) {
	svc, _ := setupService(t, newFakeTicketing(), nil)

	svc.runMu.Lock()
	defer svc.runMu.Unlock()

	if _, err := svc.Sync(context.Background(), []string{"e1"}); !errors.Is(err, ErrSyncInProgress) {
		t.Fatalf("Sync() error = %v, want ErrSyncInProgress", err)
	}
	if _, err := svc.SyncAll(context.Background()); !errors.Is(err, ErrSyncInProgress) {
		t.Fatalf("SyncAll() error = %v, want ErrSyncInProgress", err)
	}
}

func TestSyncAllShrinksPageSize(t *testing.T) {
	source := newFakeTicketing()
	svc, _ := setupService(t, source, nil)

	source.listErrs[1000] = errBadPayload
	source.index = []ports.EventSummary{{ID: "e1", Title: "《赵氏孤儿》", City: "上海"}}
	source.set("e1", "《赵氏孤儿》", ticket("t1", 3, 10, "active"))

	changes, err := svc.SyncAll(context.Background())
	if err != nil {
		t.Fatalf("SyncAll() error = %v", err)
	}
	if len(changes) != 1 || changes[0].City != "上海" {
		t.Fatalf("SyncAll() changes = %+v", changes)
	}
	if !reflect.DeepEqual(source.listCalls, []int{1000, 500}) {
		t.Fatalf("ListEvents() calls = %v", source.listCalls)
	}
}

func TestSyncAllAbortsWhenIndexUnavailable(t *testing.T) {
	t.Run("exhausted", func(t *testing.T) {
		source := newFakeTicketing()
		svc, db := setupService(t, source, nil)
		for _, size := range []int{1000, 500, 200} {
			source.listErrs[size] = errBadPayload
		}

		changes, err := svc.SyncAll(context.Background())
		if !errors.Is(err, ErrIndexUnavailable) || changes != nil {
			t.Fatalf("SyncAll() = (%v, %v), want ErrIndexUnavailable", changes, err)
		}
		if len(source.listCalls) != 3 {
			t.Fatalf("ListEvents() calls = %v", source.listCalls)
		}
		if got := countLogs(t, db); got != 0 {
			t.Fatalf("change log rows = %d", got)
		}
	})

	t.Run("connectivity", func(t *testing.T) {
		source := newFakeTicketing()
		svc, _ := setupService(t, source, nil)
		source.listErrs[1000] = errs.Connectivity(errors.New("tls handshake timeout"))

		_, err := svc.SyncAll(context.Background())
		if !errors.Is(err, ErrIndexUnavailable) || !errs.IsConnectivity(err) {
			t.Fatalf("SyncAll() error = %v", err)
		}
		if len(source.listCalls) != 1 {
			t.Fatalf("ListEvents() calls = %v, want one", source.listCalls)
		}
	})
}

func TestEnrichResolvesCityAndRankedCast(t *testing.T) {
	at := func(clock string) *time.Time {
		v, _ := time.ParseInLocation(domainmetadata.SlotLayout, "2026-03-08 "+clock, shanghai)
		return &v
	}
	meta := &fakeMetadata{
		index: domainmetadata.NewIndex([]domainmetadata.Session{
			{
				Start:   *at("14:00"),
				Musical: "赵氏孤儿",
				City:    "上海",
				Cast:    []domainmetadata.Credit{{Artist: "郑云龙", Role: "程婴"}, {Artist: "阿云嘎", Role: "屠岸贾"}},
			},
			{
				Start:   *at("19:30"),
				Musical: "赵氏孤儿",
				City:    "上海",
				Cast:    []domainmetadata.Credit{{Artist: "阿云嘎", Role: "屠岸贾"}, {Artist: "刘岩", Role: "程婴"}, {Artist: "新人", Role: "公主"}},
			},
		}, time.Now()),
	}
	svc, _ := setupService(t, newFakeTicketing(), meta)

	details := ports.EventDetails{
		Event: ports.EventInfo{ID: "e1", Title: "【北京】《赵氏孤儿》", Venue: "大剧院"},
		Tickets: []ports.TicketPayload{
			{ID: "t1", Title: "晚场", SessionTime: at("19:30")},
			{ID: "t2", Title: "【杭州】午场", SessionTime: at("14:05")},
			{ID: "t3", Title: "无时间"},
		},
	}
	known := inventory.EmptySnapshot("e1")
	known.Tickets["t2"] = inventory.KnownTicket{CastNames: []string{"已存在"}}

	result, err := svc.Enrich(context.Background(), "e1", details, known)
	if err != nil {
		t.Fatalf("Enrich() error = %v", err)
	}
	if result.ShowName != "赵氏孤儿" || result.CityHint != "北京" {
		t.Fatalf("Enrich() show=%q hint=%q", result.ShowName, result.CityHint)
	}
	if meta.calls != 0 {
		t.Fatalf("FetchDay() calls = %d, want 0 when cached", meta.calls)
	}

	t1 := result.Tickets["t1"]
	if t1.City != "上海" {
		t.Fatalf("t1 city = %q, want city from cached session", t1.City)
	}
	wantRanks := map[string]int{"阿云嘎": 1, "刘岩": 0, "新人": 2}
	for _, credit := range t1.Cast {
		if !credit.Authoritative || credit.Rank != wantRanks[credit.Artist] {
			t.Fatalf("t1 credit = %+v", credit)
		}
	}
	if names := t1.CastNames(); !reflect.DeepEqual(names, []string{"刘岩", "阿云嘎", "新人"}) {
		t.Fatalf("t1 cast names = %v", names)
	}

	// t2 keeps its stored cast names but only matches sessions in its own city.
	t2 := result.Tickets["t2"]
	if t2.City != "杭州" || len(t2.Cast) != 0 {
		t.Fatalf("t2 = %+v, want title city and no session outside it", t2)
	}
	if result.Tickets["t3"].City != "北京" {
		t.Fatalf("t3 city = %q, want event hint", result.Tickets["t3"].City)
	}
}

func TestEnrichFetchesMissingDayOnce(t *testing.T) {
	start := time.Date(2026, 4, 2, 19, 30, 0, 0, shanghai)
	later := start.Add(24 * time.Hour)
	meta := &fakeMetadata{days: map[string][]domainmetadata.Session{
		"2026-04-02": {{Start: start, Musical: "丽兹", City: "北京", Cast: []domainmetadata.Credit{{Artist: "A", Role: "r"}}}},
	}}
	svc, _ := setupService(t, newFakeTicketing(), meta)

	details := ports.EventDetails{
		Event: ports.EventInfo{ID: "e9", Title: "《丽兹》"},
		Tickets: []ports.TicketPayload{
			{ID: "t1", SessionTime: &later},
			{ID: "t2", SessionTime: &start},
		},
	}
	result, err := svc.Enrich(context.Background(), "e9", details, inventory.EmptySnapshot("e9"))
	if err != nil {
		t.Fatalf("Enrich() error = %v", err)
	}
	if meta.calls != 1 || result.FetchedDay != "2026-04-02" {
		t.Fatalf("FetchDay() calls = %d day = %q", meta.calls, result.FetchedDay)
	}
	if t2 := result.Tickets["t2"]; t2.City != "北京" || len(t2.Cast) != 1 || t2.Cast[0].Rank != 0 {
		t.Fatalf("t2 = %+v", t2)
	}
}

func TestSyncKeepsTicketsWhenDetailsUnavailable(t *testing.T) {
	source := newFakeTicketing()
	svc, db := setupService(t, source, nil)
	ctx := context.Background()

	source.set("e1", "《赵氏孤儿》", ticket("t1", 3, 10, "active"), ticket("t2", 2, 10, "active"))
	if _, err := svc.Sync(ctx, []string{"e1"}); err != nil {
		t.Fatalf("Sync(first) error = %v", err)
	}
	logsBefore := countLogs(t, db)

	source.detailErr["e1"] = fmt.Errorf("%w: event e1 details have no ticket_details", errBadPayload)
	changes, err := svc.Sync(ctx, []string{"e1"})
	if err != nil {
		t.Fatalf("Sync(unavailable) error = %v", err)
	}
	if len(changes) != 0 {
		t.Fatalf("Sync(unavailable) changes = %v", changeTypes(changes))
	}
	var count int64
	if err := db.Model(&model.Ticket{}).Where("event_id = ?", "e1").Count(&count).Error; err != nil {
		t.Fatalf("count tickets: %v", err)
	}
	if count != 2 {
		t.Fatalf("tickets after failed fetch = %d, want 2", count)
	}

	delete(source.detailErr, "e1")
	changes, err = svc.Sync(ctx, []string{"e1"})
	if err != nil {
		t.Fatalf("Sync(recovered) error = %v", err)
	}
	if len(changes) != 0 {
		t.Fatalf("Sync(recovered) changes = %v, want no re-announcement", changeTypes(changes))
	}
	if got := countLogs(t, db); got != logsBefore {
		t.Fatalf("change log rows = %d, want %d", got, logsBefore)
	}
}

func TestEnrichMetadataDayFailure(t *testing.T) {
	start := time.Date(2026, 4, 2, 19, 30, 0, 0, shanghai)
	details := ports.EventDetails{
		Event:   ports.EventInfo{ID: "e9", Title: "《丽兹》"},
		Tickets: []ports.TicketPayload{{ID: "t1", SessionTime: &start}},
	}

	t.Run("connectivity fails the event", func(t *testing.T) {
		meta := &fakeMetadata{fetchErr: errs.Connectivity(errors.New("connection reset"))}
		svc, _ := setupService(t, newFakeTicketing(), meta)

		_, err := svc.Enrich(context.Background(), "e9", details, inventory.EmptySnapshot("e9"))
		if !errs.IsConnectivity(err) {
			t.Fatalf("Enrich() error = %v, want connectivity", err)
		}
		if meta.calls != 1 {
			t.Fatalf("FetchDay() calls = %d, want 1", meta.calls)
		}
	})

	t.Run("bad payload keeps cached index", func(t *testing.T) {
		meta := &fakeMetadata{fetchErr: errBadPayload}
		svc, _ := setupService(t, newFakeTicketing(), meta)

		result, err := svc.Enrich(context.Background(), "e9", details, inventory.EmptySnapshot("e9"))
		if err != nil {
			t.Fatalf("Enrich() error = %v", err)
		}
		if result.FetchedDay != "2026-04-02" || len(result.Tickets["t1"].Cast) != 0 {
			t.Fatalf("Enrich() = %+v", result)
		}
	})
}

func TestSyncMetadataConnectivityAbortsRun(t *testing.T) {
	meta := &fakeMetadata{fetchErr: errs.Connectivity(errors.New("connection reset"))}
	source := newFakeTicketing()
	svc, db := setupService(t, source, meta)
	svc.cfg.FetchConcurrency = 1

	source.set("e1", "《丽兹》", ticket("t1", 3, 10, "active"))
	changes, err := svc.Sync(context.Background(), []string{"e1"})
	if !errs.IsConnectivity(err) {
		t.Fatalf("Sync() error = %v, want connectivity", err)
	}
	if len(changes) != 0 {
		t.Fatalf("Sync() changes = %v", changeTypes(changes))
	}
	if meta.calls != 1 {
		t.Fatalf("FetchDay() calls = %d, want 1", meta.calls)
	}
	var count int64
	if err := db.Model(&model.Ticket{}).Count(&count).Error; err != nil {
		t.Fatalf("count tickets: %v", err)
	}
	if count != 0 {
		t.Fatalf("tickets persisted after abort = %d", count)
	}
}

func TestSyncRefreshesCastRanks(t *testing.T) {
	session := time.Date(2026, 3, 8, 19, 30, 0, 0, shanghai)
	cast := []domainmetadata.Credit{{Artist: "郑云龙", Role: "程婴"}, {Artist: "阿云嘎", Role: "屠岸贾"}}
	meta := &fakeMetadata{
		index: domainmetadata.NewIndex([]domainmetadata.Session{
			{Start: session, Musical: "赵氏孤儿", City: "上海", Cast: cast},
		}, time.Now()),
	}
	source := newFakeTicketing()
	svc, db := setupService(t, source, meta)
	repo := repository.NewInventoryRepository(db)
	ctx := context.Background()

	ranks := func() map[string]int {
		t.Helper()
		items, err := repo.ListTicketCast(ctx, "t1")
		if err != nil {
			t.Fatalf("ListTicketCast() error = %v", err)
		}
		out := make(map[string]int, len(items))
		for _, item := range items {
			out[item.Artist] = item.Rank
		}
		return out
	}

	source.set("e1", "《赵氏孤儿》", ticket("t1", 3, 10, "active"))
	if _, err := svc.Sync(ctx, []string{"e1"}); err != nil {
		t.Fatalf("Sync(first) error = %v", err)
	}
	if got, want := ranks(), map[string]int{"郑云龙": 0, "阿云嘎": 1}; !reflect.DeepEqual(got, want) {
		t.Fatalf("ranks after first pass = %v, want %v", got, want)
	}

	// An earlier session lists the roles the other way round.
	meta.index = domainmetadata.NewIndex([]domainmetadata.Session{
		{Start: session.Add(-24 * time.Hour), Musical: "赵氏孤儿", City: "上海", Cast: []domainmetadata.Credit{{Artist: "刘岩", Role: "屠岸贾"}, {Artist: "王凯", Role: "程婴"}}},
		{Start: session, Musical: "赵氏孤儿", City: "上海", Cast: cast},
	}, time.Now())

	changes, err := svc.Sync(ctx, []string{"e1"})
	if err != nil {
		t.Fatalf("Sync(second) error = %v", err)
	}
	if len(changes) != 0 {
		t.Fatalf("Sync(second) changes = %v", changeTypes(changes))
	}
	if got, want := ranks(), map[string]int{"郑云龙": 1, "阿云嘎": 0}; !reflect.DeepEqual(got, want) {
		t.Fatalf("ranks after second pass = %v, want %v", got, want)
	}
}
