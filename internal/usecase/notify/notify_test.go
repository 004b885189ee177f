package notify

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"seatwatch/internal/domain/inventory"
	"seatwatch/internal/domain/subscription"
	"seatwatch/internal/infrastructure/persistence/gormstore/model"
	"seatwatch/internal/infrastructure/persistence/gormstore/repository"
	"seatwatch/internal/infrastructure/persistence/gormstore/uow"
	"seatwatch/internal/ports"
)

var shanghai = time.FixedZone("CST", 8*3600)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

type staticSubscriptions []subscription.Subscription

func (s staticSubscriptions) ListSubscriptions(context.Context) ([]subscription.Subscription, error) {
	return s, nil
}

type recordingChannel struct {
	mu    sync.Mutex
	err   error
	sent  map[string][]string
	calls int
}

func (c *recordingChannel) Name() string {
	return "test"
}

func (c *recordingChannel) PostPrivateMessage(_ context.Context, userID string, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.err != nil {
		return c.err
	}
	if c.sent == nil {
		c.sent = make(map[string][]string)
	}
	c.sent[userID] = append(c.sent[userID], text)
	return nil
}

func setupService(t *testing.T, subs staticSubscriptions, channel ports.Channel, clock *fakeClock) (*Service, *repository.SendQueueRepository) {
	t.Helper()

	db, err := gorm.Open(gormsqlite.Open(filepath.Join(t.TempDir(), "notify.sqlite")), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql db: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := db.AutoMigrate(model.All()...); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}

	queue := repository.NewSendQueueRepository(db)
	svc := NewService(
		subs,
		queue,
		repository.NewInventoryRepository(db),
		uow.NewUnitOfWork(db),
		channel,
		nil,
		clock,
		Config{
			MaxRetries: 3,
			Backoff:    []time.Duration{time.Minute, 5 * time.Minute, 15 * time.Minute},
			MaxLines:   10,
			Location:   shanghai,
		},
	)
	return svc, queue
}

func change(ticketID string, eventID string, changeType inventory.ChangeType) inventory.ChangeLogEntry {
	return inventory.ChangeLogEntry{
		ID:         1,
		TicketID:   ticketID,
		EventID:    eventID,
		EventTitle: "《赵氏孤儿》上海站",
		PlayID:     "p-" + eventID,
		Type:       changeType,
		Message:    inventory.Message(changeType),
		City:       "上海",
		Price:      280,
		Stock:      3,
		Total:      10,
		CastNames:  []string{"郑云龙", "阿云嘎"},
	}
}

func intPtr(v int) *int {
	return &v
}

func TestMatchThresholdGrid(t *testing.T) {
	noon := time.Date(2026, 3, 1, 12, 0, 0, 0, shanghai)
	modes := []struct {
		name   string
		option func(level int) subscription.Option
		quiet  bool
	}{
		{name: "normal", option: func(level int) subscription.Option {
			return subscription.Option{NotificationLevel: level}
		}},
		{name: "muted", quiet: true, option: func(level int) subscription.Option {
			return subscription.Option{NotificationLevel: level, Muted: true}
		}},
		{name: "silent", quiet: true, option: func(level int) subscription.Option {
			return subscription.Option{NotificationLevel: level, SilentHours: "11:00-13:00"}
		}},
		{name: "silent elsewhere", option: func(level int) subscription.Option {
			return subscription.Option{NotificationLevel: level, SilentHours: "23:00-07:00"}
		}},
	}

	for _, mode := range modes {
		for level := 0; level <= inventory.MaxLevel; level++ {
			for _, changeType := range inventory.ChangeTypes() {
				name := fmt.Sprintf("%s/level%d/%s", mode.name, level, changeType)
				t.Run(name, func(t *testing.T) {
					subs := staticSubscriptions{{
						UserID:  "u1",
						Targets: []subscription.Target{{Kind: subscription.KindEvent, TargetID: "e1"}},
						Option:  mode.option(level),
					}}
					svc := NewService(subs, nil, nil, nil, &recordingChannel{}, nil, &fakeClock{now: noon}, Config{Location: shanghai})

					matches, err := svc.Match(context.Background(), []inventory.ChangeLogEntry{change("t1", "e1", changeType)})
					if err != nil {
						t.Fatalf("Match() error = %v", err)
					}
					want := !mode.quiet && level > 0 && level >= inventory.RequiredLevel(changeType)
					if got := len(matches["u1"]) == 1; got != want {
						t.Fatalf("Match() delivered = %v, want %v", got, want)
					}
				})
			}
		}
	}
}

func TestMatchTargetRules(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, shanghai)
	subs := staticSubscriptions{
		{
			UserID:  "target-level",
			Targets: []subscription.Target{{Kind: subscription.KindPlay, TargetID: "p-e1", Level: intPtr(5)}},
			Option:  subscription.Option{NotificationLevel: 0},
		},
		{
			UserID:  "wrong-city",
			Targets: []subscription.Target{{Kind: subscription.KindEvent, TargetID: "e1", CityFilter: "北京"}},
			Option:  subscription.Option{NotificationLevel: 5},
		},
		{
			UserID:  "actor-denied",
			Targets: []subscription.Target{{Kind: subscription.KindActor, Name: "郑云龙", ExcludeEvents: []string{"e1"}}},
			Option:  subscription.Option{NotificationLevel: 5},
		},
		{
			UserID:  "actor-allowed",
			Targets: []subscription.Target{{Kind: subscription.KindActor, Name: "阿云嘎", IncludeEvents: []string{"e2"}}},
			Option:  subscription.Option{NotificationLevel: 5},
		},
		{
			UserID:  "keyword",
			Targets: []subscription.Target{{Kind: subscription.KindKeyword, Name: "赵氏"}},
			Option:  subscription.Option{NotificationLevel: 2},
		},
		{
			UserID: "broadcast",
			Option: subscription.Option{NotificationLevel: 2, AllowBroadcast: true},
		},
		{
			UserID: "no-targets",
			Option: subscription.Option{NotificationLevel: 5},
		},
		{
			UserID: "overlap",
			Targets: []subscription.Target{
				{Kind: subscription.KindEvent, TargetID: "e1"},
				{Kind: subscription.KindActor, Name: "郑云龙"},
			},
			Option: subscription.Option{NotificationLevel: 5},
		},
	}
	svc, _ := setupService(t, subs, &recordingChannel{}, &fakeClock{now: now})

	changes := []inventory.ChangeLogEntry{
		change("t1", "e1", inventory.ChangeRestock),
		change("t2", "e1", inventory.ChangeDecrease),
		change("t3", "e2", inventory.ChangeBack),
	}
	matches, err := svc.Match(context.Background(), changes)
	if err != nil {
		t.Fatalf("Match() error = %v", err)
	}

	tickets := func(user string) []string {
		out := []string{}
		for _, entry := range matches[user] {
			out = append(out, entry.TicketID)
		}
		return out
	}
	want := map[string][]string{
		"target-level":  {"t1", "t2"},
		"wrong-city":    {},
		"actor-denied":  {"t3"},
		"actor-allowed": {"t3"},
		"keyword":       {"t1"},
		"broadcast":     {"t1"},
		"no-targets":    {},
		"overlap":       {"t1", "t2", "t3"},
	}
	for user, expected := range want {
		if got := tickets(user); !reflect.DeepEqual(got, expected) {
			t.Fatalf("Match()[%s] = %v, want %v", user, got, expected)
		}
	}
}

func TestEnqueueDeduplicatesWithinHour(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 10, 0, 0, shanghai)}
	svc, queue := setupService(t, nil, &recordingChannel{}, clock)
	ctx := context.Background()

	batch := []inventory.ChangeLogEntry{change("t1", "e1", inventory.ChangeNew), change("t2", "e1", inventory.ChangeNew)}
	inserted, err := svc.Enqueue(ctx, "u1", batch)
	if err != nil || !inserted {
		t.Fatalf("Enqueue(first) = (%v, %v)", inserted, err)
	}

	clock.now = clock.now.Add(30 * time.Minute)
	inserted, err = svc.Enqueue(ctx, "u1", batch[:1])
	if err != nil || inserted {
		t.Fatalf("Enqueue(same hour) = (%v, %v), want skipped", inserted, err)
	}

	stats, err := svc.QueueStats(ctx)
	if err != nil {
		t.Fatalf("QueueStats() error = %v", err)
	}
	if stats.Pending != 1 || stats.Total() != 1 {
		t.Fatalf("QueueStats() = %+v", stats)
	}

	ready, err := queue.ListReady(ctx, clock.now, 3, 10)
	if err != nil || len(ready) != 1 {
		t.Fatalf("ListReady() = (%d, %v)", len(ready), err)
	}
	if ready[0].DedupKey != "t1:2026030112" || ready[0].Channel != "test" || ready[0].Scope != ticketUpdateScope {
		t.Fatalf("queued item = %+v", ready[0])
	}

	clock.now = clock.now.Add(time.Hour)
	inserted, err = svc.Enqueue(ctx, "u1", batch)
	if err != nil || !inserted {
		t.Fatalf("Enqueue(next hour) = (%v, %v)", inserted, err)
	}

	// A failed item no longer blocks the same key.
	if err := queue.MarkFailed(ctx, ready[0].ID, 3, "gone"); err != nil {
		t.Fatalf("MarkFailed() error = %v", err)
	}
	clock.now = time.Date(2026, 3, 1, 12, 50, 0, 0, shanghai)
	inserted, err = svc.Enqueue(ctx, "u1", batch)
	if err != nil || !inserted {
		t.Fatalf("Enqueue(after failed) = (%v, %v)", inserted, err)
	}
}

func TestEnqueueMatchesReportsDuplicates(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, shanghai)}
	svc, _ := setupService(t, nil, &recordingChannel{}, clock)

	matches := map[string][]inventory.ChangeLogEntry{
		"u2": {change("t1", "e1", inventory.ChangeNew)},
		"u1": {change("t1", "e1", inventory.ChangeNew)},
	}
	report, err := svc.EnqueueMatches(context.Background(), matches)
	if err != nil || report.Queued != 2 {
		t.Fatalf("EnqueueMatches() = (%+v, %v)", report, err)
	}
	report, err = svc.EnqueueMatches(context.Background(), matches)
	if err != nil || report.Duplicates != 2 || report.Queued != 0 {
		t.Fatalf("EnqueueMatches(replay) = (%+v, %v)", report, err)
	}
}

func TestConsumeReadyBackoffThenFailed(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, shanghai)
	clock := &fakeClock{now: start}
	channel := &recordingChannel{err: errors.New("bot offline")}
	svc, queue := setupService(t, nil, channel, clock)
	ctx := context.Background()

	if _, err := svc.Enqueue(ctx, "u1", []inventory.ChangeLogEntry{change("t1", "e1", inventory.ChangeRestock)}); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	steps := []time.Duration{time.Minute, 5 * time.Minute, 15 * time.Minute}
	for i, step := range steps {
		report, err := svc.ConsumeReady(ctx, 10)
		if err != nil {
			t.Fatalf("ConsumeReady(attempt %d) error = %v", i+1, err)
		}
		if report.Retrying != 1 {
			t.Fatalf("ConsumeReady(attempt %d) = %+v", i+1, report)
		}

		item := onlyItem(t, queue, clock.now.Add(step))
		if item.Status != ports.SendRetrying || item.RetryCount != i+1 || item.LastError != "bot offline" {
			t.Fatalf("after attempt %d item = %+v", i+1, item)
		}
		if item.NextRetryAt == nil || !item.NextRetryAt.Equal(clock.now.Add(step)) {
			t.Fatalf("after attempt %d next_retry_at = %v, want %v", i+1, item.NextRetryAt, clock.now.Add(step))
		}

		// Not due yet.
		early, err := svc.ConsumeReady(ctx, 10)
		if err != nil || early.Attempted != 0 {
			t.Fatalf("ConsumeReady(early) = (%+v, %v)", early, err)
		}
		clock.now = clock.now.Add(step)
	}

	report, err := svc.ConsumeReady(ctx, 10)
	if err != nil || report.Failed != 1 {
		t.Fatalf("ConsumeReady(final) = (%+v, %v)", report, err)
	}
	stats, err := svc.QueueStats(ctx)
	if err != nil {
		t.Fatalf("QueueStats() error = %v", err)
	}
	if stats.Failed != 1 || stats.Retrying != 0 {
		t.Fatalf("QueueStats() = %+v", stats)
	}
	if channel.calls != 4 {
		t.Fatalf("channel calls = %d, want 4", channel.calls)
	}

	clock.now = clock.now.Add(24 * time.Hour)
	if report, err := svc.ConsumeReady(ctx, 10); err != nil || report.Attempted != 0 {
		t.Fatalf("ConsumeReady(after failed) = (%+v, %v)", report, err)
	}
}

func TestConsumeReadyFailsItemsPastLoweredLimit(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, shanghai)}
	channel := &recordingChannel{}
	svc, queue := setupService(t, nil, channel, clock)
	ctx := context.Background()

	if _, err := svc.Enqueue(ctx, "u1", []inventory.ChangeLogEntry{change("t1", "e1", inventory.ChangeRestock)}); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	item := onlyItem(t, queue, clock.now)
	// Written while the ceiling was still 5.
	if err := queue.MarkRetry(ctx, item.ID, 5, clock.now, "bot offline"); err != nil {
		t.Fatalf("MarkRetry() error = %v", err)
	}

	report, err := svc.ConsumeReady(ctx, 10)
	if err != nil {
		t.Fatalf("ConsumeReady() error = %v", err)
	}
	if report.Attempted != 0 || report.Failed != 1 {
		t.Fatalf("ConsumeReady() = %+v", report)
	}
	if channel.calls != 0 {
		t.Fatalf("channel calls = %d, want 0", channel.calls)
	}
	stats, err := svc.QueueStats(ctx)
	if err != nil {
		t.Fatalf("QueueStats() error = %v", err)
	}
	if stats.Failed != 1 || stats.Retrying != 0 {
		t.Fatalf("QueueStats() = %+v", stats)
	}
}

func TestConsumeReadyIsolatesItems(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, shanghai)}
	channel := &flakyChannel{fail: map[string]bool{"u1": true}}
	svc, _ := setupService(t, nil, channel, clock)
	ctx := context.Background()

	for _, user := range []string{"u1", "u2"} {
		if _, err := svc.Enqueue(ctx, user, []inventory.ChangeLogEntry{change("t1", "e1", inventory.ChangeNew)}); err != nil {
			t.Fatalf("Enqueue(%s) error = %v", user, err)
		}
	}

	report, err := svc.ConsumeReady(ctx, 10)
	if err != nil {
		t.Fatalf("ConsumeReady() error = %v", err)
	}
	if report.Attempted != 2 || report.Sent != 1 || report.Retrying != 1 {
		t.Fatalf("ConsumeReady() = %+v", report)
	}
	if got := channel.sent["u2"]; len(got) != 1 || !strings.Contains(got[0], "now on sale") {
		t.Fatalf("u2 messages = %v", got)
	}
}

type flakyChannel struct {
	fail map[string]bool
	sent map[string][]string
}

func (c *flakyChannel) Name() string {
	return "flaky"
}

func (c *flakyChannel) PostPrivateMessage(_ context.Context, userID string, text string) error {
	if c.fail[userID] {
		return errors.New("rejected")
	}
	if c.sent == nil {
		c.sent = make(map[string][]string)
	}
	c.sent[userID] = append(c.sent[userID], text)
	return nil
}

func onlyItem(t *testing.T, queue *repository.SendQueueRepository, at time.Time) ports.SendQueueItem {
	t.Helper()
	items, err := queue.ListReady(context.Background(), at, 3, 10)
	if err != nil {
		t.Fatalf("ListReady() error = %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("ListReady() len = %d, want 1", len(items))
	}
	return items[0]
}

func TestRenderCapsLines(t *testing.T) {
	session := time.Date(2026, 3, 8, 11, 30, 0, 0, time.UTC)
	summaries := []ChangeSummary{
		{Type: "restock", EventTitle: "《赵氏孤儿》", SessionTime: &session, City: "上海", Price: 280, Stock: 3, Total: 10, Message: "back in stock", Cast: []string{"郑云龙"}},
		{Type: "new", EventTitle: "《丽兹》", Price: 180.5, Stock: 1, Total: 5, Message: "now on sale"},
		{Type: "add", EventTitle: "《丽兹》", Price: 180, Stock: 5, Total: 9, Message: "capacity increased"},
	}

	text := Render(summaries, 2, shanghai)
	lines := strings.Split(text, "\n")
	if len(lines) != 4 {
		t.Fatalf("Render() lines = %q", lines)
	}
	if lines[0] != "Ticket updates (3)" {
		t.Fatalf("Render() header = %q", lines[0])
	}
	if lines[1] != "[restock] 《赵氏孤儿》 03-08 19:30 上海 ¥280 3/10 back in stock | 郑云龙" {
		t.Fatalf("Render() first line = %q", lines[1])
	}
	if lines[3] != "... and 1 more" {
		t.Fatalf("Render() overflow = %q", lines[3])
	}

	if full := Render(summaries, 10, shanghai); strings.Contains(full, "more") {
		t.Fatalf("Render() without overflow = %q", full)
	}
}

func TestDedupKeyUsesLocalHour(t *testing.T) {
	at := time.Date(2026, 3, 1, 16, 30, 0, 0, time.UTC)
	if got := DedupKey("t1", at, shanghai); got != "t1:2026030200" {
		t.Fatalf("DedupKey() = %q", got)
	}
}
