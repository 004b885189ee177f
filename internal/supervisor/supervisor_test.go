package supervisor

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"seatwatch/internal/domain/inventory"
	"seatwatch/internal/errs"
	"seatwatch/internal/usecase/metadata"
	"seatwatch/internal/usecase/notify"
	"seatwatch/internal/usecase/syncer"
)

type fakeSyncer struct {
	changes []inventory.ChangeLogEntry
	err     error
}

func (f fakeSyncer) SyncAll(context.Context) ([]inventory.ChangeLogEntry, error) {
	return f.changes, f.err
}

type fakeNotifier struct {
	matched  []inventory.ChangeLogEntry
	enqueued map[string][]inventory.ChangeLogEntry
}

func (f *fakeNotifier) Match(_ context.Context, changes []inventory.ChangeLogEntry) (map[string][]inventory.ChangeLogEntry, error) {
	f.matched = changes
	return map[string][]inventory.ChangeLogEntry{"u1": changes}, nil
}

func (f *fakeNotifier) EnqueueMatches(_ context.Context, matches map[string][]inventory.ChangeLogEntry) (notify.EnqueueReport, error) {
	f.enqueued = matches
	return notify.EnqueueReport{Queued: len(matches)}, nil
}

func TestSyncCycleNotifiesCommittedChangesOfAbortedRun(t *testing.T) {
	aborted := errs.Wrap(errs.Connectivity(errors.New("dial tcp: refused")), "sync aborted")
	notifier := &fakeNotifier{}
	cycle := SyncCycle(fakeSyncer{
		changes: []inventory.ChangeLogEntry{{TicketID: "t1", Type: inventory.ChangeRestock}},
		err:     aborted,
	}, notifier)

	err := cycle(context.Background())
	if !errs.IsConnectivity(err) {
		t.Fatalf("SyncCycle() error = %v, want connectivity", err)
	}
	if len(notifier.matched) != 1 || len(notifier.enqueued["u1"]) != 1 {
		t.Fatalf("matched=%v enqueued=%v, want the committed change queued", notifier.matched, notifier.enqueued)
	}
}

func TestSyncCycleSkipsOverlappingRun(t *testing.T) {
	notifier := &fakeNotifier{}
	cycle := SyncCycle(fakeSyncer{err: syncer.ErrSyncInProgress}, notifier)

	if err := cycle(context.Background()); err != nil {
		t.Fatalf("SyncCycle() error = %v, want nil", err)
	}
	if notifier.matched != nil {
		t.Fatalf("Match called on skipped run")
	}
}

type fakeDispatcher struct{ limit int }

func (f *fakeDispatcher) ConsumeReady(_ context.Context, limit int) (notify.DispatchReport, error) {
	f.limit = limit
	return notify.DispatchReport{Attempted: 1, Sent: 1}, nil
}

func TestDispatchCyclePassesBatchSize(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	if err := DispatchCycle(dispatcher, 25)(context.Background()); err != nil {
		t.Fatalf("DispatchCycle() error = %v", err)
	}
	if dispatcher.limit != 25 {
		t.Fatalf("limit = %d, want 25", dispatcher.limit)
	}
}

type fakeRefresher struct{ force []bool }

func (f *fakeRefresher) Refresh(_ context.Context, force bool) (metadata.RefreshReport, error) {
	f.force = append(f.force, force)
	return metadata.RefreshReport{Skipped: true}, nil
}

func TestRefreshCycleHonorsTTL(t *testing.T) {
	refresher := &fakeRefresher{}
	if err := RefreshCycle(refresher)(context.Background()); err != nil {
		t.Fatalf("RefreshCycle() error = %v", err)
	}
	if len(refresher.force) != 1 || refresher.force[0] {
		t.Fatalf("force = %v, want [false]", refresher.force)
	}
}

func TestTickerServiceRunsImmediatelyAndSurvivesErrors(t *testing.T) {
	var calls atomic.Int32
	svc := NewTickerService("test", 10*time.Millisecond, func(context.Context) error {
		calls.Add(1)
		return errors.New("upstream down")
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	deadline := time.After(2 * time.Second)
	for calls.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("calls = %d after 2s, want >= 3", calls.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Serve() error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Serve() did not return after cancel")
	}
	if svc.String() != "test" {
		t.Fatalf("String() = %q", svc.String())
	}
}

type fakeServer struct {
	mu       sync.Mutex
	stop     chan struct{}
	shutdown bool
}

func (f *fakeServer) ListenAndServe() error {
	<-f.stop
	return http.ErrServerClosed
}

func (f *fakeServer) Shutdown(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shutdown = true
	close(f.stop)
	return nil
}

func TestHTTPServiceShutsDownOnCancel(t *testing.T) {
	server := &fakeServer{stop: make(chan struct{})}
	svc := NewHTTPService(server, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Serve() error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Serve() did not return after cancel")
	}
	server.mu.Lock()
	defer server.mu.Unlock()
	if !server.shutdown {
		t.Fatalf("Shutdown not called")
	}
}
