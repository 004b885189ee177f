package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPipelineCounters(t *testing.T) {
	p := NewPipeline()

	p.ObserveSyncRun("ok", 2*time.Second)
	p.ObserveSyncRun("ok", time.Second)
	p.ObserveChange("restock")
	p.ObserveRemoteRequest("ticketing", "error")
	p.ObserveDelivery("sent")
	p.ObserveDelivery("retry")

	if got := testutil.ToFloat64(p.syncRuns.WithLabelValues("ok")); got != 2 {
		t.Fatalf("sync runs = %v, want 2", got)
	}
	if got := testutil.ToFloat64(p.changes.WithLabelValues("restock")); got != 1 {
		t.Fatalf("changes = %v, want 1", got)
	}
	if got := testutil.ToFloat64(p.remoteRequests.WithLabelValues("ticketing", "error")); got != 1 {
		t.Fatalf("remote requests = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(p.deliveries); got != 2 {
		t.Fatalf("delivery series = %d, want 2", got)
	}
}

func TestSetBreakerStateIsExclusive(t *testing.T) {
	p := NewPipeline()

	p.SetBreakerState("ticketing-api", "open")
	p.SetBreakerState("ticketing-api", "half-open")

	if got := testutil.ToFloat64(p.breakerState.WithLabelValues("ticketing-api", "half-open")); got != 1 {
		t.Fatalf("half-open = %v, want 1", got)
	}
	if got := testutil.ToFloat64(p.breakerState.WithLabelValues("ticketing-api", "open")); got != 0 {
		t.Fatalf("open = %v, want 0", got)
	}
}
