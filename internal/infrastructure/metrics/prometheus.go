package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"seatwatch/internal/ports"
)

var breakerStates = []string{"closed", "half-open", "open"}

// Pipeline exports sync and delivery counters on its own registry.
type Pipeline struct {
	registry *prometheus.Registry

	syncRuns       *prometheus.CounterVec
	syncDuration   prometheus.Histogram
	eventResults   *prometheus.CounterVec
	changes        *prometheus.CounterVec
	remoteRequests *prometheus.CounterVec
	breakerState   *prometheus.GaugeVec
	deliveries     *prometheus.CounterVec
}

var _ ports.PipelineMetrics = (*Pipeline)(nil)

func NewPipeline() *Pipeline {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)

	p := &Pipeline{
		registry: registry,
		syncRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "seatwatch_sync_runs_total",
			Help: "Sync runs by outcome.",
		}, []string{"outcome"}),
		syncDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "seatwatch_sync_duration_seconds",
			Help:    "Wall time of a full sync run.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300},
		}),
		eventResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "seatwatch_sync_event_results_total",
			Help: "Per-event sync results.",
		}, []string{"outcome"}),
		changes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "seatwatch_ticket_changes_total",
			Help: "Ticket changes detected by type.",
		}, []string{"type"}),
		remoteRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "seatwatch_remote_requests_total",
			Help: "Remote API requests by source and outcome.",
		}, []string{"source", "outcome"}),
		breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "seatwatch_circuit_breaker_state",
			Help: "1 for the current state of each circuit breaker.",
		}, []string{"name", "state"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "seatwatch_deliveries_total",
			Help: "Send queue delivery attempts by result.",
		}, []string{"result"}),
	}

	registry.MustRegister(
		p.syncRuns,
		p.syncDuration,
		p.eventResults,
		p.changes,
		p.remoteRequests,
		p.breakerState,
		p.deliveries,
	)
	return p
}

// Registry is what the /metrics handler gathers from.
func (p *Pipeline) Registry() *prometheus.Registry {
	return p.registry
}

func (p *Pipeline) ObserveSyncRun(outcome string, elapsed time.Duration) {
	p.syncRuns.WithLabelValues(outcome).Inc()
	p.syncDuration.Observe(elapsed.Seconds())
}

func (p *Pipeline) ObserveEventResult(outcome string) {
	p.eventResults.WithLabelValues(outcome).Inc()
}

func (p *Pipeline) ObserveChange(changeType string) {
	p.changes.WithLabelValues(changeType).Inc()
}

func (p *Pipeline) ObserveRemoteRequest(source string, outcome string) {
	p.remoteRequests.WithLabelValues(source, outcome).Inc()
}

func (p *Pipeline) SetBreakerState(name string, state string) {
	for _, candidate := range breakerStates {
		value := 0.0
		if candidate == state {
			value = 1
		}
		p.breakerState.WithLabelValues(name, candidate).Set(value)
	}
}

func (p *Pipeline) ObserveDelivery(result string) {
	p.deliveries.WithLabelValues(result).Inc()
}
