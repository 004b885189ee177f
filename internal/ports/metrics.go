package ports

import "time"

// PipelineMetrics receives counters from the sync and delivery pipeline.
type PipelineMetrics interface {
	ObserveSyncRun(outcome string, elapsed time.Duration)
	ObserveEventResult(outcome string)
	ObserveChange(changeType string)
	ObserveRemoteRequest(source string, outcome string)
	SetBreakerState(name string, state string)
	ObserveDelivery(result string)
}

// NopMetrics discards every observation.
type NopMetrics struct{}

func (NopMetrics) ObserveSyncRun(string, time.Duration) {}
func (NopMetrics) ObserveEventResult(string)            {}
func (NopMetrics) ObserveChange(string)                 {}
func (NopMetrics) ObserveRemoteRequest(string, string)  {}
func (NopMetrics) SetBreakerState(string, string)       {}
func (NopMetrics) ObserveDelivery(string)               {}
