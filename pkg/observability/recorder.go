package observability

import "time"

// BillingRecorder receives billing events from the gate, the scheduler and
// the command surface
type BillingRecorder interface {
	RecordRenewal(outcome string)
	RecordExpirations(n int)
	ObserveSchedulerRun(job string, d time.Duration)
	RecordCommand(action, result string)
	RecordAccessDecision(result string)
}

// Recorders fans each event out to every recorder
type Recorders []BillingRecorder

func (rs Recorders) RecordRenewal(outcome string) {
	for _, r := range rs {
		r.RecordRenewal(outcome)
	}
}

func (rs Recorders) RecordExpirations(n int) {
	for _, r := range rs {
		r.RecordExpirations(n)
	}
}

func (rs Recorders) ObserveSchedulerRun(job string, d time.Duration) {
	for _, r := range rs {
		r.ObserveSchedulerRun(job, d)
	}
}

func (rs Recorders) RecordCommand(action, result string) {
	for _, r := range rs {
		r.RecordCommand(action, result)
	}
}

func (rs Recorders) RecordAccessDecision(result string) {
	for _, r := range rs {
		r.RecordAccessDecision(result)
	}
}

var (
	_ BillingRecorder = (*Metrics)(nil)
	_ BillingRecorder = (*OTelMetrics)(nil)
	_ BillingRecorder = Recorders(nil)
)
