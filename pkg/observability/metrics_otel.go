package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OTelMetrics mirrors the billing counters as OpenTelemetry instruments so
// they reach the OTLP collector alongside traces
type OTelMetrics struct {
	renewals        metric.Int64Counter
	expirations     metric.Int64Counter
	commands        metric.Int64Counter
	accessDecisions metric.Int64Counter
	runDuration     metric.Float64Histogram
}

// NewOTelMetrics creates the instruments on provider, or on the global
// provider when nil
func NewOTelMetrics(provider metric.MeterProvider) (*OTelMetrics, error) {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}
	meter := provider.Meter("github.com/menuboard/menuboard")

	m := &OTelMetrics{}
	var err error

	m.renewals, err = meter.Int64Counter(
		"menuboard.subscription.renewals",
		metric.WithDescription("Renewal attempts by outcome"),
		metric.WithUnit("{renewal}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create renewals counter: %w", err)
	}

	m.expirations, err = meter.Int64Counter(
		"menuboard.subscription.expirations",
		metric.WithDescription("Subscriptions transitioned to EXPIRED"),
		metric.WithUnit("{subscription}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create expirations counter: %w", err)
	}

	m.commands, err = meter.Int64Counter(
		"menuboard.subscription.commands",
		metric.WithDescription("Administrative subscription commands"),
		metric.WithUnit("{command}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create commands counter: %w", err)
	}

	m.accessDecisions, err = meter.Int64Counter(
		"menuboard.access.decisions",
		metric.WithDescription("Access gate decisions"),
		metric.WithUnit("{decision}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create access decisions counter: %w", err)
	}

	m.runDuration, err = meter.Float64Histogram(
		"menuboard.scheduler.run.duration",
		metric.WithDescription("Duration of scheduler batch runs"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create run duration histogram: %w", err)
	}

	return m, nil
}

// RecordRenewal counts one renewal attempt
func (m *OTelMetrics) RecordRenewal(outcome string) {
	m.renewals.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordExpirations counts subscriptions moved to EXPIRED
func (m *OTelMetrics) RecordExpirations(n int) {
	if n <= 0 {
		return
	}
	m.expirations.Add(context.Background(), int64(n))
}

// ObserveSchedulerRun records the duration of a finished batch run
func (m *OTelMetrics) ObserveSchedulerRun(job string, d time.Duration) {
	m.runDuration.Record(context.Background(), d.Seconds(),
		metric.WithAttributes(attribute.String("job", job)))
}

// RecordCommand counts an administrative command
func (m *OTelMetrics) RecordCommand(action, result string) {
	m.commands.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("action", action),
		attribute.String("result", result),
	))
}

// RecordAccessDecision counts an access gate decision
func (m *OTelMetrics) RecordAccessDecision(result string) {
	m.accessDecisions.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("result", result)))
}
