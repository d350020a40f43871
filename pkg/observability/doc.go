// Package observability wires logging, metrics, tracing and health checks for
// the billing service and the renewal runner.
//
// Loggers are logrus loggers built from configuration:
//
//	log, err := observability.NewLogger("info", observability.FormatJSON, os.Stdout)
//
// Metrics holds the Prometheus collectors. It satisfies the recorder
// interfaces of pkg/access and pkg/scheduler, and a nil *Metrics is a no-op:
//
//	metrics := observability.NewMetrics(registry)
//	gate := access.NewGate(store, access.DefaultConfig(), clock, metrics, log)
//
// OTelMetrics records the same events through OpenTelemetry; Recorders fans
// events out to several recorders.
//
// InitOTel sets up OTLP gRPC exporters for traces and metrics. HealthChecker
// serves /health/live and /health/ready. ShutdownManager drains HTTP servers
// and runs cleanup functions on SIGINT or SIGTERM.
package observability
