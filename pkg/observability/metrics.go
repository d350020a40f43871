package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics. A nil *Metrics records nothing.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// Billing metrics
	RenewalsTotal         *prometheus.CounterVec
	ExpirationsTotal      prometheus.Counter
	CommandsTotal         *prometheus.CounterVec
	AccessDecisionsTotal  *prometheus.CounterVec
	SchedulerRunDuration  *prometheus.HistogramVec
	SchedulerLastRunEpoch *prometheus.GaugeVec

	// Database metrics
	DBConnectionsOpen   prometheus.Gauge
	DBConnectionsInUse  prometheus.Gauge
	DBConnectionsWaited prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "menuboard_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "menuboard_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		HTTPResponseSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "menuboard_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 6),
			},
			[]string{"method", "route"},
		),

		RenewalsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "menuboard_subscription_renewals_total",
				Help: "Renewal attempts by outcome",
			},
			[]string{"outcome"},
		),
		ExpirationsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "menuboard_subscription_expirations_total",
				Help: "Subscriptions transitioned to EXPIRED",
			},
		),
		CommandsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "menuboard_subscription_commands_total",
				Help: "Administrative subscription commands by action and result",
			},
			[]string{"action", "result"},
		),
		AccessDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "menuboard_access_decisions_total",
				Help: "Access gate decisions by result",
			},
			[]string{"result"},
		),
		SchedulerRunDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "menuboard_scheduler_run_duration_seconds",
				Help:    "Duration of scheduler batch runs",
				Buckets: []float64{.1, .5, 1, 5, 15, 60, 300, 900},
			},
			[]string{"job"},
		),
		SchedulerLastRunEpoch: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "menuboard_scheduler_last_run_timestamp_seconds",
				Help: "Unix time of the last completed scheduler run",
			},
			[]string{"job"},
		),

		DBConnectionsOpen: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "menuboard_db_connections_open",
				Help: "Number of open database connections",
			},
		),
		DBConnectionsInUse: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "menuboard_db_connections_in_use",
				Help: "Number of database connections in use",
			},
		),
		DBConnectionsWaited: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "menuboard_db_connections_wait_count",
				Help: "Total number of connections waited for",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPResponseSize,
		m.RenewalsTotal,
		m.ExpirationsTotal,
		m.CommandsTotal,
		m.AccessDecisionsTotal,
		m.SchedulerRunDuration,
		m.SchedulerLastRunEpoch,
		m.DBConnectionsOpen,
		m.DBConnectionsInUse,
		m.DBConnectionsWaited,
	)

	return m
}

// RecordRenewal counts one renewal attempt
func (m *Metrics) RecordRenewal(outcome string) {
	if m == nil {
		return
	}
	m.RenewalsTotal.WithLabelValues(outcome).Inc()
}

// RecordExpirations counts subscriptions moved to EXPIRED
func (m *Metrics) RecordExpirations(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ExpirationsTotal.Add(float64(n))
}

// ObserveSchedulerRun records the duration of a finished batch run
func (m *Metrics) ObserveSchedulerRun(job string, d time.Duration) {
	if m == nil {
		return
	}
	m.SchedulerRunDuration.WithLabelValues(job).Observe(d.Seconds())
	m.SchedulerLastRunEpoch.WithLabelValues(job).SetToCurrentTime()
}

// RecordCommand counts an administrative command
func (m *Metrics) RecordCommand(action, result string) {
	if m == nil {
		return
	}
	m.CommandsTotal.WithLabelValues(action, result).Inc()
}

// RecordAccessDecision counts an access gate decision
func (m *Metrics) RecordAccessDecision(result string) {
	if m == nil {
		return
	}
	m.AccessDecisionsTotal.WithLabelValues(result).Inc()
}

// UpdateDBStats copies pool statistics into the database gauges
func (m *Metrics) UpdateDBStats(open, inUse int, waitCount int64) {
	if m == nil {
		return
	}
	m.DBConnectionsOpen.Set(float64(open))
	m.DBConnectionsInUse.Set(float64(inUse))
	m.DBConnectionsWaited.Set(float64(waitCount))
}

// responseWriter wraps http.ResponseWriter to capture status code and size
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += n
	return n, err
}

// routeLabel uses the matched mux template so tenant IDs do not explode
// label cardinality
func routeLabel(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return "unmatched"
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics.
// Install it with router.Use so the matched route is available.
func HTTPMetricsMiddleware(metrics *Metrics) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		if metrics == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			route := routeLabel(r)
			status := strconv.Itoa(rw.statusCode)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, status).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
			metrics.HTTPResponseSize.WithLabelValues(r.Method, route).Observe(float64(rw.bytesWritten))
		})
	}
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(mux *http.ServeMux, gatherer prometheus.Gatherer) {
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
}
