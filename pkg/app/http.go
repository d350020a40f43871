package app

import (
	"context"
	"net/http"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/menuboard/menuboard/pkg/api"
	"github.com/menuboard/menuboard/pkg/billing"
	"github.com/menuboard/menuboard/pkg/config"
	"github.com/menuboard/menuboard/pkg/httputil"
	"github.com/menuboard/menuboard/pkg/middleware"
	"github.com/menuboard/menuboard/pkg/observability"
)

// HandlerDeps are the collaborators of the public API handler
type HandlerDeps struct {
	Config   *config.Config
	Service  billing.Service
	Gate     api.AccessGate
	Jobs     api.JobRunner
	Metrics  *observability.Metrics
	Recorder api.CommandRecorder
	Redis    *redis.Client
	Log      *logrus.Logger
}

// NewHTTPHandler builds the API router wrapped in the middleware stack:
// tracing, request IDs, access logs, panic recovery, body limits,
// authentication and rate limiting, outermost first
func NewHTTPHandler(ctx context.Context, deps HandlerDeps) http.Handler {
	log := deps.Log
	if log == nil {
		log = logrus.New()
	}
	cfg := deps.Config

	router := mux.NewRouter()
	router.Use(observability.HTTPMetricsMiddleware(deps.Metrics))
	api.NewHandlers(api.Options{
		Service:    deps.Service,
		Gate:       deps.Gate,
		Jobs:       deps.Jobs,
		Recorder:   deps.Recorder,
		GateConfig: cfg.Gate,
		Log:        log,
	}).RegisterRoutes(router)

	stack := []func(http.Handler) http.Handler{
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(log),
		httputil.RecoveryMiddleware(log),
	}
	if cfg.Server.MaxBodyBytes > 0 {
		stack = append(stack, httputil.MaxBytesMiddleware(cfg.Server.MaxBodyBytes))
	}
	stack = append(stack, middleware.NewAuthenticator(cfg.Auth.Tokens).Handler)
	if cfg.RateLimit.Enabled {
		stack = append(stack, middleware.RateLimit(newLimiter(ctx, cfg.RateLimit, deps.Redis),
			cfg.RateLimit.WindowDuration, log))
	}

	handler := httputil.Chain(stack...)(router)
	return otelhttp.NewHandler(handler, "menuboard-billing")
}

// newLimiter shares the limit across replicas through Redis when available
func newLimiter(ctx context.Context, cfg config.RateLimitConfig, client *redis.Client) middleware.Limiter {
	if client != nil {
		return middleware.NewRedisRateLimiter(client, cfg.RateLimitConfig, "")
	}
	limiter := middleware.NewRateLimiter(cfg.RateLimitConfig)
	limiter.StartCleanup(ctx)
	return limiter
}

// Handler returns the public API handler for a
func (a *App) Handler(ctx context.Context) http.Handler {
	var recorder api.CommandRecorder
	if len(a.Recorders) > 0 {
		recorder = a.Recorders
	}
	return NewHTTPHandler(ctx, HandlerDeps{
		Config:   a.Config,
		Service:  a.Service,
		Gate:     a.Gate,
		Jobs:     a.Scheduler,
		Metrics:  a.Metrics,
		Recorder: recorder,
		Redis:    a.Redis,
		Log:      a.Log,
	})
}

// NewOpsMux serves health probes and, when gatherer is set, /metrics
func NewOpsMux(checker *observability.HealthChecker, gatherer prometheus.Gatherer) *http.ServeMux {
	ops := http.NewServeMux()
	observability.RegisterHealthRoutes(ops, checker)
	if gatherer != nil {
		observability.RegisterMetricsEndpoint(ops, gatherer)
	}
	return ops
}

// OpsHandler returns the health and metrics handler for a
func (a *App) OpsHandler() http.Handler {
	var gatherer prometheus.Gatherer
	if a.Config.Observability.MetricsEnabled {
		gatherer = a.Registry
	}
	return NewOpsMux(observability.NewHealthChecker(a.DB.Primary(), a.Redis), gatherer)
}
