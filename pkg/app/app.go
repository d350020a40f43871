package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"github.com/menuboard/menuboard/pkg/access"
	"github.com/menuboard/menuboard/pkg/billing"
	"github.com/menuboard/menuboard/pkg/config"
	"github.com/menuboard/menuboard/pkg/observability"
	"github.com/menuboard/menuboard/pkg/scheduler"
	"github.com/menuboard/menuboard/pkg/storage"
)

// App holds the wired subscription engine shared by the API server and the
// renewal worker
type App struct {
	Config *config.Config
	Log    *logrus.Logger

	DB    *storage.ConnectionManager
	Redis *redis.Client

	Service   *billing.LifecycleService
	Gate      *access.Gate
	Scheduler *scheduler.Scheduler

	Registry  *prometheus.Registry
	Metrics   *observability.Metrics
	Recorders observability.Recorders

	otel *observability.OTelProviders
}

// New connects to Postgres (and Redis when configured), applies migrations
// and wires the service, access gate and scheduler
func New(ctx context.Context, cfg *config.Config, log *logrus.Logger) (*App, error) {
	if log == nil {
		log = logrus.New()
	}
	a := &App{Config: cfg, Log: log}

	providers, err := observability.InitOTel(ctx, cfg.Observability.OTel, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}
	a.otel = providers

	if err := a.initMetrics(); err != nil {
		_ = a.Close(ctx)
		return nil, err
	}

	a.DB, err = storage.NewConnectionManager(cfg.Database, log)
	if err != nil {
		_ = a.Close(ctx)
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	if err := billing.RunMigrations(ctx, a.DB.Primary(), log); err != nil {
		_ = a.Close(ctx)
		return nil, err
	}

	if cfg.Redis.URL != "" {
		a.Redis, err = storage.NewRedisClient(cfg.Redis)
		if err != nil {
			_ = a.Close(ctx)
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
	}

	opts, err := serviceOptions(cfg.Billing, log)
	if err != nil {
		_ = a.Close(ctx)
		return nil, err
	}
	store := billing.NewPostgresStore(a.DB.Primary()).WithReader(a.DB.Replica)
	a.Service = billing.NewService(store, opts...)
	a.Gate = access.NewGate(a.Service, cfg.Access, nil, a.Recorders, log)
	a.Scheduler = scheduler.New(a.Service, NewRunLock(a.Redis, cfg.Scheduler.LockPrefix, log),
		cfg.Scheduler.Config, nil, a.Recorders, log)

	return a, nil
}

func (a *App) initMetrics() error {
	a.Registry = prometheus.NewRegistry()
	a.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	a.Recorders = nil
	if a.Config.Observability.MetricsEnabled {
		a.Metrics = observability.NewMetrics(a.Registry)
		a.Recorders = append(a.Recorders, a.Metrics)
	}
	if a.otel != nil {
		otelMetrics, err := observability.NewOTelMetrics(a.otel.MeterProvider)
		if err != nil {
			return fmt.Errorf("failed to create OpenTelemetry metrics: %w", err)
		}
		a.Recorders = append(a.Recorders, otelMetrics)
	}
	return nil
}

func serviceOptions(cfg config.BillingConfig, log *logrus.Logger) ([]billing.Option, error) {
	opts := []billing.Option{
		billing.WithLogger(log),
		billing.WithLookahead(cfg.RenewalLookahead),
	}
	if cfg.PricingFile != "" {
		pricing, err := billing.LoadPricing(cfg.PricingFile)
		if err != nil {
			return nil, err
		}
		log.WithField("file", cfg.PricingFile).Info("Loaded plan pricing")
		opts = append(opts, billing.WithPricing(pricing))
	}
	return opts, nil
}

// NewRunLock returns a Redis-backed run lock when a client is configured,
// otherwise an in-process lock
func NewRunLock(client *redis.Client, prefix string, log *logrus.Logger) scheduler.RunLock {
	if client == nil {
		return scheduler.NewLocalLock()
	}
	return scheduler.NewRedisLock(client, prefix, log)
}

// StartBackground prunes dead replicas and exports pool stats until ctx is done
func (a *App) StartBackground(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	a.DB.StartHealthCheckRoutine(ctx, interval)
	if a.Metrics == nil {
		return
	}

	go func() {
		defer observability.RecoverPanic(a.Log, "db stats")
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			a.exportDBStats()
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (a *App) exportDBStats() {
	stats := a.DB.Stats()
	open, inUse, waits := stats.Primary.OpenConnections, stats.Primary.InUse, stats.Primary.WaitCount
	for _, r := range stats.Replicas {
		open += r.OpenConnections
		inUse += r.InUse
		waits += r.WaitCount
	}
	a.Metrics.UpdateDBStats(open, inUse, waits)
}

// Close releases connections and flushes telemetry
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close: %w", err))
		}
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := a.otel.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("otel shutdown: %w", err))
	}
	return errors.Join(errs...)
}
