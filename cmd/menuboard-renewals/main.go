package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/menuboard/menuboard/pkg/app"
	"github.com/menuboard/menuboard/pkg/config"
	"github.com/menuboard/menuboard/pkg/observability"
	"github.com/menuboard/menuboard/pkg/scheduler"
)

var (
	runOnce  = flag.Bool("run-once", false, "Run the job once and exit")
	job      = flag.String("job", scheduler.JobRenewals, "Job to run: renewals (also expires overdue tenants) or expirations")
	schedule = flag.String("schedule", "", "Cron schedule override (default: MENUBOARD_RENEWAL_SCHEDULE)")
)

func main() {
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	if *schedule != "" {
		cfg.Scheduler.Schedule = *schedule
	}

	log, err := observability.NewLogger(cfg.Observability.LogLevel, cfg.Observability.LogFormat, os.Stdout)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to create logger")
	}

	switch *job {
	case scheduler.JobRenewals, scheduler.JobExpirations:
	default:
		log.WithField("job", *job).Fatal("Unknown job")
	}

	if err := run(cfg, log); err != nil {
		log.WithError(err).Fatal("Renewal worker exited with error")
	}
}

func run(cfg *config.Config, log *logrus.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}

	if *runOnce {
		defer func() { _ = a.Close(context.Background()) }()
		return runJob(ctx, a.Scheduler, cfg.Scheduler.LockTTL, *job, log)
	}

	a.StartBackground(ctx, 0)

	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(cron.PrintfLogger(log)),
		cron.WithChain(cron.SkipIfStillRunning(cron.PrintfLogger(log))),
	)
	_, err = c.AddFunc(cfg.Scheduler.Schedule, func() {
		defer observability.RecoverPanic(log, "renewal job")
		if err := runJob(ctx, a.Scheduler, cfg.Scheduler.LockTTL, *job, log); err != nil {
			log.WithError(err).Error("Scheduled job failed")
		}
	})
	if err != nil {
		_ = a.Close(ctx)
		return fmt.Errorf("failed to schedule %q: %w", cfg.Scheduler.Schedule, err)
	}

	opsServer := &http.Server{
		Addr:        net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler:     a.OpsHandler(),
		ReadTimeout: cfg.Server.ReadTimeout,
	}
	go func() {
		if err := opsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("Health server failed")
		}
	}()

	shutdown := observability.NewShutdownManager(log, cfg.Server.ShutdownTimeout, opsServer)
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		stopped := c.Stop()
		select {
		case <-stopped.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
		cancel()
		return a.Close(ctx)
	})

	c.Start()
	log.WithFields(logrus.Fields{
		"schedule": cfg.Scheduler.Schedule,
		"job":      *job,
	}).Info("Renewal worker started")

	return shutdown.WaitForShutdown(ctx)
}

// runJob runs one batch. The run is bounded by the lock TTL so the lock
// cannot expire under a live run.
func runJob(ctx context.Context, sched *scheduler.Scheduler, lockTTL time.Duration, job string, log *logrus.Logger) error {
	ctx, cancel := context.WithTimeout(ctx, lockTTL)
	defer cancel()

	switch job {
	case scheduler.JobExpirations:
		summary, err := sched.RunExpirations(ctx)
		if summary != nil {
			log.WithField("expired", len(summary.Expired)).Info("Expiration run finished")
		}
		return err

	default:
		summary, err := sched.RunRenewals(ctx)
		if summary != nil {
			log.WithFields(logrus.Fields{
				"renewed":                 len(summary.Renewed),
				"skipped_pending_payment": len(summary.SkippedPendingPayment),
				"skipped_manual_plan":     len(summary.SkippedManualPlan),
				"skipped_not_due":         len(summary.SkippedNotDue),
				"failed":                  len(summary.Failed),
				"expired":                 len(summary.Expired),
				"step_errors":             len(summary.Errors),
			}).Info("Renewal run finished")
		}
		return err
	}
}
