package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/menuboard/menuboard/pkg/app"
	"github.com/menuboard/menuboard/pkg/config"
	"github.com/menuboard/menuboard/pkg/observability"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	if err := cfg.ValidateAPI(); err != nil {
		logrus.WithError(err).Fatal("Invalid API configuration")
	}

	log, err := observability.NewLogger(cfg.Observability.LogLevel, cfg.Observability.LogFormat, os.Stdout)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to create logger")
	}

	if err := run(cfg, log); err != nil {
		log.WithError(err).Fatal("Billing service exited with error")
	}
}

func run(cfg *config.Config, log *logrus.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	a.StartBackground(ctx, 0)

	apiServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      a.Handler(ctx),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	opsServer := &http.Server{
		Addr:        net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler:     a.OpsHandler(),
		ReadTimeout: cfg.Server.ReadTimeout,
	}

	shutdown := observability.NewShutdownManager(log, cfg.Server.ShutdownTimeout, apiServer, opsServer)
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		cancel()
		return a.Close(ctx)
	})

	serverErr := make(chan error, 2)
	for _, srv := range []*http.Server{apiServer, opsServer} {
		go func(srv *http.Server) {
			log.WithField("addr", srv.Addr).Info("HTTP server listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serverErr <- err
			}
		}(srv)
	}

	// A listener failure triggers the same graceful shutdown as a signal
	waitCtx, stopWaiting := context.WithCancel(ctx)
	defer stopWaiting()
	failed := make(chan error, 1)
	go func() {
		select {
		case err := <-serverErr:
			log.WithError(err).Error("HTTP server failed")
			failed <- err
			stopWaiting()
		case <-waitCtx.Done():
		}
	}()

	if err := shutdown.WaitForShutdown(waitCtx); err != nil {
		return err
	}
	select {
	case err := <-failed:
		return err
	default:
		return nil
	}
}
