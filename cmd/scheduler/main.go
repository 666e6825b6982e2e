package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	httpadapter "github.com/Naty-12/telegram-medical-data-pipeline/internal/adapters/http"
	"github.com/Naty-12/telegram-medical-data-pipeline/internal/bootstrap"
	"github.com/Naty-12/telegram-medical-data-pipeline/internal/config"
	"github.com/Naty-12/telegram-medical-data-pipeline/internal/core/domain"
	"github.com/Naty-12/telegram-medical-data-pipeline/internal/observability/logging"
	"github.com/Naty-12/telegram-medical-data-pipeline/internal/scheduler"
)

func main() {
	if err := config.LoadDotenv(); err != nil {
		slog.Error("dotenv_load_failed", "error", err)
		os.Exit(1)
	}
	cfg := config.Load()
	logger := logging.NewJSONLogger("etl-scheduler", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	sched, err := scheduler.New(cfg.ScheduleCron, app.Location, app.Gate, logger)
	if err != nil {
		logger.Error("scheduler_init_failed", "error", err)
		os.Exit(1)
	}

	router := httpadapter.NewRouter(app.Gate, app.Store, httpadapter.Options{
		Metrics:           app.Metrics.Handler(),
		MetricsMiddleware: app.Metrics.Middleware,
		Logger:            logger,
	})
	server := &http.Server{
		Addr:              ":" + cfg.OpsPort,
		Handler:           router.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return sched.Run(groupCtx)
	})
	group.Go(func() error {
		logger.Info("ops_server_listening", "port", cfg.OpsPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	if app.Bus != nil {
		group.Go(func() error {
			logger.Info("nats_trigger_subscribed", "subject", cfg.NATSTriggerSubject)
			return app.Bus.SubscribeTriggers(groupCtx, func(context.Context) (string, error) {
				return app.Gate.Start(domain.TriggerManual)
			})
		})
	}

	if err := group.Wait(); err != nil {
		logger.Error("scheduler_exited", "error", err)
		stop()
		app.Close()
		os.Exit(1)
	}
	logger.Info("scheduler_shutdown_complete")
}
