package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/Naty-12/telegram-medical-data-pipeline/internal/config"
	"github.com/Naty-12/telegram-medical-data-pipeline/internal/core/ports"
	"github.com/Naty-12/telegram-medical-data-pipeline/internal/infrastructure/queue/nats"
	"github.com/Naty-12/telegram-medical-data-pipeline/internal/infrastructure/repository/sqlstore"
	"github.com/Naty-12/telegram-medical-data-pipeline/internal/infrastructure/resilience"
	"github.com/Naty-12/telegram-medical-data-pipeline/internal/observability/metrics"
	"github.com/Naty-12/telegram-medical-data-pipeline/internal/pipeline"
	"github.com/Naty-12/telegram-medical-data-pipeline/internal/scheduler"
)

type App struct {
	Config   config.Config
	Logger   *slog.Logger
	Location *time.Location

	Store    *sqlstore.Store
	Metrics  *metrics.PipelineMetrics
	Actions  pipeline.ActionFactory
	Launcher *pipeline.Launcher
	Gate     *scheduler.Gate
	Trigger  ports.PipelineTrigger
	// Bus is nil when NATS_URL is empty.
	Bus *nats.Bus

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	location, err := time.LoadLocation(cfg.ScheduleTimezone)
	if err != nil {
		return nil, fmt.Errorf("load schedule timezone %q: %w", cfg.ScheduleTimezone, err)
	}
	policy, err := scheduler.ParseOverlapPolicy(cfg.ScheduleOverlap)
	if err != nil {
		return nil, err
	}

	dialect, err := sqlstore.ParseDialect(cfg.DBDriver)
	if err != nil {
		return nil, err
	}
	connector := resilience.NewExecutor(resilience.ConnectConfig(), logger)
	db, err := resilience.Call(ctx, connector, "store.connect", func(ctx context.Context) (*sql.DB, error) {
		return sqlstore.OpenDB(ctx, dialect, cfg.DatabaseDSN)
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialect, err)
	}
	store := sqlstore.New(db, dialect)
	if err := store.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	executor := resilience.NewExecutor(resilience.DefaultConfig(), logger)
	pipelineMetrics := metrics.NewPipelineMetrics("etl")

	var (
		bus       *nats.Bus
		publisher ports.RunEventPublisher
	)
	if cfg.NATSURL != "" {
		bus, err = nats.Connect(cfg.NATSURL, nats.Options{
			EventsSubject:      cfg.NATSEventsSubject,
			TriggerSubject:     cfg.NATSTriggerSubject,
			ResilienceExecutor: executor,
			Logger:             logger,
		})
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init message bus: %w", err)
		}
		publisher = bus
	}

	actions := newActionFactory(store, cfg, executor, pipelineMetrics, logger)
	runner := pipeline.NewRunner(cfg.PipelineMaxParallel, logger, pipelineMetrics)
	launcher := pipeline.NewLauncher(pipeline.LauncherConfig{
		DefinitionPath: cfg.PipelineFile,
		Location:       location,
		RunTimeout:     time.Duration(cfg.RunTimeoutMinutes) * time.Minute,
	}, actions, runner, publisher, logger)
	gate := scheduler.NewGate(launcher, policy, pipelineMetrics, logger)

	return &App{
		Config:   cfg,
		Logger:   logger,
		Location: location,

		Store:    store,
		Metrics:  pipelineMetrics,
		Actions:  actions,
		Launcher: launcher,
		Gate:     gate,
		Trigger:  gate,
		Bus:      bus,

		closeFn: func() {
			gate.Close()
			if bus != nil {
				bus.Close()
			}
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
