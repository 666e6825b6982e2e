package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Naty-12/telegram-medical-data-pipeline/internal/config"
	"github.com/Naty-12/telegram-medical-data-pipeline/internal/core/domain"
	"github.com/Naty-12/telegram-medical-data-pipeline/internal/core/ports"
	"github.com/Naty-12/telegram-medical-data-pipeline/internal/core/usecase"
	"github.com/Naty-12/telegram-medical-data-pipeline/internal/infrastructure/action/process"
	"github.com/Naty-12/telegram-medical-data-pipeline/internal/infrastructure/labeler/command"
	"github.com/Naty-12/telegram-medical-data-pipeline/internal/infrastructure/labeler/httpmodel"
	"github.com/Naty-12/telegram-medical-data-pipeline/internal/infrastructure/resilience"
	"github.com/Naty-12/telegram-medical-data-pipeline/internal/infrastructure/storage/localfs"
	"github.com/Naty-12/telegram-medical-data-pipeline/internal/pipeline"
)

// Table names used as metric labels.
const (
	tableMessages   = "raw_telegram_messages"
	tableImages     = "raw_telegram_images"
	tableDetections = "image_detections"
)

type store interface {
	ports.RecordStore
	ports.AnnotationStore
}

type rowRecorder interface {
	RowsWritten(table string, n int64)
	RecordsSkipped(stage, reason string, n int)
}

type actionFactory struct {
	store    store
	cfg      config.Config
	executor *resilience.Executor
	rows     rowRecorder
	logger   *slog.Logger
}

func newActionFactory(s store, cfg config.Config, executor *resilience.Executor, rows rowRecorder, logger *slog.Logger) *actionFactory {
	return &actionFactory{store: s, cfg: cfg, executor: executor, rows: rows, logger: logger}
}

func (f *actionFactory) NewAction(stage string, stageConfig any) (pipeline.Action, error) {
	switch cfg := stageConfig.(type) {
	case *pipeline.CommandConfig:
		return process.NewCommandAction(*cfg), nil
	case *pipeline.DbtConfig:
		return process.NewDbtAction(*cfg), nil
	case *pipeline.LoadConfig:
		return f.loadAction(stage, *cfg), nil
	case *pipeline.EnrichConfig:
		return f.enrichAction(stage, *cfg), nil
	default:
		return nil, domain.WrapError(domain.ErrInvalidInput, "build action", fmt.Errorf("stage %q: unsupported config %T", stage, stageConfig))
	}
}

func (f *actionFactory) loadAction(stage string, cfg pipeline.LoadConfig) pipeline.Action {
	logger := f.logger.With("stage", stage)
	return pipeline.ActionFunc(func(ctx context.Context) (string, error) {
		lake, err := localfs.New(cfg.LakeRoot, logger)
		if err != nil {
			return "", err
		}
		var loader ports.RecordLoader = usecase.NewLoadRecordsUseCase(lake, f.store, logger)
		report, err := loader.Load(ctx, domain.LoadOptions{
			MessagesDir: cfg.MessagesDir,
			ImagesDir:   cfg.ImagesDir,
			BatchSize:   cfg.BatchSize,
		})
		f.rows.RowsWritten(tableMessages, report.MessagesInserted)
		f.rows.RowsWritten(tableImages, report.AttachmentsInserted)
		f.rows.RecordsSkipped(stage, "invalid_message", report.MessagesSkipped)
		f.rows.RecordsSkipped(stage, "invalid_key", report.AttachmentsRejected)
		f.rows.RecordsSkipped(stage, "orphaned_attachment", report.AttachmentsOrphaned)
		return report.String(), err
	})
}

func (f *actionFactory) enrichAction(stage string, cfg pipeline.EnrichConfig) pipeline.Action {
	logger := f.logger.With("stage", stage)
	return pipeline.ActionFunc(func(ctx context.Context) (string, error) {
		artifacts, err := localfs.New(cfg.ArtifactBaseDir, logger)
		if err != nil {
			return "", err
		}
		labeler, err := f.newLabeler(logger)
		if err != nil {
			return "", err
		}
		var enricher ports.Enricher = usecase.NewEnrichAttachmentsUseCase(f.store, artifacts, labeler, logger)
		report, err := enricher.Enrich(ctx, domain.EnrichOptions{
			MinScore:  cfg.MinScore,
			BatchSize: cfg.BatchSize,
		})
		f.rows.RowsWritten(tableDetections, report.AnnotationsInserted)
		f.rows.RecordsSkipped(stage, "missing_artifact", report.Missing)
		f.rows.RecordsSkipped(stage, "labeling_failed", report.Failed)
		return report.String(), err
	})
}

func (f *actionFactory) newLabeler(logger *slog.Logger) (ports.Labeler, error) {
	timeout := time.Duration(f.cfg.LabelerTimeoutSeconds) * time.Second
	switch f.cfg.LabelerMode {
	case "http":
		return httpmodel.New(f.cfg.LabelerURL, f.cfg.LabelerModel, httpmodel.Options{
			Timeout:            timeout,
			RequestsPerSecond:  f.cfg.LabelerRPS,
			ResilienceExecutor: f.executor,
			Logger:             logger,
		}), nil
	case "command", "":
		return command.New(f.cfg.LabelerCommand, timeout)
	default:
		return nil, domain.WrapError(domain.ErrInvalidInput, "build labeler", fmt.Errorf("unknown labeler mode %q", f.cfg.LabelerMode))
	}
}
