package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/Naty-12/telegram-medical-data-pipeline/internal/core/domain"
	"github.com/Naty-12/telegram-medical-data-pipeline/internal/core/ports"
)

const defaultEnrichBatchSize = 50

type EnrichAttachmentsUseCase struct {
	store   ports.AnnotationStore
	storage ports.ArtifactStorage
	labeler ports.Labeler
	logger  *slog.Logger
	now     func() time.Time
}

func NewEnrichAttachmentsUseCase(
	store ports.AnnotationStore,
	storage ports.ArtifactStorage,
	labeler ports.Labeler,
	logger *slog.Logger,
) *EnrichAttachmentsUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &EnrichAttachmentsUseCase{
		store:   store,
		storage: storage,
		labeler: labeler,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Enrich labels every attachment that has no annotation yet. Annotations are
// committed in batches of whole subjects, so a subject is either fully
// annotated or still selected by the next run.
func (uc *EnrichAttachmentsUseCase) Enrich(ctx context.Context, opts domain.EnrichOptions) (domain.EnrichReport, error) {
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultEnrichBatchSize
	}
	var report domain.EnrichReport

	units, err := uc.store.SelectUnprocessed(ctx)
	if err != nil {
		return report, fmt.Errorf("select unprocessed: %w", err)
	}
	report.Selected = len(units)
	uc.logger.Info("enrich_work_selected", "count", len(units))

	pending := make([]domain.Annotation, 0)
	subjects := 0
	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		inserted, err := uc.store.WriteAnnotations(ctx, pending)
		if err != nil {
			return fmt.Errorf("write annotations: %w", err)
		}
		report.AnnotationsInserted += inserted
		pending = pending[:0]
		subjects = 0
		return nil
	}

	for _, unit := range units {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		annotations, err := uc.processUnit(ctx, unit, opts, &report)
		if err != nil {
			return report, err
		}
		if len(annotations) == 0 {
			continue
		}

		pending = append(pending, annotations...)
		subjects++
		if subjects >= opts.BatchSize {
			if err := flush(); err != nil {
				return report, err
			}
		}
	}
	if err := flush(); err != nil {
		return report, err
	}

	uc.logger.Info("enrich_finished",
		"selected", report.Selected,
		"labeled", report.Labeled,
		"unlabeled", report.Unlabeled,
		"missing", report.Missing,
		"failed", report.Failed,
		"annotations_inserted", report.AnnotationsInserted,
	)
	return report, nil
}

// processUnit returns a nil error for per-subject faults; only faults that
// make the rest of the run pointless are returned.
func (uc *EnrichAttachmentsUseCase) processUnit(
	ctx context.Context,
	unit domain.WorkUnit,
	opts domain.EnrichOptions,
	report *domain.EnrichReport,
) ([]domain.Annotation, error) {
	path, err := uc.storage.Locate(ctx, unit.SubjectLocation)
	if err != nil {
		if !domain.IsKind(err, domain.ErrMissingArtifact) {
			return nil, fmt.Errorf("locate %s: %w", unit.SubjectLocation, err)
		}
		report.Missing++
		uc.logger.Warn("artifact_missing", "message_id", unit.SubjectKey, "image_path", unit.SubjectLocation, "error", err)
		if err := uc.recordMiss(ctx, unit, err); err != nil {
			return nil, err
		}
		return nil, nil
	}

	labels, err := uc.labeler.Label(ctx, path)
	if err != nil {
		if domain.IsKind(err, domain.ErrTemporary) || ctx.Err() != nil {
			return nil, fmt.Errorf("label %s: %w", unit.SubjectLocation, err)
		}
		report.Failed++
		uc.logger.Warn("labeling_failed", "message_id", unit.SubjectKey, "image_path", unit.SubjectLocation, "error", err)
		return nil, nil
	}

	annotations := uc.toAnnotations(unit, labels, opts.MinScore)
	if len(annotations) == 0 {
		report.Unlabeled++
		uc.logger.Info("no_labels", "message_id", unit.SubjectKey, "image_path", unit.SubjectLocation)
		return nil, nil
	}
	report.Labeled++
	return annotations, nil
}

func (uc *EnrichAttachmentsUseCase) recordMiss(ctx context.Context, unit domain.WorkUnit, cause error) error {
	_, err := uc.store.RecordArtifactMiss(ctx, domain.ArtifactMiss{
		WorkUnit:   unit,
		Reason:     cause.Error(),
		RecordedAt: uc.now(),
	})
	if err != nil {
		return fmt.Errorf("record artifact miss: %w", err)
	}
	return nil
}

// toAnnotations keeps the best score per label name and drops labels under minScore.
func (uc *EnrichAttachmentsUseCase) toAnnotations(unit domain.WorkUnit, labels []domain.Label, minScore float64) []domain.Annotation {
	best := make(map[string]float64, len(labels))
	for _, label := range labels {
		name := strings.TrimSpace(label.Name)
		if name == "" || label.Score < minScore {
			continue
		}
		if score, ok := best[name]; !ok || label.Score > score {
			best[name] = label.Score
		}
	}

	names := make([]string, 0, len(best))
	for name := range best {
		names = append(names, name)
	}
	sort.Strings(names)

	producedAt := uc.now()
	out := make([]domain.Annotation, 0, len(names))
	for _, name := range names {
		out = append(out, domain.Annotation{
			SubjectKey:      unit.SubjectKey,
			SubjectLocation: unit.SubjectLocation,
			Label:           name,
			Score:           best[name],
			ProducedAt:      producedAt,
		})
	}
	return out
}
