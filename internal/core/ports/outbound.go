package ports

import (
	"context"

	"github.com/Naty-12/telegram-medical-data-pipeline/internal/core/domain"
)

// RecordStore persists source records and their attachments idempotently.
type RecordStore interface {
	WriteSourceRecords(ctx context.Context, records []domain.SourceRecord) (int64, error)
	WriteAttachments(ctx context.Context, attachments []domain.Attachment) (int64, error)
	ExistingSourceKeys(ctx context.Context, keys []int64) (map[int64]bool, error)
}

// AnnotationStore computes pending enrichment work and persists its output.
type AnnotationStore interface {
	SelectUnprocessed(ctx context.Context) ([]domain.WorkUnit, error)
	WriteAnnotations(ctx context.Context, annotations []domain.Annotation) (int64, error)
	RecordArtifactMiss(ctx context.Context, miss domain.ArtifactMiss) (int64, error)
	RequeueArtifactMisses(ctx context.Context) (int64, error)
}

// StoreInspector exposes read-only store facts for operators.
type StoreInspector interface {
	Ping(ctx context.Context) error
	Stats(ctx context.Context) (domain.StoreStats, error)
}

// Lake walks and reads the raw data lake.
type Lake interface {
	Walk(ctx context.Context, dir string, fn func(domain.LakeEntry) error) error
	Read(ctx context.Context, entry domain.LakeEntry) ([]byte, error)
}

// ArtifactStorage resolves attachment locations to readable files.
type ArtifactStorage interface {
	Locate(ctx context.Context, location string) (string, error)
}

// Labeler derives labels for an attachment file.
type Labeler interface {
	Label(ctx context.Context, path string) ([]domain.Label, error)
}

// RunEventPublisher announces finished pipeline runs.
type RunEventPublisher interface {
	PublishRunFinished(ctx context.Context, run *domain.PipelineRun) error
}
