package ports

import (
	"context"

	"github.com/Naty-12/telegram-medical-data-pipeline/internal/core/domain"
)

// RecordLoader is the inbound contract for moving lake files into the store.
type RecordLoader interface {
	Load(ctx context.Context, opts domain.LoadOptions) (domain.LoadReport, error)
}

// Enricher is the inbound contract for labeling unprocessed attachments.
type Enricher interface {
	Enrich(ctx context.Context, opts domain.EnrichOptions) (domain.EnrichReport, error)
}

// PipelineTrigger starts pipeline runs through the overlap gate.
type PipelineTrigger interface {
	Trigger(ctx context.Context, source domain.TriggerSource) (*domain.PipelineRun, error)
	LastRun() (*domain.PipelineRun, bool)
}
