package pipeline

import (
	"context"
	"fmt"

	"github.com/Naty-12/telegram-medical-data-pipeline/internal/core/domain"
)

// Action is the single external-action contract a stage delegates to. The
// returned diagnostic is the collaborator's own output and is attached to
// the stage record verbatim, on success and on failure.
type Action interface {
	Invoke(ctx context.Context) (diagnostic string, err error)
}

// ActionFunc adapts a function to Action.
type ActionFunc func(ctx context.Context) (string, error)

func (f ActionFunc) Invoke(ctx context.Context) (string, error) {
	return f(ctx)
}

type Stage struct {
	Name      string
	Kind      string
	DependsOn []string
	Config    map[string]any
	Action    Action
}

type Outcome struct {
	Status     domain.StageStatus
	Reason     string
	Diagnostic string
}

// Run invokes the stage action once. Stages never retry.
func (s Stage) Run(ctx context.Context) (out Outcome) {
	if s.Action == nil {
		return Outcome{Status: domain.StageFailed, Reason: fmt.Sprintf("stage %q has no action", s.Name)}
	}
	defer func() {
		if r := recover(); r != nil {
			out = Outcome{Status: domain.StageFailed, Reason: fmt.Sprintf("action panicked: %v", r)}
		}
	}()

	diagnostic, err := s.Action.Invoke(ctx)
	if err != nil {
		return Outcome{Status: domain.StageFailed, Reason: err.Error(), Diagnostic: diagnostic}
	}
	return Outcome{Status: domain.StageSucceeded, Diagnostic: diagnostic}
}
