package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Naty-12/telegram-medical-data-pipeline/internal/core/domain"
	"github.com/Naty-12/telegram-medical-data-pipeline/internal/core/ports"
)

// ActionFactory turns a decoded stage config into its action.
type ActionFactory interface {
	NewAction(stage string, config any) (Action, error)
}

type LauncherConfig struct {
	DefinitionPath string
	Location       *time.Location
	RunTimeout     time.Duration
}

// Launcher materialises one configuration snapshot per trigger and runs it.
type Launcher struct {
	cfg       LauncherConfig
	factory   ActionFactory
	runner    *Runner
	publisher ports.RunEventPublisher
	logger    *slog.Logger
	newID     func() string
	now       func() time.Time

	mu   sync.RWMutex
	last *domain.PipelineRun
}

func NewLauncher(
	cfg LauncherConfig,
	factory ActionFactory,
	runner *Runner,
	publisher ports.RunEventPublisher,
	logger *slog.Logger,
) *Launcher {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Launcher{
		cfg:       cfg,
		factory:   factory,
		runner:    runner,
		publisher: publisher,
		logger:    logger,
		newID:     uuid.NewString,
		now:       time.Now,
	}
}

// Compile builds an executable plan from a definition.
func Compile(def *Definition, factory ActionFactory) (*Plan, error) {
	stages := make([]Stage, 0, len(def.Stages))
	for _, sd := range def.Stages {
		cfg, err := sd.TypedConfig()
		if err != nil {
			return nil, err
		}
		action, err := factory.NewAction(sd.Name, cfg)
		if err != nil {
			return nil, fmt.Errorf("build stage %q: %w", sd.Name, err)
		}
		stages = append(stages, Stage{
			Name:      sd.Name,
			Kind:      sd.Kind,
			DependsOn: sd.DependsOn,
			Config:    sd.Snapshot(),
			Action:    action,
		})
	}
	return NewPlan(def.Name, stages)
}

// Launch runs the pipeline once. The returned error covers only a definition
// that cannot be loaded or compiled; stage failures are reported in the run.
func (l *Launcher) Launch(ctx context.Context, req domain.RunRequest) (*domain.PipelineRun, error) {
	if req.ScheduledFor.IsZero() {
		req.ScheduledFor = l.now()
	}
	if req.ID == "" {
		req.ID = l.newID()
	}
	source := req.Trigger
	meta := RunMeta{ID: req.ID, Trigger: source, ScheduledFor: req.ScheduledFor.In(l.cfg.Location)}

	def, err := LoadDefinition(l.cfg.DefinitionPath, Vars{RunID: meta.ID, RunDate: meta.ScheduledFor})
	if err != nil {
		l.logger.Error("run_rejected", "run_id", meta.ID, "trigger", source, "error", err)
		return nil, err
	}
	plan, err := Compile(def, l.factory)
	if err != nil {
		l.logger.Error("run_rejected", "run_id", meta.ID, "trigger", source, "error", err)
		return nil, err
	}

	if l.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.cfg.RunTimeout)
		defer cancel()
	}

	run := l.runner.Run(ctx, plan, meta)

	l.mu.Lock()
	l.last = run
	l.mu.Unlock()

	if l.publisher != nil {
		if err := l.publisher.PublishRunFinished(context.WithoutCancel(ctx), run); err != nil {
			l.logger.Warn("run_event_publish_failed", "run_id", run.ID, "error", err)
		}
	}
	return run, nil
}

// LastRun returns the most recently finished run.
func (l *Launcher) LastRun() (*domain.PipelineRun, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.last == nil {
		return nil, false
	}
	return l.last, true
}

type placeholderFactory struct{}

func (placeholderFactory) NewAction(string, any) (Action, error) {
	return ActionFunc(func(context.Context) (string, error) { return "", nil }), nil
}

// Validate loads and compiles the definition at path without building real
// actions, and returns its dependency levels.
func Validate(path string) ([][]string, error) {
	def, err := LoadDefinition(path, Vars{RunID: "validate", RunDate: time.Now()})
	if err != nil {
		return nil, err
	}
	plan, err := Compile(def, placeholderFactory{})
	if err != nil {
		return nil, err
	}
	return plan.Levels(), nil
}
