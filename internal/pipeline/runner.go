package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Naty-12/telegram-medical-data-pipeline/internal/core/domain"
)

// Recorder receives stage and run lifecycle events for metrics.
type Recorder interface {
	StageStarted(stage string)
	StageFinished(stage string, status domain.StageStatus, duration time.Duration)
	RunFinished(status domain.RunStatus)
}

type nopRecorder struct{}

func (nopRecorder) StageStarted(string)                                     {}
func (nopRecorder) StageFinished(string, domain.StageStatus, time.Duration) {}
func (nopRecorder) RunFinished(domain.RunStatus)                            {}

// Plan is a validated, executable pipeline.
type Plan struct {
	Name   string
	Stages []Stage
	levels [][]string
}

func NewPlan(name string, stages []Stage) (*Plan, error) {
	levels, err := BuildLevels(stages)
	if err != nil {
		return nil, err
	}
	return &Plan{Name: name, Stages: stages, levels: levels}, nil
}

// Levels returns stage names grouped by dependency level.
func (p *Plan) Levels() [][]string {
	return p.levels
}

type RunMeta struct {
	ID           string
	Trigger      domain.TriggerSource
	ScheduledFor time.Time
}

type Runner struct {
	maxParallel int
	logger      *slog.Logger
	recorder    Recorder
	now         func() time.Time
}

// NewRunner returns a runner that executes up to maxParallel stages of one
// dependency level at a time. maxParallel below 1 means 1.
func NewRunner(maxParallel int, logger *slog.Logger, recorder Recorder) *Runner {
	if maxParallel < 1 {
		maxParallel = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Runner{
		maxParallel: maxParallel,
		logger:      logger,
		recorder:    recorder,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

type execution struct {
	mu       sync.Mutex
	run      *domain.PipelineRun
	position map[string]int
	failed   []string
}

func (e *execution) stage(name string) domain.StageRun {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.run.Stages[e.position[name]]
}

func (e *execution) update(name string, fn func(*domain.StageRun)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	sr := &e.run.Stages[e.position[name]]
	fn(sr)
	if sr.Status == domain.StageFailed {
		e.failed = append(e.failed, name)
	}
}

// Run executes plan and returns the finished run record. A stage runs only
// after every predecessor succeeded; a stage with a failed or skipped
// predecessor is skipped without running. Branches independent of a failure
// still run. A cancelled context stops new stages from starting but never
// interrupts a running one.
func (r *Runner) Run(ctx context.Context, plan *Plan, meta RunMeta) *domain.PipelineRun {
	exec := &execution{
		run: &domain.PipelineRun{
			ID:           meta.ID,
			Pipeline:     plan.Name,
			Trigger:      meta.Trigger,
			ScheduledFor: meta.ScheduledFor,
			Status:       domain.RunRunning,
			Stages:       make([]domain.StageRun, len(plan.Stages)),
			StartedAt:    r.now(),
		},
		position: make(map[string]int, len(plan.Stages)),
	}
	byName := make(map[string]Stage, len(plan.Stages))
	for i, s := range plan.Stages {
		exec.position[s.Name] = i
		byName[s.Name] = s
		exec.run.Stages[i] = domain.StageRun{
			Name:      s.Name,
			Kind:      s.Kind,
			DependsOn: s.DependsOn,
			Config:    s.Config,
			Status:    domain.StagePending,
		}
	}

	logger := r.logger.With("run_id", meta.ID, "pipeline", plan.Name)
	logger.Info("run_started", "trigger", meta.Trigger, "scheduled_for", meta.ScheduledFor, "stages", len(plan.Stages))

	for _, level := range plan.levels {
		var runnable []Stage
		for _, name := range level {
			stage := byName[name]
			if reason, skip := r.blocked(ctx, exec, stage); skip {
				exec.update(name, func(sr *domain.StageRun) {
					sr.Status = domain.StageSkipped
					sr.Reason = reason
				})
				r.recorder.StageFinished(name, domain.StageSkipped, 0)
				logger.Warn("stage_skipped", "stage", name, "reason", reason)
				continue
			}
			runnable = append(runnable, stage)
		}
		r.runLevel(ctx, exec, runnable, logger)
	}

	return r.finish(exec, logger)
}

// blocked reports whether stage must be skipped instead of run.
func (r *Runner) blocked(ctx context.Context, exec *execution, stage Stage) (string, bool) {
	if err := ctx.Err(); err != nil {
		return fmt.Sprintf("run cancelled before start: %v", err), true
	}
	for _, dep := range stage.DependsOn {
		switch exec.stage(dep).Status {
		case domain.StageSucceeded:
		case domain.StageFailed:
			return fmt.Sprintf("upstream stage %q failed", dep), true
		case domain.StageSkipped:
			return fmt.Sprintf("upstream stage %q skipped", dep), true
		default:
			return fmt.Sprintf("upstream stage %q did not finish", dep), true
		}
	}
	return "", false
}

func (r *Runner) runLevel(ctx context.Context, exec *execution, stages []Stage, logger *slog.Logger) {
	if len(stages) == 0 {
		return
	}
	if r.maxParallel == 1 || len(stages) == 1 {
		for _, stage := range stages {
			r.runStage(ctx, exec, stage, logger)
		}
		return
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, r.maxParallel)
	for _, stage := range stages {
		wg.Add(1)
		go func(s Stage) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			r.runStage(ctx, exec, s, logger)
		}(stage)
	}
	wg.Wait()
}

func (r *Runner) runStage(ctx context.Context, exec *execution, stage Stage, logger *slog.Logger) {
	started := r.now()
	exec.update(stage.Name, func(sr *domain.StageRun) {
		sr.Status = domain.StageRunning
		sr.StartedAt = &started
	})
	r.recorder.StageStarted(stage.Name)
	logger.Info("stage_started", "stage", stage.Name, "kind", stage.Kind)

	outcome := stage.Run(ctx)

	finished := r.now()
	exec.update(stage.Name, func(sr *domain.StageRun) {
		sr.Status = outcome.Status
		sr.Reason = outcome.Reason
		sr.Diagnostic = outcome.Diagnostic
		sr.FinishedAt = &finished
	})
	duration := finished.Sub(started)
	r.recorder.StageFinished(stage.Name, outcome.Status, duration)

	if outcome.Status == domain.StageFailed {
		logger.Error("stage_failed",
			"stage", stage.Name,
			"duration_ms", duration.Milliseconds(),
			"reason", outcome.Reason,
			"diagnostic", outcome.Diagnostic,
		)
		return
	}
	logger.Info("stage_succeeded", "stage", stage.Name, "duration_ms", duration.Milliseconds())
}

func (r *Runner) finish(exec *execution, logger *slog.Logger) *domain.PipelineRun {
	exec.mu.Lock()
	defer exec.mu.Unlock()

	run := exec.run
	run.FinishedAt = r.now()
	run.Status = domain.RunSucceeded
	for _, sr := range run.Stages {
		if sr.Status != domain.StageSucceeded {
			run.Status = domain.RunFailed
			break
		}
	}

	if run.Status == domain.RunFailed {
		if len(exec.failed) > 0 {
			run.FailedStage = exec.failed[0]
			failed := run.Stages[exec.position[run.FailedStage]]
			run.Reason = fmt.Sprintf("stage %q failed: %s", run.FailedStage, failed.Reason)
		} else {
			for _, sr := range run.Stages {
				if sr.Status == domain.StageSkipped {
					run.Reason = sr.Reason
					break
				}
			}
		}
	}

	r.recorder.RunFinished(run.Status)
	logger.Info("run_finished",
		"status", run.Status,
		"failed_stage", run.FailedStage,
		"reason", run.Reason,
		"duration_ms", run.FinishedAt.Sub(run.StartedAt).Milliseconds(),
	)
	return run
}
