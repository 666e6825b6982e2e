package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Naty-12/telegram-medical-data-pipeline/internal/core/domain"
)

type OverlapPolicy string

const (
	// OverlapSkip drops a trigger that arrives while a run is active.
	OverlapSkip OverlapPolicy = "skip"
	// OverlapQueue keeps one pending trigger and starts it when the active
	// run ends. Further triggers coalesce into the pending one.
	OverlapQueue OverlapPolicy = "queue"
)

func ParseOverlapPolicy(raw string) (OverlapPolicy, error) {
	switch p := OverlapPolicy(strings.ToLower(strings.TrimSpace(raw))); p {
	case "":
		return OverlapSkip, nil
	case OverlapSkip, OverlapQueue:
		return p, nil
	default:
		return "", domain.WrapError(domain.ErrInvalidInput, "parse overlap policy", fmt.Errorf("unknown policy %q", raw))
	}
}

// Launcher runs one pipeline from a fresh configuration snapshot.
type Launcher interface {
	Launch(ctx context.Context, req domain.RunRequest) (*domain.PipelineRun, error)
	LastRun() (*domain.PipelineRun, bool)
}

// TriggerRecorder observes the fate of every trigger.
type TriggerRecorder interface {
	TriggerObserved(source domain.TriggerSource, result string)
}

const (
	triggerStarted   = "started"
	triggerQueued    = "queued"
	triggerSkipped   = "skipped"
	triggerRejected  = "rejected"
	triggerCancelled = "cancelled"
)

// Gate admits at most one pipeline run at a time. Every trigger source goes
// through it.
type Gate struct {
	launcher Launcher
	policy   OverlapPolicy
	recorder TriggerRecorder
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
	waiter  chan struct{}

	bg       context.Context
	bgCancel context.CancelFunc
	wg       sync.WaitGroup

	newID func() string
}

func NewGate(launcher Launcher, policy OverlapPolicy, recorder TriggerRecorder, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	if policy == "" {
		policy = OverlapSkip
	}
	bg, cancel := context.WithCancel(context.Background())
	return &Gate{
		launcher: launcher,
		policy:   policy,
		recorder: recorder,
		logger:   logger,
		bg:       bg,
		bgCancel: cancel,
		newID:    uuid.NewString,
	}
}

// Trigger runs the pipeline now and waits for it to finish.
func (g *Gate) Trigger(ctx context.Context, source domain.TriggerSource) (*domain.PipelineRun, error) {
	return g.TriggerAt(ctx, source, time.Time{})
}

// TriggerAt is Trigger with an explicit scheduled instant; zero means now.
// It returns domain.ErrRunInProgress when the trigger is dropped.
func (g *Gate) TriggerAt(ctx context.Context, source domain.TriggerSource, scheduledFor time.Time) (*domain.PipelineRun, error) {
	wait, err := g.reserve(source)
	if err != nil {
		return nil, err
	}
	return g.launch(ctx, domain.RunRequest{Trigger: source, ScheduledFor: scheduledFor}, wait)
}

// Start admits a trigger and runs it in the background under the returned
// run ID. A nil error means the run started or was queued.
func (g *Gate) Start(source domain.TriggerSource) (string, error) {
	wait, err := g.reserve(source)
	if err != nil {
		return "", err
	}
	req := domain.RunRequest{ID: g.newID(), Trigger: source}
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		_, _ = g.launch(g.bg, req, wait)
	}()
	return req.ID, nil
}

// LastRun returns the most recently finished run.
func (g *Gate) LastRun() (*domain.PipelineRun, bool) {
	return g.launcher.LastRun()
}

// Running reports whether a run is active.
func (g *Gate) Running() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.running
}

// Close cancels background runs started with Start and waits for them.
func (g *Gate) Close() {
	g.bgCancel()
	g.wg.Wait()
}

// reserve claims the run slot without blocking. A non-nil channel means the
// caller is the pending trigger and must wait for it to close.
func (g *Gate) reserve(source domain.TriggerSource) (chan struct{}, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.running {
		g.running = true
		return nil, nil
	}
	if g.policy == OverlapQueue && g.waiter == nil {
		g.waiter = make(chan struct{})
		g.observe(source, triggerQueued)
		g.logger.Info("trigger_queued", "trigger", source)
		return g.waiter, nil
	}
	g.observe(source, triggerSkipped)
	g.logger.Warn("trigger_skipped", "trigger", source, "policy", g.policy, "reason", "run in progress")
	return nil, domain.ErrRunInProgress
}

// release passes the slot to the pending trigger, if any.
func (g *Gate) release() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.waiter != nil {
		close(g.waiter)
		g.waiter = nil
		return
	}
	g.running = false
}

func (g *Gate) launch(ctx context.Context, req domain.RunRequest, wait chan struct{}) (*domain.PipelineRun, error) {
	if wait != nil {
		select {
		case <-wait:
		case <-ctx.Done():
			g.mu.Lock()
			if g.waiter == wait {
				g.waiter = nil
				g.mu.Unlock()
			} else {
				g.mu.Unlock()
				g.release()
			}
			g.observe(req.Trigger, triggerCancelled)
			return nil, ctx.Err()
		}
	}
	defer g.release()

	run, err := g.launcher.Launch(ctx, req)
	if err != nil {
		g.observe(req.Trigger, triggerRejected)
		return nil, err
	}
	g.observe(req.Trigger, triggerStarted)
	return run, nil
}

func (g *Gate) observe(source domain.TriggerSource, result string) {
	if g.recorder != nil {
		g.recorder.TriggerObserved(source, result)
	}
}
