package domain

import "time"

type StageStatus string

const (
	StagePending   StageStatus = "pending"
	StageRunning   StageStatus = "running"
	StageSucceeded StageStatus = "succeeded"
	StageFailed    StageStatus = "failed"
	StageSkipped   StageStatus = "skipped"
)

// Terminal reports whether no further transition is possible.
func (s StageStatus) Terminal() bool {
	return s == StageSucceeded || s == StageFailed || s == StageSkipped
}

type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

type TriggerSource string

const (
	TriggerSchedule TriggerSource = "schedule"
	TriggerManual   TriggerSource = "manual"
	TriggerCLI      TriggerSource = "cli"
)

// RunRequest asks for one pipeline run. An empty ID is assigned by the
// launcher; a zero ScheduledFor means now.
type RunRequest struct {
	ID           string
	Trigger      TriggerSource
	ScheduledFor time.Time
}

type StageRun struct {
	Name       string         `json:"name"`
	Kind       string         `json:"kind"`
	DependsOn  []string       `json:"depends_on,omitempty"`
	Config     map[string]any `json:"config,omitempty"`
	Status     StageStatus    `json:"status"`
	Reason     string         `json:"reason,omitempty"`
	Diagnostic string         `json:"diagnostic,omitempty"`
	StartedAt  *time.Time     `json:"started_at,omitempty"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
}

func (s StageRun) Duration() time.Duration {
	if s.StartedAt == nil || s.FinishedAt == nil {
		return 0
	}
	return s.FinishedAt.Sub(*s.StartedAt)
}

type PipelineRun struct {
	ID           string        `json:"id"`
	Pipeline     string        `json:"pipeline"`
	Trigger      TriggerSource `json:"trigger"`
	ScheduledFor time.Time     `json:"scheduled_for"`
	Status       RunStatus     `json:"status"`
	FailedStage  string        `json:"failed_stage,omitempty"`
	Reason       string        `json:"reason,omitempty"`
	Stages       []StageRun    `json:"stages"`
	StartedAt    time.Time     `json:"started_at"`
	FinishedAt   time.Time     `json:"finished_at"`
}

// Stage returns the run record of the named stage.
func (r *PipelineRun) Stage(name string) (StageRun, bool) {
	for _, s := range r.Stages {
		if s.Name == name {
			return s, true
		}
	}
	return StageRun{}, false
}
