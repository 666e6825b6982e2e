// Package scheduler fires pipeline runs from a cron expression evaluated in a
// fixed time zone and serialises every trigger through a Gate.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Naty-12/telegram-medical-data-pipeline/internal/core/domain"
)

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

type Scheduler struct {
	spec     string
	location *time.Location
	schedule cron.Schedule
	gate     *Gate
	logger   *slog.Logger
}

func New(spec string, location *time.Location, gate *Gate, logger *slog.Logger) (*Scheduler, error) {
	if location == nil {
		location = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	schedule, err := ParseSchedule(spec)
	if err != nil {
		return nil, err
	}
	return &Scheduler{
		spec:     spec,
		location: location,
		schedule: schedule,
		gate:     gate,
		logger:   logger,
	}, nil
}

// ParseSchedule accepts standard five-field expressions and @descriptors.
func ParseSchedule(spec string) (cron.Schedule, error) {
	schedule, err := parser.Parse(spec)
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "parse cron expression", err)
	}
	return schedule, nil
}

// NextAfter returns the first firing strictly after t, in the scheduler's zone.
func (s *Scheduler) NextAfter(t time.Time) time.Time {
	return s.schedule.Next(t.In(s.location))
}

// Run fires the pipeline on schedule until ctx is cancelled, then waits for
// the firing in progress to return.
func (s *Scheduler) Run(ctx context.Context) error {
	c := cron.New(
		cron.WithLocation(s.location),
		cron.WithLogger(cronLogger{logger: s.logger}),
	)
	c.Schedule(s.schedule, cron.FuncJob(func() { s.fire(ctx) }))

	c.Start()
	s.logger.Info("scheduler_started",
		"cron", s.spec,
		"timezone", s.location.String(),
		"next_run", s.NextAfter(time.Now()).Format(time.RFC3339),
	)

	<-ctx.Done()
	<-c.Stop().Done()
	s.logger.Info("scheduler_stopped")
	return nil
}

func (s *Scheduler) fire(ctx context.Context) {
	scheduledFor := time.Now().In(s.location).Truncate(time.Minute)
	run, err := s.gate.TriggerAt(ctx, domain.TriggerSchedule, scheduledFor)
	if err != nil {
		if !domain.IsKind(err, domain.ErrRunInProgress) {
			s.logger.Error("scheduled_run_not_started", "scheduled_for", scheduledFor.Format(time.RFC3339), "error", err)
		}
		return
	}
	s.logger.Info("scheduled_run_finished",
		"run_id", run.ID,
		"status", run.Status,
		"next_run", s.NextAfter(time.Now()).Format(time.RFC3339),
	)
}

type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron_"+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron_"+msg, append(keysAndValues, "error", err)...)
}
