package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Scheduler triggers jobs on cron expressions. Every trigger goes through the
// Runner, so a cron run and a one-shot command never overlap either.
type Scheduler struct {
	cron   *cron.Cron
	runner *Runner
	log    logrus.FieldLogger
	ctx    context.Context
}

func New(loc *time.Location, runner *Runner, log logrus.FieldLogger) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	cronLog := cron.PrintfLogger(log)
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cronLog),
			cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
		),
		runner: runner,
		log:    log,
		ctx:    context.Background(),
	}
}

// Add registers job under name on a standard five-field cron spec.
func (s *Scheduler) Add(spec, name string, job func(context.Context) error) error {
	_, err := s.cron.AddFunc(spec, func() {
		// Failures and overlaps are logged by the runner.
		_ = s.runner.Run(s.ctx, name, job)
	})
	if err != nil {
		return fmt.Errorf("schedule %s (%q): %w", name, spec, err)
	}
	s.log.WithField("job", name).WithField("schedule", spec).Info("job scheduled")
	return nil
}

// Start runs the schedule until ctx is cancelled; jobs receive ctx.
func (s *Scheduler) Start(ctx context.Context) {
	s.ctx = ctx
	s.cron.Start()
}

// Stop halts the schedule and waits for running jobs, up to ctx's deadline.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for scheduled jobs: %w", ctx.Err())
	}
}

// Entries reports the number of registered jobs.
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}
