// Package scheduler runs the overdue sweep and the reminder jobs, either on
// a cron schedule or once from the command line.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Job names shared by the cron schedule and the one-shot commands.
const (
	JobOverdueSweep     = "overdue-sweep"
	JobTaskReminders    = "task-reminders"
	JobInvoiceReminders = "invoice-reminders"
)

var ErrAlreadyRunning = errors.New("job already running")

// Runner keeps at most one instance of each named job running in this
// process. A second trigger while the first is still running is rejected
// rather than queued.
type Runner struct {
	mu      sync.Mutex
	running map[string]bool
	log     logrus.FieldLogger
}

func NewRunner(log logrus.FieldLogger) *Runner {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Runner{running: make(map[string]bool), log: log}
}

func (r *Runner) acquire(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running[name] {
		return false
	}
	r.running[name] = true
	return true
}

func (r *Runner) release(name string) {
	r.mu.Lock()
	delete(r.running, name)
	r.mu.Unlock()
}

// Run executes fn under the job name, or returns ErrAlreadyRunning.
func (r *Runner) Run(ctx context.Context, name string, fn func(context.Context) error) error {
	if !r.acquire(name) {
		r.log.WithField("job", name).Warn("job skipped: previous run still in progress")
		return fmt.Errorf("%w: %s", ErrAlreadyRunning, name)
	}
	defer r.release(name)

	log := r.log.WithField("job", name)
	started := time.Now()
	log.Info("job started")
	if err := fn(ctx); err != nil {
		log.WithError(err).WithField("duration", time.Since(started)).Error("job failed")
		return err
	}
	log.WithField("duration", time.Since(started)).Info("job finished")
	return nil
}
