package scheduler

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
	"github.com/yourusername/billflow/billing"
	"github.com/yourusername/billflow/models"
	"github.com/yourusername/billflow/notify"
)

// EventDispatcher delivers events produced by a job.
type EventDispatcher interface {
	DispatchAll(ctx context.Context, events []models.Event) notify.Result
}

type SweepReport struct {
	Candidates int
	Marked     int
	Skipped    int
	Failed     int
}

// Sweeper moves past-due invoices to overdue.
type Sweeper struct {
	engine     *billing.Engine
	dispatcher EventDispatcher
	log        logrus.FieldLogger
}

func NewSweeper(engine *billing.Engine, dispatcher EventDispatcher, log logrus.FieldLogger) *Sweeper {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Sweeper{engine: engine, dispatcher: dispatcher, log: log.WithField("job", JobOverdueSweep)}
}

// Sweep marks every qualifying invoice overdue. Each invoice is handled in
// its own transaction; a failure on one is logged and the sweep moves on.
// An invoice that changed under the sweep (paid or cancelled meanwhile) is
// counted as skipped. Running it again on the same data changes nothing.
func (s *Sweeper) Sweep(ctx context.Context) (SweepReport, error) {
	candidates, err := s.engine.OverdueCandidates(ctx)
	if err != nil {
		return SweepReport{}, err
	}

	report := SweepReport{Candidates: len(candidates)}
	var events []models.Event
	for _, inv := range candidates {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		log := s.log.WithField("invoice", inv.Number)

		_, evs, err := s.engine.MarkOverdue(ctx, inv.ID)
		switch {
		case err == nil && len(evs) == 0:
			report.Skipped++
		case err == nil:
			report.Marked++
			events = append(events, evs...)
			log.Info("invoice marked overdue")
		case errors.Is(err, billing.ErrIllegalTransition), errors.Is(err, billing.ErrNotFound):
			report.Skipped++
			log.WithError(err).Info("invoice no longer qualifies")
		default:
			report.Failed++
			log.WithError(err).Warn("mark invoice overdue")
		}
	}

	if s.dispatcher != nil && len(events) > 0 {
		s.dispatcher.DispatchAll(ctx, events)
	}
	s.log.WithFields(logrus.Fields{
		"candidates": report.Candidates,
		"marked":     report.Marked,
		"skipped":    report.Skipped,
		"failed":     report.Failed,
	}).Info("overdue sweep complete")
	return report, nil
}
