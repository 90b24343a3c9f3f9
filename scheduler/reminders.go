package scheduler

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yourusername/billflow/billing"
	"github.com/yourusername/billflow/models"
	"github.com/yourusername/billflow/workflow"
)

const defaultInvoiceReminderDays = 3

type ReminderReport struct {
	Matched int
	Emitted int
	Skipped int
}

type ReminderConfig struct {
	// InvoiceReminderDays is how long an invoice must be overdue before the
	// client is reminded.
	InvoiceReminderDays int
	// IncludeOverdueTasks also reminds assignees of tasks already past due.
	IncludeOverdueTasks bool
}

// Reminders emits task.due_reminder and invoice.overdue_reminder events.
// Nothing is deduplicated across runs: a matching record is reminded on
// every run.
type Reminders struct {
	engine     *billing.Engine
	workflow   *workflow.Service
	sweeper    *Sweeper
	runner     *Runner
	dispatcher EventDispatcher
	cfg        ReminderConfig
	log        logrus.FieldLogger
}

func NewReminders(engine *billing.Engine, wf *workflow.Service, sweeper *Sweeper, runner *Runner, dispatcher EventDispatcher, cfg ReminderConfig, log logrus.FieldLogger) *Reminders {
	if cfg.InvoiceReminderDays < 0 {
		cfg.InvoiceReminderDays = defaultInvoiceReminderDays
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Reminders{
		engine:     engine,
		workflow:   wf,
		sweeper:    sweeper,
		runner:     runner,
		dispatcher: dispatcher,
		cfg:        cfg,
		log:        log,
	}
}

// TaskReminders emits one task.due_reminder per open assigned task due in
// the next 24 hours, plus overdue tasks when configured.
func (r *Reminders) TaskReminders(ctx context.Context) (ReminderReport, error) {
	log := r.log.WithField("job", JobTaskReminders)
	now := r.engine.Now()

	tasks, err := r.workflow.DueTasks(ctx, now, r.cfg.IncludeOverdueTasks)
	if err != nil {
		return ReminderReport{}, err
	}

	report := ReminderReport{Matched: len(tasks)}
	events := make([]models.Event, 0, len(tasks))
	for _, task := range tasks {
		if task.AssignedTo == nil || task.DueDate == nil {
			report.Skipped++
			continue
		}
		events = append(events, models.NewEvent(models.EventTaskDueReminder, models.SubjectTask, task.ID, now, map[string]string{
			models.PayloadAssigneeID: strconv.FormatUint(uint64(*task.AssignedTo), 10),
			models.PayloadTitle:      task.Title,
			models.PayloadDueDate:    task.DueDate.UTC().Format(time.RFC3339),
			models.PayloadOverdue:    strconv.FormatBool(task.DueDate.Before(now)),
		}))
	}
	report.Emitted = len(events)

	if r.dispatcher != nil && len(events) > 0 {
		r.dispatcher.DispatchAll(ctx, events)
	}
	log.WithFields(logrus.Fields{"matched": report.Matched, "emitted": report.Emitted}).Info("task reminders complete")
	return report, nil
}

// InvoiceReminders runs the overdue sweep, then reminds clients of invoices
// overdue for at least the configured number of days. Invoices with no
// contact email are skipped.
func (r *Reminders) InvoiceReminders(ctx context.Context) (ReminderReport, error) {
	log := r.log.WithField("job", JobInvoiceReminders)

	sweep := func(ctx context.Context) error {
		_, err := r.sweeper.Sweep(ctx)
		return err
	}
	var err error
	if r.runner != nil {
		err = r.runner.Run(ctx, JobOverdueSweep, sweep)
	} else {
		err = sweep(ctx)
	}
	switch {
	case errors.Is(err, ErrAlreadyRunning):
		log.Info("overdue sweep already running, using current state")
	case err != nil:
		return ReminderReport{}, err
	}

	now := r.engine.Now()
	cutoff := now.AddDate(0, 0, -r.cfg.InvoiceReminderDays)
	invoices, err := r.engine.OverdueSince(ctx, cutoff)
	if err != nil {
		return ReminderReport{}, err
	}

	report := ReminderReport{Matched: len(invoices)}
	events := make([]models.Event, 0, len(invoices))
	for _, inv := range invoices {
		email := contactEmail(inv)
		if email == "" {
			report.Skipped++
			log.WithField("invoice", inv.Number).Info("reminder skipped: no contact email")
			continue
		}
		payload := map[string]string{
			models.PayloadNumber:         inv.Number,
			models.PayloadAmountDue:      inv.AmountDue.StringFixed(2),
			models.PayloadRecipientEmail: email,
		}
		if inv.DueDate != nil {
			payload[models.PayloadDueDate] = inv.DueDate.UTC().Format(time.DateOnly)
			payload[models.PayloadDaysOverdue] = strconv.Itoa(daysBetween(*inv.DueDate, now))
		}
		events = append(events, models.NewEvent(models.EventInvoiceOverdueReminder, models.SubjectInvoice, inv.ID, now, payload))
	}
	report.Emitted = len(events)

	if r.dispatcher != nil && len(events) > 0 {
		r.dispatcher.DispatchAll(ctx, events)
	}
	log.WithFields(logrus.Fields{
		"matched": report.Matched,
		"emitted": report.Emitted,
		"skipped": report.Skipped,
	}).Info("invoice reminders complete")
	return report, nil
}

// contactEmail prefers the client's address over the one on the invoice.
func contactEmail(inv models.Invoice) string {
	if inv.Client != nil {
		if email := strings.TrimSpace(inv.Client.Email); email != "" {
			return email
		}
	}
	return strings.TrimSpace(inv.ContactEmail)
}

func daysBetween(from, to time.Time) int {
	from = from.UTC().Truncate(24 * time.Hour)
	to = to.UTC().Truncate(24 * time.Hour)
	return int(to.Sub(from).Hours() / 24)
}
