package cli

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/yourusername/billflow/config"
	"github.com/yourusername/billflow/scheduler"
)

func (a *app) sweepJob(ctx context.Context) error {
	report, err := a.sweeper.Sweep(ctx)
	a.log.WithFields(logrus.Fields{
		"candidates": report.Candidates,
		"marked":     report.Marked,
		"skipped":    report.Skipped,
		"failed":     report.Failed,
	}).Info("overdue sweep report")
	return err
}

func (a *app) taskReminderJob(ctx context.Context) error {
	report, err := a.reminders.TaskReminders(ctx)
	logReminders(a.log, scheduler.JobTaskReminders, report)
	return err
}

func (a *app) invoiceReminderJob(ctx context.Context) error {
	report, err := a.reminders.InvoiceReminders(ctx)
	logReminders(a.log, scheduler.JobInvoiceReminders, report)
	return err
}

func logReminders(log logrus.FieldLogger, job string, r scheduler.ReminderReport) {
	log.WithFields(logrus.Fields{
		"job":     job,
		"matched": r.Matched,
		"emitted": r.Emitted,
		"skipped": r.Skipped,
	}).Info("reminder report")
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			// InitDB migrates on open.
			db, err := config.InitDB(cfg)
			if err != nil {
				return err
			}
			if sqlDB, err := db.DB(); err == nil {
				defer sqlDB.Close()
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
			return nil
		},
	}
}

func newSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Mark past-due invoices overdue once",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.close()

			var report scheduler.SweepReport
			err = a.runner.Run(cmd.Context(), scheduler.JobOverdueSweep, func(ctx context.Context) error {
				var err error
				report, err = a.sweeper.Sweep(ctx)
				return err
			})
			fmt.Fprintf(cmd.OutOrStdout(), "candidates=%d marked=%d skipped=%d failed=%d\n",
				report.Candidates, report.Marked, report.Skipped, report.Failed)
			return err
		},
	}
}

func newRemindCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remind",
		Short: "Send reminders once",
	}
	cmd.AddCommand(newRemindJobCmd("tasks", "Remind assignees of tasks due within a day",
		scheduler.JobTaskReminders, (*scheduler.Reminders).TaskReminders))
	cmd.AddCommand(newRemindJobCmd("invoices", "Remind clients of overdue invoices",
		scheduler.JobInvoiceReminders, (*scheduler.Reminders).InvoiceReminders))
	return cmd
}

func newRemindJobCmd(use, short, job string, run func(*scheduler.Reminders, context.Context) (scheduler.ReminderReport, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.close()

			var report scheduler.ReminderReport
			err = a.runner.Run(cmd.Context(), job, func(ctx context.Context) error {
				var err error
				report, err = run(a.reminders, ctx)
				return err
			})
			fmt.Fprintf(cmd.OutOrStdout(), "matched=%d emitted=%d skipped=%d\n", report.Matched, report.Emitted, report.Skipped)
			return err
		},
	}
}
