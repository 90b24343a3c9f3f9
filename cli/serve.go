package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/yourusername/billflow/handlers"
	"github.com/yourusername/billflow/scheduler"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd() *cobra.Command {
	var noCron bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the scheduled jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.close()
			return runServe(cmd.Context(), a, !noCron)
		},
	}

	cmd.Flags().BoolVar(&noCron, "no-cron", false, "Serve the API without running scheduled jobs")
	return cmd
}

func runServe(parent context.Context, a *app, withCron bool) error {
	if a.cfg.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var sched *scheduler.Scheduler
	if withCron {
		var err error
		if sched, err = newSchedule(a); err != nil {
			return err
		}
		sched.Start(ctx)
	}

	if a.log.IsLevelEnabled(logrus.DebugLevel) {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := handlers.NewRouter(handlers.Deps{
		DB:         a.db,
		Cfg:        a.cfg,
		Engine:     a.engine,
		Workflow:   a.workflow,
		Dispatcher: a.dispatcher,
		Inbox:      a.dispatcher.Inbox(),
		Log:        a.log,
	})
	srv := &http.Server{
		Addr:              ":" + a.cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		a.log.WithField("port", a.cfg.Port).Info("billflow API listening")
		serveErr <- srv.ListenAndServe()
	}()

	var runErr error
	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			runErr = fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		a.log.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = fmt.Errorf("http shutdown: %w", err)
	}
	if sched != nil {
		if err := sched.Stop(shutdownCtx); err != nil && runErr == nil {
			runErr = err
		}
	}
	return runErr
}

// newSchedule registers the three periodic jobs on the configured timezone.
func newSchedule(a *app) (*scheduler.Scheduler, error) {
	loc, err := a.cfg.Location()
	if err != nil {
		return nil, err
	}
	sched := scheduler.New(loc, a.runner, a.log)

	jobs := []struct {
		spec string
		name string
		run  func(context.Context) error
	}{
		{a.cfg.OverdueSweepSchedule, scheduler.JobOverdueSweep, a.sweepJob},
		{a.cfg.TaskReminderSchedule, scheduler.JobTaskReminders, a.taskReminderJob},
		{a.cfg.InvoiceReminderSchedule, scheduler.JobInvoiceReminders, a.invoiceReminderJob},
	}
	for _, j := range jobs {
		if err := sched.Add(j.spec, j.name, j.run); err != nil {
			return nil, err
		}
	}
	return sched, nil
}
