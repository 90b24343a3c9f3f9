package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yourusername/billflow/billing"
	"github.com/yourusername/billflow/config"
	"github.com/yourusername/billflow/notify"
	"github.com/yourusername/billflow/scheduler"
	"github.com/yourusername/billflow/utils"
	"github.com/yourusername/billflow/workflow"
	"gorm.io/gorm"
)

// app holds the services shared by every command.
type app struct {
	cfg        *config.Config
	log        *logrus.Logger
	db         *gorm.DB
	engine     *billing.Engine
	workflow   *workflow.Service
	dispatcher *notify.Dispatcher
	runner     *scheduler.Runner
	sweeper    *scheduler.Sweeper
	reminders  *scheduler.Reminders
}

func newLogger(level, format string) (*logrus.Logger, error) {
	log := logrus.New()
	log.SetOutput(os.Stderr)

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}
	log.SetLevel(lvl)

	switch strings.ToLower(format) {
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{})
	case "text", "":
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return nil, fmt.Errorf("invalid LOG_FORMAT %q, expected text or json", format)
	}
	return log, nil
}

func loadApp() (*app, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	log, err := newLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}
	db, err := config.InitDB(cfg)
	if err != nil {
		return nil, err
	}
	a, err := newApp(cfg, db, log)
	if err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func newApp(cfg *config.Config, db *gorm.DB, log *logrus.Logger) (*app, error) {
	a := &app{cfg: cfg, log: log, db: db}

	policy, err := notify.LoadPolicy(cfg.NotificationPolicyFile)
	if err != nil {
		return a, fmt.Errorf("load notification policy: %w", err)
	}
	mailer, err := newMailer(cfg, log)
	if err != nil {
		return a, err
	}

	engineOpts := []billing.Option{
		billing.WithLogger(log),
		billing.WithPaymentTerms(time.Duration(cfg.PaymentTermsDays) * 24 * time.Hour),
	}
	if cfg.StellarReceivingAccount != "" {
		if err := utils.ValidateAccount(cfg.StellarReceivingAccount); err != nil {
			return a, fmt.Errorf("STELLAR_RECEIVING_ACCOUNT: %w", err)
		}
		asset := utils.SettlementAsset{Code: cfg.StellarAssetCode, Issuer: cfg.StellarAssetIssuer}
		if err := asset.Validate(); err != nil {
			return a, fmt.Errorf("STELLAR_ASSET_CODE/STELLAR_ASSET_ISSUER: %w", err)
		}
		engineOpts = append(engineOpts, billing.WithSettlementVerifier(
			utils.NewStellarClient(cfg.HorizonURL, cfg.StellarReceivingAccount, asset),
		))
	}
	a.engine = billing.NewEngine(db, engineOpts...)
	a.workflow = workflow.NewService(db, a.engine.Now, log)
	a.dispatcher = notify.NewDispatcher(db, mailer,
		notify.WithPolicy(policy),
		notify.WithLogger(log),
		notify.WithClock(a.engine.Now),
		notify.WithRetry(cfg.MailMaxAttempts, cfg.MailTimeout, cfg.MailRetryBackoff),
	)

	a.runner = scheduler.NewRunner(log)
	a.sweeper = scheduler.NewSweeper(a.engine, a.dispatcher, log)
	a.reminders = scheduler.NewReminders(a.engine, a.workflow, a.sweeper, a.runner, a.dispatcher, scheduler.ReminderConfig{
		InvoiceReminderDays: cfg.InvoiceReminderDays,
		IncludeOverdueTasks: cfg.TaskReminderIncludeOverdue,
	}, log)
	return a, nil
}

func newMailer(cfg *config.Config, log logrus.FieldLogger) (notify.Mailer, error) {
	if cfg.SMTPHost == "" {
		log.Warn("SMTP_HOST not set, mail notifications will only be logged")
		return notify.LogMailer{Log: log}, nil
	}
	m, err := notify.NewSMTPMailer(notify.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.MailFrom,
		Timeout:  cfg.MailTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("configure smtp: %w", err)
	}
	return m, nil
}

func (a *app) close() {
	if a == nil || a.db == nil {
		return
	}
	if sqlDB, err := a.db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			a.log.WithError(err).Warn("close database")
		}
	}
}
