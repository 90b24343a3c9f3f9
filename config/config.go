package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/yourusername/billflow/models"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Config struct {
	Port             string `env:"PORT" envDefault:"8080"`
	DatabaseDriver   string `env:"DATABASE_DRIVER" envDefault:"postgres"`
	DatabaseURL      string `env:"DATABASE_URL"`
	JWTSecret        string `env:"JWT_SECRET"`
	JWTRefreshSecret string `env:"JWT_REFRESH_SECRET"`
	LogLevel         string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat        string `env:"LOG_FORMAT" envDefault:"text"`

	SMTPHost         string        `env:"SMTP_HOST"`
	SMTPPort         int           `env:"SMTP_PORT" envDefault:"587"`
	SMTPUsername     string        `env:"SMTP_USERNAME"`
	SMTPPassword     string        `env:"SMTP_PASSWORD"`
	MailFrom         string        `env:"MAIL_FROM" envDefault:"billing@localhost"`
	MailTimeout      time.Duration `env:"MAIL_TIMEOUT" envDefault:"10s"`
	MailMaxAttempts  int           `env:"MAIL_MAX_ATTEMPTS" envDefault:"3"`
	MailRetryBackoff time.Duration `env:"MAIL_RETRY_BACKOFF" envDefault:"2s"`

	NotificationPolicyFile string `env:"NOTIFICATION_POLICY_FILE"`

	ScheduleTimezone           string `env:"SCHEDULE_TIMEZONE" envDefault:"UTC"`
	OverdueSweepSchedule       string `env:"OVERDUE_SWEEP_SCHEDULE" envDefault:"0 1 * * *"`
	TaskReminderSchedule       string `env:"TASK_REMINDER_SCHEDULE" envDefault:"0 8 * * *"`
	InvoiceReminderSchedule    string `env:"INVOICE_REMINDER_SCHEDULE" envDefault:"0 9 * * *"`
	InvoiceReminderDays        int    `env:"INVOICE_REMINDER_DAYS" envDefault:"3"`
	TaskReminderIncludeOverdue bool   `env:"TASK_REMINDER_INCLUDE_OVERDUE" envDefault:"false"`
	PaymentTermsDays           int    `env:"PAYMENT_TERMS_DAYS" envDefault:"30"`

	StellarNetwork          string `env:"STELLAR_NETWORK" envDefault:"testnet"`
	HorizonURL              string `env:"HORIZON_URL" envDefault:"https://horizon-testnet.stellar.org"`
	NetworkPassphrase       string `env:"NETWORK_PASSPHRASE" envDefault:"Test SDF Network ; September 2015"`
	StellarReceivingAccount string `env:"STELLAR_RECEIVING_ACCOUNT"`

	// Empty code settles in native lumens.
	StellarAssetCode   string `env:"STELLAR_ASSET_CODE"`
	StellarAssetIssuer string `env:"STELLAR_ASSET_ISSUER"`
}

func LoadConfig() (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if cfg.InvoiceReminderDays < 0 {
		return nil, fmt.Errorf("INVOICE_REMINDER_DAYS must not be negative, got %d", cfg.InvoiceReminderDays)
	}
	if cfg.MailMaxAttempts < 1 {
		cfg.MailMaxAttempts = 1
	}
	return cfg, nil
}

// Location resolves the timezone the scheduled jobs run in.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.ScheduleTimezone)
	if err != nil {
		return nil, fmt.Errorf("load schedule timezone %q: %w", c.ScheduleTimezone, err)
	}
	return loc, nil
}

func InitDB(cfg *Config) (*gorm.DB, error) {
	var (
		db  *gorm.DB
		err error
	)
	switch strings.ToLower(cfg.DatabaseDriver) {
	case "sqlite":
		db, err = OpenSQLite(cfg.DatabaseURL)
	case "postgres", "":
		db, err = gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{TranslateError: true})
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.DatabaseDriver)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	return db, nil
}

// OpenSQLite opens a sqlite database for development and tests. The pool is
// pinned to one connection so in-memory databases are shared and writers are
// serialised.
func OpenSQLite(dsn string) (*gorm.DB, error) {
	if dsn == "" {
		dsn = ":memory:"
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}
