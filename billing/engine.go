// Package billing is the single authority over the quotation, invoice and
// payment lifecycles. Every mutating operation runs in one transaction,
// recomputes derived amounts, and returns the events it produced so the
// caller decides how to dispatch them.
package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yourusername/billflow/models"
	"github.com/yourusername/billflow/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const defaultPaymentTerms = 30 * 24 * time.Hour

type Engine struct {
	db           *gorm.DB
	clock        func() time.Time
	log          logrus.FieldLogger
	settlement   utils.SettlementVerifier
	paymentTerms time.Duration
}

type Option func(*Engine)

// WithClock overrides the time source used for dates and event timestamps.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		if clock != nil {
			e.clock = clock
		}
	}
}

func WithLogger(log logrus.FieldLogger) Option {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

// WithSettlementVerifier enables on-chain verification of stellar payments.
func WithSettlementVerifier(v utils.SettlementVerifier) Option {
	return func(e *Engine) {
		e.settlement = v
	}
}

// WithPaymentTerms sets the default due date offset for converted quotations.
func WithPaymentTerms(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.paymentTerms = d
		}
	}
}

func NewEngine(db *gorm.DB, opts ...Option) *Engine {
	e := &Engine{
		db:           db,
		clock:        time.Now,
		log:          logrus.StandardLogger(),
		paymentTerms: defaultPaymentTerms,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) now() time.Time {
	return e.clock().UTC()
}

// today is the start of the current UTC day.
func (e *Engine) today() time.Time {
	return startOfDay(e.now())
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func notFound(err error, what string, id uint) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s %d", ErrNotFound, what, id)
	}
	return fmt.Errorf("load %s %d: %w", what, id, err)
}

// lockInvoice reads an invoice for update inside tx.
func lockInvoice(tx *gorm.DB, id uint) (*models.Invoice, error) {
	var inv models.Invoice
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&inv, id).Error; err != nil {
		return nil, notFound(err, "invoice", id)
	}
	return &inv, nil
}

func lockQuotation(tx *gorm.DB, id uint) (*models.Quotation, error) {
	var q models.Quotation
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&q, id).Error; err != nil {
		return nil, notFound(err, "quotation", id)
	}
	return &q, nil
}

// GetInvoice loads an invoice with its items and live payments.
func (e *Engine) GetInvoice(ctx context.Context, id uint) (*models.Invoice, error) {
	var inv models.Invoice
	err := e.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("position") }).
		Preload("Payments", func(db *gorm.DB) *gorm.DB { return db.Order("payment_date, id") }).
		Preload("Client").
		First(&inv, id).Error
	if err != nil {
		return nil, notFound(err, "invoice", id)
	}
	return &inv, nil
}

// GetQuotation loads a quotation with its items.
func (e *Engine) GetQuotation(ctx context.Context, id uint) (*models.Quotation, error) {
	var q models.Quotation
	err := e.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("position") }).
		Preload("Client").
		First(&q, id).Error
	if err != nil {
		return nil, notFound(err, "quotation", id)
	}
	return &q, nil
}
