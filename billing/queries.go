package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/yourusername/billflow/models"
)

// Read-only projections for dashboards and scheduled jobs. None of these
// mutate state.

func (e *Engine) OverdueInvoices(ctx context.Context) ([]models.Invoice, error) {
	var invoices []models.Invoice
	err := e.db.WithContext(ctx).
		Preload("Client").
		Where("status = ?", models.InvoiceOverdue).
		Where("amount_due > 0").
		Order("due_date, id").
		Find(&invoices).Error
	if err != nil {
		return nil, fmt.Errorf("list overdue invoices: %w", err)
	}
	return invoices, nil
}

// InvoicesDueWithin lists open invoices due between today and today+days.
func (e *Engine) InvoicesDueWithin(ctx context.Context, days int) ([]models.Invoice, error) {
	if days < 0 {
		return nil, fmt.Errorf("%w: days must not be negative", ErrInvalidInput)
	}
	today := e.today()
	until := today.AddDate(0, 0, days+1)
	var invoices []models.Invoice
	err := e.db.WithContext(ctx).
		Preload("Client").
		Where("status IN ?", []models.InvoiceStatus{models.InvoiceSent, models.InvoicePartiallyPaid}).
		Where("due_date IS NOT NULL AND due_date >= ? AND due_date < ?", today, until).
		Where("amount_due > 0").
		Order("due_date, id").
		Find(&invoices).Error
	if err != nil {
		return nil, fmt.Errorf("list invoices due within %d days: %w", days, err)
	}
	return invoices, nil
}

// PendingQuotations lists quotations still awaiting a decision.
func (e *Engine) PendingQuotations(ctx context.Context) ([]models.Quotation, error) {
	var quotes []models.Quotation
	err := e.db.WithContext(ctx).
		Preload("Client").
		Where("status IN ?", []models.QuotationStatus{models.QuotationPending, models.QuotationSent}).
		Order("issue_date, id").
		Find(&quotes).Error
	if err != nil {
		return nil, fmt.Errorf("list pending quotations: %w", err)
	}
	return quotes, nil
}

// OverdueCandidates selects invoices the overdue sweep should evaluate:
// not paid, cancelled or already overdue, due before today, with a balance.
// Drafts are excluded as they have never been issued.
func (e *Engine) OverdueCandidates(ctx context.Context) ([]models.Invoice, error) {
	var invoices []models.Invoice
	err := e.db.WithContext(ctx).
		Where("status NOT IN ?", []models.InvoiceStatus{
			models.InvoicePaid, models.InvoiceCancelled, models.InvoiceOverdue, models.InvoiceDraft,
		}).
		Where("due_date IS NOT NULL AND due_date < ?", e.today()).
		Where("amount_due > 0").
		Order("due_date, id").
		Find(&invoices).Error
	if err != nil {
		return nil, fmt.Errorf("list overdue candidates: %w", err)
	}
	return invoices, nil
}

// OverdueSince lists overdue invoices with a balance whose due date is on or
// before cutoff, with their client loaded for contact resolution.
func (e *Engine) OverdueSince(ctx context.Context, cutoff time.Time) ([]models.Invoice, error) {
	var invoices []models.Invoice
	err := e.db.WithContext(ctx).
		Preload("Client").
		Where("status = ?", models.InvoiceOverdue).
		Where("amount_due > 0").
		Where("due_date IS NOT NULL AND due_date <= ?", cutoff.UTC()).
		Order("due_date, id").
		Find(&invoices).Error
	if err != nil {
		return nil, fmt.Errorf("list invoices overdue since %s: %w", cutoff.Format(time.DateOnly), err)
	}
	return invoices, nil
}

// Now exposes the engine clock to collaborators that must agree with it.
func (e *Engine) Now() time.Time {
	return e.now()
}
