package billing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yourusername/billflow/models"
	"github.com/yourusername/billflow/numbering"
	"gorm.io/gorm"
)

type invoiceDraft struct {
	quotationID  *uint
	clientID     *uint
	contactEmail string
	lines        []models.LineItem
	issueDate    time.Time
	dueDate      *time.Time
	notes        string
}

func createInvoice(tx *gorm.DB, d invoiceDraft) (*models.Invoice, error) {
	number, err := numbering.Next(tx, numbering.ScopeInvoice)
	if err != nil {
		return nil, err
	}
	if d.dueDate != nil {
		due := d.dueDate.UTC()
		d.dueDate = &due
	}
	totals := ComputeTotals(d.lines)
	inv := &models.Invoice{
		Number:       number,
		QuotationID:  d.quotationID,
		ClientID:     d.clientID,
		ContactEmail: d.contactEmail,
		Subtotal:     totals.Subtotal,
		TaxAmount:    totals.TaxAmount,
		TotalAmount:  totals.Total,
		AmountPaid:   decimal.Zero,
		AmountDue:    totals.Total,
		Status:       models.InvoiceDraft,
		IssueDate:    d.issueDate,
		DueDate:      d.dueDate,
		Notes:        d.notes,
	}
	for _, line := range d.lines {
		inv.Items = append(inv.Items, models.InvoiceItem{LineItem: line})
	}
	if err := tx.Create(inv).Error; err != nil {
		return nil, numbering.Translate(err)
	}
	return inv, nil
}

type CreateInvoiceInput struct {
	ClientID     *uint
	ContactEmail string
	Items        []ItemInput
	IssueDate    time.Time
	DueDate      *time.Time
	Notes        string
}

// CreateInvoice creates a draft invoice directly, without a quotation.
func (e *Engine) CreateInvoice(ctx context.Context, in CreateInvoiceInput) (*models.Invoice, []models.Event, error) {
	lines, err := BuildLineItems(in.Items)
	if err != nil {
		return nil, nil, err
	}
	issue := in.IssueDate
	if issue.IsZero() {
		issue = e.today()
	}
	if in.DueDate != nil && in.DueDate.Before(startOfDay(issue)) {
		return nil, nil, fmt.Errorf("%w: due date precedes issue date", ErrInvalidInput)
	}

	var inv *models.Invoice
	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if in.ClientID != nil {
			if err := tx.Select("id").First(&models.Client{}, *in.ClientID).Error; err != nil {
				return notFound(err, "client", *in.ClientID)
			}
		}
		inv, err = createInvoice(tx, invoiceDraft{
			clientID:     in.ClientID,
			contactEmail: strings.TrimSpace(in.ContactEmail),
			lines:        lines,
			issueDate:    issue.UTC(),
			dueDate:      in.DueDate,
			notes:        in.Notes,
		})
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	e.log.WithField("invoice", inv.Number).Info("invoice created")
	return inv, []models.Event{e.invoiceCreatedEvent(inv)}, nil
}

// SendInvoice issues a draft invoice to the client.
func (e *Engine) SendInvoice(ctx context.Context, id uint) (*models.Invoice, []models.Event, error) {
	var events []models.Event
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inv, err := lockInvoice(tx, id)
		if err != nil {
			return err
		}
		if inv.Status != models.InvoiceDraft {
			return &TransitionError{Document: "invoice", Number: inv.Number, From: string(inv.Status), To: string(models.InvoiceSent)}
		}
		if !inv.TotalAmount.IsPositive() {
			return &TransitionError{Document: "invoice", Number: inv.Number, From: string(inv.Status), To: string(models.InvoiceSent), Reason: "invoice total is zero"}
		}
		if err := tx.Model(inv).Update("status", models.InvoiceSent).Error; err != nil {
			return fmt.Errorf("send invoice: %w", err)
		}
		previous := inv.Status
		inv.Status = models.InvoiceSent
		ev := e.invoiceEvent(models.EventInvoiceSent, inv)
		ev.Payload[models.PayloadPreviousStatus] = string(previous)
		events = append(events, ev)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	inv, err := e.GetInvoice(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	e.log.WithField("invoice", inv.Number).Info("invoice sent")
	return inv, events, nil
}

// CancelInvoice is terminal and allowed from any state except paid.
func (e *Engine) CancelInvoice(ctx context.Context, id uint) (*models.Invoice, []models.Event, error) {
	var events []models.Event
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inv, err := lockInvoice(tx, id)
		if err != nil {
			return err
		}
		if inv.Status == models.InvoicePaid || inv.Status == models.InvoiceCancelled {
			return &TransitionError{Document: "invoice", Number: inv.Number, From: string(inv.Status), To: string(models.InvoiceCancelled)}
		}
		previous := inv.Status
		if err := tx.Model(inv).Update("status", models.InvoiceCancelled).Error; err != nil {
			return fmt.Errorf("cancel invoice: %w", err)
		}
		events = append(events, models.NewEvent(models.EventInvoiceCancelled, models.SubjectInvoice, inv.ID, e.now(), map[string]string{
			models.PayloadNumber:         inv.Number,
			models.PayloadPreviousStatus: string(previous),
			models.PayloadAmountDue:      inv.AmountDue.StringFixed(2),
		}))
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	inv, err := e.GetInvoice(ctx, id)
	return inv, events, err
}

// DeleteInvoice soft deletes a draft or cancelled invoice with no live
// payments. The row and its number stay in the database.
func (e *Engine) DeleteInvoice(ctx context.Context, id uint) error {
	return e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inv, err := lockInvoice(tx, id)
		if err != nil {
			return err
		}
		if inv.Status != models.InvoiceDraft && inv.Status != models.InvoiceCancelled {
			return fmt.Errorf("%w: invoice %s is %s", ErrAuditLocked, inv.Number, inv.Status)
		}
		var payments int64
		if err := tx.Model(&models.Payment{}).Where("invoice_id = ?", inv.ID).Count(&payments).Error; err != nil {
			return fmt.Errorf("count payments: %w", err)
		}
		if payments > 0 {
			return fmt.Errorf("%w: invoice %s has payments", ErrAuditLocked, inv.Number)
		}
		return tx.Delete(inv).Error
	})
}

// MarkOverdue moves a sent or partially paid invoice past its due date to
// overdue. Calling it on an invoice that is already overdue is a no-op and
// produces no event, which keeps invoice.overdue at one per transition.
func (e *Engine) MarkOverdue(ctx context.Context, id uint) (*models.Invoice, []models.Event, error) {
	var (
		inv    *models.Invoice
		events []models.Event
	)
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		inv, err = lockInvoice(tx, id)
		if err != nil {
			return err
		}
		if inv.Status == models.InvoiceOverdue {
			return nil
		}
		reject := func(reason string) error {
			return &TransitionError{Document: "invoice", Number: inv.Number, From: string(inv.Status), To: string(models.InvoiceOverdue), Reason: reason}
		}
		if inv.Status != models.InvoiceSent && inv.Status != models.InvoicePartiallyPaid {
			return reject("")
		}
		if inv.DueDate == nil || !inv.DueDate.Before(e.today()) {
			return reject("not past due")
		}
		if !inv.AmountDue.IsPositive() {
			return reject("no outstanding balance")
		}
		if err := tx.Model(inv).Update("status", models.InvoiceOverdue).Error; err != nil {
			return fmt.Errorf("mark invoice overdue: %w", err)
		}
		inv.Status = models.InvoiceOverdue
		events = append(events, models.NewEvent(models.EventInvoiceOverdue, models.SubjectInvoice, inv.ID, e.now(), map[string]string{
			models.PayloadNumber:    inv.Number,
			models.PayloadAmountDue: inv.AmountDue.StringFixed(2),
			models.PayloadDueDate:   inv.DueDate.Format(time.DateOnly),
		}))
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return inv, events, nil
}

func (e *Engine) invoiceCreatedEvent(inv *models.Invoice) models.Event {
	return e.invoiceEvent(models.EventInvoiceCreated, inv)
}

func (e *Engine) invoiceEvent(eventType models.EventType, inv *models.Invoice) models.Event {
	payload := map[string]string{
		models.PayloadNumber: inv.Number,
		models.PayloadAmount: inv.TotalAmount.StringFixed(2),
		models.PayloadStatus: string(inv.Status),
	}
	if inv.DueDate != nil {
		payload[models.PayloadDueDate] = inv.DueDate.Format(time.DateOnly)
	}
	return models.NewEvent(eventType, models.SubjectInvoice, inv.ID, e.now(), payload)
}
